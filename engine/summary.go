package engine

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Counters tallies what a pass did, or would have done in dry run
type Counters struct {
	Categorized          int `json:"categorized"`
	Tagged               int `json:"tagged"`
	Resumed              int `json:"resumed"`
	Rechecked            int `json:"rechecked"`
	RemovedUnregistered  int `json:"rem_unreg"`
	TaggedTrackerError   int `json:"tagged_tracker_error"`
	UntaggedTrackerError int `json:"untagged_tracker_error"`
	TaggedNoHardlinks    int `json:"tagged_noHL"`
	UntaggedNoHardlinks  int `json:"untagged_noHL"`
	UpdatedShareLimits   int `json:"updated_share_limits"`
	CleanedShareLimits   int `json:"cleaned_share_limits"`
	Deleted              int `json:"deleted"`
	DeletedContents      int `json:"deleted_contents"`
	Orphaned             int `json:"orphaned"`
	RecycleEmptied       int `json:"recycle_emptied"`
	OrphanedEmptied      int `json:"orphaned_emptied"`
}

// Summary reports one pass
type Summary struct {
	RunID      string    `json:"run_id"`
	Config     string    `json:"config,omitempty"`
	Commands   []string  `json:"executed_commands"`
	DryRun     bool      `json:"dry_run"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Torrents   int       `json:"torrents"`
	Counters
	// Decisions counts share limit decisions by kind
	Decisions map[string]int `json:"decisions,omitempty"`
	Errors    []string       `json:"errors,omitempty"`

	mu sync.Mutex
}

func newSummary(dryRun bool, started time.Time) *Summary {
	return &Summary{
		RunID:     uuid.NewString(),
		DryRun:    dryRun,
		StartedAt: started,
		Decisions: make(map[string]int),
	}
}

// Duration returns how long the pass took
func (s *Summary) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// add increments a counter from a worker goroutine
func (s *Summary) add(counter *int, n int) {
	s.mu.Lock()
	*counter += n
	s.mu.Unlock()
}

func (s *Summary) decision(kind string) {
	s.mu.Lock()
	s.Decisions[kind]++
	s.mu.Unlock()
}

func (s *Summary) addError(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	s.Errors = append(s.Errors, err.Error())
	s.mu.Unlock()
}

// Actions returns the non-zero counters keyed by their summary name
func (s *Summary) Actions() map[string]int {
	c := s.Counters
	all := map[string]int{
		"categorized":            c.Categorized,
		"tagged":                 c.Tagged,
		"resumed":                c.Resumed,
		"rechecked":              c.Rechecked,
		"rem_unreg":              c.RemovedUnregistered,
		"tagged_tracker_error":   c.TaggedTrackerError,
		"untagged_tracker_error": c.UntaggedTrackerError,
		"tagged_noHL":            c.TaggedNoHardlinks,
		"untagged_noHL":          c.UntaggedNoHardlinks,
		"updated_share_limits":   c.UpdatedShareLimits,
		"cleaned_share_limits":   c.CleanedShareLimits,
		"deleted":                c.Deleted,
		"deleted_contents":       c.DeletedContents,
		"orphaned":               c.Orphaned,
		"recycle_emptied":        c.RecycleEmptied,
		"orphaned_emptied":       c.OrphanedEmptied,
	}
	for k, v := range all {
		if v == 0 {
			delete(all, k)
		}
	}
	return all
}
