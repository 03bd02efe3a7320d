package sharelimits

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/s0up4200/seedkeeper/config"
	"github.com/s0up4200/seedkeeper/qbittorrent"
)

// ratioTolerance absorbs the rounding the client applies to ratio limits
const ratioTolerance = 0.005

// TagNames are the tags the evaluator manages on torrents
type TagNames struct {
	// ShareLimits prefixes generated group tags
	ShareLimits    string
	MinSeedingTime string
	MinNumSeeds    string
	LastActive     string
}

// Inputs carries the pass-wide values an evaluation depends on
type Inputs struct {
	Now time.Time
	// GroupSize is the number of torrents resolved to the group, used to
	// split a group wide upload limit
	GroupSize int
}

// Evaluator turns a torrent and its resolved group into a Decision
type Evaluator struct {
	tags       TagNames
	prefix     string
	customTags []string
}

// NewEvaluator creates an evaluator aware of every configured group so tags
// left behind by other groups can be removed
func NewEvaluator(tags TagNames, groups []*Group) *Evaluator {
	e := &Evaluator{
		tags:   tags,
		prefix: tags.ShareLimits + "_",
	}
	for _, g := range groups {
		if g.AddGroupToTag && g.CustomTag != "" {
			e.customTags = append(e.customTags, g.CustomTag)
		}
	}
	return e
}

// Evaluate decides what to do with t given its group g. A nil group only
// strips generated group tags.
func (e *Evaluator) Evaluate(t *qbittorrent.TorrentInfo, g *Group, in Inputs) Decision {
	if g == nil {
		return Decision{
			Kind:       NoAction,
			RemoveTags: e.staleGroupTags(t, "", false),
		}
	}

	seeding := int64(t.SeedingTime / time.Minute)
	inactive := int64(t.InactiveFor(in.Now) / time.Minute)

	var ripeBy []string
	if g.MaxRatio >= 0 && t.Ratio >= g.MaxRatio {
		ripeBy = append(ripeBy, fmt.Sprintf("ratio %.2f >= %.2f", t.Ratio, g.MaxRatio))
	}
	if g.MaxSeedingTime >= 0 && seeding >= g.MaxSeedingTime {
		ripeBy = append(ripeBy, fmt.Sprintf("seeding %s >= %s", minutes(seeding), minutes(g.MaxSeedingTime)))
	}
	if g.MaxLastActive >= 0 && inactive >= g.MaxLastActive {
		ripeBy = append(ripeBy, fmt.Sprintf("inactive %s >= %s", minutes(inactive), minutes(g.MaxLastActive)))
	}
	ripe := len(ripeBy) > 0

	type minimum struct {
		unmet  bool
		tag    string
		reason string
	}
	minimums := []minimum{
		{
			unmet:  g.MinSeedingTime > 0 && seeding < g.MinSeedingTime,
			tag:    e.tags.MinSeedingTime,
			reason: fmt.Sprintf("min seeding time %s < %s", minutes(seeding), minutes(g.MinSeedingTime)),
		},
		{
			unmet:  g.MinLastActive > 0 && inactive < g.MinLastActive,
			tag:    e.tags.LastActive,
			reason: fmt.Sprintf("min inactive time %s < %s", minutes(inactive), minutes(g.MinLastActive)),
		},
		{
			unmet:  g.MinNumSeeds > 0 && t.NumComplete < g.MinNumSeeds,
			tag:    e.tags.MinNumSeeds,
			reason: fmt.Sprintf("seeds %d < %d", t.NumComplete, g.MinNumSeeds),
		},
	}

	d := Decision{Group: g.Name}

	hold := g.Cleanup && ripe
	for _, m := range minimums {
		switch {
		case m.unmet && hold:
			d.Unmet = append(d.Unmet, m.reason)
			if m.tag != "" && !t.HasTag(m.tag) {
				d.AddTags = append(d.AddTags, m.tag)
			}
		case !m.unmet && m.tag != "" && t.HasTag(m.tag):
			d.RemoveTags = append(d.RemoveTags, m.tag)
		}
	}

	if g.Cleanup && ripe && len(d.Unmet) == 0 {
		reason := strings.Join(ripeBy, ", ")
		if g.UploadSpeedOnLimitReached <= 0 {
			d.AddTags, d.RemoveTags = nil, nil
			d.Reason = reason
			if g.DeleteFiles {
				d.Kind = DeleteWithContents
			} else {
				d.Kind = Delete
			}
			return d
		}
		d.Kind = Throttle
		d.Reason = reason + ", upload throttled"
		d.Limits = clearedLimits
		d.Limits.UploadLimit = g.UploadSpeedOnLimitReached * 1024
		// The client has usually paused it for reaching the old ratio limit
		d.Resume = g.ResumeTorrentAfterChange && t.IsPaused()
	} else if len(d.Unmet) > 0 {
		d.Kind = HoldUnmetMinimum
		d.Reason = strings.Join(d.Unmet, ", ")
		d.Limits = clearedLimits
		d.Limits.UploadLimit = e.groupUploadLimit(g, in.GroupSize)
		if g.ResetUploadSpeedOnUnmet {
			d.Limits.UploadLimit = config.LimitDisabled
		}
		d.Resume = g.ResumeTorrentAfterChange && t.IsPaused()
	} else {
		d.Kind = ApplyLimits
		d.Limits = Limits{
			Ratio:           g.MaxRatio,
			SeedingMinutes:  g.MaxSeedingTime,
			InactiveMinutes: config.LimitGlobal,
			UploadLimit:     e.groupUploadLimit(g, in.GroupSize),
		}
	}

	d.SetLimits = !shareLimitsMatch(t, d.Limits)
	d.SetUpload = currentUploadLimit(t) != d.Limits.UploadLimit

	tag := g.Tag(e.tags.ShareLimits)
	if tag != "" && !t.HasTag(tag) {
		d.AddTags = append(d.AddTags, tag)
	}
	d.RemoveTags = append(d.RemoveTags, e.staleGroupTags(t, tag, true)...)

	if d.Kind == ApplyLimits {
		// Limits changed on a torrent the client paused for reaching the
		// old ones
		d.Resume = d.SetLimits && g.ResumeTorrentAfterChange && t.IsPaused() && t.IsComplete()
		if !d.HasMutations() {
			d.Kind = NoAction
		}
	}

	return d
}

// staleGroupTags lists group tags on t other than keep. Custom tags are only
// considered for torrents that resolved to a group.
func (e *Evaluator) staleGroupTags(t *qbittorrent.TorrentInfo, keep string, withCustom bool) []string {
	var stale []string
	for _, tag := range t.Tags {
		if tag == keep {
			continue
		}
		if e.tags.ShareLimits != "" && strings.HasPrefix(tag, e.prefix) {
			stale = append(stale, tag)
			continue
		}
		if withCustom && slices.Contains(e.customTags, tag) {
			stale = append(stale, tag)
		}
	}
	return stale
}

// groupUploadLimit returns the group's upload limit in bytes per second
func (e *Evaluator) groupUploadLimit(g *Group, groupSize int) int64 {
	kib := g.LimitUploadSpeed
	if kib <= 0 {
		return config.LimitDisabled
	}
	if g.EnableGroupUploadSpeed && groupSize > 0 {
		kib = max(int64(math.Round(float64(kib)/float64(groupSize))), 1)
	}
	return kib * 1024
}

// currentUploadLimit normalizes the client's upload limit to the units
// decisions use. Anything below half a KiB/s is unlimited.
func currentUploadLimit(t *qbittorrent.TorrentInfo) int64 {
	kib := int64(math.Round(float64(t.UpLimit) / 1024))
	if kib <= 0 {
		return config.LimitDisabled
	}
	return kib * 1024
}

func shareLimitsMatch(t *qbittorrent.TorrentInfo, l Limits) bool {
	return math.Abs(t.RatioLimit-l.Ratio) < ratioTolerance &&
		t.SeedingTimeLimit == l.SeedingMinutes &&
		t.InactiveSeedingTimeLimit == l.InactiveMinutes
}

func minutes(m int64) string {
	return (time.Duration(m) * time.Minute).String()
}
