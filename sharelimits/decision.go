package sharelimits

import "github.com/s0up4200/seedkeeper/config"

// Kind is the action the engine takes for a torrent in its share limit group
type Kind int

const (
	NoAction Kind = iota
	ApplyLimits
	HoldUnmetMinimum
	Throttle
	Delete
	DeleteWithContents
)

func (k Kind) String() string {
	switch k {
	case NoAction:
		return "no_action"
	case ApplyLimits:
		return "apply_limits"
	case HoldUnmetMinimum:
		return "hold_unmet_minimum"
	case Throttle:
		return "throttle"
	case Delete:
		return "delete"
	case DeleteWithContents:
		return "delete_with_contents"
	default:
		return "unknown"
	}
}

// IsDelete reports whether the decision removes the torrent
func (k Kind) IsDelete() bool {
	return k == Delete || k == DeleteWithContents
}

// Limits are the per-torrent limits a decision wants in place. Times are
// minutes and UploadLimit is bytes per second; -1 means unlimited and -2
// defers to the client's global setting.
type Limits struct {
	Ratio           float64
	SeedingMinutes  int64
	InactiveMinutes int64
	UploadLimit     int64
}

var clearedLimits = Limits{
	Ratio:           config.LimitDisabled,
	SeedingMinutes:  config.LimitDisabled,
	InactiveMinutes: config.LimitDisabled,
}

// Decision is the outcome of evaluating one torrent. The mutation fields
// only hold the changes needed to bring the torrent in line; a torrent that
// already conforms yields a decision with nothing to apply.
type Decision struct {
	Kind  Kind
	Group string
	// Limits are always filled in for non-delete decisions
	Limits Limits

	SetLimits  bool
	SetUpload  bool
	Resume     bool
	AddTags    []string
	RemoveTags []string

	// Unmet names the minimums holding back a ripe torrent
	Unmet  []string
	Reason string
}

// HasMutations reports whether applying the decision changes the torrent
func (d Decision) HasMutations() bool {
	return d.SetLimits || d.SetUpload || d.Resume || len(d.AddTags) > 0 || len(d.RemoveTags) > 0
}
