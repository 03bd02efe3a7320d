package sharelimits

import (
	"fmt"
	"slices"
	"sort"

	"github.com/s0up4200/seedkeeper/config"
	"github.com/s0up4200/seedkeeper/filter"
	"github.com/s0up4200/seedkeeper/qbittorrent"
)

// Group is a share limit policy resolved from configuration
type Group struct {
	Name     string
	Priority int
	// Index is the declaration order, used to break priority ties
	Index int

	IncludeAllTags []string
	IncludeAnyTags []string
	ExcludeAllTags []string
	ExcludeAnyTags []string
	Categories     []string
	MinSize        int64
	MaxSize        int64
	Filter         filter.CompiledFilter
	CustomTag      string

	// Thresholds. Times are minutes, -1 disables and -2 defers to the
	// client's global setting.
	MaxRatio       float64
	MaxSeedingTime int64
	MinSeedingTime int64
	MaxLastActive  int64
	MinLastActive  int64
	MinNumSeeds    int64

	// Upload speeds in KiB/s, <= 0 means unlimited
	LimitUploadSpeed          int64
	UploadSpeedOnLimitReached int64

	Cleanup                  bool
	DeleteFiles              bool
	ResumeTorrentAfterChange bool
	AddGroupToTag            bool
	EnableGroupUploadSpeed   bool
	ResetUploadSpeedOnUnmet  bool

	// Err is set when the group definition cannot be used. Such groups
	// never match.
	Err error
}

// Tag returns the tag marking membership of this group, or "" when the
// group does not tag its torrents
func (g *Group) Tag(prefix string) string {
	if !g.AddGroupToTag {
		return ""
	}
	if g.CustomTag != "" {
		return g.CustomTag
	}
	return fmt.Sprintf("%s_%d.%s", prefix, g.Priority, g.Name)
}

// Matches reports whether t satisfies the group's predicate. A filter
// expression failing at runtime is returned as an error.
func (g *Group) Matches(t *qbittorrent.TorrentInfo) (bool, error) {
	if g.Err != nil {
		return false, nil
	}
	if !checkTags(t.Tags, g.IncludeAllTags, g.IncludeAnyTags, g.ExcludeAllTags, g.ExcludeAnyTags) {
		return false, nil
	}
	if len(g.Categories) > 0 && !slices.Contains(g.Categories, t.Category) {
		return false, nil
	}
	if g.MinSize > 0 && t.Size < g.MinSize {
		return false, nil
	}
	if g.MaxSize > 0 && t.Size > g.MaxSize {
		return false, nil
	}
	if g.Filter != nil {
		return g.Filter.Match(t)
	}
	return true, nil
}

func checkTags(tags, includeAll, includeAny, excludeAll, excludeAny []string) bool {
	has := func(tag string) bool { return slices.Contains(tags, tag) }

	if len(includeAll) > 0 && !allOf(includeAll, has) {
		return false
	}
	if len(includeAny) > 0 && !slices.ContainsFunc(includeAny, has) {
		return false
	}
	if len(excludeAll) > 0 && allOf(excludeAll, has) {
		return false
	}
	if len(excludeAny) > 0 && slices.ContainsFunc(excludeAny, has) {
		return false
	}
	return true
}

func allOf(values []string, pred func(string) bool) bool {
	for _, v := range values {
		if !pred(v) {
			return false
		}
	}
	return true
}

// BuildGroups turns configured groups into sorted policy groups. Problems
// are returned as warnings: an unusable group carries Err and is kept so
// callers can report it; duplicate priorities keep declaration order.
func BuildGroups(cfgs []config.ShareLimitGroupConfig, compiler filter.Compiler) ([]*Group, []error) {
	var warnings []error

	maxPriority := 0
	for _, c := range cfgs {
		if c.Priority != nil {
			maxPriority = max(maxPriority, *c.Priority)
		}
	}

	seenPriority := make(map[int]string)
	groups := make([]*Group, 0, len(cfgs))
	for i, c := range cfgs {
		g := newGroup(c, i, compiler)

		if c.Priority != nil {
			g.Priority = *c.Priority
		} else {
			maxPriority++
			g.Priority = maxPriority
		}

		if other, ok := seenPriority[g.Priority]; ok {
			warnings = append(warnings, fmt.Errorf("share limit groups %q and %q share priority %d, %q takes precedence", other, g.Name, g.Priority, other))
		} else {
			seenPriority[g.Priority] = g.Name
		}

		if g.Err != nil {
			warnings = append(warnings, fmt.Errorf("share limit group %q disabled: %w", g.Name, g.Err))
		}
		groups = append(groups, g)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].Priority != groups[j].Priority {
			return groups[i].Priority < groups[j].Priority
		}
		return groups[i].Index < groups[j].Index
	})

	return groups, warnings
}

func newGroup(c config.ShareLimitGroupConfig, index int, compiler filter.Compiler) *Group {
	g := &Group{
		Name:                      c.Name,
		Index:                     index,
		IncludeAllTags:            c.IncludeAllTags,
		IncludeAnyTags:            c.IncludeAnyTags,
		ExcludeAllTags:            c.ExcludeAllTags,
		ExcludeAnyTags:            c.ExcludeAnyTags,
		Categories:                c.Categories,
		CustomTag:                 c.CustomTag,
		MaxRatio:                  config.LimitDisabled,
		MinNumSeeds:               int64(max(c.MinNumSeeds, 0)),
		LimitUploadSpeed:          c.LimitUploadSpeed,
		UploadSpeedOnLimitReached: c.UploadSpeedOnLimitReached,
		Cleanup:                   c.Cleanup,
		DeleteFiles:               boolOr(c.DeleteFiles, true),
		ResumeTorrentAfterChange:  boolOr(c.ResumeTorrentAfterChange, true),
		AddGroupToTag:             boolOr(c.AddGroupToTag, true),
		EnableGroupUploadSpeed:    c.EnableGroupUploadSpeed,
		ResetUploadSpeedOnUnmet:   boolOr(c.ResetUploadSpeedOnUnmet, true),
	}

	if c.MaxRatio != nil {
		g.MaxRatio = *c.MaxRatio
		if g.MaxRatio < 0 && g.MaxRatio != config.LimitDisabled && g.MaxRatio != config.LimitGlobal {
			g.Err = fmt.Errorf("invalid max_ratio %v", g.MaxRatio)
			return g
		}
	}

	var err error
	if g.MinSize, err = config.ParseSize(c.MinTorrentSize); err != nil {
		g.Err = fmt.Errorf("min_torrent_size: %w", err)
		return g
	}
	if g.MaxSize, err = config.ParseSize(c.MaxTorrentSize); err != nil {
		g.Err = fmt.Errorf("max_torrent_size: %w", err)
		return g
	}
	if g.MinSize > 0 && g.MaxSize > 0 && g.MinSize > g.MaxSize {
		g.Err = fmt.Errorf("min_torrent_size %s exceeds max_torrent_size %s", c.MinTorrentSize, c.MaxTorrentSize)
		return g
	}

	durations := []struct {
		name  string
		value string
		def   int64
		dst   *int64
	}{
		{"max_seeding_time", c.MaxSeedingTime, config.LimitDisabled, &g.MaxSeedingTime},
		{"min_seeding_time", c.MinSeedingTime, 0, &g.MinSeedingTime},
		{"max_last_active", c.MaxLastActive, config.LimitDisabled, &g.MaxLastActive},
		{"min_last_active", firstNonEmpty(c.MinLastActive, c.LastActive), 0, &g.MinLastActive},
	}
	for _, d := range durations {
		if *d.dst, err = config.ParseMinutes(d.value, d.def); err != nil {
			g.Err = fmt.Errorf("%s: %w", d.name, err)
			return g
		}
	}
	// Minimums have no sentinel meaning
	g.MinSeedingTime = max(g.MinSeedingTime, 0)
	g.MinLastActive = max(g.MinLastActive, 0)

	if c.Filter != "" {
		if compiler == nil {
			g.Err = fmt.Errorf("filter %q given but no compiler available", c.Filter)
			return g
		}
		if g.Filter, err = compiler.Compile(c.Filter); err != nil {
			g.Err = err
			return g
		}
	}

	return g
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
