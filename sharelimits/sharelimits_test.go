package sharelimits

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s0up4200/seedkeeper/config"
	"github.com/s0up4200/seedkeeper/filter"
	"github.com/s0up4200/seedkeeper/qbittorrent"
)

var testTags = TagNames{
	ShareLimits:    "~share_limit",
	MinSeedingTime: "MinSeedTimeNotReached",
	MinNumSeeds:    "MinSeedsNotMet",
	LastActive:     "LastActiveLimitNotReached",
}

func intPtr(i int) *int { return &i }
func floatPtr(f float64) *float64 { return &f }
func boolPtr(b bool) *bool { return &b }

func buildGroups(t *testing.T, cfgs ...config.ShareLimitGroupConfig) []*Group {
	t.Helper()
	groups, warnings := BuildGroups(cfgs, filter.NewExprCompiler())
	require.Empty(t, warnings)
	return groups
}

func TestBuildGroupsPriority(t *testing.T) {
	groups, warnings := BuildGroups([]config.ShareLimitGroupConfig{
		{Name: "noprio1"},
		{Name: "high", Priority: intPtr(1)},
		{Name: "mid", Priority: intPtr(5)},
		{Name: "dupe", Priority: intPtr(5)},
		{Name: "noprio2"},
	}, nil)

	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0].Error(), `"mid" takes precedence`)

	names := make([]string, 0, len(groups))
	prios := make([]int, 0, len(groups))
	for _, g := range groups {
		names = append(names, g.Name)
		prios = append(prios, g.Priority)
	}
	assert.Equal(t, []string{"high", "mid", "dupe", "noprio1", "noprio2"}, names)
	assert.Equal(t, []int{1, 5, 5, 6, 7}, prios)
}

func TestBuildGroupsDefaults(t *testing.T) {
	groups := buildGroups(t, config.ShareLimitGroupConfig{Name: "default"})
	g := groups[0]

	assert.Equal(t, 1, g.Priority)
	assert.Equal(t, float64(config.LimitDisabled), g.MaxRatio)
	assert.Equal(t, int64(config.LimitDisabled), g.MaxSeedingTime)
	assert.Equal(t, int64(config.LimitDisabled), g.MaxLastActive)
	assert.Zero(t, g.MinSeedingTime)
	assert.True(t, g.DeleteFiles)
	assert.True(t, g.AddGroupToTag)
	assert.True(t, g.ResumeTorrentAfterChange)
	assert.True(t, g.ResetUploadSpeedOnUnmet)
	assert.Equal(t, "~share_limit_1.default", g.Tag(testTags.ShareLimits))
}

func TestBuildGroupsInvalid(t *testing.T) {
	groups, warnings := BuildGroups([]config.ShareLimitGroupConfig{
		{Name: "badsize", MinTorrentSize: "lots"},
		{Name: "badexpr", Filter: `Ratio >`},
		{Name: "badratio", MaxRatio: floatPtr(-3)},
		{Name: "legacy", LastActive: "2h"},
	}, filter.NewExprCompiler())

	require.Len(t, warnings, 3)
	byName := make(map[string]*Group)
	for _, g := range groups {
		byName[g.Name] = g
	}
	assert.Error(t, byName["badsize"].Err)
	assert.Error(t, byName["badexpr"].Err)
	assert.Error(t, byName["badratio"].Err)
	assert.NoError(t, byName["legacy"].Err)
	assert.Equal(t, int64(120), byName["legacy"].MinLastActive)

	ok, err := byName["badsize"].Matches(&qbittorrent.TorrentInfo{})
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestResolve(t *testing.T) {
	groups := buildGroups(t,
		config.ShareLimitGroupConfig{Name: "noHL", Priority: intPtr(1), IncludeAllTags: []string{"noHL"}, ExcludeAnyTags: []string{"keep"}},
		config.ShareLimitGroupConfig{Name: "tv", Priority: intPtr(2), Categories: []string{"tv"}},
		config.ShareLimitGroupConfig{Name: "tvtoo", Priority: intPtr(2), Categories: []string{"tv"}},
		config.ShareLimitGroupConfig{Name: "big", Priority: intPtr(3), MinTorrentSize: "10GB"},
		config.ShareLimitGroupConfig{Name: "bothtags", Priority: intPtr(4), IncludeAnyTags: []string{"a", "b"}, ExcludeAllTags: []string{"a", "b"}},
		config.ShareLimitGroupConfig{Name: "expr", Priority: intPtr(5), Filter: `Ratio > 5`},
	)

	tests := []struct {
		name    string
		torrent *qbittorrent.TorrentInfo
		want    string
	}{
		{"tag match", &qbittorrent.TorrentInfo{Tags: []string{"noHL"}, Category: "tv"}, "noHL"},
		{"excluded tag falls through", &qbittorrent.TorrentInfo{Tags: []string{"noHL", "keep"}, Category: "tv"}, "tv"},
		{"size range", &qbittorrent.TorrentInfo{Size: 20e9}, "big"},
		{"too small", &qbittorrent.TorrentInfo{Size: 1e9}, ""},
		{"include any", &qbittorrent.TorrentInfo{Tags: []string{"b"}}, "bothtags"},
		{"exclude all", &qbittorrent.TorrentInfo{Tags: []string{"a", "b"}}, ""},
		{"expression", &qbittorrent.TorrentInfo{Ratio: 6}, "expr"},
		{"nothing", &qbittorrent.TorrentInfo{Category: "movies"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, ok := Resolve(tt.torrent, groups)
			if tt.want == "" {
				assert.False(t, ok)
				assert.Nil(t, g)
				return
			}
			require.True(t, ok)
			assert.Equal(t, tt.want, g.Name)
		})
	}
}

func TestAssign(t *testing.T) {
	groups := buildGroups(t,
		config.ShareLimitGroupConfig{Name: "tv", Categories: []string{"tv"}},
		config.ShareLimitGroupConfig{Name: "rest"},
	)
	torrents := []*qbittorrent.TorrentInfo{
		{Hash: "a", Category: "tv"},
		{Hash: "b", Category: "movies"},
		{Hash: "c", Category: "tv"},
	}

	a, errs := Assign(torrents, groups)
	require.Empty(t, errs)
	assert.Equal(t, "tv", a.Group("a").Name)
	assert.Equal(t, "rest", a.Group("b").Name)
	assert.Equal(t, 2, a.Size("tv"))
	assert.Equal(t, 1, a.Size("rest"))
	assert.Nil(t, a.Group("missing"))
}

func TestEvaluateGroupExample(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	groups := buildGroups(t, config.ShareLimitGroupConfig{
		Name:           "A",
		Priority:       intPtr(1),
		IncludeAnyTags: []string{"x"},
		MaxRatio:       floatPtr(2),
		Cleanup:        true,
		MinSeedingTime: "1d",
	})
	e := NewEvaluator(testTags, groups)

	ripe := &qbittorrent.TorrentInfo{
		Hash:        "a",
		Tags:        []string{"x"},
		Ratio:       3,
		SeedingTime: 48 * time.Hour,
		Progress:    1,
	}
	g, ok := Resolve(ripe, groups)
	require.True(t, ok)

	d := e.Evaluate(ripe, g, Inputs{Now: now, GroupSize: 1})
	assert.Equal(t, DeleteWithContents, d.Kind)
	assert.True(t, d.Kind.IsDelete())

	young := *ripe
	young.SeedingTime = 12 * time.Hour
	young.State = "stoppedUP"
	young.RatioLimit = 2
	young.SeedingTimeLimit = -1
	young.InactiveSeedingTimeLimit = -2

	d = e.Evaluate(&young, g, Inputs{Now: now, GroupSize: 1})
	assert.Equal(t, HoldUnmetMinimum, d.Kind)
	assert.Equal(t, clearedLimits.Ratio, d.Limits.Ratio)
	assert.Equal(t, int64(-1), d.Limits.InactiveMinutes)
	assert.True(t, d.SetLimits)
	assert.True(t, d.Resume)
	assert.Contains(t, d.AddTags, testTags.MinSeedingTime)
	assert.Contains(t, d.AddTags, "~share_limit_1.A")
	assert.Len(t, d.Unmet, 1)
}

func TestEvaluateDecisions(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		group     config.ShareLimitGroupConfig
		torrent   qbittorrent.TorrentInfo
		groupSize int
		want      Kind
		check     func(t *testing.T, d Decision)
	}{
		{
			name:    "apply limits when not ripe",
			group:   config.ShareLimitGroupConfig{Name: "g", MaxRatio: floatPtr(2), MaxSeedingTime: "2w", LimitUploadSpeed: 500},
			torrent: qbittorrent.TorrentInfo{Ratio: 1, RatioLimit: -2, SeedingTimeLimit: -2, InactiveSeedingTimeLimit: -2},
			want:    ApplyLimits,
			check: func(t *testing.T, d Decision) {
				assert.Equal(t, Limits{Ratio: 2, SeedingMinutes: 20160, InactiveMinutes: -2, UploadLimit: 500 * 1024}, d.Limits)
				assert.True(t, d.SetLimits)
				assert.True(t, d.SetUpload)
				assert.Equal(t, []string{"~share_limit_1.g"}, d.AddTags)
			},
		},
		{
			name:  "already conforming is no action",
			group: config.ShareLimitGroupConfig{Name: "g", MaxRatio: floatPtr(2)},
			torrent: qbittorrent.TorrentInfo{
				Tags:                     []string{"~share_limit_1.g"},
				RatioLimit:               2.001,
				SeedingTimeLimit:         -1,
				InactiveSeedingTimeLimit: -2,
			},
			want: NoAction,
			check: func(t *testing.T, d Decision) {
				assert.False(t, d.HasMutations())
			},
		},
		{
			name:    "cleanup disabled never deletes",
			group:   config.ShareLimitGroupConfig{Name: "g", MaxRatio: floatPtr(1)},
			torrent: qbittorrent.TorrentInfo{Ratio: 10},
			want:    ApplyLimits,
		},
		{
			name:    "delete keeps files when configured",
			group:   config.ShareLimitGroupConfig{Name: "g", MaxSeedingTime: "1h", Cleanup: true, DeleteFiles: boolPtr(false)},
			torrent: qbittorrent.TorrentInfo{SeedingTime: 2 * time.Hour},
			want:    Delete,
		},
		{
			name:    "inactive torrent is ripe",
			group:   config.ShareLimitGroupConfig{Name: "g", MaxLastActive: "1d", Cleanup: true},
			torrent: qbittorrent.TorrentInfo{LastActivity: now.Add(-48 * time.Hour)},
			want:    DeleteWithContents,
		},
		{
			name:    "global sentinel is never ripe",
			group:   config.ShareLimitGroupConfig{Name: "g", MaxRatio: floatPtr(-2), Cleanup: true},
			torrent: qbittorrent.TorrentInfo{Ratio: 100},
			want:    ApplyLimits,
		},
		{
			name:    "throttle instead of delete",
			group:   config.ShareLimitGroupConfig{Name: "g", MaxRatio: floatPtr(1), Cleanup: true, UploadSpeedOnLimitReached: 100},
			torrent: qbittorrent.TorrentInfo{Ratio: 2, RatioLimit: 1, SeedingTimeLimit: -2, InactiveSeedingTimeLimit: -2},
			want:    Throttle,
			check: func(t *testing.T, d Decision) {
				assert.Equal(t, int64(100*1024), d.Limits.UploadLimit)
				assert.True(t, d.SetLimits)
				assert.True(t, d.SetUpload)
			},
		},
		{
			name:    "throttle resumes a torrent paused at the old limit",
			group:   config.ShareLimitGroupConfig{Name: "g", MaxRatio: floatPtr(1), Cleanup: true, UploadSpeedOnLimitReached: 100},
			torrent: qbittorrent.TorrentInfo{State: "pausedUP", Progress: 1, Ratio: 1.2, RatioLimit: 1, SeedingTimeLimit: -2, InactiveSeedingTimeLimit: -2},
			want:    Throttle,
			check: func(t *testing.T, d Decision) {
				assert.True(t, d.SetLimits)
				assert.True(t, d.SetUpload)
				assert.True(t, d.Resume)
			},
		},
		{
			name:    "throttle leaves paused torrent when resume is off",
			group:   config.ShareLimitGroupConfig{Name: "g", MaxRatio: floatPtr(1), Cleanup: true, UploadSpeedOnLimitReached: 100, ResumeTorrentAfterChange: boolPtr(false)},
			torrent: qbittorrent.TorrentInfo{State: "pausedUP", Progress: 1, Ratio: 1.2},
			want:    Throttle,
			check: func(t *testing.T, d Decision) {
				assert.False(t, d.Resume)
			},
		},
		{
			name:    "min seeds unmet holds",
			group:   config.ShareLimitGroupConfig{Name: "g", MaxRatio: floatPtr(1), Cleanup: true, MinNumSeeds: 5, LimitUploadSpeed: 100, ResetUploadSpeedOnUnmet: boolPtr(false)},
			torrent: qbittorrent.TorrentInfo{Ratio: 2, NumComplete: 2},
			want:    HoldUnmetMinimum,
			check: func(t *testing.T, d Decision) {
				assert.Contains(t, d.AddTags, testTags.MinNumSeeds)
				assert.Equal(t, int64(100*1024), d.Limits.UploadLimit)
				assert.False(t, d.Resume)
			},
		},
		{
			name:    "recent activity holds",
			group:   config.ShareLimitGroupConfig{Name: "g", MaxRatio: floatPtr(1), Cleanup: true, MinLastActive: "1h"},
			torrent: qbittorrent.TorrentInfo{Ratio: 2, LastActivity: now.Add(-10 * time.Minute)},
			want:    HoldUnmetMinimum,
			check: func(t *testing.T, d Decision) {
				assert.Contains(t, d.AddTags, testTags.LastActive)
			},
		},
		{
			name:    "met minimum drops its tag",
			group:   config.ShareLimitGroupConfig{Name: "g", MaxRatio: floatPtr(5), Cleanup: true, MinSeedingTime: "1h"},
			torrent: qbittorrent.TorrentInfo{Ratio: 1, SeedingTime: 3 * time.Hour, Tags: []string{testTags.MinSeedingTime}},
			want:    ApplyLimits,
			check: func(t *testing.T, d Decision) {
				assert.Contains(t, d.RemoveTags, testTags.MinSeedingTime)
			},
		},
		{
			name:      "group upload split",
			group:     config.ShareLimitGroupConfig{Name: "g", LimitUploadSpeed: 1000, EnableGroupUploadSpeed: true},
			torrent:   qbittorrent.TorrentInfo{},
			groupSize: 3,
			want:      ApplyLimits,
			check: func(t *testing.T, d Decision) {
				assert.Equal(t, int64(333*1024), d.Limits.UploadLimit)
			},
		},
		{
			name:    "stale group tag replaced",
			group:   config.ShareLimitGroupConfig{Name: "g"},
			torrent: qbittorrent.TorrentInfo{Tags: []string{"~share_limit_4.old", "other"}, RatioLimit: -1, SeedingTimeLimit: -1, InactiveSeedingTimeLimit: -2},
			want:    ApplyLimits,
			check: func(t *testing.T, d Decision) {
				assert.Equal(t, []string{"~share_limit_4.old"}, d.RemoveTags)
				assert.False(t, d.SetLimits)
			},
		},
		{
			name:    "paused torrent resumed after limit change",
			group:   config.ShareLimitGroupConfig{Name: "g", MaxRatio: floatPtr(4)},
			torrent: qbittorrent.TorrentInfo{State: "pausedUP", Progress: 1, Ratio: 2, RatioLimit: 2},
			want:    ApplyLimits,
			check: func(t *testing.T, d Decision) {
				assert.True(t, d.Resume)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			groups := buildGroups(t, tt.group)
			e := NewEvaluator(testTags, groups)

			d := e.Evaluate(&tt.torrent, groups[0], Inputs{Now: now, GroupSize: tt.groupSize})
			assert.Equal(t, tt.want, d.Kind, "reason: %s", d.Reason)
			if tt.check != nil {
				tt.check(t, d)
			}
		})
	}
}

func TestEvaluateRipenessMonotonic(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// rank orders decisions by how far along the cleanup path they are
	rank := func(k Kind) int {
		switch k {
		case Delete, DeleteWithContents, Throttle:
			return 2
		case HoldUnmetMinimum:
			return 1
		default:
			return 0
		}
	}

	tests := []struct {
		name  string
		group config.ShareLimitGroupConfig
		step  func(t *qbittorrent.TorrentInfo, i int)
	}{
		{
			name:  "ratio",
			group: config.ShareLimitGroupConfig{Name: "g", MaxRatio: floatPtr(2), Cleanup: true},
			step:  func(t *qbittorrent.TorrentInfo, i int) { t.Ratio = float64(i) * 0.25 },
		},
		{
			name:  "seeding time",
			group: config.ShareLimitGroupConfig{Name: "g", MaxSeedingTime: "1d", Cleanup: true},
			step:  func(t *qbittorrent.TorrentInfo, i int) { t.SeedingTime = time.Duration(i) * 2 * time.Hour },
		},
		{
			name:  "inactivity",
			group: config.ShareLimitGroupConfig{Name: "g", MaxLastActive: "1d", Cleanup: true},
			step:  func(t *qbittorrent.TorrentInfo, i int) { t.LastActivity = now.Add(-time.Duration(i) * 2 * time.Hour) },
		},
		{
			name:  "ratio with min seeding time",
			group: config.ShareLimitGroupConfig{Name: "g", MaxRatio: floatPtr(2), Cleanup: true, MinSeedingTime: "1d"},
			step: func(t *qbittorrent.TorrentInfo, i int) {
				t.Ratio = float64(i) * 0.25
				t.SeedingTime = time.Duration(i) * time.Hour
			},
		},
		{
			name:  "throttled group",
			group: config.ShareLimitGroupConfig{Name: "g", MaxRatio: floatPtr(2), Cleanup: true, UploadSpeedOnLimitReached: 50},
			step:  func(t *qbittorrent.TorrentInfo, i int) { t.Ratio = float64(i) * 0.25 },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			groups := buildGroups(t, tt.group)
			e := NewEvaluator(testTags, groups)

			best := 0
			for i := range 40 {
				torrent := &qbittorrent.TorrentInfo{Progress: 1, LastActivity: now}
				tt.step(torrent, i)

				d := e.Evaluate(torrent, groups[0], Inputs{Now: now, GroupSize: 1})
				got := rank(d.Kind)
				require.GreaterOrEqual(t, got, best, "step %d regressed to %s (%s)", i, d.Kind, d.Reason)
				best = got
			}
			assert.Equal(t, 2, best, "sweep never reached the limit")
		})
	}
}

func TestEvaluateUngrouped(t *testing.T) {
	groups := buildGroups(t, config.ShareLimitGroupConfig{Name: "custom", CustomTag: "seeding-forever"})
	e := NewEvaluator(testTags, groups)

	d := e.Evaluate(&qbittorrent.TorrentInfo{
		Tags: []string{"~share_limit_1.gone", "seeding-forever", "keep"},
	}, nil, Inputs{Now: time.Now()})

	assert.Equal(t, NoAction, d.Kind)
	assert.Equal(t, []string{"~share_limit_1.gone"}, d.RemoveTags)
}

func TestEvaluateIdempotent(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	groups := buildGroups(t, config.ShareLimitGroupConfig{
		Name:             "g",
		MaxRatio:         floatPtr(3),
		MaxSeedingTime:   "30d",
		LimitUploadSpeed: 200,
	})
	e := NewEvaluator(testTags, groups)
	torrent := &qbittorrent.TorrentInfo{Ratio: 1, Tags: []string{"~share_limit_9.old"}}

	first := e.Evaluate(torrent, groups[0], Inputs{Now: now})
	require.Equal(t, ApplyLimits, first.Kind)

	// Apply the decision the way the engine does
	torrent.RatioLimit = first.Limits.Ratio
	torrent.SeedingTimeLimit = first.Limits.SeedingMinutes
	torrent.InactiveSeedingTimeLimit = first.Limits.InactiveMinutes
	torrent.UpLimit = first.Limits.UploadLimit
	torrent.Tags = []string{"~share_limit_1.g"}

	second := e.Evaluate(torrent, groups[0], Inputs{Now: now})
	assert.Equal(t, NoAction, second.Kind)
	assert.False(t, second.HasMutations())
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "hold_unmet_minimum", HoldUnmetMinimum.String())
	assert.Equal(t, "delete_with_contents", DeleteWithContents.String())
	assert.False(t, Throttle.IsDelete())
}
