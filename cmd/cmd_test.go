package cmd

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s0up4200/seedkeeper/config"
)

func TestScheduleInterval(t *testing.T) {
	tests := []struct {
		schedule string
		want     time.Duration
		wantErr  bool
	}{
		{"30m", 30 * time.Minute, false},
		{"1d", 24 * time.Hour, false},
		{"90", 90 * time.Minute, false},
		{"", 0, false},
		{"0", 0, false},
		{"soon", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.schedule, func(t *testing.T) {
			c := &config.Config{Server: config.ServerConfig{Schedule: tt.schedule}}
			got, err := scheduleInterval(c)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHistoryPath(t *testing.T) {
	c := &config.Config{History: config.HistoryConfig{Path: "/var/lib/seedkeeper/passes.db"}}
	assert.Equal(t, "/var/lib/seedkeeper/passes.db", historyPath(c))

	c = &config.Config{}
	assert.Equal(t, filepath.Join(".", "seedkeeper.db"), historyPath(c))
}

func TestRenderTable(t *testing.T) {
	out := renderTable(
		[]string{"ACTION", "COUNT"},
		[][]string{{"tagged", "3"}, {"short"}},
		[]columnAlignment{alignLeft, alignRight},
	)
	assert.Contains(t, out, "ACTION")
	assert.Contains(t, out, "tagged")
	assert.Equal(t, 1, strings.Count(out, "short"))

	assert.Empty(t, renderTable(nil, nil, nil))
}

func TestFormatHelpers(t *testing.T) {
	assert.Equal(t, "2d 3h", formatSeedingTime(51*time.Hour))
	assert.Equal(t, "5h 30m", formatSeedingTime(330*time.Minute))

	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}
