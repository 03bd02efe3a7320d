package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func validConfig() *Config {
	return &Config{
		QBittorrent: QBittorrentConfig{URL: "http://localhost:8080"},
		Settings:    SettingsConfig{Workers: 4},
		Logging:     LoggingConfig{Level: "info", Format: "console"},
		Orphaned:    OrphanedConfig{MinFileAge: "0"},
	}
}

func TestValidate(t *testing.T) {
	negative := -1

	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(cfg *Config) {},
		},
		{
			name:    "missing url",
			mutate:  func(cfg *Config) { cfg.QBittorrent.URL = "" },
			wantErr: "qbittorrent.url is required",
		},
		{
			name:    "zero workers",
			mutate:  func(cfg *Config) { cfg.Settings.Workers = 0 },
			wantErr: "settings.workers must be positive",
		},
		{
			name:    "unknown command",
			mutate:  func(cfg *Config) { cfg.Commands = []string{"share_limits", "defrag"} },
			wantErr: "unknown command in commands: defrag",
		},
		{
			name:   "hyphenated command",
			mutate: func(cfg *Config) { cfg.Commands = []string{"apply-share-limits", "remove-orphaned"} },
		},
		{
			name:    "bad min file age",
			mutate:  func(cfg *Config) { cfg.Orphaned.MinFileAge = "soon" },
			wantErr: "invalid orphaned.min_file_age",
		},
		{
			name:    "negative retention",
			mutate:  func(cfg *Config) { cfg.RecycleBin.EmptyAfterDays = &negative },
			wantErr: "recyclebin.empty_after_x_days must not be negative",
		},
		{
			name: "duplicate group",
			mutate: func(cfg *Config) {
				cfg.ShareLimits = []ShareLimitGroupConfig{{Name: "a"}, {Name: "a"}}
			},
			wantErr: `duplicate group name "a"`,
		},
		{
			name: "unnamed group",
			mutate: func(cfg *Config) {
				cfg.ShareLimits = []ShareLimitGroupConfig{{}}
			},
			wantErr: "share_limits[0]: name is required",
		},
		{
			name:    "invalid log level",
			mutate:  func(cfg *Config) { cfg.Logging.Level = "verbose" },
			wantErr: "invalid logging level: verbose",
		},
		{
			name:    "invalid log format",
			mutate:  func(cfg *Config) { cfg.Logging.Format = "xml" },
			wantErr: "invalid logging format: xml",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := validate(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateDirectoryDefaults(t *testing.T) {
	cfg := validConfig()
	cfg.Directory.RootDir = "/data/torrents"

	require.NoError(t, validate(cfg))
	assert.Equal(t, "/data/torrents", cfg.Directory.RemoteDir)
	assert.Equal(t, filepath.Join("/data/torrents", ".RecycleBin"), cfg.Directory.RecycleBin)
	assert.Equal(t, filepath.Join("/data/torrents", "orphaned_data"), cfg.Directory.OrphanedDir)

	cfg = validConfig()
	cfg.Directory.RootDir = "/downloads"
	cfg.Directory.RemoteDir = "/mnt/downloads"
	cfg.Directory.RecycleBin = "/mnt/bin"

	require.NoError(t, validate(cfg))
	assert.Equal(t, "/mnt/bin", cfg.Directory.RecycleBin)
	assert.Equal(t, filepath.Join("/mnt/downloads", "orphaned_data"), cfg.Directory.OrphanedDir)
}

func TestParseMinutes(t *testing.T) {
	tests := []struct {
		in      string
		def     int64
		want    int64
		wantErr bool
	}{
		{in: "", def: -1, want: -1},
		{in: "90", want: 90},
		{in: "-1", want: -1},
		{in: "-2", want: -2},
		{in: "-5", wantErr: true},
		{in: "30m", want: 30},
		{in: "12h", want: 720},
		{in: "1d", want: 1440},
		{in: "1d12h", want: 2160},
		{in: "2w", want: 20160},
		{in: "1 day 2 hours", want: 1560},
		{in: "1.5h", want: 90},
		{in: "3 months", wantErr: true},
		{in: "abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMinutes(tt.in, tt.def)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseSize(t *testing.T) {
	got, err := ParseSize("10GiB")
	require.NoError(t, err)
	assert.Equal(t, int64(10*1024*1024*1024), got)

	got, err = ParseSize("500 MB")
	require.NoError(t, err)
	assert.Equal(t, int64(500*1000*1000), got)

	got, err = ParseSize("")
	require.NoError(t, err)
	assert.Zero(t, got)

	_, err = ParseSize("big")
	assert.Error(t, err)
}

func TestParseCommand(t *testing.T) {
	cmd, ok := ParseCommand("apply-share-limits")
	assert.True(t, ok)
	assert.Equal(t, CommandShareLimits, cmd)

	cmd, ok = ParseCommand(" REM_ORPHANED ")
	assert.True(t, ok)
	assert.Equal(t, CommandRemoveOrphaned, cmd)

	cmd, ok = ParseCommand("skip_cleanup")
	assert.True(t, ok)
	assert.Equal(t, CommandSkipCleanup, cmd)

	_, ok = ParseCommand("delete_everything")
	assert.False(t, ok)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
qbittorrent:
  url: http://qbt:8080
  password: hunter2
directory:
  root_dir: /data/torrents
commands:
  - share_limits
share_limits:
  - name: noHL
    priority: 1
    include_all_tags: [noHL]
    max_ratio: 2
    cleanup: true
  - name: default
    max_seeding_time: 30d
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, path, cfg.Path())
	assert.Equal(t, "http://qbt:8080", cfg.QBittorrent.URL)
	assert.True(t, cfg.Settings.DryRun)
	assert.Equal(t, 4, cfg.Settings.Workers)
	assert.Equal(t, "~share_limit", cfg.Settings.ShareLimitsTag)
	require.Len(t, cfg.ShareLimits, 2)
	assert.Equal(t, "noHL", cfg.ShareLimits[0].Name)
	require.NotNil(t, cfg.ShareLimits[0].Priority)
	assert.Equal(t, 1, *cfg.ShareLimits[0].Priority)
	require.NotNil(t, cfg.ShareLimits[0].MaxRatio)
	assert.Equal(t, 2.0, *cfg.ShareLimits[0].MaxRatio)
	assert.Nil(t, cfg.ShareLimits[1].Priority)
	assert.Equal(t, "30d", cfg.ShareLimits[1].MaxSeedingTime)

	out, err := cfg.Dump("yaml")
	require.NoError(t, err)
	var dumped map[string]any
	require.NoError(t, yaml.Unmarshal(out, &dumped))
	qbt := dumped["qbittorrent"].(map[string]any)
	assert.Equal(t, "********", qbt["password"])

	_, err = cfg.Dump("toml")
	assert.NoError(t, err)

	_, err = cfg.Dump("ini")
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
