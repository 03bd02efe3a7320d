package config

// Config represents the complete configuration structure
type Config struct {
	QBittorrent    QBittorrentConfig            `mapstructure:"qbittorrent"`
	Directory      DirectoryConfig              `mapstructure:"directory"`
	Settings       SettingsConfig               `mapstructure:"settings"`
	Commands       []string                     `mapstructure:"commands"`
	Categories     map[string]string            `mapstructure:"cat"`
	CategoryChange map[string]string            `mapstructure:"cat_change"`
	Trackers       map[string]TrackerConfig     `mapstructure:"tracker"`
	NoHardlinks    map[string]NoHardlinksConfig `mapstructure:"nohardlinks"`
	ShareLimits    []ShareLimitGroupConfig      `mapstructure:"share_limits"`
	RecycleBin     RecycleBinConfig             `mapstructure:"recyclebin"`
	Orphaned       OrphanedConfig               `mapstructure:"orphaned"`
	Server         ServerConfig                 `mapstructure:"server"`
	History        HistoryConfig                `mapstructure:"history"`
	Logging        LoggingConfig                `mapstructure:"logging"`

	settings map[string]any
	path     string
}

// Path returns the config file the configuration was read from
func (c *Config) Path() string {
	return c.path
}

// QBittorrentConfig holds qBittorrent WebUI connection details
type QBittorrentConfig struct {
	URL           string `mapstructure:"url"`
	Username      string `mapstructure:"username"`
	Password      string `mapstructure:"password"`
	BasicUser     string `mapstructure:"basic_user"`
	BasicPass     string `mapstructure:"basic_pass"`
	TLSSkipVerify bool   `mapstructure:"tls_skip_verify"`
	Timeout       int    `mapstructure:"timeout"`
	MaxRetries    int    `mapstructure:"max_retries"`
}

// DirectoryConfig holds the filesystem roots the engine works on.
// RootDir is the path as the torrent client sees it, RemoteDir the same
// location as seen by this process.
type DirectoryConfig struct {
	RootDir     string `mapstructure:"root_dir"`
	RemoteDir   string `mapstructure:"remote_dir"`
	RecycleBin  string `mapstructure:"recycle_bin"`
	OrphanedDir string `mapstructure:"orphaned_dir"`
	TorrentsDir string `mapstructure:"torrents_dir"`
	LockDir     string `mapstructure:"lock_dir"`
}

// SettingsConfig contains global behaviour switches and tag names
type SettingsConfig struct {
	DryRun                     bool   `mapstructure:"dry_run"`
	Workers                    int    `mapstructure:"workers"`
	ShareLimitsTag             string `mapstructure:"share_limits_tag"`
	MinSeedingTimeTag          string `mapstructure:"share_limits_min_seeding_time_tag"`
	MinNumSeedsTag             string `mapstructure:"share_limits_min_num_seeds_tag"`
	LastActiveTag              string `mapstructure:"share_limits_last_active_tag"`
	TrackerErrorTag            string `mapstructure:"tracker_error_tag"`
	NoHardlinksTag             string `mapstructure:"nohardlinks_tag"`
	ShareLimitsFilterCompleted bool   `mapstructure:"share_limits_filter_completed"`
	CatFilterCompleted         bool   `mapstructure:"cat_filter_completed"`
	SkipCleanup                bool   `mapstructure:"skip_cleanup"`
}

// TrackerConfig maps a tracker URL keyword to tags and an optional category
type TrackerConfig struct {
	Tags     []string `mapstructure:"tag"`
	Category string   `mapstructure:"cat"`
}

// NoHardlinksConfig contains per-category hardlink check settings
type NoHardlinksConfig struct {
	ExcludeTags   []string `mapstructure:"exclude_tags"`
	IgnoreRootDir bool     `mapstructure:"ignore_root_dir"`
}

// ShareLimitGroupConfig is one share limit group as written in the config
// file. Groups are declared as a list so declaration order survives decoding.
type ShareLimitGroupConfig struct {
	Name                      string   `mapstructure:"name"`
	Priority                  *int     `mapstructure:"priority"`
	IncludeAllTags            []string `mapstructure:"include_all_tags"`
	IncludeAnyTags            []string `mapstructure:"include_any_tags"`
	ExcludeAllTags            []string `mapstructure:"exclude_all_tags"`
	ExcludeAnyTags            []string `mapstructure:"exclude_any_tags"`
	Categories                []string `mapstructure:"categories"`
	MinTorrentSize            string   `mapstructure:"min_torrent_size"`
	MaxTorrentSize            string   `mapstructure:"max_torrent_size"`
	Filter                    string   `mapstructure:"filter"`
	CustomTag                 string   `mapstructure:"custom_tag"`
	Cleanup                   bool     `mapstructure:"cleanup"`
	DeleteFiles               *bool    `mapstructure:"delete_files"`
	MaxRatio                  *float64 `mapstructure:"max_ratio"`
	MaxSeedingTime            string   `mapstructure:"max_seeding_time"`
	MinSeedingTime            string   `mapstructure:"min_seeding_time"`
	MaxLastActive             string   `mapstructure:"max_last_active"`
	MinLastActive             string   `mapstructure:"min_last_active"`
	LastActive                string   `mapstructure:"last_active"`
	MinNumSeeds               int      `mapstructure:"min_num_seeds"`
	LimitUploadSpeed          int64    `mapstructure:"limit_upload_speed"`
	UploadSpeedOnLimitReached int64    `mapstructure:"upload_speed_on_limit_reached"`
	ResumeTorrentAfterChange  *bool    `mapstructure:"resume_torrent_after_change"`
	AddGroupToTag             *bool    `mapstructure:"add_group_to_tag"`
	EnableGroupUploadSpeed    bool     `mapstructure:"enable_group_upload_speed"`
	ResetUploadSpeedOnUnmet   *bool    `mapstructure:"reset_upload_speed_on_unmet_minimums"`
}

// RecycleBinConfig contains recycle bin settings
type RecycleBinConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	EmptyAfterDays  *int `mapstructure:"empty_after_x_days"`
	SaveTorrents    bool `mapstructure:"save_torrents"`
	SplitByCategory bool `mapstructure:"split_by_category"`
}

// OrphanedConfig contains orphaned file scan settings
type OrphanedConfig struct {
	EmptyAfterDays   *int     `mapstructure:"empty_after_x_days"`
	ExcludePatterns  []string `mapstructure:"exclude_patterns"`
	MaxFilesToDelete int      `mapstructure:"max_orphaned_files_to_delete"`
	MinFileAge       string   `mapstructure:"min_file_age"`
}

// ServerConfig contains settings for the long-running serve mode
type ServerConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Schedule string `mapstructure:"schedule"`
	Metrics  bool   `mapstructure:"metrics"`
}

// HistoryConfig controls where pass summaries are persisted
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	// Keep is how many passes are retained. Zero keeps all of them.
	Keep int `mapstructure:"keep"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Color      bool   `mapstructure:"color"`
	File       string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}
