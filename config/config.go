package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment variable overrides
const EnvPrefix = "SEEDKEEPER"

// Loader reads the configuration file and can watch it for changes
type Loader struct {
	v *viper.Viper
}

// NewLoader prepares a viper instance for the given path. An empty path
// searches the standard locations.
func NewLoader(configPath string) *Loader {
	v := viper.New()

	// Set default values
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")

		// Check current directory first
		v.AddConfigPath(".")

		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".seedkeeper"))
		}

		v.AddConfigPath("/etc/seedkeeper/")
	}

	return &Loader{v: v}
}

// Load loads the configuration from file
func Load(configPath string) (*Config, error) {
	return NewLoader(configPath).Load()
}

// Load reads, decodes and validates the configuration
func (l *Loader) Load() (*Config, error) {
	loadEnvFiles()

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("config file not found: %w", err)
		}
		return nil, fmt.Errorf("error reading config: %w", err)
	}

	return l.decode()
}

func (l *Loader) decode() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Validate configuration
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	cfg.settings = l.v.AllSettings()
	cfg.path = l.v.ConfigFileUsed()

	return &cfg, nil
}

// Watch reloads the configuration whenever the file changes. Invalid
// revisions are logged and skipped so the previous config stays active.
func (l *Loader) Watch(logger zerolog.Logger, onChange func(*Config)) {
	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}

		cfg, err := l.decode()
		if err != nil {
			logger.Error().Err(err).Str("file", e.Name).Msg("Ignoring config change")
			return
		}

		logger.Info().Str("file", e.Name).Msg("Configuration reloaded")
		onChange(cfg)
	})
	l.v.WatchConfig()
}

// loadEnvFiles loads .env files from the working directory when present
func loadEnvFiles() {
	for _, name := range []string{".env", ".env.local"} {
		if _, err := os.Stat(name); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		_ = godotenv.Load(name)
	}
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// qBittorrent defaults
	v.SetDefault("qbittorrent.url", "http://localhost:8080")
	v.SetDefault("qbittorrent.timeout", 30)
	v.SetDefault("qbittorrent.max_retries", 3)

	// Settings defaults
	v.SetDefault("settings.dry_run", true)
	v.SetDefault("settings.workers", 4)
	v.SetDefault("settings.share_limits_tag", "~share_limit")
	v.SetDefault("settings.share_limits_min_seeding_time_tag", "MinSeedTimeNotReached")
	v.SetDefault("settings.share_limits_min_num_seeds_tag", "MinSeedsNotMet")
	v.SetDefault("settings.share_limits_last_active_tag", "LastActiveLimitNotReached")
	v.SetDefault("settings.tracker_error_tag", "issue")
	v.SetDefault("settings.nohardlinks_tag", "noHL")
	v.SetDefault("settings.share_limits_filter_completed", true)
	v.SetDefault("settings.cat_filter_completed", true)

	// Recycle bin and orphan defaults
	v.SetDefault("recyclebin.enabled", true)
	v.SetDefault("orphaned.max_orphaned_files_to_delete", 50)
	v.SetDefault("orphaned.min_file_age", "0")

	// Server defaults
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 7474)
	v.SetDefault("server.schedule", "30m")

	// History defaults
	v.SetDefault("history.keep", 500)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.color", true)
	v.SetDefault("logging.max_size", 10)
	v.SetDefault("logging.max_backups", 3)
}

// validate checks if the configuration is valid
func validate(cfg *Config) error {
	if cfg.QBittorrent.URL == "" {
		return fmt.Errorf("qbittorrent.url is required")
	}

	if cfg.Settings.Workers <= 0 {
		return fmt.Errorf("settings.workers must be positive, got %d", cfg.Settings.Workers)
	}

	// remote_dir defaults to root_dir when both sides see the same paths
	if cfg.Directory.RemoteDir == "" {
		cfg.Directory.RemoteDir = cfg.Directory.RootDir
	}
	if cfg.Directory.RootDir != "" {
		if cfg.Directory.RecycleBin == "" {
			cfg.Directory.RecycleBin = filepath.Join(cfg.Directory.RemoteDir, ".RecycleBin")
		}
		if cfg.Directory.OrphanedDir == "" {
			cfg.Directory.OrphanedDir = filepath.Join(cfg.Directory.RemoteDir, "orphaned_data")
		}
	}

	for _, name := range cfg.Commands {
		if !IsKnownCommand(name) {
			return fmt.Errorf("unknown command in commands: %s", name)
		}
	}

	if _, err := ParseMinutes(cfg.Orphaned.MinFileAge, 0); err != nil {
		return fmt.Errorf("invalid orphaned.min_file_age: %w", err)
	}
	if days := cfg.RecycleBin.EmptyAfterDays; days != nil && *days < 0 {
		return fmt.Errorf("recyclebin.empty_after_x_days must not be negative")
	}
	if days := cfg.Orphaned.EmptyAfterDays; days != nil && *days < 0 {
		return fmt.Errorf("orphaned.empty_after_x_days must not be negative")
	}

	seen := make(map[string]bool, len(cfg.ShareLimits))
	for i, group := range cfg.ShareLimits {
		if group.Name == "" {
			return fmt.Errorf("share_limits[%d]: name is required", i)
		}
		if seen[group.Name] {
			return fmt.Errorf("share_limits: duplicate group name %q", group.Name)
		}
		seen[group.Name] = true
	}

	if cfg.History.Keep < 0 {
		return fmt.Errorf("history.keep must not be negative")
	}

	// Validate logging level
	validLevels := map[string]bool{
		"trace": true,
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[cfg.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s", cfg.Logging.Level)
	}

	// Validate logging format
	validFormats := map[string]bool{
		"console": true,
		"json":    true,
	}
	if !validFormats[cfg.Logging.Format] {
		return fmt.Errorf("invalid logging format: %s", cfg.Logging.Format)
	}

	return nil
}
