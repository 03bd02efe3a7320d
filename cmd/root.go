package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/s0up4200/seedkeeper/config"
	"github.com/s0up4200/seedkeeper/qbittorrent"
)

var (
	cfgFile string
	cfg     *config.Config
	loader  *config.Loader
	logger  zerolog.Logger

	// Command flags
	dryRun bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "seedkeeper",
	Short: "Keep a qBittorrent instance tidy according to your rules",
	Long: `seedkeeper governs the lifecycle of torrents in qBittorrent. It groups
torrents by share limit rules, applies and enforces those limits, tags
torrents whose trackers report problems or whose content is no longer
hardlinked, and moves orphaned files into a holding area.

Every change can be previewed with --dry-run.`,
	SilenceUsage:      true,
	PersistentPreRunE: initializeApp,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "d", false, "perform a dry run without making changes")
}

// initializeApp loads the configuration and sets up logging
func initializeApp(cmd *cobra.Command, _ []string) error {
	loader = config.NewLoader(cfgFile)

	var err error
	cfg, err = loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger = setupLogger(cfg.Logging)
	log.Logger = logger

	applyFlagOverrides(cmd, cfg)
	return nil
}

// applyFlagOverrides lets command line flags win over the config file
func applyFlagOverrides(cmd *cobra.Command, c *config.Config) {
	if cmd.Flags().Changed("dry-run") {
		c.Settings.DryRun = dryRun
	}
}

// newClient connects to the qBittorrent instance of c
func newClient(ctx context.Context, c *config.Config) (*qbittorrent.Client, error) {
	qb := c.QBittorrent

	opts := []qbittorrent.Option{
		qbittorrent.WithTimeout(time.Duration(qb.Timeout) * time.Second),
		qbittorrent.WithMaxRetries(qb.MaxRetries),
	}
	if qb.BasicUser != "" {
		opts = append(opts, qbittorrent.WithBasicAuth(qb.BasicUser, qb.BasicPass))
	}
	if qb.TLSSkipVerify {
		opts = append(opts, qbittorrent.WithInsecureSkipVerify())
	}

	client, err := qbittorrent.NewClient(ctx, qb.URL, qb.Username, qb.Password, logger, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create qBittorrent client: %w", err)
	}
	return client, nil
}

// setupLogger configures the zerolog logger
func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	// Set log level
	level := zerolog.InfoLevel
	switch strings.ToLower(cfg.Level) {
	case "trace":
		level = zerolog.TraceLevel
	case "debug":
		level = zerolog.DebugLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	zerolog.SetGlobalLevel(level)

	var out io.Writer = os.Stderr
	if cfg.Format != "json" {
		out = zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
			NoColor:    !cfg.Color || !isTerminal(os.Stderr),
		}
	}

	// The log file always gets JSON lines
	if cfg.File != "" {
		file := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
		}
		out = zerolog.MultiLevelWriter(out, file)
	}

	return zerolog.New(out).With().Timestamp().Logger()
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
