package cmd

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/s0up4200/seedkeeper/config"
	"github.com/s0up4200/seedkeeper/engine"
	"github.com/s0up4200/seedkeeper/runlock"
	"github.com/s0up4200/seedkeeper/server"
)

var (
	serveHost    string
	servePort    int
	serveNoStart bool
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run passes on a schedule and accept run requests over HTTP",
	Long: `Start the long-running mode.

A pass with the configured commands runs every server.schedule interval.
POST /api/run-command triggers a pass on demand; a request arriving while
a pass runs is queued and executed afterwards in arrival order.

The config file is watched and changes apply from the next pass on.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveHost, "host", "", "listen address (default from config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (default from config)")
	serveCmd.Flags().BoolVar(&serveNoStart, "no-startup-run", false, "wait for the first interval instead of running a pass at startup")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := newClient(ctx, cfg)
	if err != nil {
		return err
	}

	var (
		opts    = []server.Option{server.WithVersion(version)}
		engOpts []engine.Option
	)
	if cfg.Server.Metrics {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		engOpts = append(engOpts, engine.WithMetrics(engine.NewMetrics(reg)))
		opts = append(opts, server.WithRegistry(reg))
	}
	if cfg.History.Enabled {
		store, err := openHistory(cfg)
		if err != nil {
			return err
		}
		defer store.Close()
		opts = append(opts, server.WithRecorder(store))
	}

	locks := runlock.New(logger, runlock.WithLockDir(cfg.Directory.LockDir))
	srv := server.New(cfg.Path(), engine.New(cfg, client, logger, engOpts...), locks, logger, opts...)

	active := cfg
	loader.Watch(logger, func(next *config.Config) {
		applyFlagOverrides(cmd, next)

		nextClient := client
		if next.QBittorrent != active.QBittorrent {
			c, err := newClient(ctx, next)
			if err != nil {
				logger.Error().Err(err).Msg("Keeping previous configuration, qBittorrent is unreachable with the new settings")
				return
			}
			nextClient = c
		}
		client, active = nextClient, next
		srv.SetRunner(engine.New(next, nextClient, logger, engOpts...))
	})

	interval, err := scheduleInterval(cfg)
	if err != nil {
		return err
	}
	if interval > 0 {
		req, err := engine.ParseRequest(cfg.Commands, nil, nil)
		if err != nil {
			return err
		}
		if len(req.Commands) == 0 {
			logger.Warn().Msg("No commands configured, scheduled passes are disabled")
		} else {
			if !serveNoStart {
				go func() {
					if _, err := srv.RunNow(ctx, server.SourceScheduled, req); err != nil && ctx.Err() == nil {
						logger.Error().Err(err).Msg("Startup pass failed")
					}
				}()
			}
			go srv.Schedule(ctx, interval, req)
		}
	}

	host, port := cfg.Server.Host, cfg.Server.Port
	if serveHost != "" {
		host = serveHost
	}
	if servePort != 0 {
		port = servePort
	}
	return srv.ListenAndServe(ctx, host, port)
}

// scheduleInterval returns zero when scheduling is switched off
func scheduleInterval(c *config.Config) (time.Duration, error) {
	minutes, err := config.ParseMinutes(c.Server.Schedule, 0)
	if err != nil {
		return 0, fmt.Errorf("invalid server.schedule: %w", err)
	}
	if minutes <= 0 {
		return 0, nil
	}
	return time.Duration(minutes) * time.Minute, nil
}
