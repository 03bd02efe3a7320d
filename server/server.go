// Package server exposes the command trigger surface and runs scheduled
// passes. Every pass, triggered or scheduled, holds the run token of its
// configuration, so passes never overlap and requests arriving mid-pass
// queue in arrival order.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/s0up4200/seedkeeper/engine"
	"github.com/s0up4200/seedkeeper/runlock"
)

// Runner executes one pass
type Runner interface {
	Run(ctx context.Context, req engine.Request) (*engine.Summary, error)
}

// Recorder is told about every finished pass
type Recorder interface {
	Record(ctx context.Context, source string, summary *engine.Summary, runErr error) error
}

// Pass sources as recorded in history
const (
	SourceAPI       = "api"
	SourceQueued    = "api_queued"
	SourceScheduled = "schedule"
	SourceCLI       = "cli"
)

// Option configures a Server
type Option func(*Server)

// WithRegistry serves the registry's metrics on /metrics
func WithRegistry(r *prometheus.Registry) Option {
	return func(s *Server) {
		s.registry = r
	}
}

// WithRecorder records finished passes
func WithRecorder(r Recorder) Option {
	return func(s *Server) {
		s.recorder = r
	}
}

// WithVersion sets the version reported by /health
func WithVersion(version string) Option {
	return func(s *Server) {
		s.version = version
	}
}

// Server serializes passes for one configuration key
type Server struct {
	key      string
	locks    *runlock.Locker
	logger   zerolog.Logger
	registry *prometheus.Registry
	recorder Recorder
	version  string

	mu     sync.RWMutex
	runner Runner

	// queued tracks passes started for queued requests
	queued sync.WaitGroup
}

// New creates a server running passes of runner under key
func New(key string, runner Runner, locks *runlock.Locker, logger zerolog.Logger, opts ...Option) *Server {
	s := &Server{
		key:     key,
		locks:   locks,
		logger:  logger.With().Str("component", "server").Logger(),
		runner:  runner,
		version: "dev",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetRunner replaces the runner used by passes that start from now on
func (s *Server) SetRunner(r Runner) {
	s.mu.Lock()
	s.runner = r
	s.mu.Unlock()
}

func (s *Server) currentRunner() Runner {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runner
}

// Handler returns the HTTP routes
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/health", s.handleHealth)
	r.Post("/api/run-command", s.handleRunCommand)
	if s.registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}
	return r
}

// ListenAndServe serves the trigger surface until ctx is done, then waits
// for queued passes to finish
func (s *Server) ListenAndServe(ctx context.Context, host string, port int) error {
	srv := &http.Server{
		Addr:              net.JoinHostPort(host, strconv.Itoa(port)),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", srv.Addr).Msg("Starting command server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("command server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn().Err(err).Msg("Command server shutdown")
	}
	s.Wait()
	return nil
}

// Wait blocks until every queued pass has run
func (s *Server) Wait() {
	s.queued.Wait()
}

// RunNow runs req as soon as the run token is free. The pass itself is
// not cancelled by ctx once it started.
func (s *Server) RunNow(ctx context.Context, source string, req engine.Request) (*engine.Summary, error) {
	tok, err := s.locks.Acquire(ctx, s.key)
	if err != nil {
		return nil, err
	}
	defer s.release(tok)
	return s.execute(context.WithoutCancel(ctx), source, req)
}

// Schedule runs req every interval until ctx is done. A tick that finds a
// pass running queues behind it.
func (s *Server) Schedule(ctx context.Context, interval time.Duration, req engine.Request) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		s.logger.Info().Time("next_run", time.Now().Add(interval)).Msg("Next scheduled pass")
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.RunNow(ctx, SourceScheduled, req); err != nil && ctx.Err() == nil {
				s.logger.Error().Err(err).Msg("Scheduled pass failed")
			}
		}
	}
}

// trigger runs req immediately when no pass holds the token. Otherwise the
// request is queued behind the current holder and waiters and runs in the
// background; queued reports that case.
func (s *Server) trigger(ctx context.Context, req engine.Request) (summary *engine.Summary, queued bool, err error) {
	if tok, ok := s.locks.TryAcquire(s.key); ok {
		defer s.release(tok)
		summary, err = s.execute(context.WithoutCancel(ctx), SourceAPI, req)
		return summary, false, err
	}

	// The ticket joins the queue now so arrival order is kept
	ticket := s.locks.Enqueue(s.key)
	detached := context.WithoutCancel(ctx)

	s.queued.Add(1)
	go func() {
		defer s.queued.Done()
		tok, err := ticket.Wait(detached)
		if err != nil {
			s.logger.Error().Err(err).Msg("Queued request could not acquire the run token")
			return
		}
		defer s.release(tok)
		_, _ = s.execute(detached, SourceQueued, req)
	}()

	if ticket.Queued() {
		s.logger.Info().Int("waiting", s.locks.Waiting(s.key)).Msg("Another run is in progress, request queued")
	} else {
		// Free in this process, so the lock file is what it waits on
		s.logger.Info().Str("lock_file", s.locks.LockPath(s.key)).Msg("Another process holds the run lock, request queued")
	}
	return nil, true, nil
}

func (s *Server) execute(ctx context.Context, source string, req engine.Request) (*engine.Summary, error) {
	summary, err := s.currentRunner().Run(ctx, req)
	if s.recorder != nil && summary != nil {
		if rerr := s.recorder.Record(ctx, source, summary, err); rerr != nil {
			s.logger.Warn().Err(rerr).Str("run_id", summary.RunID).Msg("Failed to record pass")
		}
	}
	return summary, err
}

func (s *Server) release(tok *runlock.Token) {
	if err := s.locks.Release(tok); err != nil {
		s.logger.Error().Err(err).Msg("Failed to release run token")
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
