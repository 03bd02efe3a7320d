// Package engine runs passes: it loads torrents from qBittorrent, executes the
// requested commands in a fixed order and reports what changed.
package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/s0up4200/seedkeeper/cleanup"
	"github.com/s0up4200/seedkeeper/config"
	"github.com/s0up4200/seedkeeper/filter"
	"github.com/s0up4200/seedkeeper/hardlink"
	"github.com/s0up4200/seedkeeper/qbittorrent"
	"github.com/s0up4200/seedkeeper/recyclebin"
)

// ErrNoCommands is returned for a request that names no command
var ErrNoCommands = errors.New("no commands requested")

// Client is the part of qBittorrent a pass talks to
type Client interface {
	GetAllTorrents(ctx context.Context) ([]*qbittorrent.TorrentInfo, error)
	LoadFiles(ctx context.Context, torrents []*qbittorrent.TorrentInfo, concurrency int) map[string]error
	LoadTrackers(ctx context.Context, torrents []*qbittorrent.TorrentInfo, concurrency int) (map[string][]qbittorrent.TrackerInfo, map[string]error)
	ExportTorrent(ctx context.Context, hash string) ([]byte, error)

	AddTags(ctx context.Context, hashes, tags []string) error
	RemoveTags(ctx context.Context, hashes, tags []string) error
	SetCategory(ctx context.Context, hashes []string, category string) error
	CreateCategory(ctx context.Context, name, path string) error
	SetShareLimits(ctx context.Context, hashes []string, ratio float64, seedingMinutes, inactiveMinutes int64) error
	SetUploadLimit(ctx context.Context, hashes []string, bytesPerSecond int64) error
	Resume(ctx context.Context, hashes []string) error
	Recheck(ctx context.Context, hashes []string) error
	DeleteTorrents(ctx context.Context, hashes []string, deleteFiles bool) error
}

var _ Client = (*qbittorrent.Client)(nil)

// HardlinkInspector decides whether torrent content is hardlinked elsewhere
type HardlinkInspector interface {
	HasExternalHardlink(files []hardlink.File, rootDir string, ignoreRootDir bool) bool
}

// Request selects the work of one pass
type Request struct {
	Commands []config.Command
	// Hashes limits torrent commands to these torrents. Empty means all.
	Hashes []string
	// DryRun overrides settings.dry_run when set
	DryRun      *bool
	SkipCleanup bool
}

// ParseRequest builds a request from command names as users type them
func ParseRequest(commands, hashes []string, dryRun *bool) (Request, error) {
	req := Request{DryRun: dryRun}
	for _, name := range commands {
		cmd, ok := config.ParseCommand(name)
		if !ok {
			return req, fmt.Errorf("unknown command: %s", name)
		}
		if cmd == config.CommandSkipCleanup {
			req.SkipCleanup = true
			continue
		}
		if !slices.Contains(req.Commands, cmd) {
			req.Commands = append(req.Commands, cmd)
		}
	}
	for _, h := range hashes {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			req.Hashes = append(req.Hashes, h)
		}
	}
	return req, nil
}

// Has reports whether the request asks for cmd
func (r Request) Has(cmd config.Command) bool {
	return slices.Contains(r.Commands, cmd)
}

// Option configures an Engine
type Option func(*Engine)

// WithFs sets the filesystem used for recycle bin, orphan and sweep work
func WithFs(fs afero.Fs) Option {
	return func(e *Engine) {
		e.fs = fs
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithMetrics records pass results
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithHardlinkInspector replaces the default hardlink inspector
func WithHardlinkInspector(i HardlinkInspector) Option {
	return func(e *Engine) {
		e.inspector = i
	}
}

// WithCompiler sets the compiler for share limit filter expressions
func WithCompiler(c filter.Compiler) Option {
	return func(e *Engine) {
		e.compiler = c
	}
}

// Engine runs passes for one configuration
type Engine struct {
	cfg       *config.Config
	client    Client
	fs        afero.Fs
	logger    zerolog.Logger
	now       func() time.Time
	metrics   *Metrics
	inspector HardlinkInspector
	compiler  filter.Compiler
	mapper    qbittorrent.PathMapper
}

// New creates an engine for cfg
func New(cfg *config.Config, client Client, logger zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		cfg:    cfg,
		client: client,
		fs:     afero.NewOsFs(),
		logger: logger,
		now:    time.Now,
		mapper: qbittorrent.NewPathMapper(cfg.Directory.RootDir, cfg.Directory.RemoteDir),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.compiler == nil {
		e.compiler = filter.NewExprCompiler(filter.WithClock(e.now))
	}
	if e.inspector == nil {
		localRoot := e.mapper.ToLocal(cfg.Directory.RootDir)
		e.inspector = hardlink.NewInspector(hardlink.NewTreeResolver(localRoot, 0, logger), logger)
	}
	return e
}

// Config returns the configuration the engine runs with
func (e *Engine) Config() *config.Config {
	return e.cfg
}

// pass holds the state of one run
type pass struct {
	req      Request
	dryRun   bool
	now      time.Time
	summary  *Summary
	log      zerolog.Logger
	torrents []*qbittorrent.TorrentInfo
	selected []*qbittorrent.TorrentInfo
	trackers map[string][]qbittorrent.TrackerInfo
	planned  map[string]bool
	plan     []cleanup.Candidate
	// filesFailed counts torrents whose file list could not be loaded
	filesFailed int
}

func (p *pass) schedule(c cleanup.Candidate) {
	if p.planned[c.Torrent.Hash] {
		return
	}
	p.planned[c.Torrent.Hash] = true
	p.plan = append(p.plan, c)
}

// active returns the selected torrents not yet planned for deletion
func (p *pass) active() []*qbittorrent.TorrentInfo {
	out := make([]*qbittorrent.TorrentInfo, 0, len(p.selected))
	for _, t := range p.selected {
		if !p.planned[t.Hash] {
			out = append(out, t)
		}
	}
	return out
}

// Run executes one pass. Per-torrent failures are logged and collected in
// the summary; an error is only returned when the pass could not run.
func (e *Engine) Run(ctx context.Context, req Request) (*Summary, error) {
	if len(req.Commands) == 0 {
		return nil, ErrNoCommands
	}

	dryRun := e.cfg.Settings.DryRun
	if req.DryRun != nil {
		dryRun = *req.DryRun
	}

	p := &pass{
		req:     req,
		dryRun:  dryRun,
		now:     e.now(),
		planned: make(map[string]bool),
	}
	p.summary = newSummary(dryRun, p.now)
	p.summary.Config = e.cfg.Path()
	p.log = e.logger.With().Str("run_id", p.summary.RunID).Bool("dry_run", dryRun).Logger()

	err := e.run(ctx, p)
	p.summary.FinishedAt = e.now()
	e.metrics.observe(p.summary, err)
	if err != nil {
		p.log.Error().Err(err).Msg("Pass failed")
		return p.summary, err
	}

	p.log.Info().
		Strs("commands", p.summary.Commands).
		Int("torrents", p.summary.Torrents).
		Int("errors", len(p.summary.Errors)).
		Dur("duration", p.summary.Duration()).
		Interface("actions", p.summary.Actions()).
		Msg("Pass finished")
	return p.summary, nil
}

func (e *Engine) run(ctx context.Context, p *pass) error {
	if err := e.checkFilesystem(p.req); err != nil {
		return err
	}

	// Link facts never outlive a pass
	if r, ok := e.inspector.(interface{ Reset() }); ok {
		r.Reset()
	}

	torrents, err := e.client.GetAllTorrents(ctx)
	if err != nil {
		return fmt.Errorf("failed to list torrents: %w", err)
	}
	p.torrents = torrents
	p.selected = selectHashes(torrents, p.req.Hashes)
	p.summary.Torrents = len(torrents)

	p.log.Info().
		Int("torrents", len(torrents)).
		Int("selected", len(p.selected)).
		Msg("Starting pass")

	if e.needsTrackers(p.req) {
		trackers, failed := e.client.LoadTrackers(ctx, p.selected, e.cfg.Settings.Workers)
		p.trackers = trackers
		for hash, err := range failed {
			p.summary.addError(fmt.Errorf("trackers for %s: %w", hash, err))
		}
	}
	if e.needsFiles(p.req) {
		// The shared data guard and orphan scan need every torrent's files
		failed := e.client.LoadFiles(ctx, torrents, e.cfg.Settings.Workers)
		for hash, err := range failed {
			p.summary.addError(fmt.Errorf("files for %s: %w", hash, err))
		}
		p.filesFailed = len(failed)
	}

	for _, cmd := range config.CommandOrder {
		if !p.req.Has(cmd) {
			continue
		}
		p.summary.Commands = append(p.summary.Commands, string(cmd))

		switch cmd {
		case config.CommandCategoryUpdate:
			e.updateCategories(ctx, p)
		case config.CommandTagUpdate:
			e.updateTags(ctx, p)
		case config.CommandRemoveUnregistered, config.CommandTagTrackerError:
			// Both are handled by one tracker sweep
			if cmd == config.CommandTagTrackerError && p.req.Has(config.CommandRemoveUnregistered) {
				continue
			}
			e.checkTrackers(ctx, p)
		case config.CommandRecheck:
			e.recheck(ctx, p)
		case config.CommandTagNoHardlinks:
			e.tagNoHardlinks(ctx, p)
		case config.CommandShareLimits:
			e.applyShareLimits(ctx, p)
		case config.CommandRemoveOrphaned:
			// Deletions go first so removed data is not reported as orphaned
			e.executePlan(ctx, p)
			if err := e.removeOrphaned(ctx, p); err != nil {
				return err
			}
		}
	}
	e.executePlan(ctx, p)

	if !p.req.SkipCleanup && !e.cfg.Settings.SkipCleanup {
		e.sweep(p)
	}
	return nil
}

// checkFilesystem fails early when a command needing the data directory
// cannot see it
func (e *Engine) checkFilesystem(req Request) error {
	if !req.Has(config.CommandRemoveOrphaned) && !req.Has(config.CommandTagNoHardlinks) {
		return nil
	}
	root := e.cfg.Directory.RemoteDir
	if root == "" {
		return fmt.Errorf("directory.root_dir is required for %s and %s", config.CommandRemoveOrphaned, config.CommandTagNoHardlinks)
	}
	ok, err := afero.DirExists(e.fs, root)
	if err != nil {
		return fmt.Errorf("root directory %s is not readable: %w", root, err)
	}
	if !ok {
		return fmt.Errorf("root directory %s does not exist", root)
	}
	return nil
}

func (e *Engine) needsTrackers(req Request) bool {
	return req.Has(config.CommandCategoryUpdate) ||
		req.Has(config.CommandTagUpdate) ||
		req.Has(config.CommandRemoveUnregistered) ||
		req.Has(config.CommandTagTrackerError)
}

func (e *Engine) needsFiles(req Request) bool {
	return req.Has(config.CommandRemoveUnregistered) ||
		req.Has(config.CommandTagNoHardlinks) ||
		req.Has(config.CommandShareLimits) ||
		req.Has(config.CommandRemoveOrphaned)
}

func selectHashes(torrents []*qbittorrent.TorrentInfo, hashes []string) []*qbittorrent.TorrentInfo {
	if len(hashes) == 0 {
		return torrents
	}
	out := make([]*qbittorrent.TorrentInfo, 0, len(hashes))
	for _, t := range torrents {
		if slices.Contains(hashes, strings.ToLower(t.Hash)) {
			out = append(out, t)
		}
	}
	return out
}

// recycleBin builds the bin for a pass
func (e *Engine) recycleBin(p *pass) *recyclebin.Bin {
	rb := e.cfg.RecycleBin
	return recyclebin.New(e.fs, recyclebin.Config{
		Enabled:         rb.Enabled && e.cfg.Directory.RecycleBin != "",
		Dir:             e.cfg.Directory.RecycleBin,
		RootDir:         e.cfg.Directory.RemoteDir,
		SplitByCategory: rb.SplitByCategory,
		SaveTorrents:    rb.SaveTorrents,
		TorrentsDir:     e.cfg.Directory.TorrentsDir,
	}, e.client, p.log, recyclebin.WithClock(e.now), recyclebin.WithDryRun(p.dryRun))
}

// executePlan runs the deletions gathered so far
func (e *Engine) executePlan(ctx context.Context, p *pass) {
	if len(p.plan) == 0 {
		return
	}
	candidates := p.plan
	p.plan = nil

	exec := cleanup.NewExecutor(e.client, e.recycleBin(p), e.fs, p.log,
		cleanup.WithDryRun(p.dryRun),
		cleanup.WithPathMapper(e.mapper),
	)
	outcomes := exec.Execute(ctx, cleanup.Plan{Candidates: candidates, Torrents: p.torrents})

	removed := make(map[string]bool, len(outcomes))
	for _, o := range outcomes {
		switch o.Action {
		case cleanup.Failed:
			p.summary.addError(fmt.Errorf("delete %s (%s): %w", o.Name, o.Source, o.Err))
			continue
		case cleanup.EntryRemoved:
			p.summary.add(&p.summary.Deleted, 1)
		default:
			p.summary.add(&p.summary.DeletedContents, 1)
		}
		switch o.Source {
		case string(config.CommandRemoveUnregistered):
			p.summary.add(&p.summary.RemovedUnregistered, 1)
		case string(config.CommandShareLimits):
			p.summary.add(&p.summary.CleanedShareLimits, 1)
		}
		removed[o.Hash] = true
	}

	if p.dryRun {
		return
	}
	p.torrents = without(p.torrents, removed)
	p.selected = without(p.selected, removed)
}

func without(torrents []*qbittorrent.TorrentInfo, hashes map[string]bool) []*qbittorrent.TorrentInfo {
	out := make([]*qbittorrent.TorrentInfo, 0, len(torrents))
	for _, t := range torrents {
		if !hashes[t.Hash] {
			out = append(out, t)
		}
	}
	return out
}
