package recyclebin

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/s0up4200/seedkeeper/fsops"
)

// Layout of the saved torrent metadata inside a bin root
const (
	torrentsDir       = "torrents"
	torrentsExportDir = "torrents_export"
	torrentsJSONDir   = "torrents_json"
)

// MetadataDirs returns the directories below a bin root holding saved
// torrent metadata
func MetadataDirs(root string) []string {
	return []string{
		filepath.Join(root, torrentsDir),
		filepath.Join(root, torrentsExportDir),
		filepath.Join(root, torrentsJSONDir),
	}
}

// ErrDisabled is returned when recycling is attempted on a disabled bin
var ErrDisabled = errors.New("recycle bin disabled")

// Exporter exports the .torrent file of a torrent from the client
type Exporter interface {
	ExportTorrent(ctx context.Context, hash string) ([]byte, error)
}

// Config describes where recycled content goes
type Config struct {
	Enabled bool
	// Dir is the bin root as seen by this process
	Dir string
	// RootDir is the local path torrent files are made relative to when
	// placed in the bin
	RootDir         string
	SplitByCategory bool
	SaveTorrents    bool
	// TorrentsDir is the client's BT_backup directory. Optional.
	TorrentsDir string
}

// Item is a torrent about to be removed from the client
type Item struct {
	Hash     string
	Name     string
	Category string
	Tracker  string
	// SavePath and Files are local paths
	SavePath       string
	Files          []string
	DeleteContents bool
}

// Entry is one file placed in the bin
type Entry struct {
	Original string
	Path     string
	MovedAt  time.Time
}

// Result reports what Recycle did with an item
type Result struct {
	Moved []Entry
	// Missing lists content files that were already gone
	Missing []string
	Failed  map[string]error
	// Backups lists the saved .torrent, resume and sidecar files
	Backups []string
}

// OK reports whether every present content file reached the bin
func (r Result) OK() bool {
	return len(r.Failed) == 0
}

// Option configures a Bin or Sweeper
type Option func(*options)

type options struct {
	now    func() time.Time
	dryRun bool
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithDryRun reports what would happen without touching the filesystem
func WithDryRun(dryRun bool) Option {
	return func(o *options) {
		o.dryRun = dryRun
	}
}

func newOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Bin moves deleted torrent content aside so it can be restored until the
// retention sweep purges it
type Bin struct {
	fs       afero.Fs
	cfg      Config
	exporter Exporter
	logger   zerolog.Logger
	opts     options
}

// New creates a recycle bin over fs. exporter may be nil, in which case
// .torrent files are only copied from TorrentsDir.
func New(fs afero.Fs, cfg Config, exporter Exporter, logger zerolog.Logger, opts ...Option) *Bin {
	return &Bin{
		fs:       fs,
		cfg:      cfg,
		exporter: exporter,
		logger:   logger.With().Str("component", "recyclebin").Logger(),
		opts:     newOptions(opts),
	}
}

// Enabled reports whether deletions should go through the bin
func (b *Bin) Enabled() bool {
	return b.cfg.Enabled && b.cfg.Dir != ""
}

// Root returns the bin directory used for a torrent saved under savePath
func (b *Bin) Root(savePath string) string {
	if b.cfg.SplitByCategory && savePath != "" {
		return filepath.Join(savePath, filepath.Base(filepath.Clean(b.cfg.Dir)))
	}
	return b.cfg.Dir
}

// Roots returns every bin directory in use for the given save paths, the
// main bin first. Only split-by-category bins that exist are included.
func (b *Bin) Roots(savePaths []string) []string {
	roots := []string{b.cfg.Dir}
	if !b.cfg.SplitByCategory {
		return roots
	}

	seen := map[string]struct{}{filepath.Clean(b.cfg.Dir): {}}
	for _, p := range savePaths {
		root := filepath.Clean(b.Root(p))
		if _, ok := seen[root]; ok {
			continue
		}
		seen[root] = struct{}{}
		if ok, _ := afero.DirExists(b.fs, root); ok {
			roots = append(roots, root)
		}
	}
	return roots
}

// Recycle saves the torrent's metadata when configured and, for items
// deleting their contents, moves every content file into the bin. A file
// that fails to move is recorded in the result and left in place; the
// caller must then keep the torrent.
func (b *Bin) Recycle(ctx context.Context, item Item) (Result, error) {
	if !b.Enabled() {
		return Result{}, ErrDisabled
	}

	root := b.Root(item.SavePath)
	if err := b.fs.MkdirAll(root, 0o755); err != nil {
		return Result{}, fmt.Errorf("create recycle bin %s: %w", root, err)
	}

	result := Result{Failed: make(map[string]error)}
	log := b.logger.With().Str("hash", item.Hash).Str("name", item.Name).Logger()

	if b.cfg.SaveTorrents {
		backups, err := b.saveTorrent(ctx, root, item)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to back up torrent metadata")
		}
		result.Backups = backups
	}

	if !item.DeleteContents {
		return result, nil
	}

	movedAt := b.opts.now()
	for _, src := range item.Files {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		dst := filepath.Join(root, b.relative(item.SavePath, src))
		err := fsops.Move(b.fs, src, dst, movedAt)
		switch {
		case err == nil:
			result.Moved = append(result.Moved, Entry{Original: src, Path: dst, MovedAt: movedAt})
		case os.IsNotExist(err):
			log.Warn().Str("file", src).Msg("Content file already gone")
			result.Missing = append(result.Missing, src)
		default:
			log.Error().Err(err).Str("file", src).Msg("Failed to move file to recycle bin")
			result.Failed[src] = err
		}
	}

	log.Debug().
		Int("moved", len(result.Moved)).
		Int("missing", len(result.Missing)).
		Int("failed", len(result.Failed)).
		Str("bin", root).
		Msg("Recycled torrent content")

	return result, nil
}

// relative returns where src goes below the bin root, keeping the
// structure it had below the root directory or the save path
func (b *Bin) relative(savePath, src string) string {
	bases := []string{b.cfg.RootDir, savePath}
	if b.cfg.SplitByCategory {
		bases = []string{savePath, b.cfg.RootDir}
	}
	for _, base := range bases {
		if base != "" && fsops.Within(base, src) {
			rel, _ := filepath.Rel(base, src)
			return rel
		}
	}
	src = strings.TrimPrefix(src, filepath.VolumeName(src))
	return strings.TrimLeft(src, string(filepath.Separator))
}
