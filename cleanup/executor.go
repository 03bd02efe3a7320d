package cleanup

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/s0up4200/seedkeeper/fsops"
	"github.com/s0up4200/seedkeeper/qbittorrent"
	"github.com/s0up4200/seedkeeper/recyclebin"
)

// Client is the part of the torrent client the executor needs
type Client interface {
	DeleteTorrents(ctx context.Context, hashes []string, deleteFiles bool) error
}

// Recycler moves deleted content into the recycle bin
type Recycler interface {
	Enabled() bool
	Recycle(ctx context.Context, item recyclebin.Item) (recyclebin.Result, error)
}

// Candidate is a torrent planned for deletion
type Candidate struct {
	Torrent *qbittorrent.TorrentInfo
	// DeleteContents asks for the data to go as well as the entry
	DeleteContents bool
	// Source names the command that planned the deletion
	Source string
	Reason string
}

// Plan is the complete set of deletions for a pass together with every
// torrent the client knows about. Torrents need their files loaded.
type Plan struct {
	Candidates []Candidate
	Torrents   []*qbittorrent.TorrentInfo
}

// Action is what happened to a candidate
type Action int

const (
	// EntryRemoved removed the torrent and left its data on disk
	EntryRemoved Action = iota
	// DataRecycled moved the data into the recycle bin
	DataRecycled
	// DataDeleted removed the data permanently
	DataDeleted
	// Failed left the torrent in the client
	Failed
)

func (a Action) String() string {
	switch a {
	case EntryRemoved:
		return "entry_removed"
	case DataRecycled:
		return "data_recycled"
	case DataDeleted:
		return "data_deleted"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome reports the result for one candidate
type Outcome struct {
	Hash   string
	Name   string
	Source string
	Action Action
	// Note explains why data was kept for a contents deletion
	Note     string
	Files    int
	Bytes    int64
	Recycled []recyclebin.Entry
	Err      error
	DryRun   bool
}

// Option configures an Executor
type Option func(*Executor)

// WithDryRun plans outcomes without touching the client or the disk
func WithDryRun(dryRun bool) Option {
	return func(e *Executor) {
		e.dryRun = dryRun
	}
}

// WithPathMapper maps client paths to local ones
func WithPathMapper(m qbittorrent.PathMapper) Option {
	return func(e *Executor) {
		e.paths = m
	}
}

// Executor carries out planned deletions without destroying data another
// torrent still needs
type Executor struct {
	client Client
	bin    Recycler
	fs     afero.Fs
	paths  qbittorrent.PathMapper
	logger zerolog.Logger
	dryRun bool
}

// NewExecutor creates an executor. bin may be nil when no recycle bin is
// configured.
func NewExecutor(client Client, bin Recycler, fs afero.Fs, logger zerolog.Logger, opts ...Option) *Executor {
	e := &Executor{
		client: client,
		bin:    bin,
		fs:     fs,
		logger: logger.With().Str("component", "cleanup").Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute deletes every candidate of plan in order. Data referenced by a
// torrent that stays is never removed; data shared by several candidates
// is removed once.
func (e *Executor) Execute(ctx context.Context, plan Plan) []Outcome {
	planned := make(map[string]bool, len(plan.Candidates))
	for _, c := range plan.Candidates {
		planned[c.Torrent.Hash] = true
	}

	// Every path a surviving torrent references
	protected := newFileIndex()
	for _, t := range plan.Torrents {
		if planned[t.Hash] {
			continue
		}
		protected.add(t.Hash, e.localContentPath(t), e.localFiles(t))
	}

	handled := make(map[string]bool)
	signatures := make(map[uint64]string)
	done := make(map[string]bool, len(plan.Candidates))

	outcomes := make([]Outcome, 0, len(plan.Candidates))
	for _, c := range plan.Candidates {
		if done[c.Torrent.Hash] {
			continue
		}
		done[c.Torrent.Hash] = true
		outcomes = append(outcomes, e.execute(ctx, c, protected, handled, signatures))
	}
	return outcomes
}

func (e *Executor) execute(ctx context.Context, c Candidate, protected *fileIndex, handled map[string]bool, signatures map[uint64]string) Outcome {
	t := c.Torrent
	out := Outcome{Hash: t.Hash, Name: t.Name, Source: c.Source, DryRun: e.dryRun}
	log := e.logger.With().Str("hash", t.Hash).Str("name", t.Name).Str("source", c.Source).Logger()

	files := e.localFiles(t)
	deleteData := c.DeleteContents

	sig := signature(files)
	first, sharedSet := signatures[sig]
	if !sharedSet {
		signatures[sig] = t.Hash
	}

	if deleteData {
		if owner, ok := protected.overlaps(e.localContentPath(t), files); ok {
			out.Note = fmt.Sprintf("data still used by %s", owner)
			deleteData = false
		}
	}

	var remaining []string
	if deleteData {
		for _, f := range files {
			if handled[f] {
				continue
			}
			if ok, _ := afero.Exists(e.fs, f); ok {
				remaining = append(remaining, f)
			}
		}
		if len(remaining) == 0 {
			out.Note = "content already gone"
			if sharedSet && len(files) > 0 {
				out.Note = fmt.Sprintf("data shared with %s, removed once", first)
			}
			deleteData = false
		}
	}

	for _, f := range remaining {
		out.Bytes += fsops.Size(e.fs, f)
	}
	out.Files = len(remaining)

	switch {
	case !deleteData:
		out.Action = EntryRemoved
	case e.bin != nil && e.bin.Enabled():
		out.Action = DataRecycled
	default:
		out.Action = DataDeleted
	}

	if e.dryRun {
		log.Info().Str("action", out.Action.String()).Str("note", out.Note).Str("reason", c.Reason).Msg("Dry run: would delete torrent")
		for _, f := range remaining {
			handled[f] = true
		}
		return out
	}

	removeData := false
	switch out.Action {
	case DataRecycled:
		result, err := e.bin.Recycle(ctx, e.recycleItem(t, remaining, true))
		out.Recycled = result.Moved
		if err != nil || !result.OK() {
			if err == nil {
				err = fmt.Errorf("%d files could not be recycled", len(result.Failed))
			}
			out.Action = Failed
			out.Err = err
			log.Error().Err(err).Msg("Recycling failed, keeping torrent")
			// Moved files are marked so a later candidate does not count them
			for _, m := range result.Moved {
				handled[m.Original] = true
			}
			return out
		}
		e.pruneContentDir(t)
	case DataDeleted:
		removeData = true
	case EntryRemoved:
		if e.bin != nil && e.bin.Enabled() {
			if _, err := e.bin.Recycle(ctx, e.recycleItem(t, files, false)); err != nil {
				log.Warn().Err(err).Msg("Failed to save torrent metadata")
			}
		}
	}

	if err := e.client.DeleteTorrents(ctx, []string{t.Hash}, removeData); err != nil {
		out.Action = Failed
		out.Err = fmt.Errorf("delete torrent: %w", err)
		log.Error().Err(err).Msg("Failed to delete torrent")
		return out
	}

	for _, f := range remaining {
		handled[f] = true
	}

	log.Info().
		Str("action", out.Action.String()).
		Int("files", out.Files).
		Int64("bytes", out.Bytes).
		Str("note", out.Note).
		Str("reason", c.Reason).
		Msg("Deleted torrent")

	return out
}

// pruneContentDir removes the directories a recycled torrent left empty
func (e *Executor) pruneContentDir(t *qbittorrent.TorrentInfo) {
	dir := e.localContentPath(t)
	if !fsops.Within(e.paths.ToLocal(t.SavePath), dir) {
		return
	}
	if ok, _ := afero.DirExists(e.fs, dir); !ok {
		return
	}
	if _, err := fsops.PruneEmptyDirs(e.fs, dir, nil); err != nil {
		e.logger.Debug().Err(err).Str("dir", dir).Msg("Failed to prune content directory")
		return
	}
	if empty, _ := afero.IsEmpty(e.fs, dir); empty {
		if err := e.fs.Remove(dir); err != nil {
			e.logger.Debug().Err(err).Str("dir", dir).Msg("Failed to remove content directory")
		}
	}
}

func (e *Executor) recycleItem(t *qbittorrent.TorrentInfo, files []string, deleteContents bool) recyclebin.Item {
	return recyclebin.Item{
		Hash:           t.Hash,
		Name:           t.Name,
		Category:       t.Category,
		Tracker:        qbittorrent.TrackerHost(t.Tracker),
		SavePath:       e.paths.ToLocal(t.SavePath),
		Files:          files,
		DeleteContents: deleteContents,
	}
}

func (e *Executor) localFiles(t *qbittorrent.TorrentInfo) []string {
	paths := t.FilePaths()
	for i, p := range paths {
		paths[i] = e.paths.ToLocal(p)
	}
	return paths
}

func (e *Executor) localContentPath(t *qbittorrent.TorrentInfo) string {
	return filepath.Clean(e.paths.ToLocal(t.GetFullPath()))
}
