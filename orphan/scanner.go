package orphan

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/s0up4200/seedkeeper/fsops"
)

// Config describes one scan
type Config struct {
	// RootDir is the local directory holding torrent data
	RootDir string
	// OrphanedDir receives relocated files
	OrphanedDir     string
	ExcludePatterns []string
	// IgnoreDirs are skipped entirely, in addition to OrphanedDir
	IgnoreDirs []string
	MinAge     time.Duration
	// MaxDeletions caps how many files a scan may move. Negative means no
	// cap.
	MaxDeletions int
}

// File is an orphaned file found by a scan
type File struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// Relocation records one moved file
type Relocation struct {
	From string
	To   string
}

// Result reports a scan
type Result struct {
	Orphans  []File
	Excluded int
	TooYoung int
	Moved    []Relocation
	Failed   map[string]error
	Bytes    int64
	// DirsRemoved counts directories left empty by the move
	DirsRemoved int
	DryRun      bool
}

// Option configures a Scanner
type Option func(*Scanner)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Scanner) {
		s.now = now
	}
}

// WithDryRun finds orphans without moving them
func WithDryRun(dryRun bool) Option {
	return func(s *Scanner) {
		s.dryRun = dryRun
	}
}

// Scanner finds files under the root directory no torrent references and
// moves them into the orphaned directory
type Scanner struct {
	fs     afero.Fs
	logger zerolog.Logger
	now    func() time.Time
	dryRun bool
}

// NewScanner creates a scanner over fs
func NewScanner(fs afero.Fs, logger zerolog.Logger, opts ...Option) *Scanner {
	s := &Scanner{
		fs:     fs,
		logger: logger.With().Str("component", "orphan").Logger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan walks cfg.RootDir and relocates the files known does not contain.
// Files matching an exclude pattern or younger than cfg.MinAge are left
// alone. When more files qualify than cfg.MaxDeletions allows, nothing is
// moved and the returned error wraps ErrSafeguard.
func (s *Scanner) Scan(ctx context.Context, cfg Config, known *FileSet) (Result, error) {
	result := Result{DryRun: s.dryRun, Failed: make(map[string]error)}

	root := filepath.Clean(cfg.RootDir)
	if ok, err := afero.DirExists(s.fs, root); err != nil || !ok {
		return result, fmt.Errorf("root directory %s is not readable: %w", root, errOrNotExist(err))
	}
	if cfg.OrphanedDir == "" {
		return result, fmt.Errorf("no orphaned directory configured")
	}

	patterns, err := CompilePatterns(cfg.ExcludePatterns)
	if err != nil {
		return result, err
	}

	ignore := make([]string, 0, len(cfg.IgnoreDirs)+1)
	for _, d := range append([]string{cfg.OrphanedDir}, cfg.IgnoreDirs...) {
		if d != "" {
			ignore = append(ignore, filepath.Clean(d))
		}
	}

	now := s.now()
	err = afero.Walk(s.fs, root, func(path string, info os.FileInfo, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if os.IsPermission(err) || os.IsNotExist(err) {
				return nil
			}
			return err
		}

		if info.Mode()&os.ModeSymlink != 0 {
			return nil
		}
		if info.IsDir() {
			if path != root && isIgnoredPath(path, ignore) {
				return filepath.SkipDir
			}
			return nil
		}

		if known.Has(path) {
			return nil
		}
		if matchAny(patterns, path) {
			result.Excluded++
			return nil
		}
		if cfg.MinAge > 0 && now.Sub(info.ModTime()) < cfg.MinAge {
			result.TooYoung++
			return nil
		}

		result.Orphans = append(result.Orphans, File{Path: path, Size: info.Size(), ModTime: info.ModTime()})
		result.Bytes += info.Size()
		return nil
	})
	if err != nil {
		return result, fmt.Errorf("walk %s: %w", root, err)
	}

	sort.Slice(result.Orphans, func(i, j int) bool {
		return result.Orphans[i].Path < result.Orphans[j].Path
	})

	log := s.logger.With().Str("root", root).Logger()
	log.Info().
		Int("orphans", len(result.Orphans)).
		Int("excluded", result.Excluded).
		Int("too_young", result.TooYoung).
		Int("known_files", known.Len()).
		Msg("Orphaned file scan finished")

	if cfg.MaxDeletions >= 0 && len(result.Orphans) > cfg.MaxDeletions {
		err := &SafeguardError{Found: len(result.Orphans), Limit: cfg.MaxDeletions}
		log.Warn().Err(err).Msg("Not relocating orphaned files")
		return result, err
	}

	if s.dryRun || len(result.Orphans) == 0 {
		return result, nil
	}

	parents := make(map[string]struct{})
	for _, f := range result.Orphans {
		if !fsops.Within(root, f.Path) {
			result.Failed[f.Path] = fmt.Errorf("path escapes root: %s", f.Path)
			continue
		}
		rel, _ := filepath.Rel(root, f.Path)
		dst := filepath.Join(cfg.OrphanedDir, rel)
		if err := fsops.Move(s.fs, f.Path, dst, now); err != nil {
			log.Warn().Err(err).Str("file", f.Path).Msg("Failed to relocate orphaned file")
			result.Failed[f.Path] = err
			continue
		}
		result.Moved = append(result.Moved, Relocation{From: f.Path, To: dst})
		parents[filepath.Dir(f.Path)] = struct{}{}
	}

	result.DirsRemoved = s.removeEmptyParents(root, parents)

	log.Info().
		Int("moved", len(result.Moved)).
		Int("failed", len(result.Failed)).
		Int("dirs_removed", result.DirsRemoved).
		Str("orphaned_dir", cfg.OrphanedDir).
		Msg("Relocated orphaned files")

	return result, nil
}

// removeEmptyParents removes each directory that became empty, walking up
// towards root. root itself is kept.
func (s *Scanner) removeEmptyParents(root string, dirs map[string]struct{}) int {
	sorted := make([]string, 0, len(dirs))
	for d := range dirs {
		sorted = append(sorted, d)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(sorted)))

	removed := 0
	for _, dir := range sorted {
		for fsops.Within(root, dir) {
			empty, err := afero.IsEmpty(s.fs, dir)
			if err != nil || !empty {
				break
			}
			if err := s.fs.Remove(dir); err != nil {
				s.logger.Debug().Err(err).Str("dir", dir).Msg("Failed to remove empty directory")
				break
			}
			removed++
			dir = filepath.Dir(dir)
		}
	}
	return removed
}

func matchAny(patterns []*Pattern, path string) bool {
	for _, p := range patterns {
		if p.Match(path) {
			return true
		}
	}
	return false
}

// isIgnoredPath reports whether path is one of prefixes or lies below one
func isIgnoredPath(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if path == prefix || fsops.Within(prefix, path) {
			return true
		}
	}
	return false
}

func errOrNotExist(err error) error {
	if err != nil {
		return err
	}
	return os.ErrNotExist
}
