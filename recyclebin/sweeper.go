package recyclebin

import (
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/s0up4200/seedkeeper/fsops"
)

// SweepResult summarizes one retention sweep
type SweepResult struct {
	Files []string
	Bytes int64
	Dirs  int
}

// Sweeper purges recycle bin and orphaned entries past their retention
type Sweeper struct {
	fs     afero.Fs
	logger zerolog.Logger
	opts   options
}

// NewSweeper creates a sweeper over fs
func NewSweeper(fs afero.Fs, logger zerolog.Logger, opts ...Option) *Sweeper {
	return &Sweeper{
		fs:     fs,
		logger: logger.With().Str("component", "sweeper").Logger(),
		opts:   newOptions(opts),
	}
}

// Sweep removes the files below dir whose modification time is at least
// retentionDays old, then the directories left empty. A nil retention never
// purges and 0 purges everything. dir itself and the keep directories
// survive.
func (s *Sweeper) Sweep(dir string, retentionDays *int, keep ...string) (SweepResult, error) {
	var result SweepResult
	if retentionDays == nil || dir == "" {
		return result, nil
	}

	exists, err := afero.DirExists(s.fs, dir)
	if err != nil || !exists {
		return result, err
	}

	now := s.opts.now()
	retention := time.Duration(*retentionDays) * 24 * time.Hour
	log := s.logger.With().Str("dir", dir).Int("retention_days", *retentionDays).Logger()

	err = afero.Walk(s.fs, dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			log.Warn().Err(err).Str("path", path).Msg("Skipping unreadable path")
			if info != nil && info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() {
			return nil
		}

		age := now.Sub(info.ModTime())
		// Zero days purges regardless of clock skew or future mtimes
		if *retentionDays > 0 && age < retention {
			return nil
		}

		if !s.opts.dryRun {
			if err := s.fs.Remove(path); err != nil && !os.IsNotExist(err) {
				log.Warn().Err(err).Str("path", path).Msg("Failed to purge file")
				return nil
			}
		}
		log.Debug().Str("path", path).Dur("age", age).Bool("dry_run", s.opts.dryRun).Msg("Purged file")
		result.Files = append(result.Files, path)
		result.Bytes += info.Size()
		return nil
	})
	if err != nil {
		return result, err
	}

	if len(result.Files) > 0 && !s.opts.dryRun {
		result.Dirs, err = fsops.PruneEmptyDirs(s.fs, dir, func(d string) bool {
			return slices.Contains(keep, d)
		})
		if err != nil {
			return result, err
		}
	}

	if len(result.Files) > 0 {
		log.Info().Int("files", len(result.Files)).Int64("bytes", result.Bytes).Bool("dry_run", s.opts.dryRun).Msg("Emptied expired entries")
	}
	return result, nil
}
