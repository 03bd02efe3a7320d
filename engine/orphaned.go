package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/s0up4200/seedkeeper/config"
	"github.com/s0up4200/seedkeeper/orphan"
)

// removeOrphaned moves files below the root directory that no torrent
// references into the orphaned directory. A tripped safeguard only stops the
// scan.
func (e *Engine) removeOrphaned(ctx context.Context, p *pass) error {
	log := p.log.With().Str("command", "rem_orphaned").Logger()

	if p.filesFailed > 0 {
		err := fmt.Errorf("skipping orphan scan: file lists of %d torrents could not be loaded", p.filesFailed)
		log.Warn().Err(err).Send()
		p.summary.addError(err)
		return nil
	}

	minutes, err := config.ParseMinutes(e.cfg.Orphaned.MinFileAge, 0)
	if err != nil {
		return fmt.Errorf("orphaned.min_file_age: %w", err)
	}

	known := orphan.NewFileSet()
	savePaths := make([]string, 0, len(p.torrents))
	for _, t := range p.torrents {
		for _, path := range t.FilePaths() {
			known.Add(e.mapper.ToLocal(path))
		}
		savePaths = append(savePaths, e.mapper.ToLocal(t.SavePath))
	}

	ignore := e.recycleBin(p).Roots(savePaths)
	scanner := orphan.NewScanner(e.fs, p.log, orphan.WithClock(e.now), orphan.WithDryRun(p.dryRun))
	result, err := scanner.Scan(ctx, orphan.Config{
		RootDir:         e.cfg.Directory.RemoteDir,
		OrphanedDir:     e.cfg.Directory.OrphanedDir,
		ExcludePatterns: e.cfg.Orphaned.ExcludePatterns,
		IgnoreDirs:      ignore,
		MinAge:          time.Duration(minutes) * time.Minute,
		MaxDeletions:    e.cfg.Orphaned.MaxFilesToDelete,
	}, known)
	for path, ferr := range result.Failed {
		p.summary.addError(fmt.Errorf("relocate %s: %w", path, ferr))
	}
	if err != nil {
		if !errors.Is(err, orphan.ErrSafeguard) {
			log.Error().Err(err).Msg("Orphan scan failed")
		}
		p.summary.addError(err)
		return nil
	}

	if p.dryRun {
		p.summary.add(&p.summary.Orphaned, len(result.Orphans))
	} else {
		p.summary.add(&p.summary.Orphaned, len(result.Moved))
	}
	return nil
}
