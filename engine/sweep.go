package engine

import (
	"fmt"

	"github.com/s0up4200/seedkeeper/recyclebin"
)

// sweep purges recycle bin and orphaned entries past their retention
func (e *Engine) sweep(p *pass) {
	sweeper := recyclebin.NewSweeper(e.fs, p.log, recyclebin.WithClock(e.now), recyclebin.WithDryRun(p.dryRun))

	if e.cfg.RecycleBin.Enabled && e.cfg.Directory.RecycleBin != "" {
		savePaths := make([]string, 0, len(p.torrents))
		for _, t := range p.torrents {
			savePaths = append(savePaths, e.mapper.ToLocal(t.SavePath))
		}
		for _, root := range e.recycleBin(p).Roots(savePaths) {
			res, err := sweeper.Sweep(root, e.cfg.RecycleBin.EmptyAfterDays, recyclebin.MetadataDirs(root)...)
			if err != nil {
				p.summary.addError(fmt.Errorf("empty recycle bin %s: %w", root, err))
			}
			p.summary.add(&p.summary.RecycleEmptied, len(res.Files))
		}
	}

	if dir := e.cfg.Directory.OrphanedDir; dir != "" {
		res, err := sweeper.Sweep(dir, e.cfg.Orphaned.EmptyAfterDays)
		if err != nil {
			p.summary.addError(fmt.Errorf("empty orphaned directory %s: %w", dir, err))
		}
		p.summary.add(&p.summary.OrphanedEmptied, len(res.Files))
	}
}
