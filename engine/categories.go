package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"

	"github.com/s0up4200/seedkeeper/orphan"
	"github.com/s0up4200/seedkeeper/qbittorrent"
)

// uncategorized leaves a torrent without a category when a mapping names it
const uncategorized = "Uncategorized"

// updateCategories gives uncategorized torrents a category from their
// tracker or save path and renames categories listed in cat_change
func (e *Engine) updateCategories(ctx context.Context, p *pass) {
	log := p.log.With().Str("command", "cat_update").Logger()

	var torrents []*qbittorrent.TorrentInfo
	for _, t := range p.active() {
		if e.cfg.Settings.CatFilterCompleted && !t.IsComplete() {
			continue
		}
		torrents = append(torrents, t)
	}

	e.forEach(ctx, torrents, func(ctx context.Context, t *qbittorrent.TorrentInfo) {
		var newCat string
		switch {
		case t.Category == "":
			if rule, ok := e.trackerRule(p.trackerURLs(t)); ok && rule.Category != "" {
				newCat = rule.Category
			} else {
				newCat = e.categoryForPath(t.SavePath)
			}
			if newCat == "" || newCat == uncategorized {
				log.Debug().Str("torrent", t.Name).Msg("Torrent remains uncategorized")
				return
			}
		case e.cfg.CategoryChange[t.Category] != "":
			newCat = e.cfg.CategoryChange[t.Category]
		default:
			return
		}
		if newCat == t.Category {
			return
		}

		log.Info().
			Str("torrent", t.Name).
			Str("hash", t.Hash).
			Str("old_category", t.Category).
			Str("new_category", newCat).
			Msg(dryRunMsg(p.dryRun, "Updating category"))

		if !p.dryRun {
			if err := e.setCategory(ctx, t, newCat); err != nil {
				log.Error().Err(err).Str("torrent", t.Name).Msg("Failed to set category")
				p.summary.addError(fmt.Errorf("set category of %s: %w", t.Name, err))
				return
			}
		}
		t.Category = newCat
		p.summary.add(&p.summary.Categorized, 1)
	})
}

// setCategory assigns category, creating it when the client does not know it
func (e *Engine) setCategory(ctx context.Context, t *qbittorrent.TorrentInfo, category string) error {
	err := e.client.SetCategory(ctx, []string{t.Hash}, category)
	if err == nil {
		return nil
	}

	e.logger.Debug().Err(err).Str("category", category).Msg("Creating missing category")
	if cerr := e.client.CreateCategory(ctx, category, t.SavePath); cerr != nil {
		return fmt.Errorf("%w (create category: %w)", err, cerr)
	}
	return e.client.SetCategory(ctx, []string{t.Hash}, category)
}

// categoryForPath maps a save path to a category using the cat section.
// Entries match by exact path or shell pattern. Without a match the last
// element of the save path is used.
func (e *Engine) categoryForPath(savePath string) string {
	if savePath == "" {
		return ""
	}
	clean := filepath.Clean(savePath)

	names := make([]string, 0, len(e.cfg.Categories))
	for name := range e.cfg.Categories {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		path := e.cfg.Categories[name]
		if filepath.Clean(path) == clean {
			return name
		}
		if pattern, err := orphan.CompilePattern(path); err == nil && pattern.Match(clean+string(filepath.Separator)) {
			return name
		}
	}

	e.logger.Warn().Str("save_path", savePath).Msg("No category matched the save path, using its directory name")
	return filepath.Base(clean)
}

func dryRunMsg(dryRun bool, msg string) string {
	if dryRun {
		return "[dry run] " + msg
	}
	return msg
}
