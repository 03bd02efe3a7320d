package engine

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/s0up4200/seedkeeper/hardlink"
	"github.com/s0up4200/seedkeeper/qbittorrent"
)

// tagNoHardlinks tags completed torrents in the configured categories whose
// content has no hardlink outside the torrent client, and untags them once
// one appears
func (e *Engine) tagNoHardlinks(ctx context.Context, p *pass) {
	tag := e.cfg.Settings.NoHardlinksTag
	if tag == "" || len(e.cfg.NoHardlinks) == 0 {
		return
	}
	log := p.log.With().Str("command", "tag_nohardlinks").Logger()
	localRoot := e.cfg.Directory.RemoteDir

	var torrents []*qbittorrent.TorrentInfo
	for _, t := range p.active() {
		if _, ok := e.cfg.NoHardlinks[t.Category]; ok && t.IsComplete() {
			torrents = append(torrents, t)
		}
	}

	e.forEach(ctx, torrents, func(ctx context.Context, t *qbittorrent.TorrentInfo) {
		settings := e.cfg.NoHardlinks[t.Category]
		if t.HasAnyTag(settings.ExcludeTags) || len(t.Files) == 0 {
			return
		}

		linked := e.inspector.HasExternalHardlink(e.hardlinkFiles(t), localRoot, settings.IgnoreRootDir)
		switch {
		case !linked && !t.HasTag(tag):
			log.Info().Str("torrent", t.Name).Str("category", t.Category).Msg(dryRunMsg(p.dryRun, "No hardlinks found, tagging"))
			if err := e.addTags(ctx, p, t, []string{tag}); err != nil {
				p.summary.addError(fmt.Errorf("tag %s: %w", t.Name, err))
				return
			}
			p.summary.add(&p.summary.TaggedNoHardlinks, 1)

		case linked && t.HasTag(tag):
			log.Info().Str("torrent", t.Name).Str("category", t.Category).Msg(dryRunMsg(p.dryRun, "Hardlink found, removing tag"))
			if err := e.removeTags(ctx, p, t, []string{tag}); err != nil {
				p.summary.addError(fmt.Errorf("untag %s: %w", t.Name, err))
				return
			}
			p.summary.add(&p.summary.UntaggedNoHardlinks, 1)
		}
	})
}

// hardlinkFiles returns the torrent's files as local paths
func (e *Engine) hardlinkFiles(t *qbittorrent.TorrentInfo) []hardlink.File {
	files := make([]hardlink.File, 0, len(t.Files))
	for _, f := range t.Files {
		files = append(files, hardlink.File{
			Path: e.mapper.ToLocal(filepath.Join(t.SavePath, f.Name)),
			Size: f.Size,
		})
	}
	return files
}
