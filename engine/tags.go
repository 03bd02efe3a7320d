package engine

import (
	"context"
	"fmt"
	"slices"

	"github.com/s0up4200/seedkeeper/qbittorrent"
)

// updateTags adds the tags of the matching tracker entry that a torrent is
// missing
func (e *Engine) updateTags(ctx context.Context, p *pass) {
	log := p.log.With().Str("command", "tag_update").Logger()

	e.forEach(ctx, p.active(), func(ctx context.Context, t *qbittorrent.TorrentInfo) {
		rule, ok := e.trackerRule(p.trackerURLs(t))
		if !ok {
			return
		}

		var missing []string
		for _, tag := range rule.Tags {
			if !t.HasTag(tag) {
				missing = append(missing, tag)
			}
		}
		if len(missing) == 0 {
			return
		}

		log.Info().
			Str("torrent", t.Name).
			Str("tracker", qbittorrent.TrackerHost(rule.URL)).
			Strs("tags", missing).
			Msg(dryRunMsg(p.dryRun, "Adding tracker tags"))

		if err := e.addTags(ctx, p, t, missing); err != nil {
			log.Error().Err(err).Str("torrent", t.Name).Msg("Failed to add tags")
			p.summary.addError(fmt.Errorf("tag %s: %w", t.Name, err))
			return
		}
		p.summary.add(&p.summary.Tagged, len(missing))
	})
}

// addTags adds tags in the client and mirrors the change on t
func (e *Engine) addTags(ctx context.Context, p *pass, t *qbittorrent.TorrentInfo, tags []string) error {
	if len(tags) == 0 {
		return nil
	}
	if !p.dryRun {
		if err := e.client.AddTags(ctx, []string{t.Hash}, tags); err != nil {
			return err
		}
	}
	for _, tag := range tags {
		if !t.HasTag(tag) {
			t.Tags = append(t.Tags, tag)
		}
	}
	return nil
}

// removeTags removes tags in the client and mirrors the change on t
func (e *Engine) removeTags(ctx context.Context, p *pass, t *qbittorrent.TorrentInfo, tags []string) error {
	if len(tags) == 0 {
		return nil
	}
	if !p.dryRun {
		if err := e.client.RemoveTags(ctx, []string{t.Hash}, tags); err != nil {
			return err
		}
	}
	t.Tags = slices.DeleteFunc(slices.Clone(t.Tags), func(tag string) bool {
		return slices.Contains(tags, tag)
	})
	return nil
}
