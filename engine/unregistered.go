package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/s0up4200/seedkeeper/cleanup"
	"github.com/s0up4200/seedkeeper/config"
	"github.com/s0up4200/seedkeeper/qbittorrent"
)

// checkTrackers plans the removal of torrents their tracker no longer knows
// and keeps the tracker error tag in line with the tracker status. Torrents
// sharing data with a torrent that stays lose only their entry.
func (e *Engine) checkTrackers(ctx context.Context, p *pass) {
	removeUnregistered := p.req.Has(config.CommandRemoveUnregistered)
	tagErrors := p.req.Has(config.CommandTagTrackerError)
	errorTag := e.cfg.Settings.TrackerErrorTag
	log := p.log.With().Str("command", "tracker_check").Logger()

	var mu sync.Mutex
	e.forEach(ctx, p.active(), func(ctx context.Context, t *qbittorrent.TorrentInfo) {
		trackers, ok := p.trackers[t.Hash]
		if !ok {
			return
		}

		if qbittorrent.HasWorkingTracker(trackers) {
			if errorTag == "" || !t.HasTag(errorTag) {
				return
			}
			log.Info().Str("torrent", t.Name).Str("tag", errorTag).Msg(dryRunMsg(p.dryRun, "Tracker works again, removing error tag"))
			if err := e.removeTags(ctx, p, t, []string{errorTag}); err != nil {
				p.summary.addError(fmt.Errorf("untag %s: %w", t.Name, err))
				return
			}
			p.summary.add(&p.summary.UntaggedTrackerError, 1)
			return
		}

		if removeUnregistered {
			if msg := qbittorrent.UnregisteredMessage(trackers); msg != "" {
				log.Info().
					Str("torrent", t.Name).
					Str("hash", t.Hash).
					Str("message", msg).
					Msg(dryRunMsg(p.dryRun, "Removing unregistered torrent"))

				mu.Lock()
				p.schedule(cleanup.Candidate{
					Torrent:        t,
					DeleteContents: true,
					Source:         string(config.CommandRemoveUnregistered),
					Reason:         msg,
				})
				mu.Unlock()
				return
			}
		}

		if !tagErrors || errorTag == "" || t.HasTag(errorTag) {
			return
		}
		msg := qbittorrent.TrackerError(trackers)
		if msg == "" {
			return
		}
		log.Info().Str("torrent", t.Name).Str("status", msg).Str("tag", errorTag).Msg(dryRunMsg(p.dryRun, "Tagging tracker error"))
		if err := e.addTags(ctx, p, t, []string{errorTag}); err != nil {
			p.summary.addError(fmt.Errorf("tag %s: %w", t.Name, err))
			return
		}
		p.summary.add(&p.summary.TaggedTrackerError, 1)
	})
}
