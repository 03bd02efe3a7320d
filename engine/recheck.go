package engine

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/s0up4200/seedkeeper/qbittorrent"
)

// recheck resumes paused torrents that still have seeding to do and
// rechecks empty ones whose data a completed torrent of the same name
// already holds. Smaller torrents go first.
func (e *Engine) recheck(ctx context.Context, p *pass) {
	log := p.log.With().Str("command", "recheck").Logger()

	complete := make(map[string]bool)
	for _, t := range p.torrents {
		if t.IsComplete() {
			complete[t.Name] = true
		}
	}

	var paused []*qbittorrent.TorrentInfo
	for _, t := range p.active() {
		if t.IsPaused() {
			paused = append(paused, t)
		}
	}
	slices.SortStableFunc(paused, func(a, b *qbittorrent.TorrentInfo) int {
		return cmp.Compare(a.Size, b.Size)
	})

	// Sequential so the client sees the requests in size order
	for _, t := range paused {
		if ctx.Err() != nil {
			return
		}

		switch {
		case t.IsComplete():
			if !limitsUnreached(t) {
				continue
			}
			log.Info().Str("torrent", t.Name).Msg(dryRunMsg(p.dryRun, "Resuming torrent"))
			if !p.dryRun {
				if err := e.client.Resume(ctx, []string{t.Hash}); err != nil {
					p.summary.addError(fmt.Errorf("resume %s: %w", t.Name, err))
					continue
				}
			}
			p.summary.add(&p.summary.Resumed, 1)

		case t.Progress == 0 && complete[t.Name] && !t.IsChecking():
			log.Info().Str("torrent", t.Name).Msg(dryRunMsg(p.dryRun, "Rechecking torrent"))
			if !p.dryRun {
				if err := e.client.Recheck(ctx, []string{t.Hash}); err != nil {
					p.summary.addError(fmt.Errorf("recheck %s: %w", t.Name, err))
					continue
				}
			}
			p.summary.add(&p.summary.Rechecked, 1)
		}
	}
}

// limitsUnreached reports whether a completed torrent has not yet hit the
// ratio or seeding time limit set on it. A torrent without limits always
// qualifies.
func limitsUnreached(t *qbittorrent.TorrentInfo) bool {
	ratioSet := t.RatioLimit >= 0
	timeSet := t.SeedingTimeLimit >= 0
	ratioLeft := t.Ratio < t.RatioLimit
	timeLeft := t.SeedingTime.Minutes() < float64(t.SeedingTimeLimit)

	switch {
	case !ratioSet && !timeSet:
		return true
	case ratioSet && !timeSet:
		return ratioLeft
	case timeSet && !ratioSet:
		return timeLeft
	default:
		return ratioLeft && timeLeft
	}
}
