package engine

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/s0up4200/seedkeeper/qbittorrent"
)

// forEach runs fn for every torrent on a bounded pool. Each torrent is
// handled by exactly one goroutine, so fn may mutate it freely. fn reports
// failures through the pass summary and never stops the pool.
func (e *Engine) forEach(ctx context.Context, torrents []*qbittorrent.TorrentInfo, fn func(ctx context.Context, t *qbittorrent.TorrentInfo)) {
	workers := e.cfg.Settings.Workers
	if workers <= 0 {
		workers = qbittorrent.DefaultConcurrency
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, t := range torrents {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			fn(ctx, t)
			return nil
		})
	}

	_ = g.Wait()
}
