package qbittorrent

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds parallel per-torrent requests
const DefaultConcurrency = 4

// LoadFiles fetches file lists for torrents concurrently and stores them on
// each TorrentInfo. Torrents whose files cannot be fetched keep an empty list
// and are returned in the failed set.
func (c *Client) LoadFiles(ctx context.Context, torrents []*TorrentInfo, concurrency int) map[string]error {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var mu sync.Mutex
	failed := make(map[string]error)

	for _, torrent := range torrents {
		if torrent.Files != nil {
			continue
		}

		g.Go(func() error {
			files, err := c.GetTorrentFiles(ctx, torrent.Hash)
			if err != nil {
				c.logger.Warn().
					Err(err).
					Str("hash", torrent.Hash).
					Str("torrent", torrent.Name).
					Msg("Failed to get torrent files")

				mu.Lock()
				failed[torrent.Hash] = err
				mu.Unlock()
				// Continue processing other torrents
				return nil
			}

			torrent.Files = files
			return nil
		})
	}

	_ = g.Wait()
	return failed
}

// LoadTrackers fetches trackers for torrents concurrently, keyed by hash
func (c *Client) LoadTrackers(ctx context.Context, torrents []*TorrentInfo, concurrency int) (map[string][]TrackerInfo, map[string]error) {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var mu sync.Mutex
	result := make(map[string][]TrackerInfo, len(torrents))
	failed := make(map[string]error)

	for _, torrent := range torrents {
		g.Go(func() error {
			trackers, err := c.GetTrackers(ctx, torrent.Hash)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				c.logger.Warn().Err(err).Str("hash", torrent.Hash).Msg("Failed to get torrent trackers")
				failed[torrent.Hash] = err
				return nil
			}
			result[torrent.Hash] = trackers
			return nil
		})
	}

	_ = g.Wait()
	return result, failed
}
