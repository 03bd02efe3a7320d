// Package qbittorrent provides a client for interacting with the qBittorrent Web API.
//
// This package wraps the autobrr/go-qbittorrent library to provide a higher-level
// interface tailored for seedkeeper's needs: reading torrents with their share
// limits, files and trackers, and issuing the tag, category, limit and delete
// mutations the engine decides on.
//
// # Features
//
//   - Connection management with authentication and retries
//   - Web API version gating
//   - Torrent, file and tracker retrieval
//   - Tracker message classification (unregistered, ignorable, down)
//   - Path mapping between the client's view and the local filesystem
//
// # Usage
//
//	client, err := qbittorrent.NewClient(ctx, url, username, password, logger,
//	    qbittorrent.WithMaxRetries(3))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	torrents, err := client.GetAllTorrents(ctx)
//	if err != nil {
//	    return err
//	}
//
//	err = client.AddTags(ctx, []string{torrents[0].Hash}, []string{"noHL"})
package qbittorrent
