package qbittorrent

import "errors"

// Common errors returned by the qBittorrent client.
var (
	// ErrTorrentNotFound is returned when a torrent is not found.
	ErrTorrentNotFound = errors.New("torrent not found")

	// ErrConnectionFailed is returned when connection to qBittorrent fails.
	ErrConnectionFailed = errors.New("connection to qBittorrent failed")

	// ErrUnsupportedVersion is returned when the Web API is older than required.
	ErrUnsupportedVersion = errors.New("unsupported qBittorrent Web API version")
)
