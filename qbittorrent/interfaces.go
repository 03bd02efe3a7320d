package qbittorrent

import (
	"context"

	"github.com/autobrr/go-qbittorrent"
)

// QBittorrentAPI defines the subset of the go-qbittorrent client seedkeeper uses
type QBittorrentAPI interface {
	// Session
	LoginCtx(ctx context.Context) error
	GetAppVersionCtx(ctx context.Context) (string, error)
	GetWebAPIVersionCtx(ctx context.Context) (string, error)

	// Torrent reads
	GetTorrentsCtx(ctx context.Context, o qbittorrent.TorrentFilterOptions) ([]qbittorrent.Torrent, error)
	GetFilesInformationCtx(ctx context.Context, hash string) (*qbittorrent.TorrentFiles, error)
	GetTorrentTrackersCtx(ctx context.Context, hash string) ([]qbittorrent.TorrentTracker, error)
	ExportTorrentCtx(ctx context.Context, hash string) ([]byte, error)

	// Tags and categories
	AddTagsCtx(ctx context.Context, hashes []string, tags string) error
	RemoveTagsCtx(ctx context.Context, hashes []string, tags string) error
	SetCategoryCtx(ctx context.Context, hashes []string, category string) error
	CreateCategoryCtx(ctx context.Context, category string, path string) error

	// Limits
	SetTorrentShareLimitCtx(ctx context.Context, hashes []string, ratioLimit float64, seedingTimeLimit int64, inactiveSeedingTimeLimit int64) error
	SetTorrentUploadLimitCtx(ctx context.Context, hashes []string, limit int64) error

	// State changes
	PauseCtx(ctx context.Context, hashes []string) error
	ResumeCtx(ctx context.Context, hashes []string) error
	RecheckCtx(ctx context.Context, hashes []string) error
	DeleteTorrentsCtx(ctx context.Context, hashes []string, deleteFiles bool) error
}

var _ QBittorrentAPI = (*qbittorrent.Client)(nil)
