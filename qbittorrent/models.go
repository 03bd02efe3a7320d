package qbittorrent

import (
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// TorrentInfo contains information about a torrent
type TorrentInfo struct {
	Hash        string
	Name        string
	SavePath    string
	ContentPath string
	State       string
	Size        int64
	Progress    float64
	Ratio       float64
	// SeedingTime is the accumulated time spent seeding
	SeedingTime  time.Duration
	LastActivity time.Time
	AddedOn      time.Time
	CompletionOn time.Time
	NumComplete  int64
	Category     string
	Tags         []string
	Tracker      string

	// Per-torrent limits as currently set in the client. -1 means
	// unlimited and -2 means the client's global default.
	RatioLimit               float64
	SeedingTimeLimit         int64
	InactiveSeedingTimeLimit int64
	UpLimit                  int64

	Files []FileInfo
}

// FileInfo is a single content file of a torrent, relative to its save path
type FileInfo struct {
	Name string
	Size int64
}

// TrackerInfo describes one tracker announce entry of a torrent
type TrackerInfo struct {
	URL     string
	Status  TrackerStatus
	Message string
}

// IsActivelySeeding checks if the torrent is actively seeding
func (t *TorrentInfo) IsActivelySeeding() bool {
	return t.State == "uploading" || t.State == "stalledUP" || t.State == "queuedUP" || t.State == "forcedUP"
}

// IsPaused reports a paused or stopped torrent. qBittorrent 5 renamed the
// paused states to stopped.
func (t *TorrentInfo) IsPaused() bool {
	switch t.State {
	case "pausedUP", "pausedDL", "stoppedUP", "stoppedDL":
		return true
	}
	return false
}

// IsChecking reports whether the client is currently hashing the data
func (t *TorrentInfo) IsChecking() bool {
	switch t.State {
	case "checkingUP", "checkingDL", "checkingResumeData":
		return true
	}
	return false
}

// IsComplete reports whether all wanted pieces are downloaded
func (t *TorrentInfo) IsComplete() bool {
	return t.Progress >= 1
}

// HasTag reports whether the torrent carries tag
func (t *TorrentInfo) HasTag(tag string) bool {
	return slices.Contains(t.Tags, tag)
}

// HasAnyTag reports whether the torrent carries at least one of tags
func (t *TorrentInfo) HasAnyTag(tags []string) bool {
	for _, tag := range tags {
		if t.HasTag(tag) {
			return true
		}
	}
	return false
}

// InactiveFor returns the time since the torrent last transferred data
func (t *TorrentInfo) InactiveFor(now time.Time) time.Duration {
	if t.LastActivity.IsZero() || t.LastActivity.After(now) {
		return 0
	}
	return now.Sub(t.LastActivity)
}

// GetFullPath returns the full path to the torrent content
func (t *TorrentInfo) GetFullPath() string {
	if t.ContentPath != "" {
		return t.ContentPath
	}
	return filepath.Join(t.SavePath, t.Name)
}

// FilePaths returns the absolute paths of the torrent's files
func (t *TorrentInfo) FilePaths() []string {
	paths := make([]string, 0, len(t.Files))
	for _, f := range t.Files {
		paths = append(paths, filepath.Join(t.SavePath, f.Name))
	}
	return paths
}

// splitTags parses qBittorrent's comma separated tag list
func splitTags(tags string) []string {
	if strings.TrimSpace(tags) == "" {
		return nil
	}

	parts := strings.Split(tags, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" && !slices.Contains(out, p) {
			out = append(out, p)
		}
	}
	return out
}
