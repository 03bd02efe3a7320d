package qbittorrent

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/autobrr/go-qbittorrent"
	"github.com/avast/retry-go"
	"github.com/blang/semver"
	"github.com/rs/zerolog"
)

// minWebAPIVersion is the first Web API exposing per-torrent inactive
// seeding limits (qBittorrent 4.6).
var minWebAPIVersion = semver.MustParse("2.9.2")

// Client wraps the qBittorrent API client
type Client struct {
	client     QBittorrentAPI
	logger     zerolog.Logger
	opts       clientOptions
	appVersion string
	apiVersion semver.Version
}

// NewClient creates a new qBittorrent client and logs in
func NewClient(ctx context.Context, url, username, password string, logger zerolog.Logger, opts ...Option) (*Client, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	client := qbittorrent.NewClient(qbittorrent.Config{
		Host:          url,
		Username:      username,
		Password:      password,
		BasicUser:     o.basicUser,
		BasicPass:     o.basicPass,
		TLSSkipVerify: o.tlsSkipVerify,
		Timeout:       int(o.timeout.Seconds()),
	})

	return newClient(ctx, client, logger, o)
}

// NewClientWithAPI builds a Client around an existing API implementation
func NewClientWithAPI(ctx context.Context, api QBittorrentAPI, logger zerolog.Logger, opts ...Option) (*Client, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return newClient(ctx, api, logger, o)
}

func newClient(ctx context.Context, api QBittorrentAPI, logger zerolog.Logger, o clientOptions) (*Client, error) {
	c := &Client{
		client: api,
		logger: logger,
		opts:   o,
	}

	// Test connection by logging in
	if err := c.retry(ctx, func() error { return api.LoginCtx(ctx) }); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	if err := c.checkVersion(ctx); err != nil {
		return nil, err
	}

	c.logger.Debug().
		Str("app_version", c.appVersion).
		Str("web_api_version", c.apiVersion.String()).
		Msg("Connected to qBittorrent")

	return c, nil
}

func (c *Client) checkVersion(ctx context.Context) error {
	raw, err := c.client.GetWebAPIVersionCtx(ctx)
	if err != nil {
		return fmt.Errorf("failed to get web API version: %w", err)
	}

	v, err := semver.ParseTolerant(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("failed to parse web API version %q: %w", raw, err)
	}
	if v.LT(minWebAPIVersion) {
		return fmt.Errorf("%w: %s (need >= %s)", ErrUnsupportedVersion, v, minWebAPIVersion)
	}
	c.apiVersion = v

	if app, err := c.client.GetAppVersionCtx(ctx); err == nil {
		c.appVersion = app
	}
	return nil
}

// Version returns the qBittorrent application version
func (c *Client) Version() string {
	return c.appVersion
}

// WebAPIVersion returns the negotiated Web API version
func (c *Client) WebAPIVersion() semver.Version {
	return c.apiVersion
}

// retry runs fn with the configured attempts and delay
func (c *Client) retry(ctx context.Context, fn func() error) error {
	return retry.Do(fn,
		retry.Context(ctx),
		retry.Attempts(uint(c.opts.maxRetries)+1),
		retry.Delay(c.opts.retryDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Debug().Err(err).Uint("attempt", n+1).Msg("Retrying qBittorrent request")
		}),
	)
}

// GetAllTorrents retrieves all torrents from qBittorrent
func (c *Client) GetAllTorrents(ctx context.Context) ([]*TorrentInfo, error) {
	return c.GetTorrents(ctx, nil)
}

// GetTorrents retrieves the torrents with the given hashes, or all torrents
// when hashes is empty
func (c *Client) GetTorrents(ctx context.Context, hashes []string) ([]*TorrentInfo, error) {
	var torrents []qbittorrent.Torrent
	err := c.retry(ctx, func() error {
		var err error
		torrents, err = c.client.GetTorrentsCtx(ctx, qbittorrent.TorrentFilterOptions{Hashes: hashes})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get torrents: %w", err)
	}

	c.logger.Debug().Msgf("Retrieved %d torrents from qBittorrent", len(torrents))

	results := make([]*TorrentInfo, 0, len(torrents))
	for _, t := range torrents {
		results = append(results, convertTorrent(t))
	}

	return results, nil
}

// GetTorrent returns a single torrent by hash
func (c *Client) GetTorrent(ctx context.Context, hash string) (*TorrentInfo, error) {
	torrents, err := c.GetTorrents(ctx, []string{hash})
	if err != nil {
		return nil, err
	}
	if len(torrents) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrTorrentNotFound, hash)
	}
	return torrents[0], nil
}

func convertTorrent(t qbittorrent.Torrent) *TorrentInfo {
	info := &TorrentInfo{
		Hash:                     t.Hash,
		Name:                     t.Name,
		SavePath:                 t.SavePath,
		ContentPath:              t.ContentPath,
		State:                    string(t.State),
		Size:                     t.Size,
		Progress:                 t.Progress,
		Ratio:                    roundRatio(t.Ratio),
		SeedingTime:              time.Duration(t.SeedingTime) * time.Second,
		NumComplete:              t.NumComplete,
		Category:                 t.Category,
		Tags:                     splitTags(t.Tags),
		Tracker:                  t.Tracker,
		RatioLimit:               roundRatio(t.RatioLimit),
		SeedingTimeLimit:         t.SeedingTimeLimit,
		InactiveSeedingTimeLimit: t.InactiveSeedingTimeLimit,
		UpLimit:                  t.UpLimit,
	}

	if t.LastActivity > 0 {
		info.LastActivity = time.Unix(t.LastActivity, 0)
	}
	if t.AddedOn > 0 {
		info.AddedOn = time.Unix(t.AddedOn, 0)
	}
	if t.CompletionOn > 0 {
		info.CompletionOn = time.Unix(t.CompletionOn, 0)
	}

	return info
}

// roundRatio rounds to two decimals, the precision the WebUI displays
func roundRatio(r float64) float64 {
	return math.Round(r*100) / 100
}

// GetTorrentFiles gets the list of files in a torrent
func (c *Client) GetTorrentFiles(ctx context.Context, hash string) ([]FileInfo, error) {
	files, err := c.client.GetFilesInformationCtx(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("failed to get torrent files: %w", err)
	}

	var result []FileInfo
	if files != nil {
		result = make([]FileInfo, 0, len(*files))
		for _, f := range *files {
			result = append(result, FileInfo{Name: f.Name, Size: f.Size})
		}
	}

	return result, nil
}

// GetTrackers returns the announce entries of a torrent, skipping the
// DHT/PeX/LSD pseudo trackers
func (c *Client) GetTrackers(ctx context.Context, hash string) ([]TrackerInfo, error) {
	trackers, err := c.client.GetTorrentTrackersCtx(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("failed to get torrent trackers: %w", err)
	}

	result := make([]TrackerInfo, 0, len(trackers))
	for _, tr := range trackers {
		if strings.HasPrefix(tr.Url, "** [") {
			continue
		}
		result = append(result, TrackerInfo{
			URL:     tr.Url,
			Status:  convertTrackerStatus(tr.Status),
			Message: tr.Message,
		})
	}
	return result, nil
}

// ExportTorrent returns the .torrent file contents
func (c *Client) ExportTorrent(ctx context.Context, hash string) ([]byte, error) {
	data, err := c.client.ExportTorrentCtx(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("failed to export torrent %s: %w", hash, err)
	}
	return data, nil
}

// AddTags adds tags to the given torrents
func (c *Client) AddTags(ctx context.Context, hashes, tags []string) error {
	if len(hashes) == 0 || len(tags) == 0 {
		return nil
	}
	if err := c.client.AddTagsCtx(ctx, hashes, strings.Join(tags, ",")); err != nil {
		return fmt.Errorf("failed to add tags %v: %w", tags, err)
	}
	return nil
}

// RemoveTags removes tags from the given torrents
func (c *Client) RemoveTags(ctx context.Context, hashes, tags []string) error {
	if len(hashes) == 0 || len(tags) == 0 {
		return nil
	}
	if err := c.client.RemoveTagsCtx(ctx, hashes, strings.Join(tags, ",")); err != nil {
		return fmt.Errorf("failed to remove tags %v: %w", tags, err)
	}
	return nil
}

// SetCategory moves torrents into category
func (c *Client) SetCategory(ctx context.Context, hashes []string, category string) error {
	if err := c.client.SetCategoryCtx(ctx, hashes, category); err != nil {
		return fmt.Errorf("failed to set category %q: %w", category, err)
	}
	return nil
}

// CreateCategory creates a category, an empty path uses the default save path
func (c *Client) CreateCategory(ctx context.Context, name, path string) error {
	if err := c.client.CreateCategoryCtx(ctx, name, path); err != nil {
		return fmt.Errorf("failed to create category %q: %w", name, err)
	}
	return nil
}

// SetShareLimits sets ratio, seeding minutes and inactive minutes limits
func (c *Client) SetShareLimits(ctx context.Context, hashes []string, ratio float64, seedingMinutes, inactiveMinutes int64) error {
	if err := c.client.SetTorrentShareLimitCtx(ctx, hashes, ratio, seedingMinutes, inactiveMinutes); err != nil {
		return fmt.Errorf("failed to set share limits: %w", err)
	}
	return nil
}

// SetUploadLimit caps upload speed in bytes per second, -1 removes the cap
func (c *Client) SetUploadLimit(ctx context.Context, hashes []string, bytesPerSecond int64) error {
	if err := c.client.SetTorrentUploadLimitCtx(ctx, hashes, bytesPerSecond); err != nil {
		return fmt.Errorf("failed to set upload limit: %w", err)
	}
	return nil
}

// Pause pauses (stops) torrents
func (c *Client) Pause(ctx context.Context, hashes []string) error {
	if err := c.client.PauseCtx(ctx, hashes); err != nil {
		return fmt.Errorf("failed to pause torrents: %w", err)
	}
	return nil
}

// Resume resumes (starts) torrents
func (c *Client) Resume(ctx context.Context, hashes []string) error {
	if err := c.client.ResumeCtx(ctx, hashes); err != nil {
		return fmt.Errorf("failed to resume torrents: %w", err)
	}
	return nil
}

// Recheck forces a hash check of torrents
func (c *Client) Recheck(ctx context.Context, hashes []string) error {
	if err := c.client.RecheckCtx(ctx, hashes); err != nil {
		return fmt.Errorf("failed to recheck torrents: %w", err)
	}
	return nil
}

// DeleteTorrents removes torrents, with their data when deleteFiles is set
func (c *Client) DeleteTorrents(ctx context.Context, hashes []string, deleteFiles bool) error {
	if err := c.client.DeleteTorrentsCtx(ctx, hashes, deleteFiles); err != nil {
		return fmt.Errorf("failed to delete torrents: %w", err)
	}

	c.logger.Debug().Strs("hashes", hashes).Bool("delete_files", deleteFiles).Msg("Deleted torrents")
	return nil
}
