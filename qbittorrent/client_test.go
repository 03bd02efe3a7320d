package qbittorrent

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/autobrr/go-qbittorrent"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockQBittorrentAPI implements QBittorrentAPI for testing
type mockQBittorrentAPI struct {
	apiVersion string
	loginErrs  []error
	torrents   []qbittorrent.Torrent
	files      map[string]string
	trackers   map[string][]qbittorrent.TorrentTracker

	// Track calls for verification
	loginCalls  int
	addedTags   []string
	shareLimits []float64
	deleted     map[string]bool
}

func (m *mockQBittorrentAPI) LoginCtx(ctx context.Context) error {
	m.loginCalls++
	if len(m.loginErrs) > 0 {
		err := m.loginErrs[0]
		m.loginErrs = m.loginErrs[1:]
		return err
	}
	return nil
}

func (m *mockQBittorrentAPI) GetAppVersionCtx(ctx context.Context) (string, error) {
	return "v5.0.1", nil
}

func (m *mockQBittorrentAPI) GetWebAPIVersionCtx(ctx context.Context) (string, error) {
	return m.apiVersion, nil
}

func (m *mockQBittorrentAPI) GetTorrentsCtx(ctx context.Context, o qbittorrent.TorrentFilterOptions) ([]qbittorrent.Torrent, error) {
	if len(o.Hashes) == 0 {
		return m.torrents, nil
	}
	var out []qbittorrent.Torrent
	for _, t := range m.torrents {
		for _, h := range o.Hashes {
			if t.Hash == h {
				out = append(out, t)
			}
		}
	}
	return out, nil
}

func (m *mockQBittorrentAPI) GetFilesInformationCtx(ctx context.Context, hash string) (*qbittorrent.TorrentFiles, error) {
	raw, ok := m.files[hash]
	if !ok {
		return nil, errors.New("not found")
	}
	var files qbittorrent.TorrentFiles
	if err := json.Unmarshal([]byte(raw), &files); err != nil {
		return nil, err
	}
	return &files, nil
}

func (m *mockQBittorrentAPI) GetTorrentTrackersCtx(ctx context.Context, hash string) ([]qbittorrent.TorrentTracker, error) {
	return m.trackers[hash], nil
}

func (m *mockQBittorrentAPI) ExportTorrentCtx(ctx context.Context, hash string) ([]byte, error) {
	return []byte("d4:infoe"), nil
}

func (m *mockQBittorrentAPI) AddTagsCtx(ctx context.Context, hashes []string, tags string) error {
	m.addedTags = append(m.addedTags, tags)
	return nil
}

func (m *mockQBittorrentAPI) RemoveTagsCtx(ctx context.Context, hashes []string, tags string) error {
	return nil
}

func (m *mockQBittorrentAPI) SetCategoryCtx(ctx context.Context, hashes []string, category string) error {
	return nil
}

func (m *mockQBittorrentAPI) CreateCategoryCtx(ctx context.Context, category string, path string) error {
	return nil
}

func (m *mockQBittorrentAPI) SetTorrentShareLimitCtx(ctx context.Context, hashes []string, ratioLimit float64, seedingTimeLimit int64, inactiveSeedingTimeLimit int64) error {
	m.shareLimits = append(m.shareLimits, ratioLimit)
	return nil
}

func (m *mockQBittorrentAPI) SetTorrentUploadLimitCtx(ctx context.Context, hashes []string, limit int64) error {
	return nil
}

func (m *mockQBittorrentAPI) PauseCtx(ctx context.Context, hashes []string) error { return nil }
func (m *mockQBittorrentAPI) ResumeCtx(ctx context.Context, hashes []string) error { return nil }
func (m *mockQBittorrentAPI) RecheckCtx(ctx context.Context, hashes []string) error { return nil }

func (m *mockQBittorrentAPI) DeleteTorrentsCtx(ctx context.Context, hashes []string, deleteFiles bool) error {
	if m.deleted == nil {
		m.deleted = make(map[string]bool)
	}
	for _, h := range hashes {
		m.deleted[h] = deleteFiles
	}
	return nil
}

func newTestClient(t *testing.T, api *mockQBittorrentAPI) *Client {
	t.Helper()
	if api.apiVersion == "" {
		api.apiVersion = "2.11.2"
	}
	client, err := NewClientWithAPI(context.Background(), api, zerolog.Nop(), WithRetryDelay(0))
	require.NoError(t, err)
	return client
}

func TestNewClientRetriesLogin(t *testing.T) {
	api := &mockQBittorrentAPI{
		apiVersion: "2.11.2",
		loginErrs:  []error{errors.New("connection refused"), errors.New("connection refused")},
	}

	client, err := NewClientWithAPI(context.Background(), api, zerolog.Nop(), WithMaxRetries(3), WithRetryDelay(0))
	require.NoError(t, err)
	assert.Equal(t, 3, api.loginCalls)
	assert.Equal(t, "v5.0.1", client.Version())
	assert.Equal(t, "2.11.2", client.WebAPIVersion().String())
}

func TestNewClientLoginFailure(t *testing.T) {
	api := &mockQBittorrentAPI{
		apiVersion: "2.11.2",
		loginErrs:  []error{errors.New("a"), errors.New("b"), errors.New("c")},
	}

	_, err := NewClientWithAPI(context.Background(), api, zerolog.Nop(), WithMaxRetries(1), WithRetryDelay(0))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnectionFailed)
	assert.Equal(t, 2, api.loginCalls)
}

func TestNewClientRejectsOldWebAPI(t *testing.T) {
	api := &mockQBittorrentAPI{apiVersion: "2.8.3"}

	_, err := NewClientWithAPI(context.Background(), api, zerolog.Nop())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestGetAllTorrentsConvertsFields(t *testing.T) {
	now := time.Now().Unix()
	api := &mockQBittorrentAPI{
		torrents: []qbittorrent.Torrent{{
			Hash:                     "abc",
			Name:                     "Some.Release",
			SavePath:                 "/data/torrents",
			State:                    qbittorrent.TorrentStateStalledUp,
			Ratio:                    1.23456,
			SeedingTime:              3600,
			LastActivity:             now,
			Tags:                     "noHL, ~share_limit_1.default,noHL",
			RatioLimit:               -2,
			SeedingTimeLimit:         -2,
			InactiveSeedingTimeLimit: 1440,
			UpLimit:                  -1,
		}},
	}
	client := newTestClient(t, api)

	torrents, err := client.GetAllTorrents(context.Background())
	require.NoError(t, err)
	require.Len(t, torrents, 1)

	got := torrents[0]
	assert.Equal(t, []string{"noHL", "~share_limit_1.default"}, got.Tags)
	assert.Equal(t, 1.23, got.Ratio)
	assert.Equal(t, time.Hour, got.SeedingTime)
	assert.Equal(t, now, got.LastActivity.Unix())
	assert.True(t, got.AddedOn.IsZero())
	assert.True(t, got.IsActivelySeeding())
	assert.Equal(t, float64(-2), got.RatioLimit)
	assert.Equal(t, int64(1440), got.InactiveSeedingTimeLimit)
	assert.Equal(t, "/data/torrents/Some.Release", got.GetFullPath())
}

func TestGetTorrentNotFound(t *testing.T) {
	client := newTestClient(t, &mockQBittorrentAPI{})

	_, err := client.GetTorrent(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrTorrentNotFound)
}

func TestLoadFiles(t *testing.T) {
	api := &mockQBittorrentAPI{
		files: map[string]string{
			"a": `[{"name":"Show/ep1.mkv","size":100},{"name":"Show/ep1.nfo","size":1}]`,
		},
	}
	client := newTestClient(t, api)

	torrents := []*TorrentInfo{
		{Hash: "a", SavePath: "/data"},
		{Hash: "b", SavePath: "/data"},
	}
	failed := client.LoadFiles(context.Background(), torrents, 2)

	require.Len(t, torrents[0].Files, 2)
	assert.Equal(t, FileInfo{Name: "Show/ep1.mkv", Size: 100}, torrents[0].Files[0])
	assert.Equal(t, []string{"/data/Show/ep1.mkv", "/data/Show/ep1.nfo"}, torrents[0].FilePaths())
	assert.Contains(t, failed, "b")
	assert.Empty(t, torrents[1].Files)
}

func TestGetTrackersSkipsPseudoTrackers(t *testing.T) {
	api := &mockQBittorrentAPI{
		trackers: map[string][]qbittorrent.TorrentTracker{
			"a": {
				{Url: "** [DHT] **", Status: qbittorrent.TrackerStatusOK},
				{Url: "https://tracker.example/announce", Status: qbittorrent.TrackerStatusNotWorking, Message: "Unregistered torrent"},
			},
		},
	}
	client := newTestClient(t, api)

	trackers, err := client.GetTrackers(context.Background(), "a")
	require.NoError(t, err)
	require.Len(t, trackers, 1)
	assert.Equal(t, TrackerNotWorking, trackers[0].Status)
	assert.Equal(t, "Unregistered torrent", UnregisteredMessage(trackers))
}

func TestTagMutations(t *testing.T) {
	api := &mockQBittorrentAPI{}
	client := newTestClient(t, api)
	ctx := context.Background()

	require.NoError(t, client.AddTags(ctx, []string{"a"}, []string{"x", "y"}))
	require.NoError(t, client.AddTags(ctx, nil, []string{"z"}))
	assert.Equal(t, []string{"x,y"}, api.addedTags)

	require.NoError(t, client.SetShareLimits(ctx, []string{"a"}, 2, 1440, -2))
	assert.Equal(t, []float64{2}, api.shareLimits)

	require.NoError(t, client.DeleteTorrents(ctx, []string{"a"}, true))
	assert.True(t, api.deleted["a"])
}
