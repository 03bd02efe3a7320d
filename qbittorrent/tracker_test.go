package qbittorrent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsUnregisteredMessage(t *testing.T) {
	tests := []struct {
		msg  string
		want bool
	}{
		{"Unregistered torrent", true},
		{"Torrent not found", true},
		{"torrent has been deleted", true},
		{"Trumped by a better release", true},
		{"InfoHash not found.", true},
		{"", false},
		{"Timed out", false},
		{"Passkey not found", false},
		{"Torrent has been postponed", false},
		{"Stream truncated", false},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			assert.Equal(t, tt.want, IsUnregisteredMessage(tt.msg))
		})
	}
}

func TestHasWorkingTracker(t *testing.T) {
	assert.False(t, HasWorkingTracker(nil))
	assert.True(t, HasWorkingTracker([]TrackerInfo{
		{URL: "udp://tracker.example:1337/announce", Status: TrackerWorking},
	}))
	assert.False(t, HasWorkingTracker([]TrackerInfo{
		{URL: "magnet:?xt=urn", Status: TrackerWorking},
		{URL: "https://t.example/announce", Status: TrackerUpdating},
	}))
}

func TestTrackerError(t *testing.T) {
	broken := []TrackerInfo{
		{URL: "https://a.example/announce", Status: TrackerNotWorking, Message: "Gateway Timeout"},
		{URL: "https://b.example/announce", Status: TrackerNotWorking, Message: "Connection refused"},
	}
	assert.Equal(t, "Connection refused", TrackerError(broken))

	withWorking := append(broken, TrackerInfo{URL: "https://c.example/announce", Status: TrackerWorking})
	assert.Empty(t, TrackerError(withWorking))

	assert.Equal(t, "not working", TrackerError([]TrackerInfo{
		{URL: "https://a.example/announce", Status: TrackerNotWorking},
	}))
}

func TestTrackerHost(t *testing.T) {
	assert.Equal(t, "tracker.example", TrackerHost("https://tracker.example:443/abc/announce"))
	assert.Empty(t, TrackerHost("::not a url"))
}

func TestTorrentStates(t *testing.T) {
	paused := &TorrentInfo{State: "stoppedUP", Progress: 1}
	assert.True(t, paused.IsPaused())
	assert.True(t, paused.IsComplete())
	assert.False(t, paused.IsChecking())

	now := time.Now()
	active := &TorrentInfo{LastActivity: now.Add(-2 * time.Hour), Tags: []string{"a", "b"}}
	assert.Equal(t, 2*time.Hour, active.InactiveFor(now))
	assert.True(t, active.HasAnyTag([]string{"z", "b"}))
	assert.False(t, active.HasTag("c"))
}

func TestPathMapper(t *testing.T) {
	m := NewPathMapper("/downloads", "/mnt/downloads")
	assert.Equal(t, "/mnt/downloads/movies/a.mkv", m.ToLocal("/downloads/movies/a.mkv"))
	assert.Equal(t, "/mnt/downloads", m.ToLocal("/downloads"))
	assert.Equal(t, "/other/a.mkv", m.ToLocal("/other/a.mkv"))
	assert.Equal(t, "/downloadsX/a", m.ToLocal("/downloadsX/a"))
	assert.Equal(t, "/downloads/tv", m.ToClient("/mnt/downloads/tv"))

	same := NewPathMapper("", "")
	assert.Equal(t, "/x/y", same.ToLocal("/x/y"))
}
