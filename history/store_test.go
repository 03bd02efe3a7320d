package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s0up4200/seedkeeper/engine"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "data", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func summaryAt(runID string, started time.Time) *engine.Summary {
	s := &engine.Summary{
		RunID:      runID,
		Config:     "/config/config.yml",
		Commands:   []string{"share_limits", "rem_orphaned"},
		StartedAt:  started,
		FinishedAt: started.Add(3 * time.Second),
		Torrents:   42,
		Decisions:  map[string]int{"no_action": 40, "delete_with_contents": 2},
	}
	s.CleanedShareLimits = 2
	s.Orphaned = 7
	return s
}

func TestRecordAndGet(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	started := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Record(ctx, "api", summaryAt("run-1", started), nil))

	entry, err := store.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "api", entry.Source)
	assert.Empty(t, entry.Failure)
	require.NotNil(t, entry.Summary)
	assert.Equal(t, 42, entry.Summary.Torrents)
	assert.Equal(t, 2, entry.Summary.CleanedShareLimits)
	assert.Equal(t, 7, entry.Summary.Orphaned)
	assert.Equal(t, []string{"share_limits", "rem_orphaned"}, entry.Summary.Commands)
	assert.True(t, entry.Summary.StartedAt.Equal(started))

	_, err = store.Get(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestRecordFailure(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, "schedule", summaryAt("run-x", time.Now()), errors.New("client unreachable")))
	entry, err := store.Get(ctx, "run-x")
	require.NoError(t, err)
	assert.Equal(t, "client unreachable", entry.Failure)

	assert.Error(t, store.Record(ctx, "api", nil, nil))
}

func TestListNewestFirstAndPrune(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// Sub-second offsets check that stored times sort correctly as text
	offsets := []time.Duration{0, 500 * time.Millisecond, time.Second, 90 * time.Second}
	for i, off := range offsets {
		require.NoError(t, store.Record(ctx, "api", summaryAt(string(rune('a'+i)), base.Add(off)), nil))
	}

	entries, err := store.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 4)
	var ids []string
	for _, e := range entries {
		ids = append(ids, e.Summary.RunID)
	}
	assert.Equal(t, []string{"d", "c", "b", "a"}, ids)

	entries, err = store.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	removed, err := store.Prune(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), removed)

	entries, err = store.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "d", entries[0].Summary.RunID)
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	store, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, store.Record(context.Background(), "api", summaryAt("keep", time.Now()), nil))
	require.NoError(t, store.Close())

	store, err = Open(path)
	require.NoError(t, err)
	defer store.Close()

	entries, err := store.List(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
