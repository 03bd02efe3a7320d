package orphan

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func writeAged(t *testing.T, fs afero.Fs, path string, age time.Duration) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, path, []byte("orphan:"+path), 0o644))
	stamp := fixedNow.Add(-age)
	require.NoError(t, fs.Chtimes(path, stamp, stamp))
}

func TestPattern(t *testing.T) {
	tests := []struct {
		pattern string
		path    string
		want    bool
	}{
		{"**/.DS_Store", "/data/tv/Show/.DS_Store", true},
		{"*.!qB", "/data/tv/partial.mkv.!qB", true},
		{"/data/temp/*", "/data/temp/a/b/c.mkv", true},
		{"/data/temp/*", "/data/tempo/c.mkv", false},
		{"/data/*/sample?.mkv", "/data/tv/sample1.mkv", true},
		{"/data/*/sample[0-9].mkv", "/data/tv/sampleA.mkv", false},
		{"/data/*/sample[!0-9].mkv", "/data/tv/sampleA.mkv", true},
		{"/data/[abc", "/data/[abc", true},
		{"/data/a+b(1).mkv", "/data/a+b(1).mkv", true},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+" "+tt.path, func(t *testing.T) {
			p, err := CompilePattern(tt.pattern)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Match(tt.path))
		})
	}
}

func TestFileSet(t *testing.T) {
	s := NewFileSet()
	s.Add("/data/tv/../tv/a.mkv")
	assert.True(t, s.Has("/data/tv/a.mkv"))
	assert.False(t, s.Has("/data/tv/b.mkv"))
	assert.Equal(t, 1, s.Len())
}

func TestScanRelocates(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeAged(t, fs, "/data/tv/Show/e01.mkv", 48*time.Hour)
	writeAged(t, fs, "/data/tv/Old/leftover.nfo", 48*time.Hour)
	writeAged(t, fs, "/data/tv/Old/Sub/leftover.srt", 48*time.Hour)
	writeAged(t, fs, "/data/tv/fresh.mkv", time.Minute)
	writeAged(t, fs, "/data/tv/Show/.DS_Store", 48*time.Hour)
	writeAged(t, fs, "/data/.RecycleBin/tv/x.mkv", 48*time.Hour)
	writeAged(t, fs, "/data/orphaned_data/earlier.mkv", 48*time.Hour)

	known := NewFileSet()
	known.Add("/data/tv/Show/e01.mkv")

	s := NewScanner(fs, zerolog.Nop(), WithClock(clock))
	res, err := s.Scan(context.Background(), Config{
		RootDir:         "/data",
		OrphanedDir:     "/data/orphaned_data",
		IgnoreDirs:      []string{"/data/.RecycleBin"},
		ExcludePatterns: []string{"**/.DS_Store"},
		MinAge:          time.Hour,
		MaxDeletions:    -1,
	}, known)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Excluded)
	assert.Equal(t, 1, res.TooYoung)
	require.Len(t, res.Moved, 2)
	assert.Equal(t, Relocation{From: "/data/tv/Old/Sub/leftover.srt", To: "/data/orphaned_data/tv/Old/Sub/leftover.srt"}, res.Moved[0])
	assert.Equal(t, 2, res.DirsRemoved)

	info, err := fs.Stat("/data/orphaned_data/tv/Old/leftover.nfo")
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(fixedNow))

	exists, _ := afero.DirExists(fs, "/data/tv/Old")
	assert.False(t, exists)
	exists, _ = afero.DirExists(fs, "/data/tv")
	assert.True(t, exists)
	exists, _ = afero.Exists(fs, "/data/.RecycleBin/tv/x.mkv")
	assert.True(t, exists)
}

func TestScanSafeguard(t *testing.T) {
	newTree := func() afero.Fs {
		fs := afero.NewMemMapFs()
		for i := range 6 {
			writeAged(t, fs, fmt.Sprintf("/data/stray/file%d.bin", i), 72*time.Hour)
		}
		return fs
	}

	fs := newTree()
	s := NewScanner(fs, zerolog.Nop(), WithClock(clock))
	res, err := s.Scan(context.Background(), Config{RootDir: "/data", OrphanedDir: "/orphans", MaxDeletions: 5}, NewFileSet())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSafeguard))
	var sg *SafeguardError
	require.ErrorAs(t, err, &sg)
	assert.Equal(t, 6, sg.Found)
	assert.Len(t, res.Orphans, 6)
	assert.Empty(t, res.Moved)
	exists, _ := afero.Exists(fs, "/data/stray/file0.bin")
	assert.True(t, exists)

	fs = newTree()
	s = NewScanner(fs, zerolog.Nop(), WithClock(clock))
	res, err = s.Scan(context.Background(), Config{RootDir: "/data", OrphanedDir: "/orphans", MaxDeletions: -1}, NewFileSet())
	require.NoError(t, err)
	assert.Len(t, res.Moved, 6)
}

func TestScanDryRun(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeAged(t, fs, "/data/stray.bin", 72*time.Hour)

	s := NewScanner(fs, zerolog.Nop(), WithClock(clock), WithDryRun(true))
	res, err := s.Scan(context.Background(), Config{RootDir: "/data", OrphanedDir: "/orphans", MaxDeletions: 10}, NewFileSet())
	require.NoError(t, err)
	assert.True(t, res.DryRun)
	assert.Len(t, res.Orphans, 1)
	assert.Empty(t, res.Moved)
}

func TestScanMissingRoot(t *testing.T) {
	s := NewScanner(afero.NewMemMapFs(), zerolog.Nop())
	_, err := s.Scan(context.Background(), Config{RootDir: "/nope", OrphanedDir: "/orphans"}, NewFileSet())
	assert.Error(t, err)
}
