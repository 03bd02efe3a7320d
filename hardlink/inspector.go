package hardlink

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// minFileShare skips files smaller than this share of the largest file.
// Samples, nfo and subtitle files are rarely hardlinked by media managers.
const minFileShare = 0.10

// DefaultMaxIndexEntries bounds the tree index built for ignore_root_dir checks
const DefaultMaxIndexEntries = 1_000_000

// File is a content file on the local filesystem
type File struct {
	Path string
	Size int64
}

// LinkResolver finds the other names of a file
type LinkResolver interface {
	// ResolveLinks returns the paths sharing data with path, excluding path
	// itself. Only names the resolver can see are returned.
	ResolveLinks(path string) ([]string, error)
}

// TreeResolver resolves links by indexing a directory tree by file identity.
// The index is built once on first use and shared by concurrent callers.
type TreeResolver struct {
	root       string
	maxEntries int
	logger     zerolog.Logger

	group singleflight.Group
	mu    sync.RWMutex
	index map[FileID][]string
	built bool
}

// NewTreeResolver creates a resolver over root
func NewTreeResolver(root string, maxEntries int, logger zerolog.Logger) *TreeResolver {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxIndexEntries
	}
	return &TreeResolver{
		root:       filepath.Clean(root),
		maxEntries: maxEntries,
		logger:     logger,
	}
}

// ResolveLinks returns the other names of path found under the root
func (r *TreeResolver) ResolveLinks(path string) ([]string, error) {
	id, links, err := Identify(path)
	if err != nil {
		return nil, err
	}
	if links <= 1 {
		return nil, nil
	}

	if err := r.ensureIndex(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	names := r.index[id]
	r.mu.RUnlock()

	clean := filepath.Clean(path)
	siblings := make([]string, 0, len(names))
	for _, name := range names {
		if name == clean {
			continue
		}
		// Names removed or replaced since the index was built no longer count
		if linked, err := AreHardlinked(clean, name); err != nil || !linked {
			continue
		}
		siblings = append(siblings, name)
	}
	return siblings, nil
}

// Reset drops the index so the next lookup rebuilds it
func (r *TreeResolver) Reset() {
	r.mu.Lock()
	r.index = nil
	r.built = false
	r.mu.Unlock()
}

func (r *TreeResolver) ensureIndex() error {
	r.mu.RLock()
	built := r.built
	r.mu.RUnlock()
	if built {
		return nil
	}

	_, err, _ := r.group.Do("index", func() (any, error) {
		r.mu.RLock()
		built := r.built
		r.mu.RUnlock()
		if built {
			return nil, nil
		}

		index, err := r.buildIndex()
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.index = index
		r.built = true
		r.mu.Unlock()
		return nil, nil
	})
	return err
}

// buildIndex records every multiply-linked file under root
func (r *TreeResolver) buildIndex() (map[FileID][]string, error) {
	index := make(map[FileID][]string)
	entries := 0
	truncated := false

	err := filepath.WalkDir(r.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsPermission(err) {
				return nil
			}
			return err
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		if d.IsDir() {
			return nil
		}

		if entries >= r.maxEntries {
			truncated = true
			return fs.SkipAll
		}
		entries++

		id, links, err := statFile(path)
		if err != nil || links <= 1 {
			return nil
		}
		index[id] = append(index[id], filepath.Clean(path))
		return nil
	})
	if err != nil {
		return nil, err
	}

	if truncated {
		r.logger.Warn().
			Str("root", r.root).
			Int("max_entries", r.maxEntries).
			Msg("Hardlink index truncated, links beyond the limit are treated as external")
	}
	r.logger.Debug().Str("root", r.root).Int("files", entries).Int("linked", len(index)).Msg("Built hardlink index")

	return index, nil
}

// Inspector decides whether torrent content has hardlinks outside the
// monitored tree
type Inspector struct {
	resolver LinkResolver
	logger   zerolog.Logger
}

// NewInspector creates an inspector using resolver for ignore_root_dir checks
func NewInspector(resolver LinkResolver, logger zerolog.Logger) *Inspector {
	return &Inspector{resolver: resolver, logger: logger}
}

// Reset forgets cached link information so the next inspection sees the
// filesystem as it is now
func (i *Inspector) Reset() {
	if r, ok := i.resolver.(interface{ Reset() }); ok {
		r.Reset()
	}
}

// HasExternalHardlink reports whether every significant file of a torrent
// has another name. With ignoreRootDir, names inside rootDir do not count,
// so a cross-seeded copy of the same data is not mistaken for a library
// import. Unreadable or empty content yields false.
func (i *Inspector) HasExternalHardlink(files []File, rootDir string, ignoreRootDir bool) bool {
	if len(files) == 0 {
		return false
	}

	var largest int64
	for _, f := range files {
		largest = max(largest, f.Size)
	}
	threshold := int64(float64(largest) * minFileShare)

	checked := 0
	for _, f := range files {
		if f.Size < threshold {
			continue
		}
		checked++

		external, err := i.externalLinks(f.Path, rootDir, ignoreRootDir)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				i.logger.Debug().Err(err).Str("file", f.Path).Msg("Failed to inspect file links")
			}
			return false
		}
		if external == 0 {
			return false
		}
	}

	return checked > 0
}

func (i *Inspector) externalLinks(path, rootDir string, ignoreRootDir bool) (uint64, error) {
	links, err := GetHardlinkCount(path)
	if err != nil {
		return 0, err
	}
	if links <= 1 {
		return 0, nil
	}

	others := links - 1
	if !ignoreRootDir || i.resolver == nil {
		return others, nil
	}

	siblings, err := i.resolver.ResolveLinks(path)
	if err != nil {
		return 0, err
	}

	inside := uint64(0)
	for _, s := range siblings {
		if isWithin(s, rootDir) {
			inside++
		}
	}
	if inside >= others {
		return 0, nil
	}
	return others - inside, nil
}

func isWithin(path, root string) bool {
	root = filepath.Clean(root)
	path = filepath.Clean(path)
	return path == root || strings.HasPrefix(path, root+string(filepath.Separator))
}
