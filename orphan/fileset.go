package orphan

import (
	"path/filepath"
	"runtime"
	"strings"
	"sync"
)

// FileSet is a thread-safe set of the file paths torrents reference
type FileSet struct {
	paths map[string]struct{}
	mu    sync.RWMutex
}

// NewFileSet creates an empty FileSet
func NewFileSet() *FileSet {
	return &FileSet{
		paths: make(map[string]struct{}),
	}
}

// Add adds path to the set
func (s *FileSet) Add(path string) {
	s.mu.Lock()
	s.paths[normalizePath(path)] = struct{}{}
	s.mu.Unlock()
}

// Has reports whether path is in the set
func (s *FileSet) Has(path string) bool {
	s.mu.RLock()
	_, ok := s.paths[normalizePath(path)]
	s.mu.RUnlock()
	return ok
}

// Len returns the number of paths in the set
func (s *FileSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.paths)
}

// normalizePath cleans a path for comparison. Windows paths are case-folded
// to match the filesystem.
func normalizePath(path string) string {
	p := filepath.Clean(path)
	if runtime.GOOS == "windows" {
		p = strings.ToLower(p)
	}
	return p
}
