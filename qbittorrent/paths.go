package qbittorrent

import (
	"path/filepath"
	"strings"
)

// PathMapper translates between paths as qBittorrent reports them and the
// same locations as seen by this process (for example inside a container).
type PathMapper struct {
	Root   string
	Remote string
}

// NewPathMapper returns a mapper from root (client view) to remote (local view)
func NewPathMapper(root, remote string) PathMapper {
	return PathMapper{Root: filepath.Clean(root), Remote: filepath.Clean(remote)}
}

// ToLocal maps a client path to the local filesystem
func (m PathMapper) ToLocal(p string) string {
	return replacePrefix(p, m.Root, m.Remote)
}

// ToClient maps a local path back to the client's view
func (m PathMapper) ToClient(p string) string {
	return replacePrefix(p, m.Remote, m.Root)
}

func replacePrefix(p, from, to string) string {
	if from == "" || from == "." || from == to {
		return p
	}
	rel, err := filepath.Rel(from, filepath.Clean(p))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return p
	}
	return filepath.Join(to, rel)
}
