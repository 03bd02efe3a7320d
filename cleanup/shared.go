package cleanup

import (
	"path/filepath"
	"slices"

	"github.com/cespare/xxhash/v2"
)

// fileIndex maps content paths and files to the torrent referencing them
type fileIndex struct {
	content map[string]string
	files   map[string]string
}

func newFileIndex() *fileIndex {
	return &fileIndex{
		content: make(map[string]string),
		files:   make(map[string]string),
	}
}

func (x *fileIndex) add(hash, contentPath string, files []string) {
	if contentPath != "" && contentPath != "." {
		if _, ok := x.content[contentPath]; !ok {
			x.content[contentPath] = hash
		}
	}
	for _, f := range files {
		f = filepath.Clean(f)
		if _, ok := x.files[f]; !ok {
			x.files[f] = hash
		}
	}
}

// overlaps returns a torrent sharing the content path or any file
func (x *fileIndex) overlaps(contentPath string, files []string) (string, bool) {
	if hash, ok := x.content[contentPath]; ok {
		return hash, true
	}
	for _, f := range files {
		if hash, ok := x.files[filepath.Clean(f)]; ok {
			return hash, true
		}
	}
	return "", false
}

// signature identifies a file set independent of order
func signature(files []string) uint64 {
	sorted := slices.Clone(files)
	slices.Sort(sorted)

	d := xxhash.New()
	for _, f := range sorted {
		d.WriteString(filepath.Clean(f))
		d.Write([]byte{0})
	}
	return d.Sum64()
}
