package recyclebin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/spf13/afero"

	"github.com/s0up4200/seedkeeper/fsops"
)

const maxFilenameLength = 255

// sidecar is the JSON document saved next to backed up .torrent files. One
// sidecar per torrent name accumulates the files of every tracker the
// torrent was cross-seeded on.
type sidecar struct {
	TorrentName         string              `json:"torrent_name"`
	Category            string              `json:"category"`
	Files               []string            `json:"files"`
	DeletedContents     bool                `json:"deleted_contents"`
	TrackerTorrentFiles map[string][]string `json:"tracker_torrent_files"`
}

// saveTorrent exports the .torrent, copies the client's resume files and
// writes or updates the sidecar. It returns the paths written.
func (b *Bin) saveTorrent(ctx context.Context, root string, item Item) ([]string, error) {
	var (
		written []string
		names   []string
		errs    []error
	)

	if b.exporter != nil {
		data, err := b.exporter.ExportTorrent(ctx, item.Hash)
		if err != nil {
			errs = append(errs, fmt.Errorf("export torrent: %w", err))
		} else {
			name := truncateFilename(fmt.Sprintf("%s [%s].torrent", item.Name, hashSuffix(item.Hash)), maxFilenameLength, len(hashSuffix(item.Hash))+len(" [].torrent"))
			dst := filepath.Join(root, torrentsExportDir, name)
			if err := b.writeFile(dst, data); err != nil {
				errs = append(errs, err)
			} else {
				written = append(written, dst)
				names = append(names, name)
			}
		}
	}

	if b.cfg.TorrentsDir != "" {
		entries, err := afero.ReadDir(b.fs, b.cfg.TorrentsDir)
		if err != nil {
			errs = append(errs, fmt.Errorf("read torrents dir: %w", err))
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasPrefix(e.Name(), item.Hash) {
				continue
			}
			dst := filepath.Join(root, torrentsDir, e.Name())
			if err := fsops.Copy(b.fs, filepath.Join(b.cfg.TorrentsDir, e.Name()), dst); err != nil {
				errs = append(errs, err)
				continue
			}
			written = append(written, dst)
			names = append(names, e.Name())
		}
	}

	path := filepath.Join(root, torrentsJSONDir, truncateFilename(item.Name+".json", maxFilenameLength, len(".json")))
	doc, err := b.readSidecar(path)
	if err != nil {
		errs = append(errs, err)
	}
	if doc.TorrentName == "" {
		doc.TorrentName = item.Name
		doc.Category = item.Category
	}
	if doc.TrackerTorrentFiles == nil {
		doc.TrackerTorrentFiles = make(map[string][]string)
	}
	doc.TrackerTorrentFiles[item.Tracker] = names
	if doc.Files == nil {
		doc.Files = make([]string, 0, len(item.Files))
		for _, f := range item.Files {
			doc.Files = append(doc.Files, b.relative(item.SavePath, f))
		}
	}
	doc.DeletedContents = doc.DeletedContents || item.DeleteContents

	data, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return written, errors.Join(append(errs, err)...)
	}
	if err := b.writeFile(path, data); err != nil {
		errs = append(errs, err)
	} else {
		written = append(written, path)
	}

	return written, errors.Join(errs...)
}

func (b *Bin) readSidecar(path string) (sidecar, error) {
	var doc sidecar
	data, err := afero.ReadFile(b.fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return doc, nil
		}
		return doc, fmt.Errorf("read sidecar: %w", err)
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return sidecar{}, fmt.Errorf("parse sidecar %s: %w", path, err)
	}
	return doc, nil
}

func (b *Bin) writeFile(path string, data []byte) error {
	if err := b.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	if err := afero.WriteFile(b.fs, path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func hashSuffix(hash string) string {
	if len(hash) <= 8 {
		return hash
	}
	return hash[len(hash)-8:]
}

// truncateFilename shortens name to at most limit bytes, keeping the last
// keep bytes intact
func truncateFilename(name string, limit, keep int) string {
	if len(name) <= limit {
		return name
	}
	keep = min(keep, limit)
	head := name[:limit-keep]
	for !utf8.ValidString(head) && len(head) > 0 {
		head = head[:len(head)-1]
	}
	return head + name[len(name)-keep:]
}
