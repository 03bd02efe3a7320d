// Package fsops holds the filesystem primitives shared by the recycle bin,
// the retention sweeper and the orphaned file scanner. Everything goes
// through afero so the callers can be tested against an in-memory tree.
package fsops

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/afero"
)

// partSuffix marks a copy in progress when a move has to cross devices
const partSuffix = ".seedkeeper.part"

// Within reports whether target lies strictly below root
func Within(root, target string) bool {
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(target))
	if err != nil || rel == "." {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Move moves the file src to dst, creating dst's parents. A rename is tried
// first; across devices the file is copied next to dst and renamed into
// place so dst never holds a partial file. A non-zero stamp becomes dst's
// modification time.
func Move(fs afero.Fs, src, dst string, stamp time.Time) error {
	info, err := fs.Stat(src)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("refusing to move directory %s", src)
	}

	if err := fs.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(dst), err)
	}

	if err := fs.Rename(src, dst); err != nil {
		if !errors.Is(err, syscall.EXDEV) {
			return fmt.Errorf("rename %s: %w", src, err)
		}
		if err := copyFile(fs, src, dst, info.Mode()); err != nil {
			return err
		}
		if err := fs.Remove(src); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s after copy: %w", src, err)
		}
	}

	if !stamp.IsZero() {
		if err := fs.Chtimes(dst, stamp, stamp); err != nil {
			return fmt.Errorf("set mtime on %s: %w", dst, err)
		}
	}
	return nil
}

// Copy copies the file src to dst, creating dst's parents
func Copy(fs afero.Fs, src, dst string) error {
	info, err := fs.Stat(src)
	if err != nil {
		return err
	}
	if err := fs.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(dst), err)
	}
	return copyFile(fs, src, dst, info.Mode())
}

func copyFile(fs afero.Fs, src, dst string, mode os.FileMode) error {
	in, err := fs.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	part := dst + partSuffix
	out, err := fs.OpenFile(part, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode.Perm())
	if err != nil {
		return fmt.Errorf("create %s: %w", part, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		fs.Remove(part)
		return fmt.Errorf("copy %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		fs.Remove(part)
		return fmt.Errorf("close %s: %w", part, err)
	}

	if err := fs.Rename(part, dst); err != nil {
		fs.Remove(part)
		return fmt.Errorf("rename %s: %w", part, err)
	}
	return nil
}

// PruneEmptyDirs removes the empty directories below root, deepest first,
// so directories emptied by their children's removal go too. root itself
// is kept. Directories for which keep returns true are left alone, as are
// their ancestors.
func PruneEmptyDirs(fs afero.Fs, root string, keep func(dir string) bool) (int, error) {
	var dirs []string
	err := afero.Walk(fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() && path != root {
			dirs = append(dirs, path)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("walk %s: %w", root, err)
	}

	// Deeper paths sort after their parents, so reverse order is bottom-up
	sort.Sort(sort.Reverse(sort.StringSlice(dirs)))

	removed := 0
	for _, dir := range dirs {
		if keep != nil && keep(dir) {
			continue
		}
		empty, err := afero.IsEmpty(fs, dir)
		if err != nil || !empty {
			continue
		}
		if err := fs.Remove(dir); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("remove %s: %w", dir, err)
		}
		removed++
	}
	return removed, nil
}

// Size returns the size of a regular file, or 0 when it cannot be read
func Size(fs afero.Fs, path string) int64 {
	info, err := fs.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
