//go:build !windows

package hardlink

import "golang.org/x/sys/unix"

func statFile(path string) (FileID, uint64, error) {
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		return FileID{}, 0, err
	}
	return FileID{Dev: uint64(st.Dev), Ino: uint64(st.Ino)}, uint64(st.Nlink), nil
}
