//go:build windows

package hardlink

import "golang.org/x/sys/windows"

// statFile reads the volume serial and file index, the NTFS equivalent of
// device and inode.
func statFile(path string) (FileID, uint64, error) {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return FileID{}, 0, err
	}

	h, err := windows.CreateFile(p, 0,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE|windows.FILE_SHARE_DELETE,
		nil, windows.OPEN_EXISTING,
		windows.FILE_FLAG_BACKUP_SEMANTICS|windows.FILE_FLAG_OPEN_REPARSE_POINT, 0)
	if err != nil {
		return FileID{}, 0, err
	}
	defer windows.CloseHandle(h)

	var info windows.ByHandleFileInformation
	if err := windows.GetFileInformationByHandle(h, &info); err != nil {
		return FileID{}, 0, err
	}

	id := FileID{
		Dev: uint64(info.VolumeSerialNumber),
		Ino: uint64(info.FileIndexHigh)<<32 | uint64(info.FileIndexLow),
	}
	return id, uint64(info.NumberOfLinks), nil
}
