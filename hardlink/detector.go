package hardlink

import "fmt"

// FileID identifies file data independent of the name it is reached by
type FileID struct {
	Dev uint64
	Ino uint64
}

// GetHardlinkCount returns the number of hardlinks for a file
func GetHardlinkCount(path string) (uint64, error) {
	_, links, err := statFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to stat file %s: %w", path, err)
	}
	return links, nil
}

// Identify returns the identity and link count of a file
func Identify(path string) (FileID, uint64, error) {
	id, links, err := statFile(path)
	if err != nil {
		return FileID{}, 0, fmt.Errorf("failed to stat file %s: %w", path, err)
	}
	return id, links, nil
}

// AreHardlinked checks if two files are hardlinks to the same data
func AreHardlinked(file1, file2 string) (bool, error) {
	id1, _, err := Identify(file1)
	if err != nil {
		return false, err
	}
	id2, _, err := Identify(file2)
	if err != nil {
		return false, err
	}

	// Same device and inode means they're hardlinked
	return id1 == id2, nil
}
