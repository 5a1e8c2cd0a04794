package fsops

import (
	"io/fs"
	"os"
)

// OSFS implements FS using real os package calls
type OSFS struct{}

func (OSFS) Lstat(path string) (fs.FileInfo, error) {
	return os.Lstat(path)
}

func (OSFS) ReadDir(path string) ([]fs.DirEntry, error) {
	return os.ReadDir(path)
}

func (OSFS) Chmod(path string, mode fs.FileMode) error {
	return os.Chmod(path, mode)
}

func (OSFS) Remove(path string) error {
	return os.Remove(path)
}

func (OSFS) RemoveAll(path string) error {
	return os.RemoveAll(path)
}
