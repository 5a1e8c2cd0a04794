package fsops

import "io/fs"

// FS abstracts the filesystem calls the sweep engine issues.
// Enables fault injection and call recording in tests.
type FS interface {
	Lstat(path string) (fs.FileInfo, error)
	ReadDir(path string) ([]fs.DirEntry, error)
	Chmod(path string, mode fs.FileMode) error
	Remove(path string) error
	RemoveAll(path string) error
}
