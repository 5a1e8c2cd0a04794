package cleanup

import (
	"io/fs"

	"treesweep/internal/fsops"
	"treesweep/internal/scan"
)

// ownerWrite is the bit whose absence makes an entry read-only. On Windows
// the read-only attribute maps to the same bit.
const ownerWrite fs.FileMode = 0o200

func readOnly(mode fs.FileMode) bool {
	return mode.Perm()&ownerWrite == 0
}

// normalize clears the read-only bit on e so its removal, or the removal of
// its children, cannot be refused. Symlinks are skipped: chmod follows them.
// Only owner-write is added, not 0o222; group and other bits have no say in
// whether the owner may unlink.
func normalize(fsys fsops.FS, e scan.Entry) (bool, error) {
	if e.Kind == scan.Symlink || !readOnly(e.Mode) {
		return false, nil
	}
	if err := fsys.Chmod(e.Path, e.Mode.Perm()|ownerWrite); err != nil {
		return false, &Error{Kind: KindPermission, Path: e.Path, Err: err}
	}
	return true, nil
}
