package cleanup

import (
	"fmt"
	"strings"
)

// Kind classifies a sweep failure.
type Kind int

const (
	KindEnumeration Kind = iota + 1
	KindPermission
	KindFileRemoval
	KindDirRemoval
)

func (k Kind) String() string {
	switch k {
	case KindEnumeration:
		return "enumeration"
	case KindPermission:
		return "permission"
	case KindFileRemoval:
		return "file_removal"
	case KindDirRemoval:
		return "dir_removal"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Sentinels for errors.Is; they match any *Error of the same Kind.
var (
	ErrEnumeration = &Error{Kind: KindEnumeration}
	ErrPermission  = &Error{Kind: KindPermission}
	ErrFileRemoval = &Error{Kind: KindFileRemoval}
	ErrDirRemoval  = &Error{Kind: KindDirRemoval}
)

// Error is a failure on a single path during a sweep.
type Error struct {
	Kind Kind
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path == "" && e.Err == nil {
		return e.Kind.String() + " error"
	}
	switch e.Kind {
	case KindEnumeration:
		return fmt.Sprintf("processing directory entry %s: %v", e.Path, e.Err)
	case KindPermission:
		return fmt.Sprintf("making %s write-accessible: %v", e.Path, e.Err)
	case KindFileRemoval:
		return fmt.Sprintf("removing file %s: %v", e.Path, e.Err)
	case KindDirRemoval:
		return fmt.Sprintf("removing directory %s: %v", e.Path, e.Err)
	default:
		return fmt.Sprintf("%s %s: %v", e.Kind, e.Path, e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the Kind sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Path != "" || t.Err != nil {
		return false
	}
	return t.Kind == e.Kind
}

// DirPolicy decides what a directory removal failure does to the sweep.
// File-level failures are always fatal.
type DirPolicy int

const (
	// DirWarn logs the failure and keeps removing the remaining directories.
	DirWarn DirPolicy = iota
	// DirAbort stops the sweep once the failing bucket has drained.
	DirAbort
)

func (p DirPolicy) String() string {
	if p == DirAbort {
		return "abort"
	}
	return "warn"
}

// ParseDirPolicy accepts "warn" or "abort" (case-insensitive). Empty means warn.
func ParseDirPolicy(s string) (DirPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "warn":
		return DirWarn, nil
	case "abort":
		return DirAbort, nil
	default:
		return DirWarn, fmt.Errorf("unknown directory failure policy %q (want warn or abort)", s)
	}
}
