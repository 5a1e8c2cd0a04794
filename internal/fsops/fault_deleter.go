package fsops

import (
	"io/fs"
	"sync"
)

// Op names a recorded filesystem call.
type Op string

const (
	OpLstat     Op = "lstat"
	OpReadDir   Op = "readdir"
	OpChmod     Op = "chmod"
	OpRemove    Op = "rm"
	OpRemoveAll Op = "rmall"
)

// Call is one recorded filesystem call, in issue order.
type Call struct {
	Op   Op
	Path string
}

// FaultFS implements FS for testing.
// It records every call and delegates to Base (OSFS when nil) unless a
// fault is registered for the operation and path.
type FaultFS struct {
	Base FS

	// Before runs ahead of every delegated call; tests use it to mutate the
	// tree out-of-band.
	Before func(op Op, path string)

	mu     sync.Mutex
	calls  []Call
	faults map[Call]error
}

// NewFaultFS wraps base, or the real filesystem when base is nil.
func NewFaultFS(base FS) *FaultFS {
	if base == nil {
		base = OSFS{}
	}
	return &FaultFS{Base: base, faults: make(map[Call]error)}
}

// Fail makes every subsequent op on path return err without touching disk.
func (f *FaultFS) Fail(op Op, path string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.faults == nil {
		f.faults = make(map[Call]error)
	}
	f.faults[Call{Op: op, Path: path}] = err
}

// Calls returns a snapshot of the recorded calls.
func (f *FaultFS) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallsFor returns the recorded paths for a single op, in issue order.
func (f *FaultFS) CallsFor(op Op) []string {
	var out []string
	for _, c := range f.Calls() {
		if c.Op == op {
			out = append(out, c.Path)
		}
	}
	return out
}

func (f *FaultFS) record(op Op, path string) error {
	f.mu.Lock()
	f.calls = append(f.calls, Call{Op: op, Path: path})
	err := f.faults[Call{Op: op, Path: path}]
	f.mu.Unlock()
	if err != nil {
		return err
	}
	if f.Before != nil {
		f.Before(op, path)
	}
	return nil
}

func (f *FaultFS) base() FS {
	if f.Base == nil {
		return OSFS{}
	}
	return f.Base
}

func (f *FaultFS) Lstat(path string) (fs.FileInfo, error) {
	if err := f.record(OpLstat, path); err != nil {
		return nil, err
	}
	return f.base().Lstat(path)
}

func (f *FaultFS) ReadDir(path string) ([]fs.DirEntry, error) {
	if err := f.record(OpReadDir, path); err != nil {
		return nil, err
	}
	return f.base().ReadDir(path)
}

func (f *FaultFS) Chmod(path string, mode fs.FileMode) error {
	if err := f.record(OpChmod, path); err != nil {
		return err
	}
	return f.base().Chmod(path, mode)
}

func (f *FaultFS) Remove(path string) error {
	if err := f.record(OpRemove, path); err != nil {
		return err
	}
	return f.base().Remove(path)
}

func (f *FaultFS) RemoveAll(path string) error {
	if err := f.record(OpRemoveAll, path); err != nil {
		return err
	}
	return f.base().RemoveAll(path)
}
