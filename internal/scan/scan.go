// Package scan enumerates a directory tree in parallel.
//
// Walk streams one Entry per filesystem object to a visitor. Directories are
// fanned out over a bounded errgroup; when every worker is busy the current
// worker descends inline instead of blocking, so nested dispatch cannot
// deadlock the pool. Symbolic links are reported, never followed.
package scan

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"treesweep/internal/fsops"
)

// leafBatch bounds how many non-directory entries one task visits.
const leafBatch = 256

// Kind classifies a visited filesystem object.
type Kind int

const (
	File Kind = iota
	Symlink
	Directory
)

func (k Kind) String() string {
	switch k {
	case File:
		return "file"
	case Symlink:
		return "symlink"
	case Directory:
		return "directory"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// KindOf maps an Lstat mode to a Kind. Fifos, sockets and devices are
// removed like regular files and are reported as File.
func KindOf(mode fs.FileMode) Kind {
	switch {
	case mode&fs.ModeSymlink != 0:
		return Symlink
	case mode.IsDir():
		return Directory
	default:
		return File
	}
}

// Entry is one object found under the walk root. The root has depth 0 and
// its immediate children depth 1.
type Entry struct {
	Path  string
	Depth int
	Kind  Kind
	Mode  fs.FileMode
}

// WalkError reports a failure to enumerate part of the tree.
type WalkError struct {
	Op   string
	Path string
	Err  error
}

func (e *WalkError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *WalkError) Unwrap() error {
	return e.Err
}

// VisitFunc is called once per entry, concurrently from several workers.
// A directory's children are read only after its visit returned.
type VisitFunc func(Entry) error

type walker struct {
	ctx   context.Context
	g     *errgroup.Group
	fsys  fsops.FS
	visit VisitFunc
}

// Walk visits root and everything beneath it using at most workers
// goroutines. The first Lstat, ReadDir or visitor error cancels the walk and
// is returned.
func Walk(ctx context.Context, fsys fsops.FS, root string, workers int, visit VisitFunc) error {
	if workers < 1 {
		workers = 1
	}

	info, err := fsys.Lstat(root)
	if err != nil {
		return &WalkError{Op: "lstat", Path: root, Err: err}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	w := &walker{ctx: gctx, g: g, fsys: fsys, visit: visit}
	rootEntry := Entry{Path: root, Depth: 0, Kind: KindOf(info.Mode()), Mode: info.Mode()}
	g.Go(func() error {
		return w.walkDir(rootEntry)
	})

	return g.Wait()
}

// walkDir visits e and, for directories, everything under it.
func (w *walker) walkDir(e Entry) error {
	if err := w.ctx.Err(); err != nil {
		return err
	}
	if err := w.visit(e); err != nil {
		return err
	}
	if e.Kind != Directory {
		return nil
	}

	children, err := w.fsys.ReadDir(e.Path)
	if err != nil {
		return &WalkError{Op: "readdir", Path: e.Path, Err: err}
	}

	leaves := make([]Entry, 0, min(len(children), leafBatch))
	for _, d := range children {
		p := filepath.Join(e.Path, d.Name())
		info, err := w.fsys.Lstat(p)
		if err != nil {
			return &WalkError{Op: "lstat", Path: p, Err: err}
		}
		child := Entry{Path: p, Depth: e.Depth + 1, Kind: KindOf(info.Mode()), Mode: info.Mode()}

		if child.Kind == Directory {
			if err := w.spawn(func() error { return w.walkDir(child) }); err != nil {
				return err
			}
			continue
		}

		leaves = append(leaves, child)
		if len(leaves) == leafBatch {
			batch := leaves
			if err := w.spawn(func() error { return w.visitAll(batch) }); err != nil {
				return err
			}
			leaves = make([]Entry, 0, leafBatch)
		}
	}

	return w.visitAll(leaves)
}

func (w *walker) visitAll(entries []Entry) error {
	for _, e := range entries {
		if err := w.ctx.Err(); err != nil {
			return err
		}
		if err := w.visit(e); err != nil {
			return err
		}
	}
	return nil
}

// spawn hands fn to an idle worker or, when the pool is saturated, runs it
// on the calling worker.
func (w *walker) spawn(fn func() error) error {
	if w.g.TryGo(fn) {
		return nil
	}
	return fn()
}
