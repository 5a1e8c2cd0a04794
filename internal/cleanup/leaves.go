package cleanup

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"treesweep/internal/scan"
)

// sweepLeaves is the single parallel pass: every entry has its read-only
// bit cleared, files and symlinks are removed on the spot and directories
// are deferred into depth buckets.
func (c *Cleaner) sweepLeaves(ctx context.Context, target string, report *Report) ([]Bucket, error) {
	start := time.Now()
	var dirs bucketer

	err := scan.Walk(ctx, c.fsys, target, c.workers, func(e scan.Entry) error {
		fixed, err := normalize(c.fsys, e)
		if err != nil {
			return err
		}
		if fixed {
			atomic.AddInt64(&report.PermissionsFixed, 1)
			c.metrics.PermissionsFixedTotal().Inc()
		}

		if e.Kind == scan.Directory {
			dirs.add(e.Depth, e.Path)
			return nil
		}
		return c.removeLeaf(e, report)
	})
	c.metrics.WalkDuration().Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fatalError(target, err)
	}

	return dirs.ordered(), nil
}

// removeLeaf deletes a single file or symlink. Any failure is fatal,
// including the entry having vanished since it was enumerated.
func (c *Cleaner) removeLeaf(e scan.Entry, report *Report) error {
	if err := c.fsys.Remove(e.Path); err != nil {
		return &Error{Kind: KindFileRemoval, Path: e.Path, Err: err}
	}

	if e.Kind == scan.Symlink {
		atomic.AddInt64(&report.SymlinksRemoved, 1)
	} else {
		atomic.AddInt64(&report.FilesRemoved, 1)
	}
	c.metrics.EntriesRemovedTotal(e.Kind).Inc()
	c.logger.Debug().Str("path", e.Path).Stringer("kind", e.Kind).Msg("removed")
	return nil
}

// fatalError classifies an error that ended the walk.
func fatalError(target string, err error) error {
	var serr *Error
	if errors.As(err, &serr) {
		return serr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var werr *scan.WalkError
	if errors.As(err, &werr) {
		return &Error{Kind: KindEnumeration, Path: werr.Path, Err: werr.Err}
	}
	return &Error{Kind: KindEnumeration, Path: target, Err: err}
}
