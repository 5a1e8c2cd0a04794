package cleanup

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"treesweep/internal/scan"
)

// removeDirs drains the buckets in order. Each bucket is a barrier: the next
// one starts only after every removal in the current one has returned.
func (c *Cleaner) removeDirs(ctx context.Context, buckets []Bucket, report *Report) error {
	for _, bucket := range buckets {
		if err := ctx.Err(); err != nil {
			return err
		}

		start := time.Now()
		err := c.removeBucket(ctx, bucket, report)
		c.metrics.BucketDuration().Observe(time.Since(start).Seconds())
		if err != nil {
			return err
		}

		c.logger.Debug().
			Int("depth", bucket.Depth).
			Int("dirs", len(bucket.Paths)).
			Dur("duration", time.Since(start)).
			Msg("bucket drained")
	}
	return nil
}

func (c *Cleaner) removeBucket(ctx context.Context, bucket Bucket, report *Report) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)

	for _, dir := range bucket.Paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			// Recursive so anything that appeared after the walk goes too.
			if err := c.fsys.RemoveAll(dir); err != nil {
				derr := &Error{Kind: KindDirRemoval, Path: dir, Err: err}
				c.metrics.DirFailuresTotal().Inc()
				report.addFailure(derr)
				if c.policy == DirAbort {
					return derr
				}
				c.warn(derr)
				return nil
			}
			atomic.AddInt64(&report.DirsRemoved, 1)
			c.metrics.EntriesRemovedTotal(scan.Directory).Inc()
			return nil
		})
	}

	return g.Wait()
}

func (c *Cleaner) warn(err *Error) {
	c.logger.Warn().Err(err.Err).Str("path", err.Path).Msg("Failed to remove directory")
	if c.onWarn != nil {
		c.onWarn(err)
	}
}
