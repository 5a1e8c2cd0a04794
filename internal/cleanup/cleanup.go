// Package cleanup removes a directory subtree with bounded parallelism.
//
// A sweep runs in two phases. The first is a single parallel walk that
// clears read-only bits, removes every file and symlink as soon as it is
// found, and buckets directories by depth. The second removes the buckets
// deepest first; each bucket is drained completely before the next one
// starts, so no worker ever removes a directory while another is working
// on one of its ancestors or descendants.
//
// Enumeration, permission and file removal failures are fatal. Directory
// removal failures follow the configured DirPolicy.
package cleanup

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"treesweep/internal/fsops"
	"treesweep/internal/metrics"
	"treesweep/internal/scan"
)

// DefaultMultiplier oversubscribes the pool relative to CPU count; the work
// is dominated by blocking filesystem calls.
const DefaultMultiplier = 100

// Metrics interface for sweep metrics
type Metrics interface {
	EntriesRemovedTotal(kind scan.Kind) prometheus.Counter
	PermissionsFixedTotal() prometheus.Counter
	DirFailuresTotal() prometheus.Counter
	WalkDuration() prometheus.Observer
	BucketDuration() prometheus.Observer
}

// cleanupMetrics wraps global metrics to implement Metrics interface
type cleanupMetrics struct{}

func (cleanupMetrics) EntriesRemovedTotal(kind scan.Kind) prometheus.Counter {
	return metrics.EntriesRemovedTotal.WithLabelValues(kind.String())
}

func (cleanupMetrics) PermissionsFixedTotal() prometheus.Counter {
	return metrics.PermissionsFixedTotal
}

func (cleanupMetrics) DirFailuresTotal() prometheus.Counter {
	return metrics.DirFailuresTotal
}

func (cleanupMetrics) WalkDuration() prometheus.Observer {
	return metrics.WalkDuration
}

func (cleanupMetrics) BucketDuration() prometheus.Observer {
	return metrics.BucketDuration
}

// Options configures a Cleaner.
type Options struct {
	// Workers is the pool size. Zero means DefaultWorkers(DefaultMultiplier, 0).
	Workers   int
	DirPolicy DirPolicy
}

// DefaultWorkers sizes the pool as NumCPU*multiplier, capped at max when
// max is positive.
func DefaultWorkers(multiplier, max int) int {
	if multiplier <= 0 {
		multiplier = DefaultMultiplier
	}
	n := runtime.NumCPU() * multiplier
	if max > 0 && n > max {
		n = max
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Report summarizes one sweep.
type Report struct {
	Target           string
	FilesRemoved     int64
	SymlinksRemoved  int64
	PermissionsFixed int64
	DirsRemoved      int64
	Buckets          int
	DirFailures      []*Error
	Duration         time.Duration

	mu sync.Mutex
}

// Complete reports whether every directory was removed.
func (r *Report) Complete() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.DirFailures) == 0
}

func (r *Report) addFailure(err *Error) {
	r.mu.Lock()
	r.DirFailures = append(r.DirFailures, err)
	r.mu.Unlock()
}

// Cleaner performs sweeps. A Cleaner is safe to reuse for sequential sweeps
// of unrelated targets.
type Cleaner struct {
	logger  zerolog.Logger
	metrics Metrics
	fsys    fsops.FS
	workers int
	policy  DirPolicy
	onWarn  func(*Error)
}

// NewCleaner creates a new Cleaner instance
func NewCleaner(logger zerolog.Logger, opts Options) *Cleaner {
	metrics.Init()

	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers(DefaultMultiplier, 0)
	}
	return &Cleaner{
		logger:  logger.With().Str("component", "cleanup").Logger(),
		metrics: cleanupMetrics{},
		fsys:    fsops.OSFS{},
		workers: workers,
		policy:  opts.DirPolicy,
	}
}

// SetFS replaces the filesystem the sweep operates on.
func (c *Cleaner) SetFS(fsys fsops.FS) {
	c.fsys = fsys
}

// SetMetrics replaces the metrics sink.
func (c *Cleaner) SetMetrics(m Metrics) {
	c.metrics = m
}

// SetWarnHandler registers fn to be called for every directory removal
// failure tolerated under DirWarn. fn may be called concurrently.
func (c *Cleaner) SetWarnHandler(fn func(*Error)) {
	c.onWarn = fn
}

// Workers returns the pool size.
func (c *Cleaner) Workers() int {
	return c.workers
}

// Clean removes target and everything beneath it. It blocks until every
// bucket has been processed or a fatal error stopped the sweep. The returned
// report is non-nil in both cases; a non-nil error is always an *Error or a
// context error.
func (c *Cleaner) Clean(ctx context.Context, target string) (*Report, error) {
	start := time.Now()
	report := &Report{Target: target}

	c.logger.Info().
		Str("target", target).
		Int("workers", c.workers).
		Str("dir_policy", c.policy.String()).
		Msg("Starting sweep")

	buckets, err := c.sweepLeaves(ctx, target, report)
	if err != nil {
		report.Duration = time.Since(start)
		c.logger.Error().Err(err).Str("target", target).Msg("Sweep aborted")
		return report, err
	}
	report.Buckets = len(buckets)

	err = c.removeDirs(ctx, buckets, report)
	report.Duration = time.Since(start)
	if err != nil {
		c.logger.Error().Err(err).Str("target", target).Msg("Sweep aborted")
		return report, err
	}

	c.logger.Info().
		Str("target", target).
		Int64("files", atomic.LoadInt64(&report.FilesRemoved)).
		Int64("symlinks", atomic.LoadInt64(&report.SymlinksRemoved)).
		Int64("dirs", atomic.LoadInt64(&report.DirsRemoved)).
		Int64("permissions_fixed", atomic.LoadInt64(&report.PermissionsFixed)).
		Int("dir_failures", len(report.DirFailures)).
		Dur("duration", report.Duration).
		Msg("Sweep complete")

	return report, nil
}
