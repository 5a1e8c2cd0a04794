package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Sweep subsystem metrics
var (
	// CleanupDuration tracks how long a whole sweep takes
	CleanupDuration prometheus.Histogram

	// WalkDuration tracks the enumeration + leaf removal pass
	WalkDuration prometheus.Histogram

	// BucketDuration tracks how long one depth bucket takes to drain
	BucketDuration prometheus.Histogram

	// EntriesRemovedTotal counts removed objects by kind (file, symlink, directory)
	EntriesRemovedTotal *prometheus.CounterVec

	// PermissionsFixedTotal counts read-only bits cleared before removal
	PermissionsFixedTotal prometheus.Counter

	// DirFailuresTotal counts directory removals that failed
	DirFailuresTotal prometheus.Counter

	// RunsTotal counts sweeps by outcome (complete, warnings, failed)
	RunsTotal *prometheus.CounterVec

	// CleanupLastRunTimestamp records Unix timestamp of last sweep
	CleanupLastRunTimestamp prometheus.Gauge

	// WorkersConfigured reports the size of the worker pool
	WorkersConfigured prometheus.Gauge
)

// initCleanupMetrics initializes all sweep subsystem metrics
func initCleanupMetrics() {
	CleanupDuration = NewDurationHistogram(
		"cleanup",
		"Duration of whole sweeps in seconds.",
	)

	WalkDuration = NewDurationHistogram(
		"walk",
		"Duration of the enumeration and leaf removal pass in seconds.",
	)

	BucketDuration = NewDurationHistogram(
		"bucket",
		"Duration of a single depth bucket removal in seconds.",
	)

	EntriesRemovedTotal = NewCounterVec(
		"entries_removed",
		"Total filesystem entries removed, by kind.",
		"kind",
	)

	PermissionsFixedTotal = NewCounter(
		"permissions_fixed",
		"Total read-only entries made writable before removal.",
	)

	DirFailuresTotal = NewCounter(
		"dir_failures",
		"Total directory removals that failed.",
	)

	RunsTotal = NewCounterVec(
		"runs",
		"Total sweeps by outcome.",
		"status",
	)

	CleanupLastRunTimestamp = NewGauge(
		"cleanup_last_run_timestamp",
		"Timestamp of the last sweep (Unix epoch seconds).",
	)

	WorkersConfigured = NewGauge(
		"workers",
		"Size of the sweep worker pool.",
	)
}

// registerCleanupMetrics registers all sweep metrics with Prometheus
func registerCleanupMetrics() {
	prometheus.MustRegister(CleanupDuration)
	prometheus.MustRegister(WalkDuration)
	prometheus.MustRegister(BucketDuration)
	prometheus.MustRegister(EntriesRemovedTotal)
	prometheus.MustRegister(PermissionsFixedTotal)
	prometheus.MustRegister(DirFailuresTotal)
	prometheus.MustRegister(RunsTotal)
	prometheus.MustRegister(CleanupLastRunTimestamp)
	prometheus.MustRegister(WorkersConfigured)
}

// RecordCleanupRun updates the last run timestamp and the outcome counter
func RecordCleanupRun(status string, elapsed time.Duration) {
	CleanupLastRunTimestamp.Set(float64(time.Now().Unix()))
	RunsTotal.WithLabelValues(status).Inc()
	CleanupDuration.Observe(elapsed.Seconds())
}

// SetWorkers records the pool size used by the current sweep
func SetWorkers(n int) {
	WorkersConfigured.Set(float64(n))
}
