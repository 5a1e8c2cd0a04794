package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every exported metric name.
const Namespace = "treesweep"

// DurationBuckets spans a few milliseconds (one small bucket) up to ten
// minutes (a whole sweep of a large tree).
var DurationBuckets = []float64{0.005, 0.05, 0.25, 1, 5, 30, 120, 600}

// NewDurationHistogram creates a histogram in seconds, named
// treesweep_<name>_duration_seconds.
func NewDurationHistogram(name, help string) prometheus.Histogram {
	return prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      name + "_duration_seconds",
		Help:      help,
		Buckets:   DurationBuckets,
	})
}

// NewCounter creates a counter named treesweep_<name>_total.
func NewCounter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      name + "_total",
		Help:      help,
	})
}

// NewCounterVec is NewCounter with labels.
func NewCounterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      name + "_total",
		Help:      help,
	}, labels)
}

func NewGauge(name, help string) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      name,
		Help:      help,
	})
}
