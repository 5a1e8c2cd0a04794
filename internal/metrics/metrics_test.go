package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// value reads the current value of a counter or gauge.
func value(t *testing.T, m prometheus.Metric) float64 {
	t.Helper()
	var pb dto.Metric
	require.NoError(t, m.Write(&pb))
	if pb.Counter != nil {
		return pb.Counter.GetValue()
	}
	return pb.Gauge.GetValue()
}

func TestMetricsInit(t *testing.T) {
	Init()
	// Second call must not panic on duplicate registration
	Init()

	assert.NotNil(t, CleanupDuration)
	assert.NotNil(t, WalkDuration)
	assert.NotNil(t, BucketDuration)
	assert.NotNil(t, EntriesRemovedTotal)
	assert.NotNil(t, PermissionsFixedTotal)
	assert.NotNil(t, DirFailuresTotal)
	assert.NotNil(t, RunsTotal)
	assert.NotNil(t, CleanupLastRunTimestamp)
	assert.NotNil(t, WorkersConfigured)
}

func TestRecordCleanupRun(t *testing.T) {
	Init()
	before := value(t, RunsTotal.WithLabelValues("complete"))

	RecordCleanupRun("complete", 2*time.Second)

	assert.Equal(t, before+1, value(t, RunsTotal.WithLabelValues("complete")))
	assert.Greater(t, value(t, CleanupLastRunTimestamp), float64(0))
}

func TestSetWorkers(t *testing.T) {
	Init()
	SetWorkers(400)
	assert.Equal(t, float64(400), value(t, WorkersConfigured))
}

func TestWriteTextfile(t *testing.T) {
	Init()
	EntriesRemovedTotal.WithLabelValues("file").Add(3)
	path := filepath.Join(t.TempDir(), "treesweep.prom")

	require.NoError(t, WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.True(t, strings.Contains(out, "treesweep_entries_removed_total"))
	assert.True(t, strings.Contains(out, `kind="file"`))
}

func TestWriteTextfileBadDirectory(t *testing.T) {
	Init()
	err := WriteTextfile(filepath.Join(t.TempDir(), "missing", "x.prom"))
	assert.Error(t, err)
}
