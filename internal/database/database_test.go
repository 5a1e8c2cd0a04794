package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *HistoryDB {
	t.Helper()
	db, err := NewHistoryDB(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, db.Close())
	})
	return db
}

func sampleRun(target, status string, started time.Time) RunRecord {
	return RunRecord{
		RunID:            uuid.NewString(),
		Target:           target,
		Workers:          800,
		DirPolicy:        "warn",
		StartedAt:        started,
		FinishedAt:       started.Add(3 * time.Second),
		Status:           status,
		FilesRemoved:     120,
		SymlinksRemoved:  4,
		DirsRemoved:      17,
		PermissionsFixed: 2,
	}
}

// TestDatabaseCreation verifies database file creation and initialization
func TestDatabaseCreation(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "history.db")

	db, err := NewHistoryDB(dbPath)
	require.NoError(t, err)
	defer db.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err)
}

// TestWALModeEnabled verifies that WAL mode is properly configured
func TestWALModeEnabled(t *testing.T) {
	db := openTestDB(t)

	var journalMode string
	require.NoError(t, db.db.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", journalMode)
}

// TestSchemaCreation verifies all tables and indexes are created
func TestSchemaCreation(t *testing.T) {
	db := openTestDB(t)

	for _, table := range []string{"runs", "failures", "schema_version"} {
		var name string
		err := db.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		assert.NoError(t, err, "table %s", table)
	}

	for _, index := range []string{"idx_runs_started_at", "idx_runs_status", "idx_runs_target", "idx_failures_run_id"} {
		var name string
		err := db.db.QueryRow("SELECT name FROM sqlite_master WHERE type='index' AND name=?", index).Scan(&name)
		assert.NoError(t, err, "index %s", index)
	}

	var version int
	require.NoError(t, db.db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&version))
	assert.Equal(t, 1, version)
}

func TestReopenKeepsHistory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.db")
	db, err := NewHistoryDB(dbPath)
	require.NoError(t, err)
	run := sampleRun("/srv/a", StatusComplete, time.Now())
	require.NoError(t, db.RecordRun(run, nil))
	require.NoError(t, db.Close())

	db, err = NewHistoryDB(dbPath)
	require.NoError(t, err)
	defer db.Close()

	got, err := db.GetRun(run.RunID)
	require.NoError(t, err)
	assert.Equal(t, "/srv/a", got.Target)
}

func TestRecordRunRoundTrip(t *testing.T) {
	db := openTestDB(t)
	started := time.Now().Add(-time.Minute)
	run := sampleRun("/srv/build", StatusWarnings, started)
	run.DirFailures = 2
	failures := []FailureRecord{
		{Path: "/srv/build/a/b", Kind: "dir_removal", ErrorMessage: "device or resource busy"},
		{Path: "/srv/build/c", Kind: "dir_removal", ErrorMessage: "permission denied"},
	}

	require.NoError(t, db.RecordRun(run, failures))

	got, err := db.GetRun(run.RunID)
	require.NoError(t, err)
	assert.Equal(t, run.RunID, got.RunID)
	assert.Equal(t, StatusWarnings, got.Status)
	assert.Equal(t, 800, got.Workers)
	assert.Equal(t, "warn", got.DirPolicy)
	assert.EqualValues(t, 120, got.FilesRemoved)
	assert.EqualValues(t, 4, got.SymlinksRemoved)
	assert.EqualValues(t, 17, got.DirsRemoved)
	assert.EqualValues(t, 2, got.PermissionsFixed)
	assert.Equal(t, 2, got.DirFailures)
	assert.Empty(t, got.ErrorMessage)
	assert.WithinDuration(t, started, got.StartedAt, time.Millisecond)
	assert.Equal(t, 3*time.Second, got.Duration().Round(time.Millisecond))

	stored, err := db.GetFailures(run.RunID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, "/srv/build/a/b", stored[0].Path)
	assert.Equal(t, "device or resource busy", stored[0].ErrorMessage)
	assert.False(t, stored[0].Fatal)
	assert.Equal(t, "/srv/build/c", stored[1].Path)
}

func TestRecordFailedRun(t *testing.T) {
	db := openTestDB(t)
	run := sampleRun("/srv/x", StatusFailed, time.Now())
	run.ErrorKind = "file_removal"
	run.ErrorMessage = "removing file /srv/x/a: no such file or directory"

	require.NoError(t, db.RecordRun(run, []FailureRecord{
		{Path: "/srv/x/a", Kind: "file_removal", Fatal: true, ErrorMessage: "no such file or directory"},
	}))

	got, err := db.GetRun(run.RunID)
	require.NoError(t, err)
	assert.Equal(t, "file_removal", got.ErrorKind)
	assert.Contains(t, got.ErrorMessage, "removing file")

	stored, err := db.GetFailures(run.RunID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.True(t, stored[0].Fatal)
}

func TestRecordRunDuplicateIDRollsBack(t *testing.T) {
	db := openTestDB(t)
	run := sampleRun("/srv/x", StatusComplete, time.Now())
	require.NoError(t, db.RecordRun(run, nil))

	err := db.RecordRun(run, []FailureRecord{{Path: "/srv/x/d", Kind: "dir_removal"}})
	require.Error(t, err)

	stored, err := db.GetFailures(run.RunID)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestGetRunMissing(t *testing.T) {
	db := openTestDB(t)
	_, err := db.GetRun("nope")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

// TestQueryMethods exercises every filter the history command exposes
func TestQueryMethods(t *testing.T) {
	db := openTestDB(t)
	base := time.Now().Add(-time.Hour)
	runs := []RunRecord{
		sampleRun("/srv/build/one", StatusComplete, base),
		sampleRun("/srv/build/two", StatusWarnings, base.Add(time.Minute)),
		sampleRun("/tmp/scratch", StatusFailed, base.Add(2*time.Minute)),
		sampleRun("/srv/cache", StatusComplete, base.Add(3*time.Minute)),
	}
	for _, r := range runs {
		require.NoError(t, db.RecordRun(r, nil))
	}

	recent, err := db.GetRecentRuns(2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "/srv/cache", recent[0].Target)
	assert.Equal(t, "/tmp/scratch", recent[1].Target)

	complete, err := db.GetRunsByStatus(StatusComplete, 10)
	require.NoError(t, err)
	assert.Len(t, complete, 2)

	build, err := db.GetRunsByTarget("/srv/build/%", 10)
	require.NoError(t, err)
	require.Len(t, build, 2)
	assert.Equal(t, "/srv/build/two", build[0].Target)

	ranged, err := db.GetRunsByDateRange(base.Add(30*time.Second), base.Add(150*time.Second))
	require.NoError(t, err)
	require.Len(t, ranged, 2)
	assert.Equal(t, "/tmp/scratch", ranged[0].Target)
	assert.Equal(t, "/srv/build/two", ranged[1].Target)
}

func TestGetRunStats(t *testing.T) {
	db := openTestDB(t)
	now := time.Now()
	warn := sampleRun("/a", StatusWarnings, now.Add(-time.Hour))
	warn.DirFailures = 3
	require.NoError(t, db.RecordRun(warn, nil))
	require.NoError(t, db.RecordRun(sampleRun("/b", StatusComplete, now.Add(-2*time.Hour)), nil))
	require.NoError(t, db.RecordRun(sampleRun("/old", StatusComplete, now.AddDate(0, 0, -30)), nil))

	stats, err := db.GetRunStats(7)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.TotalRuns)
	assert.EqualValues(t, 240, stats.FilesRemoved)
	assert.EqualValues(t, 34, stats.DirsRemoved)
	assert.EqualValues(t, 3, stats.DirFailures)
	assert.Equal(t, map[string]int{StatusWarnings: 1, StatusComplete: 1}, stats.ByStatus)
}

func TestDeleteOldRunsCascades(t *testing.T) {
	db := openTestDB(t)
	old := sampleRun("/old", StatusWarnings, time.Now().AddDate(0, 0, -90))
	require.NoError(t, db.RecordRun(old, []FailureRecord{{Path: "/old/d", Kind: "dir_removal"}}))
	fresh := sampleRun("/fresh", StatusComplete, time.Now())
	require.NoError(t, db.RecordRun(fresh, nil))

	n, err := db.DeleteOldRuns(30)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, err = db.GetRun(old.RunID)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	failures, err := db.GetFailures(old.RunID)
	require.NoError(t, err)
	assert.Empty(t, failures)

	_, err = db.GetRun(fresh.RunID)
	assert.NoError(t, err)
}

// TestConcurrentReadWrite verifies WAL lets readers run alongside a writer
func TestConcurrentReadWrite(t *testing.T) {
	db := openTestDB(t)

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			errs <- db.RecordRun(sampleRun(fmt.Sprintf("/srv/%d", i), StatusComplete, time.Now()), nil)
		}(i)
		go func() {
			defer wg.Done()
			_, err := db.GetRecentRuns(5)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}

	recent, err := db.GetRecentRuns(100)
	require.NoError(t, err)
	assert.Len(t, recent, 20)
}

func TestDatabaseStats(t *testing.T) {
	db := openTestDB(t)

	empty, err := db.GetDatabaseStats()
	require.NoError(t, err)
	assert.Zero(t, empty.TotalRuns)
	assert.True(t, empty.OldestRun.IsZero())

	first := time.Now().Add(-2 * time.Hour)
	require.NoError(t, db.RecordRun(sampleRun("/a", StatusComplete, first), nil))
	require.NoError(t, db.RecordRun(sampleRun("/b", StatusWarnings, time.Now()), []FailureRecord{{Path: "/b/x", Kind: "dir_removal"}}))

	stats, err := db.GetDatabaseStats()
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.TotalRuns)
	assert.EqualValues(t, 1, stats.TotalFailures)
	assert.Greater(t, stats.SizeBytes, int64(0))
	assert.WithinDuration(t, first, stats.OldestRun, time.Millisecond)
	assert.True(t, stats.NewestRun.After(stats.OldestRun))
}

func TestVacuum(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.RecordRun(sampleRun("/a", StatusComplete, time.Now()), nil))
	assert.NoError(t, db.Vacuum())
}

func TestDatabaseErrorHandling(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root can write anywhere")
	}
	dir := t.TempDir()
	require.NoError(t, os.Chmod(dir, 0o555))
	t.Cleanup(func() { os.Chmod(dir, 0o755) })

	_, err := NewHistoryDB(filepath.Join(dir, "sub", "history.db"))
	assert.Error(t, err)
}
