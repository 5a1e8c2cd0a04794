package database

import (
	"database/sql"
	"time"
)

const runColumns = `
	id, run_id, target, workers, dir_policy, started_at, finished_at, status,
	files_removed, symlinks_removed, dirs_removed, permissions_fixed,
	dir_failures, error_kind, error_message
`

// GetRecentRuns returns the N most recent runs
func (d *HistoryDB) GetRecentRuns(limit int) ([]RunRecord, error) {
	return d.queryRuns(`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
}

// GetRunsByStatus returns runs with the given outcome
func (d *HistoryDB) GetRunsByStatus(status string, limit int) ([]RunRecord, error) {
	return d.queryRuns(`SELECT `+runColumns+` FROM runs WHERE status = ? ORDER BY started_at DESC, id DESC LIMIT ?`, status, limit)
}

// GetRunsByTarget returns runs whose target matches a LIKE pattern
func (d *HistoryDB) GetRunsByTarget(pattern string, limit int) ([]RunRecord, error) {
	return d.queryRuns(`SELECT `+runColumns+` FROM runs WHERE target LIKE ? ORDER BY started_at DESC, id DESC LIMIT ?`, pattern, limit)
}

// GetRunsByDateRange returns runs started within a time range
func (d *HistoryDB) GetRunsByDateRange(start, end time.Time) ([]RunRecord, error) {
	return d.queryRuns(`SELECT `+runColumns+` FROM runs WHERE started_at BETWEEN ? AND ? ORDER BY started_at DESC, id DESC`, start.UTC(), end.UTC())
}

// GetRun returns a single run, or sql.ErrNoRows.
func (d *HistoryDB) GetRun(runID string) (*RunRecord, error) {
	runs, err := d.queryRuns(`SELECT `+runColumns+` FROM runs WHERE run_id = ?`, runID)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, sql.ErrNoRows
	}
	return &runs[0], nil
}

// GetFailures returns the failures recorded for a run, in insertion order
func (d *HistoryDB) GetFailures(runID string) ([]FailureRecord, error) {
	rows, err := d.db.Query(`
	SELECT id, run_id, path, kind, fatal, error_message, created_at
	FROM failures
	WHERE run_id = ?
	ORDER BY id ASC
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []FailureRecord
	for rows.Next() {
		var f FailureRecord
		var errMsg sql.NullString
		if err := rows.Scan(&f.ID, &f.RunID, &f.Path, &f.Kind, &f.Fatal, &errMsg, &f.CreatedAt); err != nil {
			return nil, err
		}
		f.ErrorMessage = errMsg.String
		records = append(records, f)
	}
	return records, rows.Err()
}

// RunStats holds aggregated statistics
type RunStats struct {
	TotalRuns        int
	ByStatus         map[string]int
	FilesRemoved     int64
	SymlinksRemoved  int64
	DirsRemoved      int64
	PermissionsFixed int64
	DirFailures      int64
	StartDate        time.Time
	EndDate          time.Time
}

// GetRunStats returns totals over the last days days
func (d *HistoryDB) GetRunStats(days int) (*RunStats, error) {
	now := time.Now().UTC()
	since := now.AddDate(0, 0, -days)

	stats := &RunStats{
		ByStatus:  make(map[string]int),
		StartDate: since,
		EndDate:   now,
	}

	err := d.db.QueryRow(`
		SELECT
			COUNT(*),
			COALESCE(SUM(files_removed), 0),
			COALESCE(SUM(symlinks_removed), 0),
			COALESCE(SUM(dirs_removed), 0),
			COALESCE(SUM(permissions_fixed), 0),
			COALESCE(SUM(dir_failures), 0)
		FROM runs
		WHERE started_at >= ?
	`, since).Scan(
		&stats.TotalRuns,
		&stats.FilesRemoved,
		&stats.SymlinksRemoved,
		&stats.DirsRemoved,
		&stats.PermissionsFixed,
		&stats.DirFailures,
	)
	if err != nil {
		return nil, err
	}

	rows, err := d.db.Query(`
		SELECT status, COUNT(*)
		FROM runs
		WHERE started_at >= ?
		GROUP BY status
	`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats.ByStatus[status] = count
	}

	return stats, rows.Err()
}

// DeleteOldRuns removes runs, and through the cascade their failures,
// started more than olderThanDays ago
func (d *HistoryDB) DeleteOldRuns(olderThanDays int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -olderThanDays)

	result, err := d.db.Exec(`DELETE FROM runs WHERE started_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// queryRuns is a helper function to execute queries and scan results
func (d *HistoryDB) queryRuns(query string, args ...interface{}) ([]RunRecord, error) {
	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		var r RunRecord
		var errKind, errMsg sql.NullString

		err := rows.Scan(
			&r.ID, &r.RunID, &r.Target, &r.Workers, &r.DirPolicy,
			&r.StartedAt, &r.FinishedAt, &r.Status,
			&r.FilesRemoved, &r.SymlinksRemoved, &r.DirsRemoved,
			&r.PermissionsFixed, &r.DirFailures, &errKind, &errMsg,
		)
		if err != nil {
			return nil, err
		}
		r.ErrorKind = errKind.String
		r.ErrorMessage = errMsg.String

		records = append(records, r)
	}

	return records, rows.Err()
}
