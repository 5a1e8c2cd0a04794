package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Run outcomes stored in runs.status.
const (
	StatusComplete = "complete" // everything removed
	StatusWarnings = "warnings" // finished, some directories left behind
	StatusFailed   = "failed"   // stopped by a fatal error
)

// HistoryDB manages the SQLite database of sweep runs
type HistoryDB struct {
	db *sql.DB
}

// RunRecord is one sweep
type RunRecord struct {
	ID               int64
	RunID            string
	Target           string
	Workers          int
	DirPolicy        string
	StartedAt        time.Time
	FinishedAt       time.Time
	Status           string
	FilesRemoved     int64
	SymlinksRemoved  int64
	DirsRemoved      int64
	PermissionsFixed int64
	DirFailures      int
	ErrorKind        string
	ErrorMessage     string
}

// Duration is the wall time of the run.
func (r RunRecord) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// FailureRecord is one failed path within a run: every tolerated directory
// failure, plus the fatal error if there was one.
type FailureRecord struct {
	ID           int64
	RunID        string
	Path         string
	Kind         string
	Fatal        bool
	ErrorMessage string
	CreatedAt    time.Time
}

// NewHistoryDB creates a new database connection and initializes schema
func NewHistoryDB(dbPath string) (*HistoryDB, error) {
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	// _loc=auto makes the driver parse DATETIME columns into time.Time.
	// Per-connection pragmas go in the DSN so every pooled connection gets them.
	dsn := "file:" + dbPath + "?_loc=auto&_foreign_keys=1&_synchronous=NORMAL&_txlock=immediate"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err != nil {
			db.Close()
		}
	}()

	// Ping does not create the file; a query does
	if _, err = db.Exec("SELECT 1"); err != nil {
		return nil, fmt.Errorf("failed to initialize database (check permissions on %s): %w", dbPath, err)
	}

	if _, err = db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	hdb := &HistoryDB{db: db}
	if err = hdb.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return hdb, nil
}

// initSchema creates tables and indexes if they don't exist
func (d *HistoryDB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL UNIQUE,
		target TEXT NOT NULL,
		workers INTEGER NOT NULL,
		dir_policy TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		finished_at DATETIME NOT NULL,
		status TEXT NOT NULL,

		files_removed INTEGER NOT NULL DEFAULT 0,
		symlinks_removed INTEGER NOT NULL DEFAULT 0,
		dirs_removed INTEGER NOT NULL DEFAULT 0,
		permissions_fixed INTEGER NOT NULL DEFAULT 0,
		dir_failures INTEGER NOT NULL DEFAULT 0,

		error_kind TEXT,
		error_message TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
	CREATE INDEX IF NOT EXISTS idx_runs_target ON runs(target);

	CREATE TABLE IF NOT EXISTS failures (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
		path TEXT NOT NULL,
		kind TEXT NOT NULL,
		fatal INTEGER NOT NULL DEFAULT 0,
		error_message TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_failures_run_id ON failures(run_id);

	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`

	_, err := d.db.Exec(schema)
	return err
}

// RecordRun stores a finished run and its failures in one transaction.
// Times are stored in UTC so range queries compare consistently.
func (d *HistoryDB) RecordRun(run RunRecord, failures []FailureRecord) error {
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
	INSERT INTO runs (
		run_id, target, workers, dir_policy, started_at, finished_at, status,
		files_removed, symlinks_removed, dirs_removed, permissions_fixed,
		dir_failures, error_kind, error_message
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.RunID,
		run.Target,
		run.Workers,
		run.DirPolicy,
		run.StartedAt.UTC(),
		run.FinishedAt.UTC(),
		run.Status,
		run.FilesRemoved,
		run.SymlinksRemoved,
		run.DirsRemoved,
		run.PermissionsFixed,
		run.DirFailures,
		nullString(run.ErrorKind),
		nullString(run.ErrorMessage),
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.RunID, err)
	}

	if len(failures) > 0 {
		stmt, err := tx.Prepare(`
		INSERT INTO failures (run_id, path, kind, fatal, error_message)
		VALUES (?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("prepare failures: %w", err)
		}
		defer stmt.Close()

		for _, f := range failures {
			if _, err := stmt.Exec(run.RunID, f.Path, f.Kind, f.Fatal, nullString(f.ErrorMessage)); err != nil {
				return fmt.Errorf("insert failure %s: %w", f.Path, err)
			}
		}
	}

	return tx.Commit()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Close closes the database connection
func (d *HistoryDB) Close() error {
	return d.db.Close()
}

// Vacuum optimizes the database (run periodically)
func (d *HistoryDB) Vacuum() error {
	_, err := d.db.Exec("VACUUM")
	return err
}

// DatabaseStats describes the history file itself.
type DatabaseStats struct {
	TotalRuns     int64
	TotalFailures int64
	SizeBytes     int64
	OldestRun     time.Time
	NewestRun     time.Time
}

// GetDatabaseStats returns database statistics
func (d *HistoryDB) GetDatabaseStats() (*DatabaseStats, error) {
	stats := &DatabaseStats{}

	if err := d.db.QueryRow("SELECT COUNT(*) FROM runs").Scan(&stats.TotalRuns); err != nil {
		return nil, err
	}
	if err := d.db.QueryRow("SELECT COUNT(*) FROM failures").Scan(&stats.TotalFailures); err != nil {
		return nil, err
	}

	var pageCount, pageSize int64
	if err := d.db.QueryRow("PRAGMA page_count").Scan(&pageCount); err != nil {
		return nil, err
	}
	if err := d.db.QueryRow("PRAGMA page_size").Scan(&pageSize); err != nil {
		return nil, err
	}
	stats.SizeBytes = pageCount * pageSize

	// MIN/MAX lose the column type, so read the rows themselves
	var oldest, newest time.Time
	err := d.db.QueryRow("SELECT started_at FROM runs ORDER BY started_at ASC LIMIT 1").Scan(&oldest)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	err = d.db.QueryRow("SELECT started_at FROM runs ORDER BY started_at DESC LIMIT 1").Scan(&newest)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	stats.OldestRun, stats.NewestRun = oldest, newest

	return stats, nil
}
