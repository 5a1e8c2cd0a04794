// Package runner wraps one sweep with everything around it: target
// validation, the run lock, metrics, diagnostics and run history.
package runner

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"treesweep/internal/cleanup"
	"treesweep/internal/config"
	"treesweep/internal/database"
	"treesweep/internal/display"
	"treesweep/internal/filelock"
	"treesweep/internal/fsops"
	"treesweep/internal/metrics"
	"treesweep/internal/safety"
)

// Recorder persists finished runs. *database.HistoryDB implements it.
type Recorder interface {
	RecordRun(run database.RunRecord, failures []database.FailureRecord) error
}

// Deps are the collaborators of a run. Zero values are valid: no history,
// diagnostics discarded, the real filesystem.
type Deps struct {
	Recorder Recorder
	Out      io.Writer
	FS       fsops.FS
}

// Result describes a finished or aborted run.
type Result struct {
	RunID  string
	Target string
	Status string
	Report *cleanup.Report
}

// RunOnce validates target, takes the run lock and sweeps it. The returned
// error is a safety sentinel, filelock.ErrLocked, a *cleanup.Error or a
// plain runtime error; Result is non-nil once the sweep has started.
func RunOnce(ctx context.Context, cfg *config.Config, target string, logger zerolog.Logger, deps Deps) (*Result, error) {
	if cfg == nil {
		return nil, errors.New("nil config")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := deps.Out
	if out == nil {
		out = io.Discard
	}

	validator := safety.NewValidator(cfg.Safety.AllowedRoots, stateProtected(cfg))
	path, err := validator.ValidateTarget(target)
	if err != nil {
		logger.Error().Err(err).Str("target", target).Msg("Target refused")
		return nil, err
	}

	policy, err := cleanup.ParseDirPolicy(cfg.DirectoryFailures)
	if err != nil {
		return nil, err
	}

	lock, err := filelock.Acquire(cfg.LockPath)
	if err != nil {
		return nil, err
	}
	logger.Debug().Str("lock", lock.Path()).Msg("Run lock acquired")
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Warn().Err(err).Str("lock", lock.Path()).Msg("Failed to release run lock")
		}
	}()

	workers := cleanup.DefaultWorkers(cfg.Workers.Multiplier, cfg.Workers.Max)
	cleaner := cleanup.NewCleaner(logger, cleanup.Options{Workers: workers, DirPolicy: policy})
	if deps.FS != nil {
		cleaner.SetFS(deps.FS)
	}
	metrics.SetWorkers(workers)

	// Warnings arrive from several workers at once
	var outMu sync.Mutex
	cleaner.SetWarnHandler(func(e *cleanup.Error) {
		outMu.Lock()
		defer outMu.Unlock()
		display.Warning(out, e)
	})

	if cfg.Metrics.Listen != "" {
		metrics.StartServer(cfg.Metrics.Listen, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			metrics.Shutdown(shutdownCtx, logger)
		}()
	}

	res := &Result{RunID: uuid.NewString(), Target: path}
	logger = logger.With().Str("run_id", res.RunID).Logger()

	started := time.Now()
	report, cleanErr := cleaner.Clean(ctx, path)
	finished := time.Now()
	res.Report = report
	res.Status = status(report, cleanErr)

	metrics.RecordCleanupRun(res.Status, finished.Sub(started))
	if cfg.Metrics.Textfile != "" {
		if err := metrics.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			logger.Warn().Err(err).Msg("Failed to write metrics textfile")
		}
	}

	if deps.Recorder != nil {
		run, failures := historyRecords(res, workers, policy, started, finished, cleanErr)
		if err := deps.Recorder.RecordRun(run, failures); err != nil {
			logger.Error().Err(err).Msg("Failed to record run history")
		}
	}

	logger.Info().
		Str("target", path).
		Str("status", res.Status).
		Dur("duration", finished.Sub(started)).
		Msg("Run finished")

	if cleanErr != nil {
		return res, cleanErr
	}
	return res, nil
}

// stateProtected keeps a sweep from removing treesweep's own files.
func stateProtected(cfg *config.Config) []string {
	paths := append([]string(nil), cfg.Safety.ProtectedPaths...)
	for _, p := range []string{cfg.DatabasePath, cfg.LockPath, cfg.Logging.File} {
		if p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}

func status(report *cleanup.Report, err error) string {
	switch {
	case err != nil:
		return database.StatusFailed
	case !report.Complete():
		return database.StatusWarnings
	default:
		return database.StatusComplete
	}
}

func historyRecords(res *Result, workers int, policy cleanup.DirPolicy, started, finished time.Time, cleanErr error) (database.RunRecord, []database.FailureRecord) {
	r := res.Report
	run := database.RunRecord{
		RunID:            res.RunID,
		Target:           res.Target,
		Workers:          workers,
		DirPolicy:        policy.String(),
		StartedAt:        started,
		FinishedAt:       finished,
		Status:           res.Status,
		FilesRemoved:     r.FilesRemoved,
		SymlinksRemoved:  r.SymlinksRemoved,
		DirsRemoved:      r.DirsRemoved,
		PermissionsFixed: r.PermissionsFixed,
		DirFailures:      len(r.DirFailures),
	}

	var failures []database.FailureRecord
	for _, f := range r.DirFailures {
		// Under abort the fatal error is in DirFailures too
		if cleanErr != nil && errors.Is(cleanErr, f) {
			continue
		}
		failures = append(failures, failureRecord(f, false))
	}

	if cleanErr != nil {
		run.ErrorMessage = cleanErr.Error()
		var serr *cleanup.Error
		if errors.As(cleanErr, &serr) {
			run.ErrorKind = serr.Kind.String()
			failures = append(failures, failureRecord(serr, true))
		} else {
			run.ErrorKind = "canceled"
		}
	}
	return run, failures
}

func failureRecord(e *cleanup.Error, fatal bool) database.FailureRecord {
	msg := ""
	if e.Err != nil {
		msg = e.Err.Error()
	}
	return database.FailureRecord{
		Path:         e.Path,
		Kind:         e.Kind.String(),
		Fatal:        fatal,
		ErrorMessage: msg,
	}
}
