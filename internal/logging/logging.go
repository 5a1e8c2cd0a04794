package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"treesweep/internal/config"
)

// ParseLevel maps a config level name to a zerolog level. Empty means info.
func ParseLevel(level string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel, nil
	case "debug":
		return zerolog.DebugLevel, nil
	case "", "info":
		return zerolog.InfoLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	default:
		return zerolog.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
}

// Init sets up the global logger: a console writer on console plus, when
// cfg.File is set, a JSON sink appended to that file. The returned closer
// releases the file and is never nil.
func Init(cfg config.LoggingCfg, console io.Writer) (io.Closer, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nopCloser{}, err
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	var closer io.Closer = nopCloser{}
	writers := []io.Writer{zerolog.ConsoleWriter{Out: console, TimeFormat: time.RFC3339}}

	if cfg.File != "" {
		f, err := openLogFile(cfg.File, cfg.RotationDays)
		if err != nil {
			return closer, err
		}
		writers = append(writers, f)
		closer = f
	}

	ctx := zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp()
	if level == zerolog.TraceLevel {
		ctx = ctx.Caller()
	}
	log.Logger = ctx.Logger()
	return closer, nil
}

// GetLogger returns a configured logger for a specific component
func GetLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

func openLogFile(path string, rotationDays int) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure log directory: %w", err)
	}
	if rotationDays <= 0 {
		rotationDays = config.DefaultRotationDays
	}
	rotateLogsIfNeeded(path, rotationDays, time.Now())

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

// rotateLogsIfNeeded renames the log aside once it is older than
// rotationDays. Rotated copies are kept for one more period, then pruned.
func rotateLogsIfNeeded(logPath string, rotationDays int, now time.Time) {
	info, err := os.Stat(logPath)
	if err != nil {
		return
	}

	cutoff := now.AddDate(0, 0, -rotationDays)
	if !info.ModTime().Before(cutoff) {
		return
	}

	rotated := logPath + "." + info.ModTime().Format("20060102-150405")
	if err := os.Rename(logPath, rotated); err != nil {
		fmt.Fprintf(os.Stderr, "failed to rotate log file: %v\n", err)
		return
	}
	pruneRotated(logPath, now.AddDate(0, 0, -2*rotationDays))
}

func pruneRotated(logPath string, cutoff time.Time) {
	dir := filepath.Dir(logPath)
	prefix := filepath.Base(logPath) + "."

	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			os.Remove(filepath.Join(dir, entry.Name()))
		}
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
