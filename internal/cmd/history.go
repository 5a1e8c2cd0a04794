package cmd

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"treesweep/internal/database"
	"treesweep/internal/exitcodes"
)

// NewHistoryCommand creates the 'treesweep history' command
func NewHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show past runs",
		Long: `Query the run history database.

With no filter the 20 most recent runs are listed.`,
		Example: `  treesweep history --recent 10             # 10 most recent runs
  treesweep history --status warnings       # runs that left directories behind
  treesweep history --target '/srv/build/%' # runs under /srv/build (SQL LIKE)
  treesweep history --failures <run-id>     # paths that failed in one run
  treesweep history --stats --days 7        # totals for the last week
  treesweep history --run <run-id>          # one run and its failures
  treesweep history --since 2026-01-01      # runs started since a date
  treesweep history --prune 90 --vacuum     # drop runs older than 90 days
  treesweep history --db-stats              # size and span of the database`,
		Args: usageArgs(cobra.NoArgs),
		RunE: runHistory,
	}

	cmd.Flags().String("db", "", "Path to history database (default from config)")
	cmd.Flags().Int("recent", 20, "Number of runs to show")
	cmd.Flags().String("status", "", "Only runs with this status: complete, warnings, failed")
	cmd.Flags().String("target", "", "Only runs whose target matches this SQL LIKE pattern")
	cmd.Flags().String("failures", "", "Show the failed paths of one run")
	cmd.Flags().Bool("stats", false, "Show totals instead of runs")
	cmd.Flags().Int("days", 30, "Period for --stats, in days")
	cmd.Flags().String("run", "", "Show one run and its failures")
	cmd.Flags().String("since", "", "Only runs started at or after this date (YYYY-MM-DD or RFC 3339)")
	cmd.Flags().String("until", "", "Only runs started at or before this date (default now)")
	cmd.Flags().Int("prune", 0, "Delete runs older than this many days")
	cmd.Flags().Bool("vacuum", false, "Compact the database file")
	cmd.Flags().Bool("db-stats", false, "Show database size and the span of recorded runs")
	cmd.Flags().Bool("json", false, "Output in JSON format")

	return cmd
}

func runHistory(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	flags := cmd.Flags()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	dbPath := cfg.DatabasePath
	if flags.Changed("db") {
		dbPath, _ = flags.GetString("db")
	}

	limit, _ := flags.GetInt("recent")
	status, _ := flags.GetString("status")
	target, _ := flags.GetString("target")
	runID, _ := flags.GetString("failures")
	stats, _ := flags.GetBool("stats")
	days, _ := flags.GetInt("days")
	showRun, _ := flags.GetString("run")
	sinceStr, _ := flags.GetString("since")
	untilStr, _ := flags.GetString("until")
	prune, _ := flags.GetInt("prune")
	vacuum, _ := flags.GetBool("vacuum")
	dbStats, _ := flags.GetBool("db-stats")
	jsonOutput, _ := flags.GetBool("json")

	if limit <= 0 || days <= 0 {
		return withCode(exitcodes.InvalidConfig, fmt.Errorf("--recent and --days must be positive"))
	}
	if prune < 0 {
		return withCode(exitcodes.InvalidConfig, fmt.Errorf("--prune must not be negative"))
	}
	var since, until time.Time
	if sinceStr != "" || untilStr != "" {
		if since, err = parseDate(sinceStr, time.Time{}); err != nil {
			return withCode(exitcodes.InvalidConfig, fmt.Errorf("--since: %w", err))
		}
		if until, err = parseDate(untilStr, time.Now()); err != nil {
			return withCode(exitcodes.InvalidConfig, fmt.Errorf("--until: %w", err))
		}
		if until.Before(since) {
			return withCode(exitcodes.InvalidConfig, fmt.Errorf("--until is before --since"))
		}
	}
	switch status {
	case "", database.StatusComplete, database.StatusWarnings, database.StatusFailed:
	default:
		return withCode(exitcodes.InvalidConfig, fmt.Errorf("unknown status %q", status))
	}

	db, err := database.NewHistoryDB(dbPath)
	if err != nil {
		return fmt.Errorf("open history %s: %w", dbPath, err)
	}
	defer closeQuietly("history database", db)

	switch {
	case prune > 0 || vacuum:
		return maintain(out, db, prune, vacuum)
	case dbStats:
		s, err := db.GetDatabaseStats()
		if err != nil {
			return fmt.Errorf("get database statistics: %w", err)
		}
		if jsonOutput {
			return writeJSON(out, s)
		}
		printDatabaseStats(out, dbPath, s)
	case showRun != "":
		run, err := db.GetRun(showRun)
		if errors.Is(err, sql.ErrNoRows) {
			return withCode(exitcodes.InvalidConfig, fmt.Errorf("no run with id %s", showRun))
		}
		if err != nil {
			return fmt.Errorf("get run: %w", err)
		}
		failures, err := db.GetFailures(showRun)
		if err != nil {
			return fmt.Errorf("get failures: %w", err)
		}
		if jsonOutput {
			return writeJSON(out, struct {
				Run      *database.RunRecord
				Failures []database.FailureRecord
			}{run, failures})
		}
		printRuns(out, []database.RunRecord{*run})
		if run.ErrorMessage != "" {
			fmt.Fprintf(out, "\nStopped by %s error: %s\n", run.ErrorKind, run.ErrorMessage)
		}
		fmt.Fprintln(out)
		printFailures(out, failures)
	case stats:
		s, err := db.GetRunStats(days)
		if err != nil {
			return fmt.Errorf("get statistics: %w", err)
		}
		if jsonOutput {
			return writeJSON(out, s)
		}
		printStats(out, s, days)
	case runID != "":
		failures, err := db.GetFailures(runID)
		if err != nil {
			return fmt.Errorf("get failures: %w", err)
		}
		if jsonOutput {
			return writeJSON(out, failures)
		}
		printFailures(out, failures)
	default:
		var runs []database.RunRecord
		switch {
		case !until.IsZero():
			runs, err = db.GetRunsByDateRange(since, until)
			if len(runs) > limit {
				runs = runs[:limit]
			}
		case status != "":
			runs, err = db.GetRunsByStatus(status, limit)
		case target != "":
			runs, err = db.GetRunsByTarget(target, limit)
		default:
			runs, err = db.GetRecentRuns(limit)
		}
		if err != nil {
			return fmt.Errorf("query runs: %w", err)
		}
		if jsonOutput {
			return writeJSON(out, runs)
		}
		printRuns(out, runs)
	}
	return nil
}

// parseDate accepts a calendar date in local time or an RFC 3339 timestamp.
// An empty value yields def.
func parseDate(s string, def time.Time) (time.Time, error) {
	if s == "" {
		return def, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", s, time.Local); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

func maintain(out io.Writer, db *database.HistoryDB, pruneDays int, vacuum bool) error {
	if pruneDays > 0 {
		n, err := db.DeleteOldRuns(pruneDays)
		if err != nil {
			return fmt.Errorf("prune runs: %w", err)
		}
		fmt.Fprintf(out, "Pruned %d run(s) older than %d days\n", n, pruneDays)
	}
	if vacuum {
		if err := db.Vacuum(); err != nil {
			return fmt.Errorf("vacuum: %w", err)
		}
		fmt.Fprintln(out, "Database vacuumed")
	}
	return nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printRuns(out io.Writer, runs []database.RunRecord) {
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs found")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "Run\tStarted\tStatus\tFiles\tDirs\tFailed\tDuration\tTarget")
	_, _ = fmt.Fprintln(w, "---\t-------\t------\t-----\t----\t------\t--------\t------")
	for _, r := range runs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
			r.RunID,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			statusColor(r.Status),
			r.FilesRemoved+r.SymlinksRemoved,
			r.DirsRemoved,
			r.DirFailures,
			r.Duration().Round(time.Millisecond),
			r.Target,
		)
	}
	_ = w.Flush()
}

func printFailures(out io.Writer, failures []database.FailureRecord) {
	if len(failures) == 0 {
		fmt.Fprintln(out, "No failures recorded")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "Kind\tFatal\tPath\tError")
	_, _ = fmt.Fprintln(w, "----\t-----\t----\t-----")
	for _, f := range failures {
		_, _ = fmt.Fprintf(w, "%s\t%t\t%s\t%s\n", f.Kind, f.Fatal, f.Path, f.ErrorMessage)
	}
	_ = w.Flush()
}

func printStats(out io.Writer, s *database.RunStats, days int) {
	fmt.Fprintf(out, "Run Statistics (Last %d days)\n", days)
	fmt.Fprintf(out, "Period: %s to %s\n\n", s.StartDate.Local().Format("2006-01-02"), s.EndDate.Local().Format("2006-01-02"))
	fmt.Fprintf(out, "Runs:               %d\n", s.TotalRuns)
	fmt.Fprintf(out, "Files removed:      %d\n", s.FilesRemoved)
	fmt.Fprintf(out, "Symlinks removed:   %d\n", s.SymlinksRemoved)
	fmt.Fprintf(out, "Dirs removed:       %d\n", s.DirsRemoved)
	fmt.Fprintf(out, "Permissions fixed:  %d\n", s.PermissionsFixed)
	fmt.Fprintf(out, "Directory failures: %d\n", s.DirFailures)

	if len(s.ByStatus) > 0 {
		statuses := make([]string, 0, len(s.ByStatus))
		for st := range s.ByStatus {
			statuses = append(statuses, st)
		}
		sort.Strings(statuses)

		fmt.Fprintln(out, "\nBy Status:")
		for _, st := range statuses {
			fmt.Fprintf(out, "  %-10s %d\n", st, s.ByStatus[st])
		}
	}
}

func printDatabaseStats(out io.Writer, path string, s *database.DatabaseStats) {
	fmt.Fprintf(out, "Database: %s\n", path)
	fmt.Fprintf(out, "Size:     %d bytes\n", s.SizeBytes)
	fmt.Fprintf(out, "Runs:     %d\n", s.TotalRuns)
	fmt.Fprintf(out, "Failures: %d\n", s.TotalFailures)
	if s.TotalRuns > 0 {
		fmt.Fprintf(out, "Oldest:   %s\n", s.OldestRun.Local().Format("2006-01-02 15:04:05"))
		fmt.Fprintf(out, "Newest:   %s\n", s.NewestRun.Local().Format("2006-01-02 15:04:05"))
	}
}

func statusColor(status string) string {
	switch status {
	case database.StatusComplete:
		return color.GreenString(status)
	case database.StatusWarnings:
		return color.YellowString(status)
	case database.StatusFailed:
		return color.RedString(status)
	default:
		return status
	}
}
