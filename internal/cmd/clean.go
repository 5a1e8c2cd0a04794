package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"treesweep/internal/cleanup"
	"treesweep/internal/config"
	"treesweep/internal/database"
	"treesweep/internal/display"
	"treesweep/internal/exitcodes"
	"treesweep/internal/logging"
	"treesweep/internal/runner"
)

// stdinIsTerminal decides whether clean may prompt. Tests replace it.
var stdinIsTerminal = func() bool {
	fd := os.Stdin.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

var errNoConfirmation = errors.New("refusing to delete without confirmation: stdin is not a terminal, pass --yes")

// NewCleanCommand creates the 'treesweep clean' command
func NewCleanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clean <path>",
		Short: "Remove a directory tree",
		Long: `Remove <path> and everything beneath it.

Without --yes treesweep asks for confirmation first, and refuses to run when
it cannot ask because stdin is not a terminal.

Exit codes:
  0  removed (directory warnings included)
  1  a fatal error stopped the removal part way
  2  invalid configuration or usage
  3  the target was refused by the safety checks
  4  runtime error (history database, lock file)
  5  another treesweep run holds the lock`,
		Args: usageArgs(cobra.ExactArgs(1)),
		RunE: runClean,
	}

	cmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")
	cmd.Flags().Int("multiplier", 0, "Workers per CPU (default 100)")
	cmd.Flags().Int("max-workers", 0, "Upper bound on the worker pool, 0 for none")
	cmd.Flags().String("dir-failures", "", "What a failed directory removal does: warn or abort")
	cmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address while running")

	return cmd
}

func runClean(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyCleanFlags(cmd, cfg); err != nil {
		return withCode(exitcodes.InvalidConfig, err)
	}

	closer, err := logging.Init(cfg.Logging, cmd.ErrOrStderr())
	if err != nil {
		return withCode(exitcodes.InvalidConfig, err)
	}
	defer closeQuietly("log file", closer)
	logger := logging.GetLogger("clean")

	target := args[0]
	if yes, _ := cmd.Flags().GetBool("yes"); !yes {
		if !stdinIsTerminal() {
			return withCode(exitcodes.InvalidConfig, errNoConfirmation)
		}
		ok, err := display.Confirm(cmd.InOrStdin(), out, target)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(out, "Nothing deleted.")
			return nil
		}
	}

	deps := runner.Deps{Out: out}
	// History is best effort: an unwritable database must not block a sweep
	if db, err := database.NewHistoryDB(cfg.DatabasePath); err != nil {
		logger.Warn().Err(err).Str("path", cfg.DatabasePath).Msg("Run history disabled")
	} else {
		defer closeQuietly("history database", db)
		deps.Recorder = db
	}

	res, err := runner.RunOnce(context.Background(), cfg, target, logging.GetLogger("runner"), deps)
	if err != nil {
		return err
	}

	display.Summary(out, res.Report)
	return nil
}

// applyCleanFlags lays explicitly set flags over the file configuration.
func applyCleanFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("multiplier") {
		cfg.Workers.Multiplier, _ = flags.GetInt("multiplier")
	}
	if flags.Changed("max-workers") {
		cfg.Workers.Max, _ = flags.GetInt("max-workers")
	}
	if flags.Changed("dir-failures") {
		policy, _ := flags.GetString("dir-failures")
		if _, err := cleanup.ParseDirPolicy(policy); err != nil {
			return err
		}
		cfg.DirectoryFailures = policy
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.Listen, _ = flags.GetString("metrics-addr")
	}
	return cfg.Validate()
}
