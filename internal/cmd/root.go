package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"treesweep/internal/config"
	"treesweep/internal/exitcodes"
)

// Version is injected at build time via -ldflags
var Version = "dev"

// NewRootCommand creates and returns the root cobra command for treesweep
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "treesweep",
		Short: "Fast parallel removal of large directory trees",
		Long: `treesweep removes a directory and everything beneath it using a large
pool of workers. Files and symlinks are removed while the tree is being
enumerated; directories are removed afterwards, deepest level first.

Read-only entries are made writable before removal. A directory that cannot
be removed is reported as a warning and the rest of the tree is still
removed, unless directory_failures is set to abort.`,
		Version: Version,
		// main prints the error once, in color
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().String("config", "", "Path to configuration file (default "+config.DefaultConfigPath+" if present)")
	cmd.PersistentFlags().String("log-level", "", "Log level: trace, debug, info, warn, error")

	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return withCode(exitcodes.InvalidConfig, err)
	})

	cmd.AddCommand(NewCleanCommand())
	cmd.AddCommand(NewHistoryCommand())

	return cmd
}

// loadConfig reads --config, or the system config when it exists, then
// applies --log-level. Any problem is a configuration error.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")

	var cfg *config.Config
	switch {
	case path != "":
		c, err := config.Load(path)
		if err != nil {
			return nil, withCode(exitcodes.InvalidConfig, err)
		}
		cfg = c
	default:
		c, err := config.Load(config.DefaultConfigPath)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, withCode(exitcodes.InvalidConfig, err)
		}
		if err != nil {
			c = config.Default()
		}
		cfg = c
	}

	if cmd.Flags().Changed("log-level") {
		cfg.Logging.Level, _ = cmd.Flags().GetString("log-level")
	}
	return cfg, nil
}

// usageArgs marks argument validation failures as usage errors.
func usageArgs(fn cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := fn(cmd, args); err != nil {
			return withCode(exitcodes.InvalidConfig, err)
		}
		return nil
	}
}

func closeQuietly(name string, c interface{ Close() error }) {
	if err := c.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to close %s: %v\n", name, err)
	}
}
