package main

import (
	"os"

	"treesweep/internal/cmd"
	"treesweep/internal/display"
)

func main() {
	rootCmd := cmd.NewRootCommand()

	if err := rootCmd.Execute(); err != nil {
		display.Error(os.Stdout, err)
		os.Exit(cmd.ExitCode(err))
	}
}
