package display

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"treesweep/internal/cleanup"
)

// scheme is the fixed palette: red for fatal, yellow for tolerated
// failures, green for counts, cyan for labels.
type scheme struct {
	fail  *color.Color
	warn  *color.Color
	ok    *color.Color
	label *color.Color
}

func newScheme() *scheme {
	return &scheme{
		fail:  color.New(color.FgRed, color.Bold),
		warn:  color.New(color.FgYellow),
		ok:    color.New(color.FgGreen),
		label: color.New(color.FgCyan),
	}
}

// Error prints a fatal diagnostic.
func Error(out io.Writer, err error) {
	newScheme().fail.Fprintf(out, "Error: %v\n", err)
}

// Warning prints a tolerated directory removal failure.
func Warning(out io.Writer, err error) {
	newScheme().warn.Fprintf(out, "Warning: %v\n", err)
}

// Summary prints the counters of a finished sweep.
func Summary(out io.Writer, r *cleanup.Report) {
	s := newScheme()
	line := func(label string, v any) {
		fmt.Fprintf(out, "  %s %s\n", s.label.Sprintf("%-18s", label+":"), s.ok.Sprint(v))
	}

	status := s.ok.Sprint("complete")
	if !r.Complete() {
		status = s.warn.Sprintf("%d director%s left behind", len(r.DirFailures), plural(len(r.DirFailures), "y", "ies"))
	}
	fmt.Fprintf(out, "Removed %s (%s)\n", r.Target, status)
	line("files", r.FilesRemoved)
	line("symlinks", r.SymlinksRemoved)
	line("directories", r.DirsRemoved)
	line("permissions fixed", r.PermissionsFixed)
	line("duration", r.Duration.Round(time.Millisecond))
}

// Confirm asks "Do you wish to delete <path>? y/n" until it reads y or n.
// EOF counts as no.
func Confirm(in io.Reader, out io.Writer, path string) (bool, error) {
	reader := bufio.NewReader(in)
	for {
		fmt.Fprintf(out, "Do you wish to delete %s? y/n ", path)
		answer, err := reader.ReadString('\n')
		switch strings.ToLower(strings.TrimSpace(answer)) {
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		}
		if err == io.EOF {
			fmt.Fprintln(out)
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("read confirmation: %w", err)
		}
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
