// Package display renders the user-facing diagnostics of a sweep.
//
// Operator logs go through zerolog on stderr; the lines here go to stdout
// and are what an interactive user reads:
//
//	display.Error(os.Stdout, err)      // red, the sweep stopped
//	display.Warning(os.Stdout, err)    // yellow, the sweep continues
//	display.Summary(os.Stdout, report) // one line per counter
//
// Colors come from fatih/color and are disabled automatically when stdout
// is not a terminal or NO_COLOR is set.
package display
