package cmd

import (
	"context"
	"errors"

	"treesweep/internal/cleanup"
	"treesweep/internal/exitcodes"
	"treesweep/internal/filelock"
	"treesweep/internal/safety"
)

// exitError pins an error to a process exit code.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func withCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: code, err: err}
}

var safetyErrors = []error{
	safety.ErrInvalidPath,
	safety.ErrProtectedPath,
	safety.ErrContainsProtected,
	safety.ErrOutsideAllowed,
	safety.ErrTraversal,
	safety.ErrSymlinkEscape,
}

// ExitCode maps an error returned by a command to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return exitcodes.Success
	}

	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	if errors.Is(err, filelock.ErrLocked) {
		return exitcodes.Locked
	}
	for _, s := range safetyErrors {
		if errors.Is(err, s) {
			return exitcodes.SafetyViolation
		}
	}

	var serr *cleanup.Error
	if errors.As(err, &serr) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return exitcodes.DeletionAborted
	}
	return exitcodes.RuntimeError
}
