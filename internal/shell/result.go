// SPDX-License-Identifier: MPL-2.0

package shell

import (
	"errors"
	"fmt"
)

// ErrTerminated is the sentinel wrapped by TerminatedError.
var ErrTerminated = errors.New("interpreter terminated")

type (
	// Result is the outcome of one interpreter invocation.
	Result struct {
		// ExitCode is the process exit status.
		ExitCode ExitCode
		// Error is set when the process could not run to completion:
		// start failures, I/O errors, or forced termination.
		Error error
		// Output contains captured stdout (Capture only).
		Output string
		// ErrOutput contains captured stderr (Capture only).
		ErrOutput string
	}

	// TerminatedError reports an interpreter killed by a signal or by
	// context cancellation. It wraps ErrTerminated.
	TerminatedError struct {
		Mode  Mode
		Cause error
	}
)

// Error implements the error interface for TerminatedError.
func (e *TerminatedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("bash %s terminated: %v", e.Mode, e.Cause)
	}
	return fmt.Sprintf("bash %s terminated by a signal", e.Mode)
}

// Unwrap returns ErrTerminated and the cause for errors.Is() compatibility.
func (e *TerminatedError) Unwrap() []error {
	if e.Cause != nil {
		return []error{ErrTerminated, e.Cause}
	}
	return []error{ErrTerminated}
}

// Success reports whether the process ran and exited with status 0.
func (r *Result) Success() bool {
	return r.Error == nil && r.ExitCode.IsSuccess()
}

// Err returns nil on success, Error when set, or an error describing the
// non-zero exit status.
func (r *Result) Err() error {
	switch {
	case r.Error != nil:
		return r.Error
	case !r.ExitCode.IsSuccess():
		return fmt.Errorf("exit status %s", r.ExitCode)
	default:
		return nil
	}
}

// NewErrorResult creates a Result with the given exit code and error.
func NewErrorResult(code ExitCode, err error) *Result {
	return &Result{ExitCode: code, Error: err}
}

// NewSuccessResult creates a Result with exit code 0 and no error.
func NewSuccessResult() *Result {
	return &Result{}
}
