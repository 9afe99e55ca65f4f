// SPDX-License-Identifier: MPL-2.0

package build

import (
	"errors"
	"fmt"

	"github.com/pkgbake/pkgbake/internal/shell"
)

var (
	// ErrStageFailed is the sentinel wrapped by StageError.
	ErrStageFailed = errors.New("build stage failed")

	// ErrNoFunction is returned when a requested function is not declared.
	ErrNoFunction = errors.New("function not declared")
)

// StageError reports a stage that exited non-zero or was killed.
type StageError struct {
	Stage    string
	Package  string
	ExitCode shell.ExitCode
	Cause    error
}

// Error implements the error interface for StageError.
func (e *StageError) Error() string {
	name := e.Stage
	if e.Package != "" && e.Stage != packageStage(e.Package) {
		name += " (" + e.Package + ")"
	}
	if e.Cause != nil {
		return fmt.Sprintf("stage %s failed: %v", name, e.Cause)
	}
	return fmt.Sprintf("stage %s failed with exit status %s", name, e.ExitCode)
}

// Unwrap returns ErrStageFailed and the cause for errors.Is() compatibility.
func (e *StageError) Unwrap() []error {
	if e.Cause != nil {
		return []error{ErrStageFailed, e.Cause}
	}
	return []error{ErrStageFailed}
}

func packageStage(pkgname string) string { return "package_" + pkgname }
