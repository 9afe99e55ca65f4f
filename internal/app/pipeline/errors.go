// SPDX-License-Identifier: MPL-2.0

package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pkgbake/pkgbake/internal/report"
)

// ErrArchNotSupported is returned when the build file's arch array excludes
// the target architecture.
var ErrArchNotSupported = errors.New("architecture not supported")

var errIncompleteFetch = errors.New("not every source was fetched")

type (
	// ArchError reports an architecture mismatch.
	// It wraps ErrArchNotSupported for errors.Is() compatibility.
	ArchError struct {
		Arch      string
		Supported []string
	}

	// PhaseError attributes a failure to the pipeline phase it happened in.
	PhaseError struct {
		Phase report.Phase
		Err   error
	}
)

// Error implements the error interface for ArchError.
func (e *ArchError) Error() string {
	return fmt.Sprintf("%s is not in arch=(%s)", e.Arch, strings.Join(e.Supported, " "))
}

// Unwrap returns ErrArchNotSupported for errors.Is() compatibility.
func (e *ArchError) Unwrap() error { return ErrArchNotSupported }

// Error implements the error interface for PhaseError.
func (e *PhaseError) Error() string { return string(e.Phase) + ": " + e.Err.Error() }

// Unwrap returns the underlying error.
func (e *PhaseError) Unwrap() error { return e.Err }

func phaseErr(p report.Phase, err error) error {
	if err == nil {
		return nil
	}
	return &PhaseError{Phase: p, Err: err}
}
