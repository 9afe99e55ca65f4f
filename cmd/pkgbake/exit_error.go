// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/pkgbake/pkgbake/internal/app/pipeline"
	"github.com/pkgbake/pkgbake/internal/build"
	"github.com/pkgbake/pkgbake/internal/config"
	"github.com/pkgbake/pkgbake/internal/extract"
	"github.com/pkgbake/pkgbake/internal/fetch"
	"github.com/pkgbake/pkgbake/internal/issue"
	"github.com/pkgbake/pkgbake/internal/report"
	"github.com/pkgbake/pkgbake/internal/shell"
	"github.com/pkgbake/pkgbake/internal/unpack"
	"github.com/pkgbake/pkgbake/internal/verify"
)

// ExitError signals a non-zero exit code without forcing os.Exit in RunE handlers.
type ExitError struct {
	Code shell.ExitCode
	Err  error
}

// Error returns the error message for ExitError.
func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

// Unwrap returns the underlying error, if any.
func (e *ExitError) Unwrap() error {
	return e.Err
}

// classifyError maps a failure to the issue catalog. The second result is
// false when no catalog entry fits.
func classifyError(err error) (issue.Id, bool) {
	if id, ok := issue.IssueOf(err); ok {
		return id, true
	}
	switch {
	case errors.Is(err, shell.ErrInterpreterNotFound):
		return issue.InterpreterNotFoundId, true
	case errors.Is(err, pipeline.ErrArchNotSupported):
		return issue.ArchNotSupportedId, true
	case errors.Is(err, extract.ErrSpecLoad) && errors.Is(err, fs.ErrNotExist):
		return issue.BuildFileNotFoundId, true
	case errors.Is(err, extract.ErrSpecLoad):
		return issue.SpecLoadFailedId, true
	case errors.Is(err, verify.ErrVerification):
		return issue.VerificationFailedId, true
	case errors.Is(err, fetch.ErrFetchExhausted), errors.Is(err, fetch.ErrSourceMissing),
		errors.Is(err, fetch.ErrVCSUnsupported), errors.Is(err, fetch.ErrUnsupportedProtocol):
		return issue.FetchFailedId, true
	case errors.Is(err, unpack.ErrUnpack), errors.Is(err, unpack.ErrUnsafePath):
		return issue.UnpackFailedId, true
	case errors.Is(err, build.ErrStageFailed):
		return issue.StageFailedId, true
	case errors.Is(err, os.ErrPermission):
		return issue.PermissionDeniedId, true
	case errors.Is(err, config.ErrInvalidConfig):
		return issue.ConfigLoadFailedId, true
	}

	// Fall back on the phase the run stopped in.
	var pe *pipeline.PhaseError
	if errors.As(err, &pe) {
		switch pe.Phase {
		case report.PhaseFetch:
			return issue.FetchFailedId, true
		case report.PhaseVerify:
			return issue.VerificationFailedId, true
		case report.PhaseUnpack:
			return issue.UnpackFailedId, true
		case report.PhaseBuild:
			return issue.StageFailedId, true
		}
	}
	return 0, false
}

// fail renders the issue matching err on stderr and returns err wrapped for
// a non-zero exit.
func (a *App) fail(err error) error {
	if id, ok := classifyError(err); ok {
		if rendered, rerr := issue.Get(id).Render(""); rerr == nil {
			fmt.Fprint(a.stderr, rendered)
		}
	}
	var ae *issue.ActionableError
	if errors.As(err, &ae) && len(ae.Hints) > 0 {
		fmt.Fprintln(a.stderr, ae.Format(false))
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return err
	}
	return &ExitError{Code: 1, Err: err}
}
