// SPDX-License-Identifier: MPL-2.0

package extract

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pkgbake/pkgbake/internal/shell"
)

// ErrSpecLoad is the sentinel wrapped by SpecLoadError.
var ErrSpecLoad = errors.New("failed to load build file")

// SpecLoadError reports that the interpreter could not produce a complete
// metadata stream. No partial stream accompanies it.
type SpecLoadError struct {
	Path     string
	Mode     shell.Mode
	ExitCode shell.ExitCode
	// Stderr is the interpreter's diagnostic output.
	Stderr string
	Cause  error
}

// Error implements the error interface for SpecLoadError.
func (e *SpecLoadError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "load %s: bash %s", e.Path, e.Mode)
	switch {
	case e.Cause != nil:
		fmt.Fprintf(&b, ": %v", e.Cause)
	default:
		fmt.Fprintf(&b, " exited with status %s", e.ExitCode)
	}
	if line := lastLine(e.Stderr); line != "" {
		fmt.Fprintf(&b, ": %s", line)
	}
	return b.String()
}

// Unwrap returns ErrSpecLoad and the cause for errors.Is() compatibility.
func (e *SpecLoadError) Unwrap() []error {
	if e.Cause != nil {
		return []error{ErrSpecLoad, e.Cause}
	}
	return []error{ErrSpecLoad}
}

func lastLine(s string) string {
	s = strings.TrimRight(s, "\n")
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
