// SPDX-License-Identifier: MPL-2.0

package shell

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"
)

// streams routes the stdout and stderr of one bash invocation. Capture
// mode keeps copies so dump and override output can be parsed afterwards.
type streams struct {
	stdout io.Writer
	stderr io.Writer

	captured bool
	out      bytes.Buffer
	errOut   bytes.Buffer
}

// passthrough sends output straight to the caller, as lifecycle stages do.
func passthrough(stdout, stderr io.Writer) *streams {
	return &streams{stdout: stdout, stderr: stderr}
}

// capturing buffers both streams. Stderr is also echoed to echo when set so
// PKGBUILD warnings stay visible.
func capturing(echo io.Writer) *streams {
	s := &streams{captured: true}
	s.stdout = &s.out
	s.stderr = &s.errOut
	if echo != nil {
		s.stderr = io.MultiWriter(&s.errOut, echo)
	}
	return s
}

func (s *streams) attach(cmd *exec.Cmd) {
	cmd.Stdout, cmd.Stderr = s.stdout, s.stderr
	if cmd.Stdout == nil {
		cmd.Stdout = io.Discard
	}
	if cmd.Stderr == nil {
		cmd.Stderr = io.Discard
	}
}

// result turns the outcome of cmd.Run into a Result. A failure while ctx is
// done, or a death by signal, becomes a TerminatedError for mode.
func (s *streams) result(ctx context.Context, mode Mode, err error) *Result {
	res := &Result{}
	if s.captured {
		res.Output, res.ErrOutput = s.out.String(), s.errOut.String()
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		res.ExitCode = ExitCode(exitErr.ExitCode())
	default:
		// Start failures and pipe errors.
		res.ExitCode, res.Error = 1, err
	}

	switch {
	case ctx.Err() != nil && !res.Success():
		res.Error = &TerminatedError{Mode: mode, Cause: context.Cause(ctx)}
	case res.ExitCode < 0:
		res.ExitCode, res.Error = 1, &TerminatedError{Mode: mode}
	case res.Error == nil:
		if ok, errs := res.ExitCode.IsValid(); !ok {
			res.ExitCode, res.Error = 1, errs[0]
		}
	}
	return res
}
