// SPDX-License-Identifier: MPL-2.0

package shell

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"
)

const (
	// ModeDump prints globals, presence markers and function definitions.
	ModeDump Mode = "dump"
	// ModeOverride evaluates function-local assignment fragments.
	ModeOverride Mode = "override"
	// ModeConf merges configuration files.
	ModeConf Mode = "conf"
	// ModeRun executes one lifecycle function.
	ModeRun Mode = "run"

	// DefaultPath is the interpreter looked up in PATH.
	DefaultPath = "bash"

	// killGrace is how long Wait keeps reading output after a kill.
	killGrace = 5 * time.Second
)

//go:embed helper.bash
var helperScript string

// ErrInterpreterNotFound is returned when bash cannot be located.
var ErrInterpreterNotFound = errors.New("bash interpreter not found")

type (
	// Mode selects the helper entry point.
	Mode string

	// Invocation describes one interpreter run.
	Invocation struct {
		Mode Mode
		Args []string
		// Dir is the process working directory.
		Dir string
		// Env is appended to the interpreter's base environment.
		Env []string
		// Stdout receives stdout when streaming; nil discards it.
		Stdout io.Writer
		// Stderr overrides the interpreter's stderr writer.
		Stderr io.Writer
	}

	// Interpreter starts bash processes running the embedded helper.
	// It holds no per-invocation state and is safe for concurrent use.
	Interpreter struct {
		path   string
		env    []string
		stderr io.Writer
	}

	// Option configures an Interpreter.
	Option func(*Interpreter)
)

// WithPath sets the bash executable.
func WithPath(path string) Option {
	return func(i *Interpreter) {
		if path != "" {
			i.path = path
		}
	}
}

// WithEnv replaces the base environment (default: the filtered process
// environment).
func WithEnv(env []string) Option {
	return func(i *Interpreter) { i.env = env }
}

// WithStderr sets where interpreter diagnostics go (default: os.Stderr).
func WithStderr(w io.Writer) Option {
	return func(i *Interpreter) { i.stderr = w }
}

// New creates an Interpreter.
func New(opts ...Option) *Interpreter {
	i := &Interpreter{
		path:   DefaultPath,
		env:    FilterEnv(os.Environ()),
		stderr: os.Stderr,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Path returns the configured bash executable.
func (i *Interpreter) Path() string { return i.path }

// Available reports whether the interpreter can be found.
func (i *Interpreter) Available() bool {
	_, err := exec.LookPath(i.path)
	return err == nil
}

// Run executes the invocation, streaming output to inv.Stdout and the
// interpreter's stderr.
func (i *Interpreter) Run(ctx context.Context, inv Invocation) *Result {
	stderr := inv.Stderr
	if stderr == nil {
		stderr = i.stderr
	}
	return i.execute(ctx, inv, passthrough(inv.Stdout, stderr))
}

// Capture executes the invocation and returns stdout and stderr in the
// Result. Stderr is also copied to the interpreter's stderr writer so
// diagnostics stay visible.
func (i *Interpreter) Capture(ctx context.Context, inv Invocation) *Result {
	stderr := inv.Stderr
	if stderr == nil {
		stderr = i.stderr
	}
	return i.execute(ctx, inv, capturing(stderr))
}

func (i *Interpreter) execute(ctx context.Context, inv Invocation, out *streams) *Result {
	path, err := exec.LookPath(i.path)
	if err != nil {
		return NewErrorResult(1, fmt.Errorf("%w: %w", ErrInterpreterNotFound, err))
	}

	args := append([]string{"--noprofile", "--norc", "-s", "-", string(inv.Mode)}, inv.Args...)
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Dir = inv.Dir
	cmd.Env = append(append([]string{}, i.env...), inv.Env...)
	cmd.Stdin = strings.NewReader(helperScript)
	out.attach(cmd)
	cmd.WaitDelay = killGrace
	configureProcessGroup(cmd)

	return out.result(ctx, inv.Mode, cmd.Run())
}
