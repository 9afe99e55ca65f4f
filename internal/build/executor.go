// SPDX-License-Identifier: MPL-2.0

package build

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pkgbake/pkgbake/internal/shell"
	"github.com/pkgbake/pkgbake/pkg/makeconf"
	"github.com/pkgbake/pkgbake/pkg/pkgbuild"
)

type (
	// Tree is the directory layout of one build.
	Tree struct {
		// BuildFile is the build file; pkgver updates rewrite it.
		BuildFile string
		// StartDir holds the build file and local sources.
		StartDir string
		// SrcDir is the working directory of every non-package stage.
		SrcDir string
		// PkgRoot holds one staging directory per package.
		PkgRoot string
	}

	// Executor runs build stages through the interpreter. It is safe for
	// concurrent use on distinct trees.
	Executor struct {
		interp           *shell.Interpreter
		conf             *makeconf.Config
		runCheck         bool
		noPrepare        bool
		updatePkgver     bool
		parallelPackages bool
		stdout           io.Writer
		stderr           io.Writer
		logger           *slog.Logger
	}

	// Option configures an Executor.
	Option func(*Executor)
)

// NewTree lays out a build of buildFile under builddir.
func NewTree(buildFile, builddir string) Tree {
	return Tree{
		BuildFile: buildFile,
		StartDir:  filepath.Dir(buildFile),
		SrcDir:    filepath.Join(builddir, "src"),
		PkgRoot:   filepath.Join(builddir, "pkg"),
	}
}

// PkgDir returns the staging directory of pkgname.
func (t Tree) PkgDir(pkgname string) string { return filepath.Join(t.PkgRoot, pkgname) }

// WithRunCheck enables the check stage.
func WithRunCheck(on bool) Option {
	return func(e *Executor) { e.runCheck = on }
}

// WithNoPrepare disables the prepare stage.
func WithNoPrepare(on bool) Option {
	return func(e *Executor) { e.noPrepare = on }
}

// WithPkgverUpdate controls whether the pkgver stage runs (default on).
func WithPkgverUpdate(on bool) Option {
	return func(e *Executor) { e.updatePkgver = on }
}

// WithParallelPackages runs package stages concurrently.
func WithParallelPackages(on bool) Option {
	return func(e *Executor) { e.parallelPackages = on }
}

// WithMakeConf exports the configuration's flags and architecture.
func WithMakeConf(c *makeconf.Config) Option {
	return func(e *Executor) { e.conf = c }
}

// WithOutput sets where stage output goes.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(e *Executor) { e.stdout, e.stderr = stdout, stderr }
}

// WithLogger sets the executor's logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// New creates an Executor.
func New(interp *shell.Interpreter, opts ...Option) *Executor {
	e := &Executor{
		interp:       interp,
		conf:         &makeconf.Config{},
		updatePkgver: true,
		stdout:       os.Stdout,
		stderr:       os.Stderr,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes the planned stages in order. On failure the returned Result
// holds every stage that ran, the last one failed.
func (e *Executor) Run(ctx context.Context, spec *pkgbuild.Spec, tree Tree) (*Result, error) {
	res := &Result{}
	for _, name := range spec.SplitPackageNames() {
		if _, ok := spec.PackageFunctionFor(name); !ok {
			return res, fmt.Errorf("%w: no package function for %s", ErrNoFunction, name)
		}
	}
	if err := os.MkdirAll(tree.SrcDir, 0o755); err != nil {
		return res, err
	}

	var packages []Stage
	for _, st := range e.Plan(spec) {
		if st.Kind == KindPackage {
			packages = append(packages, st)
			continue
		}
		sr := e.runStage(ctx, spec, tree, st, res)
		res.Stages = append(res.Stages, sr)
		if sr.Err != nil {
			return res, sr.Err
		}
	}

	if e.parallelPackages && len(packages) > 1 {
		return res, e.runPackagesParallel(ctx, spec, tree, packages, res)
	}
	for _, st := range packages {
		sr := e.runStage(ctx, spec, tree, st, res)
		res.Stages = append(res.Stages, sr)
		if sr.Err != nil {
			return res, sr.Err
		}
	}
	return res, nil
}

func (e *Executor) runPackagesParallel(ctx context.Context, spec *pkgbuild.Spec, tree Tree, stages []Stage, res *Result) error {
	results := make([]StageResult, len(stages))
	g, gctx := errgroup.WithContext(ctx)
	for i, st := range stages {
		g.Go(func() error {
			results[i] = e.runStage(gctx, spec, tree, st, res)
			return results[i].Err
		})
	}
	err := g.Wait()
	res.Stages = append(res.Stages, results...)
	return err
}

// RunFunction runs one declared function of spec in workdir, streaming its
// output. It is used for the verify function and ad-hoc invocations.
func (e *Executor) RunFunction(ctx context.Context, spec *pkgbuild.Spec, tree Tree, name, workdir string) (StageResult, error) {
	if !spec.HasFunction(name) {
		return StageResult{}, fmt.Errorf("%w: %s", ErrNoFunction, name)
	}
	st := Stage{Kind: StageKind(name), Function: name}
	start := time.Now()
	r := e.interp.Run(ctx, shell.Invocation{
		Mode:   shell.ModeRun,
		Args:   []string{tree.BuildFile, workdir, name},
		Dir:    workdir,
		Env:    e.env(spec, tree, ""),
		Stdout: e.stdout,
		Stderr: e.stderr,
	})
	sr := e.finish(st, r, start)
	return sr, sr.Err
}

// runStage executes one stage. res receives the new pkgver when the stage
// is pkgver; stages before packaging run sequentially so there is no race.
func (e *Executor) runStage(ctx context.Context, spec *pkgbuild.Spec, tree Tree, st Stage, res *Result) StageResult {
	workdir := tree.SrcDir
	if st.Kind == KindPackage {
		pkgdir := tree.PkgDir(st.Package)
		if err := resetDir(pkgdir); err != nil {
			return StageResult{Stage: st, PkgDir: pkgdir, Err: &StageError{Stage: st.Function, Package: st.Package, Cause: err}}
		}
	}
	e.logger.Info("starting stage", "stage", st.Function, "package", st.Package)

	args := []string{tree.BuildFile, workdir, st.Function}
	if st.Package != "" {
		args = append(args, st.Package)
	}
	inv := shell.Invocation{
		Mode:   shell.ModeRun,
		Args:   args,
		Dir:    workdir,
		Env:    e.env(spec, tree, st.Package),
		Stdout: e.stdout,
		Stderr: e.stderr,
	}
	start := time.Now()

	if st.Kind != KindPkgver {
		sr := e.finish(st, e.interp.Run(ctx, inv), start)
		if st.Kind == KindPackage {
			sr.PkgDir = tree.PkgDir(st.Package)
		}
		return sr
	}

	var out bytes.Buffer
	inv.Stdout = &out
	sr := e.finish(st, e.interp.Run(ctx, inv), start)
	if sr.Err != nil {
		return sr
	}
	version := strings.TrimSpace(out.String())
	if err := pkgbuild.ValidatePkgver(version); err != nil {
		sr.Err = &StageError{Stage: st.Function, Cause: err}
		return sr
	}
	if old := spec.Pkgver(); version != old {
		if err := pkgbuild.SetPkgver(tree.BuildFile, old, version); err != nil {
			sr.Err = &StageError{Stage: st.Function, Cause: err}
			return sr
		}
		e.logger.Info("updated pkgver", "from", old, "to", version)
	}
	res.Pkgver = version
	return sr
}

func (e *Executor) finish(st Stage, r *shell.Result, start time.Time) StageResult {
	sr := StageResult{Stage: st, ExitCode: r.ExitCode, Duration: time.Since(start)}
	if !r.Success() {
		sr.Err = &StageError{Stage: st.Function, Package: st.Package, ExitCode: r.ExitCode, Cause: r.Error}
		e.logger.Error("stage failed", "stage", st.Function, "exit_code", r.ExitCode, "error", r.Error)
		return sr
	}
	e.logger.Debug("stage finished", "stage", st.Function, "duration", sr.Duration)
	return sr
}

// env returns the stage environment. pkgname and pkgdir name the package
// being staged, or the first package outside package stages.
func (e *Executor) env(spec *pkgbuild.Spec, tree Tree, pkgname string) []string {
	if pkgname == "" {
		if names := spec.SplitPackageNames(); len(names) > 0 {
			pkgname = names[0]
		}
	}
	env := []string{
		"startdir=" + tree.StartDir,
		"srcdir=" + tree.SrcDir,
		"pkgdir=" + tree.PkgDir(pkgname),
		"pkgbase=" + spec.Pkgbase(),
		"pkgname=" + pkgname,
	}
	if e.conf.Arch != "" {
		env = append(env, "CARCH="+e.conf.Arch)
	}
	return append(env, e.conf.Env()...)
}

func resetDir(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}
