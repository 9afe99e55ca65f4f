// SPDX-License-Identifier: MPL-2.0

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/pkgbake/pkgbake/internal/build"
	"github.com/pkgbake/pkgbake/internal/config"
	"github.com/pkgbake/pkgbake/internal/extract"
	"github.com/pkgbake/pkgbake/internal/fetch"
	"github.com/pkgbake/pkgbake/internal/report"
	"github.com/pkgbake/pkgbake/internal/shell"
	"github.com/pkgbake/pkgbake/internal/unpack"
	"github.com/pkgbake/pkgbake/internal/verify"
	"github.com/pkgbake/pkgbake/pkg/makeconf"
	"github.com/pkgbake/pkgbake/pkg/pkgbuild"

	"github.com/google/uuid"
)

type (
	// Options are the per-run inputs.
	Options struct {
		// BuildFile is the PKGBUILD path.
		BuildFile string
		// StopAfter ends the run successfully once this phase completes.
		// Zero runs every phase.
		StopAfter report.Phase
		// Arch overrides CARCH.
		Arch string
		// IgnoreArch skips the arch check.
		IgnoreArch bool
		// SrcDest and BuildDir override the configured directories.
		SrcDest  string
		BuildDir string
		// RunCheck enables check() in addition to the config setting.
		RunCheck bool
		// NoCheck disables check() regardless of RunCheck and the config.
		NoCheck bool
		// NoPrepare skips prepare().
		NoPrepare bool
		// NoExtract reuses an existing srcdir instead of unpacking.
		NoExtract bool
		// SkipPGP skips detached signature verification.
		SkipPGP bool
		// Clean removes srcdir before unpacking.
		Clean bool
	}

	// Pipeline runs build files according to a Config. It holds no
	// per-run state.
	Pipeline struct {
		cfg    *config.Config
		interp *shell.Interpreter
		stdout io.Writer
		stderr io.Writer
		lookup func(string) (string, bool)
		now    func() time.Time
		logger *slog.Logger
	}

	// Option configures a Pipeline.
	Option func(*Pipeline)

	// session carries the state shared by the phases of one run.
	session struct {
		opts   Options
		id     string
		logger *slog.Logger
		spec   *pkgbuild.Spec
		conf   *makeconf.Config
		tree   build.Tree
		dest   string
		exec   *build.Executor
		rep    *report.Report

		entries []pkgbuild.SourceEntry
		fetched fetch.Results
	}
)

// WithOutput sets where stage output and interpreter diagnostics go.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(p *Pipeline) { p.stdout, p.stderr = stdout, stderr }
}

// WithEnvLookup replaces os.LookupEnv for makepkg.conf environment
// overrides (SRCDEST, BUILDDIR, CARCH, SOURCE_DATE_EPOCH...).
func WithEnvLookup(lookup func(string) (string, bool)) Option {
	return func(p *Pipeline) { p.lookup = lookup }
}

// WithClock sets the time source for report timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithLogger sets the pipeline's logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// New creates a Pipeline for cfg.
func New(cfg *config.Config, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:    cfg,
		stdout: os.Stdout,
		stderr: os.Stderr,
		lookup: os.LookupEnv,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.interp = shell.New(shell.WithPath(cfg.BashPath), shell.WithStderr(p.stderr))
	return p
}

// Run executes opts.BuildFile through every phase up to opts.StopAfter.
// The report is returned even on failure and records the phase reached.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*report.Report, error) {
	s, err := p.open(ctx, opts)
	if s == nil {
		return nil, err
	}
	if err == nil {
		err = p.run(ctx, s)
	}
	s.rep.Finish(err, p.now())
	if err != nil {
		s.logger.Error("run failed", "phase", s.rep.Phase, "error", err)
	} else {
		s.logger.Info("run finished", "duration", s.rep.Duration)
	}
	return s.rep, err
}

func (p *Pipeline) run(ctx context.Context, s *session) error {
	steps := []struct {
		phase report.Phase
		fn    func(context.Context, *session) error
	}{
		{report.PhaseFetch, p.fetch},
		{report.PhaseVerify, p.verify},
		{report.PhaseUnpack, p.unpack},
		{report.PhaseBuild, p.build},
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return phaseErr(s.rep.Phase, err)
		}
		s.rep.Enter(step.phase)
		if err := step.fn(ctx, s); err != nil {
			return phaseErr(step.phase, err)
		}
		if s.opts.StopAfter == step.phase {
			return nil
		}
	}
	return nil
}

// CallFunction loads the build file and runs a single declared function in
// srcdir, the way a stage would run it. It returns the function's exit code.
func (p *Pipeline) CallFunction(ctx context.Context, opts Options, name string) (shell.ExitCode, error) {
	s, err := p.open(ctx, opts)
	if err != nil {
		return 1, err
	}
	if err := os.MkdirAll(s.tree.SrcDir, 0o755); err != nil {
		return 1, err
	}
	sr, err := s.exec.RunFunction(ctx, s.spec, s.tree, name, s.tree.SrcDir)
	return sr.ExitCode, err
}

// Load extracts and parses the build file without running anything else.
func (p *Pipeline) Load(ctx context.Context, buildFile string) (*pkgbuild.Spec, error) {
	ex := extract.New(p.interp, pkgbuild.DefaultCatalog(), extract.WithLogger(p.logger))
	return ex.Load(ctx, buildFile)
}

// open runs the extract phase: the build file, makepkg.conf, the arch
// check and the directory layout. A nil session means no report could be
// started at all.
func (p *Pipeline) open(ctx context.Context, opts Options) (*session, error) {
	if opts.BuildFile == "" {
		opts.BuildFile = "PKGBUILD"
	}
	abs, err := filepath.Abs(opts.BuildFile)
	if err != nil {
		return nil, err
	}
	opts.BuildFile = abs

	id := uuid.NewString()
	s := &session{
		opts:   opts,
		id:     id,
		logger: p.logger.With("invocation", id),
		rep:    report.New(id, abs, p.now()),
	}
	s.rep.Enter(report.PhaseExtract)

	if err := p.load(ctx, s); err != nil {
		return s, phaseErr(report.PhaseExtract, err)
	}
	return s, nil
}

func (p *Pipeline) load(ctx context.Context, s *session) error {
	ex := extract.New(p.interp, pkgbuild.DefaultCatalog(), extract.WithLogger(s.logger))
	spec, err := ex.Load(ctx, s.opts.BuildFile)
	if err != nil {
		return err
	}
	for _, a := range spec.Anomalies() {
		s.logger.Debug("build file anomaly", "anomaly", a)
	}
	s.spec = spec

	conf, err := p.loadMakeConf(ctx, ex, s.logger)
	if err != nil {
		return err
	}
	if s.opts.Arch != "" {
		conf.Arch = s.opts.Arch
	}
	if conf.Arch == "" {
		conf.Arch = hostArch()
	}
	s.conf = conf

	s.rep.Pkgbase = spec.Pkgbase()
	s.rep.Version = spec.Version()
	s.rep.Arch = conf.Arch
	if !s.opts.IgnoreArch {
		if err := checkArch(conf.Arch, spec.Architectures()); err != nil {
			return err
		}
	}

	startDir := filepath.Dir(s.opts.BuildFile)
	s.dest = firstNonEmpty(s.opts.SrcDest, p.cfg.Paths.SrcDest, conf.SrcDest, startDir)
	builddir := startDir
	if root := firstNonEmpty(s.opts.BuildDir, p.cfg.Paths.BuildDir, conf.BuildDir); root != "" {
		builddir = filepath.Join(root, spec.Pkgbase())
	}
	s.tree = build.NewTree(s.opts.BuildFile, builddir)
	s.exec = build.New(p.interp,
		build.WithRunCheck((p.cfg.Build.RunCheck || s.opts.RunCheck) && !s.opts.NoCheck),
		build.WithNoPrepare(s.opts.NoPrepare),
		build.WithParallelPackages(p.cfg.Build.ParallelPackages),
		build.WithMakeConf(conf),
		build.WithOutput(p.stdout, p.stderr),
		build.WithLogger(s.logger),
	)
	s.logger.Info("loaded build file",
		"pkgbase", spec.Pkgbase(), "version", spec.Version(), "arch", conf.Arch,
		"srcdest", s.dest, "builddir", builddir)
	return nil
}

func (p *Pipeline) loadMakeConf(ctx context.Context, ex *extract.Extractor, logger *slog.Logger) (*makeconf.Config, error) {
	conf := &makeconf.Config{Flags: map[string]string{}}
	if len(p.cfg.MakepkgConf) > 0 {
		stream, err := ex.ExtractConfig(ctx, p.cfg.MakepkgConf, makeconf.Names())
		if err != nil {
			return nil, err
		}
		parsed, err := makeconf.Parse(stream.Reader())
		if parsed == nil {
			return nil, err
		}
		if err != nil {
			logger.Warn("ignoring invalid makepkg.conf entries", "error", err)
		}
		conf = parsed
	}
	if err := conf.ApplyEnv(p.lookup); err != nil {
		return nil, err
	}
	return conf, nil
}

func (p *Pipeline) fetch(ctx context.Context, s *session) error {
	entries, err := s.spec.Sources(s.conf.Arch)
	if err != nil {
		return err
	}
	s.entries = entries
	if err := os.MkdirAll(s.dest, 0o755); err != nil {
		return err
	}

	metrics := fetch.NewMetrics()
	opts := []fetch.Option{
		fetch.WithStartDir(s.tree.StartDir),
		fetch.WithMaxAttempts(p.cfg.Fetch.MaxAttempts),
		fetch.WithBackoff(p.cfg.Fetch.Backoff),
		fetch.WithVerifyWorkers(p.cfg.Fetch.Workers),
		fetch.WithRequestsPerSecond(p.cfg.Fetch.RequestsPerSecond),
		fetch.WithAgents(s.conf.DLAgents),
		fetch.WithMetrics(metrics),
		fetch.WithLogger(s.logger),
	}
	web := fetch.NewHTTPBackend(
		fetch.WithUserAgent(p.cfg.Fetch.UserAgent),
		fetch.WithTimeout(p.cfg.Fetch.Timeout),
		fetch.WithHTTPLogger(s.logger),
	)
	opts = append(opts, fetch.WithBackend("http", web), fetch.WithBackend("https", web))
	if needsScheme(entries, "s3") {
		s3, err := fetch.NewS3Backend(p.cfg.S3.Endpoint, p.cfg.S3.Region, p.cfg.S3.Secure)
		if err != nil {
			return fmt.Errorf("s3 backend: %w", err)
		}
		opts = append(opts, fetch.WithBackend("s3", s3))
	}

	sched := fetch.NewScheduler(s.dest, opts...)
	s.fetched = sched.Fetch(ctx, entries, p.cfg.Fetch.MaxParallel)
	s.rep.AddFetchResults(s.fetched)

	if p.cfg.MetricsFile != "" {
		if err := metrics.WriteTextfile(p.cfg.MetricsFile); err != nil {
			s.logger.Warn("failed to write metrics", "file", p.cfg.MetricsFile, "error", err)
		}
	}
	if err := s.fetched.Err(); err != nil {
		return err
	}
	if !s.fetched.OK() {
		if cause := context.Cause(ctx); cause != nil {
			return cause
		}
		return errIncompleteFetch
	}
	return nil
}

func (p *Pipeline) verify(ctx context.Context, s *session) error {
	if !s.opts.SkipPGP {
		if err := p.verifySignatures(s); err != nil {
			return err
		}
	}
	if !s.spec.HasFunction(pkgbuild.FuncVerify) {
		return nil
	}
	sr, err := s.exec.RunFunction(ctx, s.spec, s.tree, pkgbuild.FuncVerify, s.tree.StartDir)
	s.rep.AddStages([]build.StageResult{sr})
	return err
}

// verifySignatures checks every data file that has a companion signature
// among the fetched sources. Every failure is collected.
func (p *Pipeline) verifySignatures(s *session) error {
	paths := make(map[string]string, len(s.entries))
	for _, e := range s.entries {
		if r, ok := s.fetched[e.Key()]; ok && r.OK() {
			paths[e.FileName()] = r.Path
		}
	}

	var signed []pkgbuild.SourceEntry
	for _, e := range s.entries {
		if e.Signature != "" {
			signed = append(signed, e)
		}
	}
	if len(signed) == 0 {
		return nil
	}

	keyring, err := verify.LoadKeyring(p.cfg.Trust.Keyring...)
	if err != nil {
		return err
	}
	engine := verify.NewEngine(
		verify.WithKeyring(keyring),
		verify.WithTrustedKeys(s.spec.TrustedKeys()),
		verify.WithLogger(s.logger),
	)

	var errs []error
	for _, e := range signed {
		sigPath, ok := paths[e.Signature]
		dataPath, ok2 := paths[e.FileName()]
		if !ok || !ok2 {
			continue
		}
		res := engine.VerifySignature(e, dataPath, sigPath)
		s.rep.AddVerification(e.Key(), res)
		if !res.OK() {
			errs = append(errs, res.Err())
			continue
		}
		s.logger.Info("signature verified", "source", e.FileName(), "fingerprint", res.Fingerprint)
	}
	return errors.Join(errs...)
}

func (p *Pipeline) unpack(ctx context.Context, s *session) error {
	if s.opts.NoExtract {
		s.logger.Info("reusing existing source directory", "srcdir", s.tree.SrcDir)
		return nil
	}
	if s.opts.Clean || p.cfg.Build.CleanBuild {
		if err := os.RemoveAll(s.tree.SrcDir); err != nil {
			return err
		}
	}

	var sources []unpack.Source
	for _, e := range s.entries {
		if r, ok := s.fetched[e.Key()]; ok && r.OK() {
			sources = append(sources, unpack.Source{Name: e.FileName(), Path: r.Path})
		}
	}
	var opts []unpack.Option
	if s.conf.SourceDateEpoch != 0 {
		opts = append(opts, unpack.WithSourceDateEpoch(time.Unix(s.conf.SourceDateEpoch, 0)))
	}
	opts = append(opts, unpack.WithLogger(s.logger))
	return unpack.New(opts...).Unpack(ctx, s.tree.SrcDir, sources, s.spec.NoExtract())
}

func (p *Pipeline) build(ctx context.Context, s *session) error {
	res, err := s.exec.Run(ctx, s.spec, s.tree)
	if res != nil {
		s.rep.AddStages(res.Stages)
		if res.Pkgver != "" && res.Pkgver != s.spec.Pkgver() {
			s.rep.Version = versionString(s.spec.Epoch(), res.Pkgver, "1")
		}
	}
	return err
}

func versionString(epoch, pkgver, pkgrel string) string {
	v := pkgver + "-" + pkgrel
	if epoch != "" && epoch != "0" {
		v = epoch + ":" + v
	}
	return v
}

func needsScheme(entries []pkgbuild.SourceEntry, scheme string) bool {
	for _, e := range entries {
		if e.TransportScheme() == scheme {
			return true
		}
	}
	return false
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
