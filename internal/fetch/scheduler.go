// SPDX-License-Identifier: MPL-2.0

package fetch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/pkgbake/pkgbake/internal/verify"
	"github.com/pkgbake/pkgbake/pkg/makeconf"
	"github.com/pkgbake/pkgbake/pkg/pkgbuild"
)

const (
	// DefaultMaxAttempts bounds transfer attempts per source.
	DefaultMaxAttempts = 3
	// DefaultBackoff is the delay before the first retry.
	DefaultBackoff = time.Second

	partSuffix = ".part"
)

type (
	// Scheduler fetches sources into a destination directory. It keeps no
	// state between Fetch calls and is safe for concurrent use on distinct
	// destinations.
	Scheduler struct {
		dest        string
		startDir    string
		maxAttempts int
		backoff     time.Duration
		workers     int
		rps         float64
		backends    map[string]Backend
		agents      []makeconf.DLAgent
		verifier    *verify.Engine
		metrics     *Metrics
		logger      *slog.Logger
	}

	// Option configures a Scheduler.
	Option func(*Scheduler)

	// job is one remote source moving between the transfer and verify pools.
	job struct {
		entry   pkgbuild.SourceEntry
		backend Backend
		dest    string
		part    string
		attempt int
		size    int64
		err     error
		vr      *verify.Result
	}

	// run holds the state of one Fetch call.
	run struct {
		s       *Scheduler
		cancel  context.CancelCauseFunc
		pending sync.WaitGroup

		mu      sync.Mutex
		results Results
	}
)

// WithStartDir sets where local sources are looked up (default: dest).
func WithStartDir(dir string) Option {
	return func(s *Scheduler) { s.startDir = dir }
}

// WithMaxAttempts bounds transfer attempts per source.
func WithMaxAttempts(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithBackoff sets the base retry delay; attempt n waits base << (n-1).
func WithBackoff(d time.Duration) Option {
	return func(s *Scheduler) { s.backoff = d }
}

// WithVerifyWorkers sets the size of the verifier pool.
func WithVerifyWorkers(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithRequestsPerSecond paces transfer starts. Zero means unlimited.
func WithRequestsPerSecond(rps float64) Option {
	return func(s *Scheduler) { s.rps = rps }
}

// WithBackend registers b for scheme, replacing any default.
func WithBackend(scheme string, b Backend) Option {
	return func(s *Scheduler) { s.backends[scheme] = b }
}

// WithAgents sets the DLAGENTS consulted for schemes without a backend.
func WithAgents(agents []makeconf.DLAgent) Option {
	return func(s *Scheduler) { s.agents = agents }
}

// WithVerifier sets the engine used for digest checks.
func WithVerifier(v *verify.Engine) Option {
	return func(s *Scheduler) { s.verifier = v }
}

// WithMetrics records activity in m.
func WithMetrics(m *Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithLogger sets the scheduler's logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// NewScheduler creates a Scheduler writing into dest.
func NewScheduler(dest string, opts ...Option) *Scheduler {
	web := NewHTTPBackend()
	s := &Scheduler{
		dest:        dest,
		maxAttempts: DefaultMaxAttempts,
		backoff:     DefaultBackoff,
		workers:     runtime.NumCPU(),
		backends: map[string]Backend{
			"http":  web,
			"https": web,
			"file":  FileBackend{},
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.startDir == "" {
		s.startDir = dest
	}
	if s.verifier == nil {
		s.verifier = verify.NewEngine(verify.WithLogger(s.logger))
	}
	return s
}

// Fetch retrieves every entry with at most maxParallel concurrent
// transfers. It returns once every entry has a Result.
func (s *Scheduler) Fetch(ctx context.Context, entries []pkgbuild.SourceEntry, maxParallel int) Results {
	maxParallel = max(maxParallel, 1)
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	r := &run{s: s, cancel: cancel, results: make(Results, len(entries))}

	var queued []*job
	for _, e := range entries {
		res, j := s.plan(e)
		if res != nil {
			r.record(res)
			if errors.Is(res.Err, ErrSourceMissing) {
				cancel(res.Err)
			}
			continue
		}
		queued = append(queued, j)
	}

	jobs := make(chan *job, len(queued))
	done := make(chan *job, len(queued))
	r.pending.Add(len(queued))
	for _, j := range queued {
		jobs <- j
	}
	go func() {
		r.pending.Wait()
		close(jobs)
		close(done)
	}()

	limiter := rate.NewLimiter(rate.Inf, maxParallel)
	if s.rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.rps), maxParallel)
	}

	var workers sync.WaitGroup
	for range maxParallel {
		workers.Go(func() {
			for j := range jobs {
				r.transfer(ctx, limiter, j, done)
			}
		})
	}
	for range s.workers {
		workers.Go(func() {
			for j := range done {
				r.complete(ctx, j, jobs)
			}
		})
	}
	workers.Wait()
	return r.results
}

// plan resolves entries that need no transfer and returns a job for the rest.
func (s *Scheduler) plan(e pkgbuild.SourceEntry) (*Result, *job) {
	if !e.IsRemote() {
		return s.local(e), nil
	}
	if e.IsVCS() {
		return &Result{Entry: e, Status: StatusFailed, Err: fmt.Errorf("%s: %w", e.Raw, ErrVCSUnsupported)}, nil
	}
	backend, err := s.backend(e)
	if err != nil {
		return &Result{Entry: e, Status: StatusFailed, Err: err}, nil
	}

	dest := filepath.Join(s.dest, e.FileName())
	if _, err := os.Stat(dest); err == nil {
		vr := s.verifier.VerifyDigests(e, dest)
		if vr.OK() {
			s.logger.Debug("source already cached", "source", e.FileName())
			return &Result{Entry: e, Status: StatusSkipped, Path: dest, Verification: vr}, nil
		}
		s.logger.Warn("cached source failed verification, fetching again", "source", e.FileName(), "error", vr.Err())
		if err := os.Remove(dest); err != nil {
			return &Result{Entry: e, Status: StatusFailed, Err: err}, nil
		}
	}
	return nil, &job{entry: e, backend: backend, dest: dest, part: dest + partSuffix}
}

func (s *Scheduler) local(e pkgbuild.SourceEntry) *Result {
	path := filepath.Join(s.startDir, e.FileName())
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			err = fmt.Errorf("%w: %s", ErrSourceMissing, path)
		}
		return &Result{Entry: e, Status: StatusFailed, Err: err}
	}
	vr := s.verifier.VerifyDigests(e, path)
	if !vr.OK() {
		return &Result{Entry: e, Status: StatusFailed, Path: path, Err: vr.Err(), Verification: vr}
	}
	return &Result{Entry: e, Status: StatusLocal, Path: path, Verification: vr}
}

func (s *Scheduler) backend(e pkgbuild.SourceEntry) (Backend, error) {
	scheme := e.TransportScheme()
	if b, ok := s.backends[scheme]; ok {
		return b, nil
	}
	for _, a := range s.agents {
		if a.Protocol == scheme {
			return NewAgentBackend(a), nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedProtocol, scheme)
}

func (r *run) record(res *Result) {
	r.mu.Lock()
	r.results[res.Entry.Key()] = res
	r.mu.Unlock()
	r.s.metrics.observeResult(res.Status)
}

func (r *run) finish(j *job, status Status, err error) {
	res := &Result{Entry: j.entry, Status: status, Attempts: j.attempt, Err: err, Verification: j.vr}
	if status == StatusFetched {
		res.Path, res.Bytes = j.dest, j.size
	}
	r.record(res)
	r.pending.Done()
}

func (r *run) transfer(ctx context.Context, limiter *rate.Limiter, j *job, done chan<- *job) {
	if err := limiter.Wait(ctx); err != nil {
		r.finish(j, StatusCanceled, context.Cause(ctx))
		return
	}
	j.attempt++
	j.vr = nil
	start := time.Now()
	j.size, j.err = j.backend.Fetch(ctx, j.entry, j.part)
	r.s.metrics.observeAttempt(j.entry.TransportScheme(), time.Since(start), j.size, j.err)
	done <- j
}

func (r *run) complete(ctx context.Context, j *job, jobs chan<- *job) {
	if j.err == nil {
		j.vr = r.s.verifier.VerifyDigests(j.entry, j.part)
		j.err = j.vr.Err()
	}
	if j.err == nil {
		j.err = os.Rename(j.part, j.dest)
	}
	if j.err == nil {
		r.s.logger.Debug("fetched source", "source", j.entry.FileName(), "bytes", j.size, "attempts", j.attempt)
		r.finish(j, StatusFetched, nil)
		return
	}
	// A part that failed verification is discarded; an interrupted transfer
	// keeps its part so the next attempt resumes with a range request.
	permanent := IsPermanent(j.err)
	if j.vr != nil || permanent {
		_ = os.Remove(j.part)
	}

	if ctx.Err() != nil {
		r.finish(j, StatusCanceled, context.Cause(ctx))
		return
	}
	if permanent || j.attempt >= r.s.maxAttempts {
		err := &ExhaustedError{Key: j.entry.Key(), URL: j.entry.URL, Attempts: j.attempt, Permanent: permanent, Last: j.err}
		r.s.logger.Error("source fetch failed", "source", j.entry.FileName(), "attempts", j.attempt, "error", j.err)
		// A permanent error fails its own entry only.
		if !permanent {
			r.cancel(err)
		}
		r.finish(j, StatusFailed, err)
		return
	}

	delay := r.s.backoff << (j.attempt - 1)
	r.s.logger.Warn("retrying source fetch", "source", j.entry.FileName(), "attempt", j.attempt, "delay", delay, "error", j.err)
	go func() {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
			jobs <- j
		case <-ctx.Done():
			r.finish(j, StatusCanceled, context.Cause(ctx))
		}
	}()
}
