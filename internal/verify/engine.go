// SPDX-License-Identifier: MPL-2.0

package verify

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"golang.org/x/crypto/openpgp" //nolint:staticcheck // detached signature checks only

	"github.com/pkgbake/pkgbake/pkg/pkgbuild"
)

type (
	// Result is the outcome of verifying one source file.
	Result struct {
		Path string
		// Algorithm is the most authoritative non-SKIP digest checked, if any.
		Algorithm pkgbuild.Algorithm
		// Checked lists every algorithm computed.
		Checked []pkgbuild.Algorithm
		// Fingerprint is the signing key when a signature was checked.
		Fingerprint string
		Failures    []*Failure
	}

	// Engine verifies sources. It carries only read-only configuration and
	// is safe for concurrent use.
	Engine struct {
		keyring openpgp.EntityList
		trusted []string
		now     func() time.Time
		logger  *slog.Logger
	}

	// Option configures an Engine.
	Option func(*Engine)
)

// WithKeyring sets the keys signatures are resolved against.
func WithKeyring(keys openpgp.EntityList) Option {
	return func(e *Engine) { e.keyring = keys }
}

// WithTrustedKeys sets the accepted primary key fingerprints. An empty list
// trusts every key of the keyring.
func WithTrustedKeys(fingerprints []string) Option {
	return func(e *Engine) {
		e.trusted = make([]string, 0, len(fingerprints))
		for _, fp := range fingerprints {
			e.trusted = append(e.trusted, strings.ToUpper(strings.ReplaceAll(fp, " ", "")))
		}
	}
}

// WithClock sets the time source used for key expiry.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLogger sets the engine's logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates an Engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// OK reports whether no check failed.
func (r *Result) OK() bool { return len(r.Failures) == 0 }

// Err joins the failures, or returns nil.
func (r *Result) Err() error {
	if r.OK() {
		return nil
	}
	errs := make([]error, len(r.Failures))
	for i, f := range r.Failures {
		errs[i] = f
	}
	return errors.Join(errs...)
}

// Has reports whether a failure of kind was recorded.
func (r *Result) Has(kind FailureKind) bool {
	return slices.ContainsFunc(r.Failures, func(f *Failure) bool { return f.Kind == kind })
}

func (r *Result) fail(f *Failure) {
	f.Path = r.Path
	r.Failures = append(r.Failures, f)
}

// Verify checks the digests of localPath and, when entry links a companion
// signature that exists beside localPath, the signature as well.
func (e *Engine) Verify(entry pkgbuild.SourceEntry, localPath string) *Result {
	res := e.VerifyDigests(entry, localPath)
	if entry.Signature == "" {
		return res
	}
	sigPath := filepath.Join(filepath.Dir(localPath), entry.Signature)
	if _, err := os.Stat(sigPath); errors.Is(err, fs.ErrNotExist) {
		e.logger.Debug("no companion signature on disk", "source", entry.FileName(), "signature", sigPath)
		return res
	}
	sig := e.VerifySignature(entry, localPath, sigPath)
	res.Fingerprint = sig.Fingerprint
	res.Failures = append(res.Failures, sig.Failures...)
	return res
}

// VerifyDigests checks every declared non-SKIP digest of entry against the
// file at path in one pass.
func (e *Engine) VerifyDigests(entry pkgbuild.SourceEntry, path string) *Result {
	res := &Result{Path: path}
	if auth, ok := pkgbuild.Authoritative(entry.Checksums); ok {
		res.Algorithm = auth.Algorithm
	}
	for _, rec := range entry.Checksums {
		if !rec.IsSkip() && !slices.Contains(res.Checked, rec.Algorithm) {
			res.Checked = append(res.Checked, rec.Algorithm)
		}
	}
	if len(res.Checked) == 0 {
		return res
	}

	sums, err := FileDigests(path, res.Checked...)
	if err != nil {
		res.fail(&Failure{Kind: ReadError, Err: err})
		return res
	}
	for _, rec := range entry.Checksums {
		if rec.IsSkip() {
			continue
		}
		if got := sums[rec.Algorithm]; !rec.Matches(got) {
			res.fail(&Failure{Kind: DigestMismatch, Algorithm: rec.Algorithm, Expected: rec.Expected, Got: got})
		}
	}
	e.logger.Debug("verified digests", "file", path, "algorithms", res.Checked, "failures", len(res.Failures))
	return res
}
