// SPDX-License-Identifier: MPL-2.0

package pipeline

import (
	"archive/tar"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkgbake/pkgbake/internal/build"
	"github.com/pkgbake/pkgbake/internal/config"
	"github.com/pkgbake/pkgbake/internal/extract"
	"github.com/pkgbake/pkgbake/internal/fetch"
	"github.com/pkgbake/pkgbake/internal/report"
	"github.com/pkgbake/pkgbake/internal/testutil"
	"github.com/pkgbake/pkgbake/internal/verify"

	"github.com/klauspost/compress/gzip"
	"golang.org/x/crypto/openpgp"        //nolint:staticcheck // detached signatures for fixtures
	"golang.org/x/crypto/openpgp/packet" //nolint:staticcheck // detached signatures for fixtures
)

const buildFileTemplate = `pkgname=hello
pkgver=1.0
pkgrel=1
arch=(%s)
source=(%s)
sha256sums=(%s)

prepare() { cat "$srcdir/local.patch" >> hello-1.0/README; }
build() { cd hello-1.0; { cat README; echo "cflags=$CFLAGS"; } > built.txt; }
package() { install -Dm644 "$srcdir/hello-1.0/built.txt" "$pkgdir/usr/share/hello/built.txt"; }
`

type fixture struct {
	dir       string
	buildFile string
	cfg       *config.Config
	server    *httptest.Server
	hits      atomic.Int64
	files     map[string][]byte
}

func tarball(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	body := "hello upstream\n"
	if err := tw.WriteHeader(&tar.Header{Name: "hello-1.0/README", Mode: 0o644, Size: int64(len(body))}); err != nil {
		t.Fatal(err)
	}
	if _, err := io.WriteString(tw, body); err != nil {
		t.Fatal(err)
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// newFixture writes a build file into a fresh start directory. arch, sources
// and sums are spliced into the template; "$URL" in sources is replaced by
// the test server address.
func newFixture(t *testing.T, arch, sources, sums string) *fixture {
	t.Helper()
	testutil.RequireBash(t)

	f := &fixture{dir: t.TempDir(), files: map[string][]byte{"/hello-1.0.tar.gz": tarball(t)}}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.hits.Add(1)
		body, ok := f.files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		http.ServeContent(w, r, r.URL.Path, time.Time{}, bytes.NewReader(body))
	}))
	t.Cleanup(f.server.Close)

	sources = strings.ReplaceAll(sources, "$URL", f.server.URL)
	sums = strings.ReplaceAll(sums, "$SUM", sha256Hex(f.files["/hello-1.0.tar.gz"]))
	f.buildFile = filepath.Join(f.dir, "PKGBUILD")
	testutil.MustWriteFile(t, f.buildFile, fmt.Sprintf(buildFileTemplate, arch, sources, sums))
	testutil.MustWriteFile(t, filepath.Join(f.dir, "local.patch"), "patched locally\n")

	conf := filepath.Join(f.dir, "makepkg.conf")
	testutil.MustWriteFile(t, conf, "CARCH=x86_64\nCFLAGS=\"-O2 -pipe\"\n")

	cfg := config.DefaultConfig()
	cfg.MakepkgConf = []string{conf}
	cfg.Fetch.MaxAttempts = 1
	cfg.Fetch.Backoff = time.Millisecond
	cfg.Paths.SrcDest = filepath.Join(f.dir, "sources")
	cfg.Paths.BuildDir = filepath.Join(f.dir, "work")
	cfg.MetricsFile = filepath.Join(f.dir, "fetch.prom")
	f.cfg = cfg
	return f
}

func (f *fixture) pipeline() *Pipeline {
	return New(f.cfg,
		WithOutput(io.Discard, io.Discard),
		WithEnvLookup(func(string) (string, bool) { return "", false }),
	)
}

const defaultSources = `"$URL/hello-1.0.tar.gz" "local.patch"`

func TestRunBuildsPackage(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "x86_64", defaultSources, `'$SUM' 'SKIP'`)
	rep, err := f.pipeline().Run(context.Background(), Options{BuildFile: f.buildFile})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !rep.Success || rep.Phase != report.PhaseDone {
		t.Errorf("report = %+v", rep)
	}
	if rep.Pkgbase != "hello" || rep.Version != "1.0-1" || rep.Arch != "x86_64" {
		t.Errorf("report identity = %s %s %s", rep.Pkgbase, rep.Version, rep.Arch)
	}
	if rep.InvocationID == "" {
		t.Error("missing invocation id")
	}
	if len(rep.Sources) != 2 || len(rep.FailedSources()) != 0 {
		t.Errorf("sources = %+v", rep.Sources)
	}

	var kinds []string
	for _, st := range rep.Stages {
		kinds = append(kinds, st.Kind)
	}
	if got := strings.Join(kinds, ","); got != "prepare,build,package" {
		t.Errorf("stages = %s", got)
	}

	built := filepath.Join(f.dir, "work", "hello", "pkg", "hello", "usr", "share", "hello", "built.txt")
	got := testutil.MustReadFile(t, built)
	want := "hello upstream\npatched locally\ncflags=-O2 -pipe\n"
	if got != want {
		t.Errorf("built.txt = %q, want %q", got, want)
	}
	if _, err := os.Stat(filepath.Join(f.dir, "sources", "hello-1.0.tar.gz")); err != nil {
		t.Errorf("source not cached in SRCDEST: %v", err)
	}
	if !strings.Contains(testutil.MustReadFile(t, f.cfg.MetricsFile), "pkgbake_fetch_sources_total") {
		t.Error("metrics textfile lacks fetch counters")
	}

	// A second run reuses the verified download.
	hits := f.hits.Load()
	if _, err := f.pipeline().Run(context.Background(), Options{BuildFile: f.buildFile}); err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if f.hits.Load() != hits {
		t.Errorf("second run downloaded again: %d requests", f.hits.Load()-hits)
	}
}

func TestRunArchMismatchStopsBeforeFetch(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "aarch64", defaultSources, `'$SUM' 'SKIP'`)
	rep, err := f.pipeline().Run(context.Background(), Options{BuildFile: f.buildFile})
	if !errors.Is(err, ErrArchNotSupported) {
		t.Fatalf("Run() error = %v, want ErrArchNotSupported", err)
	}
	var pe *PhaseError
	if !errors.As(err, &pe) || pe.Phase != report.PhaseExtract {
		t.Errorf("error phase = %v", err)
	}
	if rep.Phase != report.PhaseExtract || rep.Success {
		t.Errorf("report = %+v", rep)
	}
	if f.hits.Load() != 0 {
		t.Errorf("server hit %d times", f.hits.Load())
	}

	if _, err := f.pipeline().Run(context.Background(), Options{BuildFile: f.buildFile, IgnoreArch: true}); err != nil {
		t.Errorf("Run(IgnoreArch) error = %v", err)
	}
}

func TestRunExtractFailure(t *testing.T) {
	t.Parallel()
	testutil.RequireBash(t)

	cfg := config.DefaultConfig()
	cfg.MakepkgConf = nil
	path := testutil.WriteBuildFile(t, "pkgname=x\nexit 2\n")
	p := New(cfg, WithOutput(io.Discard, io.Discard))

	rep, err := p.Run(context.Background(), Options{BuildFile: path})
	if !errors.Is(err, extract.ErrSpecLoad) {
		t.Fatalf("Run() error = %v, want ErrSpecLoad", err)
	}
	if rep.Phase != report.PhaseExtract || len(rep.Sources) != 0 {
		t.Errorf("report = %+v", rep)
	}
}

func TestRunDigestMismatchStopsBeforeBuild(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "x86_64", defaultSources, `'`+strings.Repeat("0", 64)+`' 'SKIP'`)
	rep, err := f.pipeline().Run(context.Background(), Options{BuildFile: f.buildFile})
	if !errors.Is(err, fetch.ErrFetchExhausted) {
		t.Fatalf("Run() error = %v, want ErrFetchExhausted", err)
	}
	if rep.Phase != report.PhaseFetch {
		t.Errorf("phase = %s, want fetch", rep.Phase)
	}
	failed := rep.FailedSources()
	if len(failed) != 1 || failed[0].Name != "hello-1.0.tar.gz" {
		t.Fatalf("failed sources = %+v", failed)
	}
	if len(rep.Stages) != 0 {
		t.Errorf("stages ran: %+v", rep.Stages)
	}
	if _, err := os.Stat(filepath.Join(f.dir, "work", "hello", "src")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("srcdir exists after failed fetch: %v", err)
	}
}

func TestRunStopAfterFetch(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "x86_64", defaultSources, `'$SUM' 'SKIP'`)
	rep, err := f.pipeline().Run(context.Background(), Options{BuildFile: f.buildFile, StopAfter: report.PhaseFetch})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !rep.Success || len(rep.Stages) != 0 {
		t.Errorf("report = %+v", rep)
	}
	if _, err := os.Stat(filepath.Join(f.dir, "work", "hello", "src")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("srcdir created by a fetch-only run: %v", err)
	}
}

func TestRunVerifyFunctionFailureHaltsBeforeUnpack(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "x86_64", defaultSources, `'$SUM' 'SKIP'`)
	testutil.MustWriteFile(t, f.buildFile, testutil.MustReadFile(t, f.buildFile)+"verify() { return 3; }\n")

	rep, err := f.pipeline().Run(context.Background(), Options{BuildFile: f.buildFile})
	if !errors.Is(err, build.ErrStageFailed) {
		t.Fatalf("Run() error = %v, want ErrStageFailed", err)
	}
	if rep.Phase != report.PhaseVerify {
		t.Errorf("phase = %s, want verify", rep.Phase)
	}
	if len(rep.Stages) != 1 || rep.Stages[0].Function != "verify" || rep.Stages[0].ExitCode != 3 {
		t.Errorf("stages = %+v", rep.Stages)
	}
	if _, err := os.Stat(filepath.Join(f.dir, "work", "hello", "src")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("srcdir exists after failed verify: %v", err)
	}
}

// signFixture serves a detached signature of the tarball and returns the
// path of a keyring holding the signer's public key.
func signFixture(t *testing.T, f *fixture) (keyring, fingerprint string) {
	t.Helper()
	cfg := &packet.Config{RSABits: 1024}
	entity, err := openpgp.NewEntity("Upstream", "", "upstream@example.org", cfg)
	if err != nil {
		t.Fatalf("NewEntity() error = %v", err)
	}
	var sig bytes.Buffer
	if err := openpgp.DetachSign(&sig, entity, bytes.NewReader(f.files["/hello-1.0.tar.gz"]), cfg); err != nil {
		t.Fatalf("DetachSign() error = %v", err)
	}
	f.files["/hello-1.0.tar.gz.sig"] = sig.Bytes()

	var pub bytes.Buffer
	if err := entity.Serialize(&pub); err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}
	keyring = filepath.Join(f.dir, "trusted.gpg")
	testutil.MustWriteFile(t, keyring, pub.String())
	return keyring, fmt.Sprintf("%X", entity.PrimaryKey.Fingerprint)
}

func TestRunVerifiesSignatures(t *testing.T) {
	t.Parallel()

	sources := `"$URL/hello-1.0.tar.gz" "$URL/hello-1.0.tar.gz.sig" "local.patch"`
	f := newFixture(t, "x86_64", sources, `'$SUM' 'SKIP' 'SKIP'`)
	keyring, fpr := signFixture(t, f)
	f.cfg.Trust.Keyring = []string{keyring}

	rep, err := f.pipeline().Run(context.Background(), Options{BuildFile: f.buildFile, StopAfter: report.PhaseVerify})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	var found bool
	for _, s := range rep.Sources {
		if s.Name == "hello-1.0.tar.gz" {
			found = s.Fingerprint == fpr
		}
	}
	if !found {
		t.Errorf("fingerprint %s not recorded: %+v", fpr, rep.Sources)
	}
}

func TestRunUnknownSignerFails(t *testing.T) {
	t.Parallel()

	sources := `"$URL/hello-1.0.tar.gz" "$URL/hello-1.0.tar.gz.sig" "local.patch"`
	f := newFixture(t, "x86_64", sources, `'$SUM' 'SKIP' 'SKIP'`)
	signFixture(t, f)

	rep, err := f.pipeline().Run(context.Background(), Options{BuildFile: f.buildFile})
	if !errors.Is(err, verify.ErrVerification) {
		t.Fatalf("Run() error = %v, want ErrVerification", err)
	}
	if rep.Phase != report.PhaseVerify {
		t.Errorf("phase = %s, want verify", rep.Phase)
	}
	failed := rep.FailedSources()
	if len(failed) != 1 || failed[0].Failures[0].Kind != string(verify.KeyUnknown) {
		t.Errorf("failed sources = %+v", failed)
	}

	// Skipping signature checks lets the build proceed.
	if _, err := f.pipeline().Run(context.Background(), Options{BuildFile: f.buildFile, SkipPGP: true}); err != nil {
		t.Errorf("Run(SkipPGP) error = %v", err)
	}
}

func TestCallFunction(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "x86_64", defaultSources, `'$SUM' 'SKIP'`)
	testutil.MustWriteFile(t, f.buildFile, strings.Replace(testutil.MustReadFile(t, f.buildFile),
		"build() {", "build() { exit 4; ", 1))

	code, err := f.pipeline().CallFunction(context.Background(), Options{BuildFile: f.buildFile}, "build")
	if code != 4 || !errors.Is(err, build.ErrStageFailed) {
		t.Errorf("CallFunction() = %d, %v", code, err)
	}
	if f.hits.Load() != 0 {
		t.Error("CallFunction fetched sources")
	}
	if _, err := f.pipeline().CallFunction(context.Background(), Options{BuildFile: f.buildFile}, "check"); !errors.Is(err, build.ErrNoFunction) {
		t.Errorf("CallFunction(check) error = %v, want ErrNoFunction", err)
	}
}

func TestCheckArch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		arch      string
		supported []string
		ok        bool
	}{
		{"x86_64", []string{"x86_64", "aarch64"}, true},
		{"x86_64", []string{"any"}, true},
		{"x86_64", nil, true},
		{"x86_64", []string{"aarch64"}, false},
	}
	for _, tt := range tests {
		err := checkArch(tt.arch, tt.supported)
		if (err == nil) != tt.ok {
			t.Errorf("checkArch(%s, %v) = %v", tt.arch, tt.supported, err)
		}
		if err != nil && !strings.Contains(err.Error(), "aarch64") {
			t.Errorf("error %q does not list supported arches", err)
		}
	}
	if hostArch() == "" {
		t.Error("hostArch() is empty")
	}
}

func TestVersionString(t *testing.T) {
	t.Parallel()

	if got := versionString("", "2.0", "1"); got != "2.0-1" {
		t.Errorf("versionString() = %q", got)
	}
	if got := versionString("2", "2.0", "1"); got != "2:2.0-1" {
		t.Errorf("versionString() = %q", got)
	}
}

func TestRunSplitPackages(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "x86_64", defaultSources, `'$SUM' 'SKIP'`)
	testutil.MustWriteFile(t, f.buildFile, fmt.Sprintf(`pkgname=(foo bar)
pkgver=1.0
pkgrel=1
arch=(x86_64)
source=("%s/hello-1.0.tar.gz")
sha256sums=('%s')

build() { cp hello-1.0/README built.txt; }
package_foo() { install -Dm644 "$srcdir/built.txt" "$pkgdir/foo.txt"; }
package_bar() { echo "$pkgname" > "$pkgdir/name"; ls "$pkgdir" > "$srcdir/bar.listing"; }
`, f.server.URL, sha256Hex(f.files["/hello-1.0.tar.gz"])))

	rep, err := f.pipeline().Run(context.Background(), Options{BuildFile: f.buildFile})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	var pkgs []string
	for _, st := range rep.Stages {
		if st.Package != "" {
			pkgs = append(pkgs, st.Package)
		}
	}
	if got := strings.Join(pkgs, ","); got != "foo,bar" {
		t.Errorf("package stages = %s", got)
	}

	pkgroot := filepath.Join(f.dir, "work", "foo", "pkg")
	if got := testutil.MustReadFile(t, filepath.Join(pkgroot, "foo", "foo.txt")); got != "hello upstream\n" {
		t.Errorf("foo.txt = %q", got)
	}
	if got := testutil.MustReadFile(t, filepath.Join(pkgroot, "bar", "name")); got != "bar\n" {
		t.Errorf("bar pkgname = %q", got)
	}
	// Each package stage starts from an empty pkgdir.
	if got := testutil.MustReadFile(t, filepath.Join(f.dir, "work", "foo", "src", "bar.listing")); got != "name\n" {
		t.Errorf("bar pkgdir listing = %q", got)
	}
}
