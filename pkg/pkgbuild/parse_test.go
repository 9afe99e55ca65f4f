// SPDX-License-Identifier: MPL-2.0

package pkgbuild

import (
	"slices"
	"strings"
	"testing"
)

const splitStream = `GLOBAL ARRAY pkgname "foo" "bar"
GLOBAL STRING pkgver "1.0"
GLOBAL STRING pkgrel "2"
GLOBAL ARRAY arch "x86_64" "aarch64"
GLOBAL STRING pkgdesc "shared description"
GLOBAL ARRAY depends "glibc"
GLOBAL ARRAY source "foo-1.0.tar.gz::https://example.org/foo-1.0.tar.gz" "foo-1.0.tar.gz.sig::https://example.org/foo-1.0.tar.gz.sig" "local.patch"
GLOBAL ARRAY sha256sums "AAAA" "SKIP" "BBBB"
GLOBAL ARRAY md5sums "1111" "SKIP" "2222"
GLOBAL ARRAY source_x86_64 "https://example.org/blob-x86_64.bin"
GLOBAL ARRAY sha256sums_x86_64 "CCCC"
GLOBAL ARRAY validpgpkeys "abcd ef01 2345"
FUNCTION package_foo ARRAY depends "glibc" "zlib"
FUNCTION package_bar STRING pkgdesc "bar only"
FUNCTION build
FUNCTION package_foo
FUNCTION package_bar
FUNCTION prepare
`

func mustParse(t *testing.T, stream string) *Spec {
	t.Helper()
	spec, err := Parse(strings.NewReader(stream), DefaultCatalog())
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	return spec
}

func TestParseSplitPackage(t *testing.T) {
	t.Parallel()

	spec := mustParse(t, splitStream)

	if got := spec.SplitPackageNames(); !slices.Equal(got, []string{"foo", "bar"}) {
		t.Errorf("SplitPackageNames() = %v", got)
	}
	if got := spec.Architectures(); !slices.Equal(got, []string{"x86_64", "aarch64"}) {
		t.Errorf("Architectures() = %v", got)
	}
	if got := spec.Version(); got != "1.0-2" {
		t.Errorf("Version() = %q", got)
	}
	if got := spec.Pkgbase(); got != "foo" {
		t.Errorf("Pkgbase() = %q, want first package name", got)
	}
	if got := spec.Functions(); !slices.Equal(got, []string{"prepare", "build", "package_foo", "package_bar"}) {
		t.Errorf("Functions() = %v", got)
	}
	if got := spec.TrustedKeys(); !slices.Equal(got, []string{"ABCDEF012345"}) {
		t.Errorf("TrustedKeys() = %v", got)
	}
	if len(spec.Anomalies()) != 0 {
		t.Errorf("unexpected anomalies: %v", spec.Anomalies())
	}
}

func TestOverrideFallsBackToGlobal(t *testing.T) {
	t.Parallel()

	spec := mustParse(t, splitStream)

	deps, _ := spec.Override("package_foo", "depends")
	if got := deps.List(); !slices.Equal(got, []string{"glibc", "zlib"}) {
		t.Errorf("package_foo depends = %v", got)
	}
	deps, _ = spec.Override("package_bar", "depends")
	if got := deps.List(); !slices.Equal(got, []string{"glibc"}) {
		t.Errorf("package_bar depends should fall back to global, got %v", got)
	}
	desc, _ := spec.Override("package_bar", "pkgdesc")
	if desc.Str() != "bar only" {
		t.Errorf("package_bar pkgdesc = %q", desc.Str())
	}
	if !spec.IsOverridden("package_bar", "pkgdesc") || spec.IsOverridden("package_foo", "pkgdesc") {
		t.Error("IsOverridden reports the wrong functions")
	}
	if _, ok := spec.Override("package_bar", "url"); ok {
		t.Error("unset variable should not be found")
	}
}

func TestParseLastLineWins(t *testing.T) {
	t.Parallel()

	spec := mustParse(t, `GLOBAL STRING pkgver "1"
GLOBAL STRING pkgver "2"
FUNCTION package STRING pkgdesc "a"
FUNCTION package ARRAY pkgdesc "b" "c"
`)

	if got := spec.Pkgver(); got != "2" {
		t.Errorf("Pkgver() = %q, want last value", got)
	}
	v, _ := spec.Override("package", "pkgdesc")
	if v.Kind() != KindArray || !slices.Equal(v.List(), []string{"b", "c"}) {
		t.Errorf("override = %#v, want last line", v)
	}
}

func TestParseIgnoresUnknownLines(t *testing.T) {
	t.Parallel()

	spec := mustParse(t, `GLOBAL STRING pkgver "1"
SOMETHING NEW "x"
GLOBAL FLOAT pkgrel "1.0"
GLOBAL STRING not_in_catalogue "x"
GLOBAL ARRAY source_riscv64 "https://example.org/x"
GLOBAL STRING pkgrel "3"
`)

	if spec.Pkgver() != "1" || spec.Pkgrel() != "3" {
		t.Errorf("known values lost: pkgver=%q pkgrel=%q", spec.Pkgver(), spec.Pkgrel())
	}
	if _, ok := spec.Global("not_in_catalogue"); ok {
		t.Error("names outside the catalogue must not be stored")
	}
	if _, ok := spec.Global("source_riscv64"); ok {
		t.Error("arch variants for undeclared architectures must not be stored")
	}
	if got := len(spec.Anomalies()); got != 4 {
		t.Errorf("anomalies = %d, want 4: %v", got, spec.Anomalies())
	}
}

func TestParseSingleStringPkgname(t *testing.T) {
	t.Parallel()

	spec := mustParse(t, `GLOBAL STRING pkgname "solo"
FUNCTION package
`)
	if got := spec.SplitPackageNames(); !slices.Equal(got, []string{"solo"}) {
		t.Errorf("SplitPackageNames() = %v", got)
	}
	fn, ok := spec.PackageFunctionFor("solo")
	if !ok || fn != FuncPackage {
		t.Errorf("PackageFunctionFor() = %q, %v", fn, ok)
	}
	if spec.IsSplit() {
		t.Error("single pkgname should not be split")
	}
}

func TestSpecSources(t *testing.T) {
	t.Parallel()

	spec := mustParse(t, splitStream)

	entries, err := spec.Sources("x86_64")
	if err != nil {
		t.Fatalf("Sources() error: %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("Sources() returned %d entries, want 4", len(entries))
	}

	tarball := entries[0]
	if tarball.FileName() != "foo-1.0.tar.gz" {
		t.Errorf("FileName() = %q", tarball.FileName())
	}
	if tarball.Signature != "foo-1.0.tar.gz.sig" {
		t.Errorf("Signature = %q, want companion", tarball.Signature)
	}
	if len(tarball.Checksums) != 2 || tarball.Checksums[0].Algorithm != AlgoSHA256 || tarball.Checksums[1].Algorithm != AlgoMD5 {
		t.Errorf("Checksums = %v", tarball.Checksums)
	}

	if entries[1].Signature != "" || !entries[1].IsSignature() {
		t.Errorf("signature entry = %+v", entries[1])
	}
	if entries[2].IsRemote() {
		t.Error("local.patch should be local")
	}

	arched := entries[3]
	if arched.Arch != "x86_64" || arched.Index != 0 {
		t.Errorf("arch entry = %+v", arched)
	}
	if len(arched.Checksums) != 1 || arched.Checksums[0].Expected != "CCCC" {
		t.Errorf("arch checksums = %v", arched.Checksums)
	}

	common, err := spec.Sources("")
	if err != nil {
		t.Fatalf("Sources(\"\") error: %v", err)
	}
	if len(common) != 3 {
		t.Errorf("Sources(\"\") returned %d entries, want 3", len(common))
	}
}
