// SPDX-License-Identifier: MPL-2.0

package extract

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/pkgbake/pkgbake/internal/shell"
	"github.com/pkgbake/pkgbake/internal/testutil"
	"github.com/pkgbake/pkgbake/pkg/pkgbuild"
)

func newTestExtractor() *Extractor {
	return New(shell.New(shell.WithStderr(nil)), pkgbuild.DefaultCatalog())
}

func TestLoadSplitPackage(t *testing.T) {
	t.Parallel()
	testutil.RequireBash(t)

	path := testutil.WriteBuildFile(t, `pkgbase=demo
pkgname=(foo bar)
pkgver=1.2
pkgrel=3
arch=(x86_64)
depends=(glibc)
source=("https://example.com/demo-$pkgver.tar.gz")
source_x86_64=(extra.patch)
sha256sums=(SKIP)
sha256sums_x86_64=(SKIP)

package_foo() {
	depends=(glibc zlib)
	make install
}

package_bar() {
	local pkgdesc="bar half"
	exit 9
}
`)

	spec, err := newTestExtractor().Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if got := spec.SplitPackageNames(); !slices.Equal(got, []string{"foo", "bar"}) {
		t.Errorf("SplitPackageNames() = %v", got)
	}
	if got := spec.Version(); got != "1.2-3" {
		t.Errorf("Version() = %q, want 1.2-3", got)
	}

	v, ok := spec.Override("package_foo", "depends")
	if !ok || !slices.Equal(v.List(), []string{"glibc", "zlib"}) {
		t.Errorf("package_foo depends = %v, %v", v.List(), ok)
	}
	if !spec.IsOverridden("package_foo", "depends") {
		t.Error("package_foo depends should be an override")
	}
	v, _ = spec.Override("package_bar", "depends")
	if !slices.Equal(v.List(), []string{"glibc"}) {
		t.Errorf("package_bar depends should fall back to global, got %v", v.List())
	}
	v, _ = spec.Override("package_bar", "pkgdesc")
	if v.Str() != "bar half" {
		t.Errorf("package_bar pkgdesc = %q", v.Str())
	}

	if !spec.Catalog().Contains("source_x86_64") {
		t.Error("catalogue should include arch variants")
	}
	srcs, err := spec.Sources("x86_64")
	if err != nil {
		t.Fatalf("Sources() error = %v", err)
	}
	if len(srcs) != 2 || srcs[1].FileName() != "extra.patch" {
		t.Errorf("Sources() = %+v", srcs)
	}
}

func TestExtractStripsDefinitions(t *testing.T) {
	t.Parallel()
	testutil.RequireBash(t)

	path := testutil.WriteBuildFile(t, "pkgname=x\nbuild() { make; }\n")
	stream, err := newTestExtractor().Extract(context.Background(), path)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if strings.Contains(string(stream.Bytes()), definitionTag) {
		t.Errorf("stream leaks definitions:\n%s", stream.Bytes())
	}
	def, ok := stream.Definition("build")
	if !ok || !strings.Contains(def, "make") {
		t.Errorf("Definition(build) = %q, %v", def, ok)
	}
}

func TestExtractFailures(t *testing.T) {
	t.Parallel()
	testutil.RequireBash(t)

	tests := []struct {
		name    string
		content string
	}{
		{name: "syntax error", content: "pkgname=(foo\nbuild() {\n"},
		{name: "explicit exit", content: "pkgname=foo\nexit 3\n"},
		{name: "failing source", content: "pkgname=foo\nfalse\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := testutil.WriteBuildFile(t, tt.content)
			stream, err := newTestExtractor().Extract(context.Background(), path)
			if stream != nil {
				t.Error("no partial stream may accompany a failure")
			}
			var loadErr *SpecLoadError
			if !errors.As(err, &loadErr) || !errors.Is(err, ErrSpecLoad) {
				t.Fatalf("Extract() error = %v, want SpecLoadError", err)
			}
		})
	}
}

func TestExtractMissingInterpreter(t *testing.T) {
	t.Parallel()

	ex := New(shell.New(shell.WithPath("/nonexistent/bash")), pkgbuild.DefaultCatalog())
	_, err := ex.Extract(context.Background(), "PKGBUILD")
	if !errors.Is(err, shell.ErrInterpreterNotFound) {
		t.Fatalf("Extract() error = %v, want ErrInterpreterNotFound", err)
	}
}

func TestExtractConfig(t *testing.T) {
	t.Parallel()
	testutil.RequireBash(t)

	dir := t.TempDir()
	first := dir + "/makepkg.conf"
	second := dir + "/user.conf"
	testutil.MustWriteFile(t, first, "CARCH=x86_64\nCFLAGS='-O2'\n")
	testutil.MustWriteFile(t, second, "CFLAGS='-O3 -pipe'\n")

	stream, err := newTestExtractor().ExtractConfig(context.Background(),
		[]string{first, dir + "/missing.conf", second}, []string{"CARCH", "CFLAGS", "LDFLAGS"})
	if err != nil {
		t.Fatalf("ExtractConfig() error = %v", err)
	}
	out := string(stream.Bytes())
	for _, want := range []string{`GLOBAL STRING CARCH "x86_64"`, `GLOBAL STRING CFLAGS "-O3 -pipe"`} {
		if !strings.Contains(out, want) {
			t.Errorf("stream missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "LDFLAGS") {
		t.Error("unset names must not be printed")
	}
}
