// SPDX-License-Identifier: MPL-2.0

package pkgbuild

import (
	"slices"
	"testing"
)

func TestCatalogExpand(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		base   []string
		arches []string
	}{
		{name: "no arches", base: []string{"source", "depends"}},
		{name: "one arch", base: []string{"source", "depends"}, arches: []string{"x86_64"}},
		{name: "many arches", base: []string{"source", "md5sums", "depends"}, arches: []string{"x86_64", "i686", "armv7h"}},
		{name: "duplicate arch", base: []string{"source"}, arches: []string{"x86_64", "x86_64"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cat := NewCatalog(tt.base...).Expand(tt.arches)

			want := make(map[string]bool)
			for _, b := range tt.base {
				want[b] = true
				for _, a := range tt.arches {
					want[b+"_"+a] = true
				}
			}

			names := cat.Names()
			if len(names) != len(want) {
				t.Errorf("Names() has %d entries, want %d: %v", len(names), len(want), names)
			}
			for _, n := range names {
				if !want[n] {
					t.Errorf("unexpected name %q", n)
				}
				if !cat.Contains(n) {
					t.Errorf("Contains(%q) = false", n)
				}
			}
			for n := range want {
				if !cat.Contains(n) {
					t.Errorf("missing name %q", n)
				}
			}
		})
	}
}

func TestCatalogExpandDoesNotCompound(t *testing.T) {
	t.Parallel()

	once := NewCatalog("source").Expand([]string{"x86_64"})
	twice := once.Expand([]string{"x86_64"})
	if !slices.Equal(once.Names(), twice.Names()) {
		t.Errorf("re-expansion changed names: %v vs %v", once.Names(), twice.Names())
	}
	if twice.Contains("source_x86_64_x86_64") {
		t.Error("suffixes must not compound")
	}
}

func TestCatalogIsImmutable(t *testing.T) {
	t.Parallel()

	cat := DefaultCatalog()
	names := cat.Names()
	names[0] = "mutated"
	if cat.Contains("mutated") {
		t.Error("Names() must return a copy")
	}
	_ = cat.Expand([]string{"x86_64"})
	if cat.Contains("source_x86_64") {
		t.Error("Expand must not modify the receiver")
	}
}

func TestIsLifecycleFunction(t *testing.T) {
	t.Parallel()

	for _, fn := range []string{"pkgver", "verify", "prepare", "build", "check", "package", "package_foo"} {
		if !IsLifecycleFunction(fn) {
			t.Errorf("IsLifecycleFunction(%q) = false", fn)
		}
	}
	for _, fn := range []string{"helper", "packagefoo", ""} {
		if IsLifecycleFunction(fn) {
			t.Errorf("IsLifecycleFunction(%q) = true", fn)
		}
	}
}
