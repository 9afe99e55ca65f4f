// SPDX-License-Identifier: MPL-2.0

package pkgbuild

import (
	"slices"
	"strings"
)

// Lifecycle function names, in execution order. Split packages add one
// package_<name> function per entry of pkgname.
const (
	FuncPkgver  = "pkgver"
	FuncVerify  = "verify"
	FuncPrepare = "prepare"
	FuncBuild   = "build"
	FuncCheck   = "check"
	FuncPackage = "package"
)

var (
	baseVariables = []string{
		"pkgname", "pkgbase", "pkgver", "pkgrel", "epoch",
		"pkgdesc", "url", "license", "install", "changelog",
		"source", "validpgpkeys", "noextract",
		"cksums", "md5sums", "sha1sums", "sha224sums",
		"sha256sums", "sha384sums", "sha512sums", "b2sums",
		"groups", "arch", "backup",
		"depends", "makedepends", "checkdepends", "optdepends",
		"conflicts", "provides", "replaces", "options",
	}

	lifecycleFunctions = []string{
		FuncPkgver, FuncVerify, FuncPrepare, FuncBuild, FuncCheck, FuncPackage,
	}
)

// Catalog is the immutable set of recognized variable names. Build it once
// with DefaultCatalog (or NewCatalog in tests) and pass it by reference.
type Catalog struct {
	base   []string
	arches []string
	names  []string
	index  map[string]struct{}
}

// DefaultCatalog returns the catalogue of PKGBUILD variables.
func DefaultCatalog() *Catalog {
	return NewCatalog(baseVariables...)
}

// NewCatalog returns a catalogue recognizing exactly names.
func NewCatalog(names ...string) *Catalog {
	c := &Catalog{index: make(map[string]struct{}, len(names))}
	for _, n := range names {
		if _, dup := c.index[n]; dup {
			continue
		}
		c.index[n] = struct{}{}
		c.base = append(c.base, n)
	}
	c.names = slices.Clone(c.base)
	return c
}

// Expand returns a catalogue containing every base name plus base_<arch> for
// each architecture. Expansion always starts from the base names, so expanding
// an already expanded catalogue does not compound suffixes.
func (c *Catalog) Expand(arches []string) *Catalog {
	out := &Catalog{
		base:  c.base,
		index: make(map[string]struct{}, len(c.base)*(len(arches)+1)),
	}
	add := func(name string) {
		if _, dup := out.index[name]; dup {
			return
		}
		out.index[name] = struct{}{}
		out.names = append(out.names, name)
	}
	for _, n := range c.base {
		add(n)
	}
	for _, a := range arches {
		if a == "" {
			continue
		}
		out.arches = append(out.arches, a)
		for _, n := range c.base {
			add(n + "_" + a)
		}
	}
	return out
}

// Contains reports whether name is recognized.
func (c *Catalog) Contains(name string) bool {
	_, ok := c.index[name]
	return ok
}

// Names returns every recognized name: base names first, then each
// architecture's variants in declaration order.
func (c *Catalog) Names() []string { return slices.Clone(c.names) }

// Base returns the names before architecture expansion.
func (c *Catalog) Base() []string { return slices.Clone(c.base) }

// Architectures returns the architectures the catalogue was expanded with.
func (c *Catalog) Architectures() []string { return slices.Clone(c.arches) }

// LifecycleFunctions returns the fixed lifecycle function names in
// execution order.
func LifecycleFunctions() []string { return slices.Clone(lifecycleFunctions) }

// IsLifecycleFunction reports whether name is a lifecycle function,
// including package_<name> variants.
func IsLifecycleFunction(name string) bool {
	return slices.Contains(lifecycleFunctions, name) || strings.HasPrefix(name, FuncPackage+"_")
}

// PackageFunction returns the split-package function name for pkgname.
func PackageFunction(pkgname string) string {
	return FuncPackage + "_" + pkgname
}
