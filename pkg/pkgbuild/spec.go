// SPDX-License-Identifier: MPL-2.0

package pkgbuild

import (
	"errors"
	"slices"
	"strings"
)

// Spec is the immutable build specification produced by Parse.
type Spec struct {
	catalog   *Catalog
	globals   map[string]Value
	overrides map[string]map[string]Value
	functions map[string]struct{}
	anomalies []ParseAnomaly
}

// Catalog returns the architecture-expanded catalogue the spec was parsed with.
func (s *Spec) Catalog() *Catalog { return s.catalog }

// Anomalies returns the lines that were ignored while parsing.
func (s *Spec) Anomalies() []ParseAnomaly { return slices.Clone(s.anomalies) }

// Global returns a global variable.
func (s *Spec) Global(name string) (Value, bool) {
	v, ok := s.globals[name]
	return v, ok
}

// Override returns the value of name as seen inside function fn: the
// function-local override when one was extracted, the global otherwise.
func (s *Spec) Override(fn, name string) (Value, bool) {
	if v, ok := s.overrides[fn][name]; ok {
		return v, true
	}
	return s.Global(name)
}

// IsOverridden reports whether fn rebinds name locally.
func (s *Spec) IsOverridden(fn, name string) bool {
	_, ok := s.overrides[fn][name]
	return ok
}

// Overrides returns the names fn rebinds, sorted.
func (s *Spec) Overrides(fn string) []string {
	names := make([]string, 0, len(s.overrides[fn]))
	for n := range s.overrides[fn] {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// GlobalNames returns the names of every global that was set, sorted.
func (s *Spec) GlobalNames() []string {
	names := make([]string, 0, len(s.globals))
	for n := range s.globals {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

func (s *Spec) str(name string) string {
	v, _ := s.Global(name)
	return v.Str()
}

func (s *Spec) list(name string) []string {
	v, _ := s.Global(name)
	return v.List()
}

// Architectures returns the declared architectures in order.
func (s *Spec) Architectures() []string { return s.list("arch") }

// SplitPackageNames returns the package names built from this file: the
// pkgname array, a single pkgname string, or pkgbase when pkgname is unset.
func (s *Spec) SplitPackageNames() []string {
	if names := s.list("pkgname"); len(names) > 0 {
		return names
	}
	if base := s.str("pkgbase"); base != "" {
		return []string{base}
	}
	return nil
}

// IsSplit reports whether pkgname declares more than one package.
func (s *Spec) IsSplit() bool {
	v, _ := s.Global("pkgname")
	return v.Kind() == KindArray && len(v.List()) > 1
}

// Pkgbase returns pkgbase, defaulting to the first package name.
func (s *Spec) Pkgbase() string {
	if base := s.str("pkgbase"); base != "" {
		return base
	}
	if names := s.SplitPackageNames(); len(names) > 0 {
		return names[0]
	}
	return ""
}

// Pkgver returns pkgver.
func (s *Spec) Pkgver() string { return s.str("pkgver") }

// Pkgrel returns pkgrel.
func (s *Spec) Pkgrel() string { return s.str("pkgrel") }

// Epoch returns epoch, or "" when unset.
func (s *Spec) Epoch() string { return s.str("epoch") }

// Version returns the full version string [epoch:]pkgver-pkgrel.
func (s *Spec) Version() string {
	v := s.Pkgver() + "-" + s.Pkgrel()
	if e := s.Epoch(); e != "" && e != "0" {
		v = e + ":" + v
	}
	return v
}

// TrustedKeys returns the validpgpkeys allow-list as uppercase fingerprints
// with spaces removed.
func (s *Spec) TrustedKeys() []string {
	keys := s.list("validpgpkeys")
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		k = strings.ToUpper(strings.ReplaceAll(k, " ", ""))
		if k != "" {
			out = append(out, k)
		}
	}
	return out
}

// NoExtract returns the file names that must not be unpacked.
func (s *Spec) NoExtract() []string { return s.list("noextract") }

// HasFunction reports whether the file declares the lifecycle function name.
func (s *Spec) HasFunction(name string) bool {
	_, ok := s.functions[name]
	return ok
}

// Functions returns the declared lifecycle functions in execution order,
// with package_<name> functions in pkgname order.
func (s *Spec) Functions() []string {
	var out []string
	for _, fn := range lifecycleFunctions {
		if s.HasFunction(fn) {
			out = append(out, fn)
		}
	}
	for _, name := range s.SplitPackageNames() {
		if fn := PackageFunction(name); s.HasFunction(fn) {
			out = append(out, fn)
		}
	}
	return out
}

// PackageFunctionFor returns the function that packages pkgname:
// package_<pkgname> when declared, otherwise package for unsplit files.
func (s *Spec) PackageFunctionFor(pkgname string) (string, bool) {
	if fn := PackageFunction(pkgname); s.HasFunction(fn) {
		return fn, true
	}
	if s.HasFunction(FuncPackage) && len(s.SplitPackageNames()) <= 1 {
		return FuncPackage, true
	}
	return "", false
}

// Sources returns the entries of source followed by source_<arch>, with
// digests attached by index and companion signatures linked. An empty arch
// returns the architecture-independent entries only.
func (s *Spec) Sources(arch string) ([]SourceEntry, error) {
	suffixes := []string{""}
	if arch != "" {
		suffixes = append(suffixes, "_"+arch)
	}

	var entries []SourceEntry
	var errs []error
	for _, suffix := range suffixes {
		for i, raw := range s.list("source" + suffix) {
			e, err := ParseSource(raw)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			e.Arch = strings.TrimPrefix(suffix, "_")
			e.Index = i
			for _, algo := range algorithmPriority {
				sums := s.list(algo.ArrayName() + suffix)
				if i < len(sums) {
					e.Checksums = append(e.Checksums, ChecksumRecord{Algorithm: algo, Expected: sums[i]})
				}
			}
			entries = append(entries, e)
		}
	}

	signers := make(map[string]string)
	for _, e := range entries {
		if stem := e.SignedName(); stem != "" {
			signers[stem] = e.FileName()
		}
	}
	for i := range entries {
		if entries[i].IsSignature() {
			continue
		}
		entries[i].Signature = signers[entries[i].FileName()]
	}
	return entries, errors.Join(errs...)
}
