// SPDX-License-Identifier: MPL-2.0

package pkgbuild

import (
	"bufio"
	"fmt"
	"io"
	"slices"
)

var (
	srcinfoScalars = []string{"pkgdesc", "pkgver", "pkgrel", "epoch", "url", "install", "changelog"}
	srcinfoLists   = []string{"arch", "groups", "license"}
	srcinfoArched  = []string{"checkdepends", "makedepends", "depends", "optdepends", "provides", "conflicts", "replaces"}
	srcinfoTail    = []string{"noextract", "options", "backup"}

	packageScalars = []string{"pkgdesc", "url", "install", "changelog"}
	packageLists   = []string{"arch", "groups", "license", "depends", "optdepends", "provides", "conflicts", "replaces", "options", "backup"}
)

// WriteSRCINFO writes the .SRCINFO summary of the spec: the pkgbase section
// followed by one section per split package listing only the values its
// package function overrides.
func (s *Spec) WriteSRCINFO(w io.Writer) error {
	bw := bufio.NewWriter(w)
	arches := s.catalog.Architectures()

	writeList := func(name string, values []string) {
		for _, v := range values {
			fmt.Fprintf(bw, "\t%s = %s\n", name, v)
		}
	}
	writeArched := func(name string) {
		writeList(name, s.list(name))
		for _, a := range arches {
			writeList(name+"_"+a, s.list(name+"_"+a))
		}
	}

	fmt.Fprintf(bw, "pkgbase = %s\n", s.Pkgbase())
	for _, n := range srcinfoScalars {
		if v := s.str(n); v != "" {
			fmt.Fprintf(bw, "\t%s = %s\n", n, v)
		}
	}
	for _, n := range srcinfoLists {
		writeList(n, s.list(n))
	}
	for _, n := range srcinfoArched {
		writeArched(n)
	}
	for _, n := range srcinfoTail {
		writeList(n, s.list(n))
	}
	writeArched("source")
	writeList("validpgpkeys", s.list("validpgpkeys"))
	for i := len(algorithmPriority) - 1; i >= 0; i-- {
		writeArched(algorithmPriority[i].ArrayName())
	}

	for _, name := range s.SplitPackageNames() {
		fmt.Fprintf(bw, "\npkgname = %s\n", name)
		fn, ok := s.PackageFunctionFor(name)
		if !ok {
			continue
		}
		for _, n := range slices.Concat(packageScalars, packageLists) {
			if !s.IsOverridden(fn, n) {
				continue
			}
			v, _ := s.Override(fn, n)
			values := v.List()
			if len(values) == 0 {
				fmt.Fprintf(bw, "\t%s =\n", n)
				continue
			}
			writeList(n, values)
		}
	}
	return bw.Flush()
}
