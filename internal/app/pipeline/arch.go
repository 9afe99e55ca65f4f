// SPDX-License-Identifier: MPL-2.0

package pipeline

import (
	"runtime"
	"slices"
)

var goarchToCarch = map[string]string{
	"amd64":   "x86_64",
	"386":     "i686",
	"arm64":   "aarch64",
	"arm":     "armv7h",
	"riscv64": "riscv64",
	"ppc64le": "powerpc64le",
	"loong64": "loong64",
}

// hostArch returns the CARCH name of the running machine.
func hostArch() string {
	if a, ok := goarchToCarch[runtime.GOARCH]; ok {
		return a
	}
	return runtime.GOARCH
}

// checkArch accepts arch when the list contains it or "any". An empty list
// is accepted; the build file simply did not declare one.
func checkArch(arch string, supported []string) error {
	if len(supported) == 0 || slices.Contains(supported, "any") || slices.Contains(supported, arch) {
		return nil
	}
	return &ArchError{Arch: arch, Supported: supported}
}
