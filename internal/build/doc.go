// SPDX-License-Identifier: MPL-2.0

// Package build runs the lifecycle functions of a build file in order:
// pkgver, prepare, build, check and one package stage per split package.
//
// Every stage is a separate interpreter process that sources the build file
// and calls one function with errexit, nounset and pipefail enabled. A
// failing stage stops the run; its staging directory stays on disk for
// inspection.
package build
