// SPDX-License-Identifier: MPL-2.0

// Package pkgbuild models a build-specification file (PKGBUILD) as seen
// through the extraction line protocol.
//
// The package never interprets bash. An external interpreter sources the file
// and prints one line per datum (see Record); Parse turns that stream into an
// immutable Spec. Names outside the recognized Catalog are dropped, and
// malformed lines are reported as ParseAnomaly values instead of errors so
// newer helpers can add tags without breaking older readers.
//
// A Spec is read-only after Parse returns and may be shared between
// goroutines without synchronization.
package pkgbuild
