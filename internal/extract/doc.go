// SPDX-License-Identifier: MPL-2.0

// Package extract turns a build file into a metadata stream by asking bash
// to source it.
//
// The Extractor never evaluates bash itself. It runs the interpreter helper
// in dump mode, statically scans the printed definition of every lifecycle
// function for top-level assignments to recognized names, and asks the
// helper to evaluate those assignments in override mode.
//
// Known limitation: the override scan only sees assignments that are direct
// statements of the function body. Assignments inside conditionals, loops,
// subshells or command substitutions are not discovered, so the set of
// overrides is a conservative subset of what bash would compute at run
// time. This is deliberate; the scan does not guess.
package extract
