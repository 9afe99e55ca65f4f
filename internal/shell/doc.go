// SPDX-License-Identifier: MPL-2.0

// Package shell runs the external bash interpreter that every other
// component treats as an oracle for build files.
//
// Bash is started as `bash --noprofile --norc -s - <mode> <args...>` with an
// embedded helper script on stdin. The helper implements four modes: dump
// (print metadata), override (print function-local values), conf (merge
// configuration files) and run (execute one lifecycle function with
// errexit, nounset and pipefail). The Go side only ever reads the helper's
// line protocol or its exit status.
//
// Every invocation is bound to a context. Cancelling it kills the whole
// process group, and the resulting Result carries ErrTerminated: a killed
// interpreter is always a failure.
package shell
