// SPDX-License-Identifier: MPL-2.0

// Package pipeline drives one build file through extraction, fetching,
// verification, unpacking and the build stages, and reports the outcome.
//
// Phases run strictly in order. Extraction and parse failures abort before
// any network or build work, and fetching is a hard barrier: nothing is
// unpacked until every source is on disk and verified.
package pipeline
