// SPDX-License-Identifier: MPL-2.0

package fetch

import (
	"cmp"
	"errors"
	"slices"

	"github.com/pkgbake/pkgbake/internal/verify"
	"github.com/pkgbake/pkgbake/pkg/pkgbuild"
)

const (
	// StatusFetched means the file was downloaded and verified.
	StatusFetched Status = "fetched"
	// StatusSkipped means a cached file already verified.
	StatusSkipped Status = "skipped"
	// StatusLocal means a local source was found in the start directory.
	StatusLocal Status = "local"
	// StatusFailed means the source failed fatally.
	StatusFailed Status = "failed"
	// StatusCanceled means the job was abandoned after a sibling failed or
	// the caller canceled.
	StatusCanceled Status = "canceled"
)

type (
	// Status is the outcome class of one source.
	Status string

	// Result is the outcome for one source entry.
	Result struct {
		Entry  pkgbuild.SourceEntry
		Status Status
		// Path is the verified file on disk.
		Path     string
		Attempts int
		Bytes    int64
		Err      error
		// Verification is the last digest check, when one ran.
		Verification *verify.Result
	}

	// Results maps SourceEntry.Key to its Result.
	Results map[string]*Result
)

// OK reports whether the source is usable.
func (r *Result) OK() bool {
	return r.Status == StatusFetched || r.Status == StatusSkipped || r.Status == StatusLocal
}

// Failed returns the fatal results ordered by key.
func (rs Results) Failed() []*Result {
	var out []*Result
	for _, r := range rs {
		if r.Status == StatusFailed {
			out = append(out, r)
		}
	}
	slices.SortFunc(out, func(a, b *Result) int { return cmp.Compare(a.Entry.Key(), b.Entry.Key()) })
	return out
}

// OK reports whether every source is usable.
func (rs Results) OK() bool {
	for _, r := range rs {
		if !r.OK() {
			return false
		}
	}
	return true
}

// Err joins the fatal errors, or returns nil.
func (rs Results) Err() error {
	var errs []error
	for _, r := range rs.Failed() {
		errs = append(errs, r.Err)
	}
	return errors.Join(errs...)
}
