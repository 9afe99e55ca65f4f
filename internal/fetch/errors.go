// SPDX-License-Identifier: MPL-2.0

package fetch

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrFetchExhausted is the sentinel wrapped by ExhaustedError.
	ErrFetchExhausted = errors.New("fetch attempts exhausted")

	// ErrSourceMissing is returned for local sources absent from disk.
	ErrSourceMissing = errors.New("source file not found")

	// ErrVCSUnsupported is returned for version-control sources.
	ErrVCSUnsupported = errors.New("version-control sources are not supported")

	// ErrUnsupportedProtocol is returned when no backend or download agent
	// handles a scheme.
	ErrUnsupportedProtocol = errors.New("unsupported protocol")
)

type (
	// ExhaustedError reports a source that failed permanently or ran out of
	// attempts. It wraps ErrFetchExhausted and the last failure.
	ExhaustedError struct {
		Key       string
		URL       string
		Attempts  int
		Permanent bool
		Last      error
	}

	// HTTPStatusError is returned for unexpected HTTP response statuses.
	HTTPStatusError struct {
		URL        string
		StatusCode int
	}
)

// Error implements the error interface for ExhaustedError.
func (e *ExhaustedError) Error() string {
	if e.Permanent {
		return fmt.Sprintf("fetch %s failed permanently: %v", e.URL, e.Last)
	}
	return fmt.Sprintf("fetch %s failed after %d attempt(s): %v", e.URL, e.Attempts, e.Last)
}

// Unwrap returns ErrFetchExhausted and the last error for errors.Is() compatibility.
func (e *ExhaustedError) Unwrap() []error {
	return []error{ErrFetchExhausted, e.Last}
}

// Error implements the error interface for HTTPStatusError.
func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("GET %s: %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// Permanent reports whether retrying cannot help: client errors other than
// request timeout and rate limiting.
func (e *HTTPStatusError) Permanent() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500 &&
		e.StatusCode != http.StatusRequestTimeout && e.StatusCode != http.StatusTooManyRequests
}

// IsPermanent reports whether err must not be retried. Cancellation is
// decided by the caller's context, not by the error.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrSourceMissing) || errors.Is(err, ErrVCSUnsupported) || errors.Is(err, ErrUnsupportedProtocol) {
		return true
	}
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.Permanent()
	}
	return false
}
