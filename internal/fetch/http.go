// SPDX-License-Identifier: MPL-2.0

package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/pkgbake/pkgbake/pkg/pkgbuild"
)

const (
	// DefaultUserAgent identifies pkgbake in HTTP requests.
	DefaultUserAgent = "pkgbake"

	defaultHTTPRetries = 2
)

type (
	// HTTPBackend fetches http and https URLs with range-request resumption.
	HTTPBackend struct {
		client    *retryablehttp.Client
		userAgent string
	}

	// HTTPOption configures an HTTPBackend.
	HTTPOption func(*HTTPBackend)
)

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) HTTPOption {
	return func(b *HTTPBackend) {
		if ua != "" {
			b.userAgent = ua
		}
	}
}

// WithTimeout sets the per-request timeout. Zero disables it.
func WithTimeout(d time.Duration) HTTPOption {
	return func(b *HTTPBackend) { b.client.HTTPClient.Timeout = d }
}

// WithHTTPRetries sets how often the transport itself retries a request
// before the scheduler sees the failure.
func WithHTTPRetries(n int) HTTPOption {
	return func(b *HTTPBackend) { b.client.RetryMax = n }
}

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(b *HTTPBackend) { b.client.HTTPClient = c }
}

// WithHTTPLogger sets the transport's logger.
func WithHTTPLogger(l *slog.Logger) HTTPOption {
	return func(b *HTTPBackend) { b.client.Logger = l }
}

// NewHTTPBackend creates an HTTPBackend.
func NewHTTPBackend(opts ...HTTPOption) *HTTPBackend {
	client := retryablehttp.NewClient()
	client.RetryMax = defaultHTTPRetries
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	client.Logger = slog.Default()
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler

	b := &HTTPBackend{client: client, userAgent: DefaultUserAgent}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Fetch downloads src.URL into partPath.
func (b *HTTPBackend) Fetch(ctx context.Context, src pkgbuild.SourceEntry, partPath string) (int64, error) {
	out, offset, err := openPart(partPath)
	if err != nil {
		return 0, err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		_ = out.Close()
		return 0, err
	}
	req.Header.Set("User-Agent", b.userAgent)
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := b.client.Do(req)
	if err != nil {
		_ = out.Close()
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusPartialContent:
	case http.StatusOK:
		if offset > 0 {
			if err := restartPart(out); err != nil {
				_ = out.Close()
				return 0, err
			}
			offset = 0
		}
	case http.StatusRequestedRangeNotSatisfiable:
		// The part already holds the whole file.
		return closePart(out, offset, nil)
	default:
		_ = out.Close()
		return 0, &HTTPStatusError{URL: src.URL, StatusCode: resp.StatusCode}
	}

	n, err := io.Copy(out, resp.Body)
	return closePart(out, offset+n, err)
}
