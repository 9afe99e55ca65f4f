// SPDX-License-Identifier: MPL-2.0

package fetch

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkgbake/pkgbake/pkg/pkgbuild"
)

type (
	// Backend transfers one source into a part file. Backends that support
	// resumption continue from the part's current size.
	Backend interface {
		// Fetch writes the source to partPath and returns the part's final size.
		Fetch(ctx context.Context, src pkgbuild.SourceEntry, partPath string) (int64, error)
	}

	// FileBackend copies file:// URLs.
	FileBackend struct{}
)

// Fetch copies the file named by the URL path, resuming at the part's size.
func (FileBackend) Fetch(ctx context.Context, src pkgbuild.SourceEntry, partPath string) (int64, error) {
	path := strings.TrimPrefix(src.URL, "file://")
	in, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("%w: %s", ErrSourceMissing, path)
		}
		return 0, err
	}
	defer func() { _ = in.Close() }()

	out, offset, err := openPart(partPath)
	if err != nil {
		return 0, err
	}
	if _, err := in.Seek(offset, io.SeekStart); err != nil {
		_ = out.Close()
		return 0, err
	}
	n, err := io.Copy(out, &ctxReader{ctx: ctx, r: in})
	return closePart(out, offset+n, err)
}

// openPart opens partPath for appending and returns its current size.
func openPart(partPath string) (*os.File, int64, error) {
	f, err := os.OpenFile(partPath, os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		return nil, 0, err
	}
	offset, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		_ = f.Close()
		return nil, 0, err
	}
	return f, offset, nil
}

// restartPart truncates a part whose server ignored the range request.
func restartPart(f *os.File) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	_, err := f.Seek(0, io.SeekStart)
	return err
}

func closePart(f *os.File, size int64, err error) (int64, error) {
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return size, err
}

// ctxReader stops a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
