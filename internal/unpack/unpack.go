// SPDX-License-Identifier: MPL-2.0

package unpack

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/charlievieth/fastwalk"
)

var (
	// ErrUnsafePath is returned for archive members escaping the target.
	ErrUnsafePath = errors.New("archive member escapes the source directory")

	// ErrUnpack is the sentinel wrapped by UnpackError.
	ErrUnpack = errors.New("failed to unpack source")
)

type (
	// Source is a fetched file to expose in srcdir.
	Source struct {
		// Name is the file name inside srcdir.
		Name string
		// Path is the verified file on disk.
		Path string
	}

	// UnpackError reports a source that could not be linked or extracted.
	UnpackError struct {
		Name  string
		Cause error
	}

	// Unpacker links and extracts sources.
	Unpacker struct {
		epoch  *time.Time
		logger *slog.Logger
	}

	// Option configures an Unpacker.
	Option func(*Unpacker)
)

// Error implements the error interface for UnpackError.
func (e *UnpackError) Error() string {
	return fmt.Sprintf("unpack %s: %v", e.Name, e.Cause)
}

// Unwrap returns ErrUnpack and the cause for errors.Is() compatibility.
func (e *UnpackError) Unwrap() []error { return []error{ErrUnpack, e.Cause} }

// WithSourceDateEpoch clamps every mtime under srcdir to epoch after
// extraction.
func WithSourceDateEpoch(epoch time.Time) Option {
	return func(u *Unpacker) { u.epoch = &epoch }
}

// WithLogger sets the unpacker's logger.
func WithLogger(l *slog.Logger) Option {
	return func(u *Unpacker) { u.logger = l }
}

// New creates an Unpacker.
func New(opts ...Option) *Unpacker {
	u := &Unpacker{logger: slog.Default()}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Unpack symlinks every source into srcdir and extracts those not named in
// noextract.
func (u *Unpacker) Unpack(ctx context.Context, srcdir string, sources []Source, noextract []string) error {
	if err := os.MkdirAll(srcdir, 0o755); err != nil {
		return err
	}
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := link(srcdir, src); err != nil {
			return &UnpackError{Name: src.Name, Cause: err}
		}
		if slices.Contains(noextract, src.Name) {
			u.logger.Debug("not extracting source", "source", src.Name)
			continue
		}
		kind, err := Extract(src.Path, srcdir, src.Name)
		if err != nil {
			return &UnpackError{Name: src.Name, Cause: err}
		}
		if kind != "" {
			u.logger.Info("extracted source", "source", src.Name, "format", kind)
		}
	}
	if u.epoch != nil {
		return ClampMtimes(srcdir, *u.epoch)
	}
	return nil
}

func link(srcdir string, src Source) error {
	target, err := filepath.Abs(src.Path)
	if err != nil {
		return err
	}
	name := filepath.Join(srcdir, src.Name)
	if existing, err := filepath.Abs(name); err == nil && existing == target {
		return nil
	}
	if err := os.Remove(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.Symlink(target, name)
}

// ClampMtimes sets the mtime of every file under root newer than epoch to
// epoch. Symlinks are left alone.
func ClampMtimes(root string, epoch time.Time) error {
	conf := fastwalk.Config{Follow: false}
	return fastwalk.Walk(&conf, root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if !info.ModTime().After(epoch) {
			return nil
		}
		return os.Chtimes(path, epoch, epoch)
	})
}
