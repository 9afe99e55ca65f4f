// SPDX-License-Identifier: MPL-2.0

package unpack

import (
	"archive/tar"
	"archive/zip"
	"bufio"
	"compress/bzip2"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// sniffSize covers the tar magic at offset 257.
const sniffSize = 3072

// compressed maps stream compression MIME types to the file extensions
// stripped from single decompressed files.
var compressed = map[string][]string{
	"application/gzip":    {".gz", ".tgz"},
	"application/zstd":    {".zst", ".tzst"},
	"application/x-xz":    {".xz", ".txz"},
	"application/x-bzip2": {".bz2", ".tbz2", ".tbz"},
}

// Extract unpacks the archive at path into dir and returns the detected
// format, or "" for files that are not archives. A compressed stream that
// does not hold a tar archive is decompressed to name without its
// compression extension.
func Extract(path, dir, name string) (string, error) {
	mime, err := mimetype.DetectFile(path)
	if err != nil {
		return "", err
	}

	switch {
	case mime.Is("application/x-tar"):
		f, err := os.Open(path)
		if err != nil {
			return "", err
		}
		defer func() { _ = f.Close() }()
		return "tar", extractTar(f, dir)
	case mime.Is("application/zip"):
		return "zip", extractZip(path, dir)
	}

	for kind, exts := range compressed {
		if mime.Is(kind) {
			return mime.Extension(), decompress(path, dir, name, kind, exts)
		}
	}
	return "", nil
}

func decompress(path, dir, name, kind string, exts []string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	r, closeFn, err := decompressor(kind, f)
	if err != nil {
		return err
	}
	defer closeFn()

	br := bufio.NewReaderSize(r, sniffSize)
	head, _ := br.Peek(sniffSize)
	if mimetype.Detect(head).Is("application/x-tar") {
		return extractTar(br, dir)
	}

	out := name
	for _, ext := range exts {
		if trimmed, ok := strings.CutSuffix(name, ext); ok {
			out = trimmed
			if ext != exts[0] {
				out += ".tar"
			}
			break
		}
	}
	if out == name {
		return fmt.Errorf("cannot name the decompressed form of %s", name)
	}

	root, err := os.OpenRoot(dir)
	if err != nil {
		return err
	}
	defer func() { _ = root.Close() }()
	dst, err := root.OpenFile(out, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, br); err != nil {
		_ = dst.Close()
		return err
	}
	return dst.Close()
}

func decompressor(kind string, r io.Reader) (io.Reader, func(), error) {
	switch kind {
	case "application/gzip":
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return zr, func() { _ = zr.Close() }, nil
	case "application/zstd":
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return zr, zr.Close, nil
	case "application/x-xz":
		zr, err := xz.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return zr, func() {}, nil
	case "application/x-bzip2":
		return bzip2.NewReader(r), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported compression %s", kind)
	}
}

// memberName validates an archive member name and returns it relative to
// the extraction root.
func memberName(name string) (string, error) {
	clean := path.Clean(strings.TrimPrefix(name, "./"))
	if clean == "." {
		return "", nil
	}
	if path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}
	return filepath.FromSlash(clean), nil
}

func extractTar(r io.Reader, dir string) error {
	root, err := os.OpenRoot(dir)
	if err != nil {
		return err
	}
	defer func() { _ = root.Close() }()

	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		name, err := memberName(hdr.Name)
		if err != nil {
			return err
		}
		if name == "" {
			continue
		}
		mode := hdr.FileInfo().Mode().Perm()

		switch hdr.Typeflag {
		case tar.TypeDir:
			err = root.MkdirAll(name, mode|0o700)
		case tar.TypeReg:
			err = writeMember(root, name, mode, tr)
		case tar.TypeSymlink:
			err = replace(root, name, func() error { return root.Symlink(hdr.Linkname, name) })
		case tar.TypeLink:
			var target string
			if target, err = memberName(hdr.Linkname); err == nil {
				err = replace(root, name, func() error { return root.Link(target, name) })
			}
		default:
			continue
		}
		if err != nil {
			return fmt.Errorf("%s: %w", hdr.Name, err)
		}
		if hdr.Typeflag != tar.TypeSymlink {
			_ = root.Chtimes(name, hdr.ModTime, hdr.ModTime)
		}
	}
}

func extractZip(archive, dir string) error {
	zr, err := zip.OpenReader(archive)
	if err != nil {
		return err
	}
	defer func() { _ = zr.Close() }()

	root, err := os.OpenRoot(dir)
	if err != nil {
		return err
	}
	defer func() { _ = root.Close() }()

	for _, f := range zr.File {
		name, err := memberName(f.Name)
		if err != nil {
			return err
		}
		if name == "" {
			continue
		}
		if f.FileInfo().IsDir() {
			if err := root.MkdirAll(name, 0o755); err != nil {
				return err
			}
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return err
		}
		err = writeMember(root, name, f.Mode().Perm(), rc)
		_ = rc.Close()
		if err != nil {
			return fmt.Errorf("%s: %w", f.Name, err)
		}
		_ = root.Chtimes(name, f.Modified, f.Modified)
	}
	return nil
}

func writeMember(root *os.Root, name string, mode os.FileMode, r io.Reader) error {
	if parent := filepath.Dir(name); parent != "." {
		if err := root.MkdirAll(parent, 0o755); err != nil {
			return err
		}
	}
	f, err := root.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode|0o200)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func replace(root *os.Root, name string, create func() error) error {
	if parent := filepath.Dir(name); parent != "." {
		if err := root.MkdirAll(parent, 0o755); err != nil {
			return err
		}
	}
	_ = root.Remove(name)
	return create()
}
