// SPDX-License-Identifier: MPL-2.0

package pkgbuild

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode"
)

// ErrInvalidPkgver is returned for version strings pacman would reject.
var ErrInvalidPkgver = errors.New("invalid pkgver")

// InvalidPkgverError is returned when a pkgver value is empty, non-ASCII, or
// contains ':', '/', '-' or whitespace. It wraps ErrInvalidPkgver.
type InvalidPkgverError struct {
	Value  string
	Reason string
}

// Error implements the error interface for InvalidPkgverError.
func (e *InvalidPkgverError) Error() string {
	return fmt.Sprintf("invalid pkgver %q: %s", e.Value, e.Reason)
}

// Unwrap returns ErrInvalidPkgver for errors.Is() compatibility.
func (e *InvalidPkgverError) Unwrap() error { return ErrInvalidPkgver }

// ValidatePkgver checks v against the pkgver rules.
func ValidatePkgver(v string) error {
	if v == "" {
		return &InvalidPkgverError{Value: v, Reason: "must not be empty"}
	}
	for _, r := range v {
		switch {
		case r > unicode.MaxASCII:
			return &InvalidPkgverError{Value: v, Reason: "must be ASCII"}
		case r == ':' || r == '/' || r == '-':
			return &InvalidPkgverError{Value: v, Reason: fmt.Sprintf("must not contain %q", r)}
		case unicode.IsSpace(r):
			return &InvalidPkgverError{Value: v, Reason: "must not contain whitespace"}
		}
	}
	return nil
}

// SetPkgver rewrites the top-level pkgver= assignment of the file at path.
// When the version changes, pkgrel is reset to 1. Anything after the value
// on the same line (usually a comment) is kept.
func SetPkgver(path, oldVersion, newVersion string) error {
	if err := ValidatePkgver(newVersion); err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("set pkgver: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("set pkgver: %w", err)
	}

	data = setVar(data, "pkgver", newVersion)
	if newVersion != oldVersion {
		data = setVar(data, "pkgrel", "1")
	}
	if err := os.WriteFile(path, data, info.Mode().Perm()); err != nil {
		return fmt.Errorf("set pkgver: %w", err)
	}
	return nil
}

func setVar(data []byte, name, value string) []byte {
	var out bytes.Buffer
	prefix := name + "="
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, prefix) {
			out.WriteString(prefix)
			out.WriteString(value)
			if _, rest, ok := strings.Cut(line, " "); ok {
				out.WriteByte(' ')
				out.WriteString(rest)
			}
		} else {
			out.WriteString(line)
		}
		out.WriteByte('\n')
	}
	return out.Bytes()
}
