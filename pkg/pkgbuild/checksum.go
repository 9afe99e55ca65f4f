// SPDX-License-Identifier: MPL-2.0

package pkgbuild

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Skip is the expected-digest placeholder that disables one check.
const Skip = "SKIP"

const (
	// AlgoBlake2 is BLAKE2b-512, declared through b2sums.
	AlgoBlake2 Algorithm = "blake2"
	// AlgoSHA512 is SHA-512.
	AlgoSHA512 Algorithm = "sha512"
	// AlgoSHA384 is SHA-384.
	AlgoSHA384 Algorithm = "sha384"
	// AlgoSHA256 is SHA-256.
	AlgoSHA256 Algorithm = "sha256"
	// AlgoSHA224 is SHA-224.
	AlgoSHA224 Algorithm = "sha224"
	// AlgoSHA1 is SHA-1.
	AlgoSHA1 Algorithm = "sha1"
	// AlgoMD5 is MD5.
	AlgoMD5 Algorithm = "md5"
	// AlgoCksum is the POSIX cksum CRC, compared in decimal.
	AlgoCksum Algorithm = "cksum"
)

// ErrInvalidAlgorithm is returned for unknown digest algorithm tags.
var ErrInvalidAlgorithm = errors.New("invalid digest algorithm")

// algorithmPriority lists algorithms from most to least authoritative.
var algorithmPriority = []Algorithm{
	AlgoBlake2, AlgoSHA512, AlgoSHA384, AlgoSHA256, AlgoSHA224, AlgoSHA1, AlgoMD5, AlgoCksum,
}

type (
	// Algorithm is a digest algorithm tag.
	Algorithm string

	// InvalidAlgorithmError is returned when an Algorithm value is not recognized.
	// It wraps ErrInvalidAlgorithm for errors.Is() compatibility.
	InvalidAlgorithmError struct {
		Value Algorithm
	}

	// ChecksumRecord is one declared digest for a source.
	ChecksumRecord struct {
		Algorithm Algorithm
		// Expected is the declared digest (hex, decimal for cksum) or Skip.
		Expected string
	}
)

// Algorithms returns every supported algorithm, most authoritative first.
func Algorithms() []Algorithm { return slices.Clone(algorithmPriority) }

// ParseAlgorithm validates tag.
func ParseAlgorithm(tag string) (Algorithm, error) {
	a := Algorithm(tag)
	if ok, errs := a.IsValid(); !ok {
		return "", errs[0]
	}
	return a, nil
}

// IsValid returns whether the Algorithm is a known tag.
func (a Algorithm) IsValid() (bool, []error) {
	if slices.Contains(algorithmPriority, a) {
		return true, nil
	}
	return false, []error{&InvalidAlgorithmError{Value: a}}
}

// String returns the algorithm tag.
func (a Algorithm) String() string { return string(a) }

// ArrayName returns the PKGBUILD array holding this algorithm's digests.
func (a Algorithm) ArrayName() string {
	if a == AlgoBlake2 {
		return "b2sums"
	}
	return string(a) + "sums"
}

// Priority returns the rank of the algorithm; 0 is the most authoritative.
// Unknown algorithms rank last.
func (a Algorithm) Priority() int {
	if i := slices.Index(algorithmPriority, a); i >= 0 {
		return i
	}
	return len(algorithmPriority)
}

// Error implements the error interface for InvalidAlgorithmError.
func (e *InvalidAlgorithmError) Error() string {
	return fmt.Sprintf("invalid digest algorithm %q", e.Value)
}

// Unwrap returns ErrInvalidAlgorithm for errors.Is() compatibility.
func (e *InvalidAlgorithmError) Unwrap() error { return ErrInvalidAlgorithm }

// IsSkip reports whether the record disables its check.
func (r ChecksumRecord) IsSkip() bool {
	return r.Expected == Skip
}

// Matches compares a computed digest with the expected one, ignoring case.
func (r ChecksumRecord) Matches(got string) bool {
	return r.IsSkip() || strings.EqualFold(strings.TrimSpace(r.Expected), got)
}

// Authoritative returns the highest-priority record that is not a Skip.
func Authoritative(records []ChecksumRecord) (ChecksumRecord, bool) {
	var best ChecksumRecord
	found := false
	for _, r := range records {
		if r.IsSkip() {
			continue
		}
		if !found || r.Algorithm.Priority() < best.Algorithm.Priority() {
			best, found = r, true
		}
	}
	return best, found
}
