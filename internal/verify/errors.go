// SPDX-License-Identifier: MPL-2.0

package verify

import (
	"errors"
	"fmt"

	"github.com/pkgbake/pkgbake/pkg/pkgbuild"
)

const (
	// DigestMismatch means a computed digest differs from the declared one.
	DigestMismatch FailureKind = "digest-mismatch"
	// SignatureInvalid means the signature does not match the data.
	SignatureInvalid FailureKind = "signature-invalid"
	// KeyExpired means the signing key had expired.
	KeyExpired FailureKind = "key-expired"
	// KeyRevoked means the signing key carries a revocation.
	KeyRevoked FailureKind = "key-revoked"
	// KeyUntrusted means the key is not in the trusted fingerprint list.
	KeyUntrusted FailureKind = "key-untrusted"
	// KeyUnknown means the issuer key is not in the keyring.
	KeyUnknown FailureKind = "key-unknown"
	// ReadError means the data or signature could not be read.
	ReadError FailureKind = "read-error"
)

// ErrVerification is the sentinel wrapped by every Failure.
var ErrVerification = errors.New("verification failed")

type (
	// FailureKind classifies a verification failure.
	FailureKind string

	// Failure is one failed check.
	Failure struct {
		Kind FailureKind
		// Path is the file the check ran against.
		Path string
		// Algorithm, Expected and Got are set for digest mismatches.
		Algorithm pkgbuild.Algorithm
		Expected  string
		Got       string
		// Fingerprint is the signing key, uppercase hex, when known.
		Fingerprint string
		// KeyID is the issuer key id from the signature.
		KeyID string
		Err   error
	}
)

// Error implements the error interface for Failure.
func (f *Failure) Error() string {
	switch f.Kind {
	case DigestMismatch:
		return fmt.Sprintf("%s: %s digest mismatch: expected %s, got %s", f.Path, f.Algorithm, f.Expected, f.Got)
	case KeyUnknown:
		return fmt.Sprintf("%s: signed by unknown key %s", f.Path, f.KeyID)
	case KeyExpired, KeyRevoked, KeyUntrusted:
		return fmt.Sprintf("%s: %s (%s)", f.Path, f.Kind, f.Fingerprint)
	}
	if f.Err != nil {
		return fmt.Sprintf("%s: %s: %v", f.Path, f.Kind, f.Err)
	}
	return fmt.Sprintf("%s: %s", f.Path, f.Kind)
}

// Unwrap returns ErrVerification and the underlying error.
func (f *Failure) Unwrap() []error {
	if f.Err != nil {
		return []error{ErrVerification, f.Err}
	}
	return []error{ErrVerification}
}
