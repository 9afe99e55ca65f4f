// SPDX-License-Identifier: MPL-2.0

// Package verify checks downloaded sources against their declared digests
// and detached OpenPGP signatures.
//
// All digests of a file are computed in one streaming pass. Every failure is
// collected on the Result; verification never stops at the first one.
package verify
