// SPDX-License-Identifier: MPL-2.0

package pkgbuild

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

const (
	// FragmentBranch selects a branch.
	FragmentBranch FragmentKind = "branch"
	// FragmentCommit selects a commit.
	FragmentCommit FragmentKind = "commit"
	// FragmentTag selects a tag.
	FragmentTag FragmentKind = "tag"
	// FragmentRevision selects a revision.
	FragmentRevision FragmentKind = "revision"
	// FragmentBookmark selects a mercurial bookmark.
	FragmentBookmark FragmentKind = "bookmark"
)

var (
	// ErrInvalidSource is returned for source entries that cannot be parsed.
	ErrInvalidSource = errors.New("invalid source entry")

	vcsProtocols       = []string{"git", "bzr", "svn", "hg", "fossil"}
	signatureSuffixes  = []string{".sig", ".asc", ".sign"}
	knownFragmentKinds = []FragmentKind{
		FragmentBranch, FragmentCommit, FragmentTag, FragmentRevision, FragmentBookmark,
	}
)

type (
	// FragmentKind names the version-control selector after '#'.
	FragmentKind string

	// Fragment is a version-control selector such as "tag=v1.0".
	Fragment struct {
		Kind  FragmentKind
		Value string
	}

	// SourceEntry is one declared source.
	SourceEntry struct {
		// Raw is the entry as written in the source array.
		Raw string
		// Rename is the local file name given with "name::".
		Rename string
		// Protocol is the VCS or transfer prefix given with "proto+".
		Protocol string
		// URL is the address (or local path) with name, prefix, fragment
		// and query removed.
		URL string
		// Fragment is the VCS selector, if any.
		Fragment *Fragment
		// Query is the text after '?' for VCS sources.
		Query string
		// Arch is the architecture suffix of the array the entry came from.
		Arch string
		// Index is the position within that array.
		Index int
		// Checksums are the digests declared at the same index.
		Checksums []ChecksumRecord
		// Signature is the file name of the companion detached signature.
		Signature string
	}

	// InvalidSourceError is returned when a source entry cannot be parsed.
	// It wraps ErrInvalidSource for errors.Is() compatibility.
	InvalidSourceError struct {
		Raw    string
		Reason string
	}
)

// Error implements the error interface for InvalidSourceError.
func (e *InvalidSourceError) Error() string {
	return fmt.Sprintf("invalid source %q: %s", e.Raw, e.Reason)
}

// Unwrap returns ErrInvalidSource for errors.Is() compatibility.
func (e *InvalidSourceError) Unwrap() error { return ErrInvalidSource }

// String renders the fragment as kind=value.
func (f Fragment) String() string {
	return string(f.Kind) + "=" + f.Value
}

// ParseSource parses "[name::][proto+]url[#kind=value][?query]".
// Fragments and queries are only split off for VCS protocols; plain URLs
// keep them verbatim.
func ParseSource(raw string) (SourceEntry, error) {
	e := SourceEntry{Raw: raw}
	rest := raw
	if name, after, ok := strings.Cut(rest, "::"); ok {
		if name == "" {
			return SourceEntry{}, &InvalidSourceError{Raw: raw, Reason: "empty file name before '::'"}
		}
		e.Rename, rest = name, after
	}
	if rest == "" {
		return SourceEntry{}, &InvalidSourceError{Raw: raw, Reason: "empty location"}
	}

	scheme, _, remote := strings.Cut(rest, "://")
	if !remote {
		e.URL = rest
		return e, nil
	}
	if prefix, _, ok := strings.Cut(scheme, "+"); ok {
		e.Protocol = prefix
		rest = strings.TrimPrefix(rest, prefix+"+")
	}

	if slices.Contains(vcsProtocols, e.protocol(rest)) {
		if u, q, ok := strings.Cut(rest, "?"); ok {
			rest, e.Query = u, q
		}
		if u, frag, ok := strings.Cut(rest, "#"); ok {
			rest = u
			kind, value, _ := strings.Cut(frag, "=")
			if !slices.Contains(knownFragmentKinds, FragmentKind(kind)) {
				return SourceEntry{}, &InvalidSourceError{Raw: raw, Reason: fmt.Sprintf("unknown fragment %q", frag)}
			}
			e.Fragment = &Fragment{Kind: FragmentKind(kind), Value: value}
		}
	}
	e.URL = rest
	return e, nil
}

func (e SourceEntry) protocol(url string) string {
	if e.Protocol != "" {
		return e.Protocol
	}
	scheme, _, _ := strings.Cut(url, "://")
	return scheme
}

// Scheme returns the effective protocol: the "proto+" prefix when present,
// otherwise the URL scheme. Local entries return "".
func (e SourceEntry) Scheme() string {
	if !e.IsRemote() {
		return ""
	}
	return e.protocol(e.URL)
}

// TransportScheme returns the URL scheme used for the transfer itself,
// ignoring any "proto+" prefix.
func (e SourceEntry) TransportScheme() string {
	scheme, _, _ := strings.Cut(e.URL, "://")
	return scheme
}

// IsRemote reports whether the entry is fetched from a URL.
func (e SourceEntry) IsRemote() bool {
	return strings.Contains(e.URL, "://")
}

// IsVCS reports whether the entry names a version-control checkout.
func (e SourceEntry) IsVCS() bool {
	return slices.Contains(vcsProtocols, e.Scheme())
}

// FileName returns the local name of the source: the rename when given,
// otherwise the last path element of the URL.
func (e SourceEntry) FileName() string {
	name := e.Rename
	if name == "" {
		name = e.URL[strings.LastIndexByte(e.URL, '/')+1:]
	}
	if e.Scheme() == "git" {
		name = strings.TrimSuffix(name, ".git")
	}
	return name
}

// IsSignature reports whether the entry is a detached signature file.
func (e SourceEntry) IsSignature() bool {
	name := e.FileName()
	for _, suffix := range signatureSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

// SignedName returns the file name a signature entry signs, or "".
func (e SourceEntry) SignedName() string {
	name := e.FileName()
	for _, suffix := range signatureSuffixes {
		if stem, ok := strings.CutSuffix(name, suffix); ok {
			return stem
		}
	}
	return ""
}

// Key identifies the entry within one invocation.
func (e SourceEntry) Key() string {
	if e.Arch == "" {
		return e.Raw
	}
	return e.Arch + ":" + e.Raw
}

// HasChecks reports whether at least one declared digest is not a Skip.
func (e SourceEntry) HasChecks() bool {
	_, ok := Authoritative(e.Checksums)
	return ok
}
