// SPDX-License-Identifier: MPL-2.0

// Package makeconf reads makepkg.conf style configuration through the same
// line protocol used for build files.
package makeconf

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/pkgbake/pkgbake/pkg/pkgbuild"

	"mvdan.cc/sh/v3/shell"
)

// ErrInvalidAgent is returned for DLAGENTS or VCSCLIENTS entries without a
// "proto::" prefix.
var ErrInvalidAgent = errors.New("invalid agent entry")

var names = []string{
	"CARCH", "CHOST",
	"CPPFLAGS", "CFLAGS", "CXXFLAGS", "RUSTFLAGS", "LDFLAGS", "LTOFLAGS", "MAKEFLAGS",
	"DEBUG_CFLAGS", "DEBUG_CXXFLAGS", "DEBUG_RUSTFLAGS",
	"DLAGENTS", "VCSCLIENTS",
	"BUILDENV", "OPTIONS", "INTEGRITY_CHECK",
	"BUILDDIR", "SRCDEST", "PKGDEST", "PACKAGER", "GPGKEY",
}

// flagNames are exported to every build stage.
var flagNames = []string{
	"CPPFLAGS", "CFLAGS", "CXXFLAGS", "RUSTFLAGS", "LDFLAGS", "LTOFLAGS", "MAKEFLAGS",
	"CHOST",
}

type (
	// DLAgent is a download command for one protocol. %u and %o in Command
	// are replaced by the URL and the output file.
	DLAgent struct {
		Protocol string
		Command  []string
	}

	// VCSClient names the package providing a VCS protocol.
	VCSClient struct {
		Protocol string
		Package  string
	}

	// InvalidAgentError is returned when an agent entry cannot be parsed.
	// It wraps ErrInvalidAgent for errors.Is() compatibility.
	InvalidAgentError struct {
		Entry  string
		Reason string
	}

	// Config is the merged makepkg.conf.
	Config struct {
		Arch  string
		CHost string
		// Flags holds the compiler and make flags by variable name.
		Flags          map[string]string
		DLAgents       []DLAgent
		VCSClients     []VCSClient
		BuildEnv       []string
		Options        []string
		IntegrityCheck []string
		BuildDir       string
		SrcDest        string
		PkgDest        string
		Packager       string
		GPGKey         string
		// SourceDateEpoch comes from the environment only.
		SourceDateEpoch int64
	}
)

// Error implements the error interface for InvalidAgentError.
func (e *InvalidAgentError) Error() string {
	return fmt.Sprintf("invalid agent %q: %s", e.Entry, e.Reason)
}

// Unwrap returns ErrInvalidAgent for errors.Is() compatibility.
func (e *InvalidAgentError) Unwrap() error { return ErrInvalidAgent }

// Names returns the recognized configuration variables.
func Names() []string { return slices.Clone(names) }

// Catalog returns the catalogue used to parse configuration streams.
func Catalog() *pkgbuild.Catalog { return pkgbuild.NewCatalog(names...) }

// Parse reads a config-merge metadata stream.
func Parse(r io.Reader) (*Config, error) {
	spec, err := pkgbuild.Parse(r, Catalog())
	if err != nil {
		return nil, err
	}
	str := func(name string) string {
		v, _ := spec.Global(name)
		return v.Str()
	}
	list := func(name string) []string {
		v, _ := spec.Global(name)
		return v.List()
	}

	cfg := &Config{
		Arch:           str("CARCH"),
		CHost:          str("CHOST"),
		Flags:          make(map[string]string),
		BuildEnv:       list("BUILDENV"),
		Options:        list("OPTIONS"),
		IntegrityCheck: list("INTEGRITY_CHECK"),
		BuildDir:       str("BUILDDIR"),
		SrcDest:        str("SRCDEST"),
		PkgDest:        str("PKGDEST"),
		Packager:       str("PACKAGER"),
		GPGKey:         str("GPGKEY"),
	}
	for _, n := range names {
		if strings.HasSuffix(n, "FLAGS") {
			if v, ok := spec.Global(n); ok {
				cfg.Flags[n] = v.Str()
			}
		}
	}

	var errs []error
	for _, entry := range list("DLAGENTS") {
		agent, err := ParseDLAgent(entry)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		cfg.DLAgents = append(cfg.DLAgents, agent)
	}
	for _, entry := range list("VCSCLIENTS") {
		proto, pkg, ok := strings.Cut(entry, "::")
		if !ok || proto == "" {
			errs = append(errs, &InvalidAgentError{Entry: entry, Reason: "missing protocol"})
			continue
		}
		cfg.VCSClients = append(cfg.VCSClients, VCSClient{Protocol: proto, Package: pkg})
	}
	return cfg, errors.Join(errs...)
}

// ParseDLAgent parses "proto::command args...". The command is split into
// words with shell quoting rules; %u and %o are kept for Expand.
func ParseDLAgent(entry string) (DLAgent, error) {
	proto, command, ok := strings.Cut(entry, "::")
	if !ok || proto == "" {
		return DLAgent{}, &InvalidAgentError{Entry: entry, Reason: "missing protocol"}
	}
	words, err := shell.Fields(command, func(string) string { return "" })
	if err != nil {
		return DLAgent{}, &InvalidAgentError{Entry: entry, Reason: err.Error()}
	}
	if len(words) == 0 {
		return DLAgent{}, &InvalidAgentError{Entry: entry, Reason: "empty command"}
	}
	return DLAgent{Protocol: proto, Command: words}, nil
}

// Expand returns the agent command for url writing to out. When the command
// has no %o placeholder the caller is expected to capture stdout.
func (a DLAgent) Expand(url, out string) []string {
	args := make([]string, len(a.Command))
	for i, w := range a.Command {
		w = strings.ReplaceAll(w, "%u", url)
		args[i] = strings.ReplaceAll(w, "%o", out)
	}
	return args
}

// WritesStdout reports whether the agent lacks a %o placeholder.
func (a DLAgent) WritesStdout() bool {
	return !slices.ContainsFunc(a.Command, func(w string) bool { return strings.Contains(w, "%o") })
}

// Agent returns the download agent for proto.
func (c *Config) Agent(proto string) (DLAgent, bool) {
	for _, a := range c.DLAgents {
		if a.Protocol == proto {
			return a, true
		}
	}
	return DLAgent{}, false
}

// BuildEnvEnabled reports whether a BUILDENV option is switched on.
func (c *Config) BuildEnvEnabled(opt string) bool {
	return enabled(c.BuildEnv, opt)
}

// OptionEnabled reports whether an OPTIONS entry is switched on.
func (c *Config) OptionEnabled(opt string) bool {
	return enabled(c.Options, opt)
}

func enabled(list []string, opt string) bool {
	on := false
	for _, o := range list {
		switch o {
		case opt:
			on = true
		case "!" + opt:
			on = false
		}
	}
	return on
}

// Env returns the NAME=value pairs exported to build stages.
func (c *Config) Env() []string {
	var env []string
	for _, n := range flagNames {
		if n == "CHOST" {
			if c.CHost != "" {
				env = append(env, "CHOST="+c.CHost)
			}
			continue
		}
		if v, ok := c.Flags[n]; ok {
			env = append(env, n+"="+v)
		}
	}
	if c.Packager != "" {
		env = append(env, "PACKAGER="+c.Packager)
	}
	if c.SourceDateEpoch != 0 {
		env = append(env, "SOURCE_DATE_EPOCH="+strconv.FormatInt(c.SourceDateEpoch, 10))
	}
	return env
}

// ApplyEnv lets environment variables override the file values, the way
// makepkg honours PKGDEST, SRCDEST, BUILDDIR, CARCH, PACKAGER, GPGKEY and
// SOURCE_DATE_EPOCH.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	for name, dst := range map[string]*string{
		"PKGDEST":  &c.PkgDest,
		"SRCDEST":  &c.SrcDest,
		"BUILDDIR": &c.BuildDir,
		"CARCH":    &c.Arch,
		"PACKAGER": &c.Packager,
		"GPGKEY":   &c.GPGKey,
	} {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}
	if v, ok := lookup("SOURCE_DATE_EPOCH"); ok && v != "" {
		epoch, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("SOURCE_DATE_EPOCH: %w", err)
		}
		c.SourceDateEpoch = epoch
	}
	return nil
}
