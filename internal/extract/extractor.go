// SPDX-License-Identifier: MPL-2.0

package extract

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/pkgbake/pkgbake/internal/shell"
	"github.com/pkgbake/pkgbake/pkg/pkgbuild"
)

// definitionTag prefixes the helper's function-definition lines. They feed
// the override scan and never leave this package.
const definitionTag = "DEFINITION "

type (
	// Stream is a complete metadata stream in protocol form.
	Stream struct {
		data        []byte
		definitions map[string]string
	}

	// Extractor runs the interpreter helper against build and config files.
	// It is safe for concurrent use.
	Extractor struct {
		interp  *shell.Interpreter
		catalog *pkgbuild.Catalog
		logger  *slog.Logger
	}

	// Option configures an Extractor.
	Option func(*Extractor)
)

// WithLogger sets the extractor's logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Extractor) { e.logger = l }
}

// New creates an Extractor dumping the names of cat.
func New(interp *shell.Interpreter, cat *pkgbuild.Catalog, opts ...Option) *Extractor {
	e := &Extractor{interp: interp, catalog: cat, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Reader returns a reader over the stream.
func (s *Stream) Reader() io.Reader { return bytes.NewReader(s.data) }

// Bytes returns the raw protocol lines.
func (s *Stream) Bytes() []byte { return s.data }

// Definition returns the `declare -f` text of a lifecycle function.
func (s *Stream) Definition(fn string) (string, bool) {
	d, ok := s.definitions[fn]
	return d, ok
}

// Extract sources path and returns its metadata stream, including the
// function-local overrides found by ScanOverrides. Any interpreter failure
// is a *SpecLoadError.
func (e *Extractor) Extract(ctx context.Context, path string) (*Stream, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, &SpecLoadError{Path: path, Mode: shell.ModeDump, Cause: err}
	}
	dir := filepath.Dir(abs)

	res := e.interp.Capture(ctx, shell.Invocation{
		Mode: shell.ModeDump,
		Args: append([]string{abs}, e.catalog.Base()...),
		Dir:  dir,
	})
	if !res.Success() {
		return nil, loadError(abs, shell.ModeDump, res)
	}

	stream, err := splitDefinitions(res.Output)
	if err != nil {
		return nil, &SpecLoadError{Path: abs, Mode: shell.ModeDump, Stderr: res.ErrOutput, Cause: err}
	}

	assignments, err := e.scan(stream)
	if err != nil {
		return nil, &SpecLoadError{Path: abs, Mode: shell.ModeDump, Cause: err}
	}
	if len(assignments) == 0 {
		return stream, nil
	}

	args := []string{abs}
	for _, a := range assignments {
		args = append(args, a.Function, a.Name, a.Fragment)
	}
	res = e.interp.Capture(ctx, shell.Invocation{Mode: shell.ModeOverride, Args: args, Dir: dir})
	if !res.Success() {
		return nil, loadError(abs, shell.ModeOverride, res)
	}
	stream.data = append(stream.data, res.Output...)
	e.logger.Debug("extracted function overrides", "file", abs, "count", len(assignments))
	return stream, nil
}

// Load extracts path and parses the stream with the extractor's catalogue.
func (e *Extractor) Load(ctx context.Context, path string) (*pkgbuild.Spec, error) {
	stream, err := e.Extract(ctx, path)
	if err != nil {
		return nil, err
	}
	return pkgbuild.Parse(stream.Reader(), e.catalog)
}

// ExtractConfig sources every existing file of files in order inside one
// interpreter and dumps names. Later files override earlier ones.
func (e *Extractor) ExtractConfig(ctx context.Context, files, names []string) (*Stream, error) {
	args := append(append(append([]string{}, files...), "--"), names...)
	res := e.interp.Capture(ctx, shell.Invocation{Mode: shell.ModeConf, Args: args})
	if !res.Success() {
		return nil, loadError(strings.Join(files, ", "), shell.ModeConf, res)
	}
	return &Stream{data: []byte(res.Output)}, nil
}

// scan runs ScanOverrides over every definition, recognizing names of the
// catalogue expanded with the stream's own arch array.
func (e *Extractor) scan(stream *Stream) ([]Assignment, error) {
	if len(stream.definitions) == 0 {
		return nil, nil
	}
	spec, err := pkgbuild.Parse(stream.Reader(), e.catalog)
	if err != nil {
		return nil, err
	}
	recognized := spec.Catalog().Contains

	var out []Assignment
	for _, fn := range spec.Functions() {
		def, ok := stream.definitions[fn]
		if !ok {
			continue
		}
		found, err := ScanOverrides(fn, def, recognized)
		if err != nil {
			return nil, err
		}
		out = append(out, found...)
	}
	return out, nil
}

func splitDefinitions(output string) (*Stream, error) {
	s := &Stream{definitions: make(map[string]string)}
	var data bytes.Buffer
	sc := bufio.NewScanner(strings.NewReader(output))
	sc.Buffer(make([]byte, 0, 64*1024), 16<<20)
	for sc.Scan() {
		line := sc.Text()
		rest, ok := strings.CutPrefix(line, definitionTag)
		if !ok {
			data.WriteString(line)
			data.WriteByte('\n')
			continue
		}
		fn, quoted, _ := strings.Cut(rest, " ")
		if len(quoted) < 2 || quoted[0] != '"' || quoted[len(quoted)-1] != '"' {
			return nil, fmt.Errorf("malformed definition line for %q", fn)
		}
		def, err := pkgbuild.Unescape(quoted[1 : len(quoted)-1])
		if err != nil {
			return nil, fmt.Errorf("definition of %s: %w", fn, err)
		}
		s.definitions[fn] = def
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	s.data = data.Bytes()
	return s, nil
}

func loadError(path string, mode shell.Mode, res *shell.Result) error {
	return &SpecLoadError{
		Path:     path,
		Mode:     mode,
		ExitCode: res.ExitCode,
		Stderr:   res.ErrOutput,
		Cause:    res.Error,
	}
}
