// SPDX-License-Identifier: MPL-2.0

// Package report collects the outcome of one pipeline run in a form that can
// be printed or encoded as JSON or TOML.
package report

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/pkgbake/pkgbake/internal/build"
	"github.com/pkgbake/pkgbake/internal/fetch"
	"github.com/pkgbake/pkgbake/internal/verify"

	"github.com/pelletier/go-toml/v2"
)

// Phases in the order the pipeline reaches them.
const (
	PhaseExtract Phase = "extract"
	PhaseFetch   Phase = "fetch"
	PhaseVerify  Phase = "verify"
	PhaseUnpack  Phase = "unpack"
	PhaseBuild   Phase = "build"
	PhaseDone    Phase = "done"
)

// ErrUnsupportedFormat is returned by Encode for formats other than json and toml.
var ErrUnsupportedFormat = errors.New("unsupported report format")

type (
	// Phase is the last pipeline phase a run entered.
	Phase string

	// Report is the outcome of one run.
	Report struct {
		InvocationID string    `json:"invocation_id" toml:"invocation_id"`
		BuildFile    string    `json:"build_file" toml:"build_file"`
		Pkgbase      string    `json:"pkgbase,omitempty" toml:"pkgbase,omitempty"`
		Version      string    `json:"version,omitempty" toml:"version,omitempty"`
		Arch         string    `json:"arch,omitempty" toml:"arch,omitempty"`
		StartedAt    time.Time `json:"started_at" toml:"started_at"`
		Duration     string    `json:"duration" toml:"duration"`
		Phase        Phase     `json:"phase" toml:"phase"`
		Success      bool      `json:"success" toml:"success"`
		Error        string    `json:"error,omitempty" toml:"error,omitempty"`
		Sources      []Source  `json:"sources,omitempty" toml:"sources,omitempty"`
		Stages       []Stage   `json:"stages,omitempty" toml:"stages,omitempty"`
	}

	// Source is the outcome for one source entry.
	Source struct {
		Name        string    `json:"name" toml:"name"`
		URL         string    `json:"url" toml:"url"`
		Status      string    `json:"status" toml:"status"`
		Attempts    int       `json:"attempts,omitempty" toml:"attempts,omitempty"`
		Bytes       int64     `json:"bytes,omitempty" toml:"bytes,omitempty"`
		Algorithm   string    `json:"algorithm,omitempty" toml:"algorithm,omitempty"`
		Fingerprint string    `json:"fingerprint,omitempty" toml:"fingerprint,omitempty"`
		Failures    []Failure `json:"failures,omitempty" toml:"failures,omitempty"`
		Error       string    `json:"error,omitempty" toml:"error,omitempty"`

		key string
	}

	// Failure is one verification failure of a source.
	Failure struct {
		Kind   string `json:"kind" toml:"kind"`
		Detail string `json:"detail" toml:"detail"`
	}

	// Stage is the outcome of one build stage.
	Stage struct {
		Kind     string `json:"kind" toml:"kind"`
		Function string `json:"function" toml:"function"`
		Package  string `json:"package,omitempty" toml:"package,omitempty"`
		ExitCode int    `json:"exit_code" toml:"exit_code"`
		Duration string `json:"duration" toml:"duration"`
		OK       bool   `json:"ok" toml:"ok"`
		Error    string `json:"error,omitempty" toml:"error,omitempty"`
	}
)

// New starts a report for buildFile.
func New(invocationID, buildFile string, startedAt time.Time) *Report {
	return &Report{
		InvocationID: invocationID,
		BuildFile:    buildFile,
		StartedAt:    startedAt,
		Phase:        PhaseExtract,
	}
}

// Enter records that the run reached phase.
func (r *Report) Enter(phase Phase) { r.Phase = phase }

// AddFetchResults records the fetch outcome of every source, ordered by key.
func (r *Report) AddFetchResults(results fetch.Results) {
	for key, res := range results {
		src := Source{
			Name:     res.Entry.FileName(),
			URL:      res.Entry.URL,
			Status:   string(res.Status),
			Attempts: res.Attempts,
			Bytes:    res.Bytes,
			key:      key,
		}
		if res.Err != nil {
			src.Error = res.Err.Error()
		}
		if v := res.Verification; v != nil {
			src.Algorithm = string(v.Algorithm)
			src.Failures = append(src.Failures, failures(v)...)
		}
		r.Sources = append(r.Sources, src)
	}
	slices.SortFunc(r.Sources, func(a, b Source) int { return cmp.Compare(a.key, b.key) })
}

// AddVerification merges a signature result into the source with key.
func (r *Report) AddVerification(key string, v *verify.Result) {
	if v == nil {
		return
	}
	i := slices.IndexFunc(r.Sources, func(s Source) bool { return s.key == key })
	if i < 0 {
		return
	}
	src := &r.Sources[i]
	if v.Fingerprint != "" {
		src.Fingerprint = v.Fingerprint
	}
	src.Failures = append(src.Failures, failures(v)...)
}

func failures(v *verify.Result) []Failure {
	out := make([]Failure, 0, len(v.Failures))
	for _, f := range v.Failures {
		out = append(out, Failure{Kind: string(f.Kind), Detail: f.Error()})
	}
	return out
}

// FailedSources returns the sources that failed to fetch or verify.
func (r *Report) FailedSources() []Source {
	var out []Source
	for _, s := range r.Sources {
		if s.Status == string(fetch.StatusFailed) || len(s.Failures) > 0 {
			out = append(out, s)
		}
	}
	return out
}

// AddStages records build stage results in execution order.
func (r *Report) AddStages(stages []build.StageResult) {
	for _, st := range stages {
		s := Stage{
			Kind:     string(st.Stage.Kind),
			Function: st.Stage.Function,
			Package:  st.Stage.Package,
			ExitCode: int(st.ExitCode),
			Duration: st.Duration.Round(time.Millisecond).String(),
			OK:       st.OK(),
		}
		if st.Err != nil {
			s.Error = st.Err.Error()
		}
		r.Stages = append(r.Stages, s)
	}
}

// Finish stamps the duration and final state. A nil err marks the run done.
func (r *Report) Finish(err error, now time.Time) {
	r.Duration = now.Sub(r.StartedAt).Round(time.Millisecond).String()
	if err != nil {
		r.Success = false
		r.Error = err.Error()
		return
	}
	r.Success = true
	r.Phase = PhaseDone
}

// Encode writes the report as "json" or "toml".
func (r *Report) Encode(w io.Writer, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case "toml":
		enc := toml.NewEncoder(w)
		enc.SetIndentTables(true)
		return enc.Encode(r)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}
