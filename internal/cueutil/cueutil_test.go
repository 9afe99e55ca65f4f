// SPDX-License-Identifier: MPL-2.0

package cueutil

import (
	"errors"
	"strings"
	"testing"
)

const testSchema = `
#Settings: {
	name:     string
	workers:  int & >0
	enabled?: bool
}
`

type settings struct {
	Name    string `json:"name"`
	Workers int    `json:"workers"`
	Enabled bool   `json:"enabled,omitempty"`
}

func TestDecode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		data    string
		opts    []Option
		want    settings
		wantErr string
	}{
		{
			name: "valid",
			data: "name: \"a\"\nworkers: 4\nenabled: true\n",
			want: settings{Name: "a", Workers: 4, Enabled: true},
		},
		{
			name: "optional omitted",
			data: "name: \"a\"\nworkers: 1\n",
			want: settings{Name: "a", Workers: 1},
		},
		{
			name:    "constraint violated",
			data:    "name: \"a\"\nworkers: 0\n",
			opts:    []Option{WithFilename("settings.cue")},
			wantErr: "settings.cue: workers",
		},
		{
			name:    "missing field when concrete",
			data:    "name: \"a\"\n",
			wantErr: "workers",
		},
		{
			name:    "unknown field is closed out",
			data:    "name: \"a\"\nworkers: 1\nextra: 1\n",
			wantErr: "extra",
		},
		{
			name:    "too large",
			data:    "name: \"a\"\nworkers: 1\n",
			opts:    []Option{WithMaxFileSize(4)},
			wantErr: "exceeds maximum",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Decode[settings](testSchema, []byte(tt.data), "#Settings", tt.opts...)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("Decode() error = %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Decode() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDecodeNonConcreteMap(t *testing.T) {
	t.Parallel()

	const schema = `#Partial: {
	name?:    string
	workers?: int & >0
}`
	got, err := Decode[map[string]any](schema, []byte("workers: 2\n"), "#Partial", WithConcrete(false))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if _, ok := got["name"]; ok {
		t.Errorf("unset field decoded: %v", got)
	}
	if got["workers"] == nil {
		t.Errorf("workers missing from %v", got)
	}
}

func TestFormatError(t *testing.T) {
	t.Parallel()

	if FormatError(nil, "x.cue") != nil {
		t.Error("FormatError(nil) != nil")
	}
	base := errors.New("boom")
	err := FormatError(base, "x.cue")
	if !errors.Is(err, base) || !strings.HasPrefix(err.Error(), "x.cue: ") {
		t.Errorf("FormatError() = %v", err)
	}
}

func TestFormatPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path []string
		want string
	}{
		{nil, ""},
		{[]string{"fetch"}, "fetch"},
		{[]string{"fetch", "workers"}, "fetch.workers"},
		{[]string{"trust", "keyring", "0"}, "trust.keyring[0]"},
		{[]string{"a", "0", "b", "12"}, "a[0].b[12]"},
	}
	for _, tt := range tests {
		if got := formatPath(tt.path); got != tt.want {
			t.Errorf("formatPath(%v) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
