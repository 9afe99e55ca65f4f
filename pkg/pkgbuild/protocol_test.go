// SPDX-License-Identifier: MPL-2.0

package pkgbuild

import (
	"errors"
	"strings"
	"testing"
)

func TestEscapeRoundTrip(t *testing.T) {
	t.Parallel()

	values := []string{
		"",
		"plain",
		`back\slash`,
		`say "hi"`,
		"multi\nline\nvalue",
		`literal \n is not a newline`,
		"\\\"\n\\\\\"\"",
		"trailing backslash\\",
		"tabs\tand spaces  ",
	}

	for _, v := range values {
		escaped := Escape(v)
		if strings.Contains(escaped, "\n") {
			t.Errorf("Escape(%q) = %q contains a newline", v, escaped)
		}
		got, err := Unescape(escaped)
		if err != nil {
			t.Errorf("Unescape(Escape(%q)) error: %v", v, err)
			continue
		}
		if got != v {
			t.Errorf("round trip of %q = %q", v, got)
		}
	}
}

func TestUnescapeRejectsUnknownSequences(t *testing.T) {
	t.Parallel()

	for _, in := range []string{`\t`, `abc\`, `\x41`} {
		if _, err := Unescape(in); err == nil {
			t.Errorf("Unescape(%q) expected error", in)
		}
	}
}

func TestDecodeLine(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		line     string
		function string
		varName  string
		want     Value
		presence bool
	}{
		{
			name:    "global string",
			line:    `GLOBAL STRING pkgver "1.2.3"`,
			varName: "pkgver",
			want:    StringValue("1.2.3"),
		},
		{
			name:    "global empty string",
			line:    `GLOBAL STRING pkgdesc ""`,
			varName: "pkgdesc",
			want:    StringValue(""),
		},
		{
			name:    "global array with escapes",
			line:    `GLOBAL ARRAY source "a b" "q\"uote" "new\nline"`,
			varName: "source",
			want:    ArrayValue("a b", `q"uote`, "new\nline"),
		},
		{
			name:    "empty array",
			line:    `GLOBAL ARRAY depends`,
			varName: "depends",
			want:    ArrayValue(),
		},
		{
			name:    "map",
			line:    `GLOBAL MAP options "k1" "v1" "k2" "v2"`,
			varName: "options",
			want:    MapValue(map[string]string{"k1": "v1", "k2": "v2"}),
		},
		{
			name:     "function override",
			line:     `FUNCTION package_foo ARRAY depends "glibc"`,
			function: "package_foo",
			varName:  "depends",
			want:     ArrayValue("glibc"),
		},
		{
			name:     "presence marker",
			line:     `FUNCTION build`,
			function: "build",
			presence: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec, err := DecodeLine(tt.line)
			if err != nil {
				t.Fatalf("DecodeLine(%q) error: %v", tt.line, err)
			}
			if rec.Function != tt.function {
				t.Errorf("Function = %q, want %q", rec.Function, tt.function)
			}
			if rec.Presence != tt.presence {
				t.Errorf("Presence = %v, want %v", rec.Presence, tt.presence)
			}
			if tt.presence {
				return
			}
			if rec.Name != tt.varName {
				t.Errorf("Name = %q, want %q", rec.Name, tt.varName)
			}
			if !rec.Value.Equal(tt.want) {
				t.Errorf("Value = %#v, want %#v", rec.Value, tt.want)
			}
		})
	}
}

func TestDecodeLineErrors(t *testing.T) {
	t.Parallel()

	lines := []string{
		`LOCAL STRING x "y"`,
		`GLOBAL NUMBER x "1"`,
		`GLOBAL STRING`,
		`GLOBAL STRING x "a" "b"`,
		`GLOBAL MAP x "odd"`,
		`GLOBAL ARRAY x "unterminated`,
		`GLOBAL ARRAY x "bad\q"`,
		`GLOBAL ARRAY x "glued""words"`,
		`FUNCTION build STRING`,
	}

	for _, line := range lines {
		if _, err := DecodeLine(line); err == nil {
			t.Errorf("DecodeLine(%q) expected error", line)
		}
	}
}

func TestRecordStringRoundTrip(t *testing.T) {
	t.Parallel()

	records := []Record{
		{Name: "pkgdesc", Value: StringValue("a \"quoted\"\ndescription with \\ slashes")},
		{Name: "source", Value: ArrayValue("foo.tar.gz::https://example.org/foo.tar.gz", "")},
		{Name: "options", Value: MapValue(map[string]string{"strip": "no", "a\nb": `c"d`})},
		{Function: "package_bar", Name: "depends", Value: ArrayValue("foo=1.0")},
		{Function: "check", Presence: true},
	}

	for _, want := range records {
		line := want.String()
		got, err := DecodeLine(line)
		if err != nil {
			t.Fatalf("DecodeLine(%q) error: %v", line, err)
		}
		if got.Function != want.Function || got.Name != want.Name || got.Presence != want.Presence || !got.Value.Equal(want.Value) {
			t.Errorf("round trip of %q = %#v, want %#v", line, got, want)
		}
	}
}

func TestParseAnomalyUnwrap(t *testing.T) {
	t.Parallel()

	var err error = &ParseAnomaly{Line: 3, Text: "junk", Reason: "unknown scope"}
	if !errors.Is(err, ErrMalformedLine) {
		t.Error("ParseAnomaly should unwrap to ErrMalformedLine")
	}
	if !strings.Contains(err.Error(), "line 3") {
		t.Errorf("Error() = %q, want line number", err.Error())
	}
}
