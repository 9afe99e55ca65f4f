// SPDX-License-Identifier: MPL-2.0

package pkgbuild

import (
	"errors"
	"fmt"
	"strings"
)

// Scope tags of the line protocol.
const (
	ScopeGlobal   = "GLOBAL"
	ScopeFunction = "FUNCTION"
)

var (
	// ErrMalformedLine is the sentinel wrapped by ParseAnomaly.
	ErrMalformedLine = errors.New("malformed protocol line")

	escaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)
)

type (
	// Record is one decoded protocol line.
	//
	// Global data has an empty Function. A presence marker has Presence set
	// and no Name or Value.
	Record struct {
		Function string
		Name     string
		Value    Value
		Presence bool
	}

	// ParseAnomaly describes a line that could not be decoded or names a
	// variable outside the catalogue. Anomalies are never fatal.
	ParseAnomaly struct {
		Line   int
		Text   string
		Reason string
	}

	word struct {
		text   string
		quoted bool
	}
)

// Error implements the error interface for ParseAnomaly.
func (a *ParseAnomaly) Error() string {
	return fmt.Sprintf("line %d: %s: %q", a.Line, a.Reason, a.Text)
}

// Unwrap returns ErrMalformedLine for errors.Is() compatibility.
func (a *ParseAnomaly) Unwrap() error { return ErrMalformedLine }

// Escape encodes backslash, double quote and newline as two-character
// sequences so a value fits on one line.
func Escape(s string) string {
	return escaper.Replace(s)
}

// Quote returns the escaped value wrapped in double quotes.
func Quote(s string) string {
	return `"` + Escape(s) + `"`
}

// Unescape reverses Escape. Unknown escape sequences and a trailing lone
// backslash are errors.
func Unescape(s string) (string, error) {
	if !strings.Contains(s, `\`) {
		return s, nil
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		i++
		if i == len(s) {
			return "", errors.New("trailing backslash")
		}
		switch s[i] {
		case '\\':
			b.WriteByte('\\')
		case '"':
			b.WriteByte('"')
		case 'n':
			b.WriteByte('\n')
		default:
			return "", fmt.Errorf("unknown escape \\%c", s[i])
		}
	}
	return b.String(), nil
}

// splitWords splits a protocol line into bare tags and quoted values.
func splitWords(line string) ([]word, error) {
	var words []word
	i := 0
	for i < len(line) {
		if line[i] == ' ' {
			i++
			continue
		}
		if line[i] != '"' {
			end := strings.IndexByte(line[i:], ' ')
			if end < 0 {
				end = len(line) - i
			}
			text := line[i : i+end]
			if strings.ContainsRune(text, '"') {
				return nil, fmt.Errorf("stray quote in %q", text)
			}
			words = append(words, word{text: text})
			i += end
			continue
		}
		// quoted word: find the closing quote, skipping escapes
		j := i + 1
		for j < len(line) && line[j] != '"' {
			if line[j] == '\\' {
				j++
			}
			j++
		}
		if j >= len(line) {
			return nil, errors.New("unterminated quoted word")
		}
		text, err := Unescape(line[i+1 : j])
		if err != nil {
			return nil, err
		}
		words = append(words, word{text: text, quoted: true})
		i = j + 1
		if i < len(line) && line[i] != ' ' {
			return nil, errors.New("quoted word not followed by a space")
		}
	}
	return words, nil
}

// String encodes the record as one protocol line without the newline.
func (r Record) String() string {
	var b strings.Builder
	if r.Function == "" {
		b.WriteString(ScopeGlobal)
	} else {
		b.WriteString(ScopeFunction)
		b.WriteByte(' ')
		b.WriteString(r.Function)
	}
	if r.Presence {
		return b.String()
	}
	b.WriteByte(' ')
	b.WriteString(r.Value.Kind().String())
	b.WriteByte(' ')
	b.WriteString(r.Name)
	for _, w := range r.Value.Words() {
		b.WriteByte(' ')
		b.WriteString(Quote(w))
	}
	return b.String()
}

// DecodeLine decodes one protocol line. Lines with unknown scope or type
// tags, or with the wrong number of values, return an error describing the
// problem; callers treat it as an anomaly.
func DecodeLine(line string) (Record, error) {
	words, err := splitWords(line)
	if err != nil {
		return Record{}, err
	}
	if len(words) == 0 {
		return Record{}, errors.New("empty line")
	}

	var rec Record
	var rest []word
	switch words[0].text {
	case ScopeGlobal:
		rest = words[1:]
	case ScopeFunction:
		if len(words) < 2 || words[1].quoted {
			return Record{}, errors.New("function scope without a name")
		}
		rec.Function = words[1].text
		if len(words) == 2 {
			rec.Presence = true
			return rec, nil
		}
		rest = words[2:]
	default:
		return Record{}, fmt.Errorf("unknown scope %q", words[0].text)
	}

	if len(rest) < 2 || rest[0].quoted || rest[1].quoted {
		return Record{}, errors.New("missing type or name")
	}
	kind, ok := parseKind(rest[0].text)
	if !ok {
		return Record{}, fmt.Errorf("unknown type %q", rest[0].text)
	}
	rec.Name = rest[1].text

	values := make([]string, 0, len(rest)-2)
	for _, w := range rest[2:] {
		values = append(values, w.text)
	}
	switch kind {
	case KindString:
		switch len(values) {
		case 0:
			rec.Value = StringValue("")
		case 1:
			rec.Value = StringValue(values[0])
		default:
			return Record{}, fmt.Errorf("string %s has %d values", rec.Name, len(values))
		}
	case KindArray:
		rec.Value = ArrayValue(values...)
	case KindMap:
		if len(values)%2 != 0 {
			return Record{}, fmt.Errorf("map %s has an odd number of words", rec.Name)
		}
		m := make(map[string]string, len(values)/2)
		for i := 0; i < len(values); i += 2 {
			m[values[i]] = values[i+1]
		}
		rec.Value = Value{kind: KindMap, mapping: m}
	}
	return rec, nil
}
