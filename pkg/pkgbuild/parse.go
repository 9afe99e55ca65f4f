// SPDX-License-Identifier: MPL-2.0

package pkgbuild

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
)

// maxLineSize bounds one protocol line. Long source arrays stay well below it.
const maxLineSize = 16 << 20

type numberedRecord struct {
	Record
	line int
}

// Parse consumes a metadata stream and builds the immutable Spec.
//
// Lines are applied in order and the last line for a (scope, name) pair wins.
// Unknown tags, malformed lines and names outside cat (expanded with the
// global arch array) are logged and kept as anomalies. Only read errors are
// returned.
func Parse(r io.Reader, cat *Catalog) (*Spec, error) {
	if cat == nil {
		cat = DefaultCatalog()
	}

	var (
		records   []numberedRecord
		anomalies []ParseAnomaly
		arches    []string
	)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if line == "" {
			continue
		}
		rec, err := DecodeLine(line)
		if err != nil {
			anomalies = append(anomalies, ParseAnomaly{Line: lineNo, Text: line, Reason: err.Error()})
			continue
		}
		if rec.Function == "" && rec.Name == "arch" && rec.Value.Kind() == KindArray {
			arches = rec.Value.List()
		}
		records = append(records, numberedRecord{Record: rec, line: lineNo})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read metadata stream: %w", err)
	}

	spec := &Spec{
		catalog:   cat.Expand(arches),
		globals:   make(map[string]Value),
		overrides: make(map[string]map[string]Value),
		functions: make(map[string]struct{}),
	}
	for _, rec := range records {
		if rec.Presence {
			spec.functions[rec.Function] = struct{}{}
			continue
		}
		if !spec.catalog.Contains(rec.Name) {
			anomalies = append(anomalies, ParseAnomaly{Line: rec.line, Text: rec.String(), Reason: "unrecognized variable " + rec.Name})
			continue
		}
		if rec.Function == "" {
			spec.globals[rec.Name] = rec.Value
			continue
		}
		if spec.overrides[rec.Function] == nil {
			spec.overrides[rec.Function] = make(map[string]Value)
		}
		spec.overrides[rec.Function][rec.Name] = rec.Value
	}

	for _, a := range anomalies {
		slog.Debug("ignoring metadata line", "line", a.Line, "reason", a.Reason)
	}
	spec.anomalies = anomalies
	return spec, nil
}
