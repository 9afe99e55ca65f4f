// SPDX-License-Identifier: MPL-2.0

package extract

import (
	"fmt"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// declVariants are the builtins whose arguments are assignments.
var declVariants = map[string]bool{
	"local": true, "declare": true, "typeset": true, "readonly": true, "export": true,
}

// Assignment is one function-local override to evaluate: Fragment holds the
// top-level assignment statements of Function up to and including the last
// one that binds Name.
type Assignment struct {
	Function string
	Name     string
	Fragment string
}

// ScanOverrides parses a `declare -f` definition of fn and returns the
// recognized names its body assigns at top level, in order of first
// assignment. Statements that are not pure assignments are dropped from the
// fragments, so evaluating a fragment never runs the function's commands.
func ScanOverrides(fn, definition string, recognized func(string) bool) ([]Assignment, error) {
	file, err := syntax.NewParser(syntax.Variant(syntax.LangBash)).Parse(strings.NewReader(definition), fn)
	if err != nil {
		return nil, fmt.Errorf("parse definition of %s: %w", fn, err)
	}

	var body []*syntax.Stmt
	for _, st := range file.Stmts {
		decl, ok := st.Cmd.(*syntax.FuncDecl)
		if !ok || decl.Name == nil || decl.Name.Value != fn || decl.Body == nil {
			continue
		}
		switch c := decl.Body.Cmd.(type) {
		case *syntax.Block:
			body = c.Stmts
		case *syntax.Subshell:
			body = c.Stmts
		}
	}

	var (
		prefix []*syntax.Stmt
		order  []string
		last   = make(map[string]int)
	)
	for _, st := range body {
		names, ok := assignedNames(st)
		if !ok {
			continue
		}
		prefix = append(prefix, st)
		for _, n := range names {
			if !recognized(n) {
				continue
			}
			if _, seen := last[n]; !seen {
				order = append(order, n)
			}
			last[n] = len(prefix)
		}
	}

	printer := syntax.NewPrinter()
	out := make([]Assignment, 0, len(order))
	for _, n := range order {
		var b strings.Builder
		for _, st := range prefix[:last[n]] {
			if err := printer.Print(&b, st); err != nil {
				return nil, fmt.Errorf("print fragment of %s: %w", fn, err)
			}
			b.WriteByte('\n')
		}
		out = append(out, Assignment{Function: fn, Name: n, Fragment: b.String()})
	}
	return out, nil
}

// assignedNames returns the variables a statement assigns when the statement
// is nothing but assignments.
func assignedNames(st *syntax.Stmt) ([]string, bool) {
	if st.Negated || st.Background || st.Coprocess || len(st.Redirs) > 0 {
		return nil, false
	}
	switch c := st.Cmd.(type) {
	case *syntax.CallExpr:
		if len(c.Args) > 0 || len(c.Assigns) == 0 {
			return nil, false
		}
		names := make([]string, 0, len(c.Assigns))
		for _, a := range c.Assigns {
			if a.Name != nil {
				names = append(names, a.Name.Value)
			}
		}
		return names, true
	case *syntax.DeclClause:
		if c.Variant == nil || !declVariants[c.Variant.Value] {
			return nil, false
		}
		var names []string
		for _, a := range c.Args {
			if a.Name != nil {
				names = append(names, a.Name.Value)
			}
		}
		return names, true
	default:
		return nil, false
	}
}
