// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"errors"
	"fmt"
	"strings"
)

type (
	// ActionableError ties a failure to an entry of the issue catalog and
	// to the file, URL or stage it happened on. Hints are printed under the
	// rendered issue, makepkg style.
	//
	//	err := issue.NewErrorContext().
	//		ForIssue(issue.ConfigLoadFailedId).
	//		WithOperation("load configuration").
	//		WithResource(path).
	//		WithHint("Check that the file contains valid CUE syntax").
	//		Wrap(cause).
	//		BuildError()
	ActionableError struct {
		// Issue is the catalog entry to render, or 0 when none applies.
		Issue Id
		// Operation is a verb phrase such as "fetch sources".
		Operation string
		// Resource is the file, URL or stage involved (optional).
		Resource string
		Hints    []string
		Cause    error
	}

	// ErrorContext builds an ActionableError.
	ErrorContext struct {
		err ActionableError
	}
)

// NewErrorContext creates a new ErrorContext builder.
func NewErrorContext() *ErrorContext {
	return &ErrorContext{}
}

// Error returns "failed to <operation>: <resource>: <cause>".
func (e *ActionableError) Error() string {
	parts := []string{"failed to " + e.Operation}
	if e.Resource != "" {
		parts = append(parts, e.Resource)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, ": ")
}

// Unwrap returns the underlying cause error for use with errors.Is/As.
func (e *ActionableError) Unwrap() error {
	return e.Cause
}

// Format renders the message followed by one "  -> " line per hint. Verbose
// output appends the unwrapped error chain.
func (e *ActionableError) Format(verbose bool) string {
	var msg strings.Builder
	msg.WriteString(e.Error())
	for _, h := range e.Hints {
		msg.WriteString("\n  -> ")
		msg.WriteString(h)
	}
	if verbose && e.Cause != nil {
		msg.WriteString("\n\nError chain:")
		depth := 1
		for err := e.Cause; err != nil; err = errors.Unwrap(err) {
			fmt.Fprintf(&msg, "\n  %d. %s", depth, err.Error())
			depth++
		}
	}
	return msg.String()
}

// IssueOf returns the catalog entry carried by the first ActionableError in
// err's chain that names one.
func IssueOf(err error) (Id, bool) {
	for err != nil {
		var ae *ActionableError
		if !errors.As(err, &ae) {
			return 0, false
		}
		if ae.Issue != 0 {
			return ae.Issue, true
		}
		err = ae.Cause
	}
	return 0, false
}

// ForIssue sets the catalog entry rendered for the error.
func (c *ErrorContext) ForIssue(id Id) *ErrorContext {
	c.err.Issue = id
	return c
}

// WithOperation sets the operation being performed.
func (c *ErrorContext) WithOperation(op string) *ErrorContext {
	c.err.Operation = op
	return c
}

// WithResource sets the resource involved.
func (c *ErrorContext) WithResource(res string) *ErrorContext {
	c.err.Resource = res
	return c
}

// WithHint appends hints.
func (c *ErrorContext) WithHint(hints ...string) *ErrorContext {
	c.err.Hints = append(c.err.Hints, hints...)
	return c
}

// Wrap sets the underlying cause.
func (c *ErrorContext) Wrap(err error) *ErrorContext {
	c.err.Cause = err
	return c
}

// Build creates an ActionableError. It returns nil when no operation is set.
func (c *ErrorContext) Build() *ActionableError {
	if c.err.Operation == "" {
		return nil
	}
	ae := c.err
	ae.Hints = append([]string(nil), c.err.Hints...)
	return &ae
}

// BuildError is Build returning the error interface, so that a missing
// operation yields a nil error rather than a typed nil.
func (c *ErrorContext) BuildError() error {
	ae := c.Build()
	if ae == nil {
		return nil
	}
	return ae
}
