// Package oracle supplies the static types the harness compares AssertType
// expectations against.
//
// An Oracle stands in for the engine's type checker. It receives the parsed
// fixture and answers, per assertion site index, the rendered type of the
// site's value expression in the engine's type-name grammar. Sites an
// oracle cannot answer are left out of Report.Types; the harness reports
// them as unresolved.
package oracle

import (
	"context"
	"fmt"
	"sort"

	"github.com/roach88/fixharness/internal/fixture"
)

// Severity of a checker diagnostic.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Diagnostic is a message from the checker, such as a redeclaration error.
// The harness records diagnostics; it never suppresses them.
type Diagnostic struct {
	Line     int      `json:"line,omitempty" yaml:"line,omitempty"`
	Column   int      `json:"column,omitempty" yaml:"column,omitempty"`
	Code     string   `json:"code,omitempty" yaml:"code,omitempty"`
	Severity Severity `json:"severity,omitempty" yaml:"severity,omitempty"`
	Message  string   `json:"message" yaml:"message"`
	Source   string   `json:"source,omitempty" yaml:"source,omitempty"`
}

func (d Diagnostic) String() string {
	sev := d.Severity
	if sev == "" {
		sev = SeverityError
	}
	if d.Code != "" {
		return fmt.Sprintf("%d:%d %s %s: %s", d.Line, d.Column, sev, d.Code, d.Message)
	}
	return fmt.Sprintf("%d:%d %s: %s", d.Line, d.Column, sev, d.Message)
}

// Report is an oracle's answer for one fixture.
type Report struct {
	// Types maps assertion site index to rendered type.
	Types       map[int]string
	Diagnostics []Diagnostic
}

// NewReport returns an empty report.
func NewReport() *Report {
	return &Report{Types: make(map[int]string)}
}

// Type returns the rendered type for site index.
func (r *Report) Type(index int) (string, bool) {
	t, ok := r.Types[index]
	return t, ok
}

// SortDiagnostics orders diagnostics by position, then message.
func (r *Report) SortDiagnostics() {
	sort.SliceStable(r.Diagnostics, func(i, j int) bool {
		a, b := r.Diagnostics[i], r.Diagnostics[j]
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		if a.Column != b.Column {
			return a.Column < b.Column
		}
		return a.Message < b.Message
	})
}

// Oracle answers static types for a fixture's assertion sites.
type Oracle interface {
	Check(ctx context.Context, fx *fixture.Fixture) (*Report, error)
}

// Func adapts a function to Oracle.
type Func func(ctx context.Context, fx *fixture.Fixture) (*Report, error)

func (f Func) Check(ctx context.Context, fx *fixture.Fixture) (*Report, error) {
	return f(ctx, fx)
}
