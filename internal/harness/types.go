package harness

import (
	"errors"
	"fmt"

	"github.com/roach88/fixharness/internal/fixture"
	"github.com/roach88/fixharness/internal/oracle"
)

// Code classifies a Failure.
type Code string

const (
	// CodeTypeMismatch: the oracle's type differs from the AssertType literal.
	CodeTypeMismatch Code = "TYPE_MISMATCH"
	// CodeOutputMismatch: captured print output diverges from the expectation.
	CodeOutputMismatch Code = "OUTPUT_MISMATCH"
	// CodeFatal: the fixture could not be parsed or the engine crashed.
	CodeFatal Code = "HARNESS_FATAL"
)

// Unresolved is the actual type reported for a site the oracle left out.
const Unresolved = "<unresolved>"

// Placeholders for output positions with no counterpart.
const (
	Missing = "<missing>"
	Extra   = "<extra>"
)

// Failure is one mismatch or infrastructure error in a fixture.
type Failure struct {
	Code     Code   `json:"code"`
	File     string `json:"file"`
	Line     int    `json:"line,omitempty"`
	Expr     string `json:"expr,omitempty"`
	Expected string `json:"expected,omitempty"`
	Actual   string `json:"actual,omitempty"`
	Message  string `json:"message,omitempty"`
}

func (f *Failure) Error() string {
	loc := f.File
	if f.Line > 0 {
		loc = fmt.Sprintf("%s:%d", f.File, f.Line)
	}
	switch f.Code {
	case CodeTypeMismatch:
		return fmt.Sprintf("%s: %s: AssertType(%s): expected %q, got %q", loc, f.Code, f.Expr, f.Expected, f.Actual)
	case CodeOutputMismatch:
		if f.Message != "" {
			return fmt.Sprintf("%s: %s: %s: expected %q, got %q", loc, f.Code, f.Message, f.Expected, f.Actual)
		}
		return fmt.Sprintf("%s: %s: expected %q, got %q", loc, f.Code, f.Expected, f.Actual)
	default:
		return fmt.Sprintf("%s: %s: %s", loc, f.Code, f.Message)
	}
}

func hasCode(err error, code Code) bool {
	var f *Failure
	if errors.As(err, &f) {
		return f.Code == code
	}
	return false
}

// IsTypeMismatch reports whether err is a TYPE_MISMATCH failure.
func IsTypeMismatch(err error) bool { return hasCode(err, CodeTypeMismatch) }

// IsOutputMismatch reports whether err is an OUTPUT_MISMATCH failure.
func IsOutputMismatch(err error) bool { return hasCode(err, CodeOutputMismatch) }

// IsFatal reports whether err is a HARNESS_FATAL failure.
func IsFatal(err error) bool { return hasCode(err, CodeFatal) }

// AssertionRecord is the checked outcome of one AssertType site.
type AssertionRecord struct {
	ID     string                `json:"id"`
	Seq    int64                 `json:"seq"`
	Site   fixture.AssertionSite `json:"site"`
	Actual string                `json:"actual"`
	Pass   bool                  `json:"pass"`
}

// OutputRecord is one captured print.
type OutputRecord struct {
	ID   string `json:"id"`
	Seq  int64  `json:"seq"`
	Line int    `json:"line,omitempty"`
	Text string `json:"text"`
}

// Result is the outcome of running one fixture.
type Result struct {
	Fixture string       `json:"fixture"`
	Path    string       `json:"path"`
	Hash    string       `json:"hash"`
	Mode    fixture.Mode `json:"mode"`

	// Pass is true iff there are no failures.
	Pass bool `json:"pass"`

	Assertions  []AssertionRecord   `json:"assertions"`
	Outputs     []OutputRecord      `json:"outputs"`
	Diagnostics []oracle.Diagnostic `json:"diagnostics,omitempty"`
	Failures    []Failure           `json:"failures,omitempty"`

	// GoldenPath is set when runtime output was compared to a golden file.
	GoldenPath string `json:"golden_path,omitempty"`

	// Digest folds all record IDs; equal digests mean identical records.
	Digest string `json:"digest"`
}

// NewResult creates a passing result for fx.
func NewResult(fx *fixture.Fixture) *Result {
	return &Result{
		Fixture:     fx.Name,
		Path:        fx.Path,
		Hash:        fx.Hash,
		Mode:        fx.Mode,
		Pass:        true,
		Assertions:  []AssertionRecord{},
		Outputs:     []OutputRecord{},
		Diagnostics: []oracle.Diagnostic{},
	}
}

// AddFailure records f and marks the result failed.
func (r *Result) AddFailure(f Failure) {
	if f.File == "" {
		f.File = r.Path
	}
	r.Failures = append(r.Failures, f)
	r.Pass = false
}

// Fatal reports whether the result has an infrastructure failure.
func (r *Result) Fatal() bool {
	for _, f := range r.Failures {
		if f.Code == CodeFatal {
			return true
		}
	}
	return false
}

// Count returns the number of failures with code.
func (r *Result) Count(code Code) int {
	n := 0
	for _, f := range r.Failures {
		if f.Code == code {
			n++
		}
	}
	return n
}

// OutputTexts returns the captured output in execution order.
func (r *Result) OutputTexts() []string {
	out := make([]string, len(r.Outputs))
	for i, o := range r.Outputs {
		out[i] = o.Text
	}
	return out
}

// Err returns the failures as a joined error, or nil when the result
// passed.
func (r *Result) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	errs := make([]error, len(r.Failures))
	for i := range r.Failures {
		errs[i] = &r.Failures[i]
	}
	return errors.Join(errs...)
}
