package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/fixharness/internal/fixture"
)

// Issue severities reported by validate.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// ValidationIssue is one problem found in a fixture without running it.
type ValidationIssue struct {
	File     string `json:"file"`
	Line     int    `json:"line,omitempty"`
	Code     string `json:"code"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

func (i ValidationIssue) String() string {
	loc := i.File
	if i.Line > 0 {
		loc = fmt.Sprintf("%s:%d", i.File, i.Line)
	}
	return fmt.Sprintf("%s: %s [%s]: %s", loc, i.Severity, i.Code, i.Message)
}

// ValidateReport is the JSON payload of the validate command.
type ValidateReport struct {
	Fixtures int               `json:"fixtures"`
	Errors   int               `json:"errors"`
	Warnings int               `json:"warnings"`
	Issues   []ValidationIssue `json:"issues"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <path>...",
		Short: "Check fixtures without running them",
		Long: `Parse fixtures and report problems that would make a run fatal or
ambiguous: unreadable files or bad directives, syntax errors, malformed
AssertType/print calls, and an undeclared @tc.mode when
require_declared_mode is set. A missing license
header and a TypeScript fixture without "declare function AssertType" are
warnings.

Exit codes:
  0 - No errors (warnings allowed)
  1 - One or more errors
  2 - Command error`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, roots []string, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	fixtures, err := loadFixtures(cfg, roots, "")
	if err != nil {
		return err
	}

	report := ValidateReport{Fixtures: len(fixtures), Issues: []ValidationIssue{}}
	for _, fx := range fixtures {
		for _, issue := range ValidateFixture(fx, cfg.RequireDeclaredMode) {
			if issue.Severity == SeverityError {
				report.Errors++
			} else {
				report.Warnings++
			}
			report.Issues = append(report.Issues, issue)
		}
	}

	out := newFormatter(cmd, opts.Format)
	text := func(w io.Writer) error {
		for _, issue := range report.Issues {
			fmt.Fprintln(w, issue)
		}
		_, err := fmt.Fprintf(w, "%d fixture(s): %d error(s), %d warning(s)\n", report.Fixtures, report.Errors, report.Warnings)
		return err
	}
	if report.Errors > 0 {
		return out.Failure("E_INVALID_FIXTURE", fmt.Sprintf("%d validation error(s)", report.Errors), report, text)
	}
	return out.Success(report, text)
}

// ValidateFixture returns the static problems of fx.
func ValidateFixture(fx *fixture.Fixture, requireDeclaredMode bool) []ValidationIssue {
	var issues []ValidationIssue
	add := func(line int, code, severity, msg string) {
		issues = append(issues, ValidationIssue{File: fx.Path, Line: line, Code: code, Severity: severity, Message: msg})
	}

	if fx.LoadErr != nil {
		add(0, "load", SeverityError, fx.LoadErr.Error())
		return issues
	}
	for _, se := range fx.SyntaxErrors {
		add(se.Line, "syntax", SeverityError, se.Message)
	}
	for _, m := range fx.Malformed {
		add(m.Line, "malformed_hook", SeverityError, fmt.Sprintf("%s: %s", m.Hook, m.Message))
	}
	if requireDeclaredMode && !fx.ModeDeclared {
		add(0, "undeclared_mode", SeverityError, fmt.Sprintf("no @tc.mode; derived %q", fx.Mode))
	}
	if !fx.HasHeader() {
		add(1, "missing_header", SeverityWarning, "no license header block comment")
	}
	if fx.Lang != fixture.LangJS && len(fx.Assertions) > 0 && !fx.Declares(fixture.HookAssertType) {
		add(fx.Assertions[0].Line, "undeclared_hook", SeverityWarning, "AssertType is used without an ambient declaration")
	}
	return issues
}
