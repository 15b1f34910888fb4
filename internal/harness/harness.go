package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/roach88/fixharness/internal/evaluator"
	"github.com/roach88/fixharness/internal/fixture"
	"github.com/roach88/fixharness/internal/ir"
	"github.com/roach88/fixharness/internal/jobs"
	"github.com/roach88/fixharness/internal/oracle"
)

// Options configures fixture runs.
type Options struct {
	// Oracle answers static types. Required for static and mixed fixtures.
	Oracle oracle.Oracle
	// Evaluator executes fixtures. Required for runtime and mixed fixtures.
	Evaluator evaluator.Evaluator

	// GoldenDir holds <name>.golden files. Empty means a golden/ directory
	// next to each fixture.
	GoldenDir string
	// TolerateSyntaxErrors runs fixtures with parse errors instead of
	// failing them as HARNESS_FATAL.
	TolerateSyntaxErrors bool

	// Timeout bounds the runtime phase of each fixture. Zero means no limit.
	Timeout time.Duration
	// MaxJobs bounds the deferred queue drain. Zero uses jobs.DefaultMaxJobs.
	MaxJobs int

	Logger  *slog.Logger
	OnEvent func(Event)
}

func (o *Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (o *Options) emit(e Event) {
	if o.OnEvent != nil {
		o.OnEvent(e)
	}
}

// Run executes one fixture and returns its result. Mismatches and engine
// crashes are reported on the Result; the error return is reserved for
// invalid arguments.
func Run(ctx context.Context, fx *fixture.Fixture, opts Options) (*Result, error) {
	if fx == nil {
		return nil, errors.New("harness: nil fixture")
	}
	log := opts.logger().With("fixture", fx.Name)
	opts.emit(Event{Kind: EventFixtureStart, Fixture: fx.Name})

	result := NewResult(fx)
	for _, rd := range fx.Redeclarations {
		result.Diagnostics = append(result.Diagnostics, redeclarationDiagnostic(rd))
	}

	if checkLoad(fx, opts, result) {
		if fx.Mode.Static() {
			runStatic(ctx, fx, opts, result, log)
		}
		if fx.Mode.Runtime() {
			runRuntime(ctx, fx, opts, result, log)
		}
	}

	if err := finish(result); err != nil {
		return nil, err
	}
	log.Info("fixture done", "pass", result.Pass, "failures", len(result.Failures))
	opts.emit(Event{Kind: EventFixtureEnd, Fixture: fx.Name, Pass: result.Pass, Digest: result.Digest})
	return result, nil
}

// checkLoad reports load-time problems and whether execution may proceed.
func checkLoad(fx *fixture.Fixture, opts Options, result *Result) bool {
	if fx.LoadErr != nil {
		result.AddFailure(Failure{Code: CodeFatal, Message: fx.LoadErr.Error()})
		return false
	}
	ok := true
	if len(fx.SyntaxErrors) > 0 && !opts.TolerateSyntaxErrors {
		for _, se := range fx.SyntaxErrors {
			result.AddFailure(Failure{
				Code:    CodeFatal,
				Line:    se.Line,
				Message: "syntax error: " + se.Message,
			})
		}
		ok = false
	}
	for _, m := range fx.Malformed {
		result.AddFailure(Failure{
			Code:    CodeFatal,
			Line:    m.Line,
			Message: fmt.Sprintf("malformed %s call: %s", m.Hook, m.Message),
		})
		ok = false
	}
	return ok
}

func runStatic(ctx context.Context, fx *fixture.Fixture, opts Options, result *Result, log *slog.Logger) {
	if opts.Oracle == nil {
		result.AddFailure(Failure{Code: CodeFatal, Message: "no type oracle configured for static checks"})
		return
	}
	report, err := opts.Oracle.Check(ctx, fx)
	if err != nil {
		result.AddFailure(Failure{Code: CodeFatal, Message: fmt.Sprintf("type oracle failed: %v", err)})
		return
	}
	result.Diagnostics = append(result.Diagnostics, report.Diagnostics...)

	for _, site := range fx.Assertions {
		actual, ok := report.Type(site.Index)
		if !ok {
			actual = Unresolved
		}
		pass := ok && actual == site.Expected

		id, err := ir.AssertionID(fx.Hash, site.Index, site.Expected, actual)
		if err != nil {
			result.AddFailure(Failure{Code: CodeFatal, Line: site.Line, Message: err.Error()})
			return
		}
		result.Assertions = append(result.Assertions, AssertionRecord{
			ID:     id,
			Seq:    int64(site.Index + 1),
			Site:   site,
			Actual: actual,
			Pass:   pass,
		})
		opts.emit(Event{
			Kind:     EventAssertion,
			Fixture:  fx.Name,
			Seq:      int64(site.Index + 1),
			Line:     site.Line,
			Text:     site.Expr,
			Expected: site.Expected,
			Actual:   actual,
			Pass:     pass,
		})

		if !pass {
			log.Debug("type mismatch", "index", site.Index, "expected", site.Expected, "actual", actual)
			result.AddFailure(Failure{
				Code:     CodeTypeMismatch,
				Line:     site.Line,
				Expr:     site.Expr,
				Expected: site.Expected,
				Actual:   actual,
			})
		}
	}
}

func runRuntime(ctx context.Context, fx *fixture.Fixture, opts Options, result *Result, log *slog.Logger) {
	if opts.Evaluator == nil {
		result.AddFailure(Failure{Code: CodeFatal, Message: "no evaluator configured for runtime checks"})
		return
	}

	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if opts.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	clock := jobs.NewClock()
	queueOpts := []jobs.Option{jobs.WithClock(clock), jobs.WithLogger(log)}
	if opts.MaxJobs != 0 {
		queueOpts = append(queueOpts, jobs.WithMaxJobs(opts.MaxJobs))
	}
	q := jobs.New(queueOpts...)
	hooks := newHooks(clock, fx.Name, fx.Hash, log, opts.emit)
	env := evaluator.Env{Hooks: hooks, Queue: q, Logger: log}

	err := opts.Evaluator.Evaluate(runCtx, fx, env)
	if err == nil {
		err = q.Drain(runCtx)
	}
	q.Close()

	result.Outputs = hooks.Outputs()
	if err == nil {
		err = hooks.err
	}
	if err != nil {
		log.Warn("runtime phase failed", "error", err)
		result.AddFailure(Failure{Code: CodeFatal, Message: fmt.Sprintf("engine failed: %v", err)})
		return
	}

	golden := GoldenPath(fx, opts.GoldenDir)
	want, found, err := ReadGolden(golden)
	if err != nil {
		result.AddFailure(Failure{Code: CodeFatal, Message: err.Error()})
		return
	}
	if found {
		result.GoldenPath = golden
		compareGolden(want, result)
		return
	}
	compareInline(fx, result)
}

// compareGolden requires the captured output to equal want line for line.
func compareGolden(want []string, result *Result) {
	n := max(len(want), len(result.Outputs))
	for i := 0; i < n; i++ {
		switch {
		case i >= len(result.Outputs):
			result.AddFailure(Failure{
				Code:     CodeOutputMismatch,
				Expected: want[i],
				Actual:   Missing,
				Message:  fmt.Sprintf("output %d", i+1),
			})
		case i >= len(want):
			result.AddFailure(Failure{
				Code:     CodeOutputMismatch,
				Line:     result.Outputs[i].Line,
				Expected: Extra,
				Actual:   result.Outputs[i].Text,
				Message:  fmt.Sprintf("output %d", i+1),
			})
		case want[i] != result.Outputs[i].Text:
			result.AddFailure(Failure{
				Code:     CodeOutputMismatch,
				Line:     result.Outputs[i].Line,
				Expected: want[i],
				Actual:   result.Outputs[i].Text,
				Message:  fmt.Sprintf("output %d", i+1),
			})
		}
	}
}

// compareInline checks trailing-comment expectations. Comments list the
// outputs in execution order. Outputs with line attribution are matched
// per line and must then have run in comment order; otherwise the expected
// texts must appear in order within the output.
func compareInline(fx *fixture.Fixture, result *Result) {
	if len(fx.Expected) == 0 {
		return
	}
	attributed := false
	for _, o := range result.Outputs {
		if o.Line > 0 {
			attributed = true
			break
		}
	}
	if !attributed {
		compareSubsequence(fx.Expected, result)
		return
	}

	byLine := make(map[int][]OutputRecord)
	for _, o := range result.Outputs {
		byLine[o.Line] = append(byLine[o.Line], o)
	}
	before := len(result.Failures)
	for _, exp := range fx.Expected {
		got := byLine[exp.Line]
		if len(got) == 0 {
			result.AddFailure(Failure{
				Code:     CodeOutputMismatch,
				Line:     exp.Line,
				Expected: exp.Text,
				Actual:   Missing,
				Message:  "print never ran",
			})
			continue
		}
		for _, o := range got {
			if o.Text != exp.Text {
				result.AddFailure(Failure{
					Code:     CodeOutputMismatch,
					Line:     exp.Line,
					Expected: exp.Text,
					Actual:   o.Text,
				})
			}
		}
	}
	if len(result.Failures) == before {
		compareInlineOrder(fx.Expected, byLine, result)
	}
}

// compareInlineOrder requires the outputs matched to each comment to carry
// increasing seqs in comment order.
func compareInlineOrder(expected []fixture.ExpectedOutput, byLine map[int][]OutputRecord, result *Result) {
	used := make(map[int]int)
	var prevSeq int64
	prevLine := 0
	for _, exp := range expected {
		got := byLine[exp.Line]
		k := used[exp.Line]
		if k >= len(got) {
			continue
		}
		used[exp.Line] = k + 1
		o := got[k]
		if prevLine > 0 && o.Seq < prevSeq {
			result.AddFailure(Failure{
				Code:     CodeOutputMismatch,
				Line:     exp.Line,
				Expected: exp.Text,
				Actual:   strings.Join(result.OutputTexts(), "\n"),
				Message:  fmt.Sprintf("printed before line %d", prevLine),
			})
			return
		}
		prevSeq, prevLine = o.Seq, exp.Line
	}
}

func compareSubsequence(expected []fixture.ExpectedOutput, result *Result) {
	i := 0
	for _, o := range result.Outputs {
		if i < len(expected) && o.Text == expected[i].Text {
			i++
		}
	}
	if i == len(expected) {
		return
	}
	result.AddFailure(Failure{
		Code:     CodeOutputMismatch,
		Line:     expected[i].Line,
		Expected: expected[i].Text,
		Actual:   strings.Join(result.OutputTexts(), "\n"),
		Message:  "expected output not found in order",
	})
}

func finish(result *Result) error {
	aIDs := make([]string, len(result.Assertions))
	for i, a := range result.Assertions {
		aIDs[i] = a.ID
	}
	oIDs := make([]string, len(result.Outputs))
	for i, o := range result.Outputs {
		oIDs[i] = o.ID
	}
	digest, err := ir.ResultDigest(result.Hash, aIDs, oIDs)
	if err != nil {
		return fmt.Errorf("result digest: %w", err)
	}
	result.Digest = digest
	result.Pass = len(result.Failures) == 0
	return nil
}

func redeclarationDiagnostic(rd fixture.Redeclaration) oracle.Diagnostic {
	lines := make([]string, len(rd.Lines))
	for i, l := range rd.Lines {
		lines[i] = fmt.Sprint(l)
	}
	return oracle.Diagnostic{
		Line:     rd.Lines[len(rd.Lines)-1],
		Code:     "redeclaration",
		Severity: oracle.SeverityInfo,
		Message:  fmt.Sprintf("%q declared %d times in one scope (lines %s)", rd.Name, len(rd.Lines), strings.Join(lines, ", ")),
		Source:   "harness",
	}
}
