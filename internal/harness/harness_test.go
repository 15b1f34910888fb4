package harness

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fixharness/internal/asyncgen"
	"github.com/roach88/fixharness/internal/evaluator"
	"github.com/roach88/fixharness/internal/fixture"
	"github.com/roach88/fixharness/internal/jobs"
	"github.com/roach88/fixharness/internal/oracle"
)

func load(t *testing.T, name string) *fixture.Fixture {
	t.Helper()
	l, err := fixture.NewLoader(0)
	require.NoError(t, err)
	fx, err := l.Load(filepath.Join("testdata", "fixtures", name))
	require.NoError(t, err)
	return fx
}

func parse(t *testing.T, path, src string) *fixture.Fixture {
	t.Helper()
	fx, err := fixture.Parse(path, []byte(src))
	require.NoError(t, err)
	return fx
}

func table(t *testing.T, yaml string) *oracle.Table {
	t.Helper()
	tb, err := oracle.ParseTable([]byte(yaml))
	require.NoError(t, err)
	return tb
}

func TestRun_LiteralIntAssertion(t *testing.T) {
	fx := load(t, "scenario1.ts")

	result, err := Run(context.Background(), fx, Options{Oracle: oracle.Literal{}})
	require.NoError(t, err)

	assert.True(t, result.Pass)
	assert.Equal(t, fixture.ModeStatic, result.Mode)
	require.Len(t, result.Assertions, 1)
	assert.Equal(t, "int", result.Assertions[0].Actual)
	assert.True(t, result.Assertions[0].Pass)
	assert.Len(t, result.Assertions[0].ID, 64)
	assert.Empty(t, result.Outputs)
}

func TestRun_TypeMismatch(t *testing.T) {
	fx := parse(t, "mismatch.ts", "let x = 1;\nAssertType(x, \"number\");\nAssertType(1, \"number\");\n")
	tb := table(t, `
fixtures:
  mismatch:
    types:
      "0": number
`)

	result, err := Run(context.Background(), fx, Options{Oracle: oracle.Chain{tb, oracle.Literal{}}})
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Assertions, 2)
	assert.True(t, result.Assertions[0].Pass)
	assert.False(t, result.Assertions[1].Pass)

	require.Len(t, result.Failures, 1)
	f := result.Failures[0]
	assert.Equal(t, CodeTypeMismatch, f.Code)
	assert.Equal(t, "mismatch.ts", f.File)
	assert.Equal(t, 3, f.Line)
	assert.Equal(t, "1", f.Expr)
	assert.Equal(t, "number", f.Expected)
	assert.Equal(t, "int", f.Actual)
	assert.Equal(t, `mismatch.ts:3: TYPE_MISMATCH: AssertType(1): expected "number", got "int"`, f.Error())
	assert.True(t, IsTypeMismatch(result.Err()))
	assert.False(t, IsFatal(result.Err()))
}

func TestRun_ComparisonIsCaseSensitive(t *testing.T) {
	fx := parse(t, "case.ts", "AssertType(1, \"Int\");\n")
	result, err := Run(context.Background(), fx, Options{Oracle: oracle.Literal{}})
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Equal(t, 1, result.Count(CodeTypeMismatch))
}

func TestRun_UnresolvedSite(t *testing.T) {
	fx := parse(t, "unresolved.ts", "AssertType(y, \"number\");\n")
	result, err := Run(context.Background(), fx, Options{Oracle: oracle.Literal{}})
	require.NoError(t, err)

	require.Len(t, result.Failures, 1)
	assert.Equal(t, Unresolved, result.Failures[0].Actual)
	assert.Equal(t, Unresolved, result.Assertions[0].Actual)
}

func TestRun_RedeclarationsAreRecordedNotRejected(t *testing.T) {
	fx := load(t, "redeclare.ts")
	tb := table(t, `
fixtures:
  redeclare:
    types:
      "0": int
      "1": string
      "2": boolean
    diagnostics:
      - line: 19
        code: "2451"
        message: "Cannot redeclare block-scoped variable 'foo'."
`)

	result, err := Run(context.Background(), fx, Options{Oracle: tb})
	require.NoError(t, err)

	assert.True(t, result.Pass, "redeclaration never fails the fixture: %v", result.Err())
	require.Len(t, result.Diagnostics, 2)
	assert.Equal(t, "harness", result.Diagnostics[0].Source)
	assert.Equal(t, "redeclaration", result.Diagnostics[0].Code)
	assert.Contains(t, result.Diagnostics[0].Message, "lines 17, 19, 21")
	assert.Equal(t, "2451", result.Diagnostics[1].Code)
}

func TestRun_BuiltinPrototypeIsClassInstance(t *testing.T) {
	fx := load(t, "builtins.ts")
	answers := `
fixtures:
  builtins:
    types:
      "0": string
      "1": %s
      "2": "{}"
      "3": string
`
	t.Run("distinct classification passes", func(t *testing.T) {
		result, err := Run(context.Background(), fx, Options{Oracle: table(t, fmt.Sprintf(answers, "class_instance"))})
		require.NoError(t, err)
		assert.True(t, result.Pass)
	})

	t.Run("structural answer fails", func(t *testing.T) {
		result, err := Run(context.Background(), fx, Options{Oracle: table(t, fmt.Sprintf(answers, `"{}"`))})
		require.NoError(t, err)
		require.Len(t, result.Failures, 1)
		assert.Equal(t, "Symbol.prototype", result.Failures[0].Expr)
		assert.Equal(t, "class_instance", result.Failures[0].Expected)
		assert.Equal(t, "{}", result.Failures[0].Actual)
	})
}

func TestRun_SyntaxErrorIsFatal(t *testing.T) {
	fx := parse(t, "broken.ts", "let a = (1 + ;\nAssertType(a, \"int\");\n")
	require.NotEmpty(t, fx.SyntaxErrors)

	result, err := Run(context.Background(), fx, Options{Oracle: oracle.Literal{}})
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.True(t, result.Fatal())
	assert.Empty(t, result.Assertions, "fatal fixtures are not checked")
	assert.True(t, IsFatal(result.Err()))
}

func TestRun_UnloadableFixtureIsFatal(t *testing.T) {
	fx := fixture.Unloadable("gone.ts", nil, errors.New("failed to read fixture: no such file"))

	result, err := Run(context.Background(), fx, Options{Oracle: oracle.Literal{}})
	require.NoError(t, err)

	assert.True(t, result.Fatal())
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "gone.ts: HARNESS_FATAL: failed to read fixture: no such file", result.Failures[0].Error())
	assert.NotEmpty(t, result.Digest)
}

func TestRun_TolerateSyntaxErrors(t *testing.T) {
	fx := parse(t, "broken.ts", "let a = (1 + ;\nAssertType(1, \"int\");\n")
	result, err := Run(context.Background(), fx, Options{Oracle: oracle.Literal{}, TolerateSyntaxErrors: true})
	require.NoError(t, err)
	assert.False(t, result.Fatal())
	assert.Len(t, result.Assertions, 1)
}

func TestRun_MalformedAssertionIsFatal(t *testing.T) {
	fx := parse(t, "malformed.ts", "let t = \"int\";\nAssertType(1, t);\n")
	result, err := Run(context.Background(), fx, Options{Oracle: oracle.Literal{}})
	require.NoError(t, err)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, CodeFatal, result.Failures[0].Code)
	assert.Equal(t, 2, result.Failures[0].Line)
	assert.Contains(t, result.Failures[0].Message, "malformed AssertType call")
}

func TestRun_MissingCollaborators(t *testing.T) {
	static := parse(t, "s.ts", "AssertType(1, \"int\");\n")
	result, err := Run(context.Background(), static, Options{})
	require.NoError(t, err)
	assert.True(t, result.Fatal())
	assert.Contains(t, result.Failures[0].Message, "no type oracle")

	runtimeFx := parse(t, "r.js", "print(1);\n")
	result, err = Run(context.Background(), runtimeFx, Options{})
	require.NoError(t, err)
	assert.True(t, result.Fatal())
	assert.Contains(t, result.Failures[0].Message, "no evaluator")
}

func TestRun_OracleFailureIsFatal(t *testing.T) {
	fx := parse(t, "s.ts", "AssertType(1, \"int\");\n")
	failing := oracle.Func(func(context.Context, *fixture.Fixture) (*oracle.Report, error) {
		return nil, errors.New("checker crashed")
	})
	result, err := Run(context.Background(), fx, Options{Oracle: failing})
	require.NoError(t, err)
	assert.True(t, result.Fatal())
	assert.Contains(t, result.Failures[0].Message, "checker crashed")
}

func TestRun_GojaPerLineExpectations(t *testing.T) {
	fx := load(t, "deferredorder.js")

	result, err := Run(context.Background(), fx, Options{Evaluator: &evaluator.Goja{}})
	require.NoError(t, err)

	assert.True(t, result.Pass, "%v", result.Err())
	assert.Equal(t, []string{"sync start", "sync end", "deferred one", "deferred two"}, result.OutputTexts())
	assert.Empty(t, result.GoldenPath)
	for i := 1; i < len(result.Outputs); i++ {
		assert.Greater(t, result.Outputs[i].Seq, result.Outputs[i-1].Seq)
	}
}

func TestRun_InlineOrderFollowsComments(t *testing.T) {
	fx := parse(t, "order.js", "print(\"first\"); // first\nprint(\"second\"); // second\n")
	reversed := evaluator.Func(func(_ context.Context, _ *fixture.Fixture, env evaluator.Env) error {
		env.Hooks.Print(2, "second")
		env.Hooks.Print(1, "first")
		return nil
	})

	result, err := Run(context.Background(), fx, Options{Evaluator: reversed, GoldenDir: t.TempDir()})
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Failures, 1)
	f := result.Failures[0]
	assert.Equal(t, CodeOutputMismatch, f.Code)
	assert.Equal(t, 2, f.Line)
	assert.Equal(t, "second", f.Expected)
	assert.Equal(t, "printed before line 1", f.Message)
}

func TestRun_DeferredOutOfSourceOrderNeedsGolden(t *testing.T) {
	fx := load(t, "printorder.js")

	t.Run("inline comments alone", func(t *testing.T) {
		result, err := Run(context.Background(), fx, Options{Evaluator: &evaluator.Goja{}, GoldenDir: t.TempDir()})
		require.NoError(t, err)

		assert.False(t, result.Pass)
		require.Len(t, result.Failures, 1)
		assert.Equal(t, 4, result.Failures[0].Line)
		assert.Equal(t, "sync end", result.Failures[0].Expected)
		assert.Equal(t, "printed before line 3", result.Failures[0].Message)
	})

	t.Run("golden file", func(t *testing.T) {
		result, err := Run(context.Background(), fx, Options{Evaluator: &evaluator.Goja{}})
		require.NoError(t, err)

		assert.True(t, result.Pass, "%v", result.Err())
		assert.NotEmpty(t, result.GoldenPath)
	})
}

func TestRun_InlineMismatch(t *testing.T) {
	fx := parse(t, "wrong.js", "print(1 + 1); // 3\nif (false) print(\"never\"); // never\n")

	result, err := Run(context.Background(), fx, Options{Evaluator: &evaluator.Goja{}})
	require.NoError(t, err)
	require.Len(t, result.Failures, 2)

	assert.Equal(t, CodeOutputMismatch, result.Failures[0].Code)
	assert.Equal(t, 1, result.Failures[0].Line)
	assert.Equal(t, "3", result.Failures[0].Expected)
	assert.Equal(t, "2", result.Failures[0].Actual)

	assert.Equal(t, Missing, result.Failures[1].Actual)
	assert.True(t, IsOutputMismatch(result.Err()))
}

func TestRun_UnattributedOutputUsesSubsequence(t *testing.T) {
	fx := parse(t, "seq.js", "print(\"a\"); // a\nprint(\"b\"); // b\n")
	printer := func(texts ...string) evaluator.Evaluator {
		return evaluator.Func(func(_ context.Context, _ *fixture.Fixture, env evaluator.Env) error {
			for _, s := range texts {
				env.Hooks.Print(0, s)
			}
			return nil
		})
	}

	result, err := Run(context.Background(), fx, Options{Evaluator: printer("noise", "a", "b")})
	require.NoError(t, err)
	assert.True(t, result.Pass)

	result, err = Run(context.Background(), fx, Options{Evaluator: printer("b", "a")})
	require.NoError(t, err)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "b", result.Failures[0].Expected)
	assert.Equal(t, 2, result.Failures[0].Line)
}

// asyncGeneratorThrow is the Go rendition of asyncgeneratorthrow.js.
func asyncGeneratorThrow() evaluator.Evaluator {
	return evaluator.Func(func(_ context.Context, _ *fixture.Fixture, env evaluator.Env) error {
		g := asyncgen.New(env.Queue, func(y *asyncgen.Yielder) (any, error) {
			for {
				_, err := y.Yield(3)
				if asyncgen.IsReturn(err) {
					return nil, err
				}
				if err != nil {
					env.Hooks.Print(27, err)
				}
			}
		})

		printValue := func(line int) jobs.OnFulfilled {
			return func(v any) (any, error) {
				env.Hooks.Print(line, v.(asyncgen.Result).Value)
				return nil, nil
			}
		}

		env.Hooks.Print(33, "asyncgenerator throw start")
		g.Next(1).Then(printValue(34), nil)
		g.Throw(errors.New("async generator wrong")).Then(printValue(36), nil)
		env.Hooks.Print(37, "asyncgenerator throw end")
		return nil
	})
}

func TestRun_AsyncGeneratorGolden(t *testing.T) {
	fx := load(t, "asyncgeneratorthrow.js")
	require.Equal(t, fixture.ModeRuntime, fx.Mode)

	result, err := Run(context.Background(), fx, Options{Evaluator: asyncGeneratorThrow()})
	require.NoError(t, err)

	assert.True(t, result.Pass, "%v", result.Err())
	assert.Equal(t, filepath.Join("testdata", "fixtures", "golden", "asyncgeneratorthrow.golden"), result.GoldenPath)
	assert.Equal(t, []string{
		"asyncgenerator throw start",
		"asyncgenerator throw end",
		"Error: async generator wrong",
		"3",
		"3",
	}, result.OutputTexts())

	// The first resolved next() callback prints the yielded value.
	var fromNext []OutputRecord
	for _, o := range result.Outputs {
		if o.Line == 34 {
			fromNext = append(fromNext, o)
		}
	}
	require.Len(t, fromNext, 1)
	assert.Equal(t, "3", fromNext[0].Text)
}

func TestRun_GoldenTakesPrecedenceOverInline(t *testing.T) {
	fx := load(t, "asyncgeneratorthrow.js")

	// Without the golden file, the inline comments describe the resolved
	// object, not res.value.
	result, err := Run(context.Background(), fx, Options{
		Evaluator: asyncGeneratorThrow(),
		GoldenDir: t.TempDir(),
	})
	require.NoError(t, err)
	assert.Empty(t, result.GoldenPath)
	require.Len(t, result.Failures, 2)
	assert.Equal(t, "{ value: 3, done: false }", result.Failures[0].Expected)
	assert.Equal(t, "3", result.Failures[0].Actual)
}

func TestRun_GoldenMismatch(t *testing.T) {
	dir := t.TempDir()
	fx := parse(t, filepath.Join(dir, "g.js"), "print(1);\nprint(2);\n")
	require.NoError(t, WriteGolden(GoldenPath(fx, ""), &Result{Outputs: []OutputRecord{{Text: "1"}}}))

	result, err := Run(context.Background(), fx, Options{Evaluator: &evaluator.Goja{}})
	require.NoError(t, err)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, Extra, result.Failures[0].Expected)
	assert.Equal(t, "2", result.Failures[0].Actual)
	assert.Equal(t, 2, result.Failures[0].Line)
}

func TestRun_EngineCrashIsFatalButKeepsOutput(t *testing.T) {
	fx := parse(t, "crash.js", "print(1);\n")
	crash := evaluator.Func(func(_ context.Context, _ *fixture.Fixture, env evaluator.Env) error {
		env.Hooks.Print(1, "partial")
		return errors.New("segfault")
	})

	result, err := Run(context.Background(), fx, Options{Evaluator: crash})
	require.NoError(t, err)
	assert.True(t, result.Fatal())
	assert.Contains(t, result.Failures[0].Message, "segfault")
	assert.Equal(t, []string{"partial"}, result.OutputTexts())
}

func TestRun_ReleasesSuspendedGenerators(t *testing.T) {
	fx := parse(t, "suspended.js", "print(1); // 1\n")
	exited := make(chan struct{})
	ev := evaluator.Func(func(_ context.Context, _ *fixture.Fixture, env evaluator.Env) error {
		g := asyncgen.New(env.Queue, func(y *asyncgen.Yielder) (any, error) {
			defer close(exited)
			for {
				if _, err := y.Yield(1); err != nil {
					return nil, err
				}
			}
		})
		g.Next(nil).Then(func(v any) (any, error) {
			env.Hooks.Print(1, v.(asyncgen.Result).Value)
			return nil, nil
		}, nil)
		return nil
	})

	result, err := Run(context.Background(), fx, Options{Evaluator: ev})
	require.NoError(t, err)
	assert.True(t, result.Pass, "%v", result.Err())

	select {
	case <-exited:
	case <-time.After(time.Second):
		t.Fatal("generator body outlived the fixture run")
	}
}

func TestRun_RunawayQueueIsFatal(t *testing.T) {
	fx := parse(t, "loop.js", "function again() { queueJob(again); }\nqueueJob(again);\n")

	result, err := Run(context.Background(), fx, Options{Evaluator: &evaluator.Goja{}, MaxJobs: 50})
	require.NoError(t, err)
	assert.True(t, result.Fatal())
	assert.Contains(t, result.Failures[0].Message, "exceeded max jobs")
}

func TestRun_Timeout(t *testing.T) {
	fx := parse(t, "spin.js", "for (;;) {}\n")

	result, err := Run(context.Background(), fx, Options{Evaluator: &evaluator.Goja{}, Timeout: 50 * time.Millisecond})
	require.NoError(t, err)
	assert.True(t, result.Fatal())
	assert.Contains(t, result.Failures[0].Message, "deadline exceeded")
}

func TestRun_MixedMode(t *testing.T) {
	fx := parse(t, "mixed.js", "let x = 1;\nAssertType(1, \"int\");\nprint(x); // 1\n")
	require.Equal(t, fixture.ModeMixed, fx.Mode)

	result, err := Run(context.Background(), fx, Options{Oracle: oracle.Literal{}, Evaluator: &evaluator.Goja{}})
	require.NoError(t, err)
	assert.True(t, result.Pass, "%v", result.Err())
	assert.Len(t, result.Assertions, 1)
	assert.Equal(t, []string{"1"}, result.OutputTexts())
}

func TestRun_Deterministic(t *testing.T) {
	fx := load(t, "asyncgeneratorthrow.js")

	first, err := Run(context.Background(), fx, Options{Evaluator: asyncGeneratorThrow()})
	require.NoError(t, err)
	second, err := Run(context.Background(), fx, Options{Evaluator: asyncGeneratorThrow()})
	require.NoError(t, err)

	assert.Equal(t, first.Digest, second.Digest)
	assert.Equal(t, first.Outputs, second.Outputs)

	static := load(t, "scenario1.ts")
	a, err := Run(context.Background(), static, Options{Oracle: oracle.Literal{}})
	require.NoError(t, err)
	b, err := Run(context.Background(), static, Options{Oracle: oracle.Literal{}})
	require.NoError(t, err)
	assert.Equal(t, a.Digest, b.Digest)
	assert.NotEqual(t, a.Digest, first.Digest)
}

func TestRun_Events(t *testing.T) {
	fx := parse(t, "mixed.js", "AssertType(1, \"int\");\nprint(1); // 1\n")
	var kinds []EventKind

	_, err := Run(context.Background(), fx, Options{
		Oracle:    oracle.Literal{},
		Evaluator: &evaluator.Goja{},
		OnEvent:   func(e Event) { kinds = append(kinds, e.Kind) },
	})
	require.NoError(t, err)
	assert.Equal(t, []EventKind{EventFixtureStart, EventAssertion, EventOutput, EventFixtureEnd}, kinds)
}

func TestRun_NilFixture(t *testing.T) {
	_, err := Run(context.Background(), nil, Options{})
	assert.Error(t, err)
}
