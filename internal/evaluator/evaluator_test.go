package evaluator

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fixharness/internal/asyncgen"
	"github.com/roach88/fixharness/internal/fixture"
	"github.com/roach88/fixharness/internal/jobs"
)

type printed struct {
	Line int
	Text string
}

type recordingHooks struct {
	prints  []printed
	asserts []string
}

func (h *recordingHooks) AssertType(_ any, typ string) {
	h.asserts = append(h.asserts, typ)
}

func (h *recordingHooks) Print(line int, values ...any) {
	h.prints = append(h.prints, printed{Line: line, Text: Join(values...)})
}

func (h *recordingHooks) texts() []string {
	out := make([]string, len(h.prints))
	for i, p := range h.prints {
		out[i] = p.Text
	}
	return out
}

func parse(t *testing.T, path, src string) *fixture.Fixture {
	t.Helper()
	fx, err := fixture.Parse(path, []byte(src))
	require.NoError(t, err)
	return fx
}

func newEnv() (Env, *recordingHooks) {
	h := &recordingHooks{}
	return Env{Hooks: h, Queue: jobs.New()}, h
}

func TestGoja_PrintAndQueueOrder(t *testing.T) {
	fx := parse(t, "order.js", `print("sync start");
queueJob(() => print("deferred one"));
queueJob(() => print("deferred two"));
print("sync end");
`)
	env, h := newEnv()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, (&Goja{}).Evaluate(ctx, fx, env))
	assert.Equal(t, []printed{
		{Line: 1, Text: "sync start"},
		{Line: 4, Text: "sync end"},
		{Line: 2, Text: "deferred one"},
		{Line: 3, Text: "deferred two"},
	}, h.prints)
	assert.Equal(t, 2, env.Queue.Ran())
	assert.Equal(t, int64(2), env.Queue.Clock().Current(), "each job takes a seq")

	require.NoError(t, env.Queue.Drain(ctx), "nothing is left for the harness")
}

func TestGoja_QueueJobAndPromisesShareOneFIFO(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []string
	}{
		{
			name: "queueJob then promise",
			src: `queueJob(() => print("queued first"));
Promise.resolve().then(() => print("promise second"));
print("sync");
`,
			want: []string{"sync", "queued first", "promise second"},
		},
		{
			name: "promise then queueJob",
			src: `Promise.resolve().then(() => print("promise first"));
queueJob(() => print("queued second"));
print("sync");
`,
			want: []string{"sync", "promise first", "queued second"},
		},
		{
			name: "jobs scheduled by jobs run after earlier jobs",
			src: `queueJob(() => {
  print("a");
  Promise.resolve().then(() => print("c"));
  queueJob(() => print("d"));
});
queueJob(() => print("b"));
`,
			want: []string{"a", "b", "c", "d"},
		},
		{
			name: "await continuation",
			src: `async function f() {
  print("f start");
  await null;
  print("f resumed");
}
queueJob(() => print("queued"));
f();
print("sync");
`,
			want: []string{"f start", "sync", "queued", "f resumed"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := parse(t, "fifo.js", tt.src)
			env, h := newEnv()
			require.NoError(t, (&Goja{}).Evaluate(context.Background(), fx, env))
			assert.Equal(t, tt.want, h.texts())
		})
	}
}

func TestGoja_QueueJobHonorsMaxJobs(t *testing.T) {
	fx := parse(t, "loop.js", "function again() { print(\"tick\"); queueJob(again); }\nqueueJob(again);\n")
	h := &recordingHooks{}
	env := Env{Hooks: h, Queue: jobs.New(jobs.WithMaxJobs(3))}

	err := (&Goja{}).Evaluate(context.Background(), fx, env)
	require.Error(t, err)
	assert.True(t, jobs.IsStepsExceeded(err))
	assert.Equal(t, []string{"tick", "tick", "tick"}, h.texts())
}

func TestGoja_Stringification(t *testing.T) {
	fx := parse(t, "values.js", `print(1 + 1);
print(0.1 + 0.2);
print([1, 2, 3]);
print({});
print(new Error("boom"));
print(undefined, null, true);
`)
	env, h := newEnv()
	require.NoError(t, (&Goja{}).Evaluate(context.Background(), fx, env))
	assert.Equal(t, []string{
		"2",
		"0.30000000000000004",
		"1,2,3",
		"[object Object]",
		"Error: boom",
		"undefined null true",
	}, h.texts())
}

func TestGoja_AssertTypeIsNoop(t *testing.T) {
	fx := parse(t, "assert.js", `let x = 1;
AssertType(x, "int");
print(x);
`)
	env, h := newEnv()
	require.NoError(t, (&Goja{}).Evaluate(context.Background(), fx, env))
	assert.Equal(t, []string{"int"}, h.asserts)
	assert.Equal(t, []string{"1"}, h.texts())
}

func TestGoja_PromisesRunBeforeReturn(t *testing.T) {
	fx := parse(t, "promise.js", `Promise.resolve(3).then((v) => print(v));
print("sync");
`)
	env, h := newEnv()
	require.NoError(t, (&Goja{}).Evaluate(context.Background(), fx, env))
	assert.Equal(t, []string{"sync", "3"}, h.texts())
}

func TestGoja_UncaughtException(t *testing.T) {
	fx := parse(t, "throws.js", `print("before");
throw new TypeError("bad");
`)
	env, h := newEnv()
	err := (&Goja{}).Evaluate(context.Background(), fx, env)
	require.Error(t, err)

	var ue *UncaughtError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "TypeError: bad", ue.Message)
	assert.Equal(t, []string{"before"}, h.texts())
}

func TestGoja_QueuedJobException(t *testing.T) {
	fx := parse(t, "jobthrows.js", `queueJob(() => { throw new Error("late"); });
queueJob(() => print("skipped"));
Promise.resolve().then(() => print("also skipped"));
`)
	env, h := newEnv()
	err := (&Goja{}).Evaluate(context.Background(), fx, env)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Error: late")

	var je *jobs.JobError
	require.ErrorAs(t, err, &je)
	assert.Equal(t, int64(1), je.Seq)
	assert.Empty(t, h.texts(), "a failed job stops the jobs queued after it")
}

func TestGoja_QueueJobRejectsNonFunction(t *testing.T) {
	fx := parse(t, "badjob.js", `queueJob(1);`)
	env, _ := newEnv()
	err := (&Goja{}).Evaluate(context.Background(), fx, env)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a function")
}

func TestGoja_ContextInterrupts(t *testing.T) {
	fx := parse(t, "spin.js", `for (;;) {}`)
	env, _ := newEnv()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := (&Goja{}).Evaluate(ctx, fx, env)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGoja_RejectsTypeScript(t *testing.T) {
	fx := parse(t, "typed.ts", `let x: number = 1;`)
	env, _ := newEnv()
	err := (&Goja{}).Evaluate(context.Background(), fx, env)
	assert.True(t, IsUnsupported(err))
}

func TestGoja_CompileError(t *testing.T) {
	fx := parse(t, "broken.js", `let = ;`)
	env, _ := newEnv()
	err := (&Goja{}).Evaluate(context.Background(), fx, env)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "compile broken.js")
}

func TestFuncAndRegistry(t *testing.T) {
	called := ""
	named := Func(func(_ context.Context, fx *fixture.Fixture, env Env) error {
		called = fx.Name
		env.Hooks.Print(0, "native")
		return nil
	})
	reg := &Registry{ByName: map[string]Evaluator{"special": named}}

	env, h := newEnv()
	require.NoError(t, reg.Evaluate(context.Background(), parse(t, "special.js", ""), env))
	assert.Equal(t, "special", called)
	assert.Equal(t, []string{"native"}, h.texts())

	err := reg.Evaluate(context.Background(), parse(t, "other.js", ""), env)
	assert.True(t, IsUnsupported(err))
}

func TestStringify(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, "null"},
		{asyncgen.Undefined{}, "undefined"},
		{"s", "s"},
		{3, "3"},
		{int64(-4), "-4"},
		{2.0, "2"},
		{1.5, "1.5"},
		{1e21, "1e+21"},
		{1e-7, "1e-7"},
		{math.NaN(), "NaN"},
		{math.Inf(-1), "-Infinity"},
		{math.Copysign(0, -1), "0"},
		{true, "true"},
		{errors.New("async generator wrong"), "Error: async generator wrong"},
		{errors.New("TypeError: nope"), "TypeError: nope"},
		{asyncgen.Result{Value: 3, Done: false}, "{ value: 3, done: false }"},
		{asyncgen.Result{Value: "x", Done: true}, "{ value: 'x', done: true }"},
		{asyncgen.Result{Value: asyncgen.Undefined{}, Done: true}, "{ value: undefined, done: true }"},
		{[]any{1, nil, "a"}, "1,,a"},
		{map[string]any{"a": 1}, "[object Object]"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Stringify(tt.in), "%#v", tt.in)
	}
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported")
	}
	path := filepath.Join(t.TempDir(), "engine.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func TestProcess(t *testing.T) {
	script := writeScript(t, "printf 'asyncgenerator throw start\\nasyncgenerator throw end\\n3\\n'\n")
	env, h := newEnv()

	err := (&Process{Command: script}).Evaluate(context.Background(), parse(t, "p.js", ""), env)
	require.NoError(t, err)
	assert.Equal(t, []string{"asyncgenerator throw start", "asyncgenerator throw end", "3"}, h.texts())
	assert.Equal(t, 0, h.prints[0].Line)
}

func TestProcess_Crash(t *testing.T) {
	script := writeScript(t, "echo partial\necho 'Segmentation fault' >&2\nexit 139\n")
	env, h := newEnv()

	err := (&Process{Command: script}).Evaluate(context.Background(), parse(t, "p.js", ""), env)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "crashed")
	assert.Contains(t, err.Error(), "Segmentation fault")
	assert.Equal(t, []string{"partial"}, h.texts())
}
