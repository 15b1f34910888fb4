// Package evaluator runs fixtures for their print output.
//
// An Evaluator executes a fixture with the harness hooks injected into its
// environment. The fixture never sees hook implementations baked into
// globals by itself: print and AssertType are always supplied through
// Hooks at load time. Deferred continuations go to Env.Queue, which the
// harness drains after Evaluate returns. An engine with its own job queue
// runs them there instead, in one FIFO with its promise jobs, and counts
// each one through Env.Queue.Admit.
package evaluator

import (
	"context"
	"io"
	"log/slog"

	"github.com/roach88/fixharness/internal/fixture"
	"github.com/roach88/fixharness/internal/jobs"
)

// Hooks are the two entry points a fixture may call.
type Hooks interface {
	// AssertType is a no-op at runtime. The static check happens in the
	// oracle; the call exists for the fixture's source to type-check.
	AssertType(value any, typ string)
	// Print stringifies values and appends one output record. line is the
	// 1-based source line of the print call, or 0 when unknown.
	Print(line int, values ...any)
}

// Env is what a fixture run provides to an evaluator.
type Env struct {
	Hooks  Hooks
	Queue  *jobs.Queue
	Logger *slog.Logger
}

// Log returns env's logger or a discarding one.
func (e Env) Log() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Evaluator executes fixture code.
//
// Evaluate runs the fixture's synchronous code and returns. Deferred work
// is either left on env.Queue for the harness to drain or, for engines
// with a job queue of their own, already run. A returned error means the
// engine crashed or threw an uncaught exception.
type Evaluator interface {
	Evaluate(ctx context.Context, fx *fixture.Fixture, env Env) error
}

// Func adapts a Go function to Evaluator. It is how Go-native fixture
// programs, such as async generator drivers, are plugged in.
type Func func(ctx context.Context, fx *fixture.Fixture, env Env) error

func (f Func) Evaluate(ctx context.Context, fx *fixture.Fixture, env Env) error {
	return f(ctx, fx, env)
}

// Registry picks an evaluator per fixture name, falling back to Default.
type Registry struct {
	Default Evaluator
	ByName  map[string]Evaluator
}

func (r *Registry) Evaluate(ctx context.Context, fx *fixture.Fixture, env Env) error {
	if e, ok := r.ByName[fx.Name]; ok {
		return e.Evaluate(ctx, fx, env)
	}
	if r.Default == nil {
		return &UnsupportedError{Fixture: fx.Name, Reason: "no evaluator registered"}
	}
	return r.Default.Evaluate(ctx, fx, env)
}
