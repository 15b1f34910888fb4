package evaluator

import (
	"context"
	"errors"
	"fmt"

	"github.com/dop251/goja"

	"github.com/roach88/fixharness/internal/fixture"
	"github.com/roach88/fixharness/internal/jobs"
)

// Goja evaluates plain JavaScript fixtures in-process.
//
// The runtime gets three globals: print and AssertType forward to the
// hooks, and queueJob(fn) schedules fn as a job. goja runs promise
// reactions and async continuations on its own job queue, so queueJob
// joins that same queue: every deferred continuation of the script runs
// in one FIFO, before Evaluate returns. Jobs are stamped from and counted
// against env.Queue. TypeScript fixtures are not supported.
type Goja struct {
	// Strict compiles fixtures as strict-mode scripts.
	Strict bool
	// MaxCallStackSize bounds recursion. Zero keeps goja's default.
	MaxCallStackSize int
}

// queueJobSource builds queueJob over goja's promise job queue. The
// trampoline is script code so jobs never re-enter the runtime from Go,
// which would run their own reactions ahead of earlier jobs.
const queueJobSource = `(function (schedule, start, fail) {
	var then = Promise.prototype.then;
	var settled = Promise.resolve();
	return function queueJob(fn) {
		if (typeof fn !== "function") {
			throw new TypeError("queueJob: argument is not a function");
		}
		var seq = schedule();
		then.call(settled, function () {
			if (!start(seq)) {
				return;
			}
			try {
				fn();
			} catch (e) {
				fail(seq, e);
			}
		});
	};
})`

// gojaRun is the state of one Evaluate call.
type gojaRun struct {
	vm  *goja.Runtime
	fx  *fixture.Fixture
	env Env
	err error // first failed job; later jobs are skipped
}

func (g *Goja) Evaluate(ctx context.Context, fx *fixture.Fixture, env Env) error {
	if fx.Lang != fixture.LangJS {
		return &UnsupportedError{Fixture: fx.Name, Reason: fmt.Sprintf("goja runs JavaScript only, got %s", fx.Lang)}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	prg, err := goja.Compile(fx.Path, string(fx.Source), g.Strict)
	if err != nil {
		return fmt.Errorf("compile %s: %w", fx.Path, err)
	}

	vm := goja.New()
	if g.MaxCallStackSize > 0 {
		vm.SetMaxCallStackSize(g.MaxCallStackSize)
	}
	run := &gojaRun{vm: vm, fx: fx, env: env}
	if err := run.install(); err != nil {
		return err
	}

	stop := context.AfterFunc(ctx, func() {
		vm.Interrupt(ctx.Err())
	})
	defer stop()

	_, err = vm.RunProgram(prg)
	if run.err != nil {
		return g.wrap(ctx, fx, run.err)
	}
	return g.wrap(ctx, fx, err)
}

func (r *gojaRun) install() error {
	vm, env := r.vm, r.env
	log := env.Log()

	printFn := func(call goja.FunctionCall) goja.Value {
		values := make([]any, len(call.Arguments))
		for i, arg := range call.Arguments {
			values[i] = arg.String()
		}
		env.Hooks.Print(callerLine(vm), values...)
		return goja.Undefined()
	}

	assertType := func(call goja.FunctionCall) goja.Value {
		env.Hooks.AssertType(call.Argument(0).Export(), call.Argument(1).String())
		return goja.Undefined()
	}

	schedule := func(goja.FunctionCall) goja.Value {
		seq := env.Queue.Clock().Next()
		log.Debug("queueJob", "fixture", r.fx.Name, "seq", seq)
		return vm.ToValue(seq)
	}
	start := func(call goja.FunctionCall) goja.Value {
		if r.err != nil {
			return vm.ToValue(false)
		}
		if err := env.Queue.Admit(); err != nil {
			r.abort(err)
			return vm.ToValue(false)
		}
		log.Debug("job", "seq", call.Argument(0).ToInteger(), "label", "queueJob")
		return vm.ToValue(true)
	}
	fail := func(call goja.FunctionCall) goja.Value {
		r.abort(&jobs.JobError{
			Seq:   call.Argument(0).ToInteger(),
			Label: "queueJob",
			Err:   &UncaughtError{Fixture: r.fx.Name, Message: call.Argument(1).String()},
		})
		return goja.Undefined()
	}

	factoryValue, err := vm.RunString(queueJobSource)
	if err != nil {
		return fmt.Errorf("install queueJob: %w", err)
	}
	factory, ok := goja.AssertFunction(factoryValue)
	if !ok {
		return fmt.Errorf("install queueJob: factory is not a function")
	}
	queueJob, err := factory(goja.Undefined(), vm.ToValue(schedule), vm.ToValue(start), vm.ToValue(fail))
	if err != nil {
		return fmt.Errorf("install queueJob: %w", err)
	}

	for name, fn := range map[string]any{
		fixture.HookPrint:      printFn,
		fixture.HookAssertType: assertType,
		"queueJob":             queueJob,
	} {
		if err := vm.Set(name, fn); err != nil {
			return fmt.Errorf("install %s: %w", name, err)
		}
	}
	return nil
}

// abort records the first job failure and stops the runtime so no further
// script runs.
func (r *gojaRun) abort(err error) {
	if r.err != nil {
		return
	}
	r.err = err
	r.vm.Interrupt(err)
}

// callerLine returns the source line of the innermost script frame.
func callerLine(vm *goja.Runtime) int {
	for _, frame := range vm.CaptureCallStack(4, nil) {
		if line := frame.Position().Line; line > 0 {
			return line
		}
	}
	return 0
}

func (g *Goja) wrap(ctx context.Context, fx *fixture.Fixture, err error) error {
	if err == nil {
		return nil
	}
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s: interrupted: %w", fx.Name, ctxErr)
		}
		return fmt.Errorf("%s: interrupted: %v", fx.Name, interrupted.Value())
	}
	var ex *goja.Exception
	if errors.As(err, &ex) {
		return &UncaughtError{Fixture: fx.Name, Message: ex.Value().String()}
	}
	return err
}
