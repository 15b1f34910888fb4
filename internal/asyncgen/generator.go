// Package asyncgen drives async generators on an explicit jobs.Queue.
//
// A generator body is ordinary Go code running as a coroutine: it runs only
// while the driver waits for it, and it suspends at every Yield. Next, Throw
// and Return each return a *jobs.Deferred resolving to a Result.
//
// Scheduling follows the async generator resumption rules:
//
//   - Requests made while the body is running or awaiting are queued.
//   - A yield awaits one job tick before resolving the front request.
//     Queued requests then resume the body inside that same job.
//   - Throw or Return before the first Next completes the generator
//     without running the body.
//   - Once completed, Next resolves {undefined, true}, Return(v) resolves
//     {v, true} and Throw(err) rejects with err.
package asyncgen

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/roach88/fixharness/internal/jobs"
)

// Undefined is the value of a finished generator's Result.
type Undefined struct{}

func (Undefined) String() string { return "undefined" }

// Result is the settled value of a generator request: { value, done }.
type Result struct {
	Value any
	Done  bool
}

// Body is a generator function body.
type Body func(y *Yielder) (any, error)

// ReturnSignal is returned by Yield when the driver calls Return while the
// body is suspended. A body that returns it (or an error wrapping it)
// completes with { Value, true }.
type ReturnSignal struct {
	Value any
}

func (r *ReturnSignal) Error() string {
	return fmt.Sprintf("generator return(%v)", r.Value)
}

// IsReturn reports whether err asks the body to return.
func IsReturn(err error) bool {
	var rs *ReturnSignal
	return errors.As(err, &rs)
}

type state int

const (
	suspendedStart state = iota
	suspendedYield
	executing
	awaiting
	completed
)

type kind int

const (
	kindNext kind = iota
	kindThrow
	kindReturn
)

type request struct {
	kind  kind
	value any
	err   error
	d     *jobs.Deferred
}

type event struct {
	yielded bool
	value   any
	err     error
}

// Generator is one async generator object. It is driven from a single
// goroutine (the one running the fixture and draining its queue) and is
// not safe for concurrent use.
type Generator struct {
	q     *jobs.Queue
	body  Body
	state state
	reqs  []request

	resume chan request
	events chan event
	done   chan struct{}
	closed bool
}

// Yielder is the body's handle on its generator.
type Yielder struct {
	g *Generator
}

// New creates a generator in the suspended-start state. The body does not
// run until the first Next. The generator is closed with q, so a body left
// suspended when the fixture run ends does not outlive it.
func New(q *jobs.Queue, body Body) *Generator {
	g := &Generator{
		q:      q,
		body:   body,
		resume: make(chan request),
		events: make(chan event),
		done:   make(chan struct{}),
	}
	q.OnClose(g.Close)
	return g
}

// Next requests the next value, sending v in as the result of the pending
// Yield.
func (g *Generator) Next(v any) *jobs.Deferred {
	return g.enqueue(request{kind: kindNext, value: v})
}

// Throw raises err at the pending Yield.
func (g *Generator) Throw(err error) *jobs.Deferred {
	return g.enqueue(request{kind: kindThrow, err: err})
}

// Return asks the body to finish with v.
func (g *Generator) Return(v any) *jobs.Deferred {
	return g.enqueue(request{kind: kindReturn, value: v})
}

// Done reports whether the generator has completed.
func (g *Generator) Done() bool {
	return g.state == completed
}

// Close abandons a suspended body so its goroutine exits. Deferred cleanup
// in the body runs; the body itself does not resume.
func (g *Generator) Close() {
	if g.closed {
		return
	}
	g.closed = true
	close(g.done)
}

func (g *Generator) enqueue(r request) *jobs.Deferred {
	r.d = jobs.NewDeferred(g.q)
	g.reqs = append(g.reqs, r)
	if g.state != executing && g.state != awaiting {
		g.resumeNext()
	}
	return r.d
}

func (g *Generator) pop() request {
	r := g.reqs[0]
	g.reqs[0] = request{}
	g.reqs = g.reqs[1:]
	return r
}

// resumeNext serves queued requests until one suspends the body or the
// queue is empty.
func (g *Generator) resumeNext() {
	for len(g.reqs) > 0 {
		r := g.reqs[0]

		if g.state == suspendedStart && r.kind != kindNext {
			g.finish()
		}
		if g.state == completed {
			g.pop()
			switch r.kind {
			case kindNext:
				r.d.Resolve(Result{Value: Undefined{}, Done: true})
			case kindReturn:
				r.d.Resolve(Result{Value: r.value, Done: true})
			case kindThrow:
				r.d.Reject(r.err)
			}
			continue
		}
		if g.closed {
			g.pop()
			r.d.Reject(errors.New("generator closed"))
			continue
		}

		starting := g.state == suspendedStart
		g.state = executing
		var ev event
		if starting {
			go g.run()
		} else {
			g.resume <- r
		}
		ev = <-g.events

		if ev.yielded {
			g.state = awaiting
			value := ev.value
			_, _ = g.q.Enqueue("asyncgen yield", func() error {
				g.state = suspendedYield
				req := g.pop()
				req.d.Resolve(Result{Value: value, Done: false})
				g.resumeNext()
				return nil
			})
			return
		}

		g.finish()
		req := g.pop()
		var rs *ReturnSignal
		switch {
		case ev.err == nil:
			req.d.Resolve(Result{Value: orUndefined(ev.value), Done: true})
		case errors.As(ev.err, &rs):
			req.d.Resolve(Result{Value: orUndefined(rs.Value), Done: true})
		default:
			req.d.Reject(ev.err)
		}
	}
}

func (g *Generator) finish() {
	g.state = completed
}

func (g *Generator) run() {
	var ev event
	defer func() {
		if p := recover(); p != nil {
			ev = event{err: fmt.Errorf("generator body panicked: %v", p)}
		}
		select {
		case g.events <- ev:
		case <-g.done:
		}
	}()
	v, err := g.body(&Yielder{g: g})
	ev = event{value: v, err: err}
}

// Yield suspends the body with v. It returns the value passed to the next
// Next call, the error passed to Throw, or a *ReturnSignal for Return.
func (y *Yielder) Yield(v any) (any, error) {
	g := y.g
	select {
	case g.events <- event{yielded: true, value: v}:
	case <-g.done:
		runtime.Goexit()
	}

	var r request
	select {
	case r = <-g.resume:
	case <-g.done:
		runtime.Goexit()
	}

	switch r.kind {
	case kindThrow:
		return nil, r.err
	case kindReturn:
		return nil, &ReturnSignal{Value: r.value}
	default:
		return r.value, nil
	}
}

func orUndefined(v any) any {
	if v == nil {
		return Undefined{}
	}
	return v
}
