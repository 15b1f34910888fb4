package jobs

import (
	"fmt"
	"sync"
)

// State is the settlement state of a Deferred.
type State int

const (
	Pending State = iota
	Fulfilled
	Rejected
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Fulfilled:
		return "fulfilled"
	case Rejected:
		return "rejected"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// OnFulfilled handles a fulfilled value. Returning an error rejects the
// derived Deferred.
type OnFulfilled func(value any) (any, error)

// OnRejected handles a rejection. Returning a nil error recovers.
type OnRejected func(reason error) (any, error)

type reaction struct {
	onFulfilled OnFulfilled
	onRejected  OnRejected
	next        *Deferred
}

// Deferred is a settle-once result whose reactions run as jobs on a Queue.
//
// Reactions registered with Then are enqueued in registration order when
// the Deferred settles, or immediately if it already has. They never run
// synchronously inside Resolve, Reject or Then.
type Deferred struct {
	q *Queue

	mu        sync.Mutex
	state     State
	locked    bool // resolved with another Deferred, waiting on it
	value     any
	reason    error
	reactions []reaction
	handled   bool
}

// NewDeferred creates a pending Deferred bound to q.
func NewDeferred(q *Queue) *Deferred {
	return &Deferred{q: q}
}

// Resolved returns a Deferred already fulfilled with v.
func Resolved(q *Queue, v any) *Deferred {
	d := NewDeferred(q)
	d.Resolve(v)
	return d
}

// RejectedWith returns a Deferred already rejected with err.
func RejectedWith(q *Queue, err error) *Deferred {
	d := NewDeferred(q)
	d.Reject(err)
	return d
}

// Resolve fulfills d with v. If v is itself a *Deferred, d follows it and
// settles when v does. Reports whether this call decided d's outcome.
func (d *Deferred) Resolve(v any) bool {
	d.mu.Lock()
	if d.state != Pending || d.locked {
		d.mu.Unlock()
		return false
	}
	if inner, ok := v.(*Deferred); ok {
		if inner == d {
			d.mu.Unlock()
			return d.Reject(fmt.Errorf("TypeError: chaining cycle detected"))
		}
		d.locked = true
		d.mu.Unlock()
		inner.Then(func(iv any) (any, error) {
			d.settle(Fulfilled, iv, nil)
			return nil, nil
		}, func(err error) (any, error) {
			d.settle(Rejected, nil, err)
			return nil, nil
		})
		return true
	}
	d.mu.Unlock()
	return d.settle(Fulfilled, v, nil)
}

// Reject rejects d with err. Reports whether this call decided d's outcome.
func (d *Deferred) Reject(err error) bool {
	d.mu.Lock()
	locked := d.locked
	d.mu.Unlock()
	if locked {
		return false
	}
	return d.settle(Rejected, nil, err)
}

func (d *Deferred) settle(state State, v any, err error) bool {
	d.mu.Lock()
	if d.state != Pending {
		d.mu.Unlock()
		return false
	}
	d.state = state
	d.value = v
	d.reason = err
	reactions := d.reactions
	d.reactions = nil
	d.mu.Unlock()

	for _, r := range reactions {
		d.schedule(r)
	}
	return true
}

// Then registers reactions and returns the derived Deferred. Either handler
// may be nil, in which case the outcome passes through unchanged.
func (d *Deferred) Then(onFulfilled OnFulfilled, onRejected OnRejected) *Deferred {
	r := reaction{onFulfilled: onFulfilled, onRejected: onRejected, next: NewDeferred(d.q)}

	d.mu.Lock()
	d.handled = true
	if d.state == Pending {
		d.reactions = append(d.reactions, r)
		d.mu.Unlock()
		return r.next
	}
	d.mu.Unlock()

	d.schedule(r)
	return r.next
}

// Catch is Then(nil, onRejected).
func (d *Deferred) Catch(onRejected OnRejected) *Deferred {
	return d.Then(nil, onRejected)
}

func (d *Deferred) schedule(r reaction) {
	// A closed queue drops the reaction; the run is already over.
	_, _ = d.q.Enqueue("reaction", func() error {
		d.mu.Lock()
		state, value, reason := d.state, d.value, d.reason
		d.mu.Unlock()

		switch state {
		case Fulfilled:
			if r.onFulfilled == nil {
				r.next.Resolve(value)
				return nil
			}
			out, err := r.onFulfilled(value)
			if err != nil {
				r.next.Reject(err)
				return nil
			}
			r.next.Resolve(out)
		case Rejected:
			if r.onRejected == nil {
				r.next.Reject(reason)
				return nil
			}
			out, err := r.onRejected(reason)
			if err != nil {
				r.next.Reject(err)
				return nil
			}
			r.next.Resolve(out)
		}
		return nil
	})
}

// State returns the current settlement state.
func (d *Deferred) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Value returns the fulfilled value, or nil.
func (d *Deferred) Value() any {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.value
}

// Err returns the rejection reason, or nil.
func (d *Deferred) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reason
}

// Unhandled reports a rejection with no reactions registered.
func (d *Deferred) Unhandled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state == Rejected && !d.handled
}
