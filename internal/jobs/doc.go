// Package jobs is the explicit deferred-task queue a fixture runs against.
//
// Deferred continuations (promise reactions, async generator resumptions,
// queueJob callbacks) are never scheduled on an implicit host event loop.
// They are appended to a Queue, and the harness calls Drain once the
// fixture's synchronous code has returned. An engine that owns a job queue
// (goja runs promise reactions on one) keeps every continuation there
// instead, in a single FIFO, and counts each job with Queue.Admit so the
// same limit applies.
//
// ORDERING:
//
// Jobs run strictly after the synchronous code that scheduled them, in FIFO
// order of scheduling. Jobs enqueued while draining run in the same Drain
// call, after everything already queued. Every job is stamped with a
// logical sequence number from Clock; wall-clock time is never consulted.
//
// A Queue belongs to exactly one fixture run. Fixtures never share queues.
package jobs
