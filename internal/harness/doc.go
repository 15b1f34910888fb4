// Package harness runs fixtures against a type oracle and a runtime
// evaluator and reports per-assertion results.
//
// # Execution
//
// Run handles one fixture in up to three phases:
//
//  1. Load checks. Syntax errors and malformed AssertType calls are
//     HARNESS_FATAL, since the fixture cannot be interpreted.
//  2. Static phase (mode static or mixed). The oracle renders a type for
//     every AssertType site. Each site becomes an AssertionRecord that
//     passes iff the rendered type equals the expected literal exactly.
//  3. Runtime phase (mode runtime or mixed). The evaluator runs the
//     fixture with Hooks injected and a fresh jobs.Queue. The harness then
//     drains the queue and compares the captured OutputRecords against the
//     golden file when one exists, otherwise against the inline
//     expectations.
//
// # Inline expectations
//
// A trailing "// text" comment on the line of a print call is the expected
// output of that call. Outputs carry the source line they were printed
// from, so the check holds regardless of when a deferred callback runs.
// Evaluators that cannot attribute lines fall back to an in-order
// subsequence match of the expected texts.
//
// # Determinism
//
// Records are content addressed (ir.AssertionID, ir.OutputID) and folded
// into Result.Digest. Re-running an unchanged fixture against an unchanged
// engine yields the same digest.
//
// # Failures
//
// Every mismatch is collected on the Result; one failing assertion never
// stops the others, and one fixture never blocks another in RunSuite.
package harness
