// Package store provides SQLite-backed durable storage for fixture runs.
//
// The store is an append-only run log with:
//   - Runs: one row per suite execution, keyed by a UUIDv7 run ID
//   - Fixture results: pass/fail, mode and digest per fixture per run
//   - Assertion records: checked AssertType sites
//   - Output records: captured print output in execution order
//   - Diagnostics and failures: everything the harness reported
//
// # Ordering
//
// Records are ordered by their logical seq, never by wall time. All record
// queries end in ORDER BY seq ASC, id COLLATE BINARY ASC so reads are
// identical across replays. The wall-clock start time on runs is display
// metadata only.
//
// # Idempotency
//
// Record IDs are content-addressed (see internal/ir). Writing the same
// fixture result twice into the same run is a no-op.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
