// Package store provides SQLite-backed durable storage for run traces.
//
// The store is an append-only log with two tables:
//   - invocations: one row per Runner.Run call, written before middleware runs
//   - completions: one row per finished run, with outcome and failing phase
//
// All ordering uses the seq column (logical clock), never timestamps, and
// every query breaks seq ties by id COLLATE BINARY so results are identical
// across reads.
//
// Writes are idempotent: re-recording an existing ID is a no-op, and an
// invocation can have at most one completion.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
