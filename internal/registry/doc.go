// Package registry stores hook bindings keyed by the command type they observe.
//
// Bindings are partitioned by Kind (middleware, before, after). For a given
// (command type, kind) pair the stored list is always ordered:
//
//   - Priority descending: higher priority runs first.
//   - Equal priority: the most recently registered binding runs first.
//
// The order is computed once, at registration time. Lookups never re-sort.
//
// # Lifecycle
//
// Default returns the process-wide registry, created on first access. Runners
// receive their registry explicitly (engine.WithRegistry), so tests and the
// scenario harness build isolated instances with New and never touch the
// process-wide one.
//
// Registration is expected to happen once during initialization, before any
// dispatch begins. Clear exists for test isolation and must not run while
// dispatches are in flight.
package registry
