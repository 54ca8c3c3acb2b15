// Package store provides SQLite-backed durable storage for simulation traces.
//
// A run row records the model, its director configuration and the outcome.
// Under it the store keeps, append-only:
//   - Steps: committed continuous steps
//   - Events: breakpoints, emitted events and fireAt requests
//   - Rollbacks: checkpoint restores of embedded directors
//
// # Ordering
//
// All trace ordering uses the logical seq assigned by the director, never
// wall-clock timestamps, so a stored run reads back in exactly the order it
// was recorded. Queries always ORDER BY seq ASC.
//
// Rewriting a record with an existing (run_id, seq) is a no-op, which makes
// recording idempotent.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Run identifiers are UUIDv7 strings from a RunIDGenerator.
package store
