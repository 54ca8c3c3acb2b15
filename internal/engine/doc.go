// Package engine runs compiled models.
//
// An Engine owns one run of one model: it assigns the run ID, records the
// run in the store, builds the top-level director with every trace recorder
// wired in, iterates it to completion and records the outcome.
//
// ARCHITECTURE:
//
// Single-Writer Run:
// The director iterates in the goroutine that called Run. Trace records are
// written to the store from that goroutine only, in logical sequence order.
// Stop may be called from any goroutine (typically a signal handler) and
// takes effect at the next phase boundary.
//
// Trace Fan-out:
// Every record goes to an in-memory trace (returned in the Result) and, when
// a store is attached, to the run's rows in SQLite. Subsystems share the
// top-level sequence so nested records interleave in one total order.
//
// CRITICAL PATTERNS:
//
// Logical Clock:
// Records are stamped with trace.Sequence, never with wall-clock time.
//
// Deterministic Runs:
// The same model, configuration and run ID produce byte-identical canonical
// traces.
package engine
