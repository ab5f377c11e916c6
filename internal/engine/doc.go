// Package engine implements the shell's dispatch loop.
//
// The engine hands an event to the decision core and then drives the
// returned request batch to completion: Render and Redirect refresh the view
// cell (Redirect also publishes OpenUrl), Http and KeyValue run through the
// executors and their results are handed back to the core, whose follow-up
// batches are processed the same way. Update returns once no request of the
// flow is outstanding.
//
// Every Update opens a flow with a correlation token. The token tags logs,
// tracing spans and journal entries.
//
// Concurrency:
//   - core calls are serialized by one mutex, so the core is never reentered
//   - by default each continuing request is resolved in its own goroutine,
//     so distinct ids may complete out of order
//   - WithSequential resolves continuing requests one at a time, depth first,
//     using an explicit stack; traces are then deterministic
//
// Journal entries are appended under the core mutex and stamped from a
// logical Clock, so journal order equals core-call order. Timestamps are
// never used for ordering.
package engine
