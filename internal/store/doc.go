// Package store provides the SQLite-backed flow journal.
//
// The journal is an append-only log of the wire payloads exchanged with the
// decision core: the event that opened a flow, every request batch the core
// returned and every response handed back to it. Entries are keyed by a
// content hash (see ir.JournalEntryID) and ordered within a flow by seq, a
// logical clock value. Timestamps are never stored, so a journal replays
// identically regardless of wall time.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout=5000
//   - a single connection, which also keeps ":memory:" databases alive
package store
