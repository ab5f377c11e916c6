// Package ir provides the shared domain types of the watch-history shell.
//
// This package contains type definitions only. All other internal packages
// import ir; ir imports nothing internal. This keeps the effect taxonomy the
// foundational layer with no circular dependencies.
//
// Key design constraints:
//   - The Effect and KeyValueOperation unions are closed; wire tags are fixed
//     by declaration order and shared verbatim with the decision core
//   - Header sequences are ordered slices, never maps (duplicates preserved)
//   - Journal ordering uses logical sequence numbers only, never wall-clock time
//   - ViewModel values are immutable once published
package ir
