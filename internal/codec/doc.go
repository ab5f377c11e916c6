// Package codec implements the binary envelope exchanged with the decision
// core.
//
// Layout rules:
//   - integers are little-endian fixed width; bool is one byte (0 or 1)
//   - strings and byte sequences are a u64 length followed by the bytes
//   - sequences are a u64 count followed by the elements
//   - options are one tag byte (0 none, 1 some) followed by the value
//   - unions are a u32 variant tag followed by the fields in declaration order
//
// Effect payloads in request batches, and result payloads in responses, are
// additionally length-prefixed. A reader that meets an effect kind or
// key-value operation it does not know can skip it and report it upward
// rather than lose its place in the stream.
//
// Trailing bytes after a top-level value are a schema error.
package codec
