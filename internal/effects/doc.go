// Package effects executes the continuing effects requested by the decision
// core: one HTTP round trip per Http effect and one storage operation per
// KeyValue effect.
//
// Executors never return transport or storage failures as Go errors. Those
// become error results that are delivered to the core like any other
// response. The error return is reserved for faults inside the executor
// itself.
package effects
