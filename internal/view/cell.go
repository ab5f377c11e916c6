// Package view holds the latest rendered view snapshot.
package view

import (
	"sync"
	"sync/atomic"

	"github.com/alasdair-cooper/watch-history/internal/ir"
)

// Cell is a single-writer, many-reader slot for the current ViewModel.
//
// Readers always see either the old or the new snapshot, never a mix. Load
// never blocks on Store. Stored snapshots must not be mutated afterwards.
type Cell struct {
	current atomic.Pointer[snapshot]

	mu      sync.Mutex
	changed chan struct{}
}

type snapshot struct {
	model   *ir.ViewModel
	version uint64
}

// NewCell returns a cell holding an empty ViewModel at version 0.
func NewCell() *Cell {
	c := &Cell{changed: make(chan struct{})}
	c.current.Store(&snapshot{model: &ir.ViewModel{}})
	return c
}

// Load returns the current snapshot. Never nil.
func (c *Cell) Load() *ir.ViewModel {
	return c.current.Load().model
}

// Version returns how many times the cell has been replaced.
func (c *Cell) Version() uint64 {
	return c.current.Load().version
}

// Store replaces the snapshot and wakes everyone waiting on Changed.
// It returns the new version.
func (c *Cell) Store(v *ir.ViewModel) uint64 {
	if v == nil {
		v = &ir.ViewModel{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	next := &snapshot{model: v, version: c.current.Load().version + 1}
	c.current.Store(next)
	close(c.changed)
	c.changed = make(chan struct{})
	return next.version
}

// Changed returns a channel closed by the next Store.
func (c *Cell) Changed() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.changed
}
