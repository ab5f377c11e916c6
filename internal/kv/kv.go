// Package kv provides the persistent key-value backends behind the storage
// executor.
//
// Every Store operation is individually atomic. There are no multi-key
// transactions.
package kv

import (
	"context"
	"errors"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("kv: store closed")

// Store is a flat byte-keyed map.
type Store interface {
	// Get returns the stored value and true, or nil and false when absent.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set replaces any existing value.
	Set(ctx context.Context, key string, value []byte) error
	// Delete is idempotent.
	Delete(ctx context.Context, key string) error
	// ListKeys returns keys with the given prefix in ascending order.
	ListKeys(ctx context.Context, prefix string) ([]string, error)
	Exists(ctx context.Context, key string) (bool, error)
	Close() error
}

// Open returns an sqlite store for path, or a memory store when path is
// empty or ":memory:".
func Open(path string) (Store, error) {
	if path == "" || path == ":memory:" {
		return NewMemory(), nil
	}
	return OpenSQLite(path)
}
