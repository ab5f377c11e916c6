// Package core defines the decision core contract and the adapters that
// satisfy it.
//
// A Core is opaque: it receives serialized events and responses and returns
// serialized request batches. Callers must serialize access; a Core is never
// reentered.
package core

import "context"

// Core is the decision core contract.
type Core interface {
	// ProcessEvent consumes a serialized event and returns a serialized
	// request batch.
	ProcessEvent(ctx context.Context, event []byte) ([]byte, error)
	// HandleResponse resumes the logic waiting on request id and returns a
	// serialized request batch.
	HandleResponse(ctx context.Context, id uint32, response []byte) ([]byte, error)
	// View returns the serialized current view snapshot.
	View(ctx context.Context) ([]byte, error)
}
