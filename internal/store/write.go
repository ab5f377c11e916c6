package store

import (
	"context"
	"fmt"

	"github.com/alasdair-cooper/watch-history/internal/ir"
)

// Append inserts a journal entry. Writing the same entry twice is a no-op
// (ON CONFLICT(id) DO NOTHING); a different entry at an occupied
// (flow_token, seq) slot is an error.
func (s *Store) Append(ctx context.Context, e ir.JournalEntry) error {
	if !e.Kind.Valid() {
		return fmt.Errorf("append journal entry: invalid kind %q", e.Kind)
	}
	if e.ID == "" {
		return fmt.Errorf("append journal entry: missing id")
	}
	payload := e.Payload
	if payload == nil {
		payload = []byte{}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO journal
		(id, flow_token, seq, kind, request_id, payload, schema_version)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		e.ID,
		e.FlowToken,
		e.Seq,
		string(e.Kind),
		e.RequestID,
		payload,
		ir.SchemaVersion,
	)
	if err != nil {
		return fmt.Errorf("append journal entry: %w", err)
	}
	return nil
}
