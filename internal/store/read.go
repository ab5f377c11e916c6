package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/alasdair-cooper/watch-history/internal/ir"
)

// ReadFlow returns every entry of a flow ordered by seq ASC, id ASC.
// Returns an empty slice (not nil) for an unknown flow token.
func (s *Store) ReadFlow(ctx context.Context, flowToken string) ([]ir.JournalEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, flow_token, seq, kind, request_id, payload, schema_version
		FROM journal
		WHERE flow_token = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, flowToken)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	entries := []ir.JournalEntry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal: %w", err)
	}
	return entries, nil
}

// ReadFlowTokens returns every journalled flow token in the order the flows
// started.
func (s *Store) ReadFlowTokens(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT flow_token
		FROM journal
		GROUP BY flow_token
		ORDER BY MIN(seq) ASC, flow_token COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query flow tokens: %w", err)
	}
	defer rows.Close()

	tokens := []string{}
	for rows.Next() {
		var tok string
		if err := rows.Scan(&tok); err != nil {
			return nil, fmt.Errorf("scan flow token: %w", err)
		}
		tokens = append(tokens, tok)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate flow tokens: %w", err)
	}
	return tokens, nil
}

// MaxSeq returns the highest seq in the journal, or 0 when it is empty. The
// engine resumes its logical clock from here.
func (s *Store) MaxSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM journal`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("query max seq: %w", err)
	}
	return seq.Int64, nil
}

func scanEntry(rows *sql.Rows) (ir.JournalEntry, error) {
	var (
		e       ir.JournalEntry
		kind    string
		reqID   int64
		version int
	)
	if err := rows.Scan(&e.ID, &e.FlowToken, &e.Seq, &kind, &reqID, &e.Payload, &version); err != nil {
		return ir.JournalEntry{}, fmt.Errorf("scan journal entry: %w", err)
	}
	if version != ir.SchemaVersion {
		return ir.JournalEntry{}, fmt.Errorf("journal entry %s has schema version %d, want %d", e.ID, version, ir.SchemaVersion)
	}
	e.Kind = ir.JournalKind(kind)
	e.RequestID = uint32(reqID)
	return e, nil
}
