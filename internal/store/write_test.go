package store

import (
	"bytes"
	"context"
	"testing"

	"github.com/alasdair-cooper/watch-history/internal/ir"
)

func TestAppend_Basic(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	e := createTestEntry(t, "flow-abc", 1, ir.JournalEvent, 0, []byte{0, 0, 0, 0})
	if err := s.Append(ctx, e); err != nil {
		t.Fatalf("Append() failed: %v", err)
	}

	var (
		flow, kind string
		seq        int64
		payload    []byte
		version    int
	)
	err := s.db.QueryRow(`
		SELECT flow_token, seq, kind, payload, schema_version
		FROM journal WHERE id = ?
	`, e.ID).Scan(&flow, &seq, &kind, &payload, &version)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if flow != "flow-abc" || seq != 1 || kind != "event" {
		t.Errorf("row = (%q, %d, %q), want (flow-abc, 1, event)", flow, seq, kind)
	}
	if !bytes.Equal(payload, e.Payload) {
		t.Errorf("payload = %x, want %x", payload, e.Payload)
	}
	if version != ir.SchemaVersion {
		t.Errorf("schema_version = %d, want %d", version, ir.SchemaVersion)
	}
}

func TestAppend_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	e := createTestEntry(t, "flow-abc", 1, ir.JournalEvent, 0, []byte("x"))
	for i := 0; i < 3; i++ {
		if err := s.Append(ctx, e); err != nil {
			t.Fatalf("Append() #%d failed: %v", i, err)
		}
	}

	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM journal").Scan(&count); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}

func TestAppend_SlotConflict(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if err := s.Append(ctx, createTestEntry(t, "flow-abc", 1, ir.JournalEvent, 0, []byte("a"))); err != nil {
		t.Fatalf("Append() failed: %v", err)
	}
	err := s.Append(ctx, createTestEntry(t, "flow-abc", 1, ir.JournalEvent, 0, []byte("b")))
	if err == nil {
		t.Error("expected error for a second entry at the same seq")
	}
}

func TestAppend_Invalid(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		entry ir.JournalEntry
	}{
		{"bad kind", ir.JournalEntry{ID: "x", FlowToken: "f", Seq: 1, Kind: "completion"}},
		{"missing id", ir.JournalEntry{FlowToken: "f", Seq: 1, Kind: ir.JournalEvent}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.Append(ctx, tt.entry); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestAppend_NilPayload(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	e := createTestEntry(t, "flow-abc", 1, ir.JournalRequests, 0, nil)
	if err := s.Append(ctx, e); err != nil {
		t.Fatalf("Append() failed: %v", err)
	}
	entries, err := s.ReadFlow(ctx, "flow-abc")
	if err != nil {
		t.Fatalf("ReadFlow() failed: %v", err)
	}
	if len(entries) != 1 || len(entries[0].Payload) != 0 {
		t.Errorf("entries = %+v, want one empty payload", entries)
	}
}

func TestAppend_Canceled(t *testing.T) {
	s := createTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.Append(ctx, createTestEntry(t, "f", 1, ir.JournalEvent, 0, nil)); err == nil {
		t.Error("expected error for canceled context")
	}
}
