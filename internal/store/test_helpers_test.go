package store

import (
	"path/filepath"
	"testing"

	"github.com/alasdair-cooper/watch-history/internal/ir"
)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "journal.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestEntry builds an entry with its content-addressed id.
func createTestEntry(t *testing.T, flowToken string, seq int64, kind ir.JournalKind, requestID uint32, payload []byte) ir.JournalEntry {
	t.Helper()
	e, err := ir.NewJournalEntry(flowToken, seq, kind, requestID, payload)
	if err != nil {
		t.Fatalf("NewJournalEntry() failed: %v", err)
	}
	return e
}
