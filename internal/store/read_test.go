package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alasdair-cooper/watch-history/internal/ir"
)

func seedFlows(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	entries := []ir.JournalEntry{
		// Appended out of order on purpose.
		createTestEntry(t, "flow-b", 5, ir.JournalEvent, 0, []byte("b-event")),
		createTestEntry(t, "flow-a", 3, ir.JournalResponse, 1, []byte("a-response")),
		createTestEntry(t, "flow-a", 1, ir.JournalEvent, 0, []byte("a-event")),
		createTestEntry(t, "flow-a", 2, ir.JournalRequests, 0, []byte("a-requests")),
		createTestEntry(t, "flow-a", 4, ir.JournalRequests, 0, []byte("a-requests-2")),
	}
	for _, e := range entries {
		require.NoError(t, s.Append(ctx, e))
	}
}

func TestReadFlow_OrderedBySeq(t *testing.T) {
	s := createTestStore(t)
	seedFlows(t, s)

	entries, err := s.ReadFlow(context.Background(), "flow-a")
	require.NoError(t, err)
	require.Len(t, entries, 4)

	for i, e := range entries {
		assert.Equal(t, int64(i+1), e.Seq)
		assert.Equal(t, "flow-a", e.FlowToken)
	}
	assert.Equal(t, ir.JournalResponse, entries[2].Kind)
	assert.Equal(t, uint32(1), entries[2].RequestID)
	assert.Equal(t, []byte("a-response"), entries[2].Payload)
}

func TestReadFlow_IDsRoundTrip(t *testing.T) {
	s := createTestStore(t)
	seedFlows(t, s)

	entries, err := s.ReadFlow(context.Background(), "flow-b")
	require.NoError(t, err)
	require.Len(t, entries, 1)

	want, err := ir.JournalEntryID("flow-b", 5, ir.JournalEvent, 0, []byte("b-event"))
	require.NoError(t, err)
	assert.Equal(t, want, entries[0].ID)
}

func TestReadFlow_Unknown(t *testing.T) {
	s := createTestStore(t)

	entries, err := s.ReadFlow(context.Background(), "missing")
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
}

func TestReadFlowTokens(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	tokens, err := s.ReadFlowTokens(ctx)
	require.NoError(t, err)
	assert.Empty(t, tokens)

	seedFlows(t, s)
	tokens, err = s.ReadFlowTokens(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"flow-a", "flow-b"}, tokens)
}

func TestMaxSeq(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	seq, err := s.MaxSeq(ctx)
	require.NoError(t, err)
	assert.Zero(t, seq)

	seedFlows(t, s)
	seq, err = s.MaxSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), seq)
}

func TestReadFlow_SchemaVersionMismatch(t *testing.T) {
	s := createTestStore(t)
	seedFlows(t, s)

	_, err := s.db.Exec("UPDATE journal SET schema_version = 99 WHERE flow_token = 'flow-b'")
	require.NoError(t, err)

	_, err = s.ReadFlow(context.Background(), "flow-b")
	assert.ErrorContains(t, err, "schema version 99")
}
