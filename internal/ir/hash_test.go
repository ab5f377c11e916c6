package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJournalEntryIDDeterminism(t *testing.T) {
	id1, err := JournalEntryID("flow-1", 3, JournalResponse, 7, []byte{1, 2})
	require.NoError(t, err)
	id2, err := JournalEntryID("flow-1", 3, JournalResponse, 7, []byte{1, 2})
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
	assert.Len(t, id1, 64, "SHA-256 hex is 64 characters")
}

func TestJournalEntryIDChangesWithInput(t *testing.T) {
	base := MustJournalEntryID("flow-1", 1, JournalEvent, 0, []byte{0})

	assert.NotEqual(t, base, MustJournalEntryID("flow-2", 1, JournalEvent, 0, []byte{0}))
	assert.NotEqual(t, base, MustJournalEntryID("flow-1", 2, JournalEvent, 0, []byte{0}))
	assert.NotEqual(t, base, MustJournalEntryID("flow-1", 1, JournalRequests, 0, []byte{0}))
	assert.NotEqual(t, base, MustJournalEntryID("flow-1", 1, JournalEvent, 1, []byte{0}))
	assert.NotEqual(t, base, MustJournalEntryID("flow-1", 1, JournalEvent, 0, []byte{1}))
}

func TestHashWithDomainSeparation(t *testing.T) {
	data := []byte("payload")
	assert.NotEqual(t, hashWithDomain("a", data), hashWithDomain("b", data))
	// "ab"+0x00+"c" must differ from "a"+0x00+"bc".
	assert.NotEqual(t, hashWithDomain("ab", []byte("c")), hashWithDomain("a", []byte("bc")))
}

func TestNewJournalEntry(t *testing.T) {
	e, err := NewJournalEntry("flow-1", 4, JournalRequests, 0, []byte{9})
	require.NoError(t, err)
	assert.Equal(t, MustJournalEntryID("flow-1", 4, JournalRequests, 0, []byte{9}), e.ID)
	assert.Equal(t, int64(4), e.Seq)

	_, err = NewJournalEntry("flow-1", 4, JournalKind("bogus"), 0, nil)
	assert.Error(t, err)
}
