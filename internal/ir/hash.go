package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainJournal is the domain prefix for journal entry identity.
// The version suffix allows the algorithm to change later.
const DomainJournal = "watch/journal/v1"

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// JournalEntryID computes the content-addressed ID of a journal entry.
// The ID is stable across restarts and replays given the same inputs.
func JournalEntryID(flowToken string, seq int64, kind JournalKind, requestID uint32, payload []byte) (string, error) {
	obj := map[string]any{
		"flow_token": flowToken,
		"seq":        seq,
		"kind":       string(kind),
		"request_id": requestID,
		"payload":    hex.EncodeToString(payload),
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("JournalEntryID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainJournal, canonical), nil
}

// MustJournalEntryID is like JournalEntryID but panics on error.
// Use only in tests.
func MustJournalEntryID(flowToken string, seq int64, kind JournalKind, requestID uint32, payload []byte) string {
	id, err := JournalEntryID(flowToken, seq, kind, requestID, payload)
	if err != nil {
		panic(err)
	}
	return id
}
