package ir

import "fmt"

// JournalKind names what a journal entry recorded.
type JournalKind string

const (
	// JournalEvent is a serialized Event handed to ProcessEvent.
	JournalEvent JournalKind = "event"
	// JournalRequests is a serialized request batch returned by the core.
	JournalRequests JournalKind = "requests"
	// JournalResponse is a serialized Response handed to HandleResponse.
	JournalResponse JournalKind = "response"
)

// Valid reports whether k is a known kind.
func (k JournalKind) Valid() bool {
	switch k {
	case JournalEvent, JournalRequests, JournalResponse:
		return true
	}
	return false
}

// JournalEntry is one wire payload exchanged with the core during a flow.
// Entries are ordered within a flow by Seq, a logical clock value.
// Payload bytes are exactly what crossed the core boundary, so a journal
// can be replayed into a fresh core.
type JournalEntry struct {
	ID        string      `json:"id"`
	FlowToken string      `json:"flow_token"`
	Seq       int64       `json:"seq"`
	Kind      JournalKind `json:"kind"`
	RequestID uint32      `json:"request_id,omitempty"` // response entries
	Payload   []byte      `json:"payload"`
}

// NewJournalEntry builds an entry with its content-addressed ID filled in.
func NewJournalEntry(flowToken string, seq int64, kind JournalKind, requestID uint32, payload []byte) (JournalEntry, error) {
	if !kind.Valid() {
		return JournalEntry{}, fmt.Errorf("invalid journal kind %q", kind)
	}
	id, err := JournalEntryID(flowToken, seq, kind, requestID, payload)
	if err != nil {
		return JournalEntry{}, err
	}
	return JournalEntry{
		ID:        id,
		FlowToken: flowToken,
		Seq:       seq,
		Kind:      kind,
		RequestID: requestID,
		Payload:   payload,
	}, nil
}
