package engine

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	"github.com/alasdair-cooper/watch-history/internal/core"
	"github.com/alasdair-cooper/watch-history/internal/ir"
)

// Divergence is one point where a replayed core answered differently from
// the journal.
type Divergence struct {
	Seq       int64          `json:"seq"`
	Kind      ir.JournalKind `json:"kind"`
	RequestID uint32         `json:"request_id,omitempty"`
	Message   string         `json:"message"`
}

// ReplayResult summarizes a replay.
type ReplayResult struct {
	FlowToken   string       `json:"flow_token"`
	Calls       int          `json:"calls"`
	Divergences []Divergence `json:"divergences"`
}

// Deterministic reports whether the replay matched the journal.
func (r ReplayResult) Deterministic() bool {
	return len(r.Divergences) == 0
}

// Replay re-feeds one journalled flow into c, which should be a fresh core
// built from the same script, and compares every returned batch with the
// recorded one. Entries are processed in seq order.
//
// Replay feeds payloads exactly as recorded; it never executes effects. The
// returned error is for malformed journals and context cancellation.
// Core disagreements are reported as divergences.
func Replay(ctx context.Context, c core.Core, entries []ir.JournalEntry) (ReplayResult, error) {
	if len(entries) == 0 {
		return ReplayResult{Divergences: []Divergence{}}, nil
	}
	sorted := make([]ir.JournalEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Seq < sorted[j].Seq })

	res := ReplayResult{FlowToken: sorted[0].FlowToken, Divergences: []Divergence{}}
	diverge := func(e ir.JournalEntry, format string, args ...any) {
		res.Divergences = append(res.Divergences, Divergence{
			Seq:       e.Seq,
			Kind:      e.Kind,
			RequestID: e.RequestID,
			Message:   fmt.Sprintf(format, args...),
		})
	}

	for i := 0; i < len(sorted); i++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		e := sorted[i]
		if e.FlowToken != res.FlowToken {
			return res, fmt.Errorf("entry seq %d belongs to flow %s, not %s", e.Seq, e.FlowToken, res.FlowToken)
		}

		var (
			got []byte
			err error
		)
		switch e.Kind {
		case ir.JournalEvent:
			got, err = c.ProcessEvent(ctx, e.Payload)
		case ir.JournalResponse:
			got, err = c.HandleResponse(ctx, e.RequestID, e.Payload)
		case ir.JournalRequests:
			return res, fmt.Errorf("entry seq %d: request batch without a preceding core call", e.Seq)
		default:
			return res, fmt.Errorf("entry seq %d: invalid kind %q", e.Seq, e.Kind)
		}
		res.Calls++

		// A recorded call followed by its batch succeeded; a call with no
		// batch after it failed when recorded.
		var want *ir.JournalEntry
		if i+1 < len(sorted) && sorted[i+1].Kind == ir.JournalRequests {
			want = &sorted[i+1]
			i++
		}

		switch {
		case want == nil && err == nil:
			diverge(e, "recorded call failed but replay returned a batch")
		case want != nil && err != nil:
			diverge(e, "replay failed: %v", err)
		case want != nil && !bytes.Equal(want.Payload, got):
			diverge(*want, "request batch differs (%d recorded bytes, %d replayed)", len(want.Payload), len(got))
		}
	}
	return res, nil
}
