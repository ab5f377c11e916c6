package harness

import "github.com/alasdair-cooper/watch-history/internal/ir"

// Trace entry types.
const (
	TraceEvent    = "event"
	TraceRequest  = "request"
	TraceResponse = "response"
)

// TraceEntry is one decoded step of a journalled flow. A request batch
// contributes one entry per request, all sharing the batch's seq.
type TraceEntry struct {
	Type      string `json:"type"`
	Seq       int64  `json:"seq"`
	Event     string `json:"event,omitempty"`
	RequestID uint32 `json:"request_id,omitempty"`
	Effect    string `json:"effect,omitempty"`
	Detail    string `json:"detail,omitempty"`
	Outcome   string `json:"outcome,omitempty"`
}

// Label is the short form used by trace_order, e.g. "event:initial_load",
// "request:key_value" or "response:ok".
func (e TraceEntry) Label() string {
	switch e.Type {
	case TraceEvent:
		return TraceEvent + ":" + e.Event
	case TraceRequest:
		return TraceRequest + ":" + e.Effect
	default:
		return TraceResponse + ":" + e.Outcome
	}
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every event behaved as expected and every assertion held.
	Pass bool `json:"pass"`

	Trace []TraceEntry `json:"trace"`

	// Errors holds expectation and assertion failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	View        *ir.ViewModel   `json:"view"`
	ShellEvents []ir.ShellEvent `json:"shell_events"`

	// Storage is the key-value contents after the last event.
	Storage map[string]string `json:"storage"`
}

// NewResult creates a passing result with empty collections.
func NewResult() *Result {
	return &Result{
		Pass:        true,
		Trace:       []TraceEntry{},
		Errors:      []string{},
		View:        &ir.ViewModel{},
		ShellEvents: []ir.ShellEvent{},
		Storage:     make(map[string]string),
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
