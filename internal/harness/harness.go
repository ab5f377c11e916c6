package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/alasdair-cooper/watch-history/internal/codec"
	"github.com/alasdair-cooper/watch-history/internal/core"
	"github.com/alasdair-cooper/watch-history/internal/effects"
	"github.com/alasdair-cooper/watch-history/internal/engine"
	"github.com/alasdair-cooper/watch-history/internal/ir"
	"github.com/alasdair-cooper/watch-history/internal/kv"
	"github.com/alasdair-cooper/watch-history/internal/store"
	"github.com/alasdair-cooper/watch-history/internal/testutil"
)

// Run executes a scenario against a fresh engine and returns the result.
//
// Each run gets its own in-memory journal and key-value store. The engine
// runs sequentially with a fixed flow token so the trace is reproducible.
// The error return is for setup failures; expectation and assertion
// failures are reported in the Result.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	script := core.DefaultScript()
	if scenario.Script != "" {
		s, err := core.LoadScript(scenario.Script)
		if err != nil {
			return nil, fmt.Errorf("failed to load script: %w", err)
		}
		script = s
	}

	journal, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory journal: %w", err)
	}
	defer journal.Close()

	kvStore := kv.NewMemory()
	defer kvStore.Close()
	for key, value := range scenario.Storage {
		if err := kvStore.Set(ctx, key, []byte(value)); err != nil {
			return nil, fmt.Errorf("failed to seed storage key %q: %w", key, err)
		}
	}

	transport := testutil.NewStubTransport()
	for _, stub := range scenario.HTTP {
		transport.Stub(stub.Method, stub.URL, stubResponse(stub))
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	flowGen := testutil.NewFixedFlowGenerator(scenario.FlowToken)
	opts := []engine.Option{
		engine.WithJournal(journal),
		engine.WithFlowGenerator(flowGen),
		engine.WithSequential(true),
		engine.WithLogger(logger),
	}
	if scenario.MaxSteps > 0 {
		opts = append(opts, engine.WithMaxSteps(scenario.MaxSteps))
	}
	eng := engine.New(
		core.NewScriptCore(script, core.WithVars(scenario.Vars)),
		effects.NewNetwork(effects.WithTransport(transport), effects.WithNetworkLogger(logger)),
		effects.NewStorage(kvStore, effects.WithStorageLogger(logger)),
		opts...,
	)

	sub := eng.ShellEvents().Subscribe()
	defer sub.Close()

	result := NewResult()
	for i, step := range scenario.Events {
		kind, err := ir.ParseEventKind(step.Event)
		if err != nil {
			return nil, fmt.Errorf("events[%d]: %w", i, err)
		}
		err = eng.Update(ctx, ir.Event{Kind: kind, URL: step.URL})
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		checkAbort(result, i, step, err)
		result.ShellEvents = append(result.ShellEvents, drain(sub.C())...)
	}

	entries, err := journal.ReadFlow(ctx, flowGen.Generate())
	if err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}
	if result.Trace, err = BuildTrace(entries); err != nil {
		return nil, err
	}
	result.View = eng.View().Load()
	if result.Storage, err = snapshotStorage(ctx, kvStore); err != nil {
		return nil, err
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func checkAbort(result *Result, index int, step EventStep, err error) {
	got := engine.CodeOf(err)
	switch {
	case step.Abort == "" && err != nil:
		result.AddError(fmt.Sprintf("events[%d] %s: unexpected error: %v", index, step.Event, err))
	case step.Abort != "" && err == nil:
		result.AddError(fmt.Sprintf("events[%d] %s: expected abort %s, update succeeded", index, step.Event, step.Abort))
	case step.Abort != "" && string(got) != step.Abort:
		result.AddError(fmt.Sprintf("events[%d] %s: expected abort %s, got %v", index, step.Event, step.Abort, err))
	}
}

func stubResponse(stub HTTPStub) testutil.StubResponse {
	switch stub.Error {
	case "timeout":
		return testutil.StubResponse{Err: testutil.ErrStubTimeout}
	case "io":
		return testutil.StubResponse{Err: errors.New("connection refused")}
	}
	header := http.Header{}
	for k, v := range stub.Headers {
		header.Set(k, v)
	}
	return testutil.StubResponse{Status: stub.Status, Headers: header, Body: []byte(stub.Body)}
}

func drain(ch <-chan ir.ShellEvent) []ir.ShellEvent {
	var out []ir.ShellEvent
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

func snapshotStorage(ctx context.Context, s kv.Store) (map[string]string, error) {
	keys, err := s.ListKeys(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to list storage keys: %w", err)
	}
	out := make(map[string]string, len(keys))
	for _, key := range keys {
		value, found, err := s.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("failed to read storage key %q: %w", key, err)
		}
		if found {
			out[key] = string(value)
		}
	}
	return out, nil
}

// BuildTrace decodes journal entries into trace entries, in journal order.
// Empty request batches contribute nothing.
func BuildTrace(entries []ir.JournalEntry) ([]TraceEntry, error) {
	trace := []TraceEntry{}
	for _, e := range entries {
		switch e.Kind {
		case ir.JournalEvent:
			ev, err := codec.DecodeEvent(e.Payload)
			if err != nil {
				return nil, fmt.Errorf("seq %d: %w", e.Seq, err)
			}
			trace = append(trace, TraceEntry{Type: TraceEvent, Seq: e.Seq, Event: ev.Kind.String(), Detail: ev.URL})
		case ir.JournalRequests:
			reqs, err := codec.DecodeRequests(e.Payload)
			if err != nil {
				return nil, fmt.Errorf("seq %d: %w", e.Seq, err)
			}
			for _, r := range reqs {
				trace = append(trace, TraceEntry{
					Type:      TraceRequest,
					Seq:       e.Seq,
					RequestID: r.ID,
					Effect:    r.Effect.Kind.String(),
					Detail:    r.Effect.Describe(),
				})
			}
		case ir.JournalResponse:
			resp, err := codec.DecodeResponse(e.Payload)
			if err != nil {
				return nil, fmt.Errorf("seq %d: %w", e.Seq, err)
			}
			trace = append(trace, TraceEntry{Type: TraceResponse, Seq: e.Seq, RequestID: e.RequestID, Outcome: outcome(resp)})
		default:
			return nil, fmt.Errorf("seq %d: invalid journal kind %q", e.Seq, e.Kind)
		}
	}
	return trace, nil
}

// outcome is "ok", "ok <status>" for HTTP, or "error <kind>".
func outcome(r ir.Response) string {
	switch {
	case r.HTTP != nil && r.HTTP.Err != nil:
		return "error " + r.HTTP.Err.Kind.String()
	case r.HTTP != nil && r.HTTP.Response != nil:
		return fmt.Sprintf("ok %d", r.HTTP.Response.Status)
	case r.KeyValue != nil && r.KeyValue.Err != nil:
		return "error " + r.KeyValue.Err.Kind.String()
	case r.KeyValue != nil:
		return "ok"
	default:
		return "error"
	}
}
