package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/alasdair-cooper/watch-history/internal/ir"
)

// TraceSnapshot is the golden-file form of a scenario trace.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	FlowToken    string       `json:"flow_token,omitempty"`
	Trace        []TraceEntry `json:"trace"`
}

// toCanonicalMap converts the snapshot to the map form ir.MarshalCanonical
// accepts. Empty optional fields are left out.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	traceList := make([]any, len(s.Trace))
	for i, entry := range s.Trace {
		m := map[string]any{
			"type": entry.Type,
			"seq":  entry.Seq,
		}
		if entry.Event != "" {
			m["event"] = entry.Event
		}
		if entry.Type != TraceEvent {
			m["request_id"] = entry.RequestID
		}
		if entry.Effect != "" {
			m["effect"] = entry.Effect
		}
		if entry.Detail != "" {
			m["detail"] = entry.Detail
		}
		if entry.Outcome != "" {
			m["outcome"] = entry.Outcome
		}
		traceList[i] = m
	}

	out := map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         traceList,
	}
	if s.FlowToken != "" {
		out["flow_token"] = s.FlowToken
	}
	return out
}

// MarshalCanonical renders the snapshot as canonical JSON.
func (s *TraceSnapshot) MarshalCanonical() ([]byte, error) {
	return ir.MarshalCanonical(s.toCanonicalMap())
}

// RunWithGolden runs scenario and compares its trace with
// testdata/golden/<name>.golden. Regenerate with -update.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	snapshot := TraceSnapshot{
		ScenarioName: scenario.Name,
		FlowToken:    scenario.FlowToken,
		Trace:        result.Trace,
	}
	if err := assertGolden(t, scenario.Name, &snapshot); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result's trace with a golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()
	return assertGolden(t, scenarioName, &TraceSnapshot{ScenarioName: scenarioName, Trace: result.Trace})
}

func assertGolden(t *testing.T, name string, snapshot *TraceSnapshot) error {
	t.Helper()
	traceJSON, err := snapshot.MarshalCanonical()
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, traceJSON)
	return nil
}
