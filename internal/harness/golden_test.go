package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunWithGolden_InitialLoadWithoutToken(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/initial_load_without_token.yaml")
	require.NoError(t, err)

	result, err := RunWithGolden(t, scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestTraceSnapshot_Canonical(t *testing.T) {
	snapshot := TraceSnapshot{
		ScenarioName: "s",
		Trace: []TraceEntry{
			{Type: TraceEvent, Seq: 1, Event: "login_button_clicked"},
			{Type: TraceRequest, Seq: 2, RequestID: 0, Effect: "redirect", Detail: "https://x"},
		},
	}
	out, err := snapshot.MarshalCanonical()
	require.NoError(t, err)
	assert.Equal(t,
		`{"scenario_name":"s","trace":[{"event":"login_button_clicked","seq":1,"type":"event"},{"detail":"https://x","effect":"redirect","request_id":0,"seq":2,"type":"request"}]}`,
		string(out))
}

func TestTraceSnapshot_EmptyTrace(t *testing.T) {
	snapshot := TraceSnapshot{ScenarioName: "empty", FlowToken: "f", Trace: nil}
	out, err := snapshot.MarshalCanonical()
	require.NoError(t, err)
	assert.Equal(t, `{"flow_token":"f","scenario_name":"empty","trace":[]}`, string(out))
}
