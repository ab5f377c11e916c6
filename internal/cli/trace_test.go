package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alasdair-cooper/watch-history/internal/harness"
)

func TestTrace_Text(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.execute(t, "", "run")
	require.NoError(t, err)
	token := env.flowTokens(t)[0]

	out, err := env.execute(t, "", "trace", token)
	require.NoError(t, err)
	assert.Contains(t, out, "Flow "+token)
	assert.Contains(t, out, "event     initial_load")
	assert.Contains(t, out, "#1 key_value get github_tokens")
	assert.Contains(t, out, "response  #1 ok")
	assert.Contains(t, out, "4 journal entries: 1 event(s), 2 request(s), 1 response(s), 0 failed")
}

func TestTrace_JSONWithEffectFilter(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.execute(t, "", "run")
	require.NoError(t, err)
	token := env.flowTokens(t)[0]

	out, err := env.execute(t, "", "--format", "json", "trace", token, "--effect", "render")
	require.NoError(t, err)

	var resp struct {
		Data TraceResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, token, resp.Data.FlowToken)
	assert.Equal(t, 2, resp.Data.Stats.Requests)
	for _, e := range resp.Data.Timeline {
		if e.Type == harness.TraceRequest {
			assert.Equal(t, "render", e.Effect)
		}
	}
	assert.Len(t, resp.Data.Timeline, 3)
}

func TestTrace_UnknownFlow(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.execute(t, "", "run")
	require.NoError(t, err)

	_, err = env.execute(t, "", "trace", "missing")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "flow not found: missing")
}

func TestFilterTimeline(t *testing.T) {
	timeline := []harness.TraceEntry{
		{Type: harness.TraceEvent, Event: "initial_load"},
		{Type: harness.TraceRequest, Effect: "http"},
		{Type: harness.TraceRequest, Effect: "render"},
		{Type: harness.TraceResponse, Outcome: "ok 200"},
	}
	assert.Len(t, filterTimeline(timeline, ""), 4)
	assert.Len(t, filterTimeline(timeline, "http"), 3)
	assert.Len(t, filterTimeline(timeline, "redirect"), 2)
}
