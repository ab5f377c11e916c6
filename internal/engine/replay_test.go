package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alasdair-cooper/watch-history/internal/core"
	"github.com/alasdair-cooper/watch-history/internal/ir"
	"github.com/alasdair-cooper/watch-history/internal/testutil"
)

func recordCallbackFlow(t *testing.T) []ir.JournalEntry {
	t.Helper()
	h := newHarness(t, core.DefaultScript(), WithSequential(true))
	h.transport.Stub("POST",
		"https://github.com/login/oauth/access_token?client_id=watch-history-dev&client_secret=&code=abc&redirect_uri=http%3A%2F%2Flocalhost%3A8080%2Fcallback",
		testutil.StubResponse{Status: 200, Body: []byte(`{"access_token":"gho_new"}`)})
	h.transport.Stub("GET", "https://api.github.com/user",
		testutil.StubResponse{Status: 200, Body: []byte(`{"name":"Mona"}`)})

	ctx := context.Background()
	require.NoError(t, h.engine.Update(ctx, ir.CallbackReceived("http://localhost:8080/callback?code=abc")))
	assert.Equal(t, "Mona", h.engine.View().Load().UserInfo.Name)

	stored, found, err := h.kv.Get(ctx, "github_tokens")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("gho_new"), stored)

	entries, err := h.journal.ReadFlow(ctx, "flow-1")
	require.NoError(t, err)
	return entries
}

func TestReplay_Deterministic(t *testing.T) {
	entries := recordCallbackFlow(t)
	// event + exchange_code + fetch_user + save_tokens, each with its batch
	require.Len(t, entries, 8)

	res, err := Replay(context.Background(), core.NewScriptCore(core.DefaultScript()), entries)
	require.NoError(t, err)
	assert.True(t, res.Deterministic(), "divergences: %+v", res.Divergences)
	assert.Equal(t, 4, res.Calls)
	assert.Equal(t, "flow-1", res.FlowToken)
}

func TestReplay_ReportsDivergence(t *testing.T) {
	entries := recordCallbackFlow(t)

	changed := core.NewScriptCore(core.DefaultScript(), core.WithVars(map[string]string{"client_id": "other"}))
	res, err := Replay(context.Background(), changed, entries)
	require.NoError(t, err)
	require.False(t, res.Deterministic())
	assert.Equal(t, ir.JournalRequests, res.Divergences[0].Kind)
	assert.Equal(t, int64(2), res.Divergences[0].Seq)
}

func TestReplay_MalformedJournal(t *testing.T) {
	c := core.NewScriptCore(core.DefaultScript())

	batchFirst := []ir.JournalEntry{{FlowToken: "f", Seq: 1, Kind: ir.JournalRequests}}
	_, err := Replay(context.Background(), c, batchFirst)
	assert.Error(t, err)

	mixed := []ir.JournalEntry{
		{FlowToken: "f", Seq: 1, Kind: ir.JournalEvent},
		{FlowToken: "g", Seq: 2, Kind: ir.JournalEvent},
	}
	_, err = Replay(context.Background(), c, mixed)
	assert.Error(t, err)
}

func TestReplay_Empty(t *testing.T) {
	res, err := Replay(context.Background(), core.NewScriptCore(core.DefaultScript()), nil)
	require.NoError(t, err)
	assert.True(t, res.Deterministic())
}
