package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alasdair-cooper/watch-history/internal/config"
)

const authorizeURL = "https://github.com/login/oauth/authorize?client_id=watch-history-dev&redirect_uri=http%3A%2F%2Flocalhost%3A8080%2Fcallback"

func TestRun_DefaultInitialLoad(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.execute(t, "", "run")
	require.NoError(t, err)
	assert.Contains(t, out, "Not signed in")
	assert.Contains(t, out, "Films (4):")
	assert.Contains(t, out, "Frankenstein")
	assert.Contains(t, out, "[info] Event: InitialLoad")

	assert.Len(t, env.flowTokens(t), 1)
}

func TestRun_LoginPrintsRedirect(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.execute(t, "", "run", "login_button_clicked")
	require.NoError(t, err)
	assert.Contains(t, out, "open: "+authorizeURL)
}

func TestRun_JSON(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.execute(t, "", "--format", "json", "run", "initial_load", "login_button_clicked")
	require.NoError(t, err)

	var resp struct {
		Status string    `json:"status"`
		Data   RunResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, []string{"initial_load", "login_button_clicked"}, resp.Data.Events)
	assert.Equal(t, []string{authorizeURL}, resp.Data.OpenURLs)
	require.NotNil(t, resp.Data.View)
	assert.Len(t, resp.Data.View.Films, 4)
	assert.Empty(t, resp.Data.Errors)

	assert.Len(t, env.flowTokens(t), 2)
}

func TestRun_RejectsForeignCallback(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.execute(t, "", "run", "--callback", "https://evil.example/callback?code=abc")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "does not match callback.redirect_uri")
}

func TestRun_UnknownEvent(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.execute(t, "", "run", "logout")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), `unknown event "logout"`)
}

func TestParseEvent(t *testing.T) {
	cfg := &config.Config{Callback: config.CallbackConfig{RedirectURI: "http://localhost:8080/callback"}}

	ev, err := parseEvent(cfg, "initial_load")
	require.NoError(t, err)
	assert.Equal(t, "initial_load", ev.Kind.String())

	ev, err = parseEvent(cfg, "http://localhost:8080/callback?code=1")
	require.NoError(t, err)
	assert.Equal(t, "callback_received", ev.Kind.String())
	assert.Equal(t, "http://localhost:8080/callback?code=1", ev.URL)

	_, err = parseEvent(cfg, "callback_received")
	assert.ErrorContains(t, err, "needs a URL")

	_, err = parseEvent(cfg, "http://elsewhere/callback")
	assert.Error(t, err)
}

func TestScriptVars(t *testing.T) {
	cfg := &config.Config{
		Callback: config.CallbackConfig{RedirectURI: "http://127.0.0.1:9000/cb"},
		Core:     config.CoreConfig{Vars: map[string]string{"client_id": "abc"}},
	}
	assert.Equal(t, map[string]string{"redirect_uri": "http://127.0.0.1:9000/cb", "client_id": "abc"}, scriptVars(cfg))

	cfg.Core.Vars["redirect_uri"] = "http://override/cb"
	assert.Equal(t, "http://override/cb", scriptVars(cfg)["redirect_uri"])
}
