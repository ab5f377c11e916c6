package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "watchshell.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, "watch-history.db", cfg.Storage.Path)
	assert.Equal(t, 30*time.Second, cfg.Network.Timeout)
	assert.Equal(t, 5*time.Second, cfg.Storage.Timeout)
	assert.Equal(t, 1000, cfg.Engine.MaxSteps)
	assert.Equal(t, 16, cfg.Events.Buffer)
	assert.False(t, cfg.Journal.Enabled)
	assert.Equal(t, "http://localhost:8080/callback", cfg.Callback.RedirectURI)
	assert.Equal(t, "watchshell", cfg.Telemetry.ServiceName)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
  format: json
storage:
  path: ":memory:"
network:
  timeout: 2s
  block_private_networks: true
engine:
  max_steps: 50
  sequential: true
core:
  script: flow.yaml
  vars:
    client_id: abc
    client_secret: "${WATCH_TEST_SECRET}"
`)
	t.Setenv("WATCH_TEST_SECRET", "s3cret")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, ":memory:", cfg.Storage.Path)
	assert.Equal(t, 2*time.Second, cfg.Network.Timeout)
	assert.True(t, cfg.Network.BlockPrivateNetworks)
	assert.Equal(t, 50, cfg.Engine.MaxSteps)
	assert.True(t, cfg.Engine.Sequential)
	assert.Equal(t, "flow.yaml", cfg.Core.Script)
	assert.Equal(t, map[string]string{"client_id": "abc", "client_secret": "s3cret"}, cfg.Core.Vars)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, "storage:\n  path: from-file.db\n")
	t.Setenv("WATCH_STORAGE__PATH", "from-env.db")
	t.Setenv("WATCH_ENGINE__MAX_STEPS", "7")
	t.Setenv("WATCH_JOURNAL__ENABLED", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env.db", cfg.Storage.Path)
	assert.Equal(t, 7, cfg.Engine.MaxSteps)
	assert.True(t, cfg.Journal.Enabled)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadInvalid(t *testing.T) {
	path := writeConfig(t, `
log:
  level: loud
  format: xml
events:
  buffer: 0
core:
  script: a.yaml
  command: [./core]
callback:
  redirect_uri: not-a-url
`)
	_, err := Load(path)
	require.Error(t, err)
	for _, field := range []string{"log.level", "log.format", "events.buffer", "core:", "callback.redirect_uri"} {
		assert.Contains(t, err.Error(), field)
	}
}

func TestAcceptsCallback(t *testing.T) {
	cfg := &Config{Callback: CallbackConfig{RedirectURI: "http://localhost:8080/callback"}}
	assert.True(t, cfg.AcceptsCallback("http://localhost:8080/callback?code=abc"))
	assert.False(t, cfg.AcceptsCallback("https://evil.example/callback?code=abc"))
}
