package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alasdair-cooper/watch-history/internal/store"
)

// testEnv is a temp directory holding a config with sqlite storage and an
// enabled journal.
type testEnv struct {
	dir     string
	config  string
	journal string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	env := &testEnv{
		dir:     dir,
		config:  filepath.Join(dir, "watchshell.yaml"),
		journal: filepath.Join(dir, "journal.db"),
	}
	content := "log:\n  level: error\n" +
		"storage:\n  path: " + filepath.Join(dir, "kv.db") + "\n" +
		"journal:\n  enabled: true\n  path: " + env.journal + "\n"
	require.NoError(t, os.WriteFile(env.config, []byte(content), 0644))
	return env
}

// execute runs the root command with the env's config prepended.
func (e *testEnv) execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	return execute(t, stdin, append([]string{"--config", e.config}, args...)...)
}

func (e *testEnv) flowTokens(t *testing.T) []string {
	t.Helper()
	st, err := store.Open(e.journal)
	require.NoError(t, err)
	defer st.Close()
	tokens, err := st.ReadFlowTokens(context.Background())
	require.NoError(t, err)
	return tokens
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}
