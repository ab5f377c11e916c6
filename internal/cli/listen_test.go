package cli

import (
	"bufio"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListen_ProcessesStdinUntilEOF(t *testing.T) {
	env := newTestEnv(t)

	input := "# start\ninitial_load\n\nbogus\nlogin_button_clicked\n"
	out, err := env.execute(t, input, "listen")
	require.NoError(t, err)
	assert.Contains(t, out, "[info] Event: InitialLoad")
	assert.Contains(t, out, "open: "+authorizeURL)

	// The bogus line is skipped, not submitted.
	assert.Len(t, env.flowTokens(t), 2)
}

func TestListen_JSONLines(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.execute(t, "login_button_clicked\n", "--format", "json", "listen")
	require.NoError(t, err)

	sawOpen := false
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		var line map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &line), scanner.Text())
		if line["open_url"] == authorizeURL {
			sawOpen = true
		}
	}
	assert.True(t, sawOpen, out)
}

func TestListen_EmptyInput(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.execute(t, "", "listen")
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Empty(t, env.flowTokens(t))
}
