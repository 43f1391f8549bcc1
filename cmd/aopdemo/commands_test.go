package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("controller:\n  user_list_delay: 5ms\n"), 0o600))

	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(&stdout, &stderr)
	cmd.SetArgs(append([]string{"--config", configPath, "--env-file", filepath.Join(dir, "missing.env")}, args...))
	err := cmd.Execute()
	return stdout.String(), err
}

func TestRoutesCommand(t *testing.T) {
	out, err := execute(t, "routes")
	require.NoError(t, err)

	assert.Contains(t, out, "/spring16_aop/user_list ")
	assert.Contains(t, out, "UserListAfterCleanUpException")
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 8)
}

func TestAspectsCommand(t *testing.T) {
	out, err := execute(t, "aspects")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Greater(t, len(lines), 2)
	assert.True(t, strings.HasPrefix(lines[1], "-30"))
	assert.Contains(t, lines[len(lines)-1], "OrderingAspect")
	assert.Contains(t, out, "doBasicProfiling")
	assert.Regexp(t, `(?m)^1 +ControllerAspect +service\.Logging +introduction +controller\.\*$`, out)
	assert.Contains(t, out, "execution(controller.*.*(..))")
}

func TestInvokeCommand(t *testing.T) {
	t.Run("Prints console advice and the result", func(t *testing.T) {
		out, err := execute(t, "invoke", "user_list_returning")
		require.NoError(t, err)

		assert.Contains(t, out, "returnValue=Testing after-returning advice (OK)\n")
		assert.True(t, strings.HasSuffix(out, "Testing after-returning advice (OK)\n"))
	})

	t.Run("Locale flag is bound", func(t *testing.T) {
		out, err := execute(t, "invoke", "user_list_before", "--locale", "sv-SE")
		require.NoError(t, err)

		assert.Contains(t, out, "sv-SE\n")
	})

	t.Run("Operation failure is returned", func(t *testing.T) {
		out, err := execute(t, "invoke", "user_list_throwing")
		require.Error(t, err)

		assert.Equal(t, "Testing after-throwing advice (controlled exception)", err.Error())
		assert.Contains(t, out, "exception message:Testing after-throwing advice (controlled exception)")
	})

	t.Run("Path is required", func(t *testing.T) {
		_, err := execute(t, "invoke")
		assert.Error(t, err)
	})
}
