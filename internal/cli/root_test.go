package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "cosmicds", cmd.Use)
	assert.Contains(t, cmd.Long, "COSMICDS_")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"serve", "session", "test", "markers", "validate", "journal"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)
}

func TestServeCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	serveCmd, _, err := cmd.Find([]string{"serve"})
	require.NoError(t, err)

	for _, name := range []string{"addr", "db"} {
		flag := serveCmd.Flags().Lookup(name)
		require.NotNil(t, flag, name)
		assert.Equal(t, "", flag.DefValue, "%s falls back to the environment", name)
	}
}

func TestSessionCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	sessionCmd, _, err := cmd.Find([]string{"session"})
	require.NoError(t, err)

	for _, name := range []string{"api-url", "story", "stage", "student", "team-member", "no-sync", "journal", "keep-going"} {
		assert.NotNil(t, sessionCmd.Flags().Lookup(name), name)
	}
}

func TestRootRejectsInvalidFormat(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"markers", "--format", "xml"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid format "xml"`)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRootRejectsInvalidEnvironment(t *testing.T) {
	t.Setenv("COSMICDS_TIMEOUT", "-1s")

	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"markers"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COSMICDS_TIMEOUT must be positive")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRootLoadsCatalogFromEnvironment(t *testing.T) {
	t.Setenv("COSMICDS_CATALOG", "/nonexistent/stories")

	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"markers"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load catalog")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestVerboseLogsAtDebug(t *testing.T) {
	logs := &bytes.Buffer{}
	opts := &RootOptions{LogWriter: logs}
	cmd := newRootCommand(opts)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"markers", "-v"})

	require.NoError(t, cmd.Execute())
	require.NotNil(t, opts.Logger)
	opts.Logger.Debug("resolving student", "student_id", 7)
	assert.Contains(t, logs.String(), `level=DEBUG msg="resolving student" student_id=7`)
}
