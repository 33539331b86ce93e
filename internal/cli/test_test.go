package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const passingScenario = `name: walk_forward
description: next moves one marker at a time
student_id: 4
steps:
  - op: start
  - op: next
    expect:
      result: {marker: sel_gal1, step_index: 0}
assertions:
  - type: trace_count
    op: write_story_state
    event: remote
    count: 0
`

const failingScenario = `name: wrong_marker
description: expects the wrong marker
student_id: 4
steps:
  - op: start
  - op: next
    expect:
      result: {marker: cho_row1}
`

func newTestCmd() func(args ...string) (string, error) {
	opts := &RootOptions{Format: "text", Logger: quietLogger()}
	return func(args ...string) (string, error) {
		return execute(NewTestCommand(opts), args...)
	}
}

func TestTestCommandMissingArgs(t *testing.T) {
	run := newTestCmd()
	_, err := run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestTestCommandNonExistentDir(t *testing.T) {
	run := newTestCmd()
	_, err := run("/nonexistent/scenarios")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scenarios directory not found")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTestCommandEmptyDir(t *testing.T) {
	run := newTestCmd()
	out, err := run(t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found")
}

func TestTestCommandEmptyDirJSON(t *testing.T) {
	cmd := NewTestCommand(&RootOptions{Format: "json", Logger: quietLogger()})
	out, err := execute(cmd, t.TempDir())
	require.NoError(t, err)

	var result TestResult
	assert.Equal(t, "ok", decodeData(t, out, &result))
	assert.Equal(t, 0, result.Total)
	assert.Empty(t, result.Scenarios)
}

func TestTestCommandGoldenLifecycle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "walk_forward.yaml", passingScenario)
	run := newTestCmd()

	out, err := run(dir)
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ walk_forward")

	out, err = run(dir, "--update")
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ walk_forward (golden updated)")
	golden, err := os.ReadFile(filepath.Join(dir, "golden", "walk_forward.golden"))
	require.NoError(t, err)
	assert.Contains(t, string(golden), `"scenario_name":"walk_forward"`)

	out, err = run(dir)
	require.NoError(t, err, out)
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "golden", "walk_forward.golden"), []byte(`{"trace":[]}`), 0o644))
	out, err = run(dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "trace does not match golden file")
}

func TestTestCommandReportsFailures(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "walk_forward.yaml", passingScenario)
	writeFile(t, dir, "wrong_marker.yaml", failingScenario)
	writeFile(t, dir, "notes.txt", "not a scenario")

	cmd := NewTestCommand(&RootOptions{Format: "json", Logger: quietLogger()})
	out, err := execute(cmd, dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var result TestResult
	assert.Equal(t, "error", decodeData(t, out, &result))
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 1, result.Passed)
	assert.Equal(t, 1, result.Failed)

	require.Len(t, result.Scenarios, 2)
	assert.Equal(t, "walk_forward", result.Scenarios[0].Name)
	assert.Equal(t, "missing", result.Scenarios[0].Golden)
	assert.Equal(t, "wrong_marker", result.Scenarios[1].Name)
	require.NotEmpty(t, result.Scenarios[1].Errors)
	assert.Contains(t, result.Scenarios[1].Errors[0], `result field "marker" = sel_gal1, want cho_row1`)
}

func TestTestCommandFilter(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "walk_forward.yaml", passingScenario)
	writeFile(t, dir, "wrong_marker.yaml", failingScenario)

	run := newTestCmd()
	out, err := run(dir, "--filter", "walk_*")
	require.NoError(t, err, out)
	assert.Contains(t, out, "walk_forward")
	assert.NotContains(t, out, "wrong_marker")

	_, err = run(dir, "--filter", "[")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTestCommandInvalidScenario(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "broken.yaml", "name: broken\nsteps: []\n")

	run := newTestCmd()
	out, err := run(dir)
	require.Error(t, err)
	assert.Contains(t, out, "✗ broken.yaml")
	assert.Contains(t, out, "failed to load scenario")
}
