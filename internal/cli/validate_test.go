package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tinyStory = `
stories: tiny: {
	title: "Tiny"
	stages: [{
		index: 0
		title: "Only"
		markers: ["a", "b", "c"]
		step_markers: ["a", "c"]
	}]
}
`

const badStepMarkers = `
stories: tiny: {
	title: "Tiny"
	stages: [{
		index: 0
		title: "Only"
		markers: ["a", "b"]
		step_markers: ["z"]
	}]
}
`

func TestValidateCommandCatalog(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "stories/tiny.cue", tinyStory)

	cmd := NewValidateCommand(&RootOptions{Format: "text"})
	out, err := execute(cmd, dir+"/stories")
	require.NoError(t, err)
	assert.Contains(t, out, "1 stories [tiny]")

	cmd = NewValidateCommand(&RootOptions{Format: "json"})
	out, err = execute(cmd, dir+"/stories/tiny.cue")
	require.NoError(t, err)
	var result ValidateResult
	assert.Equal(t, "ok", decodeData(t, out, &result))
	assert.Equal(t, "catalog", result.Kind)
	assert.True(t, result.Valid)
	assert.Equal(t, []string{"tiny"}, result.Stories)
}

func TestValidateCommandCatalogErrors(t *testing.T) {
	p := writeFile(t, t.TempDir(), "tiny.cue", badStepMarkers)

	cmd := NewValidateCommand(&RootOptions{Format: "json"})
	out, err := execute(cmd, p)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var result ValidateResult
	assert.Equal(t, "error", decodeData(t, out, &result))
	assert.False(t, result.Valid)
	require.Len(t, result.Issues, 1)
	issue := result.Issues[0]
	assert.Equal(t, "tiny", issue.Story)
	assert.Equal(t, "stages[0].markers", issue.Field)
	assert.Contains(t, issue.Message, "invalid marker sequence")
	assert.Positive(t, issue.Line)
}

func TestValidateCommandCUESyntax(t *testing.T) {
	p := writeFile(t, t.TempDir(), "broken.cue", "stories: {")

	cmd := NewValidateCommand(&RootOptions{Format: "text"})
	out, err := execute(cmd, p)
	require.Error(t, err)
	assert.Contains(t, out, "✗ ")
	assert.Contains(t, out, "cue: ")
	assert.Contains(t, out, "Error [E_CATALOG]")
}

func TestValidateCommandScenario(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "walk_forward.yaml", passingScenario)
	bad := writeFile(t, dir, "bad.yaml", "name: bad\ndescription: x\nsteps:\n  - op: fly\n")

	cmd := NewValidateCommand(&RootOptions{Format: "text"})
	out, err := execute(cmd, good)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ "+good)

	cmd = NewValidateCommand(&RootOptions{Format: "json"})
	out, err = execute(cmd, bad)
	require.Error(t, err)
	var result ValidateResult
	decodeData(t, out, &result)
	assert.Equal(t, "scenario", result.Kind)
	require.Len(t, result.Issues, 1)
	assert.Contains(t, result.Issues[0].Message, `unknown op "fly"`)
}

func TestValidateCommandMissingPath(t *testing.T) {
	cmd := NewValidateCommand(&RootOptions{Format: "text"})
	_, err := execute(cmd, "/nonexistent/stories")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.ErrorContains(t, err, "path not found")
}
