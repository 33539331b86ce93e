package harness

import (
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunWithGolden_ChooseRow(t *testing.T) {
	s, err := LoadScenario(afero.NewOsFs(), filepath.Join("testdata", "scenarios", "choose_row_skips_ahead.yaml"))
	require.NoError(t, err)

	result, err := RunWithGolden(t, s)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
}

func TestMarshalTrace_Deterministic(t *testing.T) {
	s := &Scenario{
		Name:         "deterministic",
		Description:  "same trace twice",
		StudentID:    2,
		SessionToken: "fixed",
		Steps: []Step{
			{Op: OpStart},
			{Op: OpSelectGalaxy, Args: map[string]any{"galaxy": map[string]any{"name": "NGC 3", "z": 0.01}}},
			{Op: OpSelectGalaxy, Args: map[string]any{"galaxy": map[string]any{"name": "NGC 4", "z": 0.02}}},
			{Op: OpSetMarker, Args: map[string]any{"marker": "mee_spe1"}},
		},
	}

	var outputs [][]byte
	for i := 0; i < 3; i++ {
		result, err := Run(s)
		require.NoError(t, err)
		out, err := MarshalTrace(s.Name, s.SessionToken, result)
		require.NoError(t, err)
		outputs = append(outputs, out)
	}
	assert.Equal(t, outputs[0], outputs[1])
	assert.Equal(t, outputs[0], outputs[2])
}

func TestMarshalTrace_OmitsEmpty(t *testing.T) {
	result := NewResult()
	result.AddInvocation("next", nil, 1)
	result.AddCompletion("next", nil, nil, 2)

	out, err := MarshalTrace("empty", "", result)
	require.NoError(t, err)
	assert.Equal(t,
		`{"scenario_name":"empty","trace":[{"op":"next","seq":1,"type":"invocation"},{"op":"next","outcome":"ok","seq":2,"type":"completion"}]}`,
		string(out))
}
