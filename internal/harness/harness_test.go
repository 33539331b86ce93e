package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cosmicds/cosmicds/internal/remote"
	"github.com/cosmicds/cosmicds/internal/story"
)

func boolPtr(b bool) *bool { return &b }

func TestRun_StartAndMarker(t *testing.T) {
	result, err := Run(&Scenario{
		Name:        "start_and_marker",
		Description: "start then move",
		StudentID:   5,
		Steps: []Step{
			{Op: OpStart},
			{Op: OpSetMarker, Args: map[string]any{"marker": "sel_gal1"}},
		},
	})
	require.NoError(t, err)
	require.True(t, result.Pass, result.Errors)

	inv := result.Events(EventInvocation)
	require.Len(t, inv, 2)
	assert.Equal(t, OpStart, inv[0].Op)
	assert.Equal(t, int64(1), inv[0].Seq)

	comp := result.Events(EventCompletion)
	require.Len(t, comp, 2)
	assert.Equal(t, OutcomeOK, comp[1].Outcome)
	assert.Equal(t, "sel_gal1", comp[1].Result["marker"])

	remoteEvents := result.Events(EventRemote)
	require.Len(t, remoteEvents, 1)
	assert.Equal(t, remote.OpFetchStoryState, remoteEvents[0].Op)
	assert.Equal(t, int64(5), remoteEvents[0].Args["student_id"])

	assert.Equal(t, "sel_gal1", result.State[ContainerStage]["marker"])
}

func TestRun_SeqIsStrictlyIncreasing(t *testing.T) {
	result, err := Run(&Scenario{
		Name:        "seq",
		Description: "seq",
		StudentID:   5,
		Steps: []Step{
			{Op: OpStart},
			{Op: OpSelectGalaxy, Args: map[string]any{"galaxy": map[string]any{"name": "NGC 1"}}},
			{Op: OpSetMarker, Args: map[string]any{"marker": "mee_spe1"}},
		},
	})
	require.NoError(t, err)
	for i := 1; i < len(result.Trace); i++ {
		assert.Greater(t, result.Trace[i].Seq, result.Trace[i-1].Seq)
	}
}

func TestRun_StepErrorRecorded(t *testing.T) {
	result, err := Run(&Scenario{
		Name:        "bad_marker",
		Description: "invalid marker",
		SyncEnabled: boolPtr(false),
		Steps: []Step{
			{Op: OpSetMarker, Args: map[string]any{"marker": "nowhere"}},
		},
	})
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "steps[0] set_marker: unexpected error")

	comp := result.Events(EventCompletion)
	require.Len(t, comp, 1)
	assert.Equal(t, OutcomeError, comp[0].Outcome)
	assert.Contains(t, comp[0].Error, `invalid marker "nowhere"`)
	assert.Equal(t, "mee_gui1", comp[0].Result["marker"])
}

func TestRun_ExpectedErrorPasses(t *testing.T) {
	result, err := Run(&Scenario{
		Name:        "expected_error",
		Description: "select before any galaxy",
		SyncEnabled: boolPtr(false),
		Steps: []Step{
			{Op: OpAddCurrentVelocity, Expect: &Expect{Error: "no galaxy selected"}},
			{Op: OpSetMarker, Args: map[string]any{"marker": "x"}, Expect: &Expect{Error: "something else"}},
			{Op: OpNext, Expect: &Expect{Error: "boom"}},
		},
	})
	require.NoError(t, err)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], `expected error containing "something else"`)
	assert.Contains(t, result.Errors[1], "got success")
}

func TestRun_ExpectResultMismatch(t *testing.T) {
	result, err := Run(&Scenario{
		Name:        "mismatch",
		Description: "wrong marker expected",
		SyncEnabled: boolPtr(false),
		Steps: []Step{
			{Op: OpNext, Expect: &Expect{Result: map[string]any{"marker": "cho_row1", "velocity": 1}}},
		},
	})
	require.NoError(t, err)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], `result field "marker" = sel_gal1, want cho_row1`)
	assert.Contains(t, result.Errors[1], `result field "velocity" missing`)
}

func TestRun_BadArgs(t *testing.T) {
	result, err := Run(&Scenario{
		Name:        "bad_args",
		Description: "args of the wrong type",
		SyncEnabled: boolPtr(false),
		Steps: []Step{
			{Op: OpSetMarker, Expect: &Expect{Error: `missing arg "marker"`}},
			{Op: OpSelectRow, Args: map[string]any{"index": "zero"}, Expect: &Expect{Error: "must be an integer"}},
			{Op: OpSetDarkMode, Args: map[string]any{"dark": "yes"}, Expect: &Expect{Error: "must be a boolean"}},
			{Op: OpMeasureWavelength, Args: map[string]any{"value": "far"}, Expect: &Expect{Error: "must be a number"}},
			{Op: OpSelectGalaxy, Args: map[string]any{"galaxy": "NGC 1"}, Expect: &Expect{Error: "must be a mapping"}},
		},
	})
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
}

func TestRun_StartFailureIsReported(t *testing.T) {
	result, err := Run(&Scenario{
		Name:        "no_student",
		Description: "seed student cannot be created",
		Failures:    map[string]string{remote.OpNewDummyStudent: "server down"},
		Steps: []Step{
			{Op: OpStart, Expect: &Expect{Error: "server down"}},
		},
	})
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
	assert.Len(t, result.Events(EventRemote), 1)
}

func TestRun_ReverseSyncFromStoryField(t *testing.T) {
	result, err := Run(&Scenario{
		Name:        "reverse_sync",
		Description: "step_index written from outside",
		StudentID:   9,
		Steps: []Step{
			{Op: OpStart},
			{Op: OpSetStoryField, Args: map[string]any{"field": "step_index", "value": 1}},
		},
		Assertions: []Assertion{
			{Type: AssertFinalState, Container: ContainerStage, Expect: map[string]any{"marker": "mee_spe1"}},
			{Type: AssertFinalState, Container: ContainerStory, Expect: map[string]any{"step_complete": false}},
		},
	})
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
}

func TestRun_UnknownStory(t *testing.T) {
	_, err := Run(&Scenario{
		Name:        "unknown",
		Description: "missing story",
		Story:       "andromeda",
		Steps:       []Step{{Op: OpStart}},
	})
	require.Error(t, err)
}

func TestRun_WithCatalog(t *testing.T) {
	result, err := Run(&Scenario{
		Name:        "explicit_catalog",
		Description: "catalog passed in",
		SyncEnabled: boolPtr(false),
		Steps:       []Step{{Op: OpStart}},
	}, WithCatalog(story.MustCatalog()))
	require.NoError(t, err)
	assert.True(t, result.Pass)
}

func TestRun_VelocityToolNeedsDopplerCalc(t *testing.T) {
	result, err := Run(&Scenario{
		Name:        "velocity_tool",
		Description: "update_velocities is enabled by the Doppler calculation",
		SyncEnabled: boolPtr(false),
		StudentID:   3,
		Steps: []Step{
			{Op: OpStart},
			{Op: OpSelectGalaxy, Args: map[string]any{"galaxy": map[string]any{"name": "NGC 4414", "type": "Sp", "z": 0.0024}}},
			{Op: OpSelectRow, Args: map[string]any{"index": 0}},
			{Op: OpSetRestWavelength, Args: map[string]any{"element": "H-alpha"}},
			{Op: OpMeasureWavelength, Args: map[string]any{"value": 6600.0}},
			{Op: OpUpdateVelocities, Expect: &Expect{Error: "velocity tool disabled"}},
			{Op: OpCompleteDopplerCalc},
			{Op: OpUpdateVelocities},
		},
	})
	require.NoError(t, err)
	require.True(t, result.Pass, result.Errors)

	comp := result.Events(EventCompletion)
	require.Len(t, comp, 8)
	assert.Equal(t, true, comp[6].Result["velocity_tool"])
	assert.Equal(t, 1, comp[7].Result["updated"])
	assert.Equal(t, true, result.State[ContainerStage][story.FieldDopplerCalcComplete])
}

func TestOps_Sorted(t *testing.T) {
	ops := Ops()
	assert.Contains(t, ops, OpSelectGalaxy)
	assert.IsNonDecreasing(t, ops)
}
