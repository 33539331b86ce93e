package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTrace() []TraceEvent {
	r := NewResult()
	r.AddInvocation("start", nil, 1)
	r.AddCompletion("start", map[string]any{"marker": "mee_gui1"}, nil, 2)
	r.AddRemote("fetch_story_state", map[string]any{"student_id": int64(7)}, 3)
	r.AddInvocation("set_marker", map[string]any{"marker": "cho_row1"}, 4)
	r.AddCompletion("set_marker", map[string]any{"marker": "cho_row1"}, nil, 5)
	r.AddInvocation("set_marker", map[string]any{"marker": "mee_spe1"}, 6)
	r.AddCompletion("set_marker", map[string]any{"marker": "mee_spe1", "step_index": 1}, nil, 7)
	r.AddRemote("write_story_state", map[string]any{"student_id": int64(7), "step_index": int64(1)}, 8)
	return r.Trace
}

func TestAssertTraceContains(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceContains(trace, Assertion{Op: "set_marker", Args: map[string]any{"marker": "mee_spe1"}}))
	assert.NoError(t, assertTraceContains(trace, Assertion{Op: "write_story_state", Event: EventRemote, Args: map[string]any{"step_index": 1}}))
	assert.NoError(t, assertTraceContains(trace, Assertion{Op: "set_marker", Event: EventCompletion, Args: map[string]any{"step_index": 1}}))

	err := assertTraceContains(trace, Assertion{Op: "set_marker", Args: map[string]any{"marker": "dop_cal0"}})
	require.Error(t, err)
	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, AssertTraceContains, ae.Type)
	assert.Contains(t, err.Error(), "Full trace:")
	assert.Contains(t, err.Error(), "remote write_story_state")
}

func TestAssertTraceOrder(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceOrder(trace, Assertion{Ops: []string{"start", "set_marker"}}))
	assert.NoError(t, assertTraceOrder(trace, Assertion{Ops: []string{"fetch_story_state", "write_story_state"}, Event: EventRemote}))

	err := assertTraceOrder(trace, Assertion{Ops: []string{"set_marker", "start"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "should be before")

	err = assertTraceOrder(trace, Assertion{Ops: []string{"start", "save"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing op: save")
}

func TestAssertTraceCount(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceCount(trace, Assertion{Op: "set_marker", Count: 2}))
	assert.NoError(t, assertTraceCount(trace, Assertion{Op: "set_marker", Event: EventCompletion, Count: 2}))
	assert.NoError(t, assertTraceCount(trace, Assertion{Op: "submit_measurement", Event: EventRemote, Count: 0}))

	err := assertTraceCount(trace, Assertion{Op: "write_story_state", Event: EventRemote, Count: 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 occurrences")
}

func TestValuesEqual(t *testing.T) {
	tests := []struct {
		name     string
		actual   any
		expected any
		want     bool
	}{
		{"int kinds", int64(3), 3, true},
		{"int and float", 6565.0, 6565, true},
		{"float mismatch", 6565.5, 6565, false},
		{"strings", "a", "a", true},
		{"string and int", "1", 1, false},
		{"nested map", map[string]any{"id": int64(2)}, map[string]any{"id": 2}, true},
		{"map extra key", map[string]any{"id": int64(2), "x": 1}, map[string]any{"id": 2}, false},
		{"string lists", []string{"a", "b"}, []any{"a", "b"}, true},
		{"list length", []string{"a"}, []any{"a", "b"}, false},
		{"nil", nil, nil, true},
		{"nil and value", nil, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, valuesEqual(tt.actual, tt.expected))
		})
	}
}

func TestEvaluateAssertions_FinalStateNeedsSession(t *testing.T) {
	errs := EvaluateAssertions(NewResult(), []Assertion{
		{Type: AssertFinalState, Container: ContainerStage, Expect: map[string]any{"marker": "x"}},
		{Type: "vibes"},
	}, nil)
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0], "requires a session")
	assert.Contains(t, errs[1], `unknown assertion type "vibes"`)
}

func TestRun_FinalStateAssertions(t *testing.T) {
	result, err := Run(&Scenario{
		Name:        "final_state",
		Description: "final state checks",
		SyncEnabled: boolPtr(false),
		Steps: []Step{
			{Op: OpSelectGalaxy, Args: map[string]any{"galaxy": map[string]any{"name": "NGC 7", "z": 0.003}}},
		},
		Assertions: []Assertion{
			{Type: AssertFinalState, Container: ContainerMeasurements, Row: 0, Expect: map[string]any{"name": "NGC 7", "z": 0.003}},
			{Type: AssertFinalState, Container: ContainerMeasurements, Row: 3, Expect: map[string]any{"name": "NGC 7"}},
			{Type: AssertFinalState, Container: ContainerStage, Expect: map[string]any{"gals_total": 2}},
			{Type: AssertFinalState, Container: ContainerApp, Expect: map[string]any{"no_such_field": 1}},
		},
	})
	require.NoError(t, err)
	require.Len(t, result.Errors, 3)
	assert.Contains(t, result.Errors[0], "measurement row 3")
	assert.Contains(t, result.Errors[1], `stage field "gals_total" = 1`)
	assert.Contains(t, result.Errors[2], `app field "no_such_field" to exist`)
}
