package marker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSequence(t *testing.T) {
	seq, err := NewSequence([]string{"m0", "m1", "m2", "m3"}, []string{"m0", "m2"})
	require.NoError(t, err)

	assert.Equal(t, 4, seq.Len())
	assert.Equal(t, "m0", seq.First())
	assert.Equal(t, "m3", seq.Last())
	assert.True(t, seq.Contains("m1"))
	assert.False(t, seq.Contains("x"))

	i, ok := seq.Index("m2")
	assert.True(t, ok)
	assert.Equal(t, 2, i)

	si, ok := seq.StepIndex("m2")
	assert.True(t, ok)
	assert.Equal(t, 1, si)
	assert.False(t, seq.IsStep("m1"))

	sm, ok := seq.StepMarker(1)
	assert.True(t, ok)
	assert.Equal(t, "m2", sm)
	_, ok = seq.StepMarker(2)
	assert.False(t, ok)
	_, ok = seq.StepMarker(-1)
	assert.False(t, ok)

	assert.True(t, seq.Before("m0", "m3"))
	assert.False(t, seq.Before("m3", "m0"))
	assert.False(t, seq.Before("m1", "m1"))
	assert.False(t, seq.Before("x", "m1"))
}

func TestNewSequence_CopiesInput(t *testing.T) {
	markers := []string{"a", "b"}
	seq := MustSequence(markers, nil)
	markers[0] = "z"
	assert.Equal(t, []string{"a", "b"}, seq.Markers())

	out := seq.Markers()
	out[1] = "y"
	assert.Equal(t, "b", seq.Last())
}

func TestNewSequence_Invalid(t *testing.T) {
	tests := []struct {
		name        string
		markers     []string
		stepMarkers []string
	}{
		{"empty", nil, nil},
		{"duplicate", []string{"a", "a"}, nil},
		{"blank", []string{"a", ""}, nil},
		{"unknown step", []string{"a", "b"}, []string{"c"}},
		{"step out of order", []string{"a", "b", "c"}, []string{"c", "a"}},
		{"repeated step", []string{"a", "b"}, []string{"a", "a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSequence(tt.markers, tt.stepMarkers)
			require.Error(t, err)
			var se *SequenceError
			assert.ErrorAs(t, err, &se)
		})
	}
}
