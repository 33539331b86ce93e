package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cosmicds/cosmicds/internal/measurement"
)

type countingSink struct {
	rows []measurement.Record
}

func (s *countingSink) SubmitMeasurement(row measurement.Record) {
	s.rows = append(s.rows, row)
}

type gateFunc func() bool

func (g gateFunc) SyncEnabled() bool { return g() }

func newFacade(t *testing.T, gate Gate) (*Facade, *countingSink) {
	t.Helper()
	other := MustTable("galaxies", []Column{{Name: "name", Kind: String}, {Name: "z", Kind: Float}})
	coll, err := NewCollection(NewMeasurementTable(), other)
	require.NoError(t, err)
	sink := &countingSink{}
	return NewFacade(coll, MeasurementPolicy(), sink, gate), sink
}

func TestMeasurementPolicy(t *testing.T) {
	p := MeasurementPolicy()
	assert.Equal(t, measurement.Table, p.Table)
	assert.ElementsMatch(t, []string{"angular_size", "distance", "measwave", "name", "restwave", "student_id", "velocity"}, p.Columns)
}

func TestFacade_AddRowSubmits(t *testing.T) {
	f, sink := newFacade(t, nil)

	require.NoError(t, f.AddRow(measurement.Table, map[string]any{"name": "NGC 4", "element": "H-alpha"}))
	require.Len(t, sink.rows, 1)
	assert.Equal(t, "NGC 4", sink.rows[0]["name"])
	assert.Nil(t, sink.rows[0]["velocity"])
}

func TestFacade_AddRowTwiceSubmitsTwice(t *testing.T) {
	f, sink := newFacade(t, nil)

	row := map[string]any{"name": "NGC 4"}
	require.NoError(t, f.AddRow(measurement.Table, row))
	require.NoError(t, f.AddRow(measurement.Table, row))

	assert.Len(t, sink.rows, 2)
	tbl, _ := f.Table(measurement.Table)
	assert.Equal(t, 2, tbl.Len())
}

func TestFacade_UpdateValue(t *testing.T) {
	f, sink := newFacade(t, nil)
	require.NoError(t, f.AddRow(measurement.Table, map[string]any{"name": "NGC 4"}))
	sink.rows = nil

	require.NoError(t, f.UpdateValue(measurement.Table, measurement.ColVelocity, 1691, 0))
	require.Len(t, sink.rows, 1)
	assert.Equal(t, 1691.0, sink.rows[0]["velocity"])
	assert.Equal(t, "NGC 4", sink.rows[0]["name"])

	// untracked column
	require.NoError(t, f.UpdateValue(measurement.Table, measurement.ColElement, "Mg-I", 0))
	assert.Len(t, sink.rows, 1)

	// unwatched table
	require.NoError(t, f.AddRow("galaxies", map[string]any{"name": "x"}))
	require.NoError(t, f.UpdateValue("galaxies", "z", 0.1, 0))
	assert.Len(t, sink.rows, 1)
}

func TestFacade_GateClosed(t *testing.T) {
	enabled := false
	f, sink := newFacade(t, gateFunc(func() bool { return enabled }))

	require.NoError(t, f.AddRow(measurement.Table, map[string]any{"name": "a"}))
	require.NoError(t, f.UpdateValue(measurement.Table, measurement.ColVelocity, 10, 0))
	assert.Empty(t, sink.rows)

	enabled = true
	require.NoError(t, f.UpdateValue(measurement.Table, measurement.ColVelocity, 11, 0))
	assert.Len(t, sink.rows, 1)
}

func TestFacade_Errors(t *testing.T) {
	f, sink := newFacade(t, nil)

	assert.True(t, IsError(f.AddRow("nope", nil)))
	assert.True(t, IsError(f.UpdateValue(measurement.Table, measurement.ColVelocity, 1, 0)))
	assert.True(t, IsError(f.UpdateValue(measurement.Table, measurement.ColName, 12, 0)))
	assert.Empty(t, sink.rows)
}

func TestFacade_RemoveRow(t *testing.T) {
	f, sink := newFacade(t, nil)
	require.NoError(t, f.AddRow(measurement.Table, map[string]any{"name": "a"}))
	require.NoError(t, f.AddRow(measurement.Table, map[string]any{"name": "b"}))

	assert.True(t, f.RemoveRow(measurement.Table, measurement.ColName, "a"))
	assert.False(t, f.RemoveRow(measurement.Table, measurement.ColName, "a"))
	assert.False(t, f.RemoveRow("nope", measurement.ColName, "b"))

	tbl, _ := f.Table(measurement.Table)
	assert.Equal(t, 1, tbl.Len())
	assert.Len(t, sink.rows, 2)
}

func TestFacade_NilSink(t *testing.T) {
	coll, err := NewCollection(NewMeasurementTable())
	require.NoError(t, err)
	f := NewFacade(coll, MeasurementPolicy(), nil, nil)
	assert.NoError(t, f.AddRow(measurement.Table, map[string]any{"name": "a"}))
}
