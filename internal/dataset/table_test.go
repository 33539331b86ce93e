package dataset

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func galaxyTable(t *testing.T) *Table {
	t.Helper()
	tbl, err := NewTable("galaxies", []Column{
		{Name: "name", Kind: String},
		{Name: "count", Kind: Int},
		{Name: "z", Kind: Float},
		{Name: "flagged", Kind: Bool},
	})
	require.NoError(t, err)
	return tbl
}

func TestNewTable_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		table   string
		columns []Column
	}{
		{"empty name", "", []Column{{Name: "a", Kind: String}}},
		{"no columns", "t", nil},
		{"blank column", "t", []Column{{Kind: String}}},
		{"unknown kind", "t", []Column{{Name: "a"}}},
		{"duplicate", "t", []Column{{Name: "a", Kind: String}, {Name: "a", Kind: Int}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTable(tt.table, tt.columns)
			require.Error(t, err)
			assert.True(t, IsError(err))
		})
	}
}

func TestTable_AppendAndRead(t *testing.T) {
	tbl := galaxyTable(t)

	i, err := tbl.Append(map[string]any{"name": "NGC 1", "count": 3, "z": 1})
	require.NoError(t, err)
	assert.Equal(t, 0, i)
	assert.Equal(t, 1, tbl.Len())

	row, err := tbl.Row(0)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "NGC 1", "count": int64(3), "z": 1.0, "flagged": nil}, row)

	v, err := tbl.Value("z", 0)
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)
}

func TestTable_AppendRejectsAtomically(t *testing.T) {
	tbl := galaxyTable(t)

	_, err := tbl.Append(map[string]any{"name": "x", "bogus": 1})
	require.Error(t, err)
	_, err = tbl.Append(map[string]any{"name": 7})
	require.Error(t, err)
	assert.Equal(t, 0, tbl.Len())
}

func TestTable_SetConversions(t *testing.T) {
	tbl := galaxyTable(t)
	_, err := tbl.Append(nil)
	require.NoError(t, err)

	require.NoError(t, tbl.Set("count", 0, 4.0))
	v, _ := tbl.Value("count", 0)
	assert.Equal(t, int64(4), v)

	assert.Error(t, tbl.Set("count", 0, 4.5))
	assert.Error(t, tbl.Set("flagged", 0, "yes"))

	require.NoError(t, tbl.Set("z", 0, math.NaN()))
	v, _ = tbl.Value("z", 0)
	assert.Nil(t, v)

	var de *Error
	err = tbl.Set("z", 3, 1.0)
	require.ErrorAs(t, err, &de)
	assert.Equal(t, 3, de.Row)

	err = tbl.Set("nope", 0, 1.0)
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "nope", de.Column)
}

func TestTable_FindAndRemove(t *testing.T) {
	tbl := galaxyTable(t)
	for _, n := range []string{"a", "b", "c"} {
		_, err := tbl.Append(map[string]any{"name": n})
		require.NoError(t, err)
	}

	assert.Equal(t, 1, tbl.Find("name", "b"))
	assert.Equal(t, -1, tbl.Find("name", "d"))
	assert.Equal(t, -1, tbl.Find("missing", "a"))

	require.NoError(t, tbl.Remove(1))
	names, err := tbl.Column("name")
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "c"}, names)
	assert.Error(t, tbl.Remove(5))
}

func TestTable_FindConvertsNumbers(t *testing.T) {
	tbl := galaxyTable(t)
	_, err := tbl.Append(map[string]any{"count": 2})
	require.NoError(t, err)

	assert.Equal(t, 0, tbl.Find("count", 2.0))
	assert.Equal(t, 0, tbl.Find("count", int64(2)))
}

func TestCollection(t *testing.T) {
	a := MustTable("a", []Column{{Name: "x", Kind: Int}})
	b := MustTable("b", []Column{{Name: "x", Kind: Int}})

	c, err := NewCollection(b, a)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, c.Names())
	assert.Error(t, c.Add(a))

	got, err := c.Table("a")
	require.NoError(t, err)
	assert.Same(t, a, got)

	_, err = c.Table("zzz")
	assert.True(t, IsError(err))
}
