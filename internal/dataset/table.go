package dataset

import (
	"fmt"
	"math"
	"reflect"
)

// Kind is the type of a column.
type Kind int

const (
	String Kind = iota + 1
	Int
	Float
	Bool
)

func (k Kind) String() string {
	switch k {
	case String:
		return "string"
	case Int:
		return "int"
	case Float:
		return "float"
	case Bool:
		return "bool"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Column describes one table column.
type Column struct {
	Name string `json:"name"`
	Kind Kind   `json:"kind"`
}

// Table is a named table with ordered, typed columns.
//
// Table is not safe for concurrent use; it belongs to the session's
// state-mutation thread.
type Table struct {
	name    string
	columns []Column
	index   map[string]int
	data    [][]any // data[column][row]
}

// NewTable creates an empty table.
func NewTable(name string, columns []Column) (*Table, error) {
	if name == "" {
		return nil, &Error{Dataset: name, Row: -1, Message: "empty table name"}
	}
	if len(columns) == 0 {
		return nil, &Error{Dataset: name, Row: -1, Message: "no columns"}
	}
	t := &Table{
		name:    name,
		columns: append([]Column(nil), columns...),
		index:   make(map[string]int, len(columns)),
		data:    make([][]any, len(columns)),
	}
	for i, c := range t.columns {
		if c.Name == "" {
			return nil, &Error{Dataset: name, Row: -1, Message: fmt.Sprintf("column %d has no name", i)}
		}
		if c.Kind < String || c.Kind > Bool {
			return nil, &Error{Dataset: name, Column: c.Name, Row: -1, Message: "unknown kind"}
		}
		if _, dup := t.index[c.Name]; dup {
			return nil, &Error{Dataset: name, Column: c.Name, Row: -1, Message: "duplicate column"}
		}
		t.index[c.Name] = i
	}
	return t, nil
}

// MustTable is NewTable for static definitions; it panics on error.
func MustTable(name string, columns []Column) *Table {
	t, err := NewTable(name, columns)
	if err != nil {
		panic(err)
	}
	return t
}

// Name returns the table name.
func (t *Table) Name() string { return t.name }

// Columns returns a copy of the column list.
func (t *Table) Columns() []Column { return append([]Column(nil), t.columns...) }

// HasColumn reports whether col exists.
func (t *Table) HasColumn(col string) bool {
	_, ok := t.index[col]
	return ok
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if len(t.data) == 0 {
		return 0
	}
	return len(t.data[0])
}

func (t *Table) column(col string) (int, error) {
	i, ok := t.index[col]
	if !ok {
		return 0, &Error{Dataset: t.name, Column: col, Row: -1, Message: "unknown column"}
	}
	return i, nil
}

func (t *Table) checkRow(row int) error {
	if row < 0 || row >= t.Len() {
		return &Error{Dataset: t.name, Row: row, Message: fmt.Sprintf("out of range [0,%d)", t.Len())}
	}
	return nil
}

// Value returns the value at (col, row).
func (t *Table) Value(col string, row int) (any, error) {
	ci, err := t.column(col)
	if err != nil {
		return nil, err
	}
	if err := t.checkRow(row); err != nil {
		return nil, err
	}
	return t.data[ci][row], nil
}

// Row returns a copy of row keyed by column name.
func (t *Table) Row(row int) (map[string]any, error) {
	if err := t.checkRow(row); err != nil {
		return nil, err
	}
	out := make(map[string]any, len(t.columns))
	for ci, c := range t.columns {
		out[c.Name] = t.data[ci][row]
	}
	return out, nil
}

// Find returns the first row whose col equals v, or -1.
func (t *Table) Find(col string, v any) int {
	ci, ok := t.index[col]
	if !ok {
		return -1
	}
	conv, err := convert(t.columns[ci].Kind, v)
	if err != nil {
		return -1
	}
	for i, cur := range t.data[ci] {
		if reflect.DeepEqual(cur, conv) {
			return i
		}
	}
	return -1
}

// Set writes v at (col, row).
func (t *Table) Set(col string, row int, v any) error {
	ci, err := t.column(col)
	if err != nil {
		return err
	}
	if err := t.checkRow(row); err != nil {
		return err
	}
	conv, err := convert(t.columns[ci].Kind, v)
	if err != nil {
		return &Error{Dataset: t.name, Column: col, Row: row, Message: err.Error()}
	}
	t.data[ci][row] = conv
	return nil
}

// Append adds a row and returns its index. Columns absent from values are
// nil. Unknown keys are rejected and leave the table unchanged.
func (t *Table) Append(values map[string]any) (int, error) {
	row := make([]any, len(t.columns))
	for k, v := range values {
		ci, err := t.column(k)
		if err != nil {
			return -1, err
		}
		conv, err := convert(t.columns[ci].Kind, v)
		if err != nil {
			return -1, &Error{Dataset: t.name, Column: k, Row: -1, Message: err.Error()}
		}
		row[ci] = conv
	}
	for ci := range t.columns {
		t.data[ci] = append(t.data[ci], row[ci])
	}
	return t.Len() - 1, nil
}

// Remove deletes row, shifting later rows up.
func (t *Table) Remove(row int) error {
	if err := t.checkRow(row); err != nil {
		return err
	}
	for ci := range t.data {
		t.data[ci] = append(t.data[ci][:row], t.data[ci][row+1:]...)
	}
	return nil
}

// Column returns a copy of the values in col.
func (t *Table) Column(col string) ([]any, error) {
	ci, err := t.column(col)
	if err != nil {
		return nil, err
	}
	return append([]any(nil), t.data[ci]...), nil
}

// convert checks v against k. Integers widen to Float; whole floats
// narrow to Int.
func convert(k Kind, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch k {
	case String:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case Bool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case Int:
		switch n := v.(type) {
		case int:
			return int64(n), nil
		case int32:
			return int64(n), nil
		case int64:
			return n, nil
		case float64:
			if n == math.Trunc(n) && !math.IsInf(n, 0) {
				return int64(n), nil
			}
		}
	case Float:
		switch n := v.(type) {
		case float64:
			if math.IsNaN(n) {
				return nil, nil
			}
			return n, nil
		case float32:
			return float64(n), nil
		case int:
			return float64(n), nil
		case int32:
			return float64(n), nil
		case int64:
			return float64(n), nil
		}
	}
	return nil, fmt.Errorf("cannot store %T in %s column", v, k)
}
