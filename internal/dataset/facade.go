package dataset

import (
	"log/slog"
	"slices"

	"github.com/cosmicds/cosmicds/internal/measurement"
)

// Sink receives rows that must be mirrored to the remote store.
type Sink interface {
	SubmitMeasurement(row measurement.Record)
}

// Gate reports whether mirroring is enabled.
type Gate interface {
	SyncEnabled() bool
}

// Policy names the watched table and the columns whose updates are
// mirrored. AddRow on the watched table always mirrors.
type Policy struct {
	Table   string
	Columns []string
}

// MeasurementPolicy watches the measurement table and every column with an
// external mapping.
func MeasurementPolicy() Policy {
	cols := make([]string, 0, len(measurement.Mapping))
	for c := range measurement.Mapping {
		cols = append(cols, c)
	}
	slices.Sort(cols)
	return Policy{Table: measurement.Table, Columns: cols}
}

func (p Policy) watches(table, column string) bool {
	if table != p.Table {
		return false
	}
	return column == "" || slices.Contains(p.Columns, column)
}

// Facade is the only mutation path for tables in a session.
type Facade struct {
	coll   *Collection
	policy Policy
	sink   Sink
	gate   Gate
	logger *slog.Logger
}

// NewFacade wraps coll. A nil sink disables mirroring; a nil gate is
// always open.
func NewFacade(coll *Collection, policy Policy, sink Sink, gate Gate) *Facade {
	return &Facade{
		coll:   coll,
		policy: policy,
		sink:   sink,
		gate:   gate,
		logger: slog.Default(),
	}
}

// SetLogger replaces the facade's logger.
func (f *Facade) SetLogger(logger *slog.Logger) {
	if logger != nil {
		f.logger = logger
	}
}

// Collection returns the wrapped collection.
func (f *Facade) Collection() *Collection { return f.coll }

// Table returns the named table for reading.
func (f *Facade) Table(name string) (*Table, error) { return f.coll.Table(name) }

// UpdateValue writes v at (column, row) of ds and mirrors the full row when
// the policy watches the column.
func (f *Facade) UpdateValue(ds, column string, v any, row int) error {
	t, err := f.coll.Table(ds)
	if err != nil {
		return err
	}
	if err := t.Set(column, row, v); err != nil {
		return err
	}
	if f.policy.watches(ds, column) {
		f.submit(t, row)
	}
	return nil
}

// AddRow appends values to ds and mirrors the new row when ds is watched.
func (f *Facade) AddRow(ds string, values map[string]any) error {
	t, err := f.coll.Table(ds)
	if err != nil {
		return err
	}
	row, err := t.Append(values)
	if err != nil {
		return err
	}
	if f.policy.watches(ds, "") {
		f.submit(t, row)
	}
	return nil
}

// RemoveRow deletes the first row of ds whose column equals v. It reports
// whether a row was removed. Removal is never mirrored.
func (f *Facade) RemoveRow(ds, column string, v any) bool {
	t, err := f.coll.Table(ds)
	if err != nil {
		return false
	}
	i := t.Find(column, v)
	if i < 0 {
		return false
	}
	return t.Remove(i) == nil
}

func (f *Facade) submit(t *Table, row int) {
	if f.sink == nil || (f.gate != nil && !f.gate.SyncEnabled()) {
		return
	}
	rec, err := t.Row(row)
	if err != nil {
		f.logger.Error("read mirrored row", "dataset", t.Name(), "row", row, "error", err)
		return
	}
	f.sink.SubmitMeasurement(measurement.Record(rec))
}

// NewMeasurementTable returns an empty measurement table.
func NewMeasurementTable() *Table {
	return MustTable(measurement.Table, []Column{
		{Name: measurement.ColName, Kind: String},
		{Name: measurement.ColElement, Kind: String},
		{Name: measurement.ColRestWave, Kind: Float},
		{Name: measurement.ColMeasWave, Kind: Float},
		{Name: measurement.ColVelocity, Kind: Float},
		{Name: measurement.ColDistance, Kind: Float},
		{Name: measurement.ColAngularSize, Kind: Float},
		{Name: measurement.ColType, Kind: String},
		{Name: measurement.ColZ, Kind: Float},
		{Name: measurement.ColStudentID, Kind: Int},
	})
}
