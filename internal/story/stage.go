package story

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/cosmicds/cosmicds/internal/dataset"
	"github.com/cosmicds/cosmicds/internal/marker"
	"github.com/cosmicds/cosmicds/internal/measurement"
	"github.com/cosmicds/cosmicds/internal/state"
)

// Markers the stage reacts to directly.
const (
	MarkerChooseRow    = "cho_row1"
	MarkerMeetSpectrum = "mee_spe1"
)

// ErrNoSelection is returned by row operations when no row is selected.
var ErrNoSelection = errors.New("no galaxy selected")

// ErrVelocityToolDisabled is returned by UpdateVelocities before the
// Doppler calculation is complete, and after the tool has been used.
var ErrVelocityToolDisabled = errors.New("velocity tool disabled")

// Stage is the galaxy-collection stage of the Hubble story.
type Stage struct {
	def     StageDef
	state   *state.Container
	story   *state.Container
	machine *marker.Machine
	facade  *dataset.Facade
	palette Palette
	color   string
	logger  *slog.Logger

	dopplerSub   state.Subscription
	velocityTool bool
}

// StageOption configures a Stage.
type StageOption func(*Stage)

// WithPalette sets the table colours.
func WithPalette(p Palette) StageOption {
	return func(s *Stage) { s.palette = p }
}

// WithStageLogger sets the logger.
func WithStageLogger(logger *slog.Logger) StageOption {
	return func(s *Stage) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStage binds def to the story container. Table mutations go through
// facade, which must hold the measurement table.
func NewStage(def StageDef, story *state.Container, facade *dataset.Facade, opts ...StageOption) (*Stage, error) {
	seq, err := def.Sequence()
	if err != nil {
		return nil, fmt.Errorf("stage %d: %w", def.Index, err)
	}
	if _, err := facade.Table(measurement.Table); err != nil {
		return nil, fmt.Errorf("stage %d: %w", def.Index, err)
	}

	s := &Stage{
		def:     def,
		story:   story,
		facade:  facade,
		palette: DefaultPalette,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.state, err = state.New(fmt.Sprintf("stage_%d", def.Index), stageFields(seq), state.WithLogger(s.logger))
	if err != nil {
		return nil, err
	}
	s.machine, err = marker.NewMachine(seq, s.state, story,
		marker.WithSkipRules(def.SkipRules...),
		marker.WithMachineLogger(s.logger))
	if err != nil {
		return nil, fmt.Errorf("stage %d: %w", def.Index, err)
	}
	if s.dopplerSub, err = s.state.On(FieldDopplerCalcComplete, s.onDopplerCalcComplete); err != nil {
		s.machine.Close()
		return nil, err
	}
	s.color = s.palette.Info(true)
	return s, nil
}

// Def returns the stage definition.
func (s *Stage) Def() StageDef { return s.def }

// State returns the stage container.
func (s *Stage) State() *state.Container { return s.state }

// Machine returns the marker machine.
func (s *Stage) Machine() *marker.Machine { return s.machine }

// Close detaches the marker machine and the stage handlers.
func (s *Stage) Close() {
	s.state.Unregister(s.dopplerSub)
	s.machine.Close()
}

func (s *Stage) onDopplerCalcComplete(v any) {
	if done, _ := v.(bool); done {
		s.velocityTool = true
		s.logger.Debug("velocity tool enabled")
	}
}

// CompleteDopplerCalc records that the student finished the Doppler
// calculation, which enables the velocity tool.
func (s *Stage) CompleteDopplerCalc() error {
	return s.state.Set(FieldDopplerCalcComplete, true)
}

// VelocityToolEnabled reports whether UpdateVelocities may run.
func (s *Stage) VelocityToolEnabled() bool { return s.velocityTool }

// Marker returns the current marker.
func (s *Stage) Marker() string { return s.machine.Marker() }

// SetMarker moves the stage to m.
func (s *Stage) SetMarker(m string) error { return s.machine.SetMarker(m) }

// Next advances one marker.
func (s *Stage) Next() error { return s.machine.Next() }

// Back goes back one marker.
func (s *Stage) Back() error { return s.machine.Back() }

func (s *Stage) table() *dataset.Table {
	t, _ := s.facade.Table(measurement.Table)
	return t
}

// Measurements returns the measurement table for reading.
func (s *Stage) Measurements() *dataset.Table { return s.table() }

// SelectedIndex returns the selected row, or -1.
func (s *Stage) SelectedIndex() int { return s.state.GetInt(FieldSelectedIndex) }

// SelectGalaxy adds galaxy to the measurement table unless a row with the
// same name exists. The element column is left for SetRestWavelength to
// fill. It reports whether a row was added.
func (s *Stage) SelectGalaxy(galaxy map[string]any) (bool, error) {
	name, _ := galaxy[measurement.ColName].(string)
	if name == "" {
		return false, fmt.Errorf("select galaxy: missing %s", measurement.ColName)
	}
	if s.table().Find(measurement.ColName, name) >= 0 {
		s.logger.Debug("galaxy already selected", "galaxy", name)
		return false, nil
	}

	row := make(map[string]any, len(galaxy))
	for k, v := range galaxy {
		if k == measurement.ColElement {
			continue
		}
		row[k] = v
	}
	if err := s.story.Set(FieldSpectrumData, name); err != nil {
		return false, err
	}
	if err := s.facade.AddRow(measurement.Table, row); err != nil {
		return false, fmt.Errorf("select galaxy %s: %w", name, err)
	}
	return true, s.state.Set(FieldGalsTotal, s.table().Len())
}

// SelectRow selects row idx of the measurement table, or clears the
// selection when idx is -1. Selecting while at cho_row1 moves on to
// mee_spe1.
func (s *Stage) SelectRow(idx int) error {
	if idx == -1 {
		if err := s.story.Set(FieldSpectrumData, ""); err != nil {
			return err
		}
		return s.state.Set(FieldSelectedIndex, -1)
	}
	row, err := s.table().Row(idx)
	if err != nil {
		return fmt.Errorf("select row: %w", err)
	}

	name, _ := row[measurement.ColName].(string)
	if err := s.story.Set(FieldSpectrumData, name); err != nil {
		return err
	}
	updates := []struct {
		field string
		value any
	}{
		{FieldSelectedIndex, idx},
		{FieldLambdaRest, floatOr(row[measurement.ColRestWave])},
		{FieldLambdaObs, floatOr(row[measurement.ColMeasWave])},
		{FieldElement, stringOr(row[measurement.ColElement])},
		{FieldWavelineSet, false},
	}
	for _, u := range updates {
		if err := s.state.Set(u.field, u.value); err != nil {
			return err
		}
	}

	if s.Marker() == MarkerChooseRow {
		return s.SetMarker(MarkerMeetSpectrum)
	}
	return nil
}

// SetRestWavelength records element for the selected galaxy along with the
// matching rest wavelength.
func (s *Stage) SetRestWavelength(element string) error {
	idx := s.SelectedIndex()
	if idx < 0 {
		return ErrNoSelection
	}
	rest := measurement.RestWavelength(element)
	if err := s.facade.UpdateValue(measurement.Table, measurement.ColElement, element, idx); err != nil {
		return err
	}
	if err := s.facade.UpdateValue(measurement.Table, measurement.ColRestWave, rest, idx); err != nil {
		return err
	}
	if err := s.state.Set(FieldElement, element); err != nil {
		return err
	}
	return s.state.Set(FieldLambdaRest, rest)
}

// MeasureWavelength records an observed wavelength, rounded to a whole
// angstrom. Without a selected galaxy only the stage state changes.
func (s *Stage) MeasureWavelength(v float64) error {
	v = math.Round(v)
	if err := s.state.Set(FieldWavelineSet, true); err != nil {
		return err
	}
	if err := s.state.Set(FieldLambdaObs, v); err != nil {
		return err
	}
	idx := s.SelectedIndex()
	if idx < 0 {
		return nil
	}
	return s.facade.UpdateValue(measurement.Table, measurement.ColMeasWave, v, idx)
}

// AddCurrentVelocity computes the velocity of the selected galaxy from its
// wavelengths.
func (s *Stage) AddCurrentVelocity() (int, error) {
	idx := s.SelectedIndex()
	if idx < 0 {
		return 0, ErrNoSelection
	}
	vel, err := s.velocityAt(idx)
	if err != nil {
		return 0, err
	}
	return vel, s.facade.UpdateValue(measurement.Table, measurement.ColVelocity, vel, idx)
}

// UpdateVelocities fills every empty velocity whose wavelengths are known
// and returns how many rows changed. The velocity tool is used up by a run
// that completes.
func (s *Stage) UpdateVelocities() (int, error) {
	if !s.velocityTool {
		return 0, ErrVelocityToolDisabled
	}
	t := s.table()
	n := 0
	for i := 0; i < t.Len(); i++ {
		cur, _ := t.Value(measurement.ColVelocity, i)
		if cur != nil {
			continue
		}
		vel, err := s.velocityAt(i)
		if err != nil {
			s.logger.Debug("velocity skipped", "row", i, "error", err)
			continue
		}
		if err := s.facade.UpdateValue(measurement.Table, measurement.ColVelocity, vel, i); err != nil {
			return n, err
		}
		n++
	}
	s.velocityTool = false
	return n, nil
}

// AddStudentVelocity stores a velocity the student calculated by hand for
// the selected galaxy, rounded to a whole km/s.
func (s *Stage) AddStudentVelocity(v float64) error {
	idx := s.SelectedIndex()
	if idx < 0 {
		return ErrNoSelection
	}
	if err := s.state.Set(FieldStudentVel, v); err != nil {
		return err
	}
	return s.facade.UpdateValue(measurement.Table, measurement.ColVelocity, math.Round(v), idx)
}

// RemoveMeasurement drops the named galaxy. Removal stays local. If the
// removed row was selected the selection is cleared.
func (s *Stage) RemoveMeasurement(name string) (bool, error) {
	t := s.table()
	idx := t.Find(measurement.ColName, name)
	if idx < 0 || !s.facade.RemoveRow(measurement.Table, measurement.ColName, name) {
		return false, nil
	}

	sel := s.SelectedIndex()
	switch {
	case sel == idx:
		if err := s.SelectRow(-1); err != nil {
			return true, err
		}
	case sel > idx:
		if err := s.state.Set(FieldSelectedIndex, sel-1); err != nil {
			return true, err
		}
	}
	return true, s.state.Set(FieldGalsTotal, t.Len())
}

// TableSelectedColor returns the selection colour for the theme.
func (s *Stage) TableSelectedColor(dark bool) string { return s.palette.Info(dark) }

// SelectedColor returns the colour currently applied to the table.
func (s *Stage) SelectedColor() string { return s.color }

// OnDarkMode restyles the stage for the theme.
func (s *Stage) OnDarkMode(dark bool) { s.color = s.TableSelectedColor(dark) }

func (s *Stage) velocityAt(row int) (int, error) {
	t := s.table()
	rest, _ := t.Value(measurement.ColRestWave, row)
	meas, _ := t.Value(measurement.ColMeasWave, row)
	r, ok1 := rest.(float64)
	m, ok2 := meas.(float64)
	if !ok1 || !ok2 {
		return 0, fmt.Errorf("row %d: wavelengths not measured", row)
	}
	return measurement.Velocity(r, m)
}

func floatOr(v any) float64 {
	f, _ := v.(float64)
	return f
}

func stringOr(v any) string {
	s, _ := v.(string)
	return s
}
