package marker

import (
	"fmt"
	"log/slog"

	"github.com/cosmicds/cosmicds/internal/state"
)

// Field names the machine reads and writes.
const (
	// FieldMarker is the stage field holding the current marker.
	FieldMarker = "marker"
	// FieldStepIndex is the story field holding the current step.
	FieldStepIndex = "step_index"
	// FieldStepComplete is the story field raised when a step closes.
	FieldStepComplete = "step_complete"
)

// StageFields returns the stage container fields the machine needs.
func StageFields(seq *Sequence) []state.Field {
	return []state.Field{
		{Name: FieldMarker, Kind: state.String, Default: seq.First()},
		{Name: "markers", Kind: state.StringList, Default: seq.Markers()},
		{Name: "step_markers", Kind: state.StringList, Default: seq.StepMarkers()},
	}
}

// Machine drives marker progression for one stage.
//
// All methods must be called from the single state-mutation thread.
type Machine struct {
	seq    *Sequence
	stage  *state.Container
	story  *state.Container
	rules  []compiledRule
	logger *slog.Logger

	// triggerEnabled gates forward propagation. It is cleared only while
	// the reverse step_index -> marker write is in progress.
	triggerEnabled bool

	subs []binding
}

type binding struct {
	c   *state.Container
	sub state.Subscription
}

// MachineOption configures a Machine.
type MachineOption func(*machineConfig)

type machineConfig struct {
	rules  []SkipRule
	logger *slog.Logger
}

// WithSkipRules installs forward-only skip rules, evaluated in order.
func WithSkipRules(rules ...SkipRule) MachineOption {
	return func(cfg *machineConfig) {
		cfg.rules = append(cfg.rules, rules...)
	}
}

// WithMachineLogger sets the logger.
func WithMachineLogger(logger *slog.Logger) MachineOption {
	return func(cfg *machineConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// NewMachine binds seq to the stage and story containers.
//
// The stage container must have a String field named FieldMarker; the
// story container must have FieldStepIndex (Int) and FieldStepComplete
// (Bool). If the stage marker is not a member of seq it is reset to the
// first marker before any handler is registered.
func NewMachine(seq *Sequence, stage, story *state.Container, opts ...MachineOption) (*Machine, error) {
	cfg := machineConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}

	for _, f := range []struct {
		c    *state.Container
		name string
	}{
		{stage, FieldMarker},
		{story, FieldStepIndex},
		{story, FieldStepComplete},
	} {
		if !f.c.Has(f.name) {
			return nil, fmt.Errorf("container %s has no field %q", f.c.Name(), f.name)
		}
	}

	m := &Machine{
		seq:            seq,
		stage:          stage,
		story:          story,
		logger:         cfg.logger,
		triggerEnabled: true,
	}
	for _, r := range cfg.rules {
		cr, err := compileRule(seq, r)
		if err != nil {
			return nil, err
		}
		m.rules = append(m.rules, cr)
	}

	if !seq.Contains(stage.GetString(FieldMarker)) {
		if err := stage.Set(FieldMarker, seq.First()); err != nil {
			return nil, err
		}
	}

	if err := m.subscribe(stage, FieldMarker, m.onMarker); err != nil {
		return nil, err
	}
	if err := m.subscribe(story, FieldStepIndex, func(_, new any) { m.onStepIndex(new) }); err != nil {
		m.Close()
		return nil, err
	}
	return m, nil
}

func (m *Machine) subscribe(c *state.Container, field string, h state.Handler) error {
	sub, err := c.OnChange(field, h)
	if err != nil {
		return err
	}
	m.subs = append(m.subs, binding{c: c, sub: sub})
	return nil
}

// Close unregisters the machine's handlers.
func (m *Machine) Close() {
	for _, s := range m.subs {
		s.c.Unregister(s.sub)
	}
	m.subs = nil
}

// Sequence returns the bound sequence.
func (m *Machine) Sequence() *Sequence { return m.seq }

// Marker returns the current marker.
func (m *Machine) Marker() string {
	return m.stage.GetString(FieldMarker)
}

// SetMarker moves the stage to marker. A marker outside the sequence is
// rejected with *InvalidMarkerError and leaves the state unchanged.
func (m *Machine) SetMarker(marker string) error {
	if !m.seq.Contains(marker) {
		return &InvalidMarkerError{Marker: marker}
	}
	return m.stage.Set(FieldMarker, marker)
}

// Next advances to the following marker. At the terminal marker it is a
// no-op.
func (m *Machine) Next() error {
	i, _ := m.seq.Index(m.Marker())
	if i+1 >= m.seq.Len() {
		return nil
	}
	return m.SetMarker(m.seq.markers[i+1])
}

// Back returns to the preceding marker. At the initial marker it is a
// no-op.
func (m *Machine) Back() error {
	i, _ := m.seq.Index(m.Marker())
	if i == 0 {
		return nil
	}
	return m.SetMarker(m.seq.markers[i-1])
}

// Before reports whether the current marker comes strictly before marker.
func (m *Machine) Before(marker string) bool {
	return m.seq.Before(m.Marker(), marker)
}

// TriggerEnabled reports whether forward propagation is active.
func (m *Machine) TriggerEnabled() bool { return m.triggerEnabled }

// onMarker propagates forward marker moves into the story.
func (m *Machine) onMarker(old, new any) {
	if !m.triggerEnabled {
		return
	}
	oldMarker, _ := old.(string)
	newMarker, _ := new.(string)

	oldIdx, okOld := m.seq.Index(oldMarker)
	newIdx, okNew := m.seq.Index(newMarker)
	if !okNew {
		m.logger.Warn("marker outside sequence", "marker", newMarker)
		return
	}
	if !okOld || newIdx <= oldIdx {
		return
	}

	if step, ok := m.seq.StepIndex(newMarker); ok {
		if err := m.story.Set(FieldStepComplete, true); err != nil {
			m.logger.Error("set step_complete", "marker", newMarker, "error", err)
		}
		if step > m.story.GetInt(FieldStepIndex) {
			if err := m.story.Set(FieldStepIndex, step); err != nil {
				m.logger.Error("set step_index", "marker", newMarker, "error", err)
			}
		}
	}

	m.applySkipRules(newMarker)
}

// applySkipRules performs at most one forward correction from marker.
func (m *Machine) applySkipRules(marker string) {
	for _, r := range m.rules {
		if r.From != marker {
			continue
		}
		ok, err := r.holds(m.stage.Values())
		if err != nil {
			m.logger.Error("skip rule", "from", r.From, "to", r.To, "error", err)
			continue
		}
		if !ok {
			continue
		}
		m.logger.Debug("skip rule fired", "from", r.From, "to", r.To)
		if err := m.SetMarker(r.To); err != nil {
			m.logger.Error("skip rule", "from", r.From, "to", r.To, "error", err)
		}
		return
	}
}

// onStepIndex mirrors an externally set step index into the marker with
// forward propagation disabled.
func (m *Machine) onStepIndex(new any) {
	idx, _ := new.(int)
	marker, ok := m.seq.StepMarker(idx)
	if !ok {
		m.logger.Warn("step index outside step markers", "step_index", idx)
		return
	}

	prev := m.triggerEnabled
	m.triggerEnabled = false
	defer func() { m.triggerEnabled = prev }()

	if err := m.stage.Set(FieldMarker, marker); err != nil {
		m.logger.Error("reverse marker sync", "step_index", idx, "error", err)
	}
}
