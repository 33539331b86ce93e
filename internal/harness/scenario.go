package harness

import (
	"bytes"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Scenario is a scripted story session. The steps run against an
// in-memory remote store and the resulting trace and state are checked by
// the assertions.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	Description string `yaml:"description"`

	// Story is the catalog story to open. Empty means the default story.
	Story string `yaml:"story,omitempty"`

	// Stage is the stage index to open. Zero means the first stage.
	Stage int `yaml:"stage,omitempty"`

	// StudentID is the configured student. Zero lets the session ask the
	// remote store for a seed student.
	StudentID int64 `yaml:"student_id,omitempty"`

	TeamMember *int64 `yaml:"team_member,omitempty"`

	// SyncEnabled defaults to true.
	SyncEnabled *bool `yaml:"sync_enabled,omitempty"`

	// StoredState seeds the remote store with a story state for the
	// session's student before it starts.
	StoredState map[string]any `yaml:"stored_state,omitempty"`

	// Failures makes the named remote operations fail with the message.
	Failures map[string]string `yaml:"failures,omitempty"`

	// Steps run in order after the session has started.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions"`

	// SessionToken fixes the session token so traces are reproducible.
	SessionToken string `yaml:"session_token,omitempty"`
}

// Sync reports whether the scenario runs with remote persistence on.
func (s *Scenario) Sync() bool {
	return s.SyncEnabled == nil || *s.SyncEnabled
}

// Step is one operation on the running session.
type Step struct {
	Op   string         `yaml:"op"`
	Args map[string]any `yaml:"args,omitempty"`

	// Expect checks the outcome. Without it the step must succeed.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect describes the outcome of a step.
type Expect struct {
	// Error is a substring the step's error must contain. Empty means the
	// step must succeed.
	Error string `yaml:"error,omitempty"`

	// Result is matched as a subset against the completion result.
	Result map[string]any `yaml:"result,omitempty"`
}

// Assertion validates the trace or the final state.
type Assertion struct {
	// Type is one of trace_contains, trace_order, trace_count, final_state.
	Type string `yaml:"type"`

	// Op names the step or remote operation (trace_contains, trace_count).
	Op string `yaml:"op,omitempty"`

	// Event restricts trace assertions to invocation, completion or
	// remote events. Empty means invocation.
	Event string `yaml:"event,omitempty"`

	// Args are matched as a subset (trace_contains).
	Args map[string]any `yaml:"args,omitempty"`

	// Count is the exact number of matching events (trace_count).
	Count int `yaml:"count,omitempty"`

	// Ops is the expected order (trace_order).
	Ops []string `yaml:"ops,omitempty"`

	// Container is app, story, stage or measurements (final_state).
	Container string `yaml:"container,omitempty"`

	// Row selects a measurement row (final_state on measurements).
	Row int `yaml:"row,omitempty"`

	// Expect holds the expected field values (final_state).
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion types.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

// Final state containers.
const (
	ContainerApp          = "app"
	ContainerStory        = "story"
	ContainerStage        = "stage"
	ContainerMeasurements = "measurements"
)

// ParseScenario decodes a scenario document. Unknown fields are rejected.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadScenario reads and parses the scenario file at p.
func LoadScenario(fs afero.Fs, p string) (*Scenario, error) {
	data, err := afero.ReadFile(fs, p)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	s, err := ParseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p, err)
	}
	return s, nil
}

// LoadScenarioDir loads every *.yaml and *.yml file in dir, sorted by file
// name. Scenario names must be unique.
func LoadScenarioDir(fs afero.Fs, dir string) ([]*Scenario, error) {
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if ext := path.Ext(e.Name()); ext == ".yaml" || ext == ".yml" {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	seen := make(map[string]string, len(files))
	out := make([]*Scenario, 0, len(files))
	for _, name := range files {
		s, err := LoadScenario(fs, path.Join(dir, name))
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[s.Name]; dup {
			return nil, fmt.Errorf("scenario %q defined in both %s and %s", s.Name, prev, name)
		}
		seen[s.Name] = name
		out = append(out, s)
	}
	return out, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if strings.ContainsAny(s.Name, `/\`) {
		return fmt.Errorf("name %q must not contain path separators", s.Name)
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if s.StudentID < 0 {
		return fmt.Errorf("student_id must be positive")
	}
	for op := range s.Failures {
		if !remoteOps[op] {
			return fmt.Errorf("failures: unknown remote operation %q", op)
		}
	}
	if s.StoredState != nil && s.StudentID == 0 && !s.Sync() {
		return fmt.Errorf("stored_state needs a student_id or sync_enabled")
	}

	for i, step := range s.Steps {
		if step.Op == "" {
			return fmt.Errorf("steps[%d]: op is required", i)
		}
		if _, ok := operations[step.Op]; !ok {
			return fmt.Errorf("steps[%d]: unknown op %q", i, step.Op)
		}
	}
	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	switch a.Event {
	case "", EventInvocation, EventCompletion, EventRemote:
	default:
		return fmt.Errorf("assertions[%d]: unknown event %q", index, a.Event)
	}

	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertTraceContains:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Ops) == 0 {
			return fmt.Errorf("assertions[%d]: ops list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		switch a.Container {
		case ContainerApp, ContainerStory, ContainerStage, ContainerMeasurements:
		case "":
			return fmt.Errorf("assertions[%d]: container is required for final_state", index)
		default:
			return fmt.Errorf("assertions[%d]: unknown container %q", index, a.Container)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
