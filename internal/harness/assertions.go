package harness

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/cosmicds/cosmicds/internal/story"
	"github.com/cosmicds/cosmicds/internal/value"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			switch event.Type {
			case EventInvocation:
				fmt.Fprintf(&buf, "  [%d] %s %v\n", event.Seq, event.Op, event.Args)
			case EventRemote:
				fmt.Fprintf(&buf, "  [%d]   remote %s %v\n", event.Seq, event.Op, event.Args)
			case EventCompletion:
				if event.Outcome == OutcomeError {
					fmt.Fprintf(&buf, "  [%d]   error: %s\n", event.Seq, event.Error)
				}
			}
		}
	}
	return buf.String()
}

func eventType(a Assertion) string {
	if a.Event == "" {
		return EventInvocation
	}
	return a.Event
}

// assertTraceContains checks that an event of the op exists whose args
// (result for completions) contain the expected args.
func assertTraceContains(trace []TraceEvent, a Assertion) error {
	typ := eventType(a)
	for _, event := range trace {
		if event.Type != typ || event.Op != a.Op {
			continue
		}
		fields := event.Args
		if typ == EventCompletion {
			fields = event.Result
		}
		if matchArgs(fields, a.Args) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("%s %s with args %v", typ, a.Op, a.Args),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that the first occurrences of the ops appear in
// the given order. Other events may appear in between.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	typ := eventType(a)
	positions := make(map[string]int)
	for i, event := range trace {
		if event.Type != typ {
			continue
		}
		if _, seen := positions[event.Op]; !seen {
			positions[event.Op] = i + 1
		}
	}

	for _, op := range a.Ops {
		if positions[op] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all ops present: %v", a.Ops),
				Actual:   fmt.Sprintf("missing op: %s", op),
				Trace:    trace,
			}
		}
	}
	for i := 1; i < len(a.Ops); i++ {
		prev, curr := a.Ops[i-1], a.Ops[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("ops in order: %v", a.Ops),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks that exactly Count events of the op occurred.
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	typ := eventType(a)
	count := 0
	for _, event := range trace {
		if event.Type == typ && event.Op == a.Op {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d %s events of %s", a.Count, typ, a.Op),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalState checks container fields, or one measurement row, with
// subset semantics.
func assertFinalState(app *story.App, a Assertion) error {
	var actual map[string]any
	switch a.Container {
	case ContainerApp:
		actual = app.State().Values()
	case ContainerStory:
		actual = app.Story().Values()
	case ContainerStage:
		actual = app.Stage().State().Values()
	case ContainerMeasurements:
		row, err := app.Stage().Measurements().Row(a.Row)
		if err != nil {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("measurement row %d", a.Row),
				Actual:   err.Error(),
			}
		}
		actual = row
	default:
		return fmt.Errorf("final_state: unknown container %q", a.Container)
	}

	for _, key := range sortedKeys(a.Expect) {
		want := a.Expect[key]
		got, ok := actual[key]
		if !ok {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("%s field %q to exist", a.Container, key),
				Actual:   fmt.Sprintf("fields: %v", sortedKeys(actual)),
			}
		}
		if !valuesEqual(got, want) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("%s field %q = %v (type %T)", a.Container, key, want, want),
				Actual:   fmt.Sprintf("%s field %q = %v (type %T)", a.Container, key, got, got),
			}
		}
	}
	return nil
}

// matchArgs checks if actual contains all expected keys with equal values.
func matchArgs(actual map[string]any, expected map[string]any) bool {
	for key, want := range expected {
		got, ok := actual[key]
		if !ok || !valuesEqual(got, want) {
			return false
		}
	}
	return true
}

// valuesEqual compares scenario data with session data. Integer and float
// kinds compare by numeric value, so YAML 6565 matches a stored 6565.0.
func valuesEqual(actual, expected any) bool {
	a, errA := value.Normalize(actual)
	e, errE := value.Normalize(expected)
	if errA != nil || errE != nil {
		return reflect.DeepEqual(actual, expected)
	}
	return normalizedEqual(a, e)
}

func normalizedEqual(a, e any) bool {
	if af, ok := number(a); ok {
		ef, ok := number(e)
		return ok && af == ef
	}
	switch av := a.(type) {
	case []any:
		ev, ok := e.([]any)
		if !ok || len(av) != len(ev) {
			return false
		}
		for i := range av {
			if !normalizedEqual(av[i], ev[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		ev, ok := e.(map[string]any)
		if !ok || len(av) != len(ev) {
			return false
		}
		for k, v := range av {
			other, ok := ev[k]
			if !ok || !normalizedEqual(v, other) {
				return false
			}
		}
		return true
	default:
		return reflect.DeepEqual(a, e)
	}
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// AssertionContext gives assertions access to the finished session.
type AssertionContext struct {
	App *story.App
}

// EvaluateAssertions evaluates all assertions against the result and
// returns the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, assertion := range assertions {
		var err error
		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertFinalState:
			if actx == nil || actx.App == nil {
				err = fmt.Errorf("assertion[%d]: final_state requires a session", i)
			} else {
				err = assertFinalState(actx.App, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}
		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}
