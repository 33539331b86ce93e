package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/cosmicds/cosmicds/internal/engine"
	"github.com/cosmicds/cosmicds/internal/remote"
	"github.com/cosmicds/cosmicds/internal/story"
	"github.com/cosmicds/cosmicds/internal/testutil"
	"github.com/cosmicds/cosmicds/internal/value"
)

// Harness runs the steps of one scenario against a live session backed by
// an in-memory remote store.
type Harness struct {
	app    *story.App
	client *testutil.RecordingClient
	clock  *engine.Clock
	logger *slog.Logger
	seen   int
}

type runOptions struct {
	catalog *story.Catalog
	logger  *slog.Logger
}

// Option configures a run.
type Option func(*runOptions)

// WithCatalog runs scenarios against cat instead of the built-in catalog.
func WithCatalog(cat *story.Catalog) Option {
	return func(o *runOptions) { o.catalog = cat }
}

// WithLogger sets the session logger. Logs are discarded by default.
func WithLogger(logger *slog.Logger) Option {
	return func(o *runOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Run executes a scenario and returns its result. Expectation and
// assertion failures are reported in the result; the error is reserved for
// scenarios that cannot be set up.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	return RunContext(context.Background(), scenario, opts...)
}

// RunContext is Run with a caller supplied context for the steps.
func RunContext(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	o := runOptions{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&o)
	}
	cat := o.catalog
	if cat == nil {
		var err error
		if cat, err = story.LoadCatalog(); err != nil {
			return nil, fmt.Errorf("failed to load catalog: %w", err)
		}
	}
	name := scenario.Story
	if name == "" {
		name = story.DefaultStory
	}
	def, err := cat.Story(name)
	if err != nil {
		return nil, err
	}

	client := testutil.NewRecordingClient()
	if err := seedClient(client, scenario, name); err != nil {
		return nil, err
	}

	cfg := story.Config{
		Story:       name,
		StudentID:   scenario.StudentID,
		TeamMember:  scenario.TeamMember,
		SyncEnabled: scenario.Sync(),
		Stage:       scenario.Stage,
	}
	app, err := story.NewApp(client, def, cfg,
		story.WithLogger(o.logger),
		story.WithTokens(testutil.NewFixedToken(scenario.SessionToken)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	defer app.Close()

	h := &Harness{
		app:    app,
		client: client,
		clock:  engine.NewClock(),
		logger: o.logger.With("scenario", scenario.Name),
	}

	result := NewResult()
	h.executeSteps(ctx, scenario.Steps, result)
	result.State = h.finalState()

	actx := &AssertionContext{App: app}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

// seedClient installs the stored state and injected failures.
func seedClient(client *testutil.RecordingClient, s *Scenario, storyName string) error {
	if s.StoredState != nil {
		student := s.StudentID
		if student == 0 {
			// seed students are numbered from 1
			student = 1
		}
		v, err := value.FromGo(s.StoredState)
		if err != nil {
			return fmt.Errorf("stored_state: %w", err)
		}
		obj, _ := v.(value.Object)
		if err := client.SetState(student, storyName, obj); err != nil {
			return fmt.Errorf("stored_state: %w", err)
		}
	}
	for op, msg := range s.Failures {
		client.Fail(op, &remote.NetworkError{Op: op, Err: errors.New(msg)})
	}
	return nil
}

// executeSteps runs every step in order. A failing step does not stop the
// run; later steps and the assertions still see the session as it is.
func (h *Harness) executeSteps(ctx context.Context, steps []Step, result *Result) {
	for i, step := range steps {
		result.AddInvocation(step.Op, step.Args, h.clock.Next())

		res, err := Apply(ctx, h.app, step)
		h.app.Synchronizer().Wait()
		result.AddCompletion(step.Op, res, err, h.clock.Next())
		h.recordRemote(result)

		for _, msg := range checkExpect(step, res, err) {
			result.AddError(fmt.Sprintf("steps[%d] %s: %s", i, step.Op, msg))
		}
		h.logger.Debug("step completed", "step", i, "op", step.Op, "error", err)
	}
}

// Apply performs one step against app and returns the completion result:
// the op's own fields plus the current marker and step_index. Remote calls
// the step caused may still be in flight when it returns.
func Apply(ctx context.Context, app *story.App, step Step) (map[string]any, error) {
	op, ok := operations[step.Op]
	if !ok {
		return nil, fmt.Errorf("unknown op %q", step.Op)
	}
	extra, err := op(ctx, app, step.Args)
	return completionResult(app, extra), err
}

// recordRemote appends the remote calls made since the last step. Calls
// dispatched concurrently have no inherent order, so they are sorted.
func (h *Harness) recordRemote(result *Result) {
	calls := h.client.Calls()
	if h.seen >= len(calls) {
		return
	}
	type entry struct {
		op   string
		args map[string]any
		key  string
	}
	fresh := make([]entry, 0, len(calls)-h.seen)
	for _, call := range calls[h.seen:] {
		args := remoteArgs(call)
		key, err := value.MarshalCanonical(args)
		if err != nil {
			key = []byte(fmt.Sprint(args))
		}
		fresh = append(fresh, entry{op: call.Op, args: args, key: string(key)})
	}
	h.seen = len(calls)

	sort.SliceStable(fresh, func(i, j int) bool {
		if fresh[i].op != fresh[j].op {
			return fresh[i].op < fresh[j].op
		}
		return fresh[i].key < fresh[j].key
	})
	for _, e := range fresh {
		result.AddRemote(e.op, e.args, h.clock.Next())
	}
}

func (h *Harness) finalState() map[string]map[string]any {
	return map[string]map[string]any{
		ContainerApp:   h.app.State().Values(),
		ContainerStory: h.app.Story().Values(),
		ContainerStage: h.app.Stage().State().Values(),
	}
}

// checkExpect compares a step outcome with its expect clause.
func checkExpect(step Step, res map[string]any, err error) []string {
	var msgs []string
	want := step.Expect
	switch {
	case want != nil && want.Error != "":
		if err == nil {
			return []string{fmt.Sprintf("expected error containing %q, got success", want.Error)}
		}
		if !strings.Contains(err.Error(), want.Error) {
			msgs = append(msgs, fmt.Sprintf("expected error containing %q, got %q", want.Error, err.Error()))
		}
	case err != nil:
		return []string{fmt.Sprintf("unexpected error: %v", err)}
	}
	if want == nil {
		return msgs
	}
	for _, key := range sortedKeys(want.Result) {
		got, ok := res[key]
		if !ok {
			msgs = append(msgs, fmt.Sprintf("result field %q missing", key))
			continue
		}
		if !valuesEqual(got, want.Result[key]) {
			msgs = append(msgs, fmt.Sprintf("result field %q = %v, want %v", key, got, want.Result[key]))
		}
	}
	return msgs
}
