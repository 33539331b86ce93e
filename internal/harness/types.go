package harness

// Trace event types.
const (
	EventInvocation = "invocation"
	EventCompletion = "completion"
	EventRemote     = "remote"
)

// Completion outcomes.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// TraceEvent is one entry of a session trace: a step invocation, its
// completion, or a remote call made while the step ran.
type TraceEvent struct {
	Type    string         `json:"type"`
	Op      string         `json:"op"`
	Args    map[string]any `json:"args,omitempty"`
	Outcome string         `json:"outcome,omitempty"`
	Result  map[string]any `json:"result,omitempty"`
	Error   string         `json:"error,omitempty"`
	Seq     int64          `json:"seq"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is false once any expectation or assertion failed.
	Pass bool `json:"pass"`

	// Trace holds every event in order.
	Trace []TraceEvent `json:"trace"`

	Errors []string `json:"errors,omitempty"`

	// State is the final contents of the app, story and stage containers.
	State map[string]map[string]any `json:"state,omitempty"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		State:  make(map[string]map[string]any),
	}
}

// AddError records a failure.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddInvocation appends a step invocation.
func (r *Result) AddInvocation(op string, args map[string]any, seq int64) {
	r.Trace = append(r.Trace, TraceEvent{
		Type: EventInvocation,
		Op:   op,
		Args: args,
		Seq:  seq,
	})
}

// AddCompletion appends the completion of op. A nil err is an ok outcome.
func (r *Result) AddCompletion(op string, result map[string]any, err error, seq int64) {
	ev := TraceEvent{
		Type:    EventCompletion,
		Op:      op,
		Outcome: OutcomeOK,
		Result:  result,
		Seq:     seq,
	}
	if err != nil {
		ev.Outcome = OutcomeError
		ev.Error = err.Error()
	}
	r.Trace = append(r.Trace, ev)
}

// AddRemote appends a remote call.
func (r *Result) AddRemote(op string, args map[string]any, seq int64) {
	r.Trace = append(r.Trace, TraceEvent{
		Type: EventRemote,
		Op:   op,
		Args: args,
		Seq:  seq,
	})
}

// Events returns the events of type typ in trace order.
func (r *Result) Events(typ string) []TraceEvent {
	var out []TraceEvent
	for _, ev := range r.Trace {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}
