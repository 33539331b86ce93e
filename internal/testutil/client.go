package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/cosmicds/cosmicds/internal/measurement"
	"github.com/cosmicds/cosmicds/internal/remote"
	"github.com/cosmicds/cosmicds/internal/value"
)

// Call is one recorded remote.Client invocation.
type Call struct {
	Op         string
	StudentID  int64
	Story      string
	State      value.Object
	Payload    measurement.Payload
	Seed       bool
	TeamMember *int64
}

type stateKey struct {
	student int64
	story   string
}

// RecordingClient is an in-memory remote.Client that records every call.
//
// Written states are stored through a canonical JSON round trip, so a later
// fetch sees exactly what a real server would return. Per-operation errors
// can be injected with Fail.
//
// Thread-safety: safe for concurrent use.
type RecordingClient struct {
	mu       sync.Mutex
	calls    []Call
	states   map[stateKey][]byte
	failures map[string]error
	gates    map[string]chan struct{}
	nextID   int64
}

var _ remote.Client = (*RecordingClient)(nil)

// NewRecordingClient returns an empty client. Created students are
// numbered from 1.
func NewRecordingClient() *RecordingClient {
	return &RecordingClient{
		states:   make(map[stateKey][]byte),
		failures: make(map[string]error),
		gates:    make(map[string]chan struct{}),
		nextID:   1,
	}
}

// Fail makes every subsequent call of op return err. A nil err clears it.
func (c *RecordingClient) Fail(op string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		delete(c.failures, op)
		return
	}
	c.failures[op] = err
}

// Hold blocks calls of op until the returned release function is called.
func (c *RecordingClient) Hold(op string) (release func()) {
	ch := make(chan struct{})
	c.mu.Lock()
	c.gates[op] = ch
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.gates, op)
			c.mu.Unlock()
			close(ch)
		})
	}
}

// SetState seeds the stored state for (studentID, story).
func (c *RecordingClient) SetState(studentID int64, story string, state value.Object) error {
	raw, err := value.MarshalCanonical(state)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states[stateKey{studentID, story}] = raw
	return nil
}

// StoredJSON returns the canonical JSON last written for the key.
func (c *RecordingClient) StoredJSON(studentID int64, story string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.states[stateKey{studentID, story}]
	return raw, ok
}

// Calls returns a copy of all recorded calls.
func (c *RecordingClient) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Call(nil), c.calls...)
}

// CallsFor returns the recorded calls of op.
func (c *RecordingClient) CallsFor(op string) []Call {
	var out []Call
	for _, call := range c.Calls() {
		if call.Op == op {
			out = append(out, call)
		}
	}
	return out
}

// Count returns how many times op was called.
func (c *RecordingClient) Count(op string) int {
	return len(c.CallsFor(op))
}

// begin records call and returns the injected failure for its op, after
// waiting on any hold.
func (c *RecordingClient) begin(ctx context.Context, call Call) error {
	c.mu.Lock()
	c.calls = append(c.calls, call)
	gate := c.gates[call.Op]
	err := c.failures[call.Op]
	c.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return &remote.NetworkError{Op: call.Op, Err: ctx.Err()}
		}
	}
	return err
}

// FetchStoryState implements remote.Client.
func (c *RecordingClient) FetchStoryState(ctx context.Context, studentID int64, story string) (value.Object, error) {
	if err := c.begin(ctx, Call{Op: remote.OpFetchStoryState, StudentID: studentID, Story: story}); err != nil {
		return nil, err
	}
	raw, ok := c.StoredJSON(studentID, story)
	if !ok {
		return nil, nil
	}
	obj, err := value.DecodeObject(raw)
	if err != nil {
		return nil, &remote.SerializationError{Op: remote.OpFetchStoryState, Err: err}
	}
	return obj, nil
}

// WriteStoryState implements remote.Client.
func (c *RecordingClient) WriteStoryState(ctx context.Context, studentID int64, story string, state value.Object) error {
	if err := c.begin(ctx, Call{Op: remote.OpWriteStoryState, StudentID: studentID, Story: story, State: state}); err != nil {
		return err
	}
	return c.SetState(studentID, story, state)
}

// NewDummyStudent implements remote.Client.
func (c *RecordingClient) NewDummyStudent(ctx context.Context, seed bool, teamMember *int64) (remote.StudentRef, error) {
	if err := c.begin(ctx, Call{Op: remote.OpNewDummyStudent, Seed: seed, TeamMember: teamMember}); err != nil {
		return remote.StudentRef{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	ref := remote.StudentRef{ID: c.nextID}
	c.nextID++
	return ref, nil
}

// SubmitMeasurement implements remote.Client.
func (c *RecordingClient) SubmitMeasurement(ctx context.Context, p measurement.Payload) error {
	return c.begin(ctx, Call{Op: remote.OpSubmitMeasurement, StudentID: p.StudentID, Payload: p})
}

// String summarizes the recorded calls, for failure messages.
func (c *RecordingClient) String() string {
	calls := c.Calls()
	return fmt.Sprintf("RecordingClient(%d calls)", len(calls))
}
