package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cosmicds/cosmicds/internal/engine"
	"github.com/cosmicds/cosmicds/internal/measurement"
	"github.com/cosmicds/cosmicds/internal/remote"
	"github.com/cosmicds/cosmicds/internal/value"
)

// DefaultTimeout bounds every remote call.
const DefaultTimeout = 10 * time.Second

// ErrClosed is returned for work submitted after Close.
var ErrClosed = errors.New("synchronizer closed")

// ErrNoPoster is returned by FetchOnStartAsync when no poster is set.
var ErrNoPoster = errors.New("synchronizer has no poster")

// Gate reports whether story state may be written remotely.
type Gate interface {
	SyncEnabled() bool
}

// GateFunc adapts a function to Gate.
type GateFunc func() bool

// SyncEnabled implements Gate.
func (f GateFunc) SyncEnabled() bool { return f() }

// StudentSource returns the id of the student owning the session.
type StudentSource func() int64

// Synchronizer mirrors local state to a remote.Client.
type Synchronizer struct {
	client  remote.Client
	gate    Gate
	student StudentSource
	poster  engine.Poster
	journal Journal
	timeout time.Duration
	logger  *slog.Logger
	ids     *idSource
	now     func() time.Time

	fetched atomic.Bool

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
	// writers holds the queued story-state writes per key. A key is
	// present while its writer goroutine runs.
	writers map[writeKey][]func(context.Context)
}

type writeKey struct {
	studentID int64
	story     string
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Synchronizer) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Synchronizer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithJournal records writes and submissions in j.
func WithJournal(j Journal) Option {
	return func(s *Synchronizer) { s.journal = j }
}

// WithPoster sets the thread asynchronous results are applied on, usually
// the engine every state mutation runs on.
func WithPoster(p engine.Poster) Option {
	return func(s *Synchronizer) {
		if p != nil {
			s.poster = p
		}
	}
}

// WithStudentSource sets how SubmitMeasurement learns the student id.
func WithStudentSource(src StudentSource) Option {
	return func(s *Synchronizer) { s.student = src }
}

// WithNow sets the clock used for journal timestamps and ids.
func WithNow(now func() time.Time) Option {
	return func(s *Synchronizer) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a Synchronizer. A nil gate always allows writes.
func New(client remote.Client, gate Gate, opts ...Option) *Synchronizer {
	if gate == nil {
		gate = GateFunc(func() bool { return true })
	}
	s := &Synchronizer{
		client:  client,
		gate:    gate,
		timeout: DefaultTimeout,
		logger:  slog.Default(),
		now:     time.Now,
		writers: make(map[writeKey][]func(context.Context)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ids = newIDSource()
	return s
}

// FetchOnStart retrieves the stored state for (studentID, story). It
// returns (state, true) only when the store holds a state; every failure is
// logged and reported as (nil, false). Only the first call per Synchronizer
// reaches the network.
func (s *Synchronizer) FetchOnStart(ctx context.Context, studentID int64, story string) (value.Object, bool) {
	if !s.fetched.CompareAndSwap(false, true) {
		s.logger.Warn("fetch on start already performed", "student_id", studentID, "story", story)
		return nil, false
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	state, err := s.client.FetchStoryState(ctx, studentID, story)
	if err != nil {
		s.logger.Warn("fetch story state failed, keeping defaults",
			"student_id", studentID,
			"story", story,
			"error", err,
		)
		return nil, false
	}
	if state == nil {
		s.logger.Info("no stored story state", "student_id", studentID, "story", story)
		return nil, false
	}
	s.logger.Info("story state fetched", "student_id", studentID, "story", story, "fields", len(state))
	return state, true
}

// FetchOnStartAsync runs FetchOnStart on the dispatcher and posts apply
// with the fetched state. apply is not called when there is nothing to
// restore. An error from apply is logged by the poster.
func (s *Synchronizer) FetchOnStartAsync(studentID int64, story string, apply func(value.Object) error) error {
	if s.poster == nil {
		return ErrNoPoster
	}
	return s.dispatch(func(ctx context.Context) {
		state, ok := s.FetchOnStart(ctx, studentID, story)
		if !ok {
			return
		}
		posted := s.poster.Post("apply_story_state", func(context.Context) error {
			if err := apply(state); err != nil {
				return &remote.SerializationError{Op: remote.OpFetchStoryState, Err: err}
			}
			return nil
		})
		if !posted {
			s.logger.Warn("fetched story state dropped, poster stopped", "student_id", studentID, "story", story)
		}
	})
}

// WriteOnEvent sends state for (studentID, story) in the background. It is
// a no-op when sync is disabled or state is empty. Failures are logged.
//
// Writes for the same key are sent one at a time in call order, so the
// remote ends up holding the state of the last call.
func (s *Synchronizer) WriteOnEvent(studentID int64, story string, state value.Object) {
	if !s.gate.SyncEnabled() {
		s.logger.Debug("story state write skipped, sync disabled", "student_id", studentID, "story", story)
		return
	}
	if len(state) == 0 {
		return
	}

	payload, err := value.MarshalCanonical(state)
	if err != nil {
		s.logger.Error("serialize story state", "student_id", studentID, "story", story, "error", err)
		return
	}
	hash, err := value.HashJSON(value.DomainStoryState, payload)
	if err != nil {
		s.logger.Error("hash story state", "student_id", studentID, "story", story, "error", err)
		return
	}
	entry := Entry{
		Op:        remote.OpWriteStoryState,
		StudentID: studentID,
		Story:     story,
		Hash:      hash,
		Payload:   payload,
	}

	err = s.dispatchJournaled(entry, func(ctx context.Context) error {
		return s.client.WriteStoryState(ctx, studentID, story, state)
	})
	if err != nil {
		s.logger.Warn("story state write dropped", "student_id", studentID, "story", story, "error", err)
	}
}

// SubmitMeasurement maps row to the external payload and sends it in the
// background. Failures are logged.
func (s *Synchronizer) SubmitMeasurement(row measurement.Record) {
	var studentID int64
	if s.student != nil {
		studentID = s.student()
	}

	p, err := measurement.Prepare(row, studentID)
	if err != nil {
		s.logger.Error("prepare measurement", "student_id", studentID, "error", err)
		return
	}
	payload, err := json.Marshal(p)
	if err != nil {
		s.logger.Error("serialize measurement", "student_id", studentID, "error", err)
		return
	}
	hash, err := value.HashJSON(value.DomainMeasurement, payload)
	if err != nil {
		s.logger.Error("hash measurement", "student_id", studentID, "error", err)
		return
	}
	entry := Entry{
		Op:        remote.OpSubmitMeasurement,
		StudentID: studentID,
		Hash:      hash,
		Payload:   payload,
	}

	err = s.dispatchJournaled(entry, func(ctx context.Context) error {
		return s.client.SubmitMeasurement(ctx, p)
	})
	if err != nil {
		s.logger.Warn("measurement submission dropped", "student_id", studentID, "error", err)
	}
}

// RequestNewStudent creates a student on the remote store. It blocks and
// returns any failure.
func (s *Synchronizer) RequestNewStudent(ctx context.Context, seed bool, teamMember *int64) (remote.StudentRef, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ref, err := s.client.NewDummyStudent(ctx, seed, teamMember)
	if err != nil {
		return remote.StudentRef{}, fmt.Errorf("request new student: %w", err)
	}
	s.logger.Info("student created", "student_id", ref.ID, "seed", seed)
	return ref, nil
}

// Wait blocks until every dispatched task has finished.
func (s *Synchronizer) Wait() {
	s.wg.Wait()
}

// Close refuses new work and waits for in-flight tasks.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.wg.Wait()
}

// dispatchJournaled records entry as pending, runs call in the background
// and marks the outcome.
func (s *Synchronizer) dispatchJournaled(entry Entry, call func(ctx context.Context) error) error {
	if s.journal != nil {
		now := s.now().UTC()
		entry.ID = s.ids.next(now)
		entry.Status = StatusPending
		entry.CreatedAt = now
		if err := s.journal.AppendOutbox(context.Background(), entry); err != nil {
			s.logger.Error("journal append", "op", entry.Op, "error", err)
			entry.ID = ""
		}
	}

	task := func(ctx context.Context) {
		err := call(ctx)
		if err != nil {
			s.logger.Warn("remote call failed",
				"op", entry.Op,
				"student_id", entry.StudentID,
				"story", entry.Story,
				"error", err,
			)
		} else {
			s.logger.Debug("remote call done", "op", entry.Op, "student_id", entry.StudentID, "hash", entry.Hash)
		}
		s.mark(entry.ID, err)
	}

	var err error
	if entry.Op == remote.OpWriteStoryState {
		err = s.dispatchOrdered(writeKey{entry.StudentID, entry.Story}, task)
	} else {
		err = s.dispatch(task)
	}
	if err != nil {
		s.mark(entry.ID, err)
	}
	return err
}

func (s *Synchronizer) mark(id string, callErr error) {
	if s.journal == nil || id == "" {
		return
	}
	status, msg := StatusSent, ""
	if callErr != nil {
		status, msg = StatusFailed, callErr.Error()
	}
	if err := s.journal.MarkOutbox(context.Background(), id, status, msg); err != nil {
		s.logger.Error("journal mark", "id", id, "status", status, "error", err)
	}
}

// dispatch runs task on its own goroutine with a fresh timeout context.
// The context does not derive from any caller: writes are not cancellable.
func (s *Synchronizer) dispatch(task func(ctx context.Context)) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		task(ctx)
	}()
	return nil
}

// dispatchOrdered queues task behind the earlier tasks for key. The first
// task for an idle key starts the key's writer goroutine, which runs the
// queue in order and exits once it is empty.
func (s *Synchronizer) dispatchOrdered(key writeKey, task func(ctx context.Context)) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.wg.Add(1)
	queue, running := s.writers[key]
	s.writers[key] = append(queue, task)
	s.mu.Unlock()

	if !running {
		go s.drainWrites(key)
	}
	return nil
}

func (s *Synchronizer) drainWrites(key writeKey) {
	for {
		s.mu.Lock()
		queue := s.writers[key]
		if len(queue) == 0 {
			delete(s.writers, key)
			s.mu.Unlock()
			return
		}
		task := queue[0]
		s.writers[key] = queue[1:]
		s.mu.Unlock()

		func() {
			defer s.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
			defer cancel()
			task(ctx)
		}()
	}
}
