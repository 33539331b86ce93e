package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Poster accepts work for the state-mutation thread.
type Poster interface {
	// Post schedules fn. It returns false if the work was rejected.
	Post(name string, fn Func) bool
}

// Engine is the single-writer event loop.
//
// Thread-safety model:
//   - Post, Call, Stop: safe from any goroutine
//   - Run: must be called from exactly one goroutine
//
// INVARIANTS:
//   - events run one at a time, in the order they were accepted
//   - an event's closure runs to completion before the next starts
type Engine struct {
	queue  *eventQueue
	clock  *Clock
	logger *slog.Logger

	runMu   sync.Mutex
	running bool
}

var _ Poster = (*Engine)(nil)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithClock sets the clock events are stamped from.
func WithClock(c *Clock) Option {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

// New creates an idle engine. Events may be posted before Run starts.
func New(opts ...Option) *Engine {
	e := &Engine{
		queue:  newEventQueue(),
		clock:  NewClock(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Clock returns the engine's clock.
func (e *Engine) Clock() *Clock { return e.clock }

// Pending returns the number of queued events.
func (e *Engine) Pending() int { return e.queue.Len() }

// Post implements Poster.
func (e *Engine) Post(name string, fn Func) bool {
	return e.enqueue(name, fn, nil)
}

func (e *Engine) enqueue(name string, fn Func, done chan error) bool {
	if fn == nil {
		return false
	}
	return e.queue.Enqueue(Event{Name: name, Fn: fn, done: done}, e.clock)
}

// Call posts fn and blocks until it has run, returning its error. It must
// not be called from the engine goroutine.
func (e *Engine) Call(ctx context.Context, name string, fn Func) error {
	done := make(chan error, 1)
	if !e.enqueue(name, fn, done) {
		return ErrStopped
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes events until ctx is cancelled or Stop is called. Events
// still queued at Stop are processed before Run returns; on cancellation
// they are discarded and their callers receive ErrStopped.
//
// Event failures are logged and processing continues.
func (e *Engine) Run(ctx context.Context) error {
	e.runMu.Lock()
	if e.running {
		e.runMu.Unlock()
		return fmt.Errorf("engine already running")
	}
	e.running = true
	e.runMu.Unlock()
	defer func() {
		e.runMu.Lock()
		e.running = false
		e.runMu.Unlock()
	}()

	e.logger.Debug("engine starting")
	for {
		if ev, ok := e.queue.TryDequeue(); ok {
			e.process(ctx, ev)
			continue
		}

		select {
		case <-ctx.Done():
			e.logger.Debug("engine stopping", "reason", "context cancelled")
			e.queue.Close()
			for _, ev := range e.queue.drain() {
				if ev.done != nil {
					ev.done <- ErrStopped
				}
			}
			return ctx.Err()

		case <-e.queue.Wait():
			// The signal channel is closed by Stop, so this fires
			// repeatedly once stopped; exit when nothing is left.
			if e.queue.Closed() && e.queue.Len() == 0 {
				e.logger.Debug("engine stopping", "reason", "stopped")
				return nil
			}
		}
	}
}

// Stop closes the queue. Run finishes the queued events and returns.
func (e *Engine) Stop() {
	e.queue.Close()
}

// process runs one event and reports the outcome.
func (e *Engine) process(ctx context.Context, ev Event) {
	err := runEvent(ctx, ev.Fn)
	if err != nil {
		e.logger.Error("event failed",
			"event", ev.Name,
			"seq", ev.Seq,
			"error", err,
		)
		err = &EventError{Name: ev.Name, Seq: ev.Seq, Err: err}
	} else {
		e.logger.Debug("event processed", "event", ev.Name, "seq", ev.Seq)
	}
	if ev.done != nil {
		ev.done <- err
	}
}

// runEvent calls fn, converting a panic into a *PanicError.
func runEvent(ctx context.Context, fn Func) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return fn(ctx)
}
