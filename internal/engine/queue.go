package engine

import (
	"context"
	"sync"
)

// Func is the body of an event. It runs on the engine goroutine.
type Func func(ctx context.Context) error

// Event is one unit of work for the loop.
type Event struct {
	Seq  int64
	Name string
	Fn   Func

	// done, when set, receives the outcome once Fn has run.
	done chan error
}

// eventQueue is an unbounded thread-safe FIFO.
//
// It is unbounded so a handler cascade can post any number of follow-up
// events without blocking the loop that drains it. A buffered signal
// channel lets Run wait with select alongside ctx.Done().
type eventQueue struct {
	mu     sync.Mutex
	events []Event
	closed bool
	signal chan struct{} // buffered, size 1; closed by Close
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]Event, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue appends e, stamping it from clock when clock is non-nil. It
// returns false once the queue is closed.
func (q *eventQueue) Enqueue(e Event, clock *Clock) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	// Stamped under the lock so seq order matches queue order.
	if clock != nil {
		e.Seq = clock.Next()
	}
	q.events = append(q.events, e)

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes the front event without blocking.
func (q *eventQueue) TryDequeue() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return Event{}, false
	}
	e := q.events[0]
	// Clear the slot so the closure can be collected.
	q.events[0] = Event{}
	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}
	return e, true
}

// Wait returns a channel that fires when events may be available. It is
// closed once the queue is closed.
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of queued events.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Close stops accepting events and wakes the waiter. Events already queued
// remain and can still be dequeued.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}

// Closed reports whether Close has been called.
func (q *eventQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// drain removes and returns every queued event.
func (q *eventQueue) drain() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.events
	q.events = nil
	return out
}
