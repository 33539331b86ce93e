package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func named(name string) Event {
	return Event{Name: name, Fn: func(context.Context) error { return nil }}
}

func TestEventQueue_FIFO(t *testing.T) {
	q := newEventQueue()
	clock := NewClock()
	for _, n := range []string{"a", "b", "c"} {
		require.True(t, q.Enqueue(named(n), clock))
	}
	assert.Equal(t, 3, q.Len())

	for i, want := range []string{"a", "b", "c"} {
		ev, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, want, ev.Name)
		assert.Equal(t, int64(i+1), ev.Seq)
	}
	_, ok := q.TryDequeue()
	assert.False(t, ok)
}

func TestEventQueue_NilClockKeepsSeq(t *testing.T) {
	q := newEventQueue()
	ev := named("x")
	ev.Seq = 42
	require.True(t, q.Enqueue(ev, nil))

	got, ok := q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, int64(42), got.Seq)
}

func TestEventQueue_SignalCoalesces(t *testing.T) {
	q := newEventQueue()
	q.Enqueue(named("a"), nil)
	q.Enqueue(named("b"), nil)

	select {
	case <-q.Wait():
	default:
		t.Fatal("expected a pending signal")
	}
	select {
	case <-q.Wait():
		t.Fatal("signals should coalesce")
	default:
	}
}

func TestEventQueue_Close(t *testing.T) {
	q := newEventQueue()
	q.Enqueue(named("a"), nil)
	q.Close()
	q.Close()

	assert.True(t, q.Closed())
	assert.False(t, q.Enqueue(named("b"), nil))

	// Closed signal channel fires immediately.
	<-q.Wait()

	ev, ok := q.TryDequeue()
	require.True(t, ok, "queued events survive Close")
	assert.Equal(t, "a", ev.Name)
}

func TestEventQueue_Drain(t *testing.T) {
	q := newEventQueue()
	q.Enqueue(named("a"), nil)
	q.Enqueue(named("b"), nil)

	out := q.drain()
	assert.Len(t, out, 2)
	assert.Equal(t, 0, q.Len())
}
