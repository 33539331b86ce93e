package state

import (
	"fmt"
	"log/slog"
	"reflect"
	"sync"

	"github.com/cosmicds/cosmicds/internal/value"
)

// Handler receives the previous and the new value of a field.
type Handler func(old, new any)

// Subscription identifies one registered handler. The zero value is never
// returned by a successful registration.
type Subscription struct {
	field string
	id    uint64
}

// Field returns the field the subscription is registered on.
func (s Subscription) Field() string { return s.field }

type registration struct {
	id      uint64
	handler Handler
}

type slot struct {
	spec     Field
	value    any
	handlers []registration
}

// Container is an observable record with a fixed field table.
//
// Thread-safety model: the field table is guarded by a mutex so snapshots
// may be taken from any goroutine, but handlers are invoked without the
// lock held and mutation is expected to happen on a single logical thread
// (see package engine).
type Container struct {
	name string

	mu         sync.Mutex
	slots      map[string]*slot
	order      []string
	suppressed map[string]int
	nextID     uint64
	logger     *slog.Logger
}

// Option configures a Container.
type Option func(*Container)

// WithLogger sets the logger used for debug traces of field changes.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Container) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a container named name with the given field table. Each
// field starts at its default, coerced to the field kind. Duplicate names
// or defaults that do not fit their kind are an error.
func New(name string, fields []Field, opts ...Option) (*Container, error) {
	c := &Container{
		name:       name,
		slots:      make(map[string]*slot, len(fields)),
		suppressed: make(map[string]int),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	for _, f := range fields {
		if f.Name == "" {
			return nil, &FieldError{Container: name, Field: f.Name, Message: "empty field name"}
		}
		if _, dup := c.slots[f.Name]; dup {
			return nil, &FieldError{Container: name, Field: f.Name, Message: "duplicate field"}
		}
		initial, err := coerce(f.Kind, defaultFor(f))
		if err != nil {
			return nil, &FieldError{Container: name, Field: f.Name, Message: fmt.Sprintf("default: %v", err)}
		}
		c.slots[f.Name] = &slot{spec: f, value: initial}
		c.order = append(c.order, f.Name)
	}
	return c, nil
}

// MustNew is New for static field tables; it panics on error.
func MustNew(name string, fields []Field, opts ...Option) *Container {
	c, err := New(name, fields, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

func defaultFor(f Field) any {
	if f.Default != nil {
		return f.Default
	}
	switch f.Kind {
	case Bool:
		return false
	case Int:
		return 0
	case Float:
		return 0.0
	case String:
		return ""
	case StringList:
		return []string{}
	default:
		return nil
	}
}

// Name returns the container name.
func (c *Container) Name() string { return c.name }

// Fields returns the field names in declaration order.
func (c *Container) Fields() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Has reports whether the field exists.
func (c *Container) Has(field string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.slots[field]
	return ok
}

// Get returns the current value of field, or nil if the field is unknown.
func (c *Container) Get(field string) any {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.slots[field]
	if !ok {
		return nil
	}
	return s.value
}

// Set stores v in field and, unless the field is suppressed or the value
// is unchanged, invokes the field's handlers in registration order with
// the previous and the new value.
func (c *Container) Set(field string, v any) error {
	c.mu.Lock()
	s, ok := c.slots[field]
	if !ok {
		c.mu.Unlock()
		return &FieldError{Container: c.name, Field: field, Message: "unknown field"}
	}
	conv, err := coerce(s.spec.Kind, v)
	if err != nil {
		c.mu.Unlock()
		return &FieldError{Container: c.name, Field: field, Message: err.Error()}
	}

	old := s.value
	s.value = conv
	if reflect.DeepEqual(old, conv) || c.suppressed[field] > 0 {
		c.mu.Unlock()
		return nil
	}

	// Copy so handlers registered or removed during dispatch do not affect
	// this round.
	handlers := make([]registration, len(s.handlers))
	copy(handlers, s.handlers)
	c.mu.Unlock()

	c.logger.Debug("state changed",
		"container", c.name,
		"field", field,
		"old", old,
		"new", conv,
		"handlers", len(handlers),
	)

	for _, r := range handlers {
		r.handler(old, conv)
	}
	return nil
}

// OnChange registers h for field. h receives both the previous and the new
// value.
func (c *Container) OnChange(field string, h Handler) (Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.slots[field]
	if !ok {
		return Subscription{}, &FieldError{Container: c.name, Field: field, Message: "unknown field"}
	}
	c.nextID++
	s.handlers = append(s.handlers, registration{id: c.nextID, handler: h})
	return Subscription{field: field, id: c.nextID}, nil
}

// On registers h for field. h receives only the new value.
func (c *Container) On(field string, h func(new any)) (Subscription, error) {
	return c.OnChange(field, func(_, new any) { h(new) })
}

// Unregister removes the handler identified by sub. Removing a handler
// that is not registered is a no-op.
func (c *Container) Unregister(sub Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.slots[sub.field]
	if !ok {
		return
	}
	for i, r := range s.handlers {
		if r.id == sub.id {
			s.handlers = append(s.handlers[:i:i], s.handlers[i+1:]...)
			return
		}
	}
}

// HandlerCount returns the number of handlers registered for field.
func (c *Container) HandlerCount(field string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.slots[field]; ok {
		return len(s.handlers)
	}
	return 0
}

// WithSuppressed runs body with notification for field suppressed. Writes
// to field inside body update the stored value without invoking handlers.
// Suppression is released on every exit path of body.
func (c *Container) WithSuppressed(field string, body func() error) error {
	c.mu.Lock()
	if _, ok := c.slots[field]; !ok {
		c.mu.Unlock()
		return &FieldError{Container: c.name, Field: field, Message: "unknown field"}
	}
	c.suppressed[field]++
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.suppressed[field]--
		if c.suppressed[field] <= 0 {
			delete(c.suppressed, field)
		}
		c.mu.Unlock()
	}()

	return body()
}

// Suppressed reports whether notification for field is currently
// suppressed.
func (c *Container) Suppressed(field string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.suppressed[field] > 0
}

// Snapshot serializes every field into plain data.
func (c *Container) Snapshot() (value.Object, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	obj := make(value.Object, len(c.slots))
	for _, name := range c.order {
		v, err := value.FromGo(c.slots[name].value)
		if err != nil {
			return nil, &FieldError{Container: c.name, Field: name, Message: err.Error()}
		}
		obj[name] = v
	}
	return obj, nil
}

// Restore writes every known field present in obj through Set, in
// declaration order, so handlers observe the restored values. Unknown keys
// are ignored. Every entry is converted before any is written: if one does
// not fit its field kind, Restore returns a *FieldError and the container
// is left untouched.
func (c *Container) Restore(obj value.Object) error {
	type pending struct {
		field string
		value any
	}
	var writes []pending

	c.mu.Lock()
	for _, name := range c.order {
		v, ok := obj[name]
		if !ok {
			continue
		}
		conv, err := fromValue(c.slots[name].spec.Kind, v)
		if err != nil {
			c.mu.Unlock()
			return &FieldError{Container: c.name, Field: name, Message: err.Error()}
		}
		writes = append(writes, pending{field: name, value: conv})
	}
	c.mu.Unlock()

	for _, w := range writes {
		if err := c.Set(w.field, w.value); err != nil {
			return err
		}
	}
	return nil
}
