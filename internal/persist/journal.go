package persist

import (
	"context"
	"crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Journal records outgoing writes. *store.Store implements it.
type Journal interface {
	AppendOutbox(ctx context.Context, e Entry) error
	MarkOutbox(ctx context.Context, id string, status Status, errMsg string) error
}

// Status of an outbox entry.
type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// Entry is one outbox row.
type Entry struct {
	ID        string
	Op        string
	StudentID int64
	Story     string
	Hash      string
	Payload   []byte
	Status    Status
	Error     string
	CreatedAt time.Time
}

// idSource produces monotonic ULIDs. ulid.Monotonic is not safe for
// concurrent use, hence the mutex.
type idSource struct {
	mu      sync.Mutex
	entropy io.Reader
}

func newIDSource() *idSource {
	return &idSource{entropy: ulid.Monotonic(rand.Reader, 0)}
}

func (s *idSource) next(at time.Time) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(at), s.entropy).String()
}
