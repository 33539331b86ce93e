package engine

import (
	"sync"

	"github.com/google/uuid"
)

// TokenGenerator produces session tokens. Every log line of a session
// carries its token so concurrent sessions can be told apart.
type TokenGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 tokens.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate returns a new hyphenated UUIDv7. It panics if the random
// source fails.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// SequenceGenerator hands out predetermined tokens in order, for tests
// and golden traces. It panics when the tokens run out.
//
// Thread-safety: SequenceGenerator is safe for concurrent use.
type SequenceGenerator struct {
	mu     sync.Mutex
	tokens []string
	next   int
}

// NewSequenceGenerator returns a generator yielding tokens in order.
func NewSequenceGenerator(tokens ...string) *SequenceGenerator {
	return &SequenceGenerator{tokens: append([]string(nil), tokens...)}
}

// Generate returns the next token.
func (g *SequenceGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.next >= len(g.tokens) {
		panic("SequenceGenerator: all tokens used")
	}
	token := g.tokens[g.next]
	g.next++
	return token
}
