package testutil

// FixedToken is an engine.TokenGenerator that always returns the same
// session token, so golden traces are byte-identical across runs.
//
// Thread-safety: FixedToken is stateless and safe for concurrent use.
type FixedToken string

// DefaultToken is used when a scenario names no token.
const DefaultToken = "test-session-default"

// NewFixedToken returns a generator for token, or DefaultToken when empty.
func NewFixedToken(token string) FixedToken {
	if token == "" {
		return DefaultToken
	}
	return FixedToken(token)
}

// Generate implements engine.TokenGenerator.
func (f FixedToken) Generate() string { return string(f) }
