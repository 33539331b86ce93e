package store

import (
	"path/filepath"
	"testing"

	"github.com/cosmicds/cosmicds/internal/testutil"
)

// createTestStore opens a fresh store in a temp dir with a deterministic
// clock.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, WithNow(testutil.NewDeterministicClock().Now))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}
