package cli

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cosmicds/cosmicds/internal/persist"
	"github.com/cosmicds/cosmicds/internal/remote"
	"github.com/cosmicds/cosmicds/internal/store"
)

func seedJournal(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "outbox.db")
	st, err := store.Open(p)
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	entries := []persist.Entry{
		{ID: "01HQ0000000000000000000001", Op: remote.OpWriteStoryState, StudentID: 7, Story: "hubbles_law", Hash: "h1", Payload: []byte(`{}`)},
		{ID: "01HQ0000000000000000000002", Op: remote.OpSubmitMeasurement, StudentID: 7, Hash: "h2", Payload: []byte(`{}`)},
		{ID: "01HQ0000000000000000000003", Op: remote.OpWriteStoryState, StudentID: 7, Story: "hubbles_law", Hash: "h3", Payload: []byte(`{}`)},
	}
	for i, e := range entries {
		e.Status = persist.StatusPending
		e.CreatedAt = at.Add(time.Duration(i) * time.Second)
		require.NoError(t, st.AppendOutbox(ctx, e))
	}
	require.NoError(t, st.MarkOutbox(ctx, entries[0].ID, persist.StatusSent, ""))
	require.NoError(t, st.MarkOutbox(ctx, entries[1].ID, persist.StatusFailed, "connection refused"))
	return p
}

func TestJournalCommandText(t *testing.T) {
	p := seedJournal(t)

	cmd := NewJournalCommand(&RootOptions{Format: "text"})
	out, err := execute(cmd, "--db", p)
	require.NoError(t, err)
	assert.Contains(t, out, "01HQ0000000000000000000001  sent     write_story_state     student=7 story=hubbles_law")
	assert.Contains(t, out, `error="connection refused"`)
	assert.Contains(t, out, "pending=1 sent=1 failed=1")
}

func TestJournalCommandFilters(t *testing.T) {
	p := seedJournal(t)

	cmd := NewJournalCommand(&RootOptions{Format: "json"})
	out, err := execute(cmd, "--db", p, "--status", "failed")
	require.NoError(t, err)

	var result JournalResult
	assert.Equal(t, "ok", decodeData(t, out, &result))
	require.Len(t, result.Entries, 1)
	assert.Equal(t, remote.OpSubmitMeasurement, result.Entries[0].Op)
	assert.Equal(t, "connection refused", result.Entries[0].Error)
	assert.Equal(t, JournalStats{Pending: 1, Sent: 1, Failed: 1}, result.Stats)

	cmd = NewJournalCommand(&RootOptions{Format: "json"})
	out, err = execute(cmd, "--db", p, "--limit", "2")
	require.NoError(t, err)
	result = JournalResult{}
	decodeData(t, out, &result)
	require.Len(t, result.Entries, 2)
	assert.Equal(t, "01HQ0000000000000000000001", result.Entries[0].ID)
	assert.Equal(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), result.Entries[0].CreatedAt)
}

func TestJournalCommandRejectsBadInput(t *testing.T) {
	cmd := NewJournalCommand(&RootOptions{Format: "text"})
	_, err := execute(cmd)
	require.Error(t, err)
	assert.ErrorContains(t, err, "no journal")

	cmd = NewJournalCommand(&RootOptions{Format: "text"})
	_, err = execute(cmd, "--db", seedJournal(t), "--status", "lost")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.ErrorContains(t, err, `invalid status "lost"`)
}

func TestJournalCommandEmpty(t *testing.T) {
	cmd := NewJournalCommand(&RootOptions{Format: "text"})
	out, err := execute(cmd, "--db", filepath.Join(t.TempDir(), "new.db"))
	require.NoError(t, err)
	assert.Contains(t, out, "No entries.")
	assert.Contains(t, out, "pending=0 sent=0 failed=0")
}
