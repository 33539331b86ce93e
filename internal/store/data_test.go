package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cosmicds/cosmicds/internal/measurement"
	"github.com/cosmicds/cosmicds/internal/persist"
	"github.com/cosmicds/cosmicds/internal/testutil"
	"github.com/cosmicds/cosmicds/internal/value"
)

func TestStudents(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	a, err := s.CreateStudent(ctx, true, nil)
	require.NoError(t, err)
	member := a
	b, err := s.CreateStudent(ctx, false, &member)
	require.NoError(t, err)
	assert.Greater(t, b, a)

	st, err := s.GetStudent(ctx, b)
	require.NoError(t, err)
	assert.False(t, st.Seed)
	require.NotNil(t, st.TeamMember)
	assert.Equal(t, a, *st.TeamMember)
	assert.Equal(t, testutil.Epoch.Add(1e9), st.CreatedAt)

	st, err = s.GetStudent(ctx, a)
	require.NoError(t, err)
	assert.True(t, st.Seed)
	assert.Nil(t, st.TeamMember)

	_, err = s.GetStudent(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)

	ok, err := s.StudentExists(ctx, a)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.StudentExists(ctx, 999)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoryState_LastWriteWins(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	id, err := s.CreateStudent(ctx, false, nil)
	require.NoError(t, err)

	_, err = s.GetStoryState(ctx, id, "hubbles_law")
	assert.ErrorIs(t, err, ErrNotFound)

	first := value.Object{"step_index": value.Int(1)}
	_, err = s.PutStoryState(ctx, id, "hubbles_law", first)
	require.NoError(t, err)

	second := value.Object{"step_index": value.Int(2), "name": value.String("hubbles_law")}
	hash, err := s.PutStoryState(ctx, id, "hubbles_law", second)
	require.NoError(t, err)

	got, err := s.GetStoryState(ctx, id, "hubbles_law")
	require.NoError(t, err)
	assert.Equal(t, second, got.State)
	assert.Equal(t, hash, got.Hash)

	want, err := value.Hash(value.DomainStoryState, second)
	require.NoError(t, err)
	assert.Equal(t, want, hash)

	var raw string
	require.NoError(t, s.db.QueryRow(`SELECT state FROM story_states`).Scan(&raw))
	assert.Equal(t, `{"name":"hubbles_law","step_index":2}`, raw)
}

func TestStoryState_UnknownStudent(t *testing.T) {
	s := createTestStore(t)
	_, err := s.PutStoryState(context.Background(), 42, "s", value.Object{"a": value.Int(1)})
	assert.Error(t, err, "foreign key must reject unknown student")
}

func TestMeasurements_Upsert(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	id, err := s.CreateStudent(ctx, false, nil)
	require.NoError(t, err)

	p, err := measurement.Prepare(measurement.Record{"name": "g2", "restwave": 6565, "measwave": 6600.0}, id)
	require.NoError(t, err)
	require.NoError(t, s.UpsertMeasurement(ctx, p))

	p, err = measurement.Prepare(measurement.Record{"name": "g1", "restwave": 5177}, id)
	require.NoError(t, err)
	require.NoError(t, s.UpsertMeasurement(ctx, p))

	p, err = measurement.Prepare(measurement.Record{"name": "g2", "restwave": 6565, "measwave": 6600.0, "velocity": 1599}, id)
	require.NoError(t, err)
	require.NoError(t, s.UpsertMeasurement(ctx, p))

	list, err := s.ListMeasurements(ctx, id)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "g1", *list[0].GalaxyName)
	assert.Nil(t, list[0].ObsWaveValue)
	assert.Equal(t, "g2", *list[1].GalaxyName)
	require.NotNil(t, list[1].VelocityValue)
	assert.Equal(t, 1599.0, *list[1].VelocityValue)
	assert.Equal(t, measurement.UnitVelocity, list[1].VelocityUnit)

	empty, err := s.ListMeasurements(ctx, id+1)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestMeasurements_RequireName(t *testing.T) {
	s := createTestStore(t)
	assert.Error(t, s.UpsertMeasurement(context.Background(), measurement.Payload{StudentID: 1}))
}

func TestOutbox(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	entries := []persist.Entry{
		{ID: "01A", Op: "write_story_state", StudentID: 1, Story: "s", Hash: "h1", Payload: []byte(`{}`), CreatedAt: testutil.Epoch},
		{ID: "01B", Op: "submit_measurement", StudentID: 1, Hash: "h2", Payload: []byte(`{"x":1}`), CreatedAt: testutil.Epoch},
		{ID: "01C", Op: "submit_measurement", StudentID: 1, Hash: "h3", Payload: []byte(`{"x":2}`), CreatedAt: testutil.Epoch},
	}
	for _, e := range entries {
		require.NoError(t, s.AppendOutbox(ctx, e))
	}
	require.NoError(t, s.AppendOutbox(ctx, entries[0]), "re-append is a no-op")

	require.NoError(t, s.MarkOutbox(ctx, "01A", persist.StatusSent, ""))
	require.NoError(t, s.MarkOutbox(ctx, "01C", persist.StatusFailed, "status 503"))
	assert.ErrorIs(t, s.MarkOutbox(ctx, "nope", persist.StatusSent, ""), ErrNotFound)

	all, err := s.ListOutbox(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"01A", "01B", "01C"}, []string{all[0].ID, all[1].ID, all[2].ID})
	assert.Equal(t, persist.StatusSent, all[0].Status)
	assert.Equal(t, persist.StatusPending, all[1].Status)
	assert.Equal(t, "status 503", all[2].Error)
	assert.Equal(t, `{"x":1}`, string(all[1].Payload))
	assert.Equal(t, testutil.Epoch, all[0].CreatedAt)

	failed, err := s.ListOutbox(ctx, persist.StatusFailed, 0)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "01C", failed[0].ID)

	limited, err := s.ListOutbox(ctx, "", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	counts, err := s.OutboxCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[persist.Status]int{
		persist.StatusPending: 1,
		persist.StatusSent:    1,
		persist.StatusFailed:  1,
	}, counts)
}

func TestOutbox_AsSynchronizerJournal(t *testing.T) {
	s := createTestStore(t)
	client := testutil.NewRecordingClient()
	client.Fail("submit_measurement", assert.AnError)

	sync := persist.New(client, nil, persist.WithJournal(s), persist.WithStudentSource(func() int64 { return 3 }))
	defer sync.Close()

	sync.WriteOnEvent(3, "hubbles_law", value.Object{"step_index": value.Int(1)})
	sync.SubmitMeasurement(measurement.Record{"name": "g1"})
	sync.Wait()

	counts, err := s.OutboxCounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, counts[persist.StatusSent])
	assert.Equal(t, 1, counts[persist.StatusFailed])
	assert.Equal(t, 0, counts[persist.StatusPending])
}
