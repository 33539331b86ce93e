package remote

import (
	"context"

	"github.com/cosmicds/cosmicds/internal/measurement"
	"github.com/cosmicds/cosmicds/internal/value"
)

// StudentRef identifies the student owning a session.
type StudentRef struct {
	ID int64 `json:"id"`
}

// Client is the remote persistence protocol.
type Client interface {
	// FetchStoryState returns the stored state, or nil when the store has
	// none for the key.
	FetchStoryState(ctx context.Context, studentID int64, story string) (value.Object, error)
	WriteStoryState(ctx context.Context, studentID int64, story string, state value.Object) error
	NewDummyStudent(ctx context.Context, seed bool, teamMember *int64) (StudentRef, error)
	SubmitMeasurement(ctx context.Context, p measurement.Payload) error
}

// Operation names used in errors, spans and logs.
const (
	OpFetchStoryState   = "fetch_story_state"
	OpWriteStoryState   = "write_story_state"
	OpNewDummyStudent   = "new_dummy_student"
	OpSubmitMeasurement = "submit_measurement"
)

// NewStudentRequest is the body of POST /new-dummy-student.
type NewStudentRequest struct {
	Seed       bool   `json:"seed"`
	TeamMember *int64 `json:"team_member"`
}

// NewStudentResponse is the reply to POST /new-dummy-student.
type NewStudentResponse struct {
	Student StudentRef `json:"student"`
}

// StateEnvelope is the reply to GET /story-state. State is nil when the
// store holds nothing for the key.
type StateEnvelope struct {
	State value.Object `json:"state"`
}
