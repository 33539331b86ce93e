package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cosmicds/cosmicds/internal/value"
)

// StoryState is a stored story state document.
type StoryState struct {
	StudentID int64
	Story     string
	State     value.Object
	Hash      string
}

// PutStoryState replaces the state stored for (studentID, story). The
// document is stored in canonical form. The student must exist.
func (s *Store) PutStoryState(ctx context.Context, studentID int64, story string, state value.Object) (string, error) {
	raw, err := value.MarshalCanonical(state)
	if err != nil {
		return "", fmt.Errorf("put story state: %w", err)
	}
	hash, err := value.Hash(value.DomainStoryState, state)
	if err != nil {
		return "", fmt.Errorf("put story state: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO story_states (student_id, story, state, hash, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(student_id, story) DO UPDATE SET
			state = excluded.state,
			hash = excluded.hash,
			updated_at = excluded.updated_at
	`, studentID, story, string(raw), hash, s.timestamp())
	if err != nil {
		return "", fmt.Errorf("put story state: %w", err)
	}
	return hash, nil
}

// GetStoryState returns the state stored for (studentID, story), or
// ErrNotFound.
func (s *Store) GetStoryState(ctx context.Context, studentID int64, story string) (StoryState, error) {
	var raw, hash string
	err := s.db.QueryRowContext(ctx, `
		SELECT state, hash FROM story_states WHERE student_id = ? AND story = ?
	`, studentID, story).Scan(&raw, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return StoryState{}, fmt.Errorf("story state %d/%s: %w", studentID, story, ErrNotFound)
	}
	if err != nil {
		return StoryState{}, fmt.Errorf("get story state: %w", err)
	}

	obj, err := value.DecodeObject([]byte(raw))
	if err != nil {
		return StoryState{}, fmt.Errorf("decode story state %d/%s: %w", studentID, story, err)
	}
	return StoryState{StudentID: studentID, Story: story, State: obj, Hash: hash}, nil
}
