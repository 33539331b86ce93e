package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Student is a row of the students table.
type Student struct {
	ID         int64
	Seed       bool
	TeamMember *int64
	CreatedAt  time.Time
}

// CreateStudent inserts a student and returns its id.
func (s *Store) CreateStudent(ctx context.Context, seed bool, teamMember *int64) (int64, error) {
	var member sql.NullInt64
	if teamMember != nil {
		member = sql.NullInt64{Int64: *teamMember, Valid: true}
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO students (seed, team_member, created_at)
		VALUES (?, ?, ?)
	`, seed, member, s.timestamp())
	if err != nil {
		return 0, fmt.Errorf("create student: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("create student: %w", err)
	}
	return id, nil
}

// GetStudent returns the student with id, or ErrNotFound.
func (s *Store) GetStudent(ctx context.Context, id int64) (Student, error) {
	var (
		st      Student
		member  sql.NullInt64
		created string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, seed, team_member, created_at FROM students WHERE id = ?
	`, id).Scan(&st.ID, &st.Seed, &member, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Student{}, fmt.Errorf("student %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return Student{}, fmt.Errorf("get student %d: %w", id, err)
	}
	if member.Valid {
		st.TeamMember = &member.Int64
	}
	if st.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return Student{}, fmt.Errorf("get student %d: created_at: %w", id, err)
	}
	return st, nil
}

// StudentExists reports whether a student with id exists.
func (s *Store) StudentExists(ctx context.Context, id int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM students WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("student exists %d: %w", id, err)
	}
	return true, nil
}
