package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cosmicds/cosmicds/internal/persist"
)

var _ persist.Journal = (*Store)(nil)

// AppendOutbox implements persist.Journal. Appending an id twice is a
// no-op.
func (s *Store) AppendOutbox(ctx context.Context, e persist.Entry) error {
	if e.Status == "" {
		e.Status = persist.StatusPending
	}
	created := e.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO outbox (id, op, student_id, story, hash, payload, status, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		e.ID, e.Op, e.StudentID, e.Story, e.Hash, string(e.Payload),
		string(e.Status), e.Error,
		created.UTC().Format(time.RFC3339Nano), s.timestamp(),
	)
	if err != nil {
		return fmt.Errorf("append outbox %s: %w", e.ID, err)
	}
	return nil
}

// MarkOutbox implements persist.Journal.
func (s *Store) MarkOutbox(ctx context.Context, id string, status persist.Status, errMsg string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE outbox SET status = ?, error = ?, updated_at = ? WHERE id = ?
	`, string(status), errMsg, s.timestamp(), id)
	if err != nil {
		return fmt.Errorf("mark outbox %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark outbox %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("outbox %s: %w", id, ErrNotFound)
	}
	return nil
}

// ListOutbox returns entries in id (creation) order. An empty status
// matches every entry; limit <= 0 means no limit.
func (s *Store) ListOutbox(ctx context.Context, status persist.Status, limit int) ([]persist.Entry, error) {
	var (
		where []string
		args  []any
	)
	if status != "" {
		where = append(where, "status = ?")
		args = append(args, string(status))
	}
	query := `SELECT id, op, student_id, story, hash, payload, status, error, created_at FROM outbox`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id COLLATE BINARY ASC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()

	out := []persist.Entry{}
	for rows.Next() {
		var (
			e       persist.Entry
			payload string
			st      string
			created string
		)
		if err := rows.Scan(&e.ID, &e.Op, &e.StudentID, &e.Story, &e.Hash, &payload, &st, &e.Error, &created); err != nil {
			return nil, fmt.Errorf("scan outbox: %w", err)
		}
		e.Payload = []byte(payload)
		e.Status = persist.Status(st)
		if e.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("outbox %s created_at: %w", e.ID, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox: %w", err)
	}
	return out, nil
}

// OutboxCounts returns the number of entries per status.
func (s *Store) OutboxCounts(ctx context.Context) (map[persist.Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM outbox GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count outbox: %w", err)
	}
	defer rows.Close()

	counts := map[persist.Status]int{
		persist.StatusPending: 0,
		persist.StatusSent:    0,
		persist.StatusFailed:  0,
	}
	for rows.Next() {
		var (
			st string
			n  int
		)
		if err := rows.Scan(&st, &n); err != nil {
			return nil, fmt.Errorf("scan outbox count: %w", err)
		}
		counts[persist.Status(st)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox counts: %w", err)
	}
	return counts, nil
}
