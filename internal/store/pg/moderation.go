package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Broadcast message moderation states.
const (
	MessagePending   = "pending"
	MessagePublished = "published"
	MessageHidden    = "hidden"
)

// Message is a broadcast message as seen by the moderation queue.
type Message struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// PendingMessages lists broadcast messages awaiting moderation, oldest first.
func (s *Store) PendingMessages(ctx context.Context, limit int) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, content, status, created_at
		from broadcast_messages
		where status = 'pending'
		order by created_at asc
		limit $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.Content, &m.Status, &m.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

// SetMessageStatus transitions a broadcast message to the given status.
func (s *Store) SetMessageStatus(ctx context.Context, id, status string) (Message, error) {
	row := s.db.QueryRowContext(ctx, `
		update broadcast_messages
		set status = $2
		where id = $1
		returning id, content, status, created_at
	`, id, status)

	var m Message
	err := row.Scan(&m.ID, &m.Content, &m.Status, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Message{}, ErrNotFound
	}
	if err != nil {
		return Message{}, err
	}
	return m, nil
}
