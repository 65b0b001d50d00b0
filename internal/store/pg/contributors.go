package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"echomap.org/internal/ids"
)

// ErrConflict is returned when a contributor row already exists for a user.
var ErrConflict = errors.New("pg: resource conflict")

const pgErrUniqueViolation = "23505"

// Contributor is a community contributor role assignment.
type Contributor struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	Level      int        `json:"level"`
	Status     string     `json:"status"`
	CreatedBy  *string    `json:"created_by,omitempty"`
	ApprovedBy *string    `json:"approved_by,omitempty"`
	ApprovedAt *time.Time `json:"approved_at,omitempty"`
	Notes      *string    `json:"notes,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// ListContributors returns contributor assignments, newest first.
func (s *Store) ListContributors(ctx context.Context) ([]Contributor, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, user_id, level, status, created_by, approved_by, approved_at, notes, created_at, updated_at
		from community_contributors
		order by created_at desc
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Contributor
	for rows.Next() {
		c, err := scanContributor(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

// CreateContributor inserts a pending moderator assignment for a user.
func (s *Store) CreateContributor(ctx context.Context, userID string, level int, createdBy, notes string) (Contributor, error) {
	id := ids.New()
	row := s.db.QueryRowContext(ctx, `
		insert into community_contributors (id, user_id, level, status, created_by, notes)
		values ($1, $2, $3, 'pending', $4, nullif($5, ''))
		returning id, user_id, level, status, created_by, approved_by, approved_at, notes, created_at, updated_at
	`, id, userID, level, createdBy, notes)

	c, err := scanContributor(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgErrUniqueViolation {
			return Contributor{}, ErrConflict
		}
		return Contributor{}, err
	}
	return c, nil
}

// ApproveContributor moves an assignment to approved status.
func (s *Store) ApproveContributor(ctx context.Context, id, approvedBy string) (Contributor, error) {
	row := s.db.QueryRowContext(ctx, `
		update community_contributors
		set status = 'approved', approved_by = $2, approved_at = now(), updated_at = now()
		where id = $1
		returning id, user_id, level, status, created_by, approved_by, approved_at, notes, created_at, updated_at
	`, id, approvedBy)

	c, err := scanContributor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Contributor{}, ErrNotFound
	}
	if err != nil {
		return Contributor{}, err
	}
	return c, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContributor(row rowScanner) (Contributor, error) {
	var (
		c          Contributor
		createdBy  sql.NullString
		approvedBy sql.NullString
		approvedAt sql.NullTime
		notes      sql.NullString
	)
	err := row.Scan(&c.ID, &c.UserID, &c.Level, &c.Status, &createdBy, &approvedBy, &approvedAt, &notes, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return Contributor{}, err
	}
	if createdBy.Valid {
		c.CreatedBy = &createdBy.String
	}
	if approvedBy.Valid {
		c.ApprovedBy = &approvedBy.String
	}
	if approvedAt.Valid {
		t := approvedAt.Time
		c.ApprovedAt = &t
	}
	if notes.Valid {
		c.Notes = &notes.String
	}
	return c, nil
}
