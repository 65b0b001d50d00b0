package pg

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"echomap.org/internal/identity"
)

var _ identity.UserStore = (*Store)(nil)

// Find loads an admin account by id.
func (s *Store) Find(ctx context.Context, id string) (identity.User, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, email, password_hash, status, created_at
		from auth_users
		where id = $1
	`, id)
	return scanUser(row)
}

// FindByEmail loads an admin account by email (case-insensitive).
func (s *Store) FindByEmail(ctx context.Context, email string) (identity.User, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, email, password_hash, status, created_at
		from auth_users
		where lower(email) = lower($1)
	`, strings.TrimSpace(email))
	return scanUser(row)
}

func scanUser(row *sql.Row) (identity.User, error) {
	var u identity.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Status, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return identity.User{}, ErrNotFound
	}
	if err != nil {
		return identity.User{}, err
	}
	return u, nil
}
