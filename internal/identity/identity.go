package identity

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInvalidToken indicates the bearer credential failed verification.
	ErrInvalidToken = errors.New("identity: invalid token")
	// ErrUnknownUser indicates the credential was well-formed but its subject
	// no longer maps to an active account.
	ErrUnknownUser = errors.New("identity: unknown user")
	// ErrInvalidCredentials indicates an email/password pair did not match.
	ErrInvalidCredentials = errors.New("identity: invalid credentials")
)

const (
	UserStatusActive   = "active"
	UserStatusDisabled = "disabled"
)

// User is an admin account able to sign in to the dashboard.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Status       string
	CreatedAt    time.Time
}

// Identity is the verified output of credential verification. The rest of the
// system treats the ID as an opaque lookup key.
type Identity struct {
	ID        string
	Email     string
	CreatedAt time.Time
}

// UserStore is the persistence port for admin accounts.
type UserStore interface {
	Find(ctx context.Context, id string) (User, error)
	FindByEmail(ctx context.Context, email string) (User, error)
}

// Verifier answers "is this bearer token valid right now" and yields the
// verified identity. It is authoritative; callers treat any failure as
// unauthenticated.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}
