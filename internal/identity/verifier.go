package identity

import (
	"context"
	"strings"
	"time"
)

const defaultVerifyTimeout = 3 * time.Second

// StoreVerifier verifies bearer tokens cryptographically and then confirms
// the subject still maps to an active admin account. The user store is the
// source of truth; a deleted or disabled account invalidates otherwise valid
// tokens immediately.
type StoreVerifier struct {
	tokens  *TokenService
	users   UserStore
	timeout time.Duration
}

// VerifierOption configures StoreVerifier.
type VerifierOption func(*StoreVerifier)

// WithVerifyTimeout bounds the user store round-trip during verification.
func WithVerifyTimeout(d time.Duration) VerifierOption {
	return func(v *StoreVerifier) {
		if d > 0 {
			v.timeout = d
		}
	}
}

// NewStoreVerifier constructs a StoreVerifier.
func NewStoreVerifier(tokens *TokenService, users UserStore, opts ...VerifierOption) *StoreVerifier {
	v := &StoreVerifier{tokens: tokens, users: users, timeout: defaultVerifyTimeout}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify implements Verifier.
func (v *StoreVerifier) Verify(ctx context.Context, token string) (Identity, error) {
	claims, err := v.tokens.Parse(token)
	if err != nil {
		return Identity{}, ErrInvalidToken
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	user, err := v.users.Find(ctx, claims.Subject)
	if err != nil {
		return Identity{}, ErrUnknownUser
	}
	if !strings.EqualFold(user.Status, UserStatusActive) {
		return Identity{}, ErrUnknownUser
	}
	return Identity{ID: user.ID, Email: user.Email, CreatedAt: user.CreatedAt}, nil
}
