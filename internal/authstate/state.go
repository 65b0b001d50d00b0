// Package authstate holds the client-side cache of the caller's resolved
// role record. It mirrors the server's role resolution for UI gating and is
// advisory only: enforcement always happens server-side per request.
package authstate

import (
	"context"
	"sync"
	"time"

	"echomap.org/internal/role"
)

// State is the lifecycle position of the cached authorization snapshot.
type State int

const (
	StateUninitialized State = iota
	StateLoading
	StateAnonymous
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateAnonymous:
		return "anonymous"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "uninitialized"
	}
}

// EventKind is a session lifecycle trigger.
type EventKind int

const (
	EventSessionRestored EventKind = iota
	EventSignedIn
	EventSignedOut
	EventTokenRefreshed
	EventManualRefresh
)

// Event is a session lifecycle notification. AccessToken is empty for
// EventSignedOut.
type Event struct {
	Kind        EventKind
	AccessToken string
}

// UserInfo identifies the signed-in user as reported by the server.
type UserInfo struct {
	ID        string
	Email     string
	CreatedAt time.Time
}

// Profile is the server's answer for "who am I and what role do I hold".
type Profile struct {
	User   UserInfo
	Record role.Record
}

// RoleFetcher resolves the caller's role through the server; the HTTP Client
// in this package is the production implementation.
type RoleFetcher interface {
	FetchRole(ctx context.Context, accessToken string) (Profile, error)
}

// Events is a subscription source for session lifecycle events. Unsubscribe
// is released when Run returns.
type Events interface {
	Subscribe() (<-chan Event, func())
}

// Snapshot is a point-in-time read of the cached authorization state.
// Reads are synchronous and never block on in-flight resolutions.
type Snapshot struct {
	State  State
	User   UserInfo
	Record role.Record
}

// IsCore reports whether the cached role is core.
func (s Snapshot) IsCore() bool { return s.Record.Role == role.Core }

// IsModerator reports whether the cached role is moderator.
func (s Snapshot) IsModerator() bool { return s.Record.Role == role.Moderator }

// HasRole reports whether the cached record holds any role.
func (s Snapshot) HasRole() bool { return s.Record.HasRole() }

// CanPerform checks an action against the cached role. Advisory: the server
// re-checks on every request.
func (s Snapshot) CanPerform(action string) bool {
	return role.CanPerformAction(s.Record.Role, action)
}

func (s Snapshot) hasStatus(status role.Status) bool {
	return s.Record.Status != nil && *s.Record.Status == status
}

func (s Snapshot) IsPending() bool   { return s.hasStatus(role.StatusPending) }
func (s Snapshot) IsApproved() bool  { return s.hasStatus(role.StatusApproved) }
func (s Snapshot) IsRejected() bool  { return s.hasStatus(role.StatusRejected) }
func (s Snapshot) IsSuspended() bool { return s.hasStatus(role.StatusSuspended) }

// Store owns the cached snapshot. It is constructed explicitly, bound to a
// lifecycle event source with Run, and carries no process-global state.
//
// Overlapping triggers are serialized with a resolution sequence: each
// trigger claims the next sequence number and only the newest claim may
// commit, so a stale fetch never overwrites a newer decision.
type Store struct {
	fetcher RoleFetcher

	mu   sync.Mutex
	snap Snapshot
	seq  uint64
}

// NewStore builds a Store in the uninitialized state.
func NewStore(fetcher RoleFetcher) *Store {
	return &Store{
		fetcher: fetcher,
		snap:    Snapshot{State: StateUninitialized, Record: role.NoRole()},
	}
}

// Snapshot returns the current cached state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// Run consumes lifecycle events until the context ends or the source closes
// its channel. The subscription is released on return.
func (s *Store) Run(ctx context.Context, source Events) {
	ch, unsubscribe := source.Subscribe()
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			s.Apply(ctx, ev)
		}
	}
}

// Apply processes one lifecycle event and returns the resulting snapshot.
// Sign-out commits immediately and invalidates any in-flight resolution;
// session-bearing events fetch the role and commit only if no newer trigger
// claimed the sequence meanwhile.
func (s *Store) Apply(ctx context.Context, ev Event) Snapshot {
	if ev.Kind == EventSignedOut || ev.AccessToken == "" {
		s.mu.Lock()
		s.seq++
		s.snap = Snapshot{State: StateAnonymous, Record: role.NoRole()}
		out := s.snap
		s.mu.Unlock()
		return out
	}

	s.mu.Lock()
	s.seq++
	claim := s.seq
	if s.snap.State == StateUninitialized {
		s.snap.State = StateLoading
	}
	s.mu.Unlock()

	profile, err := s.fetcher.FetchRole(ctx, ev.AccessToken)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seq != claim {
		// A newer trigger superseded this resolution; drop it.
		return s.snap
	}
	if err != nil {
		s.snap = Snapshot{State: StateAnonymous, Record: role.NoRole()}
		return s.snap
	}
	s.snap = Snapshot{
		State:  StateAuthenticated,
		User:   profile.User,
		Record: profile.Record,
	}
	return s.snap
}
