package role

import (
	"context"
	"time"

	"echomap.org/internal/obs"
)

const defaultLookupTimeout = 3 * time.Second

// Row mirrors the shape the role store returns for a user: at most one row
// unioned across the core team and community contributor tables.
type Row struct {
	RoleType *string
	Level    *int
	IsCore   bool
	Status   *string
}

// Lookup is the external role store port. The second return value reports
// whether a row exists for the user.
type Lookup interface {
	RoleRow(ctx context.Context, userID string) (Row, bool, error)
}

// Resolver normalizes role store rows into canonical Records. Resolution is
// fail closed: any lookup error, missing row or unrecognized marker yields
// the no-role record, never an elevated one.
type Resolver struct {
	lookup  Lookup
	timeout time.Duration
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithLookupTimeout bounds each role store round-trip. Timeouts degrade to
// no-role like any other lookup failure.
func WithLookupTimeout(d time.Duration) ResolverOption {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// NewResolver constructs a Resolver over the given store port.
func NewResolver(lookup Lookup, opts ...ResolverOption) *Resolver {
	r := &Resolver{lookup: lookup, timeout: defaultLookupTimeout}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve fetches and normalizes the role record for a verified user id.
// It always returns a usable Record; failures are logged and counted, then
// collapsed to no-role.
func (r *Resolver) Resolve(ctx context.Context, userID string) Record {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	row, found, err := r.lookup.RoleRow(ctx, userID)
	if err != nil {
		obs.ObserveRoleLookupFailure()
		obs.LogEntry(map[string]any{
			"ts":    time.Now().UTC().Format(time.RFC3339Nano),
			"level": "warn",
			"msg":   "role_lookup_failed",
			"error": err.Error(),
		})
		return NoRole()
	}
	if !found {
		return NoRole()
	}

	resolved := ParseRole(row.RoleType)
	if resolved == None {
		return NoRole()
	}
	return NewRecord(resolved, row.Level, ParseStatus(row.Status))
}
