package role

import "strings"

// Role is the closed set of admin roles. External role markers are normalized
// into this set at the resolver boundary; raw strings never travel further.
type Role string

const (
	// None means no role. It is equivalent to the absence of a role row and
	// never grants any permission.
	None Role = "none"
	// Moderator is a limited-privilege role with a numeric level (1-5).
	Moderator Role = "moderator"
	// Core is the superuser role; it satisfies every requirement.
	Core Role = "core"
)

// Status is the approval state of a role assignment. Only Approved grants
// effective access.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusSuspended Status = "suspended"
)

// Record is the canonical role tuple attached to an authenticated identity.
// Level is meaningful only for Moderator; Status gates whether a held role is
// currently usable.
type Record struct {
	Role   Role
	Level  *int
	Status *Status
}

// NoRole is the fail-closed record: no role, no sub-attributes.
func NoRole() Record {
	return Record{Role: None}
}

// NewRecord builds a Record enforcing the invariant that a None role carries
// no level and no status.
func NewRecord(r Role, level *int, status *Status) Record {
	if r == None {
		return NoRole()
	}
	return Record{Role: r, Level: level, Status: status}
}

// HasRole reports whether the record holds an actual role assignment.
func (rec Record) HasRole() bool {
	return rec.Role != None
}

// IsApproved reports whether the assignment is currently usable. A missing
// status on a non-core assignment counts as not approved.
func (rec Record) IsApproved() bool {
	if rec.Role == Core {
		return true
	}
	return rec.Status != nil && *rec.Status == StatusApproved
}

// ParseRole maps an external role marker to the closed enum. A nil or
// unrecognized marker yields None; unknown role types are never granted
// access.
func ParseRole(marker *string) Role {
	if marker == nil {
		return None
	}
	switch strings.TrimSpace(strings.ToLower(*marker)) {
	case string(Core):
		return Core
	case string(Moderator):
		return Moderator
	default:
		return None
	}
}

// ParseStatus maps an external status string to the Status enum. Unrecognized
// values yield nil, which downstream checks treat as not approved.
func ParseStatus(raw *string) *Status {
	if raw == nil {
		return nil
	}
	switch s := Status(strings.TrimSpace(strings.ToLower(*raw))); s {
	case StatusPending, StatusApproved, StatusRejected, StatusSuspended:
		return &s
	default:
		return nil
	}
}
