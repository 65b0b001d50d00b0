package role

// Actions known to the moderation surface.
const (
	ActionApproveMessages     = "approve_messages"
	ActionFlagContent         = "flag_content"
	ActionHideMessages        = "hide_messages"
	ActionViewModerationQueue = "view_moderation_queue"
)

// moderatorActions is the fixed allow-list for the moderator role. Future
// level-based differentiation should replace this with a table keyed by
// (role, level).
var moderatorActions = map[string]struct{}{
	ActionApproveMessages:     {},
	ActionFlagContent:         {},
	ActionHideMessages:        {},
	ActionViewModerationQueue: {},
}

// CanPerformAction reports whether a role may perform the named action.
// Core can do everything; moderators are limited to the allow-list; no role
// means no permissions.
func CanPerformAction(r Role, action string) bool {
	switch r {
	case Core:
		return true
	case Moderator:
		_, ok := moderatorActions[action]
		return ok
	default:
		return false
	}
}

// RequireRole reports whether the actual role satisfies the required one.
// Core satisfies any requirement; everything else is an exact match.
func RequireRole(actual, required Role) bool {
	if actual == Core {
		return true
	}
	return actual == required
}

// IsNoRole reports whether the role is the no-role sentinel.
func IsNoRole(r Role) bool {
	return r == None
}

// CanModeratorLevelPerform checks an action for a moderator of the given
// level. Level-based rules are not implemented yet; every level delegates to
// the flat moderator allow-list. A nil level has no permissions.
func CanModeratorLevelPerform(level *int, action string) bool {
	if level == nil {
		return false
	}
	return CanPerformAction(Moderator, action)
}

// Reason classifies an authorization decision.
type Reason string

const (
	ReasonOK               Reason = "ok"
	ReasonUnauthenticated  Reason = "unauthenticated"
	ReasonNoRole           Reason = "no_role"
	ReasonPendingApproval  Reason = "pending_approval"
	ReasonInsufficientRole Reason = "insufficient_role"
)

// Requirement is an explicit, named policy input for route guards. A zero
// Requirement demands authentication only. AnyRole demands some role without
// naming one; callers must never encode "any role" as an omitted argument.
type Requirement struct {
	Role     Role // specific role demanded; None means no specific role
	AnyRole  bool // some role required, whichever it is
	Approved bool // the assignment must be in approved status
}

// Predeclared requirements for route guards.
var (
	RequireAuthenticated = Requirement{}
	RequireAnyRole       = Requirement{AnyRole: true}
	RequireModerator     = Requirement{Role: Moderator, Approved: true}
	RequireCore          = Requirement{Role: Core}
)

// Decision is the outcome of evaluating a record against a requirement.
// Produced fresh per request, never persisted.
type Decision struct {
	Allowed bool
	Reason  Reason
}

var allowed = Decision{Allowed: true, Reason: ReasonOK}

// Evaluate applies the role policy to a resolved record. Pure; the caller is
// responsible for having authenticated the identity first.
func Evaluate(rec Record, req Requirement) Decision {
	if req.Role != None {
		if !rec.HasRole() {
			return Decision{Reason: ReasonNoRole}
		}
		if !RequireRole(rec.Role, req.Role) {
			return Decision{Reason: ReasonInsufficientRole}
		}
	} else if req.AnyRole && !rec.HasRole() {
		return Decision{Reason: ReasonNoRole}
	}
	if req.Approved && !rec.IsApproved() {
		return Decision{Reason: ReasonPendingApproval}
	}
	return allowed
}
