package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"echomap.org/internal/audit"
	"echomap.org/internal/identity"
	"echomap.org/internal/obs"
	"echomap.org/internal/role"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// authzFailure is the structured outcome of a denied authorization. It is
// terminal: handlers write it out and stop, nothing above recovers from it.
type authzFailure struct {
	status  int
	reason  role.Reason
	message string
}

func unauthenticatedFailure() *authzFailure {
	return &authzFailure{
		status:  http.StatusUnauthorized,
		reason:  role.ReasonUnauthenticated,
		message: "authentication required",
	}
}

func forbiddenFailure(reason role.Reason) *authzFailure {
	msg := "insufficient permissions"
	switch reason {
	case role.ReasonNoRole:
		msg = "no role assigned"
	case role.ReasonPendingApproval:
		msg = "role assignment is not approved"
	}
	return &authzFailure{status: http.StatusForbidden, reason: reason, message: msg}
}

// authorize runs the full server-side decision pipeline for a request:
// bearer extraction, identity verification, fresh role resolution, policy
// evaluation. The returned record is fetched from the store on every call;
// authorization decisions never reuse a cached role.
func (a *API) authorize(r *http.Request, req role.Requirement) (identity.Identity, role.Record, *authzFailure) {
	token, err := extractBearerToken(r.Header.Get(authHeader))
	if err != nil {
		return identity.Identity{}, role.Record{}, unauthenticatedFailure()
	}

	id, err := a.verifier.Verify(r.Context(), token)
	if err != nil {
		return identity.Identity{}, role.Record{}, unauthenticatedFailure()
	}

	rec := a.resolver.Resolve(r.Context(), id.ID)

	decision := role.Evaluate(rec, req)
	if !decision.Allowed {
		return id, rec, forbiddenFailure(decision.Reason)
	}
	return id, rec, nil
}

// requireAuth enforces a requirement and writes the failure response when the
// request is denied. On success the returned request carries the identity in
// its context for audit enrichment.
func (a *API) requireAuth(w http.ResponseWriter, r *http.Request, req role.Requirement) (*http.Request, identity.Identity, role.Record, bool) {
	id, rec, failure := a.authorize(r, req)
	if failure != nil {
		a.writeAuthzFailure(w, r, id, failure)
		return r, identity.Identity{}, role.Record{}, false
	}
	obs.ObserveAuthzDecision(string(role.ReasonOK))
	ctx := identity.ContextWithIdentity(r.Context(), id)
	return r.WithContext(ctx), id, rec, true
}

func (a *API) writeAuthzFailure(w http.ResponseWriter, r *http.Request, id identity.Identity, failure *authzFailure) {
	obs.ObserveAuthzDecision(string(failure.reason))
	if failure.status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	} else {
		fields := map[string]any{
			"path":   r.URL.Path,
			"reason": string(failure.reason),
		}
		if id.ID != "" {
			fields["user_id"] = id.ID
		}
		_ = audit.LogEvent(r.Context(), "authz.denied", fields)
	}

	payload := map[string]any{
		"error":  failure.message,
		"reason": string(failure.reason),
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, failure.status, payload)
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
