package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"echomap.org/internal/audit"
	"echomap.org/internal/role"
	"echomap.org/internal/store/pg"
)

type moderationQueueResponse struct {
	Items []pg.Message `json:"items"`
	AsOf  time.Time    `json:"as_of"`
}

// handleModerationQueue lists broadcast messages awaiting review. Requires an
// approved moderator; core identities pass the same gate.
func (a *API) handleModerationQueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	r, _, rec, ok := a.requireAuth(w, r, role.RequireModerator)
	if !ok {
		return
	}
	if !role.CanPerformAction(rec.Role, role.ActionViewModerationQueue) {
		writeError(w, r, http.StatusForbidden, "action not permitted")
		return
	}

	limit, err := parsePositiveInt(r.URL.Query().Get("limit"), 50, 1, 200)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	items, err := a.store.PendingMessages(r.Context(), limit)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	if items == nil {
		items = []pg.Message{}
	}
	writeJSON(w, http.StatusOK, moderationQueueResponse{
		Items: items,
		AsOf:  time.Now().UTC(),
	})
}

// handleModerationMessage routes /api/moderation/messages/{id}/{verb}.
func (a *API) handleModerationMessage(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/moderation/messages/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 2 || parts[0] == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	id := parts[0]

	switch parts[1] {
	case "hide":
		a.moderateMessage(w, r, id, role.ActionHideMessages, pg.MessageHidden)
	case "approve":
		a.moderateMessage(w, r, id, role.ActionApproveMessages, pg.MessagePublished)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) moderateMessage(w http.ResponseWriter, r *http.Request, id, action, newStatus string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	r, _, rec, ok := a.requireAuth(w, r, role.RequireModerator)
	if !ok {
		return
	}
	if !role.CanPerformAction(rec.Role, action) {
		writeError(w, r, http.StatusForbidden, "action not permitted")
		return
	}

	msg, err := a.store.SetMessageStatus(r.Context(), id, newStatus)
	if err != nil {
		if errors.Is(err, pg.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "message not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	_ = audit.LogEvent(r.Context(), "moderation.message."+newStatus, map[string]any{
		"message_id": msg.ID,
		"action":     action,
	})
	writeJSON(w, http.StatusOK, msg)
}
