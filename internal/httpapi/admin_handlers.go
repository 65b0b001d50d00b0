package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"echomap.org/internal/audit"
	"echomap.org/internal/role"
	"echomap.org/internal/store/pg"
)

type createContributorRequest struct {
	UserID string `json:"user_id"`
	Level  int    `json:"level"`
	Notes  string `json:"notes"`
}

// handleContributors serves the contributor collection. Core only.
func (a *API) handleContributors(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listContributors(w, r)
	case http.MethodPost:
		a.createContributor(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) listContributors(w http.ResponseWriter, r *http.Request) {
	r, _, _, ok := a.requireAuth(w, r, role.RequireCore)
	if !ok {
		return
	}

	items, err := a.store.ListContributors(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	if items == nil {
		items = []pg.Contributor{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) createContributor(w http.ResponseWriter, r *http.Request) {
	r, id, _, ok := a.requireAuth(w, r, role.RequireCore)
	if !ok {
		return
	}

	var req createContributorRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		writeError(w, r, http.StatusBadRequest, "user_id is required")
		return
	}
	if req.Level < 1 || req.Level > 5 {
		writeError(w, r, http.StatusBadRequest, "level must be between 1 and 5")
		return
	}

	c, err := a.store.CreateContributor(r.Context(), strings.TrimSpace(req.UserID), req.Level, id.ID, strings.TrimSpace(req.Notes))
	if err != nil {
		if errors.Is(err, pg.ErrConflict) {
			writeError(w, r, http.StatusConflict, "contributor already exists for user")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	_ = audit.LogEvent(r.Context(), "admin.contributor.create", map[string]any{
		"contributor_id": c.ID,
		"target_user_id": c.UserID,
		"level":          c.Level,
	})
	w.Header().Set("Location", fmt.Sprintf("/api/admin/contributors/%s", c.ID))
	writeJSON(w, http.StatusCreated, c)
}

// handleContributorResource routes /api/admin/contributors/{id}/approve.
func (a *API) handleContributorResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/admin/contributors/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "approve" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	r, id, _, ok := a.requireAuth(w, r, role.RequireCore)
	if !ok {
		return
	}

	c, err := a.store.ApproveContributor(r.Context(), parts[0], id.ID)
	if err != nil {
		if errors.Is(err, pg.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "contributor not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	_ = audit.LogEvent(r.Context(), "admin.contributor.approve", map[string]any{
		"contributor_id": c.ID,
		"target_user_id": c.UserID,
	})
	writeJSON(w, http.StatusOK, c)
}
