package httpapi

import (
	"net/http"
	"strings"
	"time"

	"echomap.org/internal/audit"
	"echomap.org/internal/identity"
	"echomap.org/internal/role"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      userBody  `json:"user"`
}

type userBody struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

type meResponse struct {
	User        userBody        `json:"user"`
	Role        *string         `json:"role"`
	Level       *int            `json:"level"`
	Status      *string         `json:"status"`
	Permissions permissionsBody `json:"permissions"`
}

type permissionsBody struct {
	IsCore      bool `json:"isCore"`
	IsModerator bool `json:"isModerator"`
	HasRole     bool `json:"hasRole"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req loginRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		if err := r.ParseForm(); err != nil {
			writeError(w, r, http.StatusBadRequest, "malformed form body")
			return
		}
		req.Email = r.PostFormValue("email")
		req.Password = r.PostFormValue("password")
	} else if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	email := strings.TrimSpace(strings.ToLower(req.Email))
	if email == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "email and password are required")
		return
	}

	user, err := a.store.FindByEmail(r.Context(), email)
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if !strings.EqualFold(user.Status, identity.UserStatusActive) {
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err := identity.VerifyPassword(user.PasswordHash, req.Password); err != nil {
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, expiresAt, err := a.tokens.Issue(user.ID, user.Email)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	_ = audit.LogEvent(r.Context(), "auth.session.issued", map[string]any{
		"user_id":    user.ID,
		"expires_at": expiresAt.Format(time.RFC3339),
	})

	writeJSON(w, http.StatusOK, loginResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		User: userBody{
			ID:        user.ID,
			Email:     user.Email,
			CreatedAt: user.CreatedAt,
		},
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]any{"status": "signed_out"})
}

// handleMe returns the caller's role record and UI permission flags.
// Authentication is required; a missing role is a valid answer, not an error.
func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	_, id, rec, ok := a.requireAuth(w, r, role.RequireAuthenticated)
	if !ok {
		return
	}

	resp := meResponse{
		User: userBody{
			ID:        id.ID,
			Email:     id.Email,
			CreatedAt: id.CreatedAt,
		},
		Level: rec.Level,
		Permissions: permissionsBody{
			IsCore:      rec.Role == role.Core,
			IsModerator: rec.Role == role.Moderator,
			HasRole:     rec.HasRole(),
		},
	}
	if rec.HasRole() {
		name := string(rec.Role)
		resp.Role = &name
	}
	if rec.Status != nil {
		status := string(*rec.Status)
		resp.Status = &status
	}
	writeJSON(w, http.StatusOK, resp)
}
