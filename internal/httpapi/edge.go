package httpapi

import (
	"fmt"
	"html"
	"net/http"
	"net/url"
	"strings"
)

// SessionCookie carries the access token for browser page loads. API calls
// use the Authorization header instead.
const SessionCookie = "echomap_session"

// Login surface error codes and their user-facing messages.
const (
	LoginErrNoRole         = "no_role"
	LoginErrPending        = "pending"
	LoginErrSessionExpired = "session_expired"
	LoginErrAuthRequired   = "auth_required"
)

var loginErrorMessages = map[string]string{
	LoginErrNoRole:         "Your account does not have admin access. Contact a core team member to be added.",
	LoginErrPending:        "Your account is pending approval. You will get access once a core team member approves it.",
	LoginErrSessionExpired: "Your session has expired. Please sign in again.",
	LoginErrAuthRequired:   "Please sign in to continue.",
}

// LoginErrorMessage maps an error code from a redirect to its message.
// Unknown codes yield an empty string and render nothing.
func LoginErrorMessage(code string) string {
	return loginErrorMessages[code]
}

var protectedPrefixes = []string{
	"/dashboard",
	"/admin",
}

// EdgeGate is a coarse pre-routing filter: it rejects wholly unauthenticated
// traffic to protected pages with a login redirect. It checks session
// presence only, never roles; real enforcement is the per-route authorizer.
func (a *API) EdgeGate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path

		if !isProtectedPath(path) {
			next.ServeHTTP(w, r)
			return
		}

		cookie, err := r.Cookie(SessionCookie)
		if err != nil || strings.TrimSpace(cookie.Value) == "" {
			redirectToLogin(w, r, path, LoginErrAuthRequired)
			return
		}
		if _, err := a.verifier.Verify(r.Context(), cookie.Value); err != nil {
			redirectToLogin(w, r, path, LoginErrSessionExpired)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isProtectedPath(path string) bool {
	for _, prefix := range protectedPrefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	return false
}

func redirectToLogin(w http.ResponseWriter, r *http.Request, returnTo, errCode string) {
	q := url.Values{}
	q.Set("redirect", returnTo)
	if errCode != "" {
		q.Set("error", errCode)
	}
	http.Redirect(w, r, "/login?"+q.Encode(), http.StatusFound)
}

// handleLoginPage renders the minimal login surface with any redirect error
// message.
func (a *API) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	msg := LoginErrorMessage(r.URL.Query().Get("error"))
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, `<!doctype html><html><head><title>echomap admin - sign in</title></head><body>`)
	if msg != "" {
		fmt.Fprintf(w, `<p class="error">%s</p>`, html.EscapeString(msg))
	}
	fmt.Fprint(w, `<form method="post" action="/api/auth/login">`+
		`<input type="email" name="email" placeholder="Email">`+
		`<input type="password" name="password" placeholder="Password">`+
		`<button type="submit">Sign in</button></form></body></html>`)
}

// handleDashboard is the placeholder admin page behind the edge gate.
func (a *API) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, `<!doctype html><html><head><title>echomap admin</title></head>`+
		`<body><h1>echomap admin</h1></body></html>`)
}
