package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"echomap.org/internal/identity"
	"echomap.org/internal/obs"
	"echomap.org/internal/role"
	"echomap.org/internal/store/pg"
)

// Store is the persistence surface the API needs. *pg.Store satisfies it;
// tests substitute an in-memory fake.
type Store interface {
	role.Lookup
	identity.UserStore

	PendingMessages(ctx context.Context, limit int) ([]pg.Message, error)
	SetMessageStatus(ctx context.Context, id, status string) (pg.Message, error)

	ListContributors(ctx context.Context) ([]pg.Contributor, error)
	CreateContributor(ctx context.Context, userID string, level int, createdBy, notes string) (pg.Contributor, error)
	ApproveContributor(ctx context.Context, id, approvedBy string) (pg.Contributor, error)
}

// ReadyProbe reports whether the service can reach its database.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer of the admin service.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string

	store    Store
	verifier identity.Verifier
	resolver *role.Resolver
	tokens   *identity.TokenService

	rateBurst  int
	ratePerSec int
}

// New wires the API routes.
func New(rp ReadyProbe, version string, store Store, verifier identity.Verifier, resolver *role.Resolver, tokens *identity.TokenService) *API {
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: rp,
		version:    version,
		store:      store,
		verifier:   verifier,
		resolver:   resolver,
		tokens:     tokens,
		rateBurst:  20,
		ratePerSec: 10,
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/login", a.handleLoginPage)
	a.mux.HandleFunc("/dashboard", a.handleDashboard)
	a.mux.HandleFunc("/dashboard/", a.handleDashboard)

	a.mux.HandleFunc("/api/auth/login", a.handleLogin)
	a.mux.HandleFunc("/api/auth/logout", a.handleLogout)
	a.mux.HandleFunc("/api/auth/me", a.handleMe)

	a.mux.HandleFunc("/api/moderation/queue", a.handleModerationQueue)
	a.mux.HandleFunc("/api/moderation/messages/", a.handleModerationMessage)

	a.mux.HandleFunc("/api/admin/contributors", a.handleContributors)
	a.mux.HandleFunc("/api/admin/contributors/", a.handleContributorResource)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler assembles the middleware chain around the mux. The edge gate sits
// inside the chain so unauthenticated page traffic is redirected before
// routing; API routes self-authorize.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.EdgeGate(h)
	h = MaxBodyBytes(h, 1<<20)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = LoggingJSON(h)
	h = RequestID(h)
	h = CORS(h)
	h = SecurityHeaders(h)
	return obs.Instrument(h)
}

// --- service endpoints ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "echomap-admin-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "echomap-admin-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
