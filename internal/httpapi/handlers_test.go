package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"echomap.org/internal/identity"
	"echomap.org/internal/role"
	"echomap.org/internal/store/pg"
)

// fakeStore is an in-memory Store for handler tests.
type fakeStore struct {
	mu           sync.Mutex
	users        map[string]identity.User
	roleRows     map[string]role.Row
	roleErr      error
	messages     map[string]pg.Message
	contributors map[string]pg.Contributor
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:        make(map[string]identity.User),
		roleRows:     make(map[string]role.Row),
		messages:     make(map[string]pg.Message),
		contributors: make(map[string]pg.Contributor),
	}
}

func (f *fakeStore) Find(ctx context.Context, id string) (identity.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return identity.User{}, pg.ErrNotFound
	}
	return u, nil
}

func (f *fakeStore) FindByEmail(ctx context.Context, email string) (identity.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return identity.User{}, pg.ErrNotFound
}

func (f *fakeStore) RoleRow(ctx context.Context, userID string) (role.Row, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.roleErr != nil {
		return role.Row{}, false, f.roleErr
	}
	row, ok := f.roleRows[userID]
	return row, ok, nil
}

func (f *fakeStore) PendingMessages(ctx context.Context, limit int) ([]pg.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []pg.Message
	for _, m := range f.messages {
		if m.Status == pg.MessagePending && len(out) < limit {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeStore) SetMessageStatus(ctx context.Context, id, status string) (pg.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[id]
	if !ok {
		return pg.Message{}, pg.ErrNotFound
	}
	m.Status = status
	f.messages[id] = m
	return m, nil
}

func (f *fakeStore) ListContributors(ctx context.Context) ([]pg.Contributor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []pg.Contributor
	for _, c := range f.contributors {
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeStore) CreateContributor(ctx context.Context, userID string, level int, createdBy, notes string) (pg.Contributor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.contributors {
		if c.UserID == userID {
			return pg.Contributor{}, pg.ErrConflict
		}
	}
	c := pg.Contributor{
		ID:        "c-" + userID,
		UserID:    userID,
		Level:     level,
		Status:    "pending",
		CreatedBy: &createdBy,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	f.contributors[c.ID] = c
	return c, nil
}

func (f *fakeStore) ApproveContributor(ctx context.Context, id, approvedBy string) (pg.Contributor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.contributors[id]
	if !ok {
		return pg.Contributor{}, pg.ErrNotFound
	}
	now := time.Now().UTC()
	c.Status = "approved"
	c.ApprovedBy = &approvedBy
	c.ApprovedAt = &now
	f.contributors[id] = c
	return c, nil
}

// strptr/intptr helpers for building role rows.
func strptr(s string) *string { return &s }
func intptr(i int) *int       { return &i }

type apiClient struct {
	baseURL string
	client  *http.Client
	tokens  *identity.TokenService
	store   *fakeStore
	t       *testing.T
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()

	store := newFakeStore()
	tokens, err := identity.NewTokenService("test-secret")
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	verifier := identity.NewStoreVerifier(tokens, store)
	resolver := role.NewResolver(store)

	api := New(ReadyProbe{}, "test", store, verifier, resolver, tokens)
	api.rateBurst = 100
	api.ratePerSec = 100

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	client := srv.Client()
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}

	return &apiClient{
		baseURL: srv.URL,
		client:  client,
		tokens:  tokens,
		store:   store,
		t:       t,
	}
}

// addUser registers an active account and returns a valid bearer token.
func (c *apiClient) addUser(id, email string) string {
	c.store.mu.Lock()
	c.store.users[id] = identity.User{
		ID:        id,
		Email:     email,
		Status:    identity.UserStatusActive,
		CreatedAt: time.Now().UTC().Add(-time.Hour),
	}
	c.store.mu.Unlock()

	token, _, err := c.tokens.Issue(id, email)
	if err != nil {
		c.t.Fatalf("issue token: %v", err)
	}
	return token
}

func (c *apiClient) get(path string, headers map[string]string) *http.Response {
	c.t.Helper()
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) post(path string, body any, headers map[string]string) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("decode body: %v", err)
	}
}

func bearerHeader(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func TestMeUnauthenticated(t *testing.T) {
	c := newTestAPI(t)

	resp := c.get("/api/auth/me", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	if resp.Header.Get("WWW-Authenticate") == "" {
		t.Fatal("expected WWW-Authenticate header")
	}
}

func TestMeGarbageToken(t *testing.T) {
	c := newTestAPI(t)

	resp := c.get("/api/auth/me", bearerHeader("garbage"))
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestMeNoRole(t *testing.T) {
	c := newTestAPI(t)
	token := c.addUser("user-1", "norole@echomap.org")

	resp := c.get("/api/auth/me", bearerHeader(token))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body meResponse
	decodeBody(t, resp, &body)
	if body.Role != nil {
		t.Fatalf("expected null role, got %v", *body.Role)
	}
	if body.Permissions.HasRole {
		t.Fatal("expected hasRole false")
	}
	if body.User.ID != "user-1" || body.User.Email != "norole@echomap.org" {
		t.Fatalf("unexpected user: %+v", body.User)
	}
}

func TestMePendingModerator(t *testing.T) {
	c := newTestAPI(t)
	token := c.addUser("user-2", "mod@echomap.org")
	c.store.roleRows["user-2"] = role.Row{RoleType: strptr("moderator"), Level: intptr(2), Status: strptr("pending")}

	resp := c.get("/api/auth/me", bearerHeader(token))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body meResponse
	decodeBody(t, resp, &body)
	if body.Role == nil || *body.Role != "moderator" {
		t.Fatalf("expected moderator, got %v", body.Role)
	}
	if body.Level == nil || *body.Level != 2 {
		t.Fatalf("expected level 2, got %v", body.Level)
	}
	if body.Status == nil || *body.Status != "pending" {
		t.Fatalf("expected pending status, got %v", body.Status)
	}
	if body.Permissions.IsCore || !body.Permissions.IsModerator || !body.Permissions.HasRole {
		t.Fatalf("unexpected permissions: %+v", body.Permissions)
	}
}

func TestMeFailsClosedOnLookupError(t *testing.T) {
	c := newTestAPI(t)
	token := c.addUser("user-3", "err@echomap.org")
	c.store.roleErr = errors.New("store down")

	resp := c.get("/api/auth/me", bearerHeader(token))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body meResponse
	decodeBody(t, resp, &body)
	if body.Role != nil || body.Permissions.HasRole {
		t.Fatalf("lookup failure must degrade to no role, got %+v", body)
	}
}

func TestModerationQueuePendingModeratorRejected(t *testing.T) {
	c := newTestAPI(t)
	token := c.addUser("user-2", "mod@echomap.org")
	c.store.roleRows["user-2"] = role.Row{RoleType: strptr("moderator"), Level: intptr(2), Status: strptr("pending")}

	resp := c.get("/api/moderation/queue", bearerHeader(token))
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}

	var body map[string]any
	decodeBody(t, resp, &body)
	if body["reason"] != string(role.ReasonPendingApproval) {
		t.Fatalf("expected pending_approval reason, got %v", body["reason"])
	}
}

func TestModerationQueueNoRoleRejectedDistinctly(t *testing.T) {
	c := newTestAPI(t)
	token := c.addUser("user-1", "norole@echomap.org")

	resp := c.get("/api/moderation/queue", bearerHeader(token))
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}

	var body map[string]any
	decodeBody(t, resp, &body)
	if body["reason"] != string(role.ReasonNoRole) {
		t.Fatalf("expected no_role reason, got %v", body["reason"])
	}
}

func TestModerationQueueAdmitsCore(t *testing.T) {
	c := newTestAPI(t)
	token := c.addUser("user-4", "core@echomap.org")
	c.store.roleRows["user-4"] = role.Row{RoleType: strptr("core"), IsCore: true}
	c.store.messages["m1"] = pg.Message{ID: "m1", Content: "hello", Status: pg.MessagePending, CreatedAt: time.Now().UTC()}

	resp := c.get("/api/moderation/queue", bearerHeader(token))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body moderationQueueResponse
	decodeBody(t, resp, &body)
	if len(body.Items) != 1 {
		t.Fatalf("expected 1 queued message, got %d", len(body.Items))
	}
}

func TestModerationQueueAdmitsApprovedModerator(t *testing.T) {
	c := newTestAPI(t)
	token := c.addUser("user-5", "approved@echomap.org")
	c.store.roleRows["user-5"] = role.Row{RoleType: strptr("moderator"), Level: intptr(1), Status: strptr("approved")}

	resp := c.get("/api/moderation/queue", bearerHeader(token))
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestHideMessage(t *testing.T) {
	c := newTestAPI(t)
	token := c.addUser("user-5", "approved@echomap.org")
	c.store.roleRows["user-5"] = role.Row{RoleType: strptr("moderator"), Level: intptr(1), Status: strptr("approved")}
	c.store.messages["m1"] = pg.Message{ID: "m1", Content: "spam", Status: pg.MessagePending}

	resp := c.post("/api/moderation/messages/m1/hide", nil, bearerHeader(token))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body pg.Message
	decodeBody(t, resp, &body)
	if body.Status != pg.MessageHidden {
		t.Fatalf("expected hidden, got %s", body.Status)
	}
}

func TestContributorsCoreOnly(t *testing.T) {
	c := newTestAPI(t)
	modToken := c.addUser("user-5", "approved@echomap.org")
	c.store.roleRows["user-5"] = role.Row{RoleType: strptr("moderator"), Level: intptr(1), Status: strptr("approved")}

	resp := c.get("/api/admin/contributors", bearerHeader(modToken))
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for moderator on core route, got %d", resp.StatusCode)
	}
	var body map[string]any
	decodeBody(t, resp, &body)
	if body["reason"] != string(role.ReasonInsufficientRole) {
		t.Fatalf("expected insufficient_role, got %v", body["reason"])
	}
}

func TestContributorLifecycle(t *testing.T) {
	c := newTestAPI(t)
	coreToken := c.addUser("core-1", "core@echomap.org")
	c.store.roleRows["core-1"] = role.Row{RoleType: strptr("core"), IsCore: true}

	resp := c.post("/api/admin/contributors", createContributorRequest{UserID: "user-9", Level: 2, Notes: "trial"}, bearerHeader(coreToken))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var created pg.Contributor
	decodeBody(t, resp, &created)
	if created.Status != "pending" {
		t.Fatalf("expected pending contributor, got %s", created.Status)
	}

	resp = c.post("/api/admin/contributors/"+created.ID+"/approve", nil, bearerHeader(coreToken))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var approved pg.Contributor
	decodeBody(t, resp, &approved)
	if approved.Status != "approved" {
		t.Fatalf("expected approved, got %s", approved.Status)
	}
}

func TestLoginIssuesUsableToken(t *testing.T) {
	c := newTestAPI(t)
	hash, err := identity.HashPassword("hunter2!")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	c.store.mu.Lock()
	c.store.users["user-1"] = identity.User{
		ID:           "user-1",
		Email:        "admin@echomap.org",
		PasswordHash: hash,
		Status:       identity.UserStatusActive,
		CreatedAt:    time.Now().UTC(),
	}
	c.store.mu.Unlock()

	resp := c.post("/api/auth/login", loginRequest{Email: "admin@echomap.org", Password: "hunter2!"}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	foundCookie := false
	for _, ck := range resp.Cookies() {
		if ck.Name == SessionCookie && ck.Value != "" {
			foundCookie = true
		}
	}
	if !foundCookie {
		t.Fatal("expected session cookie on login")
	}

	var body loginResponse
	decodeBody(t, resp, &body)
	if body.Token == "" {
		t.Fatal("expected token in login response")
	}

	me := c.get("/api/auth/me", bearerHeader(body.Token))
	defer me.Body.Close()
	if me.StatusCode != http.StatusOK {
		t.Fatalf("login token rejected by /me: %d", me.StatusCode)
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	c := newTestAPI(t)
	hash, _ := identity.HashPassword("correct")
	c.store.mu.Lock()
	c.store.users["user-1"] = identity.User{
		ID:           "user-1",
		Email:        "admin@echomap.org",
		PasswordHash: hash,
		Status:       identity.UserStatusActive,
	}
	c.store.mu.Unlock()

	resp := c.post("/api/auth/login", loginRequest{Email: "admin@echomap.org", Password: "wrong"}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestEdgeGateRedirectsAnonymous(t *testing.T) {
	c := newTestAPI(t)

	resp := c.get("/dashboard", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("expected 302, got %d", resp.StatusCode)
	}
	loc, err := url.Parse(resp.Header.Get("Location"))
	if err != nil {
		t.Fatalf("parse location: %v", err)
	}
	if loc.Path != "/login" {
		t.Fatalf("expected /login redirect, got %s", loc.Path)
	}
	if loc.Query().Get("redirect") != "/dashboard" {
		t.Fatalf("expected redirect param, got %q", loc.Query().Get("redirect"))
	}
	if loc.Query().Get("error") != LoginErrAuthRequired {
		t.Fatalf("expected auth_required, got %q", loc.Query().Get("error"))
	}
}

func TestEdgeGateRejectsExpiredSession(t *testing.T) {
	c := newTestAPI(t)

	req, _ := http.NewRequest(http.MethodGet, c.baseURL+"/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "stale-token"})
	resp, err := c.client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("expected 302, got %d", resp.StatusCode)
	}
	loc, _ := url.Parse(resp.Header.Get("Location"))
	if loc.Query().Get("error") != LoginErrSessionExpired {
		t.Fatalf("expected session_expired, got %q", loc.Query().Get("error"))
	}
}

func TestEdgeGatePassesValidSession(t *testing.T) {
	c := newTestAPI(t)
	token := c.addUser("user-1", "admin@echomap.org")

	req, _ := http.NewRequest(http.MethodGet, c.baseURL+"/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: token})
	resp, err := c.client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestEdgeGateLeavesAPIAlone(t *testing.T) {
	c := newTestAPI(t)

	// API routes self-authorize: no redirect, a plain 401.
	resp := c.get("/api/auth/me", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestLoginPageShowsErrorMessage(t *testing.T) {
	c := newTestAPI(t)

	resp := c.get("/login?error=pending", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !bytes.Contains(buf.Bytes(), []byte("pending approval")) {
		t.Fatal("expected pending approval message on login page")
	}
}

func TestHealthz(t *testing.T) {
	c := newTestAPI(t)

	resp := c.get("/healthz", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body map[string]any
	decodeBody(t, resp, &body)
	if body["status"] != "ok" {
		t.Fatalf("unexpected health body: %v", body)
	}
}
