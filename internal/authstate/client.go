package authstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"echomap.org/internal/role"
)

// ErrUnauthenticated indicates the server rejected the access token.
var ErrUnauthenticated = errors.New("authstate: unauthenticated")

const defaultRequestTimeout = 10 * time.Second

// Client fetches the caller's role record from the admin API.
type Client struct {
	baseURL string
	http    *http.Client
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// NewClient builds a Client for the given API base URL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultRequestTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ RoleFetcher = (*Client)(nil)

type meBody struct {
	User struct {
		ID        string    `json:"id"`
		Email     string    `json:"email"`
		CreatedAt time.Time `json:"created_at"`
	} `json:"user"`
	Role   *string `json:"role"`
	Level  *int    `json:"level"`
	Status *string `json:"status"`
}

// FetchRole calls GET /api/auth/me with the given bearer token and
// normalizes the response into a Profile. A 401 maps to ErrUnauthenticated;
// the caller resets to anonymous rather than retrying.
func (c *Client) FetchRole(ctx context.Context, accessToken string) (Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/auth/me", nil)
	if err != nil {
		return Profile{}, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return Profile{}, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return Profile{}, ErrUnauthenticated
	default:
		return Profile{}, fmt.Errorf("authstate: unexpected status %d", resp.StatusCode)
	}

	var body meBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Profile{}, err
	}

	return Profile{
		User: UserInfo{
			ID:        body.User.ID,
			Email:     body.User.Email,
			CreatedAt: body.User.CreatedAt,
		},
		Record: role.NewRecord(role.ParseRole(body.Role), body.Level, role.ParseStatus(body.Status)),
	}, nil
}
