// Package client talks to the loyalty points API. It runs the same local
// checks a front end runs before submitting a ledger operation, and reports
// backend failures as *Error values carrying the server's message.
//
// No request is ever retried.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const defaultTimeout = 15 * time.Second

// ErrSessionExpired is returned by Restore for a session past its expiry.
var ErrSessionExpired = &Error{Kind: KindUnauthorized, Message: "session expired, please log in again"}

// Session is what a caller persists between runs.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (s Session) expired(now time.Time) bool {
	return s.Token == "" || !now.Before(s.ExpiresAt)
}

type Client struct {
	baseURL string
	http    *http.Client
	now     func() time.Time

	mu      sync.RWMutex
	session Session
	me      *User
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithClock replaces time.Now for every time based check.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// New returns a client for the API rooted at baseURL, for example
// "http://localhost:8080/api/v1".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    NewHTTPClient(defaultTimeout, nil),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Login exchanges credentials for a session and loads the current user.
func (c *Client) Login(ctx context.Context, utorid, password string) (Session, error) {
	if strings.TrimSpace(utorid) == "" {
		return Session{}, validationErr("utorid", "utorid is required")
	}
	if password == "" {
		return Session{}, validationErr("password", "password is required")
	}

	var session Session
	body := map[string]string{"utorid": utorid, "password": password}
	if err := c.do(ctx, "log in", http.MethodPost, "/auth/tokens", body, &session); err != nil {
		return Session{}, err
	}

	c.setSession(session)
	if _, err := c.Me(ctx); err != nil {
		return Session{}, err
	}

	return session, nil
}

// Restore reuses a stored session. An expired session is dropped and
// ErrSessionExpired returned without contacting the server.
func (c *Client) Restore(ctx context.Context, s Session) error {
	if s.expired(c.now()) {
		c.clearSession()
		return ErrSessionExpired
	}

	c.setSession(s)
	if _, err := c.Me(ctx); err != nil {
		if KindOf(err) == KindUnauthorized {
			c.clearSession()
		}
		return err
	}

	return nil
}

// Logout revokes the token server side. The local session is cleared even
// when that fails.
func (c *Client) Logout(ctx context.Context) error {
	defer c.clearSession()

	return c.do(ctx, "log out", http.MethodDelete, "/auth/tokens", nil, nil)
}

func (c *Client) Session() Session {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.session
}

// Me fetches the current user and caches it for the local balance and role
// checks.
func (c *Client) Me(ctx context.Context) (User, error) {
	var user User
	if err := c.do(ctx, "load your profile", http.MethodGet, "/users/me", nil, &user); err != nil {
		return User{}, err
	}

	c.mu.Lock()
	c.me = &user
	c.mu.Unlock()

	return user, nil
}

// CurrentUser returns the cached user, which may be stale.
func (c *Client) CurrentUser() (User, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.me == nil {
		return User{}, false
	}

	return *c.me, true
}

// currentUser returns the cached user, loading it when nothing is cached.
func (c *Client) currentUser(ctx context.Context) (User, error) {
	if user, ok := c.CurrentUser(); ok {
		return user, nil
	}

	return c.Me(ctx)
}

// forgetMe drops the cached user after anything that moved its balance.
func (c *Client) forgetMe() {
	c.mu.Lock()
	c.me = nil
	c.mu.Unlock()
}

func (c *Client) setSession(s Session) {
	c.mu.Lock()
	c.session = s
	c.me = nil
	c.mu.Unlock()
}

func (c *Client) clearSession() {
	c.setSession(Session{})
}

func (c *Client) requireRole(ctx context.Context, min, action string) error {
	user, err := c.currentUser(ctx)
	if err != nil {
		return err
	}
	if !roleAtLeast(user.Role, min) {
		return &Error{Kind: KindForbidden, Message: fmt.Sprintf("only a %s or above can %s", min, action)}
	}

	return nil
}

type errorBody struct {
	Error string `json:"error"`
}

// do sends one request. action completes the sentence "failed to ..." used
// for transport failures.
func (c *Client) do(ctx context.Context, action, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return networkErr(action, fmt.Errorf("json.Marshal -> %w", err))
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return networkErr(action, fmt.Errorf("http.NewRequestWithContext -> %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Session().Token; token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return networkErr(action, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if err = json.NewDecoder(resp.Body).Decode(out); err != nil {
		return networkErr(action, fmt.Errorf("decode response -> %w", err))
	}

	return nil
}

func decodeError(resp *http.Response) *Error {
	e := &Error{Kind: kindFromStatus(resp.StatusCode), Status: resp.StatusCode}

	var body errorBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error != "" {
		e.Message = body.Error
	} else {
		e.Message = http.StatusText(resp.StatusCode)
	}

	return e
}

func query(values map[string]string) string {
	q := url.Values{}
	for k, v := range values {
		if v != "" {
			q.Set(k, v)
		}
	}
	if len(q) == 0 {
		return ""
	}

	return "?" + q.Encode()
}
