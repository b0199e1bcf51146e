// Package chat implements the client core of Parley's direct-messaging
// subsystem: the conversation store, the agent's conversation selector, the
// composer, and the REST collaborator client, all composed over one shared
// transport session.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/kvistad/parley/internal/wire"
)

// ErrUnauthorized marks a rejected login or an expired credential.
var ErrUnauthorized = errors.New("chat: unauthorized")

// Identity is the authenticated local participant, issued at login and
// immutable for the session's lifetime.
type Identity struct {
	ID          uint   `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	Role        string `json:"role"`
}

// Customer is a selectable counterpart from the agent's directory.
type Customer struct {
	ID          uint   `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
}

// Backend is the REST collaborator surface the client core consumes:
// durable history, the customer directory, and the well-known agent
// identity.
type Backend interface {
	HistoryFetcher
	Customers(ctx context.Context) ([]Customer, error)
	Agent(ctx context.Context) (Customer, error)
}

// API is the HTTP implementation of Backend, plus login.
type API struct {
	baseURL string
	httpc   *http.Client

	mu    sync.Mutex
	token string
}

// NewAPI creates an API client for the given base URL
// (e.g. "http://localhost:8084").
func NewAPI(baseURL string) *API {
	return &API{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Token returns the bearer credential obtained at login.
func (a *API) Token() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.token
}

// SetToken installs a bearer credential obtained elsewhere.
func (a *API) SetToken(token string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.token = token
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string   `json:"accessToken"`
	User        Identity `json:"user"`
}

// Login authenticates and stores the issued bearer token for subsequent
// calls. Returns ErrUnauthorized for a wrong username or password.
func (a *API) Login(ctx context.Context, username, password string) (Identity, error) {
	var resp loginResponse
	err := a.do(ctx, http.MethodPost, "/api/auth/login", loginRequest{Username: username, Password: password}, &resp)
	if err != nil {
		return Identity{}, fmt.Errorf("chat: login: %w", err)
	}
	a.SetToken(resp.AccessToken)
	return resp.User, nil
}

// History fetches the two-way timeline with a counterpart, ascending by
// timestamp. Implements HistoryFetcher.
func (a *API) History(ctx context.Context, counterpartID uint) ([]wire.Message, error) {
	var msgs []wire.Message
	path := fmt.Sprintf("/api/chat/history/%d", counterpartID)
	if err := a.do(ctx, http.MethodGet, path, nil, &msgs); err != nil {
		return nil, fmt.Errorf("chat: fetch history for %d: %w", counterpartID, err)
	}
	return msgs, nil
}

// Customers fetches the selectable counterpart directory. Agent role only.
func (a *API) Customers(ctx context.Context) ([]Customer, error) {
	var customers []Customer
	if err := a.do(ctx, http.MethodGet, "/api/admin/customers", nil, &customers); err != nil {
		return nil, fmt.Errorf("chat: fetch customers: %w", err)
	}
	return customers, nil
}

// Agent fetches the deployment's well-known agent identity, the implicit
// counterpart of every customer.
func (a *API) Agent(ctx context.Context) (Customer, error) {
	var agent Customer
	if err := a.do(ctx, http.MethodGet, "/api/chat/agent", nil, &agent); err != nil {
		return Customer{}, fmt.Errorf("chat: fetch agent identity: %w", err)
	}
	return agent, nil
}

// do performs one JSON request/response round trip.
func (a *API) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := a.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := a.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case resp.StatusCode >= 300:
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}
