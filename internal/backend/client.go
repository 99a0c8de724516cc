// Package backend is the typed read-only client for the collaborator REST
// API that owns orders, disputes, and user profiles.
//
// Every call is best-effort and single-attempt; callers convert failures to
// safe absent values where the flow allows it.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/peerswapd/peerswap/internal/orders"
)

var (
	ErrUserNotFound = errors.New("backend: user not found")
)

// DefaultTimeout bounds every backend request. The upstream defines no
// retry policy, so the timeout is the only transport control.
const DefaultTimeout = 10 * time.Second

// Client talks to the backend REST API.
type Client struct {
	baseURL string
	http    *http.Client
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client (useful for testing).
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.http = h
	}
}

// New creates a backend client for the given base URL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Order fetches a fresh order snapshot, including its dispute records.
func (c *Client) Order(ctx context.Context, id string) (*orders.Order, error) {
	var out orders.Order
	if err := c.get(ctx, "/orders/"+url.PathEscape(id), &out); err != nil {
		if errors.Is(err, errNotFound) {
			return nil, orders.ErrOrderNotFound
		}
		return nil, err
	}
	return &out, nil
}

// UserByAddress resolves a wallet address to its profile record.
func (c *Client) UserByAddress(ctx context.Context, addr string) (*orders.AccountRef, error) {
	var out orders.AccountRef
	path := "/users?address=" + url.QueryEscape(strings.ToLower(addr))
	if err := c.get(ctx, path, &out); err != nil {
		if errors.Is(err, errNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &out, nil
}

// Ping checks backend reachability for health reporting.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("backend: health check status %d", resp.StatusCode)
	}
	return nil
}

var errNotFound = errors.New("backend: not found")

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("backend: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("backend: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errNotFound
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("backend: unexpected status %d for %s", resp.StatusCode, path)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("backend: decode response: %w", err)
	}
	return nil
}
