// Package client implements the authenticated HTTP channel to the farm
// backend. Every authenticated call in the system goes through Client.Do,
// which centralizes bearer attachment and the single refresh-and-retry
// cycle on 401.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/farmsense/farmsense/internal/metrics"
	"github.com/farmsense/farmsense/store"
)

// TokenStore is the credential holder consumed by the client. Only the
// client writes it (login, refresh, logout); every other component treats
// it as read-only.
type TokenStore interface {
	GetTokens(ctx context.Context) (*store.TokenPair, error)
	SetTokens(ctx context.Context, pair store.TokenPair) error
	SetCredentials(ctx context.Context, creds *store.Credentials) error
	ClearTokens(ctx context.Context) error
}

// Config represents client configuration.
type Config struct {
	BaseURL string
	Timeout int // Request timeout in seconds (default: 30)
}

// Client is the authenticated HTTP client.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenStore
	timeout time.Duration
	metrics *metrics.Exporter

	refreshGroup singleflight.Group
}

// New creates a new authenticated client.
func New(cfg Config, tokens TokenStore, exporter *metrics.Exporter) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30
	}
	return &Client{
		baseURL: cfg.BaseURL,
		http:    newHTTPClient(),
		tokens:  tokens,
		timeout: time.Duration(timeout) * time.Second,
		metrics: exporter,
	}
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

// Do issues an authenticated request and decodes the 2xx response body into
// out (when out is non-nil). On a 401 it performs exactly one
// refresh-and-retry cycle; any further 401 surfaces as auth expiry.
func (c *Client) Do(ctx context.Context, method, path string, body any, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	err := c.do(ctx, method, path, body, out, false)
	if c.metrics != nil {
		status := StatusOf(err)
		if err == nil {
			status = http.StatusOK
		}
		c.metrics.RecordRequest(path, status, time.Since(start))
	}
	return err
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any, retried bool) error {
	pair, err := c.tokens.GetTokens(ctx)
	if err != nil {
		return &Error{Kind: KindNetwork, Err: err}
	}

	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return &Error{Kind: KindNetwork, Err: err}
	}
	if pair != nil && pair.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return classifyTransport(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized && !retried {
		io.Copy(io.Discard, resp.Body)
		if err := c.refresh(ctx); err != nil {
			return err
		}
		// Retry the original request exactly once with the fresh token.
		return c.do(ctx, method, path, body, out, true)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		// Still unauthorized after a fresh token: the session is gone.
		io.Copy(io.Discard, resp.Body)
		_ = c.tokens.ClearTokens(ctx)
		return &Error{Kind: KindAuthExpired}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &Error{Kind: KindServer, Status: resp.StatusCode, Body: string(raw)}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &Error{Kind: KindNetwork, Err: err}
		}
	}
	return nil
}

// newRequest builds the request fresh per attempt so the retry after a
// refresh re-marshals the body instead of replaying a drained reader.
func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// refreshResponse mirrors the backend refresh wire shape.
type refreshResponse struct {
	Tokens struct {
		Access struct {
			Token string `json:"token"`
		} `json:"access"`
		Refresh struct {
			Token string `json:"token"`
		} `json:"refresh"`
	} `json:"tokens"`
}

// refresh exchanges the stored refresh token for a new pair. Concurrent
// callers are collapsed into a single refresh call; on any failure the
// store is cleared and auth expiry is surfaced.
func (c *Client) refresh(ctx context.Context) error {
	_, err, _ := c.refreshGroup.Do("refresh", func() (any, error) {
		return nil, c.refreshOnce(ctx)
	})
	if c.metrics != nil {
		c.metrics.RecordTokenRefresh(err == nil)
	}
	return err
}

func (c *Client) refreshOnce(ctx context.Context) error {
	pair, err := c.tokens.GetTokens(ctx)
	if err != nil {
		return &Error{Kind: KindNetwork, Err: err}
	}
	if pair == nil || pair.RefreshToken == "" {
		_ = c.tokens.ClearTokens(ctx)
		return &Error{Kind: KindAuthExpired}
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/auth/refresh-tokens", map[string]string{
		"refreshToken": pair.RefreshToken,
	})
	if err != nil {
		return &Error{Kind: KindNetwork, Err: err}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// A transport failure during refresh is not proof the token is
		// bad, but the request it was refreshing for cannot proceed.
		return classifyTransport(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_ = c.tokens.ClearTokens(ctx)
		slog.Warn("token refresh rejected", "status", resp.StatusCode)
		return &Error{Kind: KindAuthExpired}
	}

	var decoded refreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		_ = c.tokens.ClearTokens(ctx)
		return &Error{Kind: KindAuthExpired, Err: err}
	}

	fresh := store.TokenPair{
		AccessToken:  decoded.Tokens.Access.Token,
		RefreshToken: decoded.Tokens.Refresh.Token,
	}
	if fresh.AccessToken == "" {
		_ = c.tokens.ClearTokens(ctx)
		return &Error{Kind: KindAuthExpired}
	}
	if err := c.tokens.SetTokens(ctx, fresh); err != nil {
		return &Error{Kind: KindNetwork, Err: err}
	}

	slog.Debug("token refresh succeeded")
	return nil
}

func classifyTransport(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &Error{Kind: KindTimeout, Err: err}
	}
	return &Error{Kind: KindNetwork, Err: err}
}
