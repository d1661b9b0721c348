// AngelaMos | 2026
// client.go

// Package apiclient talks to the member access API from the client side and
// turns sign-in activity into the identity events the session package
// consumes.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/assocly/memberaccess/internal/auth"
	"github.com/assocly/memberaccess/internal/core"
)

const (
	defaultTimeout    = 10 * time.Second
	defaultMaxRetries = 3
	defaultRetryWait  = 500 * time.Millisecond
	maxBody           = 1 << 20
)

// APIError is a non-2xx reply. errors.Is matches it against the core
// sentinels so callers branch the same way on both sides of the wire.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	RetryAfter int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api %d %s: %s", e.StatusCode, e.Code, e.Message)
}

func (e *APIError) Is(target error) bool {
	switch target {
	case core.ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case core.ErrForbidden:
		return e.StatusCode == http.StatusForbidden
	case core.ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	case core.ErrRateLimited:
		return e.StatusCode == http.StatusTooManyRequests
	case core.ErrInvalidOrExpired:
		return e.Code == "INVALID_OR_EXPIRED"
	case core.ErrInvalidInput:
		return e.StatusCode == http.StatusBadRequest && e.Code != "INVALID_OR_EXPIRED"
	case core.ErrTransient:
		return retryableStatus(e.StatusCode)
	}
	return false
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithMaxRetries bounds retries of idempotent reads on transient failures.
func WithMaxRetries(n uint64) Option {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithRetryWait sets the first backoff interval between retries.
func WithRetryWait(d time.Duration) Option {
	return func(c *Client) {
		c.retryWait = d
	}
}

type Client struct {
	baseURL    string
	http       *http.Client
	maxRetries uint64
	retryWait  time.Duration

	mu          sync.RWMutex
	principalID string
	tokens      *auth.TokenResponse
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		http:       &http.Client{Timeout: defaultTimeout},
		maxRetries: defaultMaxRetries,
		retryWait:  defaultRetryWait,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) PrincipalID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.principalID
}

func (c *Client) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.tokens == nil {
		return ""
	}
	return c.tokens.AccessToken
}

func (c *Client) refreshToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.tokens == nil {
		return ""
	}
	return c.tokens.RefreshToken
}

// SetSession installs a session obtained elsewhere, for example one restored
// from disk.
func (c *Client) SetSession(principalID string, tokens auth.TokenResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.principalID = principalID
	c.tokens = &tokens
}

func (c *Client) clearSession() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.principalID = ""
	c.tokens = nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = c.retryWait
	policy := backoff.WithContext(backoff.WithMaxRetries(expo, c.maxRetries), ctx)

	return backoff.RetryNotify(
		func() error {
			err := c.do(ctx, http.MethodGet, path, nil, out)
			if err != nil && !errors.Is(err, core.ErrTransient) {
				return backoff.Permanent(err)
			}
			return err
		},
		policy,
		func(err error, wait time.Duration) {
			slog.DebugContext(ctx, "retrying api read",
				"path", path,
				"wait", wait,
				"error", err,
			)
		},
	)
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	return c.do(ctx, http.MethodPost, path, in, out)
}

func (c *Client) do(
	ctx context.Context,
	method, path string,
	in, out any,
) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.AccessToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w: %w", method, path, core.ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var env envelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(&env); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
			if v, ok := env.Error.Details["retry_after"].(float64); ok {
				apiErr.RetryAfter = int(v)
			}
		}
		return apiErr
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func retryableStatus(status int) bool {
	switch status {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}
