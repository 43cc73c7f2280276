// Package client talks to the portal's notification API from another Go
// process. Backend and Feed together let a notifications.Store run remotely.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/consultportal/portal/internal/notifications"
	apperrors "github.com/consultportal/portal/pkg/errors"
	"github.com/consultportal/portal/pkg/response"
)

const defaultTimeout = 15 * time.Second

// Option customises a Backend.
type Option func(*Backend)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(b *Backend) {
		if client != nil {
			b.http = client
		}
	}
}

// Backend implements notifications.Backend over the portal HTTP API. The
// server derives the caller from the bearer token, so the userID arguments of
// the self-service operations are not sent.
type Backend struct {
	baseURL *url.URL
	token   string
	http    *http.Client
}

// NewBackend constructs a Backend rooted at baseURL (for example
// "https://portal.example.com").
func NewBackend(baseURL, token string, opts ...Option) (*Backend, error) {
	parsed, err := parseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	b := &Backend{
		baseURL: parsed,
		token:   strings.TrimSpace(token),
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

type envelope struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
	Meta    *response.Meta      `json:"meta"`
}

type countResult struct {
	Updated int64 `json:"updated"`
	Removed int64 `json:"removed"`
}

// List implements notifications.Backend.
func (b *Backend) List(ctx context.Context, _ string, limit int) ([]notifications.Notification, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var items []notifications.Notification
	if err := b.do(ctx, http.MethodGet, "/api/notifications", query, nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// UnreadCount returns the server-side unread count.
func (b *Backend) UnreadCount(ctx context.Context) (int64, error) {
	var out struct {
		UnreadCount int64 `json:"unread_count"`
	}
	if err := b.do(ctx, http.MethodGet, "/api/notifications/unread-count", nil, nil, &out); err != nil {
		return 0, err
	}
	return out.UnreadCount, nil
}

// MarkRead implements notifications.Backend.
func (b *Backend) MarkRead(ctx context.Context, _ string, id string) (notifications.Notification, error) {
	var out notifications.Notification
	err := b.do(ctx, http.MethodPost, "/api/notifications/"+url.PathEscape(id)+"/read", nil, nil, &out)
	return out, err
}

// MarkManyRead implements notifications.Backend.
func (b *Backend) MarkManyRead(ctx context.Context, _ string, ids []string) (int64, error) {
	var out countResult
	err := b.do(ctx, http.MethodPost, "/api/notifications/read", nil, map[string]any{"ids": ids}, &out)
	return out.Updated, err
}

// MarkAllRead implements notifications.Backend.
func (b *Backend) MarkAllRead(ctx context.Context, _ string) (int64, error) {
	var out countResult
	err := b.do(ctx, http.MethodPost, "/api/notifications/read-all", nil, nil, &out)
	return out.Updated, err
}

// Dismiss implements notifications.Backend.
func (b *Backend) Dismiss(ctx context.Context, _ string, id string) error {
	return b.do(ctx, http.MethodPost, "/api/notifications/"+url.PathEscape(id)+"/dismiss", nil, nil, nil)
}

// Create implements notifications.Backend.
func (b *Backend) Create(ctx context.Context, input notifications.CreateInput) (notifications.Notification, error) {
	var out notifications.Notification
	err := b.do(ctx, http.MethodPost, "/api/notifications", nil, input, &out)
	return out, err
}

// CreateEnhanced implements notifications.Backend.
func (b *Backend) CreateEnhanced(ctx context.Context, userID string, payload notifications.Payload, opts notifications.EnhancedOptions) (notifications.EnhancedResult, error) {
	req, err := notifications.NewEnhancedRequest(userID, payload, opts)
	if err != nil {
		return notifications.EnhancedResult{}, err
	}
	var out notifications.EnhancedResult
	err = b.do(ctx, http.MethodPost, "/api/notifications/enhanced", nil, req, &out)
	return out, err
}

// CleanupOld implements notifications.Backend.
func (b *Backend) CleanupOld(ctx context.Context, _ string, daysOld int) (int64, error) {
	var out countResult
	err := b.do(ctx, http.MethodPost, "/api/notifications/cleanup", nil, map[string]any{"days_old": daysOld}, &out)
	return out.Removed, err
}

func (b *Backend) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if ctx == nil {
		ctx = context.Background()
	}

	target := b.baseURL.JoinPath(path)
	if len(query) > 0 {
		target.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("client: encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return fmt.Errorf("client: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if b.token != "" {
		req.Header.Set("Authorization", "Bearer "+b.token)
	}

	resp, err := b.http.Do(req)
	if err != nil {
		return fmt.Errorf("client: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return apperrors.New("HTTP_"+strconv.Itoa(resp.StatusCode), http.StatusText(resp.StatusCode), resp.StatusCode)
		}
		return fmt.Errorf("client: decode response: %w", err)
	}

	if !env.Success || resp.StatusCode >= http.StatusBadRequest {
		if env.Error != nil {
			return apperrors.New(env.Error.Code, env.Error.Message, resp.StatusCode)
		}
		return apperrors.New("HTTP_"+strconv.Itoa(resp.StatusCode), http.StatusText(resp.StatusCode), resp.StatusCode)
	}

	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("client: decode data: %w", err)
	}
	return nil
}

func parseBaseURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("client: base url is required")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("client: parse base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("client: base url %q must include scheme and host", raw)
	}
	return parsed, nil
}

var _ notifications.Backend = (*Backend)(nil)
