package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/consultportal/portal/internal/notifications"
	apperrors "github.com/consultportal/portal/pkg/errors"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Auth   string
	Body   map[string]any
}

type requestLog struct {
	mu   sync.Mutex
	reqs []recordedRequest
}

func (l *requestLog) add(req recordedRequest) {
	l.mu.Lock()
	l.reqs = append(l.reqs, req)
	l.mu.Unlock()
}

func (l *requestLog) all() []recordedRequest {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]recordedRequest(nil), l.reqs...)
}

func newTestServer(t *testing.T, status int, body string) (*httptest.Server, *requestLog) {
	t.Helper()
	seen := &requestLog{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Auth:   r.Header.Get("Authorization"),
		}
		raw, _ := io.ReadAll(r.Body)
		if len(raw) > 0 {
			_ = json.Unmarshal(raw, &rec.Body)
		}
		seen.add(rec)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(server.Close)
	return server, seen
}

func TestBackendListSendsTokenAndLimit(t *testing.T) {
	created := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	server, seen := newTestServer(t, http.StatusOK, `{"success":true,"data":[{"id":"n1","user_id":"u1","type":"payment_received","title":"Payment received","message":"ok","priority":"high","is_read":false,"created_at":"2024-03-04T12:00:00Z"}],"meta":{"unread_count":1}}`)

	backend, err := NewBackend(server.URL, " token-1 ")
	require.NoError(t, err)

	items, err := backend.List(context.Background(), "ignored", 20)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "n1", items[0].ID)
	require.Equal(t, notifications.PriorityHigh, items[0].Priority)
	require.True(t, items[0].CreatedAt.Equal(created))

	reqs := seen.all()
	require.Len(t, reqs, 1)
	req := reqs[0]
	require.Equal(t, http.MethodGet, req.Method)
	require.Equal(t, "/api/notifications", req.Path)
	require.Equal(t, "limit=20", req.Query)
	require.Equal(t, "Bearer token-1", req.Auth)
}

func TestBackendMutationsUseExpectedRoutes(t *testing.T) {
	server, seen := newTestServer(t, http.StatusOK, `{"success":true,"data":{"updated":3,"removed":2}}`)
	backend, err := NewBackend(server.URL, "tok")
	require.NoError(t, err)
	ctx := context.Background()

	updated, err := backend.MarkManyRead(ctx, "u1", []string{"a", "b"})
	require.NoError(t, err)
	require.EqualValues(t, 3, updated)

	updated, err = backend.MarkAllRead(ctx, "u1")
	require.NoError(t, err)
	require.EqualValues(t, 3, updated)

	removed, err := backend.CleanupOld(ctx, "u1", 30)
	require.NoError(t, err)
	require.EqualValues(t, 2, removed)

	require.NoError(t, backend.Dismiss(ctx, "u1", "n1"))

	reqs := seen.all()
	require.Len(t, reqs, 4)
	require.Equal(t, "/api/notifications/read", reqs[0].Path)
	require.Equal(t, []any{"a", "b"}, reqs[0].Body["ids"])
	require.Equal(t, "/api/notifications/read-all", reqs[1].Path)
	require.Equal(t, "/api/notifications/cleanup", reqs[2].Path)
	require.EqualValues(t, 30, reqs[2].Body["days_old"])
	require.Equal(t, "/api/notifications/n1/dismiss", reqs[3].Path)
	for _, req := range reqs {
		require.Equal(t, http.MethodPost, req.Method)
	}
}

func TestBackendCreateEnhancedFlattensPayload(t *testing.T) {
	server, seen := newTestServer(t, http.StatusCreated, `{"success":true,"data":{"notification":{"id":"n9","type":"document_approved"},"email_sent":false,"suppressed":"email_disabled"}}`)
	backend, err := NewBackend(server.URL, "tok")
	require.NoError(t, err)

	result, err := backend.CreateEnhanced(context.Background(), "u1",
		notifications.DocumentApproved{DocumentName: "Passport", DocumentID: "doc-9"},
		notifications.EnhancedOptions{SendEmail: true, Priority: notifications.PriorityHigh},
	)
	require.NoError(t, err)
	require.Equal(t, "n9", result.Notification.ID)
	require.Equal(t, "email_disabled", result.Suppressed)

	reqs := seen.all()
	require.Len(t, reqs, 1)
	body := reqs[0].Body
	require.Equal(t, "/api/notifications/enhanced", reqs[0].Path)
	require.Equal(t, "u1", body["user_id"])
	require.Equal(t, notifications.TypeDocumentApproved, body["type"])
	require.Equal(t, true, body["send_email"])
	require.Equal(t, "high", body["priority"])
	data, ok := body["data"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "Passport", data["document_name"])
}

func TestBackendMapsErrorEnvelope(t *testing.T) {
	server, _ := newTestServer(t, http.StatusNotFound, `{"success":false,"error":{"code":"NOT_FOUND","message":"Notification not found"}}`)
	backend, err := NewBackend(server.URL, "tok")
	require.NoError(t, err)

	_, err = backend.MarkRead(context.Background(), "u1", "missing")
	require.Error(t, err)
	require.True(t, errors.Is(err, apperrors.ErrNotFound))

	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, http.StatusNotFound, appErr.StatusCode)
	require.Equal(t, "Notification not found", appErr.Message)
}

func TestBackendMapsUndecodableErrors(t *testing.T) {
	server, _ := newTestServer(t, http.StatusBadGateway, `upstream down`)
	backend, err := NewBackend(server.URL, "tok")
	require.NoError(t, err)

	_, err = backend.UnreadCount(context.Background())
	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, "HTTP_502", appErr.Code)
	require.Equal(t, http.StatusBadGateway, appErr.StatusCode)
}

func TestBackendUnreadCount(t *testing.T) {
	server, seen := newTestServer(t, http.StatusOK, `{"success":true,"data":{"unread_count":7}}`)
	backend, err := NewBackend(server.URL, "")
	require.NoError(t, err)

	count, err := backend.UnreadCount(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 7, count)
	reqs := seen.all()
	require.Len(t, reqs, 1)
	require.Equal(t, "/api/notifications/unread-count", reqs[0].Path)
	require.Empty(t, reqs[0].Auth)
}

func TestNewBackendRejectsBadURLs(t *testing.T) {
	_, err := NewBackend("", "tok")
	require.Error(t, err)

	_, err = NewBackend("portal.example.com", "tok")
	require.Error(t, err)
}
