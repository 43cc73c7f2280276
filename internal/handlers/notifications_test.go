package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/consultportal/portal/internal/notifications"
	"github.com/consultportal/portal/internal/services"
)

func createNotification(t *testing.T, svc *services.NotificationService, userID string, priority notifications.Priority) notifications.Notification {
	t.Helper()
	item, err := svc.Create(context.Background(), notifications.CreateInput{
		UserID:   userID,
		Type:     notifications.TypeMessageReceived,
		Title:    "New message",
		Message:  "Your consultant replied",
		Priority: priority,
	})
	require.NoError(t, err)
	return item
}

func TestNotificationHandlerRequiresUser(t *testing.T) {
	f := newHandlerFixture(t)

	rec, payload := f.do(t, http.MethodGet, "/api/notifications", "", nil)
	requireStatus(t, rec, http.StatusUnauthorized)
	require.False(t, payload.Success)
	require.Equal(t, "UNAUTHORIZED", payload.Error.Code)
}

func TestNotificationHandlerListIncludesUnreadMeta(t *testing.T) {
	f := newHandlerFixture(t)
	low := createNotification(t, f.notifications, "client-1", notifications.PriorityLow)
	urgent := createNotification(t, f.notifications, "client-1", notifications.PriorityUrgent)
	createNotification(t, f.notifications, "client-2", notifications.PriorityHigh)

	_, err := f.notifications.MarkRead(context.Background(), "client-1", low.ID)
	require.NoError(t, err)

	rec, payload := f.do(t, http.MethodGet, "/api/notifications?limit=10", "client-1", nil)
	requireStatus(t, rec, http.StatusOK)
	require.True(t, payload.Success)

	items := decodeData[[]notifications.Notification](t, payload)
	require.Len(t, items, 2)
	require.Equal(t, urgent.ID, items[0].ID)
	require.Equal(t, low.ID, items[1].ID)

	require.NotNil(t, payload.Meta)
	require.NotNil(t, payload.Meta.UnreadCount)
	require.Equal(t, 1, *payload.Meta.UnreadCount)
	require.Equal(t, 10, payload.Meta.PerPage)

	rec, payload = f.do(t, http.MethodGet, "/api/notifications?unread_only=true", "client-1", nil)
	requireStatus(t, rec, http.StatusOK)
	items = decodeData[[]notifications.Notification](t, payload)
	require.Len(t, items, 1)
	require.Equal(t, urgent.ID, items[0].ID)

	rec, payload = f.do(t, http.MethodGet, "/api/notifications/unread-count", "client-1", nil)
	requireStatus(t, rec, http.StatusOK)
	count := decodeData[map[string]int](t, payload)
	require.Equal(t, 1, count["unread_count"])
}

func TestNotificationHandlerReadAndDismiss(t *testing.T) {
	f := newHandlerFixture(t)
	first := createNotification(t, f.notifications, "client-1", notifications.PriorityNormal)
	second := createNotification(t, f.notifications, "client-1", notifications.PriorityNormal)
	third := createNotification(t, f.notifications, "client-1", notifications.PriorityNormal)

	rec, payload := f.do(t, http.MethodPost, "/api/notifications/"+first.ID+"/read", "client-1", nil)
	requireStatus(t, rec, http.StatusOK)
	read := decodeData[notifications.Notification](t, payload)
	require.True(t, read.IsRead)
	require.NotNil(t, read.ReadAt)

	rec, payload = f.do(t, http.MethodPost, "/api/notifications/"+first.ID+"/read", "client-2", nil)
	requireStatus(t, rec, http.StatusNotFound)
	require.Equal(t, "NOT_FOUND", payload.Error.Code)

	rec, payload = f.do(t, http.MethodPost, "/api/notifications/read", "client-1", map[string]any{"ids": []string{second.ID, first.ID}})
	requireStatus(t, rec, http.StatusOK)
	require.EqualValues(t, 1, decodeData[map[string]int](t, payload)["updated"])

	rec, _ = f.do(t, http.MethodPost, "/api/notifications/read", "client-1", map[string]any{"ids": []string{}})
	requireStatus(t, rec, http.StatusBadRequest)

	rec, payload = f.do(t, http.MethodPost, "/api/notifications/read-all", "client-1", nil)
	requireStatus(t, rec, http.StatusOK)
	require.EqualValues(t, 1, decodeData[map[string]int](t, payload)["updated"])

	rec, _ = f.do(t, http.MethodPost, "/api/notifications/"+third.ID+"/dismiss", "client-1", nil)
	requireStatus(t, rec, http.StatusOK)
	rec, _ = f.do(t, http.MethodPost, "/api/notifications/"+third.ID+"/dismiss", "client-1", nil)
	requireStatus(t, rec, http.StatusNotFound)

	rec, payload = f.do(t, http.MethodGet, "/api/notifications", "client-1", nil)
	requireStatus(t, rec, http.StatusOK)
	require.Len(t, decodeData[[]notifications.Notification](t, payload), 2)
	require.Equal(t, 0, *payload.Meta.UnreadCount)
}

func TestNotificationHandlerCleanupValidatesDays(t *testing.T) {
	f := newHandlerFixture(t)

	rec, payload := f.do(t, http.MethodPost, "/api/notifications/cleanup", "client-1", map[string]any{"days_old": 0})
	requireStatus(t, rec, http.StatusBadRequest)
	require.Contains(t, payload.Error.Message, "days old")

	rec, payload = f.do(t, http.MethodPost, "/api/notifications/cleanup", "client-1", map[string]any{"days_old": 30})
	requireStatus(t, rec, http.StatusOK)
	require.EqualValues(t, 0, decodeData[map[string]int](t, payload)["removed"])
}

func TestNotificationHandlerCreateValidates(t *testing.T) {
	f := newHandlerFixture(t)

	rec, payload := f.do(t, http.MethodPost, "/api/notifications", "admin-1", map[string]any{
		"user_id": "client-1",
		"type":    notifications.TypeSystemMaintenance,
		"title":   "Maintenance",
	})
	requireStatus(t, rec, http.StatusBadRequest)
	require.Contains(t, payload.Error.Message, "message is required")

	rec, _ = f.do(t, http.MethodPost, "/api/notifications", "admin-1", `{"user_id":`)
	requireStatus(t, rec, http.StatusBadRequest)

	rec, payload = f.do(t, http.MethodPost, "/api/notifications", "admin-1", map[string]any{
		"user_id":  "client-1",
		"type":     notifications.TypeSystemMaintenance,
		"title":    "Maintenance",
		"message":  "Portal offline tonight",
		"priority": "high",
	})
	requireStatus(t, rec, http.StatusCreated)
	created := decodeData[notifications.Notification](t, payload)
	require.Equal(t, notifications.PriorityHigh, created.Priority)
	require.Equal(t, "client-1", created.UserID)
}

func TestNotificationHandlerCreateEnhanced(t *testing.T) {
	f := newHandlerFixture(t)

	rec, payload := f.do(t, http.MethodPost, "/api/notifications/enhanced", "consultant-1", map[string]any{
		"user_id": "client-1",
		"type":    notifications.TypeDocumentApproved,
		"data": map[string]any{
			"document_name":   "Passport",
			"consultant_name": "Jordan",
			"document_id":     "doc-9",
		},
	})
	requireStatus(t, rec, http.StatusCreated)
	result := decodeData[notifications.EnhancedResult](t, payload)
	require.Equal(t, notifications.TypeDocumentApproved, result.Notification.Type)
	require.Equal(t, "/dashboard/documents/doc-9", result.Notification.ActionURL)
	require.False(t, result.EmailSent)

	rec, payload = f.do(t, http.MethodPost, "/api/notifications/enhanced", "consultant-1", map[string]any{
		"user_id": "client-1",
		"type":    "nonexistent_type",
		"data":    map[string]any{},
	})
	requireStatus(t, rec, http.StatusUnprocessableEntity)
	require.Equal(t, "UNKNOWN_NOTIFICATION_TYPE", payload.Error.Code)

	count, err := f.notifications.UnreadCount(context.Background(), "client-1")
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
}

func TestNotificationHandlerTemplatesAndPreview(t *testing.T) {
	f := newHandlerFixture(t)

	rec, payload := f.do(t, http.MethodGet, "/api/notifications/templates", "client-1", nil)
	requireStatus(t, rec, http.StatusOK)
	infos := decodeData[[]notifications.TemplateInfo](t, payload)
	require.Len(t, infos, len(notifications.DefaultRegistry().Types()))

	rec, payload = f.do(t, http.MethodPost, "/api/notifications/preview", "client-1", map[string]any{
		"type": notifications.TypeDocumentApproved,
		"data": map[string]any{"document_name": "Passport", "document_id": "doc-9"},
	})
	requireStatus(t, rec, http.StatusOK)
	content := decodeData[notifications.Content](t, payload)
	require.Equal(t, "/dashboard/documents/doc-9", content.ActionURL)
	require.Contains(t, content.Message, "Passport")

	rec, payload = f.do(t, http.MethodPost, "/api/notifications/preview", "client-1", map[string]any{
		"type": "nonexistent_type",
		"data": map[string]any{},
	})
	requireStatus(t, rec, http.StatusUnprocessableEntity)
	require.Equal(t, "UNKNOWN_NOTIFICATION_TYPE", payload.Error.Code)
}
