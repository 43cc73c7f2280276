package handlers

import (
	stdErrors "errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/consultportal/portal/internal/notifications"
	"github.com/consultportal/portal/internal/services"
	"github.com/consultportal/portal/pkg/response"
)

// NotificationHandler exposes HTTP endpoints for notifications.
type NotificationHandler struct {
	service  *services.NotificationService
	pageSize int
}

// NewNotificationHandler constructs a notification handler. pageSize is the
// list default when the caller supplies no limit.
func NewNotificationHandler(service *services.NotificationService, pageSize int) (*NotificationHandler, error) {
	if service == nil {
		return nil, stdErrors.New("notification handler: service is required")
	}
	if pageSize <= 0 {
		pageSize = notifications.DefaultPageSize
	}
	return &NotificationHandler{service: service, pageSize: pageSize}, nil
}

type markManyReadRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,max=500"`
}

type cleanupRequest struct {
	DaysOld int `json:"days_old" validate:"required,min=1,max=3650"`
}

type previewRequest struct {
	Type string         `json:"type" validate:"required,notblank"`
	Data map[string]any `json:"data"`
}

// List returns active notifications for the current user with the unread
// count in the response meta.
func (h *NotificationHandler) List(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	ctx := requestContext(c)
	limit := parseIntQuery(c, "limit", h.pageSize)
	offset := parseIntQuery(c, "offset", 0)

	items, err := h.service.ListForUser(ctx, services.ListNotificationsInput{
		UserID:     userID,
		Limit:      limit,
		Offset:     offset,
		UnreadOnly: parseBoolQuery(c, "unread_only"),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	unread, err := h.service.UnreadCount(ctx, userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	count := int(unread)

	response.SuccessWithMeta(c, http.StatusOK, items, &response.Meta{
		PerPage:     clampLimit(limit, h.pageSize),
		Total:       len(items),
		UnreadCount: &count,
	})
}

// UnreadCount returns the number of unread, active notifications.
func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	count, err := h.service.UnreadCount(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"unread_count": count})
}

// MarkRead marks one notification read.
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	item, err := h.service.MarkRead(requestContext(c), userID, strings.TrimSpace(c.Param("id")))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, item)
}

// MarkManyRead marks the listed notifications read.
func (h *NotificationHandler) MarkManyRead(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var payload markManyReadRequest
	if !bindAndValidate(c, &payload) {
		return
	}

	updated, err := h.service.MarkManyRead(requestContext(c), userID, payload.IDs)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"updated": updated})
}

// MarkAllRead marks all notifications read.
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	updated, err := h.service.MarkAllRead(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"updated": updated})
}

// Dismiss hides a notification from every list.
func (h *NotificationHandler) Dismiss(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	if err := h.service.Dismiss(requestContext(c), userID, strings.TrimSpace(c.Param("id"))); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"dismissed": true})
}

// Cleanup deletes the caller's read notifications older than days_old.
func (h *NotificationHandler) Cleanup(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var payload cleanupRequest
	if !bindAndValidate(c, &payload) {
		return
	}

	removed, err := h.service.CleanupOld(requestContext(c), userID, payload.DaysOld)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"removed": removed})
}

// Templates lists the registered notification templates.
func (h *NotificationHandler) Templates(c *gin.Context) {
	response.Success(c, http.StatusOK, h.service.Registry().Types())
}

// Preview renders a notification without persisting it.
func (h *NotificationHandler) Preview(c *gin.Context) {
	var payload previewRequest
	if !bindAndValidate(c, &payload) {
		return
	}

	registry := h.service.Registry()
	notificationType := strings.TrimSpace(payload.Type)
	if _, ok := registry.Lookup(notificationType); !ok {
		response.Error(c, services.ErrUnknownNotificationType)
		return
	}

	content, ok := registry.FormatContentRaw(notificationType, payload.Data)
	if !ok {
		response.Error(c, services.ErrInvalidPayload)
		return
	}

	response.Success(c, http.StatusOK, content)
}

// Create stores a pre-rendered notification for any user.
func (h *NotificationHandler) Create(c *gin.Context) {
	var payload notifications.CreateInput
	if !bindAndValidate(c, &payload) {
		return
	}

	item, err := h.service.Create(requestContext(c), payload)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, item)
}

// CreateEnhanced renders a typed payload through its template, stores it and
// applies the email delivery rules.
func (h *NotificationHandler) CreateEnhanced(c *gin.Context) {
	var payload notifications.EnhancedRequest
	if !bindAndValidate(c, &payload) {
		return
	}

	typed, err := payload.Payload(h.service.Registry())
	if err != nil {
		response.Error(c, payloadError(err))
		return
	}

	result, err := h.service.CreateEnhanced(requestContext(c), strings.TrimSpace(payload.UserID), typed, payload.Options())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, result)
}

func payloadError(err error) error {
	if stdErrors.Is(err, notifications.ErrUnknownType) {
		return services.ErrUnknownNotificationType
	}
	return services.ErrInvalidPayload.WithInternal(err)
}

func clampLimit(limit, fallback int) int {
	if limit <= 0 {
		limit = fallback
	}
	if limit > notifications.DefaultPageSize {
		limit = notifications.DefaultPageSize
	}
	return limit
}
