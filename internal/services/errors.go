package services

import (
	"net/http"

	"github.com/consultportal/portal/internal/notifications"
	apperrors "github.com/consultportal/portal/pkg/errors"
)

var (
	// ErrUnknownNotificationType is returned when no template is registered for a type.
	// It unwraps to notifications.ErrUnknownType.
	ErrUnknownNotificationType = apperrors.New("UNKNOWN_NOTIFICATION_TYPE", "Unknown notification type", http.StatusUnprocessableEntity).WithInternal(notifications.ErrUnknownType)

	// ErrInvalidPayload is returned when template data cannot be decoded into its payload.
	ErrInvalidPayload = apperrors.New("INVALID_PAYLOAD", "Notification data does not match its template", http.StatusUnprocessableEntity)

	errUserIDRequired = apperrors.NewBadRequest("user id is required")
)
