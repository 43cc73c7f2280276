package notifications

import "context"

// Stream carrying notification change events.
const Stream = "notifications"

// Change event names published after committed writes.
const (
	EventCreated   = "notification.created"
	EventRead      = "notification.read"
	EventReadMany  = "notification.read_many"
	EventReadAll   = "notification.read_all"
	EventDismissed = "notification.dismissed"
	EventCleanup   = "notification.cleanup"
)

// DefaultPageSize caps how many notifications a single fetch returns.
const DefaultPageSize = 50

// Backend is the persistence and query boundary the Store writes through.
type Backend interface {
	List(ctx context.Context, userID string, limit int) ([]Notification, error)
	MarkRead(ctx context.Context, userID, id string) (Notification, error)
	MarkManyRead(ctx context.Context, userID string, ids []string) (int64, error)
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	Dismiss(ctx context.Context, userID, id string) error
	Create(ctx context.Context, input CreateInput) (Notification, error)
	CreateEnhanced(ctx context.Context, userID string, payload Payload, opts EnhancedOptions) (EnhancedResult, error)
	CleanupOld(ctx context.Context, userID string, daysOld int) (int64, error)
}

// Event signals that a user's notifications changed. Consumers refetch rather
// than applying the event as a delta.
type Event struct {
	Name           string `json:"event"`
	UserID         string `json:"user_id"`
	NotificationID string `json:"notification_id,omitempty"`
}

// Feed delivers change events for one user until the returned cancel func is
// called or ctx ends. The channel is closed when the subscription ends.
type Feed interface {
	Subscribe(ctx context.Context, userID string) (<-chan Event, func(), error)
}

// EmailRequest is handed to the external email channel.
type EmailRequest struct {
	UserID           string         `json:"user_id"`
	NotificationType string         `json:"notification_type"`
	Data             map[string]any `json:"data"`
	Content          EmailContent   `json:"-"`
}

// EmailDispatcher sends the email side effect of an enhanced notification.
type EmailDispatcher interface {
	Dispatch(ctx context.Context, req EmailRequest) error
}
