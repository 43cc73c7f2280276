package notifications

import (
	"errors"
	"sort"
	"time"
)

var (
	// ErrUnknownType is returned when a notification type has no registered template.
	ErrUnknownType = errors.New("notifications: unknown notification type")
	// ErrPayloadMismatch is returned when a payload does not match its template's shape.
	ErrPayloadMismatch = errors.New("notifications: payload does not match template")
)

// Notification is the wire representation of a persisted notification.
type Notification struct {
	ID           string         `json:"id"`
	UserID       string         `json:"user_id"`
	Type         string         `json:"type"`
	Title        string         `json:"title"`
	Message      string         `json:"message"`
	Priority     Priority       `json:"priority"`
	IsRead       bool           `json:"is_read"`
	ReadAt       *time.Time     `json:"read_at,omitempty"`
	DismissedAt  *time.Time     `json:"dismissed_at,omitempty"`
	RelatedTable string         `json:"related_table,omitempty"`
	RelatedID    string         `json:"related_id,omitempty"`
	ActionURL    string         `json:"action_url,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Dismissed reports whether the notification has been hidden from the list.
func (n Notification) Dismissed() bool {
	return n.DismissedAt != nil
}

// SortForDisplay orders items by priority descending, then newest first.
// Ties fall back to the identifier so the result is deterministic.
func SortForDisplay(items []Notification) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Priority.Rank() != b.Priority.Rank() {
			return a.Priority.Above(b.Priority)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// CountUnread returns how many non-dismissed items are unread.
func CountUnread(items []Notification) int {
	count := 0
	for _, item := range items {
		if !item.IsRead && !item.Dismissed() {
			count++
		}
	}
	return count
}

// Active drops dismissed notifications, returning a new slice.
func Active(items []Notification) []Notification {
	result := make([]Notification, 0, len(items))
	for _, item := range items {
		if !item.Dismissed() {
			result = append(result, item)
		}
	}
	return result
}

// CreateInput captures a direct, pre-rendered notification insert.
type CreateInput struct {
	UserID       string         `json:"user_id" validate:"required,notblank"`
	Type         string         `json:"type" validate:"required,notblank"`
	Title        string         `json:"title" validate:"required,notblank"`
	Message      string         `json:"message" validate:"required,notblank"`
	Priority     Priority       `json:"priority,omitempty" validate:"omitempty,oneof=low normal high urgent"`
	ActionURL    string         `json:"action_url,omitempty"`
	RelatedTable string         `json:"related_table,omitempty"`
	RelatedID    string         `json:"related_id,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
}

// EnhancedOptions tune how a template-rendered notification is persisted.
// An empty Priority keeps the template default.
type EnhancedOptions struct {
	SendEmail    bool     `json:"send_email"`
	Priority     Priority `json:"priority,omitempty" validate:"omitempty,oneof=low normal high urgent"`
	RelatedTable string   `json:"related_table,omitempty"`
	RelatedID    string   `json:"related_id,omitempty"`
}

// EnhancedResult reports what happened to an enhanced create request. The
// notification row is written even when Suppressed is set.
type EnhancedResult struct {
	Notification Notification `json:"notification"`
	EmailSent    bool         `json:"email_sent"`
	Suppressed   string       `json:"suppressed,omitempty"`
}
