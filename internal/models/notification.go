package models

import (
	"time"

	"gorm.io/datatypes"
)

// Notification is a per-user, typed event record. Rows with DismissedAt set
// are hidden from every list; they remain until retention removes them.
type Notification struct {
	BaseModel

	UserID       string         `gorm:"type:varchar(64);not null;index:idx_notifications_user_active,priority:1" json:"user_id"`
	Type         string         `gorm:"type:varchar(64);not null;index" json:"type"`
	Title        string         `gorm:"type:varchar(255);not null" json:"title"`
	Message      string         `gorm:"type:text;not null" json:"message"`
	Priority     string         `gorm:"type:varchar(16);not null;default:'normal'" json:"priority"`
	IsRead       bool           `gorm:"not null;default:false;index:idx_notifications_user_active,priority:2" json:"is_read"`
	ReadAt       *time.Time     `json:"read_at"`
	DismissedAt  *time.Time     `gorm:"index:idx_notifications_user_active,priority:3" json:"dismissed_at"`
	RelatedTable string         `gorm:"type:varchar(64)" json:"related_table"`
	RelatedID    string         `gorm:"type:varchar(64)" json:"related_id"`
	ActionURL    string         `gorm:"type:text" json:"action_url"`
	Data         datatypes.JSON `json:"data"`
}
