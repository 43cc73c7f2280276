package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// NotificationPreference stores one user's delivery settings. Columns carry
// no database defaults so saving false or zero values round-trips.
type NotificationPreference struct {
	ID                string                      `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID            string                      `gorm:"type:varchar(64);not null;uniqueIndex" json:"user_id"`
	EmailEnabled      bool                        `gorm:"not null" json:"email_enabled"`
	PushEnabled       bool                        `gorm:"not null" json:"push_enabled"`
	Frequency         string                      `gorm:"type:varchar(16);not null" json:"frequency"`
	QuietHoursEnabled bool                        `gorm:"not null" json:"quiet_hours_enabled"`
	QuietHoursStart   int                         `gorm:"not null" json:"quiet_hours_start"`
	QuietHoursEnd     int                         `gorm:"not null" json:"quiet_hours_end"`
	DisabledTypes     datatypes.JSONSlice[string] `json:"disabled_types"`
	CreatedAt         time.Time                   `json:"created_at"`
	UpdatedAt         time.Time                   `json:"updated_at"`
}

// BeforeCreate assigns a UUID when missing.
func (p *NotificationPreference) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}
