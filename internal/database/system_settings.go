package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/consultportal/portal/internal/models"
)

// LastCleanupSetting records when the retention sweep last completed.
const LastCleanupSetting = "notifications.last_cleanup_at"

// GetSystemSetting retrieves a system setting by key. Returns an empty string when not found.
func GetSystemSetting(ctx context.Context, db *gorm.DB, key string) (string, error) {
	if db == nil {
		return "", fmt.Errorf("system settings: db is nil")
	}

	var setting models.SystemSetting
	err := db.WithContext(ctx).Take(&setting, "key = ?", key).Error
	if err == nil {
		return setting.Value, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	return "", fmt.Errorf("system settings: get %q: %w", key, err)
}

// UpsertSystemSetting stores or updates a system setting value.
func UpsertSystemSetting(ctx context.Context, db *gorm.DB, key, value string) error {
	if db == nil {
		return fmt.Errorf("system settings: db is nil")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("system settings: key is required")
	}

	record := models.SystemSetting{Key: key, Value: value}
	if err := db.WithContext(ctx).
		Where("key = ?", key).
		Assign(map[string]any{"value": value}).
		FirstOrCreate(&record).Error; err != nil {
		return fmt.Errorf("system settings: upsert %q: %w", key, err)
	}

	return nil
}

// RecordLastCleanup stores the completion time of a retention sweep.
func RecordLastCleanup(ctx context.Context, db *gorm.DB, at time.Time) error {
	return UpsertSystemSetting(ctx, db, LastCleanupSetting, at.UTC().Format(time.RFC3339))
}

// LastCleanup returns the last recorded sweep time. The zero time means never.
func LastCleanup(ctx context.Context, db *gorm.DB) (time.Time, error) {
	value, err := GetSystemSetting(ctx, db, LastCleanupSetting)
	if err != nil || value == "" {
		return time.Time{}, err
	}
	at, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("system settings: parse %q: %w", LastCleanupSetting, err)
	}
	return at, nil
}
