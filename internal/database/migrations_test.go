package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/consultportal/portal/internal/models"
)

func TestAutoMigrateIsIdempotent(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, AutoMigrate(db))
	require.NoError(t, AutoMigrate(db))

	migrator := db.Migrator()
	for _, column := range []string{"priority", "dismissed_at", "related_table", "related_id", "data"} {
		require.True(t, migrator.HasColumn(&models.Notification{}, column), "expected column %s", column)
	}
}

func TestPreferenceRoundTripsZeroValues(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, AutoMigrate(db))

	pref := models.NotificationPreference{
		UserID:            "user-zero",
		EmailEnabled:      false,
		PushEnabled:       false,
		Frequency:         "minimal",
		QuietHoursEnabled: true,
		QuietHoursStart:   0,
		QuietHoursEnd:     6,
		DisabledTypes:     []string{"deadline_reminder"},
	}
	require.NoError(t, db.Create(&pref).Error)
	require.NotEmpty(t, pref.ID)

	var loaded models.NotificationPreference
	require.NoError(t, db.First(&loaded, "user_id = ?", "user-zero").Error)
	require.False(t, loaded.EmailEnabled)
	require.Equal(t, 0, loaded.QuietHoursStart)
	require.Equal(t, []string{"deadline_reminder"}, []string(loaded.DisabledTypes))
}

func TestNotificationTimestampsAreSet(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, AutoMigrate(db))

	row := models.Notification{UserID: "u", Type: "t", Title: "x", Message: "y", Priority: "high"}
	require.NoError(t, db.Create(&row).Error)
	require.NotEmpty(t, row.ID)
	require.WithinDuration(t, time.Now(), row.CreatedAt, time.Minute)
}
