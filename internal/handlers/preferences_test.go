package handlers

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/consultportal/portal/internal/notifications"
)

func TestPreferenceHandlerLifecycle(t *testing.T) {
	f := newHandlerFixture(t)

	rec, payload := f.do(t, http.MethodGet, "/api/notifications/preferences", "client-1", nil)
	requireStatus(t, rec, http.StatusOK)
	got := decodeData[preferencesResponse](t, payload)
	require.True(t, got.IsDefault)
	require.Equal(t, notifications.DefaultPreferences(), got.Preferences)

	rec, payload = f.do(t, http.MethodPut, "/api/notifications/preferences", "client-1", map[string]any{
		"email_enabled":  false,
		"push_enabled":   true,
		"frequency":      "important",
		"quiet_hours":    map[string]any{"enabled": true, "start": 22, "end": 8},
		"disabled_types": []string{"deadline_reminder"},
	})
	requireStatus(t, rec, http.StatusOK)
	saved := decodeData[preferencesResponse](t, payload)
	require.False(t, saved.IsDefault)
	require.False(t, saved.Preferences.EmailEnabled)
	require.Equal(t, notifications.FrequencyImportant, saved.Preferences.Frequency)

	rec, payload = f.do(t, http.MethodPatch, "/api/notifications/preferences", "client-1", map[string]any{
		"email_enabled": true,
	})
	requireStatus(t, rec, http.StatusOK)
	patched := decodeData[preferencesResponse](t, payload)
	require.True(t, patched.Preferences.EmailEnabled)
	require.Equal(t, notifications.FrequencyImportant, patched.Preferences.Frequency)
	require.Equal(t, []string{"deadline_reminder"}, patched.Preferences.DisabledTypes)
	require.True(t, patched.Preferences.QuietHours.Enabled)

	rec, payload = f.do(t, http.MethodGet, "/api/notifications/preferences", "client-1", nil)
	requireStatus(t, rec, http.StatusOK)
	got = decodeData[preferencesResponse](t, payload)
	require.False(t, got.IsDefault)
	require.Equal(t, patched.Preferences, got.Preferences)
}

func TestPreferenceHandlerRejectsInvalidInput(t *testing.T) {
	f := newHandlerFixture(t)

	rec, payload := f.do(t, http.MethodPut, "/api/notifications/preferences", "client-1", map[string]any{
		"frequency":   "weekly",
		"quiet_hours": map[string]any{"enabled": true, "start": 22, "end": 8},
	})
	requireStatus(t, rec, http.StatusBadRequest)
	require.Contains(t, payload.Error.Message, "frequency must be one of")

	rec, _ = f.do(t, http.MethodPatch, "/api/notifications/preferences", "client-1", map[string]any{
		"quiet_hours": map[string]any{"enabled": true, "start": 24, "end": 8},
	})
	requireStatus(t, rec, http.StatusBadRequest)

	rec, _ = f.do(t, http.MethodGet, "/api/notifications/preferences", "", nil)
	requireStatus(t, rec, http.StatusUnauthorized)
}
