package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/consultportal/portal/internal/cache"
	"github.com/consultportal/portal/internal/models"
	"github.com/consultportal/portal/internal/notifications"
	apperrors "github.com/consultportal/portal/pkg/errors"
	"github.com/consultportal/portal/pkg/logger"
	appValidator "github.com/consultportal/portal/pkg/validator"
)

const defaultPreferenceCacheTTL = 5 * time.Minute

// PreferenceOption customises the PreferenceService.
type PreferenceOption func(*PreferenceService)

// WithPreferenceCache enables read-through caching of preference rows.
func WithPreferenceCache(store cache.Store, ttl time.Duration) PreferenceOption {
	return func(s *PreferenceService) {
		s.cache = store
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

// WithPreferenceClock overrides the clock used when evaluating quiet hours.
func WithPreferenceClock(now func() time.Time) PreferenceOption {
	return func(s *PreferenceService) {
		if now != nil {
			s.now = now
		}
	}
}

// PreferenceService persists per-user notification delivery settings.
type PreferenceService struct {
	db       *gorm.DB
	cache    cache.Store
	cacheTTL time.Duration
	now      func() time.Time
	log      *zap.Logger
}

// NewPreferenceService constructs a PreferenceService.
func NewPreferenceService(db *gorm.DB, opts ...PreferenceOption) (*PreferenceService, error) {
	if db == nil {
		return nil, errors.New("preference service: db is required")
	}
	svc := &PreferenceService{
		db:       db,
		cacheTTL: defaultPreferenceCacheTTL,
		now:      time.Now,
		log:      logger.WithModule("preferences"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

type cachedPreferences struct {
	Found       bool                      `json:"found"`
	Preferences notifications.Preferences `json:"preferences"`
}

// Get returns the stored preferences for userID. When the user has never saved
// any, the defaults are returned with found set to false.
func (s *PreferenceService) Get(ctx context.Context, userID string) (notifications.Preferences, bool, error) {
	ctx = ensureContext(ctx)
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return notifications.DefaultPreferences(), false, errUserIDRequired
	}

	if cached, ok := s.readCache(ctx, userID); ok {
		return cached.Preferences, cached.Found, nil
	}

	var row models.NotificationPreference
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&row).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		prefs := notifications.DefaultPreferences()
		s.writeCache(ctx, userID, cachedPreferences{Found: false, Preferences: prefs})
		return prefs, false, nil
	case err != nil:
		return notifications.DefaultPreferences(), false, fmt.Errorf("preference service: load preferences: %w", err)
	}

	prefs := preferencesFromRow(row)
	s.writeCache(ctx, userID, cachedPreferences{Found: true, Preferences: prefs})
	return prefs, true, nil
}

// Save replaces the stored preferences for userID wholesale.
func (s *PreferenceService) Save(ctx context.Context, userID string, prefs notifications.Preferences) (notifications.Preferences, error) {
	ctx = ensureContext(ctx)
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return notifications.DefaultPreferences(), errUserIDRequired
	}
	if prefs.Frequency == "" {
		prefs.Frequency = notifications.FrequencyAll
	}
	if err := appValidator.ValidateStruct(prefs); err != nil {
		return notifications.DefaultPreferences(), apperrors.NewBadRequest(err.Error())
	}
	prefs = prefs.Normalize()

	row := preferencesToRow(userID, prefs)
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"email_enabled",
			"push_enabled",
			"frequency",
			"quiet_hours_enabled",
			"quiet_hours_start",
			"quiet_hours_end",
			"disabled_types",
			"updated_at",
		}),
	}).Create(&row).Error
	if err != nil {
		return notifications.DefaultPreferences(), fmt.Errorf("preference service: save preferences: %w", err)
	}

	s.invalidate(ctx, userID)
	return prefs, nil
}

// Patch applies the supplied top-level fields onto the current preferences and
// saves the result. An empty patch returns the current preferences unchanged.
func (s *PreferenceService) Patch(ctx context.Context, userID string, patch notifications.PreferencesPatch) (notifications.Preferences, error) {
	current, _, err := s.Get(ctx, userID)
	if err != nil {
		return current, err
	}
	if patch.Empty() {
		return current, nil
	}
	if err := appValidator.ValidateStruct(patch); err != nil {
		return current, apperrors.NewBadRequest(err.Error())
	}
	return s.Save(ctx, userID, current.Merge(patch))
}

// ShouldSend evaluates the delivery predicate against the stored preferences
// at the service clock's current time.
func (s *PreferenceService) ShouldSend(ctx context.Context, userID, notificationType string, priority notifications.Priority) (notifications.Decision, error) {
	_, decision, err := s.Evaluate(ctx, userID, notifications.Subject{Type: notificationType, Priority: priority})
	return decision, err
}

// Evaluate returns the preferences used for the decision alongside it.
func (s *PreferenceService) Evaluate(ctx context.Context, userID string, subject notifications.Subject) (notifications.Preferences, notifications.Decision, error) {
	prefs, _, err := s.Get(ctx, userID)
	if err != nil {
		return prefs, notifications.Decision{}, err
	}
	return prefs, notifications.Decide(prefs, subject, s.now()), nil
}

func (s *PreferenceService) cacheKey(userID string) string {
	return "prefs:" + userID
}

func (s *PreferenceService) readCache(ctx context.Context, userID string) (cachedPreferences, bool) {
	if s.cache == nil {
		return cachedPreferences{}, false
	}
	raw, ok, err := s.cache.Get(ctx, s.cacheKey(userID))
	if err != nil {
		s.log.Warn("preference cache read failed", zap.String("user_id", userID), zap.Error(err))
		return cachedPreferences{}, false
	}
	if !ok {
		return cachedPreferences{}, false
	}
	var entry cachedPreferences
	if err := json.Unmarshal(raw, &entry); err != nil {
		s.log.Warn("preference cache entry corrupt", zap.String("user_id", userID), zap.Error(err))
		return cachedPreferences{}, false
	}
	return entry, true
}

func (s *PreferenceService) writeCache(ctx context.Context, userID string, entry cachedPreferences) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, s.cacheKey(userID), raw, s.cacheTTL); err != nil {
		s.log.Warn("preference cache write failed", zap.String("user_id", userID), zap.Error(err))
	}
}

func (s *PreferenceService) invalidate(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, s.cacheKey(userID)); err != nil {
		s.log.Warn("preference cache invalidate failed", zap.String("user_id", userID), zap.Error(err))
	}
}

func preferencesFromRow(row models.NotificationPreference) notifications.Preferences {
	prefs := notifications.Preferences{
		EmailEnabled: row.EmailEnabled,
		PushEnabled:  row.PushEnabled,
		Frequency:    notifications.Frequency(row.Frequency),
		QuietHours: notifications.QuietHours{
			Enabled: row.QuietHoursEnabled,
			Start:   row.QuietHoursStart,
			End:     row.QuietHoursEnd,
		},
		DisabledTypes: append([]string(nil), row.DisabledTypes...),
	}
	return prefs.Normalize()
}

func preferencesToRow(userID string, prefs notifications.Preferences) models.NotificationPreference {
	disabled := prefs.DisabledTypes
	if disabled == nil {
		disabled = []string{}
	}
	return models.NotificationPreference{
		UserID:            userID,
		EmailEnabled:      prefs.EmailEnabled,
		PushEnabled:       prefs.PushEnabled,
		Frequency:         string(prefs.Frequency),
		QuietHoursEnabled: prefs.QuietHours.Enabled,
		QuietHoursStart:   prefs.QuietHours.Start,
		QuietHoursEnd:     prefs.QuietHours.End,
		DisabledTypes:     datatypes.JSONSlice[string](disabled),
	}
}
