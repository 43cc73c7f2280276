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

	"github.com/consultportal/portal/internal/models"
	"github.com/consultportal/portal/internal/notifications"
	"github.com/consultportal/portal/internal/realtime"
	apperrors "github.com/consultportal/portal/pkg/errors"
	"github.com/consultportal/portal/pkg/logger"
	"github.com/consultportal/portal/pkg/metrics"
	appValidator "github.com/consultportal/portal/pkg/validator"
)

// Metric source labels for created notifications.
const (
	SourceAPI      = "api"
	SourceEnhanced = "enhanced"
	SourceIngest   = "ingest"
)

const priorityOrder = "CASE priority WHEN 'urgent' THEN 3 WHEN 'high' THEN 2 WHEN 'normal' THEN 1 WHEN 'low' THEN 0 ELSE 1 END DESC"

// ListNotificationsInput defines filters for querying user notifications.
type ListNotificationsInput struct {
	UserID     string
	Limit      int
	Offset     int
	UnreadOnly bool
}

// NotificationOption customises the NotificationService.
type NotificationOption func(*NotificationService)

// WithPreferences gates the email side channel on the user's delivery settings.
func WithPreferences(prefs *PreferenceService) NotificationOption {
	return func(s *NotificationService) {
		s.prefs = prefs
	}
}

// WithEmailDispatcher sets the dispatcher used for enhanced notifications.
func WithEmailDispatcher(dispatcher notifications.EmailDispatcher) NotificationOption {
	return func(s *NotificationService) {
		s.email = dispatcher
	}
}

// WithRegistry overrides the template registry.
func WithRegistry(registry *notifications.Registry) NotificationOption {
	return func(s *NotificationService) {
		if registry != nil {
			s.registry = registry
		}
	}
}

// WithNotificationClock overrides the clock used for read, dismiss and cleanup timestamps.
func WithNotificationClock(now func() time.Time) NotificationOption {
	return func(s *NotificationService) {
		if now != nil {
			s.now = now
		}
	}
}

// NotificationService manages user in-app notifications.
type NotificationService struct {
	db       *gorm.DB
	hub      *realtime.Hub
	prefs    *PreferenceService
	email    notifications.EmailDispatcher
	registry *notifications.Registry
	now      func() time.Time
	log      *zap.Logger
}

// NewNotificationService constructs a NotificationService. The hub is optional.
func NewNotificationService(db *gorm.DB, hub *realtime.Hub, opts ...NotificationOption) (*NotificationService, error) {
	if db == nil {
		return nil, errors.New("notification service: db is required")
	}
	svc := &NotificationService{
		db:       db,
		hub:      hub,
		registry: notifications.DefaultRegistry(),
		now:      time.Now,
		log:      logger.WithModule("notifications"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Registry returns the template registry used for enhanced notifications.
func (s *NotificationService) Registry() *notifications.Registry {
	return s.registry
}

// ListForUser returns the user's active notifications, highest priority first
// and newest first within a priority.
func (s *NotificationService) ListForUser(ctx context.Context, input ListNotificationsInput) ([]notifications.Notification, error) {
	ctx = ensureContext(ctx)
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return nil, errUserIDRequired
	}

	limit := input.Limit
	if limit <= 0 || limit > notifications.DefaultPageSize {
		limit = notifications.DefaultPageSize
	}
	offset := input.Offset
	if offset < 0 {
		offset = 0
	}

	query := s.activeQuery(ctx, userID)
	if input.UnreadOnly {
		query = query.Where("is_read = ?", false)
	}

	var rows []models.Notification
	if err := query.
		Order(priorityOrder).
		Order("created_at DESC").
		Order("id ASC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("notification service: list notifications: %w", err)
	}

	return mapNotificationRows(rows), nil
}

// List implements notifications.Backend.
func (s *NotificationService) List(ctx context.Context, userID string, limit int) ([]notifications.Notification, error) {
	return s.ListForUser(ctx, ListNotificationsInput{UserID: userID, Limit: limit})
}

// UnreadCount returns the number of unread, non-dismissed notifications.
func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	ctx = ensureContext(ctx)
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, errUserIDRequired
	}
	var count int64
	if err := s.activeQuery(ctx, userID).Where("is_read = ?", false).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("notification service: count unread: %w", err)
	}
	return count, nil
}

// Create persists a pre-rendered notification and broadcasts the change.
func (s *NotificationService) Create(ctx context.Context, input notifications.CreateInput) (notifications.Notification, error) {
	return s.create(ctx, input, SourceAPI)
}

// CreateFromSource is Create with an explicit metrics source label.
func (s *NotificationService) CreateFromSource(ctx context.Context, input notifications.CreateInput, source string) (notifications.Notification, error) {
	return s.create(ctx, input, source)
}

func (s *NotificationService) create(ctx context.Context, input notifications.CreateInput, source string) (notifications.Notification, error) {
	ctx = ensureContext(ctx)
	input.UserID = strings.TrimSpace(input.UserID)
	input.Type = strings.TrimSpace(input.Type)
	input.Title = strings.TrimSpace(input.Title)
	input.Message = strings.TrimSpace(input.Message)
	if err := appValidator.ValidateStruct(input); err != nil {
		return notifications.Notification{}, apperrors.NewBadRequest(err.Error())
	}

	priority, err := notifications.ParsePriority(string(input.Priority), notifications.PriorityNormal)
	if err != nil {
		return notifications.Notification{}, apperrors.NewBadRequest(err.Error())
	}

	row := models.Notification{
		UserID:       input.UserID,
		Type:         input.Type,
		Title:        input.Title,
		Message:      input.Message,
		Priority:     string(priority),
		RelatedTable: strings.TrimSpace(input.RelatedTable),
		RelatedID:    strings.TrimSpace(input.RelatedID),
		ActionURL:    strings.TrimSpace(input.ActionURL),
	}
	if len(input.Data) > 0 {
		data, err := json.Marshal(input.Data)
		if err != nil {
			return notifications.Notification{}, fmt.Errorf("notification service: marshal data: %w", err)
		}
		row.Data = datatypes.JSON(data)
	}

	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return notifications.Notification{}, fmt.Errorf("notification service: create notification: %w", err)
	}

	metrics.NotificationsCreated.WithLabelValues(row.Type, defaultIfEmpty(source, SourceAPI)).Inc()
	s.publish(row.UserID, notifications.EventCreated, row.ID)
	return mapNotification(row), nil
}

// CreateEnhanced renders payload through the template registry, persists the
// row and, when requested and permitted by the user's preferences, dispatches
// the email side effect. Email failures never roll back the row.
func (s *NotificationService) CreateEnhanced(ctx context.Context, userID string, payload notifications.Payload, opts notifications.EnhancedOptions) (notifications.EnhancedResult, error) {
	return s.createEnhanced(ctx, userID, payload, opts, SourceEnhanced)
}

// CreateEnhancedFromSource is CreateEnhanced with an explicit metrics source label.
func (s *NotificationService) CreateEnhancedFromSource(ctx context.Context, userID string, payload notifications.Payload, opts notifications.EnhancedOptions, source string) (notifications.EnhancedResult, error) {
	return s.createEnhanced(ctx, userID, payload, opts, source)
}

func (s *NotificationService) createEnhanced(ctx context.Context, userID string, payload notifications.Payload, opts notifications.EnhancedOptions, source string) (notifications.EnhancedResult, error) {
	ctx = ensureContext(ctx)
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return notifications.EnhancedResult{}, errUserIDRequired
	}
	if payload == nil {
		return notifications.EnhancedResult{}, ErrInvalidPayload
	}

	notificationType := payload.NotificationType()
	content, ok := s.registry.FormatContent(payload)
	if !ok {
		s.log.Warn("no template for notification type", zap.String("type", notificationType), zap.String("user_id", userID))
		return notifications.EnhancedResult{}, ErrUnknownNotificationType
	}

	priority := content.Priority
	if opts.Priority != "" {
		parsed, err := notifications.ParsePriority(string(opts.Priority), content.Priority)
		if err != nil {
			return notifications.EnhancedResult{}, apperrors.NewBadRequest(err.Error())
		}
		priority = parsed
	}

	data, err := notifications.PayloadData(payload)
	if err != nil {
		return notifications.EnhancedResult{}, ErrInvalidPayload.WithInternal(err)
	}

	created, err := s.create(ctx, notifications.CreateInput{
		UserID:       userID,
		Type:         notificationType,
		Title:        content.Title,
		Message:      content.Message,
		Priority:     priority,
		ActionURL:    content.ActionURL,
		RelatedTable: opts.RelatedTable,
		RelatedID:    opts.RelatedID,
		Data:         data,
	}, source)
	if err != nil {
		return notifications.EnhancedResult{}, err
	}

	result := notifications.EnhancedResult{Notification: created}
	if !opts.SendEmail {
		return result, nil
	}

	sent, suppressed := s.sendEmail(ctx, userID, payload, notifications.Subject{
		Type:             notificationType,
		Priority:         priority,
		TemplatePriority: content.Priority,
	}, data)
	result.EmailSent = sent
	result.Suppressed = suppressed
	return result, nil
}

// Suppression reasons reported alongside those from notifications.ShouldSend.
const (
	ReasonEmailDisabled = "email_disabled"
	ReasonNoTemplate    = "no_email_template"
	ReasonNoDispatcher  = "no_dispatcher"
)

func (s *NotificationService) sendEmail(ctx context.Context, userID string, payload notifications.Payload, subject notifications.Subject, data map[string]any) (bool, string) {
	notificationType := subject.Type

	if s.prefs != nil {
		prefs, decision, err := s.prefs.Evaluate(ctx, userID, subject)
		if err != nil {
			s.log.Warn("load preferences for email failed", zap.String("user_id", userID), zap.Error(err))
			metrics.NotificationEmails.WithLabelValues("failed").Inc()
			return false, ""
		}
		if !prefs.EmailEnabled {
			return s.skipEmail(ReasonEmailDisabled)
		}
		if !decision.Allowed {
			return s.skipEmail(decision.Reason)
		}
	}

	content, ok := s.registry.GenerateEmailContent(payload)
	if !ok {
		return s.skipEmail(ReasonNoTemplate)
	}
	if s.email == nil {
		return s.skipEmail(ReasonNoDispatcher)
	}

	err := s.email.Dispatch(ctx, notifications.EmailRequest{
		UserID:           userID,
		NotificationType: notificationType,
		Data:             data,
		Content:          content,
	})
	if err != nil {
		s.log.Warn("dispatch notification email failed",
			zap.String("user_id", userID),
			zap.String("type", notificationType),
			zap.Error(err),
		)
		metrics.NotificationEmails.WithLabelValues("failed").Inc()
		return false, ""
	}
	metrics.NotificationEmails.WithLabelValues("sent").Inc()
	return true, ""
}

func (s *NotificationService) skipEmail(reason string) (bool, string) {
	metrics.NotificationEmails.WithLabelValues("skipped").Inc()
	metrics.NotificationsSuppressed.WithLabelValues(reason).Inc()
	return false, reason
}

// MarkRead marks one notification read. read_at is set only on the first
// transition; an already read row is returned unchanged.
func (s *NotificationService) MarkRead(ctx context.Context, userID, notificationID string) (notifications.Notification, error) {
	ctx = ensureContext(ctx)
	row, err := s.loadActive(ctx, userID, notificationID)
	if err != nil {
		return notifications.Notification{}, err
	}
	if row.IsRead {
		return mapNotification(row), nil
	}

	now := s.now().UTC()
	result := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ? AND user_id = ? AND is_read = ?", row.ID, row.UserID, false).
		Updates(map[string]any{"is_read": true, "read_at": now})
	if result.Error != nil {
		return notifications.Notification{}, fmt.Errorf("notification service: mark read: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		s.publish(row.UserID, notifications.EventRead, row.ID)
	}

	row, err = s.loadActive(ctx, userID, notificationID)
	if err != nil {
		return notifications.Notification{}, err
	}
	return mapNotification(row), nil
}

// MarkManyRead marks the listed unread notifications read and returns how many changed.
func (s *NotificationService) MarkManyRead(ctx context.Context, userID string, ids []string) (int64, error) {
	ctx = ensureContext(ctx)
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, errUserIDRequired
	}
	ids = normaliseIDs(ids)
	if len(ids) == 0 {
		return 0, nil
	}

	result := s.activeQuery(ctx, userID).
		Where("id IN ? AND is_read = ?", ids, false).
		Updates(map[string]any{"is_read": true, "read_at": s.now().UTC()})
	if result.Error != nil {
		return 0, fmt.Errorf("notification service: mark many read: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		s.publish(userID, notifications.EventReadMany, "")
	}
	return result.RowsAffected, nil
}

// MarkAllRead marks every unread, non-dismissed notification read.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	ctx = ensureContext(ctx)
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, errUserIDRequired
	}

	result := s.activeQuery(ctx, userID).
		Where("is_read = ?", false).
		Updates(map[string]any{"is_read": true, "read_at": s.now().UTC()})
	if result.Error != nil {
		return 0, fmt.Errorf("notification service: mark all read: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		s.publish(userID, notifications.EventReadAll, "")
	}
	return result.RowsAffected, nil
}

// Dismiss hides a notification. Dismissing twice reports not found.
func (s *NotificationService) Dismiss(ctx context.Context, userID, notificationID string) error {
	ctx = ensureContext(ctx)
	userID = strings.TrimSpace(userID)
	notificationID = strings.TrimSpace(notificationID)
	if userID == "" {
		return errUserIDRequired
	}

	result := s.activeQuery(ctx, userID).
		Where("id = ?", notificationID).
		Update("dismissed_at", s.now().UTC())
	if result.Error != nil {
		return fmt.Errorf("notification service: dismiss notification: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}

	s.publish(userID, notifications.EventDismissed, notificationID)
	return nil
}

// CleanupOld deletes the user's read notifications older than daysOld days.
// Unread notifications are never removed.
func (s *NotificationService) CleanupOld(ctx context.Context, userID string, daysOld int) (int64, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, errUserIDRequired
	}
	return s.cleanup(ctx, userID, daysOld)
}

// CleanupAllOlderThan applies CleanupOld across every user.
func (s *NotificationService) CleanupAllOlderThan(ctx context.Context, daysOld int) (int64, error) {
	return s.cleanup(ctx, "", daysOld)
}

func (s *NotificationService) cleanup(ctx context.Context, userID string, daysOld int) (int64, error) {
	ctx = ensureContext(ctx)
	if daysOld <= 0 {
		return 0, apperrors.NewBadRequest("days_old must be positive")
	}
	cutoff := s.now().UTC().AddDate(0, 0, -daysOld)

	expired := func() *gorm.DB {
		query := s.db.WithContext(ctx).
			Model(&models.Notification{}).
			Where("is_read = ? AND created_at < ?", true, cutoff)
		if userID != "" {
			query = query.Where("user_id = ?", userID)
		}
		return query
	}

	owners := []string{userID}
	if userID == "" {
		owners = nil
		if err := expired().Distinct().Pluck("user_id", &owners).Error; err != nil {
			return 0, fmt.Errorf("notification service: list cleanup owners: %w", err)
		}
	}

	result := expired().Delete(&models.Notification{})
	if result.Error != nil {
		return 0, fmt.Errorf("notification service: cleanup notifications: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		metrics.NotificationsCleaned.Add(float64(result.RowsAffected))
		for _, owner := range owners {
			s.publish(owner, notifications.EventCleanup, "")
		}
	}
	return result.RowsAffected, nil
}

func (s *NotificationService) activeQuery(ctx context.Context, userID string) *gorm.DB {
	return s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND dismissed_at IS NULL", userID)
}

func (s *NotificationService) loadActive(ctx context.Context, userID, notificationID string) (models.Notification, error) {
	userID = strings.TrimSpace(userID)
	notificationID = strings.TrimSpace(notificationID)
	if userID == "" {
		return models.Notification{}, errUserIDRequired
	}
	var row models.Notification
	if err := s.activeQuery(ctx, userID).Where("id = ?", notificationID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Notification{}, apperrors.ErrNotFound
		}
		return models.Notification{}, fmt.Errorf("notification service: load notification: %w", err)
	}
	return row, nil
}

func (s *NotificationService) publish(userID, event, notificationID string) {
	if s.hub == nil || userID == "" {
		return
	}
	s.hub.BroadcastToUser(realtime.StreamNotifications, userID, realtime.NotificationMessage(notifications.Event{
		Name:           event,
		UserID:         userID,
		NotificationID: notificationID,
	}))
}

func mapNotificationRows(rows []models.Notification) []notifications.Notification {
	items := make([]notifications.Notification, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapNotification(row))
	}
	return items
}

func mapNotification(row models.Notification) notifications.Notification {
	return notifications.Notification{
		ID:           row.ID,
		UserID:       row.UserID,
		Type:         row.Type,
		Title:        row.Title,
		Message:      row.Message,
		Priority:     notifications.Priority(defaultIfEmpty(row.Priority, string(notifications.PriorityNormal))),
		IsRead:       row.IsRead,
		ReadAt:       row.ReadAt,
		DismissedAt:  row.DismissedAt,
		RelatedTable: row.RelatedTable,
		RelatedID:    row.RelatedID,
		ActionURL:    row.ActionURL,
		Data:         decodeJSON(row.Data),
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}
}

func decodeJSON(data datatypes.JSON) map[string]any {
	if len(data) == 0 {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}

var _ notifications.Backend = (*NotificationService)(nil)
