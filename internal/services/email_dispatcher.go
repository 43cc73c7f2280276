package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/consultportal/portal/internal/models"
	"github.com/consultportal/portal/internal/notifications"
	apperrors "github.com/consultportal/portal/pkg/errors"
	"github.com/consultportal/portal/pkg/logger"
	"github.com/consultportal/portal/pkg/mail"
)

// Email channel names accepted by configuration.
const (
	EmailChannelSMTP    = "smtp"
	EmailChannelWebhook = "webhook"
	EmailChannelNone    = "none"
)

const defaultWebhookTimeout = 10 * time.Second

// SMTPDispatcher delivers notification emails to the address on the user's profile.
type SMTPDispatcher struct {
	db     *gorm.DB
	mailer mail.Mailer
}

// NewSMTPDispatcher constructs an SMTPDispatcher.
func NewSMTPDispatcher(db *gorm.DB, mailer mail.Mailer) (*SMTPDispatcher, error) {
	if db == nil {
		return nil, errors.New("smtp dispatcher: db is required")
	}
	if mailer == nil {
		return nil, errors.New("smtp dispatcher: mailer is required")
	}
	return &SMTPDispatcher{db: db, mailer: mailer}, nil
}

// Dispatch implements notifications.EmailDispatcher.
func (d *SMTPDispatcher) Dispatch(ctx context.Context, req notifications.EmailRequest) error {
	ctx = ensureContext(ctx)
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return errUserIDRequired
	}
	if strings.TrimSpace(req.Content.Subject) == "" {
		return fmt.Errorf("smtp dispatcher: no email content for %q", req.NotificationType)
	}

	var profile models.Profile
	if err := d.db.WithContext(ctx).Select("id", "email", "full_name").Where("id = ?", userID).First(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrNotFound.WithMessage("recipient profile not found")
		}
		return fmt.Errorf("smtp dispatcher: load profile: %w", err)
	}

	return d.mailer.Send(ctx, mail.Message{
		To:       []string{profile.Email},
		Subject:  req.Content.Subject,
		Body:     req.Content.Text,
		HTMLBody: req.Content.HTML,
		Headers: map[string]string{
			"X-Portal-Notification-Type": req.NotificationType,
			"X-Portal-User":              userID,
		},
	})
}

// WebhookDispatcher hands the email request to an external function over HTTP.
type WebhookDispatcher struct {
	url    string
	client *http.Client
}

// NewWebhookDispatcher constructs a WebhookDispatcher. A nil client uses a
// default client with a bounded timeout.
func NewWebhookDispatcher(url string, client *http.Client) (*WebhookDispatcher, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, errors.New("webhook dispatcher: url is required")
	}
	if client == nil {
		client = &http.Client{Timeout: defaultWebhookTimeout}
	}
	return &WebhookDispatcher{url: url, client: client}, nil
}

type webhookPayload struct {
	UserID           string         `json:"user_id"`
	NotificationType string         `json:"notification_type"`
	Data             map[string]any `json:"data"`
}

// Dispatch implements notifications.EmailDispatcher. Responses outside the
// 2xx range are errors; nothing is retried.
func (d *WebhookDispatcher) Dispatch(ctx context.Context, req notifications.EmailRequest) error {
	ctx = ensureContext(ctx)
	data := req.Data
	if data == nil {
		data = map[string]any{}
	}
	body, err := json.Marshal(webhookPayload{
		UserID:           req.UserID,
		NotificationType: req.NotificationType,
		Data:             data,
	})
	if err != nil {
		return fmt.Errorf("webhook dispatcher: encode payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook dispatcher: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("webhook dispatcher: post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook dispatcher: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// LogDispatcher records email requests without sending them.
type LogDispatcher struct {
	log *zap.Logger
}

// NewLogDispatcher constructs a LogDispatcher.
func NewLogDispatcher() *LogDispatcher {
	return &LogDispatcher{log: logger.WithModule("email")}
}

// Dispatch implements notifications.EmailDispatcher.
func (d *LogDispatcher) Dispatch(_ context.Context, req notifications.EmailRequest) error {
	d.log.Info("notification email not sent; no channel configured",
		zap.String("user_id", req.UserID),
		zap.String("type", req.NotificationType),
		zap.String("subject", req.Content.Subject),
	)
	return nil
}

var (
	_ notifications.EmailDispatcher = (*SMTPDispatcher)(nil)
	_ notifications.EmailDispatcher = (*WebhookDispatcher)(nil)
	_ notifications.EmailDispatcher = (*LogDispatcher)(nil)
)
