package app

import (
	"strings"
	"time"

	"github.com/consultportal/portal/pkg/mail"
)

const defaultWebhookTimeout = 10 * time.Second

// SMTPSettings converts EmailConfig to the mail package representation.
func (c EmailConfig) SMTPSettings() mail.SMTPSettings {
	return mail.SMTPSettings{
		Enabled:  c.SMTP.Enabled,
		Host:     strings.TrimSpace(c.SMTP.Host),
		Port:     c.SMTP.Port,
		Username: c.SMTP.Username,
		Password: c.SMTP.Password,
		From:     strings.TrimSpace(c.SMTP.From),
		UseTLS:   c.SMTP.UseTLS,
		Timeout:  c.SMTP.Timeout,
	}
}

// EmailChannel returns the normalised delivery channel name. Empty values
// mean no channel.
func (c NotificationsConfig) EmailChannel() string {
	channel := strings.ToLower(strings.TrimSpace(c.Email.Channel))
	if channel == "" {
		return "none"
	}
	return channel
}

// WebhookTimeout returns the webhook client timeout with its default applied.
func (c NotificationsConfig) WebhookTimeout() time.Duration {
	if c.Email.WebhookTimeout <= 0 {
		return defaultWebhookTimeout
	}
	return c.Email.WebhookTimeout
}
