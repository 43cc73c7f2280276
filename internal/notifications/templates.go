package notifications

import (
	"fmt"
	"html"
	"net/url"
	"strings"
	"sync"
)

// Content is the rendered in-app form of a notification.
type Content struct {
	Title      string   `json:"title"`
	Message    string   `json:"message"`
	ActionText string   `json:"action_text,omitempty"`
	ActionURL  string   `json:"action_url,omitempty"`
	Icon       string   `json:"icon"`
	Color      string   `json:"color"`
	Priority   Priority `json:"priority"`
}

// EmailContent is the rendered email form of a notification.
type EmailContent struct {
	Subject string `json:"subject"`
	Text    string `json:"text"`
	HTML    string `json:"html,omitempty"`
}

// TemplateSpec describes one notification type in terms of its typed payload.
// Title and Message are required; the remaining renderers are optional.
type TemplateSpec[P Payload] struct {
	Type       string
	Icon       string
	Color      string
	Priority   Priority
	Title      func(P) string
	Message    func(P) string
	ActionText func(P) string
	ActionURL  func(P) string
	Email      func(P) EmailContent
}

// Template is a registered, type-erased notification template.
type Template struct {
	Type     string
	Icon     string
	Color    string
	Priority Priority

	render   func(Payload) (Content, bool)
	email    func(Payload) (EmailContent, bool)
	decode   func(map[string]any) (Payload, error)
	hasEmail bool
}

// HasEmail reports whether the template defines an email renderer.
func (t Template) HasEmail() bool {
	return t.hasEmail
}

// Define builds a Template from a typed spec.
func Define[P Payload](spec TemplateSpec[P]) Template {
	priority := spec.Priority
	if !priority.Valid() {
		priority = PriorityNormal
	}

	tpl := Template{
		Type:     spec.Type,
		Icon:     spec.Icon,
		Color:    spec.Color,
		Priority: priority,
		hasEmail: spec.Email != nil,
	}

	tpl.render = func(p Payload) (Content, bool) {
		typed, ok := p.(P)
		if !ok || spec.Title == nil || spec.Message == nil {
			return Content{}, false
		}
		content := Content{
			Title:    spec.Title(typed),
			Message:  spec.Message(typed),
			Icon:     spec.Icon,
			Color:    spec.Color,
			Priority: priority,
		}
		if spec.ActionText != nil {
			content.ActionText = spec.ActionText(typed)
		}
		if spec.ActionURL != nil {
			content.ActionURL = spec.ActionURL(typed)
		}
		return content, true
	}

	tpl.email = func(p Payload) (EmailContent, bool) {
		typed, ok := p.(P)
		if !ok || spec.Email == nil {
			return EmailContent{}, false
		}
		return spec.Email(typed), true
	}

	tpl.decode = func(data map[string]any) (Payload, error) {
		var typed P
		if data == nil {
			data = map[string]any{}
		}
		if err := decodeMap(data, &typed); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrPayloadMismatch, spec.Type, err)
		}
		return typed, nil
	}

	return tpl
}

// TemplateInfo is the public listing shape of a template.
type TemplateInfo struct {
	Type     string   `json:"type"`
	Icon     string   `json:"icon"`
	Color    string   `json:"color"`
	Priority Priority `json:"priority"`
	HasEmail bool     `json:"has_email"`
}

// Registry is an immutable lookup table of templates keyed by type.
type Registry struct {
	templates map[string]Template
	order     []string
}

// NewRegistry indexes templates by type. Duplicate or empty types are rejected.
func NewRegistry(templates ...Template) (*Registry, error) {
	reg := &Registry{templates: make(map[string]Template, len(templates))}
	for _, tpl := range templates {
		key := strings.TrimSpace(tpl.Type)
		if key == "" {
			return nil, fmt.Errorf("notifications: template type is required")
		}
		if _, exists := reg.templates[key]; exists {
			return nil, fmt.Errorf("notifications: duplicate template %q", key)
		}
		reg.templates[key] = tpl
		reg.order = append(reg.order, key)
	}
	return reg, nil
}

var (
	defaultRegistryOnce sync.Once
	defaultRegistry     *Registry
)

// DefaultRegistry returns the registry of built-in portal templates.
func DefaultRegistry() *Registry {
	defaultRegistryOnce.Do(func() {
		reg, err := NewRegistry(builtinTemplates()...)
		if err != nil {
			panic(err)
		}
		defaultRegistry = reg
	})
	return defaultRegistry
}

// Lookup returns the template registered for notificationType.
func (r *Registry) Lookup(notificationType string) (Template, bool) {
	if r == nil {
		return Template{}, false
	}
	tpl, ok := r.templates[notificationType]
	return tpl, ok
}

// Types lists registered templates in registration order.
func (r *Registry) Types() []TemplateInfo {
	if r == nil {
		return nil
	}
	infos := make([]TemplateInfo, 0, len(r.order))
	for _, key := range r.order {
		tpl := r.templates[key]
		infos = append(infos, TemplateInfo{
			Type:     tpl.Type,
			Icon:     tpl.Icon,
			Color:    tpl.Color,
			Priority: tpl.Priority,
			HasEmail: tpl.hasEmail,
		})
	}
	return infos
}

// FormatContent renders p with its registered template. It returns false for
// unknown types and never panics.
func (r *Registry) FormatContent(p Payload) (Content, bool) {
	if p == nil {
		return Content{}, false
	}
	tpl, ok := r.Lookup(p.NotificationType())
	if !ok {
		return Content{}, false
	}
	return tpl.render(p)
}

// FormatContentRaw decodes a wire map into the typed payload for
// notificationType and renders it.
func (r *Registry) FormatContentRaw(notificationType string, data map[string]any) (Content, bool) {
	payload, err := r.Decode(notificationType, data)
	if err != nil {
		return Content{}, false
	}
	return r.FormatContent(payload)
}

// GenerateEmailContent renders the email form of p. Templates without an email
// renderer return false.
func (r *Registry) GenerateEmailContent(p Payload) (EmailContent, bool) {
	if p == nil {
		return EmailContent{}, false
	}
	tpl, ok := r.Lookup(p.NotificationType())
	if !ok {
		return EmailContent{}, false
	}
	return tpl.email(p)
}

// Decode converts a wire map into the typed payload registered for notificationType.
func (r *Registry) Decode(notificationType string, data map[string]any) (Payload, error) {
	tpl, ok := r.Lookup(notificationType)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, notificationType)
	}
	return tpl.decode(data)
}

func builtinTemplates() []Template {
	return []Template{
		Define(TemplateSpec[DocumentUploaded]{
			Type:     TypeDocumentUploaded,
			Icon:     "file-up",
			Color:    "blue",
			Priority: PriorityNormal,
			Title:    func(DocumentUploaded) string { return "Document Uploaded" },
			Message: func(p DocumentUploaded) string {
				if p.UploadedBy != "" {
					return fmt.Sprintf(`%s uploaded "%s"`, p.UploadedBy, p.DocumentName)
				}
				return fmt.Sprintf(`Document "%s" has been uploaded`, p.DocumentName)
			},
			ActionText: func(DocumentUploaded) string { return "View Document" },
			ActionURL: func(p DocumentUploaded) string {
				return pathWithID("/dashboard/applications", p.ApplicationID, "/dashboard/documents")
			},
		}),
		Define(TemplateSpec[DocumentApproved]{
			Type:     TypeDocumentApproved,
			Icon:     "file-check",
			Color:    "green",
			Priority: PriorityNormal,
			Title:    func(DocumentApproved) string { return "Document Approved" },
			Message: func(p DocumentApproved) string {
				return fmt.Sprintf(`Your document "%s" has been approved`, p.DocumentName)
			},
			ActionText: func(DocumentApproved) string { return "View Document" },
			ActionURL: func(p DocumentApproved) string {
				return pathWithID("/dashboard/documents", p.DocumentID, "/dashboard/documents")
			},
			Email: func(p DocumentApproved) EmailContent {
				lines := []string{fmt.Sprintf(`Your document "%s" has been approved.`, p.DocumentName)}
				if p.ConsultantName != "" {
					lines = append(lines, fmt.Sprintf("Reviewed by %s.", p.ConsultantName))
				}
				return emailContent("Document approved: "+p.DocumentName, lines...)
			},
		}),
		Define(TemplateSpec[DocumentRejected]{
			Type:     TypeDocumentRejected,
			Icon:     "file-x",
			Color:    "red",
			Priority: PriorityHigh,
			Title:    func(DocumentRejected) string { return "Document Rejected" },
			Message: func(p DocumentRejected) string {
				msg := fmt.Sprintf(`Your document "%s" needs attention`, p.DocumentName)
				if p.Reason != "" {
					msg += ": " + p.Reason
				}
				return msg
			},
			ActionText: func(DocumentRejected) string { return "Review Document" },
			ActionURL: func(p DocumentRejected) string {
				return pathWithID("/dashboard/documents", p.DocumentID, "/dashboard/documents")
			},
			Email: func(p DocumentRejected) EmailContent {
				lines := []string{fmt.Sprintf(`Your document "%s" was not approved.`, p.DocumentName)}
				if p.Reason != "" {
					lines = append(lines, "Reason: "+p.Reason)
				}
				lines = append(lines, "Please upload a corrected version from your dashboard.")
				return emailContent("Action needed: "+p.DocumentName, lines...)
			},
		}),
		Define(TemplateSpec[PaymentReceived]{
			Type:     TypePaymentReceived,
			Icon:     "credit-card",
			Color:    "green",
			Priority: PriorityNormal,
			Title:    func(PaymentReceived) string { return "Payment Received" },
			Message: func(p PaymentReceived) string {
				return fmt.Sprintf("We received your payment of %s", formatAmount(p.Amount, p.Currency))
			},
			ActionText: func(PaymentReceived) string { return "View Receipt" },
			ActionURL:  func(PaymentReceived) string { return "/dashboard/payments" },
			Email: func(p PaymentReceived) EmailContent {
				lines := []string{fmt.Sprintf("We received your payment of %s.", formatAmount(p.Amount, p.Currency))}
				if p.InvoiceNumber != "" {
					lines = append(lines, "Invoice: "+p.InvoiceNumber)
				}
				return emailContent("Payment received", lines...)
			},
		}),
		Define(TemplateSpec[PaymentFailed]{
			Type:     TypePaymentFailed,
			Icon:     "credit-card",
			Color:    "red",
			Priority: PriorityUrgent,
			Title:    func(PaymentFailed) string { return "Payment Failed" },
			Message: func(p PaymentFailed) string {
				msg := fmt.Sprintf("Your payment of %s could not be processed", formatAmount(p.Amount, p.Currency))
				if p.Reason != "" {
					msg += ": " + p.Reason
				}
				return msg
			},
			ActionText: func(PaymentFailed) string { return "Update Payment" },
			ActionURL:  func(PaymentFailed) string { return "/dashboard/payments" },
			Email: func(p PaymentFailed) EmailContent {
				lines := []string{fmt.Sprintf("Your payment of %s could not be processed.", formatAmount(p.Amount, p.Currency))}
				if p.Reason != "" {
					lines = append(lines, "Reason: "+p.Reason)
				}
				return emailContent("Payment failed", lines...)
			},
		}),
		Define(TemplateSpec[MessageReceived]{
			Type:     TypeMessageReceived,
			Icon:     "message-square",
			Color:    "blue",
			Priority: PriorityNormal,
			Title:    func(MessageReceived) string { return "New Message" },
			Message: func(p MessageReceived) string {
				if p.Preview != "" {
					return fmt.Sprintf("%s: %s", p.SenderName, truncate(p.Preview, 120))
				}
				return fmt.Sprintf("You have a new message from %s", p.SenderName)
			},
			ActionText: func(MessageReceived) string { return "Reply" },
			ActionURL: func(p MessageReceived) string {
				return pathWithID("/dashboard/messages", p.ConversationID, "/dashboard/messages")
			},
		}),
		Define(TemplateSpec[DeadlineReminder]{
			Type:     TypeDeadlineReminder,
			Icon:     "clock",
			Color:    "orange",
			Priority: PriorityHigh,
			Title:    func(DeadlineReminder) string { return "Deadline Reminder" },
			Message: func(p DeadlineReminder) string {
				switch {
				case p.DaysLeft <= 0:
					return fmt.Sprintf("%s is due today", p.TaskName)
				case p.DaysLeft == 1:
					return fmt.Sprintf("%s is due tomorrow", p.TaskName)
				default:
					return fmt.Sprintf("%s is due in %d days", p.TaskName, p.DaysLeft)
				}
			},
			ActionText: func(DeadlineReminder) string { return "View Task" },
			ActionURL: func(p DeadlineReminder) string {
				return pathWithID("/dashboard/applications", p.ApplicationID, "/dashboard")
			},
			Email: func(p DeadlineReminder) EmailContent {
				lines := []string{fmt.Sprintf("Reminder: %s", p.TaskName)}
				if p.DueDate != "" {
					lines = append(lines, "Due date: "+p.DueDate)
				}
				return emailContent("Upcoming deadline: "+p.TaskName, lines...)
			},
		}),
		Define(TemplateSpec[ApplicationStatusChanged]{
			Type:     TypeApplicationStatusChanged,
			Icon:     "refresh-cw",
			Color:    "purple",
			Priority: PriorityNormal,
			Title:    func(ApplicationStatusChanged) string { return "Application Updated" },
			Message: func(p ApplicationStatusChanged) string {
				if p.ServiceName != "" {
					return fmt.Sprintf("Your %s application is now %s", p.ServiceName, humanize(p.Status))
				}
				return fmt.Sprintf("Your application is now %s", humanize(p.Status))
			},
			ActionText: func(ApplicationStatusChanged) string { return "View Application" },
			ActionURL: func(p ApplicationStatusChanged) string {
				return pathWithID("/dashboard/applications", p.ApplicationID, "/dashboard/applications")
			},
			Email: func(p ApplicationStatusChanged) EmailContent {
				return emailContent("Application status: "+humanize(p.Status),
					fmt.Sprintf("Your application status changed to %s.", humanize(p.Status)))
			},
		}),
		Define(TemplateSpec[ConsultantAssigned]{
			Type:     TypeConsultantAssigned,
			Icon:     "user-check",
			Color:    "blue",
			Priority: PriorityNormal,
			Title:    func(ConsultantAssigned) string { return "Consultant Assigned" },
			Message: func(p ConsultantAssigned) string {
				if p.ServiceName != "" {
					return fmt.Sprintf("%s has been assigned to your %s application", p.ConsultantName, p.ServiceName)
				}
				return fmt.Sprintf("%s has been assigned to your application", p.ConsultantName)
			},
			ActionText: func(ConsultantAssigned) string { return "Say Hello" },
			ActionURL:  func(ConsultantAssigned) string { return "/dashboard/messages" },
		}),
		Define(TemplateSpec[SecurityAlert]{
			Type:     TypeSecurityAlert,
			Icon:     "shield-alert",
			Color:    "red",
			Priority: PriorityUrgent,
			Title:    func(SecurityAlert) string { return "Security Alert" },
			Message: func(p SecurityAlert) string {
				msg := p.Event
				if p.IPAddress != "" {
					msg += " from " + p.IPAddress
				}
				if p.Location != "" {
					msg += " (" + p.Location + ")"
				}
				return msg
			},
			ActionText: func(SecurityAlert) string { return "Review Activity" },
			ActionURL:  func(SecurityAlert) string { return "/dashboard/settings/security" },
			Email: func(p SecurityAlert) EmailContent {
				lines := []string{"We detected the following activity on your account: " + p.Event}
				if p.IPAddress != "" {
					lines = append(lines, "IP address: "+p.IPAddress)
				}
				lines = append(lines, "If this was not you, change your password immediately.")
				return emailContent("Security alert", lines...)
			},
		}),
		Define(TemplateSpec[SystemMaintenance]{
			Type:     TypeSystemMaintenance,
			Icon:     "wrench",
			Color:    "gray",
			Priority: PriorityLow,
			Title:    func(SystemMaintenance) string { return "Scheduled Maintenance" },
			Message: func(p SystemMaintenance) string {
				if p.Duration != "" {
					return fmt.Sprintf("The portal will be unavailable from %s for %s", p.StartsAt, p.Duration)
				}
				return fmt.Sprintf("The portal will be briefly unavailable from %s", p.StartsAt)
			},
		}),
	}
}

func pathWithID(base, id, fallback string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return fallback
	}
	return base + "/" + url.PathEscape(id)
}

func formatAmount(amount float64, currency string) string {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = "USD"
	}
	return fmt.Sprintf("%s %.2f", currency, amount)
}

func humanize(value string) string {
	return strings.ReplaceAll(strings.TrimSpace(value), "_", " ")
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit]) + "…"
}

func emailContent(subject string, lines ...string) EmailContent {
	var htmlBody strings.Builder
	for _, line := range lines {
		htmlBody.WriteString("<p>")
		htmlBody.WriteString(html.EscapeString(line))
		htmlBody.WriteString("</p>")
	}
	return EmailContent{
		Subject: subject,
		Text:    strings.Join(lines, "\n\n"),
		HTML:    htmlBody.String(),
	}
}
