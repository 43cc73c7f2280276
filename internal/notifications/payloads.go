package notifications

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Notification type keys.
const (
	TypeDocumentUploaded         = "document_uploaded"
	TypeDocumentApproved         = "document_approved"
	TypeDocumentRejected         = "document_rejected"
	TypePaymentReceived          = "payment_received"
	TypePaymentFailed            = "payment_failed"
	TypeMessageReceived          = "message_received"
	TypeDeadlineReminder         = "deadline_reminder"
	TypeApplicationStatusChanged = "application_status_changed"
	TypeConsultantAssigned       = "consultant_assigned"
	TypeSecurityAlert            = "security_alert"
	TypeSystemMaintenance        = "system_maintenance"
)

// Payload is the data a producer supplies for a templated notification. Each
// implementation belongs to exactly one notification type.
type Payload interface {
	NotificationType() string
}

type DocumentUploaded struct {
	DocumentName  string `json:"document_name"`
	UploadedBy    string `json:"uploaded_by,omitempty"`
	ApplicationID string `json:"application_id,omitempty"`
}

type DocumentApproved struct {
	DocumentName   string `json:"document_name"`
	ConsultantName string `json:"consultant_name,omitempty"`
	DocumentID     string `json:"document_id,omitempty"`
}

type DocumentRejected struct {
	DocumentName   string `json:"document_name"`
	ConsultantName string `json:"consultant_name,omitempty"`
	Reason         string `json:"reason,omitempty"`
	DocumentID     string `json:"document_id,omitempty"`
}

type PaymentReceived struct {
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency,omitempty"`
	InvoiceNumber string  `json:"invoice_number,omitempty"`
}

type PaymentFailed struct {
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency,omitempty"`
	InvoiceNumber string  `json:"invoice_number,omitempty"`
	Reason        string  `json:"reason,omitempty"`
}

type MessageReceived struct {
	SenderName     string `json:"sender_name"`
	Preview        string `json:"preview,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
}

type DeadlineReminder struct {
	TaskName      string `json:"task_name"`
	DueDate       string `json:"due_date,omitempty"`
	DaysLeft      int    `json:"days_left"`
	ApplicationID string `json:"application_id,omitempty"`
}

type ApplicationStatusChanged struct {
	ApplicationID string `json:"application_id"`
	ServiceName   string `json:"service_name,omitempty"`
	Status        string `json:"status"`
}

type ConsultantAssigned struct {
	ConsultantName string `json:"consultant_name"`
	ServiceName    string `json:"service_name,omitempty"`
	ApplicationID  string `json:"application_id,omitempty"`
}

type SecurityAlert struct {
	Event     string `json:"event"`
	IPAddress string `json:"ip_address,omitempty"`
	Location  string `json:"location,omitempty"`
}

type SystemMaintenance struct {
	StartsAt string `json:"starts_at"`
	Duration string `json:"duration,omitempty"`
}

func (DocumentUploaded) NotificationType() string         { return TypeDocumentUploaded }
func (DocumentApproved) NotificationType() string         { return TypeDocumentApproved }
func (DocumentRejected) NotificationType() string         { return TypeDocumentRejected }
func (PaymentReceived) NotificationType() string          { return TypePaymentReceived }
func (PaymentFailed) NotificationType() string            { return TypePaymentFailed }
func (MessageReceived) NotificationType() string          { return TypeMessageReceived }
func (DeadlineReminder) NotificationType() string         { return TypeDeadlineReminder }
func (ApplicationStatusChanged) NotificationType() string { return TypeApplicationStatusChanged }
func (ConsultantAssigned) NotificationType() string       { return TypeConsultantAssigned }
func (SecurityAlert) NotificationType() string            { return TypeSecurityAlert }
func (SystemMaintenance) NotificationType() string        { return TypeSystemMaintenance }

// PayloadData flattens a payload into the JSON-shaped map stored alongside the
// notification row and sent over the wire.
func PayloadData(p Payload) (map[string]any, error) {
	if p == nil {
		return nil, nil
	}
	out := make(map[string]any)
	if err := decodeMap(p, &out); err != nil {
		return nil, fmt.Errorf("notifications: flatten %s payload: %w", p.NotificationType(), err)
	}
	return out, nil
}

func decodeMap(input, output any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           output,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}
