package notifications

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDocumentApprovedRendersExactStrings(t *testing.T) {
	reg := DefaultRegistry()

	content, ok := reg.FormatContentRaw(TypeDocumentApproved, map[string]any{
		"document_name":   "Invoice.pdf",
		"consultant_name": "Jane",
	})
	require.True(t, ok)
	require.Equal(t, "Document Approved", content.Title)
	require.Equal(t, `Your document "Invoice.pdf" has been approved`, content.Message)
	require.Equal(t, PriorityNormal, content.Priority)
	require.Equal(t, "green", content.Color)

	typed, ok := reg.FormatContent(DocumentApproved{DocumentName: "Invoice.pdf", ConsultantName: "Jane"})
	require.True(t, ok)
	require.Equal(t, content, typed)
}

func TestDocumentNamesRenderVerbatim(t *testing.T) {
	reg := DefaultRegistry()

	for _, name := range []string{`Q3 "final".pdf`, `C:\docs\a.pdf`, "résumé.pdf"} {
		content, ok := reg.FormatContent(DocumentApproved{DocumentName: name})
		require.True(t, ok)
		require.Equal(t, `Your document "`+name+`" has been approved`, content.Message)

		rejected, ok := reg.FormatContent(DocumentRejected{DocumentName: name})
		require.True(t, ok)
		require.Equal(t, `Your document "`+name+`" needs attention`, rejected.Message)

		uploaded, ok := reg.FormatContent(DocumentUploaded{DocumentName: name, UploadedBy: "Ana"})
		require.True(t, ok)
		require.Equal(t, `Ana uploaded "`+name+`"`, uploaded.Message)
	}
}

func TestFormatContentUnknownTypeReturnsFalse(t *testing.T) {
	reg := DefaultRegistry()

	require.NotPanics(t, func() {
		_, ok := reg.FormatContentRaw("nonexistent_type", map[string]any{})
		require.False(t, ok)
	})

	_, ok := reg.FormatContentRaw("nonexistent_type", nil)
	require.False(t, ok)

	_, ok = reg.FormatContent(nil)
	require.False(t, ok)
}

func TestFormatContentRawRejectsMismatchedData(t *testing.T) {
	reg := DefaultRegistry()

	_, ok := reg.FormatContentRaw(TypePaymentReceived, map[string]any{"amount": map[string]any{"nested": true}})
	require.False(t, ok)

	content, ok := reg.FormatContentRaw(TypePaymentReceived, map[string]any{"amount": "120.5", "currency": "eur"})
	require.True(t, ok)
	require.Equal(t, "We received your payment of EUR 120.50", content.Message)
}

func TestDecodeUnknownTypeWrapsSentinel(t *testing.T) {
	_, err := DefaultRegistry().Decode("nope", nil)
	require.ErrorIs(t, err, ErrUnknownType)
}

func TestGenerateEmailContent(t *testing.T) {
	reg := DefaultRegistry()

	email, ok := reg.GenerateEmailContent(DocumentRejected{DocumentName: "Passport <scan>.pdf", Reason: "Blurry"})
	require.True(t, ok)
	require.Equal(t, "Action needed: Passport <scan>.pdf", email.Subject)
	require.Contains(t, email.Text, "Reason: Blurry")
	require.Contains(t, email.HTML, "Passport &lt;scan&gt;.pdf")

	_, ok = reg.GenerateEmailContent(MessageReceived{SenderName: "Jane"})
	require.False(t, ok, "message_received has no email renderer")
}

func TestBuiltinTemplatesAllRender(t *testing.T) {
	payloads := []Payload{
		DocumentUploaded{DocumentName: "a.pdf", UploadedBy: "Ann"},
		DocumentApproved{DocumentName: "a.pdf"},
		DocumentRejected{DocumentName: "a.pdf"},
		PaymentReceived{Amount: 10},
		PaymentFailed{Amount: 10, Reason: "declined"},
		MessageReceived{SenderName: "Jane", Preview: "hello"},
		DeadlineReminder{TaskName: "Tax filing", DaysLeft: 3},
		ApplicationStatusChanged{ApplicationID: "app-1", Status: "in_review"},
		ConsultantAssigned{ConsultantName: "Jane"},
		SecurityAlert{Event: "New login", IPAddress: "10.0.0.1"},
		SystemMaintenance{StartsAt: "02:00 UTC", Duration: "1h"},
	}

	reg := DefaultRegistry()
	require.Len(t, reg.Types(), len(payloads))

	for _, p := range payloads {
		content, ok := reg.FormatContent(p)
		require.True(t, ok, p.NotificationType())
		require.NotEmpty(t, content.Title, p.NotificationType())
		require.NotEmpty(t, content.Message, p.NotificationType())
		require.True(t, content.Priority.Valid(), p.NotificationType())
	}
}

func TestTemplateMessagesAndActions(t *testing.T) {
	reg := DefaultRegistry()

	content, ok := reg.FormatContent(DeadlineReminder{TaskName: "Tax filing", DaysLeft: 1, ApplicationID: "app 7"})
	require.True(t, ok)
	require.Equal(t, "Tax filing is due tomorrow", content.Message)
	require.Equal(t, "/dashboard/applications/app%207", content.ActionURL)
	require.Equal(t, PriorityHigh, content.Priority)

	content, ok = reg.FormatContent(ApplicationStatusChanged{Status: "in_review", ServiceName: "Visa"})
	require.True(t, ok)
	require.Equal(t, "Your Visa application is now in review", content.Message)
	require.Equal(t, "/dashboard/applications", content.ActionURL)

	content, ok = reg.FormatContent(SecurityAlert{Event: "New login", IPAddress: "10.0.0.1", Location: "Berlin"})
	require.True(t, ok)
	require.Equal(t, "New login from 10.0.0.1 (Berlin)", content.Message)
	require.Equal(t, PriorityUrgent, content.Priority)
}

func TestNewRegistryRejectsDuplicates(t *testing.T) {
	tpl := Define(TemplateSpec[SystemMaintenance]{
		Type:    TypeSystemMaintenance,
		Title:   func(SystemMaintenance) string { return "t" },
		Message: func(SystemMaintenance) string { return "m" },
	})

	_, err := NewRegistry(tpl, tpl)
	require.Error(t, err)

	_, err = NewRegistry(Template{})
	require.Error(t, err)

	reg, err := NewRegistry(tpl)
	require.NoError(t, err)
	got, ok := reg.Lookup(TypeSystemMaintenance)
	require.True(t, ok)
	require.Equal(t, PriorityNormal, got.Priority)
	require.False(t, got.HasEmail())
}

func TestRegistryTemplateMismatchedPayload(t *testing.T) {
	tpl := Define(TemplateSpec[SystemMaintenance]{
		Type:    TypeDocumentApproved,
		Title:   func(SystemMaintenance) string { return "t" },
		Message: func(SystemMaintenance) string { return "m" },
	})
	reg, err := NewRegistry(tpl)
	require.NoError(t, err)

	_, ok := reg.FormatContent(DocumentApproved{DocumentName: "x"})
	require.False(t, ok)
}

func TestPayloadData(t *testing.T) {
	data, err := PayloadData(DeadlineReminder{TaskName: "Tax filing", DaysLeft: 2})
	require.NoError(t, err)
	require.Equal(t, "Tax filing", data["task_name"])
	require.Equal(t, 2, data["days_left"])
	require.NotContains(t, data, "due_date")

	decoded, err := DefaultRegistry().Decode(TypeDeadlineReminder, data)
	require.NoError(t, err)
	require.Equal(t, DeadlineReminder{TaskName: "Tax filing", DaysLeft: 2}, decoded)

	data, err = PayloadData(nil)
	require.NoError(t, err)
	require.Nil(t, data)
}
