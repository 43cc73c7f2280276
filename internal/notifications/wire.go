package notifications

import "strings"

// EnhancedRequest is the wire form of a template-rendered create. The HTTP
// API and the ingest topic both carry it.
type EnhancedRequest struct {
	UserID       string         `json:"user_id" validate:"required,notblank"`
	Type         string         `json:"type" validate:"required,notblank"`
	Data         map[string]any `json:"data"`
	SendEmail    bool           `json:"send_email"`
	Priority     Priority       `json:"priority,omitempty" validate:"omitempty,oneof=low normal high urgent"`
	RelatedTable string         `json:"related_table,omitempty"`
	RelatedID    string         `json:"related_id,omitempty"`
}

// NewEnhancedRequest flattens a typed payload into its wire form.
func NewEnhancedRequest(userID string, payload Payload, opts EnhancedOptions) (EnhancedRequest, error) {
	if payload == nil {
		return EnhancedRequest{}, ErrPayloadMismatch
	}
	data, err := PayloadData(payload)
	if err != nil {
		return EnhancedRequest{}, err
	}
	return EnhancedRequest{
		UserID:       userID,
		Type:         payload.NotificationType(),
		Data:         data,
		SendEmail:    opts.SendEmail,
		Priority:     opts.Priority,
		RelatedTable: opts.RelatedTable,
		RelatedID:    opts.RelatedID,
	}, nil
}

// Payload decodes the request data into the typed payload registered for its type.
func (r EnhancedRequest) Payload(registry *Registry) (Payload, error) {
	if registry == nil {
		registry = DefaultRegistry()
	}
	return registry.Decode(strings.TrimSpace(r.Type), r.Data)
}

// Options returns the persistence options carried by the request.
func (r EnhancedRequest) Options() EnhancedOptions {
	return EnhancedOptions{
		SendEmail:    r.SendEmail,
		Priority:     r.Priority,
		RelatedTable: r.RelatedTable,
		RelatedID:    r.RelatedID,
	}
}
