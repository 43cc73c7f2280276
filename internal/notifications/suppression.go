package notifications

import "time"

// Suppression reasons reported by ShouldSend.
const (
	ReasonTypeDisabled = "type_disabled"
	ReasonQuietHours   = "quiet_hours"
	ReasonFrequency    = "frequency"
)

// Decision is the outcome of the delivery predicate.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

func allow() Decision { return Decision{Allowed: true} }

func suppress(reason string) Decision { return Decision{Reason: reason} }

// Subject is the notification being gated.
type Subject struct {
	Type string
	// Priority is the effective priority of the row. Urgent bypasses quiet hours.
	Priority Priority
	// TemplatePriority is the template default checked against the frequency
	// tier. Empty means Priority.
	TemplatePriority Priority
}

// ShouldSend decides whether a producer should attempt delivery of a
// notification whose effective and template priority are the same.
func ShouldSend(prefs Preferences, notificationType string, priority Priority, now time.Time) Decision {
	return Decide(prefs, Subject{Type: notificationType, Priority: priority}, now)
}

// Decide applies the delivery predicate to subject. It only gates side
// channels such as email; rows already written stay visible regardless of the
// outcome.
//
// Urgent notifications are never held back by quiet hours.
func Decide(prefs Preferences, subject Subject, now time.Time) Decision {
	if prefs.TypeDisabled(subject.Type) {
		return suppress(ReasonTypeDisabled)
	}

	if prefs.QuietHours.Contains(now.Hour()) && subject.Priority != PriorityUrgent {
		return suppress(ReasonQuietHours)
	}

	tier := subject.TemplatePriority
	if tier == "" {
		tier = subject.Priority
	}
	switch prefs.Frequency {
	case FrequencyMinimal:
		if tier == PriorityLow {
			return suppress(ReasonFrequency)
		}
	case FrequencyImportant:
		if tier.Rank() < PriorityHigh.Rank() {
			return suppress(ReasonFrequency)
		}
	}

	return allow()
}
