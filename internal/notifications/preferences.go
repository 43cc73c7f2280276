package notifications

import (
	"strings"
)

// Frequency is a coarse delivery tier chosen by the user.
type Frequency string

const (
	FrequencyAll       Frequency = "all"
	FrequencyImportant Frequency = "important"
	FrequencyMinimal   Frequency = "minimal"
)

// Valid reports whether f is a known tier.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyAll, FrequencyImportant, FrequencyMinimal:
		return true
	}
	return false
}

// QuietHours is a daily suppression window expressed in whole hours. A window
// whose start is after its end wraps past midnight.
type QuietHours struct {
	Enabled bool `json:"enabled"`
	Start   int  `json:"start" validate:"min=0,max=23"`
	End     int  `json:"end" validate:"min=0,max=23"`
}

// Contains reports whether hour falls inside the window. Disabled windows
// contain nothing, and so does a window with equal start and end.
func (q QuietHours) Contains(hour int) bool {
	if !q.Enabled {
		return false
	}
	if q.Start > q.End {
		return hour >= q.Start || hour < q.End
	}
	return q.Start <= hour && hour < q.End
}

// Preferences are the per-user delivery settings.
type Preferences struct {
	EmailEnabled  bool       `json:"email_enabled"`
	PushEnabled   bool       `json:"push_enabled"`
	Frequency     Frequency  `json:"frequency" validate:"omitempty,oneof=all important minimal"`
	QuietHours    QuietHours `json:"quiet_hours"`
	DisabledTypes []string   `json:"disabled_types"`
}

// DefaultPreferences are used until a user saves their own.
func DefaultPreferences() Preferences {
	return Preferences{
		EmailEnabled:  true,
		PushEnabled:   true,
		Frequency:     FrequencyAll,
		QuietHours:    QuietHours{Enabled: false, Start: 22, End: 8},
		DisabledTypes: []string{},
	}
}

// Normalize fixes unknown tiers, out-of-range hours and duplicate types.
func (p Preferences) Normalize() Preferences {
	defaults := DefaultPreferences()
	if !p.Frequency.Valid() {
		p.Frequency = defaults.Frequency
	}
	if p.QuietHours.Start < 0 || p.QuietHours.Start > 23 {
		p.QuietHours.Start = defaults.QuietHours.Start
	}
	if p.QuietHours.End < 0 || p.QuietHours.End > 23 {
		p.QuietHours.End = defaults.QuietHours.End
	}

	seen := make(map[string]struct{}, len(p.DisabledTypes))
	types := make([]string, 0, len(p.DisabledTypes))
	for _, t := range p.DisabledTypes {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		types = append(types, t)
	}
	p.DisabledTypes = types
	return p
}

// TypeDisabled reports whether the user opted out of notificationType.
func (p Preferences) TypeDisabled(notificationType string) bool {
	for _, t := range p.DisabledTypes {
		if t == notificationType {
			return true
		}
	}
	return false
}

// PreferencesPatch carries the top-level fields a partial update supplies.
// Nil fields are left unchanged.
type PreferencesPatch struct {
	EmailEnabled  *bool       `json:"email_enabled,omitempty"`
	PushEnabled   *bool       `json:"push_enabled,omitempty"`
	Frequency     *Frequency  `json:"frequency,omitempty" validate:"omitempty,oneof=all important minimal"`
	QuietHours    *QuietHours `json:"quiet_hours,omitempty"`
	DisabledTypes *[]string   `json:"disabled_types,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (patch PreferencesPatch) Empty() bool {
	return patch.EmailEnabled == nil && patch.PushEnabled == nil && patch.Frequency == nil &&
		patch.QuietHours == nil && patch.DisabledTypes == nil
}

// Merge returns current with the supplied patch fields applied.
func (p Preferences) Merge(patch PreferencesPatch) Preferences {
	if patch.EmailEnabled != nil {
		p.EmailEnabled = *patch.EmailEnabled
	}
	if patch.PushEnabled != nil {
		p.PushEnabled = *patch.PushEnabled
	}
	if patch.Frequency != nil {
		p.Frequency = *patch.Frequency
	}
	if patch.QuietHours != nil {
		p.QuietHours = *patch.QuietHours
	}
	if patch.DisabledTypes != nil {
		p.DisabledTypes = append([]string(nil), (*patch.DisabledTypes)...)
	}
	return p.Normalize()
}
