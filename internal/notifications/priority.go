package notifications

import (
	"fmt"
	"strings"
)

// Priority orders notifications for display and gates quiet-hours suppression.
// The total order is low < normal < high < urgent.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

var priorityRanks = map[Priority]int{
	PriorityLow:    0,
	PriorityNormal: 1,
	PriorityHigh:   2,
	PriorityUrgent: 3,
}

// Priorities lists every priority from lowest to highest.
func Priorities() []Priority {
	return []Priority{PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent}
}

// ParsePriority normalises value into a Priority. Empty input yields the fallback.
func ParsePriority(value string, fallback Priority) (Priority, error) {
	trimmed := Priority(strings.ToLower(strings.TrimSpace(value)))
	if trimmed == "" {
		return fallback, nil
	}
	if !trimmed.Valid() {
		return fallback, fmt.Errorf("notifications: unknown priority %q", value)
	}
	return trimmed, nil
}

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	_, ok := priorityRanks[p]
	return ok
}

// Rank returns the sort weight of p. Unknown priorities rank as normal.
func (p Priority) Rank() int {
	if rank, ok := priorityRanks[p]; ok {
		return rank
	}
	return priorityRanks[PriorityNormal]
}

// Above reports whether p sorts strictly before other.
func (p Priority) Above(other Priority) bool {
	return p.Rank() > other.Rank()
}

func (p Priority) String() string {
	return string(p)
}
