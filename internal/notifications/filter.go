package notifications

import "strings"

// ReadState narrows a list by read status.
type ReadState string

const (
	ReadStateAll    ReadState = ""
	ReadStateRead   ReadState = "read"
	ReadStateUnread ReadState = "unread"
)

// Filter holds the local predicates used by notification list views.
type Filter struct {
	Search    string
	Type      string
	Priority  Priority
	ReadState ReadState
}

// Match reports whether n passes every configured predicate.
func (f Filter) Match(n Notification) bool {
	if n.Dismissed() {
		return false
	}
	if f.Type != "" && n.Type != f.Type {
		return false
	}
	if f.Priority != "" && n.Priority != f.Priority {
		return false
	}
	switch f.ReadState {
	case ReadStateRead:
		if !n.IsRead {
			return false
		}
	case ReadStateUnread:
		if n.IsRead {
			return false
		}
	}
	if term := strings.ToLower(strings.TrimSpace(f.Search)); term != "" {
		if !strings.Contains(strings.ToLower(n.Title), term) &&
			!strings.Contains(strings.ToLower(n.Message), term) {
			return false
		}
	}
	return true
}

// Apply returns the items matching f, preserving order.
func (f Filter) Apply(items []Notification) []Notification {
	result := make([]Notification, 0, len(items))
	for _, item := range items {
		if f.Match(item) {
			result = append(result, item)
		}
	}
	return result
}

// GroupByType buckets items by notification type, preserving order within each bucket.
func GroupByType(items []Notification) map[string][]Notification {
	groups := make(map[string][]Notification)
	for _, item := range items {
		groups[item.Type] = append(groups[item.Type], item)
	}
	return groups
}

// Recent caps items to the first limit entries.
func Recent(items []Notification, limit int) []Notification {
	if limit <= 0 || len(items) <= limit {
		return append([]Notification(nil), items...)
	}
	return append([]Notification(nil), items[:limit]...)
}
