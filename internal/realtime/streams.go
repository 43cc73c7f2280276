package realtime

import (
	"strings"

	"github.com/consultportal/portal/internal/notifications"
)

// Named realtime streams.
const (
	StreamNotifications = notifications.Stream
)

// DefaultStreams are subscribed when a client does not request any.
var DefaultStreams = []string{StreamNotifications}

// ParseStreams normalises stream names given as repeated or comma separated values.
func ParseStreams(values ...string) []string {
	var streams []string
	for _, value := range values {
		streams = append(streams, strings.Split(value, ",")...)
	}
	return uniqueStreams(streams)
}
