package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/consultportal/portal/internal/notifications"
)

// localSubscriber is an in-process subscriber backed by a buffered channel.
type localSubscriber struct {
	hub    *Hub
	userID string
	ch     chan Message
	mu     sync.Mutex
	closed bool
}

func (s *localSubscriber) owner() string { return s.userID }

func (s *localSubscriber) deliver(message Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	select {
	case s.ch <- message:
		return true
	default:
		return false
	}
}

func (s *localSubscriber) close() {
	s.hub.unregister(s)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// SubscribeLocal registers an in-process subscriber for userID on streams.
// The channel is closed when cancel is called or the subscriber falls behind.
func (h *Hub) SubscribeLocal(userID string, streams ...string) (<-chan Message, func()) {
	if len(streams) == 0 {
		streams = DefaultStreams
	}
	sub := &localSubscriber{hub: h, userID: userID, ch: make(chan Message, defaultBufferSize)}
	h.subscribe(sub, streams)
	return sub.ch, sub.close
}

// Subscribe implements notifications.Feed for consumers running in the same
// process as the hub.
func (h *Hub) Subscribe(ctx context.Context, userID string) (<-chan notifications.Event, func(), error) {
	messages, cancel := h.SubscribeLocal(userID, StreamNotifications)
	events := make(chan notifications.Event, defaultBufferSize)

	var once sync.Once
	stop := func() { once.Do(cancel) }

	go func() {
		defer close(events)
		for {
			select {
			case <-ctx.Done():
				stop()
				return
			case message, ok := <-messages:
				if !ok {
					return
				}
				evt, ok := EventFromMessage(message)
				if !ok {
					continue
				}
				select {
				case events <- evt:
				case <-ctx.Done():
					stop()
					return
				}
			}
		}
	}()

	return events, stop, nil
}

// NotificationMessage wraps a notification change event for the hub.
func NotificationMessage(evt notifications.Event) Message {
	return Message{
		Stream: StreamNotifications,
		Event:  evt.Name,
		Data:   evt,
	}
}

// EventFromMessage recovers the notification event carried by message. Data
// may be the typed event or its decoded JSON form.
func EventFromMessage(message Message) (notifications.Event, bool) {
	if normalizeStream(message.Stream) != StreamNotifications {
		return notifications.Event{}, false
	}
	switch data := message.Data.(type) {
	case notifications.Event:
		return data, true
	case *notifications.Event:
		if data == nil {
			return notifications.Event{}, false
		}
		return *data, true
	case nil:
		return notifications.Event{Name: message.Event}, true
	default:
		raw, err := json.Marshal(data)
		if err != nil {
			return notifications.Event{}, false
		}
		var evt notifications.Event
		if err := json.Unmarshal(raw, &evt); err != nil {
			return notifications.Event{}, false
		}
		if evt.Name == "" {
			evt.Name = message.Event
		}
		return evt, true
	}
}

var _ notifications.Feed = (*Hub)(nil)
