package realtime

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/consultportal/portal/pkg/logger"
	"github.com/consultportal/portal/pkg/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10

	defaultBufferSize = 64
)

// Message represents a JSON payload delivered to realtime subscribers.
type Message struct {
	Stream string         `json:"stream"`
	Event  string         `json:"event"`
	Data   any            `json:"data,omitempty"`
	Meta   map[string]any `json:"meta,omitempty"`
}

type controlMessage struct {
	Action  string   `json:"action"`
	Streams []string `json:"streams"`
}

// subscriber receives messages for the streams it is registered on.
type subscriber interface {
	owner() string
	deliver(Message) bool
	close()
}

// HubOption customises a Hub.
type HubOption func(*Hub)

// WithAllowedOrigins permits cross-origin websocket upgrades from origins.
// Same-origin and loopback requests are always accepted.
func WithAllowedOrigins(origins ...string) HubOption {
	return func(h *Hub) {
		for _, origin := range origins {
			if host := hostWithoutPort(origin); host != "" {
				h.origins[strings.ToLower(host)] = struct{}{}
			}
		}
	}
}

// Hub fans change events out to websocket clients and in-process subscribers,
// keyed by stream and user.
type Hub struct {
	mu            sync.RWMutex
	subscriptions map[string]map[string]map[subscriber]struct{}
	members       map[subscriber]map[string]struct{}
	origins       map[string]struct{}
	upgrader      websocket.Upgrader
	log           *zap.Logger
}

// NewHub constructs a realtime hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		subscriptions: make(map[string]map[string]map[subscriber]struct{}),
		members:       make(map[subscriber]map[string]struct{}),
		origins:       make(map[string]struct{}),
		log:           logger.WithModule("realtime"),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	originHost := strings.ToLower(hostWithoutPort(origin))
	if originHost == strings.ToLower(hostWithoutPort(r.Host)) || isLoopback(originHost) {
		return true
	}
	_, ok := h.origins[originHost]
	return ok
}

// Serve upgrades the HTTP connection to a WebSocket and registers the client
// with the provided streams. It blocks until the connection closes.
func (h *Hub) Serve(userID string, streams []string, w http.ResponseWriter, r *http.Request) {
	socket, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.String("user_id", userID), zap.Error(err))
		return
	}

	if len(streams) == 0 {
		streams = DefaultStreams
	}

	client := newConnection(h, socket, userID)
	metrics.RealtimeConnections.Inc()
	defer metrics.RealtimeConnections.Dec()

	h.subscribe(client, streams)

	go client.writeLoop()
	client.readLoop()
}

// BroadcastToUser delivers a message to all subscribers for userID on stream.
func (h *Hub) BroadcastToUser(stream, userID string, message Message) {
	stream = normalizeStream(stream)
	if stream == "" || userID == "" {
		return
	}

	h.mu.RLock()
	targets := make([]subscriber, 0, len(h.subscriptions[stream][userID]))
	for sub := range h.subscriptions[stream][userID] {
		targets = append(targets, sub)
	}
	h.mu.RUnlock()

	message.Stream = stream
	h.deliverAll(targets, message)
}

// BroadcastStream delivers a message to every subscriber listening on stream.
func (h *Hub) BroadcastStream(stream string, message Message) {
	stream = normalizeStream(stream)
	if stream == "" {
		return
	}

	h.mu.RLock()
	var targets []subscriber
	for _, subs := range h.subscriptions[stream] {
		for sub := range subs {
			targets = append(targets, sub)
		}
	}
	h.mu.RUnlock()

	message.Stream = stream
	h.deliverAll(targets, message)
}

// SubscriberCount reports how many subscribers userID has on stream.
func (h *Hub) SubscriberCount(stream, userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscriptions[normalizeStream(stream)][userID])
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.RLock()
	subs := make([]subscriber, 0, len(h.members))
	for sub := range h.members {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		sub.close()
	}
}

func (h *Hub) deliverAll(targets []subscriber, message Message) {
	for _, sub := range targets {
		if !sub.deliver(message) {
			h.log.Warn("dropping slow realtime subscriber", zap.String("user_id", sub.owner()), zap.String("stream", message.Stream))
			sub.close()
		}
	}
}

func (h *Hub) subscribe(sub subscriber, streams []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, stream := range uniqueStreams(streams) {
		if h.members[sub] == nil {
			h.members[sub] = make(map[string]struct{})
		}
		if _, exists := h.members[sub][stream]; exists {
			continue
		}
		if h.subscriptions[stream] == nil {
			h.subscriptions[stream] = make(map[string]map[subscriber]struct{})
		}
		if h.subscriptions[stream][sub.owner()] == nil {
			h.subscriptions[stream][sub.owner()] = make(map[subscriber]struct{})
		}

		h.members[sub][stream] = struct{}{}
		h.subscriptions[stream][sub.owner()][sub] = struct{}{}
	}
}

func (h *Hub) unsubscribe(sub subscriber, streams []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, stream := range uniqueStreams(streams) {
		h.removeSubscriptionLocked(sub, stream)
	}
}

func (h *Hub) unregister(sub subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for stream := range h.members[sub] {
		h.removeSubscriptionLocked(sub, stream)
	}
	delete(h.members, sub)
}

func (h *Hub) removeSubscriptionLocked(sub subscriber, stream string) {
	if streams := h.members[sub]; streams != nil {
		delete(streams, stream)
	}

	byUser, ok := h.subscriptions[stream]
	if !ok {
		return
	}
	subs := byUser[sub.owner()]
	delete(subs, sub)
	if len(subs) == 0 {
		delete(byUser, sub.owner())
	}
	if len(byUser) == 0 {
		delete(h.subscriptions, stream)
	}
}

type connection struct {
	hub    *Hub
	socket *websocket.Conn
	userID string
	send   chan Message
	done   chan struct{}
	once   sync.Once
}

func newConnection(hub *Hub, socket *websocket.Conn, userID string) *connection {
	return &connection{
		hub:    hub,
		socket: socket,
		userID: userID,
		send:   make(chan Message, defaultBufferSize),
		done:   make(chan struct{}),
	}
}

func (c *connection) owner() string { return c.userID }

func (c *connection) deliver(message Message) bool {
	select {
	case <-c.done:
		return true
	default:
	}
	select {
	case c.send <- message:
		return true
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *connection) readLoop() {
	defer c.close()

	c.socket.SetReadLimit(maxMessageSize)
	_ = c.socket.SetReadDeadline(time.Now().Add(pongWait))
	c.socket.SetPongHandler(func(string) error {
		return c.socket.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := c.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug("unexpected websocket close", zap.String("user_id", c.userID), zap.Error(err))
			}
			return
		}
		if len(payload) == 0 {
			continue
		}

		var ctrl controlMessage
		if err := json.Unmarshal(payload, &ctrl); err != nil {
			c.hub.log.Debug("invalid control payload", zap.String("user_id", c.userID), zap.Error(err))
			continue
		}

		switch strings.ToLower(strings.TrimSpace(ctrl.Action)) {
		case "subscribe":
			c.hub.subscribe(c, ctrl.Streams)
		case "unsubscribe":
			c.hub.unsubscribe(c, ctrl.Streams)
		case "ping":
			c.deliver(Message{Event: "pong"})
		default:
			c.hub.log.Debug("unsupported control action", zap.String("user_id", c.userID), zap.String("action", ctrl.Action))
		}
	}
}

func (c *connection) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer func() {
		c.close()
		_ = c.socket.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.socket.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case message := <-c.send:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteJSON(message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// close unregisters the connection and signals the write loop, which sends a
// close frame and owns closing the socket.
func (c *connection) close() {
	c.once.Do(func() {
		c.hub.unregister(c)
		close(c.done)
	})
}

func hostWithoutPort(host string) string {
	host = strings.TrimSpace(host)
	if host == "" {
		return ""
	}

	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		parsed, err := http.NewRequest(http.MethodGet, host, nil)
		if err == nil {
			return hostWithoutPort(parsed.URL.Host)
		}
	}

	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

func isLoopback(host string) bool {
	ip := net.ParseIP(host)
	if ip != nil {
		return ip.IsLoopback()
	}
	return strings.EqualFold(host, "localhost")
}

func normalizeStream(stream string) string {
	return strings.ToLower(strings.TrimSpace(stream))
}

func uniqueStreams(streams []string) []string {
	unique := make(map[string]struct{}, len(streams))
	var result []string
	for _, stream := range streams {
		if stream = normalizeStream(stream); stream != "" {
			if _, exists := unique[stream]; !exists {
				unique[stream] = struct{}{}
				result = append(result, stream)
			}
		}
	}
	return result
}
