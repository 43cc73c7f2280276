package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/consultportal/portal/internal/notifications"
	"github.com/consultportal/portal/internal/realtime"
	"github.com/consultportal/portal/pkg/logger"
)

// EventResync is emitted after the feed reconnects so consumers refetch
// whatever changed while the connection was down.
const EventResync = "notification.resync"

// FeedOption customises a Feed.
type FeedOption func(*Feed)

// WithDialer overrides the websocket dialer.
func WithDialer(dialer *websocket.Dialer) FeedOption {
	return func(f *Feed) {
		if dialer != nil {
			f.dialer = dialer
		}
	}
}

// WithBackOff overrides the reconnect policy factory. Each reconnect cycle
// starts from a fresh policy.
func WithBackOff(factory func() backoff.BackOff) FeedOption {
	return func(f *Feed) {
		if factory != nil {
			f.newBackOff = factory
		}
	}
}

// WithFeedLogger overrides the logger.
func WithFeedLogger(log *zap.Logger) FeedOption {
	return func(f *Feed) {
		if log != nil {
			f.log = log
		}
	}
}

// Feed implements notifications.Feed over the portal websocket endpoint.
type Feed struct {
	endpoint   *url.URL
	token      string
	dialer     *websocket.Dialer
	newBackOff func() backoff.BackOff
	log        *zap.Logger
}

// NewFeed constructs a Feed for the server at baseURL. http and https base
// URLs are mapped to ws and wss.
func NewFeed(baseURL, token string, opts ...FeedOption) (*Feed, error) {
	parsed, err := parseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	endpoint := parsed.JoinPath("/ws")
	switch strings.ToLower(endpoint.Scheme) {
	case "http":
		endpoint.Scheme = "ws"
	case "https":
		endpoint.Scheme = "wss"
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("client: unsupported feed scheme %q", endpoint.Scheme)
	}
	query := endpoint.Query()
	query.Set("streams", realtime.StreamNotifications)
	endpoint.RawQuery = query.Encode()

	f := &Feed{
		endpoint: endpoint,
		token:    strings.TrimSpace(token),
		dialer:   websocket.DefaultDialer,
		newBackOff: func() backoff.BackOff {
			policy := backoff.NewExponentialBackOff()
			policy.InitialInterval = 500 * time.Millisecond
			policy.MaxInterval = 30 * time.Second
			policy.MaxElapsedTime = 0
			return policy
		},
		log: logger.WithModule("client.feed"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Subscribe dials the websocket and forwards notification events for userID
// until cancel is called or ctx ends. The first dial is synchronous; later
// disconnects are retried with backoff and followed by an EventResync.
func (f *Feed) Subscribe(ctx context.Context, userID string) (<-chan notifications.Event, func(), error) {
	if ctx == nil {
		ctx = context.Background()
	}
	conn, err := f.dial(ctx)
	if err != nil {
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			return nil, nil, permanent.Err
		}
		return nil, nil, err
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &subscription{
		feed:   f,
		userID: userID,
		events: make(chan notifications.Event, 64),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	sub.setConn(conn)

	go sub.run(subCtx, conn)
	return sub.events, sub.stop, nil
}

func (f *Feed) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if f.token != "" {
		header.Set("Authorization", "Bearer "+f.token)
	}
	conn, resp, err := f.dialer.DialContext(ctx, f.endpoint.String(), header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, backoff.Permanent(fmt.Errorf("client: feed rejected with status %d: %w", resp.StatusCode, err))
		}
		return nil, fmt.Errorf("client: dial feed: %w", err)
	}
	return conn, nil
}

type subscription struct {
	feed   *Feed
	userID string
	events chan notifications.Event
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once

	mu      sync.Mutex
	conn    *websocket.Conn
	stopped bool
}

// setConn installs conn as the live connection. It reports false, closing
// conn, when the subscription has already been shut down.
func (s *subscription) setConn(conn *websocket.Conn) bool {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		closeSocket(conn)
		return false
	}
	s.conn = conn
	s.mu.Unlock()
	return true
}

func (s *subscription) closeConn() {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()
	closeSocket(conn)
}

func (s *subscription) shutdown() {
	s.mu.Lock()
	s.stopped = true
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()
	closeSocket(conn)
}

// stop cancels the subscription and waits for the reader to exit.
func (s *subscription) stop() {
	s.once.Do(func() {
		s.cancel()
		s.shutdown()
	})
	<-s.done
}

func closeSocket(conn *websocket.Conn) {
	if conn == nil {
		return
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	_ = conn.Close()
}

func (s *subscription) run(ctx context.Context, conn *websocket.Conn) {
	defer close(s.done)
	defer close(s.events)
	defer s.shutdown()
	defer s.cancel()

	go func() {
		<-ctx.Done()
		s.shutdown()
	}()

	for {
		err := s.read(ctx, conn)
		if ctx.Err() != nil {
			return
		}
		s.feed.log.Warn("notification feed disconnected", zap.String("user_id", s.userID), zap.Error(err))

		next, err := s.reconnect(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.feed.log.Error("notification feed gave up reconnecting", zap.String("user_id", s.userID), zap.Error(err))
			}
			return
		}
		conn = next
		if !s.emit(ctx, notifications.Event{Name: EventResync, UserID: s.userID}) {
			return
		}
	}
}

func (s *subscription) read(ctx context.Context, conn *websocket.Conn) error {
	for {
		var message realtime.Message
		if err := conn.ReadJSON(&message); err != nil {
			return err
		}
		evt, ok := realtime.EventFromMessage(message)
		if !ok || evt.Name == "" {
			continue
		}
		if evt.UserID != "" && s.userID != "" && evt.UserID != s.userID {
			continue
		}
		if !s.emit(ctx, evt) {
			return ctx.Err()
		}
	}
}

func (s *subscription) emit(ctx context.Context, evt notifications.Event) bool {
	select {
	case s.events <- evt:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *subscription) reconnect(ctx context.Context) (*websocket.Conn, error) {
	s.closeConn()

	var conn *websocket.Conn
	operation := func() error {
		next, err := s.feed.dial(ctx)
		if err != nil {
			return err
		}
		conn = next
		return nil
	}
	notify := func(err error, wait time.Duration) {
		s.feed.log.Debug("notification feed reconnect failed", zap.Duration("retry_in", wait), zap.Error(err))
	}

	policy := backoff.WithContext(s.feed.newBackOff(), ctx)
	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		return nil, err
	}
	if !s.setConn(conn) {
		return nil, context.Canceled
	}
	return conn, nil
}

var _ notifications.Feed = (*Feed)(nil)
