package notifications

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/consultportal/portal/pkg/logger"
)

// State is a point-in-time copy of a Store.
type State struct {
	Items       []Notification `json:"items"`
	UnreadCount int            `json:"unread_count"`
	Err         string         `json:"error,omitempty"`
	Loading     bool           `json:"loading"`
}

// StoreOption customises a Store.
type StoreOption func(*Store)

// WithPageSize overrides the fetch page size.
func WithPageSize(size int) StoreOption {
	return func(s *Store) {
		if size > 0 {
			s.pageSize = size
		}
	}
}

// WithStoreClock overrides the clock used for optimistic read timestamps.
func WithStoreClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithFeedBackOff sets the retry policy used to resubscribe after the feed
// closes unexpectedly.
func WithFeedBackOff(policy backoff.BackOff) StoreOption {
	return func(s *Store) {
		if policy != nil {
			s.backOff = policy
		}
	}
}

// ErrFeedClosed is recorded in the state while the store resubscribes after
// the feed ended.
var ErrFeedClosed = errors.New("notifications: live feed disconnected")

// WithStoreLogger overrides the logger used for swallowed feed errors and
// failed mutations.
func WithStoreLogger(log *zap.Logger) StoreOption {
	return func(s *Store) {
		if log != nil {
			s.log = log
		}
	}
}

// Store is a per-user cache of notifications kept in sync with a Backend and
// refreshed whenever the Feed reports a change. Fetches are last-fetch-wins:
// results of a fetch that was overtaken by a newer one, or that finished after
// Close, are dropped.
type Store struct {
	userID   string
	backend  Backend
	feed     Feed
	pageSize int
	now      func() time.Time
	log      *zap.Logger

	mu          sync.Mutex
	items       []Notification
	unread      int
	errMsg      string
	loading     bool
	generation  uint64
	closed      bool
	started     bool
	unsubscribe func()
	cancelRun   context.CancelFunc
	backOff     backoff.BackOff
	listeners   map[int]func(State)
	nextID      int
	done        chan struct{}
	wg          sync.WaitGroup
}

// NewStore constructs a Store for userID.
func NewStore(userID string, backend Backend, feed Feed, opts ...StoreOption) *Store {
	s := &Store{
		userID:    strings.TrimSpace(userID),
		backend:   backend,
		feed:      feed,
		pageSize:  DefaultPageSize,
		now:       time.Now,
		log:       logger.WithModule("notifications.store"),
		listeners: make(map[int]func(State)),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UserID returns the user this store belongs to.
func (s *Store) UserID() string {
	return s.userID
}

// Start performs the initial fetch and subscribes to the feed. Feed events
// trigger a full refetch; events arriving while a fetch is in flight collapse
// into one follow-up fetch. If the feed ends before Close, the store records
// the error and resubscribes.
func (s *Store) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.New("notifications: store closed")
	}
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	runCtx, cancelRun := context.WithCancel(ctx)
	s.cancelRun = cancelRun
	s.mu.Unlock()

	s.Fetch(runCtx)

	if s.feed == nil || s.userID == "" {
		return nil
	}

	events, cancel, err := s.feed.Subscribe(runCtx, s.userID)
	if err != nil {
		return err
	}
	if !s.setUnsubscribe(cancel) {
		return nil
	}

	pending := make(chan struct{}, 1)
	s.wg.Add(2)
	go s.refetchLoop(runCtx, pending)
	go s.watch(runCtx, events, pending)
	return nil
}

// setUnsubscribe records the active feed cancel func. It reports false, after
// cancelling, when the store closed in the meantime.
func (s *Store) setUnsubscribe(cancel func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		cancel()
		return false
	}
	s.unsubscribe = cancel
	return true
}

func (s *Store) refetchLoop(ctx context.Context, pending <-chan struct{}) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-pending:
			s.Fetch(ctx)
		}
	}
}

func (s *Store) watch(ctx context.Context, events <-chan Event, pending chan<- struct{}) {
	defer s.wg.Done()
	for {
		if !s.drain(ctx, events, pending) {
			return
		}
		select {
		case <-s.done:
			return
		default:
		}

		s.log.Warn("notification feed closed; resubscribing", zap.String("user_id", s.userID))
		s.mutate(func() { s.errMsg = ErrFeedClosed.Error() })

		if events = s.resubscribe(ctx); events == nil {
			return
		}
		// Changes may have been missed while disconnected.
		requestRefetch(pending)
	}
}

// drain forwards events as refetch requests. It returns true when the feed
// channel closed and false when the store is shutting down.
func (s *Store) drain(ctx context.Context, events <-chan Event, pending chan<- struct{}) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case <-s.done:
			return false
		case evt, ok := <-events:
			if !ok {
				return true
			}
			if evt.UserID != "" && evt.UserID != s.userID {
				continue
			}
			requestRefetch(pending)
		}
	}
}

func (s *Store) resubscribe(ctx context.Context) <-chan Event {
	policy := s.feedBackOff()
	policy.Reset()
	for {
		events, cancel, err := s.feed.Subscribe(ctx, s.userID)
		if err == nil {
			if !s.setUnsubscribe(cancel) {
				return nil
			}
			return events
		}
		s.log.Warn("notification feed resubscribe failed", zap.String("user_id", s.userID), zap.Error(err))

		wait := policy.NextBackOff()
		if wait == backoff.Stop {
			return nil
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-s.done:
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

func (s *Store) feedBackOff() backoff.BackOff {
	if s.backOff != nil {
		return s.backOff
	}
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 250 * time.Millisecond
	policy.MaxInterval = 30 * time.Second
	policy.MaxElapsedTime = 0
	return policy
}

func requestRefetch(pending chan<- struct{}) {
	select {
	case pending <- struct{}{}:
	default:
	}
}

// Close unsubscribes from the feed, cancels in-flight fetches and waits for
// the watcher to exit. It is safe to call more than once but must not be
// called from an OnChange listener.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	cancel := s.unsubscribe
	s.unsubscribe = nil
	cancelRun := s.cancelRun
	close(s.done)
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if cancelRun != nil {
		cancelRun()
	}
	s.wg.Wait()
}

// Fetch reloads the list from the backend. Errors are recorded in the state
// rather than returned; the list degrades to empty.
func (s *Store) Fetch(ctx context.Context) State {
	if s.userID == "" {
		return s.Snapshot()
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return s.Snapshot()
	}
	s.generation++
	gen := s.generation
	s.loading = true
	s.mu.Unlock()
	s.notify()

	items, err := s.backend.List(ctx, s.userID, s.pageSize)

	s.mu.Lock()
	if s.closed || gen != s.generation {
		s.mu.Unlock()
		return s.Snapshot()
	}
	s.loading = false
	if err != nil {
		s.log.Warn("fetch notifications failed", zap.String("user_id", s.userID), zap.Error(err))
		s.items = nil
		s.errMsg = err.Error()
	} else {
		active := Active(items)
		SortForDisplay(active)
		s.items = active
		s.errMsg = ""
	}
	s.unread = CountUnread(s.items)
	s.mu.Unlock()

	s.notify()
	return s.Snapshot()
}

// MarkAsRead marks one notification read on the backend, then locally.
func (s *Store) MarkAsRead(ctx context.Context, id string) error {
	updated, err := s.backend.MarkRead(ctx, s.userID, id)
	if err != nil {
		s.log.Warn("mark notification read failed", zap.String("notification_id", id), zap.Error(err))
		return err
	}

	readAt := updated.ReadAt
	s.mutate(func() {
		for i := range s.items {
			if s.items[i].ID == id {
				s.markLocal(&s.items[i], readAt)
			}
		}
	})
	return nil
}

// BulkMarkAsRead marks the listed notifications read.
func (s *Store) BulkMarkAsRead(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.backend.MarkManyRead(ctx, s.userID, ids); err != nil {
		s.log.Warn("bulk mark notifications read failed", zap.Int("count", len(ids)), zap.Error(err))
		return err
	}

	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	s.mutate(func() {
		for i := range s.items {
			if _, ok := wanted[s.items[i].ID]; ok {
				s.markLocal(&s.items[i], nil)
			}
		}
	})
	return nil
}

// MarkAllAsRead marks every unread notification read.
func (s *Store) MarkAllAsRead(ctx context.Context) error {
	if _, err := s.backend.MarkAllRead(ctx, s.userID); err != nil {
		s.log.Warn("mark all notifications read failed", zap.Error(err))
		return err
	}
	s.mutate(func() {
		for i := range s.items {
			s.markLocal(&s.items[i], nil)
		}
	})
	return nil
}

// Dismiss hides a notification and drops it from the local list.
func (s *Store) Dismiss(ctx context.Context, id string) error {
	if err := s.backend.Dismiss(ctx, s.userID, id); err != nil {
		s.log.Warn("dismiss notification failed", zap.String("notification_id", id), zap.Error(err))
		return err
	}
	s.mutate(func() {
		kept := s.items[:0]
		for _, item := range s.items {
			if item.ID != id {
				kept = append(kept, item)
			}
		}
		s.items = kept
	})
	return nil
}

// CreateNotification inserts a raw notification. An empty UserID targets the
// store's own user.
func (s *Store) CreateNotification(ctx context.Context, input CreateInput) (Notification, error) {
	if strings.TrimSpace(input.UserID) == "" {
		input.UserID = s.userID
	}
	created, err := s.backend.Create(ctx, input)
	if err != nil {
		s.log.Warn("create notification failed", zap.String("type", input.Type), zap.Error(err))
		return Notification{}, err
	}
	if created.UserID == s.userID {
		s.Fetch(ctx)
	}
	return created, nil
}

// CreateEnhancedNotification renders payload through the template registry
// for the store's user and optionally requests the email side effect.
func (s *Store) CreateEnhancedNotification(ctx context.Context, payload Payload, sendEmail bool) (EnhancedResult, error) {
	result, err := s.backend.CreateEnhanced(ctx, s.userID, payload, EnhancedOptions{SendEmail: sendEmail})
	if err != nil {
		fields := []zap.Field{zap.Error(err)}
		if payload != nil {
			fields = append(fields, zap.String("type", payload.NotificationType()))
		}
		s.log.Warn("create enhanced notification failed", fields...)
		return EnhancedResult{}, err
	}
	s.Fetch(ctx)
	return result, nil
}

// CleanupOldNotifications removes read notifications older than daysOld and
// refreshes the list.
func (s *Store) CleanupOldNotifications(ctx context.Context, daysOld int) (int64, error) {
	removed, err := s.backend.CleanupOld(ctx, s.userID, daysOld)
	if err != nil {
		s.log.Warn("cleanup notifications failed", zap.Int("days_old", daysOld), zap.Error(err))
		return 0, err
	}
	s.Fetch(ctx)
	return removed, nil
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Items returns a copy of the current list.
func (s *Store) Items() []Notification {
	return s.Snapshot().Items
}

// UnreadCount returns the number of unread notifications in the local list.
func (s *Store) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread
}

// Err returns the last fetch error message, or an empty string.
func (s *Store) Err() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errMsg
}

// OnChange registers fn to run after every state change. The returned func
// removes the listener.
func (s *Store) OnChange(fn func(State)) func() {
	if fn == nil {
		return func() {}
	}
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Store) mutate(fn func()) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	fn()
	s.unread = CountUnread(s.items)
	s.mu.Unlock()
	s.notify()
}

func (s *Store) markLocal(item *Notification, readAt *time.Time) {
	if item.IsRead {
		return
	}
	item.IsRead = true
	if item.ReadAt == nil {
		if readAt == nil {
			now := s.now().UTC()
			readAt = &now
		}
		ts := *readAt
		item.ReadAt = &ts
	}
}

func (s *Store) snapshotLocked() State {
	return State{
		Items:       append([]Notification(nil), s.items...),
		UnreadCount: s.unread,
		Err:         s.errMsg,
		Loading:     s.loading,
	}
}

func (s *Store) notify() {
	s.mu.Lock()
	state := s.snapshotLocked()
	listeners := make([]func(State), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(state)
	}
}
