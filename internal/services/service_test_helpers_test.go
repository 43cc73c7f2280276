package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/consultportal/portal/internal/database/testutil"
	"github.com/consultportal/portal/internal/notifications"
	"github.com/consultportal/portal/internal/realtime"
)

type recordingDispatcher struct {
	mu       sync.Mutex
	requests []notifications.EmailRequest
	err      error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, req notifications.EmailRequest) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requests = append(d.requests, req)
	return d.err
}

func (d *recordingDispatcher) calls() []notifications.EmailRequest {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]notifications.EmailRequest(nil), d.requests...)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(now time.Time) *testClock { return &testClock{now: now} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type serviceFixture struct {
	db         *gorm.DB
	hub        *realtime.Hub
	prefs      *PreferenceService
	dispatcher *recordingDispatcher
	clock      *testClock
	svc        *NotificationService
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	hub := realtime.NewHub()
	t.Cleanup(hub.Close)

	clock := newTestClock(time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC))
	prefs, err := NewPreferenceService(db, WithPreferenceClock(clock.Now))
	require.NoError(t, err)

	dispatcher := &recordingDispatcher{}
	svc, err := NewNotificationService(db, hub,
		WithPreferences(prefs),
		WithEmailDispatcher(dispatcher),
		WithNotificationClock(clock.Now),
	)
	require.NoError(t, err)

	return &serviceFixture{db: db, hub: hub, prefs: prefs, dispatcher: dispatcher, clock: clock, svc: svc}
}

func receiveEvent(t *testing.T, ch <-chan realtime.Message) notifications.Event {
	t.Helper()
	select {
	case msg, ok := <-ch:
		require.True(t, ok, "subscription closed")
		evt, ok := realtime.EventFromMessage(msg)
		require.True(t, ok)
		return evt
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for realtime event")
		return notifications.Event{}
	}
}
