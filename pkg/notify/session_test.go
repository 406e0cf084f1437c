package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type harness struct {
	s       *Session
	dialer  *fakeDialer
	fetcher *fakeFetcher
	clock   *fakeClock
	rec     *recorder
}

func newHarness(t *testing.T, mutate func(*Options)) *harness {
	t.Helper()
	h := &harness{
		dialer:  &fakeDialer{},
		fetcher: &fakeFetcher{},
		clock:   newFakeClock(t),
		rec:     &recorder{},
	}
	opts := DefaultOptions("ws://brushup.test/ws/notifications/")
	opts.Token = "tok"
	opts.Clock = h.clock
	if mutate != nil {
		mutate(&opts)
	}
	h.s = NewSession(opts, h.dialer, h.fetcher, h.rec)
	t.Cleanup(func() { _ = h.s.Close() })
	return h
}

func (h *harness) waitFor(t *testing.T, cond func(v View) bool, msg string) {
	t.Helper()
	require.Eventually(t, func() bool { return cond(h.s.State()) }, waitFor, tick, msg)
	assert.LessOrEqual(t, h.clock.Active(), 1, "more than one timer armed")
}

func (h *harness) waitMode(t *testing.T, mode Mode) {
	t.Helper()
	h.waitFor(t, func(v View) bool { return v.Mode == mode }, "mode "+mode.String())
}

func (h *harness) connect(t *testing.T) *fakeConn {
	t.Helper()
	h.s.Connect()
	h.waitMode(t, ModeConnected)
	conn := h.dialer.Conn(-1)
	require.NotNil(t, conn)
	return conn
}

func TestSessionConnect(t *testing.T) {
	h := newHarness(t, nil)

	v := h.s.State()
	assert.Equal(t, StatusDisconnected, v.Status)
	assert.Equal(t, ModeIdle, v.Mode)

	conn := h.connect(t)

	assert.Equal(t, []string{TypeGetNotifications}, conn.SentTypes())
	assert.Equal(t, "ws://brushup.test/ws/notifications/?token=tok", h.dialer.endpoints[0])
	assert.Equal(t, "Bearer tok", h.dialer.headers[0].Get("Authorization"))

	h.s.Connect()
	h.s.Foreground()
	assert.Equal(t, 1, h.dialer.Dials())
	assert.Equal(t, 0, h.clock.Active())
}

func TestSessionDispatchesInArrivalOrder(t *testing.T) {
	h := newHarness(t, nil)
	conn := h.connect(t)

	conn.Deliver(map[string]any{"type": "connection_established", "message": "hi", "user_id": 4})
	require.Eventually(t, func() bool { return len(conn.Sent()) == 2 }, waitFor, tick)

	conn.Deliver(map[string]any{
		"type": "notifications_list",
		"notifications": []map[string]any{
			{"id": 2, "title": "Second", "read": false},
			{"id": 1, "title": "First", "read": true},
		},
	})
	conn.Deliver(map[string]any{"type": "unread_count", "count": 1})
	conn.Deliver(map[string]any{
		"type":         "new_notification",
		"notification": map[string]any{"id": 7, "title": "New critique", "read": false},
	})

	h.waitFor(t, func(v View) bool { return v.UnreadCount == 2 && len(v.Notifications) == 3 }, "state after new_notification")

	v := h.s.State()
	assert.Equal(t, ID(7), v.Notifications[0].ID)
	require.Len(t, h.rec.Toasts(), 1)
	assert.Equal(t, "New critique", h.rec.Toasts()[0].Title)
}

func TestSessionMalformedMessageKeepsChannel(t *testing.T) {
	h := newHarness(t, nil)
	conn := h.connect(t)

	conn.DeliverRaw([]byte(`{not json`))
	conn.Deliver(map[string]any{"type": "new_notification"})
	conn.Deliver(map[string]any{"type": "mystery"})
	conn.Deliver(map[string]any{"type": "error", "message": "bad"})
	conn.Deliver(map[string]any{"type": "unread_count", "count": 3})

	h.waitFor(t, func(v View) bool { return v.UnreadCount == 3 }, "unread count applied")
	assert.Equal(t, StatusConnected, h.s.State().Status)
	assert.Equal(t, 1, h.dialer.Dials())
}

func TestSessionReceiveThenMarkRead(t *testing.T) {
	h := newHarness(t, nil)
	conn := h.connect(t)

	conn.Deliver(map[string]any{
		"type":         "new_notification",
		"notification": map[string]any{"id": 7, "title": "Reaction", "read": false},
	})
	h.waitFor(t, func(v View) bool { return v.UnreadCount == 1 }, "unread after new_notification")
	require.Len(t, h.rec.Toasts(), 1)

	require.True(t, h.s.MarkRead(7))
	sent := conn.Sent()
	last := sent[len(sent)-1]
	assert.Equal(t, TypeMarkRead, last.Type)
	require.NotNil(t, last.NotificationID)
	assert.Equal(t, ID(7), *last.NotificationID)

	// No local change until the server confirms.
	assert.Equal(t, 1, h.s.State().UnreadCount)

	conn.Deliver(map[string]any{"type": "notification_marked_read", "notification_id": 7})
	h.waitFor(t, func(v View) bool { return v.UnreadCount == 0 }, "unread after confirmation")
	assert.True(t, h.s.State().Notifications[0].Read)
}

func TestSessionMarkAllReadRoundTrip(t *testing.T) {
	h := newHarness(t, nil)
	conn := h.connect(t)

	conn.Deliver(map[string]any{
		"type": "notifications_list",
		"notifications": []map[string]any{
			{"id": 3, "read": false}, {"id": 2, "read": false}, {"id": 1, "read": false},
		},
	})
	conn.Deliver(map[string]any{"type": "unread_count", "count": 3})
	h.waitFor(t, func(v View) bool { return v.UnreadCount == 3 }, "snapshot applied")

	require.True(t, h.s.MarkAllRead())
	assert.Equal(t, TypeMarkAllRead, conn.Sent()[len(conn.Sent())-1].Type)

	conn.Deliver(map[string]any{"type": "all_notifications_marked_read"})
	h.waitFor(t, func(v View) bool { return v.UnreadCount == 0 }, "all read")
	for _, n := range h.s.State().Notifications {
		assert.True(t, n.Read)
	}
}

func TestSessionCommandsRequireConnection(t *testing.T) {
	h := newHarness(t, nil)

	assert.False(t, h.s.RequestSnapshot())
	assert.False(t, h.s.MarkRead(1))
	assert.False(t, h.s.MarkAllRead())
	assert.ErrorIs(t, h.s.Send(GetNotificationsCommand()), ErrNotConnected)

	conn := h.connect(t)
	assert.True(t, h.s.RequestSnapshot())
	assert.Equal(t, []string{TypeGetNotifications, TypeGetNotifications}, conn.SentTypes())
}

func TestSessionBackoffThenPolling(t *testing.T) {
	h := newHarness(t, nil)
	conn := h.connect(t)

	h.dialer.SetRefuse(true)
	conn.ServerClose(1011)

	h.waitFor(t, func(v View) bool { return v.Mode == ModeReconnecting && v.ReconnectAttempts == 1 }, "first attempt scheduled")
	assert.Equal(t, 0, h.fetcher.Calls())

	for attempt := 1; attempt <= 5; attempt++ {
		h.clock.Advance(time.Duration(attempt) * 5 * time.Second)
		if attempt < 5 {
			next := attempt + 1
			h.waitFor(t, func(v View) bool {
				return v.Mode == ModeReconnecting && v.ReconnectAttempts == next
			}, "next attempt scheduled")
		}
	}
	h.waitMode(t, ModePolling)
	require.Eventually(t, func() bool { return h.fetcher.Calls() == 1 }, waitFor, tick)

	assert.Equal(t, []time.Duration{
		5 * time.Second,
		10 * time.Second,
		15 * time.Second,
		20 * time.Second,
		25 * time.Second,
		30 * time.Second,
	}, h.clock.Scheduled())
	assert.Equal(t, 6, h.dialer.Dials())

	h.clock.Advance(30 * time.Second)
	require.Eventually(t, func() bool { return h.fetcher.Calls() == 2 }, waitFor, tick)
	assert.Equal(t, 6, h.dialer.Dials(), "no sixth reconnect attempt")
	assert.Equal(t, 1, h.clock.Active())
}

func TestSessionErrorStartsPollingUntilReconnect(t *testing.T) {
	h := newHarness(t, nil)
	h.fetcher.Set([]Notification{{ID: 2}, {ID: 1, Read: true}})
	conn := h.connect(t)

	conn.Drop()

	require.Eventually(t, func() bool { return h.fetcher.Calls() == 1 }, waitFor, tick)
	h.waitFor(t, func(v View) bool {
		return v.Mode == ModeReconnecting && len(v.Notifications) == 2
	}, "polled snapshot applied while reconnect pending")
	assert.Equal(t, 1, h.s.State().UnreadCount)

	h.clock.Advance(5 * time.Second)
	h.waitMode(t, ModeConnected)

	v := h.s.State()
	assert.False(t, v.Polling)
	assert.Equal(t, 0, v.ReconnectAttempts)
	assert.Equal(t, 0, h.clock.Active())
	assert.Equal(t, 2, h.dialer.Dials())
}

func TestSessionCleanServerCloseFallsBackToPolling(t *testing.T) {
	h := newHarness(t, nil)
	conn := h.connect(t)

	conn.ServerClose(CloseNormal)

	h.waitMode(t, ModePolling)
	require.Eventually(t, func() bool { return h.fetcher.Calls() == 1 }, waitFor, tick)

	h.clock.Advance(30 * time.Second)
	require.Eventually(t, func() bool { return h.fetcher.Calls() == 2 }, waitFor, tick)
	assert.Equal(t, 1, h.dialer.Dials())
	assert.Equal(t, 1, h.clock.Active())
}

func TestSessionDisconnectCancelsTimers(t *testing.T) {
	h := newHarness(t, nil)
	conn := h.connect(t)

	h.s.Disconnect()
	assert.Equal(t, CloseNormal, conn.CloseCode())

	v := h.s.State()
	assert.Equal(t, StatusDisconnected, v.Status)
	assert.Equal(t, ModeIdle, v.Mode)
	assert.Equal(t, 0, h.clock.Active())

	h.clock.Advance(time.Minute)
	assert.Equal(t, 1, h.dialer.Dials())
	assert.Equal(t, 0, h.fetcher.Calls())
}

func TestSessionDisconnectDuringReconnect(t *testing.T) {
	h := newHarness(t, nil)
	conn := h.connect(t)

	conn.ServerClose(1001)
	h.waitMode(t, ModeReconnecting)

	h.s.Disconnect()
	assert.Equal(t, ModeIdle, h.s.State().Mode)
	assert.Equal(t, 0, h.clock.Active())

	h.clock.Advance(time.Minute)
	assert.Equal(t, 1, h.dialer.Dials())
}

func TestSessionDialFailureStartsPollingOnce(t *testing.T) {
	h := newHarness(t, nil)
	h.dialer.SetRefuse(true)

	h.s.Connect()
	h.waitMode(t, ModePolling)
	require.Eventually(t, func() bool { return h.fetcher.Calls() == 1 }, waitFor, tick)

	h.s.Foreground()
	require.Eventually(t, func() bool { return h.dialer.Dials() == 2 }, waitFor, tick)
	h.waitMode(t, ModePolling)
	assert.Equal(t, 1, h.fetcher.Calls(), "polling restarted while already active")
	assert.Equal(t, 1, h.clock.Active())

	h.dialer.SetRefuse(false)
	h.s.Foreground()
	h.waitMode(t, ModeConnected)
	assert.False(t, h.s.State().Polling)
	assert.Equal(t, 0, h.clock.Active())
}

func TestSessionForegroundDuringReconnect(t *testing.T) {
	h := newHarness(t, nil)
	conn := h.connect(t)

	h.dialer.SetRefuse(true)
	conn.ServerClose(1011)
	h.waitFor(t, func(v View) bool { return v.ReconnectAttempts == 1 }, "first attempt scheduled")

	h.s.Foreground()
	h.waitFor(t, func(v View) bool {
		return v.Mode == ModeReconnecting && v.ReconnectAttempts == 2
	}, "failed foreground dial advances backoff")
	assert.Equal(t, 1, h.clock.Active())
}

func TestSessionPollingDisabled(t *testing.T) {
	h := newHarness(t, func(o *Options) {
		o.PollingFallback = false
		o.MaxReconnectAttempts = -1
	})
	conn := h.connect(t)

	conn.ServerClose(1011)
	h.waitFor(t, func(v View) bool { return v.Status == StatusDisconnected }, "closed")
	assert.Equal(t, ModeIdle, h.s.State().Mode)
	assert.Equal(t, 0, h.clock.Active())

	h.dialer.SetRefuse(true)
	h.s.Connect()
	require.Eventually(t, func() bool { return h.dialer.Dials() == 2 }, waitFor, tick)
	h.waitFor(t, func(v View) bool { return v.Status == StatusDisconnected }, "dial failed")
	assert.Equal(t, ModeIdle, h.s.State().Mode)
	assert.Equal(t, 0, h.fetcher.Calls())
}

func TestSessionReconnect(t *testing.T) {
	h := newHarness(t, nil)
	first := h.connect(t)

	h.s.Reconnect()
	assert.Equal(t, CloseNormal, first.CloseCode())
	assert.Equal(t, ModeReconnecting, h.s.State().Mode)
	assert.Equal(t, time.Second, h.clock.Scheduled()[len(h.clock.Scheduled())-1])

	h.clock.Advance(time.Second)
	h.waitMode(t, ModeConnected)
	assert.Equal(t, 2, h.dialer.Dials())
	assert.NotSame(t, first, h.dialer.Conn(-1))
}

func TestSessionToastsDisabled(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.Toasts = false })
	conn := h.connect(t)

	conn.Deliver(map[string]any{"type": "system_announcement", "message": "Gallery night"})
	conn.Deliver(map[string]any{
		"type":         "new_notification",
		"notification": map[string]any{"id": 1, "read": false},
	})
	h.waitFor(t, func(v View) bool { return v.UnreadCount == 1 }, "notification applied")

	assert.Empty(t, h.rec.Toasts())
	assert.Equal(t, []string{"Gallery night"}, h.rec.Announcements())
}

func TestSessionSubscribe(t *testing.T) {
	h := newHarness(t, nil)
	extra := &recorder{}
	unsubscribe := h.s.Subscribe(extra)

	conn := h.connect(t)
	assert.NotEmpty(t, extra.Views())

	unsubscribe()
	conn.Deliver(map[string]any{
		"type":         "new_notification",
		"notification": map[string]any{"id": 1, "read": false},
	})
	h.waitFor(t, func(v View) bool { return v.UnreadCount == 1 }, "notification applied")
	assert.Len(t, h.rec.Toasts(), 1)
	assert.Empty(t, extra.Toasts())
}

func TestSessionClose(t *testing.T) {
	h := newHarness(t, nil)
	conn := h.connect(t)

	require.NoError(t, h.s.Close())
	require.NoError(t, h.s.Close())
	assert.Equal(t, CloseNormal, conn.CloseCode())

	assert.False(t, h.s.MarkAllRead())
	assert.ErrorIs(t, h.s.Send(GetNotificationsCommand()), ErrSessionClosed)
	assert.Equal(t, StatusDisconnected, h.s.State().Status)
}

func TestSessionWithoutFetcherDisablesPolling(t *testing.T) {
	clock := newFakeClock(t)
	dialer := &fakeDialer{refuse: true}
	opts := DefaultOptions("ws://brushup.test/ws/notifications/")
	opts.Clock = clock
	s := NewSession(opts, dialer, nil)
	defer s.Close()

	s.Connect()
	require.Eventually(t, func() bool { return s.State().Status == StatusDisconnected && dialer.Dials() == 1 }, waitFor, tick)
	assert.Equal(t, ModeIdle, s.State().Mode)
	assert.Equal(t, 0, clock.Active())
}
