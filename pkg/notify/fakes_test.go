package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"
	"sync"
	"testing"
	"time"
)

// fakeClock fires timers only when Advance is called. Arming a timer while
// another is live fails the test.
type fakeClock struct {
	tb        testing.TB
	mu        sync.Mutex
	now       time.Time
	timers    []*fakeTimer
	scheduled []time.Duration
}

type fakeTimer struct {
	clock   *fakeClock
	when    time.Time
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock(tb testing.TB) *fakeClock {
	return &fakeClock{tb: tb, now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, live := range c.timers {
		if !live.stopped && !live.fired {
			c.tb.Errorf("timer armed for %v while another is pending until %v", d, live.when.Sub(c.now))
			break
		}
	}
	t := &fakeTimer{clock: c, when: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	c.scheduled = append(c.scheduled, d)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// Advance moves time forward and runs every timer that came due.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.when.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].when.Before(due[j].when) })
	for _, t := range due {
		t.f()
	}
}

// Active counts timers that are armed and not yet fired.
func (c *fakeClock) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

func (c *fakeClock) Scheduled() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.scheduled))
	copy(out, c.scheduled)
	return out
}

var errDialRefused = errors.New("connection refused")

// fakeDialer hands out fakeConns. The first failN dials fail, and every dial
// fails while refuse is set.
type fakeDialer struct {
	mu        sync.Mutex
	failN     int
	refuse    bool
	dials     int
	endpoints []string
	headers   []http.Header
	conns     []*fakeConn
}

func (d *fakeDialer) Dial(ctx context.Context, endpoint string, header http.Header) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	d.endpoints = append(d.endpoints, endpoint)
	d.headers = append(d.headers, header.Clone())
	if d.refuse || d.failN > 0 {
		if d.failN > 0 {
			d.failN--
		}
		return nil, errDialRefused
	}
	c := newFakeConn()
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) SetRefuse(v bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.refuse = v
}

func (d *fakeDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) Conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i < 0 {
		i = len(d.conns) + i
	}
	if i < 0 || i >= len(d.conns) {
		return nil
	}
	return d.conns[i]
}

// fakeConn is an in-memory live channel.
type fakeConn struct {
	inbound chan []byte
	done    chan struct{}
	once    sync.Once

	mu        sync.Mutex
	readErr   error
	sent      []Command
	closeCode int
}

func newFakeConn() *fakeConn {
	return &fakeConn{inbound: make(chan []byte, 16), done: make(chan struct{})}
}

func (c *fakeConn) Read() ([]byte, error) {
	select {
	case b := <-c.inbound:
		return b, nil
	case <-c.done:
		c.mu.Lock()
		defer c.mu.Unlock()
		return nil, c.readErr
	}
}

func (c *fakeConn) Write(data []byte) error {
	select {
	case <-c.done:
		return io.ErrClosedPipe
	default:
	}
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return err
	}
	c.mu.Lock()
	c.sent = append(c.sent, cmd)
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) Close(code int, reason string) error {
	c.mu.Lock()
	if c.closeCode == 0 {
		c.closeCode = code
	}
	c.mu.Unlock()
	c.end(&CloseError{Code: code, Reason: reason})
	return nil
}

func (c *fakeConn) end(err error) {
	c.once.Do(func() {
		c.mu.Lock()
		c.readErr = err
		c.mu.Unlock()
		close(c.done)
	})
}

// Deliver sends a server message encoded as JSON.
func (c *fakeConn) Deliver(msg any) {
	b, err := json.Marshal(msg)
	if err != nil {
		panic(err)
	}
	c.inbound <- b
}

func (c *fakeConn) DeliverRaw(b []byte) {
	c.inbound <- b
}

// ServerClose ends the channel with a close frame.
func (c *fakeConn) ServerClose(code int) {
	c.end(&CloseError{Code: code})
}

// Drop ends the channel without a close frame.
func (c *fakeConn) Drop() {
	c.end(io.ErrUnexpectedEOF)
}

func (c *fakeConn) Sent() []Command {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Command, len(c.sent))
	copy(out, c.sent)
	return out
}

func (c *fakeConn) SentTypes() []string {
	var out []string
	for _, cmd := range c.Sent() {
		out = append(out, cmd.Type)
	}
	return out
}

func (c *fakeConn) CloseCode() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCode
}

// fakeFetcher returns a fixed list and counts calls.
type fakeFetcher struct {
	mu    sync.Mutex
	items []Notification
	err   error
	calls int
}

func (f *fakeFetcher) Fetch(ctx context.Context) ([]Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return cloneNotifications(f.items), f.err
}

func (f *fakeFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeFetcher) Set(items []Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = items
}

// recorder is an Observer that keeps everything it is given.
type recorder struct {
	mu            sync.Mutex
	views         []View
	toasts        []Notification
	announcements []string
}

func (r *recorder) StateChanged(v View) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.views = append(r.views, v)
}

func (r *recorder) Toast(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.toasts = append(r.toasts, n)
}

func (r *recorder) Announcement(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.announcements = append(r.announcements, message)
}

func (r *recorder) Toasts() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.toasts...)
}

func (r *recorder) Announcements() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.announcements...)
}

func (r *recorder) Views() []View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]View(nil), r.views...)
}
