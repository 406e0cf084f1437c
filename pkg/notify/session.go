package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

var (
	// ErrNotConnected is returned when a command is sent without an open
	// channel. Callers may fall back to the HTTP API.
	ErrNotConnected = errors.New("notification channel not connected")
	// ErrSessionClosed is returned after Close.
	ErrSessionClosed = errors.New("notification session closed")
)

const eventBuffer = 64

type timerKind int

const (
	timerNone timerKind = iota
	timerReconnect
	timerPoll
)

// Session supervises one live notification channel for an authenticated
// user. It prefers the channel, reconnects with linear backoff when it drops,
// and falls back to HTTP polling when the channel is unavailable.
//
// All state is owned by a single goroutine. Transport events, timer fires and
// method calls are queued to it and handled one at a time in arrival order.
type Session struct {
	opts    Options
	backoff Backoff
	dialer  Dialer
	fetcher Fetcher
	log     *log.Logger

	events    chan func()
	quit      chan struct{}
	stopped   chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once

	// Owned by run.
	observers   []observerEntry
	nextObsID   int
	state       State
	status      Status
	attempts    int
	intentional bool

	conn       Conn
	connGen    uint64
	dialGen    uint64
	dialCancel context.CancelFunc

	// A single slot holds either the reconnect timer or the poll timer.
	timerKind timerKind
	timer     Timer
	timerSeq  uint64
	pollGen   uint64
}

type observerEntry struct {
	id  int
	obs Observer
}

// NewSession starts a session in the Disconnected state. Call Connect to open
// the channel and Close to tear the session down. fetcher may be nil, which
// disables polling.
func NewSession(opts Options, dialer Dialer, fetcher Fetcher, observers ...Observer) *Session {
	opts = opts.withDefaults()
	if fetcher == nil && opts.PollingFallback {
		opts.Logger.Warn("Polling fallback disabled: no fetcher configured")
		opts.PollingFallback = false
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		opts:    opts,
		backoff: opts.backoff(),
		dialer:  dialer,
		fetcher: fetcher,
		log:     opts.Logger,
		events:  make(chan func(), eventBuffer),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
		state:   State{Notifications: []Notification{}},
	}
	for _, obs := range observers {
		s.nextObsID++
		s.observers = append(s.observers, observerEntry{id: s.nextObsID, obs: obs})
	}

	go s.run()
	return s
}

// Connect opens the live channel unless it is already connecting or open.
func (s *Session) Connect() {
	s.do(s.connect)
}

// Disconnect closes the channel intentionally and cancels every pending
// timer, so neither reconnection nor polling follows.
func (s *Session) Disconnect() {
	s.do(s.disconnect)
}

// Foreground reconnects when the user returns after the channel dropped
// while the client was in the background.
func (s *Session) Foreground() {
	s.do(func() {
		if s.status != StatusConnected {
			s.connect()
		}
	})
}

// Reconnect drops the channel and opens a new one after ReconnectDelay.
func (s *Session) Reconnect() {
	s.do(func() {
		s.disconnect()
		s.armTimer(timerReconnect, s.opts.ReconnectDelay, s.connect)
		s.emit()
	})
}

// RequestSnapshot asks the server to resend every notification. It reports
// false when the channel is not connected.
func (s *Session) RequestSnapshot() bool {
	return s.Send(GetNotificationsCommand()) == nil
}

// MarkRead asks the server to mark one notification read. Local state changes
// only when the server confirms with notification_marked_read.
func (s *Session) MarkRead(id ID) bool {
	return s.Send(MarkReadCommand(id)) == nil
}

// MarkAllRead asks the server to mark every notification read. Local state
// changes only when the server confirms.
func (s *Session) MarkAllRead() bool {
	return s.Send(MarkAllReadCommand()) == nil
}

// Send writes a command to the channel.
func (s *Session) Send(cmd Command) error {
	var err error
	if !s.do(func() { err = s.send(cmd) }) {
		return ErrSessionClosed
	}
	return err
}

// State returns the current view of the session.
func (s *Session) State() View {
	v := View{Status: StatusDisconnected, Mode: ModeIdle}
	s.do(func() { v = s.view() })
	return v
}

// Subscribe registers an observer and returns a function that removes it.
func (s *Session) Subscribe(obs Observer) func() {
	var id int
	s.do(func() {
		s.nextObsID++
		id = s.nextObsID
		s.observers = append(s.observers, observerEntry{id: id, obs: obs})
	})
	return func() {
		s.do(func() {
			for i, e := range s.observers {
				if e.id == id {
					s.observers = append(s.observers[:i:i], s.observers[i+1:]...)
					return
				}
			}
		})
	}
}

// Close disconnects and stops the session. It waits for every goroutine the
// session started.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.do(s.disconnect)
		close(s.quit)
		<-s.stopped
		s.cancel()
		s.wg.Wait()
	})
	return nil
}

func (s *Session) run() {
	defer close(s.stopped)
	for {
		select {
		case fn := <-s.events:
			fn()
		case <-s.quit:
			return
		}
	}
}

// post queues fn for the session goroutine. It reports false once the
// session is closing.
func (s *Session) post(fn func()) bool {
	select {
	case s.events <- fn:
		return true
	case <-s.quit:
		return false
	}
}

// do runs fn on the session goroutine and waits for it.
func (s *Session) do(fn func()) bool {
	done := make(chan struct{})
	if !s.post(func() { fn(); close(done) }) {
		return false
	}
	select {
	case <-done:
		return true
	case <-s.stopped:
		select {
		case <-done:
			return true
		default:
			return false
		}
	}
}

func (s *Session) connect() {
	if s.status == StatusConnecting || s.status == StatusConnected {
		return
	}
	if s.timerKind == timerReconnect {
		s.stopTimer()
	}

	s.intentional = false
	s.status = StatusConnecting
	s.dialGen++
	gen := s.dialGen

	ctx, cancel := context.WithTimeout(s.ctx, s.opts.ConnectTimeout)
	s.dialCancel = cancel

	header := http.Header{}
	if s.opts.Token != "" {
		header.Set("Authorization", "Bearer "+s.opts.Token)
	}
	endpoint := withToken(s.opts.Endpoint, s.opts.Token)

	s.log.Debug("Connecting notification channel", "endpoint", s.opts.Endpoint, "attempt", s.attempts)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		conn, err := s.dialer.Dial(ctx, endpoint, header)
		if !s.post(func() { s.handleDial(gen, conn, err) }) && conn != nil {
			_ = conn.Close(CloseNormal, "session closed")
		}
	}()

	s.emit()
}

func (s *Session) handleDial(gen uint64, conn Conn, err error) {
	if gen != s.dialGen {
		if conn != nil {
			_ = conn.Close(CloseNormal, "superseded")
		}
		return
	}
	if s.dialCancel != nil {
		s.dialCancel()
		s.dialCancel = nil
	}

	if err != nil {
		s.status = StatusDisconnected
		s.log.Warn("Notification channel unavailable", "error", err, "attempt", s.attempts)
		if s.attempts > 0 {
			// A failed scheduled attempt counts as another unclean close.
			s.fallBack(CloseAbnormal)
		} else if s.opts.PollingFallback {
			s.startPolling()
		}
		s.emit()
		return
	}

	s.conn = conn
	s.connGen++
	s.status = StatusConnected
	s.attempts = 0
	s.stopTimer()
	s.pollGen++

	s.log.Info("Notification channel connected", "endpoint", s.opts.Endpoint)

	s.wg.Add(1)
	go s.readPump(s.connGen, conn)

	if err := s.send(GetNotificationsCommand()); err != nil {
		s.log.Warn("Failed to request notifications", "error", err)
	}
	s.emit()
}

func (s *Session) readPump(gen uint64, conn Conn) {
	defer s.wg.Done()
	for {
		data, err := conn.Read()
		if err != nil {
			code, reason := closeStatus(err)
			if code == CloseAbnormal {
				if !s.post(func() { s.handleError(gen, err) }) {
					return
				}
			}
			s.post(func() { s.handleClose(gen, code, reason) })
			return
		}
		if !s.post(func() { s.handleMessage(gen, data) }) {
			return
		}
	}
}

func (s *Session) live(gen uint64) bool {
	return s.conn != nil && gen == s.connGen
}

func (s *Session) handleMessage(gen uint64, data []byte) {
	if !s.live(gen) {
		return
	}

	msg, err := DecodeInbound(data)
	if err != nil {
		s.log.Error("Dropping notification message", "error", err)
		return
	}

	st, eff := Apply(s.state, msg)
	s.state = st

	if m, ok := msg.(ConnectionEstablished); ok {
		s.log.Debug("Notification channel established", "user_id", m.UserID)
	}
	if eff.RequestSnapshot {
		if err := s.send(GetNotificationsCommand()); err != nil {
			s.log.Warn("Failed to request notifications", "error", err)
		}
	}
	if eff.ServerError != "" {
		s.log.Error("Notification server error", "message", eff.ServerError)
	}
	if eff.Ignored != "" {
		s.log.Debug("Ignoring notification message", "type", eff.Ignored)
	}

	if eff.Changed {
		s.emit()
	}
	if eff.Toast != nil && s.opts.Toasts {
		for _, e := range s.observers {
			e.obs.Toast(*eff.Toast)
		}
	}
	if eff.Announcement != "" {
		for _, e := range s.observers {
			e.obs.Announcement(eff.Announcement)
		}
	}
}

func (s *Session) handleError(gen uint64, err error) {
	if !s.live(gen) {
		return
	}
	s.log.Error("Notification channel error", "error", err)
	if s.opts.PollingFallback {
		s.startPolling()
		s.emit()
	}
}

func (s *Session) handleClose(gen uint64, code int, reason string) {
	if !s.live(gen) {
		return
	}
	_ = s.conn.Close(code, reason)
	s.conn = nil
	s.status = StatusDisconnected

	s.log.Info("Notification channel closed", "code", code, "reason", reason)

	if !s.intentional {
		s.fallBack(code)
	}
	s.emit()
}

// fallBack decides what follows an unintentional close: another scheduled
// attempt while the budget lasts, then polling.
func (s *Session) fallBack(code int) {
	if code != CloseNormal && s.backoff.CanRetry(s.attempts) {
		s.scheduleReconnect()
		return
	}
	if s.opts.PollingFallback {
		s.startPolling()
	}
}

func (s *Session) scheduleReconnect() {
	s.attempts++
	delay := s.backoff.Delay(s.attempts)
	s.log.Info("Scheduling notification reconnect",
		"attempt", s.attempts, "max", s.backoff.MaxAttempts, "delay", delay)
	s.armTimer(timerReconnect, delay, s.connect)
}

func (s *Session) startPolling() {
	// A pending reconnect keeps the slot; polling follows if it fails.
	if s.timerKind == timerPoll || s.timerKind == timerReconnect {
		return
	}
	s.pollGen++
	s.log.Info("Starting notification polling fallback", "interval", s.opts.PollInterval)
	s.armPoll()
	s.fetch()
}

func (s *Session) armPoll() {
	s.armTimer(timerPoll, s.opts.PollInterval, func() {
		s.armPoll()
		s.fetch()
	})
}

func (s *Session) fetch() {
	gen := s.pollGen
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		items, err := s.fetcher.Fetch(s.ctx)
		s.post(func() { s.handleFetch(gen, items, err) })
	}()
}

func (s *Session) handleFetch(gen uint64, items []Notification, err error) {
	if gen != s.pollGen {
		s.log.Debug("Discarding stale poll result")
		return
	}
	if err != nil {
		s.log.Warn("Polling notifications failed", "error", err)
		return
	}
	s.state = ApplySnapshot(items)
	s.emit()
}

func (s *Session) disconnect() {
	s.intentional = true

	if s.timerKind == timerPoll {
		s.log.Info("Stopped notification polling")
	}
	s.stopTimer()
	s.pollGen++

	s.dialGen++
	if s.dialCancel != nil {
		s.dialCancel()
		s.dialCancel = nil
	}

	if s.conn != nil {
		if err := s.conn.Close(CloseNormal, "Manual disconnect"); err != nil {
			s.log.Debug("Error closing notification channel", "error", err)
		}
		s.conn = nil
		s.connGen++
	}

	s.status = StatusDisconnected
	s.emit()
}

func (s *Session) send(cmd Command) error {
	if s.status != StatusConnected || s.conn == nil {
		return ErrNotConnected
	}
	data, err := cmd.Encode()
	if err != nil {
		return fmt.Errorf("encode %s: %w", cmd.Type, err)
	}
	if err := s.conn.Write(data); err != nil {
		return fmt.Errorf("send %s: %w", cmd.Type, err)
	}
	return nil
}

func (s *Session) armTimer(kind timerKind, d time.Duration, fire func()) {
	s.stopTimer()
	s.timerSeq++
	seq := s.timerSeq
	s.timerKind = kind
	s.timer = s.opts.Clock.AfterFunc(d, func() {
		s.post(func() {
			if s.timerSeq != seq || s.timerKind != kind {
				return
			}
			s.timerKind = timerNone
			s.timer = nil
			fire()
		})
	})
}

func (s *Session) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = nil
	s.timerKind = timerNone
	s.timerSeq++
}

func (s *Session) view() View {
	mode := ModeIdle
	switch {
	case s.status == StatusConnected:
		mode = ModeConnected
	case s.status == StatusConnecting:
		mode = ModeConnecting
	case s.timerKind == timerReconnect:
		mode = ModeReconnecting
	case s.timerKind == timerPoll:
		mode = ModePolling
	}
	return View{
		Status:            s.status,
		Mode:              mode,
		Notifications:     cloneNotifications(s.state.Notifications),
		UnreadCount:       s.state.UnreadCount,
		ReconnectAttempts: s.attempts,
		Polling:           s.timerKind == timerPoll,
	}
}

func (s *Session) emit() {
	if len(s.observers) == 0 {
		return
	}
	v := s.view()
	for _, e := range s.observers {
		e.obs.StateChanged(v)
	}
}
