package presenter

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/artcritique/brushup/pkg/notify"
)

// Terminal is a notify.Observer that prints toasts and connection changes,
// and keeps the terminal window title in sync with the unread count.
type Terminal struct {
	mu        sync.Mutex
	out       io.Writer
	baseTitle string
	setTitle  bool
	bell      bool
	now       func() time.Time

	seen       bool
	lastStatus notify.Status
	lastMode   notify.Mode
	lastUnread int
}

// Option configures a Terminal.
type Option func(*Terminal)

// WithBaseTitle sets the window title the unread count is prefixed to.
func WithBaseTitle(title string) Option {
	return func(t *Terminal) { t.baseTitle = title }
}

// WithWindowTitle forces window title updates on or off.
func WithWindowTitle(enabled bool) Option {
	return func(t *Terminal) { t.setTitle = enabled }
}

// WithBell rings the terminal bell on each toast.
func WithBell(enabled bool) Option {
	return func(t *Terminal) { t.bell = enabled }
}

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(t *Terminal) { t.now = now }
}

// NewTerminal creates a presenter writing to out. Window title updates are
// enabled when out is a terminal.
func NewTerminal(out io.Writer, opts ...Option) *Terminal {
	t := &Terminal{
		out:       out,
		baseTitle: "BrushUp",
		now:       time.Now,
	}
	if f, ok := out.(*os.File); ok {
		t.setTitle = term.IsTerminal(int(f.Fd()))
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// StateChanged implements notify.Observer.
func (t *Terminal) StateChanged(v notify.View) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.seen || v.Status != t.lastStatus || v.Mode != t.lastMode {
		t.printStatus(v)
	}
	if !t.seen || v.UnreadCount != t.lastUnread {
		t.updateTitle(v.UnreadCount)
	}

	t.seen = true
	t.lastStatus = v.Status
	t.lastMode = v.Mode
	t.lastUnread = v.UnreadCount
}

// Toast implements notify.Observer.
func (t *Terminal) Toast(n notify.Notification) {
	t.mu.Lock()
	defer t.mu.Unlock()

	fmt.Fprintf(t.out, "[%s] 🔔 ", t.now().Format("15:04:05"))
	bold.Fprintln(t.out, ToastTitle(n))
	if n.Message != "" {
		fmt.Fprintf(t.out, "           %s\n", n.Message)
	}
	if n.URL != "" {
		faint.Fprintf(t.out, "           %s\n", n.URL)
	}
	if t.bell {
		fmt.Fprint(t.out, "\a")
	}
}

// Announcement implements notify.Observer.
func (t *Terminal) Announcement(message string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	fmt.Fprintf(t.out, "[%s] 📢 ", t.now().Format("15:04:05"))
	color.New(color.FgYellow, color.Bold).Fprintln(t.out, message)
}

func (t *Terminal) printStatus(v notify.View) {
	badge := StatusBadge(v.Status)
	c := offline
	if v.Status == notify.StatusConnected {
		c = live
	}

	fmt.Fprintf(t.out, "[%s] ", t.now().Format("15:04:05"))
	c.Fprintf(t.out, "● %s", badge)
	switch v.Mode {
	case notify.ModeConnecting:
		faint.Fprint(t.out, " (connecting)")
	case notify.ModeReconnecting:
		faint.Fprintf(t.out, " (reconnect attempt %d)", v.ReconnectAttempts)
	case notify.ModePolling:
		faint.Fprint(t.out, " (polling)")
	}
	if badge := BadgeText(v.UnreadCount); badge != "" {
		fmt.Fprintf(t.out, "  %s unread", badge)
	}
	fmt.Fprintln(t.out)
}

func (t *Terminal) updateTitle(unread int) {
	if !t.setTitle {
		return
	}
	fmt.Fprintf(t.out, "\x1b]0;%s\a", TitleWithCount(t.baseTitle, unread))
}

// ResetTitle restores the base window title.
func (t *Terminal) ResetTitle() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.updateTitle(0)
}
