package notify

// Status is the state of the live channel.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Mode is what the session supervisor is currently doing. Reconnecting and
// Polling each own the single timer slot, so they never overlap.
type Mode int

const (
	ModeIdle Mode = iota
	ModeConnecting
	ModeConnected
	ModeReconnecting
	ModePolling
)

func (m Mode) String() string {
	switch m {
	case ModeConnecting:
		return "connecting"
	case ModeConnected:
		return "connected"
	case ModeReconnecting:
		return "reconnecting"
	case ModePolling:
		return "polling"
	default:
		return "idle"
	}
}

// View is an immutable snapshot of a session handed to observers.
type View struct {
	Status            Status
	Mode              Mode
	Notifications     []Notification
	UnreadCount       int
	ReconnectAttempts int
	// Polling is true while the poll timer is armed, including while a
	// connect attempt is in flight from polling mode.
	Polling bool
}

// Observer receives presentation updates. Methods are called from the
// session goroutine and must not call back into the session synchronously.
type Observer interface {
	StateChanged(v View)
	Toast(n Notification)
	Announcement(message string)
}

// ObserverFuncs adapts plain functions to Observer; nil fields are skipped.
type ObserverFuncs struct {
	OnState        func(View)
	OnToast        func(Notification)
	OnAnnouncement func(string)
}

func (o ObserverFuncs) StateChanged(v View) {
	if o.OnState != nil {
		o.OnState(v)
	}
}

func (o ObserverFuncs) Toast(n Notification) {
	if o.OnToast != nil {
		o.OnToast(n)
	}
}

func (o ObserverFuncs) Announcement(message string) {
	if o.OnAnnouncement != nil {
		o.OnAnnouncement(message)
	}
}
