package notify

import (
	"io"
	"time"

	"github.com/charmbracelet/log"
)

// Options configures a Session.
type Options struct {
	// Endpoint is the ws:// or wss:// URL of the notifications channel.
	Endpoint string
	// Token authenticates the channel. It is sent as a bearer header and as
	// the token query parameter.
	Token string

	// MaxReconnectAttempts caps automatic reconnection. Zero selects the
	// default; a negative value disables reconnection.
	MaxReconnectAttempts int
	ReconnectInterval    time.Duration
	ReconnectJitter      time.Duration

	PollingFallback bool
	PollInterval    time.Duration

	// Toasts controls whether Observer.Toast is called for new notifications.
	Toasts bool

	ConnectTimeout time.Duration
	// ReconnectDelay is the pause used by Session.Reconnect.
	ReconnectDelay time.Duration

	Logger *log.Logger
	Clock  Clock
}

// Defaults used when the corresponding Options field is zero.
const (
	DefaultMaxReconnectAttempts = 5
	DefaultReconnectInterval    = 5 * time.Second
	DefaultPollInterval         = 30 * time.Second
	DefaultConnectTimeout       = 15 * time.Second
	DefaultReconnectDelay       = time.Second
)

// DefaultOptions returns options with polling fallback and toasts enabled.
func DefaultOptions(endpoint string) Options {
	return Options{
		Endpoint:             endpoint,
		MaxReconnectAttempts: DefaultMaxReconnectAttempts,
		ReconnectInterval:    DefaultReconnectInterval,
		PollingFallback:      true,
		PollInterval:         DefaultPollInterval,
		Toasts:               true,
		ConnectTimeout:       DefaultConnectTimeout,
		ReconnectDelay:       DefaultReconnectDelay,
	}
}

func (o Options) withDefaults() Options {
	switch {
	case o.MaxReconnectAttempts == 0:
		o.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	case o.MaxReconnectAttempts < 0:
		o.MaxReconnectAttempts = 0
	}
	if o.ReconnectInterval <= 0 {
		o.ReconnectInterval = DefaultReconnectInterval
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = DefaultReconnectDelay
	}
	if o.Logger == nil {
		o.Logger = log.New(io.Discard)
	}
	if o.Clock == nil {
		o.Clock = SystemClock()
	}
	return o
}

func (o Options) backoff() Backoff {
	return Backoff{
		Interval:    o.ReconnectInterval,
		MaxAttempts: o.MaxReconnectAttempts,
		Jitter:      o.ReconnectJitter,
	}
}
