package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Close codes from RFC 6455 that the session distinguishes.
const (
	CloseNormal   = 1000
	CloseAbnormal = 1006
)

// DefaultPath is the notifications channel path on the server.
const DefaultPath = "/ws/notifications/"

// CloseError reports that the peer closed the channel.
type CloseError struct {
	Code   int
	Reason string
}

func (e *CloseError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("channel closed (%d)", e.Code)
	}
	return fmt.Sprintf("channel closed (%d): %s", e.Code, e.Reason)
}

// Conn is one open live channel. Read is called from a single goroutine;
// Write and Close are called from the session loop.
type Conn interface {
	// Read blocks until the next text frame arrives. When the channel ends it
	// returns a *CloseError, or any other error for an abnormal drop.
	Read() ([]byte, error)
	Write(data []byte) error
	Close(code int, reason string) error
}

// Dialer opens live channels.
type Dialer interface {
	Dial(ctx context.Context, endpoint string, header http.Header) (Conn, error)
}

// Fetcher retrieves the current notifications over HTTP for polling.
type Fetcher interface {
	Fetch(ctx context.Context) ([]Notification, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context) ([]Notification, error)

// Fetch calls f(ctx).
func (f FetcherFunc) Fetch(ctx context.Context) ([]Notification, error) {
	return f(ctx)
}

// closeStatus extracts the close code from a Read error.
func closeStatus(err error) (int, string) {
	var ce *CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Reason
	}
	return CloseAbnormal, err.Error()
}

// EndpointFromOrigin maps a page or API origin onto the live channel URL:
// http becomes ws, https becomes wss, and path replaces the origin's path.
func EndpointFromOrigin(origin, path string) (string, error) {
	u, err := url.Parse(origin)
	if err != nil {
		return "", fmt.Errorf("invalid origin %q: %w", origin, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported origin scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("origin %q has no host", origin)
	}

	if path == "" {
		path = DefaultPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u.Path = path
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

// withToken appends the auth token as a query parameter, the way browsers
// that cannot set headers on upgrade requests authenticate.
func withToken(endpoint, token string) string {
	if token == "" {
		return endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return endpoint
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}
