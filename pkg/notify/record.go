package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// ID identifies a notification. The server sends numeric ids, but ids echoed
// back from mark_read requests may arrive as strings, so both are accepted.
type ID int64

// UnmarshalJSON accepts a JSON number, a numeric string, or null.
func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = 0
		return nil
	}

	var n int64
	if err := json.Unmarshal(b, &n); err == nil {
		*id = ID(n)
		return nil
	}

	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("notification id must be a number or numeric string")
	}
	if s == "" {
		*id = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid notification id %q: %w", s, err)
	}
	*id = ID(n)
	return nil
}

// String returns the decimal form used in URLs.
func (id ID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// ParseID parses a notification id given on the command line.
func ParseID(s string) (ID, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid notification id %q", s)
	}
	return ID(n), nil
}

// Timestamp handles ISO-8601 strings with or without a zone, and Unix
// millisecond integers.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
}

// UnmarshalJSON implements json.Unmarshaler.
func (ts *Timestamp) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		ts.Time = time.Time{}
		return nil
	}

	var ms int64
	if err := json.Unmarshal(b, &ms); err == nil {
		ts.Time = time.UnixMilli(ms).UTC()
		return nil
	}

	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("timestamp must be Unix milliseconds or an ISO-8601 string")
	}
	if s == "" {
		ts.Time = time.Time{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			ts.Time = t
			return nil
		}
	}
	return fmt.Errorf("unrecognised timestamp %q", s)
}

// MarshalJSON always writes RFC3339.
func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if ts.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(ts.Time.Format(time.RFC3339Nano))
}

// Notification is a single notification record. Records are created by the
// server and never change except for Read.
type Notification struct {
	ID        ID        `json:"id"`
	Type      string    `json:"type,omitempty"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	URL       string    `json:"url"`
	TargetID  ID        `json:"target_id,omitempty"`
	CreatedAt Timestamp `json:"created_at"`
	Read      bool      `json:"read"`
}

// DisplayTitle returns the title, or a generic one when the server sent none.
func (n Notification) DisplayTitle() string {
	if n.Title == "" {
		return "Notification"
	}
	return n.Title
}

// CountUnread returns the number of records with Read == false.
func CountUnread(notifications []Notification) int {
	count := 0
	for _, n := range notifications {
		if !n.Read {
			count++
		}
	}
	return count
}

func cloneNotifications(in []Notification) []Notification {
	if in == nil {
		return nil
	}
	out := make([]Notification, len(in))
	copy(out, in)
	return out
}
