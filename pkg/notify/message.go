package notify

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Inbound message types sent by the server.
const (
	TypeConnectionEstablished      = "connection_established"
	TypeNewNotification            = "new_notification"
	TypeUnreadCount                = "unread_count"
	TypeNotificationsList          = "notifications_list"
	TypeNotificationMarkedRead     = "notification_marked_read"
	TypeAllNotificationsMarkedRead = "all_notifications_marked_read"
	TypeError                      = "error"
	TypeSystemAnnouncement         = "system_announcement"
)

// Outbound command types sent by the client.
const (
	TypeGetNotifications = "get_notifications"
	TypeMarkRead         = "mark_read"
	TypeMarkAllRead      = "mark_all_read"
)

// ErrMalformedMessage wraps every decode failure.
var ErrMalformedMessage = errors.New("malformed message")

// Inbound is the closed set of messages the server can send. The concrete
// types below are the only implementations; Unknown carries anything else.
type Inbound interface {
	inboundType() string
}

// ConnectionEstablished is the greeting sent after the server accepts the
// channel.
type ConnectionEstablished struct {
	UserID  ID
	Message string
}

// NewNotification delivers one freshly created record.
type NewNotification struct {
	Notification Notification
}

// UnreadCount replaces the unread counter with the server's value.
type UnreadCount struct {
	Count int
}

// NotificationsList is a full snapshot, most recent first.
type NotificationsList struct {
	Notifications []Notification
}

// NotificationMarkedRead confirms that one record was marked read.
type NotificationMarkedRead struct {
	NotificationID ID
}

// AllNotificationsMarkedRead confirms that every record was marked read.
type AllNotificationsMarkedRead struct{}

// ServerError is an error report from the server. It never changes state.
type ServerError struct {
	Message string
}

// SystemAnnouncement is a broadcast message from staff.
type SystemAnnouncement struct {
	Message string
}

// Unknown is any message whose type is not recognised.
type Unknown struct {
	Type string
}

func (ConnectionEstablished) inboundType() string      { return TypeConnectionEstablished }
func (NewNotification) inboundType() string            { return TypeNewNotification }
func (UnreadCount) inboundType() string                { return TypeUnreadCount }
func (NotificationsList) inboundType() string          { return TypeNotificationsList }
func (NotificationMarkedRead) inboundType() string     { return TypeNotificationMarkedRead }
func (AllNotificationsMarkedRead) inboundType() string { return TypeAllNotificationsMarkedRead }
func (ServerError) inboundType() string                { return TypeError }
func (SystemAnnouncement) inboundType() string         { return TypeSystemAnnouncement }
func (u Unknown) inboundType() string                  { return u.Type }

// envelope holds every field any inbound message can carry.
type envelope struct {
	Type           string         `json:"type"`
	Message        string         `json:"message"`
	UserID         ID             `json:"user_id"`
	Notification   *Notification  `json:"notification"`
	Count          *int           `json:"count"`
	Notifications  []Notification `json:"notifications"`
	NotificationID ID             `json:"notification_id"`
}

// DecodeInbound parses one text frame into its message variant.
func DecodeInbound(data []byte) (Inbound, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	switch env.Type {
	case TypeConnectionEstablished:
		return ConnectionEstablished{UserID: env.UserID, Message: env.Message}, nil
	case TypeNewNotification:
		if env.Notification == nil {
			return nil, fmt.Errorf("%w: %s without notification", ErrMalformedMessage, env.Type)
		}
		return NewNotification{Notification: *env.Notification}, nil
	case TypeUnreadCount:
		if env.Count == nil {
			return nil, fmt.Errorf("%w: %s without count", ErrMalformedMessage, env.Type)
		}
		return UnreadCount{Count: *env.Count}, nil
	case TypeNotificationsList:
		list := env.Notifications
		if list == nil {
			list = []Notification{}
		}
		return NotificationsList{Notifications: list}, nil
	case TypeNotificationMarkedRead:
		return NotificationMarkedRead{NotificationID: env.NotificationID}, nil
	case TypeAllNotificationsMarkedRead:
		return AllNotificationsMarkedRead{}, nil
	case TypeError:
		return ServerError{Message: env.Message}, nil
	case TypeSystemAnnouncement:
		return SystemAnnouncement{Message: env.Message}, nil
	default:
		return Unknown{Type: env.Type}, nil
	}
}

// Command is an outbound message.
type Command struct {
	Type           string `json:"type"`
	NotificationID *ID    `json:"notification_id,omitempty"`
}

// GetNotificationsCommand asks the server to resend the full snapshot.
func GetNotificationsCommand() Command {
	return Command{Type: TypeGetNotifications}
}

// MarkReadCommand asks the server to mark one record read.
func MarkReadCommand(id ID) Command {
	return Command{Type: TypeMarkRead, NotificationID: &id}
}

// MarkAllReadCommand asks the server to mark every record read.
func MarkAllReadCommand() Command {
	return Command{Type: TypeMarkAllRead}
}

// Encode returns the wire form of the command.
func (c Command) Encode() ([]byte, error) {
	return json.Marshal(c)
}
