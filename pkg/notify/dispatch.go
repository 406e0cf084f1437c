package notify

// State is the notification data a session holds: the record list, most
// recent first, and the unread counter.
type State struct {
	Notifications []Notification
	UnreadCount   int
}

// Effect describes what a message asks of the session beyond the state
// transition itself.
type Effect struct {
	// Changed reports whether State differs from the input.
	Changed bool
	// RequestSnapshot asks the session to send get_notifications.
	RequestSnapshot bool
	// Toast is set for new_notification.
	Toast *Notification
	// Announcement is set for system_announcement.
	Announcement string
	// ServerError is set for error messages.
	ServerError string
	// Ignored names the type of an unrecognised message.
	Ignored string
}

// Apply performs the single state transition for msg. The input state is not
// modified; slices in the result are fresh copies whenever they change.
func Apply(st State, msg Inbound) (State, Effect) {
	switch m := msg.(type) {
	case ConnectionEstablished:
		return st, Effect{RequestSnapshot: true}

	case NewNotification:
		list := make([]Notification, 0, len(st.Notifications)+1)
		list = append(list, m.Notification)
		list = append(list, st.Notifications...)
		toast := m.Notification
		return State{Notifications: list, UnreadCount: st.UnreadCount + 1},
			Effect{Changed: true, Toast: &toast}

	case UnreadCount:
		count := m.Count
		if count < 0 {
			count = 0
		}
		return State{Notifications: st.Notifications, UnreadCount: count},
			Effect{Changed: count != st.UnreadCount}

	case NotificationsList:
		return State{Notifications: cloneNotifications(m.Notifications), UnreadCount: st.UnreadCount},
			Effect{Changed: true}

	case NotificationMarkedRead:
		list := cloneNotifications(st.Notifications)
		for i := range list {
			if list[i].ID == m.NotificationID {
				list[i].Read = true
			}
		}
		unread := st.UnreadCount - 1
		if unread < 0 {
			unread = 0
		}
		return State{Notifications: list, UnreadCount: unread}, Effect{Changed: true}

	case AllNotificationsMarkedRead:
		list := cloneNotifications(st.Notifications)
		for i := range list {
			list[i].Read = true
		}
		return State{Notifications: list, UnreadCount: 0}, Effect{Changed: true}

	case ServerError:
		return st, Effect{ServerError: m.Message}

	case SystemAnnouncement:
		return st, Effect{Announcement: m.Message}

	case Unknown:
		return st, Effect{Ignored: m.Type}

	default:
		return st, Effect{Ignored: msg.inboundType()}
	}
}

// ApplySnapshot installs a list fetched over HTTP. The unread count is derived
// from the records because the listing endpoint does not report one.
func ApplySnapshot(notifications []Notification) State {
	list := cloneNotifications(notifications)
	if list == nil {
		list = []Notification{}
	}
	return State{Notifications: list, UnreadCount: CountUnread(list)}
}
