package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/artcritique/brushup/pkg/api"
	"github.com/artcritique/brushup/pkg/client"
	"github.com/artcritique/brushup/pkg/config"
	clierrors "github.com/artcritique/brushup/pkg/errors"
	"github.com/artcritique/brushup/pkg/logger"
	"github.com/artcritique/brushup/pkg/notify"
	"github.com/artcritique/brushup/pkg/output"
	"github.com/artcritique/brushup/pkg/prompter"
)

const defaultConfirmTimeout = 3 * time.Second

var timeNow = time.Now

// NotificationService provides notification-related operations
type NotificationService struct {
	api     *api.NotificationsAPI
	printer *output.Printer
	prompt  *prompter.Prompter
	dialer  notify.Dialer
	opts    notify.Options
	out     io.Writer

	confirmTimeout time.Duration
}

// NewNotificationService creates a notification service authenticated with
// token.
func NewNotificationService(token string, printer *output.Printer) (*NotificationService, error) {
	opts, err := config.NotifyOptions(token)
	if err != nil {
		return nil, fmt.Errorf("invalid notifications configuration: %w", err)
	}
	opts.Logger = logger.With("component", "notify")

	if token != "" {
		client.SetAuthToken(token)
	}

	return &NotificationService{
		api:            api.NewNotificationsAPI(client.GetClient()),
		printer:        printer,
		prompt:         prompter.New(),
		dialer:         notify.WebsocketDialer{},
		opts:           opts,
		out:            os.Stdout,
		confirmTimeout: defaultConfirmTimeout,
	}, nil
}

// ListNotifications displays the user's notifications
func (ns *NotificationService) ListNotifications(ctx context.Context) error {
	logger.Debug("Listing notifications")

	resp, err := ns.api.ListNotifications(ctx)
	if err != nil {
		return fmt.Errorf("failed to list notifications: %w", err)
	}
	return ns.printer.Notifications(resp.Results, notify.CountUnread(resp.Results))
}

// GetUnreadCount displays the count of unread notifications
func (ns *NotificationService) GetUnreadCount(ctx context.Context) error {
	logger.Debug("Getting unread notification count")

	resp, err := ns.api.ListNotifications(ctx)
	if err != nil {
		return fmt.Errorf("failed to get unread count: %w", err)
	}
	return ns.printer.Count(notify.CountUnread(resp.Results))
}

// MarkNotificationAsRead marks one notification read, over the live channel
// when it is reachable and over HTTP otherwise.
func (ns *NotificationService) MarkNotificationAsRead(ctx context.Context, id notify.ID) error {
	logger.Debug("Marking notification as read", "notification_id", id)

	liveErr := ns.sendLive(ctx, notify.MarkReadCommand(id), func(v notify.View) bool {
		for _, n := range v.Notifications {
			if n.ID == id {
				return n.Read
			}
		}
		return false
	})
	if liveErr != nil {
		logger.Debug("Marking over HTTP", "error", liveErr)
		if err := ns.api.MarkNotificationRead(ctx, id); err != nil {
			return err
		}
	}
	return ns.printer.Success("Notification %s marked as read.", id)
}

// MarkAllAsRead marks every notification read after confirmation.
func (ns *NotificationService) MarkAllAsRead(ctx context.Context, skipConfirm bool) error {
	logger.Debug("Marking all notifications as read")

	if !skipConfirm {
		confirm, err := ns.prompt.PromptConfirm("Mark all notifications as read?")
		if err != nil {
			return err
		}
		if !confirm {
			fmt.Fprintln(ns.out, "Cancelled.")
			return nil
		}
	}

	liveErr := ns.sendLive(ctx, notify.MarkAllReadCommand(), func(v notify.View) bool {
		return v.UnreadCount == 0 && notify.CountUnread(v.Notifications) == 0
	})
	if liveErr != nil {
		logger.Debug("Marking over HTTP", "error", liveErr)
		if err := ns.api.MarkAllNotificationsRead(ctx); err != nil {
			return err
		}
	}
	return ns.printer.Success("All notifications marked as read.")
}

// sendLive opens a short-lived session, sends cmd and waits for a state that
// satisfies confirmed. A non-nil error means the caller should use HTTP.
func (ns *NotificationService) sendLive(ctx context.Context, cmd notify.Command, confirmed func(notify.View) bool) error {
	opts := ns.opts
	opts.PollingFallback = false
	opts.MaxReconnectAttempts = -1
	opts.Toasts = false

	watcher := newViewWatcher()
	session := notify.NewSession(opts, ns.dialer, nil, watcher)
	defer session.Close()

	connectCtx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout+time.Second)
	defer cancel()

	mark := watcher.Seq()
	session.Connect()
	v, err := watcher.Wait(connectCtx, mark, func(v notify.View) bool {
		return v.Status != notify.StatusConnecting
	})
	if err != nil {
		return clierrors.ChannelError(err)
	}
	if v.Status != notify.StatusConnected {
		return clierrors.ChannelError(fmt.Errorf("session ended in mode %s", v.Mode))
	}

	// The confirmation may be applied before Send returns.
	mark = watcher.Seq()
	if err := session.Send(cmd); err != nil {
		return clierrors.ChannelError(err)
	}

	confirmCtx, cancelConfirm := context.WithTimeout(ctx, ns.confirmTimeout)
	defer cancelConfirm()
	if _, err := watcher.Wait(confirmCtx, mark, confirmed); err != nil {
		return clierrors.ChannelError(fmt.Errorf("no confirmation for %s: %w", cmd.Type, err))
	}
	return nil
}

// viewWatcher is an Observer that lets a caller block until the session
// reaches some state.
type viewWatcher struct {
	mu      sync.Mutex
	seq     int
	last    notify.View
	changed chan struct{}
}

func newViewWatcher() *viewWatcher {
	return &viewWatcher{changed: make(chan struct{}, 1)}
}

func (w *viewWatcher) StateChanged(v notify.View) {
	w.mu.Lock()
	w.seq++
	w.last = v
	w.mu.Unlock()

	select {
	case w.changed <- struct{}{}:
	default:
	}
}

func (w *viewWatcher) Toast(notify.Notification) {}

func (w *viewWatcher) Announcement(string) {}

func (w *viewWatcher) Seq() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.seq
}

// Wait blocks until a view newer than after satisfies cond.
func (w *viewWatcher) Wait(ctx context.Context, after int, cond func(notify.View) bool) (notify.View, error) {
	for {
		w.mu.Lock()
		seq, v := w.seq, w.last
		w.mu.Unlock()

		if seq > after && cond(v) {
			return v, nil
		}

		select {
		case <-w.changed:
		case <-ctx.Done():
			return v, ctx.Err()
		}
	}
}
