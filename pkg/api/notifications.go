package api

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
	json "github.com/json-iterator/go"

	"github.com/artcritique/brushup/pkg/logger"
	"github.com/artcritique/brushup/pkg/notify"
)

// Notification endpoints.
const (
	notificationsPath = "/api/notifications/"
	markReadPath      = "/api/notifications/%s/mark_read/"
	markAllReadPath   = "/api/notifications/mark_all_read/"
)

// NotificationListResponse is the listing endpoint body.
type NotificationListResponse struct {
	Count   int                   `json:"count"`
	Results []notify.Notification `json:"results"`
}

// NotificationsAPI calls the notification endpoints.
type NotificationsAPI struct {
	client *resty.Client
}

// NewNotificationsAPI wraps an HTTP client.
func NewNotificationsAPI(c *resty.Client) *NotificationsAPI {
	return &NotificationsAPI{client: c}
}

// ListNotifications retrieves the user's notifications, most recent first.
func (a *NotificationsAPI) ListNotifications(ctx context.Context) (*NotificationListResponse, error) {
	logger.Debug("Fetching notifications")

	resp, err := a.client.R().
		SetContext(ctx).
		Get(notificationsPath)
	if err := CheckResponse(resp, err); err != nil {
		return nil, fmt.Errorf("failed to fetch notifications: %w", err)
	}

	// Decoded by hand: resty skips SetResult when Content-Type is not JSON.
	var response NotificationListResponse
	if err := json.Unmarshal(resp.Body(), &response); err != nil {
		return nil, fmt.Errorf("failed to decode notifications: %w", err)
	}

	if response.Results == nil {
		response.Results = []notify.Notification{}
	}
	return &response, nil
}

// MarkNotificationRead marks a single notification as read.
func (a *NotificationsAPI) MarkNotificationRead(ctx context.Context, id notify.ID) error {
	logger.Debug("Marking notification as read", "notification_id", id)

	resp, err := a.client.R().
		SetContext(ctx).
		Post(fmt.Sprintf(markReadPath, id))
	if err := CheckResponse(resp, err); err != nil {
		return fmt.Errorf("failed to mark notification as read: %w", err)
	}
	return nil
}

// MarkAllNotificationsRead marks every notification as read.
func (a *NotificationsAPI) MarkAllNotificationsRead(ctx context.Context) error {
	logger.Debug("Marking all notifications as read")

	resp, err := a.client.R().
		SetContext(ctx).
		Post(markAllReadPath)
	if err := CheckResponse(resp, err); err != nil {
		return fmt.Errorf("failed to mark all notifications as read: %w", err)
	}
	return nil
}

// Fetch implements notify.Fetcher for the polling fallback.
func (a *NotificationsAPI) Fetch(ctx context.Context) ([]notify.Notification, error) {
	resp, err := a.ListNotifications(ctx)
	if err != nil {
		return nil, err
	}
	return resp.Results, nil
}

var _ notify.Fetcher = (*NotificationsAPI)(nil)
