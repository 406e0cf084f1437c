package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artcritique/brushup/pkg/client"
	"github.com/artcritique/brushup/pkg/notify"
)

const baseURL = "http://brushup.test"

func newMockedAPI(t *testing.T) *NotificationsAPI {
	t.Helper()
	c := client.New(baseURL, 5*time.Second)
	httpmock.ActivateNonDefault(c.GetClient())
	t.Cleanup(httpmock.DeactivateAndReset)
	return NewNotificationsAPI(c)
}

// jsonResponder replies with body typed as application/json.
func jsonResponder(status int, body string) httpmock.Responder {
	return func(req *http.Request) (*http.Response, error) {
		resp := httpmock.NewStringResponse(status, body)
		resp.Header.Set("Content-Type", "application/json")
		resp.Request = req
		return resp, nil
	}
}

func TestListNotifications(t *testing.T) {
	a := newMockedAPI(t)

	httpmock.RegisterResponder(http.MethodGet, baseURL+"/api/notifications/",
		jsonResponder(http.StatusOK, `{
			"count": 2,
			"results": [
				{"id": 9, "title": "New critique", "message": "Ana critiqued Dawn", "url": "/artworks/3/",
				 "created_at": "2024-03-01T10:30:00.123456+00:00", "read": false},
				{"id": 8, "title": "Reaction", "message": "", "url": "/artworks/3/",
				 "created_at": "2024-02-28T09:00:00Z", "read": true}
			]
		}`))

	resp, err := a.ListNotifications(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Count)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, notify.ID(9), resp.Results[0].ID)
	assert.Equal(t, 1, notify.CountUnread(resp.Results))
	assert.Equal(t, 2024, resp.Results[1].CreatedAt.Year())
}

func TestListNotificationsEmpty(t *testing.T) {
	a := newMockedAPI(t)
	httpmock.RegisterResponder(http.MethodGet, baseURL+"/api/notifications/",
		jsonResponder(http.StatusOK, `{"count": 0}`))

	items, err := a.Fetch(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)
}

func TestListNotificationsWithoutContentType(t *testing.T) {
	a := newMockedAPI(t)
	httpmock.RegisterResponder(http.MethodGet, baseURL+"/api/notifications/",
		httpmock.NewStringResponder(http.StatusOK, `{"count": 1, "results": [{"id": 3, "title": "Reply", "read": false}]}`))

	items, err := a.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Reply", items[0].Title)
}

func TestListNotificationsRejectsUndecodableBody(t *testing.T) {
	a := newMockedAPI(t)
	httpmock.RegisterResponder(http.MethodGet, baseURL+"/api/notifications/",
		httpmock.NewStringResponder(http.StatusOK, `<html>maintenance</html>`))

	items, err := a.Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode notifications")
	assert.Nil(t, items)
}

func TestListNotificationsUnauthorized(t *testing.T) {
	a := newMockedAPI(t)
	httpmock.RegisterResponder(http.MethodGet, baseURL+"/api/notifications/",
		jsonResponder(http.StatusUnauthorized, `{"detail": "Authentication credentials were not provided."}`))

	_, err := a.ListNotifications(context.Background())
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, IsUnauthorized(apiErr))
	assert.Equal(t, "Authentication credentials were not provided.", apiErr.Message)
}

func TestMarkNotificationRead(t *testing.T) {
	a := newMockedAPI(t)
	httpmock.RegisterResponder(http.MethodPost, baseURL+"/api/notifications/7/mark_read/",
		jsonResponder(http.StatusOK, `{"status": "ok"}`))
	httpmock.RegisterResponder(http.MethodPost, baseURL+"/api/notifications/99/mark_read/",
		jsonResponder(http.StatusNotFound, `{"detail": "Not found."}`))

	require.NoError(t, a.MarkNotificationRead(context.Background(), 7))

	err := a.MarkNotificationRead(context.Background(), 99)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, IsNotFound(apiErr))
}

func TestMarkAllNotificationsRead(t *testing.T) {
	a := newMockedAPI(t)
	httpmock.RegisterResponder(http.MethodPost, baseURL+"/api/notifications/mark_all_read/",
		jsonResponder(http.StatusOK, `{"updated": 3}`))

	require.NoError(t, a.MarkAllNotificationsRead(context.Background()))
	assert.Equal(t, 1, httpmock.GetCallCountInfo()["POST "+baseURL+"/api/notifications/mark_all_read/"])
}

func TestParseErrorFallsBackToStatusText(t *testing.T) {
	a := newMockedAPI(t)
	httpmock.RegisterResponder(http.MethodGet, baseURL+"/api/notifications/",
		httpmock.NewStringResponder(http.StatusBadGateway, ``))

	_, err := a.ListNotifications(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.HTTPStatus())
	assert.Equal(t, "Bad Gateway", apiErr.Message)
}
