package notifyclient

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/careerhub/internal/realtime"
)

func writeEnvelope(w http.ResponseWriter, status int, data any, code, message string) {
	body := map[string]any{"success": status < 400}
	if data != nil {
		body["data"] = data
	}
	if code != "" {
		body["error"] = map[string]string{"code": code, "message": message}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func TestClient_Endpoints(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Method+" "+r.URL.Path)
		mu.Unlock()
		if r.URL.Path != "/api/welcome/status" {
			assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		}

		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/notifications":
			assert.Equal(t, "2", r.URL.Query().Get("page"))
			assert.Equal(t, "true", r.URL.Query().Get("unread_only"))
			assert.Equal(t, "tips,bonus_awarded", r.URL.Query().Get("types"))
			writeEnvelope(w, http.StatusOK, map[string]any{
				"notifications": []map[string]any{{"id": "n1", "type": "tips", "is_read": false}},
				"total":         1,
				"page":          2,
				"limit":         20,
				"unread_count":  1,
			}, "", "")
		case r.Method == http.MethodPut && r.URL.Path == "/api/notifications/n1/read":
			writeEnvelope(w, http.StatusOK, map[string]any{"id": "n1", "is_read": true}, "", "")
		case r.Method == http.MethodPost && r.URL.Path == "/api/notifications/read-all":
			writeEnvelope(w, http.StatusOK, map[string]int{"updated": 1}, "", "")
		case r.Method == http.MethodDelete && r.URL.Path == "/api/notifications/clear/all":
			writeEnvelope(w, http.StatusOK, map[string]int{"deleted": 1}, "", "")
		case r.Method == http.MethodDelete && r.URL.Path == "/api/notifications/gone":
			writeEnvelope(w, http.StatusNotFound, nil, "NOT_FOUND", "Resource not found")
		case r.Method == http.MethodGet && r.URL.Path == "/api/notifications/stats":
			writeEnvelope(w, http.StatusOK, map[string]any{"total": 3, "unread": 1, "by_type": map[string]int{"tips": 3}}, "", "")
		case r.Method == http.MethodGet && r.URL.Path == "/api/notifications/settings":
			writeEnvelope(w, http.StatusOK, map[string]any{"language": "en", "in_app_enabled": true, "muted_types": []string{}}, "", "")
		case r.Method == http.MethodPut && r.URL.Path == "/api/notifications/settings":
			var update map[string]any
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&update))
			assert.Equal(t, map[string]any{"language": "fr", "muted_types": []any{"tips"}}, update)
			writeEnvelope(w, http.StatusOK, map[string]any{"language": "fr", "in_app_enabled": true, "muted_types": []string{"tips"}}, "", "")
		case r.Method == http.MethodGet && r.URL.Path == "/api/welcome/status":
			assert.Equal(t, "u1", r.URL.Query().Get("user_id"))
			writeEnvelope(w, http.StatusOK, map[string]any{"should_show_welcome": true, "user_id": "u1", "timestamp": time.Now()}, "", "")
		case r.Method == http.MethodPost && r.URL.Path == "/api/welcome/bonus":
			writeEnvelope(w, http.StatusOK, map[string]any{"success": false, "message": "Welcome bonus already claimed"}, "", "")
		default:
			writeEnvelope(w, http.StatusNotFound, nil, "NOT_FOUND", "Route not found")
		}
	}))
	t.Cleanup(server.Close)

	client, err := NewClient(server.URL+"/", "tok", WithHTTPClient(server.Client()))
	require.NoError(t, err)
	ctx := t.Context()

	page, err := client.List(ctx, ListOptions{Page: 2, UnreadOnly: true, Types: []string{"tips", "bonus_awarded"}})
	require.NoError(t, err)
	require.Len(t, page.Notifications, 1)
	require.Equal(t, "n1", page.Notifications[0].ID)
	require.EqualValues(t, 1, page.UnreadCount)

	require.NoError(t, client.MarkRead(ctx, "n1"))
	require.NoError(t, client.MarkAllRead(ctx))
	require.NoError(t, client.ClearAll(ctx))

	err = client.Delete(ctx, "gone")
	require.True(t, IsNotFound(err))
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "NOT_FOUND", apiErr.Code)

	stats, err := client.Stats(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 3, stats.ByType["tips"])

	settings, err := client.Settings(ctx)
	require.NoError(t, err)
	require.Equal(t, "en", settings.Language)
	require.Empty(t, settings.MutedTypes)

	lang, muted := "fr", []string{"tips"}
	settings, err = client.UpdateSettings(ctx, SettingsUpdate{Language: &lang, MutedTypes: &muted})
	require.NoError(t, err)
	require.Equal(t, "fr", settings.Language)
	require.Equal(t, []string{"tips"}, settings.MutedTypes)

	status, err := client.WelcomeStatus(ctx, "u1")
	require.NoError(t, err)
	require.True(t, status.ShouldShowWelcome)

	bonus, err := client.ClaimBonus(ctx)
	require.NoError(t, err)
	require.False(t, bonus.Success)
	require.Equal(t, "Welcome bonus already claimed", bonus.Message)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 10)
}

func TestNewClientRejectsRelativeURL(t *testing.T) {
	_, err := NewClient("/api", "")
	require.Error(t, err)
}

func TestSubscriber_ReceivesEvents(t *testing.T) {
	hub := realtime.NewHub()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/notifications/stream" || r.URL.Query().Get("token") != "tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		hub.Serve("u1", nil, nil, w, r)
	}))
	t.Cleanup(server.Close)

	sub, err := NewSubscriber(server.URL, "tok", nil)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(sub.url, "ws://"))

	events, err := sub.Subscribe(t.Context())
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return hub.ConnectionCount(realtime.StreamNotifications, "u1") == 1
	}, time.Second, 5*time.Millisecond)

	unread := int64(2)
	hub.BroadcastToUser(realtime.StreamNotifications, "u1", realtime.Message{
		Event: realtime.EventNotificationCreated,
		Data: map[string]any{
			"notification": map[string]any{"id": "n5", "title": "Hello", "is_read": false},
			"unread_count": unread,
		},
	})

	select {
	case ev := <-events:
		require.Equal(t, EventCreated, ev.Name)
		require.NotNil(t, ev.Notification)
		require.Equal(t, "n5", ev.NotificationID)
		require.NotNil(t, ev.UnreadCount)
		require.EqualValues(t, 2, *ev.UnreadCount)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for live event")
	}

	bad, err := NewSubscriber(server.URL, "wrong", nil)
	require.NoError(t, err)
	_, err = bad.Subscribe(t.Context())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}
