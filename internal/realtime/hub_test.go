package realtime

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func dialHub(t *testing.T, hub *Hub, userID string, streams []string, allowed map[string]struct{}) *websocket.Conn {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(userID, streams, allowed, w, r)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestBroadcastToUserReachesOnlyThatUser(t *testing.T) {
	hub := NewHub()
	alice := dialHub(t, hub, "alice", nil, nil)
	bob := dialHub(t, hub, "bob", nil, nil)

	require.Eventually(t, func() bool {
		return hub.ConnectionCount(StreamNotifications, "alice") == 1 &&
			hub.ConnectionCount(StreamNotifications, "bob") == 1
	}, 2*time.Second, 10*time.Millisecond)

	hub.BroadcastToUser(StreamNotifications, "bob", Message{Event: EventNotificationDeleted, Data: "for-bob"})
	hub.BroadcastToUser(StreamNotifications, "alice", Message{Event: EventNotificationCreated, Data: "for-alice"})

	msg := readMessage(t, alice)
	require.Equal(t, StreamNotifications, msg.Stream)
	require.Equal(t, EventNotificationCreated, msg.Event)
	require.Equal(t, "for-alice", msg.Data)

	msg = readMessage(t, bob)
	require.Equal(t, EventNotificationDeleted, msg.Event)
}

func TestHubAnswersPingControlMessages(t *testing.T) {
	hub := NewHub()
	conn := dialHub(t, hub, "alice", nil, nil)

	require.NoError(t, conn.WriteJSON(controlMessage{Action: "ping"}))
	msg := readMessage(t, conn)
	require.Equal(t, "pong", msg.Event)
}

func TestHubIgnoresStreamsOutsideAllowedSet(t *testing.T) {
	hub := NewHub()
	allowed := map[string]struct{}{StreamNotifications: {}}
	conn := dialHub(t, hub, "alice", []string{StreamNotifications, "billing"}, allowed)

	require.Eventually(t, func() bool {
		return hub.ConnectionCount(StreamNotifications, "alice") == 1
	}, 2*time.Second, 10*time.Millisecond)
	require.Zero(t, hub.ConnectionCount("billing", "alice"))

	require.NoError(t, conn.WriteJSON(controlMessage{Action: "unsubscribe", Streams: []string{StreamNotifications}}))
	require.Eventually(t, func() bool {
		return hub.ConnectionCount(StreamNotifications, "alice") == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHubUnregistersClosedConnections(t *testing.T) {
	hub := NewHub()
	conn := dialHub(t, hub, "alice", nil, nil)

	require.Eventually(t, func() bool {
		return hub.ConnectionCount(StreamNotifications, "alice") == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool {
		return hub.ConnectionCount(StreamNotifications, "alice") == 0
	}, 2*time.Second, 10*time.Millisecond)

	hub.BroadcastToUser(StreamNotifications, "alice", Message{Event: EventNotificationCreated})
}

func TestHubCloseDisconnectsAndRejects(t *testing.T) {
	hub := NewHub()
	conn := dialHub(t, hub, "alice", nil, nil)
	require.Eventually(t, func() bool {
		return hub.ConnectionCount(StreamNotifications, "alice") == 1
	}, 2*time.Second, 10*time.Millisecond)

	hub.Close()
	require.Zero(t, hub.ConnectionCount(StreamNotifications, "alice"))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve("bob", nil, nil, w, r)
	}))
	t.Cleanup(srv.Close)
	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.Error(t, err)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestOriginChecks(t *testing.T) {
	req := func(host, origin string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "http://"+host+"/api/notifications/stream", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}

	require.True(t, sameOrigin(req("api.example.com", "")))
	require.True(t, sameOrigin(req("api.example.com:8080", "https://api.example.com")))
	require.True(t, sameOrigin(req("api.example.com", "http://localhost:5173")))
	require.True(t, sameOrigin(req("api.example.com", "http://127.0.0.1:3000")))
	require.False(t, sameOrigin(req("api.example.com", "https://evil.example.net")))

	hub := NewHub(WithAllowedOrigins("app.example.com"))
	require.True(t, hub.upgrader.CheckOrigin(req("api.example.com", "https://app.example.com")))
	require.False(t, hub.upgrader.CheckOrigin(req("api.example.com", "https://evil.example.net")))
}
