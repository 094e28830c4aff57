package notifyclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const streamPath = "/api/notifications/stream"

type wireMessage struct {
	Stream string      `json:"stream"`
	Event  string      `json:"event"`
	Data   wirePayload `json:"data"`
}

type wirePayload struct {
	Notification   *Notification `json:"notification"`
	NotificationID string        `json:"notification_id"`
	UnreadCount    *int64        `json:"unread_count"`
}

// Subscriber receives live notification events over the websocket stream.
type Subscriber struct {
	url    string
	dialer *websocket.Dialer
	log    *zap.Logger
}

// NewSubscriber builds a subscriber for the server at baseURL. The token is
// passed as a query parameter because browsers cannot set headers on
// websocket upgrades.
func NewSubscriber(baseURL, token string, log *zap.Logger) (*Subscriber, error) {
	endpoint, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("notifyclient: parse base url: %w", err)
	}
	switch endpoint.Scheme {
	case "http":
		endpoint.Scheme = "ws"
	case "https":
		endpoint.Scheme = "wss"
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("notifyclient: unsupported scheme %q", endpoint.Scheme)
	}
	endpoint.Path = strings.TrimRight(endpoint.Path, "/") + streamPath
	endpoint.RawQuery = url.Values{"token": {token}}.Encode()

	if log == nil {
		log = zap.NewNop()
	}
	return &Subscriber{url: endpoint.String(), dialer: websocket.DefaultDialer, log: log}, nil
}

// Subscribe dials the stream and returns a channel of events. The channel is
// closed when ctx is done or the connection drops; callers fall back to
// polling until they subscribe again.
func (s *Subscriber) Subscribe(ctx context.Context) (<-chan Event, error) {
	conn, resp, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, &APIError{StatusCode: resp.StatusCode, Code: "UNAUTHORIZED"}
		}
		return nil, fmt.Errorf("notifyclient: dial stream: %w", err)
	}

	events := make(chan Event, 16)
	done := make(chan struct{})

	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			_ = conn.Close()
		case <-done:
		}
	}()

	go func() {
		defer close(events)
		defer close(done)
		defer conn.Close()

		for {
			var msg wireMessage
			if err := conn.ReadJSON(&msg); err != nil {
				if ctx.Err() == nil && !isNormalClose(err) {
					s.log.Debug("notification stream closed", zap.Error(err))
				}
				return
			}
			if msg.Event == "" || msg.Event == "pong" {
				continue
			}

			ev := Event{
				Name:           msg.Event,
				Notification:   msg.Data.Notification,
				NotificationID: msg.Data.NotificationID,
				UnreadCount:    msg.Data.UnreadCount,
			}
			if ev.NotificationID == "" && ev.Notification != nil {
				ev.NotificationID = ev.Notification.ID
			}

			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	return events, nil
}

func isNormalClose(err error) bool {
	var closeErr *websocket.CloseError
	return errors.As(err, &closeErr) && closeErr.Code == websocket.CloseNormalClosure
}
