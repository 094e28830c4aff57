package realtime

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/charlesng35/careerhub/pkg/logger"
	"github.com/charlesng35/careerhub/pkg/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxControlSize = 4096
)

// controlMessage is sent by clients to change subscriptions or probe liveness.
type controlMessage struct {
	Action  string   `json:"action"`
	Streams []string `json:"streams"`
}

type client struct {
	hub     *Hub
	conn    *websocket.Conn
	userID  string
	allowed map[string]struct{}
	// streams is guarded by hub.mu.
	streams map[string]struct{}

	send      chan Message
	done      chan struct{}
	closeOnce sync.Once
}

func newClient(h *Hub, conn *websocket.Conn, userID string, allowed map[string]struct{}) *client {
	return &client{
		hub:     h,
		conn:    conn,
		userID:  userID,
		allowed: allowed,
		streams: make(map[string]struct{}),
		send:    make(chan Message, h.sendBuffer),
		done:    make(chan struct{}),
	}
}

func (c *client) permits(stream string) bool {
	if len(c.allowed) == 0 {
		return true
	}
	_, ok := c.allowed[stream]
	return ok
}

// enqueue never blocks. A full buffer means the client cannot keep up, so it
// is disconnected.
func (c *client) enqueue(msg Message) {
	select {
	case <-c.done:
		return
	default:
	}

	select {
	case c.send <- msg:
	default:
		metrics.RealtimeDropped.Inc()
		c.hub.log.Warn("send buffer full, disconnecting", logger.UserID(c.userID), zap.String("event", msg.Event))
		go c.close()
	}
}

func (c *client) readPump() {
	defer c.close()

	c.conn.SetReadLimit(maxControlSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug("connection closed", logger.UserID(c.userID), zap.Error(err))
			}
			return
		}
		c.handleControl(payload)
	}
}

func (c *client) handleControl(payload []byte) {
	if len(payload) == 0 {
		return
	}
	var ctrl controlMessage
	if err := json.Unmarshal(payload, &ctrl); err != nil {
		c.hub.log.Debug("malformed control message", logger.UserID(c.userID), zap.Error(err))
		return
	}

	switch strings.ToLower(strings.TrimSpace(ctrl.Action)) {
	case "subscribe":
		c.hub.subscribe(c, ctrl.Streams)
	case "unsubscribe":
		c.hub.unsubscribe(c, ctrl.Streams)
	case "ping":
		c.enqueue(Message{Event: "pong"})
	default:
		c.hub.log.Debug("unknown control action", zap.String("action", ctrl.Action), logger.UserID(c.userID))
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		c.hub.unregister(c)
		close(c.done)
		// The write pump sends the close frame; give it a moment before the
		// socket goes away under it.
		time.AfterFunc(writeWait/10, func() { _ = c.conn.Close() })
	})
}
