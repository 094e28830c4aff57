package realtime

import (
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/charlesng35/careerhub/pkg/logger"
	"github.com/charlesng35/careerhub/pkg/metrics"
)

const defaultSendBuffer = 64

// Message is the JSON frame written to subscribers.
type Message struct {
	Stream string         `json:"stream"`
	Event  string         `json:"event"`
	Data   any            `json:"data,omitempty"`
	Meta   map[string]any `json:"meta,omitempty"`
}

type subscriberKey struct {
	stream string
	userID string
}

// Hub routes stream events to the websocket connections of each user.
// Delivery is best effort: a client whose buffer is full is disconnected and
// is expected to refetch.
type Hub struct {
	mu      sync.RWMutex
	subs    map[subscriberKey]map[*client]struct{}
	clients map[*client]struct{}
	closed  bool

	upgrader   websocket.Upgrader
	sendBuffer int
	log        *zap.Logger
}

// HubOption customises a Hub.
type HubOption func(*Hub)

// WithAllowedOrigins accepts upgrades from the listed origin hosts in
// addition to same-host and loopback origins.
func WithAllowedOrigins(hosts ...string) HubOption {
	return func(h *Hub) {
		extra := make(map[string]struct{}, len(hosts))
		for _, host := range hosts {
			if host = strings.ToLower(strings.TrimSpace(host)); host != "" {
				extra[host] = struct{}{}
			}
		}
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			if sameOrigin(r) {
				return true
			}
			_, ok := extra[originHost(r.Header.Get("Origin"))]
			return ok
		}
	}
}

// WithSendBuffer sets how many messages may queue per connection.
func WithSendBuffer(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.sendBuffer = n
		}
	}
}

// NewHub constructs a realtime hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		subs:       make(map[subscriberKey]map[*client]struct{}),
		clients:    make(map[*client]struct{}),
		sendBuffer: defaultSendBuffer,
		log:        logger.WithModule("realtime"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     sameOrigin,
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Serve upgrades the request and subscribes the connection to streams, or to
// DefaultStreams when none are named. A nil allowed set permits every stream.
// Serve blocks until the connection closes.
func (h *Hub) Serve(userID string, streams []string, allowed map[string]struct{}, w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		http.Error(w, "realtime hub closed", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("upgrade failed", logger.UserID(userID), zap.Error(err))
		return
	}
	if len(streams) == 0 {
		streams = DefaultStreams
	}

	c := newClient(h, conn, userID, allowed)
	if !h.register(c) {
		_ = conn.Close()
		return
	}
	h.subscribe(c, streams)

	go c.writePump()
	c.readPump()
}

// BroadcastToUser queues message for every connection userID holds on stream.
func (h *Hub) BroadcastToUser(stream, userID string, message Message) {
	key := subscriberKey{stream: normalizeStream(stream), userID: userID}
	if key.stream == "" || key.userID == "" {
		return
	}

	h.mu.RLock()
	targets := make([]*client, 0, len(h.subs[key]))
	for c := range h.subs[key] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	message.Stream = key.stream
	for _, c := range targets {
		c.enqueue(message)
	}
}

// ConnectionCount reports how many live connections the user holds on stream.
func (h *Hub) ConnectionCount(stream, userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[subscriberKey{stream: normalizeStream(stream), userID: userID}])
}

// Close disconnects every client and rejects further upgrades.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	all := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		all = append(all, c)
	}
	h.mu.Unlock()

	for _, c := range all {
		c.close()
	}
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	metrics.RealtimeConnections.Inc()
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	metrics.RealtimeConnections.Dec()
	for stream := range c.streams {
		h.dropLocked(c, stream)
	}
}

func (h *Hub) subscribe(c *client, streams []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, stream := range uniqueStreams(streams) {
		if _, ok := c.streams[stream]; ok {
			continue
		}
		if !c.permits(stream) {
			h.log.Debug("stream not permitted", zap.String("stream", stream), logger.UserID(c.userID))
			continue
		}
		key := subscriberKey{stream: stream, userID: c.userID}
		if h.subs[key] == nil {
			h.subs[key] = make(map[*client]struct{})
		}
		h.subs[key][c] = struct{}{}
		c.streams[stream] = struct{}{}
	}
}

func (h *Hub) unsubscribe(c *client, streams []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, stream := range uniqueStreams(streams) {
		h.dropLocked(c, stream)
	}
}

func (h *Hub) dropLocked(c *client, stream string) {
	key := subscriberKey{stream: stream, userID: c.userID}
	if set, ok := h.subs[key]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.subs, key)
		}
	}
	delete(c.streams, stream)
}

// sameOrigin accepts requests without an Origin header, from the serving
// host, or from a loopback host during development.
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	host := originHost(origin)
	if host == "" {
		return false
	}
	if host == stripPort(r.Host) {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return host == "localhost"
}

func originHost(origin string) string {
	u, err := url.Parse(strings.TrimSpace(origin))
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

func stripPort(hostport string) string {
	if host, _, err := net.SplitHostPort(hostport); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(hostport)
}

func normalizeStream(stream string) string {
	return strings.ToLower(strings.TrimSpace(stream))
}

func uniqueStreams(streams []string) []string {
	seen := make(map[string]struct{}, len(streams))
	out := make([]string, 0, len(streams))
	for _, stream := range streams {
		stream = normalizeStream(stream)
		if stream == "" {
			continue
		}
		if _, dup := seen[stream]; dup {
			continue
		}
		seen[stream] = struct{}{}
		out = append(out, stream)
	}
	return out
}
