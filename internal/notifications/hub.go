package notifications

import (
	"context"
	"errors"
	"sync"

	"agora/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	// Max connections per user
	maxConnsPerUser = 12
	// Max total connections
	maxTotalConns = 10000
	// Max reply subscriptions held by one connection
	maxSubscriptionsPerClient = 50
)

var (
	ErrServerFull         = errors.New("server connection limit reached")
	ErrUserFull           = errors.New("user connection limit reached")
	ErrTooManySubscribers = errors.New("too many reply subscriptions")
	ErrHubClosed          = errors.New("hub is shutting down")
)

// Hub tracks live feed connections. Every client receives post events;
// reply events go only to clients subscribed to that post.
type Hub struct {
	mu         sync.RWMutex
	conns      map[uint]map[*Client]struct{}
	replySubs  map[uint]map[*Client]struct{}
	clientSubs map[*Client]map[uint]struct{}
	totalConns int
	closed     bool
	log        *observability.WSLogger
}

// NewHub creates an empty live feed hub.
func NewHub() *Hub {
	h := &Hub{
		conns:      make(map[uint]map[*Client]struct{}),
		replySubs:  make(map[uint]map[*Client]struct{}),
		clientSubs: make(map[*Client]map[uint]struct{}),
	}
	h.log = observability.NewWSLogger(h.Name())
	return h
}

// Name returns a human-readable identifier for this hub.
func (h *Hub) Name() string { return "live hub" }

// Register a connection for a given userID. Returns the Client or error if limits exceeded.
func (h *Hub) Register(userID uint, conn *websocket.Conn) (*Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrHubClosed
	}
	if h.totalConns >= maxTotalConns {
		return nil, ErrServerFull
	}

	m, ok := h.conns[userID]
	if !ok {
		m = make(map[*Client]struct{})
		h.conns[userID] = m
	}
	if len(m) >= maxConnsPerUser {
		return nil, ErrUserFull
	}

	client := NewClient(h, conn, userID)
	m[client] = struct{}{}
	h.totalConns++
	observability.WebSocketConnectionsTotal.Inc()
	h.log.LogConnect(context.Background(), userID)
	return client, nil
}

// UnregisterClient drops the client and all of its subscriptions.
func (h *Hub) UnregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	m, ok := h.conns[client.UserID]
	if !ok {
		return
	}
	if _, exists := m[client]; !exists {
		return
	}
	delete(m, client)
	if len(m) == 0 {
		delete(h.conns, client.UserID)
	}
	h.totalConns--
	observability.WebSocketConnectionsTotal.Dec()

	for postID := range h.clientSubs[client] {
		h.removeSub(client, postID)
	}
	delete(h.clientSubs, client)
	client.closeSend(0, "")
}

// SubscribeReplies adds client to postID's reply audience. Subscribing twice is a no-op.
func (h *Hub) SubscribeReplies(client *Client, postID uint) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.clientSubs[client]
	if !ok {
		subs = make(map[uint]struct{})
		h.clientSubs[client] = subs
	}
	if _, already := subs[postID]; already {
		return nil
	}
	if len(subs) >= maxSubscriptionsPerClient {
		return ErrTooManySubscribers
	}
	subs[postID] = struct{}{}

	audience, ok := h.replySubs[postID]
	if !ok {
		audience = make(map[*Client]struct{})
		h.replySubs[postID] = audience
	}
	audience[client] = struct{}{}
	return nil
}

// UnsubscribeReplies removes client from postID's reply audience.
func (h *Hub) UnsubscribeReplies(client *Client, postID uint) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.clientSubs[client]; ok {
		delete(subs, postID)
	}
	h.removeSub(client, postID)
}

// removeSub must be called with h.mu held.
func (h *Hub) removeSub(client *Client, postID uint) {
	audience, ok := h.replySubs[postID]
	if !ok {
		return
	}
	delete(audience, client)
	if len(audience) == 0 {
		delete(h.replySubs, postID)
	}
}

// BroadcastAll sends message to every connected websocket client.
func (h *Hub) BroadcastAll(message string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	data := []byte(message)
	for _, clients := range h.conns {
		for c := range clients {
			_ = c.TrySend(data)
		}
	}
}

// BroadcastToPost sends message to the clients subscribed to postID's replies.
func (h *Hub) BroadcastToPost(postID uint, message string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	data := []byte(message)
	for c := range h.replySubs[postID] {
		_ = c.TrySend(data)
	}
}

// Deliver routes one live channel message to its audience.
func (h *Hub) Deliver(channel, payload string) {
	if channel == PostsChannel {
		h.BroadcastAll(payload)
		return
	}
	if postID, ok := ParseReplyChannel(channel); ok {
		h.BroadcastToPost(postID, payload)
		return
	}
	observability.GlobalLogger.Warn("ignoring message on unknown live channel", "channel", channel)
}

// StartWiring connects the Notifier to this hub.
func (h *Hub) StartWiring(ctx context.Context, n *Notifier) error {
	return n.StartSubscriber(ctx, h.Deliver)
}

// ConnectionCount reports the number of open connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.totalConns
}

// Shutdown closes every client's Send channel. Each WritePump then writes a
// going-away close frame and closes its connection; the hub never writes to
// a connection itself.
func (h *Hub) Shutdown(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true

	for _, userConns := range h.conns {
		for client := range userConns {
			client.closeSend(websocket.CloseGoingAway, "Server shutting down")
			observability.WebSocketConnectionsTotal.Dec()
		}
	}
	h.conns = make(map[uint]map[*Client]struct{})
	h.replySubs = make(map[uint]map[*Client]struct{})
	h.clientSubs = make(map[*Client]map[uint]struct{})
	h.totalConns = 0
	return nil
}
