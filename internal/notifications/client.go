package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"agora/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096

	sendBuffer = 256
)

// Client message types.
const (
	msgSubscribeReplies   = "subscribe_replies"
	msgUnsubscribeReplies = "unsubscribe_replies"
	msgPing               = "ping"
)

var dropNotice = []byte(`{"type":"messages_dropped","payload":{"reason":"buffer_full"}}`)

// WSHub is the part of a hub a client talks back to.
type WSHub interface {
	UnregisterClient(c *Client)
	SubscribeReplies(c *Client, postID uint) error
	UnsubscribeReplies(c *Client, postID uint)
	Name() string
}

// Client is a middleman between one websocket connection and the hub.
type Client struct {
	Hub WSHub

	// The websocket connection. Nil in tests.
	Conn *websocket.Conn

	// Buffered channel of outbound messages. Closed exactly once, by closeSend.
	Send chan []byte

	UserID uint

	mu        sync.Mutex
	closed    bool
	closeCode int
	closeText string
}

type clientMessage struct {
	Type   string `json:"type"`
	PostID uint   `json:"post_id"`
}

// NewClient creates a new Client instance
func NewClient(hub WSHub, conn *websocket.Conn, userID uint) *Client {
	return &Client{
		Hub:    hub,
		Conn:   conn,
		UserID: userID,
		Send:   make(chan []byte, sendBuffer),
	}
}

// ReadPump reads client commands until the connection fails.
func (c *Client) ReadPump() {
	wsLog := observability.NewWSLogger(c.Hub.Name())
	reason := "closed"
	defer func() {
		c.Hub.UnregisterClient(c)
		_ = c.Conn.Close()
		wsLog.LogDisconnect(context.Background(), c.UserID, reason)
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error { _ = c.Conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				wsLog.LogError(context.Background(), c.UserID, err, "read")
				reason = "error"
			}
			return
		}
		c.HandleMessage(message)
	}
}

// HandleMessage applies one client command. Unknown or malformed messages
// get an error reply and never close the connection.
func (c *Client) HandleMessage(message []byte) {
	var msg clientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.reply("error", map[string]string{"error": "invalid message"})
		return
	}

	switch msg.Type {
	case msgSubscribeReplies:
		if msg.PostID == 0 {
			c.reply("error", map[string]string{"error": "post_id is required"})
			return
		}
		if err := c.Hub.SubscribeReplies(c, msg.PostID); err != nil {
			c.reply("error", map[string]string{"error": err.Error()})
			return
		}
		c.reply("subscribed", map[string]uint{"post_id": msg.PostID})
	case msgUnsubscribeReplies:
		c.Hub.UnsubscribeReplies(c, msg.PostID)
		c.reply("unsubscribed", map[string]uint{"post_id": msg.PostID})
	case msgPing:
		c.reply("pong", struct{}{})
	default:
		c.reply("error", map[string]string{"error": "unknown message type"})
	}
}

func (c *Client) reply(eventType string, payload any) {
	msg, err := Encode(eventType, payload)
	if err != nil {
		return
	}
	c.TrySend([]byte(msg))
}

// WritePump pumps messages from the hub to the websocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel. This pump is the only writer,
				// so the close frame goes out here.
				_ = c.Conn.WriteMessage(websocket.CloseMessage, c.closeFrame())
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ErrSendClosed is returned by TrySend once the client has been unregistered.
var ErrSendClosed = errors.New("client send channel closed")

// closeSend marks the client closed and closes Send once. A non-zero code is
// sent to the peer in the close frame written by WritePump.
func (c *Client) closeSend(code int, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.closeCode, c.closeText = code, text
	close(c.Send)
}

func (c *Client) closeFrame() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closeCode == 0 {
		return []byte{}
	}
	return websocket.FormatCloseMessage(c.closeCode, c.closeText)
}

// TrySend queues message without blocking. A full buffer drops the message
// and tries to tell the client so it can re-fetch.
func (c *Client) TrySend(message []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		observability.WebSocketBackpressureDrops.WithLabelValues(c.Hub.Name(), "closed").Inc()
		return ErrSendClosed
	}

	select {
	case c.Send <- message:
		return nil
	default:
		observability.WebSocketBackpressureDrops.WithLabelValues(c.Hub.Name(), "full").Inc()
		observability.GlobalLogger.Warn("websocket buffer full, dropped message",
			"hub", c.Hub.Name(), "user_id", c.UserID)

		select {
		case c.Send <- dropNotice:
		default:
		}
		return nil
	}
}
