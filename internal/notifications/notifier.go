// Package notifications fans live collection changes out over Redis pub/sub
// and delivers them to websocket clients.
package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"

	"agora/internal/observability"

	"github.com/redis/go-redis/v9"
)

const (
	// PostsChannel carries every post event.
	PostsChannel = "live:posts"

	replyChannelPrefix = "live:replies:"
	livePattern        = "live:*"
)

// Event is the JSON envelope published on every live channel.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Notifier publishes live events into Redis channels. Without Redis it hands
// events straight to the local subscriber, which is enough for a single
// instance.
type Notifier struct {
	rdb *redis.Client

	mu    sync.RWMutex
	local func(channel, payload string)
}

// NewNotifier creates a new Notifier instance using the provided Redis client.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// ReplyChannel derives the Redis channel for a post's reply events.
func ReplyChannel(postID uint) string {
	return replyChannelPrefix + strconv.FormatUint(uint64(postID), 10)
}

// ParseReplyChannel extracts the post id from a reply channel name.
func ParseReplyChannel(channel string) (uint, bool) {
	if !strings.HasPrefix(channel, replyChannelPrefix) {
		return 0, false
	}
	id, err := strconv.ParseUint(strings.TrimPrefix(channel, replyChannelPrefix), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// Encode renders an event envelope.
func Encode(eventType string, payload any) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	data, err := json.Marshal(Event{Type: eventType, Payload: raw})
	if err != nil {
		return "", fmt.Errorf("marshal %s event: %w", eventType, err)
	}
	return string(data), nil
}

// Publish sends one event to channel.
func (n *Notifier) Publish(ctx context.Context, channel, eventType string, payload any) error {
	msg, err := Encode(eventType, payload)
	if err != nil {
		return err
	}
	observability.LiveEventsPublished.WithLabelValues(eventType).Inc()

	if n.rdb == nil {
		n.mu.RLock()
		local := n.local
		n.mu.RUnlock()
		if local != nil {
			local(channel, msg)
		}
		return nil
	}
	return n.rdb.Publish(ctx, channel, msg).Err()
}

// PublishPostEvent publishes on the shared posts channel. Failures are
// logged; a lost live event never fails the write that caused it.
func (n *Notifier) PublishPostEvent(ctx context.Context, eventType string, payload any) {
	if err := n.Publish(ctx, PostsChannel, eventType, payload); err != nil {
		observability.GlobalLogger.WarnContext(ctx, "failed to publish post event",
			"event_type", eventType, "error", err)
	}
}

// PublishReplyEvent publishes on the post's reply channel.
func (n *Notifier) PublishReplyEvent(ctx context.Context, postID uint, eventType string, payload any) {
	if err := n.Publish(ctx, ReplyChannel(postID), eventType, payload); err != nil {
		observability.GlobalLogger.WarnContext(ctx, "failed to publish reply event",
			"event_type", eventType, "post_id", postID, "error", err)
	}
}

// StartSubscriber subscribes to every live channel and calls onMessage for
// each incoming message until ctx is cancelled.
func (n *Notifier) StartSubscriber(
	ctx context.Context, onMessage func(channel string, payload string),
) error {
	safe := func(channel, payload string) {
		defer func() {
			if r := recover(); r != nil {
				observability.GlobalLogger.Error("panic in live subscriber",
					"panic", r, "stack", string(debug.Stack()))
			}
		}()
		onMessage(channel, payload)
	}

	if n.rdb == nil {
		n.mu.Lock()
		n.local = safe
		n.mu.Unlock()
		go func() {
			<-ctx.Done()
			n.mu.Lock()
			n.local = nil
			n.mu.Unlock()
		}()
		return nil
	}

	sub := n.rdb.PSubscribe(ctx, livePattern)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe %s: %w", livePattern, err)
	}
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				safe(msg.Channel, msg.Payload)
			}
		}
	}()

	return nil
}
