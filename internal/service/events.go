package service

import (
	"context"
	"time"
)

// Live collection event types.
const (
	EventPostCreated      = "post_created"
	EventPostUpdated      = "post_updated"
	EventPostDeleted      = "post_deleted"
	EventPostRated        = "post_rated"
	EventPostAttendance   = "post_attendance"
	EventPostPinned       = "post_pinned"
	EventPostImageExpired = "post_image_expired"
	EventReplyCreated     = "reply_created"
)

// EventPublisher fans live collection changes out to subscribers.
type EventPublisher interface {
	PublishPostEvent(ctx context.Context, eventType string, payload any)
	PublishReplyEvent(ctx context.Context, postID uint, eventType string, payload any)
}

type noopPublisher struct{}

func (noopPublisher) PublishPostEvent(context.Context, string, any)        {}
func (noopPublisher) PublishReplyEvent(context.Context, uint, string, any) {}

func publisherOrNoop(p EventPublisher) EventPublisher {
	if p == nil {
		return noopPublisher{}
	}
	return p
}

// IsAdminFunc reports whether userID may moderate.
type IsAdminFunc func(ctx context.Context, userID uint) (bool, error)

// Clock returns the current time. Tests pin it.
type Clock func() time.Time
