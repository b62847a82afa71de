// Package lifecycle derives a post's status from its date fields.
//
// The same Policy value is shared by the API status badges, the image
// expiration sweep and the admin bulk delete, so every feature agrees on
// when a post has expired.
package lifecycle

import (
	"time"

	"agora/internal/models"
)

// Status is the derived lifecycle state of a post.
type Status string

const (
	Active  Status = "active"
	Soon    Status = "soon"
	Expired Status = "expired"
)

// Policy classifies posts. The zero value uses DefaultWindow.
type Policy struct {
	Window Window
}

// NewPolicy returns a Policy expiring open-ended posts window after their start.
func NewPolicy(window Window) Policy {
	return Policy{Window: window}
}

func (p Policy) window() Window {
	if p.Window.IsZero() {
		return DefaultWindow
	}
	return p.Window
}

// Classify maps a start and optional end instant to a Status at now.
//
// A post without a start never expires. A start strictly after now is Soon.
// Once started, an explicit end decides expiry; otherwise the post expires
// when now passes start plus the window.
func (p Policy) Classify(start, end *time.Time, now time.Time) Status {
	if start == nil {
		return Active
	}
	if start.After(now) {
		return Soon
	}
	if end != nil {
		if end.Before(now) {
			return Expired
		}
		return Active
	}
	if now.After(p.window().AddTo(*start)) {
		return Expired
	}
	return Active
}

// ClassifyPost classifies post at now.
func (p Policy) ClassifyPost(post *models.Post, now time.Time) Status {
	return p.Classify(post.DateTime, post.EndDateTime, now)
}

// ExpiresAt reports the instant after which a post with these dates is
// expired, or nil when it never expires.
func (p Policy) ExpiresAt(start, end *time.Time) *time.Time {
	if start == nil {
		return nil
	}
	if end != nil {
		t := *end
		return &t
	}
	t := p.window().AddTo(*start)
	return &t
}

// Annotate sets the derived Status and ExpiresAt fields on each post.
func (p Policy) Annotate(now time.Time, posts ...*models.Post) {
	for _, post := range posts {
		if post == nil {
			continue
		}
		post.Status = string(p.ClassifyPost(post, now))
		post.ExpiresAt = p.ExpiresAt(post.DateTime, post.EndDateTime)
	}
}

// ParseStatus validates a status filter value.
func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case Active, Soon, Expired:
		return Status(s), true
	}
	return "", false
}
