// Package models contains data structures for the application's domain models.
package models

import (
	"time"

	"gorm.io/gorm"
)

// Post types.
const (
	PostTypeOffer = "offer"
	PostTypeNeed  = "need"
)

// Post is a marketplace listing: something a member offers or needs.
//
// The three image states are mutually exclusive: inline ImageData with its
// declared ImageSize, a legacy ImageURL, or ImageExpired after the sweep
// stripped the payload.
type Post struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	UserID      uint       `gorm:"not null;index" json:"user_id"`
	User        *User      `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Type        string     `gorm:"size:16;not null;index" json:"type"`
	Title       string     `gorm:"not null" json:"title"`
	Description string     `gorm:"type:text;not null" json:"description"`
	Category    string     `gorm:"size:64;index" json:"category,omitempty"`
	Location    string     `gorm:"size:255" json:"location,omitempty"`
	DateTime    *time.Time `gorm:"index" json:"date_time,omitempty"`
	EndDateTime *time.Time `json:"end_date_time,omitempty"`

	Attendees     []uint `gorm:"serializer:json;type:text" json:"attendees"`
	AttendeeCount int    `gorm:"not null;default:0" json:"attendee_count"`

	Ratings       []Rating `gorm:"serializer:json;type:text" json:"ratings"`
	AverageRating float64  `gorm:"not null;default:0" json:"average_rating"`
	RatingCount   int      `gorm:"not null;default:0" json:"rating_count"`

	ImageData          string     `gorm:"type:text" json:"image_data,omitempty"`
	ImageSize          int64      `gorm:"not null;default:0" json:"image_size,omitempty"`
	ImageURL           string     `json:"image_url,omitempty"`
	ImageExpired       bool       `gorm:"not null;default:false;index" json:"image_expired"`
	ImageExpiredAt     *time.Time `json:"image_expired_at,omitempty"`
	ImageExpiredReason string     `json:"image_expired_reason,omitempty"`
	// HasImageData is not persisted; list queries compute it instead of loading the payload
	HasImageData bool `gorm:"->;-:migration" json:"-"`

	Pinned   bool       `gorm:"not null;default:false;index" json:"pinned"`
	PinnedAt *time.Time `json:"pinned_at,omitempty"`
	PinnedBy *uint      `json:"pinned_by,omitempty"`

	// Status and ExpiresAt are derived from the date fields on every read
	Status    string     `gorm:"-" json:"status"`
	ExpiresAt *time.Time `gorm:"-" json:"expires_at,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// HasImage reports whether the post still holds an image payload or reference.
func (p *Post) HasImage() bool {
	return p.ImageData != "" || p.HasImageData || p.ImageURL != ""
}

// IsAttending reports whether userID is in the attendee set.
func (p *Post) IsAttending(userID uint) bool {
	for _, id := range p.Attendees {
		if id == userID {
			return true
		}
	}
	return false
}
