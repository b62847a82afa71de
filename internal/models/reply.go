package models

import (
	"time"

	"gorm.io/gorm"
)

// Reply is a comment on a post. ParentReplyID points at another reply of the
// same post; nesting depth is never stored.
type Reply struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	PostID        uint           `gorm:"not null;index" json:"post_id"`
	ParentReplyID *uint          `gorm:"index" json:"parent_reply_id,omitempty"`
	UserID        uint           `gorm:"not null;index" json:"user_id"`
	User          *User          `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Text          string         `gorm:"type:text;not null" json:"text"`
	CreatedAt     time.Time      `gorm:"index" json:"created_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

// Rating is one member's score for a post. It is embedded in Post.Ratings.
type Rating struct {
	UserID    uint      `json:"user_id"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
