package models

import (
	"time"

	"gorm.io/gorm"
)

// User mirrors an account owned by the external auth provider. Only the
// fields the marketplace needs are kept locally.
type User struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Username    string         `gorm:"size:64;uniqueIndex;not null" json:"username"`
	DisplayName string         `gorm:"size:128" json:"display_name,omitempty"`
	IsAdmin     bool           `gorm:"not null;default:false" json:"is_admin"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}
