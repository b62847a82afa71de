package models

import "time"

// CleanupRun records the outcome of one image expiration sweep.
type CleanupRun struct {
	ID                uint      `gorm:"primaryKey" json:"id" yaml:"id"`
	RunID             string    `gorm:"size:36;uniqueIndex;not null" json:"run_id" yaml:"run_id"`
	Trigger           string    `gorm:"size:32;not null" json:"trigger" yaml:"trigger"`
	TotalPostsChecked int       `json:"total_posts_checked" yaml:"total_posts_checked"`
	ExpiredPostsFound int       `json:"expired_posts_found" yaml:"expired_posts_found"`
	ImagesRemoved     int       `json:"images_removed" yaml:"images_removed"`
	StorageFreedKB    int64     `json:"storage_freed_kb" yaml:"storage_freed_kb"`
	ErrorCount        int       `json:"error_count" yaml:"error_count"`
	Errors            []string  `gorm:"serializer:json;type:text" json:"errors,omitempty" yaml:"errors,omitempty"`
	DurationMs        int64     `json:"duration_ms" yaml:"duration_ms"`
	LastCleanup       time.Time `gorm:"index" json:"last_cleanup" yaml:"last_cleanup"`
	CreatedAt         time.Time `json:"created_at" yaml:"created_at"`
}
