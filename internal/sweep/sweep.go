// Package sweep strips image payloads from expired posts and reports what was
// reclaimed. It only decides and accounts; persistence is injected.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"agora/internal/lifecycle"
	"agora/internal/models"
)

// DefaultLegacyEstimateKB is the assumed size of a URL-only image.
const DefaultLegacyEstimateKB = 500

// DefaultReason is stamped on posts whose image was stripped.
const DefaultReason = "Image removed automatically after the post expired"

// Patch holds only the image fields the sweep writes. Other post fields are
// left alone so concurrent owner edits survive.
type Patch struct {
	ImageData          string
	ImageSize          int64
	ImageURL           string
	ImageExpired       bool
	ImageExpiredAt     time.Time
	ImageExpiredReason string
}

// Columns renders the patch as a column map for a partial update.
func (p Patch) Columns() map[string]interface{} {
	return map[string]interface{}{
		"image_data":           p.ImageData,
		"image_size":           p.ImageSize,
		"image_url":            p.ImageURL,
		"image_expired":        p.ImageExpired,
		"image_expired_at":     p.ImageExpiredAt,
		"image_expired_reason": p.ImageExpiredReason,
	}
}

// ErrAlreadyExpired tells Run that another writer stripped the image first.
// The post is neither counted nor reported as a failure.
var ErrAlreadyExpired = errors.New("image already expired")

// ExpireFunc persists a patch for one post.
type ExpireFunc func(ctx context.Context, post *models.Post, patch Patch) error

// Failure is a per-post error collected during a run.
type Failure struct {
	PostID uint   `json:"post_id" yaml:"post_id"`
	Error  string `json:"error" yaml:"error"`
}

// Stats summarizes one run. Counters only include successful updates.
type Stats struct {
	TotalPostsChecked int           `json:"total_posts_checked" yaml:"total_posts_checked"`
	ExpiredPostsFound int           `json:"expired_posts_found" yaml:"expired_posts_found"`
	ImagesRemoved     int           `json:"images_removed" yaml:"images_removed"`
	StorageFreedKB    int64         `json:"storage_freed_kb" yaml:"storage_freed_kb"`
	StorageFreedBytes int64         `json:"storage_freed_bytes" yaml:"storage_freed_bytes"`
	LastCleanup       time.Time     `json:"last_cleanup" yaml:"last_cleanup"`
	Duration          time.Duration `json:"duration_ns" yaml:"duration"`
	Errors            []Failure     `json:"errors" yaml:"errors"`
}

// Merge adds the counters of other into s, keeping the later timestamp.
func (s *Stats) Merge(other Stats) {
	s.TotalPostsChecked += other.TotalPostsChecked
	s.ExpiredPostsFound += other.ExpiredPostsFound
	s.ImagesRemoved += other.ImagesRemoved
	s.StorageFreedBytes += other.StorageFreedBytes
	s.StorageFreedKB = kilobytes(s.StorageFreedBytes)
	s.Duration += other.Duration
	s.Errors = append(s.Errors, other.Errors...)
	if other.LastCleanup.After(s.LastCleanup) {
		s.LastCleanup = other.LastCleanup
	}
}

// kilobytes rounds a byte total to the nearest KB.
func kilobytes(n int64) int64 {
	return int64(math.Round(float64(n) / 1024))
}

// Sweeper runs the expiration policy over a batch of posts.
type Sweeper struct {
	Policy           lifecycle.Policy
	LegacyEstimateKB int64
	Reason           string
	Now              func() time.Time
}

// New returns a Sweeper with the given policy and legacy estimate.
func New(policy lifecycle.Policy, legacyEstimateKB int64) *Sweeper {
	if legacyEstimateKB <= 0 {
		legacyEstimateKB = DefaultLegacyEstimateKB
	}
	return &Sweeper{
		Policy:           policy,
		LegacyEstimateKB: legacyEstimateKB,
		Reason:           DefaultReason,
		Now:              time.Now,
	}
}

// Eligible reports whether post is expired at now and still carries an image.
func (s *Sweeper) Eligible(post *models.Post, now time.Time) bool {
	if post == nil || post.ImageExpired || !post.HasImage() {
		return false
	}
	return s.Policy.ClassifyPost(post, now) == lifecycle.Expired
}

// EstimateBytes returns the bytes reclaimed by stripping post's image.
// Inline data uses the declared size, falling back to the decoded base64
// length; URL-only posts use the legacy estimate.
func (s *Sweeper) EstimateBytes(post *models.Post) int64 {
	if post.ImageData != "" || post.HasImageData {
		if post.ImageSize > 0 {
			return post.ImageSize
		}
		return int64(len(post.ImageData)) * 3 / 4
	}
	if post.ImageURL != "" {
		return s.legacyKB() * 1024
	}
	return 0
}

func (s *Sweeper) legacyKB() int64 {
	if s.LegacyEstimateKB <= 0 {
		return DefaultLegacyEstimateKB
	}
	return s.LegacyEstimateKB
}

// Run expires every eligible post. A failed update is recorded and the run
// continues. Cancelling ctx stops before the next post.
func (s *Sweeper) Run(ctx context.Context, posts []*models.Post, expire ExpireFunc) Stats {
	nowFn := s.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	started := time.Now()
	now := nowFn()
	reason := s.Reason
	if reason == "" {
		reason = DefaultReason
	}

	stats := Stats{
		TotalPostsChecked: len(posts),
		LastCleanup:       now,
		Errors:            []Failure{},
	}

	patch := Patch{
		ImageExpired:       true,
		ImageExpiredAt:     now,
		ImageExpiredReason: reason,
	}

	for _, post := range posts {
		if err := ctx.Err(); err != nil {
			stats.Errors = append(stats.Errors, Failure{Error: fmt.Sprintf("sweep interrupted: %v", err)})
			break
		}
		if !s.Eligible(post, now) {
			continue
		}
		stats.ExpiredPostsFound++

		freed := s.EstimateBytes(post)
		if err := s.expireOne(ctx, post, patch, expire); err != nil {
			if errors.Is(err, ErrAlreadyExpired) {
				stats.ExpiredPostsFound--
				continue
			}
			stats.Errors = append(stats.Errors, Failure{PostID: post.ID, Error: err.Error()})
			continue
		}
		stats.ImagesRemoved++
		stats.StorageFreedBytes += freed
	}

	stats.StorageFreedKB = kilobytes(stats.StorageFreedBytes)
	stats.Duration = time.Since(started)
	return stats
}

func (s *Sweeper) expireOne(ctx context.Context, post *models.Post, patch Patch, expire ExpireFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic expiring post %d: %v", post.ID, r)
		}
	}()
	return expire(ctx, post, patch)
}
