// Package repository provides data access layer implementations for the application.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"agora/internal/cache"
	"agora/internal/models"
	"agora/internal/observability"
	"agora/internal/sweep"

	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PostFilter narrows List. StartedBy restricts to posts whose start date is
// unset or not after the given instant; StartsAfter to posts starting later.
type PostFilter struct {
	Type        string
	UserID      uint
	StartedBy   *time.Time
	StartsAfter *time.Time
	Limit       int
	Offset      int
}

// MutateFunc edits a row-locked post in place. Returning changed=false skips the write.
type MutateFunc func(post *models.Post) (changed bool, err error)

// PostRepository defines the interface for post data operations
type PostRepository interface {
	Create(ctx context.Context, post *models.Post) error
	GetByID(ctx context.Context, id uint) (*models.Post, error)
	List(ctx context.Context, filter PostFilter) ([]*models.Post, error)
	ListForSweep(ctx context.Context, afterID uint, limit int) ([]*models.Post, error)
	ListDated(ctx context.Context, afterID uint, limit int) ([]*models.Post, error)
	Update(ctx context.Context, post *models.Post) error
	Delete(ctx context.Context, id uint) error
	DeleteByIDs(ctx context.Context, ids []uint) (int64, error)
	ExpireImage(ctx context.Context, id uint, patch sweep.Patch) (bool, error)
	Mutate(ctx context.Context, id uint, columns []string, fn MutateFunc) (*models.Post, error)
}

// postRepository implements PostRepository
type postRepository struct {
	db *gorm.DB
}

// NewPostRepository creates a new post repository
func NewPostRepository(db *gorm.DB) PostRepository {
	return &postRepository{db: db}
}

// summaryColumns loads everything the classifier and the sweep need without
// the inline image payload. image_size falls back to the decoded length of
// the base64 payload when no size was declared.
var summaryColumns = []string{
	"id", "user_id", "type", "title", "date_time", "end_date_time",
	"image_url", "image_expired", "pinned", "created_at",
	"CASE WHEN image_size > 0 THEN image_size ELSE COALESCE(LENGTH(image_data), 0) * 3 / 4 END AS image_size",
	"(image_data IS NOT NULL AND image_data <> '') AS has_image_data",
}

func (r *postRepository) Create(ctx context.Context, post *models.Post) error {
	err := r.db.WithContext(ctx).Create(post).Error
	if err == nil {
		cache.InvalidatePostsList(ctx)
	}
	return err
}

func (r *postRepository) GetByID(ctx context.Context, id uint) (*models.Post, error) {
	var post models.Post
	err := cache.Aside(ctx, cache.PostKey(id), &post, cache.PostTTL, func() error {
		if err := r.db.WithContext(ctx).Preload("User").First(&post, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.NewNotFoundError("Post", id)
			}
			return models.NewInternalError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &post, nil
}

func (r *postRepository) List(ctx context.Context, filter PostFilter) ([]*models.Post, error) {
	// Time-bounded filters shift with the clock, so only the plain listing
	// is worth caching.
	if filter.StartedBy != nil || filter.StartsAfter != nil {
		return r.list(ctx, filter)
	}

	var posts []*models.Post
	variant := fmt.Sprintf("type=%s:user=%d:limit=%d:offset=%d", filter.Type, filter.UserID, filter.Limit, filter.Offset)
	err := cache.Aside(ctx, cache.PostsListKey(ctx, variant), &posts, cache.ListTTL, func() error {
		var err error
		posts, err = r.list(ctx, filter)
		return err
	})
	if err != nil {
		return nil, err
	}
	return posts, nil
}

func (r *postRepository) list(ctx context.Context, filter PostFilter) ([]*models.Post, error) {
	q := r.db.WithContext(ctx).Model(&models.Post{}).Preload("User")
	if filter.Type != "" {
		q = q.Where("type = ?", filter.Type)
	}
	if filter.UserID != 0 {
		q = q.Where("user_id = ?", filter.UserID)
	}
	if filter.StartedBy != nil {
		q = q.Where("date_time IS NULL OR date_time <= ?", *filter.StartedBy)
	}
	if filter.StartsAfter != nil {
		q = q.Where("date_time > ?", *filter.StartsAfter)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	var posts []*models.Post
	err := q.Order("pinned DESC").
		Order("pinned_at DESC").
		Order("created_at DESC").
		Order("id DESC").
		Find(&posts).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return posts, nil
}

// ListForSweep pages through every live post in id order without loading
// image payloads. Posts already stripped are included so the sweep can
// report how many posts it checked; the sweeper skips them.
func (r *postRepository) ListForSweep(ctx context.Context, afterID uint, limit int) ([]*models.Post, error) {
	var posts []*models.Post
	err := r.db.WithContext(ctx).
		Model(&models.Post{}).
		Select(summaryColumns).
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Find(&posts).Error
	if err != nil {
		return nil, fmt.Errorf("list posts for sweep: %w", err)
	}
	return posts, nil
}

// ListDated pages through posts with a start date. Undated posts never expire.
func (r *postRepository) ListDated(ctx context.Context, afterID uint, limit int) ([]*models.Post, error) {
	var posts []*models.Post
	err := r.db.WithContext(ctx).
		Model(&models.Post{}).
		Select(summaryColumns).
		Where("id > ? AND date_time IS NOT NULL", afterID).
		Order("id ASC").
		Limit(limit).
		Find(&posts).Error
	if err != nil {
		return nil, fmt.Errorf("list dated posts: %w", err)
	}
	return posts, nil
}

func (r *postRepository) Update(ctx context.Context, post *models.Post) error {
	if err := r.db.WithContext(ctx).Omit("User").Save(post).Error; err != nil {
		return err
	}
	cache.Invalidate(ctx, cache.PostKey(post.ID))
	cache.InvalidatePostsList(ctx)
	return nil
}

// Delete removes the post together with its replies.
func (r *postRepository) Delete(ctx context.Context, id uint) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ?", id).Delete(&models.Reply{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.Post{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return models.NewNotFoundError("Post", id)
		}
		return nil
	})
	if err != nil {
		return err
	}
	cache.InvalidatePost(ctx, id)
	cache.InvalidatePostsList(ctx)
	return nil
}

// DeleteByIDs removes posts and their replies, returning the number of posts deleted.
func (r *postRepository) DeleteByIDs(ctx context.Context, ids []uint) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var deleted int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id IN ?", ids).Delete(&models.Reply{}).Error; err != nil {
			return err
		}
		res := tx.Where("id IN ?", ids).Delete(&models.Post{})
		deleted = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		cache.InvalidatePost(ctx, id)
	}
	cache.InvalidatePostsList(ctx)
	return deleted, nil
}

// ExpireImage writes only the image columns so concurrent edits to other
// fields survive. It reports false when the image was already expired.
func (r *postRepository) ExpireImage(ctx context.Context, id uint, patch sweep.Patch) (bool, error) {
	ctx, span := observability.TraceRepositoryMethod(ctx, "ExpireImage", "posts")
	defer span.End()
	span.SetAttributes(observability.PostAttr(id))

	res := r.db.WithContext(ctx).
		Model(&models.Post{}).
		Where("id = ? AND image_expired = ?", id, false).
		Updates(patch.Columns())
	if res.Error != nil {
		span.RecordError(res.Error)
		span.SetStatus(codes.Error, res.Error.Error())
		return false, res.Error
	}
	cache.Invalidate(ctx, cache.PostKey(id))
	return res.RowsAffected > 0, nil
}

// Mutate loads the post under a row lock, lets fn edit it, then writes back
// only columns. Concurrent calls on the same post serialize on the lock.
func (r *postRepository) Mutate(ctx context.Context, id uint, columns []string, fn MutateFunc) (*models.Post, error) {
	ctx, span := observability.TraceRepositoryMethod(ctx, "Mutate", "posts")
	defer span.End()
	span.SetAttributes(observability.PostAttr(id))

	var post models.Post
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&post, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.NewNotFoundError("Post", id)
			}
			return err
		}

		changed, err := fn(&post)
		if err != nil || !changed {
			return err
		}

		post.UpdatedAt = time.Now()
		selected := append([]string{"updated_at"}, columns...)
		return tx.Model(&post).Select(selected).Updates(&post).Error
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	cache.Invalidate(ctx, cache.PostKey(id))
	cache.InvalidatePostsList(ctx)
	return &post, nil
}
