package repository

import (
	"context"
	"errors"

	"agora/internal/cache"
	"agora/internal/models"

	"gorm.io/gorm"
)

// ReplyRepository defines persistence operations for replies.
type ReplyRepository interface {
	Create(ctx context.Context, reply *models.Reply) error
	GetByID(ctx context.Context, id uint) (*models.Reply, error)
	ListByPost(ctx context.Context, postID uint) ([]models.Reply, error)
	ListByUser(ctx context.Context, userID uint, limit int) ([]models.Reply, error)
}

type replyRepository struct {
	db *gorm.DB
}

// NewReplyRepository returns a new ReplyRepository implementation.
func NewReplyRepository(db *gorm.DB) ReplyRepository {
	return &replyRepository{db: db}
}

func (r *replyRepository) Create(ctx context.Context, reply *models.Reply) error {
	if err := r.db.WithContext(ctx).Omit("User").Create(reply).Error; err != nil {
		return err
	}
	cache.Invalidate(ctx, cache.RepliesKey(reply.PostID))
	return nil
}

func (r *replyRepository) GetByID(ctx context.Context, id uint) (*models.Reply, error) {
	var reply models.Reply
	if err := r.db.WithContext(ctx).First(&reply, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Reply", id)
		}
		return nil, models.NewInternalError(err)
	}
	return &reply, nil
}

// ListByPost returns every reply of the post in creation order.
func (r *replyRepository) ListByPost(ctx context.Context, postID uint) ([]models.Reply, error) {
	var replies []models.Reply
	err := cache.Aside(ctx, cache.RepliesKey(postID), &replies, cache.RepliesTTL, func() error {
		return r.db.WithContext(ctx).
			Preload("User").
			Where("post_id = ?", postID).
			Order("created_at ASC").
			Order("id ASC").
			Find(&replies).Error
	})
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return replies, nil
}

// ListByUser returns the user's most recent replies, newest first.
func (r *replyRepository) ListByUser(ctx context.Context, userID uint, limit int) ([]models.Reply, error) {
	var replies []models.Reply
	q := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&replies).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return replies, nil
}
