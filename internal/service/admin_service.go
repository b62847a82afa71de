package service

import (
	"context"
	"time"

	"agora/internal/lifecycle"
	"agora/internal/models"
	"agora/internal/observability"
	"agora/internal/repository"

	"go.opentelemetry.io/otel/attribute"
)

const expiredScanBatch = 500

// AdminService holds moderator operations: pinning, promotion and the bulk
// delete of expired posts.
type AdminService struct {
	postRepo repository.PostRepository
	userRepo repository.UserRepository
	policy   lifecycle.Policy
	events   EventPublisher
	now      Clock
}

// DeleteExpiredResult reports a bulk delete. With DryRun set nothing was removed.
type DeleteExpiredResult struct {
	Matched int    `json:"matched" yaml:"matched"`
	Deleted int64  `json:"deleted" yaml:"deleted"`
	DryRun  bool   `json:"dry_run" yaml:"dry_run"`
	PostIDs []uint `json:"post_ids" yaml:"post_ids"`
}

var pinColumns = []string{"pinned", "pinned_at", "pinned_by"}

func NewAdminService(
	postRepo repository.PostRepository,
	userRepo repository.UserRepository,
	policy lifecycle.Policy,
	events EventPublisher,
	now Clock,
) *AdminService {
	if now == nil {
		now = time.Now
	}
	return &AdminService{
		postRepo: postRepo,
		userRepo: userRepo,
		policy:   policy,
		events:   publisherOrNoop(events),
		now:      now,
	}
}

// PinPost keeps a post at the top of listings. Pinning a pinned post keeps
// the original pin time.
func (s *AdminService) PinPost(ctx context.Context, adminID, postID uint) (*models.Post, error) {
	return s.setPinned(ctx, adminID, postID, true)
}

func (s *AdminService) UnpinPost(ctx context.Context, adminID, postID uint) (*models.Post, error) {
	return s.setPinned(ctx, adminID, postID, false)
}

func (s *AdminService) setPinned(ctx context.Context, adminID, postID uint, pinned bool) (*models.Post, error) {
	observability.LogServiceCall(ctx, "AdminService", "setPinned", map[string]interface{}{
		"admin_id": adminID, "post_id": postID, "pinned": pinned,
	})

	changed := false
	post, err := s.postRepo.Mutate(ctx, postID, pinColumns, func(p *models.Post) (bool, error) {
		if p.Pinned == pinned {
			return false, nil
		}
		p.Pinned = pinned
		if pinned {
			at := s.now()
			by := adminID
			p.PinnedAt = &at
			p.PinnedBy = &by
		} else {
			p.PinnedAt = nil
			p.PinnedBy = nil
		}
		changed = true
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	s.policy.Annotate(s.now(), post)
	if changed {
		s.events.PublishPostEvent(ctx, EventPostPinned, map[string]interface{}{
			"id":     post.ID,
			"pinned": post.Pinned,
		})
	}
	return post, nil
}

// SetAdmin grants or revokes moderator rights. Granting works for provider
// users that have not signed in yet.
func (s *AdminService) SetAdmin(ctx context.Context, userID uint, isAdmin bool) error {
	if userID == 0 {
		return models.NewValidationError("user id is required")
	}
	if isAdmin {
		if err := s.userRepo.EnsureExists(ctx, userID, ""); err != nil {
			return err
		}
	}
	return s.userRepo.SetAdmin(ctx, userID, isAdmin)
}

// DeleteExpiredPosts removes every post the lifecycle policy classifies as
// expired, together with its replies.
func (s *AdminService) DeleteExpiredPosts(ctx context.Context, dryRun bool) (*DeleteExpiredResult, error) {
	span, ctx := observability.NewSpan(ctx, "admin.DeleteExpiredPosts",
		attribute.Bool("admin.dry_run", dryRun),
	)
	defer span.End()

	now := s.now()
	ids := make([]uint, 0)
	var afterID uint
	for {
		batch, err := s.postRepo.ListDated(ctx, afterID, expiredScanBatch)
		if err != nil {
			span.SetError(err)
			return nil, models.NewInternalError(err)
		}
		for _, p := range batch {
			if s.policy.ClassifyPost(p, now) == lifecycle.Expired {
				ids = append(ids, p.ID)
			}
		}
		if len(batch) < expiredScanBatch {
			break
		}
		afterID = batch[len(batch)-1].ID
	}

	span.AddAttributes(attribute.Int("admin.matched", len(ids)))
	result := &DeleteExpiredResult{Matched: len(ids), DryRun: dryRun, PostIDs: ids}
	if dryRun || len(ids) == 0 {
		return result, nil
	}

	deleted, err := s.postRepo.DeleteByIDs(ctx, ids)
	if err != nil {
		span.SetError(err)
		return nil, models.NewInternalError(err)
	}
	span.AddAttributes(attribute.Int64("admin.deleted", deleted))
	result.Deleted = deleted
	observability.ExpiredPostsDeleted.Add(float64(deleted))
	observability.GlobalLogger.InfoContext(ctx, "deleted expired posts", "matched", len(ids), "deleted", deleted)
	for _, id := range ids {
		s.events.PublishPostEvent(ctx, EventPostDeleted, map[string]uint{"id": id})
	}
	return result, nil
}
