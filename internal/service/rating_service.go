package service

import (
	"context"
	"time"

	"agora/internal/models"
	"agora/internal/observability"
	"agora/internal/rating"
	"agora/internal/repository"

	"go.opentelemetry.io/otel/attribute"
)

// RatingService records one rating per user per post and keeps the post's
// aggregate in step, all inside the post's row lock.
type RatingService struct {
	postRepo repository.PostRepository
	events   EventPublisher
	now      Clock
}

type SubmitRatingInput struct {
	PostID  uint   `json:"-"`
	UserID  uint   `json:"-"`
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

var ratingColumns = []string{"ratings", "average_rating", "rating_count"}

func NewRatingService(postRepo repository.PostRepository, events EventPublisher, now Clock) *RatingService {
	if now == nil {
		now = time.Now
	}
	return &RatingService{postRepo: postRepo, events: publisherOrNoop(events), now: now}
}

// SubmitRating validates before touching storage, so a rejected value never
// changes the post.
func (s *RatingService) SubmitRating(ctx context.Context, in SubmitRatingInput) (*rating.Result, error) {
	span, ctx := observability.NewSpan(ctx, "rating.Submit",
		observability.PostAttr(in.PostID),
		observability.UserAttr(in.UserID),
	)
	defer span.End()

	sub := rating.Submission{UserID: in.UserID, Value: in.Rating, Comment: in.Comment}
	if err := sub.Validate(); err != nil {
		span.SetError(err)
		observability.RatingsSubmitted.WithLabelValues("rejected").Inc()
		return nil, err
	}

	var result rating.Result
	outcome := "created"
	post, err := s.postRepo.Mutate(ctx, in.PostID, ratingColumns, func(p *models.Post) (bool, error) {
		for _, r := range p.Ratings {
			if r.UserID == in.UserID {
				outcome = "updated"
				break
			}
		}
		res, err := rating.Submit(p.Ratings, sub, s.now())
		if err != nil {
			return false, err
		}
		p.Ratings = res.Ratings
		p.AverageRating = res.Average
		p.RatingCount = res.Count
		result = res
		return true, nil
	})
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	span.AddAttributes(attribute.String("rating.outcome", outcome))
	observability.RatingsSubmitted.WithLabelValues(outcome).Inc()
	s.events.PublishPostEvent(ctx, EventPostRated, map[string]interface{}{
		"id":             post.ID,
		"average_rating": post.AverageRating,
		"rating_count":   post.RatingCount,
	})
	return &result, nil
}
