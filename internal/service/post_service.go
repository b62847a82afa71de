package service

import (
	"context"
	"time"

	"agora/internal/lifecycle"
	"agora/internal/models"
	"agora/internal/observability"
	"agora/internal/repository"
	"agora/internal/validation"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	statusScanBatch  = 200
)

// PostService owns post writes, attendance and the derived lifecycle status.
type PostService struct {
	postRepo      repository.PostRepository
	isAdmin       IsAdminFunc
	events        EventPublisher
	policy        lifecycle.Policy
	imageMaxBytes int64
	now           Clock
}

// PostServiceOptions tunes PostService.
type PostServiceOptions struct {
	Policy        lifecycle.Policy
	ImageMaxBytes int64
	Now           Clock
}

type CreatePostInput struct {
	UserID      uint       `json:"-"`
	Type        string     `json:"type" validate:"required,oneof=offer need"`
	Title       string     `json:"title" validate:"required,max=200"`
	Description string     `json:"description" validate:"required,max=10000"`
	Category    string     `json:"category" validate:"omitempty,category"`
	Location    string     `json:"location" validate:"omitempty,max=255"`
	DateTime    *time.Time `json:"date_time"`
	EndDateTime *time.Time `json:"end_date_time"`
	ImageData   string     `json:"image_data"`
	ImageSize   int64      `json:"image_size"`
	ImageURL    string     `json:"image_url"`
}

// UpdatePostInput replaces the editable fields of a post. Nil image fields
// keep the current image; an empty string removes it.
type UpdatePostInput struct {
	UserID      uint       `json:"-"`
	PostID      uint       `json:"-"`
	Type        string     `json:"type" validate:"required,oneof=offer need"`
	Title       string     `json:"title" validate:"required,max=200"`
	Description string     `json:"description" validate:"required,max=10000"`
	Category    string     `json:"category" validate:"omitempty,category"`
	Location    string     `json:"location" validate:"omitempty,max=255"`
	DateTime    *time.Time `json:"date_time"`
	EndDateTime *time.Time `json:"end_date_time"`
	ImageData   *string    `json:"image_data"`
	ImageSize   int64      `json:"image_size"`
	ImageURL    *string    `json:"image_url"`
}

type ListPostsInput struct {
	Type   string
	Status string
	UserID uint
	Limit  int
	Offset int
}

type DeletePostInput struct {
	UserID uint
	PostID uint
}

// editableColumns are written by UpdatePost. Image expiry, ratings and
// attendance are owned by their own write paths.
var editableColumns = []string{
	"type", "title", "description", "category", "location", "date_time", "end_date_time",
}

var imageColumns = []string{"image_data", "image_size", "image_url", "image_expired", "image_expired_at", "image_expired_reason"}

func NewPostService(
	postRepo repository.PostRepository,
	isAdmin IsAdminFunc,
	events EventPublisher,
	opts PostServiceOptions,
) *PostService {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &PostService{
		postRepo:      postRepo,
		isAdmin:       isAdmin,
		events:        publisherOrNoop(events),
		policy:        opts.Policy,
		imageMaxBytes: opts.ImageMaxBytes,
		now:           now,
	}
}

// Policy returns the lifecycle policy used for status badges.
func (s *PostService) Policy() lifecycle.Policy {
	return s.policy
}

func validateDates(start, end *time.Time) error {
	if end != nil && start == nil {
		return models.NewValidationError("end_date_time requires date_time")
	}
	if start != nil && end != nil && end.Before(*start) {
		return models.NewValidationError("end_date_time must not be before date_time")
	}
	return nil
}

func (s *PostService) CreatePost(ctx context.Context, in CreatePostInput) (*models.Post, error) {
	observability.LogServiceCall(ctx, "PostService", "CreatePost", map[string]interface{}{"user_id": in.UserID})

	if in.UserID == 0 {
		return nil, models.NewUnauthorizedError("Authentication required")
	}
	in.Title = validation.SanitizeText(in.Title)
	in.Description = validation.SanitizeText(in.Description)
	in.Location = validation.SanitizeText(in.Location)
	in.Category = validation.NormalizeCategory(in.Category)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if err := validateDates(in.DateTime, in.EndDateTime); err != nil {
		return nil, err
	}
	img := validation.ImageInput{Data: in.ImageData, Size: in.ImageSize, URL: in.ImageURL}
	if err := validation.ValidateImage(&img, s.imageMaxBytes); err != nil {
		return nil, err
	}

	post := &models.Post{
		UserID:      in.UserID,
		Type:        in.Type,
		Title:       in.Title,
		Description: in.Description,
		Category:    in.Category,
		Location:    in.Location,
		DateTime:    in.DateTime,
		EndDateTime: in.EndDateTime,
		ImageData:   img.Data,
		ImageSize:   img.Size,
		ImageURL:    img.URL,
		Attendees:   []uint{},
		Ratings:     []models.Rating{},
	}
	if err := s.postRepo.Create(ctx, post); err != nil {
		return nil, models.NewInternalError(err)
	}

	observability.PostsCreated.WithLabelValues(post.Type).Inc()
	s.policy.Annotate(s.now(), post)
	s.events.PublishPostEvent(ctx, EventPostCreated, post)
	return post, nil
}

func (s *PostService) GetPost(ctx context.Context, id uint) (*models.Post, error) {
	post, err := s.postRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.policy.Annotate(s.now(), post)
	return post, nil
}

// ListPosts returns posts pinned first, newest next. A status filter is
// applied after classification, scanning forward until the page is full.
func (s *PostService) ListPosts(ctx context.Context, in ListPostsInput) ([]*models.Post, error) {
	if in.Type != "" && in.Type != models.PostTypeOffer && in.Type != models.PostTypeNeed {
		return nil, models.NewValidationError("type must be one of: offer, need")
	}
	limit := in.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := in.Offset
	if offset < 0 {
		offset = 0
	}
	now := s.now()

	filter := repository.PostFilter{Type: in.Type, UserID: in.UserID}
	if in.Status == "" {
		filter.Limit = limit
		filter.Offset = offset
		posts, err := s.postRepo.List(ctx, filter)
		if err != nil {
			return nil, err
		}
		s.policy.Annotate(now, posts...)
		return posts, nil
	}

	status, ok := lifecycle.ParseStatus(in.Status)
	if !ok {
		return nil, models.NewValidationError("status must be one of: active, soon, expired")
	}
	if status == lifecycle.Soon {
		filter.StartsAfter = &now
	} else {
		filter.StartedBy = &now
	}

	result := make([]*models.Post, 0, limit)
	skipped := 0
	filter.Limit = statusScanBatch
	for {
		batch, err := s.postRepo.List(ctx, filter)
		if err != nil {
			return nil, err
		}
		for _, p := range batch {
			s.policy.Annotate(now, p)
			if lifecycle.Status(p.Status) != status {
				continue
			}
			if skipped < offset {
				skipped++
				continue
			}
			result = append(result, p)
			if len(result) == limit {
				return result, nil
			}
		}
		if len(batch) < filter.Limit {
			return result, nil
		}
		filter.Offset += len(batch)
	}
}

func (s *PostService) UpdatePost(ctx context.Context, in UpdatePostInput) (*models.Post, error) {
	in.Title = validation.SanitizeText(in.Title)
	in.Description = validation.SanitizeText(in.Description)
	in.Location = validation.SanitizeText(in.Location)
	in.Category = validation.NormalizeCategory(in.Category)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if err := validateDates(in.DateTime, in.EndDateTime); err != nil {
		return nil, err
	}

	columns := editableColumns
	var img *validation.ImageInput
	if in.ImageData != nil || in.ImageURL != nil {
		img = &validation.ImageInput{Size: in.ImageSize}
		if in.ImageData != nil {
			img.Data = *in.ImageData
		}
		if in.ImageURL != nil {
			img.URL = *in.ImageURL
		}
		if err := validation.ValidateImage(img, s.imageMaxBytes); err != nil {
			return nil, err
		}
		columns = append(append([]string{}, editableColumns...), imageColumns...)
	}

	post, err := s.postRepo.Mutate(ctx, in.PostID, columns, func(p *models.Post) (bool, error) {
		if p.UserID != in.UserID {
			return false, models.NewUnauthorizedError("You can only update your own posts")
		}
		p.Type = in.Type
		p.Title = in.Title
		p.Description = in.Description
		p.Category = in.Category
		p.Location = in.Location
		p.DateTime = in.DateTime
		p.EndDateTime = in.EndDateTime
		if img != nil {
			p.ImageData = img.Data
			p.ImageSize = img.Size
			p.ImageURL = img.URL
			p.ImageExpired = false
			p.ImageExpiredAt = nil
			p.ImageExpiredReason = ""
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	s.policy.Annotate(s.now(), post)
	s.events.PublishPostEvent(ctx, EventPostUpdated, post)
	return post, nil
}

func (s *PostService) DeletePost(ctx context.Context, in DeletePostInput) error {
	post, err := s.postRepo.GetByID(ctx, in.PostID)
	if err != nil {
		return err
	}
	if post.UserID != in.UserID {
		admin := false
		if s.isAdmin != nil {
			if admin, err = s.isAdmin(ctx, in.UserID); err != nil {
				return models.NewInternalError(err)
			}
		}
		if !admin {
			return models.NewUnauthorizedError("You can only delete your own posts")
		}
	}
	if err := s.postRepo.Delete(ctx, in.PostID); err != nil {
		return err
	}
	s.events.PublishPostEvent(ctx, EventPostDeleted, map[string]uint{"id": in.PostID})
	return nil
}

// Attend adds userID to the attendee set. Repeated calls are no-ops.
func (s *PostService) Attend(ctx context.Context, postID, userID uint) (*models.Post, error) {
	return s.setAttendance(ctx, postID, userID, true)
}

// Unattend removes userID from the attendee set. Repeated calls are no-ops.
func (s *PostService) Unattend(ctx context.Context, postID, userID uint) (*models.Post, error) {
	return s.setAttendance(ctx, postID, userID, false)
}

func (s *PostService) setAttendance(ctx context.Context, postID, userID uint, attend bool) (*models.Post, error) {
	if userID == 0 {
		return nil, models.NewUnauthorizedError("Authentication required")
	}
	changed := false
	post, err := s.postRepo.Mutate(ctx, postID, []string{"attendees", "attendee_count"}, func(p *models.Post) (bool, error) {
		attending := p.IsAttending(userID)
		switch {
		case attend && !attending:
			p.Attendees = append(p.Attendees, userID)
		case !attend && attending:
			kept := make([]uint, 0, len(p.Attendees))
			for _, id := range p.Attendees {
				if id != userID {
					kept = append(kept, id)
				}
			}
			p.Attendees = kept
		default:
			return false, nil
		}
		p.AttendeeCount = len(p.Attendees)
		changed = true
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	s.policy.Annotate(s.now(), post)
	if changed {
		s.events.PublishPostEvent(ctx, EventPostAttendance, post)
	}
	return post, nil
}
