package service

import (
	"context"

	"agora/internal/models"
	"agora/internal/observability"
	"agora/internal/replytree"
	"agora/internal/repository"
	"agora/internal/validation"
)

const (
	userActivityLimit = 200
)

// ReplyService creates replies and renders threads through replytree.
type ReplyService struct {
	replyRepo repository.ReplyRepository
	postRepo  repository.PostRepository
	events    EventPublisher
	maxIndent int
}

type CreateReplyInput struct {
	PostID        uint   `json:"-"`
	UserID        uint   `json:"-"`
	ParentReplyID *uint  `json:"parent_reply_id"`
	Text          string `json:"text" validate:"required,max=5000"`
}

// ThreadEntry is one line of a rendered thread. Indent is Depth clamped for
// display.
type ThreadEntry struct {
	replytree.Entry
	Indent int `json:"indent"`
}

// ActivityGroup is one post's worth of a user's replies.
type ActivityGroup struct {
	PostID  uint          `json:"post_id"`
	Post    *models.Post  `json:"post,omitempty"`
	Entries []ThreadEntry `json:"entries"`
}

func NewReplyService(replyRepo repository.ReplyRepository, postRepo repository.PostRepository, events EventPublisher, maxIndent int) *ReplyService {
	if maxIndent <= 0 {
		maxIndent = replytree.DefaultMaxIndent
	}
	return &ReplyService{
		replyRepo: replyRepo,
		postRepo:  postRepo,
		events:    publisherOrNoop(events),
		maxIndent: maxIndent,
	}
}

func (s *ReplyService) CreateReply(ctx context.Context, in CreateReplyInput) (*models.Reply, error) {
	if in.UserID == 0 {
		return nil, models.NewUnauthorizedError("Authentication required")
	}
	in.Text = validation.SanitizeText(in.Text)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	if _, err := s.postRepo.GetByID(ctx, in.PostID); err != nil {
		return nil, err
	}
	if in.ParentReplyID != nil {
		parent, err := s.replyRepo.GetByID(ctx, *in.ParentReplyID)
		if err != nil {
			if models.ErrorCode(err) == models.CodeNotFound {
				return nil, models.NewValidationError("parent reply does not exist")
			}
			return nil, err
		}
		if parent.PostID != in.PostID {
			return nil, models.NewValidationError("parent reply belongs to another post")
		}
	}

	reply := &models.Reply{
		PostID:        in.PostID,
		ParentReplyID: in.ParentReplyID,
		UserID:        in.UserID,
		Text:          in.Text,
	}
	if err := s.replyRepo.Create(ctx, reply); err != nil {
		return nil, models.NewInternalError(err)
	}

	observability.RepliesCreated.Inc()
	s.events.PublishReplyEvent(ctx, in.PostID, EventReplyCreated, reply)
	return reply, nil
}

// GetThread returns the post's replies in display order.
func (s *ReplyService) GetThread(ctx context.Context, postID uint) ([]ThreadEntry, error) {
	if _, err := s.postRepo.GetByID(ctx, postID); err != nil {
		return nil, err
	}
	replies, err := s.replyRepo.ListByPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	return s.render(replies), nil
}

// GetUserActivity groups the user's recent replies by post, most recently
// active post first, and renders each group as a thread.
func (s *ReplyService) GetUserActivity(ctx context.Context, userID uint) ([]ActivityGroup, error) {
	replies, err := s.replyRepo.ListByUser(ctx, userID, userActivityLimit)
	if err != nil {
		return nil, err
	}

	order := make([]uint, 0)
	byPost := make(map[uint][]models.Reply)
	for _, r := range replies {
		if _, seen := byPost[r.PostID]; !seen {
			order = append(order, r.PostID)
		}
		byPost[r.PostID] = append(byPost[r.PostID], r)
	}

	groups := make([]ActivityGroup, 0, len(order))
	for _, postID := range order {
		group := ActivityGroup{PostID: postID, Entries: s.render(byPost[postID])}
		if post, err := s.postRepo.GetByID(ctx, postID); err == nil {
			group.Post = post
		} else if models.ErrorCode(err) != models.CodeNotFound {
			return nil, err
		}
		groups = append(groups, group)
	}
	return groups, nil
}

func (s *ReplyService) render(replies []models.Reply) []ThreadEntry {
	entries := replytree.Build(replies)
	out := make([]ThreadEntry, len(entries))
	for i, e := range entries {
		out[i] = ThreadEntry{Entry: e, Indent: replytree.Indent(e.Depth, s.maxIndent)}
	}
	return out
}
