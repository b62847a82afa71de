package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"agora/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptrUint(v uint) *uint { return &v }

func reply(id, postID uint, parent *uint, minute int) models.Reply {
	return models.Reply{
		ID:            id,
		PostID:        postID,
		ParentReplyID: parent,
		UserID:        1,
		Text:          "r",
		CreatedAt:     testNow.Add(time.Duration(minute) * time.Minute),
	}
}

func TestReplyService_CreateReply_Validation(t *testing.T) {
	t.Parallel()

	replies := noopReplyRepo()
	replies.getByIDFn = func(_ context.Context, id uint) (*models.Reply, error) {
		if id == 50 {
			return &models.Reply{ID: 50, PostID: 2}, nil
		}
		return nil, models.NewNotFoundError("Reply", id)
	}
	svc := NewReplyService(replies, noopPostRepo(), nil, 0)
	ctx := context.Background()

	_, err := svc.CreateReply(ctx, CreateReplyInput{PostID: 1, Text: "hi"})
	assertUnauthorizedError(t, err)

	_, err = svc.CreateReply(ctx, CreateReplyInput{PostID: 1, UserID: 1, Text: "  <i></i> "})
	assertValidationError(t, err)

	_, err = svc.CreateReply(ctx, CreateReplyInput{PostID: 1, UserID: 1, Text: "hi", ParentReplyID: ptrUint(99)})
	assertValidationError(t, err)

	_, err = svc.CreateReply(ctx, CreateReplyInput{PostID: 1, UserID: 1, Text: "hi", ParentReplyID: ptrUint(50)})
	assertValidationError(t, err)
}

func TestReplyService_CreateReply_UnknownPost(t *testing.T) {
	t.Parallel()

	posts := noopPostRepo()
	posts.getByIDFn = func(_ context.Context, id uint) (*models.Post, error) {
		return nil, models.NewNotFoundError("Post", id)
	}
	svc := NewReplyService(noopReplyRepo(), posts, nil, 0)

	_, err := svc.CreateReply(context.Background(), CreateReplyInput{PostID: 4, UserID: 1, Text: "hi"})
	assertAppErrorCode(t, err, models.CodeNotFound)
}

func TestReplyService_CreateReply_Success(t *testing.T) {
	t.Parallel()

	var created *models.Reply
	replies := noopReplyRepo()
	replies.getByIDFn = func(_ context.Context, id uint) (*models.Reply, error) {
		return &models.Reply{ID: id, PostID: 3}, nil
	}
	replies.createFn = func(_ context.Context, r *models.Reply) error {
		r.ID = 11
		created = r
		return nil
	}
	events := &eventRecorder{}
	svc := NewReplyService(replies, noopPostRepo(), events, 0)

	out, err := svc.CreateReply(context.Background(), CreateReplyInput{
		PostID: 3, UserID: 2, Text: "<b>count me in</b>", ParentReplyID: ptrUint(10),
	})
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, uint(11), out.ID)
	assert.Equal(t, "count me in", out.Text)
	assert.Equal(t, uint(10), *out.ParentReplyID)

	require.Len(t, events.events, 1)
	assert.Equal(t, uint(3), events.events[0].PostID)
	assert.Equal(t, EventReplyCreated, events.events[0].Type)
}

func TestReplyService_GetThread(t *testing.T) {
	t.Parallel()

	replies := noopReplyRepo()
	replies.listByPostFn = func(_ context.Context, postID uint) ([]models.Reply, error) {
		return []models.Reply{
			reply(4, postID, ptrUint(3), 4),
			reply(1, postID, nil, 1),
			reply(3, postID, ptrUint(2), 3),
			reply(2, postID, ptrUint(1), 2),
			reply(5, postID, nil, 5),
		}, nil
	}
	svc := NewReplyService(replies, noopPostRepo(), nil, 2)

	entries, err := svc.GetThread(context.Background(), 1)
	require.NoError(t, err)

	var ids []uint
	var depths, indents []int
	for _, e := range entries {
		ids = append(ids, e.Reply.ID)
		depths = append(depths, e.Depth)
		indents = append(indents, e.Indent)
	}
	assert.Equal(t, []uint{1, 2, 3, 4, 5}, ids)
	assert.Equal(t, []int{0, 1, 2, 3, 0}, depths)
	assert.Equal(t, []int{0, 1, 2, 2, 0}, indents)
}

func TestReplyService_GetThread_PropagatesErrors(t *testing.T) {
	t.Parallel()

	replies := noopReplyRepo()
	replies.listByPostFn = func(_ context.Context, _ uint) ([]models.Reply, error) {
		return nil, errors.New("db down")
	}
	svc := NewReplyService(replies, noopPostRepo(), nil, 0)

	_, err := svc.GetThread(context.Background(), 1)
	assert.EqualError(t, err, "db down")
}

func TestReplyService_GetUserActivity(t *testing.T) {
	t.Parallel()

	replies := noopReplyRepo()
	replies.listByUserFn = func(_ context.Context, userID uint, limit int) ([]models.Reply, error) {
		assert.Equal(t, uint(1), userID)
		assert.Equal(t, userActivityLimit, limit)
		return []models.Reply{
			reply(9, 2, nil, 9),
			reply(8, 1, ptrUint(7), 8),
			reply(7, 1, nil, 7),
			reply(6, 3, nil, 6),
		}, nil
	}
	posts := noopPostRepo()
	posts.getByIDFn = func(_ context.Context, id uint) (*models.Post, error) {
		if id == 3 {
			return nil, models.NewNotFoundError("Post", id)
		}
		return &models.Post{ID: id, Title: "p"}, nil
	}
	svc := NewReplyService(replies, posts, nil, 0)

	groups, err := svc.GetUserActivity(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, groups, 3)

	assert.Equal(t, uint(2), groups[0].PostID)
	assert.Equal(t, uint(1), groups[1].PostID)
	assert.Equal(t, uint(3), groups[2].PostID)
	assert.Nil(t, groups[2].Post)

	require.Len(t, groups[1].Entries, 2)
	assert.Equal(t, uint(7), groups[1].Entries[0].Reply.ID)
	assert.Equal(t, 1, groups[1].Entries[1].Depth)
}
