package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"agora/internal/lifecycle"
	"agora/internal/models"
	"agora/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func ptrTime(t time.Time) *time.Time { return &t }

func ptrString(s string) *string { return &s }

// tinyPNG is a 1x1 grey PNG, 68 bytes decoded.
const tinyPNG = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR42mNkYAAAAAYAAjCB0C8AAAAASUVORK5CYII="

func newTestPostService(repo *postRepoStub, isAdmin IsAdminFunc, events EventPublisher) *PostService {
	return NewPostService(repo, isAdmin, events, PostServiceOptions{
		Policy:        lifecycle.NewPolicy(lifecycle.DefaultWindow),
		ImageMaxBytes: 1024,
		Now:           fixedClock,
	})
}

func validCreateInput() CreatePostInput {
	return CreatePostInput{
		UserID:      1,
		Type:        models.PostTypeOffer,
		Title:       "Spare ladder",
		Description: "Six foot aluminium ladder, pick up any evening",
	}
}

func TestPostService_CreatePost_Validation(t *testing.T) {
	t.Parallel()

	svc := newTestPostService(noopPostRepo(), nil, nil)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(in *CreatePostInput)
	}{
		{name: "empty title", mutate: func(in *CreatePostInput) { in.Title = "" }},
		{name: "title of only markup", mutate: func(in *CreatePostInput) { in.Title = "<b></b>" }},
		{name: "invalid post type", mutate: func(in *CreatePostInput) { in.Type = "banana" }},
		{name: "title too long", mutate: func(in *CreatePostInput) { in.Title = strings.Repeat("x", 201) }},
		{name: "description too long", mutate: func(in *CreatePostInput) { in.Description = strings.Repeat("x", 10001) }},
		{name: "invalid category", mutate: func(in *CreatePostInput) { in.Category = "-tools" }},
		{name: "end without start", mutate: func(in *CreatePostInput) { in.EndDateTime = ptrTime(testNow) }},
		{name: "end before start", mutate: func(in *CreatePostInput) {
			in.DateTime = ptrTime(testNow)
			in.EndDateTime = ptrTime(testNow.Add(-time.Hour))
		}},
		{name: "image data and url together", mutate: func(in *CreatePostInput) {
			in.ImageData = tinyPNG
			in.ImageURL = "https://img.example.com/a.png"
		}},
		{name: "image data not base64", mutate: func(in *CreatePostInput) { in.ImageData = "not base64!" }},
		{name: "image over size limit", mutate: func(in *CreatePostInput) { in.ImageData = tinyPNG; in.ImageSize = 4096 }},
		{name: "image data not an image", mutate: func(in *CreatePostInput) { in.ImageData = "aGVsbG8=" }},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			in := validCreateInput()
			tc.mutate(&in)
			_, err := svc.CreatePost(ctx, in)
			assertValidationError(t, err)
		})
	}
}

func TestPostService_CreatePost_RequiresUser(t *testing.T) {
	t.Parallel()

	svc := newTestPostService(noopPostRepo(), nil, nil)
	in := validCreateInput()
	in.UserID = 0
	_, err := svc.CreatePost(context.Background(), in)
	assertUnauthorizedError(t, err)
}

func TestPostService_CreatePost_Success(t *testing.T) {
	t.Parallel()

	var stored *models.Post
	repo := noopPostRepo()
	repo.createFn = func(_ context.Context, p *models.Post) error {
		p.ID = 7
		stored = p
		return nil
	}
	events := &eventRecorder{}
	svc := newTestPostService(repo, nil, events)

	in := validCreateInput()
	in.Title = "  <script>alert(1)</script>Spare ladder "
	in.Category = "Garden-Tools"
	in.DateTime = ptrTime(testNow.Add(48 * time.Hour))
	in.ImageData = "data:image/png;base64," + tinyPNG

	post, err := svc.CreatePost(context.Background(), in)
	require.NoError(t, err)
	require.NotNil(t, stored)

	assert.Equal(t, uint(7), post.ID)
	assert.Equal(t, "Spare ladder", post.Title)
	assert.Equal(t, "garden-tools", post.Category)
	assert.Equal(t, tinyPNG, post.ImageData)
	assert.Equal(t, int64(68), post.ImageSize)
	assert.Equal(t, string(lifecycle.Soon), post.Status)
	assert.Empty(t, post.Attendees)
	assert.Equal(t, []string{EventPostCreated}, events.types())
}

func TestPostService_GetPost_AnnotatesStatus(t *testing.T) {
	t.Parallel()

	repo := noopPostRepo()
	repo.getByIDFn = func(_ context.Context, id uint) (*models.Post, error) {
		return &models.Post{ID: id, DateTime: ptrTime(testNow.AddDate(0, -2, 0))}, nil
	}
	svc := newTestPostService(repo, nil, nil)

	post, err := svc.GetPost(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, string(lifecycle.Expired), post.Status)
	require.NotNil(t, post.ExpiresAt)
	assert.Equal(t, testNow.AddDate(0, -1, 0), *post.ExpiresAt)
}

func TestPostService_ListPosts(t *testing.T) {
	t.Parallel()

	posts := func() []*models.Post {
		return []*models.Post{
			{ID: 1, DateTime: ptrTime(testNow.AddDate(0, -2, 0))},
			{ID: 2, DateTime: ptrTime(testNow.Add(-24 * time.Hour))},
			{ID: 3},
			{ID: 4, DateTime: ptrTime(testNow.AddDate(0, 0, -40)), EndDateTime: ptrTime(testNow.Add(24 * time.Hour))},
			{ID: 5, DateTime: ptrTime(testNow.AddDate(0, -3, 0))},
		}
	}

	t.Run("without status passes paging through", func(t *testing.T) {
		t.Parallel()
		var got repository.PostFilter
		repo := noopPostRepo()
		repo.listFn = func(_ context.Context, f repository.PostFilter) ([]*models.Post, error) {
			got = f
			return posts(), nil
		}
		svc := newTestPostService(repo, nil, nil)

		out, err := svc.ListPosts(context.Background(), ListPostsInput{Type: models.PostTypeNeed, Limit: 500, Offset: 10})
		require.NoError(t, err)
		assert.Len(t, out, 5)
		assert.Equal(t, maxListLimit, got.Limit)
		assert.Equal(t, 10, got.Offset)
		assert.Equal(t, models.PostTypeNeed, got.Type)
		for _, p := range out {
			assert.NotEmpty(t, p.Status)
		}
	})

	t.Run("status filter classifies and pages", func(t *testing.T) {
		t.Parallel()
		var got repository.PostFilter
		repo := noopPostRepo()
		repo.listFn = func(_ context.Context, f repository.PostFilter) ([]*models.Post, error) {
			got = f
			if f.Offset > 0 {
				return nil, nil
			}
			return posts(), nil
		}
		svc := newTestPostService(repo, nil, nil)

		out, err := svc.ListPosts(context.Background(), ListPostsInput{Status: "expired", Offset: 1})
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, uint(5), out[0].ID)
		require.NotNil(t, got.StartedBy)
		assert.Equal(t, testNow, *got.StartedBy)
		assert.Nil(t, got.StartsAfter)

		out, err = svc.ListPosts(context.Background(), ListPostsInput{Status: "active", Limit: 2})
		require.NoError(t, err)
		require.Len(t, out, 2)
		assert.Equal(t, uint(2), out[0].ID)
		assert.Equal(t, uint(3), out[1].ID)
	})

	t.Run("soon narrows to future starts", func(t *testing.T) {
		t.Parallel()
		var got repository.PostFilter
		repo := noopPostRepo()
		repo.listFn = func(_ context.Context, f repository.PostFilter) ([]*models.Post, error) {
			got = f
			return nil, nil
		}
		svc := newTestPostService(repo, nil, nil)

		out, err := svc.ListPosts(context.Background(), ListPostsInput{Status: "soon"})
		require.NoError(t, err)
		assert.Empty(t, out)
		require.NotNil(t, got.StartsAfter)
		assert.Nil(t, got.StartedBy)
	})

	t.Run("rejects unknown filters", func(t *testing.T) {
		t.Parallel()
		svc := newTestPostService(noopPostRepo(), nil, nil)
		_, err := svc.ListPosts(context.Background(), ListPostsInput{Status: "archived"})
		assertValidationError(t, err)
		_, err = svc.ListPosts(context.Background(), ListPostsInput{Type: "swap"})
		assertValidationError(t, err)
	})
}

func TestPostService_DeletePost_Ownership(t *testing.T) {
	t.Parallel()

	ownedBy := func(owner uint) *postRepoStub {
		repo := noopPostRepo()
		repo.getByIDFn = func(_ context.Context, id uint) (*models.Post, error) {
			return &models.Post{ID: id, UserID: owner}, nil
		}
		return repo
	}

	t.Run("owner can delete", func(t *testing.T) {
		t.Parallel()
		events := &eventRecorder{}
		svc := newTestPostService(ownedBy(1), nil, events)
		err := svc.DeletePost(context.Background(), DeletePostInput{UserID: 1, PostID: 1})
		assert.NoError(t, err)
		assert.Equal(t, []string{EventPostDeleted}, events.types())
	})

	t.Run("non-owner without isAdmin returns unauthorized", func(t *testing.T) {
		t.Parallel()
		svc := newTestPostService(ownedBy(10), nil, nil)
		err := svc.DeletePost(context.Background(), DeletePostInput{UserID: 1, PostID: 1})
		assertUnauthorizedError(t, err)
	})

	t.Run("admin can delete another user's post", func(t *testing.T) {
		t.Parallel()
		isAdmin := func(_ context.Context, _ uint) (bool, error) { return true, nil }
		svc := newTestPostService(ownedBy(10), isAdmin, nil)
		err := svc.DeletePost(context.Background(), DeletePostInput{UserID: 1, PostID: 1})
		assert.NoError(t, err)
	})

	t.Run("non-admin cannot delete another user's post", func(t *testing.T) {
		t.Parallel()
		isAdmin := func(_ context.Context, _ uint) (bool, error) { return false, nil }
		svc := newTestPostService(ownedBy(10), isAdmin, nil)
		err := svc.DeletePost(context.Background(), DeletePostInput{UserID: 1, PostID: 1})
		assertUnauthorizedError(t, err)
	})
}

func TestPostService_UpdatePost(t *testing.T) {
	t.Parallel()

	update := UpdatePostInput{
		UserID:      1,
		PostID:      1,
		Type:        models.PostTypeNeed,
		Title:       "new",
		Description: "updated description",
	}

	t.Run("non-owner cannot update", func(t *testing.T) {
		t.Parallel()
		store := &lockedPost{post: &models.Post{ID: 1, UserID: 10, Title: "old"}}
		repo := noopPostRepo()
		repo.mutateFn = store.mutate
		svc := newTestPostService(repo, nil, nil)

		in := update
		_, err := svc.UpdatePost(context.Background(), in)
		assertUnauthorizedError(t, err)
		assert.Equal(t, "old", store.post.Title)
	})

	t.Run("owner update leaves image columns alone", func(t *testing.T) {
		t.Parallel()
		store := &lockedPost{post: &models.Post{ID: 1, UserID: 1, Title: "old", ImageExpired: true}}
		repo := noopPostRepo()
		repo.mutateFn = store.mutate
		svc := newTestPostService(repo, nil, nil)

		post, err := svc.UpdatePost(context.Background(), update)
		require.NoError(t, err)
		assert.Equal(t, "new", post.Title)
		assert.True(t, post.ImageExpired)
		require.Len(t, store.columns, 1)
		assert.Equal(t, editableColumns, store.columns[0])
	})

	t.Run("new image clears expiry", func(t *testing.T) {
		t.Parallel()
		store := &lockedPost{post: &models.Post{
			ID: 1, UserID: 1, ImageExpired: true,
			ImageExpiredAt: ptrTime(testNow), ImageExpiredReason: "expired",
		}}
		repo := noopPostRepo()
		repo.mutateFn = store.mutate
		svc := newTestPostService(repo, nil, nil)

		in := update
		in.ImageURL = ptrString("https://img.example.com/ladder.jpg")
		post, err := svc.UpdatePost(context.Background(), in)
		require.NoError(t, err)
		assert.False(t, post.ImageExpired)
		assert.Nil(t, post.ImageExpiredAt)
		assert.Empty(t, post.ImageExpiredReason)
		assert.Equal(t, "https://img.example.com/ladder.jpg", post.ImageURL)
		assert.Contains(t, store.columns[0], "image_expired")
	})

	t.Run("missing post surfaces not found", func(t *testing.T) {
		t.Parallel()
		store := &lockedPost{}
		repo := noopPostRepo()
		repo.mutateFn = store.mutate
		svc := newTestPostService(repo, nil, nil)

		_, err := svc.UpdatePost(context.Background(), update)
		assertAppErrorCode(t, err, models.CodeNotFound)
	})
}

func TestPostService_Attendance(t *testing.T) {
	t.Parallel()

	t.Run("attend and unattend are idempotent", func(t *testing.T) {
		t.Parallel()
		store := &lockedPost{post: &models.Post{ID: 1, Attendees: []uint{}}}
		repo := noopPostRepo()
		repo.mutateFn = store.mutate
		events := &eventRecorder{}
		svc := newTestPostService(repo, nil, events)
		ctx := context.Background()

		post, err := svc.Attend(ctx, 1, 5)
		require.NoError(t, err)
		assert.Equal(t, 1, post.AttendeeCount)

		post, err = svc.Attend(ctx, 1, 5)
		require.NoError(t, err)
		assert.Equal(t, []uint{5}, post.Attendees)

		post, err = svc.Unattend(ctx, 1, 5)
		require.NoError(t, err)
		assert.Zero(t, post.AttendeeCount)

		_, err = svc.Unattend(ctx, 1, 5)
		require.NoError(t, err)

		assert.Equal(t, 2, store.writes)
		assert.Equal(t, []string{EventPostAttendance, EventPostAttendance}, events.types())
	})

	t.Run("concurrent attendees are all kept", func(t *testing.T) {
		t.Parallel()
		store := &lockedPost{post: &models.Post{ID: 1}}
		repo := noopPostRepo()
		repo.mutateFn = store.mutate
		svc := newTestPostService(repo, nil, nil)

		var wg sync.WaitGroup
		for i := 1; i <= 50; i++ {
			wg.Add(1)
			go func(uid uint) {
				defer wg.Done()
				_, err := svc.Attend(context.Background(), 1, uid)
				assert.NoError(t, err)
			}(uint(i))
		}
		wg.Wait()

		assert.Equal(t, 50, store.post.AttendeeCount)
		assert.Len(t, store.post.Attendees, 50)
	})

	t.Run("anonymous attendance rejected", func(t *testing.T) {
		t.Parallel()
		svc := newTestPostService(noopPostRepo(), nil, nil)
		_, err := svc.Attend(context.Background(), 1, 0)
		assertUnauthorizedError(t, err)
	})
}
