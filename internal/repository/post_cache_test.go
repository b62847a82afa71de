package repository

import (
	"context"
	"testing"
	"time"

	"agora/internal/cache"
	"agora/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func useMiniredis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache.SetClient(rdb)
	t.Cleanup(func() {
		cache.SetClient(nil)
		_ = rdb.Close()
	})
	return mr
}

func TestPostRepository_List_CachedUntilWrite(t *testing.T) {
	mr := useMiniredis(t)
	db := setupSQLiteDB(t)
	repo := NewPostRepository(db)
	ctx := context.Background()

	first := seedPost(t, repo, models.Post{UserID: 1, Title: "first"})

	posts, err := repo.List(ctx, PostFilter{Limit: 10})
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.True(t, mr.Exists("posts:list:v1:type=:user=0:limit=10:offset=0"))

	// A row written behind the repository's back stays invisible until the
	// list version moves.
	require.NoError(t, db.Create(&models.Post{UserID: 1, Type: models.PostTypeOffer, Title: "sneaky", Description: "d"}).Error)
	posts, err = repo.List(ctx, PostFilter{Limit: 10})
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, first.ID, posts[0].ID)

	seedPost(t, repo, models.Post{UserID: 1, Title: "third"})
	posts, err = repo.List(ctx, PostFilter{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, posts, 3)
	assert.True(t, mr.Exists("posts:list:v2:type=:user=0:limit=10:offset=0"))

	require.NoError(t, repo.Delete(ctx, first.ID))
	posts, err = repo.List(ctx, PostFilter{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, posts, 2)
}

func TestPostRepository_List_TimeBoundedNotCached(t *testing.T) {
	mr := useMiniredis(t)
	db := setupSQLiteDB(t)
	repo := NewPostRepository(db)
	ctx := context.Background()

	seedPost(t, repo, models.Post{UserID: 1})
	now := time.Now()

	_, err := repo.List(ctx, PostFilter{StartedBy: &now})
	require.NoError(t, err)
	_, err = repo.List(ctx, PostFilter{StartsAfter: &now})
	require.NoError(t, err)

	assert.Equal(t, []string{"posts:list:version"}, mr.Keys())
}
