package cache

import (
	"context"
	"fmt"
	"time"
)

const (
	UserKeyPrefix       = "user:%d"
	PostKeyPrefix       = "post:%d"
	RepliesKeyPrefix    = "post:%d:replies"
	postsListVersionKey = "posts:list:version"
	postsListKeyPrefix  = "posts:list:v%d:%s"

	SweepStatsKey = "sweep:stats:last"
	SweepLockKey  = "sweep:lock"
)

const (
	UserTTL       = 5 * time.Minute
	PostTTL       = 30 * time.Minute
	RepliesTTL    = 2 * time.Minute
	ListTTL       = time.Minute
	SweepStatsTTL = 7 * 24 * time.Hour
)

func UserKey(userID uint) string {
	return fmt.Sprintf(UserKeyPrefix, userID)
}

func PostKey(postID uint) string {
	return fmt.Sprintf(PostKeyPrefix, postID)
}

func RepliesKey(postID uint) string {
	return fmt.Sprintf(RepliesKeyPrefix, postID)
}

// PostsListKey returns the key for a cached list page. The current list
// version is embedded so InvalidatePostsList retires every page at once.
func PostsListKey(ctx context.Context, variant string) string {
	var version int64
	if client != nil {
		if v, err := client.Get(ctx, postsListVersionKey).Int64(); err == nil {
			version = v
		}
	}
	return fmt.Sprintf(postsListKeyPrefix, version, variant)
}

// InvalidatePostsList bumps the list version.
func InvalidatePostsList(ctx context.Context) {
	if client != nil {
		client.Incr(ctx, postsListVersionKey)
	}
}

// InvalidatePost drops the cached post and its reply thread.
func InvalidatePost(ctx context.Context, postID uint) {
	Invalidate(ctx, PostKey(postID), RepliesKey(postID))
}

func InvalidateUser(ctx context.Context, userID uint) {
	Invalidate(ctx, UserKey(userID))
}
