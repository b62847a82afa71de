package seed

import (
	"context"
	"fmt"
	"time"

	"agora/internal/lifecycle"
	"agora/internal/models"
	"agora/internal/observability"

	"gorm.io/gorm"
)

// Options configures the seeder.
type Options struct {
	NumUsers      int
	NumPosts      int
	MaxReplies    int
	MaxRaters     int
	MaxDays       int
	ShouldClean   bool
	DryRun        bool
	RandSeed      int64
	Now           time.Time
	Policy        lifecycle.Policy
	AdminUsername string
}

func (o Options) withDefaults() Options {
	if o.NumUsers <= 0 {
		o.NumUsers = 10
	}
	if o.NumPosts < 0 {
		o.NumPosts = 0
	}
	if o.MaxReplies <= 0 {
		o.MaxReplies = 8
	}
	if o.MaxRaters <= 0 {
		o.MaxRaters = 5
	}
	if o.MaxDays <= 0 {
		o.MaxDays = 90
	}
	if o.Now.IsZero() {
		o.Now = time.Now()
	}
	if o.RandSeed == 0 {
		o.RandSeed = o.Now.UnixNano()
	}
	return o
}

// Summary reports what Seed created, with posts counted per lifecycle status.
type Summary struct {
	Users    int                      `json:"users"`
	Posts    int                      `json:"posts"`
	Replies  int                      `json:"replies"`
	Ratings  int                      `json:"ratings"`
	ByStatus map[lifecycle.Status]int `json:"by_status"`
	Images   int                      `json:"images"`
}

// Seed populates the database with demo users, posts, threads and ratings.
func Seed(ctx context.Context, db *gorm.DB, opts Options) (*Summary, error) {
	opts = opts.withDefaults()
	log := observability.GlobalLogger
	log.InfoContext(ctx, "starting database seeding", "users", opts.NumUsers, "posts", opts.NumPosts, "dry_run", opts.DryRun)

	if opts.ShouldClean && !opts.DryRun {
		if err := clearData(ctx, db); err != nil {
			return nil, fmt.Errorf("clear data: %w", err)
		}
	}

	f := NewFactory(db, opts)
	summary := &Summary{ByStatus: make(map[lifecycle.Status]int)}

	users := make([]*models.User, 0, opts.NumUsers)
	for i := 0; i < opts.NumUsers; i++ {
		var overrides []func(*models.User)
		if i == 0 && opts.AdminUsername != "" {
			overrides = append(overrides, func(u *models.User) {
				u.Username = opts.AdminUsername
				u.IsAdmin = true
			})
		}
		u, err := f.CreateUser(ctx, overrides...)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	summary.Users = len(users)

	posts := make([]*models.Post, 0, opts.NumPosts)
	for i := 0; i < opts.NumPosts; i++ {
		posts = append(posts, f.BuildPost(users[f.faker.Number(0, len(users)-1)]))
	}
	if err := f.CreatePostsBatch(ctx, posts); err != nil {
		return nil, fmt.Errorf("create posts: %w", err)
	}
	summary.Posts = len(posts)

	for _, p := range posts {
		summary.ByStatus[opts.Policy.ClassifyPost(p, opts.Now)]++
		if p.HasImage() {
			summary.Images++
		}

		replies, err := f.CreateThread(ctx, p, users, f.faker.Number(0, opts.MaxReplies))
		if err != nil {
			return nil, err
		}
		summary.Replies += len(replies)

		raters := f.pick(users, f.faker.Number(0, opts.MaxRaters))
		if len(raters) > 0 {
			if err := f.RatePost(ctx, p, raters); err != nil {
				return nil, fmt.Errorf("rate post %d: %w", p.ID, err)
			}
			summary.Ratings += len(raters)
		}

		if p.DateTime != nil {
			if err := f.Attend(ctx, p, f.pick(users, f.faker.Number(0, len(users)))); err != nil {
				return nil, fmt.Errorf("attend post %d: %w", p.ID, err)
			}
		}
	}

	log.InfoContext(ctx, "database seeding completed",
		"users", summary.Users, "posts", summary.Posts,
		"replies", summary.Replies, "ratings", summary.Ratings)
	return summary, nil
}

// pick returns n distinct users in random order.
func (f *Factory) pick(users []*models.User, n int) []*models.User {
	if n > len(users) {
		n = len(users)
	}
	shuffled := append([]*models.User(nil), users...)
	f.faker.ShuffleAnySlice(shuffled)
	return shuffled[:n]
}

// clearData removes all seeded rows, children first.
func clearData(ctx context.Context, db *gorm.DB) error {
	tx := db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true})
	for _, model := range []any{&models.Reply{}, &models.Post{}, &models.CleanupRun{}, &models.User{}} {
		if err := tx.Unscoped().Delete(model).Error; err != nil {
			return err
		}
	}
	return nil
}
