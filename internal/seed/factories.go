// Package seed creates demo marketplace data for development and tests.
package seed

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"time"

	"agora/internal/models"
	"agora/internal/observability"
	"agora/internal/rating"

	"github.com/brianvoe/gofakeit/v6"
	"gorm.io/gorm"
)

var categories = []string{
	"tools", "garden", "childcare", "rides", "furniture", "books",
	"repairs", "pets", "cooking", "tutoring", "events", "clothing",
}

// Factory builds domain entities and persists them to the database.
type Factory struct {
	db     *gorm.DB
	opts   Options
	faker  *gofakeit.Faker
	nextID uint
}

// NewFactory creates a new Factory bound to the provided Gorm DB. A nil db
// is only valid with DryRun.
func NewFactory(db *gorm.DB, opts Options) *Factory {
	opts = opts.withDefaults()
	return &Factory{db: db, opts: opts, faker: gofakeit.New(opts.RandSeed), nextID: 1000}
}

func (f *Factory) assignID() uint {
	f.nextID++
	return f.nextID
}

func (f *Factory) ago(maxDays int) time.Time {
	offset := time.Duration(f.faker.Number(0, maxDays*24*60)) * time.Minute
	return f.opts.Now.Add(-offset)
}

// CreateUser constructs and persists a sample user.
func (f *Factory) CreateUser(ctx context.Context, overrides ...func(*models.User)) (*models.User, error) {
	user := &models.User{
		Username:    fmt.Sprintf("%s%d", f.faker.Username(), f.faker.Number(100, 999)),
		DisplayName: f.faker.Name(),
	}
	for _, override := range overrides {
		override(user)
	}

	if f.opts.DryRun {
		user.ID = f.assignID()
		return user, nil
	}
	if err := f.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// BuildPost returns an unsaved post whose dates land in one of the lifecycle
// buckets: undated, upcoming, running or long past.
func (f *Factory) BuildPost(user *models.User, overrides ...func(*models.Post)) *models.Post {
	postType := models.PostTypeOffer
	if f.faker.Bool() {
		postType = models.PostTypeNeed
	}
	post := &models.Post{
		UserID:      user.ID,
		Type:        postType,
		Title:       f.faker.Sentence(f.faker.Number(3, 7)),
		Description: f.faker.Paragraph(1, 3, 10, " "),
		Category:    categories[f.faker.Number(0, len(categories)-1)],
		Location:    fmt.Sprintf("%s, %s", f.faker.Street(), f.faker.City()),
		Attendees:   []uint{},
		Ratings:     []models.Rating{},
		CreatedAt:   f.ago(f.opts.MaxDays),
	}

	switch bucket := f.faker.Number(1, 10); {
	case bucket <= 2:
		// undated posts never expire
	case bucket <= 4:
		start := f.opts.Now.Add(time.Duration(f.faker.Number(1, 30*24)) * time.Hour)
		post.DateTime = &start
	case bucket <= 7:
		start := f.ago(20)
		post.DateTime = &start
		if f.faker.Bool() {
			end := f.opts.Now.Add(time.Duration(f.faker.Number(1, 72)) * time.Hour)
			post.EndDateTime = &end
		}
	default:
		start := f.opts.Now.AddDate(0, -f.faker.Number(2, 6), 0)
		post.DateTime = &start
		post.CreatedAt = start.Add(-24 * time.Hour)
	}

	switch f.faker.Number(1, 10) {
	case 1, 2, 3, 4:
		payload := f.samplePNG()
		post.ImageData = base64.StdEncoding.EncodeToString(payload)
		post.ImageSize = int64(len(payload))
	case 5, 6, 7:
		post.ImageURL = fmt.Sprintf("https://picsum.photos/seed/%s/800/600", f.faker.UUID())
	}

	for _, override := range overrides {
		override(post)
	}
	return post
}

// samplePNG renders a small vertical gradient so seeded payloads are real
// images of varying size.
func (f *Factory) samplePNG() []byte {
	w, h := f.faker.Number(8, 64), f.faker.Number(8, 64)
	from := color.RGBA{R: uint8(f.faker.Number(0, 255)), G: uint8(f.faker.Number(0, 255)), B: uint8(f.faker.Number(0, 255)), A: 255}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		shade := color.RGBA{R: from.R, G: uint8(int(from.G) * y / h), B: from.B, A: 255}
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, shade)
		}
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}

// CreatePostsBatch persists multiple posts in a single DB call when possible.
func (f *Factory) CreatePostsBatch(ctx context.Context, posts []*models.Post) error {
	if len(posts) == 0 {
		return nil
	}
	if f.opts.DryRun {
		for _, p := range posts {
			p.ID = f.assignID()
		}
		observability.GlobalLogger.InfoContext(ctx, "[dry-run] skipped post batch", "count", len(posts))
		return nil
	}
	return f.db.WithContext(ctx).CreateInBatches(posts, 100).Error
}

// CreateThread adds n replies to post from random authors. Each reply
// answers the post directly or one of the earlier replies.
func (f *Factory) CreateThread(ctx context.Context, post *models.Post, authors []*models.User, n int) ([]models.Reply, error) {
	replies := make([]models.Reply, 0, n)
	at := post.CreatedAt
	for i := 0; i < n; i++ {
		at = at.Add(time.Duration(f.faker.Number(1, 600)) * time.Minute)
		if at.After(f.opts.Now) {
			at = f.opts.Now
		}
		reply := models.Reply{
			PostID:    post.ID,
			UserID:    authors[f.faker.Number(0, len(authors)-1)].ID,
			Text:      f.faker.Sentence(f.faker.Number(4, 16)),
			CreatedAt: at,
		}
		if len(replies) > 0 && f.faker.Number(1, 10) <= 6 {
			parent := replies[f.faker.Number(0, len(replies)-1)].ID
			reply.ParentReplyID = &parent
		}

		if f.opts.DryRun {
			reply.ID = f.assignID()
		} else if err := f.db.WithContext(ctx).Create(&reply).Error; err != nil {
			return nil, fmt.Errorf("create reply: %w", err)
		}
		replies = append(replies, reply)
	}
	return replies, nil
}

// RatePost has each rater score post once and stores the aggregate.
func (f *Factory) RatePost(ctx context.Context, post *models.Post, raters []*models.User) error {
	ratings := post.Ratings
	for _, u := range raters {
		res, err := rating.Submit(ratings, rating.Submission{
			UserID:  u.ID,
			Value:   f.faker.Number(rating.MinValue, rating.MaxValue),
			Comment: f.faker.Sentence(f.faker.Number(0, 8)),
		}, f.ago(f.opts.MaxDays))
		if err != nil {
			return err
		}
		ratings = res.Ratings
		post.AverageRating = res.Average
		post.RatingCount = res.Count
	}
	post.Ratings = ratings

	if f.opts.DryRun {
		return nil
	}
	return f.db.WithContext(ctx).Model(post).
		Select("ratings", "average_rating", "rating_count").
		Updates(post).Error
}

// Attend adds attendees to a dated post.
func (f *Factory) Attend(ctx context.Context, post *models.Post, users []*models.User) error {
	for _, u := range users {
		if !post.IsAttending(u.ID) {
			post.Attendees = append(post.Attendees, u.ID)
		}
	}
	post.AttendeeCount = len(post.Attendees)

	if f.opts.DryRun {
		return nil
	}
	return f.db.WithContext(ctx).Model(post).
		Select("attendees", "attendee_count").
		Updates(post).Error
}
