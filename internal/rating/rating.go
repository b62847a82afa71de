// Package rating maintains the per-post rating collection and its aggregates.
package rating

import (
	"strings"
	"time"

	"agora/internal/models"
)

const (
	MinValue = 1
	MaxValue = 5
)

// Submission is one member's rating request.
type Submission struct {
	UserID  uint
	Value   int
	Comment string
}

// Result is the updated collection and its recomputed aggregates.
type Result struct {
	Ratings []models.Rating `json:"ratings"`
	Average float64         `json:"average_rating"`
	Count   int             `json:"rating_count"`
}

// Validate rejects anonymous submissions and values outside [1,5].
func (s Submission) Validate() error {
	if s.UserID == 0 {
		return models.NewValidationError("Rating requires an authenticated user")
	}
	if s.Value < MinValue || s.Value > MaxValue {
		return models.NewValidationError("Rating must be an integer between 1 and 5")
	}
	return nil
}

// Submit inserts or replaces the submitter's rating and recomputes the
// count and average. existing is never modified.
func Submit(existing []models.Rating, in Submission, now time.Time) (Result, error) {
	if err := in.Validate(); err != nil {
		return Result{}, err
	}

	record := models.Rating{
		UserID:    in.UserID,
		Rating:    in.Value,
		Comment:   strings.TrimSpace(in.Comment),
		CreatedAt: now,
	}

	ratings := make([]models.Rating, len(existing), len(existing)+1)
	copy(ratings, existing)

	replaced := false
	for i := range ratings {
		if ratings[i].UserID == in.UserID {
			ratings[i] = record
			replaced = true
			break
		}
	}
	if !replaced {
		ratings = append(ratings, record)
	}

	avg, count := Aggregate(ratings)
	return Result{Ratings: ratings, Average: avg, Count: count}, nil
}

// Aggregate returns the average rounded half-up to one decimal, and the count.
func Aggregate(ratings []models.Rating) (float64, int) {
	count := len(ratings)
	if count == 0 {
		return 0, 0
	}
	sum := 0
	for _, r := range ratings {
		sum += r.Rating
	}
	// tenths = floor(10*sum/count + 0.5), in integers to avoid float ties
	tenths := (20*sum + count) / (2 * count)
	return float64(tenths) / 10, count
}
