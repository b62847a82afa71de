package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"agora/internal/cache"
	"agora/internal/models"
	"agora/internal/observability"
	"agora/internal/repository"
	"agora/internal/sweep"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// Sweep triggers.
const (
	TriggerSchedule = "schedule"
	TriggerManual   = "manual"
	TriggerCLI      = "cli"
)

const (
	defaultSweepBatch = 200
	defaultSweepLock  = 30 * time.Minute
)

// SweepService strips images from expired posts and records each run.
// One replica sweeps at a time.
type SweepService struct {
	postRepo   repository.PostRepository
	runRepo    repository.CleanupRunRepository
	sweeper    *sweep.Sweeper
	events     EventPublisher
	batchSize  int
	lockTTL    time.Duration
	interval   time.Duration
	workerOnce sync.Once
}

// SweepServiceOptions tunes SweepService.
type SweepServiceOptions struct {
	BatchSize int
	LockTTL   time.Duration
	Interval  time.Duration
}

func NewSweepService(
	postRepo repository.PostRepository,
	runRepo repository.CleanupRunRepository,
	sweeper *sweep.Sweeper,
	events EventPublisher,
	opts SweepServiceOptions,
) *SweepService {
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultSweepBatch
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = defaultSweepLock
	}
	if opts.Interval <= 0 {
		opts.Interval = 24 * time.Hour
	}
	return &SweepService{
		postRepo:  postRepo,
		runRepo:   runRepo,
		sweeper:   sweeper,
		events:    publisherOrNoop(events),
		batchSize: opts.BatchSize,
		lockTTL:   opts.LockTTL,
		interval:  opts.Interval,
	}
}

// Run performs one full sweep and persists its stats. It returns a conflict
// error when another sweep holds the lock.
func (s *SweepService) Run(ctx context.Context, trigger string) (*models.CleanupRun, error) {
	lock, err := cache.AcquireLock(ctx, cache.SweepLockKey, s.lockTTL)
	if err != nil {
		if errors.Is(err, cache.ErrLockHeld) {
			observability.SweepRuns.WithLabelValues(trigger, "skipped").Inc()
			return nil, models.NewConflictError("An image sweep is already running")
		}
		return nil, models.NewInternalError(err)
	}
	defer func() {
		if rerr := lock.Release(context.WithoutCancel(ctx)); rerr != nil {
			observability.GlobalLogger.WarnContext(ctx, "failed to release sweep lock", "error", rerr)
		}
	}()

	runID := uuid.NewString()
	ctx = observability.WithCorrelationID(ctx, runID)
	span, ctx := observability.NewSpan(ctx, "sweep.Run",
		attribute.String("sweep.trigger", trigger),
		attribute.String("sweep.run_id", runID),
	)
	defer span.End()

	fields := map[string]interface{}{"trigger": trigger, "run_id": runID}
	observability.LogAsyncOperationStart(ctx, "image_sweep", fields)

	stats, err := s.sweepAll(ctx, s.expire)
	if err != nil {
		span.SetError(err)
		observability.LogAsyncOperationError(ctx, "image_sweep", err, fields)
		observability.SweepRuns.WithLabelValues(trigger, "error").Inc()
		return nil, models.NewInternalError(err)
	}

	run := &models.CleanupRun{
		RunID:             runID,
		Trigger:           trigger,
		TotalPostsChecked: stats.TotalPostsChecked,
		ExpiredPostsFound: stats.ExpiredPostsFound,
		ImagesRemoved:     stats.ImagesRemoved,
		StorageFreedKB:    stats.StorageFreedKB,
		ErrorCount:        len(stats.Errors),
		Errors:            failureMessages(stats.Errors),
		DurationMs:        stats.Duration.Milliseconds(),
		LastCleanup:       stats.LastCleanup,
	}
	if err := s.runRepo.Create(ctx, run); err != nil {
		// The sweep itself succeeded; losing the history row is only logged.
		observability.LogAsyncOperationError(ctx, "image_sweep_persist", err, fields)
	}
	if err := cache.SetJSON(ctx, cache.SweepStatsKey, run, cache.SweepStatsTTL); err != nil {
		observability.GlobalLogger.WarnContext(ctx, "failed to cache sweep stats", "error", err)
	}

	result := "success"
	if len(stats.Errors) > 0 {
		result = "partial"
	}
	observability.SweepRuns.WithLabelValues(trigger, result).Inc()
	observability.SweepImagesRemoved.Add(float64(stats.ImagesRemoved))
	observability.SweepStorageFreedKB.Add(float64(stats.StorageFreedKB))
	observability.SweepFailures.Add(float64(len(stats.Errors)))
	observability.SweepDuration.Observe(stats.Duration.Seconds())

	span.AddAttributes(
		attribute.Int("sweep.checked", stats.TotalPostsChecked),
		attribute.Int("sweep.removed", stats.ImagesRemoved),
		attribute.Int64("sweep.freed_kb", stats.StorageFreedKB),
		attribute.Int("sweep.errors", len(stats.Errors)),
	)
	fields["images_removed"] = stats.ImagesRemoved
	fields["storage_freed_kb"] = stats.StorageFreedKB
	fields["errors"] = len(stats.Errors)
	observability.LogAsyncOperationEnd(ctx, "image_sweep", fields)
	return run, nil
}

// Preview reports what a sweep would remove without writing anything.
func (s *SweepService) Preview(ctx context.Context) (sweep.Stats, error) {
	return s.sweepAll(ctx, func(context.Context, *models.Post, sweep.Patch) error { return nil })
}

// sweepAll walks every post with a live image in id order, one page at a time.
func (s *SweepService) sweepAll(ctx context.Context, expire sweep.ExpireFunc) (sweep.Stats, error) {
	total := sweep.Stats{Errors: []sweep.Failure{}}
	var afterID uint
	for {
		posts, err := s.postRepo.ListForSweep(ctx, afterID, s.batchSize)
		if err != nil {
			return total, err
		}
		if len(posts) > 0 {
			total.Merge(s.sweeper.Run(ctx, posts, expire))
			afterID = posts[len(posts)-1].ID
		}
		if len(posts) < s.batchSize || ctx.Err() != nil {
			break
		}
	}
	if total.LastCleanup.IsZero() {
		now := time.Now
		if s.sweeper.Now != nil {
			now = s.sweeper.Now
		}
		total.LastCleanup = now()
	}
	return total, nil
}

func (s *SweepService) expire(ctx context.Context, post *models.Post, patch sweep.Patch) error {
	ok, err := s.postRepo.ExpireImage(ctx, post.ID, patch)
	if err != nil {
		return err
	}
	if !ok {
		return sweep.ErrAlreadyExpired
	}
	s.events.PublishPostEvent(ctx, EventPostImageExpired, map[string]interface{}{
		"id":                   post.ID,
		"image_expired":        true,
		"image_expired_at":     patch.ImageExpiredAt,
		"image_expired_reason": patch.ImageExpiredReason,
	})
	return nil
}

func failureMessages(failures []sweep.Failure) []string {
	out := make([]string, len(failures))
	for i, f := range failures {
		if f.PostID == 0 {
			out[i] = f.Error
			continue
		}
		out[i] = fmt.Sprintf("post %d: %s", f.PostID, f.Error)
	}
	return out
}

// LatestStats returns the most recent run, served from Redis when possible.
func (s *SweepService) LatestStats(ctx context.Context) (*models.CleanupRun, error) {
	var run models.CleanupRun
	err := cache.Aside(ctx, cache.SweepStatsKey, &run, cache.SweepStatsTTL, func() error {
		latest, err := s.runRepo.Latest(ctx)
		if err != nil {
			return err
		}
		run = *latest
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// Runs lists sweep history, newest first.
func (s *SweepService) Runs(ctx context.Context, limit, offset int) ([]models.CleanupRun, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return s.runRepo.List(ctx, limit, offset)
}

// StartBackgroundWorker sweeps once shortly after start and then every
// interval until ctx is cancelled. Calling it twice has no effect.
func (s *SweepService) StartBackgroundWorker(ctx context.Context) {
	if s.postRepo == nil {
		return
	}
	s.workerOnce.Do(func() {
		go s.workerLoop(ctx)
	})
}

func (s *SweepService) workerLoop(ctx context.Context) {
	const startupDelay = 30 * time.Second

	if !sleepContext(ctx, startupDelay) {
		return
	}
	for {
		s.runScheduled(ctx)
		if !sleepContext(ctx, s.interval) {
			return
		}
	}
}

func (s *SweepService) runScheduled(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			observability.GlobalLogger.ErrorContext(ctx, "image sweep panicked", "panic", r)
		}
	}()
	if _, err := s.Run(ctx, TriggerSchedule); err != nil && models.ErrorCode(err) != models.CodeConflict {
		observability.GlobalLogger.ErrorContext(ctx, "scheduled image sweep failed", "error", err)
	}
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
