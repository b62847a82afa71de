package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"agora/internal/models"
	"agora/internal/repository"
	"agora/internal/sweep"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// postRepoStub is a stub for repository.PostRepository.
type postRepoStub struct {
	createFn       func(context.Context, *models.Post) error
	getByIDFn      func(context.Context, uint) (*models.Post, error)
	listFn         func(context.Context, repository.PostFilter) ([]*models.Post, error)
	listForSweepFn func(context.Context, uint, int) ([]*models.Post, error)
	listDatedFn    func(context.Context, uint, int) ([]*models.Post, error)
	updateFn       func(context.Context, *models.Post) error
	deleteFn       func(context.Context, uint) error
	deleteByIDsFn  func(context.Context, []uint) (int64, error)
	expireImageFn  func(context.Context, uint, sweep.Patch) (bool, error)
	mutateFn       func(context.Context, uint, []string, repository.MutateFunc) (*models.Post, error)
}

func (s *postRepoStub) Create(ctx context.Context, post *models.Post) error {
	return s.createFn(ctx, post)
}
func (s *postRepoStub) GetByID(ctx context.Context, id uint) (*models.Post, error) {
	return s.getByIDFn(ctx, id)
}
func (s *postRepoStub) List(ctx context.Context, filter repository.PostFilter) ([]*models.Post, error) {
	return s.listFn(ctx, filter)
}
func (s *postRepoStub) ListForSweep(ctx context.Context, afterID uint, limit int) ([]*models.Post, error) {
	return s.listForSweepFn(ctx, afterID, limit)
}
func (s *postRepoStub) ListDated(ctx context.Context, afterID uint, limit int) ([]*models.Post, error) {
	return s.listDatedFn(ctx, afterID, limit)
}
func (s *postRepoStub) Update(ctx context.Context, post *models.Post) error {
	return s.updateFn(ctx, post)
}
func (s *postRepoStub) Delete(ctx context.Context, id uint) error {
	return s.deleteFn(ctx, id)
}
func (s *postRepoStub) DeleteByIDs(ctx context.Context, ids []uint) (int64, error) {
	return s.deleteByIDsFn(ctx, ids)
}
func (s *postRepoStub) ExpireImage(ctx context.Context, id uint, patch sweep.Patch) (bool, error) {
	return s.expireImageFn(ctx, id, patch)
}
func (s *postRepoStub) Mutate(ctx context.Context, id uint, columns []string, fn repository.MutateFunc) (*models.Post, error) {
	return s.mutateFn(ctx, id, columns, fn)
}

func noopPostRepo() *postRepoStub {
	return &postRepoStub{
		createFn:       func(_ context.Context, _ *models.Post) error { return nil },
		getByIDFn:      func(_ context.Context, _ uint) (*models.Post, error) { return &models.Post{}, nil },
		listFn:         func(_ context.Context, _ repository.PostFilter) ([]*models.Post, error) { return nil, nil },
		listForSweepFn: func(_ context.Context, _ uint, _ int) ([]*models.Post, error) { return nil, nil },
		listDatedFn:    func(_ context.Context, _ uint, _ int) ([]*models.Post, error) { return nil, nil },
		updateFn:       func(_ context.Context, _ *models.Post) error { return nil },
		deleteFn:       func(_ context.Context, _ uint) error { return nil },
		deleteByIDsFn:  func(_ context.Context, ids []uint) (int64, error) { return int64(len(ids)), nil },
		expireImageFn:  func(_ context.Context, _ uint, _ sweep.Patch) (bool, error) { return true, nil },
		mutateFn: func(_ context.Context, id uint, _ []string, fn repository.MutateFunc) (*models.Post, error) {
			post := &models.Post{ID: id}
			if _, err := fn(post); err != nil {
				return nil, err
			}
			return post, nil
		},
	}
}

// lockedPost backs Mutate with a single in-memory post, serialized the way
// the row lock serializes real writers.
type lockedPost struct {
	mu      sync.Mutex
	post    *models.Post
	columns [][]string
	writes  int
}

func (l *lockedPost) mutate(_ context.Context, id uint, columns []string, fn repository.MutateFunc) (*models.Post, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.post == nil || l.post.ID != id {
		return nil, models.NewNotFoundError("Post", id)
	}
	working := *l.post
	working.Attendees = append([]uint(nil), l.post.Attendees...)
	working.Ratings = append([]models.Rating(nil), l.post.Ratings...)
	changed, err := fn(&working)
	if err != nil {
		return nil, err
	}
	l.columns = append(l.columns, columns)
	if changed {
		l.writes++
		l.post = &working
	}
	out := *l.post
	return &out, nil
}

// replyRepoStub is a stub for repository.ReplyRepository.
type replyRepoStub struct {
	createFn     func(context.Context, *models.Reply) error
	getByIDFn    func(context.Context, uint) (*models.Reply, error)
	listByPostFn func(context.Context, uint) ([]models.Reply, error)
	listByUserFn func(context.Context, uint, int) ([]models.Reply, error)
}

func (s *replyRepoStub) Create(ctx context.Context, reply *models.Reply) error {
	return s.createFn(ctx, reply)
}
func (s *replyRepoStub) GetByID(ctx context.Context, id uint) (*models.Reply, error) {
	return s.getByIDFn(ctx, id)
}
func (s *replyRepoStub) ListByPost(ctx context.Context, postID uint) ([]models.Reply, error) {
	return s.listByPostFn(ctx, postID)
}
func (s *replyRepoStub) ListByUser(ctx context.Context, userID uint, limit int) ([]models.Reply, error) {
	return s.listByUserFn(ctx, userID, limit)
}

func noopReplyRepo() *replyRepoStub {
	return &replyRepoStub{
		createFn:     func(_ context.Context, _ *models.Reply) error { return nil },
		getByIDFn:    func(_ context.Context, id uint) (*models.Reply, error) { return nil, models.NewNotFoundError("Reply", id) },
		listByPostFn: func(_ context.Context, _ uint) ([]models.Reply, error) { return nil, nil },
		listByUserFn: func(_ context.Context, _ uint, _ int) ([]models.Reply, error) { return nil, nil },
	}
}

// runRepoStub is a stub for repository.CleanupRunRepository.
type runRepoStub struct {
	mu   sync.Mutex
	runs []*models.CleanupRun
	err  error
}

func (s *runRepoStub) Create(_ context.Context, run *models.CleanupRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	run.ID = uint(len(s.runs) + 1)
	s.runs = append(s.runs, run)
	return nil
}

func (s *runRepoStub) Latest(_ context.Context) (*models.CleanupRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.runs) == 0 {
		return nil, models.NewNotFoundError("CleanupRun", "latest")
	}
	return s.runs[len(s.runs)-1], nil
}

func (s *runRepoStub) List(_ context.Context, limit, offset int) ([]models.CleanupRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.CleanupRun, 0)
	for i := len(s.runs) - 1 - offset; i >= 0 && len(out) < limit; i-- {
		out = append(out, *s.runs[i])
	}
	return out, nil
}

// userRepoStub is a stub for repository.UserRepository.
type userRepoStub struct {
	setAdminFn func(context.Context, uint, bool) error
	ensured    []uint
}

func (s *userRepoStub) GetByID(_ context.Context, id uint) (*models.User, error) {
	return &models.User{ID: id}, nil
}
func (s *userRepoStub) GetByUsername(_ context.Context, username string) (*models.User, error) {
	return &models.User{Username: username}, nil
}
func (s *userRepoStub) Upsert(_ context.Context, _ *models.User) error { return nil }
func (s *userRepoStub) EnsureExists(_ context.Context, id uint, _ string) error {
	s.ensured = append(s.ensured, id)
	return nil
}
func (s *userRepoStub) SetAdmin(ctx context.Context, id uint, isAdmin bool) error {
	if s.setAdminFn == nil {
		return nil
	}
	return s.setAdminFn(ctx, id, isAdmin)
}
func (s *userRepoStub) IsAdmin(_ context.Context, _ uint) (bool, error) { return false, nil }

type recordedEvent struct {
	PostID  uint
	Type    string
	Payload any
}

// eventRecorder captures published live events.
type eventRecorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *eventRecorder) PublishPostEvent(_ context.Context, eventType string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{Type: eventType, Payload: payload})
}

func (r *eventRecorder) PublishReplyEvent(_ context.Context, postID uint, eventType string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{PostID: postID, Type: eventType, Payload: payload})
}

func (r *eventRecorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

// assertValidationError asserts that err is an AppError with code VALIDATION_ERROR.
func assertValidationError(t *testing.T, err error) {
	t.Helper()
	assertAppErrorCode(t, err, models.CodeValidation)
}

// assertUnauthorizedError asserts that err is an AppError with code UNAUTHORIZED.
func assertUnauthorizedError(t *testing.T, err error) {
	t.Helper()
	assertAppErrorCode(t, err, models.CodeUnauthorized)
}

func assertAppErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var appErr *models.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %T: %v", err, err)
	assert.Equal(t, code, appErr.Code)
}
