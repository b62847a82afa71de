package repository

import (
	"context"
	"errors"

	"agora/internal/models"

	"gorm.io/gorm"
)

// CleanupRunRepository stores the history of image expiration sweeps.
type CleanupRunRepository interface {
	Create(ctx context.Context, run *models.CleanupRun) error
	Latest(ctx context.Context) (*models.CleanupRun, error)
	List(ctx context.Context, limit, offset int) ([]models.CleanupRun, error)
}

type cleanupRunRepository struct {
	db *gorm.DB
}

// NewCleanupRunRepository returns a new CleanupRunRepository implementation.
func NewCleanupRunRepository(db *gorm.DB) CleanupRunRepository {
	return &cleanupRunRepository{db: db}
}

func (r *cleanupRunRepository) Create(ctx context.Context, run *models.CleanupRun) error {
	return r.db.WithContext(ctx).Create(run).Error
}

func (r *cleanupRunRepository) Latest(ctx context.Context) (*models.CleanupRun, error) {
	var run models.CleanupRun
	if err := r.db.WithContext(ctx).Order("last_cleanup DESC").Order("id DESC").First(&run).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("CleanupRun", "latest")
		}
		return nil, models.NewInternalError(err)
	}
	return &run, nil
}

func (r *cleanupRunRepository) List(ctx context.Context, limit, offset int) ([]models.CleanupRun, error) {
	var runs []models.CleanupRun
	err := r.db.WithContext(ctx).
		Order("last_cleanup DESC").
		Order("id DESC").
		Limit(limit).
		Offset(offset).
		Find(&runs).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return runs, nil
}
