package repository

import (
	"context"
	"errors"
	"fmt"

	"agora/internal/cache"
	"agora/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	Upsert(ctx context.Context, user *models.User) error
	EnsureExists(ctx context.Context, id uint, username string) error
	SetAdmin(ctx context.Context, id uint, isAdmin bool) error
	IsAdmin(ctx context.Context, id uint) (bool, error)
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository returns a new UserRepository implementation.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	err := cache.Aside(ctx, cache.UserKey(id), &user, cache.UserTTL, func() error {
		if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.NewNotFoundError("User", id)
			}
			return models.NewInternalError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("User", username)
		}
		return nil, models.NewInternalError(err)
	}
	return &user, nil
}

// Upsert inserts the user or refreshes its profile fields. The admin flag is
// never touched here.
func (r *userRepository) Upsert(ctx context.Context, user *models.User) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"username", "display_name", "updated_at"}),
	}).Create(user).Error
	if err != nil {
		return err
	}
	cache.InvalidateUser(ctx, user.ID)
	return nil
}

// EnsureExists inserts a row for a provider-authenticated user the first time
// it is seen. Existing rows, soft-deleted ones included, are left untouched.
// A username taken by another account falls back to "user-<id>".
func (r *userRepository) EnsureExists(ctx context.Context, id uint, username string) error {
	if _, err := r.GetByID(ctx, id); err == nil {
		return nil
	} else if models.ErrorCode(err) != models.CodeNotFound {
		return err
	}

	fallback := fmt.Sprintf("user-%d", id)
	names := []string{fallback}
	if username != "" && username != fallback {
		names = []string{username, fallback}
	}

	for _, name := range names {
		res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).
			Create(&models.User{ID: id, Username: name})
		if res.Error != nil {
			return models.NewInternalError(res.Error)
		}
		if res.RowsAffected > 0 {
			return nil
		}
		// Nothing inserted: either a concurrent request won the race on id
		// or the username belongs to someone else.
		var n int64
		if err := r.db.WithContext(ctx).Unscoped().Model(&models.User{}).Where("id = ?", id).Count(&n).Error; err != nil {
			return models.NewInternalError(err)
		}
		if n > 0 {
			return nil
		}
	}
	return models.NewInternalError(fmt.Errorf("no free username for user %d", id))
}

func (r *userRepository) SetAdmin(ctx context.Context, id uint, isAdmin bool) error {
	res := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("is_admin", isAdmin)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("User", id)
	}
	cache.InvalidateUser(ctx, id)
	return nil
}

// IsAdmin reports the admin flag. Unknown users are not admins.
func (r *userRepository) IsAdmin(ctx context.Context, id uint) (bool, error) {
	user, err := r.GetByID(ctx, id)
	if err != nil {
		if models.ErrorCode(err) == models.CodeNotFound {
			return false, nil
		}
		return false, err
	}
	return user.IsAdmin, nil
}
