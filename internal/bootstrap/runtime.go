// Package bootstrap connects the runtime dependencies shared by the server
// and the command line tools.
package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"agora/internal/cache"
	"agora/internal/config"
	"agora/internal/database"
	"agora/internal/middleware"
	"agora/internal/models"
	"agora/internal/repository"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Options control runtime initialization behavior.
type Options struct {
	EnsureAdmin bool
}

// InitRuntime connects to DB and Redis and optionally mirrors the configured
// bootstrap admin. The Redis client is nil when Redis is unreachable.
func InitRuntime(cfg *config.Config, opts Options) (*gorm.DB, *redis.Client, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}

	cache.InitRedis(cfg.RedisURL)
	r := cache.GetClient()

	if opts.EnsureAdmin {
		if err := EnsureAdmin(context.Background(), cfg, db); err != nil {
			return nil, nil, fmt.Errorf("failed to bootstrap admin: %w", err)
		}
	}

	return db, r, nil
}

// EnsureAdmin upserts BOOTSTRAP_ADMIN_ID as a local admin. User ids belong
// to the external auth provider, so the row is created with that explicit id.
// It never runs in production.
func EnsureAdmin(ctx context.Context, cfg *config.Config, db *gorm.DB) error {
	if cfg == nil || db == nil || cfg.IsProduction() || cfg.BootstrapAdminID == 0 {
		return nil
	}

	username := strings.TrimSpace(cfg.BootstrapAdminUsername)
	if username == "" {
		username = "admin"
	}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		users := repository.NewUserRepository(tx)
		if err := users.Upsert(ctx, &models.User{ID: cfg.BootstrapAdminID, Username: username}); err != nil {
			return err
		}
		if err := users.SetAdmin(ctx, cfg.BootstrapAdminID, true); err != nil {
			return err
		}

		// Keep the users sequence ahead of the explicit id. PostgreSQL only.
		if tx.Dialector.Name() == "postgres" {
			if err := tx.Exec(`
				SELECT setval(
					pg_get_serial_sequence('users', 'id'),
					GREATEST((SELECT COALESCE(MAX(id), 1) FROM users), 1),
					true
				)
			`).Error; err != nil {
				return fmt.Errorf("failed to reset users sequence: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	middleware.Logger.InfoContext(ctx, "bootstrap admin ensured",
		"user_id", cfg.BootstrapAdminID, "username", username)
	return nil
}
