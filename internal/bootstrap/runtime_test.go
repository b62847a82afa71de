package bootstrap

import (
	"context"
	"fmt"
	"testing"

	"agora/internal/config"
	"agora/internal/database"
	"agora/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, database.Migrate(context.Background(), db))
	return db
}

func TestEnsureAdmin(t *testing.T) {
	ctx := context.Background()

	t.Run("creates the admin with the provider id", func(t *testing.T) {
		db := setupSQLiteDB(t)
		cfg := &config.Config{Env: "development", BootstrapAdminID: 42, BootstrapAdminUsername: " root "}

		require.NoError(t, EnsureAdmin(ctx, cfg, db))

		var user models.User
		require.NoError(t, db.First(&user, 42).Error)
		assert.Equal(t, "root", user.Username)
		assert.True(t, user.IsAdmin)
	})

	t.Run("promotes an existing user and is repeatable", func(t *testing.T) {
		db := setupSQLiteDB(t)
		require.NoError(t, db.Create(&models.User{ID: 7, Username: "grace"}).Error)
		cfg := &config.Config{Env: "development", BootstrapAdminID: 7}

		require.NoError(t, EnsureAdmin(ctx, cfg, db))
		require.NoError(t, EnsureAdmin(ctx, cfg, db))

		var users []models.User
		require.NoError(t, db.Find(&users).Error)
		require.Len(t, users, 1)
		assert.Equal(t, "admin", users[0].Username)
		assert.True(t, users[0].IsAdmin)
	})

	t.Run("skipped in production or without an id", func(t *testing.T) {
		db := setupSQLiteDB(t)

		require.NoError(t, EnsureAdmin(ctx, &config.Config{Env: "production", BootstrapAdminID: 1}, db))
		require.NoError(t, EnsureAdmin(ctx, &config.Config{Env: "development"}, db))

		var count int64
		require.NoError(t, db.Model(&models.User{}).Count(&count).Error)
		assert.Zero(t, count)
	})
}
