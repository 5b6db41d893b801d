package repository

import (
	"context"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/novelmaze/novelmaze/internal/models"
)

// setupTestDB creates an in-memory SQLite database with every table migrated.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: gormlogger.Discard})
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}

	// A single connection keeps every statement on the same in-memory database.
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("Failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	gdb.Exec("PRAGMA foreign_keys = ON")

	db := &DB{gdb}
	if err := db.AutoMigrate(); err != nil {
		t.Fatalf("Failed to auto-migrate tables: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return db
}

// createTestUser creates a test user in the database.
func createTestUser(t *testing.T, db *DB, username string, roles ...string) *models.User {
	t.Helper()

	user := &models.User{
		Username: username,
		Email:    username + "@example.com",
		Roles:    roles,
	}
	if err := NewUserRepository(db).Create(context.Background(), user); err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	return user
}

// createTestNovel creates a published novel with one paid episode.
func createTestNovel(t *testing.T, db *DB, author *models.User, slug string, price int64) (*models.Novel, *models.Episode) {
	t.Helper()

	repo := NewNovelRepository(db)
	ctx := context.Background()

	novel := &models.Novel{
		Title:    "Novel " + slug,
		Slug:     slug,
		AuthorID: author.ID,
		Status:   models.StatusPublished,
	}
	if err := repo.CreateNovel(ctx, novel); err != nil {
		t.Fatalf("Failed to create test novel: %v", err)
	}

	episode := &models.Episode{
		NovelID:      novel.ID,
		Title:        "Episode 1",
		EpisodeOrder: 1,
		Status:       models.StatusPublished,
		AccessType:   models.AccessTypePaidUnlock,
		PriceCoins:   price,
	}
	if err := repo.CreateEpisode(ctx, episode); err != nil {
		t.Fatalf("Failed to create test episode: %v", err)
	}
	return novel, episode
}
