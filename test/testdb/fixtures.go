package testdb

import (
	"context"
	"testing"

	"github.com/novelmaze/novelmaze/internal/models"
	"github.com/novelmaze/novelmaze/internal/repository"
)

// CreateUser stores a user with the given roles.
func CreateUser(t *testing.T, db *repository.DB, username string, roles ...string) *models.User {
	t.Helper()

	user := &models.User{
		Username:    username,
		Email:       username + "@example.com",
		DisplayName: username,
		Roles:       roles,
	}
	if err := repository.NewUserRepository(db).Create(context.Background(), user); err != nil {
		t.Fatalf("Failed to create user %s: %v", username, err)
	}
	return user
}

// CreateNovel stores a published novel by author.
func CreateNovel(t *testing.T, db *repository.DB, author *models.User, slug string) *models.Novel {
	t.Helper()

	novel := &models.Novel{
		Title:    "Novel " + slug,
		Slug:     slug,
		AuthorID: author.ID,
		Status:   models.StatusPublished,
	}
	if err := repository.NewNovelRepository(db).CreateNovel(context.Background(), novel); err != nil {
		t.Fatalf("Failed to create novel %s: %v", slug, err)
	}
	return novel
}

// CreateEpisode stores an episode of novel. A zero price makes it free.
func CreateEpisode(t *testing.T, db *repository.DB, novel *models.Novel, order int, status string, price int64) *models.Episode {
	t.Helper()

	accessType := models.AccessTypeFree
	if price > 0 {
		accessType = models.AccessTypePaidUnlock
	}
	episode := &models.Episode{
		NovelID:      novel.ID,
		Title:        "Episode",
		EpisodeOrder: order,
		Status:       status,
		AccessType:   accessType,
		PriceCoins:   price,
	}
	if err := repository.NewNovelRepository(db).CreateEpisode(context.Background(), episode); err != nil {
		t.Fatalf("Failed to create episode: %v", err)
	}
	return episode
}
