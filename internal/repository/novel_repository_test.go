package repository

import (
	"context"
	"testing"

	"github.com/novelmaze/novelmaze/internal/models"
)

func TestNovelRepository_EpisodesAndStats(t *testing.T) {
	db := setupTestDB(t)
	repo := NewNovelRepository(db)
	ctx := context.Background()

	author := createTestUser(t, db, "author", models.RoleAuthor)
	novel, episode := createTestNovel(t, db, author, "moonlit-gate", 50)

	second := &models.Episode{NovelID: novel.ID, Title: "Episode 2", EpisodeOrder: 2}
	if err := repo.CreateEpisode(ctx, second); err != nil {
		t.Fatalf("CreateEpisode() failed: %v", err)
	}
	draft, err := repo.GetEpisode(ctx, second.ID)
	if err != nil {
		t.Fatalf("GetEpisode() failed: %v", err)
	}
	if draft.Status != models.StatusDraft || draft.AccessType != models.AccessTypeFree {
		t.Errorf("expected defaults draft/free, got %s/%s", draft.Status, draft.AccessType)
	}

	episodes, err := repo.ListEpisodes(ctx, novel.ID)
	if err != nil {
		t.Fatalf("ListEpisodes() failed: %v", err)
	}
	if len(episodes) != 2 || episodes[0].ID != episode.ID || episodes[1].ID != second.ID {
		t.Errorf("expected episodes in reading order, got %+v", episodes)
	}

	if err := repo.IncrementEpisodePurchases(ctx, episode.ID, 1); err != nil {
		t.Fatalf("IncrementEpisodePurchases() failed: %v", err)
	}
	if err := repo.IncrementNovelSales(ctx, novel.ID, 1, 50); err != nil {
		t.Fatalf("IncrementNovelSales() failed: %v", err)
	}

	storedEpisode, err := repo.GetEpisode(ctx, episode.ID)
	if err != nil {
		t.Fatalf("GetEpisode() failed: %v", err)
	}
	if storedEpisode.PurchaseCount != 1 {
		t.Errorf("expected purchase count 1, got %d", storedEpisode.PurchaseCount)
	}

	storedNovel, err := repo.GetNovelBySlug(ctx, "moonlit-gate")
	if err != nil {
		t.Fatalf("GetNovelBySlug() failed: %v", err)
	}
	if storedNovel.Stats.PurchaseCount != 1 || storedNovel.Stats.RevenueCoins != 50 {
		t.Errorf("unexpected stats: %+v", storedNovel.Stats)
	}
}

func TestUserRepository_CreateOrUpdate(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	user := createTestUser(t, db, "reader", models.RoleReader)

	if err := repo.CreateOrUpdate(ctx, &models.User{
		Username:    "reader",
		Email:       "new@example.com",
		DisplayName: "Reader",
		Roles:       []string{models.RoleReader, models.RoleModerator},
	}); err != nil {
		t.Fatalf("CreateOrUpdate() failed: %v", err)
	}

	stored, err := repo.GetByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetByID() failed: %v", err)
	}
	if stored.Email != "new@example.com" || !stored.IsStaff() {
		t.Errorf("expected refreshed profile, got %+v", stored)
	}

	if _, err := repo.GetByID(ctx, "missing"); !IsNotFound(err) {
		t.Errorf("GetByID(missing) = %v; want not found", err)
	}
}
