package repository

import (
	"context"
	"testing"
	"time"

	"github.com/novelmaze/novelmaze/internal/models"
)

func TestLibraryRepository_MarkEpisodePurchased(t *testing.T) {
	db := setupTestDB(t)
	repo := NewLibraryRepository(db)
	ctx := context.Background()
	now := time.Now()

	item, added, err := repo.MarkEpisodePurchased(ctx, "user-1", "novel-1", "ep-1", now)
	if err != nil {
		t.Fatalf("MarkEpisodePurchased() failed: %v", err)
	}
	if !added {
		t.Error("expected first mark to report the episode as added")
	}
	if !item.HasPurchased("ep-1") || !item.HasStatus(models.LibraryStatusOwned) {
		t.Errorf("expected ep-1 purchased and OWNED, got %+v", item)
	}

	if _, added, err := repo.MarkEpisodePurchased(ctx, "user-1", "novel-1", "ep-2", now); err != nil || !added {
		t.Fatalf("MarkEpisodePurchased() second episode: added=%v err=%v", added, err)
	}
	// Re-marking an owned episode must not duplicate it.
	later := now.Add(time.Hour)
	_, added, err = repo.MarkEpisodePurchased(ctx, "user-1", "novel-1", "ep-1", later)
	if err != nil {
		t.Fatalf("MarkEpisodePurchased() repeat failed: %v", err)
	}
	if added {
		t.Error("expected repeat mark to report added=false")
	}

	stored, err := repo.GetByUserAndNovel(ctx, "user-1", "novel-1")
	if err != nil {
		t.Fatalf("GetByUserAndNovel() failed: %v", err)
	}
	if len(stored.PurchasedEpisodeIDs) != 2 {
		t.Errorf("expected 2 purchased episodes, got %v", stored.PurchasedEpisodeIDs)
	}
	if len(stored.Statuses) != 1 {
		t.Errorf("expected a single status, got %v", stored.Statuses)
	}
	if stored.LastPurchasedAt == nil || stored.LastPurchasedAt.After(now.Add(time.Minute)) {
		t.Errorf("repeat mark must not touch last purchase time, got %v", stored.LastPurchasedAt)
	}

	items, err := repo.ListByUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListByUser() failed: %v", err)
	}
	if len(items) != 1 {
		t.Errorf("expected one library entry, got %d", len(items))
	}
}

func TestLibraryRepository_GetByUserAndNovelMissing(t *testing.T) {
	db := setupTestDB(t)
	repo := NewLibraryRepository(db)

	_, err := repo.GetByUserAndNovel(context.Background(), "user-1", "novel-1")
	if !IsNotFound(err) {
		t.Errorf("expected not found error, got %v", err)
	}
}
