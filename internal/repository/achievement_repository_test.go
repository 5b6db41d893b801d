package repository

import (
	"context"
	"testing"

	"github.com/novelmaze/novelmaze/internal/models"
)

func createTestDefinition(t *testing.T, repo *AchievementRepository, key string, tier, maxTier int, target int64) *models.Achievement {
	t.Helper()

	def := &models.Achievement{
		TierKey:      key,
		TierLevel:    tier,
		MaxTier:      maxTier,
		Title:        key,
		Category:     "reading",
		TargetValue:  target,
		PointsReward: 10,
	}
	stored, err := repo.InsertDefinitionIfMissing(context.Background(), def)
	if err != nil {
		t.Fatalf("Failed to create definition: %v", err)
	}
	return stored
}

func TestAchievementRepository_ListDefinitions(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAchievementRepository(db)
	ctx := context.Background()

	createTestDefinition(t, repo, "STORY_COLLECTOR", 2, 3, 10)
	createTestDefinition(t, repo, "STORY_COLLECTOR", 1, 3, 5)
	createTestDefinition(t, repo, "DAILY_VISITOR", 1, 1, 7)

	defs, err := repo.ListDefinitions(ctx)
	if err != nil {
		t.Fatalf("ListDefinitions() failed: %v", err)
	}
	if len(defs) != 3 {
		t.Fatalf("expected 3 definitions, got %d", len(defs))
	}
	if defs[0].TierKey != "DAILY_VISITOR" || defs[1].TierLevel != 1 || defs[2].TierLevel != 2 {
		t.Errorf("unexpected order: %s/%d %s/%d %s/%d",
			defs[0].TierKey, defs[0].TierLevel, defs[1].TierKey, defs[1].TierLevel, defs[2].TierKey, defs[2].TierLevel)
	}
}

func TestAchievementRepository_InsertDefinitionIfMissing(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAchievementRepository(db)
	ctx := context.Background()

	existing := createTestDefinition(t, repo, "FIRST_READER", 1, 1, 1)

	got, err := repo.InsertDefinitionIfMissing(ctx, &models.Achievement{
		TierKey: "FIRST_READER", TierLevel: 1, MaxTier: 1, Title: "Other", TargetValue: 99,
	})
	if err != nil {
		t.Fatalf("InsertDefinitionIfMissing() failed: %v", err)
	}
	if got.ID != existing.ID || got.TargetValue != 1 {
		t.Errorf("expected existing definition to win, got id=%d target=%d", got.ID, got.TargetValue)
	}

	if _, err := repo.GetDefinition(ctx, "UNKNOWN", 1); !IsNotFound(err) {
		t.Errorf("expected not found for unknown definition, got %v", err)
	}
}

func TestAchievementRepository_EarnedItems(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAchievementRepository(db)
	ctx := context.Background()

	def := createTestDefinition(t, repo, "STORY_COLLECTOR", 1, 3, 5)

	ua, err := repo.EnsureUserAchievementForUpdate(ctx, "user-1")
	if err != nil {
		t.Fatalf("EnsureUserAchievementForUpdate() failed: %v", err)
	}
	again, err := repo.EnsureUserAchievementForUpdate(ctx, "user-1")
	if err != nil {
		t.Fatalf("EnsureUserAchievementForUpdate() second call failed: %v", err)
	}
	if again.ID != ua.ID {
		t.Errorf("expected the same container, got %d and %d", ua.ID, again.ID)
	}

	item := &models.EarnedItem{
		UserAchievementID: ua.ID,
		ItemCode:          "STORY_COLLECTOR",
		ItemType:          models.ItemTypeAchievement,
		CurrentTier:       1,
		Progress:          models.Progress{Current: 2, Target: 5},
		ItemModelID:       def.ID,
	}
	if err := repo.SaveEarnedItem(ctx, item); err != nil {
		t.Fatalf("SaveEarnedItem() failed: %v", err)
	}

	item.Progress.Current = 5
	item.UnlockedTier = 1
	if err := repo.SaveEarnedItem(ctx, item); err != nil {
		t.Fatalf("SaveEarnedItem() update failed: %v", err)
	}

	stored, err := repo.GetEarnedItem(ctx, ua.ID, "STORY_COLLECTOR")
	if err != nil {
		t.Fatalf("GetEarnedItem() failed: %v", err)
	}
	if stored.Progress.Current != 5 || stored.UnlockedTier != 1 {
		t.Errorf("unexpected stored item: progress=%d unlocked=%d", stored.Progress.Current, stored.UnlockedTier)
	}

	items, err := repo.ListEarnedItems(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListEarnedItems() failed: %v", err)
	}
	if len(items) != 1 || items[0].ItemModel == nil || items[0].ItemModel.TierKey != "STORY_COLLECTOR" {
		t.Fatalf("expected one item with preloaded definition, got %+v", items)
	}
}
