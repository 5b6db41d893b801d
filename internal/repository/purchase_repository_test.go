package repository

import (
	"context"
	"testing"
	"time"

	"github.com/novelmaze/novelmaze/internal/models"
)

func TestPurchaseRepository_CreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPurchaseRepository(db)
	ctx := context.Background()
	now := time.Now()

	purchase := &models.Purchase{
		ReadableID:  "PUR-TEST1",
		UserID:      "user-1",
		Status:      models.PurchaseStatusCompleted,
		Currency:    "COIN",
		TotalAmount: 30,
		CompletedAt: &now,
		Items: []models.PurchaseItem{{
			ItemType:          models.PurchaseItemEpisode,
			ItemID:            "ep-1",
			NovelID:           "novel-1",
			Quantity:          1,
			UnitPrice:         30,
			OriginalUnitPrice: 50,
		}},
	}
	if err := repo.Create(ctx, purchase); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if purchase.ID == "" {
		t.Fatal("expected purchase ID to be generated")
	}

	byReadable, err := repo.GetByReadableID(ctx, "PUR-TEST1")
	if err != nil {
		t.Fatalf("GetByReadableID() failed: %v", err)
	}
	if byReadable.ID != purchase.ID {
		t.Errorf("expected purchase %s, got %s", purchase.ID, byReadable.ID)
	}
	if len(byReadable.Items) != 1 || byReadable.Items[0].OriginalUnitPrice != 50 {
		t.Errorf("expected one preloaded item, got %+v", byReadable.Items)
	}

	list, err := repo.ListByUser(ctx, "user-1", 10, 0)
	if err != nil || len(list) != 1 {
		t.Errorf("ListByUser() = %d purchases, %v; want 1", len(list), err)
	}

	if _, err := repo.GetByReadableID(ctx, "missing"); !IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}
