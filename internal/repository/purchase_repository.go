package repository

import (
	"context"
	"fmt"

	"github.com/novelmaze/novelmaze/internal/models"
)

// PurchaseRepository handles purchase records.
type PurchaseRepository struct {
	db *DB
}

// NewPurchaseRepository creates a new purchase repository.
func NewPurchaseRepository(db *DB) *PurchaseRepository {
	return &PurchaseRepository{db: db}
}

// WithTx returns a repository bound to the given transaction.
func (r *PurchaseRepository) WithTx(tx *DB) *PurchaseRepository {
	return &PurchaseRepository{db: tx}
}

// Create stores a purchase together with its items.
func (r *PurchaseRepository) Create(ctx context.Context, purchase *models.Purchase) error {
	if err := r.db.WithContext(ctx).Create(purchase).Error; err != nil {
		return fmt.Errorf("failed to create purchase: %w", err)
	}
	return nil
}

// GetByReadableID retrieves a purchase by its human-readable identifier.
func (r *PurchaseRepository) GetByReadableID(ctx context.Context, readableID string) (*models.Purchase, error) {
	var purchase models.Purchase
	err := r.db.WithContext(ctx).Preload("Items").Where("readable_id = ?", readableID).First(&purchase).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get purchase %s: %w", readableID, err)
	}
	return &purchase, nil
}

// ListByUser returns a user's purchases, newest first.
func (r *PurchaseRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.Purchase, error) {
	var purchases []models.Purchase
	query := r.db.WithContext(ctx).
		Preload("Items").
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Offset(offset)
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&purchases).Error; err != nil {
		return nil, fmt.Errorf("failed to list purchases for user %s: %w", userID, err)
	}
	return purchases, nil
}

