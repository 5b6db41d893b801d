package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm/clause"

	"github.com/novelmaze/novelmaze/internal/models"
)

// LibraryRepository handles user library entries.
type LibraryRepository struct {
	db *DB
}

// NewLibraryRepository creates a new library repository.
func NewLibraryRepository(db *DB) *LibraryRepository {
	return &LibraryRepository{db: db}
}

// WithTx returns a repository bound to the given transaction.
func (r *LibraryRepository) WithTx(tx *DB) *LibraryRepository {
	return &LibraryRepository{db: tx}
}

// GetByUserAndNovel retrieves the library entry of a user for a novel.
func (r *LibraryRepository) GetByUserAndNovel(ctx context.Context, userID, novelID string) (*models.UserLibraryItem, error) {
	var item models.UserLibraryItem
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND novel_id = ?", userID, novelID).
		First(&item).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get library item for user %s novel %s: %w", userID, novelID, err)
	}
	return &item, nil
}

// ListByUser returns a user's library, most recently updated first.
func (r *LibraryRepository) ListByUser(ctx context.Context, userID string) ([]models.UserLibraryItem, error) {
	var items []models.UserLibraryItem
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list library for user %s: %w", userID, err)
	}
	return items, nil
}

// MarkEpisodePurchased upserts the library entry for the novel, records the
// episode as purchased and sets the OWNED status. It returns the stored entry and
// whether the episode was newly added; a repeat leaves the row untouched.
func (r *LibraryRepository) MarkEpisodePurchased(ctx context.Context, userID, novelID, episodeID string, at time.Time) (*models.UserLibraryItem, bool, error) {
	seed := models.UserLibraryItem{UserID: userID, NovelID: novelID}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "novel_id"}},
			DoNothing: true,
		}).
		Create(&seed).Error
	if err != nil {
		return nil, false, fmt.Errorf("failed to ensure library item: %w", err)
	}

	var item models.UserLibraryItem
	err = r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND novel_id = ?", userID, novelID).
		First(&item).Error
	if err != nil {
		return nil, false, fmt.Errorf("failed to lock library item: %w", err)
	}

	if !item.AddPurchasedEpisode(episodeID) {
		return &item, false, nil
	}
	item.LastPurchasedAt = &at
	if err := r.db.WithContext(ctx).Save(&item).Error; err != nil {
		return nil, false, fmt.Errorf("failed to update library item: %w", err)
	}
	return &item, true, nil
}
