package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm/clause"

	"github.com/novelmaze/novelmaze/internal/models"
)

// AchievementRepository handles achievement definitions and per-user earned items.
type AchievementRepository struct {
	db *DB
}

// NewAchievementRepository creates a new achievement repository.
func NewAchievementRepository(db *DB) *AchievementRepository {
	return &AchievementRepository{db: db}
}

// WithTx returns a repository bound to the given transaction.
func (r *AchievementRepository) WithTx(tx *DB) *AchievementRepository {
	return &AchievementRepository{db: tx}
}

// InsertDefinitionIfMissing creates the definition unless one already exists
// for its tier, then returns the stored row.
func (r *AchievementRepository) InsertDefinitionIfMissing(ctx context.Context, def *models.Achievement) (*models.Achievement, error) {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tier_key"}, {Name: "tier_level"}},
		DoNothing: true,
	}).Create(def).Error
	if err != nil {
		return nil, fmt.Errorf("failed to insert achievement %s tier %d: %w", def.TierKey, def.TierLevel, err)
	}
	return r.GetDefinition(ctx, def.TierKey, def.TierLevel)
}

// GetDefinition retrieves the definition of one tier.
func (r *AchievementRepository) GetDefinition(ctx context.Context, tierKey string, tierLevel int) (*models.Achievement, error) {
	var def models.Achievement
	err := r.db.WithContext(ctx).
		Where("tier_key = ? AND tier_level = ?", tierKey, tierLevel).
		First(&def).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get achievement %s tier %d: %w", tierKey, tierLevel, err)
	}
	return &def, nil
}

// ListDefinitions returns every definition ordered by track then tier.
func (r *AchievementRepository) ListDefinitions(ctx context.Context) ([]models.Achievement, error) {
	var defs []models.Achievement
	if err := r.db.WithContext(ctx).Order("tier_key ASC, tier_level ASC").Find(&defs).Error; err != nil {
		return nil, fmt.Errorf("failed to list achievements: %w", err)
	}
	return defs, nil
}

// EnsureUserAchievementForUpdate creates the user's container when missing and
// returns it locked, serializing concurrent tracking for the same user.
func (r *AchievementRepository) EnsureUserAchievementForUpdate(ctx context.Context, userID string) (*models.UserAchievement, error) {
	row := models.UserAchievement{UserID: userID}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(&row).Error
	if err != nil {
		return nil, fmt.Errorf("failed to ensure achievements for user %s: %w", userID, err)
	}

	var ua models.UserAchievement
	err = r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&ua).Error
	if err != nil {
		return nil, fmt.Errorf("failed to lock achievements for user %s: %w", userID, err)
	}
	return &ua, nil
}

// GetEarnedItem retrieves one earned item of a container by code.
func (r *AchievementRepository) GetEarnedItem(ctx context.Context, userAchievementID uint, itemCode string) (*models.EarnedItem, error) {
	var item models.EarnedItem
	err := r.db.WithContext(ctx).
		Where("user_achievement_id = ? AND item_code = ?", userAchievementID, itemCode).
		First(&item).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get earned item %s: %w", itemCode, err)
	}
	return &item, nil
}

// SaveEarnedItem creates or updates an earned item.
func (r *AchievementRepository) SaveEarnedItem(ctx context.Context, item *models.EarnedItem) error {
	if err := r.db.WithContext(ctx).Omit("ItemModel").Save(item).Error; err != nil {
		return fmt.Errorf("failed to save earned item %s: %w", item.ItemCode, err)
	}
	return nil
}

// ListEarnedItems returns the earned items of a user with their current tier
// definition preloaded.
func (r *AchievementRepository) ListEarnedItems(ctx context.Context, userID string) ([]models.EarnedItem, error) {
	var items []models.EarnedItem
	err := r.db.WithContext(ctx).
		Joins("JOIN user_achievements ON user_achievements.id = earned_items.user_achievement_id").
		Where("user_achievements.user_id = ?", userID).
		Preload("ItemModel").
		Order("earned_items.item_code ASC").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list earned items for user %s: %w", userID, err)
	}
	return items, nil
}

