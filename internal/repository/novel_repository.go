package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/novelmaze/novelmaze/internal/models"
)

// NovelRepository handles novel and episode database operations.
type NovelRepository struct {
	db *DB
}

// NewNovelRepository creates a new novel repository.
func NewNovelRepository(db *DB) *NovelRepository {
	return &NovelRepository{db: db}
}

// WithTx returns a repository bound to the given transaction.
func (r *NovelRepository) WithTx(tx *DB) *NovelRepository {
	return &NovelRepository{db: tx}
}

// CreateNovel creates a new novel.
func (r *NovelRepository) CreateNovel(ctx context.Context, novel *models.Novel) error {
	if err := r.db.WithContext(ctx).Create(novel).Error; err != nil {
		return fmt.Errorf("failed to create novel: %w", err)
	}
	return nil
}

// GetNovel retrieves a novel by ID.
func (r *NovelRepository) GetNovel(ctx context.Context, id string) (*models.Novel, error) {
	var novel models.Novel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&novel).Error; err != nil {
		return nil, fmt.Errorf("failed to get novel %s: %w", id, err)
	}
	return &novel, nil
}

// GetNovelBySlug retrieves a novel by its URL slug.
func (r *NovelRepository) GetNovelBySlug(ctx context.Context, slug string) (*models.Novel, error) {
	var novel models.Novel
	if err := r.db.WithContext(ctx).Where("slug = ?", slug).First(&novel).Error; err != nil {
		return nil, fmt.Errorf("failed to get novel by slug %s: %w", slug, err)
	}
	return &novel, nil
}

// CreateEpisode creates a new episode.
func (r *NovelRepository) CreateEpisode(ctx context.Context, episode *models.Episode) error {
	if err := r.db.WithContext(ctx).Create(episode).Error; err != nil {
		return fmt.Errorf("failed to create episode: %w", err)
	}
	return nil
}

// GetEpisode retrieves an episode by ID.
func (r *NovelRepository) GetEpisode(ctx context.Context, id string) (*models.Episode, error) {
	var episode models.Episode
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&episode).Error; err != nil {
		return nil, fmt.Errorf("failed to get episode %s: %w", id, err)
	}
	return &episode, nil
}

// ListEpisodes returns the episodes of a novel in reading order.
func (r *NovelRepository) ListEpisodes(ctx context.Context, novelID string) ([]models.Episode, error) {
	var episodes []models.Episode
	err := r.db.WithContext(ctx).
		Where("novel_id = ?", novelID).
		Order("episode_order ASC").
		Find(&episodes).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list episodes for novel %s: %w", novelID, err)
	}
	return episodes, nil
}

// IncrementEpisodePurchases bumps the denormalized purchase counter of an episode.
func (r *NovelRepository) IncrementEpisodePurchases(ctx context.Context, episodeID string, count int64) error {
	err := r.db.WithContext(ctx).Model(&models.Episode{}).
		Where("id = ?", episodeID).
		UpdateColumn("purchase_count", gorm.Expr("purchase_count + ?", count)).Error
	if err != nil {
		return fmt.Errorf("failed to increment purchases for episode %s: %w", episodeID, err)
	}
	return nil
}

// IncrementNovelSales bumps the purchase count and coin revenue of a novel.
func (r *NovelRepository) IncrementNovelSales(ctx context.Context, novelID string, count, revenue int64) error {
	err := r.db.WithContext(ctx).Model(&models.Novel{}).
		Where("id = ?", novelID).
		UpdateColumns(map[string]interface{}{
			"stats_purchase_count": gorm.Expr("stats_purchase_count + ?", count),
			"stats_revenue_coins":  gorm.Expr("stats_revenue_coins + ?", revenue),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to increment sales for novel %s: %w", novelID, err)
	}
	return nil
}
