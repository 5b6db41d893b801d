package gamification

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/novelmaze/novelmaze/internal/cache"
	"github.com/novelmaze/novelmaze/internal/metrics"
	"github.com/novelmaze/novelmaze/internal/models"
	"github.com/novelmaze/novelmaze/internal/repository"
)

// Summary is the gamification profile of a user.
type Summary struct {
	UserID                          string               `json:"userId"`
	ExperiencePoints                int64                `json:"experiencePoints"`
	Level                           int                  `json:"level"`
	TotalExperiencePointsEverEarned int64                `json:"totalExperiencePointsEverEarned"`
	NextLevelXPThreshold            int64                `json:"nextLevelXPThreshold"`
	CoinBalance                     int64                `json:"coinBalance"`
	Achievements                    []AchievementSummary `json:"achievements"`
}

// AchievementSummary is one earned item as shown in a summary.
type AchievementSummary struct {
	ID           uint     `json:"id"`
	ItemCode     string   `json:"itemCode"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Icon         string   `json:"icon,omitempty"`
	Tier         int      `json:"tier"`
	UnlockedTier int      `json:"unlockedTier"`
	MaxTier      int      `json:"maxTier"`
	Progress     Progress `json:"progress"`
	Completed    bool     `json:"completed"`
}

func summaryKey(userID string) string {
	return fmt.Sprintf("gamification:summary:%s", userID)
}

func summaryGenerationKey(userID string) string {
	return fmt.Sprintf("gamification:summary:%s:generation", userID)
}

// cachedSummary is the cached form of a summary. An entry only counts as a hit
// while its generation matches the user's current one, so a summary built
// before an invalidation but written after it is never served.
type cachedSummary struct {
	Generation string  `json:"generation"`
	Summary    Summary `json:"summary"`
}

func (s *Service) summaryGeneration(ctx context.Context, userID string) string {
	gen, err := s.cache.Get(ctx, summaryGenerationKey(userID))
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("Failed to read summary generation")
		return ""
	}
	return gen
}

// GetGamificationSummary returns the user's level, wallet and achievements,
// creating the gamification row when missing and normalizing overflowing XP.
func (s *Service) GetGamificationSummary(ctx context.Context, userID string) (*Summary, error) {
	caching := s.cache != nil && s.summaryTTL > 0
	var generation string
	if caching {
		generation = s.summaryGeneration(ctx, userID)
		var cached cachedSummary
		hit, err := cache.GetJSON(ctx, s.cache, summaryKey(userID), &cached)
		if err != nil {
			s.log.Warn().Err(err).Str("user_id", userID).Msg("Failed to read cached summary")
		}
		hit = hit && cached.Generation == generation
		metrics.RecordSummaryCache(hit)
		if hit {
			return &cached.Summary, nil
		}
	}

	var g *models.UserGamification
	normalized := false
	err := s.db.Transaction(ctx, func(tx *repository.DB) error {
		repo := s.gamification.WithTx(tx)
		var err error
		g, err = repo.EnsureForUpdate(ctx, userID, s.curve.CostFor(1))
		if err != nil {
			return err
		}
		if g.ExperiencePoints < g.NextLevelXPThreshold {
			return nil
		}
		if _, changed := reconcileLevel(g, s.curve, s.now()); changed {
			normalized = true
			return repo.Save(ctx, g)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if normalized {
		metrics.RecordNormalizationRepair()
	}

	items, err := s.achievements.ListEarnedItems(ctx, userID)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		UserID:                          userID,
		ExperiencePoints:                g.ExperiencePoints,
		Level:                           g.Level,
		TotalExperiencePointsEverEarned: g.TotalExperiencePointsEverEarned,
		NextLevelXPThreshold:            g.NextLevelXPThreshold,
		CoinBalance:                     g.Wallet.CoinBalance,
		Achievements:                    make([]AchievementSummary, 0, len(items)),
	}
	for _, item := range items {
		entry := AchievementSummary{
			ID:           item.ID,
			ItemCode:     item.ItemCode,
			Tier:         item.CurrentTier,
			UnlockedTier: item.UnlockedTier,
			Progress:     Progress{Current: item.Progress.Current, Target: item.Progress.Target},
			Completed:    item.Completed,
		}
		if item.ItemModel != nil {
			entry.Title = item.ItemModel.Title
			entry.Description = item.ItemModel.Description
			entry.Icon = item.ItemModel.Icon
			entry.MaxTier = item.ItemModel.MaxTier
		}
		summary.Achievements = append(summary.Achievements, entry)
	}

	if caching {
		entry := cachedSummary{Generation: generation, Summary: *summary}
		if err := cache.SetJSON(ctx, s.cache, summaryKey(userID), entry, s.summaryTTL); err != nil {
			s.log.Warn().Err(err).Str("user_id", userID).Msg("Failed to cache summary")
		}
	}
	return summary, nil
}

// InvalidateSummary drops the cached summary of a user and starts a new
// generation. The generation outlives any summary written under the old one.
func (s *Service) InvalidateSummary(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if s.summaryTTL > 0 {
		err := s.cache.Set(ctx, summaryGenerationKey(userID), uuid.NewString(), 2*s.summaryTTL)
		if err != nil {
			s.log.Warn().Err(err).Str("user_id", userID).Msg("Failed to rotate summary generation")
		}
	}
	if err := s.cache.Del(ctx, summaryKey(userID)); err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("Failed to invalidate cached summary")
	}
}
