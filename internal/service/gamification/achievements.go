package gamification

import (
	"context"
	"fmt"
	"strconv"

	"github.com/novelmaze/novelmaze/internal/metrics"
	"github.com/novelmaze/novelmaze/internal/models"
	"github.com/novelmaze/novelmaze/internal/repository"
)

// TrackResult describes the outcome of a progress update.
type TrackResult struct {
	Unlocked       bool     `json:"unlocked"`
	Tier           int      `json:"tier,omitempty"`
	Title          string   `json:"title,omitempty"`
	UnlockedTiers  []int    `json:"unlockedTiers,omitempty"`
	MaxTierReached bool     `json:"maxTierReached"`
	Progress       Progress `json:"progress"`
}

// Progress mirrors an earned item's progress counters.
type Progress struct {
	Current int64 `json:"current"`
	Target  int64 `json:"target"`
}

// SyncCatalog inserts catalog definitions that are missing from the database.
// Existing definitions are left untouched. It returns the number of tiers synced.
func (s *Service) SyncCatalog(ctx context.Context, catalog *Catalog) (int, error) {
	defs := catalog.Definitions()
	for i := range defs {
		stored, err := s.achievements.InsertDefinitionIfMissing(ctx, &defs[i])
		if err != nil {
			return 0, err
		}
		s.definitions.Add(definitionKey(stored.TierKey, stored.TierLevel), *stored)
	}
	s.log.Info().Int("definitions", len(defs)).Msg("Achievement catalog synced")
	return len(defs), nil
}

// ListDefinitions returns every stored achievement definition.
func (s *Service) ListDefinitions(ctx context.Context) ([]models.Achievement, error) {
	return s.achievements.ListDefinitions(ctx)
}

func definitionKey(tierKey string, tier int) string {
	return tierKey + "#" + strconv.Itoa(tier)
}

// definition loads a tier definition through the in-process cache.
func (s *Service) definition(ctx context.Context, repo *repository.AchievementRepository, tierKey string, tier int) (*models.Achievement, error) {
	key := definitionKey(tierKey, tier)
	if def, ok := s.definitions.Get(key); ok {
		return &def, nil
	}
	def, err := repo.GetDefinition(ctx, tierKey, tier)
	if err != nil {
		return nil, err
	}
	s.definitions.Add(key, *def)
	return def, nil
}

// TrackAchievementProgress adds increment (1 when non-positive) to the user's
// progress on a track and unlocks every tier whose target is reached. Each
// unlocked tier awards its points and writes a notification.
func (s *Service) TrackAchievementProgress(ctx context.Context, userID, tierKey string, increment int64) (*TrackResult, error) {
	if increment <= 0 {
		increment = 1
	}

	result := &TrackResult{}
	var unlocked []models.Achievement
	var levelsGained int
	var pending []*models.Notification

	err := s.db.Transaction(ctx, func(tx *repository.DB) error {
		repo := s.achievements.WithTx(tx)

		first, err := s.firstTier(ctx, repo, tierKey)
		if err != nil {
			return err
		}

		container, err := repo.EnsureUserAchievementForUpdate(ctx, userID)
		if err != nil {
			return err
		}

		item, err := repo.GetEarnedItem(ctx, container.ID, tierKey)
		if repository.IsNotFound(err) {
			item = &models.EarnedItem{
				UserAchievementID: container.ID,
				ItemCode:          tierKey,
				ItemType:          models.ItemTypeAchievement,
				CurrentTier:       1,
				Progress:          models.Progress{Target: first.TargetValue},
				ItemModelID:       first.ID,
			}
		} else if err != nil {
			return err
		}

		item.Progress.Current += increment
		unlocked, err = s.advanceTiers(ctx, repo, item)
		if err != nil {
			return err
		}
		if err := repo.SaveEarnedItem(ctx, item); err != nil {
			return err
		}

		for i := range unlocked {
			def := &unlocked[i]
			if def.PointsReward > 0 {
				state, notes, err := s.awardTx(ctx, tx, userID, def.PointsReward)
				if err != nil {
					return err
				}
				levelsGained += state.LevelsGained
				pending = append(pending, notes...)
			}

			n := &models.Notification{
				UserID:  userID,
				Type:    models.NotificationAchievementUnlocked,
				Title:   fmt.Sprintf("Achievement unlocked: %s", def.Title),
				Message: def.Description,
				Payload: map[string]interface{}{
					"tierKey": def.TierKey,
					"tier":    def.TierLevel,
					"points":  def.PointsReward,
				},
			}
			if err := s.notifications.WithTx(tx).Create(ctx, n); err != nil {
				return err
			}
			pending = append(pending, n)
		}

		result.MaxTierReached = item.Completed
		result.Progress = Progress{Current: item.Progress.Current, Target: item.Progress.Target}
		return nil
	})
	if err != nil {
		// A definition seeded inside the rolled back transaction must not stay cached.
		s.definitions.Remove(definitionKey(TrackFirstReader, 1))
		s.log.Error().Err(err).Str("user_id", userID).Str("tier_key", tierKey).Msg("Failed to track achievement progress")
		return &TrackResult{}, err
	}

	for _, def := range unlocked {
		result.UnlockedTiers = append(result.UnlockedTiers, def.TierLevel)
		metrics.RecordAchievementUnlocked(def.TierKey, strconv.Itoa(def.TierLevel))
		metrics.RecordXPAwarded(SourceAchievement, def.PointsReward)
	}
	if n := len(unlocked); n > 0 {
		last := unlocked[n-1]
		result.Unlocked = true
		result.Tier = last.TierLevel
		result.Title = last.Title

		s.log.Info().
			Str("user_id", userID).
			Str("tier_key", tierKey).
			Ints("tiers", result.UnlockedTiers).
			Msg("Achievement tiers unlocked")
	}
	metrics.RecordLevelUps(levelsGained)
	s.afterCommit(ctx, userID, pending)

	return result, nil
}

// firstTier returns the tier-1 definition of a track, seeding FIRST_READER when absent.
func (s *Service) firstTier(ctx context.Context, repo *repository.AchievementRepository, tierKey string) (*models.Achievement, error) {
	def, err := s.definition(ctx, repo, tierKey, 1)
	if err == nil {
		return def, nil
	}
	if !repository.IsNotFound(err) {
		return nil, err
	}
	if tierKey != TrackFirstReader {
		return nil, fmt.Errorf("%w: %s", ErrAchievementNotFound, tierKey)
	}

	s.log.Warn().Str("tier_key", tierKey).Msg("Seeding missing achievement definition")
	def, err = repo.InsertDefinitionIfMissing(ctx, firstReaderDefinition())
	if err != nil {
		return nil, err
	}
	s.definitions.Add(definitionKey(def.TierKey, def.TierLevel), *def)
	return def, nil
}

// advanceTiers unlocks tiers while the item's progress meets its target and
// returns the definitions unlocked, in order.
func (s *Service) advanceTiers(ctx context.Context, repo *repository.AchievementRepository, item *models.EarnedItem) ([]models.Achievement, error) {
	var unlocked []models.Achievement
	now := s.now()

	for !item.Completed {
		current, err := s.definition(ctx, repo, item.ItemCode, item.CurrentTier)
		if err != nil {
			return nil, err
		}
		item.ItemModelID = current.ID
		item.Progress.Target = current.TargetValue
		if !item.Progress.Reached() {
			break
		}

		unlocked = append(unlocked, *current)
		item.UnlockedTier = item.CurrentTier
		item.LastUnlockedAt = &now
		if item.FirstEarnedAt == nil {
			item.FirstEarnedAt = &now
		}

		if current.IsFinalTier() {
			item.Completed = true
			break
		}

		next, err := s.definition(ctx, repo, item.ItemCode, item.CurrentTier+1)
		if repository.IsNotFound(err) {
			// Catalog declares more tiers than are stored; treat the track as finished.
			item.Completed = true
			break
		}
		if err != nil {
			return nil, err
		}
		item.CurrentTier = next.TierLevel
		item.ItemModelID = next.ID
		item.Progress.Target = next.TargetValue
	}
	return unlocked, nil
}
