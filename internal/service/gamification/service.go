// Package gamification manages experience points, levels, tiered achievements
// and coin wallets.
package gamification

import (
	"context"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/novelmaze/novelmaze/internal/cache"
	"github.com/novelmaze/novelmaze/internal/metrics"
	"github.com/novelmaze/novelmaze/internal/models"
	"github.com/novelmaze/novelmaze/internal/repository"
	"github.com/novelmaze/novelmaze/pkg/logger"
)

// XP sources used in metrics and logs.
const (
	SourceDirect         = "direct"
	SourceAchievement    = "achievement"
	SourceStoryCompleted = "story_completed"
	SourceDailyLogin     = "daily_login"
)

var (
	// ErrAchievementNotFound is returned when a track has no tier-1 definition.
	ErrAchievementNotFound = errors.New("achievement not found")
	// ErrInvalidAmount is returned for non-positive coin amounts.
	ErrInvalidAmount = errors.New("amount must be positive")
)

// Announcer publishes notifications outside the database, e.g. to a webhook.
type Announcer interface {
	Announce(ctx context.Context, n *models.Notification)
}

// Options tunes the service.
type Options struct {
	Curve               LevelCurve
	SummaryTTL          time.Duration
	DefinitionCacheSize int
}

// Service implements the gamification operations.
type Service struct {
	db            *repository.DB
	gamification  *repository.GamificationRepository
	achievements  *repository.AchievementRepository
	notifications *repository.NotificationRepository
	cache         cache.Cache
	announcer     Announcer
	definitions   *lru.Cache[string, models.Achievement]
	curve         LevelCurve
	summaryTTL    time.Duration
	log           *logger.Logger
	now           func() time.Time
}

// NewService creates a new gamification service. announcer may be nil.
func NewService(db *repository.DB, c cache.Cache, announcer Announcer, opts Options, log *logger.Logger) (*Service, error) {
	if opts.Curve == nil {
		opts.Curve = FlatCurve{XPPerLevel: 100}
	}
	if opts.DefinitionCacheSize <= 0 {
		opts.DefinitionCacheSize = 256
	}
	defs, err := lru.New[string, models.Achievement](opts.DefinitionCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create definition cache: %w", err)
	}

	return &Service{
		db:            db,
		gamification:  repository.NewGamificationRepository(db),
		achievements:  repository.NewAchievementRepository(db),
		notifications: repository.NewNotificationRepository(db),
		cache:         c,
		announcer:     announcer,
		definitions:   defs,
		curve:         opts.Curve,
		summaryTTL:    opts.SummaryTTL,
		log:           log.Component("gamification"),
		now:           time.Now,
	}, nil
}

// LevelState is the XP and level state of a user after a mutation.
type LevelState struct {
	UserID                          string `json:"userId"`
	Level                           int    `json:"level"`
	ExperiencePoints                int64  `json:"experiencePoints"`
	TotalExperiencePointsEverEarned int64  `json:"totalExperiencePointsEverEarned"`
	NextLevelXPThreshold            int64  `json:"nextLevelXPThreshold"`
	LevelsGained                    int    `json:"levelsGained"`
}

func levelStateOf(g *models.UserGamification, gained int) *LevelState {
	return &LevelState{
		UserID:                          g.UserID,
		Level:                           g.Level,
		ExperiencePoints:                g.ExperiencePoints,
		TotalExperiencePointsEverEarned: g.TotalExperiencePointsEverEarned,
		NextLevelXPThreshold:            g.NextLevelXPThreshold,
		LevelsGained:                    gained,
	}
}

// AwardPoints adds XP to a user and applies any resulting level-ups atomically.
// Non-positive points are ignored and return a nil state.
func (s *Service) AwardPoints(ctx context.Context, userID string, points int64) (*LevelState, error) {
	return s.AwardPointsFrom(ctx, userID, points, SourceDirect)
}

// AwardPointsFrom is AwardPoints with the XP source recorded in metrics.
func (s *Service) AwardPointsFrom(ctx context.Context, userID string, points int64, source string) (*LevelState, error) {
	if points <= 0 {
		return nil, nil
	}

	var state *LevelState
	var pending []*models.Notification
	err := s.db.Transaction(ctx, func(tx *repository.DB) error {
		var err error
		state, pending, err = s.awardTx(ctx, tx, userID, points)
		return err
	})
	if err != nil {
		s.log.Error().Err(err).Str("user_id", userID).Int64("points", points).Msg("Failed to award points")
		return nil, err
	}

	metrics.RecordXPAwarded(source, points)
	metrics.RecordLevelUps(state.LevelsGained)
	s.afterCommit(ctx, userID, pending)

	s.log.Debug().
		Str("user_id", userID).
		Int64("points", points).
		Str("source", source).
		Int("level", state.Level).
		Int("levels_gained", state.LevelsGained).
		Msg("Points awarded")
	return state, nil
}

// awardTx increments XP and reconciles levels within tx. It returns the
// notifications written so they can be announced after commit.
func (s *Service) awardTx(ctx context.Context, tx *repository.DB, userID string, points int64) (*LevelState, []*models.Notification, error) {
	repo := s.gamification.WithTx(tx)
	g, err := repo.EnsureForUpdate(ctx, userID, s.curve.CostFor(1))
	if err != nil {
		return nil, nil, err
	}

	g.ExperiencePoints += points
	g.TotalExperiencePointsEverEarned += points
	gained, _ := reconcileLevel(g, s.curve, s.now())

	if err := repo.Save(ctx, g); err != nil {
		return nil, nil, err
	}

	var pending []*models.Notification
	if gained > 0 {
		n := &models.Notification{
			UserID:  userID,
			Type:    models.NotificationLevelUp,
			Title:   fmt.Sprintf("Level %d reached", g.Level),
			Message: fmt.Sprintf("You climbed %d level(s) and are now level %d.", gained, g.Level),
			Payload: map[string]interface{}{"level": g.Level, "levelsGained": gained},
		}
		if err := s.notifications.WithTx(tx).Create(ctx, n); err != nil {
			return nil, nil, err
		}
		pending = append(pending, n)
	}
	return levelStateOf(g, gained), pending, nil
}

// Normalize repairs a user's level state by converting XP overflow into levels.
// A user without a gamification row is reported as not found.
func (s *Service) Normalize(ctx context.Context, userID string) (*LevelState, error) {
	state, _, err := s.normalize(ctx, userID)
	return state, err
}

func (s *Service) normalize(ctx context.Context, userID string) (*LevelState, bool, error) {
	var state *LevelState
	var repaired bool
	err := s.db.Transaction(ctx, func(tx *repository.DB) error {
		repo := s.gamification.WithTx(tx)
		g, err := repo.GetForUpdate(ctx, userID)
		if err != nil {
			return err
		}

		gained, changed := reconcileLevel(g, s.curve, s.now())
		state = levelStateOf(g, gained)
		if !changed {
			return nil
		}
		repaired = true
		return repo.Save(ctx, g)
	})
	if err != nil {
		return nil, false, err
	}

	if repaired {
		metrics.RecordNormalizationRepair()
		metrics.RecordLevelUps(state.LevelsGained)
		s.InvalidateSummary(ctx, userID)
		s.log.Info().
			Str("user_id", userID).
			Int("level", state.Level).
			Int("levels_gained", state.LevelsGained).
			Msg("Normalized gamification state")
	}
	return state, repaired, nil
}

// NormalizeAll repairs every row that violates the level invariants and returns
// the number of users repaired.
func (s *Service) NormalizeAll(ctx context.Context) (int, error) {
	const batchSize = 100

	start := time.Now()
	attempted := make(map[string]bool)
	repaired := 0
	for {
		ids, err := s.gamification.ListUserIDsNeedingNormalization(ctx, batchSize)
		if err != nil {
			return repaired, err
		}

		progressed := false
		for _, id := range ids {
			if attempted[id] {
				continue
			}
			attempted[id] = true
			progressed = true

			_, changed, err := s.normalize(ctx, id)
			if err != nil {
				s.log.Warn().Err(err).Str("user_id", id).Msg("Failed to normalize user")
				continue
			}
			if changed {
				repaired++
			}
		}

		if !progressed || len(ids) < batchSize {
			break
		}
		if err := ctx.Err(); err != nil {
			return repaired, err
		}
	}

	s.log.Info().
		Int("repaired", repaired).
		Dur("duration", time.Since(start)).
		Msg("Normalization sweep completed")
	return repaired, nil
}

// Leaderboard returns the top users by level and lifetime XP.
func (s *Service) Leaderboard(ctx context.Context, limit int) ([]LevelState, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	rows, err := s.gamification.TopByLevel(ctx, limit)
	if err != nil {
		return nil, err
	}
	board := make([]LevelState, 0, len(rows))
	for i := range rows {
		board = append(board, *levelStateOf(&rows[i], 0))
	}
	return board, nil
}

// afterCommit invalidates the cached summary and announces notifications.
func (s *Service) afterCommit(ctx context.Context, userID string, pending []*models.Notification) {
	s.InvalidateSummary(ctx, userID)
	for _, n := range pending {
		metrics.RecordNotificationSent("in_app", n.Type)
		if s.announcer != nil {
			s.announcer.Announce(ctx, n)
		}
	}
}
