// Package listeners turns domain events into gamification rewards.
package listeners

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/novelmaze/novelmaze/internal/cache"
	"github.com/novelmaze/novelmaze/internal/config"
	"github.com/novelmaze/novelmaze/internal/events"
	"github.com/novelmaze/novelmaze/internal/service/gamification"
	"github.com/novelmaze/novelmaze/pkg/logger"
)

// Gamification is the subset of the gamification service the listeners call.
type Gamification interface {
	AwardPointsFrom(ctx context.Context, userID string, points int64, source string) (*gamification.LevelState, error)
	TrackAchievementProgress(ctx context.Context, userID, tierKey string, increment int64) (*gamification.TrackResult, error)
}

const dailyLoginTTL = 48 * time.Hour

// Listeners subscribes reward handlers to the event bus.
type Listeners struct {
	game     Gamification
	cache    cache.Cache
	rewards  config.RewardsConfig
	location *time.Location
	log      *logger.Logger
	now      func() time.Time
	once     sync.Once
}

// New creates the listeners. The cache may be nil, in which case daily login
// rewards are not deduplicated.
func New(game Gamification, c cache.Cache, rewards config.RewardsConfig, log *logger.Logger) (*Listeners, error) {
	location := time.UTC
	if rewards.Timezone != "" {
		loc, err := time.LoadLocation(rewards.Timezone)
		if err != nil {
			return nil, fmt.Errorf("invalid rewards timezone %q: %w", rewards.Timezone, err)
		}
		location = loc
	}
	return &Listeners{
		game:     game,
		cache:    c,
		rewards:  rewards,
		location: location,
		log:      log.Component("listeners"),
		now:      time.Now,
	}, nil
}

// Register subscribes the handlers to bus. Only the first call has an effect.
func (l *Listeners) Register(bus *events.Bus) {
	l.once.Do(func() {
		bus.Subscribe(events.KindUserCompletedStory, "story_completed_xp", l.awardStoryXP)
		bus.Subscribe(events.KindUserCompletedStory, "story_completed_achievements", l.trackStoryAchievements)
		bus.Subscribe(events.KindUserLoggedIn, "daily_login", l.rewardDailyLogin)
		l.log.Info().Msg("Gamification listeners registered")
	})
}

func (l *Listeners) awardStoryXP(ctx context.Context, evt events.Event) error {
	_, err := l.game.AwardPointsFrom(ctx, evt.UserID, l.rewards.StoryCompletedXP, gamification.SourceStoryCompleted)
	return err
}

func (l *Listeners) trackStoryAchievements(ctx context.Context, evt events.Event) error {
	var errs []error
	for _, track := range []string{gamification.TrackFirstReader, gamification.TrackStoryCollector} {
		result, err := l.game.TrackAchievementProgress(ctx, evt.UserID, track, 1)
		if err != nil {
			l.log.Warn().Err(err).Str("user_id", evt.UserID).Str("tier_key", track).Msg("Failed to track story achievement")
			errs = append(errs, fmt.Errorf("%s: %w", track, err))
			continue
		}
		if result.Unlocked {
			l.log.Info().
				Str("user_id", evt.UserID).
				Str("story_id", evt.StoryID).
				Str("tier_key", track).
				Int("tier", result.Tier).
				Msg("Story completion unlocked an achievement")
		}
	}
	return errors.Join(errs...)
}

// dailyLoginKey identifies one user's calendar day in the rewards timezone.
func (l *Listeners) dailyLoginKey(userID string, at time.Time) string {
	return fmt.Sprintf("login:%s:%s", userID, at.In(l.location).Format("2006-01-02"))
}

func (l *Listeners) rewardDailyLogin(ctx context.Context, evt events.Event) error {
	if l.cache != nil {
		first, err := l.cache.SetNX(ctx, l.dailyLoginKey(evt.UserID, evt.OccurredAt), l.now().Unix(), dailyLoginTTL)
		if err != nil {
			return fmt.Errorf("failed to record daily login: %w", err)
		}
		if !first {
			l.log.Debug().Str("user_id", evt.UserID).Msg("Daily login already rewarded")
			return nil
		}
	}

	var errs []error
	if _, err := l.game.AwardPointsFrom(ctx, evt.UserID, l.rewards.DailyLoginXP, gamification.SourceDailyLogin); err != nil {
		errs = append(errs, err)
	}
	if _, err := l.game.TrackAchievementProgress(ctx, evt.UserID, gamification.TrackDailyVisitor, 1); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
