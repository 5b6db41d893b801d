package listeners

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/novelmaze/novelmaze/internal/config"
	"github.com/novelmaze/novelmaze/internal/events"
	"github.com/novelmaze/novelmaze/internal/repository"
	"github.com/novelmaze/novelmaze/internal/service/gamification"
	"github.com/novelmaze/novelmaze/pkg/logger"
	"github.com/novelmaze/novelmaze/test/mocks"
	"github.com/novelmaze/novelmaze/test/testdb"
)

type award struct {
	userID string
	points int64
	source string
}

type fakeGamification struct {
	mu      sync.Mutex
	awards  []award
	tracked []string
	failOn  string
}

func (f *fakeGamification) AwardPointsFrom(_ context.Context, userID string, points int64, source string) (*gamification.LevelState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.awards = append(f.awards, award{userID: userID, points: points, source: source})
	return &gamification.LevelState{UserID: userID}, nil
}

func (f *fakeGamification) TrackAchievementProgress(_ context.Context, _, tierKey string, _ int64) (*gamification.TrackResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tracked = append(f.tracked, tierKey)
	if tierKey == f.failOn {
		return &gamification.TrackResult{}, errors.New("tracking failed")
	}
	return &gamification.TrackResult{}, nil
}

var testRewards = config.RewardsConfig{StoryCompletedXP: 50, DailyLoginXP: 5, Timezone: "UTC"}

func newListeners(t *testing.T, game Gamification) (*Listeners, *events.Bus, *mocks.MockCache) {
	t.Helper()

	c := mocks.NewMockCache()
	l, err := New(game, c, testRewards, logger.Nop())
	require.NoError(t, err)
	bus := events.NewBus(logger.Nop())
	l.Register(bus)
	return l, bus, c
}

func TestRegister_IsIdempotent(t *testing.T) {
	l, bus, _ := newListeners(t, &fakeGamification{})
	l.Register(bus)

	assert.Equal(t, 2, bus.HandlerCount(events.KindUserCompletedStory))
	assert.Equal(t, 1, bus.HandlerCount(events.KindUserLoggedIn))
}

func TestNew_RejectsUnknownTimezone(t *testing.T) {
	_, err := New(&fakeGamification{}, nil, config.RewardsConfig{Timezone: "Mars/Olympus"}, logger.Nop())
	assert.Error(t, err)
}

func TestStoryCompleted_AwardsXPAndTracksAchievements(t *testing.T) {
	game := &fakeGamification{}
	_, bus, _ := newListeners(t, game)

	bus.EmitUserCompletedStory(context.Background(), "user-1", "story-1")
	bus.Wait()

	require.Len(t, game.awards, 1)
	assert.Equal(t, award{userID: "user-1", points: 50, source: gamification.SourceStoryCompleted}, game.awards[0])
	assert.Equal(t, []string{gamification.TrackFirstReader, gamification.TrackStoryCollector}, game.tracked)
}

func TestStoryCompleted_TrackingFailureDoesNotStopOtherTracks(t *testing.T) {
	game := &fakeGamification{failOn: gamification.TrackFirstReader}
	l, _, _ := newListeners(t, game)

	err := l.trackStoryAchievements(context.Background(), events.Event{UserID: "user-1"})
	assert.Error(t, err)
	assert.Equal(t, []string{gamification.TrackFirstReader, gamification.TrackStoryCollector}, game.tracked)
}

func TestDailyLogin_RewardedOncePerDay(t *testing.T) {
	game := &fakeGamification{}
	l, _, c := newListeners(t, game)
	ctx := context.Background()

	morning := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)
	evening := morning.Add(12 * time.Hour)
	nextDay := morning.Add(24 * time.Hour)

	require.NoError(t, l.rewardDailyLogin(ctx, events.Event{UserID: "user-1", OccurredAt: morning}))
	require.NoError(t, l.rewardDailyLogin(ctx, events.Event{UserID: "user-1", OccurredAt: evening}))
	require.NoError(t, l.rewardDailyLogin(ctx, events.Event{UserID: "user-1", OccurredAt: nextDay}))

	require.Len(t, game.awards, 2)
	for _, a := range game.awards {
		assert.Equal(t, int64(5), a.points)
		assert.Equal(t, gamification.SourceDailyLogin, a.source)
	}
	assert.Equal(t, []string{gamification.TrackDailyVisitor, gamification.TrackDailyVisitor}, game.tracked)
	assert.True(t, c.Has("login:user-1:2026-03-14"))
	assert.Equal(t, dailyLoginTTL, c.TTL("login:user-1:2026-03-14"))
}

func TestDailyLogin_CacheFailureSkipsReward(t *testing.T) {
	game := &fakeGamification{}
	l, _, c := newListeners(t, game)
	c.Err = errors.New("redis down")

	err := l.rewardDailyLogin(context.Background(), events.Event{UserID: "user-1", OccurredAt: time.Now()})
	assert.Error(t, err)
	assert.Empty(t, game.awards)
}

func TestDailyLoginKey_UsesRewardsTimezone(t *testing.T) {
	l, err := New(&fakeGamification{}, nil, config.RewardsConfig{Timezone: "Asia/Tokyo"}, logger.Nop())
	require.NoError(t, err)

	// 20:00 UTC is already the next day in Tokyo.
	at := time.Date(2026, 3, 14, 20, 0, 0, 0, time.UTC)
	assert.Equal(t, "login:user-1:2026-03-15", l.dailyLoginKey("user-1", at))
}

func TestStoryCompleted_EndToEnd(t *testing.T) {
	db := testdb.New(t)
	game, err := gamification.NewService(db, nil, nil, gamification.Options{}, logger.Nop())
	require.NoError(t, err)
	catalog, err := gamification.LoadCatalog("")
	require.NoError(t, err)
	_, err = game.SyncCatalog(context.Background(), catalog)
	require.NoError(t, err)

	_, bus, _ := newListeners(t, game)
	bus.EmitUserCompletedStory(context.Background(), "user-1", "story-1")
	bus.Wait()

	state, err := repository.NewGamificationRepository(db).Get(context.Background(), "user-1")
	require.NoError(t, err)
	// 50 XP for the story plus 10 XP for FIRST_READER.
	assert.Equal(t, int64(60), state.TotalExperiencePointsEverEarned)

	items, err := repository.NewAchievementRepository(db).ListEarnedItems(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, items, 2)
}
