package gamification

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/novelmaze/novelmaze/internal/models"
)

func TestGetGamificationSummary_CreatesRowAndCaches(t *testing.T) {
	svc, _, c := newTestService(t)
	ctx := context.Background()

	summary, err := svc.GetGamificationSummary(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetGamificationSummary() failed: %v", err)
	}
	if summary.Level != 1 || summary.ExperiencePoints != 0 || summary.NextLevelXPThreshold != 100 {
		t.Errorf("unexpected fresh summary: %+v", summary)
	}
	if len(summary.Achievements) != 0 {
		t.Errorf("expected no achievements, got %d", len(summary.Achievements))
	}
	if !c.Has(summaryKey("user-1")) {
		t.Fatal("expected summary to be cached")
	}
	if c.TTL(summaryKey("user-1")) != time.Minute {
		t.Errorf("expected cache TTL of one minute, got %v", c.TTL(summaryKey("user-1")))
	}
}

func TestGetGamificationSummary_ServesFromCache(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.GetGamificationSummary(ctx, "user-1"); err != nil {
		t.Fatalf("GetGamificationSummary() failed: %v", err)
	}

	// Bypass the service so the cached copy goes stale.
	if err := db.Model(&models.UserGamification{}).Where("user_id = ?", "user-1").
		Update("experience_points", 42).Error; err != nil {
		t.Fatalf("failed to update row: %v", err)
	}

	summary, err := svc.GetGamificationSummary(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetGamificationSummary() failed: %v", err)
	}
	if summary.ExperiencePoints != 0 {
		t.Errorf("expected cached XP 0, got %d", summary.ExperiencePoints)
	}
}

func TestGetGamificationSummary_InvalidatedByAward(t *testing.T) {
	svc, _, c := newTestService(t)
	ctx := context.Background()

	if _, err := svc.GetGamificationSummary(ctx, "user-1"); err != nil {
		t.Fatalf("GetGamificationSummary() failed: %v", err)
	}
	if _, err := svc.AwardPoints(ctx, "user-1", 30); err != nil {
		t.Fatalf("AwardPoints() failed: %v", err)
	}
	if c.Has(summaryKey("user-1")) {
		t.Fatal("expected cached summary to be invalidated")
	}

	summary, err := svc.GetGamificationSummary(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetGamificationSummary() failed: %v", err)
	}
	if summary.ExperiencePoints != 30 {
		t.Errorf("expected 30 XP, got %d", summary.ExperiencePoints)
	}
}

func TestGetGamificationSummary_IgnoresEntryWrittenAfterInvalidation(t *testing.T) {
	svc, _, c := newTestService(t)
	ctx := context.Background()

	if _, err := svc.GetGamificationSummary(ctx, "user-1"); err != nil {
		t.Fatalf("GetGamificationSummary() failed: %v", err)
	}
	stale, err := c.Get(ctx, summaryKey("user-1"))
	if err != nil || stale == "" {
		t.Fatalf("expected a cached summary, got %q (%v)", stale, err)
	}

	if _, err := svc.AwardPoints(ctx, "user-1", 30); err != nil {
		t.Fatalf("AwardPoints() failed: %v", err)
	}
	// A reader that loaded the row before the award stores its result late.
	if err := c.Set(ctx, summaryKey("user-1"), stale, time.Minute); err != nil {
		t.Fatalf("failed to write stale entry: %v", err)
	}

	summary, err := svc.GetGamificationSummary(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetGamificationSummary() failed: %v", err)
	}
	if summary.ExperiencePoints != 30 {
		t.Errorf("expected fresh 30 XP, got %d", summary.ExperiencePoints)
	}
	if c.TTL(summaryGenerationKey("user-1")) != 2*time.Minute {
		t.Errorf("expected generation TTL of two minutes, got %v", c.TTL(summaryGenerationKey("user-1")))
	}
}

func TestGetGamificationSummary_NormalizesOverflow(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()

	seedGamification(t, db, models.UserGamification{
		UserID:                          "user-1",
		Level:                           1,
		ExperiencePoints:                230,
		TotalExperiencePointsEverEarned: 230,
		NextLevelXPThreshold:            100,
	})

	summary, err := svc.GetGamificationSummary(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetGamificationSummary() failed: %v", err)
	}
	if summary.Level != 3 || summary.ExperiencePoints != 30 {
		t.Errorf("expected level 3 with 30 XP, got level %d with %d XP", summary.Level, summary.ExperiencePoints)
	}
	if summary.TotalExperiencePointsEverEarned != 230 {
		t.Errorf("lifetime XP must not change, got %d", summary.TotalExperiencePointsEverEarned)
	}
}

func TestGetGamificationSummary_IncludesAchievements(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.TrackAchievementProgress(ctx, "user-1", TrackFirstReader, 1); err != nil {
		t.Fatalf("TrackAchievementProgress() failed: %v", err)
	}

	summary, err := svc.GetGamificationSummary(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetGamificationSummary() failed: %v", err)
	}
	if len(summary.Achievements) != 1 {
		t.Fatalf("expected one achievement, got %d", len(summary.Achievements))
	}
	a := summary.Achievements[0]
	if a.ItemCode != TrackFirstReader || a.Title != "First Reader" || !a.Completed || a.MaxTier != 1 {
		t.Errorf("unexpected achievement summary: %+v", a)
	}
	if summary.ExperiencePoints != 10 {
		t.Errorf("expected 10 XP from the achievement, got %d", summary.ExperiencePoints)
	}
}

func TestGetGamificationSummary_CacheFailureFallsBackToDatabase(t *testing.T) {
	svc, _, c := newTestService(t)
	c.Err = errors.New("redis down")

	summary, err := svc.GetGamificationSummary(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("GetGamificationSummary() failed: %v", err)
	}
	if summary.Level != 1 {
		t.Errorf("expected level 1, got %d", summary.Level)
	}
}
