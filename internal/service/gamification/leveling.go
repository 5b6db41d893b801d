package gamification

import (
	"time"

	"github.com/novelmaze/novelmaze/internal/models"
)

// LevelCurve returns the XP needed to advance from a level to the next.
type LevelCurve interface {
	CostFor(level int) int64
}

// FlatCurve charges the same XP for every level.
type FlatCurve struct {
	XPPerLevel int64
}

// CostFor implements LevelCurve.
func (c FlatCurve) CostFor(int) int64 {
	if c.XPPerLevel <= 0 {
		return 100
	}
	return c.XPPerLevel
}

// reconcileLevel converts XP overflow into levels and repairs out-of-range values.
// It returns the number of levels gained and whether any field changed.
func reconcileLevel(g *models.UserGamification, curve LevelCurve, now time.Time) (int, bool) {
	changed := false
	if g.Level < 1 {
		g.Level = 1
		changed = true
	}
	if g.ExperiencePoints < 0 {
		g.ExperiencePoints = 0
		changed = true
	}

	gained := 0
	cost := curve.CostFor(g.Level)
	for g.ExperiencePoints >= cost {
		g.ExperiencePoints -= cost
		g.Level++
		gained++
		cost = curve.CostFor(g.Level)
	}

	if g.NextLevelXPThreshold != cost {
		g.NextLevelXPThreshold = cost
		changed = true
	}
	if gained > 0 {
		g.LastLevelUpAt = &now
		changed = true
	}
	return gained, changed
}
