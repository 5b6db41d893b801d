package models

import (
	"time"
)

// Achievement is the catalog definition of one tier of an achievement track.
// Definitions are immutable reference data keyed by (TierKey, TierLevel).
type Achievement struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	TierKey      string    `gorm:"not null;size:100;uniqueIndex:idx_achievement_tier" json:"tier_key"`
	TierLevel    int       `gorm:"not null;uniqueIndex:idx_achievement_tier" json:"tier_level"`
	MaxTier      int       `gorm:"not null;default:1" json:"max_tier"`
	Title        string    `gorm:"not null;size:255" json:"title"`
	Description  string    `gorm:"type:text" json:"description"`
	Category     string    `gorm:"size:50" json:"category"`
	Icon         string    `gorm:"size:50" json:"icon"`
	Condition    string    `gorm:"column:unlock_condition;size:50" json:"unlock_condition"`
	TargetValue  int64     `gorm:"not null" json:"target_value"`
	PointsReward int64     `gorm:"not null;default:0" json:"points_reward"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName specifies the table name for Achievement model.
func (Achievement) TableName() string {
	return "achievements"
}

// IsFinalTier reports whether no tier follows this one.
func (a *Achievement) IsFinalTier() bool {
	return a.TierLevel >= a.MaxTier
}

// UserAchievement is the per-user container of earned items.
type UserAchievement struct {
	ID        uint         `gorm:"primaryKey" json:"id"`
	UserID    string       `gorm:"uniqueIndex;not null;size:36" json:"user_id"`
	Items     []EarnedItem `gorm:"foreignKey:UserAchievementID" json:"items,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// TableName specifies the table name for UserAchievement model.
func (UserAchievement) TableName() string {
	return "user_achievements"
}

// Earned item types.
const (
	ItemTypeAchievement = "achievement"
	ItemTypeBadge       = "badge"
)

// EarnedItem tracks a user's progress on one achievement track.
// CurrentTier is the tier being worked towards (or the final tier once Completed);
// ItemModelID references that tier's definition.
type EarnedItem struct {
	ID                uint         `gorm:"primaryKey" json:"id"`
	UserAchievementID uint         `gorm:"not null;uniqueIndex:idx_earned_item_code" json:"user_achievement_id"`
	ItemCode          string       `gorm:"not null;size:100;uniqueIndex:idx_earned_item_code" json:"item_code"`
	ItemType          string       `gorm:"size:20;not null;default:'achievement'" json:"item_type"`
	CurrentTier       int          `gorm:"not null;default:1" json:"current_tier"`
	UnlockedTier      int          `gorm:"not null;default:0" json:"unlocked_tier"`
	Progress          Progress     `gorm:"embedded;embeddedPrefix:progress_" json:"progress"`
	ItemModelID       uint         `gorm:"not null;index" json:"item_model_id"`
	ItemModel         *Achievement `gorm:"foreignKey:ItemModelID" json:"item_model,omitempty"`
	Completed         bool         `gorm:"not null;default:false" json:"completed"`
	FirstEarnedAt     *time.Time   `json:"first_earned_at,omitempty"`
	LastUnlockedAt    *time.Time   `json:"last_unlocked_at,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

// TableName specifies the table name for EarnedItem model.
func (EarnedItem) TableName() string {
	return "earned_items"
}

// Progress is the cumulative progress of an earned item towards its current target.
type Progress struct {
	Current int64 `gorm:"not null;default:0" json:"current"`
	Target  int64 `gorm:"not null;default:1" json:"target"`
}

// Reached reports whether the current target has been met.
func (p Progress) Reached() bool {
	return p.Current >= p.Target
}
