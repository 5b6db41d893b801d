package models

import (
	"time"

	"gorm.io/datatypes"
)

// Notification types.
const (
	NotificationAchievementUnlocked = "achievement_unlocked"
	NotificationLevelUp             = "level_up"
	NotificationPurchaseCompleted   = "purchase_completed"
)

// Notification is an in-app message shown to a user.
type Notification struct {
	ID        uint              `gorm:"primaryKey" json:"id"`
	UserID    string            `gorm:"not null;index;size:36" json:"user_id"`
	Type      string            `gorm:"size:50;not null" json:"type"`
	Title     string            `gorm:"size:255;not null" json:"title"`
	Message   string            `gorm:"type:text" json:"message"`
	Payload   datatypes.JSONMap `json:"payload,omitempty"`
	ReadAt    *time.Time        `gorm:"index" json:"read_at,omitempty"`
	CreatedAt time.Time         `gorm:"index" json:"created_at"`
}

// TableName specifies the table name for Notification model.
func (Notification) TableName() string {
	return "notifications"
}
