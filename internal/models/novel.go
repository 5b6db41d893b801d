package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Publication status constants shared by novels and episodes.
const (
	StatusDraft     = "draft"
	StatusScheduled = "scheduled"
	StatusPublished = "published"
	StatusArchived  = "archived"
)

// Episode access types.
const (
	AccessTypeFree       = "free"
	AccessTypePaidUnlock = "paid_unlock"
)

// Novel is an interactive visual novel owned by an author.
type Novel struct {
	ID       string     `gorm:"primaryKey;size:36" json:"id"`
	Title    string     `gorm:"not null;size:255" json:"title"`
	Slug     string     `gorm:"uniqueIndex;not null;size:255" json:"slug"`
	Synopsis string     `gorm:"type:text" json:"synopsis"`
	AuthorID string     `gorm:"not null;index;size:36" json:"author_id"`
	Author   *User      `gorm:"foreignKey:AuthorID" json:"author,omitempty"`
	Status   string     `gorm:"size:20;not null;default:'draft';index" json:"status"`
	Stats    NovelStats `gorm:"embedded;embeddedPrefix:stats_" json:"stats"`

	PublishedAt *time.Time `json:"published_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	Episodes []Episode `gorm:"foreignKey:NovelID" json:"episodes,omitempty"`
}

// NovelStats holds denormalized sales counters.
type NovelStats struct {
	PurchaseCount int64 `gorm:"default:0" json:"purchase_count"`
	RevenueCoins  int64 `gorm:"default:0" json:"revenue_coins"`
}

// TableName specifies the table name for Novel model.
func (Novel) TableName() string {
	return "novels"
}

// BeforeCreate assigns a UUID when none was provided.
func (n *Novel) BeforeCreate(_ *gorm.DB) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	return nil
}

// Episode is one chapter of a novel; paid episodes must be unlocked with coins.
type Episode struct {
	ID           string `gorm:"primaryKey;size:36" json:"id"`
	NovelID      string `gorm:"not null;index;size:36" json:"novel_id"`
	Novel        *Novel `gorm:"foreignKey:NovelID" json:"novel,omitempty"`
	Title        string `gorm:"not null;size:255" json:"title"`
	EpisodeOrder int    `gorm:"not null;default:1" json:"episode_order"`
	Status       string `gorm:"size:20;not null;default:'draft';index" json:"status"`
	AccessType   string `gorm:"size:20;not null;default:'free'" json:"access_type"`

	// Prices are in coins.
	PriceCoins      int64      `gorm:"default:0" json:"price_coins"`
	PromoPriceCoins *int64     `json:"promo_price_coins,omitempty"`
	PromoStartsAt   *time.Time `json:"promo_starts_at,omitempty"`
	PromoEndsAt     *time.Time `json:"promo_ends_at,omitempty"`
	PurchaseCount   int64      `gorm:"default:0" json:"purchase_count"`
	ReadMinutes     int        `json:"read_minutes"`

	PublishedAt *time.Time `json:"published_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TableName specifies the table name for Episode model.
func (Episode) TableName() string {
	return "episodes"
}

// BeforeCreate assigns a UUID when none was provided.
func (e *Episode) BeforeCreate(_ *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}

// IsFree reports whether the episode can be read without unlocking.
func (e *Episode) IsFree() bool {
	return e.AccessType == AccessTypeFree
}

// IsPublished reports whether the episode is visible to readers.
func (e *Episode) IsPublished() bool {
	return e.Status == StatusPublished
}

// PromotionActive reports whether a promotional price applies at the given time.
// An open-ended window (nil start or end) is unbounded on that side.
func (e *Episode) PromotionActive(now time.Time) bool {
	if e.PromoPriceCoins == nil || *e.PromoPriceCoins < 0 {
		return false
	}
	if e.PromoStartsAt != nil && now.Before(*e.PromoStartsAt) {
		return false
	}
	if e.PromoEndsAt != nil && !now.Before(*e.PromoEndsAt) {
		return false
	}
	return true
}

// EffectivePrice returns the coin price after any active promotion.
func (e *Episode) EffectivePrice(now time.Time) int64 {
	if e.IsFree() {
		return 0
	}
	if e.PromotionActive(now) && *e.PromoPriceCoins < e.PriceCoins {
		return *e.PromoPriceCoins
	}
	return e.PriceCoins
}
