package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Purchase status constants.
const (
	PurchaseStatusPending   = "pending"
	PurchaseStatusCompleted = "completed"
	PurchaseStatusFailed    = "failed"
	PurchaseStatusRefunded  = "refunded"
)

// Purchase item types.
const (
	PurchaseItemEpisode = "episode"
	PurchaseItemAsset   = "asset"
)

// Purchase is the record of a coin transaction buying one or more items.
type Purchase struct {
	ID          string         `gorm:"primaryKey;size:36" json:"id"`
	ReadableID  string         `gorm:"uniqueIndex;not null;size:64" json:"purchase_readable_id"`
	UserID      string         `gorm:"not null;index;size:36" json:"user_id"`
	Status      string         `gorm:"size:20;not null;index" json:"status"`
	Currency    string         `gorm:"size:10;not null" json:"currency"`
	TotalAmount int64          `gorm:"not null" json:"total_amount"`
	Items       []PurchaseItem `gorm:"foreignKey:PurchaseID" json:"items"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// TableName specifies the table name for Purchase model.
func (Purchase) TableName() string {
	return "purchases"
}

// BeforeCreate assigns a UUID when none was provided.
func (p *Purchase) BeforeCreate(_ *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// PurchaseItem is one line of a purchase.
type PurchaseItem struct {
	ID                uint   `gorm:"primaryKey" json:"id"`
	PurchaseID        string `gorm:"not null;index;size:36" json:"purchase_id"`
	ItemType          string `gorm:"size:20;not null" json:"item_type"`
	ItemID            string `gorm:"not null;index;size:36" json:"item_id"`
	NovelID           string `gorm:"size:36;index" json:"novel_id"`
	Title             string `gorm:"size:255" json:"title"`
	Quantity          int    `gorm:"not null;default:1" json:"quantity"`
	UnitPrice         int64  `gorm:"not null" json:"unit_price"`
	OriginalUnitPrice int64  `gorm:"not null" json:"original_unit_price"`
}

// TableName specifies the table name for PurchaseItem model.
func (PurchaseItem) TableName() string {
	return "purchase_items"
}

// Library statuses.
const (
	LibraryStatusOwned     = "OWNED"
	LibraryStatusReading   = "READING"
	LibraryStatusCompleted = "COMPLETED"
	LibraryStatusWishlist  = "WISHLISTED"
)

// UserLibraryItem records a user's ownership and reading state for one novel.
type UserLibraryItem struct {
	ID                  uint                        `gorm:"primaryKey" json:"id"`
	UserID              string                      `gorm:"not null;size:36;uniqueIndex:idx_library_user_novel" json:"user_id"`
	NovelID             string                      `gorm:"not null;size:36;uniqueIndex:idx_library_user_novel" json:"novel_id"`
	Statuses            datatypes.JSONSlice[string] `json:"statuses"`
	PurchasedEpisodeIDs datatypes.JSONSlice[string] `gorm:"column:purchased_episode_ids" json:"purchased_episode_ids"`
	LastPurchasedAt     *time.Time                  `json:"last_purchased_at,omitempty"`
	CreatedAt           time.Time                   `json:"created_at"`
	UpdatedAt           time.Time                   `json:"updated_at"`
}

// TableName specifies the table name for UserLibraryItem model.
func (UserLibraryItem) TableName() string {
	return "user_library_items"
}

// HasPurchased reports whether the episode is among the purchased episodes.
func (l *UserLibraryItem) HasPurchased(episodeID string) bool {
	for _, id := range l.PurchasedEpisodeIDs {
		if id == episodeID {
			return true
		}
	}
	return false
}

// HasStatus reports whether the library item carries the status.
func (l *UserLibraryItem) HasStatus(status string) bool {
	for _, s := range l.Statuses {
		if s == status {
			return true
		}
	}
	return false
}

// AddPurchasedEpisode appends the episode and marks the novel owned. It returns
// false when the episode was already recorded.
func (l *UserLibraryItem) AddPurchasedEpisode(episodeID string) bool {
	if !l.HasStatus(LibraryStatusOwned) {
		l.Statuses = append(l.Statuses, LibraryStatusOwned)
	}
	if l.HasPurchased(episodeID) {
		return false
	}
	l.PurchasedEpisodeIDs = append(l.PurchasedEpisodeIDs, episodeID)
	return true
}
