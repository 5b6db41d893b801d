package models

import (
	"time"
)

// UserGamification holds a user's XP, level and coin wallet. One row per user.
type UserGamification struct {
	ID                              uint       `gorm:"primaryKey" json:"id"`
	UserID                          string     `gorm:"uniqueIndex;not null;size:36" json:"user_id"`
	Level                           int        `gorm:"not null;default:1" json:"level"`
	ExperiencePoints                int64      `gorm:"not null;default:0" json:"experience_points"`
	TotalExperiencePointsEverEarned int64      `gorm:"column:total_xp_earned;not null;default:0" json:"total_experience_points_ever_earned"`
	NextLevelXPThreshold            int64      `gorm:"column:next_level_xp_threshold;not null;default:100" json:"next_level_xp_threshold"`
	Wallet                          Wallet     `gorm:"embedded;embeddedPrefix:wallet_" json:"wallet"`
	LastLevelUpAt                   *time.Time `json:"last_level_up_at,omitempty"`
	CreatedAt                       time.Time  `json:"created_at"`
	UpdatedAt                       time.Time  `json:"updated_at"`
}

// TableName specifies the table name for UserGamification model.
func (UserGamification) TableName() string {
	return "user_gamifications"
}

// Wallet is the embedded coin wallet of a user.
type Wallet struct {
	CoinBalance           int64      `gorm:"not null;default:0" json:"coin_balance"`
	LastCoinTransactionAt *time.Time `json:"last_coin_transaction_at,omitempty"`
}

// Coin transaction types.
const (
	CoinTxPurchase = "purchase"
	CoinTxGrant    = "grant"
	CoinTxReward   = "reward"
	CoinTxRefund   = "refund"
)

// CoinTransaction is an append-only ledger entry for a wallet mutation.
type CoinTransaction struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UserID       string    `gorm:"not null;index;size:36" json:"user_id"`
	Amount       int64     `gorm:"not null" json:"amount"` // signed: negative for debits
	BalanceAfter int64     `gorm:"not null" json:"balance_after"`
	Type         string    `gorm:"size:20;not null" json:"type"`
	ReferenceID  string    `gorm:"size:64;index" json:"reference_id"`
	Description  string    `gorm:"type:text" json:"description"`
	CreatedAt    time.Time `json:"created_at"`
}

// TableName specifies the table name for CoinTransaction model.
func (CoinTransaction) TableName() string {
	return "coin_transactions"
}
