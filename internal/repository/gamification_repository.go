package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/novelmaze/novelmaze/internal/models"
)

// GamificationRepository handles XP, level and wallet persistence.
type GamificationRepository struct {
	db *DB
}

// NewGamificationRepository creates a new gamification repository.
func NewGamificationRepository(db *DB) *GamificationRepository {
	return &GamificationRepository{db: db}
}

// WithTx returns a repository bound to the given transaction.
func (r *GamificationRepository) WithTx(tx *DB) *GamificationRepository {
	return &GamificationRepository{db: tx}
}

// Get retrieves the gamification row of a user.
func (r *GamificationRepository) Get(ctx context.Context, userID string) (*models.UserGamification, error) {
	var g models.UserGamification
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&g).Error; err != nil {
		return nil, fmt.Errorf("failed to get gamification for user %s: %w", userID, err)
	}
	return &g, nil
}

// GetForUpdate retrieves the gamification row of a user locked for the rest of
// the surrounding transaction. It never creates the row.
func (r *GamificationRepository) GetForUpdate(ctx context.Context, userID string) (*models.UserGamification, error) {
	var g models.UserGamification
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&g).Error
	if err != nil {
		return nil, fmt.Errorf("failed to lock gamification for user %s: %w", userID, err)
	}
	return &g, nil
}

// EnsureForUpdate creates the user's row at level 1 when missing and returns it
// locked for the rest of the surrounding transaction.
func (r *GamificationRepository) EnsureForUpdate(ctx context.Context, userID string, threshold int64) (*models.UserGamification, error) {
	row := models.UserGamification{
		UserID:               userID,
		Level:                1,
		NextLevelXPThreshold: threshold,
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(&row).Error
	if err != nil {
		return nil, fmt.Errorf("failed to ensure gamification for user %s: %w", userID, err)
	}

	var g models.UserGamification
	err = r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&g).Error
	if err != nil {
		return nil, fmt.Errorf("failed to lock gamification for user %s: %w", userID, err)
	}
	return &g, nil
}

// Save persists every field of the row.
func (r *GamificationRepository) Save(ctx context.Context, g *models.UserGamification) error {
	if err := r.db.WithContext(ctx).Save(g).Error; err != nil {
		return fmt.Errorf("failed to save gamification for user %s: %w", g.UserID, err)
	}
	return nil
}

// DebitCoins subtracts amount from the wallet only if the balance covers it.
// It returns false without error when funds are insufficient or the row is missing.
func (r *GamificationRepository) DebitCoins(ctx context.Context, userID string, amount int64, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.UserGamification{}).
		Where("user_id = ? AND wallet_coin_balance >= ?", userID, amount).
		UpdateColumns(map[string]interface{}{
			"wallet_coin_balance":             gorm.Expr("wallet_coin_balance - ?", amount),
			"wallet_last_coin_transaction_at": at,
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to debit %d coins from user %s: %w", amount, userID, result.Error)
	}
	return result.RowsAffected == 1, nil
}

// CreditCoins adds amount to an existing wallet.
func (r *GamificationRepository) CreditCoins(ctx context.Context, userID string, amount int64, at time.Time) error {
	result := r.db.WithContext(ctx).Model(&models.UserGamification{}).
		Where("user_id = ?", userID).
		UpdateColumns(map[string]interface{}{
			"wallet_coin_balance":             gorm.Expr("wallet_coin_balance + ?", amount),
			"wallet_last_coin_transaction_at": at,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to credit %d coins to user %s: %w", amount, userID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("failed to credit coins to user %s: %w", userID, gorm.ErrRecordNotFound)
	}
	return nil
}

// CoinBalance returns the wallet balance, zero when the user has no row yet.
func (r *GamificationRepository) CoinBalance(ctx context.Context, userID string) (int64, error) {
	var balances []int64
	err := r.db.WithContext(ctx).Model(&models.UserGamification{}).
		Where("user_id = ?", userID).
		Limit(1).
		Pluck("wallet_coin_balance", &balances).Error
	if err != nil {
		return 0, fmt.Errorf("failed to read coin balance for user %s: %w", userID, err)
	}
	if len(balances) == 0 {
		return 0, nil
	}
	return balances[0], nil
}

// CreateCoinTransaction appends a ledger entry.
func (r *GamificationRepository) CreateCoinTransaction(ctx context.Context, tx *models.CoinTransaction) error {
	if err := r.db.WithContext(ctx).Create(tx).Error; err != nil {
		return fmt.Errorf("failed to record coin transaction: %w", err)
	}
	return nil
}

// ListCoinTransactions returns the newest ledger entries of a user.
func (r *GamificationRepository) ListCoinTransactions(ctx context.Context, userID string, limit int) ([]models.CoinTransaction, error) {
	var txs []models.CoinTransaction
	query := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC, id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&txs).Error; err != nil {
		return nil, fmt.Errorf("failed to list coin transactions for user %s: %w", userID, err)
	}
	return txs, nil
}

// ListUserIDsNeedingNormalization returns users whose XP or level violate the
// level invariants.
func (r *GamificationRepository) ListUserIDsNeedingNormalization(ctx context.Context, limit int) ([]string, error) {
	var ids []string
	query := r.db.WithContext(ctx).Model(&models.UserGamification{}).
		Where("experience_points >= next_level_xp_threshold OR experience_points < 0 OR level < 1 OR next_level_xp_threshold <= 0").
		Order("user_id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Pluck("user_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to list users needing normalization: %w", err)
	}
	return ids, nil
}

// TopByLevel returns the highest ranked users by level then total XP.
func (r *GamificationRepository) TopByLevel(ctx context.Context, limit int) ([]models.UserGamification, error) {
	var rows []models.UserGamification
	err := r.db.WithContext(ctx).
		Order("level DESC, total_xp_earned DESC, user_id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list top users: %w", err)
	}
	return rows, nil
}
