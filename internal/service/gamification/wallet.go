package gamification

import (
	"context"
	"fmt"

	"github.com/novelmaze/novelmaze/internal/metrics"
	"github.com/novelmaze/novelmaze/internal/models"
	"github.com/novelmaze/novelmaze/internal/repository"
)

// CreditCoins adds coins to a user's wallet and records a ledger entry.
// txType is one of the models.CoinTx* constants. It returns the new balance.
func (s *Service) CreditCoins(ctx context.Context, userID string, amount int64, txType, reason string) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	if txType == "" {
		txType = models.CoinTxGrant
	}

	var balance int64
	err := s.db.Transaction(ctx, func(tx *repository.DB) error {
		repo := s.gamification.WithTx(tx)
		g, err := repo.EnsureForUpdate(ctx, userID, s.curve.CostFor(1))
		if err != nil {
			return err
		}

		now := s.now()
		if err := repo.CreditCoins(ctx, userID, amount, now); err != nil {
			return err
		}
		balance = g.Wallet.CoinBalance + amount

		return repo.CreateCoinTransaction(ctx, &models.CoinTransaction{
			UserID:       userID,
			Amount:       amount,
			BalanceAfter: balance,
			Type:         txType,
			Description:  reason,
			CreatedAt:    now,
		})
	})
	if err != nil {
		return 0, fmt.Errorf("failed to credit coins: %w", err)
	}

	metrics.RecordCoinsGranted(txType, amount)
	s.InvalidateSummary(ctx, userID)
	s.log.Info().
		Str("user_id", userID).
		Int64("amount", amount).
		Int64("balance", balance).
		Str("type", txType).
		Msg("Coins credited")
	return balance, nil
}

// CoinBalance returns the user's wallet balance.
func (s *Service) CoinBalance(ctx context.Context, userID string) (int64, error) {
	return s.gamification.CoinBalance(ctx, userID)
}

// CoinTransactions returns the newest ledger entries of a user.
func (s *Service) CoinTransactions(ctx context.Context, userID string, limit int) ([]models.CoinTransaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.gamification.ListCoinTransactions(ctx, userID, limit)
}
