// Package purchase sells episodes for wallet coins.
package purchase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/novelmaze/novelmaze/internal/cache"
	"github.com/novelmaze/novelmaze/internal/metrics"
	"github.com/novelmaze/novelmaze/internal/models"
	"github.com/novelmaze/novelmaze/internal/repository"
	"github.com/novelmaze/novelmaze/internal/service/gamification"
	"github.com/novelmaze/novelmaze/pkg/ids"
	"github.com/novelmaze/novelmaze/pkg/logger"
)

// Stage is a step of a purchase attempt.
type Stage string

// Purchase stages in execution order. Any failure moves the attempt to StageAborted.
const (
	StageValidating    Stage = "VALIDATING"
	StageDebiting      Stage = "DEBITING"
	StageRecording     Stage = "RECORDING"
	StageLibraryUpdate Stage = "LIBRARY_UPDATE"
	StageCommitted     Stage = "COMMITTED"
	StageAborted       Stage = "ABORTED"
)

// Rewards is the gamification surface a purchase touches after commit.
type Rewards interface {
	TrackAchievementProgress(ctx context.Context, userID, tierKey string, increment int64) (*gamification.TrackResult, error)
	InvalidateSummary(ctx context.Context, userID string)
}

// Options tunes the service.
type Options struct {
	Currency string
	LockTTL  time.Duration
}

// Request identifies the episode to buy. NovelID is optional.
type Request struct {
	UserID    string `json:"userId"`
	EpisodeID string `json:"episodeId"`
	NovelID   string `json:"novelId,omitempty"`
}

// Receipt is returned for a completed purchase.
type Receipt struct {
	PurchaseID         string `json:"id"`
	PurchaseReadableID string `json:"purchaseReadableId"`
	Amount             int64  `json:"amount"`
	OriginalAmount     int64  `json:"originalAmount"`
	NewBalance         int64  `json:"newBalance"`
}

// Eligibility is the outcome of a purchase pre-flight check.
type Eligibility struct {
	CanPurchase    bool   `json:"canPurchase"`
	Code           Code   `json:"code,omitempty"`
	Reason         string `json:"reason,omitempty"`
	RequiredAmount int64  `json:"requiredAmount"`
	CurrentBalance int64  `json:"currentBalance"`
	AlreadyOwned   bool   `json:"alreadyOwned"`
}

type stores struct {
	users         *repository.UserRepository
	novels        *repository.NovelRepository
	gamification  *repository.GamificationRepository
	library       *repository.LibraryRepository
	purchases     *repository.PurchaseRepository
	notifications *repository.NotificationRepository
}

func newStores(db *repository.DB) stores {
	return stores{
		users:         repository.NewUserRepository(db),
		novels:        repository.NewNovelRepository(db),
		gamification:  repository.NewGamificationRepository(db),
		library:       repository.NewLibraryRepository(db),
		purchases:     repository.NewPurchaseRepository(db),
		notifications: repository.NewNotificationRepository(db),
	}
}

// Service runs episode purchases.
type Service struct {
	db        *repository.DB
	stores    stores
	cache     cache.Cache
	readable  *ids.ReadableGenerator
	rewards   Rewards
	announcer gamification.Announcer
	currency  string
	lockTTL   time.Duration
	log       *logger.Logger
	now       func() time.Time
}

// NewService creates a new purchase service. The cache, rewards and announcer
// may be nil.
func NewService(db *repository.DB, c cache.Cache, readable *ids.ReadableGenerator, rewards Rewards, announcer gamification.Announcer, opts Options, log *logger.Logger) *Service {
	if opts.Currency == "" {
		opts.Currency = "COIN"
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 30 * time.Second
	}
	return &Service{
		db:        db,
		stores:    newStores(db),
		cache:     c,
		readable:  readable,
		rewards:   rewards,
		announcer: announcer,
		currency:  opts.Currency,
		lockTTL:   opts.LockTTL,
		log:       log.Component("purchase"),
		now:       time.Now,
	}
}

// quote is the validated state of a purchase before any write.
type quote struct {
	user          *models.User
	episode       *models.Episode
	novel         *models.Novel
	price         int64
	originalPrice int64
	balance       int64
}

// PurchaseEpisode buys one episode with wallet coins. Every write happens in a
// single transaction; failures are returned as *Error.
func (s *Service) PurchaseEpisode(ctx context.Context, req Request) (*Receipt, error) {
	start := time.Now()
	receipt, stage, err := s.purchaseEpisode(ctx, req)
	elapsed := time.Since(start).Seconds()

	if err != nil {
		perr := s.asPurchaseError(err)
		perr.Stage = stage
		metrics.RecordPurchase("aborted", string(perr.Code), elapsed)

		event := s.log.Warn()
		if perr.Code == CodeInternal {
			event = s.log.Error()
		}
		event.Err(err).
			Str("user_id", req.UserID).
			Str("episode_id", req.EpisodeID).
			Str("code", string(perr.Code)).
			Str("failed_stage", string(stage)).
			Str("stage", string(StageAborted)).
			Msg("Purchase aborted")
		return nil, perr
	}

	metrics.RecordPurchase("completed", "", elapsed)
	metrics.RecordPurchaseRevenue(receipt.Amount)
	s.log.Info().
		Str("user_id", req.UserID).
		Str("episode_id", req.EpisodeID).
		Str("purchase_id", receipt.PurchaseReadableID).
		Int64("amount", receipt.Amount).
		Int64("balance", receipt.NewBalance).
		Str("stage", string(StageCommitted)).
		Msg("Purchase completed")
	return receipt, nil
}

func (s *Service) asPurchaseError(err error) *Error {
	var perr *Error
	if errors.As(err, &perr) {
		return perr
	}
	return internalError(err)
}

func (s *Service) purchaseEpisode(ctx context.Context, req Request) (*Receipt, Stage, error) {
	stage := StageValidating
	if err := validateRequest(req); err != nil {
		return nil, stage, err
	}

	release, err := s.acquireLock(ctx, req)
	if err != nil {
		return nil, stage, err
	}
	defer release()

	readableID, err := s.readable.Next()
	if err != nil {
		return nil, stage, internalError(err)
	}

	var receipt *Receipt
	var note *models.Notification
	err = s.db.Transaction(ctx, func(tx *repository.DB) error {
		st := newStores(tx)

		q, err := s.prepare(ctx, st, req)
		if err != nil {
			return err
		}
		if q.balance, err = lockedBalance(ctx, st, q.user.ID); err != nil {
			return err
		}
		if q.balance < q.price {
			return insufficientFunds(q)
		}

		stage = StageDebiting
		now := s.now()
		purchase := &models.Purchase{
			ReadableID:  readableID,
			UserID:      q.user.ID,
			Status:      models.PurchaseStatusCompleted,
			Currency:    s.currency,
			TotalAmount: q.price,
			CompletedAt: &now,
			Items: []models.PurchaseItem{{
				ItemType:          models.PurchaseItemEpisode,
				ItemID:            q.episode.ID,
				NovelID:           q.novel.ID,
				Title:             q.episode.Title,
				Quantity:          1,
				UnitPrice:         q.price,
				OriginalUnitPrice: q.originalPrice,
			}},
		}
		if err := st.purchases.Create(ctx, purchase); err != nil {
			return err
		}

		debited, err := st.gamification.DebitCoins(ctx, q.user.ID, q.price, now)
		if err != nil {
			return err
		}
		if !debited {
			return insufficientFunds(q)
		}
		newBalance := q.balance - q.price
		err = st.gamification.CreateCoinTransaction(ctx, &models.CoinTransaction{
			UserID:       q.user.ID,
			Amount:       -q.price,
			BalanceAfter: newBalance,
			Type:         models.CoinTxPurchase,
			ReferenceID:  readableID,
			Description:  fmt.Sprintf("Episode %q", q.episode.Title),
			CreatedAt:    now,
		})
		if err != nil {
			return err
		}

		stage = StageRecording
		if err := st.novels.IncrementEpisodePurchases(ctx, q.episode.ID, 1); err != nil {
			return err
		}
		if err := st.novels.IncrementNovelSales(ctx, q.novel.ID, 1, q.price); err != nil {
			return err
		}

		stage = StageLibraryUpdate
		_, added, err := st.library.MarkEpisodePurchased(ctx, q.user.ID, q.novel.ID, q.episode.ID, now)
		if err != nil {
			return err
		}
		if !added {
			return newError(CodeAlreadyOwned, "Episode already purchased", map[string]interface{}{
				"episodeId": q.episode.ID,
			})
		}

		note = &models.Notification{
			UserID:  q.user.ID,
			Type:    models.NotificationPurchaseCompleted,
			Title:   "Episode unlocked",
			Message: fmt.Sprintf("You unlocked %q from %q for %d coins.", q.episode.Title, q.novel.Title, q.price),
			Payload: map[string]interface{}{
				"purchaseId":         purchase.ID,
				"purchaseReadableId": readableID,
				"episodeId":          q.episode.ID,
				"novelId":            q.novel.ID,
				"amount":             q.price,
			},
		}
		if err := st.notifications.Create(ctx, note); err != nil {
			return err
		}

		receipt = &Receipt{
			PurchaseID:         purchase.ID,
			PurchaseReadableID: readableID,
			Amount:             q.price,
			OriginalAmount:     q.originalPrice,
			NewBalance:         newBalance,
		}
		return nil
	})
	if err != nil {
		return nil, stage, err
	}

	s.afterCommit(ctx, req.UserID, note)
	return receipt, StageCommitted, nil
}

// afterCommit runs the non-critical follow-ups of a completed purchase.
func (s *Service) afterCommit(ctx context.Context, userID string, note *models.Notification) {
	metrics.RecordNotificationSent("in_app", note.Type)
	if s.announcer != nil {
		s.announcer.Announce(ctx, note)
	}
	if s.rewards == nil {
		return
	}
	s.rewards.InvalidateSummary(ctx, userID)
	if _, err := s.rewards.TrackAchievementProgress(ctx, userID, gamification.TrackPatron, 1); err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("Failed to track purchase achievement")
	}
}

func validateRequest(req Request) error {
	details := map[string]interface{}{}
	if !ids.Valid(req.UserID) {
		details["userId"] = req.UserID
	}
	if !ids.Valid(req.EpisodeID) {
		details["episodeId"] = req.EpisodeID
	}
	if req.NovelID != "" && !ids.Valid(req.NovelID) {
		details["novelId"] = req.NovelID
	}
	if len(details) > 0 {
		return newError(CodeInvalidInput, "Invalid purchase request", details)
	}
	return nil
}

// acquireLock takes the per user and episode purchase lock. Without a cache, or
// when the cache fails, the purchase proceeds unlocked.
func (s *Service) acquireLock(ctx context.Context, req Request) (func(), error) {
	noop := func() {}
	if s.cache == nil {
		return noop, nil
	}

	key := fmt.Sprintf("purchase:lock:%s:%s", req.UserID, req.EpisodeID)
	ok, err := s.cache.SetNX(ctx, key, s.now().Unix(), s.lockTTL)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("Failed to acquire purchase lock, continuing without it")
		return noop, nil
	}
	if !ok {
		return nil, newError(CodeInProgress, "A purchase of this episode is already in progress", map[string]interface{}{
			"episodeId": req.EpisodeID,
		})
	}
	return func() {
		if err := s.cache.Del(context.WithoutCancel(ctx), key); err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("Failed to release purchase lock")
		}
	}, nil
}

// prepare loads and validates everything a purchase needs, without writing.
func (s *Service) prepare(ctx context.Context, st stores, req Request) (*quote, error) {
	user, err := st.users.GetByID(ctx, req.UserID)
	if repository.IsNotFound(err) {
		return nil, newError(CodeUserNotFound, "User not found", map[string]interface{}{"userId": req.UserID})
	}
	if err != nil {
		return nil, err
	}

	episode, err := st.novels.GetEpisode(ctx, req.EpisodeID)
	if repository.IsNotFound(err) {
		return nil, newError(CodeEpisodeNotFound, "Episode not found", map[string]interface{}{"episodeId": req.EpisodeID})
	}
	if err != nil {
		return nil, err
	}

	novelID := req.NovelID
	if novelID == "" {
		novelID = episode.NovelID
	}
	novel, err := st.novels.GetNovel(ctx, novelID)
	if repository.IsNotFound(err) {
		return nil, newError(CodeNovelNotFound, "Novel not found", map[string]interface{}{"novelId": novelID})
	}
	if err != nil {
		return nil, err
	}
	if episode.NovelID != novel.ID {
		return nil, newError(CodeEpisodeNovelMismatch, "Episode does not belong to this novel", map[string]interface{}{
			"episodeId": episode.ID,
			"novelId":   novel.ID,
		})
	}

	if !episode.IsPublished() {
		return nil, newError(CodeEpisodeNotAvailable, "Episode is not available for purchase", map[string]interface{}{
			"episodeId": episode.ID,
			"status":    episode.Status,
		})
	}
	if episode.IsFree() {
		return nil, newError(CodeNotPurchasable, "Free episodes cannot be purchased", map[string]interface{}{
			"episodeId": episode.ID,
		})
	}

	library, err := st.library.GetByUserAndNovel(ctx, user.ID, novel.ID)
	if err != nil && !repository.IsNotFound(err) {
		return nil, err
	}
	if library != nil && library.HasPurchased(episode.ID) {
		return nil, newError(CodeAlreadyOwned, "Episode already purchased", map[string]interface{}{
			"episodeId": episode.ID,
		})
	}

	balance, err := st.gamification.CoinBalance(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	return &quote{
		user:          user,
		episode:       episode,
		novel:         novel,
		price:         episode.EffectivePrice(now),
		originalPrice: episode.PriceCoins,
		balance:       balance,
	}, nil
}

// lockedBalance re-reads the wallet under a row lock so the debit and the
// ledger entry see the balance no concurrent write can change. A user without a
// gamification row has no coins.
func lockedBalance(ctx context.Context, st stores, userID string) (int64, error) {
	g, err := st.gamification.GetForUpdate(ctx, userID)
	if repository.IsNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return g.Wallet.CoinBalance, nil
}

func insufficientFunds(q *quote) *Error {
	return newError(CodeInsufficientFunds, "Not enough coins", map[string]interface{}{
		"required":  q.price,
		"balance":   q.balance,
		"shortfall": q.price - q.balance,
	})
}

// CheckUserCanPurchase runs the purchase checks without writing anything.
// Business-rule failures are reported in the result; the error is only set for
// infrastructure failures.
func (s *Service) CheckUserCanPurchase(ctx context.Context, userID, episodeID string) (*Eligibility, error) {
	req := Request{UserID: userID, EpisodeID: episodeID}
	if err := validateRequest(req); err != nil {
		return eligibilityOf(err.(*Error)), nil
	}

	q, err := s.prepare(ctx, s.stores, req)
	if err != nil {
		var perr *Error
		if errors.As(err, &perr) {
			return eligibilityOf(perr), nil
		}
		return nil, err
	}

	result := &Eligibility{
		CanPurchase:    q.balance >= q.price,
		RequiredAmount: q.price,
		CurrentBalance: q.balance,
	}
	if !result.CanPurchase {
		result.Code = CodeInsufficientFunds
		result.Reason = "Not enough coins"
	}
	return result, nil
}

func eligibilityOf(perr *Error) *Eligibility {
	return &Eligibility{
		Code:         perr.Code,
		Reason:       perr.Message,
		AlreadyOwned: perr.Code == CodeAlreadyOwned,
	}
}

// ListPurchases returns a user's purchases, newest first.
func (s *Service) ListPurchases(ctx context.Context, userID string, limit, offset int) ([]models.Purchase, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.stores.purchases.ListByUser(ctx, userID, limit, offset)
}

// GetPurchase returns one purchase of the user by readable id.
func (s *Service) GetPurchase(ctx context.Context, userID, readableID string) (*models.Purchase, error) {
	p, err := s.stores.purchases.GetByReadableID(ctx, readableID)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, fmt.Errorf("purchase %s of another user: %w", readableID, repository.ErrNotFound)
	}
	return p, nil
}
