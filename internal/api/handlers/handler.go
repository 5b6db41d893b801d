// Package handlers provides the REST API of the NovelMaze backend.
// It exposes gamification, wallet, episode access, purchase, library and
// notification endpoints, and accepts domain events from clients.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/novelmaze/novelmaze/internal/models"
	"github.com/novelmaze/novelmaze/internal/repository"
	"github.com/novelmaze/novelmaze/internal/service/access"
	"github.com/novelmaze/novelmaze/internal/service/gamification"
	"github.com/novelmaze/novelmaze/internal/service/purchase"
	"github.com/novelmaze/novelmaze/pkg/ids"
	"github.com/novelmaze/novelmaze/pkg/logger"
)

// GamificationService interface for XP, achievement and wallet operations.
type GamificationService interface {
	GetGamificationSummary(ctx context.Context, userID string) (*gamification.Summary, error)
	ListDefinitions(ctx context.Context) ([]models.Achievement, error)
	Leaderboard(ctx context.Context, limit int) ([]gamification.LevelState, error)
	AwardPoints(ctx context.Context, userID string, points int64) (*gamification.LevelState, error)
	CoinBalance(ctx context.Context, userID string) (int64, error)
	CoinTransactions(ctx context.Context, userID string, limit int) ([]models.CoinTransaction, error)
	CreditCoins(ctx context.Context, userID string, amount int64, txType, reason string) (int64, error)
}

// AccessService interface for episode access checks.
type AccessService interface {
	CheckAccess(ctx context.Context, userID, episodeID string) (*access.Result, error)
}

// PurchaseService interface for episode purchases.
type PurchaseService interface {
	PurchaseEpisode(ctx context.Context, req purchase.Request) (*purchase.Receipt, error)
	CheckUserCanPurchase(ctx context.Context, userID, episodeID string) (*purchase.Eligibility, error)
	ListPurchases(ctx context.Context, userID string, limit, offset int) ([]models.Purchase, error)
	GetPurchase(ctx context.Context, userID, readableID string) (*models.Purchase, error)
}

// NotificationService interface for in-app notifications.
type NotificationService interface {
	List(ctx context.Context, userID string, unreadOnly bool, limit int) ([]models.Notification, error)
	CountUnread(ctx context.Context, userID string) (int64, error)
	MarkRead(ctx context.Context, userID string, id uint) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
}

// LibraryReader lists a user's library.
type LibraryReader interface {
	ListByUser(ctx context.Context, userID string) ([]models.UserLibraryItem, error)
}

// UserLookup resolves caller identities.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// EventPublisher emits domain events.
type EventPublisher interface {
	EmitUserCompletedStory(ctx context.Context, userID, storyID string)
	EmitUserLoggedIn(ctx context.Context, userID string)
}

// Dependencies groups the collaborators of the handler.
type Dependencies struct {
	Gamification  GamificationService
	Access        AccessService
	Purchases     PurchaseService
	Notifications NotificationService
	Library       LibraryReader
	Users         UserLookup
	Events        EventPublisher
	HealthChecks  map[string]func(ctx context.Context) error
}

// Handler handles API requests.
type Handler struct {
	gamification  GamificationService
	access        AccessService
	purchases     PurchaseService
	notifications NotificationService
	library       LibraryReader
	users         UserLookup
	events        EventPublisher
	healthChecks  map[string]func(ctx context.Context) error
	log           *logger.Logger
}

// NewHandler creates a new API handler.
func NewHandler(deps Dependencies, log *logger.Logger) *Handler {
	return &Handler{
		gamification:  deps.Gamification,
		access:        deps.Access,
		purchases:     deps.Purchases,
		notifications: deps.Notifications,
		library:       deps.Library,
		users:         deps.Users,
		events:        deps.Events,
		healthChecks:  deps.HealthChecks,
		log:           log.Component("api"),
	}
}

// RegisterRoutes mounts every endpoint on the /api/v1 group.
func (h *Handler) RegisterRoutes(api *gin.RouterGroup) {
	api.GET("/achievements", h.GetAchievementCatalog)
	api.GET("/leaderboard", h.GetLeaderboard)
	api.GET("/episodes/:id/access", h.CheckEpisodeAccess)

	me := api.Group("/me", h.RequireUser())
	me.GET("/gamification", h.GetGamificationSummary)
	me.GET("/wallet", h.GetWallet)
	me.GET("/library", h.GetLibrary)
	me.GET("/purchases", h.ListPurchases)
	me.GET("/purchases/:readableId", h.GetPurchase)
	me.GET("/notifications", h.ListNotifications)
	me.GET("/notifications/unread-count", h.CountUnreadNotifications)
	me.POST("/notifications/read-all", h.MarkAllNotificationsRead)
	me.POST("/notifications/:id/read", h.MarkNotificationRead)

	authed := api.Group("", h.RequireUser())
	authed.GET("/episodes/:id/purchase-check", h.CheckPurchase)
	authed.POST("/purchases", h.PurchaseEpisode)
	authed.POST("/events/story-completed", h.StoryCompleted)
	authed.POST("/events/login", h.LoggedIn)

	admin := api.Group("/admin", h.RequireStaff())
	admin.POST("/users/:id/coins", h.GrantCoins)
	admin.POST("/users/:id/points", h.GrantPoints)
}

// Health reports the state of the backing stores.
// GET /health.
func (h *Handler) Health(c *gin.Context) {
	checks := gin.H{}
	healthy := true
	for name, check := range h.healthChecks {
		if err := check(c.Request.Context()); err != nil {
			healthy = false
			checks[name] = err.Error()
			continue
		}
		checks[name] = "ok"
	}

	status := http.StatusOK
	state := "ok"
	if !healthy {
		status = http.StatusServiceUnavailable
		state = "degraded"
	}
	c.JSON(status, gin.H{"status": state, "checks": checks, "timestamp": time.Now().UTC()})
}

// GetAchievementCatalog returns every achievement tier definition.
// GET /api/v1/achievements.
func (h *Handler) GetAchievementCatalog(c *gin.Context) {
	defs, err := h.gamification.ListDefinitions(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list achievements")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to retrieve achievements")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"achievements": defs,
		"total":        len(defs),
	})
}

// GetLeaderboard returns the top users by level.
// GET /api/v1/leaderboard?limit=10.
func (h *Handler) GetLeaderboard(c *gin.Context) {
	limit, err := h.parseLimit(c, 10, 100)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := h.gamification.Leaderboard(c.Request.Context(), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get leaderboard")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to retrieve leaderboard")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"leaderboard":   entries,
		"total_entries": len(entries),
		"generated_at":  time.Now().UTC(),
	})
}

// GetGamificationSummary returns the caller's level, wallet and achievements.
// GET /api/v1/me/gamification.
func (h *Handler) GetGamificationSummary(c *gin.Context) {
	userID := currentUserID(c)
	summary, err := h.gamification.GetGamificationSummary(c.Request.Context(), userID)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to get gamification summary")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to retrieve gamification summary")
		return
	}
	c.JSON(http.StatusOK, summary)
}

// GetWallet returns the caller's coin balance and recent ledger entries.
// GET /api/v1/me/wallet?limit=50.
func (h *Handler) GetWallet(c *gin.Context) {
	limit, err := h.parseLimit(c, 50, 200)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	ctx := c.Request.Context()
	userID := currentUserID(c)
	balance, err := h.gamification.CoinBalance(ctx, userID)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to get coin balance")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to retrieve wallet")
		return
	}
	transactions, err := h.gamification.CoinTransactions(ctx, userID, limit)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to list coin transactions")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to retrieve wallet")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"coin_balance": balance,
		"transactions": transactions,
	})
}

// GetLibrary returns the caller's library.
// GET /api/v1/me/library.
func (h *Handler) GetLibrary(c *gin.Context) {
	userID := currentUserID(c)
	items, err := h.library.ListByUser(c.Request.Context(), userID)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to list library")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to retrieve library")
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": len(items)})
}

// CheckEpisodeAccess reports whether the caller may read an episode.
// Anonymous callers are allowed.
// GET /api/v1/episodes/:id/access.
func (h *Handler) CheckEpisodeAccess(c *gin.Context) {
	result, err := h.access.CheckAccess(c.Request.Context(), currentUserID(c), c.Param("id"))
	if err != nil {
		h.errorResponse(c, http.StatusInternalServerError, "Failed to check episode access")
		return
	}
	c.JSON(http.StatusOK, result)
}

// CheckPurchase runs the purchase pre-flight checks for the caller.
// GET /api/v1/episodes/:id/purchase-check.
func (h *Handler) CheckPurchase(c *gin.Context) {
	userID := currentUserID(c)
	result, err := h.purchases.CheckUserCanPurchase(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to check purchase eligibility")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to check purchase eligibility")
		return
	}
	c.JSON(http.StatusOK, result)
}

type purchaseRequest struct {
	EpisodeID string `json:"episodeId" binding:"required"`
	NovelID   string `json:"novelId"`
}

// PurchaseEpisode buys an episode with the caller's coins.
// POST /api/v1/purchases.
func (h *Handler) PurchaseEpisode(c *gin.Context) {
	var body purchaseRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		h.purchaseError(c, &purchase.Error{
			Code:    purchase.CodeInvalidInput,
			Message: "Invalid purchase request",
			Details: map[string]interface{}{"reason": err.Error()},
		})
		return
	}

	receipt, err := h.purchases.PurchaseEpisode(c.Request.Context(), purchase.Request{
		UserID:    currentUserID(c),
		EpisodeID: body.EpisodeID,
		NovelID:   body.NovelID,
	})
	if err != nil {
		h.purchaseError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success":  true,
		"purchase": receipt,
	})
}

// ListPurchases returns the caller's purchases.
// GET /api/v1/me/purchases?limit=20&offset=0.
func (h *Handler) ListPurchases(c *gin.Context) {
	limit, err := h.parseLimit(c, 20, 100)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		h.errorResponse(c, http.StatusBadRequest, fmt.Sprintf("invalid offset parameter: %s", c.Query("offset")))
		return
	}

	userID := currentUserID(c)
	purchases, err := h.purchases.ListPurchases(c.Request.Context(), userID, limit, offset)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to list purchases")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to retrieve purchases")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"purchases": purchases,
		"limit":     limit,
		"offset":    offset,
	})
}

// GetPurchase returns one purchase of the caller.
// GET /api/v1/me/purchases/:readableId.
func (h *Handler) GetPurchase(c *gin.Context) {
	p, err := h.purchases.GetPurchase(c.Request.Context(), currentUserID(c), c.Param("readableId"))
	if repository.IsNotFound(err) {
		h.errorResponse(c, http.StatusNotFound, "purchase not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get purchase")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to retrieve purchase")
		return
	}
	c.JSON(http.StatusOK, p)
}

// ListNotifications returns the caller's notifications.
// GET /api/v1/me/notifications?unread=true&limit=50.
func (h *Handler) ListNotifications(c *gin.Context) {
	limit, err := h.parseLimit(c, 50, 100)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	unreadOnly := c.Query("unread") == "true"

	userID := currentUserID(c)
	notifications, err := h.notifications.List(c.Request.Context(), userID, unreadOnly, limit)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to list notifications")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to retrieve notifications")
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": notifications, "total": len(notifications)})
}

// CountUnreadNotifications returns the caller's unread count.
// GET /api/v1/me/notifications/unread-count.
func (h *Handler) CountUnreadNotifications(c *gin.Context) {
	count, err := h.notifications.CountUnread(c.Request.Context(), currentUserID(c))
	if err != nil {
		h.errorResponse(c, http.StatusInternalServerError, "Failed to count notifications")
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread": count})
}

// MarkNotificationRead marks one notification read.
// POST /api/v1/me/notifications/:id/read.
func (h *Handler) MarkNotificationRead(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, fmt.Sprintf("invalid notification ID: %s", c.Param("id")))
		return
	}

	err = h.notifications.MarkRead(c.Request.Context(), currentUserID(c), uint(id))
	if repository.IsNotFound(err) {
		h.errorResponse(c, http.StatusNotFound, "notification not found")
		return
	}
	if err != nil {
		h.errorResponse(c, http.StatusInternalServerError, "Failed to update notification")
		return
	}
	c.Status(http.StatusNoContent)
}

// MarkAllNotificationsRead marks every notification of the caller read.
// POST /api/v1/me/notifications/read-all.
func (h *Handler) MarkAllNotificationsRead(c *gin.Context) {
	updated, err := h.notifications.MarkAllRead(c.Request.Context(), currentUserID(c))
	if err != nil {
		h.errorResponse(c, http.StatusInternalServerError, "Failed to update notifications")
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

type storyCompletedRequest struct {
	StoryID string `json:"storyId" binding:"required"`
}

// StoryCompleted records that the caller finished a story.
// POST /api/v1/events/story-completed.
func (h *Handler) StoryCompleted(c *gin.Context) {
	var body storyCompletedRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		h.errorResponse(c, http.StatusBadRequest, "storyId is required")
		return
	}
	h.events.EmitUserCompletedStory(c.Request.Context(), currentUserID(c), body.StoryID)
	c.JSON(http.StatusAccepted, gin.H{"accepted": true})
}

// LoggedIn records a login of the caller.
// POST /api/v1/events/login.
func (h *Handler) LoggedIn(c *gin.Context) {
	h.events.EmitUserLoggedIn(c.Request.Context(), currentUserID(c))
	c.JSON(http.StatusAccepted, gin.H{"accepted": true})
}

type grantCoinsRequest struct {
	Amount int64  `json:"amount" binding:"required"`
	Reason string `json:"reason"`
}

// GrantCoins credits coins to a user.
// POST /api/v1/admin/users/:id/coins.
func (h *Handler) GrantCoins(c *gin.Context) {
	var body grantCoinsRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		h.errorResponse(c, http.StatusBadRequest, "amount is required")
		return
	}

	targetID, ok := h.grantTarget(c)
	if !ok {
		return
	}
	balance, err := h.gamification.CreditCoins(c.Request.Context(), targetID, body.Amount, models.CoinTxGrant, body.Reason)
	if errors.Is(err, gamification.ErrInvalidAmount) {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("user_id", targetID).Msg("Failed to grant coins")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to grant coins")
		return
	}

	h.log.Info().
		Str("granted_by", currentUserID(c)).
		Str("user_id", targetID).
		Int64("amount", body.Amount).
		Msg("Coins granted")
	c.JSON(http.StatusOK, gin.H{"user_id": targetID, "coin_balance": balance})
}

type grantPointsRequest struct {
	Points int64 `json:"points" binding:"required"`
}

// GrantPoints awards XP to a user.
// POST /api/v1/admin/users/:id/points.
func (h *Handler) GrantPoints(c *gin.Context) {
	var body grantPointsRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		h.errorResponse(c, http.StatusBadRequest, "points is required")
		return
	}
	if body.Points <= 0 {
		h.errorResponse(c, http.StatusBadRequest, "points must be positive")
		return
	}

	targetID, ok := h.grantTarget(c)
	if !ok {
		return
	}
	state, err := h.gamification.AwardPoints(c.Request.Context(), targetID, body.Points)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", targetID).Msg("Failed to award points")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to award points")
		return
	}
	c.JSON(http.StatusOK, state)
}

// Helper functions

// grantTarget resolves the :id of an admin grant to an existing user. It writes
// the error response and reports false when the id is malformed or unknown.
func (h *Handler) grantTarget(c *gin.Context) (string, bool) {
	targetID := c.Param("id")
	if !ids.Valid(targetID) {
		h.errorResponse(c, http.StatusBadRequest, "invalid user id")
		return "", false
	}
	_, err := h.users.GetByID(c.Request.Context(), targetID)
	if repository.IsNotFound(err) {
		h.errorResponse(c, http.StatusNotFound, "user not found")
		return "", false
	}
	if err != nil {
		h.log.Error().Err(err).Str("user_id", targetID).Msg("Failed to resolve grant target")
		h.errorResponse(c, http.StatusInternalServerError, "failed to resolve user")
		return "", false
	}
	return targetID, true
}

// parseLimit extracts and validates the limit query parameter.
func (h *Handler) parseLimit(c *gin.Context, defaultLimit, maxLimit int) (int, error) {
	limitStr := c.Query("limit")
	if limitStr == "" {
		return defaultLimit, nil
	}

	limit, err := strconv.Atoi(limitStr)
	if err != nil {
		return 0, fmt.Errorf("invalid limit parameter: %s", limitStr)
	}
	if limit < 1 {
		return 0, fmt.Errorf("limit must be greater than 0")
	}
	if limit > maxLimit {
		return 0, fmt.Errorf("limit cannot exceed %d", maxLimit)
	}
	return limit, nil
}

// purchaseStatus maps purchase failure codes to HTTP statuses.
var purchaseStatus = map[purchase.Code]int{
	purchase.CodeInvalidInput:         http.StatusBadRequest,
	purchase.CodeUserNotFound:         http.StatusNotFound,
	purchase.CodeEpisodeNotFound:      http.StatusNotFound,
	purchase.CodeNovelNotFound:        http.StatusNotFound,
	purchase.CodeEpisodeNovelMismatch: http.StatusBadRequest,
	purchase.CodeEpisodeNotAvailable:  http.StatusConflict,
	purchase.CodeNotPurchasable:       http.StatusBadRequest,
	purchase.CodeAlreadyOwned:         http.StatusConflict,
	purchase.CodeInsufficientFunds:    http.StatusPaymentRequired,
	purchase.CodeInProgress:           http.StatusConflict,
	purchase.CodeInternal:             http.StatusInternalServerError,
}

// purchaseError renders a purchase failure.
func (h *Handler) purchaseError(c *gin.Context, err error) {
	var perr *purchase.Error
	if !errors.As(err, &perr) {
		perr = &purchase.Error{Code: purchase.CodeInternal, Message: "Purchase could not be completed"}
	}
	status, ok := purchaseStatus[perr.Code]
	if !ok {
		status = http.StatusInternalServerError
	}

	details := perr.Details
	if details == nil {
		details = map[string]interface{}{}
	}
	c.JSON(status, gin.H{
		"success": false,
		"message": perr.Message,
		"error": gin.H{
			"code":    perr.Code,
			"details": details,
		},
	})
}

// errorResponse sends a standardized error response.
func (h *Handler) errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":     message,
		"timestamp": time.Now().UTC(),
	})
}

// abort sends an error response and stops the handler chain.
func (h *Handler) abort(c *gin.Context, statusCode int, message string) {
	h.errorResponse(c, statusCode, message)
	c.Abort()
}
