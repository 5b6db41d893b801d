// Package access decides whether a user may read an episode.
package access

import (
	"context"
	"time"

	"github.com/novelmaze/novelmaze/internal/metrics"
	"github.com/novelmaze/novelmaze/internal/models"
	"github.com/novelmaze/novelmaze/internal/repository"
	"github.com/novelmaze/novelmaze/pkg/ids"
	"github.com/novelmaze/novelmaze/pkg/logger"
)

// Decision codes reported in Result.Code.
const (
	CodeInvalidEpisodeID = "INVALID_EPISODE_ID"
	CodeEpisodeNotFound  = "EPISODE_NOT_FOUND"
	CodeNovelNotFound    = "NOVEL_NOT_FOUND"
	CodeNotPublished     = "EPISODE_NOT_PUBLISHED"
	CodeFreeEpisode      = "FREE_EPISODE"
	CodeLoginRequired    = "LOGIN_REQUIRED"
	CodeAuthor           = "AUTHOR"
	CodeStaff            = "STAFF"
	CodePurchased        = "PURCHASED"
	CodePurchaseRequired = "PURCHASE_REQUIRED"
)

// Result is the outcome of an access check.
type Result struct {
	CanAccess bool         `json:"canAccess"`
	Reason    string       `json:"reason,omitempty"`
	Code      string       `json:"code"`
	IsOwned   bool         `json:"isOwned"`
	Episode   *EpisodeData `json:"episodeData,omitempty"`
	Novel     *NovelData   `json:"novelData,omitempty"`
}

// EpisodeData is the episode view attached to a result.
type EpisodeData struct {
	ID                 string `json:"id"`
	NovelID            string `json:"novelId"`
	Title              string `json:"title"`
	EpisodeOrder       int    `json:"episodeOrder"`
	AccessType         string `json:"accessType"`
	Status             string `json:"status"`
	PriceCoins         int64  `json:"priceCoins"`
	OriginalPriceCoins int64  `json:"originalPriceCoins"`
}

// NovelData is the novel view attached to a result.
type NovelData struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Slug     string `json:"slug"`
	AuthorID string `json:"authorId"`
}

// Service answers episode access questions.
type Service struct {
	users   *repository.UserRepository
	novels  *repository.NovelRepository
	library *repository.LibraryRepository
	log     *logger.Logger
	now     func() time.Time
}

// NewService creates a new access service.
func NewService(db *repository.DB, log *logger.Logger) *Service {
	return &Service{
		users:   repository.NewUserRepository(db),
		novels:  repository.NewNovelRepository(db),
		library: repository.NewLibraryRepository(db),
		log:     log.Component("access"),
		now:     time.Now,
	}
}

// CheckAccess decides whether userID may read the episode. An empty userID is
// an anonymous caller. Denials are reported in the result; the error is only
// set for infrastructure failures.
func (s *Service) CheckAccess(ctx context.Context, userID, episodeID string) (*Result, error) {
	result, err := s.checkAccess(ctx, userID, episodeID)
	if err != nil {
		s.log.Error().Err(err).Str("user_id", userID).Str("episode_id", episodeID).Msg("Access check failed")
		return nil, err
	}
	metrics.RecordAccessCheck(result.CanAccess, result.Code)
	return result, nil
}

func (s *Service) checkAccess(ctx context.Context, userID, episodeID string) (*Result, error) {
	if !ids.Valid(episodeID) {
		return deny(CodeInvalidEpisodeID, "Invalid episode id"), nil
	}

	episode, err := s.novels.GetEpisode(ctx, episodeID)
	if repository.IsNotFound(err) {
		return deny(CodeEpisodeNotFound, "Episode not found"), nil
	}
	if err != nil {
		return nil, err
	}

	if !episode.IsPublished() {
		return deny(CodeNotPublished, "Episode is not published"), nil
	}

	novel, err := s.novels.GetNovel(ctx, episode.NovelID)
	if repository.IsNotFound(err) {
		return deny(CodeNovelNotFound, "Novel not found"), nil
	}
	if err != nil {
		return nil, err
	}

	now := s.now()
	grant := func(code, reason string) *Result {
		return &Result{
			CanAccess: true,
			Code:      code,
			Reason:    reason,
			Episode:   episodeData(episode, now),
			Novel:     novelData(novel),
		}
	}

	if episode.IsFree() {
		return grant(CodeFreeEpisode, "Free episode"), nil
	}

	if userID == "" {
		r := deny(CodeLoginRequired, "Please sign in to read this episode")
		r.Episode = episodeData(episode, now)
		r.Novel = novelData(novel)
		return r, nil
	}

	if novel.AuthorID == userID {
		return grant(CodeAuthor, "Author access"), nil
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil && !repository.IsNotFound(err) {
		return nil, err
	}
	if user != nil && user.IsStaff() {
		return grant(CodeStaff, "Staff access"), nil
	}

	owned, err := s.hasPurchased(ctx, userID, episode)
	if err != nil {
		return nil, err
	}
	if owned {
		r := grant(CodePurchased, "Episode purchased")
		r.IsOwned = true
		return r, nil
	}

	r := deny(CodePurchaseRequired, "Purchase this episode to read it")
	r.Episode = episodeData(episode, now)
	r.Novel = novelData(novel)
	return r, nil
}

// IsEpisodeOwner reports whether the user authored the episode's novel.
func (s *Service) IsEpisodeOwner(ctx context.Context, userID, episodeID string) (bool, error) {
	if userID == "" || !ids.Valid(episodeID) {
		return false, nil
	}
	episode, err := s.novels.GetEpisode(ctx, episodeID)
	if repository.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	novel, err := s.novels.GetNovel(ctx, episode.NovelID)
	if repository.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return novel.AuthorID == userID, nil
}

// HasUserPurchasedEpisode reports whether the episode is in the user's library.
func (s *Service) HasUserPurchasedEpisode(ctx context.Context, userID, episodeID string) (bool, error) {
	if userID == "" || !ids.Valid(episodeID) {
		return false, nil
	}
	episode, err := s.novels.GetEpisode(ctx, episodeID)
	if repository.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return s.hasPurchased(ctx, userID, episode)
}

func (s *Service) hasPurchased(ctx context.Context, userID string, episode *models.Episode) (bool, error) {
	item, err := s.library.GetByUserAndNovel(ctx, userID, episode.NovelID)
	if repository.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return item.HasPurchased(episode.ID), nil
}

func deny(code, reason string) *Result {
	return &Result{Code: code, Reason: reason}
}

func episodeData(e *models.Episode, now time.Time) *EpisodeData {
	return &EpisodeData{
		ID:                 e.ID,
		NovelID:            e.NovelID,
		Title:              e.Title,
		EpisodeOrder:       e.EpisodeOrder,
		AccessType:         e.AccessType,
		Status:             e.Status,
		PriceCoins:         e.EffectivePrice(now),
		OriginalPriceCoins: e.PriceCoins,
	}
}

func novelData(n *models.Novel) *NovelData {
	return &NovelData{
		ID:       n.ID,
		Title:    n.Title,
		Slug:     n.Slug,
		AuthorID: n.AuthorID,
	}
}
