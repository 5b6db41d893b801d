package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/novelmaze/novelmaze/internal/models"
	"github.com/novelmaze/novelmaze/internal/repository"
	"github.com/novelmaze/novelmaze/pkg/logger"
)

// Service reads and maintains in-app notifications.
type Service struct {
	repo *repository.NotificationRepository
	log  *logger.Logger
	now  func() time.Time
}

// NewService creates a new in-app notification service.
func NewService(db *repository.DB, log *logger.Logger) *Service {
	return &Service{
		repo: repository.NewNotificationRepository(db),
		log:  log.Component("notifications"),
		now:  time.Now,
	}
}

// List returns the newest notifications of a user.
func (s *Service) List(ctx context.Context, userID string, unreadOnly bool, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.repo.ListByUser(ctx, userID, unreadOnly, limit)
}

// CountUnread returns the number of unread notifications.
func (s *Service) CountUnread(ctx context.Context, userID string) (int64, error) {
	return s.repo.CountUnread(ctx, userID)
}

// MarkRead marks one notification read. It returns repository.ErrNotFound when
// the user has no unread notification with that id.
func (s *Service) MarkRead(ctx context.Context, userID string, id uint) error {
	ok, err := s.repo.MarkRead(ctx, userID, id, s.now())
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("notification %d: %w", id, repository.ErrNotFound)
	}
	return nil
}

// MarkAllRead marks every unread notification of the user read.
func (s *Service) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	return s.repo.MarkAllRead(ctx, userID, s.now())
}

// Cleanup deletes read notifications older than retention.
func (s *Service) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := s.now().Add(-retention)
	deleted, err := s.repo.DeleteReadBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	s.log.Info().
		Int64("deleted", deleted).
		Time("cutoff", cutoff).
		Msg("Old notifications cleaned up")
	return deleted, nil
}
