package notification

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/quote-api-nosql/internal/domain"
	"github.com/quote-api-nosql/internal/monitoring"
	"github.com/quote-api-nosql/internal/pkg/id"
)

type Service interface {
	List(ctx context.Context, userID string) ([]domain.Notification, error)
	ListUnread(ctx context.Context, userID string) ([]domain.Notification, error)
	ListSince(ctx context.Context, userID string, after time.Time) ([]domain.Notification, error)
	MarkAsRead(ctx context.Context, notificationID, userID string) (*domain.Notification, error)
	Broadcast(ctx context.Context, req domain.BroadcastRequest) (int, error)
}

type notificationStore interface {
	Put(ctx context.Context, n *domain.Notification) error
	Get(ctx context.Context, notificationID string) (*domain.Notification, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Notification, error)
	ListUnread(ctx context.Context, userID string) ([]domain.Notification, error)
	ListSince(ctx context.Context, userID string, after time.Time) ([]domain.Notification, error)
	MarkAsRead(ctx context.Context, notificationID string) (*domain.Notification, error)
}

type userStore interface {
	ListEnabled(ctx context.Context) ([]domain.User, error)
}

type service struct {
	repo  notificationStore
	users userStore
	log   *zap.Logger
}

func NewService(repo notificationStore, users userStore, log *zap.Logger) Service {
	return &service{repo: repo, users: users, log: log}
}

func (s *service) List(ctx context.Context, userID string) ([]domain.Notification, error) {
	return s.repo.ListByUser(ctx, userID)
}

func (s *service) ListUnread(ctx context.Context, userID string) ([]domain.Notification, error) {
	return s.repo.ListUnread(ctx, userID)
}

func (s *service) ListSince(ctx context.Context, userID string, after time.Time) ([]domain.Notification, error) {
	return s.repo.ListSince(ctx, userID, after)
}

// MarkAsRead flips a notification read. Only the addressee may do it; the
// flag is monotonic, re-marking a read notification is a no-op.
func (s *service) MarkAsRead(ctx context.Context, notificationID, userID string) (*domain.Notification, error) {
	n, err := s.repo.Get(ctx, notificationID)
	if err != nil {
		return nil, err
	}
	if n.UserID != userID {
		return nil, fmt.Errorf("forbidden: %w", domain.ErrForbidden)
	}
	if n.Read {
		return n, nil
	}
	return s.repo.MarkAsRead(ctx, notificationID)
}

// Broadcast writes a general notification for each target user and returns
// how many were written. An empty target list addresses every enabled user.
func (s *service) Broadcast(ctx context.Context, req domain.BroadcastRequest) (int, error) {
	targets := req.UserIDs
	if len(targets) == 0 {
		users, err := s.users.ListEnabled(ctx)
		if err != nil {
			return 0, err
		}
		for i := range users {
			targets = append(targets, users[i].UserID)
		}
	}
	sent := 0
	for _, userID := range targets {
		n := &domain.Notification{
			NotificationID: id.New(),
			UserID:         userID,
			Type:           domain.NotificationGeneral,
			Title:          req.Title,
			Message:        req.Message,
			Triggered:      true,
		}
		if err := s.repo.Put(ctx, n); err != nil {
			s.log.Error("broadcast notification", zap.String("user_id", userID), zap.Error(err))
			continue
		}
		monitoring.NotificationsCreatedTotal.WithLabelValues(string(domain.NotificationGeneral)).Inc()
		sent++
	}
	return sent, nil
}
