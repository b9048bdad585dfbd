package notification

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/quote-api-nosql/internal/domain"
)

type mockNotificationStore struct{ mock.Mock }

func (m *mockNotificationStore) Put(ctx context.Context, n *domain.Notification) error {
	return m.Called(ctx, n).Error(0)
}
func (m *mockNotificationStore) Get(ctx context.Context, notificationID string) (*domain.Notification, error) {
	args := m.Called(ctx, notificationID)
	if n, _ := args.Get(0).(*domain.Notification); n != nil {
		return n, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockNotificationStore) ListByUser(ctx context.Context, userID string) ([]domain.Notification, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]domain.Notification), args.Error(1)
}
func (m *mockNotificationStore) ListUnread(ctx context.Context, userID string) ([]domain.Notification, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]domain.Notification), args.Error(1)
}
func (m *mockNotificationStore) ListSince(ctx context.Context, userID string, after time.Time) ([]domain.Notification, error) {
	args := m.Called(ctx, userID, after)
	return args.Get(0).([]domain.Notification), args.Error(1)
}
func (m *mockNotificationStore) MarkAsRead(ctx context.Context, notificationID string) (*domain.Notification, error) {
	args := m.Called(ctx, notificationID)
	if n, _ := args.Get(0).(*domain.Notification); n != nil {
		return n, args.Error(1)
	}
	return nil, args.Error(1)
}

type mockUserStore struct{ mock.Mock }

func (m *mockUserStore) ListEnabled(ctx context.Context) ([]domain.User, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.User), args.Error(1)
}

func TestMarkAsRead_OwnershipEnforced(t *testing.T) {
	repo := &mockNotificationStore{}
	repo.On("Get", mock.Anything, "n1").
		Return(&domain.Notification{NotificationID: "n1", UserID: "owner"}, nil)

	svc := NewService(repo, &mockUserStore{}, zap.NewNop())
	_, err := svc.MarkAsRead(context.Background(), "n1", "intruder")
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestMarkAsRead_AlreadyReadIsNoOp(t *testing.T) {
	repo := &mockNotificationStore{}
	repo.On("Get", mock.Anything, "n1").
		Return(&domain.Notification{NotificationID: "n1", UserID: "u1", Read: true}, nil)
	// No MarkAsRead expectation: a write would fail AssertExpectations.

	svc := NewService(repo, &mockUserStore{}, zap.NewNop())
	n, err := svc.MarkAsRead(context.Background(), "n1", "u1")
	require.NoError(t, err)
	assert.True(t, n.Read)
	repo.AssertExpectations(t)
}

func TestMarkAsRead_Marks(t *testing.T) {
	repo := &mockNotificationStore{}
	repo.On("Get", mock.Anything, "n1").
		Return(&domain.Notification{NotificationID: "n1", UserID: "u1"}, nil)
	repo.On("MarkAsRead", mock.Anything, "n1").
		Return(&domain.Notification{NotificationID: "n1", UserID: "u1", Read: true}, nil)

	svc := NewService(repo, &mockUserStore{}, zap.NewNop())
	n, err := svc.MarkAsRead(context.Background(), "n1", "u1")
	require.NoError(t, err)
	assert.True(t, n.Read)
}

func TestBroadcast_ExplicitTargets(t *testing.T) {
	repo := &mockNotificationStore{}
	repo.On("Put", mock.Anything, mock.MatchedBy(func(n *domain.Notification) bool {
		return n.Type == domain.NotificationGeneral && n.Triggered && n.Title == "Maintenance"
	})).Return(nil).Twice()

	svc := NewService(repo, &mockUserStore{}, zap.NewNop())
	sent, err := svc.Broadcast(context.Background(), domain.BroadcastRequest{
		UserIDs: []string{"u1", "u2"},
		Title:   "Maintenance",
		Message: "Back at 02:00 UTC.",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	repo.AssertExpectations(t)
}

func TestBroadcast_EmptyTargetsGoesToAllEnabled(t *testing.T) {
	users := &mockUserStore{}
	users.On("ListEnabled", mock.Anything).Return([]domain.User{
		{UserID: "u1"}, {UserID: "u2"}, {UserID: "u3"},
	}, nil)

	repo := &mockNotificationStore{}
	repo.On("Put", mock.Anything, mock.Anything).Return(nil).Times(3)

	svc := NewService(repo, users, zap.NewNop())
	sent, err := svc.Broadcast(context.Background(), domain.BroadcastRequest{
		Title: "Hello", Message: "World",
	})
	require.NoError(t, err)
	assert.Equal(t, 3, sent)
	repo.AssertExpectations(t)
}

func TestBroadcast_PartialFailureContinues(t *testing.T) {
	repo := &mockNotificationStore{}
	repo.On("Put", mock.Anything, mock.MatchedBy(func(n *domain.Notification) bool {
		return n.UserID == "u1"
	})).Return(errors.New("dynamo down"))
	repo.On("Put", mock.Anything, mock.MatchedBy(func(n *domain.Notification) bool {
		return n.UserID == "u2"
	})).Return(nil)

	svc := NewService(repo, &mockUserStore{}, zap.NewNop())
	sent, err := svc.Broadcast(context.Background(), domain.BroadcastRequest{
		UserIDs: []string{"u1", "u2"}, Title: "T", Message: "M",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
}
