package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/quote-api-nosql/internal/domain"
	"github.com/quote-api-nosql/internal/infrastructure/feed"
)

// --- stubs ---

type mockUserStore struct{ mock.Mock }

func (m *mockUserStore) Get(ctx context.Context, userID string) (*domain.User, error) {
	args := m.Called(ctx, userID)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockUserStore) Update(ctx context.Context, userID string, updates map[string]interface{}) error {
	return m.Called(ctx, userID, updates).Error(0)
}

type mockNotifStore struct{ mock.Mock }

func (m *mockNotifStore) MarkAsRead(ctx context.Context, notificationID string) (*domain.Notification, error) {
	args := m.Called(ctx, notificationID)
	if n, _ := args.Get(0).(*domain.Notification); n != nil {
		return n, args.Error(1)
	}
	return nil, args.Error(1)
}

type stubRegistrar struct {
	desc string
	err  error
}

func (s *stubRegistrar) Register(context.Context, string) (string, error) { return s.desc, s.err }

type stubSender struct {
	mu   sync.Mutex
	sent []Alert
	err  error
}

func (s *stubSender) Send(_ context.Context, _ string, title, body string, data map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, Alert{ID: data["notification_id"], Title: title, Body: body, Data: data})
	return nil
}

type stubSubscription struct{ unsubscribed int }

func (s *stubSubscription) Unsubscribe() { s.unsubscribed++ }

// stubSource hands the handler back to the test so batches can be injected
// synchronously. It records every subscription it creates and the context
// each one was given.
type stubSource struct {
	mu      sync.Mutex
	handler feed.Handler
	query   feed.Query
	ctx     context.Context
	sub     *stubSubscription
	subs    []*stubSubscription
	err     error
}

func (s *stubSource) Subscribe(ctx context.Context, q feed.Query, h feed.Handler) (feed.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.handler = h
	s.query = q
	s.ctx = ctx
	s.sub = &stubSubscription{}
	s.subs = append(s.subs, s.sub)
	return s.sub, nil
}

func notifEvent(t *testing.T, n domain.Notification) feed.Event {
	t.Helper()
	raw, err := json.Marshal(n)
	require.NoError(t, err)
	return feed.Event{
		Type:       feed.EventAdded,
		Collection: feed.CollectionNotifications,
		ID:         n.NotificationID,
		UserID:     n.UserID,
		Record:     raw,
		Timestamp:  n.CreatedAt,
	}
}

func enabledUser(id string) *domain.User {
	return &domain.User{UserID: id, BrowserNotificationsEnabled: true, Enable: true}
}

func setupEngine(t *testing.T, users *mockUserStore, notifs *mockNotifStore, src *stubSource, reg PushRegistrar, sender PushSender, token string) *Engine {
	t.Helper()
	e := NewEngine(EngineConfig{
		UserID:    "u1",
		SessionID: "sess1",
		Users:     users,
		Notifs:    notifs,
		Source:    src,
		Registrar: reg,
		Sender:    sender,
	})
	ok, err := e.Setup(context.Background(), token)
	require.NoError(t, err)
	require.True(t, ok)
	return e
}

// --- tests ---

func TestSetup_DeclinedPermissionDisablesAlerts(t *testing.T) {
	users := &mockUserStore{}
	users.On("Get", mock.Anything, "u1").
		Return(&domain.User{UserID: "u1", BrowserNotificationsEnabled: false}, nil)

	src := &stubSource{}
	e := NewEngine(EngineConfig{UserID: "u1", Users: users, Notifs: &mockNotifStore{}, Source: src})
	ok, err := e.Setup(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, src.handler, "no feed subscription when declined")
}

func TestSetup_PushRegistrationFailureDegrades(t *testing.T) {
	users := &mockUserStore{}
	users.On("Get", mock.Anything, "u1").Return(enabledUser("u1"), nil)
	users.On("Update", mock.Anything, "u1", mock.MatchedBy(func(u map[string]interface{}) bool {
		return u["push_notifications_enabled"] == false
	})).Return(nil)

	src := &stubSource{}
	e := NewEngine(EngineConfig{
		UserID:    "u1",
		Users:     users,
		Notifs:    &mockNotifStore{},
		Source:    src,
		Registrar: &stubRegistrar{err: errors.New("fcm unreachable")},
		Sender:    &stubSender{},
	})
	ok, err := e.Setup(context.Background(), "device-token")
	require.NoError(t, err)
	assert.True(t, ok, "setup still succeeds, foreground-only")
	assert.NotNil(t, src.handler)
	users.AssertExpectations(t)
}

func TestSetup_PersistsPushSubscription(t *testing.T) {
	users := &mockUserStore{}
	users.On("Get", mock.Anything, "u1").Return(enabledUser("u1"), nil)
	users.On("Update", mock.Anything, "u1", mock.MatchedBy(func(u map[string]interface{}) bool {
		return u["push_subscription"] == "fcm-token-1"
	})).Return(nil).Once()
	users.On("Update", mock.Anything, "u1", mock.Anything).Return(nil)

	src := &stubSource{}
	setupEngine(t, users, &mockNotifStore{}, src, &stubRegistrar{desc: "fcm-token-1"}, &stubSender{}, "device-token")
	assert.Equal(t, feed.CollectionNotifications, src.query.Collection)
	assert.Equal(t, "u1", src.query.UserID)
	users.AssertExpectations(t)
}

func TestEngine_InitialBatchAbsorbedLiveEventSurfaced(t *testing.T) {
	users := &mockUserStore{}
	users.On("Get", mock.Anything, "u1").Return(enabledUser("u1"), nil)
	users.On("Update", mock.Anything, "u1", mock.Anything).Return(nil)

	src := &stubSource{}
	e := setupEngine(t, users, &mockNotifStore{}, src, nil, nil, "")

	old := domain.Notification{
		NotificationID: "n-old", UserID: "u1", Title: "Old",
		Triggered: true, CreatedAt: time.Now().Add(-30 * time.Second),
	}
	src.handler(feed.Batch{Events: []feed.Event{notifEvent(t, old)}, Initial: true})
	assert.Empty(t, e.Toasts(), "warm-up backlog is never rendered")

	fresh := domain.Notification{
		NotificationID: "n-new", UserID: "u1", Title: "Your quote is ready",
		Type: domain.NotificationQuoteResponse, Triggered: true, CreatedAt: time.Now(),
	}
	src.handler(feed.Batch{Events: []feed.Event{notifEvent(t, fresh)}})

	select {
	case a := <-e.Foreground().Events():
		assert.Equal(t, "n-new", a.ID)
		assert.Equal(t, "Your quote is ready", a.Title)
		assert.Equal(t, QuotesRoute, a.Route)
		assert.Equal(t, string(domain.NotificationQuoteResponse), a.Data["type"])
	default:
		t.Fatal("expected a foreground alert")
	}

	// Replay must not render a second time.
	src.handler(feed.Batch{Events: []feed.Event{notifEvent(t, fresh)}})
	select {
	case a := <-e.Foreground().Events():
		t.Fatalf("duplicate alert rendered: %s", a.ID)
	default:
	}
}

func TestSetup_SubscriptionOutlivesRequestContext(t *testing.T) {
	users := &mockUserStore{}
	users.On("Get", mock.Anything, "u1").Return(enabledUser("u1"), nil)
	users.On("Update", mock.Anything, "u1", mock.Anything).Return(nil)

	src := &stubSource{}
	e := NewEngine(EngineConfig{UserID: "u1", SessionID: "sess1", Users: users, Notifs: &mockNotifStore{}, Source: src})

	reqCtx, cancel := context.WithCancel(context.Background())
	ok, err := e.Setup(reqCtx, "")
	require.NoError(t, err)
	require.True(t, ok)

	// The setup request finishing must not kill the feed.
	cancel()
	require.NotNil(t, src.ctx)
	assert.NoError(t, src.ctx.Err(), "subscription context tied to the engine, not the request")

	src.handler(feed.Batch{Initial: true})
	fresh := domain.Notification{
		NotificationID: "n-live", UserID: "u1", Title: "T",
		Triggered: true, CreatedAt: time.Now(),
	}
	src.handler(feed.Batch{Events: []feed.Event{notifEvent(t, fresh)}})
	select {
	case a := <-e.Foreground().Events():
		assert.Equal(t, "n-live", a.ID)
	default:
		t.Fatal("expected live delivery after the setup request ended")
	}

	e.Teardown(context.Background())
	assert.ErrorIs(t, src.ctx.Err(), context.Canceled, "teardown cancels the subscription")
}

func TestEngine_FirstPollBatchSurfaced(t *testing.T) {
	users := &mockUserStore{}
	users.On("Get", mock.Anything, "u1").Return(enabledUser("u1"), nil)
	users.On("Update", mock.Anything, "u1", mock.Anything).Return(nil)

	src := &stubSource{}
	e := setupEngine(t, users, &mockNotifStore{}, src, nil, nil, "")

	// Polling delivery never sends an initial batch; the first batch is
	// new-since-subscribe by construction and must render.
	n := domain.Notification{
		NotificationID: "n-first", UserID: "u1", Title: "T",
		Triggered: true, CreatedAt: time.Now(),
	}
	src.handler(feed.Batch{Events: []feed.Event{notifEvent(t, n)}})

	select {
	case a := <-e.Foreground().Events():
		assert.Equal(t, "n-first", a.ID)
	default:
		t.Fatal("expected the first poll batch to render")
	}
}

func TestEngine_AgentTierPreferred(t *testing.T) {
	users := &mockUserStore{}
	users.On("Get", mock.Anything, "u1").Return(enabledUser("u1"), nil)
	users.On("Update", mock.Anything, "u1", mock.Anything).Return(nil)

	sender := &stubSender{}
	src := &stubSource{}
	e := setupEngine(t, users, &mockNotifStore{}, src, &stubRegistrar{desc: "tok"}, sender, "device-token")

	src.handler(feed.Batch{Initial: true})
	n := domain.Notification{
		NotificationID: "n1", UserID: "u1", Title: "T", Message: "B",
		Triggered: true, CreatedAt: time.Now(),
	}
	src.handler(feed.Batch{Events: []feed.Event{notifEvent(t, n)}})

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "n1", sender.sent[0].ID)
	select {
	case <-e.Foreground().Events():
		t.Fatal("alert must not fall through once the agent tier delivered")
	default:
	}
}

func TestEngine_AgentFailureFallsToForeground(t *testing.T) {
	users := &mockUserStore{}
	users.On("Get", mock.Anything, "u1").Return(enabledUser("u1"), nil)
	users.On("Update", mock.Anything, "u1", mock.Anything).Return(nil)

	sender := &stubSender{err: errors.New("push send failed")}
	src := &stubSource{}
	e := setupEngine(t, users, &mockNotifStore{}, src, &stubRegistrar{desc: "tok"}, sender, "device-token")

	src.handler(feed.Batch{Initial: true})
	n := domain.Notification{
		NotificationID: "n1", UserID: "u1", Title: "T",
		Triggered: true, CreatedAt: time.Now(),
	}
	src.handler(feed.Batch{Events: []feed.Event{notifEvent(t, n)}})

	select {
	case a := <-e.Foreground().Events():
		assert.Equal(t, "n1", a.ID)
	default:
		t.Fatal("expected fallback to the foreground tier")
	}
}

func TestEngine_ForegroundShutdownFallsToToast(t *testing.T) {
	users := &mockUserStore{}
	users.On("Get", mock.Anything, "u1").Return(enabledUser("u1"), nil)
	users.On("Update", mock.Anything, "u1", mock.Anything).Return(nil)

	src := &stubSource{}
	e := setupEngine(t, users, &mockNotifStore{}, src, nil, nil, "")
	e.Foreground().Shutdown()

	src.handler(feed.Batch{Initial: true})
	n := domain.Notification{
		NotificationID: "n1", UserID: "u1", Title: "T",
		Triggered: true, CreatedAt: time.Now(),
	}
	src.handler(feed.Batch{Events: []feed.Event{notifEvent(t, n)}})

	toasts := e.Toasts()
	require.Len(t, toasts, 1)
	assert.Equal(t, "n1", toasts[0].ID)
	assert.Empty(t, e.Toasts(), "drain clears the pending list")
}

func TestHandleAlertClick(t *testing.T) {
	users := &mockUserStore{}
	users.On("Get", mock.Anything, "u1").Return(enabledUser("u1"), nil)
	users.On("Update", mock.Anything, "u1", mock.Anything).Return(nil)

	notifs := &mockNotifStore{}
	notifs.On("MarkAsRead", mock.Anything, "n1").
		Return(&domain.Notification{NotificationID: "n1", Read: true}, nil)

	src := &stubSource{}
	e := setupEngine(t, users, notifs, src, nil, nil, "")
	e.Foreground().Shutdown() // force the toast tier so Close is observable

	src.handler(feed.Batch{Initial: true})
	n := domain.Notification{
		NotificationID: "n1", UserID: "u1", Title: "T",
		Triggered: true, CreatedAt: time.Now(),
	}
	src.handler(feed.Batch{Events: []feed.Event{notifEvent(t, n)}})

	route, err := e.HandleAlertClick(context.Background(), "n1")
	require.NoError(t, err)
	assert.Equal(t, QuotesRoute, route)
	assert.Empty(t, e.Toasts(), "clicked alert is closed on its tier")
	notifs.AssertExpectations(t)
}

func TestHandleAlertClick_MarkReadFailure(t *testing.T) {
	notifs := &mockNotifStore{}
	notifs.On("MarkAsRead", mock.Anything, "n1").Return(nil, domain.ErrNotFound)

	e := NewEngine(EngineConfig{UserID: "u1", Notifs: notifs, Users: &mockUserStore{}})
	_, err := e.HandleAlertClick(context.Background(), "n1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestShowTestAlert(t *testing.T) {
	users := &mockUserStore{}
	users.On("Get", mock.Anything, "u1").Return(enabledUser("u1"), nil)
	users.On("Update", mock.Anything, "u1", mock.Anything).Return(nil)

	src := &stubSource{}
	e := setupEngine(t, users, &mockNotifStore{}, src, nil, nil, "")
	e.ShowTestAlert(context.Background())

	select {
	case a := <-e.Foreground().Events():
		assert.Equal(t, "test-sess1", a.ID)
		assert.Equal(t, QuotesRoute, a.Route)
	default:
		t.Fatal("expected the test alert on the foreground tier")
	}
}

func TestTeardown(t *testing.T) {
	users := &mockUserStore{}
	users.On("Get", mock.Anything, "u1").Return(enabledUser("u1"), nil)
	users.On("Update", mock.Anything, "u1", mock.Anything).Return(nil)

	src := &stubSource{}
	e := setupEngine(t, users, &mockNotifStore{}, src, nil, nil, "")

	e.Teardown(context.Background())
	assert.Equal(t, 1, src.sub.unsubscribed)

	users.AssertCalled(t, "Update", mock.Anything, "u1", map[string]interface{}{
		"browser_notifications_enabled": false,
		"push_notifications_enabled":    false,
	})

	_, open := <-e.Foreground().Events()
	assert.False(t, open, "foreground channel released for stream readers")

	// Calling twice must be safe.
	e.Teardown(context.Background())
	assert.Equal(t, 2, src.sub.unsubscribed, "unsubscribe handle invoked again, still harmless")
}
