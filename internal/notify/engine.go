package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/quote-api-nosql/internal/domain"
	"github.com/quote-api-nosql/internal/infrastructure/feed"
)

// QuotesRoute is where an alert click navigates.
const QuotesRoute = "/quotes"

// UserStore is what the engine needs from the user repository.
type UserStore interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
	Update(ctx context.Context, userID string, updates map[string]interface{}) error
}

// NotificationStore marks alerts read on click.
type NotificationStore interface {
	MarkAsRead(ctx context.Context, notificationID string) (*domain.Notification, error)
}

// PushRegistrar creates a push subscription for a background agent and
// returns the opaque descriptor to persist.
type PushRegistrar interface {
	Register(ctx context.Context, deviceToken string) (string, error)
}

// EngineConfig carries the collaborators one session's engine needs.
type EngineConfig struct {
	UserID    string
	SessionID string
	Users     UserStore
	Notifs    NotificationStore
	Source    feed.Source
	Registrar PushRegistrar // nil when push is not configured
	Sender    PushSender    // nil when push is not configured
	Tracker   *DedupTracker
	Log       *zap.Logger
}

// Engine runs notification delivery for one session: permission check,
// push registration, feed subscription, dedup, tiered rendering. Construct
// at login, tear down at logout; never share across sessions.
type Engine struct {
	cfg        EngineConfig
	foreground *ForegroundAlerter
	toast      *ToastAlerter
	tiers      []Alerter
	sub        feed.Subscription
	cancel     context.CancelFunc
	active     bool
	shownTiers map[string]Alerter // alert id -> tier that displayed it
}

func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Tracker == nil {
		cfg.Tracker = NewDedupTracker(DefaultFreshnessWindow)
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	return &Engine{
		cfg:        cfg,
		foreground: NewForegroundAlerter(16),
		toast:      NewToastAlerter(),
		shownTiers: make(map[string]Alerter),
	}
}

// Setup runs the delivery setup sequence. It returns false (with no error)
// when the user has not granted alert permission: delivery degrades to the
// in-app feed only. Every later step is preferred-but-optional — in
// particular a push registration failure degrades to foreground-only
// delivery instead of failing setup.
func (e *Engine) Setup(ctx context.Context, deviceToken string) (bool, error) {
	u, err := e.cfg.Users.Get(ctx, e.cfg.UserID)
	if err != nil {
		return false, err
	}
	if !u.BrowserNotificationsEnabled {
		e.cfg.Log.Info("notifications declined, active alerts disabled",
			zap.String("user", e.cfg.UserID))
		return false, nil
	}

	e.tiers = []Alerter{}
	pushOK := false
	if e.cfg.Registrar != nil && deviceToken != "" {
		desc, err := e.cfg.Registrar.Register(ctx, deviceToken)
		if err != nil {
			e.cfg.Log.Warn("push registration failed, foreground-only delivery",
				zap.String("user", e.cfg.UserID), zap.Error(err))
		} else {
			pushOK = true
			e.tiers = append(e.tiers, NewAgentAlerter(e.cfg.Sender, desc))
			if err := e.cfg.Users.Update(ctx, e.cfg.UserID, map[string]interface{}{
				"push_subscription":          desc,
				"push_notifications_enabled": true,
			}); err != nil {
				e.cfg.Log.Warn("persist push subscription failed", zap.Error(err))
			}
		}
	}
	e.tiers = append(e.tiers, e.foreground, e.toast)

	updates := map[string]interface{}{"browser_notifications_enabled": true}
	if !pushOK {
		updates["push_notifications_enabled"] = false
	}
	if err := e.cfg.Users.Update(ctx, e.cfg.UserID, updates); err != nil {
		e.cfg.Log.Warn("persist notification flags failed", zap.Error(err))
	}

	// The subscription outlives the setup request. It runs on its own
	// context, cancelled only at Teardown; subscribing on ctx would tear
	// the feed down the moment the request handler returns.
	runCtx, cancel := context.WithCancel(context.Background())
	sub, err := e.cfg.Source.Subscribe(runCtx, feed.Query{
		Collection: feed.CollectionNotifications,
		UserID:     e.cfg.UserID,
	}, e.onBatch)
	if err != nil {
		cancel()
		return false, fmt.Errorf("subscribe notifications feed: %w", err)
	}
	e.sub = sub
	e.cancel = cancel
	e.active = true
	return true, nil
}

// onBatch runs on the feed delivery goroutine; it must complete before the
// next batch is handed over, which preserves store ordering end to end.
func (e *Engine) onBatch(b feed.Batch) {
	items := make([]FeedItem, 0, len(b.Events))
	byID := make(map[string]*domain.Notification, len(b.Events))
	for _, ev := range b.Events {
		if ev.Type != feed.EventAdded {
			continue
		}
		var n domain.Notification
		if err := json.Unmarshal(ev.Record, &n); err != nil {
			e.cfg.Log.Warn("bad notification record on feed", zap.String("id", ev.ID), zap.Error(err))
			continue
		}
		ts := n.CreatedAt
		if ts.IsZero() {
			ts = ev.Timestamp
		}
		items = append(items, FeedItem{
			ID:        n.NotificationID,
			Timestamp: ts,
			Read:      n.Read,
			Triggered: n.Triggered,
		})
		byID[n.NotificationID] = &n
	}

	for _, it := range e.cfg.Tracker.Filter(items, b.Initial) {
		e.renderNotification(context.Background(), byID[it.ID])
	}
}

func (e *Engine) renderNotification(ctx context.Context, n *domain.Notification) {
	if n == nil {
		return
	}
	a := Alert{
		ID:    n.NotificationID,
		Title: n.Title,
		Body:  n.Message,
		Route: QuotesRoute,
		Data:  map[string]string{"type": string(n.Type)},
	}
	if n.QuoteID != nil {
		a.QuoteID = *n.QuoteID
	}
	e.show(ctx, a)
}

func (e *Engine) show(ctx context.Context, a Alert) {
	tierName := render(ctx, e.tiers, a, e.cfg.Log)
	if tierName == "" {
		return
	}
	for _, t := range e.tiers {
		if t.Name() == tierName {
			e.shownTiers[a.ID] = t
			break
		}
	}
}

// HandleAlertClick marks the clicked notification read and returns the
// route the client should navigate to.
func (e *Engine) HandleAlertClick(ctx context.Context, notificationID string) (string, error) {
	if _, err := e.cfg.Notifs.MarkAsRead(ctx, notificationID); err != nil {
		return "", err
	}
	if t, ok := e.shownTiers[notificationID]; ok {
		_ = t.Close(ctx, notificationID)
		delete(e.shownTiers, notificationID)
	}
	return QuotesRoute, nil
}

// ShowTestAlert renders a fixed alert through the normal tiers so users can
// verify their delivery setup.
func (e *Engine) ShowTestAlert(ctx context.Context) {
	e.show(ctx, Alert{
		ID:    "test-" + e.cfg.SessionID,
		Title: "Test notification",
		Body:  "Notifications are working.",
		Route: QuotesRoute,
	})
}

// Foreground exposes the foreground tier for the transport's alert stream.
func (e *Engine) Foreground() *ForegroundAlerter { return e.foreground }

// Toasts drains pending last-resort toasts.
func (e *Engine) Toasts() []Alert { return e.toast.Drain() }

// Teardown stops delivery: cancels the subscription context, unsubscribes
// the feed (idempotent), resets
// dedup, clears the user's enablement flags and closes alerts this engine
// created.
func (e *Engine) Teardown(ctx context.Context) {
	if e.cancel != nil {
		e.cancel()
	}
	if e.sub != nil {
		e.sub.Unsubscribe()
	}
	e.cfg.Tracker.Reset()
	e.foreground.Shutdown()
	for id, t := range e.shownTiers {
		_ = t.Close(ctx, id)
	}
	e.shownTiers = make(map[string]Alerter)
	if e.active {
		if err := e.cfg.Users.Update(ctx, e.cfg.UserID, map[string]interface{}{
			"browser_notifications_enabled": false,
			"push_notifications_enabled":    false,
		}); err != nil {
			e.cfg.Log.Warn("clear notification flags failed", zap.Error(err))
		}
	}
	e.active = false
}
