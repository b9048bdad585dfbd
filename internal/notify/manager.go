package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/quote-api-nosql/internal/infrastructure/feed"
)

// ManagerConfig carries the process-wide collaborators engines are built
// from. Per-session state lives in the engines themselves.
type ManagerConfig struct {
	Users           UserStore
	Notifs          NotificationStore
	Source          feed.Source
	Registrar       PushRegistrar
	Sender          PushSender
	FreshnessWindow time.Duration
	Log             *zap.Logger
}

// Manager owns one delivery engine per active session. It replaces the
// source system's process-wide singleton: engines are constructed at setup
// and destroyed at teardown or logout, and callers always address them by
// session id.
type Manager struct {
	cfg     ManagerConfig
	mu      sync.Mutex
	engines map[string]*Engine
}

func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	return &Manager{cfg: cfg, engines: make(map[string]*Engine)}
}

// Setup builds and starts an engine for the session. Calling it again for
// the same session tears the previous engine down first, so a reconnecting
// client never ends up with two live subscriptions.
func (m *Manager) Setup(ctx context.Context, sessionID, userID, deviceToken string) (bool, error) {
	m.mu.Lock()
	prev := m.engines[sessionID]
	delete(m.engines, sessionID)
	m.mu.Unlock()
	if prev != nil {
		prev.Teardown(ctx)
	}

	eng := NewEngine(EngineConfig{
		UserID:    userID,
		SessionID: sessionID,
		Users:     m.cfg.Users,
		Notifs:    m.cfg.Notifs,
		Source:    m.cfg.Source,
		Registrar: m.cfg.Registrar,
		Sender:    m.cfg.Sender,
		Tracker:   NewDedupTracker(m.cfg.FreshnessWindow),
		Log:       m.cfg.Log.With(zap.String("session", sessionID)),
	})
	ok, err := eng.Setup(ctx, deviceToken)
	if err != nil || !ok {
		return ok, err
	}
	m.mu.Lock()
	displaced := m.engines[sessionID]
	m.engines[sessionID] = eng
	m.mu.Unlock()
	// A concurrent Setup for the same session can store an engine between
	// our delete and this store; it loses and must not keep a live feed.
	if displaced != nil {
		displaced.Teardown(ctx)
	}
	return true, nil
}

// Get returns the session's engine, if one is running.
func (m *Manager) Get(sessionID string) (*Engine, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.engines[sessionID]
	return e, ok
}

// Teardown destroys the session's engine. Idempotent.
func (m *Manager) Teardown(ctx context.Context, sessionID string) {
	m.mu.Lock()
	eng, ok := m.engines[sessionID]
	delete(m.engines, sessionID)
	m.mu.Unlock()
	if ok {
		eng.Teardown(ctx)
	}
}
