package notify

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/quote-api-nosql/internal/monitoring"
)

// Alert is one user-facing notification render.
type Alert struct {
	ID      string            `json:"id"` // notification id; render contract is at-most-once per ID
	Title   string            `json:"title"`
	Body    string            `json:"body"`
	QuoteID string            `json:"quote_id,omitempty"`
	Route   string            `json:"route"` // where an alert click navigates
	Data    map[string]string `json:"data,omitempty"`
}

// Alerter is one delivery tier. Tiers are tried in order: background agent
// (works with no page open), foreground alert, in-app toast. Available is a
// capability check; Show may still fail, which moves rendering down a tier.
type Alerter interface {
	Name() string
	Available(ctx context.Context) bool
	Show(ctx context.Context, a Alert) error
	Close(ctx context.Context, alertID string) error
}

// PushSender is what the agent tier needs from the push service.
type PushSender interface {
	Send(ctx context.Context, token, title, body string, data map[string]string) error
}

// agentAlerter renders through the push service to the session's registered
// background agent. Delivery works even when no page is focused.
type agentAlerter struct {
	sender PushSender
	token  string
}

func NewAgentAlerter(sender PushSender, token string) Alerter {
	return &agentAlerter{sender: sender, token: token}
}

func (a *agentAlerter) Name() string { return "agent" }

func (a *agentAlerter) Available(context.Context) bool {
	return a.sender != nil && a.token != ""
}

func (a *agentAlerter) Show(ctx context.Context, al Alert) error {
	data := map[string]string{"notification_id": al.ID, "route": al.Route}
	for k, v := range al.Data {
		data[k] = v
	}
	if al.QuoteID != "" {
		data["quote_id"] = al.QuoteID
	}
	return a.sender.Send(ctx, a.token, al.Title, al.Body, data)
}

// Close is a no-op: once handed to the push service the alert lives on the
// user's device, out of our reach.
func (a *agentAlerter) Close(context.Context, string) error { return nil }

// ForegroundAlerter buffers alerts for a connected page to drain (the
// transport layer streams Events to the client). Show fails when nothing is
// draining, pushing delivery down to the toast tier.
type ForegroundAlerter struct {
	mu     sync.Mutex
	ch     chan Alert
	closed bool
}

func NewForegroundAlerter(buffer int) *ForegroundAlerter {
	if buffer <= 0 {
		buffer = 16
	}
	return &ForegroundAlerter{ch: make(chan Alert, buffer)}
}

func (f *ForegroundAlerter) Name() string { return "foreground" }

func (f *ForegroundAlerter) Available(context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.closed
}

func (f *ForegroundAlerter) Show(_ context.Context, a Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return fmt.Errorf("foreground channel closed")
	}
	select {
	case f.ch <- a:
		return nil
	default:
		return fmt.Errorf("no foreground listener")
	}
}

func (f *ForegroundAlerter) Close(_ context.Context, _ string) error { return nil }

// Events is drained by the transport layer's alert stream.
func (f *ForegroundAlerter) Events() <-chan Alert { return f.ch }

// Shutdown releases any stream reader. Safe to call twice.
func (f *ForegroundAlerter) Shutdown() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.ch)
	}
}

// ToastAlerter is the last-resort tier: an in-memory toast list the client
// polls. It never fails, so every surfaced event renders somewhere.
type ToastAlerter struct {
	mu     sync.Mutex
	toasts []Alert
}

func NewToastAlerter() *ToastAlerter { return &ToastAlerter{} }

func (t *ToastAlerter) Name() string                   { return "toast" }
func (t *ToastAlerter) Available(context.Context) bool { return true }

func (t *ToastAlerter) Show(_ context.Context, a Alert) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.toasts = append(t.toasts, a)
	return nil
}

func (t *ToastAlerter) Close(_ context.Context, alertID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	kept := t.toasts[:0]
	for _, a := range t.toasts {
		if a.ID != alertID {
			kept = append(kept, a)
		}
	}
	t.toasts = kept
	return nil
}

// Drain returns and clears the pending toasts.
func (t *ToastAlerter) Drain() []Alert {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.toasts
	t.toasts = nil
	return out
}

// render walks the tiers and returns the name of the tier that displayed
// the alert. The toast tier cannot fail, so an empty result only happens
// with an empty tier list.
func render(ctx context.Context, tiers []Alerter, a Alert, log *zap.Logger) string {
	for _, tier := range tiers {
		if !tier.Available(ctx) {
			continue
		}
		if err := tier.Show(ctx, a); err != nil {
			log.Debug("alert tier failed, falling back",
				zap.String("tier", tier.Name()),
				zap.String("alert", a.ID),
				zap.Error(err))
			continue
		}
		monitoring.AlertsSurfacedTotal.WithLabelValues(tier.Name()).Inc()
		return tier.Name()
	}
	return ""
}
