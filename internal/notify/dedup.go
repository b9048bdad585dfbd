// Package notify implements per-session notification delivery: dedup of
// change-feed events, tiered alert rendering and an engine that wires a
// user's feed subscription to the alerters. One engine per authenticated
// session; nothing here is shared across sessions.
package notify

import (
	"sync"
	"time"

	"github.com/quote-api-nosql/internal/monitoring"
)

// DefaultFreshnessWindow bounds how old an event may be at arrival and
// still produce an alert. Guards against clock skew and late historical
// writes being misread as new.
const DefaultFreshnessWindow = 5 * time.Minute

// FeedItem is the dedup-relevant view of a notification event.
type FeedItem struct {
	ID        string
	Timestamp time.Time
	Read      bool
	Triggered bool
}

// DedupTracker decides which feed events are surfaced as alerts and
// guarantees any id is surfaced at most once per session.
//
// A live subscription delivers the store's existing backlog as its first,
// initial-flagged batch; the tracker absorbs initial batches (everything
// marked seen, low-water mark raised, nothing surfaced) so reconnects and
// page loads never re-alert history. Polling batches are never initial:
// each poll response carries only records newer than the last poll, so
// they go straight through the live checks.
type DedupTracker struct {
	mu       sync.Mutex
	seen     map[string]struct{}
	lowWater time.Time
	window   time.Duration
	now      func() time.Time
}

func NewDedupTracker(window time.Duration) *DedupTracker {
	if window <= 0 {
		window = DefaultFreshnessWindow
	}
	t := &DedupTracker{window: window, now: time.Now}
	t.reset()
	return t
}

// Reset drops all seen state and re-seeds the low-water mark. Called on
// teardown.
func (t *DedupTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reset()
}

func (t *DedupTracker) reset() {
	t.seen = make(map[string]struct{})
	t.lowWater = t.now()
}

// Filter returns the items that should be surfaced, recording every
// decision. An initial batch is absorbed and surfaces nothing.
func (t *DedupTracker) Filter(items []FeedItem, initial bool) []FeedItem {
	t.mu.Lock()
	defer t.mu.Unlock()

	if initial {
		t.absorb(items)
		return nil
	}

	var surfaced []FeedItem
	for _, it := range items {
		ts := t.normalize(it.Timestamp)
		if reason := t.rejectReason(it, ts); reason != "" {
			t.seen[it.ID] = struct{}{}
			monitoring.AlertsSuppressedTotal.WithLabelValues(reason).Inc()
			continue
		}
		t.seen[it.ID] = struct{}{}
		if ts.After(t.lowWater) {
			t.lowWater = ts
		}
		surfaced = append(surfaced, it)
	}
	return surfaced
}

func (t *DedupTracker) absorb(items []FeedItem) {
	for _, it := range items {
		t.seen[it.ID] = struct{}{}
		if ts := t.normalize(it.Timestamp); ts.After(t.lowWater) {
			t.lowWater = ts
		}
		monitoring.AlertsSuppressedTotal.WithLabelValues("warmup").Inc()
	}
}

func (t *DedupTracker) rejectReason(it FeedItem, ts time.Time) string {
	switch {
	case t.isSeen(it.ID):
		return "seen"
	case !ts.After(t.lowWater):
		return "low_water"
	case t.now().Sub(ts) > t.window:
		return "stale"
	case it.Read:
		return "read"
	case !it.Triggered:
		return "untriggered"
	default:
		return ""
	}
}

func (t *DedupTracker) isSeen(id string) bool {
	_, ok := t.seen[id]
	return ok
}

// normalize treats missing timestamps as "now": failing open keeps dedup
// correct instead of spamming alerts for records we cannot order.
func (t *DedupTracker) normalize(ts time.Time) time.Time {
	if ts.IsZero() {
		return t.now()
	}
	return ts
}
