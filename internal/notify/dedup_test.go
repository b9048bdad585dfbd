package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestTracker returns a tracker with a frozen clock the test can move.
func newTestTracker(window time.Duration) (*DedupTracker, *time.Time) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := base
	tr := NewDedupTracker(window)
	tr.now = func() time.Time { return now }
	tr.Reset() // re-seed lowWater from the frozen clock
	return tr, &now
}

func item(id string, ts time.Time) FeedItem {
	return FeedItem{ID: id, Timestamp: ts, Triggered: true}
}

func TestDedup_InitialBatchAbsorbed(t *testing.T) {
	tr, now := newTestTracker(0)

	backlog := []FeedItem{
		item("n1", now.Add(-time.Minute)),
		item("n2", now.Add(-time.Second)),
	}
	surfaced := tr.Filter(backlog, true)
	assert.Empty(t, surfaced, "backlog must never alert")

	// Replaying the same ids live must stay silent.
	surfaced = tr.Filter(backlog, false)
	assert.Empty(t, surfaced)
}

func TestDedup_FirstPollBatchSurfaces(t *testing.T) {
	tr, now := newTestTracker(0)

	// The polling fallback never sends an initial batch: its first delivery
	// is already filtered to new-since-subscribe and must render.
	*now = now.Add(time.Second)
	surfaced := tr.Filter([]FeedItem{item("n1", *now)}, false)
	require.Len(t, surfaced, 1)
	assert.Equal(t, "n1", surfaced[0].ID)

	// Replaying the same id stays silent.
	assert.Empty(t, tr.Filter([]FeedItem{item("n1", *now)}, false))
}

func TestDedup_AtMostOncePerID(t *testing.T) {
	tr, now := newTestTracker(0)
	tr.Filter(nil, true)

	*now = now.Add(time.Second)
	it := item("n1", *now)
	first := tr.Filter([]FeedItem{it}, false)
	require.Len(t, first, 1)

	again := tr.Filter([]FeedItem{it}, false)
	assert.Empty(t, again, "same id must never surface twice")
}

func TestDedup_LowWaterMark(t *testing.T) {
	tr, now := newTestTracker(0)
	base := *now
	tr.Filter(nil, true)

	n1 := item("n1", base.Add(10*time.Second))
	n2 := item("n2", base.Add(20*time.Second))
	n3 := item("n3", base.Add(15*time.Second))
	n4 := item("n4", base.Add(25*time.Second))

	*now = base.Add(30 * time.Second)
	require.Len(t, tr.Filter([]FeedItem{n1}, false), 1)
	require.Len(t, tr.Filter([]FeedItem{n2}, false), 1)

	// n3 is older than the watermark set by n2: suppressed.
	assert.Empty(t, tr.Filter([]FeedItem{n3}, false))

	// n4 is newer: surfaced.
	require.Len(t, tr.Filter([]FeedItem{n4}, false), 1)
}

func TestDedup_StaleEventsSuppressed(t *testing.T) {
	tr, now := newTestTracker(5 * time.Minute)
	base := *now
	tr.Filter(nil, true)

	// Event stamped after the subscribe-time watermark but older than the
	// freshness window at arrival.
	*now = base.Add(10 * time.Minute)
	old := item("n1", base.Add(time.Second))
	assert.Empty(t, tr.Filter([]FeedItem{old}, false))

	fresh := item("n2", now.Add(-time.Minute))
	require.Len(t, tr.Filter([]FeedItem{fresh}, false), 1)
}

func TestDedup_ReadAndUntriggeredSuppressed(t *testing.T) {
	tr, now := newTestTracker(0)
	tr.Filter(nil, true)

	*now = now.Add(time.Second)
	read := FeedItem{ID: "n1", Timestamp: *now, Read: true, Triggered: true}
	assert.Empty(t, tr.Filter([]FeedItem{read}, false))

	*now = now.Add(time.Second)
	passive := FeedItem{ID: "n2", Timestamp: *now, Triggered: false}
	assert.Empty(t, tr.Filter([]FeedItem{passive}, false))
}

func TestDedup_ZeroTimestampTreatedAsNow(t *testing.T) {
	tr, now := newTestTracker(0)
	tr.Filter(nil, true)

	*now = now.Add(time.Second)
	surfaced := tr.Filter([]FeedItem{{ID: "n1", Triggered: true}}, false)
	require.Len(t, surfaced, 1, "missing timestamp must fail open, not spam-reject")

	// But the same id still only surfaces once.
	assert.Empty(t, tr.Filter([]FeedItem{{ID: "n1", Triggered: true}}, false))
}

func TestDedup_ResetReturnsToWarmup(t *testing.T) {
	tr, now := newTestTracker(0)
	tr.Filter(nil, true)

	*now = now.Add(time.Second)
	require.Len(t, tr.Filter([]FeedItem{item("n1", *now)}, false), 1)

	tr.Reset()

	// First batch after reset is absorbed again.
	*now = now.Add(time.Second)
	assert.Empty(t, tr.Filter([]FeedItem{item("n2", *now)}, false))
}
