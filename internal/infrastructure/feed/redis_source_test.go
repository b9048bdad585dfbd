package feed

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubSnapshotter struct {
	events []Event
}

func (s *stubSnapshotter) Snapshot(context.Context, Query) ([]Event, error) {
	return s.events, nil
}

func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func collectBatches(buffer int) (Handler, <-chan Batch) {
	ch := make(chan Batch, buffer)
	return func(b Batch) { ch <- b }, ch
}

func waitBatch(t *testing.T, ch <-chan Batch) Batch {
	t.Helper()
	select {
	case b := <-ch:
		return b
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for a feed batch")
		return Batch{}
	}
}

func assertNoBatch(t *testing.T, ch <-chan Batch) {
	t.Helper()
	select {
	case b := <-ch:
		t.Fatalf("unexpected batch with %d events", len(b.Events))
	case <-time.After(200 * time.Millisecond):
	}
}

func TestRedisSource_SnapshotDeliveredFirst(t *testing.T) {
	rdb := testRedis(t)
	snap := &stubSnapshotter{events: []Event{
		{Type: EventAdded, Collection: CollectionNotifications, ID: "n2", UserID: "u1", Timestamp: time.Now()},
		{Type: EventAdded, Collection: CollectionNotifications, ID: "n1", UserID: "u1", Timestamp: time.Now().Add(-time.Minute)},
	}}
	src := NewRedisSource(rdb, snap, zap.NewNop(), time.Second)

	h, batches := collectBatches(8)
	sub, err := src.Subscribe(context.Background(), Query{Collection: CollectionNotifications, UserID: "u1"}, h)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	first := waitBatch(t, batches)
	assert.True(t, first.Initial, "the first batch is the warm-up snapshot")
	require.Len(t, first.Events, 2)
	assert.Equal(t, "n2", first.Events[0].ID)
}

func TestRedisSource_LiveEventDelivered(t *testing.T) {
	rdb := testRedis(t)
	src := NewRedisSource(rdb, &stubSnapshotter{}, zap.NewNop(), time.Second)

	h, batches := collectBatches(8)
	sub, err := src.Subscribe(context.Background(), Query{Collection: CollectionNotifications, UserID: "u1"}, h)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	first := waitBatch(t, batches)
	require.True(t, first.Initial)

	pub := NewPublisher(rdb, zap.NewNop())
	pub.Publish(context.Background(), Event{
		Type:       EventAdded,
		Collection: CollectionNotifications,
		ID:         "n1",
		UserID:     "u1",
		Record:     json.RawMessage(`{"id":"n1"}`),
		Timestamp:  time.Now(),
	})

	live := waitBatch(t, batches)
	assert.False(t, live.Initial)
	require.Len(t, live.Events, 1)
	assert.Equal(t, "n1", live.Events[0].ID)
	assert.Equal(t, EventAdded, live.Events[0].Type)
}

func TestRedisSource_QueryFiltersOtherUsers(t *testing.T) {
	rdb := testRedis(t)
	src := NewRedisSource(rdb, &stubSnapshotter{}, zap.NewNop(), time.Second)

	h, batches := collectBatches(8)
	sub, err := src.Subscribe(context.Background(), Query{Collection: CollectionNotifications, UserID: "u1"}, h)
	require.NoError(t, err)
	defer sub.Unsubscribe()
	waitBatch(t, batches) // snapshot

	pub := NewPublisher(rdb, zap.NewNop())
	pub.Publish(context.Background(), Event{
		Type: EventAdded, Collection: CollectionNotifications, ID: "other", UserID: "u2", Timestamp: time.Now(),
	})
	pub.Publish(context.Background(), Event{
		Type: EventAdded, Collection: CollectionNotifications, ID: "mine", UserID: "u1", Timestamp: time.Now(),
	})

	b := waitBatch(t, batches)
	require.Len(t, b.Events, 1)
	assert.Equal(t, "mine", b.Events[0].ID, "events for other owners never reach the handler")
}

func TestRedisSource_EmptyUserIDMatchesAll(t *testing.T) {
	rdb := testRedis(t)
	src := NewRedisSource(rdb, &stubSnapshotter{}, zap.NewNop(), time.Second)

	h, batches := collectBatches(8)
	sub, err := src.Subscribe(context.Background(), Query{Collection: CollectionQuotes}, h)
	require.NoError(t, err)
	defer sub.Unsubscribe()
	waitBatch(t, batches)

	pub := NewPublisher(rdb, zap.NewNop())
	pub.Publish(context.Background(), Event{
		Type: EventModified, Collection: CollectionQuotes, ID: "q1", UserID: "u7", Timestamp: time.Now(),
	})

	b := waitBatch(t, batches)
	require.Len(t, b.Events, 1)
	assert.Equal(t, "q1", b.Events[0].ID)
}

func TestRedisSource_UnsubscribeStopsDelivery(t *testing.T) {
	rdb := testRedis(t)
	src := NewRedisSource(rdb, &stubSnapshotter{}, zap.NewNop(), time.Second)

	h, batches := collectBatches(8)
	sub, err := src.Subscribe(context.Background(), Query{Collection: CollectionNotifications, UserID: "u1"}, h)
	require.NoError(t, err)
	waitBatch(t, batches)

	sub.Unsubscribe()
	sub.Unsubscribe() // idempotent

	pub := NewPublisher(rdb, zap.NewNop())
	pub.Publish(context.Background(), Event{
		Type: EventAdded, Collection: CollectionNotifications, ID: "late", UserID: "u1", Timestamp: time.Now(),
	})
	assertNoBatch(t, batches)
}

func TestQueryMatches(t *testing.T) {
	q := Query{Collection: CollectionNotifications, UserID: "u1"}
	assert.True(t, q.Matches(Event{Collection: CollectionNotifications, UserID: "u1"}))
	assert.False(t, q.Matches(Event{Collection: CollectionQuotes, UserID: "u1"}))
	assert.False(t, q.Matches(Event{Collection: CollectionNotifications, UserID: "u2"}))

	all := Query{Collection: CollectionNotifications}
	assert.True(t, all.Matches(Event{Collection: CollectionNotifications, UserID: "anyone"}))
}
