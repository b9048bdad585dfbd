package feed

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/quote-api-nosql/internal/monitoring"
)

const defaultBackoff = 15 * time.Second

// RedisSource is the live feed implementation: the current query result set
// comes from the store (Snapshotter), subsequent changes arrive over Redis
// Pub/Sub. A transport error never reaches the consumer — the source logs
// it, waits out the backoff and attaches again, replaying a fresh snapshot
// so dependent dedup state restarts its warm-up.
type RedisSource struct {
	rdb     *redis.Client
	snap    Snapshotter
	log     *zap.Logger
	backoff time.Duration
}

func NewRedisSource(rdb *redis.Client, snap Snapshotter, log *zap.Logger, backoff time.Duration) *RedisSource {
	if backoff <= 0 {
		backoff = defaultBackoff
	}
	return &RedisSource{rdb: rdb, snap: snap, log: log, backoff: backoff}
}

type redisSubscription struct {
	cancel context.CancelFunc
	closed atomic.Bool
	once   sync.Once
}

func (s *redisSubscription) Unsubscribe() {
	s.once.Do(func() {
		s.closed.Store(true)
		s.cancel()
	})
}

func (s *RedisSource) Subscribe(ctx context.Context, q Query, h Handler) (Subscription, error) {
	subCtx, cancel := context.WithCancel(ctx)
	sub := &redisSubscription{cancel: cancel}

	// The closed check makes Unsubscribe a hard cutoff: an in-flight event
	// that loses the race is dropped, not delivered.
	deliver := func(b Batch) {
		if sub.closed.Load() {
			return
		}
		h(b)
	}

	go s.run(subCtx, q, deliver)
	return sub, nil
}

// run owns the attach/deliver/reattach loop. All deliveries happen on this
// goroutine, so a handler always runs to completion before the next batch.
func (s *RedisSource) run(ctx context.Context, q Query, deliver func(Batch)) {
	first := true
	for {
		if !first {
			monitoring.FeedResubscribesTotal.Inc()
			if !sleepCtx(ctx, s.backoff) {
				return
			}
		}
		first = false

		// Attach the pub/sub channel before reading the snapshot so no
		// write can fall between the two.
		ps := s.rdb.Subscribe(ctx, channelFor(q.Collection))
		if _, err := ps.Receive(ctx); err != nil {
			_ = ps.Close()
			if ctx.Err() != nil {
				return
			}
			s.log.Warn("feed: attach failed", zap.String("collection", q.Collection), zap.Error(err))
			continue
		}

		snapshot, err := s.snap.Snapshot(ctx, q)
		if err != nil {
			_ = ps.Close()
			if ctx.Err() != nil {
				return
			}
			s.log.Warn("feed: snapshot failed", zap.String("collection", q.Collection), zap.Error(err))
			continue
		}
		deliver(Batch{Events: snapshot, Initial: true})

		interrupted := s.consume(ctx, q, ps.Channel(), deliver)
		_ = ps.Close()
		if !interrupted {
			return // context cancelled / unsubscribed
		}
		s.log.Warn("feed: subscription interrupted, resubscribing",
			zap.String("collection", q.Collection),
			zap.Duration("backoff", s.backoff))
	}
}

// consume reads the live channel until it closes. Returns true when the
// channel closed unexpectedly (transport error), false on cancellation.
func (s *RedisSource) consume(ctx context.Context, q Query, ch <-chan *redis.Message, deliver func(Batch)) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case msg, ok := <-ch:
			if !ok {
				return ctx.Err() == nil
			}
			var e Event
			if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
				s.log.Warn("feed: bad event payload", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			if !q.Matches(e) {
				continue
			}
			deliver(Batch{Events: []Event{e}})
		}
	}
}

// sleepCtx waits d, returning false when ctx ends first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
