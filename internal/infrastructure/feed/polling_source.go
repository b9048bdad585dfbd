package feed

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const defaultPollInterval = 30 * time.Second

// PollingSource is the fallback for environments without live-feed support.
// It asks the store for records newer than its watermark on a fixed
// interval. Because every response is already filtered to "new since last
// poll", batches are never marked Initial — consumers need no warm-up
// phase. The watermark starts at subscribe time, so backlog is never
// replayed.
type PollingSource struct {
	poller   Poller
	log      *zap.Logger
	interval time.Duration
	now      func() time.Time
}

func NewPollingSource(poller Poller, log *zap.Logger, interval time.Duration) *PollingSource {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &PollingSource{poller: poller, log: log, interval: interval, now: time.Now}
}

type pollSubscription struct {
	cancel context.CancelFunc
	closed atomic.Bool
	once   sync.Once
}

func (s *pollSubscription) Unsubscribe() {
	s.once.Do(func() {
		s.closed.Store(true)
		s.cancel()
	})
}

func (s *PollingSource) Subscribe(ctx context.Context, q Query, h Handler) (Subscription, error) {
	subCtx, cancel := context.WithCancel(ctx)
	sub := &pollSubscription{cancel: cancel}

	go func() {
		watermark := s.now()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-subCtx.Done():
				return
			case <-ticker.C:
			}
			events, err := s.poller.Since(subCtx, q, watermark)
			if err != nil {
				if subCtx.Err() != nil {
					return
				}
				s.log.Warn("feed: poll failed", zap.String("collection", q.Collection), zap.Error(err))
				continue
			}
			if len(events) == 0 {
				continue
			}
			for _, e := range events {
				if e.Timestamp.After(watermark) {
					watermark = e.Timestamp
				}
			}
			if sub.closed.Load() {
				return
			}
			h(Batch{Events: events})
		}
	}()

	return sub, nil
}
