package feed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// channelFor maps a collection to its Redis Pub/Sub channel.
func channelFor(collection string) string {
	return "feed:" + collection
}

// Publisher fans record changes out to live subscribers. Repositories call
// Publish after every successful store write; a publish failure is logged
// and swallowed — the store write already succeeded and polling clients
// will still observe it.
type Publisher struct {
	rdb *redis.Client
	log *zap.Logger
}

func NewPublisher(rdb *redis.Client, log *zap.Logger) *Publisher {
	return &Publisher{rdb: rdb, log: log}
}

func (p *Publisher) Publish(ctx context.Context, e Event) {
	if p == nil || p.rdb == nil {
		return
	}
	payload, err := json.Marshal(e)
	if err != nil {
		p.log.Error("feed: marshal event", zap.String("collection", e.Collection), zap.Error(err))
		return
	}
	if err := p.rdb.Publish(ctx, channelFor(e.Collection), payload).Err(); err != nil {
		p.log.Warn("feed: publish failed",
			zap.String("collection", e.Collection),
			zap.String("id", e.ID),
			zap.Error(err))
	}
}

// MarshalRecord encodes a domain record for an Event payload.
func MarshalRecord(v interface{}) (json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal feed record: %w", err)
	}
	return b, nil
}
