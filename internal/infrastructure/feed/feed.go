// Package feed provides the realtime change feed over the document store:
// an ordered stream of added/modified/removed record events per query, with
// the full current result set delivered as the first batch of every
// subscription. Two implementations exist — a Redis Pub/Sub live source and
// a polling fallback — behind the same Source interface so consumers never
// care which one they got.
package feed

import (
	"context"
	"encoding/json"
	"time"
)

// Collections carried on the feed.
const (
	CollectionQuotes        = "quotes"
	CollectionNotifications = "notifications"
	CollectionUsers         = "users"
)

type EventType string

const (
	EventAdded    EventType = "added"
	EventModified EventType = "modified"
	EventRemoved  EventType = "removed"
)

// Event is one record change. Record is the full document as JSON;
// Timestamp is the store-assigned created_at for added events and the write
// time for modified/removed ones.
type Event struct {
	Type       EventType       `json:"type"`
	Collection string          `json:"collection"`
	ID         string          `json:"id"`
	UserID     string          `json:"user_id"`
	Record     json.RawMessage `json:"record,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
}

// Batch is an ordered group of events. Initial marks the first delivery of
// a (re)subscription: the store's existing backlog, not new activity.
type Batch struct {
	Events  []Event
	Initial bool
}

// Handler receives batches. It runs to completion before the next batch is
// delivered; within one subscription batch order follows store-timestamp
// order.
type Handler func(Batch)

// Query selects one collection filtered by owner, ordered by created_at
// descending. An empty UserID matches every record in the collection
// (admin feeds).
type Query struct {
	Collection string
	UserID     string
}

// Matches reports whether an event belongs to the query's result set.
func (q Query) Matches(e Event) bool {
	if e.Collection != q.Collection {
		return false
	}
	return q.UserID == "" || e.UserID == q.UserID
}

// Subscription is a handle on a live feed. Unsubscribe is idempotent; any
// event delivered after Unsubscribe returns is dropped, never handed to the
// handler.
type Subscription interface {
	Unsubscribe()
}

// Source is an ordered event source a session can subscribe to.
type Source interface {
	Subscribe(ctx context.Context, q Query, h Handler) (Subscription, error)
}

// Snapshotter yields the current full result set of a query as added
// events, newest first. Live sources deliver it as the warm-up batch of
// every (re)subscription.
type Snapshotter interface {
	Snapshot(ctx context.Context, q Query) ([]Event, error)
}

// Poller yields events created strictly after the watermark, oldest first.
// Used by the polling fallback source.
type Poller interface {
	Since(ctx context.Context, q Query, after time.Time) ([]Event, error)
}
