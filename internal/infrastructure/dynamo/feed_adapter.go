package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/quote-api-nosql/internal/domain"
	"github.com/quote-api-nosql/internal/infrastructure/feed"
)

// FeedAdapter exposes the DynamoDB repositories as a feed snapshot and poll
// backend. The live Redis source uses Snapshot to build the warm-up batch of
// every subscription; the polling source uses Since to pick up records
// created while no Pub/Sub connection was available.
type FeedAdapter struct {
	quotes *QuoteRepo
	notifs *NotificationRepo
}

func NewFeedAdapter(quotes *QuoteRepo, notifs *NotificationRepo) *FeedAdapter {
	return &FeedAdapter{quotes: quotes, notifs: notifs}
}

// Snapshot returns the query's current result set as added events, newest
// first.
func (a *FeedAdapter) Snapshot(ctx context.Context, q feed.Query) ([]feed.Event, error) {
	switch q.Collection {
	case feed.CollectionQuotes:
		return a.snapshotQuotes(ctx, q)
	case feed.CollectionNotifications:
		return a.snapshotNotifications(ctx, q)
	default:
		return nil, fmt.Errorf("feed snapshot: unsupported collection %q", q.Collection)
	}
}

// Since returns notifications created strictly after the watermark, oldest
// first. Only the notifications collection is pollable; quote feeds always
// ride the live source.
func (a *FeedAdapter) Since(ctx context.Context, q feed.Query, after time.Time) ([]feed.Event, error) {
	if q.Collection != feed.CollectionNotifications {
		return nil, fmt.Errorf("feed poll: unsupported collection %q", q.Collection)
	}
	notifs, err := a.notifs.ListSince(ctx, q.UserID, after)
	if err != nil {
		return nil, err
	}
	events := make([]feed.Event, 0, len(notifs))
	for i := range notifs {
		n := &notifs[i]
		record, err := feed.MarshalRecord(n)
		if err != nil {
			return nil, err
		}
		events = append(events, feed.Event{
			Type:       feed.EventAdded,
			Collection: feed.CollectionNotifications,
			ID:         n.NotificationID,
			UserID:     n.UserID,
			Record:     record,
			Timestamp:  n.CreatedAt,
		})
	}
	return events, nil
}

func (a *FeedAdapter) snapshotQuotes(ctx context.Context, q feed.Query) ([]feed.Event, error) {
	var (
		quotes []domain.Quote
		err    error
	)
	if q.UserID == "" {
		quotes, err = a.quotes.ListAll(ctx)
	} else {
		quotes, err = a.quotes.ListByUser(ctx, q.UserID)
	}
	if err != nil {
		return nil, err
	}
	events := make([]feed.Event, 0, len(quotes))
	for i := range quotes {
		qt := &quotes[i]
		record, err := feed.MarshalRecord(qt)
		if err != nil {
			return nil, err
		}
		events = append(events, feed.Event{
			Type:       feed.EventAdded,
			Collection: feed.CollectionQuotes,
			ID:         qt.QuoteID,
			UserID:     qt.UserID,
			Record:     record,
			Timestamp:  qt.CreatedAt,
		})
	}
	return events, nil
}

func (a *FeedAdapter) snapshotNotifications(ctx context.Context, q feed.Query) ([]feed.Event, error) {
	if q.UserID == "" {
		return nil, fmt.Errorf("feed snapshot: notifications require an owner")
	}
	notifs, err := a.notifs.ListByUser(ctx, q.UserID)
	if err != nil {
		return nil, err
	}
	events := make([]feed.Event, 0, len(notifs))
	for i := range notifs {
		n := &notifs[i]
		record, err := feed.MarshalRecord(n)
		if err != nil {
			return nil, err
		}
		events = append(events, feed.Event{
			Type:       feed.EventAdded,
			Collection: feed.CollectionNotifications,
			ID:         n.NotificationID,
			UserID:     n.UserID,
			Record:     record,
			Timestamp:  n.CreatedAt,
		})
	}
	return events, nil
}
