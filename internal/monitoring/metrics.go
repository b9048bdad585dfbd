package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QuoteMutationsTotal counts lifecycle writes by operation
	// (respond, reject, customer_reject, accept_and_pay, upload_document, delete).
	QuoteMutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quote_mutations_total",
		Help: "Quote lifecycle mutations by operation",
	}, []string{"operation"})

	// NotificationsCreatedTotal counts notification records written, by type.
	NotificationsCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_created_total",
		Help: "Notification records created by type",
	}, []string{"type"})

	// AlertsSurfacedTotal counts alerts actually rendered, by delivery tier.
	AlertsSurfacedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alerts_surfaced_total",
		Help: "Alerts rendered to users by delivery tier",
	}, []string{"tier"})

	// AlertsSuppressedTotal counts dedup rejections by reason
	// (warmup, seen, low_water, stale, read, untriggered).
	AlertsSuppressedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alerts_suppressed_total",
		Help: "Feed events suppressed by the dedup tracker, by reason",
	}, []string{"reason"})

	// FeedResubscribesTotal counts live-feed reattachments after transport errors.
	FeedResubscribesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feed_resubscribes_total",
		Help: "Change-feed resubscriptions after transport errors",
	})
)
