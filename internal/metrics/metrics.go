package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	OutboxPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_outbox_published_total",
			Help: "Outbox events published to Kafka, by event type",
		},
		[]string{"event_type"},
	)

	OutboxFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_outbox_publish_failures_total",
			Help: "Outbox publish failures by event type and kind (transient|permanent)",
		},
		[]string{"event_type", "kind"},
	)

	OutboxStaleRecoveredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "catalog_outbox_stale_locks_recovered_total",
			Help: "IN_PROGRESS rows returned to FAILED by the stale-lock sweep",
		},
	)

	PriceSyncTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_price_sync_total",
			Help: "Price sync calls by outcome (applied|duplicate|skipped_out_of_order|rejected)",
		},
		[]string{"outcome"},
	)

	ProjectedEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_projected_events_total",
			Help: "Product events applied to the search projection, by type and result",
		},
		[]string{"event_type", "result"}, // applied|poison|failed
	)
)

func MustRegister(r prometheus.Registerer) {
	r.MustRegister(
		OutboxPublishedTotal,
		OutboxFailuresTotal,
		OutboxStaleRecoveredTotal,
		PriceSyncTotal,
		ProjectedEventsTotal,
	)
}
