// Package metrics exposes checksumd's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TicksRun = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checksumd_ticks_total",
		Help: "Audit ticks run to completion.",
	})

	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "checksumd_tick_duration_seconds",
		Help:    "Wall-clock duration of one plan/enqueue/drain/notify tick.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})

	ItemsEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checksumd_items_enqueued_total",
		Help: "Work items enqueued by the rate planner.",
	})

	ItemsValidated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checksumd_items_validated_total",
		Help: "Items whose checksum verified successfully.",
	})

	ItemsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checksumd_items_failed_total",
		Help: "Items released for retry after a failed validation.",
	})

	UnresolvedMismatches = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "checksumd_unresolved_mismatches",
		Help: "Mismatches currently unresolved in the ledger.",
	})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "checksumd_queue_depth",
		Help: "Visible items in the work queue.",
	})
)
