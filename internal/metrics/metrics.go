// Package metrics exposes the platform's Prometheus collectors. Everything
// is registered on the default registry and served from /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_orders_ingested_total",
		Help: "Orders accepted into the platform, by source.",
	}, []string{"source"})

	OrdersDeduplicated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_orders_deduplicated_total",
		Help: "Incoming orders dropped because they were already persisted.",
	}, []string{"source"})

	OrdersCancelled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_orders_cancelled_total",
		Help: "Orders cancelled, by source.",
	}, []string{"source"})

	SyncFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_sync_failures_total",
		Help: "Sync loop failures, by source.",
	}, []string{"source"})

	StatusPushes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_status_pushes_total",
		Help: "Outbound status notifications, by source and result.",
	}, []string{"source", "result"})

	SyncDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pos_sync_tick_seconds",
		Help:    "Wall time of one full sync tick across all stores.",
		Buckets: prometheus.DefBuckets,
	})
)
