package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fornalha-pos/api/internal/database"
	"github.com/fornalha-pos/api/internal/integration"
	"github.com/fornalha-pos/api/internal/metrics"
)

// StoreLister reads the stores the sync loop should poll.
type StoreLister interface {
	ListOpenStores(ctx context.Context) ([]database.Store, error)
	GetStore(ctx context.Context, id uuid.UUID) (database.Store, error)
}

// Ingester is the service entry point the worker feeds fetched orders into.
type Ingester interface {
	ProcessStandardOrder(ctx context.Context, storeID uuid.UUID, o integration.StandardOrder) (database.Order, bool, error)
}

// AdapterFactory builds the configured adapters for one store. Split out so
// tests can inject fakes without HTTP.
type AdapterFactory func(storeID uuid.UUID, raw []byte, log *zap.SugaredLogger) []integration.Adapter

// SyncWorker polls every open store's platforms on a fixed interval and
// ingests whatever they return. Failures are isolated per order and per
// store so one broken integration never stalls the rest.
type SyncWorker struct {
	stores   StoreLister
	ingester Ingester
	adapters AdapterFactory
	interval time.Duration
	log      *zap.SugaredLogger
}

func NewSyncWorker(stores StoreLister, ingester Ingester, interval time.Duration, log *zap.SugaredLogger) *SyncWorker {
	return &SyncWorker{
		stores:   stores,
		ingester: ingester,
		adapters: integration.FromConfig,
		interval: interval,
		log:      log,
	}
}

// Run blocks until ctx is cancelled. The first sync fires immediately.
func (w *SyncWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.SyncAll(ctx)
	for {
		select {
		case <-ctx.Done():
			w.log.Infow("sync worker stopping")
			return
		case <-ticker.C:
			w.SyncAll(ctx)
		}
	}
}

// SyncAll runs one polling pass over every open store.
func (w *SyncWorker) SyncAll(ctx context.Context) {
	start := time.Now()
	stores, err := w.stores.ListOpenStores(ctx)
	if err != nil {
		w.log.Errorw("list open stores", "err", err)
		return
	}
	for _, store := range stores {
		w.syncStore(ctx, store)
	}
	metrics.SyncDuration.Observe(time.Since(start).Seconds())
}

func (w *SyncWorker) syncStore(ctx context.Context, store database.Store) {
	for _, adapter := range w.adapters(store.ID, store.IntegrationsConfig, w.log) {
		orders, err := adapter.FetchOrders(ctx)
		if err != nil {
			metrics.SyncFailures.WithLabelValues(adapter.Source()).Inc()
			w.log.Errorw("fetch orders",
				"store_id", store.ID, "source", adapter.Source(), "err", err)
			continue
		}
		for _, order := range orders {
			if _, _, err := w.ingester.ProcessStandardOrder(ctx, store.ID, order); err != nil {
				metrics.SyncFailures.WithLabelValues(adapter.Source()).Inc()
				w.log.Errorw("ingest order",
					"store_id", store.ID, "source", adapter.Source(),
					"external_id", order.ExternalID, "err", err)
			}
		}
	}
}
