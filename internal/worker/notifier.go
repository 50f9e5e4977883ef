package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/fornalha-pos/api/internal/enum"
	"github.com/fornalha-pos/api/internal/integration"
	"github.com/fornalha-pos/api/internal/metrics"
	"github.com/fornalha-pos/api/internal/queue"
)

// Notifier consumes queued status notifications and pushes each one to the
// order's source platform. Errors bubble back to the broker, which retries
// and eventually dead-letters the message.
type Notifier struct {
	stores   StoreLister
	adapters AdapterFactory
	log      *zap.SugaredLogger
}

func NewNotifier(stores StoreLister, log *zap.SugaredLogger) *Notifier {
	return &Notifier{stores: stores, adapters: integration.FromConfig, log: log}
}

// Start subscribes the notifier on the broker.
func (n *Notifier) Start(ctx context.Context, broker queue.Broker) error {
	return broker.Subscribe(ctx, queue.QueueStatusNotify, n.Handle)
}

// Handle processes one notification message.
func (n *Notifier) Handle(ctx context.Context, message []byte) error {
	var msg queue.StatusNotification
	if err := json.Unmarshal(message, &msg); err != nil {
		// Unparseable messages would fail forever, log and drop.
		n.log.Errorw("bad status notification payload", "err", err)
		return nil
	}

	store, err := n.stores.GetStore(ctx, msg.StoreID)
	if err != nil {
		return fmt.Errorf("load store %s: %w", msg.StoreID, err)
	}
	adapter, ok := integration.BySource(n.adapters(store.ID, store.IntegrationsConfig, n.log), msg.Source)
	if !ok {
		// Source has no push channel (counter sales, disabled integration).
		return nil
	}

	req := integration.PushRequest{
		ExternalID:   msg.ExternalID,
		DisplayID:    msg.DisplayID,
		Status:       msg.Status,
		DeliveryType: msg.DeliveryType,
	}
	if msg.Status == enum.OrderStatusCancelled {
		err = adapter.RequestCancellation(ctx, req, msg.CancelReason)
	} else {
		err = adapter.PushStatus(ctx, req)
	}
	if err != nil {
		metrics.StatusPushes.WithLabelValues(msg.Source, "error").Inc()
		return err
	}
	metrics.StatusPushes.WithLabelValues(msg.Source, "ok").Inc()
	n.log.Infow("status pushed",
		"store_id", msg.StoreID, "order_id", msg.OrderID,
		"source", msg.Source, "status", msg.Status)
	return nil
}
