package queue

import (
	"context"

	"github.com/google/uuid"
)

type Broker interface {
	Publish(ctx context.Context, queueName string, message []byte) error
	Subscribe(ctx context.Context, queueName string, handler MessageHandler) error
	Close() error
}

type MessageHandler func(ctx context.Context, message []byte) error

const (
	QueueStatusNotify    = "order-status-notify"
	QueueStatusNotifyDLQ = "order-status-notify-dlq"
)

// StatusNotification asks the notifier to push one order's status to its
// source platform. Published inside the request path, consumed by the
// worker, so a slow integration never blocks an order transition.
type StatusNotification struct {
	StoreID      uuid.UUID `json:"store_id"`
	OrderID      uuid.UUID `json:"order_id"`
	ExternalID   string    `json:"external_id"`
	DisplayID    string    `json:"display_id"`
	Source       string    `json:"source"`
	Status       string    `json:"status"`
	DeliveryType string    `json:"delivery_type"`
	CancelReason string    `json:"cancel_reason,omitempty"`
}
