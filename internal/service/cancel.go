package service

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/fornalha-pos/api/internal/database"
	"github.com/fornalha-pos/api/internal/enum"
	"github.com/fornalha-pos/api/internal/metrics"
	"github.com/fornalha-pos/api/internal/normalizer"
	"github.com/fornalha-pos/api/internal/stock"
)

type CancelRequest struct {
	StoreID  uuid.UUID
	OrderID  uuid.UUID
	Reason   string
	UserName string

	// NotifySource forwards the cancellation to the order's platform.
	// Cancellations that originated there come back with it off.
	NotifySource bool
}

// CancelOrder voids an order and books its ingredients back into stock.
func (s *Service) CancelOrder(ctx context.Context, req CancelRequest) (database.Order, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return database.Order{}, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck
	c := s.components(tx)

	order, err := c.Store.GetOrder(ctx, database.GetOrderParams{ID: req.OrderID, StoreID: req.StoreID})
	if err != nil {
		return database.Order{}, ErrOrderNotFound
	}
	order, err = s.cancelTx(ctx, c, order, req.Reason, req.UserName)
	if err != nil {
		return database.Order{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return database.Order{}, err
	}

	metrics.OrdersCancelled.WithLabelValues(order.Source).Inc()
	s.log.Infow("order cancelled",
		"store_id", order.StoreID, "order_id", order.ID, "reason", req.Reason, "by", req.UserName)
	s.broadcast(order, "order.cancelled")
	if req.NotifySource {
		s.notify(ctx, order, req.Reason)
	}
	return order, nil
}

// cancelTx performs the in-transaction part of a cancellation. The stock
// return recomputes the same movements the ingestion booked, with the sign
// flipped, so cancelling conserves inventory exactly.
func (s *Service) cancelTx(ctx context.Context, c TxComponents, order database.Order, reason, userName string) (database.Order, error) {
	if order.Status == enum.OrderStatusCancelled {
		return database.Order{}, ErrAlreadyCancelled
	}

	var items []map[string]any
	if err := json.Unmarshal(order.ItemsJSON, &items); err != nil {
		return database.Order{}, err
	}
	normalized := normalizer.Normalize(normalizer.OrderView{
		Items:         items,
		Source:        order.Source,
		PaymentMethod: order.PaymentMethod.String,
		DisplayID:     order.DisplayID.String,
		ExternalID:    order.ExternalID.String,
	})
	if err := c.Stock.Return(ctx, stock.Request{
		StoreID:  order.StoreID,
		Source:   order.Source,
		Reason:   "cancel " + reason,
		UserName: userName,
		Items:    normalized,
	}); err != nil {
		return database.Order{}, err
	}

	return c.Store.UpdateOrderStatus(ctx, database.UpdateOrderStatusParams{
		ID:      order.ID,
		StoreID: order.StoreID,
		Status:  enum.OrderStatusCancelled,
	})
}
