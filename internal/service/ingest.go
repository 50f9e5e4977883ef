package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/fornalha-pos/api/internal/database"
	"github.com/fornalha-pos/api/internal/enum"
	"github.com/fornalha-pos/api/internal/integration"
	"github.com/fornalha-pos/api/internal/metrics"
	"github.com/fornalha-pos/api/internal/normalizer"
	"github.com/fornalha-pos/api/internal/resolver"
	"github.com/fornalha-pos/api/internal/stock"
)

// ProcessStandardOrder ingests one platform order. The whole path runs in a
// single transaction: dedupe check, product resolution, combo expansion,
// stock deduction and the insert commit or roll back together. Returns the
// stored order and whether this call created it.
func (s *Service) ProcessStandardOrder(ctx context.Context, storeID uuid.UUID, o integration.StandardOrder) (database.Order, bool, error) {
	if o.IsUpdate {
		return s.applyUpdate(ctx, storeID, o)
	}
	if len(o.Items) == 0 {
		return database.Order{}, false, ErrEmptyItems
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return database.Order{}, false, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	c := s.components(tx)

	if existing, err := s.findExisting(ctx, c.Store, storeID, o); err != nil {
		return database.Order{}, false, err
	} else if existing != nil {
		metrics.OrdersDeduplicated.WithLabelValues(o.Source).Inc()
		s.log.Infow("duplicate order skipped",
			"store_id", storeID, "external_id", o.ExternalID, "display_id", o.DisplayID)
		return *existing, false, nil
	}

	total, fee := s.recoverDeliveryFee(ctx, c.Store, storeID, o)

	items, err := s.prepareItems(ctx, c, storeID, o)
	if err != nil {
		return database.Order{}, false, err
	}

	normalized := normalizer.Normalize(normalizer.OrderView{
		Items:         items,
		Source:        o.Source,
		PaymentMethod: o.PaymentMethod,
		DisplayID:     o.DisplayID,
		ExternalID:    o.ExternalID,
	})
	if err := c.Stock.Deduct(ctx, stock.Request{
		StoreID: storeID,
		Source:  o.Source,
		Reason:  "order " + displayOrExternal(o),
		Items:   normalized,
	}); err != nil {
		return database.Order{}, false, fmt.Errorf("deduct stock: %w", err)
	}

	blob, err := json.Marshal(items)
	if err != nil {
		return database.Order{}, false, err
	}
	order, err := c.Store.CreateOrder(ctx, database.CreateOrderParams{
		StoreID:             storeID,
		ExternalID:          textOrNull(o.ExternalID),
		DisplayID:           textOrNull(o.DisplayID),
		Source:              o.Source,
		Status:              enum.OrderStatusPreparing,
		CustomerName:        textOrNull(o.Customer.Name),
		CustomerPhone:       textOrNull(o.Customer.Phone),
		CustomerEmail:       textOrNull(o.Customer.Email),
		AddressStreet:       textOrNull(o.Address.Street),
		AddressNumber:       textOrNull(o.Address.Number),
		AddressNeighborhood: textOrNull(o.Address.Neighborhood),
		AddressCity:         textOrNull(o.Address.City),
		AddressState:        textOrNull(o.Address.State),
		AddressZip:          textOrNull(o.Address.Zip),
		AddressComplement:   textOrNull(o.Address.Complement),
		TotalValue:          decimalToNumeric(total),
		DeliveryFee:         decimalToNumeric(fee),
		Discount:            decimalToNumeric(o.Discount),
		PaymentMethod:       textOrNull(o.PaymentMethod),
		DeliveryType:        o.DeliveryType,
		ItemsJSON:           blob,
		Notes:               textOrNull(o.Notes),
	})
	if err != nil {
		return database.Order{}, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return database.Order{}, false, err
	}

	metrics.OrdersIngested.WithLabelValues(o.Source).Inc()
	s.log.Infow("order ingested",
		"store_id", storeID, "order_id", order.ID, "source", o.Source,
		"display_id", o.DisplayID, "total", total.StringFixed(2))
	s.broadcast(order, "order.created")
	s.notify(ctx, order, "")
	return order, true, nil
}

// applyUpdate handles update envelopes. Only cancellations mutate state; any
// other remote status is recorded as a no-op because the kitchen owns the
// order lifecycle once ingested.
func (s *Service) applyUpdate(ctx context.Context, storeID uuid.UUID, o integration.StandardOrder) (database.Order, bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return database.Order{}, false, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck
	c := s.components(tx)

	existing, err := s.findExisting(ctx, c.Store, storeID, o)
	if err != nil {
		return database.Order{}, false, err
	}
	if existing == nil {
		return database.Order{}, false, ErrOrderNotFound
	}
	if o.Status != enum.OrderStatusCancelled {
		s.log.Infow("ignoring remote status update",
			"store_id", storeID, "order_id", existing.ID, "status", o.Status)
		return *existing, false, nil
	}
	order, err := s.cancelTx(ctx, c, *existing, o.CancelReason, "platform")
	if err != nil {
		return database.Order{}, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return database.Order{}, false, err
	}
	metrics.OrdersCancelled.WithLabelValues(order.Source).Inc()
	s.broadcast(order, "order.cancelled")
	return order, false, nil
}

func (s *Service) findExisting(ctx context.Context, store OrderStore, storeID uuid.UUID, o integration.StandardOrder) (*database.Order, error) {
	for _, ref := range []string{o.ExternalID, o.DisplayID} {
		if ref == "" {
			continue
		}
		order, err := store.GetOrderByExternalID(ctx, database.GetOrderByExternalIDParams{
			StoreID:    storeID,
			ExternalID: ref,
		})
		if err == nil {
			return &order, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
	}
	return nil, nil
}

// recoverDeliveryFee fills in a missing fee from the store's neighborhood
// table. Platforms that charge delivery outside the order payload send fee
// zero, which would understate the total the cashier must collect.
func (s *Service) recoverDeliveryFee(ctx context.Context, store OrderStore, storeID uuid.UUID, o integration.StandardOrder) (total, fee decimal.Decimal) {
	total, fee = o.Total, o.DeliveryFee
	if o.DeliveryType != enum.DeliveryTypeDelivery || !fee.IsZero() || o.Address.Neighborhood == "" {
		return total, fee
	}
	row, err := store.GetDeliveryFeeByNeighborhood(ctx, database.GetDeliveryFeeParams{
		StoreID:      storeID,
		Neighborhood: o.Address.Neighborhood,
	})
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			s.log.Warnw("delivery fee lookup failed",
				"store_id", storeID, "neighborhood", o.Address.Neighborhood, "err", err)
		}
		return total, fee
	}
	fee = numericToDecimal(row.Fee)
	return total.Add(fee), fee
}

// prepareItems resolves each raw item to a catalog product, expands combos
// and stamps kitchen metadata before persistence.
func (s *Service) prepareItems(ctx context.Context, c TxComponents, storeID uuid.UUID, o integration.StandardOrder) ([]map[string]any, error) {
	items := make([]map[string]any, 0, len(o.Items))
	for _, raw := range o.Items {
		item := make(map[string]any, len(raw)+3)
		for k, v := range raw {
			item[k] = v
		}
		product, err := c.Resolver.ResolveAndLearn(ctx, resolver.Request{
			StoreID:   storeID,
			Source:    o.Source,
			ProductID: itemString(item, "product_id"),
			Code:      itemString(item, "external_code", "code"),
			Name:      itemString(item, "name", "title"),
		})
		switch {
		case err == nil:
			item["product_id"] = strconv.FormatInt(product.ID, 10)
			if err := c.Combo.Apply(ctx, product, item); err != nil {
				return nil, fmt.Errorf("expand combo: %w", err)
			}
		case errors.Is(err, resolver.ErrNotFound):
			s.log.Warnw("item did not resolve to a product",
				"store_id", storeID, "source", o.Source, "name", itemString(item, "name", "title"))
		default:
			return nil, err
		}
		item["kds_stage"] = enum.StagePreparing
		item["kds_done"] = false
		items = append(items, item)
	}
	return items, nil
}

func itemString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func displayOrExternal(o integration.StandardOrder) string {
	if o.DisplayID != "" {
		return o.DisplayID
	}
	return o.ExternalID
}
