package service

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fornalha-pos/api/internal/combo"
	"github.com/fornalha-pos/api/internal/database"
	"github.com/fornalha-pos/api/internal/queue"
	"github.com/fornalha-pos/api/internal/resolver"
	"github.com/fornalha-pos/api/internal/stock"
	"github.com/fornalha-pos/api/internal/ws"
)

// Errors returned by the order service.
var (
	ErrOrderNotFound    = errors.New("order not found")
	ErrAlreadyCancelled = errors.New("order already cancelled")
	ErrOrderFinalized   = errors.New("order already left the kitchen")
	ErrBadTransition    = errors.New("invalid status transition")
	ErrEmptyItems       = errors.New("items are required")
)

// TxBeginner starts a new database transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// OrderStore defines the DB methods the service needs.
// Satisfied by *database.Queries (and its WithTx variant).
type OrderStore interface {
	GetOrder(ctx context.Context, arg database.GetOrderParams) (database.Order, error)
	GetOrderByExternalID(ctx context.Context, arg database.GetOrderByExternalIDParams) (database.Order, error)
	CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	UpdateOrderStatus(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error)
	UpdateOrderItems(ctx context.Context, arg database.UpdateOrderItemsParams) (database.Order, error)
	ListOrdersByStatus(ctx context.Context, arg database.ListOrdersByStatusParams) ([]database.Order, error)
	GetDeliveryFeeByNeighborhood(ctx context.Context, arg database.GetDeliveryFeeParams) (database.DeliveryFee, error)
	GetProduct(ctx context.Context, arg database.GetProductParams) (database.Product, error)
	ListProducts(ctx context.Context, storeID uuid.UUID) ([]database.Product, error)
	ListCategories(ctx context.Context, storeID uuid.UUID) ([]database.Category, error)
	ListSectors(ctx context.Context, storeID uuid.UUID) ([]database.ProductionSector, error)
	GetSector(ctx context.Context, id int64) (database.ProductionSector, error)
}

// StockEngine books and reverses ingredient movements.
type StockEngine interface {
	Deduct(ctx context.Context, req stock.Request) error
	Return(ctx context.Context, req stock.Request) error
}

// ProductResolver maps item references onto catalog products.
type ProductResolver interface {
	ResolveAndLearn(ctx context.Context, req resolver.Request) (database.Product, error)
}

// ComboEnricher expands combo products on raw items.
type ComboEnricher interface {
	Apply(ctx context.Context, product database.Product, item map[string]any) error
}

// Broadcaster pushes events to connected kitchen displays.
type Broadcaster interface {
	BroadcastToStore(storeID uuid.UUID, event ws.Event)
}

// TxComponents bundles everything the service runs inside one transaction,
// all bound to the same connection.
type TxComponents struct {
	Store    OrderStore
	Stock    StockEngine
	Resolver ProductResolver
	Combo    ComboEnricher
}

// NewComponents builds TxComponents from a pool or transaction.
type NewComponents func(db database.DBTX) TxComponents

// DefaultComponents wires the real store, resolver, stock engine and combo
// enricher.
func DefaultComponents(log *zap.SugaredLogger) NewComponents {
	return func(db database.DBTX) TxComponents {
		q := database.New(db)
		res := resolver.New(q)
		return TxComponents{
			Store:    q,
			Stock:    stock.NewEngine(q, res, log),
			Resolver: res,
			Combo:    combo.New(q, log),
		}
	}
}

// Service owns the order lifecycle: ingestion, kitchen advancement and
// cancellation.
type Service struct {
	pool       TxBeginner
	components NewComponents
	hub        Broadcaster
	broker     queue.Broker
	log        *zap.SugaredLogger
}

func New(pool TxBeginner, components NewComponents, hub Broadcaster, broker queue.Broker, log *zap.SugaredLogger) *Service {
	return &Service{pool: pool, components: components, hub: hub, broker: broker, log: log}
}

// notify queues an outbound status push; delivery happens on the worker so
// the caller's transaction latency stays flat.
func (s *Service) notify(ctx context.Context, order database.Order, reason string) {
	if s.broker == nil {
		return
	}
	msg := queue.StatusNotification{
		StoreID:      order.StoreID,
		OrderID:      order.ID,
		ExternalID:   order.ExternalID.String,
		DisplayID:    order.DisplayID.String,
		Source:       order.Source,
		Status:       order.Status,
		DeliveryType: order.DeliveryType,
		CancelReason: reason,
	}
	blob, err := json.Marshal(msg)
	if err != nil {
		s.log.Errorw("marshal status notification", "order_id", order.ID, "err", err)
		return
	}
	if err := s.broker.Publish(ctx, queue.QueueStatusNotify, blob); err != nil {
		s.log.Errorw("publish status notification", "order_id", order.ID, "err", err)
	}
}

func (s *Service) broadcast(order database.Order, eventType string) {
	if s.hub == nil {
		return
	}
	payload, err := json.Marshal(map[string]string{
		"order_id":   order.ID.String(),
		"display_id": order.DisplayID.String,
		"status":     order.Status,
	})
	if err != nil {
		return
	}
	s.hub.BroadcastToStore(order.StoreID, ws.Event{Type: eventType, Payload: payload})
}

func textOrNull(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: s, Valid: true}
}

func numericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid {
		return decimal.Zero
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(val.(string))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func decimalToNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(d.StringFixed(2))
	return n
}
