package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const orderColumns = `
id, store_id, external_id, display_id, source, status,
customer_name, customer_phone, customer_email,
address_street, address_number, address_neighborhood, address_city,
address_state, address_zip, address_complement,
total_value, delivery_fee, discount, payment_method, delivery_type,
items_json, notes, created_at, updated_at
`

func scanOrder(row interface{ Scan(dest ...any) error }) (Order, error) {
	var o Order
	err := row.Scan(
		&o.ID, &o.StoreID, &o.ExternalID, &o.DisplayID, &o.Source, &o.Status,
		&o.CustomerName, &o.CustomerPhone, &o.CustomerEmail,
		&o.AddressStreet, &o.AddressNumber, &o.AddressNeighborhood, &o.AddressCity,
		&o.AddressState, &o.AddressZip, &o.AddressComplement,
		&o.TotalValue, &o.DeliveryFee, &o.Discount, &o.PaymentMethod, &o.DeliveryType,
		&o.ItemsJSON, &o.Notes, &o.CreatedAt, &o.UpdatedAt,
	)
	return o, err
}

const getOrder = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 AND store_id = $2`

type GetOrderParams struct {
	ID      uuid.UUID
	StoreID uuid.UUID
}

func (q *Queries) GetOrder(ctx context.Context, arg GetOrderParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrder, arg.ID, arg.StoreID))
}

// GetOrderByExternalID is the idempotency lookup: an external order exists if
// either its platform id or its human display id was already persisted.
const getOrderByExternalID = `
SELECT ` + orderColumns + `
FROM orders
WHERE store_id = $1 AND (external_id = $2 OR display_id = $2)
LIMIT 1
`

type GetOrderByExternalIDParams struct {
	StoreID    uuid.UUID
	ExternalID string
}

func (q *Queries) GetOrderByExternalID(ctx context.Context, arg GetOrderByExternalIDParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrderByExternalID, arg.StoreID, arg.ExternalID))
}

const createOrder = `
INSERT INTO orders (
	store_id, external_id, display_id, source, status,
	customer_name, customer_phone, customer_email,
	address_street, address_number, address_neighborhood, address_city,
	address_state, address_zip, address_complement,
	total_value, delivery_fee, discount, payment_method, delivery_type,
	items_json, notes
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
	$13, $14, $15, $16, $17, $18, $19, $20, $21, $22
)
RETURNING ` + orderColumns

type CreateOrderParams struct {
	StoreID             uuid.UUID
	ExternalID          pgtype.Text
	DisplayID           pgtype.Text
	Source              string
	Status              string
	CustomerName        pgtype.Text
	CustomerPhone       pgtype.Text
	CustomerEmail       pgtype.Text
	AddressStreet       pgtype.Text
	AddressNumber       pgtype.Text
	AddressNeighborhood pgtype.Text
	AddressCity         pgtype.Text
	AddressState        pgtype.Text
	AddressZip          pgtype.Text
	AddressComplement   pgtype.Text
	TotalValue          pgtype.Numeric
	DeliveryFee         pgtype.Numeric
	Discount            pgtype.Numeric
	PaymentMethod       pgtype.Text
	DeliveryType        string
	ItemsJSON           []byte
	Notes               pgtype.Text
}

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, createOrder,
		arg.StoreID, arg.ExternalID, arg.DisplayID, arg.Source, arg.Status,
		arg.CustomerName, arg.CustomerPhone, arg.CustomerEmail,
		arg.AddressStreet, arg.AddressNumber, arg.AddressNeighborhood, arg.AddressCity,
		arg.AddressState, arg.AddressZip, arg.AddressComplement,
		arg.TotalValue, arg.DeliveryFee, arg.Discount, arg.PaymentMethod, arg.DeliveryType,
		arg.ItemsJSON, arg.Notes,
	))
}

const listOrdersByStatus = `
SELECT ` + orderColumns + `
FROM orders
WHERE store_id = $1 AND status = ANY($2)
ORDER BY created_at
`

type ListOrdersByStatusParams struct {
	StoreID  uuid.UUID
	Statuses []string
}

func (q *Queries) ListOrdersByStatus(ctx context.Context, arg ListOrdersByStatusParams) ([]Order, error) {
	rows, err := q.db.Query(ctx, listOrdersByStatus, arg.StoreID, arg.Statuses)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var orders []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

const listOrders = `
SELECT ` + orderColumns + `
FROM orders
WHERE store_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3
`

type ListOrdersParams struct {
	StoreID uuid.UUID
	Limit   int32
	Offset  int32
}

func (q *Queries) ListOrders(ctx context.Context, arg ListOrdersParams) ([]Order, error) {
	rows, err := q.db.Query(ctx, listOrders, arg.StoreID, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var orders []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

const updateOrderStatus = `
UPDATE orders SET status = $3, updated_at = now()
WHERE id = $1 AND store_id = $2
RETURNING ` + orderColumns

type UpdateOrderStatusParams struct {
	ID      uuid.UUID
	StoreID uuid.UUID
	Status  string
}

func (q *Queries) UpdateOrderStatus(ctx context.Context, arg UpdateOrderStatusParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, updateOrderStatus, arg.ID, arg.StoreID, arg.Status))
}

const updateOrderItems = `
UPDATE orders SET items_json = $3, status = $4, updated_at = now()
WHERE id = $1 AND store_id = $2
RETURNING ` + orderColumns

type UpdateOrderItemsParams struct {
	ID        uuid.UUID
	StoreID   uuid.UUID
	ItemsJSON []byte
	Status    string
}

func (q *Queries) UpdateOrderItems(ctx context.Context, arg UpdateOrderItemsParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, updateOrderItems, arg.ID, arg.StoreID, arg.ItemsJSON, arg.Status))
}
