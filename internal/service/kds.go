package service

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/google/uuid"

	"github.com/fornalha-pos/api/internal/database"
	"github.com/fornalha-pos/api/internal/enum"
)

type AdvanceRequest struct {
	StoreID  uuid.UUID
	OrderID  uuid.UUID
	SectorID int64
	Mode     string
	UserName string

	// ItemIndexes narrows the advance to specific item positions.
	// Empty means every item the sector owns.
	ItemIndexes []int
}

// statusTransitions are the manual moves allowed after the kitchen is done.
// Everything before READY belongs to AdvanceItems.
var statusTransitions = map[string][]string{
	enum.OrderStatusReady:      {enum.OrderStatusDispatched, enum.OrderStatusCompleted},
	enum.OrderStatusDispatched: {enum.OrderStatusDelivered, enum.OrderStatusCompleted},
	enum.OrderStatusDelivered:  {enum.OrderStatusCompleted},
}

// AdvanceItems bumps the production stage of an order's items from a KDS
// board. Kitchen boards move their sector's items into expedition;
// expedition boards mark them done. Sectors without an expedition step jump
// straight to done. The order status is rederived from the item stages after
// every bump.
func (s *Service) AdvanceItems(ctx context.Context, req AdvanceRequest) (database.Order, error) {
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
	switch order.Status {
	case enum.OrderStatusPreparing, enum.OrderStatusExpediting:
	case enum.OrderStatusCancelled:
		return database.Order{}, ErrAlreadyCancelled
	default:
		return database.Order{}, ErrOrderFinalized
	}

	var items []map[string]any
	if err := json.Unmarshal(order.ItemsJSON, &items); err != nil {
		return database.Order{}, err
	}

	ownership, err := s.sectorOwnership(ctx, c.Store, req.StoreID, req.SectorID)
	if err != nil {
		return database.Order{}, err
	}
	hasExpedition := true
	if req.SectorID != 0 {
		sector, err := c.Store.GetSector(ctx, req.SectorID)
		if err != nil {
			return database.Order{}, err
		}
		hasExpedition = sector.HasExpedition
	}

	selected := indexSet(req.ItemIndexes)
	for i, item := range items {
		if selected != nil && !selected[i] {
			continue
		}
		if ownership != nil && !ownership[itemString(item, "product_id")] {
			continue
		}
		stage := itemStage(item)
		switch req.Mode {
		case enum.KDSModeExpedition:
			if stage == enum.StageExpediting {
				setStage(item, enum.StageDone)
			}
		default: // kitchen
			if stage != enum.StagePreparing {
				continue
			}
			if hasExpedition {
				setStage(item, enum.StageExpediting)
			} else {
				setStage(item, enum.StageDone)
			}
		}
	}

	stages := make([]int, len(items))
	for i, item := range items {
		stages[i] = itemStage(item)
	}
	status := aggregateStatus(stages)

	blob, err := json.Marshal(items)
	if err != nil {
		return database.Order{}, err
	}
	order, err = c.Store.UpdateOrderItems(ctx, database.UpdateOrderItemsParams{
		ID:        order.ID,
		StoreID:   order.StoreID,
		ItemsJSON: blob,
		Status:    status,
	})
	if err != nil {
		return database.Order{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return database.Order{}, err
	}

	s.log.Infow("items advanced",
		"store_id", order.StoreID, "order_id", order.ID, "mode", req.Mode,
		"sector_id", req.SectorID, "status", status, "by", req.UserName)
	s.broadcast(order, "order.updated")
	if status == enum.OrderStatusReady {
		s.notify(ctx, order, "")
	}
	return order, nil
}

// SetStatus applies a manual post-kitchen transition (dispatch, deliver,
// complete).
func (s *Service) SetStatus(ctx context.Context, storeID, orderID uuid.UUID, status string) (database.Order, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return database.Order{}, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck
	c := s.components(tx)

	order, err := c.Store.GetOrder(ctx, database.GetOrderParams{ID: orderID, StoreID: storeID})
	if err != nil {
		return database.Order{}, ErrOrderNotFound
	}
	if !transitionAllowed(order.Status, status) {
		return database.Order{}, ErrBadTransition
	}
	order, err = c.Store.UpdateOrderStatus(ctx, database.UpdateOrderStatusParams{
		ID:      order.ID,
		StoreID: order.StoreID,
		Status:  status,
	})
	if err != nil {
		return database.Order{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return database.Order{}, err
	}

	s.broadcast(order, "order.updated")
	if status == enum.OrderStatusDispatched || status == enum.OrderStatusDelivered {
		s.notify(ctx, order, "")
	}
	return order, nil
}

func transitionAllowed(from, to string) bool {
	for _, s := range statusTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// aggregateStatus derives the order status from its item stages: the order
// is READY only when every item is done, and EXPEDITING while any item sits
// at the pass. A done item next to an untouched one keeps the order in
// PREPARING; nothing is waiting at the pass yet.
func aggregateStatus(stages []int) string {
	if len(stages) == 0 {
		return enum.OrderStatusPreparing
	}
	allDone := true
	atPass := false
	for _, st := range stages {
		if st != enum.StageDone {
			allDone = false
		}
		if st == enum.StageExpediting {
			atPass = true
		}
	}
	if allDone {
		return enum.OrderStatusReady
	}
	if atPass {
		return enum.OrderStatusExpediting
	}
	return enum.OrderStatusPreparing
}

// sectorOwnership maps product ids onto the given sector via their category.
// Sector zero means no scoping: the board sees the whole order.
func (s *Service) sectorOwnership(ctx context.Context, store OrderStore, storeID uuid.UUID, sectorID int64) (map[string]bool, error) {
	if sectorID == 0 {
		return nil, nil
	}
	categories, err := store.ListCategories(ctx, storeID)
	if err != nil {
		return nil, err
	}
	sectorCategories := make(map[int64]bool)
	for _, cat := range categories {
		if cat.SectorID.Valid && cat.SectorID.Int64 == sectorID {
			sectorCategories[cat.ID] = true
		}
	}
	products, err := store.ListProducts(ctx, storeID)
	if err != nil {
		return nil, err
	}
	owned := make(map[string]bool)
	for _, p := range products {
		if p.CategoryID.Valid && sectorCategories[p.CategoryID.Int64] {
			owned[strconv.FormatInt(p.ID, 10)] = true
		}
	}
	return owned, nil
}

func itemStage(item map[string]any) int {
	switch v := item["kds_stage"].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return enum.StagePreparing
	}
}

func setStage(item map[string]any, stage int) {
	item["kds_stage"] = stage
	item["kds_done"] = stage == enum.StageDone
}

func indexSet(indexes []int) map[int]bool {
	if len(indexes) == 0 {
		return nil
	}
	set := make(map[int]bool, len(indexes))
	for _, i := range indexes {
		set[i] = true
	}
	return set
}
