package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/fornalha-pos/api/internal/database"
	"github.com/fornalha-pos/api/internal/enum"
	"github.com/fornalha-pos/api/internal/normalizer"
	"github.com/fornalha-pos/api/internal/service"
)

// KDSService is the advancement entry point of the service layer.
type KDSService interface {
	AdvanceItems(ctx context.Context, req service.AdvanceRequest) (database.Order, error)
}

// KDSHandler serves the kitchen display board and item advancement.
type KDSHandler struct {
	svc   KDSService
	store OrderReader
}

func NewKDSHandler(svc KDSService, store OrderReader) *KDSHandler {
	return &KDSHandler{svc: svc, store: store}
}

func (h *KDSHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.Board)
	r.Post("/advance", h.Advance)
}

type kdsItem struct {
	Index int                    `json:"index"`
	Item  normalizer.DisplayItem `json:"item"`
}

type kdsOrder struct {
	ID           uuid.UUID `json:"id"`
	DisplayID    string    `json:"display_id,omitempty"`
	Source       string    `json:"source"`
	Status       string    `json:"status"`
	DeliveryType string    `json:"delivery_type"`
	Notes        string    `json:"notes,omitempty"`
	CreatedAt    string    `json:"created_at"`
	Items        []kdsItem `json:"items"`
}

type advanceRequest struct {
	OrderID     string `json:"order_id"`
	SectorID    int64  `json:"sector_id"`
	Mode        string `json:"mode"`
	ItemIndexes []int  `json:"item_indexes"`
}

// Board returns the active orders with the items each display mode works on.
// GET /stores/{sid}/kds?mode=kitchen&sector_id=2
// Kitchen boards show items still in preparation, expedition boards show
// items waiting at the pass. Item indexes are positions in the stored order
// so Advance can address them.
func (h *KDSHandler) Board(w http.ResponseWriter, r *http.Request) {
	storeID, ok := storeIDFromRequest(w, r)
	if !ok {
		return
	}

	mode := r.URL.Query().Get("mode")
	if mode == "" {
		mode = enum.KDSModeKitchen
	}
	wantStage := enum.StagePreparing
	statuses := []string{enum.OrderStatusPreparing, enum.OrderStatusExpediting}
	if mode == enum.KDSModeExpedition {
		wantStage = enum.StageExpediting
		statuses = []string{enum.OrderStatusExpediting}
	}

	orders, err := h.store.ListOrdersByStatus(r.Context(), database.ListOrdersByStatusParams{
		StoreID:  storeID,
		Statuses: statuses,
	})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	out := make([]kdsOrder, 0, len(orders))
	for _, o := range orders {
		items := normalizedItems(o)
		board := kdsOrder{
			ID:           o.ID,
			DisplayID:    o.DisplayID.String,
			Source:       o.Source,
			Status:       o.Status,
			DeliveryType: o.DeliveryType,
			Notes:        o.Notes.String,
			CreatedAt:    o.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
			Items:        []kdsItem{},
		}
		for i, item := range items {
			if item.Stage != wantStage {
				continue
			}
			board.Items = append(board.Items, kdsItem{Index: i, Item: item})
		}
		if len(board.Items) > 0 {
			out = append(out, board)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// Advance bumps the selected items to the next stage.
func (h *KDSHandler) Advance(w http.ResponseWriter, r *http.Request) {
	storeID, ok := storeIDFromRequest(w, r)
	if !ok {
		return
	}

	var req advanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	orderID, err := uuid.Parse(req.OrderID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order_id"})
		return
	}
	mode := req.Mode
	if mode == "" {
		mode = enum.KDSModeKitchen
	}

	order, err := h.svc.AdvanceItems(r.Context(), service.AdvanceRequest{
		StoreID:     storeID,
		OrderID:     orderID,
		SectorID:    req.SectorID,
		Mode:        mode,
		UserName:    userNameFromContext(r.Context()),
		ItemIndexes: req.ItemIndexes,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrOrderNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
		case errors.Is(err, service.ErrAlreadyCancelled), errors.Is(err, service.ErrOrderFinalized):
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		default:
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		}
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}
