package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/fornalha-pos/api/internal/database"
	"github.com/fornalha-pos/api/internal/enum"
)

// StockStore defines the queries the stock endpoints use.
type StockStore interface {
	ListIngredients(ctx context.Context, storeID uuid.UUID) ([]database.Ingredient, error)
	GetIngredient(ctx context.Context, id int64) (database.Ingredient, error)
	AdjustIngredientStock(ctx context.Context, id int64, delta float64) (float64, error)
	CreateStockLog(ctx context.Context, arg database.CreateStockLogParams) (database.StockLog, error)
	ListStockLogs(ctx context.Context, storeID uuid.UUID, limit int32) ([]database.StockLog, error)
}

// StockHandler serves ingredient levels, manual adjustments and the
// movement log.
type StockHandler struct {
	store StockStore
}

func NewStockHandler(store StockStore) *StockHandler {
	return &StockHandler{store: store}
}

func (h *StockHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.ListIngredients)
	r.Get("/logs", h.ListLogs)
	r.Post("/adjust", h.Adjust)
}

type ingredientResponse struct {
	ID               int64   `json:"id"`
	Name             string  `json:"name"`
	CurrentStock     float64 `json:"current_stock"`
	Cost             float64 `json:"cost"`
	ConversionFactor float64 `json:"conversion_factor"`
}

type adjustStockRequest struct {
	IngredientID int64   `json:"ingredient_id"`
	Quantity     float64 `json:"quantity"`
	Reason       string  `json:"reason"`
}

type stockLogResponse struct {
	ID           int64   `json:"id"`
	IngredientID int64   `json:"ingredient_id"`
	MovementType string  `json:"movement_type"`
	Quantity     float64 `json:"quantity"`
	OldStock     float64 `json:"old_stock"`
	NewStock     float64 `json:"new_stock"`
	Reason       string  `json:"reason"`
	UserName     string  `json:"user_name"`
	CreatedAt    string  `json:"created_at"`
}

func (h *StockHandler) ListIngredients(w http.ResponseWriter, r *http.Request) {
	storeID, ok := storeIDFromRequest(w, r)
	if !ok {
		return
	}
	ingredients, err := h.store.ListIngredients(r.Context(), storeID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	out := make([]ingredientResponse, 0, len(ingredients))
	for _, i := range ingredients {
		out = append(out, ingredientResponse{
			ID:               i.ID,
			Name:             i.Name,
			CurrentStock:     i.CurrentStock,
			Cost:             i.Cost,
			ConversionFactor: i.ConversionFactor,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *StockHandler) ListLogs(w http.ResponseWriter, r *http.Request) {
	storeID, ok := storeIDFromRequest(w, r)
	if !ok {
		return
	}
	limit := queryInt(r, "limit", 100)
	logs, err := h.store.ListStockLogs(r.Context(), storeID, int32(limit))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	out := make([]stockLogResponse, 0, len(logs))
	for _, l := range logs {
		out = append(out, stockLogResponse{
			ID:           l.ID,
			IngredientID: l.IngredientID,
			MovementType: l.MovementType,
			Quantity:     l.Quantity,
			OldStock:     l.OldStock,
			NewStock:     l.NewStock,
			Reason:       l.Reason,
			UserName:     l.UserName,
			CreatedAt:    l.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// Adjust books a manual stock correction. Positive quantities add stock,
// negative ones remove it; the movement is logged as ADJUST either way.
func (h *StockHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	storeID, ok := storeIDFromRequest(w, r)
	if !ok {
		return
	}

	var req adjustStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.IngredientID == 0 || req.Quantity == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "ingredient_id and quantity are required"})
		return
	}

	ingredient, err := h.store.GetIngredient(r.Context(), req.IngredientID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "ingredient not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	if ingredient.StoreID != storeID {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "ingredient not found"})
		return
	}

	newStock, err := h.store.AdjustIngredientStock(r.Context(), ingredient.ID, req.Quantity)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	if _, err := h.store.CreateStockLog(r.Context(), database.CreateStockLogParams{
		StoreID:      storeID,
		IngredientID: ingredient.ID,
		MovementType: enum.MovementAdjust,
		Quantity:     req.Quantity,
		OldStock:     ingredient.CurrentStock,
		NewStock:     newStock,
		CostAtTime:   ingredient.Cost,
		Reason:       req.Reason,
		UserName:     userNameFromContext(r.Context()),
	}); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, ingredientResponse{
		ID:               ingredient.ID,
		Name:             ingredient.Name,
		CurrentStock:     newStock,
		Cost:             ingredient.Cost,
		ConversionFactor: ingredient.ConversionFactor,
	})
}
