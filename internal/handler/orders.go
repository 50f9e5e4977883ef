package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/fornalha-pos/api/internal/database"
	"github.com/fornalha-pos/api/internal/enum"
	"github.com/fornalha-pos/api/internal/middleware"
	"github.com/fornalha-pos/api/internal/normalizer"
	"github.com/fornalha-pos/api/internal/service"
)

// OrderService is the slice of the service layer order handlers call into.
type OrderService interface {
	CancelOrder(ctx context.Context, req service.CancelRequest) (database.Order, error)
	SetStatus(ctx context.Context, storeID, orderID uuid.UUID, status string) (database.Order, error)
}

// OrderReader defines the read-only queries for order endpoints.
type OrderReader interface {
	GetOrder(ctx context.Context, arg database.GetOrderParams) (database.Order, error)
	ListOrders(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error)
	ListOrdersByStatus(ctx context.Context, arg database.ListOrdersByStatusParams) ([]database.Order, error)
}

// OrderHandler serves the order read and lifecycle endpoints.
type OrderHandler struct {
	svc   OrderService
	store OrderReader
}

func NewOrderHandler(svc OrderService, store OrderReader) *OrderHandler {
	return &OrderHandler{svc: svc, store: store}
}

// RegisterRoutes registers order endpoints on a store-scoped router.
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Get("/{id}/receipt", h.Receipt)
	r.Post("/{id}/cancel", h.Cancel)
	r.Post("/{id}/status", h.SetStatus)
}

// --- Request / Response types ---

type orderResponse struct {
	ID            uuid.UUID                `json:"id"`
	ExternalID    string                   `json:"external_id,omitempty"`
	DisplayID     string                   `json:"display_id,omitempty"`
	Source        string                   `json:"source"`
	Status        string                   `json:"status"`
	CustomerName  string                   `json:"customer_name,omitempty"`
	CustomerPhone string                   `json:"customer_phone,omitempty"`
	Neighborhood  string                   `json:"neighborhood,omitempty"`
	DeliveryType  string                   `json:"delivery_type"`
	PaymentMethod string                   `json:"payment_method,omitempty"`
	Total         string                   `json:"total"`
	DeliveryFee   string                   `json:"delivery_fee"`
	Discount      string                   `json:"discount"`
	Notes         string                   `json:"notes,omitempty"`
	Items         []normalizer.DisplayItem `json:"items"`
	CreatedAt     string                   `json:"created_at"`
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

type setStatusRequest struct {
	Status string `json:"status"`
}

func toOrderResponse(o database.Order) orderResponse {
	return orderResponse{
		ID:            o.ID,
		ExternalID:    o.ExternalID.String,
		DisplayID:     o.DisplayID.String,
		Source:        o.Source,
		Status:        o.Status,
		CustomerName:  o.CustomerName.String,
		CustomerPhone: o.CustomerPhone.String,
		Neighborhood:  o.AddressNeighborhood.String,
		DeliveryType:  o.DeliveryType,
		PaymentMethod: o.PaymentMethod.String,
		Total:         money(o.TotalValue),
		DeliveryFee:   money(o.DeliveryFee),
		Discount:      money(o.Discount),
		Notes:         o.Notes.String,
		Items:         normalizedItems(o),
		CreatedAt:     o.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

// normalizedItems flattens whatever raw shape was persisted into display
// items. Orders are stored as received, the read path normalizes.
func normalizedItems(o database.Order) []normalizer.DisplayItem {
	var raw []map[string]any
	if err := json.Unmarshal(o.ItemsJSON, &raw); err != nil {
		return []normalizer.DisplayItem{}
	}
	return normalizer.Normalize(normalizer.OrderView{
		Items:         raw,
		Source:        o.Source,
		PaymentMethod: o.PaymentMethod.String,
		DisplayID:     o.DisplayID.String,
		ExternalID:    o.ExternalID.String,
	})
}

func money(n pgtype.Numeric) string {
	if !n.Valid {
		return "0.00"
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return "0.00"
	}
	d, err := decimal.NewFromString(val.(string))
	if err != nil {
		return "0.00"
	}
	return d.StringFixed(2)
}

// --- Handlers ---

// List returns the store's orders, optionally filtered by status.
// GET /stores/{sid}/orders?status=PREPARING,READY&limit=50&offset=0
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	storeID, ok := storeIDFromRequest(w, r)
	if !ok {
		return
	}

	var (
		orders []database.Order
		err    error
	)
	if statuses := r.URL.Query().Get("status"); statuses != "" {
		orders, err = h.store.ListOrdersByStatus(r.Context(), database.ListOrdersByStatusParams{
			StoreID:  storeID,
			Statuses: strings.Split(statuses, ","),
		})
	} else {
		limit := queryInt(r, "limit", 50)
		offset := queryInt(r, "offset", 0)
		orders, err = h.store.ListOrders(r.Context(), database.ListOrdersParams{
			StoreID: storeID,
			Limit:   int32(limit),
			Offset:  int32(offset),
		})
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderResponse(o))
	}
	writeJSON(w, http.StatusOK, out)
}

// Get returns one order with normalized items.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	storeID, ok := storeIDFromRequest(w, r)
	if !ok {
		return
	}
	orderID, ok := orderIDFromRequest(w, r)
	if !ok {
		return
	}

	order, err := h.store.GetOrder(r.Context(), database.GetOrderParams{ID: orderID, StoreID: storeID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

// Receipt renders the printable text of an order.
func (h *OrderHandler) Receipt(w http.ResponseWriter, r *http.Request) {
	storeID, ok := storeIDFromRequest(w, r)
	if !ok {
		return
	}
	orderID, ok := orderIDFromRequest(w, r)
	if !ok {
		return
	}

	order, err := h.store.GetOrder(r.Context(), database.GetOrderParams{ID: orderID, StoreID: storeID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(receiptText(order)))
}

// Cancel voids an order and returns its stock.
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	storeID, ok := storeIDFromRequest(w, r)
	if !ok {
		return
	}
	orderID, ok := orderIDFromRequest(w, r)
	if !ok {
		return
	}

	var req cancelOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Reason == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "reason is required"})
		return
	}

	order, err := h.svc.CancelOrder(r.Context(), service.CancelRequest{
		StoreID:      storeID,
		OrderID:      orderID,
		Reason:       req.Reason,
		UserName:     userNameFromContext(r.Context()),
		NotifySource: true,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrOrderNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
		case errors.Is(err, service.ErrAlreadyCancelled):
			writeJSON(w, http.StatusConflict, map[string]string{"error": "order already cancelled"})
		default:
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		}
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

// SetStatus applies a manual post-kitchen transition.
func (h *OrderHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	storeID, ok := storeIDFromRequest(w, r)
	if !ok {
		return
	}
	orderID, ok := orderIDFromRequest(w, r)
	if !ok {
		return
	}

	var req setStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	order, err := h.svc.SetStatus(r.Context(), storeID, orderID, req.Status)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrOrderNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
		case errors.Is(err, service.ErrBadTransition):
			writeJSON(w, http.StatusConflict, map[string]string{"error": "invalid status transition"})
		default:
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		}
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

// --- Helpers ---

func receiptText(o database.Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "PEDIDO #%s\n", firstNonEmptyStr(o.DisplayID.String, o.ExternalID.String, o.ID.String()))
	if o.CustomerName.Valid {
		fmt.Fprintf(&b, "Cliente: %s\n", o.CustomerName.String)
	}
	if o.CustomerPhone.Valid {
		fmt.Fprintf(&b, "Telefone: %s\n", o.CustomerPhone.String)
	}
	if o.DeliveryType == enum.DeliveryTypeDelivery && o.AddressStreet.Valid {
		fmt.Fprintf(&b, "Endereco: %s, %s - %s\n",
			o.AddressStreet.String, o.AddressNumber.String, o.AddressNeighborhood.String)
	}
	b.WriteString("--------------------------------\n")
	for _, item := range normalizedItems(o) {
		fmt.Fprintf(&b, "%s %s\n", qtyLabel(item.Quantity), item.Name)
		for _, d := range item.Details {
			fmt.Fprintf(&b, "  %s\n", d.Text)
		}
		if item.Observation != "" {
			fmt.Fprintf(&b, "  Obs: %s\n", item.Observation)
		}
	}
	b.WriteString("--------------------------------\n")
	if fee := money(o.DeliveryFee); fee != "0.00" {
		fmt.Fprintf(&b, "Entrega: R$ %s\n", fee)
	}
	if disc := money(o.Discount); disc != "0.00" {
		fmt.Fprintf(&b, "Desconto: R$ %s\n", disc)
	}
	fmt.Fprintf(&b, "Total: R$ %s\n", money(o.TotalValue))
	if o.PaymentMethod.Valid {
		fmt.Fprintf(&b, "Pagamento: %s\n", o.PaymentMethod.String)
	}
	return b.String()
}

func qtyLabel(q float64) string {
	if q == float64(int(q)) {
		return strconv.Itoa(int(q)) + "x"
	}
	return strconv.FormatFloat(q, 'f', -1, 64) + "x"
}

func firstNonEmptyStr(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func storeIDFromRequest(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	storeID, err := uuid.Parse(chi.URLParam(r, "sid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid store id"})
		return uuid.Nil, false
	}
	return storeID, true
}

func orderIDFromRequest(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order id"})
		return uuid.Nil, false
	}
	return orderID, true
}

func userNameFromContext(ctx context.Context) string {
	if claims := middleware.ClaimsFromContext(ctx); claims != nil {
		return claims.UserID.String()
	}
	return ""
}

func queryInt(r *http.Request, key string, fallback int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return fallback
}
