package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"golang.org/x/crypto/bcrypt"

	"github.com/fornalha-pos/api/internal/database"
	"github.com/fornalha-pos/api/internal/enum"
	"github.com/fornalha-pos/api/internal/service"
)

// --- Mocks ---

type mockAuthStore struct {
	users map[string]database.User
}

func (m *mockAuthStore) GetUserByEmail(ctx context.Context, email string) (database.User, error) {
	if u, ok := m.users[email]; ok {
		return u, nil
	}
	return database.User{}, pgx.ErrNoRows
}
func (m *mockAuthStore) GetUserByID(ctx context.Context, id uuid.UUID) (database.User, error) {
	for _, u := range m.users {
		if u.ID == id {
			return u, nil
		}
	}
	return database.User{}, pgx.ErrNoRows
}

type mockOrderReader struct {
	orders []database.Order
}

func (m *mockOrderReader) GetOrder(ctx context.Context, arg database.GetOrderParams) (database.Order, error) {
	for _, o := range m.orders {
		if o.ID == arg.ID && o.StoreID == arg.StoreID {
			return o, nil
		}
	}
	return database.Order{}, pgx.ErrNoRows
}
func (m *mockOrderReader) ListOrders(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error) {
	return m.orders, nil
}
func (m *mockOrderReader) ListOrdersByStatus(ctx context.Context, arg database.ListOrdersByStatusParams) ([]database.Order, error) {
	var out []database.Order
	for _, o := range m.orders {
		for _, st := range arg.Statuses {
			if o.Status == st {
				out = append(out, o)
			}
		}
	}
	return out, nil
}

type mockOrderService struct {
	cancelFn    func(ctx context.Context, req service.CancelRequest) (database.Order, error)
	setStatusFn func(ctx context.Context, storeID, orderID uuid.UUID, status string) (database.Order, error)
	advanceFn   func(ctx context.Context, req service.AdvanceRequest) (database.Order, error)
}

func (m *mockOrderService) CancelOrder(ctx context.Context, req service.CancelRequest) (database.Order, error) {
	return m.cancelFn(ctx, req)
}
func (m *mockOrderService) SetStatus(ctx context.Context, storeID, orderID uuid.UUID, status string) (database.Order, error) {
	return m.setStatusFn(ctx, storeID, orderID, status)
}
func (m *mockOrderService) AdvanceItems(ctx context.Context, req service.AdvanceRequest) (database.Order, error) {
	return m.advanceFn(ctx, req)
}

// --- Helpers ---

func testRouter(h *OrderHandler, k *KDSHandler) chi.Router {
	r := chi.NewRouter()
	r.Route("/stores/{sid}", func(r chi.Router) {
		if h != nil {
			r.Route("/orders", h.RegisterRoutes)
		}
		if k != nil {
			r.Route("/kds", k.RegisterRoutes)
		}
	})
	return r
}

func sampleOrder(storeID uuid.UUID, status string) database.Order {
	items := []map[string]any{
		{
			"name": "Pizza Grande", "quantity": 2.0,
			"details":   []any{map[string]any{"text": "½ Calabresa", "type": "flavor"}},
			"kds_stage": 0.0,
		},
		{
			"name": "Guarana 2L", "quantity": 1.0,
			"details":   []any{},
			"kds_stage": 1.0,
		},
	}
	blob, _ := json.Marshal(items)
	return database.Order{
		ID:            uuid.New(),
		StoreID:       storeID,
		DisplayID:     pgtype.Text{String: "1234", Valid: true},
		Source:        enum.SourceHub,
		Status:        status,
		CustomerName:  pgtype.Text{String: "Ana", Valid: true},
		DeliveryType:  enum.DeliveryTypeCounter,
		TotalValue:    makeNumericH("55.00"),
		DeliveryFee:   makeNumericH("0.00"),
		Discount:      makeNumericH("0.00"),
		PaymentMethod: pgtype.Text{String: "Dinheiro", Valid: true},
		ItemsJSON:     blob,
		CreatedAt:     time.Date(2025, 3, 1, 19, 30, 0, 0, time.UTC),
	}
}

func makeNumericH(val string) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(val)
	return n
}

// --- Auth ---

func TestLoginSuccess(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("segredo"), bcrypt.MinCost)
	user := database.User{
		ID:           uuid.New(),
		StoreID:      uuid.New(),
		Email:        "ana@fornalha.com",
		PasswordHash: string(hash),
		FullName:     "Ana",
		Role:         enum.UserRoleOwner,
	}
	h := NewAuthHandler(&mockAuthStore{users: map[string]database.User{user.Email: user}}, "secret")

	body := `{"email":"ana@fornalha.com","password":"segredo"}`
	req := httptest.NewRequest("POST", "/auth/login", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Login(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp tokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.AccessToken == "" || resp.RefreshToken == "" {
		t.Error("tokens missing from response")
	}
	if resp.User.Email != user.Email {
		t.Errorf("user email = %q", resp.User.Email)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("segredo"), bcrypt.MinCost)
	user := database.User{ID: uuid.New(), Email: "ana@fornalha.com", PasswordHash: string(hash)}
	h := NewAuthHandler(&mockAuthStore{users: map[string]database.User{user.Email: user}}, "secret")

	body := `{"email":"ana@fornalha.com","password":"errada"}`
	req := httptest.NewRequest("POST", "/auth/login", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Login(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

// --- Orders ---

func TestGetOrderNormalizesItems(t *testing.T) {
	storeID := uuid.New()
	order := sampleOrder(storeID, enum.OrderStatusPreparing)
	h := NewOrderHandler(&mockOrderService{}, &mockOrderReader{orders: []database.Order{order}})
	r := testRouter(h, nil)

	req := httptest.NewRequest("GET", "/stores/"+storeID.String()+"/orders/"+order.ID.String(), nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp orderResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(resp.Items))
	}
	if resp.Items[0].Name != "Pizza Grande" || len(resp.Items[0].Details) != 1 {
		t.Errorf("first item = %+v", resp.Items[0])
	}
	if resp.Total != "55.00" {
		t.Errorf("total = %q", resp.Total)
	}
}

func TestListOrdersByStatusFilter(t *testing.T) {
	storeID := uuid.New()
	preparing := sampleOrder(storeID, enum.OrderStatusPreparing)
	done := sampleOrder(storeID, enum.OrderStatusCompleted)
	h := NewOrderHandler(&mockOrderService{}, &mockOrderReader{orders: []database.Order{preparing, done}})
	r := testRouter(h, nil)

	req := httptest.NewRequest("GET", "/stores/"+storeID.String()+"/orders/?status=PREPARING", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var resp []orderResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp) != 1 || resp[0].Status != enum.OrderStatusPreparing {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestCancelOrderRequiresReason(t *testing.T) {
	storeID := uuid.New()
	h := NewOrderHandler(&mockOrderService{}, &mockOrderReader{})
	r := testRouter(h, nil)

	req := httptest.NewRequest("POST", "/stores/"+storeID.String()+"/orders/"+uuid.New().String()+"/cancel",
		bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestCancelOrderConflictWhenAlreadyCancelled(t *testing.T) {
	storeID := uuid.New()
	svc := &mockOrderService{
		cancelFn: func(ctx context.Context, req service.CancelRequest) (database.Order, error) {
			return database.Order{}, service.ErrAlreadyCancelled
		},
	}
	h := NewOrderHandler(svc, &mockOrderReader{})
	r := testRouter(h, nil)

	req := httptest.NewRequest("POST", "/stores/"+storeID.String()+"/orders/"+uuid.New().String()+"/cancel",
		bytes.NewReader([]byte(`{"reason":"cliente desistiu"}`)))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestSetStatusBadTransition(t *testing.T) {
	storeID := uuid.New()
	svc := &mockOrderService{
		setStatusFn: func(ctx context.Context, sid, oid uuid.UUID, status string) (database.Order, error) {
			return database.Order{}, service.ErrBadTransition
		},
	}
	h := NewOrderHandler(svc, &mockOrderReader{})
	r := testRouter(h, nil)

	req := httptest.NewRequest("POST", "/stores/"+storeID.String()+"/orders/"+uuid.New().String()+"/status",
		bytes.NewReader([]byte(`{"status":"DELIVERED"}`)))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestReceiptText(t *testing.T) {
	storeID := uuid.New()
	order := sampleOrder(storeID, enum.OrderStatusReady)
	h := NewOrderHandler(&mockOrderService{}, &mockOrderReader{orders: []database.Order{order}})
	r := testRouter(h, nil)

	req := httptest.NewRequest("GET", "/stores/"+storeID.String()+"/orders/"+order.ID.String()+"/receipt", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	text := rec.Body.String()
	for _, want := range []string{"PEDIDO #1234", "Cliente: Ana", "2x Pizza Grande", "½ Calabresa", "Total: R$ 55.00", "Pagamento: Dinheiro"} {
		if !strings.Contains(text, want) {
			t.Errorf("receipt missing %q:\n%s", want, text)
		}
	}
}

// --- KDS ---

func TestKDSBoardFiltersByMode(t *testing.T) {
	storeID := uuid.New()
	order := sampleOrder(storeID, enum.OrderStatusExpediting)
	k := NewKDSHandler(&mockOrderService{}, &mockOrderReader{orders: []database.Order{order}})
	r := testRouter(nil, k)

	// Kitchen board: only the stage-0 pizza.
	req := httptest.NewRequest("GET", "/stores/"+storeID.String()+"/kds/?mode=kitchen", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var board []kdsOrder
	if err := json.Unmarshal(rec.Body.Bytes(), &board); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(board) != 1 || len(board[0].Items) != 1 {
		t.Fatalf("board = %+v", board)
	}
	if board[0].Items[0].Index != 0 || board[0].Items[0].Item.Name != "Pizza Grande" {
		t.Errorf("kitchen item = %+v", board[0].Items[0])
	}

	// Expedition board: only the stage-1 drink.
	req = httptest.NewRequest("GET", "/stores/"+storeID.String()+"/kds/?mode=expedition", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	board = nil
	if err := json.Unmarshal(rec.Body.Bytes(), &board); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(board) != 1 || len(board[0].Items) != 1 || board[0].Items[0].Index != 1 {
		t.Fatalf("expedition board = %+v", board)
	}
}

func TestKDSAdvance(t *testing.T) {
	storeID := uuid.New()
	var got service.AdvanceRequest
	svc := &mockOrderService{
		advanceFn: func(ctx context.Context, req service.AdvanceRequest) (database.Order, error) {
			got = req
			return sampleOrder(storeID, enum.OrderStatusExpediting), nil
		},
	}
	k := NewKDSHandler(svc, &mockOrderReader{})
	r := testRouter(nil, k)

	orderID := uuid.New()
	body, _ := json.Marshal(advanceRequest{
		OrderID:     orderID.String(),
		SectorID:    2,
		Mode:        enum.KDSModeKitchen,
		ItemIndexes: []int{0},
	})
	req := httptest.NewRequest("POST", "/stores/"+storeID.String()+"/kds/advance", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if got.OrderID != orderID || got.SectorID != 2 || len(got.ItemIndexes) != 1 {
		t.Errorf("advance request = %+v", got)
	}
}
