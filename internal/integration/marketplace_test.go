package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fornalha-pos/api/internal/enum"
)

func marketplaceServer(t *testing.T, events []map[string]any, orders map[string]any) (*httptest.Server, *[][]map[string]string, *[]string) {
	t.Helper()
	var acks [][]map[string]string
	var actions []string
	mux := http.NewServeMux()
	mux.HandleFunc("/authentication/v1.0/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"accessToken": "mkt-tok", "expiresIn": 3600})
	})
	mux.HandleFunc("/events/v1.0/events:polling", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer mkt-tok", r.Header.Get("Authorization"))
		assert.Equal(t, "m-1", r.Header.Get("x-polling-merchants"))
		if len(events) == 0 {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		json.NewEncoder(w).Encode(events)
	})
	mux.HandleFunc("/events/v1.0/events/acknowledgment", func(w http.ResponseWriter, r *http.Request) {
		var body []map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		acks = append(acks, body)
	})
	mux.HandleFunc("/order/v1.0/orders/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			actions = append(actions, r.URL.Path)
			w.WriteHeader(http.StatusAccepted)
			return
		}
		id := r.URL.Path[len("/order/v1.0/orders/"):]
		detail, ok := orders[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(detail)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &acks, &actions
}

func mktConfig(baseURL string) MarketplaceConfig {
	return MarketplaceConfig{BaseURL: baseURL, ClientID: "c", ClientSecret: "s", MerchantID: "m-1"}
}

func TestMarketplaceFetchPlacedAndCancelled(t *testing.T) {
	detail := map[string]any{
		"id":        "ord-1",
		"displayId": "1234",
		"orderType": "DELIVERY",
		"customer":  map[string]any{"name": "Bruno Lima", "phone": map[string]any{"number": "5511977776666"}},
		"delivery": map[string]any{"deliveryAddress": map[string]any{
			"streetName": "Av. Paulista", "streetNumber": "1000", "neighborhood": "Bela Vista",
		}},
		"total": map[string]any{
			"subTotal": 60.0, "deliveryFee": 9.9, "benefits": 5.0, "orderAmount": 64.9,
		},
		"payments": map[string]any{"methods": []any{
			map[string]any{"method": "PIX", "prepaid": true},
		}},
		"items": []any{map[string]any{
			"name": "Pizza Grande", "quantity": 1.0, "unitPrice": 60.0,
			"options": []any{
				map[string]any{"name": "Calabresa", "externalCode": "41"},
				map[string]any{"name": "Mussarela", "externalCode": "42"},
				map[string]any{"name": "Borda Catupiry", "externalCode": "91"},
			},
		}},
	}
	srv, acks, _ := marketplaceServer(t, []map[string]any{
		{"id": "ev-1", "code": "PLC", "orderId": "ord-1"},
		{"id": "ev-2", "code": "CAN", "orderId": "ord-9", "cancellationReason": "cliente desistiu"},
	}, map[string]any{"ord-1": detail})

	adapter := NewMarketplaceAdapter(mktConfig(srv.URL), zap.NewNop().Sugar())
	orders, err := adapter.FetchOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, orders, 2)

	placed := orders[0]
	assert.Equal(t, "ord-1", placed.ExternalID)
	assert.Equal(t, "1234", placed.DisplayID)
	assert.False(t, placed.IsUpdate)
	assert.Equal(t, enum.DeliveryTypeDelivery, placed.DeliveryType)
	assert.True(t, placed.Total.Equal(decimal.NewFromFloat(64.9)))
	assert.True(t, placed.DeliveryFee.Equal(decimal.NewFromFloat(9.9)))
	assert.True(t, placed.Discount.Equal(decimal.NewFromInt(5)))
	assert.Equal(t, "PIX (pago online via Marketplace)", placed.PaymentMethod)
	assert.Equal(t, "Bela Vista", placed.Address.Neighborhood)

	cancelled := orders[1]
	assert.True(t, cancelled.IsUpdate)
	assert.Equal(t, "ord-9", cancelled.ExternalID)
	assert.Equal(t, enum.OrderStatusCancelled, cancelled.Status)
	assert.Equal(t, "cliente desistiu", cancelled.CancelReason)

	require.Len(t, *acks, 1)
	assert.Equal(t, []map[string]string{{"id": "ev-1"}, {"id": "ev-2"}}, (*acks)[0])
}

func TestMarketplaceFailedOrderFetchNotAcked(t *testing.T) {
	srv, acks, _ := marketplaceServer(t, []map[string]any{
		{"id": "ev-1", "code": "PLC", "orderId": "missing"},
	}, map[string]any{})

	adapter := NewMarketplaceAdapter(mktConfig(srv.URL), zap.NewNop().Sugar())
	orders, err := adapter.FetchOrders(context.Background())
	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.Empty(t, *acks, "an unfetchable order must stay in the event queue")
}

func TestMarketplaceEmptyPoll(t *testing.T) {
	srv, acks, _ := marketplaceServer(t, nil, nil)
	adapter := NewMarketplaceAdapter(mktConfig(srv.URL), zap.NewNop().Sugar())
	orders, err := adapter.FetchOrders(context.Background())
	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.Empty(t, *acks)
}

func TestConvertMktItemClassifiesOptions(t *testing.T) {
	item := convertMktItem(mktItem{
		Name:     "Pizza Grande",
		Quantity: 1,
		Options: []mktOption{
			{Name: "Calabresa", ExternalCode: "41"},
			{Name: "Mussarela", ExternalCode: "42"},
			{Name: "Borda Catupiry", ExternalCode: "91"},
			{Name: "Refrigerante Lata", Quantity: 2},
		},
	})

	details, ok := item["details"].([]any)
	require.True(t, ok)
	require.Len(t, details, 4)

	first := details[0].(map[string]any)
	assert.Equal(t, "½ Calabresa", first["text"])
	assert.Equal(t, enum.DetailFlavor, first["type"])
	assert.Equal(t, "41", first["code"])

	edge := details[2].(map[string]any)
	assert.Equal(t, "Borda: Catupiry", edge["text"])
	assert.Equal(t, enum.DetailEdge, edge["type"])

	drink := details[3].(map[string]any)
	assert.Equal(t, "+ 2x Refrigerante Lata", drink["text"])
	assert.Equal(t, enum.DetailAddon, drink["type"])
}

func TestConvertMktItemNonPizza(t *testing.T) {
	item := convertMktItem(mktItem{
		Name:     "Lasanha Bolonhesa",
		Quantity: 1,
		Options:  []mktOption{{Name: "Queijo Extra", ExternalCode: "55"}},
	})
	details := item["details"].([]any)
	require.Len(t, details, 1)
	assert.Equal(t, "+ Queijo Extra", details[0].(map[string]any)["text"])
	assert.Equal(t, enum.DetailAddon, details[0].(map[string]any)["type"])
}

func TestConvertMktItemNestedCustomizations(t *testing.T) {
	item := convertMktItem(mktItem{
		Name:     "Combo Pizza + Bebida",
		Quantity: 1,
		Options: []mktOption{{
			Name:         "Guarana 2L",
			ExternalCode: "77",
			Quantity:     1,
			Customizations: []mktOption{
				{Name: "Copo extra", ExternalCode: "78", Quantity: 1},
			},
		}},
	})
	details := item["details"].([]any)
	require.Len(t, details, 2)

	parent := details[0].(map[string]any)
	assert.Equal(t, "+ Guarana 2L", parent["text"])

	nested := details[1].(map[string]any)
	assert.Equal(t, "    1x Copo extra", nested["text"])
	assert.Equal(t, enum.DetailInfo, nested["type"])
	assert.Equal(t, "78", nested["code"])
}

func TestMarketplacePushStatusActions(t *testing.T) {
	srv, _, actions := marketplaceServer(t, nil, nil)
	adapter := NewMarketplaceAdapter(mktConfig(srv.URL), zap.NewNop().Sugar())
	ctx := context.Background()

	require.NoError(t, adapter.PushStatus(ctx, PushRequest{ExternalID: "o1", Status: enum.OrderStatusPreparing}))
	require.NoError(t, adapter.PushStatus(ctx, PushRequest{ExternalID: "o1", Status: enum.OrderStatusDispatched, DeliveryType: enum.DeliveryTypeDelivery}))
	require.NoError(t, adapter.PushStatus(ctx, PushRequest{ExternalID: "o1", Status: enum.OrderStatusReady, DeliveryType: enum.DeliveryTypeDelivery}))
	require.NoError(t, adapter.PushStatus(ctx, PushRequest{ExternalID: "o2", Status: enum.OrderStatusReady, DeliveryType: enum.DeliveryTypeCounter}))
	require.NoError(t, adapter.RequestCancellation(ctx, PushRequest{ExternalID: "o3"}, "acabou o estoque"))

	assert.Equal(t, []string{
		"/order/v1.0/orders/o1/confirm",
		"/order/v1.0/orders/o1/dispatch",
		"/order/v1.0/orders/o2/readyToPickup",
		"/order/v1.0/orders/o3/requestCancellation",
	}, *actions)
}

func TestCancellationCodes(t *testing.T) {
	cases := map[string]string{
		"acabou o estoque de mussarela": "503",
		"restaurante fechado":           "513",
		"o cliente pediu para cancelar": "506",
		"problema no sistema":           "509",
	}
	for reason, want := range cases {
		assert.Equal(t, want, cancellationCode(reason), reason)
	}
}
