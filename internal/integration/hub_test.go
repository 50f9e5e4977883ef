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

func hubServer(t *testing.T, orders []map[string]any) (*httptest.Server, *[]string) {
	t.Helper()
	var tokens []string
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "password", r.Form.Get("grant_type"))
		json.NewEncoder(w).Encode(map[string]any{"access_token": "tok-1", "expires_in": 3600})
	})
	mux.HandleFunc("/api/orders/pending", func(w http.ResponseWriter, r *http.Request) {
		tokens = append(tokens, r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]any{"orders": orders})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &tokens
}

func TestHubFetchDeliveryOrder(t *testing.T) {
	srv, tokens := hubServer(t, []map[string]any{{
		"id":    4821,
		"code":  "4821",
		"total": 58.0,
		"customer": map[string]any{
			"name":  "Ana Souza",
			"phone": map[string]any{"ddd": "11", "number": "98888-7777"},
		},
		"service": map[string]any{
			"type": "internal_delivery",
			"address": map[string]any{
				"street":       "Rua das Flores",
				"number":       "120",
				"neighborhood": "Centro",
				"city":         "Sao Paulo",
			},
		},
		"payment": map[string]any{"method": "Dinheiro", "change_for": 100.0},
		"items": []map[string]any{
			{"groupName": "PIZZAS GRANDES", "products": []any{
				map[string]any{"name": "Pizza Grande", "qty": 1, "price": 50.0, "parts": []any{
					map[string]any{"name": "Calabresa"},
				}},
			}},
		},
	}})

	adapter := NewHubAdapter(HubConfig{BaseURL: srv.URL, Username: "u", Password: "p"}, zap.NewNop().Sugar())
	orders, err := adapter.FetchOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, orders, 1)

	o := orders[0]
	assert.Equal(t, "4821", o.ExternalID)
	assert.Equal(t, enum.SourceHub, o.Source)
	assert.Equal(t, enum.DeliveryTypeDelivery, o.DeliveryType)
	assert.Equal(t, "5511988887777", o.Customer.Phone)
	assert.Equal(t, "Centro", o.Address.Neighborhood)
	// No fee reported and total above the item sum: the 8.00 gap is the fee.
	assert.True(t, o.DeliveryFee.Equal(decimal.NewFromInt(8)), "fee = %s", o.DeliveryFee)
	assert.True(t, o.Discount.IsZero())
	// Change above the total folds into the payment description.
	assert.Equal(t, "Dinheiro (troco para R$ 100.00)", o.PaymentMethod)
	assert.Equal(t, []string{"Bearer tok-1"}, *tokens)
}

func TestHubFetchDiscountedOrder(t *testing.T) {
	srv, _ := hubServer(t, []map[string]any{{
		"id":           77,
		"code":         "77",
		"total":        45.0,
		"delivery_fee": 5.0,
		"service":      map[string]any{"type": "pickup"},
		"payment":      map[string]any{"method": "Pix"},
		"items": []map[string]any{
			{"groupName": "PIZZAS MEDIAS", "products": []any{
				map[string]any{"name": "Pizza Media", "qty": 1, "price": 50.0},
			}},
		},
	}})

	adapter := NewHubAdapter(HubConfig{BaseURL: srv.URL}, zap.NewNop().Sugar())
	orders, err := adapter.FetchOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, orders, 1)

	o := orders[0]
	assert.Equal(t, enum.DeliveryTypeCounter, o.DeliveryType)
	// Total below items+fee: the 10.00 gap is a discount.
	assert.True(t, o.Discount.Equal(decimal.NewFromInt(10)), "discount = %s", o.Discount)
	assert.True(t, o.DeliveryFee.Equal(decimal.NewFromInt(5)))
	assert.Equal(t, "Pix", o.PaymentMethod)
	assert.Empty(t, o.Address.Street, "pickup orders carry no address")
}

func TestHubMergesRepeatedItems(t *testing.T) {
	line := func() map[string]any {
		return map[string]any{
			"groupName": "PIZZAS GRANDES",
			"products": []any{map[string]any{
				"name": "Pizza Grande", "qty": 1, "price": 50.0,
				"parts": []any{map[string]any{"name": "Calabresa"}, map[string]any{"name": "Mussarela"}},
			}},
		}
	}
	other := map[string]any{
		"groupName": "PIZZAS GRANDES",
		"products": []any{map[string]any{
			"name": "Pizza Grande", "qty": 1, "price": 50.0,
			"parts": []any{map[string]any{"name": "Portuguesa"}, map[string]any{"name": "Mussarela"}},
		}},
	}
	srv, _ := hubServer(t, []map[string]any{{
		"id": 9, "code": "9", "total": 150.0,
		"service": map[string]any{"type": "pickup"},
		"payment": map[string]any{"method": "Pix"},
		"items":   []map[string]any{line(), line(), other},
	}})

	adapter := NewHubAdapter(HubConfig{BaseURL: srv.URL}, zap.NewNop().Sugar())
	orders, err := adapter.FetchOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, orders[0].Items, 2)
	assert.Equal(t, 2.0, rawFloat(orders[0].Items[0], "quantity", 0))
	assert.Equal(t, 1.0, rawFloat(orders[0].Items[1], "quantity", 0))
}

func TestHubExpandsGroupProducts(t *testing.T) {
	group := map[string]any{
		"groupName": "PIZZAS GRANDES",
		"products": []any{
			map[string]any{
				"name": "Meio a Meio", "qty": 1.0, "price": 60.0,
				"parts": []any{
					map[string]any{
						"name": "Calabresa", "externalCode": "41",
						"customization": map[string]any{
							"additionals": []any{map[string]any{
								"options": []any{map[string]any{"name": "Catupiry", "externalCode": "91"}},
							}},
						},
					},
					map[string]any{"name": "Portuguesa", "externalCode": "42"},
				},
			},
			map[string]any{"name": "Guarana 2L", "qty": 2.0, "price": 12.0, "externalCode": "77"},
		},
	}

	items := expandGroups([]map[string]any{group})
	require.Len(t, items, 2, "one item per product")

	first := items[0]
	assert.Equal(t, "PIZZAS GRANDES", first["title"])
	lines, ok := first["display_lines"].([]map[string]any)
	require.True(t, ok)
	var texts []string
	for _, l := range lines {
		texts = append(texts, l["text"].(string))
	}
	assert.Equal(t, []string{"½ Calabresa", "+ Catupiry", "½ Portuguesa"}, texts)
	assert.Equal(t, "41", lines[0]["code"])
	assert.Equal(t, enum.DetailAddon, lines[1]["type"])
	assert.Equal(t, "41", first["external_code"], "main code falls back to the first part")

	second := items[1]
	assert.Equal(t, "Guarana 2L", second["title"])
	assert.Equal(t, 2.0, second["quantity"])
	assert.Equal(t, "77", second["external_code"])
}

func TestHubDetachesComboPicks(t *testing.T) {
	group := map[string]any{
		"groupName": "COMBO FAMILIA",
		"products": []any{map[string]any{
			"name": "Combo Pizza + Bebida", "qty": 1.0, "price": 75.0, "externalCode": "C1",
			"parts": []any{map[string]any{
				"name": "Calabresa",
				"customization": map[string]any{
					"combo": []any{map[string]any{
						"options": []any{map[string]any{
							"name": "Guarana 2L", "externalCode": "77", "price": 10.0, "amount": 1.0,
						}},
					}},
				},
			}},
		}},
	}

	items := expandGroups([]map[string]any{group})
	require.Len(t, items, 2)
	assert.Equal(t, 65.0, items[0]["price"], "pick price moves off the product")

	pick := items[1]
	assert.Equal(t, "Guarana 2L", pick["title"])
	assert.Equal(t, 10.0, pick["price"])
	lines, ok := pick["display_lines"].([]map[string]any)
	require.True(t, ok)
	require.NotEmpty(t, lines)
	assert.Equal(t, "Item do Combo", lines[0]["text"])
}

func TestHubReauthOn401(t *testing.T) {
	calls := 0
	issued := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		issued++
		json.NewEncoder(w).Encode(map[string]any{"access_token": "tok", "expires_in": 3600})
	})
	mux.HandleFunc("/api/orders/pending", func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"orders": []any{}})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	adapter := NewHubAdapter(HubConfig{BaseURL: srv.URL}, zap.NewNop().Sugar())
	_, err := adapter.FetchOrders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "expected a retry after 401")
	assert.Equal(t, 2, issued, "expected a fresh token after 401")
}

func TestHubStatusCodes(t *testing.T) {
	adapter := NewHubAdapter(HubConfig{}, zap.NewNop().Sugar())
	cases := []struct {
		status   string
		delivery string
		code     int
		send     bool
	}{
		{enum.OrderStatusPreparing, enum.DeliveryTypeDelivery, hubCodePreparing, true},
		{enum.OrderStatusReady, enum.DeliveryTypeCounter, hubCodeReady, true},
		{enum.OrderStatusReady, enum.DeliveryTypeDelivery, 0, false},
		{enum.OrderStatusDispatched, enum.DeliveryTypeDelivery, hubCodeDispatched, true},
		{enum.OrderStatusCompleted, enum.DeliveryTypeCounter, hubCodeDelivered, true},
		{enum.OrderStatusCancelled, enum.DeliveryTypeDelivery, hubCodeCancelled, true},
	}
	for _, tc := range cases {
		code, send := adapter.statusCode(PushRequest{Status: tc.status, DeliveryType: tc.delivery})
		assert.Equal(t, tc.send, send, "%s/%s", tc.status, tc.delivery)
		if send {
			assert.Equal(t, tc.code, code, "%s/%s", tc.status, tc.delivery)
		}
	}
}

func TestReconcileMoneyLargeGapIsNotAFee(t *testing.T) {
	total, fee, discount := reconcileMoney(
		decimal.NewFromInt(200), decimal.Zero, decimal.NewFromInt(100))
	assert.True(t, fee.IsZero(), "a 100.00 gap is a data error, not a fee")
	assert.True(t, discount.IsZero())
	assert.True(t, total.Equal(decimal.NewFromInt(200)))
}
