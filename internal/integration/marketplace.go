package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fornalha-pos/api/internal/enum"
)

type MarketplaceConfig struct {
	Enabled      bool   `json:"enabled"`
	BaseURL      string `json:"base_url"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	MerchantID   string `json:"merchant_id"`
}

// MarketplaceAdapter speaks to the marketplace's event API: client
// credentials auth, an event polling/acknowledgment pair, and per-order
// action endpoints going back.
type MarketplaceAdapter struct {
	cfg    MarketplaceConfig
	client *http.Client
	log    *zap.SugaredLogger

	mu       sync.Mutex
	token    string
	tokenExp time.Time
}

func NewMarketplaceAdapter(cfg MarketplaceConfig, log *zap.SugaredLogger) *MarketplaceAdapter {
	return &MarketplaceAdapter{cfg: cfg, client: newHTTPClient(), log: log}
}

func (a *MarketplaceAdapter) Source() string { return enum.SourceMarketplace }

func (a *MarketplaceAdapter) authToken(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.token != "" && time.Now().Before(a.tokenExp) {
		return a.token, nil
	}

	form := url.Values{
		"grantType":    {"client_credentials"},
		"clientId":     {a.cfg.ClientID},
		"clientSecret": {a.cfg.ClientSecret},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.cfg.BaseURL+"/authentication/v1.0/oauth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("marketplace auth: status %d", resp.StatusCode)
	}

	var body struct {
		AccessToken string `json:"accessToken"`
		ExpiresIn   int    `json:"expiresIn"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("marketplace auth: decode: %w", err)
	}
	if body.ExpiresIn <= 0 {
		body.ExpiresIn = 3600
	}
	a.token = body.AccessToken
	a.tokenExp = time.Now().Add(time.Duration(body.ExpiresIn-60) * time.Second)
	return a.token, nil
}

func (a *MarketplaceAdapter) invalidateToken() {
	a.mu.Lock()
	a.token = ""
	a.mu.Unlock()
}

func (a *MarketplaceAdapter) authed(ctx context.Context, fn func(token string) (int, error)) error {
	token, err := a.authToken(ctx)
	if err != nil {
		return err
	}
	status, err := fn(token)
	if status == http.StatusUnauthorized {
		a.invalidateToken()
		if token, err = a.authToken(ctx); err != nil {
			return err
		}
		_, err = fn(token)
	}
	return err
}

type mktEvent struct {
	ID      string `json:"id"`
	Code    string `json:"code"`
	OrderID string `json:"orderId"`
	Reason  string `json:"cancellationReason"`
}

const (
	eventPlaced    = "PLC"
	eventCancelled = "CAN"
)

// FetchOrders polls the event stream, resolves placement events into full
// orders and cancellation events into update envelopes, then acknowledges
// everything it consumed. Events whose order fetch failed are left
// unacknowledged so the platform redelivers them.
func (a *MarketplaceAdapter) FetchOrders(ctx context.Context) ([]StandardOrder, error) {
	var events []mktEvent
	err := a.authed(ctx, func(token string) (int, error) {
		return doJSON(ctx, a.client, http.MethodGet,
			a.cfg.BaseURL+"/events/v1.0/events:polling?types="+eventPlaced+","+eventCancelled,
			map[string]string{
				"Authorization":       "Bearer " + token,
				"x-polling-merchants": a.cfg.MerchantID,
			}, nil, &events)
	})
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}

	var orders []StandardOrder
	var acked []mktEvent
	for _, ev := range events {
		switch ev.Code {
		case eventPlaced:
			order, err := a.fetchOrder(ctx, ev.OrderID)
			if err != nil {
				a.log.Errorw("marketplace order fetch failed", "order_id", ev.OrderID, "err", err)
				continue
			}
			orders = append(orders, order)
		case eventCancelled:
			orders = append(orders, StandardOrder{
				ExternalID:   ev.OrderID,
				Source:       enum.SourceMarketplace,
				IsUpdate:     true,
				Status:       enum.OrderStatusCancelled,
				CancelReason: ev.Reason,
			})
		}
		acked = append(acked, ev)
	}
	a.acknowledge(ctx, acked)
	return orders, nil
}

func (a *MarketplaceAdapter) acknowledge(ctx context.Context, events []mktEvent) {
	if len(events) == 0 {
		return
	}
	body := make([]map[string]string, len(events))
	for i, ev := range events {
		body[i] = map[string]string{"id": ev.ID}
	}
	err := a.authed(ctx, func(token string) (int, error) {
		return doJSON(ctx, a.client, http.MethodPost,
			a.cfg.BaseURL+"/events/v1.0/events/acknowledgment",
			map[string]string{"Authorization": "Bearer " + token}, body, nil)
	})
	if err != nil {
		a.log.Errorw("marketplace ack failed", "count", len(events), "err", err)
	}
}

type mktOption struct {
	Name         string  `json:"name"`
	ExternalCode string  `json:"externalCode"`
	Quantity     float64 `json:"quantity"`
	Price        float64 `json:"price"`
	// Level-3 picks nested under an option, e.g. the cup bundled with a
	// combo's drink.
	Customizations []mktOption `json:"customizations"`
}

type mktItem struct {
	Name         string      `json:"name"`
	ExternalCode string      `json:"externalCode"`
	Quantity     float64     `json:"quantity"`
	UnitPrice    float64     `json:"unitPrice"`
	Observations string      `json:"observations"`
	Options      []mktOption `json:"options"`
}

type mktOrderDetail struct {
	ID        string `json:"id"`
	DisplayID string `json:"displayId"`
	OrderType string `json:"orderType"`
	Customer  struct {
		Name  string `json:"name"`
		Phone struct {
			Number string `json:"number"`
		} `json:"phone"`
	} `json:"customer"`
	Delivery struct {
		DeliveryAddress struct {
			StreetName   string `json:"streetName"`
			StreetNumber string `json:"streetNumber"`
			Neighborhood string `json:"neighborhood"`
			City         string `json:"city"`
			State        string `json:"state"`
			PostalCode   string `json:"postalCode"`
			Complement   string `json:"complement"`
		} `json:"deliveryAddress"`
	} `json:"delivery"`
	Total struct {
		SubTotal    float64 `json:"subTotal"`
		DeliveryFee float64 `json:"deliveryFee"`
		Benefits    float64 `json:"benefits"`
		OrderAmount float64 `json:"orderAmount"`
	} `json:"total"`
	Payments struct {
		Methods []struct {
			Method  string `json:"method"`
			Prepaid bool   `json:"prepaid"`
		} `json:"methods"`
	} `json:"payments"`
	Items []mktItem `json:"items"`
}

func (a *MarketplaceAdapter) fetchOrder(ctx context.Context, orderID string) (StandardOrder, error) {
	var detail mktOrderDetail
	err := a.authed(ctx, func(token string) (int, error) {
		return doJSON(ctx, a.client, http.MethodGet,
			a.cfg.BaseURL+"/order/v1.0/orders/"+orderID,
			map[string]string{"Authorization": "Bearer " + token}, nil, &detail)
	})
	if err != nil {
		return StandardOrder{}, err
	}
	return a.convert(detail), nil
}

// convert relies on the explicit money fields the marketplace reports;
// unlike the hub there is nothing to reconcile.
func (a *MarketplaceAdapter) convert(d mktOrderDetail) StandardOrder {
	o := StandardOrder{
		ExternalID:    d.ID,
		DisplayID:     d.DisplayID,
		Source:        enum.SourceMarketplace,
		DeliveryType:  deliveryTypeFor(d.OrderType),
		Total:         decimal.NewFromFloat(d.Total.OrderAmount),
		DeliveryFee:   decimal.NewFromFloat(d.Total.DeliveryFee),
		Discount:      decimal.NewFromFloat(d.Total.Benefits),
		PaymentMethod: mktPaymentLabel(d),
		Customer: Customer{
			Name:  d.Customer.Name,
			Phone: d.Customer.Phone.Number,
		},
	}
	if o.DisplayID == "" {
		o.DisplayID = d.ID
	}
	if o.DeliveryType == enum.DeliveryTypeDelivery {
		addr := d.Delivery.DeliveryAddress
		o.Address = Address{
			Street:       addr.StreetName,
			Number:       addr.StreetNumber,
			Neighborhood: addr.Neighborhood,
			City:         addr.City,
			State:        addr.State,
			Zip:          addr.PostalCode,
			Complement:   addr.Complement,
		}
	}
	for _, item := range d.Items {
		o.Items = append(o.Items, convertMktItem(item))
	}
	return o
}

func mktPaymentLabel(d mktOrderDetail) string {
	var labels []string
	for _, m := range d.Payments.Methods {
		label := m.Method + " (Marketplace)"
		if m.Prepaid {
			label = m.Method + " (pago online via Marketplace)"
		}
		labels = append(labels, label)
	}
	return strings.Join(labels, " / ")
}

// convertMktItem classifies the flat options list into typed detail lines.
// On a pizza, options that are neither edge nor drink are the flavors; the
// marketplace models half-and-half as one item whose flavors are options.
func convertMktItem(item mktItem) map[string]any {
	isPizza := strings.Contains(strings.ToLower(item.Name), "pizza")

	var flavors, others []mktOption
	for _, opt := range item.Options {
		if isPizza && isFlavorOption(opt) {
			flavors = append(flavors, opt)
		} else {
			others = append(others, opt)
		}
	}

	details := make([]any, 0, len(item.Options))
	frac := fractionPrefix(len(flavors))
	for _, f := range flavors {
		details = append(details, map[string]any{
			"text": frac + f.Name,
			"code": f.ExternalCode,
			"type": enum.DetailFlavor,
		})
		details = append(details, mktSubItemLines(f)...)
	}
	for _, opt := range others {
		low := strings.ToLower(opt.Name)
		if strings.Contains(low, "borda") {
			details = append(details, map[string]any{
				"text": "Borda: " + edgeName(opt.Name),
				"code": opt.ExternalCode,
				"type": enum.DetailEdge,
			})
			details = append(details, mktSubItemLines(opt)...)
			continue
		}
		text := "+ " + opt.Name
		if qty := int(opt.Quantity); qty > 1 {
			text = "+ " + strconv.Itoa(qty) + "x " + opt.Name
		}
		details = append(details, map[string]any{
			"text": text,
			"code": opt.ExternalCode,
			"type": enum.DetailAddon,
		})
		details = append(details, mktSubItemLines(opt)...)
	}

	out := map[string]any{
		"title":         item.Name,
		"quantity":      item.Quantity,
		"price":         item.UnitPrice,
		"external_code": item.ExternalCode,
		"observation":   item.Observations,
		"details":       details,
	}
	return out
}

// mktSubItemLines renders an option's nested picks one level below it.
func mktSubItemLines(opt mktOption) []any {
	var out []any
	for _, sub := range opt.Customizations {
		qty := int(sub.Quantity)
		if qty < 1 {
			qty = 1
		}
		out = append(out, map[string]any{
			"text": "    " + strconv.Itoa(qty) + "x " + sub.Name,
			"code": sub.ExternalCode,
			"type": enum.DetailInfo,
		})
	}
	return out
}

func isFlavorOption(opt mktOption) bool {
	low := strings.ToLower(opt.Name)
	for _, word := range []string{"borda", "refrigerante", "suco", "agua", "cerveja"} {
		if strings.Contains(low, word) {
			return false
		}
	}
	return true
}

func fractionPrefix(n int) string {
	switch {
	case n <= 1:
		return ""
	case n == 2:
		return "½ "
	default:
		return "1/" + strconv.Itoa(n) + " "
	}
}

// edgeName drops the platform's "Borda" prefix so the label is not doubled.
func edgeName(name string) string {
	name = strings.TrimSpace(name)
	for _, prefix := range []string{"Borda ", "borda "} {
		name = strings.TrimPrefix(name, prefix)
	}
	return name
}

// Cancellation codes the marketplace accepts; chosen by scanning the local
// reason text.
func cancellationCode(reason string) string {
	low := strings.ToLower(reason)
	switch {
	case containsAny(low, "estoque", "stock", "falta", "acabou"):
		return "503"
	case containsAny(low, "fechad", "closed", "encerr"):
		return "513"
	case containsAny(low, "cliente", "customer", "solicit"):
		return "506"
	default:
		return "509"
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func (a *MarketplaceAdapter) PushStatus(ctx context.Context, req PushRequest) error {
	var action string
	switch req.Status {
	case enum.OrderStatusPreparing:
		action = "confirm"
	case enum.OrderStatusReady:
		if req.DeliveryType == enum.DeliveryTypeDelivery {
			return nil
		}
		action = "readyToPickup"
	case enum.OrderStatusDispatched:
		action = "dispatch"
	default:
		return nil
	}
	return a.authed(ctx, func(token string) (int, error) {
		return doJSON(ctx, a.client, http.MethodPost,
			a.cfg.BaseURL+"/order/v1.0/orders/"+req.ExternalID+"/"+action,
			map[string]string{"Authorization": "Bearer " + token}, nil, nil)
	})
}

func (a *MarketplaceAdapter) RequestCancellation(ctx context.Context, req PushRequest, reason string) error {
	body := map[string]string{
		"reason":           reason,
		"cancellationCode": cancellationCode(reason),
	}
	return a.authed(ctx, func(token string) (int, error) {
		return doJSON(ctx, a.client, http.MethodPost,
			a.cfg.BaseURL+"/order/v1.0/orders/"+req.ExternalID+"/requestCancellation",
			map[string]string{"Authorization": "Bearer " + token}, body, nil)
	})
}
