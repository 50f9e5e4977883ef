package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fornalha-pos/api/internal/enum"
	"github.com/fornalha-pos/api/internal/normalizer"
)

type HubConfig struct {
	Enabled  bool   `json:"enabled"`
	BaseURL  string `json:"base_url"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// HubAdapter speaks to the white-label ordering hub: password-grant auth,
// a pending-orders pull endpoint and numeric status codes going back.
type HubAdapter struct {
	cfg    HubConfig
	client *http.Client
	log    *zap.SugaredLogger

	mu       sync.Mutex
	token    string
	tokenExp time.Time
}

func NewHubAdapter(cfg HubConfig, log *zap.SugaredLogger) *HubAdapter {
	return &HubAdapter{cfg: cfg, client: newHTTPClient(), log: log}
}

func (a *HubAdapter) Source() string { return enum.SourceHub }

func (a *HubAdapter) authToken(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.token != "" && time.Now().Before(a.tokenExp) {
		return a.token, nil
	}

	form := url.Values{
		"grant_type": {"password"},
		"username":   {a.cfg.Username},
		"password":   {a.cfg.Password},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/oauth/token", strings.NewReader(form.Encode()))
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
		return "", fmt.Errorf("hub auth: status %d", resp.StatusCode)
	}

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("hub auth: decode: %w", err)
	}
	if body.ExpiresIn <= 0 {
		body.ExpiresIn = 3600
	}
	a.token = body.AccessToken
	// Refresh a minute early so in-flight requests never race expiry.
	a.tokenExp = time.Now().Add(time.Duration(body.ExpiresIn-60) * time.Second)
	return a.token, nil
}

func (a *HubAdapter) invalidateToken() {
	a.mu.Lock()
	a.token = ""
	a.mu.Unlock()
}

// authed runs fn with a bearer token, re-authenticating once on 401.
func (a *HubAdapter) authed(ctx context.Context, fn func(token string) (int, error)) error {
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

type hubOrder struct {
	ID       json.Number `json:"id"`
	Code     string      `json:"code"`
	Total    float64     `json:"total"`
	Fee      float64     `json:"delivery_fee"`
	Notes    string      `json:"notes"`
	Customer struct {
		Name  string `json:"name"`
		Email string `json:"email"`
		Phone struct {
			DDD    string `json:"ddd"`
			Number string `json:"number"`
		} `json:"phone"`
	} `json:"customer"`
	Service struct {
		Type    string `json:"type"`
		Address struct {
			Street       string `json:"street"`
			Number       string `json:"number"`
			Neighborhood string `json:"neighborhood"`
			City         string `json:"city"`
			State        string `json:"state"`
			Zip          string `json:"zip"`
			Complement   string `json:"complement"`
		} `json:"address"`
	} `json:"service"`
	Payment struct {
		Method    string  `json:"method"`
		ChangeFor float64 `json:"change_for"`
	} `json:"payment"`
	Items []map[string]any `json:"items"`
}

func (a *HubAdapter) FetchOrders(ctx context.Context) ([]StandardOrder, error) {
	var payload struct {
		Orders []hubOrder `json:"orders"`
	}
	err := a.authed(ctx, func(token string) (int, error) {
		return doJSON(ctx, a.client, http.MethodGet, a.cfg.BaseURL+"/api/orders/pending",
			map[string]string{"Authorization": "Bearer " + token}, nil, &payload)
	})
	if err != nil {
		return nil, err
	}

	orders := make([]StandardOrder, 0, len(payload.Orders))
	for _, raw := range payload.Orders {
		orders = append(orders, a.convert(raw))
	}
	return orders, nil
}

func (a *HubAdapter) convert(raw hubOrder) StandardOrder {
	items := expandGroups(raw.Items)
	// Sum before merging: the merge rewrites quantities in place.
	lineSum := itemsSum(items)

	o := StandardOrder{
		ExternalID:   raw.ID.String(),
		DisplayID:    raw.Code,
		Source:       enum.SourceHub,
		DeliveryType: deliveryTypeFor(raw.Service.Type),
		Notes:        raw.Notes,
		Items:        mergeRepeatedItems(items),
		Customer: Customer{
			Name:  raw.Customer.Name,
			Email: raw.Customer.Email,
			Phone: hubPhone(raw.Customer.Phone.DDD, raw.Customer.Phone.Number),
		},
	}
	if o.DisplayID == "" {
		o.DisplayID = o.ExternalID
	}
	if o.DeliveryType == enum.DeliveryTypeDelivery {
		addr := raw.Service.Address
		o.Address = Address{
			Street:       addr.Street,
			Number:       addr.Number,
			Neighborhood: addr.Neighborhood,
			City:         addr.City,
			State:        addr.State,
			Zip:          addr.Zip,
			Complement:   addr.Complement,
		}
	}

	o.Total = decimal.NewFromFloat(raw.Total)
	o.DeliveryFee = decimal.NewFromFloat(raw.Fee)
	o.Total, o.DeliveryFee, o.Discount = reconcileMoney(o.Total, o.DeliveryFee, lineSum)

	o.PaymentMethod = raw.Payment.Method
	if change := decimal.NewFromFloat(raw.Payment.ChangeFor); change.GreaterThan(o.Total) {
		o.PaymentMethod = fmt.Sprintf("%s (troco para R$ %s)", raw.Payment.Method, change.StringFixed(2))
	}
	return o
}

// itemsSum totals quantity times unit price across the expanded items.
func itemsSum(items []map[string]any) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range items {
		qty := decimal.NewFromFloat(rawFloat(it, "quantity", 1))
		price := decimal.NewFromFloat(rawFloat(it, "price", 0))
		sum = sum.Add(qty.Mul(price))
	}
	return sum
}

// expandGroups flattens the hub's groups into one standardized item per
// product. A product's parts become fraction-labeled flavor lines, each
// followed by that part's additionals, edge and removals; combo picks nested
// inside a part detach into their own child items. Items that are not groups
// pass through untouched.
func expandGroups(items []map[string]any) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, it := range items {
		products := rawMaps(it, "products")
		if len(products) == 0 {
			out = append(out, it)
			continue
		}
		groupName := cleanRawName(rawString(it, "groupName", "group_name", "name"))
		for _, p := range products {
			out = append(out, expandProduct(groupName, p)...)
		}
	}
	return out
}

// hubUpsell is a combo pick lifted out of a part's customization: it ships
// as its own item so the kitchen sees it on its own line.
type hubUpsell struct {
	name    string
	code    string
	qty     float64
	price   float64
	details []map[string]any
}

func expandProduct(groupName string, p map[string]any) []map[string]any {
	qty := rawFloat(p, "qty", rawFloat(p, "quantity", 1))
	if qty <= 0 {
		qty = 1
	}
	price := rawFloat(p, "price", 0)
	parts := rawMaps(p, "parts")

	type flavorPart struct {
		name  string
		code  string
		lines []map[string]any
	}
	var flavors []flavorPart
	var upsells []hubUpsell

	for _, part := range parts {
		fp := flavorPart{
			name: cleanRawName(rawString(part, "name")),
			code: rawString(part, "externalCode", "code"),
		}
		cust, _ := part["customization"].(map[string]any)

		for _, grp := range rawMaps(cust, "combo") {
			for _, opt := range rawMaps(grp, "options") {
				up := hubUpsell{
					name:  cleanRawName(rawString(opt, "name")),
					code:  rawString(opt, "externalCode", "code", "productId", "id"),
					qty:   rawFloat(opt, "amount", rawFloat(opt, "qty", 1)),
					price: rawFloat(opt, "price", 0),
				}
				if up.qty <= 0 {
					up.qty = 1
				}
				subCust, _ := opt["customization"].(map[string]any)
				for _, sgrp := range rawMaps(subCust, "additionals") {
					for _, sopt := range rawMaps(sgrp, "options") {
						if n := rawString(sopt, "name"); n != "" {
							up.details = append(up.details, displayLine("+ "+n, enum.DetailAddon, rawString(sopt, "externalCode", "code")))
						}
					}
				}
				if obs := rawString(opt, "obs"); obs != "" {
					up.details = append(up.details, displayLine("Obs: "+obs, enum.DetailObs, ""))
				}
				if up.name != "" {
					upsells = append(upsells, up)
				}
			}
		}

		for _, grp := range rawMaps(cust, "additionals") {
			for _, opt := range rawMaps(grp, "options") {
				n := rawString(opt, "name")
				if n == "" {
					continue
				}
				if strings.HasPrefix(strings.ToLower(n), "sem ") {
					fp.lines = append(fp.lines, displayLine("Sem: "+strings.TrimSpace(n[4:]), enum.DetailRemoved, ""))
					continue
				}
				fp.lines = append(fp.lines, displayLine("+ "+n, enum.DetailAddon, rawString(opt, "externalCode", "code")))
			}
		}
		if edge, ok := cust["edge"].(map[string]any); ok {
			for _, opt := range rawMaps(edge, "options") {
				if n := rawString(opt, "name"); n != "" {
					fp.lines = append(fp.lines, displayLine("Borda: "+n, enum.DetailEdge, rawString(opt, "externalCode", "code")))
				}
			}
		}
		for _, grp := range rawMaps(cust, "others") {
			for _, opt := range rawMaps(grp, "options") {
				if n := rawString(opt, "name"); n != "" {
					fp.lines = append(fp.lines, displayLine(n, enum.DetailInfo, ""))
				}
			}
		}
		if obs := rawString(part, "obs"); obs != "" {
			fp.lines = append(fp.lines, displayLine("Obs: "+obs, enum.DetailObs, ""))
		}

		if fp.name != "" {
			flavors = append(flavors, fp)
		}
	}

	// Combo picks ride on the product total; move their price onto their
	// own lines.
	for _, up := range upsells {
		price -= up.price
	}
	if price < 0 {
		price = 0
	}

	name := cleanRawName(rawString(p, "name"))
	title := name
	if title == "" || len(flavors) > 0 {
		title = groupName
	}
	if title == "" {
		title = name
	}

	code := rawString(p, "externalCode", "code")
	if code == "" && len(parts) > 0 {
		code = rawString(parts[0], "externalCode", "code")
	}

	frac := normalizer.FractionLabel(len(flavors))
	var lines []map[string]any
	for _, fp := range flavors {
		lines = append(lines, displayLine(strings.TrimSpace(frac+fp.name), enum.DetailFlavor, fp.code))
		lines = append(lines, fp.lines...)
	}
	if obs := rawString(p, "obs"); obs != "" {
		lines = append(lines, displayLine("Obs: "+obs, enum.DetailObs, ""))
	}

	out := []map[string]any{{
		"title":         title,
		"quantity":      qty,
		"price":         price,
		"display_lines": lines,
		"external_code": code,
	}}
	for _, up := range upsells {
		var ulines []map[string]any
		if len(up.details) > 0 || strings.Contains(strings.ToUpper(groupName), "COMBO") {
			ulines = append(ulines, displayLine("Item do Combo", enum.DetailInfo, ""))
		}
		ulines = append(ulines, up.details...)
		out = append(out, map[string]any{
			"title":         up.name,
			"quantity":      up.qty * qty,
			"price":         up.price,
			"display_lines": ulines,
			"external_code": up.code,
		})
	}
	return out
}

func displayLine(text, lineType, code string) map[string]any {
	l := map[string]any{"text": text, "type": lineType}
	if code != "" {
		l["code"] = code
	}
	return l
}

// Hub names sometimes arrive with a leading "(123) " menu number.
var hubNamePrefix = regexp.MustCompile(`^\(\d+\)\s*`)

func cleanRawName(name string) string {
	name = hubNamePrefix.ReplaceAllString(strings.TrimSpace(name), "")
	return strings.TrimSpace(strings.ReplaceAll(name, "PIZZA PIZZA", "PIZZA"))
}

func rawString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case json.Number:
			return v.String()
		case float64:
			if v != 0 {
				return strconv.FormatFloat(v, 'f', -1, 64)
			}
		}
	}
	return ""
}

func rawMaps(m map[string]any, keys ...string) []map[string]any {
	for _, k := range keys {
		l, ok := m[k].([]any)
		if !ok || len(l) == 0 {
			continue
		}
		var out []map[string]any
		for _, v := range l {
			if mv, ok := v.(map[string]any); ok {
				out = append(out, mv)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return nil
}

// reconcileMoney squares the hub's reported total against the item lines.
// The hub omits the discount field and sometimes the fee, so the gap tells
// us which one is missing: a total below items+fee is a discount, a total
// above bare items with no fee is the fee itself, as long as the gap looks
// like a fee and not a data error.
func reconcileMoney(total, fee, items decimal.Decimal) (decimal.Decimal, decimal.Decimal, decimal.Decimal) {
	discount := decimal.Zero
	expected := items.Add(fee)
	cent := decimal.NewFromFloat(0.01)
	maxFee := decimal.NewFromInt(50)

	switch {
	case total.LessThan(expected):
		if gap := expected.Sub(total); gap.GreaterThan(cent) {
			discount = gap
		}
	case total.GreaterThan(expected) && fee.IsZero():
		if gap := total.Sub(items); gap.LessThan(maxFee) {
			fee = gap
		}
	}
	return total, fee, discount
}

func hubPhone(ddd, number string) string {
	digits := strings.Map(keepDigits, ddd) + strings.Map(keepDigits, number)
	if digits == "" {
		return ""
	}
	if strings.HasPrefix(digits, "55") && len(digits) > 11 {
		return digits
	}
	return "55" + digits
}

func keepDigits(r rune) rune {
	if r >= '0' && r <= '9' {
		return r
	}
	return -1
}

// mergeRepeatedItems collapses identical lines into one with a summed
// quantity. The hub sends one line per unit for quantity combos, and the
// kitchen wants "3x" rather than three tickets. Identity is the normalized
// name plus the sorted detail texts.
func mergeRepeatedItems(items []map[string]any) []map[string]any {
	index := map[string]int{}
	out := make([]map[string]any, 0, len(items))
	for _, it := range items {
		norm := normalizer.Normalize(normalizer.OrderView{Source: enum.SourceHub, Items: []map[string]any{it}})
		texts := make([]string, 0, len(norm[0].Details))
		for _, d := range norm[0].Details {
			texts = append(texts, d.Text)
		}
		sort.Strings(texts)
		key := strings.ToLower(norm[0].Name) + "|" + strings.Join(texts, ";")

		if i, ok := index[key]; ok {
			out[i]["quantity"] = rawFloat(out[i], "quantity", 1) + rawFloat(it, "quantity", 1)
			continue
		}
		index[key] = len(out)
		out = append(out, it)
	}
	return out
}

func rawFloat(m map[string]any, key string, fallback float64) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f
		}
	}
	return fallback
}

// Outbound status codes the hub understands.
const (
	hubCodePreparing  = 3
	hubCodeReady      = 4
	hubCodeDispatched = 5
	hubCodeDelivered  = 6
	hubCodeCancelled  = 7
)

// statusCode maps a local status onto the hub's code table. Ready is a
// pickup-only signal: for delivery orders the customer only cares about
// dispatch, so ready is not forwarded.
func (a *HubAdapter) statusCode(req PushRequest) (int, bool) {
	switch req.Status {
	case enum.OrderStatusPreparing, enum.OrderStatusExpediting:
		return hubCodePreparing, true
	case enum.OrderStatusReady:
		if req.DeliveryType == enum.DeliveryTypeDelivery {
			return 0, false
		}
		return hubCodeReady, true
	case enum.OrderStatusDispatched:
		return hubCodeDispatched, true
	case enum.OrderStatusDelivered, enum.OrderStatusCompleted:
		return hubCodeDelivered, true
	case enum.OrderStatusCancelled:
		return hubCodeCancelled, true
	}
	return 0, false
}

func (a *HubAdapter) PushStatus(ctx context.Context, req PushRequest) error {
	code, ok := a.statusCode(req)
	if !ok {
		return nil
	}
	return a.pushCode(ctx, req.ExternalID, code, "")
}

func (a *HubAdapter) RequestCancellation(ctx context.Context, req PushRequest, reason string) error {
	return a.pushCode(ctx, req.ExternalID, hubCodeCancelled, reason)
}

func (a *HubAdapter) pushCode(ctx context.Context, externalID string, code int, reason string) error {
	body := map[string]any{"status": code}
	if reason != "" {
		body["reason"] = reason
	}
	return a.authed(ctx, func(token string) (int, error) {
		return doJSON(ctx, a.client, http.MethodPost,
			fmt.Sprintf("%s/api/orders/%s/status", a.cfg.BaseURL, externalID),
			map[string]string{"Authorization": "Bearer " + token}, body, nil)
	})
}
