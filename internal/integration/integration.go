package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fornalha-pos/api/internal/enum"
)

// Customer is the buyer as reported by the source platform.
type Customer struct {
	Name  string
	Phone string
	Email string
}

type Address struct {
	Street       string
	Number       string
	Neighborhood string
	City         string
	State        string
	Zip          string
	Complement   string
}

// StandardOrder is the platform-agnostic envelope every adapter emits.
// Items carry the raw display shape that the normalizer understands; money
// travels as decimals end to end.
type StandardOrder struct {
	ExternalID    string
	DisplayID     string
	Source        string
	Customer      Customer
	Address       Address
	DeliveryType  string
	PaymentMethod string
	Total         decimal.Decimal
	DeliveryFee   decimal.Decimal
	Discount      decimal.Decimal
	Notes         string
	Items         []map[string]any

	// Update envelopes reference an already-ingested order instead of
	// describing a new one.
	IsUpdate     bool
	Status       string
	CancelReason string
}

// PushRequest identifies a local order whose status must reach the source
// platform.
type PushRequest struct {
	ExternalID   string
	DisplayID    string
	Status       string
	DeliveryType string
}

// Adapter is one integration: it pulls new orders in and pushes status
// transitions back out.
type Adapter interface {
	Source() string
	FetchOrders(ctx context.Context) ([]StandardOrder, error)
	PushStatus(ctx context.Context, req PushRequest) error
	RequestCancellation(ctx context.Context, req PushRequest, reason string) error
}

// storeConfig mirrors the integrations_config JSON persisted per store.
type storeConfig struct {
	Hub         *HubConfig         `json:"hub"`
	Marketplace *MarketplaceConfig `json:"marketplace"`
}

// FromConfig builds the enabled adapters for one store. A store with a
// broken config gets no adapters rather than a failed sync tick.
func FromConfig(storeID uuid.UUID, raw []byte, log *zap.SugaredLogger) []Adapter {
	if len(raw) == 0 {
		return nil
	}
	var cfg storeConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		log.Errorw("unreadable integrations config", "store_id", storeID, "err", err)
		return nil
	}
	var adapters []Adapter
	if cfg.Hub != nil && cfg.Hub.Enabled {
		adapters = append(adapters, NewHubAdapter(*cfg.Hub, log))
	}
	if cfg.Marketplace != nil && cfg.Marketplace.Enabled {
		adapters = append(adapters, NewMarketplaceAdapter(*cfg.Marketplace, log))
	}
	return adapters
}

// BySource picks the adapter for an order's source, if configured.
func BySource(adapters []Adapter, source string) (Adapter, bool) {
	for _, a := range adapters {
		if a.Source() == source {
			return a, true
		}
	}
	return nil, false
}

const requestTimeout = 15 * time.Second

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: requestTimeout}
}

// doJSON issues a request with an optional JSON body and decodes a JSON
// response into out (when non-nil). Non-2xx responses come back as errors
// carrying the status code.
func doJSON(ctx context.Context, client *http.Client, method, url string, headers map[string]string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		blob, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(blob)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, fmt.Errorf("%s %s: status %d: %s", method, url, resp.StatusCode, snippet)
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
			return resp.StatusCode, fmt.Errorf("%s %s: decode: %w", method, url, err)
		}
	}
	return resp.StatusCode, nil
}

// deliveryTypeFor normalizes the many platform spellings of how an order
// leaves the store.
func deliveryTypeFor(kind string) string {
	switch kind {
	case "delivery", "internal_delivery", "DELIVERY":
		return enum.DeliveryTypeDelivery
	case "table", "dine_in", "INDOOR":
		return enum.DeliveryTypeDineIn
	default:
		return enum.DeliveryTypeCounter
	}
}
