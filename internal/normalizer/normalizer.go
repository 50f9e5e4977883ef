package normalizer

import (
	"strconv"
	"strings"

	"github.com/fornalha-pos/api/internal/enum"
)

// OrderView is the slice of an order the normalizer needs. Items are the
// decoded items_json maps exactly as persisted.
type OrderView struct {
	Items         []map[string]any
	Source        string
	PaymentMethod string
	DisplayID     string
	ExternalID    string
}

const (
	platformMarketplace = "marketplace"
	platformHub         = "hub"
	platformPOS         = "pos"
)

// Normalize renders every item of an order into the canonical display shape.
// It is pure and idempotent: feeding its own output back in yields the same
// items, so it is safe to run on every read regardless of how many times the
// order was already normalized.
func Normalize(o OrderView) []DisplayItem {
	platform := detectPlatform(o)
	// One internally-shaped item means the platform already wrote this
	// order; the whole order goes through the internal translator so a
	// re-run never re-routes its siblings through a source translator.
	for _, raw := range o.Items {
		if isInternalShape(raw) {
			platform = platformPOS
			break
		}
	}
	out := make([]DisplayItem, 0, len(o.Items))
	for _, raw := range o.Items {
		out = append(out, normalizeItem(raw, platform)...)
	}
	return out
}

// normalizeItem translates one raw item, falling back to a minimal literal
// item if the translator trips on an unexpected shape. A hub webhook group
// expands into one item per product; every other shape stays one-to-one.
func normalizeItem(raw map[string]any, platform string) (items []DisplayItem) {
	defer func() {
		if recover() != nil {
			items = []DisplayItem{fallbackItem(raw)}
		}
	}()

	switch platform {
	case platformMarketplace:
		it := translateMarketplace(raw)
		injectMeta(raw, &it)
		items = []DisplayItem{it}
	case platformHub:
		items = translateHub(raw)
	default:
		it := translatePOS(raw)
		injectMeta(raw, &it)
		items = []DisplayItem{it}
	}
	for i := range items {
		if items[i].Details == nil {
			items[i].Details = []DetailLine{}
		}
		if items[i].Name == "" {
			items[i].Name = "Item"
		}
	}
	return items
}

// isInternalShape recognizes an item the platform itself produced (or
// already normalized).
func isInternalShape(raw map[string]any) bool {
	if len(maps(raw, "parts_rich")) > 0 {
		return true
	}
	if len(list(raw, "parts")) > 0 {
		return true
	}
	if _, ok := raw["kds_stage"]; ok {
		return true
	}
	return len(maps(raw, "details")) > 0
}

// detectPlatform picks a source translator for the whole order. The source
// tag is authoritative; the payment-method and id-shape hints cover orders
// imported before the tag existed.
func detectPlatform(o OrderView) string {
	pm := strings.ToLower(o.PaymentMethod)
	ext := strings.ToLower(o.ExternalID)
	if o.Source == enum.SourceMarketplace || strings.Contains(pm, "marketplace") || strings.Contains(ext, "marketplace") {
		return platformMarketplace
	}
	if o.Source == enum.SourceHub {
		return platformHub
	}
	// Hub orders carry the hub's own short id; counter orders get an
	// M-prefixed one at creation.
	if o.DisplayID != "" && !strings.HasPrefix(o.DisplayID, "M-") {
		return platformHub
	}
	return platformPOS
}

// FractionLabel renders the flavor share of one part of an n-part pizza:
// the half symbol for a classic half-and-half, 1/n beyond that.
func FractionLabel(n int) string {
	switch {
	case n <= 1:
		return ""
	case n == 2:
		return "½ "
	default:
		return "1/" + strconv.Itoa(n) + " "
	}
}
