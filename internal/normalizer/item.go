package normalizer

import (
	"strconv"
	"strings"
)

// DetailLine is one semantically typed annotation below a display item
// (flavor, addon, edge, removed, obs, info). Code carries the product code of
// the referenced catalog entry when the source supplied one.
type DetailLine struct {
	Text string `json:"text"`
	Code string `json:"code,omitempty"`
	Type string `json:"type"`
}

// DisplayItem is the canonical, source-agnostic line item consumed by the
// kitchen display, receipt printing and stock costing. Modifier text is never
// embedded in Name; it is always promoted into Details.
type DisplayItem struct {
	Quantity     float64      `json:"quantity"`
	Name         string       `json:"name"`
	Price        float64      `json:"price"`
	Details      []DetailLine `json:"details"`
	Observation  string       `json:"observation"`
	Removed      []string     `json:"removed"`
	IsPizza      bool         `json:"is_pizza"`
	Stage        int          `json:"kds_stage"`
	Done         bool         `json:"kds_done"`
	ProductID    string       `json:"product_id,omitempty"`
	ExternalCode string       `json:"external_code,omitempty"`
}

// --- fail-closed accessors over decoded JSON ---
//
// Raw payloads are three independently evolving JSON grammars; every read
// returns a zero value instead of panicking so a malformed item can never
// take down the sync loop or a view render.

func str(m map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			if v != 0 {
				return strconv.FormatFloat(v, 'f', -1, 64)
			}
		case int:
			if v != 0 {
				return strconv.Itoa(v)
			}
		}
	}
	return ""
}

func num(m map[string]any, fallback float64, keys ...string) float64 {
	for _, k := range keys {
		switch v := m[k].(type) {
		case float64:
			return v
		case int:
			return float64(v)
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return f
			}
		}
	}
	return fallback
}

func boolVal(m map[string]any, key string) bool {
	b, _ := m[key].(bool)
	return b
}

func child(m map[string]any, key string) map[string]any {
	if c, ok := m[key].(map[string]any); ok {
		return c
	}
	return map[string]any{}
}

func list(m map[string]any, keys ...string) []any {
	for _, k := range keys {
		if l, ok := m[k].([]any); ok && len(l) > 0 {
			return l
		}
	}
	return nil
}

// maps returns only the map-typed elements of a list field.
func maps(m map[string]any, keys ...string) []map[string]any {
	var out []map[string]any
	for _, v := range list(m, keys...) {
		if mv, ok := v.(map[string]any); ok {
			out = append(out, mv)
		}
	}
	return out
}

func strings_(m map[string]any, key string) []string {
	var out []string
	for _, v := range list(m, key) {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// injectMeta carries the mutable kitchen fields and the resolved code from
// the raw item onto the canonical one. kds_stage tolerates strings and
// missing values; anything unparseable lands on stage 0.
func injectMeta(src map[string]any, it *DisplayItem) {
	it.Stage = int(num(src, 0, "kds_stage"))
	if it.Stage < 0 || it.Stage > 2 {
		it.Stage = 0
	}
	it.Done = boolVal(src, "kds_done")
	if it.Stage == 2 {
		it.Done = true
	}
	if it.ExternalCode == "" {
		it.ExternalCode = str(src, "external_code", "id")
	}
}

// fallbackItem is the never-fail floor: literal name, best-effort quantity,
// no details. A partial order must always be displayable.
func fallbackItem(src map[string]any) DisplayItem {
	it := DisplayItem{
		Quantity: num(src, 1, "quantity", "qty"),
		Name:     firstNonEmpty(str(src, "title", "name"), "Item"),
		Price:    num(src, 0, "price", "unitPrice"),
		Details:  []DetailLine{},
	}
	injectMeta(src, &it)
	return it
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
