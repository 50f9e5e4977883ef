package combo

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/fornalha-pos/api/internal/database"
)

// Catalog is the slice of the store layer the enricher reads.
type Catalog interface {
	GetProduct(ctx context.Context, arg database.GetProductParams) (database.Product, error)
}

// Enricher expands combo products into their component lines so the kitchen
// sees what a combo actually contains.
type Enricher struct {
	catalog Catalog
	log     *zap.SugaredLogger
}

func New(catalog Catalog, log *zap.SugaredLogger) *Enricher {
	return &Enricher{catalog: catalog, log: log}
}

type componentRef struct {
	ProductID int64   `json:"product_id"`
	Quantity  float64 `json:"quantity"`
}

// Apply writes combo_data onto a raw item when its resolved product is a
// combo and the item does not already describe its contents. Items with
// structured details came from a source that listed the contents itself and
// are left alone.
func (e *Enricher) Apply(ctx context.Context, product database.Product, item map[string]any) error {
	if len(product.ComboItems) == 0 {
		return nil
	}
	if hasEntries(item, "combo_data") || hasEntries(item, "details") || hasEntries(item, "sub_items") {
		return nil
	}

	var refs []componentRef
	if err := json.Unmarshal(product.ComboItems, &refs); err != nil {
		e.log.Warnw("combo definition unreadable", "product_id", product.ID, "err", err)
		return nil
	}

	data := make([]map[string]any, 0, len(refs))
	for _, ref := range refs {
		component, err := e.catalog.GetProduct(ctx, database.GetProductParams{
			ID:      ref.ProductID,
			StoreID: product.StoreID,
		})
		if errors.Is(err, pgx.ErrNoRows) {
			e.log.Warnw("combo references missing product", "combo_id", product.ID, "product_id", ref.ProductID)
			continue
		}
		if err != nil {
			return err
		}
		qty := ref.Quantity
		if qty <= 0 {
			qty = 1
		}
		data = append(data, map[string]any{"name": component.Name, "quantity": qty})
	}
	if len(data) > 0 {
		item["combo_data"] = anySlice(data)
	}
	return nil
}

func hasEntries(item map[string]any, key string) bool {
	l, ok := item[key].([]any)
	return ok && len(l) > 0
}

// anySlice matches the shape items take after a JSON round trip, keeping the
// enriched order indistinguishable from a reloaded one.
func anySlice(data []map[string]any) []any {
	out := make([]any, len(data))
	for i, d := range data {
		out[i] = d
	}
	return out
}
