package resolver

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/fornalha-pos/api/internal/database"
	"github.com/fornalha-pos/api/internal/enum"
)

var ErrNotFound = errors.New("product not found")

// Catalog is the slice of the store layer the resolver reads.
type Catalog interface {
	GetProduct(ctx context.Context, arg database.GetProductParams) (database.Product, error)
	GetProductByExactName(ctx context.Context, arg database.ProductNameParams) (database.Product, error)
	SearchProductByName(ctx context.Context, arg database.ProductNameParams) (database.Product, error)
	GetMappingBySource(ctx context.Context, arg database.GetMappingBySourceParams) (database.ProductMapping, error)
	GetMappingByCode(ctx context.Context, arg database.GetMappingByCodeParams) (database.ProductMapping, error)
	CreateProductMapping(ctx context.Context, arg database.CreateProductMappingParams) error
}

// Resolver maps external item references onto catalog products. Resolution
// tries the strongest signal first: internal id, then learned code mapping,
// then name matching.
type Resolver struct {
	catalog Catalog
}

func New(catalog Catalog) *Resolver {
	return &Resolver{catalog: catalog}
}

// Request carries every reference an incoming item may offer.
type Request struct {
	StoreID   uuid.UUID
	Source    string
	ProductID string
	Code      string
	Name      string
}

// Sources whose items already reference catalog ids; learning a code mapping
// from them would poison lookups for the real integrations.
var readOnlySources = map[string]bool{
	enum.SourcePOS: true,
	"manual":       true,
	"counter":      true,
	"table":        true,
}

// Resolve finds the catalog product behind a request, or ErrNotFound.
func (r *Resolver) Resolve(ctx context.Context, req Request) (database.Product, error) {
	if id, err := strconv.ParseInt(req.ProductID, 10, 64); err == nil && id > 0 {
		p, err := r.catalog.GetProduct(ctx, database.GetProductParams{ID: id, StoreID: req.StoreID})
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return database.Product{}, err
		}
	}

	if req.Code != "" {
		p, err := r.resolveByCode(ctx, req)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return database.Product{}, err
		}
	}

	return r.resolveByName(ctx, req.StoreID, req.Name)
}

// ResolveAndLearn resolves and, when the hit came from name matching on a
// code-bearing item, persists the code mapping so the next order takes the
// fast path. Conflicting concurrent learns are absorbed by the insert's
// ON CONFLICT clause.
func (r *Resolver) ResolveAndLearn(ctx context.Context, req Request) (database.Product, error) {
	p, err := r.Resolve(ctx, req)
	if err != nil {
		return database.Product{}, err
	}
	if req.Code == "" || req.ProductID != "" || readOnlySources[req.Source] {
		return p, nil
	}
	if _, err := r.resolveByCode(ctx, req); err == nil {
		return p, nil // already mapped
	}
	err = r.catalog.CreateProductMapping(ctx, database.CreateProductMappingParams{
		StoreID:         req.StoreID,
		ProductID:       p.ID,
		IntegrationType: req.Source,
		ExternalCode:    req.Code,
	})
	if err != nil {
		return database.Product{}, err
	}
	return p, nil
}

func (r *Resolver) resolveByCode(ctx context.Context, req Request) (database.Product, error) {
	m, err := r.catalog.GetMappingBySource(ctx, database.GetMappingBySourceParams{
		StoreID:         req.StoreID,
		IntegrationType: req.Source,
		ExternalCode:    req.Code,
	})
	if errors.Is(err, pgx.ErrNoRows) {
		// Codes are usually stable across integrations, so fall back to a
		// mapping learned from any of them.
		m, err = r.catalog.GetMappingByCode(ctx, database.GetMappingByCodeParams{
			StoreID:      req.StoreID,
			ExternalCode: req.Code,
		})
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return database.Product{}, ErrNotFound
	}
	if err != nil {
		return database.Product{}, err
	}
	p, err := r.catalog.GetProduct(ctx, database.GetProductParams{ID: m.ProductID, StoreID: req.StoreID})
	if errors.Is(err, pgx.ErrNoRows) {
		return database.Product{}, ErrNotFound
	}
	return p, err
}

func (r *Resolver) resolveByName(ctx context.Context, storeID uuid.UUID, name string) (database.Product, error) {
	name = CleanName(name)
	if name == "" {
		return database.Product{}, ErrNotFound
	}
	p, err := r.catalog.GetProductByExactName(ctx, database.ProductNameParams{StoreID: storeID, Name: name})
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return database.Product{}, err
	}
	p, err = r.catalog.SearchProductByName(ctx, database.ProductNameParams{StoreID: storeID, Name: name})
	if errors.Is(err, pgx.ErrNoRows) {
		return database.Product{}, ErrNotFound
	}
	return p, err
}

// CleanName strips display decoration (fraction markers, modifier prefixes,
// trailing parenthesized groups) so the remainder can match a catalog name.
func CleanName(name string) string {
	name = strings.TrimSpace(name)
	for _, prefix := range []string{"+ ", "+"} {
		name = strings.TrimPrefix(name, prefix)
	}
	name = strings.TrimSpace(strings.TrimPrefix(name, "½"))
	if strings.HasPrefix(name, "1/") {
		if i := strings.Index(name, " "); i > 0 {
			name = name[i+1:]
		}
	}
	if i := strings.Index(name, "("); i > 0 {
		name = name[:i]
	}
	if i := strings.Index(name, ":"); i > 0 {
		name = name[:i]
	}
	return strings.TrimSpace(name)
}
