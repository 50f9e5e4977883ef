package database

import (
	"context"

	"github.com/google/uuid"
)

const getProduct = `
SELECT id, store_id, name, category_id, is_pizza, base_type, combo_items
FROM products
WHERE id = $1 AND store_id = $2
`

type GetProductParams struct {
	ID      int64
	StoreID uuid.UUID
}

func (q *Queries) GetProduct(ctx context.Context, arg GetProductParams) (Product, error) {
	var p Product
	err := q.db.QueryRow(ctx, getProduct, arg.ID, arg.StoreID).
		Scan(&p.ID, &p.StoreID, &p.Name, &p.CategoryID, &p.IsPizza, &p.BaseType, &p.ComboItems)
	return p, err
}

const getProductByExactName = `
SELECT id, store_id, name, category_id, is_pizza, base_type, combo_items
FROM products
WHERE store_id = $1 AND lower(name) = lower($2)
LIMIT 1
`

type ProductNameParams struct {
	StoreID uuid.UUID
	Name    string
}

func (q *Queries) GetProductByExactName(ctx context.Context, arg ProductNameParams) (Product, error) {
	var p Product
	err := q.db.QueryRow(ctx, getProductByExactName, arg.StoreID, arg.Name).
		Scan(&p.ID, &p.StoreID, &p.Name, &p.CategoryID, &p.IsPizza, &p.BaseType, &p.ComboItems)
	return p, err
}

// SearchProductByName prefers the shortest catalog name containing the term,
// which keeps generic long names from shadowing the intended product.
const searchProductByName = `
SELECT id, store_id, name, category_id, is_pizza, base_type, combo_items
FROM products
WHERE store_id = $1 AND name ILIKE '%' || $2 || '%'
ORDER BY length(name)
LIMIT 1
`

func (q *Queries) SearchProductByName(ctx context.Context, arg ProductNameParams) (Product, error) {
	var p Product
	err := q.db.QueryRow(ctx, searchProductByName, arg.StoreID, arg.Name).
		Scan(&p.ID, &p.StoreID, &p.Name, &p.CategoryID, &p.IsPizza, &p.BaseType, &p.ComboItems)
	return p, err
}

const listProducts = `
SELECT id, store_id, name, category_id, is_pizza, base_type, combo_items
FROM products
WHERE store_id = $1
`

func (q *Queries) ListProducts(ctx context.Context, storeID uuid.UUID) ([]Product, error) {
	rows, err := q.db.Query(ctx, listProducts, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var products []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.StoreID, &p.Name, &p.CategoryID, &p.IsPizza, &p.BaseType, &p.ComboItems); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

const getMappingByCode = `
SELECT id, store_id, product_id, integration_type, external_code
FROM product_mappings
WHERE store_id = $1 AND external_code = $2
LIMIT 1
`

type GetMappingByCodeParams struct {
	StoreID      uuid.UUID
	ExternalCode string
}

func (q *Queries) GetMappingByCode(ctx context.Context, arg GetMappingByCodeParams) (ProductMapping, error) {
	var m ProductMapping
	err := q.db.QueryRow(ctx, getMappingByCode, arg.StoreID, arg.ExternalCode).
		Scan(&m.ID, &m.StoreID, &m.ProductID, &m.IntegrationType, &m.ExternalCode)
	return m, err
}

const getMappingBySource = `
SELECT id, store_id, product_id, integration_type, external_code
FROM product_mappings
WHERE store_id = $1 AND integration_type = $2 AND external_code = $3
LIMIT 1
`

type GetMappingBySourceParams struct {
	StoreID         uuid.UUID
	IntegrationType string
	ExternalCode    string
}

func (q *Queries) GetMappingBySource(ctx context.Context, arg GetMappingBySourceParams) (ProductMapping, error) {
	var m ProductMapping
	err := q.db.QueryRow(ctx, getMappingBySource, arg.StoreID, arg.IntegrationType, arg.ExternalCode).
		Scan(&m.ID, &m.StoreID, &m.ProductID, &m.IntegrationType, &m.ExternalCode)
	return m, err
}

const createProductMapping = `
INSERT INTO product_mappings (store_id, product_id, integration_type, external_code)
VALUES ($1, $2, $3, $4)
ON CONFLICT DO NOTHING
`

type CreateProductMappingParams struct {
	StoreID         uuid.UUID
	ProductID       int64
	IntegrationType string
	ExternalCode    string
}

func (q *Queries) CreateProductMapping(ctx context.Context, arg CreateProductMappingParams) error {
	_, err := q.db.Exec(ctx, createProductMapping,
		arg.StoreID, arg.ProductID, arg.IntegrationType, arg.ExternalCode)
	return err
}

const listPizzaSizes = `
SELECT id, store_id, name, slug, slices, recipe_multiplier
FROM pizza_sizes
WHERE store_id = $1
ORDER BY slices DESC
`

func (q *Queries) ListPizzaSizes(ctx context.Context, storeID uuid.UUID) ([]PizzaSize, error) {
	rows, err := q.db.Query(ctx, listPizzaSizes, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var sizes []PizzaSize
	for rows.Next() {
		var s PizzaSize
		if err := rows.Scan(&s.ID, &s.StoreID, &s.Name, &s.Slug, &s.Slices, &s.RecipeMultiplier); err != nil {
			return nil, err
		}
		sizes = append(sizes, s)
	}
	return sizes, rows.Err()
}

const listSectors = `
SELECT id, store_id, name, has_expedition
FROM production_sectors
WHERE store_id = $1
`

func (q *Queries) ListSectors(ctx context.Context, storeID uuid.UUID) ([]ProductionSector, error) {
	rows, err := q.db.Query(ctx, listSectors, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var sectors []ProductionSector
	for rows.Next() {
		var s ProductionSector
		if err := rows.Scan(&s.ID, &s.StoreID, &s.Name, &s.HasExpedition); err != nil {
			return nil, err
		}
		sectors = append(sectors, s)
	}
	return sectors, rows.Err()
}

const getSector = `
SELECT id, store_id, name, has_expedition
FROM production_sectors
WHERE id = $1
`

func (q *Queries) GetSector(ctx context.Context, id int64) (ProductionSector, error) {
	var s ProductionSector
	err := q.db.QueryRow(ctx, getSector, id).Scan(&s.ID, &s.StoreID, &s.Name, &s.HasExpedition)
	return s, err
}

const listCategories = `
SELECT id, store_id, name, sector_id
FROM categories
WHERE store_id = $1
`

func (q *Queries) ListCategories(ctx context.Context, storeID uuid.UUID) ([]Category, error) {
	rows, err := q.db.Query(ctx, listCategories, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var cats []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.StoreID, &c.Name, &c.SectorID); err != nil {
			return nil, err
		}
		cats = append(cats, c)
	}
	return cats, rows.Err()
}

const getDeliveryFeeByNeighborhood = `
SELECT id, store_id, neighborhood, fee
FROM delivery_fees
WHERE store_id = $1 AND upper(neighborhood) = upper($2)
LIMIT 1
`

type GetDeliveryFeeParams struct {
	StoreID      uuid.UUID
	Neighborhood string
}

func (q *Queries) GetDeliveryFeeByNeighborhood(ctx context.Context, arg GetDeliveryFeeParams) (DeliveryFee, error) {
	var f DeliveryFee
	err := q.db.QueryRow(ctx, getDeliveryFeeByNeighborhood, arg.StoreID, arg.Neighborhood).
		Scan(&f.ID, &f.StoreID, &f.Neighborhood, &f.Fee)
	return f, err
}
