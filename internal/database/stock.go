package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const listIngredients = `
SELECT id, store_id, name, current_stock, cost, conversion_factor
FROM ingredients
WHERE store_id = $1
ORDER BY name
`

func (q *Queries) ListIngredients(ctx context.Context, storeID uuid.UUID) ([]Ingredient, error) {
	rows, err := q.db.Query(ctx, listIngredients, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ingredients []Ingredient
	for rows.Next() {
		var i Ingredient
		if err := rows.Scan(&i.ID, &i.StoreID, &i.Name, &i.CurrentStock, &i.Cost, &i.ConversionFactor); err != nil {
			return nil, err
		}
		ingredients = append(ingredients, i)
	}
	return ingredients, rows.Err()
}

const getIngredient = `
SELECT id, store_id, name, current_stock, cost, conversion_factor
FROM ingredients
WHERE id = $1
`

func (q *Queries) GetIngredient(ctx context.Context, id int64) (Ingredient, error) {
	var i Ingredient
	err := q.db.QueryRow(ctx, getIngredient, id).
		Scan(&i.ID, &i.StoreID, &i.Name, &i.CurrentStock, &i.Cost, &i.ConversionFactor)
	return i, err
}

// AdjustIngredientStock applies a signed delta atomically at the row level;
// concurrent orders interleave under normal transaction isolation (no
// application-level locking).
const adjustIngredientStock = `
UPDATE ingredients SET current_stock = current_stock + $2
WHERE id = $1
RETURNING current_stock
`

func (q *Queries) AdjustIngredientStock(ctx context.Context, id int64, delta float64) (float64, error) {
	var newStock float64
	err := q.db.QueryRow(ctx, adjustIngredientStock, id, delta).Scan(&newStock)
	return newStock, err
}

const createStockLog = `
INSERT INTO stock_logs (
	store_id, ingredient_id, movement_type, quantity,
	old_stock, new_stock, cost_at_time, reason, user_name
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING id, store_id, ingredient_id, movement_type, quantity,
	old_stock, new_stock, cost_at_time, reason, user_name, created_at
`

type CreateStockLogParams struct {
	StoreID      uuid.UUID
	IngredientID int64
	MovementType string
	Quantity     float64
	OldStock     float64
	NewStock     float64
	CostAtTime   float64
	Reason       string
	UserName     string
}

func (q *Queries) CreateStockLog(ctx context.Context, arg CreateStockLogParams) (StockLog, error) {
	var l StockLog
	err := q.db.QueryRow(ctx, createStockLog,
		arg.StoreID, arg.IngredientID, arg.MovementType, arg.Quantity,
		arg.OldStock, arg.NewStock, arg.CostAtTime, arg.Reason, arg.UserName).
		Scan(&l.ID, &l.StoreID, &l.IngredientID, &l.MovementType, &l.Quantity,
			&l.OldStock, &l.NewStock, &l.CostAtTime, &l.Reason, &l.UserName, &l.CreatedAt)
	return l, err
}

const listBaseRecipes = `
SELECT id, store_id, base_type, size_id, size_slug, ingredient_id, quantity
FROM pizza_base_recipes
WHERE store_id = $1 AND base_type = $2 AND (size_id = $3 OR size_slug = $4)
`

type ListBaseRecipesParams struct {
	StoreID  uuid.UUID
	BaseType string
	SizeID   int64
	SizeSlug string
}

func (q *Queries) ListBaseRecipes(ctx context.Context, arg ListBaseRecipesParams) ([]PizzaBaseRecipe, error) {
	rows, err := q.db.Query(ctx, listBaseRecipes, arg.StoreID, arg.BaseType, arg.SizeID, arg.SizeSlug)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var recipes []PizzaBaseRecipe
	for rows.Next() {
		var r PizzaBaseRecipe
		if err := rows.Scan(&r.ID, &r.StoreID, &r.BaseType, &r.SizeID, &r.SizeSlug, &r.IngredientID, &r.Quantity); err != nil {
			return nil, err
		}
		recipes = append(recipes, r)
	}
	return recipes, rows.Err()
}

const listProductRecipes = `
SELECT id, product_id, size_id, ingredient_id, quantity
FROM product_recipes
WHERE product_id = $1 AND size_id = $2
`

const listProductRecipesDefault = `
SELECT id, product_id, size_id, ingredient_id, quantity
FROM product_recipes
WHERE product_id = $1 AND size_id IS NULL
`

type ListProductRecipesParams struct {
	ProductID int64
	SizeID    pgtype.Int8
}

func (q *Queries) ListProductRecipes(ctx context.Context, arg ListProductRecipesParams) ([]ProductRecipe, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if arg.SizeID.Valid {
		rows, err = q.db.Query(ctx, listProductRecipes, arg.ProductID, arg.SizeID.Int64)
	} else {
		rows, err = q.db.Query(ctx, listProductRecipesDefault, arg.ProductID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var recipes []ProductRecipe
	for rows.Next() {
		var r ProductRecipe
		if err := rows.Scan(&r.ID, &r.ProductID, &r.SizeID, &r.IngredientID, &r.Quantity); err != nil {
			return nil, err
		}
		recipes = append(recipes, r)
	}
	return recipes, rows.Err()
}

const getAddonPriceByCode = `
SELECT id, store_id, addon_id, size_id, external_code, price
FROM addon_prices
WHERE store_id = $1 AND external_code = $2
LIMIT 1
`

type GetAddonPriceByCodeParams struct {
	StoreID      uuid.UUID
	ExternalCode string
}

func (q *Queries) GetAddonPriceByCode(ctx context.Context, arg GetAddonPriceByCodeParams) (AddonPrice, error) {
	var a AddonPrice
	err := q.db.QueryRow(ctx, getAddonPriceByCode, arg.StoreID, arg.ExternalCode).
		Scan(&a.ID, &a.StoreID, &a.AddonID, &a.SizeID, &a.ExternalCode, &a.Price)
	return a, err
}

const getAddonPriceForSize = `
SELECT id, store_id, addon_id, size_id, external_code, price
FROM addon_prices
WHERE addon_id = $1 AND size_id = $2
LIMIT 1
`

type GetAddonPriceForSizeParams struct {
	AddonID int64
	SizeID  int64
}

func (q *Queries) GetAddonPriceForSize(ctx context.Context, arg GetAddonPriceForSizeParams) (AddonPrice, error) {
	var a AddonPrice
	err := q.db.QueryRow(ctx, getAddonPriceForSize, arg.AddonID, arg.SizeID).
		Scan(&a.ID, &a.StoreID, &a.AddonID, &a.SizeID, &a.ExternalCode, &a.Price)
	return a, err
}

const listAddonRecipes = `
SELECT id, addon_price_id, ingredient_id, quantity
FROM addon_recipes
WHERE addon_price_id = $1
`

func (q *Queries) ListAddonRecipes(ctx context.Context, addonPriceID int64) ([]AddonRecipe, error) {
	rows, err := q.db.Query(ctx, listAddonRecipes, addonPriceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var recipes []AddonRecipe
	for rows.Next() {
		var r AddonRecipe
		if err := rows.Scan(&r.ID, &r.AddonPriceID, &r.IngredientID, &r.Quantity); err != nil {
			return nil, err
		}
		recipes = append(recipes, r)
	}
	return recipes, rows.Err()
}

const listStockLogs = `
SELECT id, store_id, ingredient_id, movement_type, quantity,
       old_stock, new_stock, cost_at_time, reason, user_name, created_at
FROM stock_logs
WHERE store_id = $1
ORDER BY created_at DESC
LIMIT $2
`

func (q *Queries) ListStockLogs(ctx context.Context, storeID uuid.UUID, limit int32) ([]StockLog, error) {
	rows, err := q.db.Query(ctx, listStockLogs, storeID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var logs []StockLog
	for rows.Next() {
		var l StockLog
		if err := rows.Scan(&l.ID, &l.StoreID, &l.IngredientID, &l.MovementType, &l.Quantity,
			&l.OldStock, &l.NewStock, &l.CostAtTime, &l.Reason, &l.UserName, &l.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
