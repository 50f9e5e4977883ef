package stock

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"go.uber.org/zap"

	"github.com/fornalha-pos/api/internal/database"
	"github.com/fornalha-pos/api/internal/enum"
	"github.com/fornalha-pos/api/internal/normalizer"
	"github.com/fornalha-pos/api/internal/resolver"
)

// Store is the slice of the database layer the engine touches. Callers pass
// a transaction-bound Queries so an order's movements commit atomically with
// the order itself.
type Store interface {
	GetIngredient(ctx context.Context, id int64) (database.Ingredient, error)
	AdjustIngredientStock(ctx context.Context, id int64, delta float64) (float64, error)
	CreateStockLog(ctx context.Context, arg database.CreateStockLogParams) (database.StockLog, error)
	ListPizzaSizes(ctx context.Context, storeID uuid.UUID) ([]database.PizzaSize, error)
	ListBaseRecipes(ctx context.Context, arg database.ListBaseRecipesParams) ([]database.PizzaBaseRecipe, error)
	ListProductRecipes(ctx context.Context, arg database.ListProductRecipesParams) ([]database.ProductRecipe, error)
	GetAddonPriceByCode(ctx context.Context, arg database.GetAddonPriceByCodeParams) (database.AddonPrice, error)
	GetAddonPriceForSize(ctx context.Context, arg database.GetAddonPriceForSizeParams) (database.AddonPrice, error)
	ListAddonRecipes(ctx context.Context, addonPriceID int64) ([]database.AddonRecipe, error)
}

// ProductResolver narrows *resolver.Resolver for testing.
type ProductResolver interface {
	Resolve(ctx context.Context, req resolver.Request) (database.Product, error)
}

// Engine converts canonical order items into ingredient movements.
// Deduction is best-effort per component: an unresolvable flavor or addon is
// skipped with a warning, never a failed order.
type Engine struct {
	store    Store
	resolver ProductResolver
	log      *zap.SugaredLogger
}

func NewEngine(store Store, res ProductResolver, log *zap.SugaredLogger) *Engine {
	return &Engine{store: store, resolver: res, log: log}
}

// Request identifies the order whose items are being consumed or returned.
type Request struct {
	StoreID  uuid.UUID
	Source   string
	Reason   string
	UserName string
	Items    []normalizer.DisplayItem
}

// Deduct walks the order's items and writes one OUT movement per touched
// ingredient.
func (e *Engine) Deduct(ctx context.Context, req Request) error {
	return e.move(ctx, req, -1, enum.MovementOut)
}

// Return reverses a deduction by recomputing the same deltas from the
// persisted items and applying them inbound. Recomputing (rather than
// replaying logs) keeps reversal correct even for orders deducted before a
// recipe change, at the cost of drifting with the recipe; that trade is
// acceptable for cancellations, which arrive minutes after deduction.
func (e *Engine) Return(ctx context.Context, req Request) error {
	return e.move(ctx, req, 1, enum.MovementIn)
}

func (e *Engine) move(ctx context.Context, req Request, sign float64, movement string) error {
	deltas, ingredients, err := e.collect(ctx, req)
	if err != nil {
		return err
	}

	ids := make([]int64, 0, len(deltas))
	for id := range deltas {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		delta := deltas[id]
		if delta == 0 {
			continue
		}
		ing := ingredients[id]
		newStock, err := e.store.AdjustIngredientStock(ctx, id, sign*delta)
		if err != nil {
			return err
		}
		_, err = e.store.CreateStockLog(ctx, database.CreateStockLogParams{
			StoreID:      req.StoreID,
			IngredientID: id,
			MovementType: movement,
			Quantity:     delta,
			OldStock:     newStock - sign*delta,
			NewStock:     newStock,
			CostAtTime:   ing.Cost,
			Reason:       req.Reason,
			UserName:     req.UserName,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// collect aggregates the per-ingredient consumption of every item, in the
// ingredient's stock unit.
func (e *Engine) collect(ctx context.Context, req Request) (map[int64]float64, map[int64]database.Ingredient, error) {
	acc := &accumulator{
		engine:      e,
		deltas:      map[int64]float64{},
		ingredients: map[int64]database.Ingredient{},
	}

	var sizes []database.PizzaSize
	for _, item := range req.Items {
		qty := item.Quantity
		if qty <= 0 {
			qty = 1
		}
		product, err := e.resolver.Resolve(ctx, resolver.Request{
			StoreID:   req.StoreID,
			Source:    req.Source,
			ProductID: item.ProductID,
			Code:      item.ExternalCode,
			Name:      item.Name,
		})
		if errors.Is(err, resolver.ErrNotFound) {
			e.log.Warnw("item not in catalog, skipping stock", "item", item.Name, "store_id", req.StoreID)
			continue
		}
		if err != nil {
			return nil, nil, err
		}

		removed := removedSet(item)
		flavors := detailsOfType(item, enum.DetailFlavor)

		if product.IsPizza || len(flavors) > 1 {
			if sizes == nil {
				if sizes, err = e.store.ListPizzaSizes(ctx, req.StoreID); err != nil {
					return nil, nil, err
				}
			}
			if err := acc.pizza(ctx, req, product, item, flavors, removed, qty, sizes); err != nil {
				return nil, nil, err
			}
			continue
		}

		recipes, err := e.store.ListProductRecipes(ctx, database.ListProductRecipesParams{ProductID: product.ID})
		if err != nil {
			return nil, nil, err
		}
		for _, r := range recipes {
			if err := acc.add(ctx, r.IngredientID, r.Quantity*qty, removed); err != nil {
				return nil, nil, err
			}
		}
	}
	return acc.deltas, acc.ingredients, nil
}

type accumulator struct {
	engine      *Engine
	deltas      map[int64]float64
	ingredients map[int64]database.Ingredient
}

// add books a recipe quantity against an ingredient, converting to the stock
// unit and honoring per-item removals by ingredient name.
func (a *accumulator) add(ctx context.Context, ingredientID int64, recipeQty float64, removed map[string]bool) error {
	ing, ok := a.ingredients[ingredientID]
	if !ok {
		var err error
		ing, err = a.engine.store.GetIngredient(ctx, ingredientID)
		if errors.Is(err, pgx.ErrNoRows) {
			a.engine.log.Warnw("recipe references missing ingredient", "ingredient_id", ingredientID)
			return nil
		}
		if err != nil {
			return err
		}
		a.ingredients[ingredientID] = ing
	}
	if removed[strings.ToLower(ing.Name)] {
		return nil
	}
	factor := ing.ConversionFactor
	if factor <= 0 {
		factor = 1
	}
	a.deltas[ingredientID] += recipeQty / factor
	return nil
}

func (a *accumulator) pizza(ctx context.Context, req Request, product database.Product, item normalizer.DisplayItem, flavors []normalizer.DetailLine, removed map[string]bool, qty float64, sizes []database.PizzaSize) error {
	size := detectSize(item, flavors, sizes)

	baseRecipes, err := a.engine.store.ListBaseRecipes(ctx, database.ListBaseRecipesParams{
		StoreID:  req.StoreID,
		BaseType: product.BaseType,
		SizeID:   size.ID,
		SizeSlug: size.Slug,
	})
	if err != nil {
		return err
	}
	for _, r := range baseRecipes {
		if err := a.add(ctx, r.IngredientID, r.Quantity*qty, removed); err != nil {
			return err
		}
	}

	// Single-flavor pizzas consume the resolved product's own recipe.
	share := 1.0
	flavorProducts := []database.Product{product}
	if len(flavors) > 1 {
		share = 1.0 / float64(len(flavors))
		flavorProducts = flavorProducts[:0]
		for _, f := range flavors {
			fp, err := a.engine.resolver.Resolve(ctx, resolver.Request{
				StoreID: req.StoreID,
				Source:  req.Source,
				Code:    f.Code,
				Name:    resolver.CleanName(f.Text),
			})
			if errors.Is(err, resolver.ErrNotFound) {
				a.engine.log.Warnw("flavor not in catalog, skipping", "flavor", f.Text, "store_id", req.StoreID)
				continue
			}
			if err != nil {
				return err
			}
			flavorProducts = append(flavorProducts, fp)
		}
	}

	for _, fp := range flavorProducts {
		if err := a.flavor(ctx, fp, size, qty*share, removed); err != nil {
			return err
		}
	}

	// Edge fillings are priced and recipe-configured like any other addon.
	modifiers := append(detailsOfType(item, enum.DetailAddon), detailsOfType(item, enum.DetailEdge)...)
	for _, m := range modifiers {
		if err := a.addon(ctx, req.StoreID, m, size, qty); err != nil {
			return err
		}
	}
	return nil
}

// flavor books one flavor's recipe. Size-specific recipe rows win; a
// size-agnostic row is scaled by the size's multiplier instead.
func (a *accumulator) flavor(ctx context.Context, product database.Product, size database.PizzaSize, qty float64, removed map[string]bool) error {
	multiplier := 1.0
	recipes, err := a.engine.store.ListProductRecipes(ctx, database.ListProductRecipesParams{
		ProductID: product.ID,
		SizeID:    pgtype.Int8{Int64: size.ID, Valid: size.ID != 0},
	})
	if err != nil {
		return err
	}
	if len(recipes) == 0 && size.ID != 0 {
		recipes, err = a.engine.store.ListProductRecipes(ctx, database.ListProductRecipesParams{ProductID: product.ID})
		if err != nil {
			return err
		}
		if size.RecipeMultiplier > 0 {
			multiplier = size.RecipeMultiplier
		}
	}
	for _, r := range recipes {
		if err := a.add(ctx, r.IngredientID, r.Quantity*qty*multiplier, removed); err != nil {
			return err
		}
	}
	return nil
}

// addon books an addon's recipe for the whole item quantity. Addons without
// a code cannot be priced against a size so they are skipped.
func (a *accumulator) addon(ctx context.Context, storeID uuid.UUID, line normalizer.DetailLine, size database.PizzaSize, qty float64) error {
	if line.Code == "" {
		return nil
	}
	ap, err := a.engine.store.GetAddonPriceByCode(ctx, database.GetAddonPriceByCodeParams{
		StoreID:      storeID,
		ExternalCode: line.Code,
	})
	if errors.Is(err, pgx.ErrNoRows) {
		a.engine.log.Warnw("addon code unknown, skipping", "code", line.Code, "store_id", storeID)
		return nil
	}
	if err != nil {
		return err
	}
	if size.ID != 0 && ap.SizeID != size.ID {
		if sized, err := a.engine.store.GetAddonPriceForSize(ctx, database.GetAddonPriceForSizeParams{
			AddonID: ap.AddonID,
			SizeID:  size.ID,
		}); err == nil {
			ap = sized
		}
	}
	recipes, err := a.engine.store.ListAddonRecipes(ctx, ap.ID)
	if err != nil {
		return err
	}
	for _, r := range recipes {
		if err := a.add(ctx, r.IngredientID, r.Quantity*qty, nil); err != nil {
			return err
		}
	}
	return nil
}

// detectSize finds the pizza size named in the item or its flavor lines,
// falling back to the largest configured size. Sizes arrive ordered by slice
// count descending.
func detectSize(item normalizer.DisplayItem, flavors []normalizer.DetailLine, sizes []database.PizzaSize) database.PizzaSize {
	if len(sizes) == 0 {
		return database.PizzaSize{RecipeMultiplier: 1}
	}
	title := strings.ToLower(item.Name)
	for _, s := range sizes {
		if sizeNamed(title, s) {
			return s
		}
	}
	for _, f := range flavors {
		text := strings.ToLower(f.Text)
		for _, s := range sizes {
			if sizeNamed(text, s) {
				return s
			}
		}
	}
	return sizes[0]
}

func sizeNamed(text string, s database.PizzaSize) bool {
	if s.Name != "" && strings.Contains(text, strings.ToLower(s.Name)) {
		return true
	}
	return s.Slug != "" && strings.Contains(text, strings.ToLower(s.Slug))
}

func detailsOfType(item normalizer.DisplayItem, detailType string) []normalizer.DetailLine {
	var out []normalizer.DetailLine
	for _, d := range item.Details {
		if d.Type == detailType {
			out = append(out, d)
		}
	}
	return out
}

func removedSet(item normalizer.DisplayItem) map[string]bool {
	if len(item.Removed) == 0 {
		return nil
	}
	out := make(map[string]bool, len(item.Removed))
	for _, r := range item.Removed {
		out[strings.ToLower(strings.TrimSpace(r))] = true
	}
	return out
}
