package resolver

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/fornalha-pos/api/internal/database"
	"github.com/fornalha-pos/api/internal/enum"
)

type mockCatalog struct {
	getProductFunc            func(ctx context.Context, arg database.GetProductParams) (database.Product, error)
	getProductByExactNameFunc func(ctx context.Context, arg database.ProductNameParams) (database.Product, error)
	searchProductByNameFunc   func(ctx context.Context, arg database.ProductNameParams) (database.Product, error)
	getMappingBySourceFunc    func(ctx context.Context, arg database.GetMappingBySourceParams) (database.ProductMapping, error)
	getMappingByCodeFunc      func(ctx context.Context, arg database.GetMappingByCodeParams) (database.ProductMapping, error)
	createProductMappingFunc  func(ctx context.Context, arg database.CreateProductMappingParams) error
}

func (m *mockCatalog) GetProduct(ctx context.Context, arg database.GetProductParams) (database.Product, error) {
	return m.getProductFunc(ctx, arg)
}

func (m *mockCatalog) GetProductByExactName(ctx context.Context, arg database.ProductNameParams) (database.Product, error) {
	return m.getProductByExactNameFunc(ctx, arg)
}

func (m *mockCatalog) SearchProductByName(ctx context.Context, arg database.ProductNameParams) (database.Product, error) {
	return m.searchProductByNameFunc(ctx, arg)
}

func (m *mockCatalog) GetMappingBySource(ctx context.Context, arg database.GetMappingBySourceParams) (database.ProductMapping, error) {
	return m.getMappingBySourceFunc(ctx, arg)
}

func (m *mockCatalog) GetMappingByCode(ctx context.Context, arg database.GetMappingByCodeParams) (database.ProductMapping, error) {
	return m.getMappingByCodeFunc(ctx, arg)
}

func (m *mockCatalog) CreateProductMapping(ctx context.Context, arg database.CreateProductMappingParams) error {
	return m.createProductMappingFunc(ctx, arg)
}

func noRowsCatalog() *mockCatalog {
	return &mockCatalog{
		getProductFunc: func(context.Context, database.GetProductParams) (database.Product, error) {
			return database.Product{}, pgx.ErrNoRows
		},
		getProductByExactNameFunc: func(context.Context, database.ProductNameParams) (database.Product, error) {
			return database.Product{}, pgx.ErrNoRows
		},
		searchProductByNameFunc: func(context.Context, database.ProductNameParams) (database.Product, error) {
			return database.Product{}, pgx.ErrNoRows
		},
		getMappingBySourceFunc: func(context.Context, database.GetMappingBySourceParams) (database.ProductMapping, error) {
			return database.ProductMapping{}, pgx.ErrNoRows
		},
		getMappingByCodeFunc: func(context.Context, database.GetMappingByCodeParams) (database.ProductMapping, error) {
			return database.ProductMapping{}, pgx.ErrNoRows
		},
		createProductMappingFunc: func(context.Context, database.CreateProductMappingParams) error {
			return nil
		},
	}
}

var storeID = uuid.New()

func TestResolveInternalIDWins(t *testing.T) {
	catalog := noRowsCatalog()
	catalog.getProductFunc = func(_ context.Context, arg database.GetProductParams) (database.Product, error) {
		if arg.ID == 7 {
			return database.Product{ID: 7, Name: "Pizza Calabresa"}, nil
		}
		return database.Product{}, pgx.ErrNoRows
	}
	catalog.getMappingBySourceFunc = func(context.Context, database.GetMappingBySourceParams) (database.ProductMapping, error) {
		t.Fatal("mapping lookup should not run when the internal id resolves")
		return database.ProductMapping{}, nil
	}

	r := New(catalog)
	p, err := r.Resolve(context.Background(), Request{
		StoreID:   storeID,
		Source:    enum.SourceHub,
		ProductID: "7",
		Code:      "CAL-41",
		Name:      "Something Else",
	})
	if err != nil {
		t.Fatal(err)
	}
	if p.ID != 7 {
		t.Errorf("resolved id = %d, want 7", p.ID)
	}
}

func TestResolveCodeMapping(t *testing.T) {
	catalog := noRowsCatalog()
	catalog.getMappingBySourceFunc = func(_ context.Context, arg database.GetMappingBySourceParams) (database.ProductMapping, error) {
		if arg.IntegrationType == enum.SourceMarketplace && arg.ExternalCode == "MKT-9" {
			return database.ProductMapping{ProductID: 3}, nil
		}
		return database.ProductMapping{}, pgx.ErrNoRows
	}
	catalog.getProductFunc = func(_ context.Context, arg database.GetProductParams) (database.Product, error) {
		if arg.ID == 3 {
			return database.Product{ID: 3, Name: "Pizza Portuguesa"}, nil
		}
		return database.Product{}, pgx.ErrNoRows
	}

	p, err := New(catalog).Resolve(context.Background(), Request{
		StoreID: storeID,
		Source:  enum.SourceMarketplace,
		Code:    "MKT-9",
	})
	if err != nil {
		t.Fatal(err)
	}
	if p.ID != 3 {
		t.Errorf("resolved id = %d, want 3", p.ID)
	}
}

func TestResolveUnmappedCodeFallsBackToName(t *testing.T) {
	catalog := noRowsCatalog()
	catalog.getProductByExactNameFunc = func(_ context.Context, arg database.ProductNameParams) (database.Product, error) {
		if arg.Name == "Pizza Margherita" {
			return database.Product{ID: 11, Name: "Pizza Margherita"}, nil
		}
		return database.Product{}, pgx.ErrNoRows
	}

	p, err := New(catalog).Resolve(context.Background(), Request{
		StoreID: storeID,
		Source:  enum.SourceMarketplace,
		Code:    "UNKNOWN",
		Name:    "Pizza Margherita",
	})
	if err != nil {
		t.Fatal(err)
	}
	if p.ID != 11 {
		t.Errorf("resolved id = %d, want 11", p.ID)
	}
}

func TestResolveSubstringFallback(t *testing.T) {
	catalog := noRowsCatalog()
	catalog.searchProductByNameFunc = func(_ context.Context, arg database.ProductNameParams) (database.Product, error) {
		if arg.Name == "Calabresa" {
			return database.Product{ID: 5, Name: "Pizza Calabresa"}, nil
		}
		return database.Product{}, pgx.ErrNoRows
	}

	p, err := New(catalog).Resolve(context.Background(), Request{
		StoreID: storeID,
		Source:  enum.SourceHub,
		Name:    "½ Calabresa (+Bacon)",
	})
	if err != nil {
		t.Fatal(err)
	}
	if p.ID != 5 {
		t.Errorf("resolved id = %d, want 5", p.ID)
	}
}

func TestResolveNotFound(t *testing.T) {
	_, err := New(noRowsCatalog()).Resolve(context.Background(), Request{
		StoreID: storeID,
		Source:  enum.SourceHub,
		Name:    "Nada",
	})
	if err != ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestAutoLearnCreatesMapping(t *testing.T) {
	catalog := noRowsCatalog()
	catalog.getProductByExactNameFunc = func(context.Context, database.ProductNameParams) (database.Product, error) {
		return database.Product{ID: 11, Name: "Pizza Margherita"}, nil
	}
	var learned *database.CreateProductMappingParams
	catalog.createProductMappingFunc = func(_ context.Context, arg database.CreateProductMappingParams) error {
		learned = &arg
		return nil
	}

	_, err := New(catalog).ResolveAndLearn(context.Background(), Request{
		StoreID: storeID,
		Source:  enum.SourceMarketplace,
		Code:    "MKT-77",
		Name:    "Pizza Margherita",
	})
	if err != nil {
		t.Fatal(err)
	}
	if learned == nil {
		t.Fatal("expected a mapping to be learned")
	}
	if learned.ProductID != 11 || learned.ExternalCode != "MKT-77" || learned.IntegrationType != enum.SourceMarketplace {
		t.Errorf("learned = %+v", learned)
	}
}

func TestAutoLearnSkipsInternalSources(t *testing.T) {
	catalog := noRowsCatalog()
	catalog.getProductByExactNameFunc = func(context.Context, database.ProductNameParams) (database.Product, error) {
		return database.Product{ID: 11, Name: "Pizza Margherita"}, nil
	}
	catalog.createProductMappingFunc = func(context.Context, database.CreateProductMappingParams) error {
		t.Fatal("counter items must not learn mappings")
		return nil
	}

	_, err := New(catalog).ResolveAndLearn(context.Background(), Request{
		StoreID: storeID,
		Source:  enum.SourcePOS,
		Code:    "POS-1",
		Name:    "Pizza Margherita",
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestCleanName(t *testing.T) {
	cases := map[string]string{
		"½ Calabresa":              "Calabresa",
		"1/2 Calabresa":            "Calabresa",
		"1/3 Quatro Queijos":       "Quatro Queijos",
		"+ Bacon":                  "Bacon",
		"+Catupiry":                "Catupiry",
		"Pizza Grande (+Cheddar)":  "Pizza Grande",
		"Pizza Grande: 1/2 A":      "Pizza Grande",
		"  Pizza Margherita  ":     "Pizza Margherita",
		"Calabresa (sem cebola)":   "Calabresa",
	}
	for in, want := range cases {
		if got := CleanName(in); got != want {
			t.Errorf("CleanName(%q) = %q, want %q", in, got, want)
		}
	}
}
