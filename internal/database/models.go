package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type Store struct {
	ID                 uuid.UUID
	Name               string
	IsOpen             bool
	IntegrationsConfig []byte
	CreatedAt          time.Time
}

type User struct {
	ID           uuid.UUID
	StoreID      uuid.UUID
	Email        string
	PasswordHash string
	FullName     string
	Role         string
	CreatedAt    time.Time
}

type Order struct {
	ID                  uuid.UUID
	StoreID             uuid.UUID
	ExternalID          pgtype.Text
	DisplayID           pgtype.Text
	Source              string
	Status              string
	CustomerName        pgtype.Text
	CustomerPhone       pgtype.Text
	CustomerEmail       pgtype.Text
	AddressStreet       pgtype.Text
	AddressNumber       pgtype.Text
	AddressNeighborhood pgtype.Text
	AddressCity         pgtype.Text
	AddressState        pgtype.Text
	AddressZip          pgtype.Text
	AddressComplement   pgtype.Text
	TotalValue          pgtype.Numeric
	DeliveryFee         pgtype.Numeric
	Discount            pgtype.Numeric
	PaymentMethod       pgtype.Text
	DeliveryType        string
	ItemsJSON           []byte
	Notes               pgtype.Text
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

type Product struct {
	ID         int64
	StoreID    uuid.UUID
	Name       string
	CategoryID pgtype.Int8
	IsPizza    bool
	BaseType   string
	ComboItems []byte
}

type Category struct {
	ID       int64
	StoreID  uuid.UUID
	Name     string
	SectorID pgtype.Int8
}

type ProductionSector struct {
	ID            int64
	StoreID       uuid.UUID
	Name          string
	HasExpedition bool
}

type PizzaSize struct {
	ID               int64
	StoreID          uuid.UUID
	Name             string
	Slug             string
	Slices           int32
	RecipeMultiplier float64
}

type Ingredient struct {
	ID               int64
	StoreID          uuid.UUID
	Name             string
	CurrentStock     float64
	Cost             float64
	ConversionFactor float64
}

type ProductRecipe struct {
	ID           int64
	ProductID    int64
	SizeID       pgtype.Int8
	IngredientID int64
	Quantity     float64
}

type PizzaBaseRecipe struct {
	ID           int64
	StoreID      uuid.UUID
	BaseType     string
	SizeID       pgtype.Int8
	SizeSlug     pgtype.Text
	IngredientID int64
	Quantity     float64
}

type AddonPrice struct {
	ID           int64
	StoreID      uuid.UUID
	AddonID      int64
	SizeID       int64
	ExternalCode pgtype.Text
	Price        pgtype.Numeric
}

type AddonRecipe struct {
	ID           int64
	AddonPriceID int64
	IngredientID int64
	Quantity     float64
}

type ProductMapping struct {
	ID              int64
	StoreID         uuid.UUID
	ProductID       int64
	IntegrationType string
	ExternalCode    string
}

type StockLog struct {
	ID           int64
	StoreID      uuid.UUID
	IngredientID int64
	MovementType string
	Quantity     float64
	OldStock     float64
	NewStock     float64
	CostAtTime   float64
	Reason       string
	UserName     string
	CreatedAt    time.Time
}

type DeliveryFee struct {
	ID           int64
	StoreID      uuid.UUID
	Neighborhood string
	Fee          pgtype.Numeric
}
