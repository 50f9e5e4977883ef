package enum

// ── Order lifecycle (aggregate, persisted on orders.status) ──

const (
	OrderStatusPreparing  = "PREPARING"
	OrderStatusExpediting = "EXPEDITING"
	OrderStatusReady      = "READY"
	OrderStatusDispatched = "DISPATCHED"
	OrderStatusDelivered  = "DELIVERED"
	OrderStatusCompleted  = "COMPLETED"
	OrderStatusCancelled  = "CANCELLED"
)

// ── Per-item kitchen stage (stored inside items_json as kds_stage) ──

const (
	StagePreparing  = 0
	StageExpediting = 1
	StageDone       = 2
)

// ── Detail line semantic types ──

const (
	DetailFlavor  = "flavor"
	DetailAddon   = "addon"
	DetailEdge    = "edge"
	DetailRemoved = "removed"
	DetailObs     = "obs"
	DetailInfo    = "info"
)

// ── Delivery types ──

const (
	DeliveryTypeDelivery = "delivery"
	DeliveryTypeCounter  = "counter"
	DeliveryTypeDineIn   = "dine_in"
)

// ── Integration sources ──

const (
	SourceHub         = "hub"
	SourceMarketplace = "marketplace"
	SourcePOS         = "pos"
)

// ── Stock movement directions ──

const (
	MovementOut    = "OUT"
	MovementIn     = "IN"
	MovementAdjust = "ADJUST"
)

// ── User roles ──

const (
	UserRoleOwner   = "OWNER"
	UserRoleManager = "MANAGER"
	UserRoleCashier = "CASHIER"
	UserRoleKitchen = "KITCHEN"
)

// ── KDS board modes ──

const (
	KDSModeKitchen    = "kitchen"
	KDSModeExpedition = "expedition"
)
