package badge

import "context"

// Acquisition methods recognized by the shop.
const (
	AcquisitionPurchase    = "purchase"
	AcquisitionAchievement = "achievement"
)

// Definition is a catalog entry. SubCategory is the equip slot; badges
// sharing a non-empty slot are mutually exclusive on display.
type Definition struct {
	BadgeID           string
	Name              string
	SubCategory       string
	PurchaseCost      int64
	AcquisitionMethod string
	CarbonThreshold   float64
	Active            bool
}

// OwnedBadge is one user's ownership record.
type OwnedBadge struct {
	OwnershipID     string
	UserID          string
	BadgeID         string
	SubCategory     string
	Displayed       bool
	UnlockedUnixUTC int64
}

// ShopItem is a catalog entry annotated with the caller's ownership.
type ShopItem struct {
	Definition Definition
	Owned      bool
}

// PointsLedger is the slice of the points ledger the badge service
// needs: debiting a purchase and reading lifetime carbon for unlocks.
type PointsLedger interface {
	DebitPurchase(ctx context.Context, userID string, cost int64, badgeName string, badgeID string) error
	LifetimeCarbon(ctx context.Context, userID string) (float64, error)
}

// Store is the persistence contract used by Service. SetDisplayed and
// ClearDisplayedInSlot run inside WithTx when equipping so no concurrent
// reader observes two displayed badges in one slot.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error
	GetDefinition(ctx context.Context, badgeID string) (Definition, error)
	ListActiveDefinitions(ctx context.Context) ([]Definition, error)
	ListUnlockableDefinitions(ctx context.Context, carbonCeiling float64) ([]Definition, error)
	GetOwned(ctx context.Context, userID string, badgeID string) (OwnedBadge, bool, error)
	ListOwned(ctx context.Context, userID string) ([]OwnedBadge, error)
	InsertOwned(ctx context.Context, owned OwnedBadge) error
	SetDisplayed(ctx context.Context, userID string, badgeID string, displayed bool) error
	ClearDisplayedInSlot(ctx context.Context, userID string, subCategory string, exceptBadgeID string) error
}
