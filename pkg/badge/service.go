package badge

import (
	"context"
	"fmt"
	"time"
)

// Service manages badge ownership and the equip slots.
type Service struct {
	store  Store
	ledger PointsLedger
	nowFn  func() time.Time
}

// NewService wires a Service.
func NewService(store Store, pointsLedger PointsLedger, now func() time.Time) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if pointsLedger == nil {
		return nil, fmt.Errorf("%w: points ledger dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	return &Service{store: store, ledger: pointsLedger, nowFn: now}, nil
}

// Purchase buys a shop badge: the cost is debited from the points
// ledger, then the ownership row is created undisplayed. Only badges
// whose acquisition method is "purchase" with a positive cost qualify.
func (service *Service) Purchase(ctx context.Context, userID string, badgeID string) (OwnedBadge, error) {
	definition, err := service.store.GetDefinition(ctx, badgeID)
	if err != nil {
		return OwnedBadge{}, err
	}
	if !definition.Active {
		return OwnedBadge{}, fmt.Errorf("%w: badge inactive", ErrNotPurchasable)
	}
	if definition.AcquisitionMethod != "" && definition.AcquisitionMethod != AcquisitionPurchase {
		return OwnedBadge{}, fmt.Errorf("%w: acquired via %s", ErrNotPurchasable, definition.AcquisitionMethod)
	}
	if definition.PurchaseCost <= 0 {
		return OwnedBadge{}, fmt.Errorf("%w: not for sale", ErrNotPurchasable)
	}
	if _, owned, err := service.store.GetOwned(ctx, userID, badgeID); err != nil {
		return OwnedBadge{}, err
	} else if owned {
		return OwnedBadge{}, ErrAlreadyOwned
	}

	if err := service.ledger.DebitPurchase(ctx, userID, definition.PurchaseCost, definition.Name, badgeID); err != nil {
		return OwnedBadge{}, err
	}
	ownedBadge := OwnedBadge{
		UserID:          userID,
		BadgeID:         badgeID,
		SubCategory:     definition.SubCategory,
		Displayed:       false,
		UnlockedUnixUTC: service.nowFn().UTC().Unix(),
	}
	if err := service.store.InsertOwned(ctx, ownedBadge); err != nil {
		return OwnedBadge{}, err
	}
	return ownedBadge, nil
}

// ToggleDisplay equips or un-equips an owned badge. Un-equipping is
// unconditional; equipping clears every other displayed badge in the
// same slot inside one transaction.
func (service *Service) ToggleDisplay(ctx context.Context, userID string, badgeID string, display bool) error {
	ownedBadge, owned, err := service.store.GetOwned(ctx, userID, badgeID)
	if err != nil {
		return err
	}
	if !owned {
		return ErrBadgeNotOwned
	}
	if !display {
		return service.store.SetDisplayed(ctx, userID, badgeID, false)
	}
	return service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if ownedBadge.SubCategory != "" {
			if err := transactionStore.ClearDisplayedInSlot(ctx, userID, ownedBadge.SubCategory, badgeID); err != nil {
				return err
			}
		}
		return transactionStore.SetDisplayed(ctx, userID, badgeID, true)
	})
}

// AutoUnlockAchievements grants every active achievement badge whose
// carbon threshold the user has reached and does not own yet. Running it
// twice unlocks nothing new the second time.
func (service *Service) AutoUnlockAchievements(ctx context.Context, userID string) ([]OwnedBadge, error) {
	lifetimeCarbon, err := service.ledger.LifetimeCarbon(ctx, userID)
	if err != nil {
		return nil, err
	}
	candidates, err := service.store.ListUnlockableDefinitions(ctx, lifetimeCarbon)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	ownedBadges, err := service.store.ListOwned(ctx, userID)
	if err != nil {
		return nil, err
	}
	ownedSet := make(map[string]struct{}, len(ownedBadges))
	for _, ownedBadge := range ownedBadges {
		ownedSet[ownedBadge.BadgeID] = struct{}{}
	}

	var unlocked []OwnedBadge
	for _, definition := range candidates {
		if _, alreadyOwned := ownedSet[definition.BadgeID]; alreadyOwned {
			continue
		}
		ownedBadge := OwnedBadge{
			UserID:          userID,
			BadgeID:         definition.BadgeID,
			SubCategory:     definition.SubCategory,
			Displayed:       false,
			UnlockedUnixUTC: service.nowFn().UTC().Unix(),
		}
		if err := service.store.InsertOwned(ctx, ownedBadge); err != nil {
			return unlocked, err
		}
		unlocked = append(unlocked, ownedBadge)
	}
	return unlocked, nil
}

// ShopList returns the active catalog annotated with ownership.
func (service *Service) ShopList(ctx context.Context, userID string) ([]ShopItem, error) {
	definitions, err := service.store.ListActiveDefinitions(ctx)
	if err != nil {
		return nil, err
	}
	ownedBadges, err := service.store.ListOwned(ctx, userID)
	if err != nil {
		return nil, err
	}
	ownedSet := make(map[string]struct{}, len(ownedBadges))
	for _, ownedBadge := range ownedBadges {
		ownedSet[ownedBadge.BadgeID] = struct{}{}
	}
	items := make([]ShopItem, 0, len(definitions))
	for _, definition := range definitions {
		_, owned := ownedSet[definition.BadgeID]
		items = append(items, ShopItem{Definition: definition, Owned: owned})
	}
	return items, nil
}

// MyBadges unlocks pending achievements lazily, then lists ownership.
func (service *Service) MyBadges(ctx context.Context, userID string) ([]OwnedBadge, error) {
	if _, err := service.AutoUnlockAchievements(ctx, userID); err != nil {
		return nil, err
	}
	return service.store.ListOwned(ctx, userID)
}
