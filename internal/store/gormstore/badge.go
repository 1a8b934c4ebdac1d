package gormstore

import (
	"context"
	"errors"
	"time"

	"github.com/EcoCampusLab/gamify/pkg/badge"
	"gorm.io/gorm"
)

// BadgeStore implements badge.Store.
type BadgeStore struct {
	db *gorm.DB
}

// NewBadgeStore returns a BadgeStore backed by gorm.DB.
func NewBadgeStore(db *gorm.DB) *BadgeStore {
	return &BadgeStore{db: db}
}

// WithTx executes fn within a transaction.
func (store *BadgeStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore badge.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &BadgeStore{db: transaction})
	})
}

func (store *BadgeStore) GetDefinition(ctx context.Context, badgeID string) (badge.Definition, error) {
	var row BadgeDefinition
	err := store.db.WithContext(ctx).
		Where("badge_id = ?", badgeID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return badge.Definition{}, badge.ErrBadgeNotFound
	}
	if err != nil {
		return badge.Definition{}, wrapStoreError(errorSubjectBadge, errorCodeLookup, err)
	}
	return mapRowToBadgeDefinition(row), nil
}

func (store *BadgeStore) ListActiveDefinitions(ctx context.Context) ([]badge.Definition, error) {
	var rows []BadgeDefinition
	err := store.db.WithContext(ctx).
		Where("active = ?", true).
		Order("badge_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectBadge, errorCodeList, err)
	}
	return mapRowsToBadgeDefinitions(rows), nil
}

func (store *BadgeStore) ListUnlockableDefinitions(ctx context.Context, carbonCeiling float64) ([]badge.Definition, error) {
	var rows []BadgeDefinition
	err := store.db.WithContext(ctx).
		Where("active = ? AND acquisition_method = ? AND carbon_threshold <= ?",
			true, badge.AcquisitionAchievement, carbonCeiling).
		Order("carbon_threshold ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectBadge, errorCodeList, err)
	}
	return mapRowsToBadgeDefinitions(rows), nil
}

func (store *BadgeStore) GetOwned(ctx context.Context, userID string, badgeID string) (badge.OwnedBadge, bool, error) {
	var row UserBadge
	err := store.db.WithContext(ctx).
		Where("user_id = ? AND badge_id = ?", userID, badgeID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return badge.OwnedBadge{}, false, nil
	}
	if err != nil {
		return badge.OwnedBadge{}, false, wrapStoreError(errorSubjectOwnedBadge, errorCodeLookup, err)
	}
	return mapRowToOwnedBadge(row), true, nil
}

func (store *BadgeStore) ListOwned(ctx context.Context, userID string) ([]badge.OwnedBadge, error) {
	var rows []UserBadge
	err := store.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("unlocked_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectOwnedBadge, errorCodeList, err)
	}
	owned := make([]badge.OwnedBadge, 0, len(rows))
	for _, row := range rows {
		owned = append(owned, mapRowToOwnedBadge(row))
	}
	return owned, nil
}

func (store *BadgeStore) InsertOwned(ctx context.Context, owned badge.OwnedBadge) error {
	unlockedAt := time.Unix(owned.UnlockedUnixUTC, 0).UTC()
	if owned.UnlockedUnixUTC == 0 {
		unlockedAt = time.Now().UTC()
	}
	row := UserBadge{
		OwnershipID: owned.OwnershipID,
		UserID:      owned.UserID,
		BadgeID:     owned.BadgeID,
		SubCategory: owned.SubCategory,
		Displayed:   owned.Displayed,
		UnlockedAt:  unlockedAt,
	}
	err := store.db.WithContext(ctx).Create(&row).Error
	if isUniqueViolation(err) {
		return badge.ErrAlreadyOwned
	}
	if err != nil {
		return wrapStoreError(errorSubjectOwnedBadge, errorCodeInsert, err)
	}
	return nil
}

func (store *BadgeStore) SetDisplayed(ctx context.Context, userID string, badgeID string, displayed bool) error {
	err := store.db.WithContext(ctx).
		Model(&UserBadge{}).
		Where("user_id = ? AND badge_id = ?", userID, badgeID).
		Updates(map[string]interface{}{
			"displayed":  displayed,
			"updated_at": time.Now().UTC(),
		}).Error
	if err != nil {
		return wrapStoreError(errorSubjectOwnedBadge, errorCodeUpdate, err)
	}
	return nil
}

func (store *BadgeStore) ClearDisplayedInSlot(ctx context.Context, userID string, subCategory string, exceptBadgeID string) error {
	err := store.db.WithContext(ctx).
		Model(&UserBadge{}).
		Where("user_id = ? AND sub_category = ? AND badge_id <> ?", userID, subCategory, exceptBadgeID).
		Updates(map[string]interface{}{
			"displayed":  false,
			"updated_at": time.Now().UTC(),
		}).Error
	if err != nil {
		return wrapStoreError(errorSubjectOwnedBadge, errorCodeUpdate, err)
	}
	return nil
}

func mapRowToBadgeDefinition(row BadgeDefinition) badge.Definition {
	return badge.Definition{
		BadgeID:           row.BadgeID,
		Name:              row.Name,
		SubCategory:       row.SubCategory,
		PurchaseCost:      row.PurchaseCost,
		AcquisitionMethod: row.AcquisitionMethod,
		CarbonThreshold:   row.CarbonThreshold,
		Active:            row.Active,
	}
}

func mapRowsToBadgeDefinitions(rows []BadgeDefinition) []badge.Definition {
	definitions := make([]badge.Definition, 0, len(rows))
	for _, row := range rows {
		definitions = append(definitions, mapRowToBadgeDefinition(row))
	}
	return definitions
}

func mapRowToOwnedBadge(row UserBadge) badge.OwnedBadge {
	return badge.OwnedBadge{
		OwnershipID:     row.OwnershipID,
		UserID:          row.UserID,
		BadgeID:         row.BadgeID,
		SubCategory:     row.SubCategory,
		Displayed:       row.Displayed,
		UnlockedUnixUTC: row.UnlockedAt.Unix(),
	}
}
