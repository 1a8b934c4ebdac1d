package gormstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/EcoCampusLab/gamify/pkg/ledger"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// LedgerStore implements ledger.Store.
type LedgerStore struct {
	db *gorm.DB
}

// NewLedgerStore returns a LedgerStore backed by gorm.DB.
func NewLedgerStore(db *gorm.DB) *LedgerStore {
	return &LedgerStore{db: db}
}

// WithTx executes fn within a transaction.
func (store *LedgerStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore ledger.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &LedgerStore{db: transaction})
	})
}

func (store *LedgerStore) GetOrCreateAccount(ctx context.Context, userID ledger.UserID) (ledger.Account, error) {
	var account Account
	err := store.db.WithContext(ctx).
		FirstOrCreate(&account, Account{UserID: userID.String()}).Error
	if err != nil {
		return ledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeLookup, err)
	}
	return ledger.Account{
		UserID:            account.UserID,
		CurrentPoints:     account.CurrentPoints,
		TotalPointsEarned: account.TotalPointsEarned,
		TotalCarbonSaved:  account.TotalCarbonSaved,
	}, nil
}

// UpdateBalance is the compare-and-swap write of the ledger: the row
// must still hold the balance the caller read, otherwise the update
// matches nothing and the caller retries.
func (store *LedgerStore) UpdateBalance(ctx context.Context, userID ledger.UserID, update ledger.BalanceUpdate) error {
	result := store.db.WithContext(ctx).
		Model(&Account{}).
		Where("user_id = ? AND current_points = ?", userID.String(), update.FromPoints).
		Updates(map[string]interface{}{
			"current_points":      update.ToPoints,
			"total_points_earned": gorm.Expr("total_points_earned + ?", update.EarnedDelta),
			"total_carbon_saved":  gorm.Expr("total_carbon_saved + ?", update.CarbonDelta),
			"updated_at":          time.Now().UTC(),
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectAccount, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectAccount, errorCodeBalanceConflict, ledger.ErrBalanceConflict)
	}
	return nil
}

func (store *LedgerStore) InsertEntry(ctx context.Context, entry ledger.Entry) error {
	row, err := mapEntryToRow(entry)
	if err != nil {
		return wrapStoreError(errorSubjectEntry, errorCodeInvalid, err)
	}
	if err := store.db.WithContext(ctx).Create(&row).Error; err != nil {
		return wrapStoreError(errorSubjectEntry, errorCodeInsert, err)
	}
	return nil
}

func (store *LedgerStore) ListEntries(ctx context.Context, userID ledger.UserID, offset int, limit int) ([]ledger.Entry, int64, error) {
	var total int64
	err := store.db.WithContext(ctx).
		Model(&PointLedgerEntry{}).
		Where("user_id = ?", userID.String()).
		Count(&total).Error
	if err != nil {
		return nil, 0, wrapStoreError(errorSubjectEntry, errorCodeCount, err)
	}

	var rows []PointLedgerEntry
	err = store.db.WithContext(ctx).
		Where("user_id = ?", userID.String()).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, 0, wrapStoreError(errorSubjectEntry, errorCodeList, err)
	}

	entries := make([]ledger.Entry, 0, len(rows))
	for _, row := range rows {
		entry, err := mapRowToEntry(row)
		if err != nil {
			return nil, 0, wrapStoreError(errorSubjectEntry, errorCodeInvalid, err)
		}
		entries = append(entries, entry)
	}
	return entries, total, nil
}

func (store *LedgerStore) HasEntry(ctx context.Context, userID ledger.UserID, source ledger.Source, relatedID string) (bool, error) {
	var count sqlCount
	err := store.db.WithContext(ctx).
		Model(&PointLedgerEntry{}).
		Select("count(*) as total").
		Where("user_id = ? AND source = ? AND related_id = ?", userID.String(), source.String(), relatedID).
		Scan(&count).Error
	if err != nil {
		return false, wrapStoreError(errorSubjectEntry, errorCodeCount, err)
	}
	return count.Total > 0, nil
}

func mapEntryToRow(entry ledger.Entry) (PointLedgerEntry, error) {
	var relatedID *string
	if entry.RelatedID != "" {
		value := entry.RelatedID
		relatedID = &value
	}
	var adminJSON datatypes.JSON
	if entry.Admin != nil {
		raw, err := json.Marshal(entry.Admin)
		if err != nil {
			return PointLedgerEntry{}, err
		}
		adminJSON = datatypes.JSON(raw)
	}
	createdAt := time.Unix(entry.CreatedUnixUTC, 0).UTC()
	if entry.CreatedUnixUTC == 0 {
		createdAt = time.Now().UTC()
	}
	return PointLedgerEntry{
		EntryID:      entry.EntryID,
		UserID:       entry.UserID,
		ChangeType:   entry.Change.String(),
		Points:       entry.Points,
		Source:       entry.Source,
		Description:  entry.Description,
		RelatedID:    relatedID,
		BalanceAfter: entry.BalanceAfter,
		AdminAction:  adminJSON,
		CreatedAt:    createdAt,
	}, nil
}

func mapRowToEntry(row PointLedgerEntry) (ledger.Entry, error) {
	changeType, err := ledger.ParseChangeType(row.ChangeType)
	if err != nil {
		return ledger.Entry{}, err
	}
	var relatedID string
	if row.RelatedID != nil {
		relatedID = *row.RelatedID
	}
	var admin *ledger.AdminAction
	if len(row.AdminAction) > 0 {
		var decoded ledger.AdminAction
		if err := json.Unmarshal(row.AdminAction, &decoded); err != nil {
			return ledger.Entry{}, err
		}
		admin = &decoded
	}
	return ledger.Entry{
		EntryID:        row.EntryID,
		UserID:         row.UserID,
		Change:         changeType,
		Points:         row.Points,
		Source:         row.Source,
		Description:    row.Description,
		RelatedID:      relatedID,
		BalanceAfter:   row.BalanceAfter,
		Admin:          admin,
		CreatedUnixUTC: row.CreatedAt.Unix(),
	}, nil
}
