package gormstore

import (
	"context"
	"time"

	"github.com/EcoCampusLab/gamify/pkg/leaderboard"
	"gorm.io/gorm"
)

// RewardStore implements leaderboard.RewardRecordStore. The unique index
// on (period_type, period_key, user_id) provides the idempotency the
// service relies on.
type RewardStore struct {
	db *gorm.DB
}

// NewRewardStore returns a RewardStore backed by gorm.DB.
func NewRewardStore(db *gorm.DB) *RewardStore {
	return &RewardStore{db: db}
}

func (store *RewardStore) InsertRewardRecord(ctx context.Context, record leaderboard.RewardRecord) error {
	row := LeaderboardReward{
		PeriodType:    string(record.Type),
		PeriodKey:     record.PeriodKey,
		UserID:        record.UserID,
		Rank:          record.Rank,
		PointsAwarded: record.PointsAwarded,
		IssuedAt:      time.Unix(record.IssuedUnixUTC, 0).UTC(),
	}
	err := store.db.WithContext(ctx).Create(&row).Error
	if isUniqueViolation(err) {
		return leaderboard.ErrRewardAlreadyIssued
	}
	if err != nil {
		return wrapStoreError(errorSubjectReward, errorCodeInsert, err)
	}
	return nil
}

func (store *RewardStore) CountRewardRecords(ctx context.Context, periodType leaderboard.PeriodType, periodKey string) (int64, error) {
	var total int64
	err := store.db.WithContext(ctx).
		Model(&LeaderboardReward{}).
		Where("period_type = ? AND period_key = ?", string(periodType), periodKey).
		Count(&total).Error
	if err != nil {
		return 0, wrapStoreError(errorSubjectReward, errorCodeCount, err)
	}
	return total, nil
}
