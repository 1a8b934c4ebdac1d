package gormstore

import (
	"context"
	"time"

	"github.com/EcoCampusLab/gamify/pkg/challenge"
	"github.com/EcoCampusLab/gamify/pkg/leaderboard"
	"gorm.io/gorm"
)

// TripStore reads the trips table. It serves both the leaderboard
// carbon rollup and the challenge progress aggregation; the trip
// tracking flow owns the writes.
type TripStore struct {
	db *gorm.DB
}

// NewTripStore returns a TripStore backed by gorm.DB.
func NewTripStore(db *gorm.DB) *TripStore {
	return &TripStore{db: db}
}

// SumCarbonByUser rolls up carbon saved per user over completed trips
// in the half-open window [start, end).
func (store *TripStore) SumCarbonByUser(ctx context.Context, start time.Time, end time.Time) ([]leaderboard.UserCarbon, error) {
	var rows []leaderboard.UserCarbon
	err := store.db.WithContext(ctx).
		Model(&Trip{}).
		Select("user_id, SUM(carbon_saved) as carbon_saved").
		Where("status = ? AND started_at >= ? AND started_at < ?", tripStatusCompleted, start, end).
		Group("user_id").
		Scan(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectTrip, errorCodeSum, err)
	}
	return rows, nil
}

// AggregateGreenTrips reduces one user's green completed trips in the
// window to a single metric value.
func (store *TripStore) AggregateGreenTrips(ctx context.Context, userID string, metric challenge.Metric, start time.Time, end time.Time) (float64, error) {
	query := store.db.WithContext(ctx).
		Model(&Trip{}).
		Where("user_id = ? AND green_trip = ? AND status = ? AND started_at >= ? AND started_at < ?",
			userID, true, tripStatusCompleted, start, end)

	switch metric {
	case challenge.MetricDistance:
		query = query.Select("COALESCE(SUM(distance_km), 0) as total")
	case challenge.MetricCarbon:
		query = query.Select("COALESCE(SUM(carbon_saved), 0) as total")
	default:
		query = query.Select("COUNT(*) as total")
	}

	var sum sqlSum
	if err := query.Scan(&sum).Error; err != nil {
		return 0, wrapStoreError(errorSubjectTrip, errorCodeSum, err)
	}
	return sum.Total, nil
}
