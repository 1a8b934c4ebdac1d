package leaderboard

import (
	"context"
	"fmt"
	"time"
)

// PeriodType selects the ranking window.
type PeriodType string

const (
	PeriodDaily   PeriodType = "DAILY"
	PeriodMonthly PeriodType = "MONTHLY"
)

// ParsePeriodType validates a raw period type value.
func ParsePeriodType(raw string) (PeriodType, error) {
	switch PeriodType(raw) {
	case PeriodDaily, PeriodMonthly:
		return PeriodType(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPeriodType, raw)
}

// String returns the stored value of the period type.
func (periodType PeriodType) String() string {
	return string(periodType)
}

// UserCarbon is the per-user trip aggregate the ranking is derived from.
type UserCarbon struct {
	UserID      string
	CarbonSaved float64
}

// TripSource aggregates completed trips. The engine never writes to it.
type TripSource interface {
	SumCarbonByUser(ctx context.Context, start time.Time, end time.Time) ([]UserCarbon, error)
}

// Profile is the display data joined onto a ranked user.
type Profile struct {
	Nickname string
	VIP      bool
}

// AccountDirectory resolves display profiles for ranked users. Missing
// users simply stay absent from the returned map.
type AccountDirectory interface {
	Profiles(ctx context.Context, userIDs []string) (map[string]Profile, error)
}

// RewardRecord is the idempotency guard for one issued period reward.
type RewardRecord struct {
	Type          PeriodType
	PeriodKey     string
	UserID        string
	Rank          int
	PointsAwarded int64
	IssuedUnixUTC int64
}

// RewardRecordStore persists issuance records. The (type, periodKey,
// userID) uniqueness must be enforced by the store itself, not by the
// caller, because the external scheduler may retry.
type RewardRecordStore interface {
	InsertRewardRecord(ctx context.Context, record RewardRecord) error
	CountRewardRecords(ctx context.Context, periodType PeriodType, periodKey string) (int64, error)
}

// Query describes one rankings call.
type Query struct {
	Type       PeriodType
	Date       time.Time // zero value means "now"
	NameFilter string
	Page       int
	Size       int
}

// RankedEntry is one displayed leaderboard row.
type RankedEntry struct {
	Rank         int
	UserID       string
	Nickname     string
	VIP          bool
	CarbonSaved  float64
	RewardPoints int64
}

// TopUser is the reward scheduler's view of a ranked user.
type TopUser struct {
	Rank        int
	UserID      string
	CarbonSaved float64
}

// Board is the full rankings response. Total counts the filtered set;
// the carbon and VIP stats always describe the unfiltered window.
type Board struct {
	Entries          []RankedEntry
	Total            int
	TotalCarbonSaved float64
	TotalVIPUsers    int
	RewardsIssued    int64
	PeriodKey        string
}
