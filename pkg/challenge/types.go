package challenge

import (
	"context"
	"fmt"
	"time"
)

// Type selects which trip aggregate a challenge measures.
type Type string

const (
	TypeGreenTripsCount    Type = "GREEN_TRIPS_COUNT"
	TypeGreenTripsDistance Type = "GREEN_TRIPS_DISTANCE"
	TypeCarbonSaved        Type = "CARBON_SAVED"
)

// ParseType validates a raw challenge type value.
func ParseType(raw string) (Type, error) {
	switch Type(raw) {
	case TypeGreenTripsCount, TypeGreenTripsDistance, TypeCarbonSaved:
		return Type(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidType, raw)
}

// Status is the definition lifecycle.
type Status string

const (
	StatusActive  Status = "ACTIVE"
	StatusExpired Status = "EXPIRED"
)

// ProgressStatus is the per-user completion state.
type ProgressStatus string

const (
	ProgressInProgress ProgressStatus = "IN_PROGRESS"
	ProgressCompleted  ProgressStatus = "COMPLETED"
)

// Definition is an admin-authored challenge.
type Definition struct {
	ChallengeID  string
	Title        string
	Type         Type
	Target       float64
	RewardPoints int64
	Status       Status
	StartUnixUTC int64
	EndUnixUTC   int64
	Participants int64
}

// Progress is one user's join record. Current progress is never stored;
// it is recomputed from trips on every read.
type Progress struct {
	ProgressID       string
	ChallengeID      string
	UserID           string
	Status           ProgressStatus
	JoinedUnixUTC    int64
	CompletedUnixUTC int64
	RewardClaimed    bool
}

// View is the computed progress DTO returned to callers.
type View struct {
	ChallengeID      string
	Title            string
	Type             Type
	UserID           string
	Target           float64
	Current          float64
	Percent          float64
	Status           ProgressStatus
	RewardPoints     int64
	RewardClaimed    bool
	JoinedUnixUTC    int64
	CompletedUnixUTC int64
}

// Metric is the reduction applied over green completed trips.
type Metric string

const (
	MetricCount    Metric = "count"
	MetricDistance Metric = "distance"
	MetricCarbon   Metric = "carbon"
)

// TripAggregator reduces green completed trips in a window. The engine
// never writes to the trip store.
type TripAggregator interface {
	AggregateGreenTrips(ctx context.Context, userID string, metric Metric, start time.Time, end time.Time) (float64, error)
}

// RewardLedger is the slice of the points ledger the challenge service
// needs: paying a completed challenge and probing for a lost payout.
type RewardLedger interface {
	PayReward(ctx context.Context, userID string, points int64, description string, challengeID string) error
	HasPayout(ctx context.Context, userID string, challengeID string) (bool, error)
}

// Store is the persistence contract used by Service.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error
	GetDefinition(ctx context.Context, challengeID string) (Definition, error)
	MarkExpired(ctx context.Context, challengeID string) error
	AdjustParticipants(ctx context.Context, challengeID string, delta int64) error
	GetProgress(ctx context.Context, challengeID string, userID string) (Progress, bool, error)
	ListProgress(ctx context.Context, challengeID string) ([]Progress, error)
	InsertProgress(ctx context.Context, progress Progress) error
	UpdateProgress(ctx context.Context, progress Progress) error
	DeleteProgress(ctx context.Context, challengeID string, userID string) (bool, error)
}

func (challengeType Type) metric() Metric {
	switch challengeType {
	case TypeGreenTripsDistance:
		return MetricDistance
	case TypeCarbonSaved:
		return MetricCarbon
	}
	return MetricCount
}
