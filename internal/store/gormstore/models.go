package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Account represents the accounts table: the denormalized balance plus
// the display profile joined onto leaderboards.
type Account struct {
	UserID            string    `gorm:"primaryKey"`
	Nickname          string    `gorm:""`
	VIP               bool      `gorm:"column:vip;not null;default:false"`
	CurrentPoints     int64     `gorm:"not null;default:0"`
	TotalPointsEarned int64     `gorm:"not null;default:0"`
	TotalCarbonSaved  float64   `gorm:"not null;default:0"`
	CreatedAt         time.Time `gorm:"not null"`
	UpdatedAt         time.Time `gorm:"not null"`
}

func (Account) TableName() string { return "accounts" }

// PointLedgerEntry mirrors the point_ledger_entries table.
type PointLedgerEntry struct {
	EntryID      string         `gorm:"type:uuid;primaryKey"`
	UserID       string         `gorm:"not null;index:idx_point_ledger_user_created,priority:1;index:idx_point_ledger_user_source_related,priority:1"`
	ChangeType   string         `gorm:"not null"`
	Points       int64          `gorm:"not null"`
	Source       string         `gorm:"not null;index:idx_point_ledger_user_source_related,priority:2"`
	Description  string         `gorm:""`
	RelatedID    *string        `gorm:"index:idx_point_ledger_user_source_related,priority:3"`
	BalanceAfter int64          `gorm:"not null"`
	AdminAction  datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt    time.Time      `gorm:"not null;index:idx_point_ledger_user_created,priority:2"`
}

func (PointLedgerEntry) TableName() string { return "point_ledger_entries" }

func (entry *PointLedgerEntry) BeforeCreate(tx *gorm.DB) error {
	if entry.EntryID == "" {
		entry.EntryID = uuid.NewString()
	}
	return nil
}

// LeaderboardReward mirrors the leaderboard_rewards table. The unique
// index is the idempotency guard the external scheduler relies on.
type LeaderboardReward struct {
	RewardID      string    `gorm:"type:uuid;primaryKey"`
	PeriodType    string    `gorm:"not null;index:uniq_reward_period_user,unique,priority:1"`
	PeriodKey     string    `gorm:"not null;index:uniq_reward_period_user,unique,priority:2"`
	UserID        string    `gorm:"not null;index:uniq_reward_period_user,unique,priority:3"`
	Rank          int       `gorm:"not null"`
	PointsAwarded int64     `gorm:"not null"`
	IssuedAt      time.Time `gorm:"not null"`
}

func (LeaderboardReward) TableName() string { return "leaderboard_rewards" }

func (reward *LeaderboardReward) BeforeCreate(tx *gorm.DB) error {
	if reward.RewardID == "" {
		reward.RewardID = uuid.NewString()
	}
	return nil
}

// ChallengeDefinition mirrors the challenge_definitions table.
type ChallengeDefinition struct {
	ChallengeID  string    `gorm:"type:uuid;primaryKey"`
	Title        string    `gorm:"not null"`
	Type         string    `gorm:"not null"`
	Target       float64   `gorm:"not null"`
	RewardPoints int64     `gorm:"not null"`
	Status       string    `gorm:"not null"`
	StartAt      time.Time `gorm:"not null"`
	EndAt        time.Time `gorm:"not null"`
	Participants int64     `gorm:"not null;default:0"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

func (ChallengeDefinition) TableName() string { return "challenge_definitions" }

func (definition *ChallengeDefinition) BeforeCreate(tx *gorm.DB) error {
	if definition.ChallengeID == "" {
		definition.ChallengeID = uuid.NewString()
	}
	return nil
}

// ChallengeProgress mirrors the challenge_progress table.
type ChallengeProgress struct {
	ProgressID    string     `gorm:"type:uuid;primaryKey"`
	ChallengeID   string     `gorm:"not null;index:uniq_challenge_user,unique,priority:1"`
	UserID        string     `gorm:"not null;index:uniq_challenge_user,unique,priority:2"`
	Status        string     `gorm:"not null"`
	JoinedAt      time.Time  `gorm:"not null"`
	CompletedAt   *time.Time `gorm:""`
	RewardClaimed bool       `gorm:"not null;default:false"`
	UpdatedAt     time.Time  `gorm:"not null"`
}

func (ChallengeProgress) TableName() string { return "challenge_progress" }

func (progress *ChallengeProgress) BeforeCreate(tx *gorm.DB) error {
	if progress.ProgressID == "" {
		progress.ProgressID = uuid.NewString()
	}
	return nil
}

// BadgeDefinition mirrors the badge_definitions table.
type BadgeDefinition struct {
	BadgeID           string    `gorm:"primaryKey"`
	Name              string    `gorm:"not null"`
	SubCategory       string    `gorm:""`
	PurchaseCost      int64     `gorm:"not null;default:0"`
	AcquisitionMethod string    `gorm:""`
	CarbonThreshold   float64   `gorm:"not null;default:0"`
	Active            bool      `gorm:"not null;default:true"`
	CreatedAt         time.Time `gorm:"not null"`
	UpdatedAt         time.Time `gorm:"not null"`
}

func (BadgeDefinition) TableName() string { return "badge_definitions" }

// UserBadge mirrors the user_badges table. SubCategory is denormalized
// from the definition at acquisition time.
type UserBadge struct {
	OwnershipID string    `gorm:"type:uuid;primaryKey"`
	UserID      string    `gorm:"not null;index:uniq_user_badge,unique,priority:1;index:idx_user_badge_slot,priority:1"`
	BadgeID     string    `gorm:"not null;index:uniq_user_badge,unique,priority:2"`
	SubCategory string    `gorm:"index:idx_user_badge_slot,priority:2"`
	Displayed   bool      `gorm:"not null;default:false"`
	UnlockedAt  time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

func (UserBadge) TableName() string { return "user_badges" }

func (ownedBadge *UserBadge) BeforeCreate(tx *gorm.DB) error {
	if ownedBadge.OwnershipID == "" {
		ownedBadge.OwnershipID = uuid.NewString()
	}
	return nil
}

// Trip mirrors the trips table. The engine only reads it; the trip
// tracking flow owns the writes.
type Trip struct {
	TripID      string     `gorm:"type:uuid;primaryKey"`
	UserID      string     `gorm:"not null;index:idx_trips_user_started,priority:1"`
	DistanceKM  float64    `gorm:"not null;default:0"`
	CarbonSaved float64    `gorm:"not null;default:0"`
	GreenTrip   bool       `gorm:"not null;default:false"`
	Status      string     `gorm:"not null"`
	StartedAt   time.Time  `gorm:"not null;index:idx_trips_user_started,priority:2"`
	EndedAt     *time.Time `gorm:""`
}

func (Trip) TableName() string { return "trips" }

func (trip *Trip) BeforeCreate(tx *gorm.DB) error {
	if trip.TripID == "" {
		trip.TripID = uuid.NewString()
	}
	return nil
}

// Migrate creates or updates every table of the gamification core.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Account{},
		&PointLedgerEntry{},
		&LeaderboardReward{},
		&ChallengeDefinition{},
		&ChallengeProgress{},
		&BadgeDefinition{},
		&UserBadge{},
		&Trip{},
	)
}
