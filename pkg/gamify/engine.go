// Package gamify composes the ledger, leaderboard, challenge, and badge
// services into one engine a transport can wrap.
package gamify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/EcoCampusLab/gamify/pkg/badge"
	"github.com/EcoCampusLab/gamify/pkg/challenge"
	"github.com/EcoCampusLab/gamify/pkg/leaderboard"
	"github.com/EcoCampusLab/gamify/pkg/ledger"
)

// ErrInvalidEngineConfig reports a missing engine dependency.
var ErrInvalidEngineConfig = errors.New("invalid engine config")

// Dependencies are the stores and collaborators the engine runs on.
type Dependencies struct {
	LedgerStore    ledger.Store
	TripSource     leaderboard.TripSource
	TripAggregator challenge.TripAggregator
	Directory      leaderboard.AccountDirectory
	RewardRecords  leaderboard.RewardRecordStore
	ChallengeStore challenge.Store
	BadgeStore     badge.Store
	Now            func() time.Time
}

// Options tune the engine beyond its defaults.
type Options struct {
	LedgerConfig      *ledger.Config
	LeaderboardConfig *leaderboard.Config
	OperationLogger   ledger.OperationLogger
}

// Engine bundles the four services of the gamification core.
type Engine struct {
	Ledger      *ledger.Service
	Leaderboard *leaderboard.Service
	Challenges  *challenge.Service
	Badges      *badge.Service
}

// New wires an Engine from its dependencies.
func New(deps Dependencies, options Options) (*Engine, error) {
	if deps.Now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidEngineConfig)
	}
	unixNow := func() int64 { return deps.Now().UTC().Unix() }

	var ledgerOptions []ledger.ServiceOption
	if options.LedgerConfig != nil {
		ledgerOptions = append(ledgerOptions, ledger.WithConfig(*options.LedgerConfig))
	}
	if options.OperationLogger != nil {
		ledgerOptions = append(ledgerOptions, ledger.WithOperationLogger(options.OperationLogger))
	}
	ledgerService, err := ledger.NewService(deps.LedgerStore, unixNow, ledgerOptions...)
	if err != nil {
		return nil, err
	}

	var leaderboardOptions []leaderboard.ServiceOption
	if options.LeaderboardConfig != nil {
		leaderboardOptions = append(leaderboardOptions, leaderboard.WithConfig(*options.LeaderboardConfig))
	}
	leaderboardService, err := leaderboard.NewService(deps.TripSource, deps.Directory, deps.RewardRecords, deps.Now, leaderboardOptions...)
	if err != nil {
		return nil, err
	}

	challengeService, err := challenge.NewService(deps.ChallengeStore, deps.TripAggregator, &challengeLedger{ledgerService}, deps.Now)
	if err != nil {
		return nil, err
	}

	badgeService, err := badge.NewService(deps.BadgeStore, &badgeLedger{ledgerService}, deps.Now)
	if err != nil {
		return nil, err
	}

	return &Engine{
		Ledger:      ledgerService,
		Leaderboard: leaderboardService,
		Challenges:  challengeService,
		Badges:      badgeService,
	}, nil
}

// challengeLedger adapts the points ledger to the challenge service's
// reward contract.
type challengeLedger struct {
	service *ledger.Service
}

func (adapter *challengeLedger) PayReward(ctx context.Context, rawUserID string, points int64, description string, challengeID string) error {
	userID, err := ledger.NewUserID(rawUserID)
	if err != nil {
		return err
	}
	source, err := ledger.NewSource(ledger.SourceChallenges)
	if err != nil {
		return err
	}
	_, err = adapter.service.Adjust(ctx, userID, ledger.AdjustInput{
		Points:      points,
		Source:      source,
		Description: description,
		RelatedID:   challengeID,
	})
	return err
}

func (adapter *challengeLedger) HasPayout(ctx context.Context, rawUserID string, challengeID string) (bool, error) {
	userID, err := ledger.NewUserID(rawUserID)
	if err != nil {
		return false, err
	}
	source, err := ledger.NewSource(ledger.SourceChallenges)
	if err != nil {
		return false, err
	}
	return adapter.service.HasEntry(ctx, userID, source, challengeID)
}

// badgeLedger adapts the points ledger to the badge service's shop
// contract.
type badgeLedger struct {
	service *ledger.Service
}

func (adapter *badgeLedger) DebitPurchase(ctx context.Context, rawUserID string, cost int64, badgeName string, badgeID string) error {
	userID, err := ledger.NewUserID(rawUserID)
	if err != nil {
		return err
	}
	source, err := ledger.NewSource(ledger.SourceBadge)
	if err != nil {
		return err
	}
	_, err = adapter.service.Adjust(ctx, userID, ledger.AdjustInput{
		Points:      -cost,
		Source:      source,
		Description: "badge purchase: " + badgeName,
		RelatedID:   badgeID,
	})
	return err
}

func (adapter *badgeLedger) LifetimeCarbon(ctx context.Context, rawUserID string) (float64, error) {
	userID, err := ledger.NewUserID(rawUserID)
	if err != nil {
		return 0, err
	}
	balance, err := adapter.service.CurrentBalance(ctx, userID)
	if err != nil {
		return 0, err
	}
	return balance.TotalCarbonSaved, nil
}
