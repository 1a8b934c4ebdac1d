package challenge

import (
	"context"
	"fmt"
	"time"
)

// Service tracks challenge participation. Progress values are derived
// from the trip aggregate source on every read; only the join record and
// its completion state are stored.
type Service struct {
	store  Store
	trips  TripAggregator
	ledger RewardLedger
	nowFn  func() time.Time
}

// NewService wires a Service.
func NewService(store Store, trips TripAggregator, rewardLedger RewardLedger, now func() time.Time) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if trips == nil {
		return nil, fmt.Errorf("%w: trip aggregator dependency is nil", ErrInvalidServiceConfig)
	}
	if rewardLedger == nil {
		return nil, fmt.Errorf("%w: reward ledger dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	return &Service{store: store, trips: trips, ledger: rewardLedger, nowFn: now}, nil
}

// Join enrolls a user in an active challenge. Joining an ended challenge
// flips the definition to EXPIRED as a side effect.
func (service *Service) Join(ctx context.Context, challengeID string, userID string) (Progress, error) {
	definition, err := service.store.GetDefinition(ctx, challengeID)
	if err != nil {
		return Progress{}, err
	}
	now := service.nowFn()
	if definition.EndUnixUTC != 0 && now.Unix() >= definition.EndUnixUTC {
		if definition.Status != StatusExpired {
			if err := service.store.MarkExpired(ctx, challengeID); err != nil {
				return Progress{}, err
			}
		}
		return Progress{}, ErrChallengeExpired
	}
	if definition.Status != StatusActive {
		return Progress{}, ErrChallengeNotActive
	}
	if _, joined, err := service.store.GetProgress(ctx, challengeID, userID); err != nil {
		return Progress{}, err
	} else if joined {
		return Progress{}, ErrAlreadyJoined
	}

	progress := Progress{
		ChallengeID:   challengeID,
		UserID:        userID,
		Status:        ProgressInProgress,
		JoinedUnixUTC: now.UTC().Unix(),
	}
	err = service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if err := transactionStore.InsertProgress(ctx, progress); err != nil {
			return err
		}
		return transactionStore.AdjustParticipants(ctx, challengeID, 1)
	})
	if err != nil {
		return Progress{}, err
	}
	return progress, nil
}

// Leave removes the join record. Leaving a challenge never joined is a
// no-op, not an error.
func (service *Service) Leave(ctx context.Context, challengeID string, userID string) error {
	if _, err := service.store.GetDefinition(ctx, challengeID); err != nil {
		return err
	}
	return service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		removed, err := transactionStore.DeleteProgress(ctx, challengeID, userID)
		if err != nil {
			return err
		}
		if !removed {
			return nil
		}
		return transactionStore.AdjustParticipants(ctx, challengeID, -1)
	})
}

// Progress computes the live progress view for one participant and runs
// the read-side state transitions: first crossing completes, a lost
// payout resets the claimed flag, and a regression before payout reverts
// to in-progress.
func (service *Service) Progress(ctx context.Context, challengeID string, userID string) (View, error) {
	definition, err := service.store.GetDefinition(ctx, challengeID)
	if err != nil {
		return View{}, err
	}
	stored, joined, err := service.store.GetProgress(ctx, challengeID, userID)
	if err != nil {
		return View{}, err
	}
	if !joined {
		return View{}, ErrNotJoined
	}
	return service.progressView(ctx, definition, stored)
}

// ListParticipants returns the computed progress view for every joined
// user, reconciling each record the same way Progress does.
func (service *Service) ListParticipants(ctx context.Context, challengeID string) ([]View, error) {
	definition, err := service.store.GetDefinition(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	records, err := service.store.ListProgress(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	views := make([]View, 0, len(records))
	for _, stored := range records {
		view, err := service.progressView(ctx, definition, stored)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

// ClaimReward pays out a completed challenge exactly once. Callers must
// not retry a failed claim blindly; the reconciliation in Progress
// recovers from a payout that was written without the claimed flag.
func (service *Service) ClaimReward(ctx context.Context, challengeID string, userID string) (int64, error) {
	definition, err := service.store.GetDefinition(ctx, challengeID)
	if err != nil {
		return 0, err
	}
	stored, joined, err := service.store.GetProgress(ctx, challengeID, userID)
	if err != nil {
		return 0, err
	}
	if !joined {
		return 0, ErrNotJoined
	}
	if stored.RewardClaimed {
		return 0, ErrRewardAlreadyClaimed
	}
	if stored.Status != ProgressCompleted {
		return 0, ErrNotCompleted
	}
	if err := service.ledger.PayReward(ctx, userID, definition.RewardPoints, definition.Title, challengeID); err != nil {
		return 0, err
	}
	stored.RewardClaimed = true
	if err := service.store.UpdateProgress(ctx, stored); err != nil {
		// The payout landed but the flag write failed; the next Progress
		// read repairs rewardClaimed from the ledger entry.
		return definition.RewardPoints, err
	}
	return definition.RewardPoints, nil
}

func (service *Service) progressView(ctx context.Context, definition Definition, stored Progress) (View, error) {
	now := service.nowFn()
	start, end := monthWindow(now)
	current, err := service.trips.AggregateGreenTrips(ctx, stored.UserID, definition.Type.metric(), start, end)
	if err != nil {
		return View{}, err
	}

	reached := definition.Target > 0 && current >= definition.Target
	switch {
	case reached && stored.Status == ProgressInProgress:
		stored.Status = ProgressCompleted
		stored.CompletedUnixUTC = now.UTC().Unix()
		stored.RewardClaimed = false
		if err := service.store.UpdateProgress(ctx, stored); err != nil {
			return View{}, err
		}
	case reached && stored.Status == ProgressCompleted && stored.RewardClaimed:
		paid, err := service.ledger.HasPayout(ctx, stored.UserID, stored.ChallengeID)
		if err != nil {
			return View{}, err
		}
		if !paid {
			// A crashed payout left the flag set without a ledger entry;
			// clear it so the user can claim again.
			stored.RewardClaimed = false
			if err := service.store.UpdateProgress(ctx, stored); err != nil {
				return View{}, err
			}
		}
	case !reached && stored.Status == ProgressCompleted && !stored.RewardClaimed:
		stored.Status = ProgressInProgress
		stored.CompletedUnixUTC = 0
		if err := service.store.UpdateProgress(ctx, stored); err != nil {
			return View{}, err
		}
	}

	return View{
		ChallengeID:      definition.ChallengeID,
		Title:            definition.Title,
		Type:             definition.Type,
		UserID:           stored.UserID,
		Target:           definition.Target,
		Current:          current,
		Percent:          progressPercent(current, definition.Target),
		Status:           stored.Status,
		RewardPoints:     definition.RewardPoints,
		RewardClaimed:    stored.RewardClaimed,
		JoinedUnixUTC:    stored.JoinedUnixUTC,
		CompletedUnixUTC: stored.CompletedUnixUTC,
	}, nil
}

func progressPercent(current float64, target float64) float64 {
	if target <= 0 {
		return 0
	}
	percent := current / target * 100
	if percent > 100 {
		return 100
	}
	return percent
}

// monthWindow is the half-open calendar month containing now, in now's
// location. Challenge progress always counts the current month.
func monthWindow(now time.Time) (time.Time, time.Time) {
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	return start, start.AddDate(0, 1, 0)
}
