package challenge

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

const challengeIDValue = "challenge-1"

type stubStore struct {
	definitions map[string]Definition
	progress    map[string]Progress

	insertError error
	updateError error
}

func progressKey(challengeID string, userID string) string {
	return challengeID + "/" + userID
}

func newStubStore(test *testing.T) *stubStore {
	test.Helper()
	return &stubStore{
		definitions: map[string]Definition{},
		progress:    map[string]Progress{},
	}
}

func (store *stubStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	return fn(ctx, store)
}

func (store *stubStore) GetDefinition(_ context.Context, challengeID string) (Definition, error) {
	definition, ok := store.definitions[challengeID]
	if !ok {
		return Definition{}, ErrChallengeNotFound
	}
	return definition, nil
}

func (store *stubStore) MarkExpired(_ context.Context, challengeID string) error {
	definition, ok := store.definitions[challengeID]
	if !ok {
		return ErrChallengeNotFound
	}
	definition.Status = StatusExpired
	store.definitions[challengeID] = definition
	return nil
}

func (store *stubStore) AdjustParticipants(_ context.Context, challengeID string, delta int64) error {
	definition, ok := store.definitions[challengeID]
	if !ok {
		return ErrChallengeNotFound
	}
	definition.Participants += delta
	if definition.Participants < 0 {
		definition.Participants = 0
	}
	store.definitions[challengeID] = definition
	return nil
}

func (store *stubStore) GetProgress(_ context.Context, challengeID string, userID string) (Progress, bool, error) {
	progress, ok := store.progress[progressKey(challengeID, userID)]
	return progress, ok, nil
}

func (store *stubStore) ListProgress(_ context.Context, challengeID string) ([]Progress, error) {
	var records []Progress
	for _, progress := range store.progress {
		if progress.ChallengeID == challengeID {
			records = append(records, progress)
		}
	}
	return records, nil
}

func (store *stubStore) InsertProgress(_ context.Context, progress Progress) error {
	if store.insertError != nil {
		return store.insertError
	}
	key := progressKey(progress.ChallengeID, progress.UserID)
	if _, exists := store.progress[key]; exists {
		return ErrAlreadyJoined
	}
	progress.ProgressID = fmt.Sprintf("progress-%d", len(store.progress)+1)
	store.progress[key] = progress
	return nil
}

func (store *stubStore) UpdateProgress(_ context.Context, progress Progress) error {
	if store.updateError != nil {
		return store.updateError
	}
	store.progress[progressKey(progress.ChallengeID, progress.UserID)] = progress
	return nil
}

func (store *stubStore) DeleteProgress(_ context.Context, challengeID string, userID string) (bool, error) {
	key := progressKey(challengeID, userID)
	if _, exists := store.progress[key]; !exists {
		return false, nil
	}
	delete(store.progress, key)
	return true, nil
}

type stubAggregator struct {
	current float64
	err     error
}

func (aggregator *stubAggregator) AggregateGreenTrips(_ context.Context, _ string, _ Metric, _ time.Time, _ time.Time) (float64, error) {
	if aggregator.err != nil {
		return 0, aggregator.err
	}
	return aggregator.current, nil
}

type stubLedger struct {
	payouts   map[string]int64
	payError  error
	hasPayout bool
}

func newStubLedger() *stubLedger {
	return &stubLedger{payouts: map[string]int64{}}
}

func (ledger *stubLedger) PayReward(_ context.Context, userID string, points int64, _ string, challengeID string) error {
	if ledger.payError != nil {
		return ledger.payError
	}
	ledger.payouts[progressKey(challengeID, userID)] += points
	return nil
}

func (ledger *stubLedger) HasPayout(_ context.Context, userID string, challengeID string) (bool, error) {
	if ledger.hasPayout {
		return true, nil
	}
	_, ok := ledger.payouts[progressKey(challengeID, userID)]
	return ok, nil
}

var testNow = time.Date(2026, 2, 7, 10, 0, 0, 0, time.UTC)

func mustService(test *testing.T, store Store, trips TripAggregator, rewardLedger RewardLedger) *Service {
	test.Helper()
	service, err := NewService(store, trips, rewardLedger, func() time.Time { return testNow })
	if err != nil {
		test.Fatalf("service init failed: %v", err)
	}
	return service
}

func seedDefinition(store *stubStore, status Status, target float64, endOffset time.Duration) {
	store.definitions[challengeIDValue] = Definition{
		ChallengeID:  challengeIDValue,
		Title:        "February green commute",
		Type:         TypeGreenTripsCount,
		Target:       target,
		RewardPoints: 200,
		Status:       status,
		StartUnixUTC: testNow.Add(-24 * time.Hour).Unix(),
		EndUnixUTC:   testNow.Add(endOffset).Unix(),
	}
}

func TestJoinErrorMatrix(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name    string
		prepare func(store *stubStore)
		wantErr error
	}{
		{
			name:    "missing challenge",
			prepare: func(store *stubStore) {},
			wantErr: ErrChallengeNotFound,
		},
		{
			name: "inactive challenge",
			prepare: func(store *stubStore) {
				seedDefinition(store, StatusExpired, 10, time.Hour)
			},
			wantErr: ErrChallengeNotActive,
		},
		{
			name: "ended challenge",
			prepare: func(store *stubStore) {
				seedDefinition(store, StatusActive, 10, -time.Hour)
			},
			wantErr: ErrChallengeExpired,
		},
		{
			name: "second join",
			prepare: func(store *stubStore) {
				seedDefinition(store, StatusActive, 10, time.Hour)
				store.progress[progressKey(challengeIDValue, "user-1")] = Progress{
					ChallengeID: challengeIDValue,
					UserID:      "user-1",
					Status:      ProgressInProgress,
				}
			},
			wantErr: ErrAlreadyJoined,
		},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			store := newStubStore(test)
			testCase.prepare(store)
			service := mustService(test, store, &stubAggregator{}, newStubLedger())

			_, err := service.Join(context.Background(), challengeIDValue, "user-1")
			if !errors.Is(err, testCase.wantErr) {
				test.Fatalf("expected %v, got %v", testCase.wantErr, err)
			}
		})
	}
}

func TestJoinEndedChallengeFlipsDefinition(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	seedDefinition(store, StatusActive, 10, -time.Minute)
	service := mustService(test, store, &stubAggregator{}, newStubLedger())

	_, err := service.Join(context.Background(), challengeIDValue, "user-1")
	if !errors.Is(err, ErrChallengeExpired) {
		test.Fatalf("expected ErrChallengeExpired, got %v", err)
	}
	if store.definitions[challengeIDValue].Status != StatusExpired {
		test.Fatalf("expected the definition to flip to EXPIRED")
	}
}

func TestJoinCreatesProgressAndCountsParticipant(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	seedDefinition(store, StatusActive, 10, time.Hour)
	service := mustService(test, store, &stubAggregator{}, newStubLedger())

	progress, err := service.Join(context.Background(), challengeIDValue, "user-1")
	if err != nil {
		test.Fatalf("join: %v", err)
	}
	if progress.Status != ProgressInProgress {
		test.Fatalf("expected IN_PROGRESS, got %s", progress.Status)
	}
	if store.definitions[challengeIDValue].Participants != 1 {
		test.Fatalf("expected 1 participant, got %d", store.definitions[challengeIDValue].Participants)
	}
}

func TestLeaveIsNoOpWhenNotJoined(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	seedDefinition(store, StatusActive, 10, time.Hour)
	service := mustService(test, store, &stubAggregator{}, newStubLedger())

	if err := service.Leave(context.Background(), challengeIDValue, "user-1"); err != nil {
		test.Fatalf("leave without join must be a no-op, got %v", err)
	}
	if store.definitions[challengeIDValue].Participants != 0 {
		test.Fatalf("participants must stay at zero")
	}
}

func TestLeaveRemovesProgressAndFloorsParticipants(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	seedDefinition(store, StatusActive, 10, time.Hour)
	service := mustService(test, store, &stubAggregator{}, newStubLedger())
	background := context.Background()

	if _, err := service.Join(background, challengeIDValue, "user-1"); err != nil {
		test.Fatalf("join: %v", err)
	}
	if err := service.Leave(background, challengeIDValue, "user-1"); err != nil {
		test.Fatalf("leave: %v", err)
	}
	if store.definitions[challengeIDValue].Participants != 0 {
		test.Fatalf("expected participants back to zero")
	}
	if err := service.Leave(background, challengeIDValue, "user-1"); err != nil {
		test.Fatalf("second leave: %v", err)
	}
	if store.definitions[challengeIDValue].Participants != 0 {
		test.Fatalf("participants must never go negative")
	}
}

func TestProgressFirstCrossingCompletes(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	seedDefinition(store, StatusActive, 5, time.Hour)
	aggregator := &stubAggregator{current: 6}
	service := mustService(test, store, aggregator, newStubLedger())
	background := context.Background()

	if _, err := service.Join(background, challengeIDValue, "user-1"); err != nil {
		test.Fatalf("join: %v", err)
	}
	view, err := service.Progress(background, challengeIDValue, "user-1")
	if err != nil {
		test.Fatalf("progress: %v", err)
	}
	if view.Status != ProgressCompleted {
		test.Fatalf("expected COMPLETED, got %s", view.Status)
	}
	if view.Percent != 100 {
		test.Fatalf("expected 100%%, got %v", view.Percent)
	}
	stored := store.progress[progressKey(challengeIDValue, "user-1")]
	if stored.Status != ProgressCompleted || stored.CompletedUnixUTC == 0 || stored.RewardClaimed {
		test.Fatalf("unexpected persisted state: %+v", stored)
	}

	// A second read leaves the record untouched.
	again, err := service.Progress(background, challengeIDValue, "user-1")
	if err != nil {
		test.Fatalf("progress: %v", err)
	}
	if again.CompletedUnixUTC != view.CompletedUnixUTC {
		test.Fatalf("completion timestamp must not move on re-read")
	}
}

func TestProgressPercentClampsAndZeroTarget(test *testing.T) {
	test.Parallel()
	if percent := progressPercent(3, 10); percent != 30 {
		test.Fatalf("expected 30, got %v", percent)
	}
	if percent := progressPercent(25, 10); percent != 100 {
		test.Fatalf("expected clamp to 100, got %v", percent)
	}
	if percent := progressPercent(5, 0); percent != 0 {
		test.Fatalf("expected 0 for zero target, got %v", percent)
	}
}

func TestProgressReconcilesLostPayout(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	seedDefinition(store, StatusActive, 5, time.Hour)
	rewardLedger := newStubLedger() // no payout entry recorded
	service := mustService(test, store, &stubAggregator{current: 6}, rewardLedger)
	store.progress[progressKey(challengeIDValue, "user-1")] = Progress{
		ProgressID:       "progress-1",
		ChallengeID:      challengeIDValue,
		UserID:           "user-1",
		Status:           ProgressCompleted,
		CompletedUnixUTC: testNow.Add(-time.Hour).Unix(),
		RewardClaimed:    true,
	}

	view, err := service.Progress(context.Background(), challengeIDValue, "user-1")
	if err != nil {
		test.Fatalf("progress: %v", err)
	}
	if view.RewardClaimed {
		test.Fatalf("claimed flag without a ledger entry must self-heal to false")
	}
	if store.progress[progressKey(challengeIDValue, "user-1")].RewardClaimed {
		test.Fatalf("reconciliation must persist")
	}
}

func TestProgressKeepsClaimedWhenPayoutExists(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	seedDefinition(store, StatusActive, 5, time.Hour)
	rewardLedger := newStubLedger()
	rewardLedger.hasPayout = true
	service := mustService(test, store, &stubAggregator{current: 6}, rewardLedger)
	store.progress[progressKey(challengeIDValue, "user-1")] = Progress{
		ChallengeID:      challengeIDValue,
		UserID:           "user-1",
		Status:           ProgressCompleted,
		CompletedUnixUTC: testNow.Add(-time.Hour).Unix(),
		RewardClaimed:    true,
	}

	view, err := service.Progress(context.Background(), challengeIDValue, "user-1")
	if err != nil {
		test.Fatalf("progress: %v", err)
	}
	if !view.RewardClaimed {
		test.Fatalf("a backed claim must stay claimed")
	}
}

func TestProgressRevertsRegressionBeforePayout(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	seedDefinition(store, StatusActive, 5, time.Hour)
	service := mustService(test, store, &stubAggregator{current: 2}, newStubLedger())
	store.progress[progressKey(challengeIDValue, "user-1")] = Progress{
		ChallengeID:      challengeIDValue,
		UserID:           "user-1",
		Status:           ProgressCompleted,
		CompletedUnixUTC: testNow.Add(-time.Hour).Unix(),
		RewardClaimed:    false,
	}

	view, err := service.Progress(context.Background(), challengeIDValue, "user-1")
	if err != nil {
		test.Fatalf("progress: %v", err)
	}
	if view.Status != ProgressInProgress {
		test.Fatalf("expected revert to IN_PROGRESS, got %s", view.Status)
	}
	stored := store.progress[progressKey(challengeIDValue, "user-1")]
	if stored.Status != ProgressInProgress || stored.CompletedUnixUTC != 0 {
		test.Fatalf("unexpected persisted state: %+v", stored)
	}
}

func TestClaimRewardPaysExactlyOnce(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	seedDefinition(store, StatusActive, 5, time.Hour)
	rewardLedger := newStubLedger()
	service := mustService(test, store, &stubAggregator{current: 6}, rewardLedger)
	background := context.Background()

	if _, err := service.Join(background, challengeIDValue, "user-1"); err != nil {
		test.Fatalf("join: %v", err)
	}
	if _, err := service.Progress(background, challengeIDValue, "user-1"); err != nil {
		test.Fatalf("progress: %v", err)
	}

	points, err := service.ClaimReward(background, challengeIDValue, "user-1")
	if err != nil {
		test.Fatalf("claim: %v", err)
	}
	if points != 200 {
		test.Fatalf("expected 200 points, got %d", points)
	}
	if rewardLedger.payouts[progressKey(challengeIDValue, "user-1")] != 200 {
		test.Fatalf("expected single payout of 200, got %d", rewardLedger.payouts[progressKey(challengeIDValue, "user-1")])
	}

	if _, err := service.ClaimReward(background, challengeIDValue, "user-1"); !errors.Is(err, ErrRewardAlreadyClaimed) {
		test.Fatalf("expected ErrRewardAlreadyClaimed, got %v", err)
	}
	if rewardLedger.payouts[progressKey(challengeIDValue, "user-1")] != 200 {
		test.Fatalf("second claim must not pay again")
	}
}

func TestClaimRewardRequiresCompletion(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	seedDefinition(store, StatusActive, 5, time.Hour)
	service := mustService(test, store, &stubAggregator{current: 1}, newStubLedger())
	background := context.Background()

	if _, err := service.ClaimReward(background, challengeIDValue, "user-1"); !errors.Is(err, ErrNotJoined) {
		test.Fatalf("expected ErrNotJoined, got %v", err)
	}
	if _, err := service.Join(background, challengeIDValue, "user-1"); err != nil {
		test.Fatalf("join: %v", err)
	}
	if _, err := service.ClaimReward(background, challengeIDValue, "user-1"); !errors.Is(err, ErrNotCompleted) {
		test.Fatalf("expected ErrNotCompleted, got %v", err)
	}
	if _, err := service.ClaimReward(background, "missing", "user-1"); !errors.Is(err, ErrChallengeNotFound) {
		test.Fatalf("expected ErrChallengeNotFound, got %v", err)
	}
}

func TestListParticipantsComputesViews(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	seedDefinition(store, StatusActive, 5, time.Hour)
	service := mustService(test, store, &stubAggregator{current: 3}, newStubLedger())
	background := context.Background()

	if _, err := service.Join(background, challengeIDValue, "user-1"); err != nil {
		test.Fatalf("join: %v", err)
	}
	if _, err := service.Join(background, challengeIDValue, "user-2"); err != nil {
		test.Fatalf("join: %v", err)
	}

	views, err := service.ListParticipants(background, challengeIDValue)
	if err != nil {
		test.Fatalf("list participants: %v", err)
	}
	if len(views) != 2 {
		test.Fatalf("expected 2 views, got %d", len(views))
	}
	for _, view := range views {
		if view.Current != 3 || view.Percent != 60 || view.Status != ProgressInProgress {
			test.Fatalf("unexpected view: %+v", view)
		}
	}
}
