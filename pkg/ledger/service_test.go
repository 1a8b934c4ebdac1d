package ledger

import (
	"context"
	"errors"
	"math/rand"
	"testing"
)

func TestAdjustAppendsEntryAndUpdatesBalance(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store)
	userID := mustUserID(test, "user-1")

	entry, err := service.Adjust(context.Background(), userID, AdjustInput{
		Points:      500,
		Source:      mustSource(test, SourceTrip),
		Description: "bike commute",
		RelatedID:   "trip-1",
	})
	if err != nil {
		test.Fatalf("adjust: %v", err)
	}
	if entry.Change != ChangeGain {
		test.Fatalf("expected gain entry, got %s", entry.Change)
	}
	if entry.BalanceAfter != 500 {
		test.Fatalf("expected balance after 500, got %d", entry.BalanceAfter)
	}
	account := store.mustAccount(test, userID)
	if account.CurrentPoints != 500 || account.TotalPointsEarned != 500 {
		test.Fatalf("unexpected account state: %+v", account)
	}
}

func TestAdjustRejectsNegativeBalance(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	store.seedAccount("user-1", 100, 100, 0)
	service := mustNewService(test, store)
	userID := mustUserID(test, "user-1")

	_, err := service.Adjust(context.Background(), userID, AdjustInput{
		Points: -200,
		Source: mustSource(test, SourceBadge),
	})
	if !errors.Is(err, ErrInsufficientBalance) {
		test.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	account := store.mustAccount(test, userID)
	if account.CurrentPoints != 100 {
		test.Fatalf("failed adjust must not move the balance, got %d", account.CurrentPoints)
	}
	if len(store.entries) != 0 {
		test.Fatalf("failed adjust must not append entries, got %d", len(store.entries))
	}
}

func TestAdjustEarningSources(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name       string
		source     string
		points     int64
		wantEarned int64
	}{
		{name: "trip gain counts", source: SourceTrip, points: 300, wantEarned: 300},
		{name: "admin gain counts", source: SourceAdmin, points: 50, wantEarned: 50},
		{name: "badge refund does not count", source: SourceBadge, points: 200, wantEarned: 0},
		{name: "redeem never counts", source: SourceRedeem, points: 100, wantEarned: 0},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			store := newStubStore(test)
			service := mustNewService(test, store)
			userID := mustUserID(test, "earn-user")

			_, err := service.Adjust(context.Background(), userID, AdjustInput{
				Points: testCase.points,
				Source: mustSource(test, testCase.source),
			})
			if err != nil {
				test.Fatalf("adjust: %v", err)
			}
			account := store.mustAccount(test, userID)
			if account.TotalPointsEarned != testCase.wantEarned {
				test.Fatalf("expected earned %d, got %d", testCase.wantEarned, account.TotalPointsEarned)
			}
		})
	}
}

func TestLifetimeEarnedNeverDecreases(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store)
	userID := mustUserID(test, "u1")
	background := context.Background()

	// Worked example: earn 500, buy a 200-point badge, redeem 100.
	if _, err := service.Adjust(background, userID, AdjustInput{Points: 500, Source: mustSource(test, SourceTrip)}); err != nil {
		test.Fatalf("adjust: %v", err)
	}
	if _, err := service.Adjust(background, userID, AdjustInput{Points: -200, Source: mustSource(test, SourceBadge), RelatedID: "b1"}); err != nil {
		test.Fatalf("badge debit: %v", err)
	}
	if _, err := service.Redeem(background, userID, "o1", 100); err != nil {
		test.Fatalf("redeem: %v", err)
	}

	account := store.mustAccount(test, userID)
	if account.CurrentPoints != 200 {
		test.Fatalf("expected balance 200, got %d", account.CurrentPoints)
	}
	if account.TotalPointsEarned != 500 {
		test.Fatalf("expected lifetime earned 500, got %d", account.TotalPointsEarned)
	}
}

func TestLedgerConservationProperty(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store)
	userID := mustUserID(test, "prop-user")
	background := context.Background()
	random := rand.New(rand.NewSource(7))

	var sum int64
	for step := 0; step < 200; step++ {
		points := random.Int63n(400) - 150
		_, err := service.Adjust(background, userID, AdjustInput{
			Points: points,
			Source: mustSource(test, SourceTrip),
		})
		if errors.Is(err, ErrInsufficientBalance) {
			continue
		}
		if err != nil {
			test.Fatalf("step %d: %v", step, err)
		}
		sum += points
		account := store.mustAccount(test, userID)
		if account.CurrentPoints != sum {
			test.Fatalf("step %d: balance %d diverged from entry sum %d", step, account.CurrentPoints, sum)
		}
		if account.CurrentPoints < 0 {
			test.Fatalf("step %d: negative balance %d", step, account.CurrentPoints)
		}
	}
	var entrySum int64
	for _, entry := range store.entries {
		entrySum += entry.Points
	}
	if entrySum != sum {
		test.Fatalf("entry sum %d diverged from applied sum %d", entrySum, sum)
	}
}

func TestSettleBooksCarbonWithPoints(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store)
	userID := mustUserID(test, "settle-user")

	entry, err := service.Settle(context.Background(), userID, SettleInput{
		Points:      120,
		Source:      mustSource(test, SourceTrip),
		Description: "metro trip",
		RelatedID:   "trip-9",
		CarbonSaved: 1.75,
	})
	if err != nil {
		test.Fatalf("settle: %v", err)
	}
	if entry.Change != ChangeGain {
		test.Fatalf("expected gain, got %s", entry.Change)
	}
	account := store.mustAccount(test, userID)
	if account.TotalCarbonSaved != 1.75 {
		test.Fatalf("expected carbon 1.75, got %v", account.TotalCarbonSaved)
	}
}

func TestSettleDerivesChangeTypes(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name   string
		points int64
		source string
		want   ChangeType
	}{
		{name: "positive trip", points: 40, source: SourceTrip, want: ChangeGain},
		{name: "negative correction", points: -40, source: SourceAdmin, want: ChangeDeduct},
		{name: "redeem source wins", points: -40, source: SourceRedeem, want: ChangeRedeem},
		{name: "zero is informational", points: 0, source: SourceTrip, want: ChangeInfo},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			store := newStubStore(test)
			store.seedAccount("derive-user", 1000, 1000, 0)
			service := mustNewService(test, store)
			userID := mustUserID(test, "derive-user")

			entry, err := service.Settle(context.Background(), userID, SettleInput{
				Points: testCase.points,
				Source: mustSource(test, testCase.source),
			})
			if err != nil {
				test.Fatalf("settle: %v", err)
			}
			if entry.Change != testCase.want {
				test.Fatalf("expected %s, got %s", testCase.want, entry.Change)
			}
		})
	}
}

func TestRedeemNormalizesAmount(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	store.seedAccount("redeem-user", 300, 300, 0)
	service := mustNewService(test, store)
	userID := mustUserID(test, "redeem-user")

	entry, err := service.Redeem(context.Background(), userID, "order-1", 100)
	if err != nil {
		test.Fatalf("redeem: %v", err)
	}
	if entry.Points != -100 {
		test.Fatalf("expected -100 movement, got %d", entry.Points)
	}
	if entry.Change != ChangeRedeem {
		test.Fatalf("expected redeem change, got %s", entry.Change)
	}
	if entry.Source != SourceRedeem {
		test.Fatalf("expected redeem source, got %s", entry.Source)
	}
}

func TestRedeemValidatesInput(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store)
	userID := mustUserID(test, "redeem-user")

	if _, err := service.Redeem(context.Background(), userID, "order-1", 0); !errors.Is(err, ErrInvalidPoints) {
		test.Fatalf("expected ErrInvalidPoints, got %v", err)
	}
	if _, err := service.Redeem(context.Background(), userID, "", 10); !errors.Is(err, ErrInvalidRelatedID) {
		test.Fatalf("expected ErrInvalidRelatedID, got %v", err)
	}
}

func TestAdjustRetriesOnceOnBalanceConflict(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	store.seedAccount("cas-user", 50, 50, 0)
	store.conflictsBeforeSuccess = 1
	service := mustNewService(test, store)
	userID := mustUserID(test, "cas-user")

	if _, err := service.Adjust(context.Background(), userID, AdjustInput{Points: 10, Source: mustSource(test, SourceTrip)}); err != nil {
		test.Fatalf("expected retry to succeed, got %v", err)
	}

	store.conflictsBeforeSuccess = 2
	_, err := service.Adjust(context.Background(), userID, AdjustInput{Points: 10, Source: mustSource(test, SourceTrip)})
	if !errors.Is(err, ErrBalanceConflict) {
		test.Fatalf("expected ErrBalanceConflict after second conflict, got %v", err)
	}
}

func TestHistoryPagination(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store)
	userID := mustUserID(test, "history-user")
	background := context.Background()

	for index := 0; index < 5; index++ {
		if _, err := service.Adjust(background, userID, AdjustInput{Points: 10, Source: mustSource(test, SourceTrip)}); err != nil {
			test.Fatalf("adjust %d: %v", index, err)
		}
	}

	page, err := service.History(background, userID, 2, 2)
	if err != nil {
		test.Fatalf("history: %v", err)
	}
	if page.Total != 5 {
		test.Fatalf("expected total 5, got %d", page.Total)
	}
	if len(page.Entries) != 2 {
		test.Fatalf("expected 2 entries, got %d", len(page.Entries))
	}
	if page.Entries[0].CreatedUnixUTC < page.Entries[1].CreatedUnixUTC {
		test.Fatalf("expected newest-first ordering")
	}
}

func TestNewServiceRequiresDependencies(test *testing.T) {
	test.Parallel()
	if _, err := NewService(nil, func() int64 { return 0 }); !errors.Is(err, ErrInvalidServiceConfig) {
		test.Fatalf("expected invalid service config error, got %v", err)
	}
	store := newStubStore(test)
	if _, err := NewService(store, nil); !errors.Is(err, ErrInvalidServiceConfig) {
		test.Fatalf("expected invalid service config error, got %v", err)
	}
}
