package ledger

import (
	"context"
	"fmt"
	"testing"
)

type stubStore struct {
	accounts map[string]Account
	entries  []Entry

	conflictsBeforeSuccess int

	getAccountError    error
	updateBalanceError error
	insertEntryError   error
	listEntriesError   error
	hasEntryError      error
}

func newStubStore(test *testing.T) *stubStore {
	test.Helper()
	return &stubStore{accounts: map[string]Account{}}
}

func (store *stubStore) seedAccount(userID string, current int64, earned int64, carbon float64) {
	store.accounts[userID] = Account{
		UserID:            userID,
		CurrentPoints:     current,
		TotalPointsEarned: earned,
		TotalCarbonSaved:  carbon,
	}
}

func (store *stubStore) mustAccount(test *testing.T, userID UserID) Account {
	test.Helper()
	account, ok := store.accounts[userID.String()]
	if !ok {
		test.Fatalf("account %s missing", userID.String())
	}
	return account
}

func (store *stubStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	// The stub applies writes in place; a failed callback leaves prior
	// stub state untouched because every write happens last in Adjust.
	return fn(ctx, store)
}

func (store *stubStore) GetOrCreateAccount(_ context.Context, userID UserID) (Account, error) {
	if store.getAccountError != nil {
		return Account{}, store.getAccountError
	}
	account, ok := store.accounts[userID.String()]
	if !ok {
		account = Account{UserID: userID.String()}
		store.accounts[userID.String()] = account
	}
	return account, nil
}

func (store *stubStore) UpdateBalance(_ context.Context, userID UserID, update BalanceUpdate) error {
	if store.updateBalanceError != nil {
		return store.updateBalanceError
	}
	if store.conflictsBeforeSuccess > 0 {
		store.conflictsBeforeSuccess--
		return ErrBalanceConflict
	}
	account := store.accounts[userID.String()]
	if account.CurrentPoints != update.FromPoints {
		return ErrBalanceConflict
	}
	account.CurrentPoints = update.ToPoints
	account.TotalPointsEarned += update.EarnedDelta
	account.TotalCarbonSaved += update.CarbonDelta
	store.accounts[userID.String()] = account
	return nil
}

func (store *stubStore) InsertEntry(_ context.Context, entry Entry) error {
	if store.insertEntryError != nil {
		return store.insertEntryError
	}
	entry.EntryID = fmt.Sprintf("entry-%d", len(store.entries)+1)
	store.entries = append(store.entries, entry)
	return nil
}

func (store *stubStore) ListEntries(_ context.Context, userID UserID, offset int, limit int) ([]Entry, int64, error) {
	if store.listEntriesError != nil {
		return nil, 0, store.listEntriesError
	}
	var owned []Entry
	for index := len(store.entries) - 1; index >= 0; index-- {
		if store.entries[index].UserID == userID.String() {
			owned = append(owned, store.entries[index])
		}
	}
	total := int64(len(owned))
	if offset >= len(owned) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(owned) {
		end = len(owned)
	}
	return owned[offset:end], total, nil
}

func (store *stubStore) HasEntry(_ context.Context, userID UserID, source Source, relatedID string) (bool, error) {
	if store.hasEntryError != nil {
		return false, store.hasEntryError
	}
	for _, entry := range store.entries {
		if entry.UserID == userID.String() && entry.Source == source.String() && entry.RelatedID == relatedID {
			return true, nil
		}
	}
	return false, nil
}

func mustNewService(test *testing.T, store Store) *Service {
	test.Helper()
	var tick int64
	service, err := NewService(store, func() int64 {
		tick++
		return tick
	})
	if err != nil {
		test.Fatalf("service init failed: %v", err)
	}
	return service
}

func mustUserID(test *testing.T, raw string) UserID {
	test.Helper()
	userID, err := NewUserID(raw)
	if err != nil {
		test.Fatalf("user id %q: %v", raw, err)
	}
	return userID
}

func mustSource(test *testing.T, raw string) Source {
	test.Helper()
	source, err := NewSource(raw)
	if err != nil {
		test.Fatalf("source %q: %v", raw, err)
	}
	return source
}
