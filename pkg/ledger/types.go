package ledger

import (
	"context"
	"fmt"
	"strings"
)

// UserID identifies an account owner.
type UserID struct {
	value string
}

// NewUserID validates and normalizes a user id.
func NewUserID(raw string) (UserID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return UserID{}, fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	return UserID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id UserID) String() string {
	return id.value
}

// Source tags a ledger entry with its business origin ("trip", "badge", ...).
type Source struct {
	value string
}

// NewSource validates and normalizes a source tag.
func NewSource(raw string) (Source, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Source{}, fmt.Errorf("%w: empty value", ErrInvalidSource)
	}
	return Source{value: trimmed}, nil
}

// String returns the normalized tag.
func (source Source) String() string {
	return source.value
}

// ChangeType enumerates ledger entry kinds.
type ChangeType string

const (
	ChangeGain   ChangeType = "gain"
	ChangeDeduct ChangeType = "deduct"
	ChangeRedeem ChangeType = "redeem"
	ChangeInfo   ChangeType = "info"
)

// String returns the stored value of the change type.
func (changeType ChangeType) String() string {
	return string(changeType)
}

// ParseChangeType validates a raw change type value.
func ParseChangeType(raw string) (ChangeType, error) {
	switch ChangeType(raw) {
	case ChangeGain, ChangeDeduct, ChangeRedeem, ChangeInfo:
		return ChangeType(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidChangeType, raw)
}

// AdminAction records the operator context of a manual adjustment.
type AdminAction struct {
	OperatorID     string
	Reason         string
	ApprovalStatus string
}

// Account is the denormalized balance row for one user.
type Account struct {
	UserID            string
	CurrentPoints     int64
	TotalPointsEarned int64
	TotalCarbonSaved  float64
}

// BalanceView is the read model returned by CurrentBalance.
type BalanceView struct {
	CurrentPoints     int64
	TotalPointsEarned int64
	TotalCarbonSaved  float64
}

// Entry is a single immutable line in the points ledger.
type Entry struct {
	EntryID        string
	UserID         string
	Change         ChangeType
	Points         int64
	Source         string
	Description    string
	RelatedID      string
	BalanceAfter   int64
	Admin          *AdminAction
	CreatedUnixUTC int64
}

// AdjustInput describes one requested point movement.
type AdjustInput struct {
	Points      int64
	Source      Source
	Description string
	RelatedID   string
	Admin       *AdminAction
}

// SettleInput is the trip-settlement payload; the caller has already
// computed points and carbon savings.
type SettleInput struct {
	Points      int64
	Source      Source
	Description string
	RelatedID   string
	CarbonSaved float64
}

// BalanceUpdate is a compare-and-swap write against the account row.
// FromPoints is the balance the caller observed; the store must refuse
// the write when the row no longer matches it.
type BalanceUpdate struct {
	FromPoints  int64
	ToPoints    int64
	EarnedDelta int64
	CarbonDelta float64
}

// HistoryPage is one page of ledger entries, newest first.
type HistoryPage struct {
	Entries []Entry
	Total   int64
}

// Store is the persistence contract used by Service.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error
	GetOrCreateAccount(ctx context.Context, userID UserID) (Account, error)
	UpdateBalance(ctx context.Context, userID UserID, update BalanceUpdate) error
	InsertEntry(ctx context.Context, entry Entry) error
	ListEntries(ctx context.Context, userID UserID, offset int, limit int) ([]Entry, int64, error)
	HasEntry(ctx context.Context, userID UserID, source Source, relatedID string) (bool, error)
}
