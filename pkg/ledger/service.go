package ledger

import (
	"context"
	"errors"
	"fmt"
)

// Service is the only writer of account balances. Every point movement
// goes through Adjust, which appends a ledger entry and updates the
// denormalized balance as one atomic unit.
type Service struct {
	store          Store
	nowFn          func() int64
	config         Config
	earningSources map[string]struct{}
	logger         OperationLogger
}

// NewService wires a Service.
func NewService(store Store, now func() int64, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	config := DefaultConfig()
	service := &Service{
		store:          store,
		nowFn:          now,
		config:         config,
		earningSources: config.earningSourceSet(),
	}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// Adjust moves points on the user's account and appends the matching
// ledger entry. A movement that would drive the balance negative fails
// with ErrInsufficientBalance and writes nothing.
func (service *Service) Adjust(ctx context.Context, userID UserID, input AdjustInput) (Entry, error) {
	entry, operationError := service.adjust(ctx, userID, input, 0)
	service.logOperation(ctx, OperationLog{
		Operation: operationAdjust,
		UserID:    userID,
		Points:    input.Points,
		Source:    input.Source,
		RelatedID: input.RelatedID,
		Error:     operationError,
	})
	return entry, operationError
}

// Settle records a trip settlement: the trip-completion flow has already
// computed points and carbon savings, this call books both atomically.
func (service *Service) Settle(ctx context.Context, userID UserID, input SettleInput) (Entry, error) {
	entry, operationError := service.adjust(ctx, userID, AdjustInput{
		Points:      input.Points,
		Source:      input.Source,
		Description: input.Description,
		RelatedID:   input.RelatedID,
	}, input.CarbonSaved)
	service.logOperation(ctx, OperationLog{
		Operation: operationSettle,
		UserID:    userID,
		Points:    input.Points,
		Source:    input.Source,
		RelatedID: input.RelatedID,
		Error:     operationError,
	})
	return entry, operationError
}

// Redeem spends points against a shop order. The amount is normalized to
// a negative movement regardless of the caller's sign.
func (service *Service) Redeem(ctx context.Context, userID UserID, orderID string, points int64) (Entry, error) {
	entry, operationError := service.redeem(ctx, userID, orderID, points)
	service.logOperation(ctx, OperationLog{
		Operation: operationRedeem,
		UserID:    userID,
		Points:    points,
		RelatedID: orderID,
		Error:     operationError,
	})
	return entry, operationError
}

func (service *Service) redeem(ctx context.Context, userID UserID, orderID string, points int64) (Entry, error) {
	if points == 0 {
		return Entry{}, fmt.Errorf("%w: redeem amount is zero", ErrInvalidPoints)
	}
	if orderID == "" {
		return Entry{}, fmt.Errorf("%w: order id is empty", ErrInvalidRelatedID)
	}
	if points < 0 {
		points = -points
	}
	source, err := NewSource(SourceRedeem)
	if err != nil {
		return Entry{}, err
	}
	return service.adjust(ctx, userID, AdjustInput{
		Points:      -points,
		Source:      source,
		Description: "points redemption",
		RelatedID:   orderID,
	}, 0)
}

// CurrentBalance returns the spendable balance plus the lifetime stats.
func (service *Service) CurrentBalance(ctx context.Context, userID UserID) (BalanceView, error) {
	account, err := service.store.GetOrCreateAccount(ctx, userID)
	if err != nil {
		return BalanceView{}, err
	}
	return BalanceView{
		CurrentPoints:     account.CurrentPoints,
		TotalPointsEarned: account.TotalPointsEarned,
		TotalCarbonSaved:  account.TotalCarbonSaved,
	}, nil
}

// History lists ledger entries for a user, newest first.
func (service *Service) History(ctx context.Context, userID UserID, page int, size int) (HistoryPage, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = defaultHistoryPageSize
	}
	entries, total, err := service.store.ListEntries(ctx, userID, (page-1)*size, size)
	if err != nil {
		return HistoryPage{}, err
	}
	return HistoryPage{Entries: entries, Total: total}, nil
}

// HasEntry reports whether a ledger entry exists for the given source and
// related record. Challenge reconciliation uses it to detect lost payouts.
func (service *Service) HasEntry(ctx context.Context, userID UserID, source Source, relatedID string) (bool, error) {
	return service.store.HasEntry(ctx, userID, source, relatedID)
}

func (service *Service) adjust(ctx context.Context, userID UserID, input AdjustInput, carbonDelta float64) (Entry, error) {
	if input.Source == (Source{}) {
		return Entry{}, fmt.Errorf("%w: empty value", ErrInvalidSource)
	}
	var written Entry
	for attempt := 0; attempt < balanceWriteAttempts; attempt++ {
		operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
			account, err := transactionStore.GetOrCreateAccount(ctx, userID)
			if err != nil {
				return err
			}
			newBalance := account.CurrentPoints + input.Points
			if newBalance < 0 {
				return ErrInsufficientBalance
			}
			update := BalanceUpdate{
				FromPoints:  account.CurrentPoints,
				ToPoints:    newBalance,
				CarbonDelta: carbonDelta,
			}
			if input.Points > 0 && service.isEarningSource(input.Source) {
				update.EarnedDelta = input.Points
			}
			if err := transactionStore.UpdateBalance(ctx, userID, update); err != nil {
				return err
			}
			entry := Entry{
				UserID:         userID.String(),
				Change:         deriveChangeType(input.Points, input.Source),
				Points:         input.Points,
				Source:         input.Source.String(),
				Description:    input.Description,
				RelatedID:      input.RelatedID,
				BalanceAfter:   newBalance,
				Admin:          input.Admin,
				CreatedUnixUTC: service.nowFn(),
			}
			if err := transactionStore.InsertEntry(ctx, entry); err != nil {
				return err
			}
			written = entry
			return nil
		})
		if errors.Is(operationError, ErrBalanceConflict) && attempt == 0 {
			continue
		}
		return written, operationError
	}
	return Entry{}, ErrBalanceConflict
}

func (service *Service) isEarningSource(source Source) bool {
	_, ok := service.earningSources[source.String()]
	return ok
}

func deriveChangeType(points int64, source Source) ChangeType {
	switch {
	case source.String() == SourceRedeem:
		return ChangeRedeem
	case points > 0:
		return ChangeGain
	case points < 0:
		return ChangeDeduct
	}
	return ChangeInfo
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	service.logger.LogOperation(ctx, entry)
}
