package leaderboard

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// Service re-derives rankings from the trip aggregate source on every
// call; no leaderboard table is the source of truth.
type Service struct {
	trips   TripSource
	stats   AccountDirectory
	rewards RewardRecordStore
	config  Config
	nowFn   func() time.Time
}

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// WithConfig overrides the default reward-projection constants.
func WithConfig(config Config) ServiceOption {
	return func(service *Service) {
		service.config = config
	}
}

// NewService wires a Service.
func NewService(trips TripSource, stats AccountDirectory, rewards RewardRecordStore, now func() time.Time, options ...ServiceOption) (*Service, error) {
	if trips == nil {
		return nil, fmt.Errorf("%w: trip source dependency is nil", ErrInvalidServiceConfig)
	}
	if stats == nil {
		return nil, fmt.Errorf("%w: account directory dependency is nil", ErrInvalidServiceConfig)
	}
	if rewards == nil {
		return nil, fmt.Errorf("%w: reward record store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{
		trips:   trips,
		stats:   stats,
		rewards: rewards,
		config:  DefaultConfig(),
		nowFn:   now,
	}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// Rankings computes the full ranked set for the query window, joins
// display profiles, applies the name filter, and paginates.
func (service *Service) Rankings(ctx context.Context, query Query) (Board, error) {
	if _, err := ParsePeriodType(query.Type.String()); err != nil {
		return Board{}, err
	}
	date := query.Date
	if date.IsZero() {
		date = service.nowFn()
	}
	start, end := PeriodRange(query.Type, date)
	periodKey := PeriodKey(query.Type, date)

	ranked, err := service.rankedSet(ctx, start, end)
	if err != nil {
		return Board{}, err
	}

	userIDs := make([]string, 0, len(ranked))
	for _, aggregate := range ranked {
		userIDs = append(userIDs, aggregate.UserID)
	}
	profiles, err := service.stats.Profiles(ctx, userIDs)
	if err != nil {
		return Board{}, err
	}

	entries := make([]RankedEntry, 0, len(ranked))
	board := Board{PeriodKey: periodKey}
	for index, aggregate := range ranked {
		rank := index + 1
		entry := RankedEntry{
			Rank:         rank,
			UserID:       aggregate.UserID,
			Nickname:     aggregate.UserID,
			CarbonSaved:  aggregate.CarbonSaved,
			RewardPoints: service.config.ProjectedReward(query.Type, rank),
		}
		if profile, ok := profiles[aggregate.UserID]; ok {
			if profile.Nickname != "" {
				entry.Nickname = profile.Nickname
			}
			entry.VIP = profile.VIP
		}
		// Stats are computed from the unfiltered set; the filter below
		// must not change them.
		board.TotalCarbonSaved += entry.CarbonSaved
		if entry.VIP {
			board.TotalVIPUsers++
		}
		entries = append(entries, entry)
	}

	filtered := filterByNickname(entries, query.NameFilter)
	board.Total = len(filtered)
	board.Entries = paginate(filtered, query.Page, query.Size)

	issued, err := service.rewards.CountRewardRecords(ctx, query.Type, periodKey)
	if err != nil {
		return Board{}, err
	}
	board.RewardsIssued = issued
	return board, nil
}

// TopUsers ranks the window without the display machinery; the external
// reward scheduler feeds its issuance loop from this. A zero limit means
// unlimited.
func (service *Service) TopUsers(ctx context.Context, start time.Time, end time.Time, limit int) ([]TopUser, error) {
	if !end.After(start) {
		return nil, fmt.Errorf("%w: end must be after start", ErrInvalidWindow)
	}
	ranked, err := service.rankedSet(ctx, start, end)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	top := make([]TopUser, 0, len(ranked))
	for index, aggregate := range ranked {
		top = append(top, TopUser{
			Rank:        index + 1,
			UserID:      aggregate.UserID,
			CarbonSaved: aggregate.CarbonSaved,
		})
	}
	return top, nil
}

// RecordReward books one issued period reward. A duplicate for the same
// (type, periodKey, userID) surfaces as ErrRewardAlreadyIssued from the
// store's uniqueness constraint.
func (service *Service) RecordReward(ctx context.Context, record RewardRecord) error {
	if _, err := ParsePeriodType(record.Type.String()); err != nil {
		return err
	}
	if record.UserID == "" || record.PeriodKey == "" {
		return fmt.Errorf("%w: user id and period key are required", ErrInvalidRewardRecord)
	}
	if record.Rank < 1 {
		return fmt.Errorf("%w: rank must be positive", ErrInvalidRewardRecord)
	}
	if record.IssuedUnixUTC == 0 {
		record.IssuedUnixUTC = service.nowFn().UTC().Unix()
	}
	return service.rewards.InsertRewardRecord(ctx, record)
}

// RewardsIssued counts issuance records for one period.
func (service *Service) RewardsIssued(ctx context.Context, periodType PeriodType, periodKey string) (int64, error) {
	if _, err := ParsePeriodType(periodType.String()); err != nil {
		return 0, err
	}
	return service.rewards.CountRewardRecords(ctx, periodType, periodKey)
}

func (service *Service) rankedSet(ctx context.Context, start time.Time, end time.Time) ([]UserCarbon, error) {
	aggregates, err := service.trips.SumCarbonByUser(ctx, start, end)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(aggregates, func(left, right int) bool {
		if aggregates[left].CarbonSaved != aggregates[right].CarbonSaved {
			return aggregates[left].CarbonSaved > aggregates[right].CarbonSaved
		}
		// Deterministic tie-break so repeated calls in the same window
		// return an identical order.
		return aggregates[left].UserID < aggregates[right].UserID
	})
	return aggregates, nil
}

func filterByNickname(entries []RankedEntry, nameFilter string) []RankedEntry {
	needle := strings.ToLower(strings.TrimSpace(nameFilter))
	if needle == "" {
		return entries
	}
	filtered := make([]RankedEntry, 0, len(entries))
	for _, entry := range entries {
		if strings.Contains(strings.ToLower(entry.Nickname), needle) {
			filtered = append(filtered, entry)
		}
	}
	return filtered
}

func paginate(entries []RankedEntry, page int, size int) []RankedEntry {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	offset := (page - 1) * size
	if offset >= len(entries) {
		return []RankedEntry{}
	}
	end := offset + size
	if end > len(entries) {
		end = len(entries)
	}
	return entries[offset:end]
}
