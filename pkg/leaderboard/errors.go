package leaderboard

import "errors"

// Domain-level error values returned by the ranking service.
var (
	ErrInvalidPeriodType    = errors.New("invalid period type")
	ErrInvalidWindow        = errors.New("invalid ranking window")
	ErrInvalidRewardRecord  = errors.New("invalid reward record")
	ErrRewardAlreadyIssued  = errors.New("reward already issued for period")
	ErrInvalidServiceConfig = errors.New("invalid service config")
)
