package leaderboard

// Config carries the reward-projection product constants. They mirror
// the operations team's payout table and are overridable at wiring time.
type Config struct {
	DailyMultiplier   int64
	MonthlyMultiplier int64
	RewardedRanks     int
}

// DefaultConfig returns the product defaults: ranks 1-10 rewarded,
// (11 - rank) * 10 points daily and (11 - rank) * 100 points monthly.
func DefaultConfig() Config {
	return Config{
		DailyMultiplier:   10,
		MonthlyMultiplier: 100,
		RewardedRanks:     10,
	}
}

func (config Config) multiplier(periodType PeriodType) int64 {
	if periodType == PeriodMonthly {
		return config.MonthlyMultiplier
	}
	return config.DailyMultiplier
}

// ProjectedReward computes the display reward for a rank. It is a
// projection only; actual issuance is recorded separately.
func (config Config) ProjectedReward(periodType PeriodType, rank int) int64 {
	if rank < 1 || rank > config.RewardedRanks {
		return 0
	}
	return int64(config.RewardedRanks+1-rank) * config.multiplier(periodType)
}
