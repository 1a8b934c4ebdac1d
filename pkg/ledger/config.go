package ledger

// Config carries the product constants of the points ledger.
type Config struct {
	// EarningSources are the sources whose positive adjustments count
	// toward lifetime earned points. Redemptions and badge purchases are
	// deliberately absent so a buy/refund cycle cannot inflate rank.
	EarningSources []string
}

// DefaultConfig returns the product defaults.
func DefaultConfig() Config {
	return Config{
		EarningSources: []string{SourceTrip, SourceMission, SourceTask, SourceAdmin},
	}
}

func (config Config) earningSourceSet() map[string]struct{} {
	set := make(map[string]struct{}, len(config.EarningSources))
	for _, source := range config.EarningSources {
		set[source] = struct{}{}
	}
	return set
}
