package leaderboard

import "time"

const (
	dailyKeyLayout   = "2006-01-02"
	monthlyKeyLayout = "2006-01"
)

// PeriodKey renders the idempotency key for a ranking window, e.g.
// "2026-02-07" for a day or "2026-02" for a month.
func PeriodKey(periodType PeriodType, date time.Time) string {
	if periodType == PeriodMonthly {
		return date.Format(monthlyKeyLayout)
	}
	return date.Format(dailyKeyLayout)
}

// PeriodRange resolves the half-open [start, end) window containing date,
// in date's location.
func PeriodRange(periodType PeriodType, date time.Time) (time.Time, time.Time) {
	if periodType == PeriodMonthly {
		start := time.Date(date.Year(), date.Month(), 1, 0, 0, 0, 0, date.Location())
		return start, start.AddDate(0, 1, 0)
	}
	start := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	return start, start.AddDate(0, 0, 1)
}
