package ledger

const (
	operationAdjust = "adjust"
	operationSettle = "settle"
	operationRedeem = "redeem"

	operationStatusOK    = "ok"
	operationStatusError = "error"

	// SourceTrip and friends are the well-known entry sources used by the
	// surrounding product; Adjust accepts any non-empty tag.
	SourceTrip       = "trip"
	SourceMission    = "mission"
	SourceTask       = "task"
	SourceAdmin      = "admin"
	SourceBadge      = "badge"
	SourceChallenges = "challenges"
	SourceRedeem     = "redeem"

	// One re-read after a compare-and-swap conflict, then give up.
	balanceWriteAttempts = 2

	defaultHistoryPageSize = 20
)
