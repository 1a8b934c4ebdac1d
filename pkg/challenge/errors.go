package challenge

import "errors"

// Domain-level error values returned by the challenge service.
var (
	ErrChallengeNotFound    = errors.New("challenge not found")
	ErrChallengeNotActive   = errors.New("challenge not active")
	ErrChallengeExpired     = errors.New("challenge expired")
	ErrAlreadyJoined        = errors.New("already joined")
	ErrNotJoined            = errors.New("not joined")
	ErrNotCompleted         = errors.New("challenge not completed")
	ErrRewardAlreadyClaimed = errors.New("reward already claimed")
	ErrInvalidType          = errors.New("invalid challenge type")
	ErrInvalidServiceConfig = errors.New("invalid service config")
)
