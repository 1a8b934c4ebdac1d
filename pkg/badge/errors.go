package badge

import "errors"

// Domain-level error values returned by the badge service.
var (
	ErrBadgeNotFound        = errors.New("badge not found")
	ErrBadgeNotOwned        = errors.New("badge not owned")
	ErrAlreadyOwned         = errors.New("badge already owned")
	ErrNotPurchasable       = errors.New("badge not purchasable")
	ErrInvalidServiceConfig = errors.New("invalid service config")
)
