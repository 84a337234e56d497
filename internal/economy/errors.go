package economy

import "errors"

var (
	// ErrInsufficientResource means the user has no hearts left.
	ErrInsufficientResource = errors.New("no hearts left")

	// ErrInsufficientFunds means the ZAP balance cannot cover a purchase.
	ErrInsufficientFunds = errors.New("insufficient ZAPs")

	// ErrAtCapacity means the heart balance is already at its maximum.
	ErrAtCapacity = errors.New("hearts already full")

	// ErrAdLimitReached means the daily ad reward cap was hit.
	ErrAdLimitReached = errors.New("daily ad reward limit reached")

	// ErrInvalidAmount is returned for non-positive credits.
	ErrInvalidAmount = errors.New("amount must be positive")
)
