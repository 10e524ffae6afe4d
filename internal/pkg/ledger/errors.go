package ledger

import "errors"

var (
	// ErrAccountNotFound is returned when no account matches the given id.
	ErrAccountNotFound = errors.New("account not found")

	// ErrInsufficientCredits is returned when a usage debit would drive the
	// balance below zero. No mutation occurs.
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrInvalidAmount is returned for non-positive credit or debit amounts.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrDuplicatePurchase is returned when a purchase with the same external
	// payment reference was already credited. Defense in depth behind the
	// webhook dedup layer.
	ErrDuplicatePurchase = errors.New("purchase already credited")
)
