package model

import "errors"

// Sentinel errors for domain-level failures. The API layer maps these to
// HTTP status codes; services fail fast with one of these before mutating
// any state.
var (
	ErrUnknownInstrument    = errors.New("unknown instrument")
	ErrFrozenInstrument     = errors.New("instrument is frozen")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInsufficientQuantity = errors.New("insufficient quantity")
	ErrNoHoldings           = errors.New("no holdings to sell")
	ErrBelowMinimumTrade    = errors.New("below minimum trade value")
	ErrAccountNotFound      = errors.New("account not found")
	ErrAccountExists        = errors.New("account already exists")

	// ErrDuplicateOperation signals an idempotency-key collision. Callers
	// treat it as success-no-op, not a failure.
	ErrDuplicateOperation = errors.New("duplicate operation")
)

// ValidationError represents a request validation failure (bad input shape
// or range).
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
