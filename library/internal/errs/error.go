package errs

import (
	"errors"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict covers uniqueness violations and race-lost reservations;
	// it is safe to retry the operation.
	ErrConflict          = errors.New("conflict")
	ErrInvalidState      = errors.New("operation not valid for current status")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNoCopies          = errors.New("no copies available")
	ErrAlreadyReturned   = errors.New("loan already returned")
	ErrAlreadyPaid       = errors.New("fine already paid")
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrAddressRequired   = errors.New("address is required for delivery")
)
