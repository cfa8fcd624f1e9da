package ledger

import "errors"

var (
	// ErrAccountNotFound is returned when the user row backing a balance does not exist.
	ErrAccountNotFound = errors.New("ledger: account not found")
	// ErrInsufficientBalance is returned when a debit would take the balance below zero.
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")
	// ErrInvalidAmount is returned for zero amounts or a sign that does not match the operation.
	ErrInvalidAmount = errors.New("ledger: invalid amount")
	// ErrInvalidType is returned for an unknown transaction type.
	ErrInvalidType = errors.New("ledger: invalid transaction type")
	// ErrDuplicateTransaction is returned when an idempotency key was already used.
	ErrDuplicateTransaction = errors.New("ledger: duplicate transaction")
)
