package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrStatusConflict    = errors.New("status conflict")
	ErrKindMismatch      = errors.New("listing kind mismatch")
	ErrTransactionTaken  = errors.New("provider transaction belongs to another order")
)
