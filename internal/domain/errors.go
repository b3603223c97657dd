package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// Validation errors
	ErrInvalidAmount    = errors.New("amount must be positive")
	ErrAccountNotFound  = errors.New("account not found")
	ErrAccountNotActive = errors.New("account is not active")
	ErrSameAccount      = errors.New("cannot transfer to same account")
	ErrCurrencyMismatch = errors.New("cannot transfer between different currencies")

	// Business-rule errors
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrAccountHasBalance   = errors.New("account with positive balance cannot be closed")
	ErrBalanceInvariant    = errors.New("account balance invariant violated")

	// State errors
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrTransferNotCancellable = errors.New("transfer can no longer be cancelled")
	ErrTransferNotRetryable   = errors.New("transfer cannot be retried")
	ErrConcurrentModification = errors.New("record was modified concurrently")
	ErrFinalizeExhausted      = errors.New("transaction finalize attempts exhausted")

	// Integrity errors
	ErrDuplicateReference    = errors.New("reference number already exists")
	ErrIDGenerationExhausted = errors.New("unable to generate a unique identifier")

	// Lookup errors
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrTransferNotFound    = errors.New("transfer not found")
	ErrMovementNotFound    = errors.New("movement not found")

	// Boundary errors
	ErrAccountServiceUnavailable = errors.New("account service unavailable")
	ErrLedgerUnavailable         = errors.New("transaction ledger unavailable")
)

// InsufficientBalanceError reports a debit that the available balance cannot
// cover.
type InsufficientBalanceError struct {
	AccountID string
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: requested %s, available %s", e.Requested.String(), e.Available.String())
}

// Is makes errors.Is(err, ErrInsufficientBalance) true.
func (e *InsufficientBalanceError) Is(target error) bool {
	return target == ErrInsufficientBalance
}
