package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountStatus is the lifecycle state of an account.
type AccountStatus string

const (
	AccountStatusPending   AccountStatus = "PENDING"
	AccountStatusActive    AccountStatus = "ACTIVE"
	AccountStatusSuspended AccountStatus = "SUSPENDED"
	AccountStatusFrozen    AccountStatus = "FROZEN"
	AccountStatusClosed    AccountStatus = "CLOSED"
	AccountStatusClosing   AccountStatus = "CLOSING"
	AccountStatusDormant   AccountStatus = "DORMANT"
	AccountStatusBlocked   AccountStatus = "BLOCKED"

	// AccountStatusUnavailable is never stored. The account gateway reports it
	// when the account service cannot be reached.
	AccountStatusUnavailable AccountStatus = "UNAVAILABLE"
)

// AccountType is the product type of an account.
type AccountType string

const (
	AccountTypeSavings      AccountType = "SAVINGS"
	AccountTypeChecking     AccountType = "CHECKING"
	AccountTypeBusiness     AccountType = "BUSINESS"
	AccountTypeFixedDeposit AccountType = "FIXED_DEPOSIT"
)

// DefaultCurrency is used when an account is opened without a currency.
const DefaultCurrency = "KES"

// Account holds the monetary state of a single customer account.
type Account struct {
	ID                string
	AccountNumber     string
	UserID            string
	Type              AccountType
	Name              string
	Currency          string
	Status            AccountStatus
	Balance           decimal.Decimal
	AvailableBalance  decimal.Decimal
	MinimumBalance    decimal.Decimal
	DailyLimit        decimal.Decimal
	MonthlyLimit      decimal.Decimal
	Version           int64
	LastTransactionAt *time.Time
	ActivatedAt       *time.Time
	ClosedAt          *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// IsActive reports whether the account accepts balance mutations.
func (a *Account) IsActive() bool {
	return a.Status == AccountStatusActive
}

// HeldAmount is the part of the balance that is not available.
func (a *Account) HeldAmount() decimal.Decimal {
	return a.Balance.Sub(a.AvailableBalance)
}

// ValidateCredit checks if the account can be credited by amount.
func (a *Account) ValidateCredit(amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}
	if !a.IsActive() {
		return ErrAccountNotActive
	}
	return nil
}

// ValidateDebit checks if the account can be debited by amount.
func (a *Account) ValidateDebit(amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}
	if !a.IsActive() {
		return ErrAccountNotActive
	}
	if a.AvailableBalance.LessThan(amount) {
		return &InsufficientBalanceError{
			AccountID: a.ID,
			Requested: amount,
			Available: a.AvailableBalance,
		}
	}
	return nil
}

// ApplyCredit increases both balances. Callers validate first.
func (a *Account) ApplyCredit(amount decimal.Decimal, at time.Time) {
	a.Balance = a.Balance.Add(amount)
	a.AvailableBalance = a.AvailableBalance.Add(amount)
	a.touch(at)
}

// ApplyDebit decreases both balances. Callers validate first.
func (a *Account) ApplyDebit(amount decimal.Decimal, at time.Time) {
	a.Balance = a.Balance.Sub(amount)
	a.AvailableBalance = a.AvailableBalance.Sub(amount)
	a.touch(at)
}

func (a *Account) touch(at time.Time) {
	a.LastTransactionAt = &at
	a.UpdatedAt = at
	a.Version++
}

// Activate moves the account to ACTIVE. It returns false when the account is
// already active.
func (a *Account) Activate(at time.Time) (bool, error) {
	switch a.Status {
	case AccountStatusActive:
		return false, nil
	case AccountStatusClosed:
		return false, ErrInvalidStateTransition
	}
	a.Status = AccountStatusActive
	a.ActivatedAt = &at
	a.ClosedAt = nil
	a.UpdatedAt = at
	a.Version++
	return true, nil
}

// Freeze moves the account to FROZEN. It returns false when the account is
// already frozen.
func (a *Account) Freeze(at time.Time) (bool, error) {
	switch a.Status {
	case AccountStatusFrozen:
		return false, nil
	case AccountStatusClosed:
		return false, ErrInvalidStateTransition
	}
	a.Status = AccountStatusFrozen
	a.UpdatedAt = at
	a.Version++
	return true, nil
}

// Close moves the account to CLOSED. Closure is terminal and requires a zero
// balance.
func (a *Account) Close(at time.Time) (bool, error) {
	if a.Status == AccountStatusClosed {
		return false, nil
	}
	if a.Balance.IsPositive() {
		return false, ErrAccountHasBalance
	}
	a.Status = AccountStatusClosed
	a.ClosedAt = &at
	a.UpdatedAt = at
	a.Version++
	return true, nil
}

// CheckInvariants verifies availableBalance <= balance and that neither is
// negative.
func (a *Account) CheckInvariants() error {
	if a.AvailableBalance.GreaterThan(a.Balance) {
		return ErrBalanceInvariant
	}
	if a.Balance.IsNegative() || a.AvailableBalance.IsNegative() {
		return ErrBalanceInvariant
	}
	return nil
}

// MovementDirection tells whether a movement added or removed funds.
type MovementDirection string

const (
	MovementCredit MovementDirection = "CREDIT"
	MovementDebit  MovementDirection = "DEBIT"
)

// Movement records one applied credit or debit, keyed by the caller's
// reference. A repeated call with the same key replays this record.
type Movement struct {
	ID           string
	AccountID    string
	Reference    string
	Direction    MovementDirection
	Amount       decimal.Decimal
	BalanceAfter decimal.Decimal
	CreatedAt    time.Time
}
