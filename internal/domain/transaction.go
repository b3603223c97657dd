package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType classifies a ledger entry.
type TransactionType string

const (
	TransactionTypeDeposit          TransactionType = "DEPOSIT"
	TransactionTypeWithdrawal       TransactionType = "WITHDRAWAL"
	TransactionTypeTransfer         TransactionType = "TRANSFER"
	TransactionTypePayment          TransactionType = "PAYMENT"
	TransactionTypeBillPayment      TransactionType = "BILL_PAYMENT"
	TransactionTypeLoanDisbursement TransactionType = "LOAN_DISBURSEMENT"
	TransactionTypeLoanRepayment    TransactionType = "LOAN_REPAYMENT"
	TransactionTypeReversal         TransactionType = "REVERSAL"
)

var validTransactionTypes = map[TransactionType]bool{
	TransactionTypeDeposit:          true,
	TransactionTypeWithdrawal:       true,
	TransactionTypeTransfer:         true,
	TransactionTypePayment:          true,
	TransactionTypeBillPayment:      true,
	TransactionTypeLoanDisbursement: true,
	TransactionTypeLoanRepayment:    true,
	TransactionTypeReversal:         true,
}

// IsValid reports whether t is a known transaction type.
func (t TransactionType) IsValid() bool {
	return validTransactionTypes[t]
}

// TransactionStatus is the lifecycle state of a ledger entry.
type TransactionStatus string

const (
	TransactionStatusPending    TransactionStatus = "PENDING"
	TransactionStatusProcessing TransactionStatus = "PROCESSING"
	TransactionStatusCompleted  TransactionStatus = "COMPLETED"
	TransactionStatusFailed     TransactionStatus = "FAILED"
	TransactionStatusCancelled  TransactionStatus = "CANCELLED"
	TransactionStatusReversed   TransactionStatus = "REVERSED"
)

// IsTerminal reports whether no further transition is allowed.
func (s TransactionStatus) IsTerminal() bool {
	switch s {
	case TransactionStatusCompleted, TransactionStatusFailed, TransactionStatusCancelled, TransactionStatusReversed:
		return true
	}
	return false
}

// Transaction is an append-only record of a money movement.
type Transaction struct {
	ID                   string
	ReferenceNumber      string
	SourceAccountID      string
	DestinationAccountID *string
	Amount               decimal.Decimal
	Fee                  decimal.Decimal
	Total                decimal.Decimal
	Type                 TransactionType
	Status               TransactionStatus
	Description          string
	UserID               string
	CreatedAt            time.Time
	UpdatedAt            time.Time
	ProcessedAt          *time.Time
}

// Finalize moves a pending or processing transaction to COMPLETED or FAILED.
func (t *Transaction) Finalize(status TransactionStatus, at time.Time) error {
	if t.Status.IsTerminal() {
		return ErrInvalidStateTransition
	}
	if status != TransactionStatusCompleted && status != TransactionStatusFailed {
		return ErrInvalidStateTransition
	}

	t.Status = status
	t.UpdatedAt = at
	if status == TransactionStatusCompleted {
		t.ProcessedAt = &at
	}
	return nil
}

// Matches reports whether t records the same movement as the given fields.
// It is used to adopt a record written by an earlier attempt.
func (t *Transaction) Matches(sourceID string, destID *string, amount decimal.Decimal) bool {
	if t.SourceAccountID != sourceID || !t.Amount.Equal(amount) {
		return false
	}
	if (t.DestinationAccountID == nil) != (destID == nil) {
		return false
	}
	return destID == nil || *t.DestinationAccountID == *destID
}
