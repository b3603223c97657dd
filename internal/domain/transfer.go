package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransferType is the channel a transfer moves through.
type TransferType string

const (
	TransferTypeInternal     TransferType = "INTERNAL"
	TransferTypeMobileMoney  TransferType = "MOBILE_MONEY"
	TransferTypeBankTransfer TransferType = "BANK_TRANSFER"
	TransferTypePeerToPeer   TransferType = "PEER_TO_PEER"
)

// IsValid reports whether t is a known transfer type.
func (t TransferType) IsValid() bool {
	switch t {
	case TransferTypeInternal, TransferTypeMobileMoney, TransferTypeBankTransfer, TransferTypePeerToPeer:
		return true
	}
	return false
}

// TransferStatus is the customer-facing status of a transfer.
type TransferStatus string

const (
	TransferStatusPending    TransferStatus = "PENDING"
	TransferStatusProcessing TransferStatus = "PROCESSING"
	TransferStatusCompleted  TransferStatus = "COMPLETED"
	TransferStatusFailed     TransferStatus = "FAILED"
	TransferStatusCancelled  TransferStatus = "CANCELLED"
	TransferStatusRefunded   TransferStatus = "REFUNDED"
)

// SagaState is the orchestration step a transfer has reached.
type SagaState string

const (
	SagaStateReceived      SagaState = "RECEIVED"
	SagaStateValidated     SagaState = "VALIDATED"
	SagaStateDebited       SagaState = "DEBITED"
	SagaStateLedgerWritten SagaState = "LEDGER_WRITTEN"
	SagaStateCredited      SagaState = "CREDITED"
	SagaStateCompleted     SagaState = "COMPLETED"
	SagaStateFailed        SagaState = "FAILED"
	SagaStateCancelled     SagaState = "CANCELLED"
)

// IsTerminal reports whether the saga has stopped.
func (s SagaState) IsTerminal() bool {
	return s == SagaStateCompleted || s == SagaStateFailed || s == SagaStateCancelled
}

var sagaTransitions = map[SagaState]SagaState{
	SagaStateReceived:      SagaStateValidated,
	SagaStateValidated:     SagaStateDebited,
	SagaStateDebited:       SagaStateLedgerWritten,
	SagaStateLedgerWritten: SagaStateCredited,
	SagaStateCredited:      SagaStateCompleted,
}

// CanTransition reports whether the saga may move from s to next.
func (s SagaState) CanTransition(next SagaState) bool {
	if s.IsTerminal() {
		return false
	}
	switch next {
	case SagaStateFailed:
		return true
	case SagaStateCancelled:
		return s == SagaStateReceived || s == SagaStateValidated
	}
	return sagaTransitions[s] == next
}

// Failure codes reported on failed transfers.
const (
	FailureCodeInvalidAmount      = "invalid_amount"
	FailureCodeSameAccount        = "same_account"
	FailureCodeAccountNotFound    = "account_not_found"
	FailureCodeAccountNotActive   = "account_not_active"
	FailureCodeCurrencyMismatch   = "currency_mismatch"
	FailureCodeInsufficientFunds  = "insufficient_balance"
	FailureCodeDebitFailed        = "debit_failed"
	FailureCodeLedgerWriteFailed  = "ledger_write_failed"
	FailureCodeCreditFailed       = "credit_failed"
	FailureCodeFeeUnavailable     = "fee_unavailable"
	FailureCodeServiceUnavailable = "service_unavailable"
)

// Transfer is the unit of orchestration that moves funds from a sender to a
// recipient and correlates 1:1 with a Transaction by Reference.
type Transfer struct {
	ID                  string
	Reference           string
	ClientReference     *string
	SenderAccountID     string
	RecipientAccountID  string
	Amount              decimal.Decimal
	Currency            string
	Type                TransferType
	Status              TransferStatus
	State               SagaState
	Fee                 decimal.Decimal
	TotalAmount         decimal.Decimal
	TransactionID       *string
	Description         string
	UserID              string
	FailureReason       string
	FailureCode         string
	Compensated         bool
	CompensationPending bool
	FinalizePending     bool
	DebitInDoubt        bool
	CreditInDoubt       bool
	FinalizeAttempts    int
	RetryOf             *string
	Version             int64
	CreatedAt           time.Time
	UpdatedAt           time.Time
	CompletedAt         *time.Time
}

// Validate validates the transfer request fields.
func (t *Transfer) Validate() error {
	if t.SenderAccountID == t.RecipientAccountID {
		return ErrSameAccount
	}

	if t.Amount.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}

	return nil
}

// Advance moves the saga to next and derives the customer-facing status.
func (t *Transfer) Advance(next SagaState, at time.Time) error {
	if !t.State.CanTransition(next) {
		return ErrInvalidStateTransition
	}

	t.State = next
	t.UpdatedAt = at

	switch next {
	case SagaStateReceived, SagaStateValidated:
		t.Status = TransferStatusPending
	case SagaStateDebited, SagaStateLedgerWritten, SagaStateCredited:
		t.Status = TransferStatusProcessing
	case SagaStateCompleted:
		t.Status = TransferStatusCompleted
		t.CompletedAt = &at
	case SagaStateFailed:
		t.Status = TransferStatusFailed
	case SagaStateCancelled:
		t.Status = TransferStatusCancelled
	}
	return nil
}

// Fail moves the saga to FAILED with a stable reason.
func (t *Transfer) Fail(code, reason string, at time.Time) error {
	if err := t.Advance(SagaStateFailed, at); err != nil {
		return err
	}
	t.FailureCode = code
	t.FailureReason = reason
	return nil
}

// Cancellable reports whether no money has moved or been claimed yet.
func (t *Transfer) Cancellable() bool {
	return (t.State == SagaStateReceived || t.State == SagaStateValidated) &&
		t.Status == TransferStatusPending
}

// Retryable reports whether a failed transfer holds no funds and can be
// attempted again under a new reference.
func (t *Transfer) Retryable() bool {
	if t.State != SagaStateFailed {
		return false
	}
	return !t.CompensationPending && !t.DebitInDoubt
}

// NeedsRecovery reports whether background work is still owed on the
// transfer.
func (t *Transfer) NeedsRecovery() bool {
	return t.FinalizePending || t.CompensationPending || t.DebitInDoubt || t.CreditInDoubt
}

// TransferStats aggregates transfers for an account.
type TransferStats struct {
	AccountID      string
	TotalSent      int64
	TotalReceived  int64
	Completed      int64
	Failed         int64
	Pending        int64
	Cancelled      int64
	AmountSent     decimal.Decimal
	AmountReceived decimal.Decimal
	FeesPaid       decimal.Decimal
}
