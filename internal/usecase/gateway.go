package usecase

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/iho/fundscore/internal/domain"
)

// Outcome tags the result of a call across a service boundary.
type Outcome int

const (
	// OutcomeOK means the remote side applied or answered the call.
	OutcomeOK Outcome = iota
	// OutcomeUnreachable means the call timed out, failed in transport or
	// was short-circuited. The result carries the fallback value.
	OutcomeUnreachable
	// OutcomeRejected means the remote side refused the call for a business
	// or authorization reason.
	OutcomeRejected
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeUnreachable:
		return "unreachable"
	case OutcomeRejected:
		return "rejected"
	}
	return "unknown"
}

// FallbackAccountID identifies the synthetic account returned when the
// account service cannot be reached.
const FallbackAccountID = "fallback-id"

// Rejection reasons shared by gateway implementations.
const (
	ReasonUnauthorized = "unauthorized"
	ReasonUnreachable  = "account service unavailable"
)

// AccountSnapshot is the view of an account exposed by the account service.
type AccountSnapshot struct {
	ID               string
	AccountNumber    string
	Balance          decimal.Decimal
	AvailableBalance decimal.Decimal
	Status           domain.AccountStatus
	Currency         string
}

// LookupResult is the tagged result of an account lookup.
type LookupResult struct {
	Outcome Outcome
	Account AccountSnapshot
	Reason  string
	// Err is the domain error behind a rejection, when known.
	Err error
}

// MovementStatus is the status reported for a debit or credit.
type MovementStatus string

const (
	MovementStatusSuccess MovementStatus = "SUCCESS"
	MovementStatusFailed  MovementStatus = "FAILED"
)

// MovementResult is the tagged result of a debit or credit.
type MovementResult struct {
	Outcome      Outcome
	Status       MovementStatus
	BalanceAfter decimal.Decimal
	Replayed     bool
	Reason       string
	// Err is the domain error behind a rejection, when known.
	Err error
}

// Succeeded reports whether the movement was applied.
func (r MovementResult) Succeeded() bool {
	return r.Outcome == OutcomeOK && r.Status == MovementStatusSuccess
}

// FallbackLookup is the deterministic lookup result used when the account
// service cannot be reached.
func FallbackLookup(ref string) LookupResult {
	return LookupResult{
		Outcome: OutcomeUnreachable,
		Account: AccountSnapshot{
			ID:               FallbackAccountID,
			AccountNumber:    ref,
			Balance:          decimal.Zero,
			AvailableBalance: decimal.Zero,
			Status:           domain.AccountStatusUnavailable,
			Currency:         domain.DefaultCurrency,
		},
		Reason: ReasonUnreachable,
		Err:    domain.ErrAccountServiceUnavailable,
	}
}

// FallbackMovement is the deterministic movement result used when the
// account service cannot be reached. No balance change is assumed.
func FallbackMovement() MovementResult {
	return MovementResult{
		Outcome: OutcomeUnreachable,
		Status:  MovementStatusFailed,
		Reason:  ReasonUnreachable,
		Err:     domain.ErrAccountServiceUnavailable,
	}
}

// RejectedMovement builds the result for a refused debit or credit.
func RejectedMovement(reason string, err error) MovementResult {
	return MovementResult{
		Outcome: OutcomeRejected,
		Status:  MovementStatusFailed,
		Reason:  reason,
		Err:     err,
	}
}

// AccountGateway is the orchestrator's view of the account service
// boundary. Implementations never return Go errors for remote failures;
// they return tagged results with fallbacks.
type AccountGateway interface {
	Lookup(ctx context.Context, ref string) LookupResult
	Debit(ctx context.Context, accountID string, amount decimal.Decimal, reference string) MovementResult
	Credit(ctx context.Context, accountID string, amount decimal.Decimal, reference string) MovementResult
	// Movement reports whether a movement with reference was applied. A
	// missing movement is OutcomeRejected with domain.ErrMovementNotFound.
	Movement(ctx context.Context, accountID, reference string, direction domain.MovementDirection) MovementResult
}

// LedgerClient is the orchestrator's view of the transaction ledger
// boundary. Transport failures wrap domain.ErrLedgerUnavailable.
type LedgerClient interface {
	QuoteFee(ctx context.Context, input QuoteFeeInput) (decimal.Decimal, error)
	RecordPending(ctx context.Context, input RecordPendingInput) (*domain.Transaction, error)
	Finalize(ctx context.Context, id string, status domain.TransactionStatus) (*domain.Transaction, error)
	GetByReference(ctx context.Context, reference string) (*domain.Transaction, error)
}
