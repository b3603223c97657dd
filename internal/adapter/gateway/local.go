package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/fundscore/internal/adapter/http/dto"
	"github.com/iho/fundscore/internal/domain"
	"github.com/iho/fundscore/internal/usecase"
)

// AccountService is the in-process account ledger. usecase.AccountUseCase
// implements it.
type AccountService interface {
	Lookup(ctx context.Context, ref string) (*domain.Account, error)
	Credit(ctx context.Context, input usecase.MovementInput) (*usecase.MovementOutput, error)
	Debit(ctx context.Context, input usecase.MovementInput) (*usecase.MovementOutput, error)
	GetMovement(ctx context.Context, accountID, reference string, direction domain.MovementDirection) (*domain.Movement, error)
}

// LocalAccountGateway serves the orchestrator from an account ledger in
// the same process.
type LocalAccountGateway struct {
	accounts AccountService
	timeout  time.Duration
	logger   zerolog.Logger
}

var _ usecase.AccountGateway = (*LocalAccountGateway)(nil)

// NewLocalAccountGateway creates a new LocalAccountGateway. A zero timeout
// means DefaultCallTimeout.
func NewLocalAccountGateway(accounts AccountService, timeout time.Duration, logger zerolog.Logger) *LocalAccountGateway {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	return &LocalAccountGateway{accounts: accounts, timeout: timeout, logger: logger}
}

// Lookup resolves an account by ID or account number.
func (g *LocalAccountGateway) Lookup(ctx context.Context, ref string) usecase.LookupResult {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	account, err := g.accounts.Lookup(ctx, ref)
	if err != nil {
		if isRejection(err) {
			return usecase.LookupResult{Outcome: usecase.OutcomeRejected, Reason: err.Error(), Err: err}
		}
		g.logger.Warn().Err(err).Str("ref", ref).Msg("account lookup failed")
		return usecase.FallbackLookup(ref)
	}

	return usecase.LookupResult{
		Outcome: usecase.OutcomeOK,
		Account: usecase.AccountSnapshot{
			ID:               account.ID,
			AccountNumber:    account.AccountNumber,
			Balance:          account.Balance,
			AvailableBalance: account.AvailableBalance,
			Status:           account.Status,
			Currency:         account.Currency,
		},
	}
}

// Debit takes amount from the account under reference.
func (g *LocalAccountGateway) Debit(ctx context.Context, accountID string, amount decimal.Decimal, reference string) usecase.MovementResult {
	return g.move(ctx, g.accounts.Debit, accountID, amount, reference)
}

// Credit adds amount to the account under reference.
func (g *LocalAccountGateway) Credit(ctx context.Context, accountID string, amount decimal.Decimal, reference string) usecase.MovementResult {
	return g.move(ctx, g.accounts.Credit, accountID, amount, reference)
}

func (g *LocalAccountGateway) move(
	ctx context.Context,
	apply func(context.Context, usecase.MovementInput) (*usecase.MovementOutput, error),
	accountID string,
	amount decimal.Decimal,
	reference string,
) usecase.MovementResult {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	out, err := apply(ctx, usecase.MovementInput{AccountID: accountID, Amount: amount, Reference: reference})
	if err != nil {
		if isRejection(err) {
			return usecase.RejectedMovement(err.Error(), err)
		}
		g.logger.Warn().Err(err).Str("account_id", accountID).Str("reference", reference).Msg("account movement failed")
		return usecase.FallbackMovement()
	}

	return usecase.MovementResult{
		Outcome:      usecase.OutcomeOK,
		Status:       usecase.MovementStatusSuccess,
		BalanceAfter: out.Movement.BalanceAfter,
		Replayed:     out.Replayed,
	}
}

// Movement reports whether a movement with reference was applied.
func (g *LocalAccountGateway) Movement(ctx context.Context, accountID, reference string, direction domain.MovementDirection) usecase.MovementResult {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	movement, err := g.accounts.GetMovement(ctx, accountID, reference, direction)
	if err != nil {
		if errors.Is(err, domain.ErrMovementNotFound) {
			return usecase.RejectedMovement(err.Error(), err)
		}
		return usecase.FallbackMovement()
	}

	return usecase.MovementResult{
		Outcome:      usecase.OutcomeOK,
		Status:       usecase.MovementStatusSuccess,
		BalanceAfter: movement.BalanceAfter,
	}
}

// isRejection separates business refusals from storage or timeout
// failures.
func isRejection(err error) bool {
	if errors.Is(err, domain.ErrAccountServiceUnavailable) ||
		errors.Is(err, domain.ErrLedgerUnavailable) ||
		errors.Is(err, domain.ErrConcurrentModification) {
		return false
	}
	return dto.ErrorCode(err) != dto.CodeInternal
}
