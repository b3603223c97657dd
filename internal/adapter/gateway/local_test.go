package gateway

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/iho/fundscore/internal/domain"
	"github.com/iho/fundscore/internal/usecase"
)

type fakeAccounts struct {
	lookupErr   error
	moveErr     error
	movementErr error
	replayed    bool
}

func (f *fakeAccounts) Lookup(_ context.Context, ref string) (*domain.Account, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	return &domain.Account{ID: ref, AccountNumber: "SAV" + ref, Status: domain.AccountStatusActive, Currency: "KES", Balance: decimal.NewFromInt(100), AvailableBalance: decimal.NewFromInt(80)}, nil
}

func (f *fakeAccounts) move(input usecase.MovementInput) (*usecase.MovementOutput, error) {
	if f.moveErr != nil {
		return nil, f.moveErr
	}
	return &usecase.MovementOutput{
		Movement: &domain.Movement{AccountID: input.AccountID, Reference: input.Reference, Amount: input.Amount, BalanceAfter: decimal.NewFromInt(50)},
		Replayed: f.replayed,
	}, nil
}

func (f *fakeAccounts) Credit(_ context.Context, input usecase.MovementInput) (*usecase.MovementOutput, error) {
	return f.move(input)
}

func (f *fakeAccounts) Debit(_ context.Context, input usecase.MovementInput) (*usecase.MovementOutput, error) {
	return f.move(input)
}

func (f *fakeAccounts) GetMovement(_ context.Context, accountID, reference string, direction domain.MovementDirection) (*domain.Movement, error) {
	if f.movementErr != nil {
		return nil, f.movementErr
	}
	return &domain.Movement{AccountID: accountID, Reference: reference, Direction: direction, BalanceAfter: decimal.NewFromInt(50)}, nil
}

func TestLocalAccountGateway_Lookup(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		outcome usecase.Outcome
	}{
		{"found", nil, usecase.OutcomeOK},
		{"not found", fmt.Errorf("%w: acc-9", domain.ErrAccountNotFound), usecase.OutcomeRejected},
		{"storage failure", errors.New("connection reset"), usecase.OutcomeUnreachable},
		{"deadline", context.DeadlineExceeded, usecase.OutcomeUnreachable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewLocalAccountGateway(&fakeAccounts{lookupErr: tt.err}, 0, zerolog.Nop())
			res := g.Lookup(t.Context(), "acc-1")
			assert.Equal(t, tt.outcome, res.Outcome)
			switch tt.outcome {
			case usecase.OutcomeOK:
				assert.Equal(t, "acc-1", res.Account.ID)
				assert.True(t, res.Account.AvailableBalance.Equal(decimal.NewFromInt(80)))
			case usecase.OutcomeRejected:
				assert.ErrorIs(t, res.Err, domain.ErrAccountNotFound)
			case usecase.OutcomeUnreachable:
				assert.Equal(t, usecase.FallbackAccountID, res.Account.ID)
			}
		})
	}
}

func TestLocalAccountGateway_Movements(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		outcome  usecase.Outcome
		replayed bool
	}{
		{"applied", nil, usecase.OutcomeOK, false},
		{"replayed", nil, usecase.OutcomeOK, true},
		{"insufficient", &domain.InsufficientBalanceError{AccountID: "acc-1"}, usecase.OutcomeRejected, false},
		{"inactive", domain.ErrAccountNotActive, usecase.OutcomeRejected, false},
		{"storage failure", errors.New("deadlock detected"), usecase.OutcomeUnreachable, false},
		{"unavailable", domain.ErrAccountServiceUnavailable, usecase.OutcomeUnreachable, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewLocalAccountGateway(&fakeAccounts{moveErr: tt.err, replayed: tt.replayed}, 0, zerolog.Nop())
			for _, res := range []usecase.MovementResult{
				g.Debit(t.Context(), "acc-1", decimal.NewFromInt(10), "TXN1"),
				g.Credit(t.Context(), "acc-1", decimal.NewFromInt(10), "TXN1"),
			} {
				assert.Equal(t, tt.outcome, res.Outcome)
				assert.Equal(t, tt.replayed, res.Replayed)
				if tt.outcome == usecase.OutcomeOK {
					assert.True(t, res.Succeeded())
					continue
				}
				assert.Equal(t, usecase.MovementStatusFailed, res.Status)
				if tt.outcome == usecase.OutcomeRejected {
					assert.ErrorIs(t, res.Err, tt.err)
				}
			}
		})
	}
}

func TestLocalAccountGateway_Movement(t *testing.T) {
	g := NewLocalAccountGateway(&fakeAccounts{}, 0, zerolog.Nop())
	assert.True(t, g.Movement(t.Context(), "acc-1", "TXN1", domain.MovementDebit).Succeeded())

	g = NewLocalAccountGateway(&fakeAccounts{movementErr: domain.ErrMovementNotFound}, 0, zerolog.Nop())
	res := g.Movement(t.Context(), "acc-1", "TXN1", domain.MovementDebit)
	assert.Equal(t, usecase.OutcomeRejected, res.Outcome)
	assert.ErrorIs(t, res.Err, domain.ErrMovementNotFound)

	g = NewLocalAccountGateway(&fakeAccounts{movementErr: errors.New("timeout")}, 0, zerolog.Nop())
	assert.Equal(t, usecase.OutcomeUnreachable, g.Movement(t.Context(), "acc-1", "TXN1", domain.MovementDebit).Outcome)
}
