package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.uber.org/mock/gomock"

	"github.com/iho/fundscore/internal/adapter/repository/memory"
	"github.com/iho/fundscore/internal/domain"
	"github.com/iho/fundscore/internal/usecase"
	"github.com/iho/fundscore/internal/usecase/mocks"
)

type amountMatcher struct{ want decimal.Decimal }

func amountEq(v int64) gomock.Matcher { return amountMatcher{want: decimal.NewFromInt(v)} }

func (m amountMatcher) Matches(x any) bool {
	d, ok := x.(decimal.Decimal)
	return ok && d.Equal(m.want)
}

func (m amountMatcher) String() string { return "equals " + m.want.String() }

type suffixMatcher string

func (m suffixMatcher) Matches(x any) bool {
	s, ok := x.(string)
	return ok && strings.HasSuffix(s, string(m))
}

func (m suffixMatcher) String() string { return fmt.Sprintf("has suffix %q", string(m)) }

type sagaFixture struct {
	ctrl      *gomock.Controller
	accounts  *mocks.MockAccountGateway
	ledger    *mocks.MockLedgerClient
	repo      *memory.TransferRepository
	transfers *usecase.TransferUseCase
}

func newSagaFixture(t *testing.T) *sagaFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	f := &sagaFixture{
		ctrl:     ctrl,
		accounts: mocks.NewMockAccountGateway(ctrl),
		ledger:   mocks.NewMockLedgerClient(ctrl),
		repo:     memory.NewTransferRepository(memory.NewStore()),
	}
	f.transfers = usecase.NewTransferUseCase(usecase.TransferUseCaseConfig{
		TransferRepo: f.repo,
		Accounts:     f.accounts,
		Ledger:       f.ledger,
		IDGen:        mocks.NewMockIDGenerator(),
		Retry:        fastRetry(),
		Logger:       zerolog.Nop(),
	})
	return f
}

func active(id string) usecase.LookupResult {
	return usecase.LookupResult{
		Outcome: usecase.OutcomeOK,
		Account: usecase.AccountSnapshot{ID: id, Status: domain.AccountStatusActive, Currency: "KES"},
	}
}

func applied() usecase.MovementResult {
	return usecase.MovementResult{Outcome: usecase.OutcomeOK, Status: usecase.MovementStatusSuccess}
}

func notFound() usecase.MovementResult {
	return usecase.RejectedMovement("movement not found", domain.ErrMovementNotFound)
}

func ptr[T any](v T) *T { return &v }

// expectValidated sets up lookups and a fee quote of 5 for sender "s" and
// recipient "r".
func (f *sagaFixture) expectValidated() {
	f.accounts.EXPECT().Lookup(gomock.Any(), "s").Return(active("s"))
	f.accounts.EXPECT().Lookup(gomock.Any(), "r").Return(active("r"))
	f.ledger.EXPECT().QuoteFee(gomock.Any(), gomock.Any()).Return(decimal.NewFromInt(5), nil)
}

func (f *sagaFixture) initiate(t *testing.T) (*domain.Transfer, error) {
	t.Helper()
	return f.transfers.Initiate(context.Background(), usecase.InitiateTransferInput{
		SenderAccountID:    "s",
		RecipientAccountID: "r",
		Amount:             decimal.NewFromInt(100),
		Type:               domain.TransferTypeBankTransfer,
	})
}

func TestSaga_DebitInDoubtResolvedByReversal(t *testing.T) {
	f := newSagaFixture(t)
	f.expectValidated()

	f.accounts.EXPECT().Debit(gomock.Any(), "s", amountEq(105), gomock.Any()).Return(usecase.FallbackMovement()).Times(3)
	f.accounts.EXPECT().Movement(gomock.Any(), "s", gomock.Any(), domain.MovementDebit).Return(usecase.FallbackMovement())

	transfer, err := f.initiate(t)
	if !errors.Is(err, domain.ErrAccountServiceUnavailable) {
		t.Fatalf("expected ErrAccountServiceUnavailable, got %v", err)
	}
	if !transfer.DebitInDoubt {
		t.Fatal("expected debit in doubt")
	}

	// The debit did land; resolving it reverses the charge.
	f.accounts.EXPECT().Movement(gomock.Any(), "s", transfer.Reference, domain.MovementDebit).Return(applied())
	f.accounts.EXPECT().Credit(gomock.Any(), "s", amountEq(105), transfer.Reference+usecase.ReversalSuffix).Return(applied())

	resolved, err := f.transfers.ResolveDebit(context.Background(), transfer.ID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.DebitInDoubt || !resolved.Compensated {
		t.Errorf("expected compensated and resolved, got %+v", resolved)
	}
	if !resolved.Retryable() {
		t.Error("a resolved transfer must be retryable")
	}
}

func TestSaga_DebitInDoubtResolvedAsNotApplied(t *testing.T) {
	f := newSagaFixture(t)
	f.expectValidated()

	f.accounts.EXPECT().Debit(gomock.Any(), "s", gomock.Any(), gomock.Any()).Return(usecase.FallbackMovement()).Times(3)
	f.accounts.EXPECT().Movement(gomock.Any(), "s", gomock.Any(), domain.MovementDebit).Return(usecase.FallbackMovement())

	transfer, _ := f.initiate(t)

	// Still unreachable: the flag stays.
	f.accounts.EXPECT().Movement(gomock.Any(), "s", transfer.Reference, domain.MovementDebit).Return(usecase.FallbackMovement())
	if _, err := f.transfers.ResolveDebit(context.Background(), transfer.ID); !errors.Is(err, domain.ErrAccountServiceUnavailable) {
		t.Fatalf("expected ErrAccountServiceUnavailable, got %v", err)
	}

	f.accounts.EXPECT().Movement(gomock.Any(), "s", transfer.Reference, domain.MovementDebit).Return(notFound())
	resolved, err := f.transfers.ResolveDebit(context.Background(), transfer.ID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.DebitInDoubt || resolved.Compensated {
		t.Errorf("a debit that never landed owes no reversal, got %+v", resolved)
	}
}

func TestSaga_UnreachableDebitThatLanded(t *testing.T) {
	f := newSagaFixture(t)
	f.expectValidated()

	dest := "r"
	record := &domain.Transaction{ID: "txn-1", SourceAccountID: "s", DestinationAccountID: &dest, Amount: decimal.NewFromInt(100), Status: domain.TransactionStatusPending}

	f.accounts.EXPECT().Debit(gomock.Any(), "s", gomock.Any(), gomock.Any()).Return(usecase.FallbackMovement()).Times(3)
	f.accounts.EXPECT().Movement(gomock.Any(), "s", gomock.Any(), domain.MovementDebit).Return(applied())
	f.ledger.EXPECT().RecordPending(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, input usecase.RecordPendingInput) (*domain.Transaction, error) {
			if input.Fee == nil || !input.Fee.Equal(decimal.NewFromInt(5)) {
				t.Errorf("expected the quoted fee to be recorded, got %v", input.Fee)
			}
			if input.TransferType != domain.TransferTypeBankTransfer {
				t.Errorf("unexpected transfer type %s", input.TransferType)
			}
			return record, nil
		})
	f.accounts.EXPECT().Credit(gomock.Any(), "r", amountEq(100), gomock.Any()).Return(applied())
	f.ledger.EXPECT().Finalize(gomock.Any(), "txn-1", domain.TransactionStatusCompleted).Return(record, nil)

	transfer, err := f.initiate(t)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if transfer.State != domain.SagaStateCompleted {
		t.Errorf("expected COMPLETED, got %s", transfer.State)
	}
}

func TestSaga_AdoptsDuplicateRecord(t *testing.T) {
	tests := []struct {
		name     string
		existing *domain.Transaction
		adopted  bool
	}{
		{
			name:     "matching pending record",
			existing: &domain.Transaction{ID: "txn-1", SourceAccountID: "s", Amount: decimal.NewFromInt(100), Status: domain.TransactionStatusPending},
			adopted:  true,
		},
		{
			name:     "record for another movement",
			existing: &domain.Transaction{ID: "txn-1", SourceAccountID: "s", Amount: decimal.NewFromInt(99), Status: domain.TransactionStatusPending},
		},
		{
			name:     "failed record",
			existing: &domain.Transaction{ID: "txn-1", SourceAccountID: "s", Amount: decimal.NewFromInt(100), Status: domain.TransactionStatusFailed},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSagaFixture(t)
			f.expectValidated()

			dest := "r"
			tt.existing.DestinationAccountID = &dest

			f.accounts.EXPECT().Debit(gomock.Any(), "s", gomock.Any(), gomock.Any()).Return(applied())
			f.ledger.EXPECT().RecordPending(gomock.Any(), gomock.Any()).Return(nil, domain.ErrDuplicateReference)
			f.ledger.EXPECT().GetByReference(gomock.Any(), gomock.Any()).Return(tt.existing, nil)

			if tt.adopted {
				f.accounts.EXPECT().Credit(gomock.Any(), "r", gomock.Any(), gomock.Any()).Return(applied())
				f.ledger.EXPECT().Finalize(gomock.Any(), "txn-1", domain.TransactionStatusCompleted).Return(tt.existing, nil)
			} else {
				f.accounts.EXPECT().Credit(gomock.Any(), "s", amountEq(105), suffixMatcher(usecase.ReversalSuffix)).Return(applied())
			}

			transfer, err := f.initiate(t)
			if tt.adopted {
				if err != nil || transfer.State != domain.SagaStateCompleted {
					t.Fatalf("expected COMPLETED, got %s: %v", transfer.State, err)
				}
				if *transfer.TransactionID != "txn-1" {
					t.Errorf("expected adopted record, got %s", *transfer.TransactionID)
				}
				return
			}
			if !errors.Is(err, domain.ErrDuplicateReference) {
				t.Fatalf("expected ErrDuplicateReference, got %v", err)
			}
			if transfer.FailureCode != domain.FailureCodeLedgerWriteFailed || !transfer.Compensated {
				t.Errorf("expected compensated ledger_write_failed, got %s compensated=%v", transfer.FailureCode, transfer.Compensated)
			}
		})
	}
}

func TestSaga_LedgerDownCompensates(t *testing.T) {
	dest := "r"
	tests := []struct {
		name     string
		existing *domain.Transaction
		lookup   error
	}{
		{
			name:     "record written unseen",
			existing: &domain.Transaction{ID: "txn-1", SourceAccountID: "s", DestinationAccountID: &dest, Amount: decimal.NewFromInt(100), Status: domain.TransactionStatusPending},
		},
		{
			name:   "record never written",
			lookup: domain.ErrTransactionNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSagaFixture(t)
			f.expectValidated()

			f.accounts.EXPECT().Debit(gomock.Any(), "s", gomock.Any(), gomock.Any()).Return(applied())
			f.ledger.EXPECT().RecordPending(gomock.Any(), gomock.Any()).Return(nil, domain.ErrLedgerUnavailable).Times(3)
			f.ledger.EXPECT().GetByReference(gomock.Any(), gomock.Any()).Return(nil, domain.ErrLedgerUnavailable)
			f.accounts.EXPECT().Credit(gomock.Any(), "s", amountEq(105), suffixMatcher(usecase.ReversalSuffix)).Return(applied())

			transfer, err := f.initiate(t)
			if !errors.Is(err, domain.ErrLedgerUnavailable) {
				t.Fatalf("expected ErrLedgerUnavailable, got %v", err)
			}
			if transfer.State != domain.SagaStateFailed || !transfer.Compensated || transfer.TransactionID != nil {
				t.Errorf("unexpected transfer %+v", transfer)
			}
			// Neither the write nor the lookup was answered, so a record may
			// exist under the reference.
			if !transfer.FinalizePending {
				t.Fatal("expected finalize pending")
			}

			f.ledger.EXPECT().GetByReference(gomock.Any(), transfer.Reference).Return(tt.existing, tt.lookup)
			if tt.existing != nil {
				f.ledger.EXPECT().Finalize(gomock.Any(), "txn-1", domain.TransactionStatusFailed).Return(tt.existing, nil)
			}

			recovered, err := f.transfers.RetryFinalize(context.Background(), transfer.ID)
			if err != nil {
				t.Fatalf("retry finalize: %v", err)
			}
			if recovered.FinalizePending {
				t.Errorf("expected finalize to be settled, got %+v", recovered)
			}
			if tt.existing != nil && (recovered.TransactionID == nil || *recovered.TransactionID != "txn-1") {
				t.Errorf("expected the unseen record to be adopted, got %v", recovered.TransactionID)
			}
		})
	}
}

func TestSaga_CompensationPending(t *testing.T) {
	f := newSagaFixture(t)
	f.expectValidated()

	dest := "r"
	record := &domain.Transaction{ID: "txn-1", SourceAccountID: "s", DestinationAccountID: &dest, Amount: decimal.NewFromInt(100), Status: domain.TransactionStatusPending}

	f.accounts.EXPECT().Debit(gomock.Any(), "s", gomock.Any(), gomock.Any()).Return(applied())
	f.ledger.EXPECT().RecordPending(gomock.Any(), gomock.Any()).Return(record, nil)
	f.accounts.EXPECT().Credit(gomock.Any(), "r", gomock.Any(), gomock.Any()).
		Return(usecase.RejectedMovement("account is not active", domain.ErrAccountNotActive))
	f.accounts.EXPECT().Credit(gomock.Any(), "s", amountEq(105), suffixMatcher(usecase.ReversalSuffix)).
		Return(usecase.FallbackMovement()).Times(3)
	f.ledger.EXPECT().Finalize(gomock.Any(), "txn-1", domain.TransactionStatusFailed).Return(record, nil)

	transfer, err := f.initiate(t)
	if !errors.Is(err, domain.ErrAccountNotActive) {
		t.Fatalf("expected ErrAccountNotActive, got %v", err)
	}
	if !transfer.CompensationPending || transfer.Compensated {
		t.Fatalf("expected compensation pending, got %+v", transfer)
	}
	if transfer.Retryable() {
		t.Error("a transfer still holding funds must not be retryable")
	}

	f.accounts.EXPECT().Credit(gomock.Any(), "s", amountEq(105), transfer.Reference+usecase.ReversalSuffix).Return(applied())
	recovered, err := f.transfers.RetryCompensation(context.Background(), transfer.ID)
	if err != nil {
		t.Fatalf("retry compensation: %v", err)
	}
	if recovered.CompensationPending || !recovered.Compensated {
		t.Errorf("expected compensated, got %+v", recovered)
	}
}

func TestSaga_CreditInDoubt(t *testing.T) {
	tests := []struct {
		name      string
		check     usecase.MovementResult
		reissue   *usecase.MovementResult
		wantState domain.SagaState
		reversed  bool
	}{
		{
			name:      "credit landed",
			check:     applied(),
			wantState: domain.SagaStateCompleted,
		},
		{
			name:      "credit missing and reissued",
			check:     notFound(),
			reissue:   ptr(applied()),
			wantState: domain.SagaStateCompleted,
		},
		{
			name:      "credit missing and refused",
			check:     notFound(),
			reissue:   ptr(usecase.RejectedMovement("account is not active", domain.ErrAccountNotActive)),
			wantState: domain.SagaStateFailed,
			reversed:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSagaFixture(t)
			f.expectValidated()
			ctx := context.Background()

			dest := "r"
			record := &domain.Transaction{ID: "txn-1", SourceAccountID: "s", DestinationAccountID: &dest, Amount: decimal.NewFromInt(100), Status: domain.TransactionStatusPending}

			f.accounts.EXPECT().Debit(gomock.Any(), "s", amountEq(105), gomock.Any()).Return(applied())
			f.ledger.EXPECT().RecordPending(gomock.Any(), gomock.Any()).Return(record, nil)
			f.accounts.EXPECT().Credit(gomock.Any(), "r", amountEq(100), gomock.Any()).Return(usecase.FallbackMovement()).Times(3)
			f.accounts.EXPECT().Movement(gomock.Any(), "r", gomock.Any(), domain.MovementCredit).Return(usecase.FallbackMovement())

			// No reversal is expected here: gomock fails the test on one.
			transfer, err := f.initiate(t)
			if !errors.Is(err, domain.ErrAccountServiceUnavailable) {
				t.Fatalf("expected ErrAccountServiceUnavailable, got %v", err)
			}
			if transfer.State != domain.SagaStateLedgerWritten || !transfer.CreditInDoubt || transfer.Compensated {
				t.Fatalf("expected a held transfer, got %+v", transfer)
			}
			if transfer.Retryable() {
				t.Error("a held transfer must not be retryable")
			}

			f.accounts.EXPECT().Movement(gomock.Any(), "r", transfer.Reference, domain.MovementCredit).Return(tt.check)
			if tt.reissue != nil {
				f.accounts.EXPECT().Credit(gomock.Any(), "r", amountEq(100), transfer.Reference).Return(*tt.reissue)
			}
			finalStatus := domain.TransactionStatusCompleted
			if tt.reversed {
				finalStatus = domain.TransactionStatusFailed
				f.accounts.EXPECT().Credit(gomock.Any(), "s", amountEq(105), transfer.Reference+usecase.ReversalSuffix).Return(applied())
			}
			f.ledger.EXPECT().Finalize(gomock.Any(), "txn-1", finalStatus).Return(record, nil)

			resolved, err := f.transfers.ResolveCredit(ctx, transfer.ID)
			if err != nil {
				t.Fatalf("resolve: %v", err)
			}
			if resolved.State != tt.wantState || resolved.CreditInDoubt || resolved.Compensated != tt.reversed {
				t.Errorf("expected %s compensated=%v, got %+v", tt.wantState, tt.reversed, resolved)
			}

			stored, err := f.repo.GetByID(ctx, transfer.ID)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if stored.NeedsRecovery() {
				t.Errorf("expected a settled transfer, got %+v", stored)
			}
		})
	}
}

func TestSaga_CreditInDoubtStaysWhileUnknown(t *testing.T) {
	f := newSagaFixture(t)
	f.expectValidated()
	ctx := context.Background()

	dest := "r"
	record := &domain.Transaction{ID: "txn-1", SourceAccountID: "s", DestinationAccountID: &dest, Amount: decimal.NewFromInt(100), Status: domain.TransactionStatusPending}

	f.accounts.EXPECT().Debit(gomock.Any(), "s", gomock.Any(), gomock.Any()).Return(applied())
	f.ledger.EXPECT().RecordPending(gomock.Any(), gomock.Any()).Return(record, nil)
	f.accounts.EXPECT().Credit(gomock.Any(), "r", gomock.Any(), gomock.Any()).Return(usecase.FallbackMovement()).Times(3)
	f.accounts.EXPECT().Movement(gomock.Any(), "r", gomock.Any(), domain.MovementCredit).Return(usecase.FallbackMovement()).Times(2)

	transfer, _ := f.initiate(t)

	if _, err := f.transfers.ResolveCredit(ctx, transfer.ID); !errors.Is(err, domain.ErrAccountServiceUnavailable) {
		t.Fatalf("expected ErrAccountServiceUnavailable, got %v", err)
	}
	stored, err := f.repo.GetByID(ctx, transfer.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !stored.CreditInDoubt || stored.State != domain.SagaStateLedgerWritten {
		t.Errorf("expected the transfer to stay held, got %+v", stored)
	}
}

func TestSaga_CancelDuringValidation(t *testing.T) {
	f := newSagaFixture(t)
	ctx := context.Background()

	queued, err := f.transfers.Submit(ctx, usecase.InitiateTransferInput{
		SenderAccountID:    "s",
		RecipientAccountID: "r",
		Amount:             decimal.NewFromInt(100),
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	// A cancel lands while the saga resolves the sender, so the saga's next
	// save loses and no money moves.
	f.accounts.EXPECT().Lookup(gomock.Any(), "s").DoAndReturn(func(context.Context, string) usecase.LookupResult {
		if _, err := f.transfers.Cancel(ctx, queued.ID); err != nil {
			t.Errorf("cancel: %v", err)
		}
		return active("s")
	})
	f.accounts.EXPECT().Lookup(gomock.Any(), "r").Return(active("r"))
	f.ledger.EXPECT().QuoteFee(gomock.Any(), gomock.Any()).Return(decimal.Zero, nil)

	// The saga reloads and stops at the state the cancel left.
	stopped, err := f.transfers.Resume(ctx, queued.ID)
	if err != nil {
		t.Fatalf("expected the saga to stop quietly, got %v", err)
	}
	if stopped.State != domain.SagaStateCancelled {
		t.Errorf("expected the returned transfer to be CANCELLED, got %s", stopped.State)
	}

	stored, err := f.repo.GetByID(ctx, queued.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.State != domain.SagaStateCancelled {
		t.Errorf("expected CANCELLED, got %s", stored.State)
	}

	// Resuming again finds the terminal state and makes no calls.
	resumed, err := f.transfers.Resume(ctx, queued.ID)
	if err != nil || resumed.State != domain.SagaStateCancelled {
		t.Errorf("expected CANCELLED, got %v", err)
	}
}
