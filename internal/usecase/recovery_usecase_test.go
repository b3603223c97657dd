package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/fundscore/internal/domain"
	"github.com/iho/fundscore/internal/usecase"
)

func newRecovery(h *harness, staleAfter time.Duration) *usecase.RecoveryUseCase {
	return usecase.NewRecoveryUseCase(usecase.RecoveryConfig{
		TransferRepo: h.transferRepo,
		Transfers:    h.transfers,
		Logger:       zerolog.Nop(),
		Metrics:      h.metrics,
		StaleAfter:   staleAfter,
	})
}

func TestRecovery_ResolvesDebitInDoubt(t *testing.T) {
	faulty := &faultyAccounts{}
	h := newHarness(t, withFaultyAccounts(faulty))
	ctx := context.Background()
	sender := h.openAccount(t, 1000)
	recipient := h.openAccount(t, 0)

	// The debit lands but neither the reply nor the follow-up check gets
	// through.
	faulty.set(func(f *faults) {
		f.loseDebitReply = true
		f.checksDown = true
	})
	transfer, _ := h.transfers.Initiate(ctx, usecase.InitiateTransferInput{
		SenderAccountID:    sender,
		RecipientAccountID: recipient,
		Amount:             decimal.NewFromInt(400),
	})
	if !transfer.DebitInDoubt {
		t.Fatalf("expected debit in doubt, got %+v", transfer)
	}
	requireBalance(t, h, sender, 600)

	recovery := newRecovery(h, time.Hour)

	report, err := recovery.RunOnce(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Failed != 1 || report.Resolved != 0 {
		t.Errorf("expected a failed attempt while checks are down, got %+v", report)
	}

	faulty.set(func(f *faults) {
		f.loseDebitReply = false
		f.checksDown = false
	})
	report, err = recovery.RunOnce(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Resolved != 1 {
		t.Errorf("expected 1 resolved transfer, got %+v", report)
	}

	stored, err := h.transferRepo.GetByID(ctx, transfer.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.DebitInDoubt || !stored.Compensated {
		t.Errorf("expected a reversed debit, got %+v", stored)
	}
	requireBalance(t, h, sender, 1000)
	requireBalance(t, h, recipient, 0)

	if got := testutil.ToFloat64(h.metrics.RecoveredTransfers.WithLabelValues("debit_in_doubt", "success")); got != 1 {
		t.Errorf("expected 1 recovered transfer, got %v", got)
	}
}

func TestRecovery_ResolvesCreditInDoubt(t *testing.T) {
	faulty := &faultyAccounts{}
	h := newHarness(t, withFaultyAccounts(faulty))
	ctx := context.Background()
	sender := h.openAccount(t, 5000)
	recipient := h.openAccount(t, 200)

	faulty.set(func(f *faults) {
		f.loseCreditReply = true
		f.checksDown = true
	})
	transfer, _ := h.transfers.Initiate(ctx, usecase.InitiateTransferInput{
		SenderAccountID:    sender,
		RecipientAccountID: recipient,
		Amount:             decimal.NewFromInt(1000),
	})
	if !transfer.CreditInDoubt {
		t.Fatalf("expected credit in doubt, got %+v", transfer)
	}

	// The held transfer is also stale, and it is still settled only once.
	recovery := newRecovery(h, time.Nanosecond)

	report, err := recovery.RunOnce(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Failed != 1 || report.Resolved != 0 || report.Resumed != 0 {
		t.Errorf("expected a failed attempt while checks are down, got %+v", report)
	}

	faulty.set(func(f *faults) {
		f.loseCreditReply = false
		f.checksDown = false
	})
	report, err = recovery.RunOnce(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Resolved != 1 || report.Resumed != 0 {
		t.Errorf("expected 1 resolved transfer, got %+v", report)
	}

	stored, err := h.transferRepo.GetByID(ctx, transfer.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.State != domain.SagaStateCompleted || stored.CreditInDoubt || stored.Compensated {
		t.Errorf("expected a completed transfer, got %+v", stored)
	}
	if record := h.transaction(t, transfer.Reference); record.Status != domain.TransactionStatusCompleted {
		t.Errorf("expected COMPLETED record, got %s", record.Status)
	}
	requireBalance(t, h, sender, 4000)
	requireBalance(t, h, recipient, 1200)

	if got := testutil.ToFloat64(h.metrics.RecoveredTransfers.WithLabelValues("credit_in_doubt", "success")); got != 1 {
		t.Errorf("expected 1 recovered transfer, got %v", got)
	}
}

func TestRecovery_RetriesCompensation(t *testing.T) {
	faulty := &faultyAccounts{}
	h := newHarness(t, withFaultyAccounts(faulty))
	ctx := context.Background()
	sender := h.openAccount(t, 1000)
	recipient := h.openAccount(t, 0)

	faulty.set(func(f *faults) {
		f.reversalsDown = true
		f.beforeCredit = func(accountID string) {
			if accountID == recipient {
				_, _ = h.accounts.Freeze(ctx, recipient)
			}
		}
	})
	transfer, _ := h.transfers.Initiate(ctx, usecase.InitiateTransferInput{
		SenderAccountID:    sender,
		RecipientAccountID: recipient,
		Amount:             decimal.NewFromInt(250),
	})
	if !transfer.CompensationPending {
		t.Fatalf("expected compensation pending, got %+v", transfer)
	}
	requireBalance(t, h, sender, 750)

	faulty.set(func(f *faults) { f.reversalsDown = false })

	report, err := newRecovery(h, time.Hour).RunOnce(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Compensated != 1 {
		t.Errorf("expected 1 compensated transfer, got %+v", report)
	}
	requireBalance(t, h, sender, 1000)

	stored, err := h.transferRepo.GetByID(ctx, transfer.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.NeedsRecovery() || !stored.Retryable() {
		t.Errorf("expected a settled, retryable transfer, got %+v", stored)
	}
}

func TestRecovery_FinalizesFailedRecord(t *testing.T) {
	faulty := &faultyAccounts{}
	ledger := &flakyLedger{}
	h := newHarness(t, withFaultyAccounts(faulty), withFlakyLedger(ledger))
	ctx := context.Background()
	sender := h.openAccount(t, 1000)
	recipient := h.openAccount(t, 0)

	faulty.set(func(f *faults) {
		f.beforeCredit = func(accountID string) {
			if accountID == recipient {
				_, _ = h.accounts.Freeze(ctx, recipient)
			}
		}
	})
	ledger.setFinalizeFailures(-1)

	transfer, _ := h.transfers.Initiate(ctx, usecase.InitiateTransferInput{
		SenderAccountID:    sender,
		RecipientAccountID: recipient,
		Amount:             decimal.NewFromInt(100),
	})
	if transfer.State != domain.SagaStateFailed || !transfer.FinalizePending || !transfer.Compensated {
		t.Fatalf("expected failed, compensated, finalize pending; got %+v", transfer)
	}
	if record := h.transaction(t, transfer.Reference); record.Status != domain.TransactionStatusPending {
		t.Fatalf("expected the record to stay PENDING, got %s", record.Status)
	}

	ledger.setFinalizeFailures(0)
	report, err := newRecovery(h, time.Hour).RunOnce(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Finalized != 1 {
		t.Errorf("expected 1 finalized transfer, got %+v", report)
	}
	if record := h.transaction(t, transfer.Reference); record.Status != domain.TransactionStatusFailed {
		t.Errorf("expected FAILED record, got %s", record.Status)
	}
}

func TestRecovery_FailsUnseenRecordByReference(t *testing.T) {
	ledger := &flakyLedger{loseRecordReply: true, lookupsDown: true}
	h := newHarness(t, withFlakyLedger(ledger))
	ctx := context.Background()
	sender := h.openAccount(t, 1000)
	recipient := h.openAccount(t, 0)

	transfer, err := h.transfers.Initiate(ctx, usecase.InitiateTransferInput{
		SenderAccountID:    sender,
		RecipientAccountID: recipient,
		Amount:             decimal.NewFromInt(100),
	})
	if err == nil {
		t.Fatal("expected the ledger write to fail")
	}
	if transfer.State != domain.SagaStateFailed || !transfer.Compensated || !transfer.FinalizePending {
		t.Fatalf("expected failed, compensated, finalize pending; got %+v", transfer)
	}
	requireBalance(t, h, sender, 1000)
	if record := h.transaction(t, transfer.Reference); record.Status != domain.TransactionStatusPending {
		t.Fatalf("expected the unseen record to be PENDING, got %s", record.Status)
	}

	ledger.setLookupsDown(false)
	report, err := newRecovery(h, time.Hour).RunOnce(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Finalized != 1 {
		t.Errorf("expected 1 finalized transfer, got %+v", report)
	}

	record := h.transaction(t, transfer.Reference)
	if record.Status != domain.TransactionStatusFailed {
		t.Errorf("expected FAILED record, got %s", record.Status)
	}
	stored, err := h.transferRepo.GetByID(ctx, transfer.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.FinalizePending || stored.TransactionID == nil || *stored.TransactionID != record.ID {
		t.Errorf("expected the record to be adopted and settled, got %+v", stored)
	}
}

func TestRecovery_SkipsExhaustedFinalize(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	now := time.Now().UTC()
	exhausted := &domain.Transfer{
		ID:                 "tr-exhausted",
		Reference:          "TXN000000000001",
		SenderAccountID:    "acc-1",
		RecipientAccountID: "acc-2",
		Amount:             decimal.NewFromInt(10),
		TotalAmount:        decimal.NewFromInt(10),
		Type:               domain.TransferTypeInternal,
		Status:             domain.TransferStatusCompleted,
		State:              domain.SagaStateCompleted,
		FinalizePending:    true,
		FinalizeAttempts:   usecase.DefaultFinalizeMaxAttempts,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := h.transferRepo.Create(ctx, exhausted); err != nil {
		t.Fatalf("create: %v", err)
	}

	report, err := newRecovery(h, time.Hour).RunOnce(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report != (usecase.RecoveryReport{}) {
		t.Errorf("expected nothing to be attempted, got %+v", report)
	}

	stored, err := h.transferRepo.GetByID(ctx, exhausted.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.FinalizeAttempts != usecase.DefaultFinalizeMaxAttempts || stored.Version != exhausted.Version {
		t.Errorf("exhausted transfer must be left alone, got %+v", stored)
	}
}

func TestRecovery_ResumesStaleTransfers(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sender := h.openAccount(t, 100)
	recipient := h.openAccount(t, 0)

	var ids []string
	for _, amount := range []int64{40, 500} {
		queued, err := h.transfers.Submit(ctx, usecase.InitiateTransferInput{
			SenderAccountID:    sender,
			RecipientAccountID: recipient,
			Amount:             decimal.NewFromInt(amount),
		})
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		ids = append(ids, queued.ID)
	}

	recovery := newRecovery(h, time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	report, err := recovery.RunOnce(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	// A resumed saga that ends FAILED has still been recovered.
	if report.Resumed != 2 || report.Failed != 0 {
		t.Errorf("expected 2 resumed transfers, got %+v", report)
	}

	first, err := h.transferRepo.GetByID(ctx, ids[0])
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	second, err := h.transferRepo.GetByID(ctx, ids[1])
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if first.State != domain.SagaStateCompleted || second.State != domain.SagaStateFailed {
		t.Errorf("expected COMPLETED and FAILED, got %s and %s", first.State, second.State)
	}
	requireBalance(t, h, recipient, 40)

	report, err = recovery.RunOnce(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report != (usecase.RecoveryReport{}) {
		t.Errorf("finished transfers must not be picked up again, got %+v", report)
	}
}

func TestRecovery_StartStopsOnCancel(t *testing.T) {
	h := newHarness(t)
	recovery := usecase.NewRecoveryUseCase(usecase.RecoveryConfig{
		TransferRepo: h.transferRepo,
		Transfers:    h.transfers,
		Logger:       zerolog.Nop(),
		Interval:     time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- recovery.Start(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("recovery did not stop")
	}
}
