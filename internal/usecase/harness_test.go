package usecase_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/fundscore/internal/adapter/gateway"
	"github.com/iho/fundscore/internal/adapter/repository/memory"
	"github.com/iho/fundscore/internal/domain"
	"github.com/iho/fundscore/internal/infrastructure/metrics"
	"github.com/iho/fundscore/internal/usecase"
	"github.com/iho/fundscore/internal/usecase/mocks"
)

func fastRetry() usecase.RetryPolicy {
	return usecase.RetryPolicy{
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		Multiplier:      2,
		MaxRetries:      2,
	}
}

// harness wires the three components over one memory store, the way the
// server does with STORAGE_DRIVER=memory and SERVICE_ROLE=all.
type harness struct {
	store        *memory.Store
	txManager    *memory.TxManager
	accountRepo  *memory.AccountRepository
	txRepo       *memory.TransactionRepository
	transferRepo *memory.TransferRepository
	outbox       *memory.OutboxRepository
	cache        *mocks.MockCache
	metrics      *metrics.Metrics

	accounts  *usecase.AccountUseCase
	ledger    *usecase.TransactionUseCase
	gateway   *gateway.LocalAccountGateway
	transfers *usecase.TransferUseCase
}

func newHarness(t *testing.T, opts ...func(*usecase.TransferUseCaseConfig)) *harness {
	t.Helper()

	store := memory.NewStore()
	h := &harness{
		store:        store,
		txManager:    memory.NewTxManager(store),
		accountRepo:  memory.NewAccountRepository(store),
		txRepo:       memory.NewTransactionRepository(store),
		transferRepo: memory.NewTransferRepository(store),
		outbox:       memory.NewOutboxRepository(store),
		cache:        mocks.NewMockCache(),
		metrics:      metrics.NewWith(prometheus.NewRegistry()),
	}
	idGen := mocks.NewMockIDGenerator()

	h.accounts = usecase.NewAccountUseCase(usecase.AccountUseCaseConfig{
		TxManager:    h.txManager,
		AccountRepo:  h.accountRepo,
		MovementRepo: memory.NewMovementRepository(store),
		OutboxRepo:   h.outbox,
		IDGen:        idGen,
		Logger:       zerolog.Nop(),
		Metrics:      h.metrics,
	})
	h.ledger = usecase.NewTransactionUseCase(usecase.TransactionUseCaseConfig{
		TxManager:  h.txManager,
		TxRepo:     h.txRepo,
		OutboxRepo: h.outbox,
		IDGen:      idGen,
		Logger:     zerolog.Nop(),
		Metrics:    h.metrics,
	})
	h.gateway = gateway.NewLocalAccountGateway(h.accounts, time.Second, zerolog.Nop())

	cfg := usecase.TransferUseCaseConfig{
		TransferRepo: h.transferRepo,
		Accounts:     h.gateway,
		Ledger:       h.ledger,
		TxManager:    h.txManager,
		OutboxRepo:   h.outbox,
		Cache:        h.cache,
		IDGen:        idGen,
		Retry:        fastRetry(),
		Logger:       zerolog.Nop(),
		Metrics:      h.metrics,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	h.transfers = usecase.NewTransferUseCase(cfg)

	return h
}

// openAccount opens and activates an account funded with balance.
func (h *harness) openAccount(t *testing.T, balance int64) string {
	t.Helper()
	ctx := context.Background()

	account, err := h.accounts.Open(ctx, usecase.OpenAccountInput{
		UserID: "user-1",
		Type:   domain.AccountTypeSavings,
		Name:   "Main",
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := h.accounts.Activate(ctx, account.ID); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if balance > 0 {
		if _, err := h.accounts.Credit(ctx, usecase.MovementInput{
			AccountID: account.ID,
			Amount:    decimal.NewFromInt(balance),
			Reference: "seed-" + account.ID,
		}); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	return account.ID
}

func (h *harness) balance(t *testing.T, id string) decimal.Decimal {
	t.Helper()
	account, err := h.accounts.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	return account.Balance
}

func (h *harness) transaction(t *testing.T, reference string) *domain.Transaction {
	t.Helper()
	record, err := h.ledger.GetByReference(context.Background(), reference)
	if err != nil {
		t.Fatalf("get transaction %s: %v", reference, err)
	}
	return record
}

func requireBalance(t *testing.T, h *harness, id string, want int64) {
	t.Helper()
	if got := h.balance(t, id); !got.Equal(decimal.NewFromInt(want)) {
		t.Fatalf("account %s: expected balance %d, got %s", id, want, got)
	}
}
