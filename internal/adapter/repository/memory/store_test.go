package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/fundscore/internal/domain"
	"github.com/iho/fundscore/internal/usecase"
)

func seedAccount(t *testing.T, store *Store, id string, balance int64) {
	t.Helper()
	tx, err := NewTxManager(store).Begin(context.Background())
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	err = NewAccountRepository(store).Create(context.Background(), tx, &domain.Account{
		ID:               id,
		AccountNumber:    "SAV" + id,
		Status:           domain.AccountStatusActive,
		Currency:         "KES",
		Balance:          decimal.NewFromInt(balance),
		AvailableBalance: decimal.NewFromInt(balance),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := tx.Commit(context.Background()); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func TestTxCommitMakesWritesVisible(t *testing.T) {
	store := NewStore()
	repo := NewAccountRepository(store)
	ctx := context.Background()

	tx, _ := NewTxManager(store).Begin(ctx)
	if err := repo.Create(ctx, tx, &domain.Account{ID: "a1", AccountNumber: "SAV1"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := repo.GetByID(ctx, "a1"); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Fatalf("staged account visible before commit: %v", err)
	}

	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if _, err := repo.GetByID(ctx, "a1"); err != nil {
		t.Fatalf("expected account after commit: %v", err)
	}
	if err := tx.Rollback(ctx); err != nil {
		t.Fatalf("rollback after commit should be a no-op: %v", err)
	}
}

func TestTxRollbackDiscardsWrites(t *testing.T) {
	store := NewStore()
	repo := NewAccountRepository(store)
	ctx := context.Background()

	tx, _ := NewTxManager(store).Begin(ctx)
	_ = repo.Create(ctx, tx, &domain.Account{ID: "a1", AccountNumber: "SAV1"})
	if err := tx.Rollback(ctx); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	if _, err := repo.GetByID(ctx, "a1"); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Fatalf("expected not found after rollback, got %v", err)
	}
	if err := tx.Commit(ctx); !errors.Is(err, ErrTxDone) {
		t.Fatalf("expected ErrTxDone, got %v", err)
	}
}

func TestTxCommitIsAllOrNothing(t *testing.T) {
	store := NewStore()
	seedAccount(t, store, "a1", 0)
	repo := NewAccountRepository(store)
	ctx := context.Background()

	tx, _ := NewTxManager(store).Begin(ctx)
	_ = repo.Create(ctx, tx, &domain.Account{ID: "a2", AccountNumber: "SAV2"})
	// Duplicate account number fails the whole commit.
	_ = repo.Create(ctx, tx, &domain.Account{ID: "a3", AccountNumber: "SAVa1"})

	if err := tx.Commit(ctx); !errors.Is(err, domain.ErrDuplicateReference) {
		t.Fatalf("expected ErrDuplicateReference, got %v", err)
	}
	if _, err := repo.GetByID(ctx, "a2"); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Fatalf("partial commit applied: %v", err)
	}
}

func TestGetByIDForUpdateSerializes(t *testing.T) {
	store := NewStore()
	seedAccount(t, store, "a1", 100)
	repo := NewAccountRepository(store)
	manager := NewTxManager(store)
	ctx := context.Background()

	tx1, _ := manager.Begin(ctx)
	if _, err := repo.GetByIDForUpdate(ctx, tx1, "a1"); err != nil {
		t.Fatalf("lock: %v", err)
	}

	tx2, _ := manager.Begin(ctx)
	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if _, err := repo.GetByIDForUpdate(waitCtx, tx2, "a1"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected second lock to wait, got %v", err)
	}

	_ = tx1.Rollback(ctx)

	if _, err := repo.GetByIDForUpdate(ctx, tx2, "a1"); err != nil {
		t.Fatalf("expected lock after release: %v", err)
	}
	_ = tx2.Rollback(ctx)
}

func TestGetByIDForUpdateNotFound(t *testing.T) {
	store := NewStore()
	tx, _ := NewTxManager(store).Begin(context.Background())
	defer func() { _ = tx.Rollback(context.Background()) }()

	if _, err := NewAccountRepository(store).GetByIDForUpdate(context.Background(), tx, "missing"); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestConcurrentLockedIncrements(t *testing.T) {
	store := NewStore()
	seedAccount(t, store, "a1", 0)
	repo := NewAccountRepository(store)
	manager := NewTxManager(store)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tx, _ := manager.Begin(ctx)
			defer func() { _ = tx.Rollback(ctx) }()

			acc, err := repo.GetByIDForUpdate(ctx, tx, "a1")
			if err != nil {
				t.Errorf("lock: %v", err)
				return
			}
			acc.Balance = acc.Balance.Add(decimal.NewFromInt(1))
			_ = repo.Update(ctx, tx, acc)
			if err := tx.Commit(ctx); err != nil {
				t.Errorf("commit: %v", err)
			}
		}()
	}
	wg.Wait()

	acc, _ := repo.GetByID(ctx, "a1")
	if !acc.Balance.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("expected balance 50, got %s", acc.Balance)
	}
}

func TestForeignTransactionRejected(t *testing.T) {
	repo := NewAccountRepository(NewStore())
	err := repo.Create(context.Background(), foreignTx{}, &domain.Account{ID: "a1"})
	if !errors.Is(err, ErrForeignTx) {
		t.Fatalf("expected ErrForeignTx, got %v", err)
	}
}

type foreignTx struct{}

func (foreignTx) Commit(context.Context) error   { return nil }
func (foreignTx) Rollback(context.Context) error { return nil }

var _ usecase.Transaction = foreignTx{}

func TestMovementUniqueKey(t *testing.T) {
	store := NewStore()
	repo := NewMovementRepository(store)
	manager := NewTxManager(store)
	ctx := context.Background()

	m := &domain.Movement{ID: "m1", AccountID: "a1", Reference: "REF1", Direction: domain.MovementDebit, Amount: decimal.NewFromInt(10)}

	tx, _ := manager.Begin(ctx)
	_ = repo.Create(ctx, tx, m)
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	// Same reference, other direction, is a different key.
	tx, _ = manager.Begin(ctx)
	credit := *m
	credit.ID, credit.Direction = "m2", domain.MovementCredit
	_ = repo.Create(ctx, tx, &credit)
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit credit: %v", err)
	}

	tx, _ = manager.Begin(ctx)
	dup := *m
	dup.ID = "m3"
	_ = repo.Create(ctx, tx, &dup)
	if err := tx.Commit(ctx); !errors.Is(err, domain.ErrDuplicateReference) {
		t.Fatalf("expected ErrDuplicateReference, got %v", err)
	}

	got, err := repo.GetByReference(ctx, nil, "a1", "REF1", domain.MovementDebit)
	if err != nil || got.ID != "m1" {
		t.Fatalf("expected m1, got %+v %v", got, err)
	}
	if _, err := repo.GetByReference(ctx, nil, "a1", "REF2", domain.MovementDebit); !errors.Is(err, domain.ErrMovementNotFound) {
		t.Fatalf("expected ErrMovementNotFound, got %v", err)
	}
}
