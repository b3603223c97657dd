// Package memory implements the repositories in process memory. It keeps the
// transactional semantics of the postgres adapter: writes staged in a
// transaction become visible on Commit, and rows read for update stay locked
// until the transaction ends.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/iho/fundscore/internal/domain"
	"github.com/iho/fundscore/internal/usecase"
)

// ErrTxDone is returned when a finished transaction is used again.
var ErrTxDone = errors.New("memory: transaction already committed or rolled back")

// ErrForeignTx is returned when a repository receives a transaction that
// was not started by this package.
var ErrForeignTx = errors.New("memory: transaction was not begun by a memory TxManager")

type movementKey struct {
	accountID string
	reference string
	direction domain.MovementDirection
}

// Store holds all records.
type Store struct {
	mu sync.RWMutex

	accounts       map[string]*domain.Account
	accountNumbers map[string]string
	movements      map[movementKey]*domain.Movement
	transactions   map[string]*domain.Transaction
	txReferences   map[string]string
	transfers      map[string]*domain.Transfer
	transferRefs   map[string]string
	clientRefs     map[string]string
	outbox         []*domain.OutboxEvent

	locksMu sync.Mutex
	locks   map[string]chan struct{}
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		accounts:       make(map[string]*domain.Account),
		accountNumbers: make(map[string]string),
		movements:      make(map[movementKey]*domain.Movement),
		transactions:   make(map[string]*domain.Transaction),
		txReferences:   make(map[string]string),
		transfers:      make(map[string]*domain.Transfer),
		transferRefs:   make(map[string]string),
		clientRefs:     make(map[string]string),
		locks:          make(map[string]chan struct{}),
	}
}

func (s *Store) rowLock(key string) chan struct{} {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	lock, ok := s.locks[key]
	if !ok {
		lock = make(chan struct{}, 1)
		s.locks[key] = lock
	}
	return lock
}

// TxManager implements usecase.TransactionManager.
type TxManager struct {
	store *Store
}

// NewTxManager creates a new TxManager.
func NewTxManager(store *Store) *TxManager {
	return &TxManager{store: store}
}

// Begin starts a new transaction.
func (m *TxManager) Begin(ctx context.Context) (usecase.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Tx{store: m.store, held: make(map[string]chan struct{})}, nil
}

type op struct {
	// check runs under the store write lock before any op is applied.
	check func() error
	apply func()
}

// Tx stages writes until Commit.
type Tx struct {
	store *Store
	mu    sync.Mutex
	ops   []op
	held  map[string]chan struct{}
	done  bool
}

// lock takes the row lock for key until the transaction ends.
func (t *Tx) lock(ctx context.Context, key string) error {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return ErrTxDone
	}
	if _, ok := t.held[key]; ok {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	lock := t.store.rowLock(key)
	select {
	case lock <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.held[key] = lock
	return nil
}

func (t *Tx) stage(o op) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return ErrTxDone
	}
	t.ops = append(t.ops, o)
	return nil
}

// Commit applies staged writes atomically. If any check fails nothing is
// applied.
func (t *Tx) Commit(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return ErrTxDone
	}
	defer t.finish()

	if err := ctx.Err(); err != nil {
		return err
	}

	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	for _, o := range t.ops {
		if o.check == nil {
			continue
		}
		if err := o.check(); err != nil {
			return err
		}
	}
	for _, o := range t.ops {
		o.apply()
	}
	return nil
}

// Rollback discards staged writes. It is a no-op after Commit.
func (t *Tx) Rollback(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return nil
	}
	t.finish()
	return nil
}

// finish releases row locks. Callers hold t.mu.
func (t *Tx) finish() {
	t.done = true
	t.ops = nil
	for key, lock := range t.held {
		<-lock
		delete(t.held, key)
	}
}

func asTx(tx usecase.Transaction) (*Tx, error) {
	t, ok := tx.(*Tx)
	if !ok || t == nil {
		return nil, ErrForeignTx
	}
	return t, nil
}

func cloneAccount(a *domain.Account) *domain.Account {
	c := *a
	return &c
}

func cloneMovement(m *domain.Movement) *domain.Movement {
	c := *m
	return &c
}

func cloneTransaction(t *domain.Transaction) *domain.Transaction {
	c := *t
	return &c
}

func cloneTransfer(t *domain.Transfer) *domain.Transfer {
	c := *t
	return &c
}

func cloneEvent(e *domain.OutboxEvent) *domain.OutboxEvent {
	c := *e
	return &c
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if limit <= 0 || end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
