package usecase

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/fundscore/internal/domain"
)

// AccountRepository defines data access for accounts.
type AccountRepository interface {
	Create(ctx context.Context, tx Transaction, account *domain.Account) error
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	GetByNumber(ctx context.Context, accountNumber string) (*domain.Account, error)
	GetByIDForUpdate(ctx context.Context, tx Transaction, id string) (*domain.Account, error)
	// Update persists balances, status and timestamps of a locked account.
	Update(ctx context.Context, tx Transaction, account *domain.Account) error
	ExistsByNumber(ctx context.Context, accountNumber string) (bool, error)
	List(ctx context.Context, limit, offset int) ([]*domain.Account, error)
}

// MovementRepository defines data access for applied credits and debits.
type MovementRepository interface {
	Create(ctx context.Context, tx Transaction, movement *domain.Movement) error
	// GetByReference returns domain.ErrMovementNotFound when absent. A nil tx
	// reads outside of any transaction.
	GetByReference(ctx context.Context, tx Transaction, accountID, reference string, direction domain.MovementDirection) (*domain.Movement, error)
}

// TransactionRepository defines data access for ledger transactions.
type TransactionRepository interface {
	// Create returns domain.ErrDuplicateReference when the reference number
	// is already taken.
	Create(ctx context.Context, tx Transaction, transaction *domain.Transaction) error
	GetByID(ctx context.Context, id string) (*domain.Transaction, error)
	GetByIDForUpdate(ctx context.Context, tx Transaction, id string) (*domain.Transaction, error)
	GetByReference(ctx context.Context, reference string) (*domain.Transaction, error)
	ExistsByReference(ctx context.Context, reference string) (bool, error)
	UpdateStatus(ctx context.Context, tx Transaction, transaction *domain.Transaction) error
	ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]*domain.Transaction, error)
	// SumCompleted returns completed inflows (amount) and outflows (total)
	// for an account.
	SumCompleted(ctx context.Context, accountID string) (inflow, outflow decimal.Decimal, err error)
}

// TransferDirection filters transfer listings by the account's role.
type TransferDirection string

const (
	TransferDirectionAll      TransferDirection = "all"
	TransferDirectionSent     TransferDirection = "sent"
	TransferDirectionReceived TransferDirection = "received"
)

// TransferRepository defines data access for transfers.
type TransferRepository interface {
	// Create returns domain.ErrDuplicateReference when the reference or
	// client reference is already taken.
	Create(ctx context.Context, transfer *domain.Transfer) error
	// Update persists the transfer if its stored version equals
	// transfer.Version, then increments transfer.Version. Otherwise it
	// returns domain.ErrConcurrentModification.
	Update(ctx context.Context, transfer *domain.Transfer) error
	GetByID(ctx context.Context, id string) (*domain.Transfer, error)
	GetByReference(ctx context.Context, reference string) (*domain.Transfer, error)
	GetByClientReference(ctx context.Context, clientReference string) (*domain.Transfer, error)
	ListByAccount(ctx context.Context, accountID string, direction TransferDirection, limit, offset int) ([]*domain.Transfer, error)
	ListNeedingRecovery(ctx context.Context, limit int) ([]*domain.Transfer, error)
	ListStale(ctx context.Context, before time.Time, limit int) ([]*domain.Transfer, error)
	Stats(ctx context.Context, accountID string) (*domain.TransferStats, error)
}

// OutboxRepository defines data access for outbox events.
type OutboxRepository interface {
	Create(ctx context.Context, tx Transaction, event *domain.OutboxEvent) error
	GetUnpublished(ctx context.Context, limit int) ([]*domain.OutboxEvent, error)
	MarkPublished(ctx context.Context, id string, publishedAt time.Time) error
}

// Transaction represents a database transaction.
type Transaction interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// TransactionManager handles transaction lifecycle.
type TransactionManager interface {
	Begin(ctx context.Context) (Transaction, error)
}

// Retrier re-runs an operation on transient storage errors.
type Retrier interface {
	Retry(ctx context.Context, operation func() error) error
}

// IDGenerator generates unique IDs.
type IDGenerator interface {
	Generate() string
}

// Cache defines caching operations.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// IdempotencyStore handles idempotency key storage.
type IdempotencyStore interface {
	// CheckAndSet atomically checks if key exists, sets if not.
	// Returns (exists, existingValue, error).
	CheckAndSet(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error)
	// Update updates an existing key with the final response.
	Update(ctx context.Context, key string, response []byte, ttl time.Duration) error
	// Release drops a key whose request did not complete.
	Release(ctx context.Context, key string) error
}
