package usecase

import "time"

const (
	// DefaultTransactionTimeout is the maximum duration for a database transaction
	// This prevents long-running transactions from blocking tables
	DefaultTransactionTimeout = 10 * time.Second

	// MaxTransferAmount is the default maximum amount for a single transfer (in decimal string)
	MaxTransferAmount = "1000000"

	// IdempotencyKeyTTL is how long idempotency keys are cached
	IdempotencyKeyTTL = 24 * time.Hour

	// MaxReferenceAttempts bounds reference number regeneration on collision.
	MaxReferenceAttempts = 10

	// MaxAccountNumberAttempts bounds account number regeneration on collision.
	MaxAccountNumberAttempts = 100

	// ReversalSuffix is appended to a transfer reference for compensating credits.
	ReversalSuffix = "-reversal"

	// DefaultFinalizeMaxAttempts bounds asynchronous finalize retries per transfer.
	DefaultFinalizeMaxAttempts = 10

	// DefaultTransferWorkers is the size of the worker pool for submitted transfers.
	DefaultTransferWorkers = 4

	// DefaultTransferQueueSize is how many submitted transfers may wait for a worker.
	DefaultTransferQueueSize = 256

	// TerminalTransferCacheTTL is how long finished transfers stay cached.
	TerminalTransferCacheTTL = 10 * time.Minute
)
