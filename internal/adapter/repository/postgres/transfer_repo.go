package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/iho/fundscore/internal/domain"
	"github.com/iho/fundscore/internal/usecase"
)

const transferColumns = `id, reference, client_reference, sender_account_id, recipient_account_id,
	amount, currency, type, status, state, fee, total_amount, transaction_id, description, user_id,
	failure_reason, failure_code, compensated, compensation_pending, finalize_pending, debit_in_doubt,
	credit_in_doubt, finalize_attempts, retry_of, version, created_at, updated_at, completed_at`

const createTransfer = `INSERT INTO transfers (` + transferColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20,
	$21, $22, $23, $24, $25, $26, $27, $28)`

// updateTransfer bumps the version only when the caller holds the current
// one.
const updateTransfer = `UPDATE transfers SET
	sender_account_id = $3, recipient_account_id = $4, currency = $5, status = $6, state = $7,
	fee = $8, total_amount = $9, transaction_id = $10, failure_reason = $11, failure_code = $12,
	compensated = $13, compensation_pending = $14, finalize_pending = $15, debit_in_doubt = $16,
	credit_in_doubt = $17, finalize_attempts = $18, updated_at = $19, completed_at = $20, version = version + 1
WHERE id = $1 AND version = $2`

const transferExists = `SELECT EXISTS (SELECT 1 FROM transfers WHERE id = $1)`

const getTransferByID = `SELECT ` + transferColumns + ` FROM transfers WHERE id = $1`

const getTransferByReference = `SELECT ` + transferColumns + ` FROM transfers WHERE reference = $1`

const getTransferByClientReference = `SELECT ` + transferColumns + ` FROM transfers WHERE client_reference = $1`

const listTransfersByAccount = `SELECT ` + transferColumns + ` FROM transfers
WHERE ($2 IN ('all', 'sent') AND sender_account_id = $1)
   OR ($2 IN ('all', 'received') AND recipient_account_id = $1)
ORDER BY created_at DESC, id DESC LIMIT $3 OFFSET $4`

const listTransfersNeedingRecovery = `SELECT ` + transferColumns + ` FROM transfers
WHERE finalize_pending OR compensation_pending OR debit_in_doubt OR credit_in_doubt
ORDER BY created_at, id LIMIT $1`

const listStaleTransfers = `SELECT ` + transferColumns + ` FROM transfers
WHERE state NOT IN ('COMPLETED', 'FAILED', 'CANCELLED') AND updated_at < $1
ORDER BY created_at, id LIMIT $2`

const transferStats = `SELECT
	COUNT(*) FILTER (WHERE sender_account_id = $1),
	COUNT(*) FILTER (WHERE recipient_account_id = $1),
	COUNT(*) FILTER (WHERE status = 'COMPLETED'),
	COUNT(*) FILTER (WHERE status = 'FAILED'),
	COUNT(*) FILTER (WHERE status IN ('PENDING', 'PROCESSING')),
	COUNT(*) FILTER (WHERE status = 'CANCELLED'),
	COALESCE(SUM(amount) FILTER (WHERE status = 'COMPLETED' AND sender_account_id = $1), 0),
	COALESCE(SUM(amount) FILTER (WHERE status = 'COMPLETED' AND recipient_account_id = $1), 0),
	COALESCE(SUM(fee) FILTER (WHERE status = 'COMPLETED' AND sender_account_id = $1), 0)
FROM transfers
WHERE sender_account_id = $1 OR recipient_account_id = $1`

// TransferRepository implements usecase.TransferRepository.
type TransferRepository struct {
	db DBTX
}

var _ usecase.TransferRepository = (*TransferRepository)(nil)

// NewTransferRepository creates a new TransferRepository.
func NewTransferRepository(db DBTX) *TransferRepository {
	return &TransferRepository{db: db}
}

// Create inserts a transfer. A taken reference or client reference is
// domain.ErrDuplicateReference.
func (r *TransferRepository) Create(ctx context.Context, t *domain.Transfer) error {
	_, err := r.db.Exec(ctx, createTransfer,
		t.ID,
		t.Reference,
		optionalText(t.ClientReference),
		t.SenderAccountID,
		t.RecipientAccountID,
		decimalToNumeric(t.Amount),
		t.Currency,
		string(t.Type),
		string(t.Status),
		string(t.State),
		decimalToNumeric(t.Fee),
		decimalToNumeric(t.TotalAmount),
		optionalText(t.TransactionID),
		t.Description,
		t.UserID,
		t.FailureReason,
		t.FailureCode,
		t.Compensated,
		t.CompensationPending,
		t.FinalizePending,
		t.DebitInDoubt,
		t.CreditInDoubt,
		t.FinalizeAttempts,
		optionalText(t.RetryOf),
		t.Version,
		timeToPgTimestamptz(t.CreatedAt),
		timeToPgTimestamptz(t.UpdatedAt),
		optionalTimestamptz(t.CompletedAt),
	)
	if isUniqueViolation(err) {
		return domain.ErrDuplicateReference
	}
	return err
}

// Update writes the transfer under optimistic versioning.
func (r *TransferRepository) Update(ctx context.Context, t *domain.Transfer) error {
	tag, err := r.db.Exec(ctx, updateTransfer,
		t.ID,
		t.Version,
		t.SenderAccountID,
		t.RecipientAccountID,
		t.Currency,
		string(t.Status),
		string(t.State),
		decimalToNumeric(t.Fee),
		decimalToNumeric(t.TotalAmount),
		optionalText(t.TransactionID),
		t.FailureReason,
		t.FailureCode,
		t.Compensated,
		t.CompensationPending,
		t.FinalizePending,
		t.DebitInDoubt,
		t.CreditInDoubt,
		t.FinalizeAttempts,
		timeToPgTimestamptz(t.UpdatedAt),
		optionalTimestamptz(t.CompletedAt),
	)
	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.db.QueryRow(ctx, transferExists, t.ID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return domain.ErrTransferNotFound
		}
		return domain.ErrConcurrentModification
	}

	t.Version++
	return nil
}

// GetByID retrieves a transfer by ID.
func (r *TransferRepository) GetByID(ctx context.Context, id string) (*domain.Transfer, error) {
	return scanTransfer(r.db.QueryRow(ctx, getTransferByID, id))
}

// GetByReference retrieves a transfer by reference.
func (r *TransferRepository) GetByReference(ctx context.Context, reference string) (*domain.Transfer, error) {
	return scanTransfer(r.db.QueryRow(ctx, getTransferByReference, reference))
}

// GetByClientReference retrieves a transfer by the caller's idempotency key.
func (r *TransferRepository) GetByClientReference(ctx context.Context, clientReference string) (*domain.Transfer, error) {
	return scanTransfer(r.db.QueryRow(ctx, getTransferByClientReference, clientReference))
}

// ListByAccount lists an account's transfers, newest first.
func (r *TransferRepository) ListByAccount(ctx context.Context, accountID string, direction usecase.TransferDirection, limit, offset int) ([]*domain.Transfer, error) {
	if direction == "" {
		direction = usecase.TransferDirectionAll
	}
	return r.list(ctx, listTransfersByAccount, accountID, string(direction), limitArg(limit), offset)
}

// ListNeedingRecovery lists transfers with pending background work, oldest
// first.
func (r *TransferRepository) ListNeedingRecovery(ctx context.Context, limit int) ([]*domain.Transfer, error) {
	return r.list(ctx, listTransfersNeedingRecovery, limitArg(limit))
}

// ListStale lists non-terminal transfers last updated before the cutoff.
func (r *TransferRepository) ListStale(ctx context.Context, before time.Time, limit int) ([]*domain.Transfer, error) {
	return r.list(ctx, listStaleTransfers, timeToPgTimestamptz(before), limitArg(limit))
}

// Stats aggregates an account's transfers.
func (r *TransferRepository) Stats(ctx context.Context, accountID string) (*domain.TransferStats, error) {
	stats := &domain.TransferStats{AccountID: accountID}
	var amountSent, received, fees pgtype.Numeric

	err := r.db.QueryRow(ctx, transferStats, accountID).Scan(
		&stats.TotalSent,
		&stats.TotalReceived,
		&stats.Completed,
		&stats.Failed,
		&stats.Pending,
		&stats.Cancelled,
		&amountSent,
		&received,
		&fees,
	)
	if err != nil {
		return nil, err
	}

	stats.AmountSent = numericToDecimal(amountSent)
	stats.AmountReceived = numericToDecimal(received)
	stats.FeesPaid = numericToDecimal(fees)

	return stats, nil
}

func (r *TransferRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Transfer, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transfers []*domain.Transfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		transfers = append(transfers, t)
	}

	return transfers, rows.Err()
}

func scanTransfer(row rowScanner) (*domain.Transfer, error) {
	var (
		t                                 domain.Transfer
		clientRef, transactionID, retry   pgtype.Text
		amount, fee, total                pgtype.Numeric
		transferType, status, state       string
		createdAt, updatedAt, completedAt pgtype.Timestamptz
	)

	err := row.Scan(
		&t.ID,
		&t.Reference,
		&clientRef,
		&t.SenderAccountID,
		&t.RecipientAccountID,
		&amount,
		&t.Currency,
		&transferType,
		&status,
		&state,
		&fee,
		&total,
		&transactionID,
		&t.Description,
		&t.UserID,
		&t.FailureReason,
		&t.FailureCode,
		&t.Compensated,
		&t.CompensationPending,
		&t.FinalizePending,
		&t.DebitInDoubt,
		&t.CreditInDoubt,
		&t.FinalizeAttempts,
		&retry,
		&t.Version,
		&createdAt,
		&updatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, mapNotFound(err, domain.ErrTransferNotFound)
	}

	t.ClientReference = textPtr(clientRef)
	t.TransactionID = textPtr(transactionID)
	t.RetryOf = textPtr(retry)
	t.Amount = numericToDecimal(amount)
	t.Fee = numericToDecimal(fee)
	t.TotalAmount = numericToDecimal(total)
	t.Type = domain.TransferType(transferType)
	t.Status = domain.TransferStatus(status)
	t.State = domain.SagaState(state)
	t.CreatedAt = createdAt.Time
	t.UpdatedAt = updatedAt.Time
	t.CompletedAt = timestamptzPtr(completedAt)

	return &t, nil
}
