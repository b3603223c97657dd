package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/iho/fundscore/internal/domain"
	"github.com/iho/fundscore/internal/usecase"
)

const transactionColumns = `id, reference_number, source_account_id, destination_account_id,
	amount, fee, total, type, status, description, user_id, created_at, updated_at, processed_at`

const createTransaction = `INSERT INTO transactions (` + transactionColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

const getTransactionByID = `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`

const getTransactionByIDForUpdate = `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1 FOR UPDATE`

const getTransactionByReference = `SELECT ` + transactionColumns + ` FROM transactions WHERE reference_number = $1`

const referenceExists = `SELECT EXISTS (SELECT 1 FROM transactions WHERE reference_number = $1)`

const updateTransactionStatus = `UPDATE transactions SET status = $2, updated_at = $3, processed_at = $4 WHERE id = $1`

const listTransactionsByAccount = `SELECT ` + transactionColumns + ` FROM transactions
WHERE source_account_id = $1 OR destination_account_id = $1
ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`

const sumCompleted = `SELECT
	COALESCE(SUM(amount) FILTER (WHERE destination_account_id = $1), 0),
	COALESCE(SUM(total) FILTER (WHERE source_account_id = $1), 0)
FROM transactions
WHERE status = 'COMPLETED' AND (source_account_id = $1 OR destination_account_id = $1)`

// TransactionRepository implements usecase.TransactionRepository.
type TransactionRepository struct {
	db DBTX
}

var _ usecase.TransactionRepository = (*TransactionRepository)(nil)

// NewTransactionRepository creates a new TransactionRepository.
func NewTransactionRepository(db DBTX) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Create inserts a transaction. The unique index on reference_number is
// what keeps two attempts of one transfer from writing two records.
func (r *TransactionRepository) Create(ctx context.Context, tx usecase.Transaction, t *domain.Transaction) error {
	db, err := conn(r.db, tx)
	if err != nil {
		return err
	}

	_, err = db.Exec(ctx, createTransaction,
		t.ID,
		t.ReferenceNumber,
		t.SourceAccountID,
		optionalText(t.DestinationAccountID),
		decimalToNumeric(t.Amount),
		decimalToNumeric(t.Fee),
		decimalToNumeric(t.Total),
		string(t.Type),
		string(t.Status),
		t.Description,
		t.UserID,
		timeToPgTimestamptz(t.CreatedAt),
		timeToPgTimestamptz(t.UpdatedAt),
		optionalTimestamptz(t.ProcessedAt),
	)
	if isUniqueViolation(err) {
		return domain.ErrDuplicateReference
	}
	return err
}

// GetByID retrieves a transaction by ID.
func (r *TransactionRepository) GetByID(ctx context.Context, id string) (*domain.Transaction, error) {
	return scanTransaction(r.db.QueryRow(ctx, getTransactionByID, id))
}

// GetByIDForUpdate retrieves a transaction by ID with a FOR UPDATE lock.
func (r *TransactionRepository) GetByIDForUpdate(ctx context.Context, tx usecase.Transaction, id string) (*domain.Transaction, error) {
	db, err := conn(r.db, tx)
	if err != nil {
		return nil, err
	}
	return scanTransaction(db.QueryRow(ctx, getTransactionByIDForUpdate, id))
}

// GetByReference retrieves a transaction by reference number.
func (r *TransactionRepository) GetByReference(ctx context.Context, reference string) (*domain.Transaction, error) {
	return scanTransaction(r.db.QueryRow(ctx, getTransactionByReference, reference))
}

// ExistsByReference reports whether a reference number is taken.
func (r *TransactionRepository) ExistsByReference(ctx context.Context, reference string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, referenceExists, reference).Scan(&exists)
	return exists, err
}

// UpdateStatus writes the status and timestamps of a locked transaction.
func (r *TransactionRepository) UpdateStatus(ctx context.Context, tx usecase.Transaction, t *domain.Transaction) error {
	db, err := conn(r.db, tx)
	if err != nil {
		return err
	}

	tag, err := db.Exec(ctx, updateTransactionStatus,
		t.ID,
		string(t.Status),
		timeToPgTimestamptz(t.UpdatedAt),
		optionalTimestamptz(t.ProcessedAt),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTransactionNotFound
	}
	return nil
}

// ListByAccount lists transactions touching an account, newest first.
func (r *TransactionRepository) ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]*domain.Transaction, error) {
	rows, err := r.db.Query(ctx, listTransactionsByAccount, accountID, limitArg(limit), offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}

	return result, rows.Err()
}

// SumCompleted sums completed inflows by amount and outflows by total.
func (r *TransactionRepository) SumCompleted(ctx context.Context, accountID string) (decimal.Decimal, decimal.Decimal, error) {
	var inflow, outflow pgtype.Numeric
	if err := r.db.QueryRow(ctx, sumCompleted, accountID).Scan(&inflow, &outflow); err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return numericToDecimal(inflow), numericToDecimal(outflow), nil
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var (
		t                    domain.Transaction
		destination          pgtype.Text
		amount, fee, total   pgtype.Numeric
		txType, status       string
		createdAt, updatedAt pgtype.Timestamptz
		processedAt          pgtype.Timestamptz
	)

	err := row.Scan(
		&t.ID,
		&t.ReferenceNumber,
		&t.SourceAccountID,
		&destination,
		&amount,
		&fee,
		&total,
		&txType,
		&status,
		&t.Description,
		&t.UserID,
		&createdAt,
		&updatedAt,
		&processedAt,
	)
	if err != nil {
		return nil, mapNotFound(err, domain.ErrTransactionNotFound)
	}

	t.DestinationAccountID = textPtr(destination)
	t.Amount = numericToDecimal(amount)
	t.Fee = numericToDecimal(fee)
	t.Total = numericToDecimal(total)
	t.Type = domain.TransactionType(txType)
	t.Status = domain.TransactionStatus(status)
	t.CreatedAt = createdAt.Time
	t.UpdatedAt = updatedAt.Time
	t.ProcessedAt = timestamptzPtr(processedAt)

	return &t, nil
}
