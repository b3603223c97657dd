package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/iho/fundscore/internal/domain"
	"github.com/iho/fundscore/internal/usecase"
)

const accountColumns = `id, account_number, user_id, type, name, currency, status,
	balance, available_balance, minimum_balance, daily_limit, monthly_limit, version,
	last_transaction_at, activated_at, closed_at, created_at, updated_at`

const createAccount = `INSERT INTO accounts (` + accountColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`

const getAccountByID = `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`

const getAccountByNumber = `SELECT ` + accountColumns + ` FROM accounts WHERE account_number = $1`

const getAccountByIDForUpdate = `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1 FOR UPDATE`

const updateAccount = `UPDATE accounts SET
	status = $2, balance = $3, available_balance = $4, version = $5,
	last_transaction_at = $6, activated_at = $7, closed_at = $8, updated_at = $9
WHERE id = $1`

const accountNumberExists = `SELECT EXISTS (SELECT 1 FROM accounts WHERE account_number = $1)`

const listAccounts = `SELECT ` + accountColumns + ` FROM accounts
ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`

// AccountRepository implements usecase.AccountRepository.
type AccountRepository struct {
	db DBTX
}

var _ usecase.AccountRepository = (*AccountRepository)(nil)

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(db DBTX) *AccountRepository {
	return &AccountRepository{db: db}
}

// Create inserts an account. A taken account number is
// domain.ErrDuplicateReference.
func (r *AccountRepository) Create(ctx context.Context, tx usecase.Transaction, account *domain.Account) error {
	db, err := conn(r.db, tx)
	if err != nil {
		return err
	}

	_, err = db.Exec(ctx, createAccount,
		account.ID,
		account.AccountNumber,
		account.UserID,
		string(account.Type),
		account.Name,
		account.Currency,
		string(account.Status),
		decimalToNumeric(account.Balance),
		decimalToNumeric(account.AvailableBalance),
		decimalToNumeric(account.MinimumBalance),
		decimalToNumeric(account.DailyLimit),
		decimalToNumeric(account.MonthlyLimit),
		account.Version,
		optionalTimestamptz(account.LastTransactionAt),
		optionalTimestamptz(account.ActivatedAt),
		optionalTimestamptz(account.ClosedAt),
		timeToPgTimestamptz(account.CreatedAt),
		timeToPgTimestamptz(account.UpdatedAt),
	)
	if isUniqueViolation(err) {
		return domain.ErrDuplicateReference
	}
	return err
}

// GetByID retrieves an account by ID.
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	return scanAccount(r.db.QueryRow(ctx, getAccountByID, id))
}

// GetByNumber retrieves an account by account number.
func (r *AccountRepository) GetByNumber(ctx context.Context, accountNumber string) (*domain.Account, error) {
	return scanAccount(r.db.QueryRow(ctx, getAccountByNumber, accountNumber))
}

// GetByIDForUpdate retrieves an account by ID with a FOR UPDATE lock.
func (r *AccountRepository) GetByIDForUpdate(ctx context.Context, tx usecase.Transaction, id string) (*domain.Account, error) {
	db, err := conn(r.db, tx)
	if err != nil {
		return nil, err
	}
	return scanAccount(db.QueryRow(ctx, getAccountByIDForUpdate, id))
}

// Update writes the mutable state of a locked account.
func (r *AccountRepository) Update(ctx context.Context, tx usecase.Transaction, account *domain.Account) error {
	db, err := conn(r.db, tx)
	if err != nil {
		return err
	}

	tag, err := db.Exec(ctx, updateAccount,
		account.ID,
		string(account.Status),
		decimalToNumeric(account.Balance),
		decimalToNumeric(account.AvailableBalance),
		account.Version,
		optionalTimestamptz(account.LastTransactionAt),
		optionalTimestamptz(account.ActivatedAt),
		optionalTimestamptz(account.ClosedAt),
		timeToPgTimestamptz(account.UpdatedAt),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

// ExistsByNumber reports whether an account number is taken.
func (r *AccountRepository) ExistsByNumber(ctx context.Context, accountNumber string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, accountNumberExists, accountNumber).Scan(&exists)
	return exists, err
}

// List lists accounts, newest first.
func (r *AccountRepository) List(ctx context.Context, limit, offset int) ([]*domain.Account, error) {
	rows, err := r.db.Query(ctx, listAccounts, limitArg(limit), offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []*domain.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}

	return accounts, rows.Err()
}

func scanAccount(row rowScanner) (*domain.Account, error) {
	var (
		a                                       domain.Account
		accountType, status                     string
		balance, available, minimum, daily, mon pgtype.Numeric
		lastTx, activated, closed               pgtype.Timestamptz
		createdAt, updatedAt                    pgtype.Timestamptz
	)

	err := row.Scan(
		&a.ID,
		&a.AccountNumber,
		&a.UserID,
		&accountType,
		&a.Name,
		&a.Currency,
		&status,
		&balance,
		&available,
		&minimum,
		&daily,
		&mon,
		&a.Version,
		&lastTx,
		&activated,
		&closed,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, mapNotFound(err, domain.ErrAccountNotFound)
	}

	a.Type = domain.AccountType(accountType)
	a.Status = domain.AccountStatus(status)
	a.Balance = numericToDecimal(balance)
	a.AvailableBalance = numericToDecimal(available)
	a.MinimumBalance = numericToDecimal(minimum)
	a.DailyLimit = numericToDecimal(daily)
	a.MonthlyLimit = numericToDecimal(mon)
	a.LastTransactionAt = timestamptzPtr(lastTx)
	a.ActivatedAt = timestamptzPtr(activated)
	a.ClosedAt = timestamptzPtr(closed)
	a.CreatedAt = createdAt.Time
	a.UpdatedAt = updatedAt.Time

	return &a, nil
}
