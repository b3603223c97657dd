package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/iho/fundscore/internal/domain"
	"github.com/iho/fundscore/internal/usecase"
)

const createMovement = `INSERT INTO movements (id, account_id, reference, direction, amount, balance_after, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

const getMovementByReference = `SELECT id, account_id, reference, direction, amount, balance_after, created_at
FROM movements WHERE account_id = $1 AND reference = $2 AND direction = $3`

// MovementRepository implements usecase.MovementRepository.
type MovementRepository struct {
	db DBTX
}

var _ usecase.MovementRepository = (*MovementRepository)(nil)

// NewMovementRepository creates a new MovementRepository.
func NewMovementRepository(db DBTX) *MovementRepository {
	return &MovementRepository{db: db}
}

// Create inserts a movement. The (account_id, reference, direction) index
// turns a concurrent replay into domain.ErrDuplicateReference.
func (r *MovementRepository) Create(ctx context.Context, tx usecase.Transaction, movement *domain.Movement) error {
	db, err := conn(r.db, tx)
	if err != nil {
		return err
	}

	_, err = db.Exec(ctx, createMovement,
		movement.ID,
		movement.AccountID,
		movement.Reference,
		string(movement.Direction),
		decimalToNumeric(movement.Amount),
		decimalToNumeric(movement.BalanceAfter),
		timeToPgTimestamptz(movement.CreatedAt),
	)
	if isUniqueViolation(err) {
		return domain.ErrDuplicateReference
	}
	return err
}

// GetByReference looks a movement up by its idempotency key.
func (r *MovementRepository) GetByReference(ctx context.Context, tx usecase.Transaction, accountID, reference string, direction domain.MovementDirection) (*domain.Movement, error) {
	db, err := conn(r.db, tx)
	if err != nil {
		return nil, err
	}

	var (
		m                    domain.Movement
		dir                  string
		amount, balanceAfter pgtype.Numeric
		createdAt            pgtype.Timestamptz
	)
	err = db.QueryRow(ctx, getMovementByReference, accountID, reference, string(direction)).Scan(
		&m.ID,
		&m.AccountID,
		&m.Reference,
		&dir,
		&amount,
		&balanceAfter,
		&createdAt,
	)
	if err != nil {
		return nil, mapNotFound(err, domain.ErrMovementNotFound)
	}

	m.Direction = domain.MovementDirection(dir)
	m.Amount = numericToDecimal(amount)
	m.BalanceAfter = numericToDecimal(balanceAfter)
	m.CreatedAt = createdAt.Time

	return &m, nil
}
