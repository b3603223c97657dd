package memory

import (
	"context"

	"github.com/iho/fundscore/internal/domain"
	"github.com/iho/fundscore/internal/usecase"
)

// MovementRepository implements usecase.MovementRepository.
type MovementRepository struct {
	store *Store
}

// NewMovementRepository creates a new MovementRepository.
func NewMovementRepository(store *Store) *MovementRepository {
	return &MovementRepository{store: store}
}

var _ usecase.MovementRepository = (*MovementRepository)(nil)

// Create stages a movement. The (account, reference, direction) key is
// unique.
func (r *MovementRepository) Create(_ context.Context, tx usecase.Transaction, movement *domain.Movement) error {
	t, err := asTx(tx)
	if err != nil {
		return err
	}

	row := cloneMovement(movement)
	key := movementKey{accountID: row.AccountID, reference: row.Reference, direction: row.Direction}
	return t.stage(op{
		check: func() error {
			if _, ok := r.store.movements[key]; ok {
				return domain.ErrDuplicateReference
			}
			return nil
		},
		apply: func() {
			r.store.movements[key] = row
		},
	})
}

// GetByReference returns the committed movement for the key.
func (r *MovementRepository) GetByReference(_ context.Context, _ usecase.Transaction, accountID, reference string, direction domain.MovementDirection) (*domain.Movement, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	m, ok := r.store.movements[movementKey{accountID: accountID, reference: reference, direction: direction}]
	if !ok {
		return nil, domain.ErrMovementNotFound
	}
	return cloneMovement(m), nil
}
