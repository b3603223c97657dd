package memory

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/iho/fundscore/internal/domain"
	"github.com/iho/fundscore/internal/usecase"
)

// TransactionRepository implements usecase.TransactionRepository.
type TransactionRepository struct {
	store *Store
}

// NewTransactionRepository creates a new TransactionRepository.
func NewTransactionRepository(store *Store) *TransactionRepository {
	return &TransactionRepository{store: store}
}

var _ usecase.TransactionRepository = (*TransactionRepository)(nil)

// Create stages a transaction. The reference number is unique.
func (r *TransactionRepository) Create(_ context.Context, tx usecase.Transaction, transaction *domain.Transaction) error {
	t, err := asTx(tx)
	if err != nil {
		return err
	}

	row := cloneTransaction(transaction)
	return t.stage(op{
		check: func() error {
			if _, ok := r.store.txReferences[row.ReferenceNumber]; ok {
				return domain.ErrDuplicateReference
			}
			return nil
		},
		apply: func() {
			r.store.transactions[row.ID] = row
			r.store.txReferences[row.ReferenceNumber] = row.ID
		},
	})
}

// GetByID retrieves a transaction by ID.
func (r *TransactionRepository) GetByID(_ context.Context, id string) (*domain.Transaction, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	t, ok := r.store.transactions[id]
	if !ok {
		return nil, domain.ErrTransactionNotFound
	}
	return cloneTransaction(t), nil
}

// GetByIDForUpdate locks the transaction until tx ends.
func (r *TransactionRepository) GetByIDForUpdate(ctx context.Context, tx usecase.Transaction, id string) (*domain.Transaction, error) {
	t, err := asTx(tx)
	if err != nil {
		return nil, err
	}
	if _, err := r.GetByID(ctx, id); err != nil {
		return nil, err
	}
	if err := t.lock(ctx, "transaction:"+id); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// GetByReference retrieves a transaction by reference number.
func (r *TransactionRepository) GetByReference(ctx context.Context, reference string) (*domain.Transaction, error) {
	r.store.mu.RLock()
	id, ok := r.store.txReferences[reference]
	r.store.mu.RUnlock()
	if !ok {
		return nil, domain.ErrTransactionNotFound
	}
	return r.GetByID(ctx, id)
}

// ExistsByReference reports whether a reference number is taken.
func (r *TransactionRepository) ExistsByReference(_ context.Context, reference string) (bool, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	_, ok := r.store.txReferences[reference]
	return ok, nil
}

// UpdateStatus stages the status and timestamps of a locked transaction.
func (r *TransactionRepository) UpdateStatus(_ context.Context, tx usecase.Transaction, transaction *domain.Transaction) error {
	t, err := asTx(tx)
	if err != nil {
		return err
	}

	id := transaction.ID
	status := transaction.Status
	updatedAt := transaction.UpdatedAt
	processedAt := transaction.ProcessedAt
	return t.stage(op{
		check: func() error {
			if _, ok := r.store.transactions[id]; !ok {
				return domain.ErrTransactionNotFound
			}
			return nil
		},
		apply: func() {
			row := cloneTransaction(r.store.transactions[id])
			row.Status = status
			row.UpdatedAt = updatedAt
			row.ProcessedAt = processedAt
			r.store.transactions[id] = row
		},
	})
}

// ListByAccount lists transactions touching an account, newest first.
func (r *TransactionRepository) ListByAccount(_ context.Context, accountID string, limit, offset int) ([]*domain.Transaction, error) {
	r.store.mu.RLock()
	var result []*domain.Transaction
	for _, t := range r.store.transactions {
		if t.SourceAccountID == accountID || (t.DestinationAccountID != nil && *t.DestinationAccountID == accountID) {
			result = append(result, cloneTransaction(t))
		}
	}
	r.store.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return page(result, limit, offset), nil
}

// SumCompleted sums completed inflows by amount and outflows by total.
func (r *TransactionRepository) SumCompleted(_ context.Context, accountID string) (decimal.Decimal, decimal.Decimal, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	inflow, outflow := decimal.Zero, decimal.Zero
	for _, t := range r.store.transactions {
		if t.Status != domain.TransactionStatusCompleted {
			continue
		}
		if t.DestinationAccountID != nil && *t.DestinationAccountID == accountID {
			inflow = inflow.Add(t.Amount)
		}
		if t.SourceAccountID == accountID {
			outflow = outflow.Add(t.Total)
		}
	}
	return inflow, outflow, nil
}
