package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/iho/fundscore/internal/domain"
	"github.com/iho/fundscore/internal/usecase"
)

// AccountRepository implements usecase.AccountRepository.
type AccountRepository struct {
	store *Store
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(store *Store) *AccountRepository {
	return &AccountRepository{store: store}
}

var _ usecase.AccountRepository = (*AccountRepository)(nil)

// Create stages a new account.
func (r *AccountRepository) Create(_ context.Context, tx usecase.Transaction, account *domain.Account) error {
	t, err := asTx(tx)
	if err != nil {
		return err
	}

	row := cloneAccount(account)
	return t.stage(op{
		check: func() error {
			if _, ok := r.store.accounts[row.ID]; ok {
				return fmt.Errorf("%w: account id %s", domain.ErrDuplicateReference, row.ID)
			}
			if _, ok := r.store.accountNumbers[row.AccountNumber]; ok {
				return fmt.Errorf("%w: account number %s", domain.ErrDuplicateReference, row.AccountNumber)
			}
			return nil
		},
		apply: func() {
			r.store.accounts[row.ID] = row
			r.store.accountNumbers[row.AccountNumber] = row.ID
		},
	})
}

// GetByID retrieves an account by ID.
func (r *AccountRepository) GetByID(_ context.Context, id string) (*domain.Account, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	account, ok := r.store.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return cloneAccount(account), nil
}

// GetByNumber retrieves an account by account number.
func (r *AccountRepository) GetByNumber(ctx context.Context, accountNumber string) (*domain.Account, error) {
	r.store.mu.RLock()
	id, ok := r.store.accountNumbers[accountNumber]
	r.store.mu.RUnlock()
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return r.GetByID(ctx, id)
}

// GetByIDForUpdate locks the account until tx ends and returns its
// committed state.
func (r *AccountRepository) GetByIDForUpdate(ctx context.Context, tx usecase.Transaction, id string) (*domain.Account, error) {
	t, err := asTx(tx)
	if err != nil {
		return nil, err
	}

	// Existence is checked before locking so unknown ids do not create locks.
	if _, err := r.GetByID(ctx, id); err != nil {
		return nil, err
	}
	if err := t.lock(ctx, "account:"+id); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// Update stages the new state of a locked account.
func (r *AccountRepository) Update(_ context.Context, tx usecase.Transaction, account *domain.Account) error {
	t, err := asTx(tx)
	if err != nil {
		return err
	}

	row := cloneAccount(account)
	return t.stage(op{
		check: func() error {
			if _, ok := r.store.accounts[row.ID]; !ok {
				return domain.ErrAccountNotFound
			}
			return nil
		},
		apply: func() {
			r.store.accounts[row.ID] = row
		},
	})
}

// ExistsByNumber reports whether an account number is taken.
func (r *AccountRepository) ExistsByNumber(_ context.Context, accountNumber string) (bool, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	_, ok := r.store.accountNumbers[accountNumber]
	return ok, nil
}

// List lists accounts ordered by creation time.
func (r *AccountRepository) List(_ context.Context, limit, offset int) ([]*domain.Account, error) {
	r.store.mu.RLock()
	accounts := make([]*domain.Account, 0, len(r.store.accounts))
	for _, a := range r.store.accounts {
		accounts = append(accounts, cloneAccount(a))
	}
	r.store.mu.RUnlock()

	sort.Slice(accounts, func(i, j int) bool {
		if accounts[i].CreatedAt.Equal(accounts[j].CreatedAt) {
			return accounts[i].ID < accounts[j].ID
		}
		return accounts[i].CreatedAt.Before(accounts[j].CreatedAt)
	})

	return page(accounts, limit, offset), nil
}
