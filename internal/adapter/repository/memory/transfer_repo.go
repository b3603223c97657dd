package memory

import (
	"context"
	"sort"
	"time"

	"github.com/iho/fundscore/internal/domain"
	"github.com/iho/fundscore/internal/usecase"
)

// TransferRepository implements usecase.TransferRepository.
type TransferRepository struct {
	store *Store
}

// NewTransferRepository creates a new TransferRepository.
func NewTransferRepository(store *Store) *TransferRepository {
	return &TransferRepository{store: store}
}

var _ usecase.TransferRepository = (*TransferRepository)(nil)

// Create inserts a transfer. Reference and client reference are unique.
func (r *TransferRepository) Create(_ context.Context, transfer *domain.Transfer) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.transferRefs[transfer.Reference]; ok {
		return domain.ErrDuplicateReference
	}
	if transfer.ClientReference != nil {
		if _, ok := r.store.clientRefs[*transfer.ClientReference]; ok {
			return domain.ErrDuplicateReference
		}
		r.store.clientRefs[*transfer.ClientReference] = transfer.ID
	}

	r.store.transfers[transfer.ID] = cloneTransfer(transfer)
	r.store.transferRefs[transfer.Reference] = transfer.ID
	return nil
}

// Update writes the transfer if its version is current and bumps the
// version.
func (r *TransferRepository) Update(_ context.Context, transfer *domain.Transfer) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	stored, ok := r.store.transfers[transfer.ID]
	if !ok {
		return domain.ErrTransferNotFound
	}
	if stored.Version != transfer.Version {
		return domain.ErrConcurrentModification
	}

	transfer.Version++
	r.store.transfers[transfer.ID] = cloneTransfer(transfer)
	return nil
}

// GetByID retrieves a transfer by ID.
func (r *TransferRepository) GetByID(_ context.Context, id string) (*domain.Transfer, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	t, ok := r.store.transfers[id]
	if !ok {
		return nil, domain.ErrTransferNotFound
	}
	return cloneTransfer(t), nil
}

// GetByReference retrieves a transfer by reference.
func (r *TransferRepository) GetByReference(ctx context.Context, reference string) (*domain.Transfer, error) {
	r.store.mu.RLock()
	id, ok := r.store.transferRefs[reference]
	r.store.mu.RUnlock()
	if !ok {
		return nil, domain.ErrTransferNotFound
	}
	return r.GetByID(ctx, id)
}

// GetByClientReference retrieves a transfer by the caller's idempotency key.
func (r *TransferRepository) GetByClientReference(ctx context.Context, clientReference string) (*domain.Transfer, error) {
	r.store.mu.RLock()
	id, ok := r.store.clientRefs[clientReference]
	r.store.mu.RUnlock()
	if !ok {
		return nil, domain.ErrTransferNotFound
	}
	return r.GetByID(ctx, id)
}

// ListByAccount lists an account's transfers, newest first.
func (r *TransferRepository) ListByAccount(_ context.Context, accountID string, direction usecase.TransferDirection, limit, offset int) ([]*domain.Transfer, error) {
	result := r.filter(func(t *domain.Transfer) bool {
		sent := t.SenderAccountID == accountID
		received := t.RecipientAccountID == accountID
		switch direction {
		case usecase.TransferDirectionSent:
			return sent
		case usecase.TransferDirectionReceived:
			return received
		}
		return sent || received
	})

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return page(result, limit, offset), nil
}

// ListNeedingRecovery lists transfers with pending background work, oldest
// first.
func (r *TransferRepository) ListNeedingRecovery(_ context.Context, limit int) ([]*domain.Transfer, error) {
	result := r.filter((*domain.Transfer).NeedsRecovery)
	sortOldestFirst(result)
	return page(result, limit, 0), nil
}

// ListStale lists non-terminal transfers last updated before the cutoff.
func (r *TransferRepository) ListStale(_ context.Context, before time.Time, limit int) ([]*domain.Transfer, error) {
	result := r.filter(func(t *domain.Transfer) bool {
		return !t.State.IsTerminal() && t.UpdatedAt.Before(before)
	})
	sortOldestFirst(result)
	return page(result, limit, 0), nil
}

// Stats aggregates an account's transfers.
func (r *TransferRepository) Stats(_ context.Context, accountID string) (*domain.TransferStats, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	stats := &domain.TransferStats{AccountID: accountID}
	for _, t := range r.store.transfers {
		sent := t.SenderAccountID == accountID
		received := t.RecipientAccountID == accountID
		if !sent && !received {
			continue
		}

		if sent {
			stats.TotalSent++
		}
		if received {
			stats.TotalReceived++
		}

		switch t.Status {
		case domain.TransferStatusCompleted:
			stats.Completed++
			if sent {
				stats.AmountSent = stats.AmountSent.Add(t.Amount)
				stats.FeesPaid = stats.FeesPaid.Add(t.Fee)
			}
			if received {
				stats.AmountReceived = stats.AmountReceived.Add(t.Amount)
			}
		case domain.TransferStatusFailed:
			stats.Failed++
		case domain.TransferStatusCancelled:
			stats.Cancelled++
		case domain.TransferStatusPending, domain.TransferStatusProcessing:
			stats.Pending++
		}
	}
	return stats, nil
}

func (r *TransferRepository) filter(keep func(*domain.Transfer) bool) []*domain.Transfer {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var result []*domain.Transfer
	for _, t := range r.store.transfers {
		if keep(t) {
			result = append(result, cloneTransfer(t))
		}
	}
	return result
}

func sortOldestFirst(transfers []*domain.Transfer) {
	sort.Slice(transfers, func(i, j int) bool {
		if transfers[i].CreatedAt.Equal(transfers[j].CreatedAt) {
			return transfers[i].ID < transfers[j].ID
		}
		return transfers[i].CreatedAt.Before(transfers[j].CreatedAt)
	})
}
