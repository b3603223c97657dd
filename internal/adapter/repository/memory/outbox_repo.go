package memory

import (
	"context"
	"time"

	"github.com/iho/fundscore/internal/domain"
	"github.com/iho/fundscore/internal/usecase"
)

// OutboxRepository implements usecase.OutboxRepository.
type OutboxRepository struct {
	store *Store
}

// NewOutboxRepository creates a new OutboxRepository.
func NewOutboxRepository(store *Store) *OutboxRepository {
	return &OutboxRepository{store: store}
}

var _ usecase.OutboxRepository = (*OutboxRepository)(nil)

// Create stages an event with the rest of the transaction.
func (r *OutboxRepository) Create(_ context.Context, tx usecase.Transaction, event *domain.OutboxEvent) error {
	t, err := asTx(tx)
	if err != nil {
		return err
	}

	row := cloneEvent(event)
	return t.stage(op{
		apply: func() {
			r.store.outbox = append(r.store.outbox, row)
		},
	})
}

// GetUnpublished returns events not yet published, in insertion order.
func (r *OutboxRepository) GetUnpublished(_ context.Context, limit int) ([]*domain.OutboxEvent, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var result []*domain.OutboxEvent
	for _, e := range r.store.outbox {
		if e.Published {
			continue
		}
		result = append(result, cloneEvent(e))
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

// MarkPublished marks an event as published.
func (r *OutboxRepository) MarkPublished(_ context.Context, id string, publishedAt time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for i, e := range r.store.outbox {
		if e.ID == id {
			row := cloneEvent(e)
			row.Published = true
			row.PublishedAt = &publishedAt
			r.store.outbox[i] = row
			return nil
		}
	}
	return nil
}
