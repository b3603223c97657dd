package domain

import "time"

// Event types
const (
	EventTypeAccountOpened        = "account.opened"
	EventTypeAccountCredited      = "account.credited"
	EventTypeAccountDebited       = "account.debited"
	EventTypeAccountStatusChanged = "account.status_changed"
	EventTypeTransactionRecorded  = "transaction.recorded"
	EventTypeTransactionFinalized = "transaction.finalized"
	EventTypeTransferCompleted    = "transfer.completed"
	EventTypeTransferFailed       = "transfer.failed"
	EventTypeTransferCancelled    = "transfer.cancelled"
)

// Aggregate types
const (
	AggregateTypeAccount     = "account"
	AggregateTypeTransaction = "transaction"
	AggregateTypeTransfer    = "transfer"
)

// OutboxEvent represents an event to be published
type OutboxEvent struct {
	ID            string
	AggregateID   string
	AggregateType string
	EventType     string
	Payload       map[string]any
	CreatedAt     time.Time
	PublishedAt   *time.Time
	Published     bool
}

// NewOutboxEvent builds an unpublished event.
func NewOutboxEvent(id, aggregateType, aggregateID, eventType string, payload map[string]any, at time.Time) *OutboxEvent {
	return &OutboxEvent{
		ID:            id,
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		Payload:       payload,
		CreatedAt:     at,
	}
}
