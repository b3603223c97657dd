package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/fundscore/internal/domain"
	"github.com/iho/fundscore/internal/infrastructure/metrics"
)

// TransactionUseCase is the transaction ledger. It owns the fee schedule and
// the reference number space.
type TransactionUseCase struct {
	txManager  TransactionManager
	txRepo     TransactionRepository
	outboxRepo OutboxRepository
	idGen      IDGenerator
	refGen     ReferenceGenerator
	fees       *FeeSchedule
	logger     zerolog.Logger
	metrics    *metrics.Metrics
}

// TransactionUseCaseConfig holds dependencies for TransactionUseCase.
type TransactionUseCaseConfig struct {
	TxManager  TransactionManager
	TxRepo     TransactionRepository
	OutboxRepo OutboxRepository
	IDGen      IDGenerator
	RefGen     ReferenceGenerator
	Fees       *FeeSchedule
	Logger     zerolog.Logger
	Metrics    *metrics.Metrics
}

// NewTransactionUseCase creates a new TransactionUseCase.
func NewTransactionUseCase(cfg TransactionUseCaseConfig) *TransactionUseCase {
	if cfg.RefGen == nil {
		cfg.RefGen = UUIDReferenceGenerator{}
	}
	if cfg.Fees == nil {
		cfg.Fees = NewFeeSchedule(decimal.RequireFromString(DefaultWithdrawalFee))
	}
	return &TransactionUseCase{
		txManager:  cfg.TxManager,
		txRepo:     cfg.TxRepo,
		outboxRepo: cfg.OutboxRepo,
		idGen:      cfg.IDGen,
		refGen:     cfg.RefGen,
		fees:       cfg.Fees,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
	}
}

var _ LedgerClient = (*TransactionUseCase)(nil)

// QuoteFeeInput represents a fee quote request.
type QuoteFeeInput struct {
	Amount decimal.Decimal
	Type   domain.TransactionType
	// TransferType selects a channel fee. Empty means the per-type rule.
	TransferType domain.TransferType
}

// QuoteFee computes the fee for a movement without recording anything.
func (uc *TransactionUseCase) QuoteFee(_ context.Context, input QuoteFeeInput) (decimal.Decimal, error) {
	if input.Amount.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, domain.ErrInvalidAmount
	}
	if !input.Type.IsValid() {
		return decimal.Zero, fmt.Errorf("%w: unknown transaction type %q", domain.ErrInvalidType, input.Type)
	}
	return uc.fees.Compute(input.Amount, input.Type, input.TransferType), nil
}

// RecordPendingInput represents input for recording a pending transaction.
type RecordPendingInput struct {
	SourceAccountID      string
	DestinationAccountID *string
	Amount               decimal.Decimal
	// Fee is a precomputed fee. When nil the fee schedule is applied.
	Fee          *decimal.Decimal
	Type         domain.TransactionType
	TransferType domain.TransferType
	// Reference is the caller's idempotency key. When empty a reference is
	// generated.
	Reference   string
	Description string
	UserID      string
}

// RecordPending appends a PENDING transaction. A supplied reference that
// already exists fails with domain.ErrDuplicateReference.
func (uc *TransactionUseCase) RecordPending(ctx context.Context, input RecordPendingInput) (*domain.Transaction, error) {
	if input.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, domain.ErrInvalidAmount
	}
	if strings.TrimSpace(input.SourceAccountID) == "" {
		return nil, domain.ErrAccountNotFound
	}
	if !input.Type.IsValid() {
		return nil, fmt.Errorf("%w: unknown transaction type %q", domain.ErrInvalidType, input.Type)
	}

	fee := uc.fees.Compute(input.Amount, input.Type, input.TransferType)
	if input.Fee != nil {
		if input.Fee.IsNegative() {
			return nil, fmt.Errorf("%w: fee must not be negative", domain.ErrInvalidAmount)
		}
		fee = *input.Fee
	}

	now := time.Now().UTC()
	record := &domain.Transaction{
		ID:                   uc.idGen.Generate(),
		SourceAccountID:      input.SourceAccountID,
		DestinationAccountID: input.DestinationAccountID,
		Amount:               input.Amount,
		Fee:                  fee,
		Total:                input.Amount.Add(fee),
		Type:                 input.Type,
		Status:               domain.TransactionStatusPending,
		Description:          input.Description,
		UserID:               input.UserID,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	if input.Reference != "" {
		if err := domain.ValidateReference(input.Reference); err != nil {
			return nil, err
		}
		exists, err := uc.txRepo.ExistsByReference(ctx, input.Reference)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, fmt.Errorf("%w: %s", domain.ErrDuplicateReference, input.Reference)
		}
		record.ReferenceNumber = input.Reference
		if err := uc.insert(ctx, record); err != nil {
			return nil, err
		}
		uc.recorded(record)
		return record, nil
	}

	// Generated references retry on collision, including a collision that
	// only surfaces at insert time.
	for attempt := 0; attempt < MaxReferenceAttempts; attempt++ {
		ref, err := uniqueReference(ctx, uc.refGen, uc.txRepo.ExistsByReference)
		if err != nil {
			return nil, err
		}
		record.ReferenceNumber = ref

		err = uc.insert(ctx, record)
		if err == nil {
			uc.recorded(record)
			return record, nil
		}
		if !errors.Is(err, domain.ErrDuplicateReference) {
			return nil, err
		}
		if uc.metrics != nil {
			uc.metrics.ReferenceCollisions.Inc()
		}
	}

	return nil, fmt.Errorf("%w: reference number after %d attempts", domain.ErrIDGenerationExhausted, MaxReferenceAttempts)
}

func (uc *TransactionUseCase) insert(ctx context.Context, record *domain.Transaction) error {
	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := uc.txManager.Begin(txCtx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	if err := uc.txRepo.Create(txCtx, tx, record); err != nil {
		return err
	}

	if err := uc.emit(txCtx, tx, record, domain.EventTypeTransactionRecorded); err != nil {
		return err
	}

	return tx.Commit(txCtx)
}

func (uc *TransactionUseCase) recorded(record *domain.Transaction) {
	if uc.metrics != nil {
		uc.metrics.TransactionsRecorded.WithLabelValues(string(record.Type)).Inc()
	}
	uc.logger.Debug().
		Str("transaction_id", record.ID).
		Str("reference", record.ReferenceNumber).
		Str("amount", record.Amount.String()).
		Str("fee", record.Fee.String()).
		Msg("transaction recorded")
}

// Finalize moves a PENDING or PROCESSING transaction to COMPLETED or FAILED.
func (uc *TransactionUseCase) Finalize(ctx context.Context, id string, status domain.TransactionStatus) (*domain.Transaction, error) {
	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := uc.txManager.Begin(txCtx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	record, err := uc.txRepo.GetByIDForUpdate(txCtx, tx, id)
	if err != nil {
		return nil, err
	}

	if err := record.Finalize(status, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("%w: %s to %s", err, record.Status, status)
	}

	if err := uc.txRepo.UpdateStatus(txCtx, tx, record); err != nil {
		return nil, err
	}

	if err := uc.emit(txCtx, tx, record, domain.EventTypeTransactionFinalized); err != nil {
		return nil, err
	}

	if err := tx.Commit(txCtx); err != nil {
		return nil, err
	}

	if uc.metrics != nil {
		uc.metrics.TransactionsFinalized.WithLabelValues(string(status)).Inc()
	}

	return record, nil
}

// GetByID retrieves a transaction by ID.
func (uc *TransactionUseCase) GetByID(ctx context.Context, id string) (*domain.Transaction, error) {
	return uc.txRepo.GetByID(ctx, id)
}

// GetByReference retrieves a transaction by reference number.
func (uc *TransactionUseCase) GetByReference(ctx context.Context, reference string) (*domain.Transaction, error) {
	return uc.txRepo.GetByReference(ctx, reference)
}

// ListByAccount lists transactions where the account is source or
// destination, newest first.
func (uc *TransactionUseCase) ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]*domain.Transaction, error) {
	limit, offset = domain.ValidatePagination(limit, offset)
	return uc.txRepo.ListByAccount(ctx, accountID, limit, offset)
}

// Balance is completed inflows minus completed outflows for an account.
func (uc *TransactionUseCase) Balance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	inflow, outflow, err := uc.txRepo.SumCompleted(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	return inflow.Sub(outflow), nil
}

func (uc *TransactionUseCase) emit(ctx context.Context, tx Transaction, record *domain.Transaction, eventType string) error {
	if uc.outboxRepo == nil {
		return nil
	}
	payload := map[string]any{
		"transaction_id":   record.ID,
		"reference_number": record.ReferenceNumber,
		"source_account":   record.SourceAccountID,
		"amount":           record.Amount.String(),
		"fee":              record.Fee.String(),
		"status":           string(record.Status),
	}
	if record.DestinationAccountID != nil {
		payload["destination_account"] = *record.DestinationAccountID
	}
	event := domain.NewOutboxEvent(uc.idGen.Generate(), domain.AggregateTypeTransaction, record.ID, eventType, payload, record.UpdatedAt)
	return uc.outboxRepo.Create(ctx, tx, event)
}
