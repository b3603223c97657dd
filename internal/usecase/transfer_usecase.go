package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/iho/fundscore/internal/domain"
	"github.com/iho/fundscore/internal/infrastructure/metrics"
)

const tracerName = "github.com/iho/fundscore/internal/usecase"

// errClaimLost stops a saga whose transfer reached a terminal state through
// another actor, e.g. a cancel that won the race for the debit claim.
var errClaimLost = errors.New("transfer claimed by another actor")

// TransferUseCase orchestrates a transfer across the account ledger and the
// transaction ledger as a saga. It never holds an account lock; every step is
// idempotent by the transfer reference.
type TransferUseCase struct {
	transferRepo        TransferRepository
	accounts            AccountGateway
	ledger              LedgerClient
	txManager           TransactionManager
	outboxRepo          OutboxRepository
	cache               Cache
	idGen               IDGenerator
	refGen              ReferenceGenerator
	retry               RetryPolicy
	maxAmount           decimal.Decimal
	finalizeMaxAttempts int
	workers             int
	logger              zerolog.Logger
	metrics             *metrics.Metrics
	tracer              trace.Tracer

	jobs chan string
	wg   sync.WaitGroup
}

// TransferUseCaseConfig holds dependencies for TransferUseCase.
type TransferUseCaseConfig struct {
	TransferRepo TransferRepository
	Accounts     AccountGateway
	Ledger       LedgerClient
	// TxManager and OutboxRepo are optional. Without them no transfer events
	// are written.
	TxManager  TransactionManager
	OutboxRepo OutboxRepository
	Cache      Cache
	IDGen      IDGenerator
	RefGen     ReferenceGenerator
	Retry      RetryPolicy
	// MaxAmount caps a single transfer. Zero means MaxTransferAmount.
	MaxAmount           decimal.Decimal
	FinalizeMaxAttempts int
	Workers             int
	QueueSize           int
	Logger              zerolog.Logger
	Metrics             *metrics.Metrics
	Tracer              trace.Tracer
}

// NewTransferUseCase creates a new TransferUseCase.
func NewTransferUseCase(cfg TransferUseCaseConfig) *TransferUseCase {
	if cfg.RefGen == nil {
		cfg.RefGen = UUIDReferenceGenerator{}
	}
	if cfg.Retry == (RetryPolicy{}) {
		cfg.Retry = DefaultRetryPolicy()
	}
	if cfg.MaxAmount.IsZero() {
		cfg.MaxAmount = decimal.RequireFromString(MaxTransferAmount)
	}
	if cfg.FinalizeMaxAttempts <= 0 {
		cfg.FinalizeMaxAttempts = DefaultFinalizeMaxAttempts
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultTransferWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultTransferQueueSize
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer(tracerName)
	}

	return &TransferUseCase{
		transferRepo:        cfg.TransferRepo,
		accounts:            cfg.Accounts,
		ledger:              cfg.Ledger,
		txManager:           cfg.TxManager,
		outboxRepo:          cfg.OutboxRepo,
		cache:               cfg.Cache,
		idGen:               cfg.IDGen,
		refGen:              cfg.RefGen,
		retry:               cfg.Retry,
		maxAmount:           cfg.MaxAmount,
		finalizeMaxAttempts: cfg.FinalizeMaxAttempts,
		workers:             cfg.Workers,
		logger:              cfg.Logger,
		metrics:             cfg.Metrics,
		tracer:              cfg.Tracer,
		jobs:                make(chan string, cfg.QueueSize),
	}
}

// InitiateTransferInput represents input for starting a transfer.
type InitiateTransferInput struct {
	SenderAccountID    string
	RecipientAccountID string
	Amount             decimal.Decimal
	// Currency, when set, must match both accounts.
	Currency    string
	Type        domain.TransferType
	Description string
	UserID      string
	// ClientReference is the caller's idempotency key. A repeated key
	// returns the transfer created by the first request.
	ClientReference string

	retryOf *string
}

// Initiate creates a transfer and runs the saga to a terminal state. For a
// saga that ended FAILED the transfer is returned together with the cause.
func (uc *TransferUseCase) Initiate(ctx context.Context, input InitiateTransferInput) (*domain.Transfer, error) {
	transfer, existing, err := uc.receive(ctx, input)
	if err != nil {
		return nil, err
	}
	if existing {
		return transfer, nil
	}
	return uc.run(ctx, transfer)
}

// Submit creates a transfer in RECEIVED and queues the saga on the worker
// pool. A full queue leaves the transfer for the recovery worker.
func (uc *TransferUseCase) Submit(ctx context.Context, input InitiateTransferInput) (*domain.Transfer, error) {
	transfer, existing, err := uc.receive(ctx, input)
	if err != nil {
		return nil, err
	}
	if existing {
		return transfer, nil
	}

	select {
	case uc.jobs <- transfer.ID:
	default:
		uc.logger.Warn().Str("transfer_id", transfer.ID).Msg("transfer queue full, leaving for recovery")
	}

	return transfer, nil
}

// Start launches the worker pool that runs submitted transfers. Workers
// stop when ctx is cancelled.
func (uc *TransferUseCase) Start(ctx context.Context) {
	for i := 0; i < uc.workers; i++ {
		uc.wg.Add(1)
		go func() {
			defer uc.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case id := <-uc.jobs:
					if _, err := uc.Resume(ctx, id); err != nil {
						uc.logger.Warn().Err(err).Str("transfer_id", id).Msg("submitted transfer did not complete")
					}
				}
			}
		}()
	}
}

// Wait blocks until the workers and background finalize retries return.
func (uc *TransferUseCase) Wait() {
	uc.wg.Wait()
}

// Resume continues a transfer from its persisted saga state.
func (uc *TransferUseCase) Resume(ctx context.Context, id string) (*domain.Transfer, error) {
	transfer, err := uc.transferRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if transfer.State.IsTerminal() {
		return transfer, nil
	}
	return uc.run(ctx, transfer)
}

func (uc *TransferUseCase) receive(ctx context.Context, input InitiateTransferInput) (*domain.Transfer, bool, error) {
	if input.Type == "" {
		input.Type = domain.TransferTypeInternal
	}
	if !input.Type.IsValid() {
		return nil, false, fmt.Errorf("%w: unknown transfer type %q", domain.ErrInvalidType, input.Type)
	}
	if err := domain.ValidateAmount(input.Amount, uc.maxAmount); err != nil {
		return nil, false, err
	}
	if input.SenderAccountID == input.RecipientAccountID {
		return nil, false, domain.ErrSameAccount
	}
	if input.Currency != "" {
		if err := domain.ValidateCurrency(input.Currency); err != nil {
			return nil, false, err
		}
	}

	var clientRef *string
	if input.ClientReference != "" {
		if err := domain.ValidateReference(input.ClientReference); err != nil {
			return nil, false, err
		}
		existing, err := uc.transferRepo.GetByClientReference(ctx, input.ClientReference)
		if err == nil {
			return existing, true, nil
		}
		if !errors.Is(err, domain.ErrTransferNotFound) {
			return nil, false, err
		}
		clientRef = &input.ClientReference
	}

	reference, err := uniqueReference(ctx, uc.refGen, uc.referenceTaken)
	if err != nil {
		return nil, false, err
	}

	now := time.Now().UTC()
	transfer := &domain.Transfer{
		ID:                 uc.idGen.Generate(),
		Reference:          reference,
		ClientReference:    clientRef,
		SenderAccountID:    input.SenderAccountID,
		RecipientAccountID: input.RecipientAccountID,
		Amount:             input.Amount,
		Currency:           input.Currency,
		Type:               input.Type,
		Status:             domain.TransferStatusPending,
		State:              domain.SagaStateReceived,
		Fee:                decimal.Zero,
		TotalAmount:        input.Amount,
		Description:        input.Description,
		UserID:             input.UserID,
		RetryOf:            input.retryOf,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := uc.transferRepo.Create(ctx, transfer); err != nil {
		if clientRef != nil && errors.Is(err, domain.ErrDuplicateReference) {
			// Lost a race with an identical request.
			existing, getErr := uc.transferRepo.GetByClientReference(ctx, *clientRef)
			if getErr == nil {
				return existing, true, nil
			}
		}
		return nil, false, err
	}

	if uc.metrics != nil {
		uc.metrics.TransfersStarted.Inc()
		uc.metrics.TransferAmount.Observe(transfer.Amount.InexactFloat64())
	}
	uc.logTransition(transfer)

	return transfer, false, nil
}

func (uc *TransferUseCase) referenceTaken(ctx context.Context, reference string) (bool, error) {
	_, err := uc.transferRepo.GetByReference(ctx, reference)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, domain.ErrTransferNotFound) {
		return false, nil
	}
	return false, err
}

func (uc *TransferUseCase) run(ctx context.Context, transfer *domain.Transfer) (*domain.Transfer, error) {
	ctx, span := uc.tracer.Start(ctx, "transfer.saga", trace.WithAttributes(
		attribute.String("transfer.id", transfer.ID),
		attribute.String("transfer.reference", transfer.Reference),
	))
	defer span.End()

	var cause error
	for !transfer.State.IsTerminal() {
		err := uc.step(ctx, transfer)
		if errors.Is(err, errClaimLost) {
			return transfer, nil
		}
		if err != nil {
			if !transfer.State.IsTerminal() {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return transfer, err
			}
			cause = err
		}
	}

	span.SetAttributes(attribute.String("transfer.state", string(transfer.State)))
	if cause != nil {
		span.SetStatus(codes.Error, cause.Error())
	}
	uc.finish(ctx, transfer)

	return transfer, cause
}

type sagaStep func(ctx context.Context, transfer *domain.Transfer) error

func (uc *TransferUseCase) step(ctx context.Context, transfer *domain.Transfer) error {
	var (
		name string
		fn   sagaStep
	)
	switch transfer.State {
	case domain.SagaStateReceived:
		name, fn = "validate", uc.validate
	case domain.SagaStateValidated:
		name, fn = "debit", uc.debit
	case domain.SagaStateDebited:
		name, fn = "record", uc.record
	case domain.SagaStateLedgerWritten:
		name, fn = "credit", uc.credit
	case domain.SagaStateCredited:
		name, fn = "finalize", uc.complete
	default:
		return fmt.Errorf("%w: no step from %s", domain.ErrInvalidStateTransition, transfer.State)
	}

	ctx, span := uc.tracer.Start(ctx, "transfer."+name)
	defer span.End()

	err := fn(ctx, transfer)
	result := "ok"
	if err != nil && !errors.Is(err, errClaimLost) {
		result = "failed"
		span.RecordError(err)
	}
	if uc.metrics != nil {
		uc.metrics.SagaSteps.WithLabelValues(name, result).Inc()
	}
	return err
}

// validate resolves both accounts and takes the fee quote from the ledger.
func (uc *TransferUseCase) validate(ctx context.Context, transfer *domain.Transfer) error {
	if err := domain.ValidateAmount(transfer.Amount, uc.maxAmount); err != nil {
		return uc.fail(ctx, transfer, domain.FailureCodeInvalidAmount, err)
	}
	if err := transfer.Validate(); err != nil {
		return uc.fail(ctx, transfer, failureCode(err, domain.FailureCodeInvalidAmount), err)
	}

	sender, err := uc.resolve(ctx, transfer.SenderAccountID)
	if err != nil {
		return uc.fail(ctx, transfer, failureCode(err, domain.FailureCodeAccountNotFound), err)
	}
	recipient, err := uc.resolve(ctx, transfer.RecipientAccountID)
	if err != nil {
		return uc.fail(ctx, transfer, failureCode(err, domain.FailureCodeAccountNotFound), err)
	}

	if sender.ID == recipient.ID {
		return uc.fail(ctx, transfer, domain.FailureCodeSameAccount, domain.ErrSameAccount)
	}
	if sender.Currency != recipient.Currency || (transfer.Currency != "" && transfer.Currency != sender.Currency) {
		return uc.fail(ctx, transfer, domain.FailureCodeCurrencyMismatch, domain.ErrCurrencyMismatch)
	}

	fee, err := uc.ledger.QuoteFee(ctx, QuoteFeeInput{
		Amount:       transfer.Amount,
		Type:         domain.TransactionTypeTransfer,
		TransferType: transfer.Type,
	})
	if err != nil {
		return uc.fail(ctx, transfer, domain.FailureCodeFeeUnavailable, err)
	}

	transfer.SenderAccountID = sender.ID
	transfer.RecipientAccountID = recipient.ID
	transfer.Currency = sender.Currency
	transfer.Fee = fee
	transfer.TotalAmount = transfer.Amount.Add(fee)

	return uc.advance(ctx, transfer, domain.SagaStateValidated)
}

func (uc *TransferUseCase) resolve(ctx context.Context, ref string) (AccountSnapshot, error) {
	res := uc.accounts.Lookup(ctx, ref)
	switch res.Outcome {
	case OutcomeOK:
		if res.Account.Status != domain.AccountStatusActive {
			return AccountSnapshot{}, fmt.Errorf("%w: %s is %s", domain.ErrAccountNotActive, ref, res.Account.Status)
		}
		return res.Account, nil
	case OutcomeUnreachable:
		return AccountSnapshot{}, fmt.Errorf("%w: %s", domain.ErrAccountNotActive, res.Reason)
	}

	if res.Err != nil && !errors.Is(res.Err, domain.ErrAccountNotFound) {
		return AccountSnapshot{}, res.Err
	}
	return AccountSnapshot{}, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, ref)
}

// debit claims the transfer, then takes amount+fee from the sender.
func (uc *TransferUseCase) debit(ctx context.Context, transfer *domain.Transfer) error {
	if transfer.Status == domain.TransferStatusPending {
		transfer.Status = domain.TransferStatusProcessing
		if err := uc.save(ctx, transfer); err != nil {
			if errors.Is(err, domain.ErrConcurrentModification) {
				return uc.reload(ctx, transfer)
			}
			return err
		}
	}

	res := uc.callWithRetry(ctx, func(ctx context.Context) MovementResult {
		return uc.accounts.Debit(ctx, transfer.SenderAccountID, transfer.TotalAmount, transfer.Reference)
	})

	switch res.Outcome {
	case OutcomeOK:
		if res.Succeeded() {
			return uc.advance(ctx, transfer, domain.SagaStateDebited)
		}
	case OutcomeUnreachable:
		applied, known := uc.movementApplied(ctx, transfer.SenderAccountID, transfer.Reference, domain.MovementDebit)
		if applied {
			return uc.advance(ctx, transfer, domain.SagaStateDebited)
		}
		transfer.DebitInDoubt = !known
		return uc.fail(ctx, transfer, domain.FailureCodeServiceUnavailable, domain.ErrAccountServiceUnavailable)
	}

	cause := rejection(res)
	return uc.fail(ctx, transfer, failureCode(cause, domain.FailureCodeDebitFailed), cause)
}

// record writes the pending transaction under the transfer reference.
func (uc *TransferUseCase) record(ctx context.Context, transfer *domain.Transfer) error {
	recipient := transfer.RecipientAccountID
	fee := transfer.Fee
	input := RecordPendingInput{
		SourceAccountID:      transfer.SenderAccountID,
		DestinationAccountID: &recipient,
		Amount:               transfer.Amount,
		Fee:                  &fee,
		Type:                 domain.TransactionTypeTransfer,
		TransferType:         transfer.Type,
		Reference:            transfer.Reference,
		Description:          transfer.Description,
		UserID:               transfer.UserID,
	}

	var record *domain.Transaction
	err := backoff.Retry(func() error {
		var err error
		record, err = uc.ledger.RecordPending(ctx, input)
		if err != nil && !errors.Is(err, domain.ErrLedgerUnavailable) {
			return backoff.Permanent(err)
		}
		return err
	}, uc.retry.backOff(ctx))

	unseen := false
	if err != nil && (errors.Is(err, domain.ErrDuplicateReference) || errors.Is(err, domain.ErrLedgerUnavailable)) {
		// An earlier attempt may have written the record.
		existing, lookupErr := uc.ledger.GetByReference(ctx, transfer.Reference)
		switch {
		case lookupErr == nil &&
			existing.Status != domain.TransactionStatusFailed &&
			existing.Matches(transfer.SenderAccountID, &recipient, transfer.Amount):
			record, err = existing, nil
		case lookupErr != nil && !errors.Is(lookupErr, domain.ErrTransactionNotFound):
			unseen = true
		}
	}

	if err != nil {
		uc.compensate(ctx, transfer)
		// A write that may have landed unseen is failed by reference later.
		transfer.FinalizePending = unseen
		return uc.fail(ctx, transfer, domain.FailureCodeLedgerWriteFailed, err)
	}

	transfer.TransactionID = &record.ID
	return uc.advance(ctx, transfer, domain.SagaStateLedgerWritten)
}

// credit pays the recipient. A refused credit reverses the sender debit and
// fails the ledger record. A credit with unknown outcome is held for
// recovery.
func (uc *TransferUseCase) credit(ctx context.Context, transfer *domain.Transfer) error {
	res := uc.callWithRetry(ctx, func(ctx context.Context) MovementResult {
		return uc.accounts.Credit(ctx, transfer.RecipientAccountID, transfer.Amount, transfer.Reference)
	})

	if res.Outcome == OutcomeUnreachable {
		applied, known := uc.movementApplied(ctx, transfer.RecipientAccountID, transfer.Reference, domain.MovementCredit)
		if !known {
			return uc.holdCredit(ctx, transfer)
		}
		if applied {
			transfer.CreditInDoubt = false
			return uc.advance(ctx, transfer, domain.SagaStateCredited)
		}
	}
	transfer.CreditInDoubt = false
	if res.Succeeded() {
		return uc.advance(ctx, transfer, domain.SagaStateCredited)
	}

	cause := rejection(res)
	uc.compensate(ctx, transfer)
	if err := uc.finalizeTransaction(ctx, transfer, domain.TransactionStatusFailed, uc.retry.backOff(ctx)); err != nil {
		uc.logger.Warn().Err(err).Str("transfer_id", transfer.ID).Msg("failed to mark transaction failed, will retry")
		transfer.FinalizePending = true
	}
	return uc.fail(ctx, transfer, domain.FailureCodeCreditFailed, cause)
}

// holdCredit leaves the transfer in LEDGER_WRITTEN flagged CreditInDoubt.
// The sender is not reversed while the recipient may hold the funds.
func (uc *TransferUseCase) holdCredit(ctx context.Context, transfer *domain.Transfer) error {
	transfer.CreditInDoubt = true
	transfer.UpdatedAt = time.Now().UTC()
	if err := uc.save(ctx, transfer); err != nil {
		return errors.Join(domain.ErrAccountServiceUnavailable, err)
	}

	uc.logger.Warn().
		Str("transfer_id", transfer.ID).
		Str("reference", transfer.Reference).
		Str("recipient", transfer.RecipientAccountID).
		Msg("credit outcome unknown, left for recovery")

	return domain.ErrAccountServiceUnavailable
}

// complete finalizes the ledger record. Money has moved at this point, so
// a failed finalize is retried in the background and never compensated.
func (uc *TransferUseCase) complete(ctx context.Context, transfer *domain.Transfer) error {
	if err := uc.finalizeTransaction(ctx, transfer, domain.TransactionStatusCompleted, &backoff.StopBackOff{}); err != nil {
		uc.logger.Warn().Err(err).Str("transfer_id", transfer.ID).Msg("finalize failed, retrying in background")
		transfer.FinalizePending = true
	}

	if err := uc.advance(ctx, transfer, domain.SagaStateCompleted); err != nil {
		return err
	}

	if transfer.FinalizePending {
		uc.finalizeLater(ctx, transfer.ID)
	}
	return nil
}

func (uc *TransferUseCase) callWithRetry(ctx context.Context, call func(context.Context) MovementResult) MovementResult {
	res := FallbackMovement()
	_ = backoff.Retry(func() error {
		res = call(ctx)
		if res.Outcome == OutcomeUnreachable {
			return domain.ErrAccountServiceUnavailable
		}
		return nil
	}, uc.retry.backOff(ctx))
	return res
}

// movementApplied asks the account service whether a movement exists. known
// is false when the service could not answer.
func (uc *TransferUseCase) movementApplied(ctx context.Context, accountID, reference string, direction domain.MovementDirection) (applied, known bool) {
	res := uc.accounts.Movement(ctx, accountID, reference, direction)
	switch {
	case res.Succeeded():
		return true, true
	case res.Outcome == OutcomeRejected && errors.Is(res.Err, domain.ErrMovementNotFound):
		return false, true
	}
	return false, false
}

// compensate credits amount+fee back to the sender under the reversal
// reference.
func (uc *TransferUseCase) compensate(ctx context.Context, transfer *domain.Transfer) {
	ctx, span := uc.tracer.Start(ctx, "transfer.compensate")
	defer span.End()

	res := uc.callWithRetry(ctx, func(ctx context.Context) MovementResult {
		return uc.accounts.Credit(ctx, transfer.SenderAccountID, transfer.TotalAmount, transfer.Reference+ReversalSuffix)
	})

	result := "success"
	if res.Succeeded() {
		transfer.Compensated = true
		transfer.CompensationPending = false
		uc.logger.Info().
			Str("transfer_id", transfer.ID).
			Str("reference", transfer.Reference).
			Str("amount", transfer.TotalAmount.String()).
			Msg("sender debit reversed")
	} else {
		result = "pending"
		transfer.CompensationPending = true
		span.SetStatus(codes.Error, res.Reason)
		uc.logger.Error().
			Str("transfer_id", transfer.ID).
			Str("reference", transfer.Reference).
			Str("reason", res.Reason).
			Msg("compensation failed, left for recovery")
	}

	if uc.metrics != nil {
		uc.metrics.Compensations.WithLabelValues(result).Inc()
	}
}

func (uc *TransferUseCase) finalizeTransaction(ctx context.Context, transfer *domain.Transfer, status domain.TransactionStatus, b backoff.BackOff) error {
	if transfer.TransactionID == nil {
		return uc.finalizeByReference(ctx, transfer, status, b)
	}
	id := *transfer.TransactionID

	return backoff.Retry(func() error {
		_, err := uc.ledger.Finalize(ctx, id, status)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, domain.ErrInvalidStateTransition):
			// Already finalized by an earlier attempt.
			record, lookupErr := uc.ledger.GetByReference(ctx, transfer.Reference)
			if lookupErr == nil && record.Status == status {
				return nil
			}
			return backoff.Permanent(err)
		case errors.Is(err, domain.ErrLedgerUnavailable):
			return err
		}
		return backoff.Permanent(err)
	}, b)
}

// finalizeByReference finalizes a record whose write was never confirmed.
// Without a matching record under the reference there is nothing to do.
func (uc *TransferUseCase) finalizeByReference(ctx context.Context, transfer *domain.Transfer, status domain.TransactionStatus, b backoff.BackOff) error {
	var record *domain.Transaction
	err := backoff.Retry(func() error {
		var err error
		record, err = uc.ledger.GetByReference(ctx, transfer.Reference)
		if err != nil && !errors.Is(err, domain.ErrLedgerUnavailable) {
			return backoff.Permanent(err)
		}
		return err
	}, b)
	if errors.Is(err, domain.ErrTransactionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	recipient := transfer.RecipientAccountID
	if !record.Matches(transfer.SenderAccountID, &recipient, transfer.Amount) {
		return nil
	}
	transfer.TransactionID = &record.ID
	if record.Status == status {
		return nil
	}
	return uc.finalizeTransaction(ctx, transfer, status, b)
}

func (uc *TransferUseCase) finalizeLater(ctx context.Context, id string) {
	bg := context.WithoutCancel(ctx)
	policy := uc.retry
	policy.MaxRetries = uint64(uc.finalizeMaxAttempts)

	uc.wg.Add(1)
	go func() {
		defer uc.wg.Done()

		err := backoff.Retry(func() error {
			_, err := uc.RetryFinalize(bg, id)
			if errors.Is(err, domain.ErrFinalizeExhausted) {
				return backoff.Permanent(err)
			}
			return err
		}, policy.backOff(bg))
		if err != nil {
			uc.logger.Error().Err(err).Str("transfer_id", id).Msg("background finalize gave up")
		}
	}()
}

// RetryFinalize makes one attempt to finalize the ledger record of a
// transfer flagged FinalizePending.
func (uc *TransferUseCase) RetryFinalize(ctx context.Context, id string) (*domain.Transfer, error) {
	transfer, err := uc.transferRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !transfer.FinalizePending {
		return transfer, nil
	}
	if transfer.FinalizeAttempts >= uc.finalizeMaxAttempts {
		return transfer, fmt.Errorf("%w: %d attempts", domain.ErrFinalizeExhausted, transfer.FinalizeAttempts)
	}

	status := domain.TransactionStatusCompleted
	if transfer.State == domain.SagaStateFailed {
		status = domain.TransactionStatusFailed
	}

	finalizeErr := uc.finalizeTransaction(ctx, transfer, status, &backoff.StopBackOff{})
	transfer.FinalizeAttempts++
	if finalizeErr == nil {
		transfer.FinalizePending = false
	}
	if err := uc.save(ctx, transfer); err != nil {
		return transfer, err
	}

	if uc.metrics != nil {
		result := "success"
		if finalizeErr != nil {
			result = "failed"
		}
		uc.metrics.FinalizeRetries.WithLabelValues(result).Inc()
	}

	return transfer, finalizeErr
}

// RetryCompensation reissues the reversal credit of a transfer flagged
// CompensationPending.
func (uc *TransferUseCase) RetryCompensation(ctx context.Context, id string) (*domain.Transfer, error) {
	transfer, err := uc.transferRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !transfer.CompensationPending {
		return transfer, nil
	}

	uc.compensate(ctx, transfer)
	if err := uc.save(ctx, transfer); err != nil {
		return transfer, err
	}
	if transfer.CompensationPending {
		return transfer, domain.ErrAccountServiceUnavailable
	}
	return transfer, nil
}

// ResolveDebit settles a transfer whose debit outcome was unknown. An
// applied debit is reversed; a missing one clears the flag.
func (uc *TransferUseCase) ResolveDebit(ctx context.Context, id string) (*domain.Transfer, error) {
	transfer, err := uc.transferRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !transfer.DebitInDoubt {
		return transfer, nil
	}

	applied, known := uc.movementApplied(ctx, transfer.SenderAccountID, transfer.Reference, domain.MovementDebit)
	if !known {
		return transfer, domain.ErrAccountServiceUnavailable
	}
	if applied {
		uc.compensate(ctx, transfer)
	}
	transfer.DebitInDoubt = false

	if err := uc.save(ctx, transfer); err != nil {
		return transfer, err
	}
	return transfer, nil
}

// ResolveCredit settles a transfer whose recipient credit had an unknown
// outcome. A credit that landed completes the transfer. A missing one is
// issued again, and a refusal then reverses the sender.
func (uc *TransferUseCase) ResolveCredit(ctx context.Context, id string) (*domain.Transfer, error) {
	transfer, err := uc.transferRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !transfer.CreditInDoubt || transfer.State != domain.SagaStateLedgerWritten {
		return transfer, nil
	}

	applied, known := uc.movementApplied(ctx, transfer.RecipientAccountID, transfer.Reference, domain.MovementCredit)
	if !known {
		return transfer, domain.ErrAccountServiceUnavailable
	}
	transfer.CreditInDoubt = false
	if applied {
		if err := uc.advance(ctx, transfer, domain.SagaStateCredited); err != nil {
			if errors.Is(err, errClaimLost) {
				return transfer, nil
			}
			return transfer, err
		}
	}

	resolved, err := uc.run(ctx, transfer)
	if resolved.State.IsTerminal() {
		return resolved, nil
	}
	return resolved, err
}

// Cancel cancels a transfer before any money has moved.
func (uc *TransferUseCase) Cancel(ctx context.Context, id string) (*domain.Transfer, error) {
	for attempt := 0; attempt < 3; attempt++ {
		transfer, err := uc.transferRepo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if !transfer.Cancellable() {
			return nil, domain.ErrTransferNotCancellable
		}

		if err := transfer.Advance(domain.SagaStateCancelled, time.Now().UTC()); err != nil {
			return nil, domain.ErrTransferNotCancellable
		}

		if err := uc.save(ctx, transfer); err != nil {
			if errors.Is(err, domain.ErrConcurrentModification) {
				continue
			}
			return nil, err
		}

		uc.logTransition(transfer)
		uc.finish(ctx, transfer)
		return transfer, nil
	}

	return nil, domain.ErrConcurrentModification
}

// Retry starts a new transfer with a new reference for a failed transfer
// that holds no funds.
func (uc *TransferUseCase) Retry(ctx context.Context, id string) (*domain.Transfer, error) {
	original, err := uc.transferRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !original.Retryable() {
		return nil, domain.ErrTransferNotRetryable
	}

	return uc.Initiate(ctx, InitiateTransferInput{
		SenderAccountID:    original.SenderAccountID,
		RecipientAccountID: original.RecipientAccountID,
		Amount:             original.Amount,
		Currency:           original.Currency,
		Type:               original.Type,
		Description:        original.Description,
		UserID:             original.UserID,
		retryOf:            &original.ID,
	})
}

// Get retrieves a transfer by ID. Settled transfers are served from cache.
func (uc *TransferUseCase) Get(ctx context.Context, id string) (*domain.Transfer, error) {
	key := transferCacheKey(id)

	if uc.cache != nil {
		if data, err := uc.cache.Get(ctx, key); err == nil && data != nil {
			var cached domain.Transfer
			if err := json.Unmarshal(data, &cached); err == nil {
				return &cached, nil
			}
		}
	}

	transfer, err := uc.transferRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if uc.cache != nil && transfer.State.IsTerminal() && !transfer.NeedsRecovery() {
		if data, err := json.Marshal(transfer); err == nil {
			if err := uc.cache.Set(ctx, key, data, TerminalTransferCacheTTL); err != nil {
				uc.logger.Debug().Err(err).Str("transfer_id", id).Msg("transfer cache set failed")
			}
		}
	}

	return transfer, nil
}

// GetByReference retrieves a transfer by its reference.
func (uc *TransferUseCase) GetByReference(ctx context.Context, reference string) (*domain.Transfer, error) {
	return uc.transferRepo.GetByReference(ctx, reference)
}

// ListTransfersInput represents input for listing an account's transfers.
type ListTransfersInput struct {
	AccountID string
	Direction TransferDirection
	Limit     int
	Offset    int
}

// ListByAccount lists transfers sent or received by an account.
func (uc *TransferUseCase) ListByAccount(ctx context.Context, input ListTransfersInput) ([]*domain.Transfer, error) {
	switch input.Direction {
	case "":
		input.Direction = TransferDirectionAll
	case TransferDirectionAll, TransferDirectionSent, TransferDirectionReceived:
	default:
		return nil, fmt.Errorf("%w: unknown direction %q", domain.ErrInvalidType, input.Direction)
	}
	limit, offset := domain.ValidatePagination(input.Limit, input.Offset)
	return uc.transferRepo.ListByAccount(ctx, input.AccountID, input.Direction, limit, offset)
}

// Stats aggregates an account's transfers.
func (uc *TransferUseCase) Stats(ctx context.Context, accountID string) (*domain.TransferStats, error) {
	return uc.transferRepo.Stats(ctx, accountID)
}

func (uc *TransferUseCase) advance(ctx context.Context, transfer *domain.Transfer, next domain.SagaState) error {
	if err := transfer.Advance(next, time.Now().UTC()); err != nil {
		return err
	}
	if err := uc.save(ctx, transfer); err != nil {
		if errors.Is(err, domain.ErrConcurrentModification) {
			return uc.reload(ctx, transfer)
		}
		return err
	}
	uc.logTransition(transfer)
	return nil
}

// fail records the failure and returns cause.
func (uc *TransferUseCase) fail(ctx context.Context, transfer *domain.Transfer, code string, cause error) error {
	if err := transfer.Fail(code, cause.Error(), time.Now().UTC()); err != nil {
		return err
	}
	if err := uc.save(ctx, transfer); err != nil {
		uc.logger.Error().Err(err).Str("transfer_id", transfer.ID).Msg("failed to persist transfer failure")
		return errors.Join(cause, err)
	}

	uc.logger.Warn().
		Str("transfer_id", transfer.ID).
		Str("reference", transfer.Reference).
		Str("state", string(transfer.State)).
		Str("failure_code", code).
		Str("reason", transfer.FailureReason).
		Bool("compensated", transfer.Compensated).
		Bool("compensation_pending", transfer.CompensationPending).
		Msg("transfer failed")

	return cause
}

func (uc *TransferUseCase) save(ctx context.Context, transfer *domain.Transfer) error {
	if err := uc.transferRepo.Update(ctx, transfer); err != nil {
		return err
	}
	if uc.cache != nil && transfer.State.IsTerminal() {
		_ = uc.cache.Delete(ctx, transferCacheKey(transfer.ID))
	}
	return nil
}

func (uc *TransferUseCase) reload(ctx context.Context, transfer *domain.Transfer) error {
	fresh, err := uc.transferRepo.GetByID(ctx, transfer.ID)
	if err != nil {
		return err
	}
	*transfer = *fresh
	if transfer.State.IsTerminal() {
		return errClaimLost
	}
	return domain.ErrConcurrentModification
}

func (uc *TransferUseCase) finish(ctx context.Context, transfer *domain.Transfer) {
	if uc.metrics != nil {
		uc.metrics.TransfersFinished.WithLabelValues(string(transfer.State), transfer.FailureCode).Inc()
		uc.metrics.TransferDuration.Observe(transfer.UpdatedAt.Sub(transfer.CreatedAt).Seconds())
	}

	eventType := domain.EventTypeTransferCompleted
	switch transfer.State {
	case domain.SagaStateFailed:
		eventType = domain.EventTypeTransferFailed
	case domain.SagaStateCancelled:
		eventType = domain.EventTypeTransferCancelled
	}
	uc.emit(ctx, transfer, eventType)
}

func (uc *TransferUseCase) emit(ctx context.Context, transfer *domain.Transfer, eventType string) {
	if uc.txManager == nil || uc.outboxRepo == nil {
		return
	}

	payload := map[string]any{
		"transfer_id":  transfer.ID,
		"reference":    transfer.Reference,
		"sender":       transfer.SenderAccountID,
		"recipient":    transfer.RecipientAccountID,
		"amount":       transfer.Amount.String(),
		"fee":          transfer.Fee.String(),
		"currency":     transfer.Currency,
		"status":       string(transfer.Status),
		"failure_code": transfer.FailureCode,
	}

	err := func() error {
		tx, err := uc.txManager.Begin(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(ctx) }()

		event := domain.NewOutboxEvent(uc.idGen.Generate(), domain.AggregateTypeTransfer, transfer.ID, eventType, payload, transfer.UpdatedAt)
		if err := uc.outboxRepo.Create(ctx, tx, event); err != nil {
			return err
		}
		return tx.Commit(ctx)
	}()
	if err != nil {
		uc.logger.Error().Err(err).Str("transfer_id", transfer.ID).Str("event_type", eventType).Msg("failed to write transfer event")
	}
}

func (uc *TransferUseCase) logTransition(transfer *domain.Transfer) {
	uc.logger.Info().
		Str("transfer_id", transfer.ID).
		Str("reference", transfer.Reference).
		Str("state", string(transfer.State)).
		Str("status", string(transfer.Status)).
		Msg("saga transition")
}

func transferCacheKey(id string) string {
	return "transfer:" + id
}

// rejection turns a refused movement into an error.
func rejection(res MovementResult) error {
	if res.Err != nil {
		return res.Err
	}
	if res.Reason != "" {
		return errors.New(res.Reason)
	}
	return domain.ErrAccountServiceUnavailable
}

func failureCode(err error, fallback string) string {
	switch {
	case errors.Is(err, domain.ErrInsufficientBalance):
		return domain.FailureCodeInsufficientFunds
	case errors.Is(err, domain.ErrAccountNotFound):
		return domain.FailureCodeAccountNotFound
	case errors.Is(err, domain.ErrAccountNotActive):
		return domain.FailureCodeAccountNotActive
	case errors.Is(err, domain.ErrCurrencyMismatch):
		return domain.FailureCodeCurrencyMismatch
	case errors.Is(err, domain.ErrSameAccount):
		return domain.FailureCodeSameAccount
	case errors.Is(err, domain.ErrInvalidAmount):
		return domain.FailureCodeInvalidAmount
	case errors.Is(err, domain.ErrAccountServiceUnavailable), errors.Is(err, domain.ErrLedgerUnavailable):
		return domain.FailureCodeServiceUnavailable
	}
	return fallback
}
