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

// AccountUseCase is the account ledger: the single source of truth for an
// account's balances. Every credit and debit runs in one storage
// transaction holding the account's row lock.
type AccountUseCase struct {
	txManager    TransactionManager
	accountRepo  AccountRepository
	movementRepo MovementRepository
	outboxRepo   OutboxRepository
	idGen        IDGenerator
	numberGen    AccountNumberGenerator
	retrier      Retrier
	logger       zerolog.Logger
	metrics      *metrics.Metrics
}

// AccountUseCaseConfig holds dependencies for AccountUseCase.
type AccountUseCaseConfig struct {
	TxManager    TransactionManager
	AccountRepo  AccountRepository
	MovementRepo MovementRepository
	OutboxRepo   OutboxRepository
	IDGen        IDGenerator
	NumberGen    AccountNumberGenerator
	Retrier      Retrier
	Logger       zerolog.Logger
	Metrics      *metrics.Metrics
}

// NewAccountUseCase creates a new AccountUseCase.
func NewAccountUseCase(cfg AccountUseCaseConfig) *AccountUseCase {
	if cfg.NumberGen == nil {
		cfg.NumberGen = RandomAccountNumberGenerator{}
	}
	return &AccountUseCase{
		txManager:    cfg.TxManager,
		accountRepo:  cfg.AccountRepo,
		movementRepo: cfg.MovementRepo,
		outboxRepo:   cfg.OutboxRepo,
		idGen:        cfg.IDGen,
		numberGen:    cfg.NumberGen,
		retrier:      cfg.Retrier,
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
	}
}

// OpenAccountInput represents input for opening an account.
type OpenAccountInput struct {
	UserID         string
	Type           domain.AccountType
	Name           string
	Currency       string
	MinimumBalance decimal.Decimal
	DailyLimit     decimal.Decimal
	MonthlyLimit   decimal.Decimal
}

// Open creates a new account in PENDING state with zero balances.
func (uc *AccountUseCase) Open(ctx context.Context, input OpenAccountInput) (*domain.Account, error) {
	if input.Currency == "" {
		input.Currency = domain.DefaultCurrency
	}
	input.Currency = strings.ToUpper(input.Currency)

	if err := domain.ValidateAccountName(input.Name); err != nil {
		return nil, err
	}
	if err := domain.ValidateAccountType(input.Type); err != nil {
		return nil, err
	}
	if err := domain.ValidateCurrency(input.Currency); err != nil {
		return nil, err
	}
	for _, limit := range []decimal.Decimal{input.MinimumBalance, input.DailyLimit, input.MonthlyLimit} {
		if limit.IsNegative() {
			return nil, fmt.Errorf("%w: limits must not be negative", domain.ErrInvalidAmount)
		}
	}

	number, err := uc.uniqueAccountNumber(ctx, input.Type)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	account := &domain.Account{
		ID:               uc.idGen.Generate(),
		AccountNumber:    number,
		UserID:           input.UserID,
		Type:             input.Type,
		Name:             strings.TrimSpace(input.Name),
		Currency:         input.Currency,
		Status:           domain.AccountStatusPending,
		Balance:          decimal.Zero,
		AvailableBalance: decimal.Zero,
		MinimumBalance:   input.MinimumBalance,
		DailyLimit:       input.DailyLimit,
		MonthlyLimit:     input.MonthlyLimit,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := uc.txManager.Begin(txCtx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	if err := uc.accountRepo.Create(txCtx, tx, account); err != nil {
		return nil, err
	}

	if err := uc.emit(txCtx, tx, account.ID, domain.EventTypeAccountOpened, map[string]any{
		"account_id":     account.ID,
		"account_number": account.AccountNumber,
		"type":           string(account.Type),
		"currency":       account.Currency,
	}, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(txCtx); err != nil {
		return nil, err
	}

	if uc.metrics != nil {
		uc.metrics.AccountsOpened.Inc()
	}

	return account, nil
}

func (uc *AccountUseCase) uniqueAccountNumber(ctx context.Context, accountType domain.AccountType) (string, error) {
	for attempt := 0; attempt < MaxAccountNumberAttempts; attempt++ {
		number := uc.numberGen.NewAccountNumber(accountType)
		exists, err := uc.accountRepo.ExistsByNumber(ctx, number)
		if err != nil {
			return "", err
		}
		if !exists {
			return number, nil
		}
	}

	uc.logger.Error().Int("attempts", MaxAccountNumberAttempts).Msg("failed to generate unique account number")
	return "", fmt.Errorf("%w: account number after %d attempts", domain.ErrIDGenerationExhausted, MaxAccountNumberAttempts)
}

// Get retrieves an account by ID.
func (uc *AccountUseCase) Get(ctx context.Context, id string) (*domain.Account, error) {
	return uc.accountRepo.GetByID(ctx, id)
}

// GetByNumber retrieves an account by account number.
func (uc *AccountUseCase) GetByNumber(ctx context.Context, accountNumber string) (*domain.Account, error) {
	return uc.accountRepo.GetByNumber(ctx, accountNumber)
}

// Lookup resolves ref as an account ID first and an account number second.
func (uc *AccountUseCase) Lookup(ctx context.Context, ref string) (*domain.Account, error) {
	account, err := uc.accountRepo.GetByID(ctx, ref)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, domain.ErrAccountNotFound) {
		return nil, err
	}
	return uc.accountRepo.GetByNumber(ctx, ref)
}

// ListAccountsInput represents input for listing accounts.
type ListAccountsInput struct {
	Limit  int
	Offset int
}

// List lists accounts with pagination.
func (uc *AccountUseCase) List(ctx context.Context, input ListAccountsInput) ([]*domain.Account, error) {
	limit, offset := domain.ValidatePagination(input.Limit, input.Offset)
	return uc.accountRepo.List(ctx, limit, offset)
}

// MovementInput represents a credit or debit request.
type MovementInput struct {
	AccountID string
	Amount    decimal.Decimal
	Reference string
}

// MovementOutput is the result of a credit or debit.
type MovementOutput struct {
	Movement *domain.Movement
	Account  *domain.Account
	// Replayed is true when the reference had already been applied and
	// nothing changed.
	Replayed bool
}

// Credit adds amount to the account's balance and available balance.
func (uc *AccountUseCase) Credit(ctx context.Context, input MovementInput) (*MovementOutput, error) {
	return uc.move(ctx, input, domain.MovementCredit)
}

// Debit removes amount from the account's balance and available balance.
// It fails with *domain.InsufficientBalanceError when the available
// balance cannot cover amount.
func (uc *AccountUseCase) Debit(ctx context.Context, input MovementInput) (*MovementOutput, error) {
	return uc.move(ctx, input, domain.MovementDebit)
}

func (uc *AccountUseCase) move(ctx context.Context, input MovementInput, direction domain.MovementDirection) (*MovementOutput, error) {
	if input.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, domain.ErrInvalidAmount
	}
	if err := domain.ValidateReference(input.Reference); err != nil {
		return nil, err
	}

	operation := strings.ToLower(string(direction))

	var out *MovementOutput
	run := func() error {
		var err error
		out, err = uc.moveTx(ctx, input, direction)
		return err
	}

	var err error
	if uc.retrier != nil {
		err = uc.retrier.Retry(ctx, run)
	} else {
		err = run()
	}

	if uc.metrics != nil {
		result := "success"
		switch {
		case err != nil:
			result = "rejected"
		case out.Replayed:
			result = "replayed"
			uc.metrics.MovementReplays.WithLabelValues(operation).Inc()
		}
		uc.metrics.AccountOperations.WithLabelValues(operation, result).Inc()
	}

	if err != nil {
		return nil, err
	}

	uc.logger.Debug().
		Str("account_id", input.AccountID).
		Str("reference", input.Reference).
		Str("direction", string(direction)).
		Bool("replayed", out.Replayed).
		Str("balance_after", out.Movement.BalanceAfter.String()).
		Msg("movement applied")

	return out, nil
}

func (uc *AccountUseCase) moveTx(ctx context.Context, input MovementInput, direction domain.MovementDirection) (*MovementOutput, error) {
	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := uc.txManager.Begin(txCtx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	// Lock account
	account, err := uc.accountRepo.GetByIDForUpdate(txCtx, tx, input.AccountID)
	if err != nil {
		return nil, err
	}

	// A reference that was already applied replays the recorded result.
	existing, err := uc.movementRepo.GetByReference(txCtx, tx, account.ID, input.Reference, direction)
	switch {
	case err == nil:
		if !existing.Amount.Equal(input.Amount) {
			return nil, fmt.Errorf("%w: %s was applied with amount %s", domain.ErrDuplicateReference, input.Reference, existing.Amount)
		}
		return &MovementOutput{Movement: existing, Account: account, Replayed: true}, nil
	case !errors.Is(err, domain.ErrMovementNotFound):
		return nil, err
	}

	now := time.Now().UTC()
	eventType := domain.EventTypeAccountCredited

	if direction == domain.MovementDebit {
		if err := account.ValidateDebit(input.Amount); err != nil {
			return nil, err
		}
		account.ApplyDebit(input.Amount, now)
		eventType = domain.EventTypeAccountDebited
	} else {
		if err := account.ValidateCredit(input.Amount); err != nil {
			return nil, err
		}
		account.ApplyCredit(input.Amount, now)
	}

	if err := account.CheckInvariants(); err != nil {
		return nil, err
	}

	if err := uc.accountRepo.Update(txCtx, tx, account); err != nil {
		return nil, err
	}

	movement := &domain.Movement{
		ID:           uc.idGen.Generate(),
		AccountID:    account.ID,
		Reference:    input.Reference,
		Direction:    direction,
		Amount:       input.Amount,
		BalanceAfter: account.Balance,
		CreatedAt:    now,
	}
	if err := uc.movementRepo.Create(txCtx, tx, movement); err != nil {
		return nil, err
	}

	if err := uc.emit(txCtx, tx, account.ID, eventType, map[string]any{
		"account_id":    account.ID,
		"reference":     movement.Reference,
		"amount":        movement.Amount.String(),
		"balance_after": movement.BalanceAfter.String(),
		"currency":      account.Currency,
	}, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(txCtx); err != nil {
		return nil, err
	}

	return &MovementOutput{Movement: movement, Account: account}, nil
}

// GetMovement returns the movement applied under reference, or
// domain.ErrMovementNotFound.
func (uc *AccountUseCase) GetMovement(ctx context.Context, accountID, reference string, direction domain.MovementDirection) (*domain.Movement, error) {
	return uc.movementRepo.GetByReference(ctx, nil, accountID, reference, direction)
}

// Activate moves the account to ACTIVE.
func (uc *AccountUseCase) Activate(ctx context.Context, id string) (*domain.Account, error) {
	return uc.transition(ctx, id, "activate", (*domain.Account).Activate)
}

// Freeze moves the account to FROZEN.
func (uc *AccountUseCase) Freeze(ctx context.Context, id string) (*domain.Account, error) {
	return uc.transition(ctx, id, "freeze", (*domain.Account).Freeze)
}

// Close moves the account to CLOSED. The account must have a zero balance.
func (uc *AccountUseCase) Close(ctx context.Context, id string) (*domain.Account, error) {
	return uc.transition(ctx, id, "close", (*domain.Account).Close)
}

func (uc *AccountUseCase) transition(
	ctx context.Context,
	id, operation string,
	apply func(*domain.Account, time.Time) (bool, error),
) (*domain.Account, error) {
	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := uc.txManager.Begin(txCtx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	account, err := uc.accountRepo.GetByIDForUpdate(txCtx, tx, id)
	if err != nil {
		return nil, err
	}

	previous := account.Status
	now := time.Now().UTC()

	changed, err := apply(account, now)
	if err != nil {
		return nil, err
	}
	if !changed {
		return account, nil
	}

	if err := uc.accountRepo.Update(txCtx, tx, account); err != nil {
		return nil, err
	}

	if err := uc.emit(txCtx, tx, account.ID, domain.EventTypeAccountStatusChanged, map[string]any{
		"account_id": account.ID,
		"from":       string(previous),
		"to":         string(account.Status),
	}, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(txCtx); err != nil {
		return nil, err
	}

	if uc.metrics != nil {
		uc.metrics.AccountOperations.WithLabelValues(operation, "success").Inc()
	}

	uc.logger.Info().
		Str("account_id", account.ID).
		Str("from", string(previous)).
		Str("to", string(account.Status)).
		Msg("account status changed")

	return account, nil
}

func (uc *AccountUseCase) emit(ctx context.Context, tx Transaction, accountID, eventType string, payload map[string]any, at time.Time) error {
	if uc.outboxRepo == nil {
		return nil
	}
	event := domain.NewOutboxEvent(uc.idGen.Generate(), domain.AggregateTypeAccount, accountID, eventType, payload, at)
	return uc.outboxRepo.Create(ctx, tx, event)
}
