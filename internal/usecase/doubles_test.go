package usecase_test

import (
	"context"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/iho/fundscore/internal/domain"
	"github.com/iho/fundscore/internal/usecase"
)

// faults are the outages faultyAccounts injects.
type faults struct {
	// movementsDown makes every debit, credit and movement check unreachable
	// without touching balances.
	movementsDown bool
	// loseDebitReply applies the debit and then reports it unreachable.
	loseDebitReply bool
	// loseCreditReply applies a recipient credit and then reports it
	// unreachable.
	loseCreditReply bool
	// checksDown makes movement checks unreachable.
	checksDown bool
	// reversalsDown makes compensating credits unreachable.
	reversalsDown bool
	beforeCredit  func(accountID string)
}

// faultyAccounts wraps an account gateway and injects outages.
type faultyAccounts struct {
	usecase.AccountGateway

	mu     sync.Mutex
	faults faults
	debits int
}

func withFaultyAccounts(f *faultyAccounts) func(*usecase.TransferUseCaseConfig) {
	return func(cfg *usecase.TransferUseCaseConfig) {
		f.AccountGateway = cfg.Accounts
		cfg.Accounts = f
	}
}

func (f *faultyAccounts) set(fn func(*faults)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(&f.faults)
}

func (f *faultyAccounts) snapshot() faults {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.faults
}

func (f *faultyAccounts) Debit(ctx context.Context, accountID string, amount decimal.Decimal, reference string) usecase.MovementResult {
	f.mu.Lock()
	f.debits++
	f.mu.Unlock()

	s := f.snapshot()
	if s.movementsDown {
		return usecase.FallbackMovement()
	}
	res := f.AccountGateway.Debit(ctx, accountID, amount, reference)
	if s.loseDebitReply {
		return usecase.FallbackMovement()
	}
	return res
}

func (f *faultyAccounts) Credit(ctx context.Context, accountID string, amount decimal.Decimal, reference string) usecase.MovementResult {
	s := f.snapshot()
	if s.movementsDown {
		return usecase.FallbackMovement()
	}
	if s.reversalsDown && strings.HasSuffix(reference, usecase.ReversalSuffix) {
		return usecase.FallbackMovement()
	}
	if s.beforeCredit != nil {
		s.beforeCredit(accountID)
	}
	res := f.AccountGateway.Credit(ctx, accountID, amount, reference)
	if s.loseCreditReply && !strings.HasSuffix(reference, usecase.ReversalSuffix) {
		return usecase.FallbackMovement()
	}
	return res
}

func (f *faultyAccounts) Movement(ctx context.Context, accountID, reference string, direction domain.MovementDirection) usecase.MovementResult {
	s := f.snapshot()
	if s.movementsDown || s.checksDown {
		return usecase.FallbackMovement()
	}
	return f.AccountGateway.Movement(ctx, accountID, reference, direction)
}

func (f *faultyAccounts) debitCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.debits
}

// flakyLedger wraps a ledger client and fails finalize calls.
type flakyLedger struct {
	usecase.LedgerClient

	mu sync.Mutex
	// finalizeFailures is how many finalize calls fail before they pass
	// through. A negative value fails every call.
	finalizeFailures int
	finalizeCalls    int
	// loseRecordReply writes the record and then reports the ledger
	// unavailable.
	loseRecordReply bool
	// lookupsDown makes reference lookups unavailable.
	lookupsDown bool
}

func withFlakyLedger(l *flakyLedger) func(*usecase.TransferUseCaseConfig) {
	return func(cfg *usecase.TransferUseCaseConfig) {
		l.LedgerClient = cfg.Ledger
		cfg.Ledger = l
	}
}

func (l *flakyLedger) setFinalizeFailures(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.finalizeFailures = n
}

func (l *flakyLedger) calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.finalizeCalls
}

func (l *flakyLedger) RecordPending(ctx context.Context, input usecase.RecordPendingInput) (*domain.Transaction, error) {
	record, err := l.LedgerClient.RecordPending(ctx, input)
	l.mu.Lock()
	lose := l.loseRecordReply
	l.mu.Unlock()
	if err == nil && lose {
		return nil, domain.ErrLedgerUnavailable
	}
	return record, err
}

func (l *flakyLedger) setLookupsDown(down bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lookupsDown = down
}

func (l *flakyLedger) GetByReference(ctx context.Context, reference string) (*domain.Transaction, error) {
	l.mu.Lock()
	down := l.lookupsDown
	l.mu.Unlock()
	if down {
		return nil, domain.ErrLedgerUnavailable
	}
	return l.LedgerClient.GetByReference(ctx, reference)
}

func (l *flakyLedger) Finalize(ctx context.Context, id string, status domain.TransactionStatus) (*domain.Transaction, error) {
	l.mu.Lock()
	l.finalizeCalls++
	fail := l.finalizeFailures != 0
	if l.finalizeFailures > 0 {
		l.finalizeFailures--
	}
	l.mu.Unlock()

	if fail {
		return nil, domain.ErrLedgerUnavailable
	}
	return l.LedgerClient.Finalize(ctx, id, status)
}
