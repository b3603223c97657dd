package usecase

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/iho/fundscore/internal/domain"
	"github.com/iho/fundscore/internal/infrastructure/metrics"
)

// TransferRecoverer is the part of the orchestrator the recovery worker
// drives.
type TransferRecoverer interface {
	Resume(ctx context.Context, id string) (*domain.Transfer, error)
	RetryFinalize(ctx context.Context, id string) (*domain.Transfer, error)
	RetryCompensation(ctx context.Context, id string) (*domain.Transfer, error)
	ResolveDebit(ctx context.Context, id string) (*domain.Transfer, error)
	ResolveCredit(ctx context.Context, id string) (*domain.Transfer, error)
}

var _ TransferRecoverer = (*TransferUseCase)(nil)

// RecoveryUseCase finishes work a saga could not complete inline: pending
// finalizations and compensations, movements with unknown outcome and sagas
// that stopped mid-way.
type RecoveryUseCase struct {
	transferRepo        TransferRepository
	transfers           TransferRecoverer
	logger              zerolog.Logger
	metrics             *metrics.Metrics
	interval            time.Duration
	staleAfter          time.Duration
	batchSize           int
	finalizeMaxAttempts int
}

// RecoveryConfig for RecoveryUseCase.
type RecoveryConfig struct {
	TransferRepo TransferRepository
	Transfers    TransferRecoverer
	Logger       zerolog.Logger
	Metrics      *metrics.Metrics
	Interval     time.Duration // Polling interval
	// StaleAfter is how long a non-terminal transfer may sit untouched
	// before it is resumed.
	StaleAfter          time.Duration
	BatchSize           int
	FinalizeMaxAttempts int
}

// RecoveryReport counts what one pass handled.
type RecoveryReport struct {
	Finalized   int
	Compensated int
	Resolved    int
	Resumed     int
	Failed      int
}

// NewRecoveryUseCase creates a new RecoveryUseCase.
func NewRecoveryUseCase(cfg RecoveryConfig) *RecoveryUseCase {
	if cfg.Interval == 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.StaleAfter == 0 {
		cfg.StaleAfter = 2 * time.Minute
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 100
	}
	if cfg.FinalizeMaxAttempts == 0 {
		cfg.FinalizeMaxAttempts = DefaultFinalizeMaxAttempts
	}

	return &RecoveryUseCase{
		transferRepo:        cfg.TransferRepo,
		transfers:           cfg.Transfers,
		logger:              cfg.Logger,
		metrics:             cfg.Metrics,
		interval:            cfg.Interval,
		staleAfter:          cfg.StaleAfter,
		batchSize:           cfg.BatchSize,
		finalizeMaxAttempts: cfg.FinalizeMaxAttempts,
	}
}

// Start runs recovery passes until ctx is cancelled.
func (uc *RecoveryUseCase) Start(ctx context.Context) error {
	uc.logger.Info().
		Dur("interval", uc.interval).
		Dur("stale_after", uc.staleAfter).
		Msg("transfer recovery started")

	ticker := time.NewTicker(uc.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			uc.logger.Info().Msg("transfer recovery shutting down")
			return ctx.Err()
		case <-ticker.C:
			if _, err := uc.RunOnce(ctx); err != nil {
				uc.logger.Error().Err(err).Msg("recovery pass failed")
			}
		}
	}
}

// RunOnce makes a single recovery pass.
func (uc *RecoveryUseCase) RunOnce(ctx context.Context) (RecoveryReport, error) {
	var report RecoveryReport

	flagged, err := uc.transferRepo.ListNeedingRecovery(ctx, uc.batchSize)
	if err != nil {
		return report, err
	}

	for _, t := range flagged {
		// The debit outcome decides whether a reversal is owed, so it goes
		// before the compensation retry.
		if t.DebitInDoubt {
			uc.handle(ctx, "debit_in_doubt", t, uc.transfers.ResolveDebit, &report.Resolved, &report)
			continue
		}
		if t.CreditInDoubt {
			uc.handle(ctx, "credit_in_doubt", t, uc.transfers.ResolveCredit, &report.Resolved, &report)
			continue
		}
		if t.CompensationPending {
			uc.handle(ctx, "compensation", t, uc.transfers.RetryCompensation, &report.Compensated, &report)
		}
		if t.FinalizePending {
			if t.FinalizeAttempts >= uc.finalizeMaxAttempts {
				uc.logger.Error().
					Str("transfer_id", t.ID).
					Int("attempts", t.FinalizeAttempts).
					Msg("finalize attempts exhausted, needs manual attention")
				continue
			}
			uc.handle(ctx, "finalize", t, uc.transfers.RetryFinalize, &report.Finalized, &report)
		}
	}

	stale, err := uc.transferRepo.ListStale(ctx, time.Now().UTC().Add(-uc.staleAfter), uc.batchSize)
	if err != nil {
		return report, err
	}
	for _, t := range stale {
		// Flagged transfers were handled above.
		if t.NeedsRecovery() {
			continue
		}
		uc.handle(ctx, "stale", t, uc.transfers.Resume, &report.Resumed, &report)
	}

	if total := report.Finalized + report.Compensated + report.Resolved + report.Resumed + report.Failed; total > 0 {
		uc.logger.Info().
			Int("finalized", report.Finalized).
			Int("compensated", report.Compensated).
			Int("resolved", report.Resolved).
			Int("resumed", report.Resumed).
			Int("failed", report.Failed).
			Msg("recovery pass done")
	}

	return report, nil
}

func (uc *RecoveryUseCase) handle(
	ctx context.Context,
	kind string,
	t *domain.Transfer,
	fn func(context.Context, string) (*domain.Transfer, error),
	counter *int,
	report *RecoveryReport,
) {
	result := "success"
	recovered, err := fn(ctx, t.ID)
	// A resumed saga that ends FAILED has still been recovered.
	if err != nil && recovered != nil && kind == "stale" && recovered.State.IsTerminal() {
		err = nil
	}
	if err != nil {
		result = "failed"
		report.Failed++
		uc.logger.Warn().Err(err).Str("transfer_id", t.ID).Str("kind", kind).Msg("recovery attempt failed")
	} else {
		*counter++
	}

	if uc.metrics != nil {
		uc.metrics.RecoveredTransfers.WithLabelValues(kind, result).Inc()
	}
}
