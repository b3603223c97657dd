package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "fundscore"

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Account ledger metrics
	AccountsOpened    prometheus.Counter
	AccountOperations *prometheus.CounterVec
	MovementReplays   *prometheus.CounterVec

	// Transaction ledger metrics
	TransactionsRecorded  *prometheus.CounterVec
	TransactionsFinalized *prometheus.CounterVec
	ReferenceCollisions   prometheus.Counter

	// Transfer orchestrator metrics
	TransfersStarted   prometheus.Counter
	TransfersFinished  *prometheus.CounterVec
	TransferDuration   prometheus.Histogram
	TransferAmount     prometheus.Histogram
	SagaSteps          *prometheus.CounterVec
	Compensations      *prometheus.CounterVec
	FinalizeRetries    *prometheus.CounterVec
	RecoveredTransfers *prometheus.CounterVec

	// Gateway metrics
	GatewayCalls    *prometheus.CounterVec
	GatewayDuration *prometheus.HistogramVec
	BreakerState    *prometheus.GaugeVec

	// Outbox metrics
	EventsPublished *prometheus.CounterVec
	EventErrors     prometheus.Counter

	// Idempotency metrics
	IdempotencyReplays   prometheus.Counter
	IdempotencyConflicts prometheus.Counter

	// Rate limiting metrics
	RateLimitHits *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics on the default registry
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith creates all Prometheus metrics and registers them on reg
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		AccountsOpened: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "accounts_opened_total",
			Help:      "Total number of accounts opened",
		}),
		AccountOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "account_operations_total",
				Help:      "Total account operations by type and result",
			},
			[]string{"operation", "result"},
		),
		MovementReplays: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "movement_replays_total",
				Help:      "Credits and debits answered from a previously applied reference",
			},
			[]string{"direction"},
		),

		TransactionsRecorded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transactions_recorded_total",
				Help:      "Total number of pending transactions recorded by type",
			},
			[]string{"type"},
		),
		TransactionsFinalized: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transactions_finalized_total",
				Help:      "Total number of transactions finalized by status",
			},
			[]string{"status"},
		),
		ReferenceCollisions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reference_collisions_total",
			Help:      "Generated reference numbers that were already taken",
		}),

		TransfersStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfers_started_total",
			Help:      "Total number of transfers received",
		}),
		TransfersFinished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transfers_finished_total",
				Help:      "Total number of transfers reaching a terminal state",
			},
			[]string{"state", "failure_code"},
		),
		TransferDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transfer_duration_seconds",
			Help:      "Duration of transfer sagas",
			Buckets:   prometheus.DefBuckets,
		}),
		TransferAmount: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transfer_amount",
			Help:      "Transfer amounts",
			Buckets:   []float64{10, 100, 1000, 10000, 100000, 1000000},
		}),
		SagaSteps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "saga_steps_total",
				Help:      "Saga step executions by step and result",
			},
			[]string{"step", "result"},
		),
		Compensations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "compensations_total",
				Help:      "Compensating credits issued by result",
			},
			[]string{"result"},
		),
		FinalizeRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "finalize_retries_total",
				Help:      "Asynchronous finalize attempts by result",
			},
			[]string{"result"},
		),
		RecoveredTransfers: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "recovered_transfers_total",
				Help:      "Transfers handled by the recovery worker by kind and result",
			},
			[]string{"kind", "result"},
		),

		GatewayCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gateway_calls_total",
				Help:      "Calls across service boundaries by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		GatewayDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "gateway_duration_seconds",
				Help:      "Duration of calls across service boundaries",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		BreakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "breaker_state",
				Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open)",
			},
			[]string{"name"},
		),

		EventsPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_published_total",
				Help:      "Outbox events published by type",
			},
			[]string{"event_type"},
		),
		EventErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_errors_total",
			Help:      "Outbox events that failed to publish",
		}),

		IdempotencyReplays: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "idempotency_replays_total",
			Help:      "Requests answered from the idempotency store",
		}),
		IdempotencyConflicts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "idempotency_conflicts_total",
			Help:      "Idempotency keys reused with a different request body",
		}),

		RateLimitHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_hits_total",
				Help:      "Requests rejected by the rate limiter",
			},
			[]string{"path"},
		),
	}
}
