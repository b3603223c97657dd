package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/iho/fundscore/internal/adapter/gateway"
	httpAdapter "github.com/iho/fundscore/internal/adapter/http"
	"github.com/iho/fundscore/internal/adapter/http/handler"
	"github.com/iho/fundscore/internal/adapter/http/middleware"
	"github.com/iho/fundscore/internal/adapter/repository/memory"
	postgresRepo "github.com/iho/fundscore/internal/adapter/repository/postgres"
	redisRepo "github.com/iho/fundscore/internal/adapter/repository/redis"
	"github.com/iho/fundscore/internal/infrastructure/auth"
	"github.com/iho/fundscore/internal/infrastructure/config"
	"github.com/iho/fundscore/internal/infrastructure/eventpublisher"
	"github.com/iho/fundscore/internal/infrastructure/metrics"
	"github.com/iho/fundscore/internal/infrastructure/postgres"
	"github.com/iho/fundscore/internal/infrastructure/redis"
	"github.com/iho/fundscore/internal/usecase"
)

const tracerName = "github.com/iho/fundscore/internal/usecase"

// app is one process serving the roles its config selects.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger

	handler   http.Handler
	transfers *usecase.TransferUseCase
	recovery  *usecase.RecoveryUseCase
	events    *eventpublisher.EventPublisher
	limiter   *middleware.RateLimiter

	closers []func()
}

// storage is the relational state of the process.
type storage struct {
	txManager    usecase.TransactionManager
	accounts     usecase.AccountRepository
	movements    usecase.MovementRepository
	transactions usecase.TransactionRepository
	transfers    usecase.TransferRepository
	outbox       usecase.OutboxRepository
	retrier      usecase.Retrier
	pool         *pgxpool.Pool
}

func newStorage(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*storage, error) {
	if !cfg.NeedsDatabase() {
		store := memory.NewStore()
		return &storage{
			txManager:    memory.NewTxManager(store),
			accounts:     memory.NewAccountRepository(store),
			movements:    memory.NewMovementRepository(store),
			transactions: memory.NewTransactionRepository(store),
			transfers:    memory.NewTransferRepository(store),
			outbox:       memory.NewOutboxRepository(store),
		}, nil
	}

	if cfg.MigrationsPath != "" {
		if err := postgres.RunMigrations(cfg.DatabaseURL, cfg.MigrationsPath, logger); err != nil {
			return nil, err
		}
	}

	pool, err := postgres.NewPoolWithConfig(ctx, postgres.PoolConfig{
		DatabaseURL:    cfg.DatabaseURL,
		MaxConns:       cfg.DatabaseMaxConns,
		MinConns:       cfg.DatabaseMinConns,
		ConnectTimeout: cfg.DatabaseTimeout,
	})
	if err != nil {
		return nil, err
	}
	logger.Info().Msg("connected to postgres")

	return &storage{
		txManager:    postgresRepo.NewTxManager(pool),
		accounts:     postgresRepo.NewAccountRepository(pool),
		movements:    postgresRepo.NewMovementRepository(pool),
		transactions: postgresRepo.NewTransactionRepository(pool),
		transfers:    postgresRepo.NewTransferRepository(pool),
		outbox:       postgresRepo.NewOutboxRepository(pool),
		retrier:      postgresRepo.NewRetrier(logger),
		pool:         pool,
	}, nil
}

// newApp wires the services the configured role serves. reg receives the
// domain metrics; tp may be nil.
func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger, reg prometheus.Registerer, tp trace.TracerProvider) (*app, error) {
	a := &app{cfg: cfg, logger: logger}
	m := metrics.NewWith(reg)

	store, err := newStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	healthChecks := []handler.HealthCheck{}
	if store.pool != nil {
		a.closers = append(a.closers, store.pool.Close)
		healthChecks = append(healthChecks, handler.PostgresCheck(store.pool))
	}

	var redisClient goredis.UniversalClient
	if cfg.RedisURL != "" {
		redisClient, err = redis.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			a.close()
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = redisClient.Close() })
		healthChecks = append(healthChecks, handler.RedisCheck(redisClient))
		logger.Info().Msg("connected to redis")
	}

	var jwtManager *auth.JWTManager
	if cfg.JWTSecret != "" {
		jwtManager = auth.NewJWTManager(cfg.JWTSecret, cfg.JWTExpiration)
	}

	idGen := postgresRepo.NewULIDGenerator()
	routes := httpAdapter.RouterConfig{
		HealthHandler:  handler.NewHealthHandler(cfg.ServiceName, healthChecks...),
		TracerProvider: tp,
		Logger:         logger,
		Metrics:        m,
	}
	if g, ok := reg.(prometheus.Gatherer); ok {
		routes.MetricsHandler = promhttp.HandlerFor(g, promhttp.HandlerOpts{})
	}
	if redisClient != nil {
		routes.IdempotencyStore = redisRepo.NewIdempotencyStore(redisClient)
	}
	if cfg.AuthEnabled && jwtManager != nil {
		routes.TokenVerifier = jwtManager
	}
	if cfg.RateLimitRPS > 0 {
		a.limiter = middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, m)
		routes.RateLimiter = a.limiter
	}

	var accountUC *usecase.AccountUseCase
	if cfg.ServesAccounts() {
		accountUC = usecase.NewAccountUseCase(usecase.AccountUseCaseConfig{
			TxManager:    store.txManager,
			AccountRepo:  store.accounts,
			MovementRepo: store.movements,
			OutboxRepo:   store.outbox,
			IDGen:        idGen,
			Retrier:      store.retrier,
			Logger:       logger,
			Metrics:      m,
		})
		routes.AccountHandler = handler.NewAccountHandler(accountUC)
	}

	var transactionUC *usecase.TransactionUseCase
	if cfg.ServesLedger() {
		transactionUC = usecase.NewTransactionUseCase(usecase.TransactionUseCaseConfig{
			TxManager:  store.txManager,
			TxRepo:     store.transactions,
			OutboxRepo: store.outbox,
			IDGen:      idGen,
			Fees:       usecase.NewFeeSchedule(cfg.WithdrawalFee),
			Logger:     logger,
			Metrics:    m,
		})
		routes.TransactionHandler = handler.NewTransactionHandler(transactionUC)
	}

	if cfg.ServesTransfers() {
		var tokens gateway.TokenSource
		if jwtManager != nil {
			tokens = gateway.NewServiceTokenSource(jwtManager, cfg.ServiceName)
		}
		remote := func(baseURL string) gateway.ClientConfig {
			return gateway.ClientConfig{
				BaseURL: baseURL,
				Timeout: cfg.GatewayTimeout,
				Tokens:  tokens,
				Breaker: gateway.BreakerConfig{
					MaxRequests:         cfg.BreakerMaxRequests,
					Interval:            cfg.BreakerInterval,
					Timeout:             cfg.BreakerTimeout,
					ConsecutiveFailures: cfg.BreakerFailures,
				},
				Logger:  logger,
				Metrics: m,
			}
		}

		var accounts usecase.AccountGateway
		if accountUC != nil {
			accounts = gateway.NewLocalAccountGateway(accountUC, cfg.GatewayTimeout, logger)
		} else {
			accounts = gateway.NewAccountClient(remote(cfg.AccountServiceURL))
		}

		var ledger usecase.LedgerClient
		if transactionUC != nil {
			ledger = transactionUC
		} else {
			ledger = gateway.NewLedgerClient(remote(cfg.LedgerServiceURL))
		}

		transferCfg := usecase.TransferUseCaseConfig{
			TransferRepo:        store.transfers,
			Accounts:            accounts,
			Ledger:              ledger,
			TxManager:           store.txManager,
			OutboxRepo:          store.outbox,
			IDGen:               idGen,
			MaxAmount:           cfg.MaxTransferAmount,
			FinalizeMaxAttempts: cfg.FinalizeMaxAttempts,
			Workers:             cfg.TransferWorkers,
			QueueSize:           cfg.TransferQueueSize,
			Logger:              logger,
			Metrics:             m,
			Retry: usecase.RetryPolicy{
				InitialInterval: cfg.RetryInitialInterval,
				MaxInterval:     cfg.RetryMaxInterval,
				Multiplier:      cfg.RetryMultiplier,
				MaxRetries:      cfg.RetryMaxRetries,
			},
		}
		if redisClient != nil {
			transferCfg.Cache = redisRepo.NewCache(redisClient)
		}
		if tp != nil {
			transferCfg.Tracer = tp.Tracer(tracerName)
		}
		a.transfers = usecase.NewTransferUseCase(transferCfg)
		routes.TransferHandler = handler.NewTransferHandler(a.transfers)

		a.recovery = usecase.NewRecoveryUseCase(usecase.RecoveryConfig{
			TransferRepo:        store.transfers,
			Transfers:           a.transfers,
			Logger:              logger,
			Metrics:             m,
			Interval:            cfg.RecoveryInterval,
			StaleAfter:          cfg.RecoveryStaleAfter,
			BatchSize:           cfg.RecoveryBatchSize,
			FinalizeMaxAttempts: cfg.FinalizeMaxAttempts,
		})
	}

	var sink eventpublisher.Publisher = eventpublisher.NewLogPublisher(logger)
	if cfg.EventSink == config.EventSinkRedis && redisClient != nil {
		sink = redisRepo.NewStreamPublisher(redisClient, cfg.EventStream, cfg.EventStreamMaxLen)
	}
	a.events = eventpublisher.NewEventPublisher(eventpublisher.Config{
		OutboxRepo: store.outbox,
		Publisher:  sink,
		Logger:     logger,
		Metrics:    m,
		BatchSize:  cfg.EventBatchSize,
		Interval:   cfg.EventInterval,
	})

	a.handler = httpAdapter.NewRouter(routes)
	return a, nil
}

// run serves until ctx is cancelled, then drains the HTTP server and the
// background workers.
func (a *app) run(ctx context.Context) error {
	defer a.close()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", a.cfg.HTTPPort),
		Handler:      a.handler,
		ReadTimeout:  a.cfg.HTTPReadTimeout,
		WriteTimeout: a.cfg.HTTPWriteTimeout,
		IdleTimeout:  a.cfg.HTTPIdleTimeout,
	}

	workers, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info().Str("port", a.cfg.HTTPPort).Str("role", a.cfg.ServiceRole).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info().Msg("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTPShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	a.startWorkers(workers)

	err := g.Wait()

	// In-flight requests are drained; saga workers may still hold jobs.
	stopWorkers()
	if a.transfers != nil {
		a.transfers.Wait()
	}

	a.logger.Info().Msg("server stopped")
	return err
}

func (a *app) startWorkers(ctx context.Context) {
	if a.transfers != nil {
		a.transfers.Start(ctx)
	}
	if a.recovery != nil {
		go a.background(ctx, "recovery", a.recovery.Start)
	}
	if a.events != nil {
		go a.background(ctx, "event publisher", a.events.Start)
	}
	if a.limiter != nil {
		go a.cleanupLimiters(ctx)
	}
}

func (a *app) background(ctx context.Context, name string, fn func(context.Context) error) {
	if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Error().Err(err).Str("worker", name).Msg("background worker stopped")
	}
}

func (a *app) cleanupLimiters(ctx context.Context) {
	idle := a.cfg.RateLimitIdle
	if idle <= 0 {
		idle = 10 * time.Minute
	}
	ticker := time.NewTicker(idle)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := a.limiter.CleanupLimiters(idle); n > 0 {
				a.logger.Debug().Int("removed", n).Msg("dropped idle rate limiters")
			}
		}
	}
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
