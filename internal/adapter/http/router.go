package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/iho/fundscore/internal/adapter/http/handler"
	"github.com/iho/fundscore/internal/adapter/http/middleware"
	"github.com/iho/fundscore/internal/domain"
	"github.com/iho/fundscore/internal/infrastructure/metrics"
	"github.com/iho/fundscore/internal/usecase"
)

// RouterConfig holds dependencies for the router. A nil handler leaves its
// service's routes unmounted, so one binary can serve any subset of the
// account, ledger and transfer services.
type RouterConfig struct {
	AccountHandler     *handler.AccountHandler
	TransactionHandler *handler.TransactionHandler
	TransferHandler    *handler.TransferHandler
	HealthHandler      *handler.HealthHandler
	IdempotencyStore   usecase.IdempotencyStore
	RateLimiter        *middleware.RateLimiter
	// TokenVerifier enables bearer authentication. Nil disables it.
	TokenVerifier  middleware.TokenVerifier
	TracerProvider trace.TracerProvider
	// MetricsHandler serves /metrics. Nil means the default registry.
	MetricsHandler http.Handler
	Logger         zerolog.Logger
	Metrics        *metrics.Metrics
}

// NewRouter creates a new HTTP router.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Tracing(cfg.TracerProvider))
	r.Use(middleware.NewLoggingMiddleware(cfg.Logger).Wrap)
	r.Use(middleware.Metrics)

	// Health and metrics endpoints
	if cfg.HealthHandler != nil {
		r.Get("/health", cfg.HealthHandler.Liveness)
		r.Get("/health/ready", cfg.HealthHandler.Readiness)
	}
	metricsHandler := cfg.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	require := func(perm domain.Permission) func(http.Handler) http.Handler {
		if cfg.TokenVerifier == nil {
			return middleware.Passthrough
		}
		return middleware.RequirePermission(perm)
	}

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		if cfg.TokenVerifier != nil {
			r.Use(middleware.AuthMiddleware(cfg.TokenVerifier))
		}
		if cfg.RateLimiter != nil {
			r.Use(cfg.RateLimiter.Limit)
		}
		if cfg.IdempotencyStore != nil {
			idempotency := middleware.NewIdempotencyMiddleware(cfg.IdempotencyStore, cfg.Logger, cfg.Metrics)
			r.Use(idempotency.Wrap)
		}

		if h := cfg.AccountHandler; h != nil {
			r.Route("/accounts", func(r chi.Router) {
				r.With(require(domain.PermissionAccountAdmin)).Post("/", h.Open)
				r.With(require(domain.PermissionAccountRead)).Get("/", h.List)
				r.With(require(domain.PermissionAccountRead)).Get("/lookup/{ref}", h.Lookup)
				r.With(require(domain.PermissionAccountRead)).Get("/number/{number}", h.GetByNumber)
				r.With(require(domain.PermissionAccountRead)).Get("/{id}", h.Get)
				r.With(require(domain.PermissionAccountWrite)).Post("/{id}/credit", h.Credit)
				r.With(require(domain.PermissionAccountWrite)).Post("/{id}/debit", h.Debit)
				r.With(require(domain.PermissionAccountRead)).Get("/{id}/movements/{reference}", h.GetMovement)
				r.With(require(domain.PermissionAccountAdmin)).Post("/{id}/activate", h.Activate)
				r.With(require(domain.PermissionAccountAdmin)).Post("/{id}/freeze", h.Freeze)
				r.With(require(domain.PermissionAccountAdmin)).Post("/{id}/close", h.Close)
			})
		}

		if h := cfg.TransactionHandler; h != nil {
			r.Route("/transactions", func(r chi.Router) {
				r.With(require(domain.PermissionTransactionRead)).Post("/fees", h.QuoteFee)
				r.With(require(domain.PermissionTransactionWrite)).Post("/", h.Record)
				r.With(require(domain.PermissionTransactionRead)).Get("/reference/{reference}", h.GetByReference)
				r.With(require(domain.PermissionTransactionRead)).Get("/accounts/{id}", h.ListByAccount)
				r.With(require(domain.PermissionTransactionRead)).Get("/accounts/{id}/balance", h.Balance)
				r.With(require(domain.PermissionTransactionRead)).Get("/{id}", h.Get)
				r.With(require(domain.PermissionTransactionWrite)).Post("/{id}/finalize", h.Finalize)
			})
		}

		if h := cfg.TransferHandler; h != nil {
			r.Route("/transfers", func(r chi.Router) {
				r.With(require(domain.PermissionTransferWrite)).Post("/", h.Create)
				r.With(require(domain.PermissionTransferRead)).Get("/reference/{reference}", h.GetByReference)
				r.With(require(domain.PermissionTransferRead)).Get("/accounts/{id}", h.ListByAccount)
				r.With(require(domain.PermissionTransferRead)).Get("/accounts/{id}/stats", h.Stats)
				r.With(require(domain.PermissionTransferRead)).Get("/{id}", h.Get)
				r.With(require(domain.PermissionTransferWrite)).Post("/{id}/cancel", h.Cancel)
				r.With(require(domain.PermissionTransferWrite)).Post("/{id}/retry", h.Retry)
			})
		}
	})

	return r
}
