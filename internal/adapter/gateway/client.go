// Package gateway holds the clients the transfer orchestrator uses to reach
// the account ledger and the transaction ledger, either over HTTP or in
// process.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/propagation"

	"github.com/iho/fundscore/internal/adapter/http/dto"
	"github.com/iho/fundscore/internal/domain"
	"github.com/iho/fundscore/internal/infrastructure/metrics"
)

const (
	DefaultCallTimeout = 5 * time.Second
	maxErrorBody       = 64 << 10
)

// BreakerConfig configures the circuit breaker around a remote service.
type BreakerConfig struct {
	// MaxRequests is the number of trial calls let through while half-open.
	MaxRequests uint32
	// Interval clears the failure counts while closed. Zero never clears.
	Interval time.Duration
	// Timeout is how long the breaker stays open.
	Timeout time.Duration
	// ConsecutiveFailures trips the breaker.
	ConsecutiveFailures uint32
}

// DefaultBreakerConfig returns the breaker settings used when none are
// configured.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:         1,
		Interval:            time.Minute,
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 5,
	}
}

// ClientConfig holds the settings shared by the HTTP clients.
type ClientConfig struct {
	BaseURL string
	// Timeout bounds every call. Zero means DefaultCallTimeout.
	Timeout time.Duration
	// Tokens supplies bearer tokens. Nil sends no Authorization header.
	Tokens     TokenSource
	Breaker    BreakerConfig
	HTTPClient *http.Client
	Logger     zerolog.Logger
	Metrics    *metrics.Metrics
}

// remoteError is a non-2xx answer from the remote service.
type remoteError struct {
	Status int
	Body   dto.ErrorResponse
}

func (e *remoteError) Error() string {
	msg := e.Body.Message
	if msg == "" {
		msg = e.Body.Error
	}
	return fmt.Sprintf("remote returned %d: %s", e.Status, msg)
}

// unauthorized reports a refused service token.
func (e *remoteError) unauthorized() bool {
	return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
}

// cause maps the answer back to a domain error.
func (e *remoteError) cause() error {
	if e.unauthorized() {
		return domain.ErrUnauthorized
	}
	if err := e.Body.Err(); err != nil {
		return err
	}
	return errors.New(e.reason())
}

func (e *remoteError) reason() string {
	if e.unauthorized() {
		return "unauthorized"
	}
	if e.Body.Message != "" {
		return e.Body.Message
	}
	if e.Body.Error != "" {
		return e.Body.Error
	}
	return http.StatusText(e.Status)
}

// transient reports answers that ask the caller to come back later.
func (e *remoteError) transient() bool {
	return e.Status >= http.StatusInternalServerError ||
		e.Status == http.StatusRequestTimeout ||
		e.Status == http.StatusTooManyRequests
}

// asRejection returns the remote answer when err is a business rejection
// rather than an outage.
func asRejection(err error) (*remoteError, bool) {
	var re *remoteError
	if errors.As(err, &re) && !re.transient() {
		return re, true
	}
	return nil, false
}

type client struct {
	name    string
	baseURL string
	timeout time.Duration
	http    *http.Client
	tokens  TokenSource
	breaker *gobreaker.CircuitBreaker
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

func newClient(name string, cfg ClientConfig) *client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultCallTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Breaker == (BreakerConfig{}) {
		cfg.Breaker = DefaultBreakerConfig()
	}

	logger := cfg.Logger.With().Str("remote", name).Logger()
	return &client{
		name:    name,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: cfg.Timeout,
		http:    cfg.HTTPClient,
		tokens:  cfg.Tokens,
		breaker: newBreaker(name, cfg.Breaker, logger, cfg.Metrics),
		logger:  logger,
		metrics: cfg.Metrics,
	}
}

func newBreaker(name string, cfg BreakerConfig, logger zerolog.Logger, m *metrics.Metrics) *gobreaker.CircuitBreaker {
	threshold := cfg.ConsecutiveFailures
	if threshold == 0 {
		threshold = DefaultBreakerConfig().ConsecutiveFailures
	}

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
			if m != nil {
				m.BreakerState.WithLabelValues(name).Set(float64(to))
			}
		},
		// Business rejections are answers, not outages.
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			_, ok := asRejection(err)
			return ok
		},
	})
}

// do sends one JSON request through the breaker and decodes a 2xx body
// into out. Non-2xx answers are returned as *remoteError.
func (c *client) do(ctx context.Context, operation, method, path string, perms []domain.Permission, in, out any) error {
	start := time.Now()
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.roundTrip(ctx, method, path, perms, in, out)
	})

	outcome := "ok"
	if err != nil {
		outcome = "unreachable"
		if _, ok := asRejection(err); ok {
			outcome = "rejected"
		} else {
			c.logger.Warn().Err(err).Str("operation", operation).Msg("remote call failed")
		}
	}
	if c.metrics != nil {
		c.metrics.GatewayCalls.WithLabelValues(c.name+"."+operation, outcome).Inc()
		c.metrics.GatewayDuration.WithLabelValues(c.name + "." + operation).Observe(time.Since(start).Seconds())
	}

	return err
}

func (c *client) roundTrip(ctx context.Context, method, path string, perms []domain.Permission, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	propagation.TraceContext{}.Inject(ctx, propagation.HeaderCarrier(req.Header))
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.tokens != nil {
		token, err := c.tokens.Token(ctx, perms...)
		if err != nil {
			return fmt.Errorf("failed to obtain service token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		re := &remoteError{Status: resp.StatusCode}
		_ = json.NewDecoder(io.LimitReader(resp.Body, maxErrorBody)).Decode(&re.Body)
		return re
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
