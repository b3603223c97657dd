package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gowebpki/jcs"
	"github.com/rs/zerolog"

	"github.com/iho/fundscore/internal/adapter/http/dto"
	"github.com/iho/fundscore/internal/infrastructure/metrics"
	"github.com/iho/fundscore/internal/usecase"
)

const (
	// IdempotencyKeyHeader is the header name for idempotency keys.
	IdempotencyKeyHeader = "Idempotency-Key"
	// IdempotencyReplayHeader marks a response served from the store.
	IdempotencyReplayHeader = "X-Idempotency-Replay"

	idempotencyTTL     = 24 * time.Hour
	maxBodyFingerprint = 1 << 20
)

// storedResponse is what the store keeps under a key. Pending is true while
// the first request is still running.
type storedResponse struct {
	Fingerprint string          `json:"fingerprint"`
	Pending     bool            `json:"pending,omitempty"`
	Status      int             `json:"status,omitempty"`
	Body        json.RawMessage `json:"body,omitempty"`
}

// IdempotencyMiddleware handles request idempotency using Redis.
type IdempotencyMiddleware struct {
	store   usecase.IdempotencyStore
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// NewIdempotencyMiddleware creates a new IdempotencyMiddleware. m may be nil.
func NewIdempotencyMiddleware(store usecase.IdempotencyStore, logger zerolog.Logger, m *metrics.Metrics) *IdempotencyMiddleware {
	return &IdempotencyMiddleware{store: store, logger: logger, metrics: m}
}

// Wrap wraps an http.Handler with idempotency checking. A key reused with a
// different request is refused with 422; a key whose first request is still
// running is refused with 409.
func (m *IdempotencyMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost && r.Method != http.MethodPut {
			next.ServeHTTP(w, r)
			return
		}

		key := r.Header.Get(IdempotencyKeyHeader)
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyFingerprint))
		if err != nil {
			writeMiddlewareError(w, http.StatusBadRequest, "invalid request body", err.Error())
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		fingerprint := requestFingerprint(r, body)

		claim, err := json.Marshal(storedResponse{Fingerprint: fingerprint, Pending: true})
		if err != nil {
			writeMiddlewareError(w, http.StatusInternalServerError, "idempotency check failed", err.Error())
			return
		}

		exists, existing, err := m.store.CheckAndSet(r.Context(), key, claim, idempotencyTTL)
		if err != nil {
			m.logger.Error().Err(err).Str("idempotency_key", key).Msg("idempotency check failed")
			writeMiddlewareError(w, http.StatusInternalServerError, "idempotency check failed", "")
			return
		}

		if exists {
			m.answerExisting(w, key, fingerprint, existing)
			return
		}

		recorder := &responseRecorder{
			ResponseWriter: w,
			body:           &bytes.Buffer{},
			statusCode:     http.StatusOK,
		}
		next.ServeHTTP(recorder, r)

		// The store outlives the request, so it is written without the
		// request's cancellation.
		ctx := context.WithoutCancel(r.Context())
		if recorder.statusCode < 200 || recorder.statusCode >= 300 {
			if err := m.store.Release(ctx, key); err != nil {
				m.logger.Warn().Err(err).Str("idempotency_key", key).Msg("failed to release idempotency key")
			}
			return
		}

		stored, err := json.Marshal(storedResponse{
			Fingerprint: fingerprint,
			Status:      recorder.statusCode,
			Body:        json.RawMessage(recorder.body.Bytes()),
		})
		if err == nil {
			err = m.store.Update(ctx, key, stored, idempotencyTTL)
		}
		if err != nil {
			m.logger.Warn().Err(err).Str("idempotency_key", key).Msg("failed to store idempotent response")
		}
	})
}

func (m *IdempotencyMiddleware) answerExisting(w http.ResponseWriter, key, fingerprint string, existing []byte) {
	var stored storedResponse
	if len(existing) == 0 || json.Unmarshal(existing, &stored) != nil {
		// Claimed by a writer that stored no fingerprint, or expired between
		// the claim and the read.
		stored = storedResponse{Fingerprint: fingerprint, Pending: true}
	}

	if stored.Fingerprint != fingerprint {
		if m.metrics != nil {
			m.metrics.IdempotencyConflicts.Inc()
		}
		m.logger.Warn().Str("idempotency_key", key).Msg("idempotency key reused with a different request")
		writeMiddlewareError(w, http.StatusUnprocessableEntity, "idempotency key reused", "the key was first used with a different request")
		return
	}

	if stored.Pending {
		writeMiddlewareError(w, http.StatusConflict, "request in progress", "a request with this idempotency key is still running")
		return
	}

	if m.metrics != nil {
		m.metrics.IdempotencyReplays.Inc()
	}
	status := stored.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(IdempotencyReplayHeader, "true")
	w.WriteHeader(status)
	_, _ = w.Write(stored.Body)
}

// requestFingerprint hashes the method, path and body. JSON bodies are
// canonicalized first so that key order and whitespace do not matter.
func requestFingerprint(r *http.Request, body []byte) string {
	canonical := body
	if len(bytes.TrimSpace(body)) > 0 {
		if c, err := jcs.Transform(body); err == nil {
			canonical = c
		}
	}

	h := sha256.New()
	h.Write([]byte(r.Method))
	h.Write([]byte{0})
	h.Write([]byte(r.URL.Path))
	h.Write([]byte{0})
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil))
}

type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       *bytes.Buffer
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func (r *responseRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func writeMiddlewareError(w http.ResponseWriter, status int, message, details string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(dto.ErrorResponse{
		Error:   message,
		Message: details,
	})
}
