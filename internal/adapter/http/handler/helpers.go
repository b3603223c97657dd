package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/iho/fundscore/internal/adapter/http/dto"
	"github.com/iho/fundscore/internal/domain"
)

const maxRequestBody = 1 << 20

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, message, details string) {
	writeJSON(w, status, dto.ErrorResponse{
		Error:   message,
		Message: details,
	})
}

// writeDomainError writes err with its status and stable code. Internal
// errors are not echoed to the caller.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	status := mapDomainError(err)
	code := dto.ErrorCode(err)
	details := err.Error()
	if code == dto.CodeInternal {
		details = ""
	}

	writeJSON(w, status, dto.ErrorResponse{
		Error:   message,
		Code:    code,
		Message: details,
	}.WithDetails(err))
}

// decodeJSON decodes the request body into dst, refusing unknown fields.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// mapDomainError maps domain errors to HTTP status codes. Remote callers
// treat 5xx as an outage and everything below as a refusal.
func mapDomainError(err error) int {
	switch {
	case errors.Is(err, domain.ErrAccountNotFound),
		errors.Is(err, domain.ErrTransactionNotFound),
		errors.Is(err, domain.ErrTransferNotFound),
		errors.Is(err, domain.ErrMovementNotFound):
		return http.StatusNotFound

	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrAmountTooLarge),
		errors.Is(err, domain.ErrSameAccount),
		errors.Is(err, domain.ErrCurrencyMismatch),
		errors.Is(err, domain.ErrInvalidAccountName),
		errors.Is(err, domain.ErrInvalidCurrency),
		errors.Is(err, domain.ErrInvalidAccountType),
		errors.Is(err, domain.ErrInvalidReference),
		errors.Is(err, domain.ErrInvalidType):
		return http.StatusBadRequest

	case errors.Is(err, domain.ErrInsufficientBalance),
		errors.Is(err, domain.ErrAccountNotActive),
		errors.Is(err, domain.ErrAccountHasBalance):
		return http.StatusUnprocessableEntity

	case errors.Is(err, domain.ErrDuplicateReference),
		errors.Is(err, domain.ErrInvalidStateTransition),
		errors.Is(err, domain.ErrTransferNotCancellable),
		errors.Is(err, domain.ErrTransferNotRetryable),
		errors.Is(err, domain.ErrConcurrentModification),
		errors.Is(err, domain.ErrFinalizeExhausted):
		return http.StatusConflict

	case errors.Is(err, domain.ErrUnauthorized),
		errors.Is(err, domain.ErrInvalidToken),
		errors.Is(err, domain.ErrExpiredToken):
		return http.StatusUnauthorized

	case errors.Is(err, domain.ErrInsufficientPermission):
		return http.StatusForbidden

	case errors.Is(err, domain.ErrAccountServiceUnavailable),
		errors.Is(err, domain.ErrLedgerUnavailable):
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}

// parseIntQuery parses an integer query parameter with a default value.
func parseIntQuery(r *http.Request, key string, defaultValue int) int {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}
	return i
}
