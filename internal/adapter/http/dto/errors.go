package dto

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/iho/fundscore/internal/domain"
)

// ErrorResponse represents an error in API responses. The balance fields
// are set for insufficient_balance only.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	Message   string `json:"message,omitempty"`
	AccountID string `json:"account_id,omitempty"`
	Requested string `json:"requested,omitempty"`
	Available string `json:"available,omitempty"`
}

// WithDetails copies the fields of a typed domain error onto r.
func (r ErrorResponse) WithDetails(err error) ErrorResponse {
	var insufficient *domain.InsufficientBalanceError
	if errors.As(err, &insufficient) {
		r.AccountID = insufficient.AccountID
		r.Requested = insufficient.Requested.String()
		r.Available = insufficient.Available.String()
	}
	return r
}

// Err rebuilds the domain error carried by r, or nil when the code is
// unknown.
func (r ErrorResponse) Err() error {
	err := ErrorFromCode(r.Code)
	if !errors.Is(err, domain.ErrInsufficientBalance) || r.Requested == "" {
		return err
	}

	requested, reqErr := decimal.NewFromString(r.Requested)
	available, availErr := decimal.NewFromString(r.Available)
	if reqErr != nil || availErr != nil {
		return err
	}
	return &domain.InsufficientBalanceError{
		AccountID: r.AccountID,
		Requested: requested,
		Available: available,
	}
}

// CodeInternal is reported for errors without a stable code.
const CodeInternal = "internal_error"

// errorCodes is ordered: wrapped errors match the first entry they satisfy.
var errorCodes = []struct {
	code string
	err  error
}{
	{"amount_too_large", domain.ErrAmountTooLarge},
	{"invalid_amount", domain.ErrInvalidAmount},
	{"insufficient_balance", domain.ErrInsufficientBalance},
	{"account_not_found", domain.ErrAccountNotFound},
	{"account_not_active", domain.ErrAccountNotActive},
	{"same_account", domain.ErrSameAccount},
	{"currency_mismatch", domain.ErrCurrencyMismatch},
	{"account_has_balance", domain.ErrAccountHasBalance},
	{"balance_invariant", domain.ErrBalanceInvariant},
	{"invalid_state_transition", domain.ErrInvalidStateTransition},
	{"transfer_not_cancellable", domain.ErrTransferNotCancellable},
	{"transfer_not_retryable", domain.ErrTransferNotRetryable},
	{"concurrent_modification", domain.ErrConcurrentModification},
	{"finalize_exhausted", domain.ErrFinalizeExhausted},
	{"duplicate_reference", domain.ErrDuplicateReference},
	{"id_generation_exhausted", domain.ErrIDGenerationExhausted},
	{"transaction_not_found", domain.ErrTransactionNotFound},
	{"transfer_not_found", domain.ErrTransferNotFound},
	{"movement_not_found", domain.ErrMovementNotFound},
	{"account_service_unavailable", domain.ErrAccountServiceUnavailable},
	{"ledger_unavailable", domain.ErrLedgerUnavailable},
	{"invalid_account_name", domain.ErrInvalidAccountName},
	{"invalid_currency", domain.ErrInvalidCurrency},
	{"invalid_account_type", domain.ErrInvalidAccountType},
	{"invalid_reference", domain.ErrInvalidReference},
	{"invalid_type", domain.ErrInvalidType},
	{"expired_token", domain.ErrExpiredToken},
	{"invalid_token", domain.ErrInvalidToken},
	{"insufficient_permission", domain.ErrInsufficientPermission},
	{"unauthorized", domain.ErrUnauthorized},
}

// ErrorCode returns the stable wire code for err.
func ErrorCode(err error) string {
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}

// ErrorFromCode returns the domain error for a wire code, or nil when the
// code is unknown.
func ErrorFromCode(code string) error {
	for _, c := range errorCodes {
		if c.code == code {
			return c.err
		}
	}
	return nil
}
