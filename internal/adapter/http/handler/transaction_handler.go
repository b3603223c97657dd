package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/iho/fundscore/internal/adapter/http/dto"
	"github.com/iho/fundscore/internal/domain"
	"github.com/iho/fundscore/internal/usecase"
)

// TransactionService defines the behavior needed by TransactionHandler.
type TransactionService interface {
	QuoteFee(ctx context.Context, input usecase.QuoteFeeInput) (decimal.Decimal, error)
	RecordPending(ctx context.Context, input usecase.RecordPendingInput) (*domain.Transaction, error)
	Finalize(ctx context.Context, id string, status domain.TransactionStatus) (*domain.Transaction, error)
	GetByID(ctx context.Context, id string) (*domain.Transaction, error)
	GetByReference(ctx context.Context, reference string) (*domain.Transaction, error)
	ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]*domain.Transaction, error)
	Balance(ctx context.Context, accountID string) (decimal.Decimal, error)
}

// TransactionHandler serves the transaction ledger.
type TransactionHandler struct {
	transactionUC TransactionService
}

// NewTransactionHandler creates a new TransactionHandler.
func NewTransactionHandler(transactionUC TransactionService) *TransactionHandler {
	return &TransactionHandler{transactionUC: transactionUC}
}

// QuoteFee quotes the fee for an amount without recording anything.
func (h *TransactionHandler) QuoteFee(w http.ResponseWriter, r *http.Request) {
	var req dto.QuoteFeeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	input, err := req.ToUseCaseInput()
	if err != nil {
		writeDomainError(w, "invalid request", err)
		return
	}

	fee, err := h.transactionUC.QuoteFee(r.Context(), input)
	if err != nil {
		writeDomainError(w, "failed to quote fee", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.NewFeeQuoteResponse(input.Amount, fee))
}

// Record records a pending transaction.
func (h *TransactionHandler) Record(w http.ResponseWriter, r *http.Request) {
	var req dto.RecordTransactionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	input, err := req.ToUseCaseInput()
	if err != nil {
		writeDomainError(w, "invalid request", err)
		return
	}

	record, err := h.transactionUC.RecordPending(r.Context(), input)
	if err != nil {
		writeDomainError(w, "failed to record transaction", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.TransactionFromDomain(record))
}

// Finalize settles a pending transaction as COMPLETED or FAILED.
func (h *TransactionHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	var req dto.FinalizeTransactionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	status := domain.TransactionStatus(strings.ToUpper(req.Status))
	record, err := h.transactionUC.Finalize(r.Context(), chi.URLParam(r, "id"), status)
	if err != nil {
		writeDomainError(w, "failed to finalize transaction", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.TransactionFromDomain(record))
}

// Get retrieves a transaction by ID.
func (h *TransactionHandler) Get(w http.ResponseWriter, r *http.Request) {
	record, err := h.transactionUC.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "failed to get transaction", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.TransactionFromDomain(record))
}

// GetByReference retrieves a transaction by its reference number.
func (h *TransactionHandler) GetByReference(w http.ResponseWriter, r *http.Request) {
	record, err := h.transactionUC.GetByReference(r.Context(), chi.URLParam(r, "reference"))
	if err != nil {
		writeDomainError(w, "failed to get transaction", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.TransactionFromDomain(record))
}

// ListByAccount lists the transactions an account took part in.
func (h *TransactionHandler) ListByAccount(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", 20)
	offset := parseIntQuery(r, "offset", 0)

	records, err := h.transactionUC.ListByAccount(r.Context(), chi.URLParam(r, "id"), limit, offset)
	if err != nil {
		writeDomainError(w, "failed to list transactions", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.TransactionsFromDomain(records))
}

// Balance returns an account's balance as recorded by completed
// transactions.
func (h *TransactionHandler) Balance(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "id")

	balance, err := h.transactionUC.Balance(r.Context(), accountID)
	if err != nil {
		writeDomainError(w, "failed to compute balance", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.BalanceResponse{
		AccountID: accountID,
		Balance:   balance.String(),
	})
}
