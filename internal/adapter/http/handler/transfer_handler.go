package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/iho/fundscore/internal/adapter/http/dto"
	"github.com/iho/fundscore/internal/domain"
	"github.com/iho/fundscore/internal/usecase"
)

// preferAsync asks for the transfer to be queued instead of run inline.
const preferAsync = "respond-async"

// TransferService defines the behavior needed by TransferHandler.
type TransferService interface {
	Initiate(ctx context.Context, input usecase.InitiateTransferInput) (*domain.Transfer, error)
	Submit(ctx context.Context, input usecase.InitiateTransferInput) (*domain.Transfer, error)
	Get(ctx context.Context, id string) (*domain.Transfer, error)
	GetByReference(ctx context.Context, reference string) (*domain.Transfer, error)
	ListByAccount(ctx context.Context, input usecase.ListTransfersInput) ([]*domain.Transfer, error)
	Stats(ctx context.Context, accountID string) (*domain.TransferStats, error)
	Cancel(ctx context.Context, id string) (*domain.Transfer, error)
	Retry(ctx context.Context, id string) (*domain.Transfer, error)
}

// TransferHandler handles transfer-related HTTP requests.
type TransferHandler struct {
	transferUC TransferService
}

// NewTransferHandler creates a new TransferHandler.
func NewTransferHandler(transferUC TransferService) *TransferHandler {
	return &TransferHandler{transferUC: transferUC}
}

// Create starts a transfer. By default the saga runs to a terminal state
// before the response is written, and a failed saga is reported through
// the transfer's status and failure code. With "Prefer: respond-async" the
// transfer is queued and 202 is returned at once.
func (h *TransferHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateTransferRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	input, err := req.ToUseCaseInput()
	if err != nil {
		writeDomainError(w, "invalid request", err)
		return
	}

	if strings.Contains(r.Header.Get("Prefer"), preferAsync) {
		transfer, err := h.transferUC.Submit(r.Context(), input)
		if err != nil {
			writeDomainError(w, "failed to submit transfer", err)
			return
		}
		w.Header().Set("Preference-Applied", preferAsync)
		writeJSON(w, http.StatusAccepted, dto.TransferFromDomain(transfer))
		return
	}

	transfer, err := h.transferUC.Initiate(r.Context(), input)
	h.writeSaga(w, transfer, err, "failed to create transfer")
}

// Get retrieves a transfer by ID.
func (h *TransferHandler) Get(w http.ResponseWriter, r *http.Request) {
	transfer, err := h.transferUC.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "failed to get transfer", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.TransferFromDomain(transfer))
}

// GetByReference retrieves a transfer by its reference.
func (h *TransferHandler) GetByReference(w http.ResponseWriter, r *http.Request) {
	transfer, err := h.transferUC.GetByReference(r.Context(), chi.URLParam(r, "reference"))
	if err != nil {
		writeDomainError(w, "failed to get transfer", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.TransferFromDomain(transfer))
}

// ListByAccount lists transfers for an account. The direction query
// parameter is all, sent or received.
func (h *TransferHandler) ListByAccount(w http.ResponseWriter, r *http.Request) {
	transfers, err := h.transferUC.ListByAccount(r.Context(), usecase.ListTransfersInput{
		AccountID: chi.URLParam(r, "id"),
		Direction: usecase.TransferDirection(strings.ToLower(r.URL.Query().Get("direction"))),
		Limit:     parseIntQuery(r, "limit", 20),
		Offset:    parseIntQuery(r, "offset", 0),
	})
	if err != nil {
		writeDomainError(w, "failed to list transfers", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.TransfersFromDomain(transfers))
}

// Stats aggregates an account's transfers.
func (h *TransferHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.transferUC.Stats(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "failed to compute transfer stats", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.TransferStatsFromDomain(stats))
}

// Cancel cancels a transfer that has not moved money yet.
func (h *TransferHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	transfer, err := h.transferUC.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "failed to cancel transfer", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.TransferFromDomain(transfer))
}

// Retry starts a new transfer in place of a failed one.
func (h *TransferHandler) Retry(w http.ResponseWriter, r *http.Request) {
	transfer, err := h.transferUC.Retry(r.Context(), chi.URLParam(r, "id"))
	h.writeSaga(w, transfer, err, "failed to retry transfer")
}

// writeSaga answers a transfer that ran through the saga. A transfer
// returned with an error ended FAILED and is still the answer.
func (h *TransferHandler) writeSaga(w http.ResponseWriter, transfer *domain.Transfer, err error, failure string) {
	if transfer == nil {
		if err == nil {
			err = domain.ErrTransferNotFound
		}
		writeDomainError(w, failure, err)
		return
	}

	status := http.StatusCreated
	if !transfer.State.IsTerminal() {
		// Held for recovery, e.g. a credit with unknown outcome.
		status = http.StatusAccepted
	}
	writeJSON(w, status, dto.TransferFromDomain(transfer))
}
