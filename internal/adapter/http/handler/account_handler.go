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

// AccountService defines the behavior needed by AccountHandler.
type AccountService interface {
	Open(ctx context.Context, input usecase.OpenAccountInput) (*domain.Account, error)
	Get(ctx context.Context, id string) (*domain.Account, error)
	GetByNumber(ctx context.Context, accountNumber string) (*domain.Account, error)
	Lookup(ctx context.Context, ref string) (*domain.Account, error)
	List(ctx context.Context, input usecase.ListAccountsInput) ([]*domain.Account, error)
	Credit(ctx context.Context, input usecase.MovementInput) (*usecase.MovementOutput, error)
	Debit(ctx context.Context, input usecase.MovementInput) (*usecase.MovementOutput, error)
	GetMovement(ctx context.Context, accountID, reference string, direction domain.MovementDirection) (*domain.Movement, error)
	Activate(ctx context.Context, id string) (*domain.Account, error)
	Freeze(ctx context.Context, id string) (*domain.Account, error)
	Close(ctx context.Context, id string) (*domain.Account, error)
}

// AccountHandler handles account-related HTTP requests.
type AccountHandler struct {
	accountUC AccountService
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(accountUC AccountService) *AccountHandler {
	return &AccountHandler{accountUC: accountUC}
}

// Open opens a new account.
func (h *AccountHandler) Open(w http.ResponseWriter, r *http.Request) {
	var req dto.OpenAccountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	input, err := req.ToUseCaseInput()
	if err != nil {
		writeDomainError(w, "invalid request", err)
		return
	}

	account, err := h.accountUC.Open(r.Context(), input)
	if err != nil {
		writeDomainError(w, "failed to open account", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.AccountFromDomain(account))
}

// Get retrieves an account by ID.
func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	account, err := h.accountUC.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "failed to get account", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.AccountFromDomain(account))
}

// GetByNumber retrieves an account by its account number.
func (h *AccountHandler) GetByNumber(w http.ResponseWriter, r *http.Request) {
	account, err := h.accountUC.GetByNumber(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		writeDomainError(w, "failed to get account", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.AccountFromDomain(account))
}

// Lookup resolves an account ID or account number.
func (h *AccountHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	account, err := h.accountUC.Lookup(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		writeDomainError(w, "failed to look up account", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.AccountFromDomain(account))
}

// List lists accounts.
func (h *AccountHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", 20)
	offset := parseIntQuery(r, "offset", 0)

	accounts, err := h.accountUC.List(r.Context(), usecase.ListAccountsInput{
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		writeDomainError(w, "failed to list accounts", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ListAccountsResponse{
		Accounts: dto.AccountsFromDomain(accounts),
		Total:    int64(len(accounts)),
	})
}

// Credit adds funds to an account.
func (h *AccountHandler) Credit(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, h.accountUC.Credit, "failed to credit account")
}

// Debit takes funds from an account.
func (h *AccountHandler) Debit(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, h.accountUC.Debit, "failed to debit account")
}

func (h *AccountHandler) move(
	w http.ResponseWriter,
	r *http.Request,
	apply func(context.Context, usecase.MovementInput) (*usecase.MovementOutput, error),
	failure string,
) {
	var req dto.MovementRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	input, err := req.ToUseCaseInput(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "invalid request", err)
		return
	}

	out, err := apply(r.Context(), input)
	if err != nil {
		writeDomainError(w, failure, err)
		return
	}

	status := http.StatusCreated
	if out.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, dto.MovementFromDomain(out.Movement, out.Replayed))
}

// GetMovement reports the movement applied under a reference. The
// direction query parameter defaults to DEBIT.
func (h *AccountHandler) GetMovement(w http.ResponseWriter, r *http.Request) {
	direction := domain.MovementDirection(strings.ToUpper(r.URL.Query().Get("direction")))
	switch direction {
	case "":
		direction = domain.MovementDebit
	case domain.MovementDebit, domain.MovementCredit:
	default:
		writeError(w, http.StatusBadRequest, "invalid direction", string(direction))
		return
	}

	movement, err := h.accountUC.GetMovement(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "reference"), direction)
	if err != nil {
		writeDomainError(w, "failed to get movement", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.MovementFromDomain(movement, false))
}

// Activate moves an account to ACTIVE.
func (h *AccountHandler) Activate(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.accountUC.Activate, "failed to activate account")
}

// Freeze moves an account to FROZEN.
func (h *AccountHandler) Freeze(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.accountUC.Freeze, "failed to freeze account")
}

// Close moves an account to CLOSED.
func (h *AccountHandler) Close(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.accountUC.Close, "failed to close account")
}

func (h *AccountHandler) transition(
	w http.ResponseWriter,
	r *http.Request,
	apply func(context.Context, string) (*domain.Account, error),
	failure string,
) {
	account, err := apply(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, failure, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.AccountFromDomain(account))
}
