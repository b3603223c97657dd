package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/fundscore/internal/domain"
	"github.com/iho/fundscore/internal/usecase"
)

// AccountResponse represents an account in API responses.
type AccountResponse struct {
	ID                string     `json:"id"`
	AccountNumber     string     `json:"account_number"`
	UserID            string     `json:"user_id"`
	Type              string     `json:"type"`
	Name              string     `json:"name"`
	Currency          string     `json:"currency"`
	Status            string     `json:"status"`
	Balance           string     `json:"balance"`
	AvailableBalance  string     `json:"available_balance"`
	MinimumBalance    string     `json:"minimum_balance"`
	DailyLimit        string     `json:"daily_limit"`
	MonthlyLimit      string     `json:"monthly_limit"`
	Version           int64      `json:"version"`
	LastTransactionAt *time.Time `json:"last_transaction_at,omitempty"`
	ActivatedAt       *time.Time `json:"activated_at,omitempty"`
	ClosedAt          *time.Time `json:"closed_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// AccountFromDomain converts domain account to response.
func AccountFromDomain(a *domain.Account) *AccountResponse {
	return &AccountResponse{
		ID:                a.ID,
		AccountNumber:     a.AccountNumber,
		UserID:            a.UserID,
		Type:              string(a.Type),
		Name:              a.Name,
		Currency:          a.Currency,
		Status:            string(a.Status),
		Balance:           a.Balance.String(),
		AvailableBalance:  a.AvailableBalance.String(),
		MinimumBalance:    a.MinimumBalance.String(),
		DailyLimit:        a.DailyLimit.String(),
		MonthlyLimit:      a.MonthlyLimit.String(),
		Version:           a.Version,
		LastTransactionAt: a.LastTransactionAt,
		ActivatedAt:       a.ActivatedAt,
		ClosedAt:          a.ClosedAt,
		CreatedAt:         a.CreatedAt,
		UpdatedAt:         a.UpdatedAt,
	}
}

// AccountsFromDomain converts domain accounts to responses.
func AccountsFromDomain(accounts []*domain.Account) []*AccountResponse {
	result := make([]*AccountResponse, len(accounts))
	for i, a := range accounts {
		result[i] = AccountFromDomain(a)
	}
	return result
}

// Snapshot converts the response to the orchestrator's account view.
func (r *AccountResponse) Snapshot() (usecase.AccountSnapshot, error) {
	balance, err := parseAmount("balance", r.Balance)
	if err != nil {
		return usecase.AccountSnapshot{}, err
	}
	available, err := parseAmount("available_balance", r.AvailableBalance)
	if err != nil {
		return usecase.AccountSnapshot{}, err
	}
	return usecase.AccountSnapshot{
		ID:               r.ID,
		AccountNumber:    r.AccountNumber,
		Balance:          balance,
		AvailableBalance: available,
		Status:           domain.AccountStatus(r.Status),
		Currency:         r.Currency,
	}, nil
}

// ListAccountsResponse represents a page of accounts.
type ListAccountsResponse struct {
	Accounts []*AccountResponse `json:"accounts"`
	Total    int64              `json:"total"`
}

// MovementResponse represents an applied credit or debit.
type MovementResponse struct {
	ID           string    `json:"id"`
	AccountID    string    `json:"account_id"`
	Reference    string    `json:"reference"`
	Direction    string    `json:"direction"`
	Amount       string    `json:"amount"`
	BalanceAfter string    `json:"balance_after"`
	Status       string    `json:"status"`
	Replayed     bool      `json:"replayed"`
	CreatedAt    time.Time `json:"created_at"`
}

// MovementFromDomain converts a domain movement to response.
func MovementFromDomain(m *domain.Movement, replayed bool) *MovementResponse {
	return &MovementResponse{
		ID:           m.ID,
		AccountID:    m.AccountID,
		Reference:    m.Reference,
		Direction:    string(m.Direction),
		Amount:       m.Amount.String(),
		BalanceAfter: m.BalanceAfter.String(),
		Status:       string(usecase.MovementStatusSuccess),
		Replayed:     replayed,
		CreatedAt:    m.CreatedAt,
	}
}

// Result converts the response to a gateway movement result.
func (r *MovementResponse) Result() usecase.MovementResult {
	balance, err := decimal.NewFromString(r.BalanceAfter)
	if err != nil {
		balance = decimal.Zero
	}
	return usecase.MovementResult{
		Outcome:      usecase.OutcomeOK,
		Status:       usecase.MovementStatus(r.Status),
		BalanceAfter: balance,
		Replayed:     r.Replayed,
	}
}

// FeeQuoteResponse represents a fee quote.
type FeeQuoteResponse struct {
	Amount string `json:"amount"`
	Fee    string `json:"fee"`
	Total  string `json:"total"`
}

// NewFeeQuoteResponse builds a fee quote for amount.
func NewFeeQuoteResponse(amount, fee decimal.Decimal) *FeeQuoteResponse {
	return &FeeQuoteResponse{
		Amount: amount.String(),
		Fee:    fee.String(),
		Total:  amount.Add(fee).String(),
	}
}

// TransactionResponse represents a ledger transaction.
type TransactionResponse struct {
	ID                   string     `json:"id"`
	ReferenceNumber      string     `json:"reference_number"`
	SourceAccountID      string     `json:"source_account_id"`
	DestinationAccountID *string    `json:"destination_account_id,omitempty"`
	Amount               string     `json:"amount"`
	Fee                  string     `json:"fee"`
	Total                string     `json:"total"`
	Type                 string     `json:"type"`
	Status               string     `json:"status"`
	Description          string     `json:"description,omitempty"`
	UserID               string     `json:"user_id,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
	ProcessedAt          *time.Time `json:"processed_at,omitempty"`
}

// TransactionFromDomain converts a domain transaction to response.
func TransactionFromDomain(t *domain.Transaction) *TransactionResponse {
	return &TransactionResponse{
		ID:                   t.ID,
		ReferenceNumber:      t.ReferenceNumber,
		SourceAccountID:      t.SourceAccountID,
		DestinationAccountID: t.DestinationAccountID,
		Amount:               t.Amount.String(),
		Fee:                  t.Fee.String(),
		Total:                t.Total.String(),
		Type:                 string(t.Type),
		Status:               string(t.Status),
		Description:          t.Description,
		UserID:               t.UserID,
		CreatedAt:            t.CreatedAt,
		UpdatedAt:            t.UpdatedAt,
		ProcessedAt:          t.ProcessedAt,
	}
}

// TransactionsFromDomain converts domain transactions to responses.
func TransactionsFromDomain(records []*domain.Transaction) []*TransactionResponse {
	result := make([]*TransactionResponse, len(records))
	for i, t := range records {
		result[i] = TransactionFromDomain(t)
	}
	return result
}

// ToDomain converts the response back to a domain transaction.
func (r *TransactionResponse) ToDomain() (*domain.Transaction, error) {
	amount, err := parseAmount("amount", r.Amount)
	if err != nil {
		return nil, err
	}
	fee, err := parseAmount("fee", r.Fee)
	if err != nil {
		return nil, err
	}
	total, err := parseAmount("total", r.Total)
	if err != nil {
		return nil, err
	}
	return &domain.Transaction{
		ID:                   r.ID,
		ReferenceNumber:      r.ReferenceNumber,
		SourceAccountID:      r.SourceAccountID,
		DestinationAccountID: r.DestinationAccountID,
		Amount:               amount,
		Fee:                  fee,
		Total:                total,
		Type:                 domain.TransactionType(r.Type),
		Status:               domain.TransactionStatus(r.Status),
		Description:          r.Description,
		UserID:               r.UserID,
		CreatedAt:            r.CreatedAt,
		UpdatedAt:            r.UpdatedAt,
		ProcessedAt:          r.ProcessedAt,
	}, nil
}

// BalanceResponse represents an account's ledger balance.
type BalanceResponse struct {
	AccountID string `json:"account_id"`
	Balance   string `json:"balance"`
}

// TransferResponse represents a transfer in API responses.
type TransferResponse struct {
	ID                  string     `json:"id"`
	Reference           string     `json:"reference"`
	ClientReference     *string    `json:"client_reference,omitempty"`
	SenderAccountID     string     `json:"sender_account_id"`
	RecipientAccountID  string     `json:"recipient_account_id"`
	Amount              string     `json:"amount"`
	Fee                 string     `json:"fee"`
	TotalAmount         string     `json:"total_amount"`
	Currency            string     `json:"currency,omitempty"`
	Type                string     `json:"type"`
	Status              string     `json:"status"`
	State               string     `json:"state"`
	TransactionID       *string    `json:"transaction_id,omitempty"`
	Description         string     `json:"description,omitempty"`
	FailureCode         string     `json:"failure_code,omitempty"`
	FailureReason       string     `json:"failure_reason,omitempty"`
	Compensated         bool       `json:"compensated"`
	CompensationPending bool       `json:"compensation_pending,omitempty"`
	FinalizePending     bool       `json:"finalize_pending,omitempty"`
	DebitInDoubt        bool       `json:"debit_in_doubt,omitempty"`
	CreditInDoubt       bool       `json:"credit_in_doubt,omitempty"`
	RetryOf             *string    `json:"retry_of,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
}

// TransferFromDomain converts domain transfer to response.
func TransferFromDomain(t *domain.Transfer) *TransferResponse {
	return &TransferResponse{
		ID:                  t.ID,
		Reference:           t.Reference,
		ClientReference:     t.ClientReference,
		SenderAccountID:     t.SenderAccountID,
		RecipientAccountID:  t.RecipientAccountID,
		Amount:              t.Amount.String(),
		Fee:                 t.Fee.String(),
		TotalAmount:         t.TotalAmount.String(),
		Currency:            t.Currency,
		Type:                string(t.Type),
		Status:              string(t.Status),
		State:               string(t.State),
		TransactionID:       t.TransactionID,
		Description:         t.Description,
		FailureCode:         t.FailureCode,
		FailureReason:       t.FailureReason,
		Compensated:         t.Compensated,
		CompensationPending: t.CompensationPending,
		FinalizePending:     t.FinalizePending,
		DebitInDoubt:        t.DebitInDoubt,
		CreditInDoubt:       t.CreditInDoubt,
		RetryOf:             t.RetryOf,
		CreatedAt:           t.CreatedAt,
		UpdatedAt:           t.UpdatedAt,
		CompletedAt:         t.CompletedAt,
	}
}

// TransfersFromDomain converts domain transfers to responses.
func TransfersFromDomain(transfers []*domain.Transfer) []*TransferResponse {
	result := make([]*TransferResponse, len(transfers))
	for i, t := range transfers {
		result[i] = TransferFromDomain(t)
	}
	return result
}

// TransferStatsResponse represents aggregate transfer figures for an
// account.
type TransferStatsResponse struct {
	AccountID      string `json:"account_id"`
	TotalSent      int64  `json:"total_sent"`
	TotalReceived  int64  `json:"total_received"`
	Completed      int64  `json:"completed"`
	Failed         int64  `json:"failed"`
	Pending        int64  `json:"pending"`
	Cancelled      int64  `json:"cancelled"`
	AmountSent     string `json:"amount_sent"`
	AmountReceived string `json:"amount_received"`
	FeesPaid       string `json:"fees_paid"`
}

// TransferStatsFromDomain converts domain stats to response.
func TransferStatsFromDomain(s *domain.TransferStats) *TransferStatsResponse {
	return &TransferStatsResponse{
		AccountID:      s.AccountID,
		TotalSent:      s.TotalSent,
		TotalReceived:  s.TotalReceived,
		Completed:      s.Completed,
		Failed:         s.Failed,
		Pending:        s.Pending,
		Cancelled:      s.Cancelled,
		AmountSent:     s.AmountSent.String(),
		AmountReceived: s.AmountReceived.String(),
		FeesPaid:       s.FeesPaid.String(),
	}
}
