package dto

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/iho/fundscore/internal/domain"
	"github.com/iho/fundscore/internal/usecase"
)

func parseAmount(field, value string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s %q is not a decimal", domain.ErrInvalidAmount, field, value)
	}
	return d, nil
}

func parseOptionalAmount(field, value string) (decimal.Decimal, error) {
	if strings.TrimSpace(value) == "" {
		return decimal.Zero, nil
	}
	return parseAmount(field, value)
}

// OpenAccountRequest represents a request to open an account.
type OpenAccountRequest struct {
	UserID         string `json:"user_id"`
	Type           string `json:"type"`
	Name           string `json:"name"`
	Currency       string `json:"currency,omitempty"`
	MinimumBalance string `json:"minimum_balance,omitempty"`
	DailyLimit     string `json:"daily_limit,omitempty"`
	MonthlyLimit   string `json:"monthly_limit,omitempty"`
}

// ToUseCaseInput converts to use case input.
func (r *OpenAccountRequest) ToUseCaseInput() (usecase.OpenAccountInput, error) {
	minimum, err := parseOptionalAmount("minimum_balance", r.MinimumBalance)
	if err != nil {
		return usecase.OpenAccountInput{}, err
	}
	daily, err := parseOptionalAmount("daily_limit", r.DailyLimit)
	if err != nil {
		return usecase.OpenAccountInput{}, err
	}
	monthly, err := parseOptionalAmount("monthly_limit", r.MonthlyLimit)
	if err != nil {
		return usecase.OpenAccountInput{}, err
	}

	return usecase.OpenAccountInput{
		UserID:         r.UserID,
		Type:           domain.AccountType(strings.ToUpper(r.Type)),
		Name:           r.Name,
		Currency:       r.Currency,
		MinimumBalance: minimum,
		DailyLimit:     daily,
		MonthlyLimit:   monthly,
	}, nil
}

// MovementRequest represents a credit or debit request.
type MovementRequest struct {
	Amount    string `json:"amount"`
	Reference string `json:"reference"`
}

// ToUseCaseInput converts to use case input.
func (r *MovementRequest) ToUseCaseInput(accountID string) (usecase.MovementInput, error) {
	amount, err := parseAmount("amount", r.Amount)
	if err != nil {
		return usecase.MovementInput{}, err
	}
	return usecase.MovementInput{
		AccountID: accountID,
		Amount:    amount,
		Reference: r.Reference,
	}, nil
}

// QuoteFeeRequest represents a fee quote request.
type QuoteFeeRequest struct {
	Amount       string `json:"amount"`
	Type         string `json:"type"`
	TransferType string `json:"transfer_type,omitempty"`
}

// ToUseCaseInput converts to use case input.
func (r *QuoteFeeRequest) ToUseCaseInput() (usecase.QuoteFeeInput, error) {
	amount, err := parseAmount("amount", r.Amount)
	if err != nil {
		return usecase.QuoteFeeInput{}, err
	}
	return usecase.QuoteFeeInput{
		Amount:       amount,
		Type:         domain.TransactionType(r.Type),
		TransferType: domain.TransferType(r.TransferType),
	}, nil
}

// NewQuoteFeeRequest builds the wire request for input.
func NewQuoteFeeRequest(input usecase.QuoteFeeInput) QuoteFeeRequest {
	return QuoteFeeRequest{
		Amount:       input.Amount.String(),
		Type:         string(input.Type),
		TransferType: string(input.TransferType),
	}
}

// RecordTransactionRequest represents a request to record a pending
// transaction.
type RecordTransactionRequest struct {
	SourceAccountID      string  `json:"source_account_id"`
	DestinationAccountID *string `json:"destination_account_id,omitempty"`
	Amount               string  `json:"amount"`
	Fee                  *string `json:"fee,omitempty"`
	Type                 string  `json:"type"`
	TransferType         string  `json:"transfer_type,omitempty"`
	Reference            string  `json:"reference,omitempty"`
	Description          string  `json:"description,omitempty"`
	UserID               string  `json:"user_id,omitempty"`
}

// ToUseCaseInput converts to use case input.
func (r *RecordTransactionRequest) ToUseCaseInput() (usecase.RecordPendingInput, error) {
	amount, err := parseAmount("amount", r.Amount)
	if err != nil {
		return usecase.RecordPendingInput{}, err
	}

	var fee *decimal.Decimal
	if r.Fee != nil {
		f, err := parseAmount("fee", *r.Fee)
		if err != nil {
			return usecase.RecordPendingInput{}, err
		}
		fee = &f
	}

	return usecase.RecordPendingInput{
		SourceAccountID:      r.SourceAccountID,
		DestinationAccountID: r.DestinationAccountID,
		Amount:               amount,
		Fee:                  fee,
		Type:                 domain.TransactionType(r.Type),
		TransferType:         domain.TransferType(r.TransferType),
		Reference:            r.Reference,
		Description:          r.Description,
		UserID:               r.UserID,
	}, nil
}

// NewRecordTransactionRequest builds the wire request for input.
func NewRecordTransactionRequest(input usecase.RecordPendingInput) RecordTransactionRequest {
	req := RecordTransactionRequest{
		SourceAccountID:      input.SourceAccountID,
		DestinationAccountID: input.DestinationAccountID,
		Amount:               input.Amount.String(),
		Type:                 string(input.Type),
		TransferType:         string(input.TransferType),
		Reference:            input.Reference,
		Description:          input.Description,
		UserID:               input.UserID,
	}
	if input.Fee != nil {
		fee := input.Fee.String()
		req.Fee = &fee
	}
	return req
}

// FinalizeTransactionRequest represents a request to settle a transaction.
type FinalizeTransactionRequest struct {
	Status string `json:"status"`
}

// CreateTransferRequest represents a request to start a transfer.
type CreateTransferRequest struct {
	SenderAccountID    string `json:"sender_account_id"`
	RecipientAccountID string `json:"recipient_account_id"`
	Amount             string `json:"amount"`
	Currency           string `json:"currency,omitempty"`
	Type               string `json:"type,omitempty"`
	Description        string `json:"description,omitempty"`
	UserID             string `json:"user_id,omitempty"`
	ClientReference    string `json:"client_reference,omitempty"`
}

// ToUseCaseInput converts to use case input.
func (r *CreateTransferRequest) ToUseCaseInput() (usecase.InitiateTransferInput, error) {
	amount, err := parseAmount("amount", r.Amount)
	if err != nil {
		return usecase.InitiateTransferInput{}, err
	}
	return usecase.InitiateTransferInput{
		SenderAccountID:    r.SenderAccountID,
		RecipientAccountID: r.RecipientAccountID,
		Amount:             amount,
		Currency:           strings.ToUpper(r.Currency),
		Type:               domain.TransferType(strings.ToUpper(r.Type)),
		Description:        r.Description,
		UserID:             r.UserID,
		ClientReference:    r.ClientReference,
	}, nil
}
