package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"

	"github.com/iho/fundscore/internal/adapter/http/dto"
	"github.com/iho/fundscore/internal/domain"
	"github.com/iho/fundscore/internal/usecase"
)

var (
	ledgerReadPerms  = []domain.Permission{domain.PermissionTransactionRead}
	ledgerWritePerms = []domain.Permission{domain.PermissionTransactionWrite}
)

// LedgerClient reaches the transaction ledger over HTTP.
type LedgerClient struct {
	*client
}

var _ usecase.LedgerClient = (*LedgerClient)(nil)

// NewLedgerClient creates a new LedgerClient.
func NewLedgerClient(cfg ClientConfig) *LedgerClient {
	return &LedgerClient{client: newClient("ledger-service", cfg)}
}

// QuoteFee asks the ledger for the fee it will charge.
func (c *LedgerClient) QuoteFee(ctx context.Context, input usecase.QuoteFeeInput) (decimal.Decimal, error) {
	var resp dto.FeeQuoteResponse
	if err := c.do(ctx, "quote_fee", http.MethodPost, "/api/v1/transactions/fees", ledgerReadPerms, dto.NewQuoteFeeRequest(input), &resp); err != nil {
		return decimal.Zero, ledgerError(err)
	}

	fee, err := decimal.NewFromString(resp.Fee)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: malformed fee %q", domain.ErrLedgerUnavailable, resp.Fee)
	}
	return fee, nil
}

// RecordPending writes a PENDING transaction.
func (c *LedgerClient) RecordPending(ctx context.Context, input usecase.RecordPendingInput) (*domain.Transaction, error) {
	var resp dto.TransactionResponse
	if err := c.do(ctx, "record", http.MethodPost, "/api/v1/transactions", ledgerWritePerms, dto.NewRecordTransactionRequest(input), &resp); err != nil {
		return nil, ledgerError(err)
	}
	return decodeTransaction(&resp)
}

// Finalize settles a PENDING transaction.
func (c *LedgerClient) Finalize(ctx context.Context, id string, status domain.TransactionStatus) (*domain.Transaction, error) {
	req := dto.FinalizeTransactionRequest{Status: string(status)}
	path := "/api/v1/transactions/" + url.PathEscape(id) + "/finalize"

	var resp dto.TransactionResponse
	if err := c.do(ctx, "finalize", http.MethodPost, path, ledgerWritePerms, req, &resp); err != nil {
		return nil, ledgerError(err)
	}
	return decodeTransaction(&resp)
}

// GetByReference fetches a transaction by reference number.
func (c *LedgerClient) GetByReference(ctx context.Context, reference string) (*domain.Transaction, error) {
	var resp dto.TransactionResponse
	if err := c.do(ctx, "get_by_reference", http.MethodGet, "/api/v1/transactions/reference/"+url.PathEscape(reference), ledgerReadPerms, nil, &resp); err != nil {
		return nil, ledgerError(err)
	}
	return decodeTransaction(&resp)
}

func decodeTransaction(resp *dto.TransactionResponse) (*domain.Transaction, error) {
	record, err := resp.ToDomain()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrLedgerUnavailable, err)
	}
	return record, nil
}

// ledgerError keeps business rejections and folds everything else into
// domain.ErrLedgerUnavailable.
func ledgerError(err error) error {
	if re, ok := asRejection(err); ok {
		return fmt.Errorf("%w: %s", re.cause(), re.reason())
	}
	return fmt.Errorf("%w: %w", domain.ErrLedgerUnavailable, err)
}
