package gateway

import (
	"context"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"

	"github.com/iho/fundscore/internal/adapter/http/dto"
	"github.com/iho/fundscore/internal/domain"
	"github.com/iho/fundscore/internal/usecase"
)

var (
	accountReadPerms  = []domain.Permission{domain.PermissionAccountRead}
	accountWritePerms = []domain.Permission{domain.PermissionAccountWrite}
)

// AccountClient reaches the account service over HTTP.
type AccountClient struct {
	*client
}

var _ usecase.AccountGateway = (*AccountClient)(nil)

// NewAccountClient creates a new AccountClient.
func NewAccountClient(cfg ClientConfig) *AccountClient {
	return &AccountClient{client: newClient("account-service", cfg)}
}

// Lookup resolves an account by ID or account number.
func (c *AccountClient) Lookup(ctx context.Context, ref string) usecase.LookupResult {
	var resp dto.AccountResponse
	err := c.do(ctx, "lookup", http.MethodGet, "/api/v1/accounts/lookup/"+url.PathEscape(ref), accountReadPerms, nil, &resp)
	if err != nil {
		if re, ok := asRejection(err); ok {
			return usecase.LookupResult{Outcome: usecase.OutcomeRejected, Reason: re.reason(), Err: re.cause()}
		}
		return usecase.FallbackLookup(ref)
	}

	snapshot, err := resp.Snapshot()
	if err != nil {
		c.logger.Warn().Err(err).Str("ref", ref).Msg("malformed account response")
		return usecase.FallbackLookup(ref)
	}
	return usecase.LookupResult{Outcome: usecase.OutcomeOK, Account: snapshot}
}

// Debit takes amount from the account under reference.
func (c *AccountClient) Debit(ctx context.Context, accountID string, amount decimal.Decimal, reference string) usecase.MovementResult {
	return c.move(ctx, "debit", accountID, amount, reference)
}

// Credit adds amount to the account under reference.
func (c *AccountClient) Credit(ctx context.Context, accountID string, amount decimal.Decimal, reference string) usecase.MovementResult {
	return c.move(ctx, "credit", accountID, amount, reference)
}

func (c *AccountClient) move(ctx context.Context, operation, accountID string, amount decimal.Decimal, reference string) usecase.MovementResult {
	req := dto.MovementRequest{Amount: amount.String(), Reference: reference}
	path := "/api/v1/accounts/" + url.PathEscape(accountID) + "/" + operation

	var resp dto.MovementResponse
	if err := c.do(ctx, operation, http.MethodPost, path, accountWritePerms, req, &resp); err != nil {
		return movementFailure(err)
	}
	return resp.Result()
}

// Movement reports whether a movement with reference was applied.
func (c *AccountClient) Movement(ctx context.Context, accountID, reference string, direction domain.MovementDirection) usecase.MovementResult {
	path := "/api/v1/accounts/" + url.PathEscape(accountID) + "/movements/" + url.PathEscape(reference) +
		"?direction=" + url.QueryEscape(string(direction))

	var resp dto.MovementResponse
	if err := c.do(ctx, "movement", http.MethodGet, path, accountReadPerms, nil, &resp); err != nil {
		return movementFailure(err)
	}
	return resp.Result()
}

func movementFailure(err error) usecase.MovementResult {
	if re, ok := asRejection(err); ok {
		return usecase.RejectedMovement(re.reason(), re.cause())
	}
	return usecase.FallbackMovement()
}
