package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/fundscore/internal/adapter/http/dto"
	"github.com/iho/fundscore/internal/domain"
	"github.com/iho/fundscore/internal/usecase"
)

type fakeIssuer struct {
	calls int
	perms [][]domain.Permission
}

func (f *fakeIssuer) Generate(subject, service string, perms []domain.Permission) (string, time.Time, error) {
	f.calls++
	f.perms = append(f.perms, perms)
	names := make([]string, len(perms))
	for i, p := range perms {
		names[i] = string(p)
	}
	return service + ":" + strings.Join(names, "+"), time.Now().Add(time.Hour), nil
}

func newTestLedgerClient(t *testing.T, handler http.HandlerFunc) (*LedgerClient, *fakeIssuer) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	issuer := &fakeIssuer{}
	return NewLedgerClient(ClientConfig{
		BaseURL: srv.URL + "/",
		Timeout: 200 * time.Millisecond,
		Tokens:  NewServiceTokenSource(issuer, "transfer"),
		Logger:  zerolog.Nop(),
	}), issuer
}

func TestLedgerClient_QuoteFee(t *testing.T) {
	c, _ := newTestLedgerClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/transactions/fees", r.URL.Path)
		assert.Equal(t, "Bearer transfer:TRANSACTION_READ", r.Header.Get("Authorization"))

		var req dto.QuoteFeeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "TRANSFER", req.Type)
		assert.Equal(t, "MOBILE_MONEY", req.TransferType)
		writeJSON(w, http.StatusOK, dto.FeeQuoteResponse{Amount: req.Amount, Fee: "10", Total: "1010"})
	})

	fee, err := c.QuoteFee(t.Context(), usecase.QuoteFeeInput{
		Amount:       decimal.NewFromInt(1000),
		Type:         domain.TransactionTypeTransfer,
		TransferType: domain.TransferTypeMobileMoney,
	})
	require.NoError(t, err)
	assert.True(t, fee.Equal(decimal.NewFromInt(10)))
}

func TestLedgerClient_RecordPending(t *testing.T) {
	dest := "acc-2"
	tests := []struct {
		name    string
		status  int
		body    any
		wantErr error
	}{
		{
			name:   "recorded",
			status: http.StatusCreated,
			body: dto.TransactionResponse{
				ID:     "txn-1", ReferenceNumber: "TXN1", SourceAccountID: "acc-1", DestinationAccountID: &dest,
				Amount: "1000", Fee: "10", Total: "1010", Type: "TRANSFER", Status: "PENDING",
			},
		},
		{
			name:    "duplicate reference",
			status:  http.StatusConflict,
			body:    dto.ErrorResponse{Error: "reference number already exists", Code: "duplicate_reference"},
			wantErr: domain.ErrDuplicateReference,
		},
		{
			name:    "ledger down",
			status:  http.StatusBadGateway,
			body:    dto.ErrorResponse{Error: "bad gateway"},
			wantErr: domain.ErrLedgerUnavailable,
		},
		{
			name:    "throttled",
			status:  http.StatusTooManyRequests,
			body:    dto.ErrorResponse{Error: "too many requests"},
			wantErr: domain.ErrLedgerUnavailable,
		},
		{
			name:    "unauthorized",
			status:  http.StatusUnauthorized,
			body:    dto.ErrorResponse{Error: "invalid token", Code: "invalid_token"},
			wantErr: domain.ErrUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestLedgerClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "Bearer transfer:TRANSACTION_WRITE", r.Header.Get("Authorization"))
				writeJSON(w, tt.status, tt.body)
			})

			fee := decimal.NewFromInt(10)
			record, err := c.RecordPending(t.Context(), usecase.RecordPendingInput{
				SourceAccountID:      "acc-1",
				DestinationAccountID: &dest,
				Amount:               decimal.NewFromInt(1000),
				Fee:                  &fee,
				Type:                 domain.TransactionTypeTransfer,
				Reference:            "TXN1",
			})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, domain.TransactionStatusPending, record.Status)
			assert.True(t, record.Matches("acc-1", &dest, decimal.NewFromInt(1000)))
		})
	}
}

func TestLedgerClient_FinalizeAndLookup(t *testing.T) {
	c, issuer := newTestLedgerClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/transactions/txn-1/finalize":
			var req dto.FinalizeTransactionRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			if req.Status != "COMPLETED" {
				writeJSON(w, http.StatusConflict, dto.ErrorResponse{Error: "invalid state transition", Code: "invalid_state_transition"})
				return
			}
			writeJSON(w, http.StatusOK, dto.TransactionResponse{ID: "txn-1", ReferenceNumber: "TXN1", Amount: "1", Fee: "0", Total: "1", Status: "COMPLETED"})
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/transactions/reference/TXN1":
			writeJSON(w, http.StatusOK, dto.TransactionResponse{ID: "txn-1", ReferenceNumber: "TXN1", Amount: "1", Fee: "0", Total: "1", Status: "COMPLETED"})
		default:
			writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "transaction not found", Code: "transaction_not_found"})
		}
	})

	record, err := c.Finalize(t.Context(), "txn-1", domain.TransactionStatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusCompleted, record.Status)

	_, err = c.Finalize(t.Context(), "txn-1", domain.TransactionStatusFailed)
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)

	record, err = c.GetByReference(t.Context(), "TXN1")
	require.NoError(t, err)
	assert.Equal(t, "txn-1", record.ID)

	_, err = c.GetByReference(t.Context(), "TXN404")
	assert.ErrorIs(t, err, domain.ErrTransactionNotFound)

	// One token per permission set.
	assert.Equal(t, 2, issuer.calls)
}

func TestServiceTokenSource_RefreshesNearExpiry(t *testing.T) {
	issuer := &expiringIssuer{ttl: 10 * time.Second}
	src := NewServiceTokenSource(issuer, "transfer")

	_, err := src.Token(t.Context(), domain.PermissionAccountRead)
	require.NoError(t, err)
	_, err = src.Token(t.Context(), domain.PermissionAccountRead)
	require.NoError(t, err)

	// A 10s token is inside the 30s leeway, so every call re-issues.
	assert.Equal(t, 2, issuer.calls)
}

type expiringIssuer struct {
	ttl   time.Duration
	calls int
}

func (e *expiringIssuer) Generate(string, string, []domain.Permission) (string, time.Time, error) {
	e.calls++
	return "tok", time.Now().Add(e.ttl), nil
}
