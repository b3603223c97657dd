package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/fundscore/internal/adapter/http/dto"
	"github.com/iho/fundscore/internal/domain"
	"github.com/iho/fundscore/internal/infrastructure/auth"
)

func TestAuthMiddleware(t *testing.T) {
	manager := auth.NewJWTManager("test-secret", time.Hour)
	expired := auth.NewJWTManager("test-secret", -time.Minute)
	other := auth.NewJWTManager("other-secret", time.Hour)

	valid, _, err := manager.Generate("transfer-service", "transfer", []domain.Permission{domain.PermissionAccountWrite})
	require.NoError(t, err)
	stale, _, err := expired.Generate("transfer-service", "transfer", nil)
	require.NoError(t, err)
	forged, _, err := other.Generate("transfer-service", "transfer", nil)
	require.NoError(t, err)

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantCode   string
	}{
		{"missing header", "", http.StatusUnauthorized, "unauthorized"},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized, "unauthorized"},
		{"expired token", "Bearer " + stale, http.StatusUnauthorized, "expired_token"},
		{"wrong signature", "Bearer " + forged, http.StatusUnauthorized, "invalid_token"},
		{"valid token", "Bearer " + valid, http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var principal *domain.Principal
			handler := AuthMiddleware(manager)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				principal, _ = domain.PrincipalFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/v1/accounts", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)
			if tt.wantCode != "" {
				var body dto.ErrorResponse
				require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
				assert.Equal(t, tt.wantCode, body.Code)
				assert.Nil(t, principal)
				return
			}
			require.NotNil(t, principal)
			assert.Equal(t, "transfer", principal.Service)
			assert.True(t, principal.Has(domain.PermissionAccountWrite))
		})
	}
}

func TestRequirePermission(t *testing.T) {
	tests := []struct {
		name       string
		principal  *domain.Principal
		wantStatus int
	}{
		{"no principal", nil, http.StatusUnauthorized},
		{"missing permission", &domain.Principal{Service: "ledger", Permissions: []domain.Permission{domain.PermissionAccountRead}}, http.StatusForbidden},
		{"granted", &domain.Principal{Service: "transfer", Permissions: []domain.Permission{domain.PermissionAccountWrite}}, http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := RequirePermission(domain.PermissionAccountWrite)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			}))

			req := httptest.NewRequest(http.MethodPost, "/api/v1/accounts/a/debit", nil)
			if tt.principal != nil {
				req = req.WithContext(domain.ContextWithPrincipal(req.Context(), tt.principal))
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)
			if tt.wantStatus == http.StatusForbidden {
				var body dto.ErrorResponse
				require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
				assert.Equal(t, "insufficient_permission", body.Code)
			}
		})
	}
}
