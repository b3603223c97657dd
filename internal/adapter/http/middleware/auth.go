package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/iho/fundscore/internal/adapter/http/dto"
	"github.com/iho/fundscore/internal/domain"
	"github.com/iho/fundscore/internal/infrastructure/auth"
)

// TokenVerifier verifies bearer tokens. auth.JWTManager implements it.
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// AuthMiddleware creates an authentication middleware. Requests without a
// valid bearer token are refused with 401; accepted requests carry the
// caller's domain.Principal in their context.
func AuthMiddleware(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeAuthError(w, http.StatusUnauthorized, domain.ErrUnauthorized, "missing authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				writeAuthError(w, http.StatusUnauthorized, domain.ErrUnauthorized, "invalid authorization header format")
				return
			}

			claims, err := verifier.Verify(parts[1])
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, err, "invalid or expired token")
				return
			}

			ctx := domain.ContextWithPrincipal(r.Context(), claims.Principal())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequirePermission creates a middleware that lets through only callers
// granted perm.
func RequirePermission(perm domain.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := domain.PrincipalFromContext(r.Context())
			if !ok {
				writeAuthError(w, http.StatusUnauthorized, domain.ErrUnauthorized, "unauthorized")
				return
			}

			if !principal.Has(perm) {
				writeAuthError(w, http.StatusForbidden, domain.ErrInsufficientPermission, "missing permission "+string(perm))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Passthrough is a no-op middleware, used in place of auth checks when
// authentication is disabled.
func Passthrough(next http.Handler) http.Handler {
	return next
}

func writeAuthError(w http.ResponseWriter, status int, err error, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(dto.ErrorResponse{
		Error:   http.StatusText(status),
		Code:    dto.ErrorCode(err),
		Message: message,
	})
}
