package gateway

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/iho/fundscore/internal/domain"
)

// TokenSource supplies bearer tokens for outbound calls.
type TokenSource interface {
	Token(ctx context.Context, perms ...domain.Permission) (string, error)
}

// TokenIssuer signs service tokens. auth.JWTManager implements it.
type TokenIssuer interface {
	Generate(subject, service string, perms []domain.Permission) (string, time.Time, error)
}

// StaticToken sends the same token on every call.
type StaticToken string

// Token returns the token.
func (t StaticToken) Token(context.Context, ...domain.Permission) (string, error) {
	return string(t), nil
}

type cachedToken struct {
	token     string
	expiresAt time.Time
}

// ServiceTokenSource issues tokens scoped to the permissions a call needs
// and reuses them until shortly before they expire.
type ServiceTokenSource struct {
	issuer  TokenIssuer
	service string
	leeway  time.Duration

	mu     sync.Mutex
	tokens map[string]cachedToken
}

// NewServiceTokenSource creates a token source for service.
func NewServiceTokenSource(issuer TokenIssuer, service string) *ServiceTokenSource {
	return &ServiceTokenSource{
		issuer:  issuer,
		service: service,
		leeway:  30 * time.Second,
		tokens:  make(map[string]cachedToken),
	}
}

// Token returns a token carrying perms.
func (s *ServiceTokenSource) Token(_ context.Context, perms ...domain.Permission) (string, error) {
	sorted := make([]string, len(perms))
	for i, p := range perms {
		sorted[i] = string(p)
	}
	sort.Strings(sorted)
	key := strings.Join(sorted, ",")

	s.mu.Lock()
	defer s.mu.Unlock()

	if cached, ok := s.tokens[key]; ok && time.Until(cached.expiresAt) > s.leeway {
		return cached.token, nil
	}

	token, expiresAt, err := s.issuer.Generate(s.service+"-service", s.service, perms)
	if err != nil {
		return "", err
	}
	s.tokens[key] = cachedToken{token: token, expiresAt: expiresAt}
	return token, nil
}
