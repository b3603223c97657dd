package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iho/fundscore/internal/domain"
)

// Claims represents the JWT claims of a service token
type Claims struct {
	Service     string              `json:"service"`
	Permissions []domain.Permission `json:"permissions"`
	jwt.RegisteredClaims
}

// Principal returns the caller identity carried by the claims
func (c *Claims) Principal() *domain.Principal {
	return &domain.Principal{
		Subject:     c.Subject,
		Service:     c.Service,
		Permissions: c.Permissions,
	}
}

// JWTManager manages JWT token creation and validation
type JWTManager struct {
	secretKey     []byte
	tokenDuration time.Duration
	issuer        string
}

// NewJWTManager creates a new JWT manager
func NewJWTManager(secretKey string, tokenDuration time.Duration) *JWTManager {
	return &JWTManager{
		secretKey:     []byte(secretKey),
		tokenDuration: tokenDuration,
		issuer:        "fundscore",
	}
}

// Generate signs a token for service carrying perms. It returns the token
// and its expiry.
func (m *JWTManager) Generate(subject, service string, perms []domain.Permission) (string, time.Time, error) {
	for _, p := range perms {
		if !p.IsValid() {
			return "", time.Time{}, fmt.Errorf("unknown permission %q", p)
		}
	}

	now := time.Now()
	expiresAt := now.Add(m.tokenDuration)
	claims := Claims{
		Service:     service,
		Permissions: perms,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    m.issuer,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secretKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Verify verifies a JWT token and returns the claims
func (m *JWTManager) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenString,
		&Claims{},
		func(token *jwt.Token) (interface{}, error) {
			// Validate signing method
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return m.secretKey, nil
		},
	)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) && !errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			return nil, domain.ErrExpiredToken
		}
		return nil, domain.ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, domain.ErrInvalidToken
	}

	return claims, nil
}
