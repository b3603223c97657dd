package usecase

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"

	"github.com/iho/fundscore/internal/domain"
)

// ReferencePrefix starts every generated reference number.
const ReferencePrefix = "TXN"

// ReferenceGenerator produces client-facing reference numbers.
type ReferenceGenerator interface {
	NewReference() string
}

// UUIDReferenceGenerator builds references as TXN + 12 uppercase hex chars.
type UUIDReferenceGenerator struct{}

// NewReference returns a fresh reference number.
func (UUIDReferenceGenerator) NewReference() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return ReferencePrefix + strings.ToUpper(hex[:12])
}

// uniqueReference generates references until exists reports a free one, up
// to MaxReferenceAttempts.
func uniqueReference(ctx context.Context, gen ReferenceGenerator, exists func(context.Context, string) (bool, error)) (string, error) {
	for attempt := 0; attempt < MaxReferenceAttempts; attempt++ {
		ref := gen.NewReference()
		taken, err := exists(ctx, ref)
		if err != nil {
			return "", err
		}
		if !taken {
			return ref, nil
		}
	}
	return "", fmt.Errorf("%w: reference number after %d attempts", domain.ErrIDGenerationExhausted, MaxReferenceAttempts)
}

// AccountNumberGenerator produces human-facing account numbers.
type AccountNumberGenerator interface {
	NewAccountNumber(accountType domain.AccountType) string
}

var accountNumberPrefixes = map[domain.AccountType]string{
	domain.AccountTypeSavings:      "SAV",
	domain.AccountTypeChecking:     "CHK",
	domain.AccountTypeBusiness:     "BUS",
	domain.AccountTypeFixedDeposit: "FD",
}

// RandomAccountNumberGenerator builds account numbers as a type prefix and
// ten random digits.
type RandomAccountNumberGenerator struct{}

// NewAccountNumber returns a fresh account number for accountType.
func (RandomAccountNumberGenerator) NewAccountNumber(accountType domain.AccountType) string {
	prefix, ok := accountNumberPrefixes[accountType]
	if !ok {
		prefix = "ACC"
	}

	n, err := rand.Int(rand.Reader, big.NewInt(10_000_000_000))
	if err != nil {
		// crypto/rand does not fail on supported platforms
		panic(err)
	}
	return fmt.Sprintf("%s%010d", prefix, n.Int64())
}
