package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Validation errors
var (
	ErrInvalidAccountName = errors.New("invalid account name")
	ErrInvalidCurrency    = errors.New("invalid currency code")
	ErrInvalidAccountType = errors.New("invalid account type")
	ErrInvalidReference   = errors.New("invalid reference")
	ErrAmountTooLarge     = errors.New("amount exceeds maximum allowed")
	ErrInvalidType        = errors.New("invalid transaction or transfer type")
)

// Validation constants
const (
	MaxAccountNameLength = 255
	MaxReferenceLength   = 64
	MoneyScale           = 2
)

// Valid currency codes (ISO 4217)
var validCurrencies = map[string]bool{
	"KES": true, "UGX": true, "TZS": true, "RWF": true,
	"USD": true, "EUR": true, "GBP": true, "ZAR": true,
	"NGN": true, "GHS": true, "ETB": true, "BIF": true,
}

// ValidateAccountName validates account name
func ValidateAccountName(name string) error {
	name = strings.TrimSpace(name)

	if name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidAccountName)
	}

	if len(name) > MaxAccountNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidAccountName, MaxAccountNameLength)
	}

	return nil
}

// ValidateCurrency validates currency code
func ValidateCurrency(currency string) error {
	currency = strings.ToUpper(strings.TrimSpace(currency))

	if !validCurrencies[currency] {
		return fmt.Errorf("%w: %s is not a supported ISO 4217 currency code", ErrInvalidCurrency, currency)
	}

	return nil
}

// ValidateAccountType validates account type
func ValidateAccountType(t AccountType) error {
	switch t {
	case AccountTypeSavings, AccountTypeChecking, AccountTypeBusiness, AccountTypeFixedDeposit:
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalidAccountType, t)
}

// ValidateAmount checks that amount is positive, has at most two decimal
// places and does not exceed maxAmount. A zero maxAmount disables the upper bound.
func ValidateAmount(amount, maxAmount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}

	if !amount.Equal(amount.Round(MoneyScale)) {
		return fmt.Errorf("%w: at most %d decimal places", ErrInvalidAmount, MoneyScale)
	}

	if maxAmount.IsPositive() && amount.GreaterThan(maxAmount) {
		return fmt.Errorf("%w: %w: maximum amount is %s", ErrInvalidAmount, ErrAmountTooLarge, maxAmount.String())
	}

	return nil
}

// ValidateReference validates a caller supplied reference
func ValidateReference(ref string) error {
	if strings.TrimSpace(ref) == "" {
		return fmt.Errorf("%w: reference cannot be empty", ErrInvalidReference)
	}
	if len(ref) > MaxReferenceLength {
		return fmt.Errorf("%w: reference exceeds %d characters", ErrInvalidReference, MaxReferenceLength)
	}
	return nil
}

// ValidatePagination validates and limits pagination parameters
func ValidatePagination(limit, offset int) (int, int) {
	const MaxPageSize = 100
	const DefaultPageSize = 20

	if limit <= 0 {
		limit = DefaultPageSize
	}

	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	if offset < 0 {
		offset = 0
	}

	return limit, offset
}
