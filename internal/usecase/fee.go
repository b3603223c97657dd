package usecase

import (
	"github.com/shopspring/decimal"

	"github.com/iho/fundscore/internal/domain"
)

// DefaultWithdrawalFee is the flat fee charged on withdrawals.
const DefaultWithdrawalFee = "30.00"

// ChannelFee is a percentage fee with optional bounds.
type ChannelFee struct {
	Rate decimal.Decimal
	Min  decimal.Decimal
	Max  decimal.Decimal
}

func (c ChannelFee) apply(amount decimal.Decimal) decimal.Decimal {
	fee := amount.Mul(c.Rate)
	if c.Min.IsPositive() && fee.LessThan(c.Min) {
		fee = c.Min
	}
	if c.Max.IsPositive() && fee.GreaterThan(c.Max) {
		fee = c.Max
	}
	return fee
}

// FeeSchedule computes fees deterministically from amount and type. It is
// owned by the transaction ledger; other components ask the ledger for a
// quote instead of computing fees themselves.
type FeeSchedule struct {
	transferRate  decimal.Decimal
	withdrawalFee decimal.Decimal
	channels      map[domain.TransferType]ChannelFee
}

// NewFeeSchedule creates the standard schedule with the given flat
// withdrawal fee.
func NewFeeSchedule(withdrawalFee decimal.Decimal) *FeeSchedule {
	return &FeeSchedule{
		transferRate:  decimal.RequireFromString("0.01"),
		withdrawalFee: withdrawalFee,
		channels: map[domain.TransferType]ChannelFee{
			domain.TransferTypeInternal: {},
			domain.TransferTypeMobileMoney: {
				Rate: decimal.RequireFromString("0.01"),
				Min:  decimal.RequireFromString("10.00"),
				Max:  decimal.RequireFromString("200.00"),
			},
			domain.TransferTypeBankTransfer: {
				Rate: decimal.RequireFromString("0.005"),
				Min:  decimal.RequireFromString("20.00"),
				Max:  decimal.RequireFromString("500.00"),
			},
			domain.TransferTypePeerToPeer: {
				Rate: decimal.RequireFromString("0.002"),
				Min:  decimal.RequireFromString("5.00"),
				Max:  decimal.RequireFromString("100.00"),
			},
		},
	}
}

// Compute returns the fee for amount. When transferType is set, the channel
// fee for that transfer type overrides the per-type rule.
func (s *FeeSchedule) Compute(amount decimal.Decimal, txType domain.TransactionType, transferType domain.TransferType) decimal.Decimal {
	var fee decimal.Decimal

	if channel, ok := s.channels[transferType]; ok {
		fee = channel.apply(amount)
	} else {
		switch txType {
		case domain.TransactionTypeTransfer:
			fee = amount.Mul(s.transferRate)
		case domain.TransactionTypeWithdrawal:
			fee = s.withdrawalFee
		default:
			fee = decimal.Zero
		}
	}

	return fee.Round(domain.MoneyScale)
}
