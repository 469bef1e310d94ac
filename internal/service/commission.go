package service

import (
	"github.com/shopspring/decimal"

	"github.com/glamgo/marketplace/internal/model"
)

// CommissionSplit divides what the client pays between platform and provider.
type CommissionSplit struct {
	Rate           decimal.Decimal
	Commission     decimal.Decimal
	ProviderAmount decimal.Decimal
}

// SplitCommission rounds the platform share to two decimals and derives the
// provider share from it, so Commission + ProviderAmount == subtotal exactly.
// Rounding is applied to the commission only: the platform absorbs any
// rounding remainder and the provider amount is never rounded on its own.
func SplitCommission(subtotal, rate decimal.Decimal) (*CommissionSplit, error) {
	if subtotal.IsNegative() {
		return nil, model.NewValidationError("subtotal", "must be >= 0, got %s", subtotal)
	}
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return nil, model.NewValidationError("commission_rate", "must be in [0, 1], got %s", rate)
	}

	commission := subtotal.Mul(rate).Round(2)
	return &CommissionSplit{
		Rate:           rate,
		Commission:     commission,
		ProviderAmount: subtotal.Sub(commission),
	}, nil
}
