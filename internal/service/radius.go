package service

import (
	"github.com/shopspring/decimal"

	"github.com/glamgo/marketplace/internal/model"
)

// ─── Radius Fee ─────────────────────────────────────────────

// Defaults applied when a provider has no radius or per-km price on file.
var (
	DefaultInterventionRadiusKm = decimal.NewFromInt(10)
	DefaultPricePerExtraKm      = decimal.NewFromInt(5)
)

// RadiusFee is the travel surcharge for a job outside the provider's radius.
type RadiusFee struct {
	DistanceKm           decimal.Decimal `json:"distance_km"`
	InterventionRadiusKm decimal.Decimal `json:"intervention_radius_km"`
	ExtraDistanceKm      decimal.Decimal `json:"extra_distance_km"`
	PricePerExtraKm      decimal.Decimal `json:"price_per_extra_km"`
	Fee                  decimal.Decimal `json:"distance_fee"`
	IsInRadius           bool            `json:"is_in_radius"`
}

// EvaluateRadiusFee charges every started kilometer past the radius:
//
//	d ≤ r  →  0
//	d > r  →  ceil(d − r) × pricePerKm
//
// A zero radius or price falls back to the defaults; negatives are invalid.
func EvaluateRadiusFee(distanceKm, radiusKm, pricePerKm decimal.Decimal) (*RadiusFee, error) {
	if distanceKm.IsNegative() {
		return nil, model.NewValidationError("distance_km", "must be >= 0, got %s", distanceKm)
	}
	if radiusKm.IsNegative() {
		return nil, model.NewValidationError("intervention_radius_km", "must be >= 0, got %s", radiusKm)
	}
	if pricePerKm.IsNegative() {
		return nil, model.NewValidationError("price_per_extra_km", "must be >= 0, got %s", pricePerKm)
	}
	if radiusKm.IsZero() {
		radiusKm = DefaultInterventionRadiusKm
	}
	if pricePerKm.IsZero() {
		pricePerKm = DefaultPricePerExtraKm
	}

	rf := &RadiusFee{
		DistanceKm:           distanceKm,
		InterventionRadiusKm: radiusKm,
		ExtraDistanceKm:      decimal.Zero,
		PricePerExtraKm:      pricePerKm,
		Fee:                  decimal.Zero,
		IsInRadius:           true,
	}
	if distanceKm.LessThanOrEqual(radiusKm) {
		return rf, nil
	}

	rf.IsInRadius = false
	rf.ExtraDistanceKm = distanceKm.Sub(radiusKm)
	rf.Fee = rf.ExtraDistanceKm.Ceil().Mul(pricePerKm).Round(2)
	return rf, nil
}
