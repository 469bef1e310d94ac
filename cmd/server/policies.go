package main

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/glamgo/marketplace/config"
	"github.com/glamgo/marketplace/internal/service"
)

// policies is the pricing and dispatch policy built from configuration.
type policies struct {
	pricing        service.PricingConfig
	night          *service.NightShiftEvaluator
	classifier     *service.PriorityClassifier
	commissionRate decimal.Decimal
}

func buildPolicies(cfg *config.Config) (*policies, error) {
	p := cfg.Pricing

	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return nil, fmt.Errorf("pricing timezone: %w", err)
	}
	radius, err := decimal.NewFromString(p.DefaultRadiusKm)
	if err != nil {
		return nil, fmt.Errorf("default radius: %w", err)
	}
	perKm, err := decimal.NewFromString(p.DefaultPricePerKm)
	if err != nil {
		return nil, fmt.Errorf("default price per km: %w", err)
	}
	nightFee, err := decimal.NewFromString(p.NightFee)
	if err != nil {
		return nil, fmt.Errorf("night fee: %w", err)
	}
	rate, err := decimal.NewFromString(p.CommissionRate)
	if err != nil {
		return nil, fmt.Errorf("commission rate: %w", err)
	}

	night, err := service.NewNightShiftEvaluator(service.NightShiftPolicy{
		StartHour:        p.NightStartHour,
		EndHour:          p.NightEndHour,
		FeePerNight:      nightFee,
		Currency:         p.Currency,
		Location:         loc,
		MaxDurationHours: p.MaxDurationHours,
	})
	if err != nil {
		return nil, err
	}

	classifier, err := service.NewPriorityClassifier(priorityPolicy(cfg.Dispatch))
	if err != nil {
		return nil, err
	}

	return &policies{
		pricing: service.PricingConfig{
			Currency:             p.Currency,
			DefaultRadiusKm:      radius,
			DefaultPricePerKm:    perKm,
			DefaultDurationHours: p.DefaultDurationHours,
		},
		night:          night,
		classifier:     classifier,
		commissionRate: rate,
	}, nil
}

// priorityPolicy keeps the default icons and labels and takes thresholds
// and delays from configuration.
func priorityPolicy(d config.DispatchConfig) service.PriorityPolicy {
	pol := service.DefaultPriorityPolicy()

	thresholds := []float64{d.ExcellentMinRating, d.GoodMinRating, d.AverageMinRating, d.BlockThreshold}
	delays := []time.Duration{d.ExcellentDelay, d.GoodDelay, d.AverageDelay, d.LowDelay}
	for i := range pol.Tiers {
		pol.Tiers[i].MinRating = thresholds[i]
		pol.Tiers[i].Delay = delays[i]
	}
	pol.New.Delay = d.NewDelay
	pol.Critical.Delay = d.CriticalDelay
	pol.BlockThreshold = d.BlockThreshold
	return pol
}
