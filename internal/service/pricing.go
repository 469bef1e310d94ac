package service

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/glamgo/marketplace/internal/model"
	"github.com/glamgo/marketplace/pkg/geo"
)

// ─── Collaborators ──────────────────────────────────────────

// Catalog resolves a service id to its catalog entry and formula table.
type Catalog interface {
	GetService(ctx context.Context, serviceID string) (*model.ServiceCatalogEntry, error)
}

// ProviderDirectory resolves provider profiles.
type ProviderDirectory interface {
	GetProvider(ctx context.Context, providerID string) (*model.Provider, error)
}

// CommissionPolicy returns the platform commission rate for a service.
type CommissionPolicy interface {
	GetCommissionRate(ctx context.Context, serviceID string) (decimal.Decimal, error)
}

// ─── Pricing Configuration ──────────────────────────────────

// PricingConfig holds the marketplace-wide pricing defaults.
type PricingConfig struct {
	Currency             string
	DefaultRadiusKm      decimal.Decimal
	DefaultPricePerKm    decimal.Decimal
	DefaultDurationHours float64
}

// DefaultPricingConfig returns the Moroccan marketplace defaults.
func DefaultPricingConfig() PricingConfig {
	return PricingConfig{
		Currency:             "MAD",
		DefaultRadiusKm:      DefaultInterventionRadiusKm,
		DefaultPricePerKm:    DefaultPricePerExtraKm,
		DefaultDurationHours: 1,
	}
}

// ─── PriceBreakdown ─────────────────────────────────────────

// NightDetail is the client-facing night section of a breakdown.
type NightDetail struct {
	Type        model.NightType `json:"type"`
	Explanation string          `json:"explanation"`
	Periods     []NightPeriod   `json:"periods"`
}

// PriceBreakdown is the full, itemized quote. Every intermediate value is
// exposed because the client renders each line.
//
// Always: subtotal == provider_amount + commission_amount, total == subtotal.
type PriceBreakdown struct {
	ServiceID              string            `json:"service_id"`
	Currency               string            `json:"currency"`
	BasePrice              decimal.Decimal   `json:"base_price"`
	FormulaType            model.FormulaType `json:"formula_type"`
	FormulaModifier        decimal.Decimal   `json:"formula_modifier"`
	FormulaModifierDisplay string            `json:"formula_modifier_display"`
	FormulaFallback        bool              `json:"formula_fallback"`
	BillingUnit            model.BillingUnit `json:"billing_unit"`
	DurationHours          decimal.Decimal   `json:"duration_hours"`
	Quantity               int               `json:"quantity"`
	LinePrice              decimal.Decimal   `json:"line_price"`
	DistanceKm             decimal.Decimal   `json:"distance_km"`
	InterventionRadiusKm   decimal.Decimal   `json:"intervention_radius_km"`
	ExtraDistanceKm        decimal.Decimal   `json:"extra_distance_km"`
	PricePerExtraKm        decimal.Decimal   `json:"price_per_extra_km"`
	DistanceFee            decimal.Decimal   `json:"distance_fee"`
	IsInRadius             bool              `json:"is_in_radius"`
	NightFee               decimal.Decimal   `json:"night_fee"`
	NightNightsCount       int               `json:"night_nights_count"`
	Night                  NightDetail       `json:"night"`
	IsNightService         bool              `json:"is_night_service"`
	Subtotal               decimal.Decimal   `json:"subtotal"`
	CommissionRate         decimal.Decimal   `json:"commission_rate"`
	CommissionAmount       decimal.Decimal   `json:"commission_amount"`
	CommissionGlamgo       decimal.Decimal   `json:"commission_glamgo"`
	Total                  decimal.Decimal   `json:"total"`
	ProviderAmount         decimal.Decimal   `json:"provider_amount"`
	ScheduledTime          time.Time         `json:"scheduled_time"`
	Warnings               []string          `json:"warnings"`
}

// ─── Aggregator ─────────────────────────────────────────────

// PriceInput is everything the aggregator needs, already resolved.
type PriceInput struct {
	ServiceID            string
	BasePrice            decimal.Decimal
	BillingUnit          model.BillingUnit
	Formulas             []model.PricingFormula
	FormulaType          string
	DurationHours        float64
	Quantity             int
	DistanceKm           decimal.Decimal
	InterventionRadiusKm decimal.Decimal
	PricePerExtraKm      decimal.Decimal
	ScheduledTime        time.Time
	CommissionRate       decimal.Decimal
	IncludeNightPeriods  bool
}

// PriceAggregator combines the pricing rules into a PriceBreakdown. It is
// pure: the same input always yields the same breakdown.
type PriceAggregator struct {
	night    *NightShiftEvaluator
	currency string
}

// NewPriceAggregator creates an aggregator using the given night evaluator.
func NewPriceAggregator(night *NightShiftEvaluator, currency string) *PriceAggregator {
	return &PriceAggregator{night: night, currency: currency}
}

// Aggregate prices a job in a fixed order:
//
//	base → formula modifier → × duration × quantity → + distance fee → + night fee
//	     → subtotal → commission split
func (a *PriceAggregator) Aggregate(in PriceInput) (*PriceBreakdown, error) {
	if in.BasePrice.IsNegative() {
		return nil, model.NewValidationError("base_price", "must be >= 0, got %s", in.BasePrice)
	}
	if in.Quantity < 1 {
		return nil, model.NewValidationError("quantity", "must be >= 1, got %d", in.Quantity)
	}

	// ── Step 1: Formula modifier ────────────────────────
	fm, err := ResolveFormula(in.BasePrice, in.FormulaType, in.Formulas, a.currency)
	if err != nil {
		return nil, err
	}

	// ── Step 2: Night shift (also validates time and duration) ──
	ns, err := a.night.Evaluate(in.ScheduledTime, in.DurationHours)
	if err != nil {
		return nil, err
	}

	// ── Step 3: Line price ──────────────────────────────
	duration := decimal.NewFromFloat(in.DurationHours)
	unit := in.BillingUnit
	if unit == "" {
		unit = model.BillingHourly
	}
	line := in.BasePrice.Add(fm.Amount).Mul(decimal.NewFromInt(int64(in.Quantity)))
	if unit == model.BillingHourly {
		line = line.Mul(duration)
	}
	line = line.Round(2)
	if line.IsNegative() {
		line = decimal.Zero
	}

	// ── Step 4: Distance fee ────────────────────────────
	rf, err := EvaluateRadiusFee(in.DistanceKm, in.InterventionRadiusKm, in.PricePerExtraKm)
	if err != nil {
		return nil, err
	}

	// ── Step 5: Subtotal and commission ─────────────────
	subtotal := line.Add(rf.Fee).Add(ns.Fee)
	split, err := SplitCommission(subtotal, in.CommissionRate)
	if err != nil {
		return nil, err
	}

	b := &PriceBreakdown{
		ServiceID:              in.ServiceID,
		Currency:               a.currency,
		BasePrice:              in.BasePrice,
		FormulaType:            fm.FormulaType,
		FormulaModifier:        fm.Amount,
		FormulaModifierDisplay: fm.Display,
		FormulaFallback:        fm.Fallback,
		BillingUnit:            unit,
		DurationHours:          duration,
		Quantity:               in.Quantity,
		LinePrice:              line,
		DistanceKm:             rf.DistanceKm,
		InterventionRadiusKm:   rf.InterventionRadiusKm,
		ExtraDistanceKm:        rf.ExtraDistanceKm,
		PricePerExtraKm:        rf.PricePerExtraKm,
		DistanceFee:            rf.Fee,
		IsInRadius:             rf.IsInRadius,
		NightFee:               ns.Fee,
		NightNightsCount:       ns.NightsCount,
		Night:                  NightDetail{Type: ns.Type, Explanation: ns.Explanation, Periods: []NightPeriod{}},
		IsNightService:         ns.NightsCount > 0,
		Subtotal:               subtotal,
		CommissionRate:         split.Rate,
		CommissionAmount:       split.Commission,
		CommissionGlamgo:       split.Commission,
		Total:                  subtotal,
		ProviderAmount:         split.ProviderAmount,
		ScheduledTime:          in.ScheduledTime.In(a.night.Policy().Location),
		Warnings:               []string{},
	}
	if in.IncludeNightPeriods {
		b.Night.Periods = ns.Periods
	}
	if fm.Warning != "" {
		b.Warnings = append(b.Warnings, fm.Warning)
	}
	return b, nil
}

// ─── PricingService ─────────────────────────────────────────

// QuoteRequest is a client's request for a price.
type QuoteRequest struct {
	ServiceID           string
	FormulaType         string
	ScheduledTime       time.Time
	DurationHours       *float64
	Quantity            int
	DistanceKm          *decimal.Decimal
	ClientLocation      *model.Location
	ProviderID          string
	ProviderLocation    *model.Location
	IncludeNightPeriods bool
}

// PricingService resolves collaborators and produces quotes.
//
// Flow:
//  1. Look up the service (catalog) and, if given, the provider.
//  2. Derive distance: explicit distance_km wins, else haversine.
//  3. Look up the commission rate.
//  4. Run the aggregator.
type PricingService struct {
	catalog    Catalog
	providers  ProviderDirectory
	commission CommissionPolicy
	aggregator *PriceAggregator
	clock      Clock
	config     PricingConfig
	logger     *zap.Logger
}

// NewPricingService creates a pricing service.
func NewPricingService(
	catalog Catalog,
	providers ProviderDirectory,
	commission CommissionPolicy,
	aggregator *PriceAggregator,
	clock Clock,
	config PricingConfig,
	logger *zap.Logger,
) *PricingService {
	return &PricingService{
		catalog:    catalog,
		providers:  providers,
		commission: commission,
		aggregator: aggregator,
		clock:      clock,
		config:     config,
		logger:     logger.Named("pricing"),
	}
}

// Quote prices a job end to end.
func (s *PricingService) Quote(ctx context.Context, req QuoteRequest) (*PriceBreakdown, error) {
	if req.ServiceID == "" {
		return nil, model.NewValidationError("service_id", "is required")
	}

	// ── Step 1: Catalog and provider ────────────────────
	svc, err := s.catalog.GetService(ctx, req.ServiceID)
	if err != nil {
		return nil, asPolicyError("catalog", err)
	}

	radius, pricePerKm := s.config.DefaultRadiusKm, s.config.DefaultPricePerKm
	providerLoc := req.ProviderLocation
	if req.ProviderID != "" {
		p, err := s.providers.GetProvider(ctx, req.ProviderID)
		if err != nil {
			if errors.Is(err, model.ErrProviderNotFound) {
				return nil, model.NewValidationError("provider_id", "unknown provider %q", req.ProviderID)
			}
			return nil, asPolicyError("provider_directory", err)
		}
		if p.InterventionRadiusKm.IsPositive() {
			radius = p.InterventionRadiusKm
		}
		if p.PricePerExtraKm.IsPositive() {
			pricePerKm = p.PricePerExtraKm
		}
		if providerLoc == nil {
			providerLoc = p.BaseLocation
		}
	}

	// ── Step 2: Distance ────────────────────────────────
	var distance decimal.Decimal
	switch {
	case req.DistanceKm != nil:
		distance = *req.DistanceKm
	case req.ClientLocation != nil && providerLoc != nil:
		distance, err = geo.DistanceKm(*req.ClientLocation, *providerLoc)
		if err != nil {
			return nil, err
		}
	default:
		return nil, model.NewValidationError("distance_km",
			"give distance_km, or client_coord together with provider_coord or provider_id")
	}

	// ── Step 3: Commission rate ─────────────────────────
	rate, err := s.commission.GetCommissionRate(ctx, svc.ID)
	if err != nil {
		return nil, asPolicyError("commission", err)
	}

	// ── Step 4: Aggregate ───────────────────────────────
	scheduled := req.ScheduledTime
	if scheduled.IsZero() {
		scheduled = s.clock.Now()
	}
	quantity := req.Quantity
	if quantity == 0 {
		quantity = 1
	}

	b, err := s.aggregator.Aggregate(PriceInput{
		ServiceID:            svc.ID,
		BasePrice:            svc.BasePrice,
		BillingUnit:          svc.BillingUnit,
		Formulas:             svc.Formulas,
		FormulaType:          req.FormulaType,
		DurationHours:        s.durationHours(req, svc),
		Quantity:             quantity,
		DistanceKm:           distance,
		InterventionRadiusKm: radius,
		PricePerExtraKm:      pricePerKm,
		ScheduledTime:        scheduled,
		CommissionRate:       rate,
		IncludeNightPeriods:  req.IncludeNightPeriods,
	})
	if err != nil {
		return nil, err
	}

	if b.FormulaFallback {
		s.logger.Warn("requested formula unavailable, using standard",
			zap.String("service_id", svc.ID),
			zap.String("requested", req.FormulaType))
	}
	s.logger.Info("quote computed",
		zap.String("service_id", svc.ID),
		zap.String("provider_id", req.ProviderID),
		zap.Stringer("subtotal", b.Subtotal),
		zap.Stringer("distance_fee", b.DistanceFee),
		zap.Int("nights", b.NightNightsCount),
		zap.Stringer("commission", b.CommissionAmount))

	return b, nil
}

func (s *PricingService) durationHours(req QuoteRequest, svc *model.ServiceCatalogEntry) float64 {
	switch {
	case req.DurationHours != nil:
		return *req.DurationHours
	case svc.DurationMinutes > 0:
		return float64(svc.DurationMinutes) / 60
	default:
		return s.config.DefaultDurationHours
	}
}

// asPolicyError passes typed errors through and wraps anything else as a
// PolicyUnavailableError for the named collaborator.
func asPolicyError(policy string, err error) error {
	if model.IsValidation(err) || model.IsPolicyUnavailable(err) {
		return err
	}
	if errors.Is(err, model.ErrServiceNotFound) {
		return model.NewValidationError("service_id", "unknown service")
	}
	return &model.PolicyUnavailableError{Policy: policy, Err: err}
}
