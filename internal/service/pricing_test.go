package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/glamgo/marketplace/internal/model"
)

func newTestAggregator(t *testing.T) *PriceAggregator {
	t.Helper()
	return NewPriceAggregator(newTestNightEvaluator(t), "MAD")
}

func endToEndInput() PriceInput {
	return PriceInput{
		ServiceID:            "svc-cleaning",
		BasePrice:            decimal.NewFromInt(200),
		BillingUnit:          model.BillingHourly,
		Formulas:             testFormulas(),
		FormulaType:          "urgent",
		DurationHours:        1,
		Quantity:             1,
		DistanceKm:           decimal.NewFromInt(15),
		InterventionRadiusKm: decimal.NewFromInt(10),
		PricePerExtraKm:      decimal.NewFromInt(5),
		ScheduledTime:        at(23, 30),
		CommissionRate:       decimal.RequireFromString("0.20"),
		IncludeNightPeriods:  true,
	}
}

func mustEqual(t *testing.T, field string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(decimal.RequireFromString(want)) {
		t.Errorf("%s = %s, want %s", field, got, want)
	}
}

func TestAggregate_EndToEnd(t *testing.T) {
	b, err := newTestAggregator(t).Aggregate(endToEndInput())
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}

	mustEqual(t, "base_price", b.BasePrice, "200")
	mustEqual(t, "formula_modifier", b.FormulaModifier, "20")
	mustEqual(t, "line_price", b.LinePrice, "220")
	mustEqual(t, "extra_distance_km", b.ExtraDistanceKm, "5")
	mustEqual(t, "distance_fee", b.DistanceFee, "25")
	mustEqual(t, "night_fee", b.NightFee, "30")
	mustEqual(t, "subtotal", b.Subtotal, "275")
	mustEqual(t, "commission_amount", b.CommissionAmount, "55")
	mustEqual(t, "commission_glamgo", b.CommissionGlamgo, "55")
	mustEqual(t, "provider_amount", b.ProviderAmount, "220")
	mustEqual(t, "total", b.Total, "275")

	if b.FormulaModifierDisplay != "+10%" {
		t.Errorf("formula_modifier_display = %q, want +10%%", b.FormulaModifierDisplay)
	}
	if !b.IsNightService || b.NightNightsCount != 1 || len(b.Night.Periods) != 1 {
		t.Errorf("night = %+v, want one night with one period", b.Night)
	}
	if b.IsInRadius {
		t.Error("IsInRadius = true, want false at 15 km")
	}
	if !b.ProviderAmount.Add(b.CommissionAmount).Equal(b.Subtotal) {
		t.Error("provider_amount + commission_amount != subtotal")
	}
}

func TestAggregate_JSONContract(t *testing.T) {
	b, err := newTestAggregator(t).Aggregate(endToEndInput())
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	raw, err := json.Marshal(b)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	for _, k := range []string{
		"base_price", "formula_modifier", "formula_modifier_display", "formula_type",
		"duration_hours", "quantity", "distance_km", "intervention_radius_km",
		"extra_distance_km", "price_per_extra_km", "distance_fee", "night_fee",
		"night_nights_count", "night", "subtotal", "commission_rate",
		"commission_amount", "commission_glamgo", "total", "provider_amount",
		"is_night_service",
	} {
		if _, ok := fields[k]; !ok {
			t.Errorf("breakdown JSON missing %q", k)
		}
	}
	if string(fields["subtotal"]) != "275" {
		t.Errorf("subtotal JSON = %s, want bare number 275", fields["subtotal"])
	}

	var night struct {
		Explanation string        `json:"explanation"`
		Periods     []NightPeriod `json:"periods"`
	}
	if err := json.Unmarshal(fields["night"], &night); err != nil {
		t.Fatalf("Unmarshal night: %v", err)
	}
	if night.Explanation == "" || len(night.Periods) != 1 {
		t.Errorf("night = %+v, want explanation and one period", night)
	}
}

func TestAggregate_Idempotent(t *testing.T) {
	agg := newTestAggregator(t)
	first, err := agg.Aggregate(endToEndInput())
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	second, err := agg.Aggregate(endToEndInput())
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	if !bytes.Equal(a, b) {
		t.Errorf("breakdowns differ:\n%s\n%s", a, b)
	}
}

func TestAggregate_DurationAndQuantity(t *testing.T) {
	in := endToEndInput()
	in.FormulaType = "standard"
	in.DurationHours = 2.5
	in.Quantity = 2
	in.DistanceKm = decimal.NewFromInt(3)
	in.ScheduledTime = at(9, 0)

	b, err := newTestAggregator(t).Aggregate(in)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	// 200 × 2.5h × 2
	mustEqual(t, "line_price", b.LinePrice, "1000")
	mustEqual(t, "subtotal", b.Subtotal, "1000")
	mustEqual(t, "commission_amount", b.CommissionAmount, "200")

	in.BillingUnit = model.BillingFlat
	b, err = newTestAggregator(t).Aggregate(in)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	// flat services ignore duration
	mustEqual(t, "line_price", b.LinePrice, "400")
}

func TestAggregate_FormulaFallbackWarns(t *testing.T) {
	in := endToEndInput()
	in.FormulaType = "platinum"
	b, err := newTestAggregator(t).Aggregate(in)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if b.FormulaType != model.FormulaStandard || !b.FormulaFallback {
		t.Errorf("formula = %s fallback=%v, want standard fallback", b.FormulaType, b.FormulaFallback)
	}
	if len(b.Warnings) != 1 || b.Warnings[0] != WarningFormulaUnavailable {
		t.Errorf("warnings = %v, want [%s]", b.Warnings, WarningFormulaUnavailable)
	}
	mustEqual(t, "subtotal", b.Subtotal, "255")
}

func TestAggregate_DiscountNeverGoesNegative(t *testing.T) {
	in := endToEndInput()
	in.Formulas = []model.PricingFormula{{
		FormulaType: "promo", ModifierType: model.ModifierFixed, ModifierValue: decimal.NewFromInt(-500),
	}}
	in.FormulaType = "promo"
	in.DistanceKm = decimal.Zero
	in.ScheduledTime = at(10, 0)
	b, err := newTestAggregator(t).Aggregate(in)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	mustEqual(t, "formula_modifier", b.FormulaModifier, "-500")
	mustEqual(t, "subtotal", b.Subtotal, "0")
}

func TestAggregate_Invalid(t *testing.T) {
	cases := map[string]func(*PriceInput){
		"negative base":     func(in *PriceInput) { in.BasePrice = decimal.NewFromInt(-1) },
		"zero quantity":     func(in *PriceInput) { in.Quantity = 0 },
		"negative distance": func(in *PriceInput) { in.DistanceKm = decimal.NewFromInt(-2) },
		"bad rate":          func(in *PriceInput) { in.CommissionRate = decimal.NewFromInt(2) },
		"missing time":      func(in *PriceInput) { in.ScheduledTime = time.Time{} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := endToEndInput()
			mutate(&in)
			if _, err := newTestAggregator(t).Aggregate(in); !model.IsValidation(err) {
				t.Errorf("error = %v, want ValidationError", err)
			}
		})
	}
}

// ─── Quote ──────────────────────────────────────────────────

func newTestPricingService(t *testing.T, catalog *memCatalog, providers *memProviders, commission fixedCommission) *PricingService {
	t.Helper()
	return NewPricingService(catalog, providers, commission, newTestAggregator(t),
		newFakeClock(at(23, 30)), DefaultPricingConfig(), testLogger())
}

func testCatalog() *memCatalog {
	return &memCatalog{services: map[string]*model.ServiceCatalogEntry{
		"svc-cleaning": {
			ID:              "svc-cleaning",
			Name:            "Home cleaning",
			BasePrice:       decimal.NewFromInt(200),
			DurationMinutes: 60,
			BillingUnit:     model.BillingHourly,
			Formulas:        testFormulas(),
		},
	}}
}

func testProviders() *memProviders {
	return &memProviders{providers: map[string]*model.Provider{
		"p-1": {
			ID:                   "p-1",
			Rating:               4.7,
			ReviewCount:          31,
			InterventionRadiusKm: decimal.NewFromInt(10),
			PricePerExtraKm:      decimal.NewFromInt(5),
			BaseLocation:         &model.Location{Lat: 0, Lon: 0},
		},
	}}
}

func TestQuote_ProviderLocationAndClock(t *testing.T) {
	s := newTestPricingService(t, testCatalog(), testProviders(), fixedCommission{rate: decimal.RequireFromString("0.20")})

	// 0.1° of longitude at the equator ≈ 11.12 km from the provider base.
	b, err := s.Quote(context.Background(), QuoteRequest{
		ServiceID:      "svc-cleaning",
		FormulaType:    "urgent",
		ProviderID:     "p-1",
		ClientLocation: &model.Location{Lat: 0, Lon: 0.1},
	})
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	mustEqual(t, "distance_km", b.DistanceKm, "11.12")
	mustEqual(t, "distance_fee", b.DistanceFee, "10")
	// scheduled time defaults to the clock (23:30): one night
	mustEqual(t, "night_fee", b.NightFee, "30")
	mustEqual(t, "subtotal", b.Subtotal, "260")
}

func TestQuote_ExplicitDistanceWins(t *testing.T) {
	s := newTestPricingService(t, testCatalog(), testProviders(), fixedCommission{rate: decimal.RequireFromString("0.20")})
	d := decimal.NewFromInt(15)
	hours := 1.0
	b, err := s.Quote(context.Background(), QuoteRequest{
		ServiceID:     "svc-cleaning",
		FormulaType:   "urgent",
		ScheduledTime: at(23, 30),
		DurationHours: &hours,
		DistanceKm:    &d,
	})
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	mustEqual(t, "subtotal", b.Subtotal, "275")
	mustEqual(t, "provider_amount", b.ProviderAmount, "220")
}

func TestQuote_Errors(t *testing.T) {
	rate := fixedCommission{rate: decimal.RequireFromString("0.20")}
	d := decimal.NewFromInt(5)

	tests := []struct {
		name       string
		svc        *PricingService
		req        QuoteRequest
		validation bool
		policy     bool
	}{
		{
			name:       "missing service id",
			svc:        newTestPricingService(t, testCatalog(), testProviders(), rate),
			req:        QuoteRequest{DistanceKm: &d},
			validation: true,
		},
		{
			name:       "unknown service",
			svc:        newTestPricingService(t, testCatalog(), testProviders(), rate),
			req:        QuoteRequest{ServiceID: "svc-unknown", DistanceKm: &d},
			validation: true,
		},
		{
			name:       "unknown provider",
			svc:        newTestPricingService(t, testCatalog(), testProviders(), rate),
			req:        QuoteRequest{ServiceID: "svc-cleaning", ProviderID: "p-404", DistanceKm: &d},
			validation: true,
		},
		{
			name:       "no distance",
			svc:        newTestPricingService(t, testCatalog(), testProviders(), rate),
			req:        QuoteRequest{ServiceID: "svc-cleaning"},
			validation: true,
		},
		{
			name:       "invalid coordinate",
			svc:        newTestPricingService(t, testCatalog(), testProviders(), rate),
			req:        QuoteRequest{ServiceID: "svc-cleaning", ProviderID: "p-1", ClientLocation: &model.Location{Lat: 95}},
			validation: true,
		},
		{
			name:   "catalog down",
			svc:    newTestPricingService(t, &memCatalog{err: errBackendDown}, testProviders(), rate),
			req:    QuoteRequest{ServiceID: "svc-cleaning", DistanceKm: &d},
			policy: true,
		},
		{
			name:   "commission policy down",
			svc:    newTestPricingService(t, testCatalog(), testProviders(), fixedCommission{err: errBackendDown}),
			req:    QuoteRequest{ServiceID: "svc-cleaning", DistanceKm: &d},
			policy: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.svc.Quote(context.Background(), tt.req)
			if err == nil {
				t.Fatal("expected error")
			}
			if got := model.IsValidation(err); got != tt.validation {
				t.Errorf("IsValidation(%v) = %v, want %v", err, got, tt.validation)
			}
			if got := model.IsPolicyUnavailable(err); got != tt.policy {
				t.Errorf("IsPolicyUnavailable(%v) = %v, want %v", err, got, tt.policy)
			}
			if tt.policy && !errors.Is(err, errBackendDown) {
				t.Errorf("policy error does not wrap the cause: %v", err)
			}
		})
	}
}
