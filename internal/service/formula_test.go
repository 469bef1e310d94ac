package service

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/glamgo/marketplace/internal/model"
)

func testFormulas() []model.PricingFormula {
	return []model.PricingFormula{
		StandardFormula(),
		{FormulaType: model.FormulaUrgent, ModifierType: model.ModifierPercentage, ModifierValue: decimal.NewFromInt(10)},
		{FormulaType: model.FormulaPremium, ModifierType: model.ModifierPercentage, ModifierValue: decimal.NewFromInt(15)},
		{FormulaType: model.FormulaRecurring, ModifierType: model.ModifierPercentage, ModifierValue: decimal.NewFromInt(-10)},
		{FormulaType: model.FormulaNight, ModifierType: model.ModifierFixed, ModifierValue: decimal.NewFromInt(50)},
	}
}

func TestResolveFormula(t *testing.T) {
	base := decimal.NewFromInt(200)
	tests := []struct {
		requested    string
		wantType     model.FormulaType
		wantAmount   string
		wantDisplay  string
		wantFallback bool
	}{
		{"", model.FormulaStandard, "0", "0%", false},
		{"standard", model.FormulaStandard, "0", "0%", false},
		{"urgent", model.FormulaUrgent, "20", "+10%", false},
		{" Premium ", model.FormulaPremium, "30", "+15%", false},
		{"recurring", model.FormulaRecurring, "-20", "-10%", false},
		{"night", model.FormulaNight, "50", "+50 MAD", false},
		{"vip", model.FormulaStandard, "0", "0%", true},
	}
	for _, tt := range tests {
		t.Run(tt.requested, func(t *testing.T) {
			fm, err := ResolveFormula(base, tt.requested, testFormulas(), "MAD")
			if err != nil {
				t.Fatalf("ResolveFormula: %v", err)
			}
			if fm.FormulaType != tt.wantType {
				t.Errorf("FormulaType = %s, want %s", fm.FormulaType, tt.wantType)
			}
			if !fm.Amount.Equal(decimal.RequireFromString(tt.wantAmount)) {
				t.Errorf("Amount = %s, want %s", fm.Amount, tt.wantAmount)
			}
			if fm.Display != tt.wantDisplay {
				t.Errorf("Display = %q, want %q", fm.Display, tt.wantDisplay)
			}
			if fm.Fallback != tt.wantFallback {
				t.Errorf("Fallback = %v, want %v", fm.Fallback, tt.wantFallback)
			}
			if tt.wantFallback && fm.Warning != WarningFormulaUnavailable {
				t.Errorf("Warning = %q, want %q", fm.Warning, WarningFormulaUnavailable)
			}
		})
	}
}

func TestResolveFormula_StandardAlwaysAvailable(t *testing.T) {
	// A service whose table omits "standard" still resolves it.
	only := []model.PricingFormula{
		{FormulaType: model.FormulaUrgent, ModifierType: model.ModifierPercentage, ModifierValue: decimal.NewFromInt(10)},
	}
	fm, err := ResolveFormula(decimal.NewFromInt(100), "premium", only, "MAD")
	if err != nil {
		t.Fatalf("ResolveFormula: %v", err)
	}
	if fm.FormulaType != model.FormulaStandard || !fm.Amount.IsZero() || !fm.Fallback {
		t.Errorf("got %+v, want standard fallback with zero modifier", fm)
	}
}

func TestResolveFormula_UnknownModifierType(t *testing.T) {
	bad := []model.PricingFormula{{FormulaType: model.FormulaUrgent, ModifierType: "ratio", ModifierValue: decimal.NewFromInt(2)}}
	if _, err := ResolveFormula(decimal.NewFromInt(100), "urgent", bad, "MAD"); !model.IsValidation(err) {
		t.Errorf("error = %v, want ValidationError", err)
	}
}
