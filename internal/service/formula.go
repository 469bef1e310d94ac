package service

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/glamgo/marketplace/internal/model"
)

// WarningFormulaUnavailable is attached to a quote when the requested
// formula is not offered by the service and "standard" was used instead.
const WarningFormulaUnavailable = "formula_unavailable"

var hundred = decimal.NewFromInt(100)

// FormulaModifier is the resolved formula and its effect on the base price.
type FormulaModifier struct {
	FormulaType model.FormulaType
	Formula     model.PricingFormula
	Amount      decimal.Decimal
	Display     string
	Fallback    bool
	Warning     string
}

// StandardFormula is the zero modifier every service implicitly offers.
func StandardFormula() model.PricingFormula {
	return model.PricingFormula{
		FormulaType:   model.FormulaStandard,
		ModifierType:  model.ModifierPercentage,
		ModifierValue: decimal.Zero,
		Description:   "Standard price",
	}
}

// ResolveFormula looks up the requested formula in the service's formula
// table and computes its modifier against basePrice.
//
//	percentage  →  basePrice × value / 100
//	fixed       →  value
//
// An empty request silently means "standard". An unknown or unoffered
// formula falls back to "standard" and sets Warning; it is not an error.
func ResolveFormula(basePrice decimal.Decimal, requested string, formulas []model.PricingFormula, currency string) (*FormulaModifier, error) {
	want := model.FormulaType(strings.ToLower(strings.TrimSpace(requested)))
	if want == "" {
		want = model.FormulaStandard
	}

	formula, ok := findFormula(formulas, want)
	fm := &FormulaModifier{FormulaType: want}
	if !ok {
		if want != model.FormulaStandard {
			fm.Fallback = true
			fm.Warning = WarningFormulaUnavailable
		}
		fm.FormulaType = model.FormulaStandard
		formula, ok = findFormula(formulas, model.FormulaStandard)
		if !ok {
			formula = StandardFormula()
		}
	}
	fm.Formula = formula

	switch formula.ModifierType {
	case model.ModifierPercentage:
		fm.Amount = basePrice.Mul(formula.ModifierValue).Div(hundred).Round(2)
		fm.Display = signed(formula.ModifierValue) + "%"
	case model.ModifierFixed:
		fm.Amount = formula.ModifierValue.Round(2)
		fm.Display = signed(formula.ModifierValue) + " " + currency
	default:
		return nil, model.NewValidationError("formula", "formula %q has unknown modifier type %q",
			formula.FormulaType, formula.ModifierType)
	}
	return fm, nil
}

func findFormula(formulas []model.PricingFormula, t model.FormulaType) (model.PricingFormula, bool) {
	for _, f := range formulas {
		if f.FormulaType == t {
			return f, true
		}
	}
	return model.PricingFormula{}, false
}

// signed renders +15, -10 and 0 (no sign for zero).
func signed(v decimal.Decimal) string {
	if v.IsPositive() {
		return fmt.Sprintf("+%s", v.String())
	}
	return v.String()
}
