package service

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestSplitCommission(t *testing.T) {
	tests := []struct {
		subtotal, rate         string
		wantCommission, wantTo string
	}{
		{"275", "0.20", "55", "220"},
		{"100", "0", "0", "100"},
		{"100", "1", "100", "0"},
		{"33.33", "0.15", "5", "28.33"},
		{"10.05", "0.15", "1.51", "8.54"},
		{"0", "0.2", "0", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.subtotal+"@"+tt.rate, func(t *testing.T) {
			subtotal := decimal.RequireFromString(tt.subtotal)
			split, err := SplitCommission(subtotal, decimal.RequireFromString(tt.rate))
			if err != nil {
				t.Fatalf("SplitCommission: %v", err)
			}
			if !split.Commission.Equal(decimal.RequireFromString(tt.wantCommission)) {
				t.Errorf("commission = %s, want %s", split.Commission, tt.wantCommission)
			}
			if !split.ProviderAmount.Equal(decimal.RequireFromString(tt.wantTo)) {
				t.Errorf("provider amount = %s, want %s", split.ProviderAmount, tt.wantTo)
			}
			if !split.Commission.Add(split.ProviderAmount).Equal(subtotal) {
				t.Errorf("commission + provider = %s, want %s",
					split.Commission.Add(split.ProviderAmount), subtotal)
			}
		})
	}
}

func TestSplitCommission_Conservation(t *testing.T) {
	rates := []string{"0", "0.07", "0.125", "0.15", "0.2", "0.333", "1"}
	for cents := int64(0); cents <= 10000; cents += 37 {
		subtotal := decimal.New(cents, -2)
		for _, r := range rates {
			split, err := SplitCommission(subtotal, decimal.RequireFromString(r))
			if err != nil {
				t.Fatalf("SplitCommission(%s, %s): %v", subtotal, r, err)
			}
			if !split.Commission.Add(split.ProviderAmount).Equal(subtotal) {
				t.Fatalf("split of %s at %s does not add up", subtotal, r)
			}
			if split.Commission.Exponent() < -2 {
				t.Fatalf("commission %s has more than two decimals", split.Commission)
			}
		}
	}
}

func TestSplitCommission_InvalidRate(t *testing.T) {
	for _, r := range []string{"-0.01", "1.01"} {
		if _, err := SplitCommission(decimal.NewFromInt(100), decimal.RequireFromString(r)); err == nil {
			t.Errorf("rate %s: expected validation error", r)
		}
	}
}
