package service

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestEvaluateRadiusFee(t *testing.T) {
	tests := []struct {
		name       string
		distance   string
		radius     string
		price      string
		wantFee    string
		wantExtra  string
		wantInside bool
	}{
		{"inside radius", "8", "10", "5", "0", "0", true},
		{"exactly on radius", "10", "10", "5", "0", "0", true},
		{"just past radius charges a whole km", "10.2", "10", "5", "5", "0.2", false},
		{"whole extra km", "15", "10", "5", "25", "5", false},
		{"partial km rounds up", "12.01", "10", "5", "15", "2.01", false},
		{"zero radius falls back to default", "12", "0", "5", "10", "2", false},
		{"zero price falls back to default", "11", "10", "0", "5", "1", false},
		{"zero distance", "0", "10", "5", "0", "0", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rf, err := EvaluateRadiusFee(
				decimal.RequireFromString(tt.distance),
				decimal.RequireFromString(tt.radius),
				decimal.RequireFromString(tt.price),
			)
			if err != nil {
				t.Fatalf("EvaluateRadiusFee: %v", err)
			}
			if !rf.Fee.Equal(decimal.RequireFromString(tt.wantFee)) {
				t.Errorf("fee = %s, want %s", rf.Fee, tt.wantFee)
			}
			if !rf.ExtraDistanceKm.Equal(decimal.RequireFromString(tt.wantExtra)) {
				t.Errorf("extra = %s, want %s", rf.ExtraDistanceKm, tt.wantExtra)
			}
			if rf.IsInRadius != tt.wantInside {
				t.Errorf("IsInRadius = %v, want %v", rf.IsInRadius, tt.wantInside)
			}
		})
	}
}

func TestEvaluateRadiusFee_Monotonic(t *testing.T) {
	radius, price := decimal.NewFromInt(10), decimal.NewFromInt(5)
	prev := decimal.Zero
	for d := decimal.Zero; d.LessThanOrEqual(decimal.NewFromInt(40)); d = d.Add(decimal.RequireFromString("0.25")) {
		rf, err := EvaluateRadiusFee(d, radius, price)
		if err != nil {
			t.Fatalf("EvaluateRadiusFee(%s): %v", d, err)
		}
		if rf.Fee.LessThan(prev) {
			t.Fatalf("fee decreased at %s km: %s < %s", d, rf.Fee, prev)
		}
		prev = rf.Fee
	}
}

func TestEvaluateRadiusFee_Invalid(t *testing.T) {
	neg := decimal.NewFromInt(-1)
	ten := decimal.NewFromInt(10)
	cases := map[string][3]decimal.Decimal{
		"negative distance": {neg, ten, ten},
		"negative radius":   {ten, neg, ten},
		"negative price":    {ten, ten, neg},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := EvaluateRadiusFee(in[0], in[1], in[2]); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
