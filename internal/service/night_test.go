package service

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/glamgo/marketplace/internal/model"
)

func newTestNightEvaluator(t *testing.T) *NightShiftEvaluator {
	t.Helper()
	e, err := NewNightShiftEvaluator(DefaultNightShiftPolicy())
	if err != nil {
		t.Fatalf("NewNightShiftEvaluator: %v", err)
	}
	return e
}

func at(hour, min int) time.Time {
	return time.Date(2026, time.March, 10, hour, min, 0, 0, time.UTC)
}

func TestNightShift_Boundaries(t *testing.T) {
	e := newTestNightEvaluator(t)
	tests := []struct {
		name      string
		start     time.Time
		hours     float64
		wantCount int
		wantType  model.NightType
	}{
		{"21:59 short job", at(21, 59), 0.1, 0, model.NightNone},
		{"22:00 sharp", at(22, 0), 1, 1, model.NightSingle},
		{"22:00 instant", at(22, 0), 0, 1, model.NightSingle},
		{"05:59 instant", at(5, 59), 0, 1, model.NightSingle},
		{"05:59 one hour", at(5, 59), 1, 1, model.NightSingle},
		{"06:00 sharp", at(6, 0), 1, 0, model.NightNone},
		{"06:00 instant", at(6, 0), 0, 0, model.NightNone},
		{"midday", at(12, 0), 3, 0, model.NightNone},
		{"21:30 runs past 22:00", at(21, 30), 2, 1, model.NightSingle},
		{"23:30 one hour", at(23, 30), 1, 1, model.NightSingle},
		{"23:00 through next morning", at(23, 0), 8, 1, model.NightSingle},
		{"23:00 thirty hours", at(23, 0), 30, 2, model.NightMultiple},
		{"02:00 three days", at(2, 0), 72, 4, model.NightMultiple},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ns, err := e.Evaluate(tt.start, tt.hours)
			if err != nil {
				t.Fatalf("Evaluate: %v", err)
			}
			if ns.NightsCount != tt.wantCount {
				t.Errorf("NightsCount = %d, want %d", ns.NightsCount, tt.wantCount)
			}
			if ns.Type != tt.wantType {
				t.Errorf("Type = %s, want %s", ns.Type, tt.wantType)
			}
			wantFee := decimal.NewFromInt(int64(30 * tt.wantCount))
			if !ns.Fee.Equal(wantFee) {
				t.Errorf("Fee = %s, want %s", ns.Fee, wantFee)
			}
			if len(ns.Periods) != tt.wantCount {
				t.Errorf("len(Periods) = %d, want %d", len(ns.Periods), tt.wantCount)
			}
			if ns.Explanation == "" {
				t.Error("Explanation is empty")
			}
		})
	}
}

func TestNightShift_Periods(t *testing.T) {
	e := newTestNightEvaluator(t)

	ns, err := e.Evaluate(at(23, 0), 30)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	want := []NightPeriod{
		{Start: at(23, 0), End: at(6, 0).AddDate(0, 0, 1)},
		{Start: at(22, 0).AddDate(0, 0, 1), End: at(5, 0).AddDate(0, 0, 2)},
	}
	if len(ns.Periods) != len(want) {
		t.Fatalf("Periods = %v, want %v", ns.Periods, want)
	}
	for i := range want {
		if !ns.Periods[i].Start.Equal(want[i].Start) || !ns.Periods[i].End.Equal(want[i].End) {
			t.Errorf("Periods[%d] = %v–%v, want %v–%v", i,
				ns.Periods[i].Start, ns.Periods[i].End, want[i].Start, want[i].End)
		}
	}
	if !strings.Contains(ns.Explanation, "2 nights") {
		t.Errorf("Explanation = %q, want mention of 2 nights", ns.Explanation)
	}
}

func TestNightShift_InstantPeriod(t *testing.T) {
	e := newTestNightEvaluator(t)
	ns, err := e.Evaluate(at(3, 15), 0)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(ns.Periods) != 1 || !ns.Periods[0].Start.Equal(at(3, 15)) || !ns.Periods[0].End.Equal(at(3, 15)) {
		t.Errorf("Periods = %v, want a single instant at 03:15", ns.Periods)
	}
}

func TestNightShift_LocalTimezone(t *testing.T) {
	loc := time.FixedZone("UTC+1", 3600)
	policy := DefaultNightShiftPolicy()
	policy.Location = loc
	e, err := NewNightShiftEvaluator(policy)
	if err != nil {
		t.Fatalf("NewNightShiftEvaluator: %v", err)
	}

	// 21:30 UTC is 22:30 local.
	ns, err := e.Evaluate(at(21, 30), 0)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if ns.NightsCount != 1 {
		t.Errorf("NightsCount = %d, want 1 (22:30 local)", ns.NightsCount)
	}
}

func TestNightShift_Invalid(t *testing.T) {
	e := newTestNightEvaluator(t)
	cases := []struct {
		name  string
		start time.Time
		hours float64
	}{
		{"zero time", time.Time{}, 1},
		{"negative duration", at(10, 0), -1},
		{"too long", at(10, 0), 10_000},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Evaluate(tt.start, tt.hours)
			if !model.IsValidation(err) {
				t.Fatalf("Evaluate error = %v, want ValidationError", err)
			}
		})
	}
}

func TestNewNightShiftEvaluator_RejectsBadPolicy(t *testing.T) {
	p := DefaultNightShiftPolicy()
	p.EndHour = p.StartHour
	if _, err := NewNightShiftEvaluator(p); err == nil {
		t.Error("expected error for empty window")
	}
	p = DefaultNightShiftPolicy()
	p.StartHour = 24
	if _, err := NewNightShiftEvaluator(p); err == nil {
		t.Error("expected error for hour 24")
	}
}
