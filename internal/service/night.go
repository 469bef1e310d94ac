package service

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/glamgo/marketplace/internal/model"
)

// ─── Night Shift Policy ─────────────────────────────────────

// NightShiftPolicy is the marketplace-wide night surcharge rule.
type NightShiftPolicy struct {
	StartHour        int // inclusive, local time
	EndHour          int // exclusive, local time
	FeePerNight      decimal.Decimal
	Currency         string
	Location         *time.Location
	MaxDurationHours float64
}

// DefaultNightShiftPolicy returns the [22:00, 06:00) window at 30 MAD per night.
func DefaultNightShiftPolicy() NightShiftPolicy {
	return NightShiftPolicy{
		StartHour:        22,
		EndHour:          6,
		FeePerNight:      decimal.NewFromInt(30),
		Currency:         "MAD",
		Location:         time.UTC,
		MaxDurationHours: 720,
	}
}

// NightPeriod is the part of a job that falls inside one night window.
type NightPeriod struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NightShift is the result of evaluating a job against the night windows.
type NightShift struct {
	NightsCount int             `json:"nights_count"`
	Type        model.NightType `json:"type"`
	Fee         decimal.Decimal `json:"fee"`
	Explanation string          `json:"explanation"`
	Periods     []NightPeriod   `json:"periods"`
}

// NightShiftEvaluator counts the night windows a job is worked in.
type NightShiftEvaluator struct {
	policy NightShiftPolicy
}

// NewNightShiftEvaluator validates the policy and returns an evaluator.
func NewNightShiftEvaluator(policy NightShiftPolicy) (*NightShiftEvaluator, error) {
	if policy.StartHour < 0 || policy.StartHour > 23 || policy.EndHour < 0 || policy.EndHour > 23 {
		return nil, fmt.Errorf("night policy: hours must be in [0, 23], got start=%d end=%d",
			policy.StartHour, policy.EndHour)
	}
	if policy.StartHour == policy.EndHour {
		return nil, fmt.Errorf("night policy: start and end hour are both %d", policy.StartHour)
	}
	if policy.FeePerNight.IsNegative() {
		return nil, fmt.Errorf("night policy: negative fee %s", policy.FeePerNight)
	}
	if policy.Location == nil {
		policy.Location = time.UTC
	}
	if policy.MaxDurationHours <= 0 {
		policy.MaxDurationHours = DefaultNightShiftPolicy().MaxDurationHours
	}
	return &NightShiftEvaluator{policy: policy}, nil
}

// Policy returns the evaluator's effective policy.
func (e *NightShiftEvaluator) Policy() NightShiftPolicy { return e.policy }

// Evaluate counts the distinct night windows the job [scheduled, scheduled+duration)
// is worked in.
//
// The job is cut into hourly segments starting at the scheduled instant (the
// last one may be partial). A window counts once when at least one segment
// starts inside it, so a few minutes of overrun past 22:00 are not billed as
// a night. A zero-duration job is a single instant.
//
//	21:59 + 0.1h  →  0 nights
//	22:00 + 1h    →  1 night
//	23:00 + 30h   →  2 nights
func (e *NightShiftEvaluator) Evaluate(scheduled time.Time, durationHours float64) (*NightShift, error) {
	if scheduled.IsZero() {
		return nil, model.NewValidationError("scheduled_time", "is required")
	}
	if math.IsNaN(durationHours) || math.IsInf(durationHours, 0) || durationHours < 0 {
		return nil, model.NewValidationError("duration_hours", "must be a finite value >= 0, got %v", durationHours)
	}
	if durationHours > e.policy.MaxDurationHours {
		return nil, model.NewValidationError("duration_hours", "must be <= %v, got %v",
			e.policy.MaxDurationHours, durationHours)
	}

	start := scheduled.In(e.policy.Location)
	end := start.Add(time.Duration(durationHours * float64(time.Hour)))
	instant := !end.After(start)

	var periods []NightPeriod
	var lastWindow time.Time
	for t := start; instant || t.Before(end); t = t.Add(time.Hour) {
		wStart, wEnd, ok := e.windowContaining(t)
		if ok && !wStart.Equal(lastWindow) {
			lastWindow = wStart
			periods = append(periods, clipPeriod(start, end, wStart, wEnd, instant))
		}
		if instant {
			break
		}
	}

	ns := &NightShift{
		NightsCount: len(periods),
		Fee:         e.policy.FeePerNight.Mul(decimal.NewFromInt(int64(len(periods)))).Round(2),
		Periods:     periods,
	}
	switch {
	case ns.NightsCount == 0:
		ns.Type = model.NightNone
	case ns.NightsCount == 1:
		ns.Type = model.NightSingle
	default:
		ns.Type = model.NightMultiple
	}
	if ns.Periods == nil {
		ns.Periods = []NightPeriod{}
	}
	ns.Explanation = e.explain(ns)
	return ns, nil
}

// windowContaining returns the night window holding t, if any. Windows that
// wrap midnight are anchored on the day they start.
func (e *NightShiftEvaluator) windowContaining(t time.Time) (time.Time, time.Time, bool) {
	y, m, d := t.Date()
	loc := e.policy.Location
	for _, offset := range []int{-1, 0} {
		wStart := time.Date(y, m, d+offset, e.policy.StartHour, 0, 0, 0, loc)
		wEnd := time.Date(y, m, d+offset, e.policy.EndHour, 0, 0, 0, loc)
		if e.policy.EndHour < e.policy.StartHour {
			wEnd = time.Date(y, m, d+offset+1, e.policy.EndHour, 0, 0, 0, loc)
		}
		if !t.Before(wStart) && t.Before(wEnd) {
			return wStart, wEnd, true
		}
	}
	return time.Time{}, time.Time{}, false
}

func clipPeriod(start, end, wStart, wEnd time.Time, instant bool) NightPeriod {
	if instant {
		return NightPeriod{Start: start, End: start}
	}
	p := NightPeriod{Start: wStart, End: wEnd}
	if start.After(wStart) {
		p.Start = start
	}
	if end.Before(wEnd) {
		p.End = end
	}
	return p
}

func (e *NightShiftEvaluator) explain(ns *NightShift) string {
	window := fmt.Sprintf("%02d:00-%02d:00", e.policy.StartHour, e.policy.EndHour)
	switch ns.Type {
	case model.NightNone:
		return fmt.Sprintf("No night surcharge: the service is performed outside the night window (%s).", window)
	case model.NightSingle:
		return fmt.Sprintf("Night surcharge: the service is performed during the night window (%s), 1 night x %s %s.",
			window, e.policy.FeePerNight, e.policy.Currency)
	default:
		return fmt.Sprintf("Night surcharge: the service spans %d nights (%s), %d x %s %s = %s %s.",
			ns.NightsCount, window, ns.NightsCount, e.policy.FeePerNight, e.policy.Currency,
			ns.Fee, e.policy.Currency)
	}
}
