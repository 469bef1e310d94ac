package service

import (
	"fmt"
	"math"
	"time"

	"github.com/glamgo/marketplace/internal/model"
)

// ─── Priority Tiers ─────────────────────────────────────────
//
// Providers are offered a job after a delay set by their tier:
//
//   reviews == 0       →  NEW        (neutral delay)
//   rating ≥ 4.5       →  EXCELLENT  (immediate)
//   rating ≥ 4.0       →  GOOD
//   rating ≥ 3.5       →  AVERAGE
//   rating ≥ 3.0       →  LOW
//   rating <  3.0      →  CRITICAL   (last, block threshold breached)

// PriorityTier is one row of the tier table.
type PriorityTier struct {
	Level     model.PriorityLevel
	MinRating float64
	Delay     time.Duration
	Icon      string
	Label     string
}

// PriorityPolicy is the data-driven tier table. Tiers are ordered best first.
type PriorityPolicy struct {
	Tiers          []PriorityTier
	New            PriorityTier
	Critical       PriorityTier
	BlockThreshold float64
}

// DefaultPriorityPolicy returns the production tier table.
func DefaultPriorityPolicy() PriorityPolicy {
	return PriorityPolicy{
		Tiers: []PriorityTier{
			{Level: model.PriorityExcellent, MinRating: 4.5, Delay: 0, Icon: "🏆", Label: "Excellent"},
			{Level: model.PriorityGood, MinRating: 4.0, Delay: 30 * time.Second, Icon: "⭐", Label: "Good"},
			{Level: model.PriorityAverage, MinRating: 3.5, Delay: 60 * time.Second, Icon: "👍", Label: "Average"},
			{Level: model.PriorityLow, MinRating: 3.0, Delay: 120 * time.Second, Icon: "⚠️", Label: "Low"},
		},
		New:            PriorityTier{Level: model.PriorityNew, Delay: 30 * time.Second, Icon: "🆕", Label: "New provider"},
		Critical:       PriorityTier{Level: model.PriorityCritical, Delay: 300 * time.Second, Icon: "🚫", Label: "Critical"},
		BlockThreshold: 3.0,
	}
}

// Validate checks the table is ordered: thresholds strictly descending,
// delays non-decreasing from best to worst, and CRITICAL last.
func (p PriorityPolicy) Validate() error {
	if len(p.Tiers) == 0 {
		return fmt.Errorf("priority policy: no tiers")
	}
	for i, t := range p.Tiers {
		if t.Delay < 0 {
			return fmt.Errorf("priority policy: tier %s has negative delay", t.Level)
		}
		if i == 0 {
			continue
		}
		prev := p.Tiers[i-1]
		if t.MinRating >= prev.MinRating {
			return fmt.Errorf("priority policy: tier %s threshold %.2f not below %s threshold %.2f",
				t.Level, t.MinRating, prev.Level, prev.MinRating)
		}
		if t.Delay < prev.Delay {
			return fmt.Errorf("priority policy: tier %s delay %s shorter than %s delay %s",
				t.Level, t.Delay, prev.Level, prev.Delay)
		}
	}
	last := p.Tiers[len(p.Tiers)-1]
	if p.BlockThreshold > last.MinRating {
		return fmt.Errorf("priority policy: block threshold %.2f above lowest tier %.2f",
			p.BlockThreshold, last.MinRating)
	}
	if p.Critical.Delay < last.Delay {
		return fmt.Errorf("priority policy: critical delay %s shorter than %s delay %s",
			p.Critical.Delay, last.Level, last.Delay)
	}
	if p.New.Delay < 0 {
		return fmt.Errorf("priority policy: new-provider tier has negative delay")
	}
	return nil
}

// DispatchStatus is the provider-facing view of a tier.
type DispatchStatus struct {
	Level                  model.PriorityLevel `json:"level"`
	Icon                   string              `json:"icon"`
	Label                  string              `json:"label"`
	DelaySeconds           int                 `json:"delay_seconds"`
	Rating                 float64             `json:"rating"`
	ReviewCount            int                 `json:"review_count"`
	BlockThresholdBreached bool                `json:"block_threshold_breached"`
}

// Delay returns the dispatch delay as a duration.
func (s DispatchStatus) Delay() time.Duration {
	return time.Duration(s.DelaySeconds) * time.Second
}

// PriorityClassifier maps a provider's rating and review count to a tier.
type PriorityClassifier struct {
	policy PriorityPolicy
}

// NewPriorityClassifier validates the policy and returns a classifier.
func NewPriorityClassifier(policy PriorityPolicy) (*PriorityClassifier, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &PriorityClassifier{policy: policy}, nil
}

// Classify returns the provider's dispatch status. A provider with no
// reviews is NEW regardless of rating; otherwise the first tier whose
// threshold the rating meets wins.
func (c *PriorityClassifier) Classify(rating float64, reviewCount int) (*DispatchStatus, error) {
	if reviewCount < 0 {
		return nil, model.NewValidationError("review_count", "must be >= 0, got %d", reviewCount)
	}
	if math.IsNaN(rating) || rating < 0 || rating > 5 {
		return nil, model.NewValidationError("rating", "must be in [0, 5], got %v", rating)
	}

	if reviewCount == 0 {
		return c.status(c.policy.New, rating, reviewCount, false), nil
	}
	for _, t := range c.policy.Tiers {
		if rating >= t.MinRating && rating >= c.policy.BlockThreshold {
			return c.status(t, rating, reviewCount, false), nil
		}
	}
	return c.status(c.policy.Critical, rating, reviewCount, true), nil
}

// ClassifyProvider is Classify for a provider profile.
func (c *PriorityClassifier) ClassifyProvider(p *model.Provider) (*DispatchStatus, error) {
	return c.Classify(p.Rating, p.ReviewCount)
}

func (c *PriorityClassifier) status(t PriorityTier, rating float64, reviews int, breached bool) *DispatchStatus {
	return &DispatchStatus{
		Level:                  t.Level,
		Icon:                   t.Icon,
		Label:                  t.Label,
		DelaySeconds:           int(t.Delay / time.Second),
		Rating:                 rating,
		ReviewCount:            reviews,
		BlockThresholdBreached: breached,
	}
}
