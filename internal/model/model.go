// Package model contains domain models for the home-services marketplace.
// These structs map to the PostgreSQL schema defined in migrations/001_create_schema.up.sql.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Breakdown amounts are rendered as JSON numbers, not strings.
	decimal.MarshalJSONWithoutQuotes = true
}

// ─── Enums ──────────────────────────────────────────────────

// FormulaType names a pricing variant of a service.
type FormulaType string

const (
	FormulaStandard  FormulaType = "standard"
	FormulaRecurring FormulaType = "recurring"
	FormulaPremium   FormulaType = "premium"
	FormulaUrgent    FormulaType = "urgent"
	FormulaNight     FormulaType = "night"
)

// ModifierType says how a formula's modifier_value is applied to the base price.
type ModifierType string

const (
	ModifierPercentage ModifierType = "percentage"
	ModifierFixed      ModifierType = "fixed"
)

// BillingUnit controls whether the line price scales with duration.
type BillingUnit string

const (
	BillingHourly BillingUnit = "hourly"
	BillingFlat   BillingUnit = "flat"
)

// NightType summarizes how many night windows a job touches.
type NightType string

const (
	NightNone     NightType = "none"
	NightSingle   NightType = "single"
	NightMultiple NightType = "multiple"
)

// PriorityLevel is a provider's dispatch tier.
type PriorityLevel string

const (
	PriorityExcellent PriorityLevel = "EXCELLENT"
	PriorityGood      PriorityLevel = "GOOD"
	PriorityAverage   PriorityLevel = "AVERAGE"
	PriorityLow       PriorityLevel = "LOW"
	PriorityCritical  PriorityLevel = "CRITICAL"
	PriorityNew       PriorityLevel = "NEW"
)

type JobStatus string

const (
	JobOpen      JobStatus = "open"
	JobClaimed   JobStatus = "claimed"
	JobWithdrawn JobStatus = "withdrawn"
	JobExpired   JobStatus = "expired"
)

// ─── Location ───────────────────────────────────────────────

// Location represents a WGS-84 geographic point (EPSG:4326).
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// ─── Catalog ────────────────────────────────────────────────

// PricingFormula is one pricing variant a service exposes.
type PricingFormula struct {
	FormulaType   FormulaType     `json:"formula_type"`
	ModifierType  ModifierType    `json:"modifier_type"`
	ModifierValue decimal.Decimal `json:"modifier_value"`
	Description   string          `json:"description"`
}

// ServiceCatalogEntry maps to the `services` table plus its `service_formulas`.
type ServiceCatalogEntry struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	BasePrice       decimal.Decimal  `json:"base_price"`
	DurationMinutes int              `json:"duration_minutes"`
	BillingUnit     BillingUnit      `json:"billing_unit"`
	Formulas        []PricingFormula `json:"formulas"`
	CommissionRate  *decimal.Decimal `json:"commission_rate,omitempty"`
}

// ─── Providers ──────────────────────────────────────────────

// Provider maps to the `providers` table.
type Provider struct {
	ID                   string          `json:"id"`
	Name                 string          `json:"name"`
	Rating               float64         `json:"rating"`
	ReviewCount          int             `json:"review_count"`
	InterventionRadiusKm decimal.Decimal `json:"intervention_radius_km"`
	PricePerExtraKm      decimal.Decimal `json:"price_per_extra_km"`
	BaseLocation         *Location       `json:"base_location,omitempty"`
	Active               bool            `json:"active"`
}

// ─── Jobs ───────────────────────────────────────────────────

// Job maps to the `dispatch_jobs` table.
type Job struct {
	ID         string     `json:"id"`
	ServiceID  string     `json:"service_id"`
	Status     JobStatus  `json:"status"`
	ProviderID *string    `json:"provider_id,omitempty"`
	ExpiresAt  time.Time  `json:"expires_at"`
	ClaimedAt  *time.Time `json:"claimed_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// IsOpen reports whether the job can still be offered or claimed at now.
func (j *Job) IsOpen(now time.Time) bool {
	return j.Status == JobOpen && now.Before(j.ExpiresAt)
}
