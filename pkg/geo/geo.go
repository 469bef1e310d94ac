// Package geo provides geographic utility functions for provider dispatch
// and travel-fee pricing.
//
// All distance calculations use the Haversine formula on WGS-84 coordinates.
// Road distance is not used: the intervention radius is a straight-line contract.
package geo

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/glamgo/marketplace/internal/model"
)

// ─── Constants ──────────────────────────────────────────────

// EarthRadiusKm is the mean radius of Earth in kilometers.
const EarthRadiusKm = 6371.0

// ─── Validation ─────────────────────────────────────────────

// Validate checks that loc is a finite coordinate inside
// lat ∈ [-90, 90] and lon ∈ [-180, 180]. field names the offending
// input in the returned error.
func Validate(field string, loc model.Location) error {
	if math.IsNaN(loc.Lat) || math.IsInf(loc.Lat, 0) || loc.Lat < -90 || loc.Lat > 90 {
		return model.NewValidationError(field+".lat", "latitude %v out of range [-90, 90]", loc.Lat)
	}
	if math.IsNaN(loc.Lon) || math.IsInf(loc.Lon, 0) || loc.Lon < -180 || loc.Lon > 180 {
		return model.NewValidationError(field+".lon", "longitude %v out of range [-180, 180]", loc.Lon)
	}
	return nil
}

// ─── Distance ───────────────────────────────────────────────

// HaversineKm returns the great-circle distance between two points in kilometers.
// Inputs are assumed valid; use DistanceKm at API boundaries.
//
// Complexity: O(1)
func HaversineKm(a, b model.Location) float64 {
	dLat := degToRad(b.Lat - a.Lat)
	dLon := degToRad(b.Lon - a.Lon)

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)

	h := sinLat*sinLat +
		math.Cos(degToRad(a.Lat))*math.Cos(degToRad(b.Lat))*sinLon*sinLon

	// Rounding can push h a hair above 1 for antipodal points.
	if h > 1 {
		h = 1
	}
	return 2 * EarthRadiusKm * math.Asin(math.Sqrt(h))
}

// DistanceKm validates both coordinates and returns the haversine distance
// rounded to two decimals, the precision shown on price breakdowns.
func DistanceKm(client, provider model.Location) (decimal.Decimal, error) {
	if err := Validate("client_coord", client); err != nil {
		return decimal.Zero, err
	}
	if err := Validate("provider_coord", provider); err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromFloat(HaversineKm(client, provider)).Round(2), nil
}

// ─── Helpers ────────────────────────────────────────────────

func degToRad(deg float64) float64 {
	return deg * (math.Pi / 180.0)
}
