package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/glamgo/marketplace/internal/model"
)

// ProviderRepository reads provider profiles.
type ProviderRepository struct {
	pool *pgxpool.Pool
}

// NewProviderRepository creates a new provider repository.
func NewProviderRepository(pool *pgxpool.Pool) *ProviderRepository {
	return &ProviderRepository{pool: pool}
}

const providerColumns = `
	p.id, p.name, p.rating::float8, p.review_count,
	p.intervention_radius_km::text, p.price_per_extra_km::text,
	p.base_lat, p.base_lon, p.active
`

// GetProvider fetches a provider by id.
func (r *ProviderRepository) GetProvider(ctx context.Context, providerID string) (*model.Provider, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+providerColumns+` FROM providers p WHERE p.id = $1`, providerID)
	p, err := scanProvider(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrProviderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get provider %s: %w", providerID, err)
	}
	return p, nil
}

// FindEligibleProviders returns active providers offering serviceID, best
// rated first. Ties break on review count, then id, so the order is stable.
func (r *ProviderRepository) FindEligibleProviders(ctx context.Context, serviceID string) ([]model.Provider, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+providerColumns+`
		FROM providers p
		JOIN provider_services ps ON ps.provider_id = p.id
		WHERE ps.service_id = $1
		  AND p.active
		ORDER BY p.rating DESC, p.review_count DESC, p.id ASC
	`, serviceID)
	if err != nil {
		return nil, fmt.Errorf("find providers for %s: %w", serviceID, err)
	}
	defer rows.Close()

	var providers []model.Provider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, fmt.Errorf("scan provider: %w", err)
		}
		providers = append(providers, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate providers: %w", err)
	}
	return providers, nil
}

func scanProvider(row pgx.Row) (*model.Provider, error) {
	var (
		p                 model.Provider
		radius, pricePerK string
		lat, lon          *float64
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Rating, &p.ReviewCount, &radius, &pricePerK, &lat, &lon, &p.Active); err != nil {
		return nil, err
	}

	var err error
	if p.InterventionRadiusKm, err = decimal.NewFromString(radius); err != nil {
		return nil, fmt.Errorf("provider %s: intervention_radius_km: %w", p.ID, err)
	}
	if p.PricePerExtraKm, err = decimal.NewFromString(pricePerK); err != nil {
		return nil, fmt.Errorf("provider %s: price_per_extra_km: %w", p.ID, err)
	}
	if lat != nil && lon != nil {
		p.BaseLocation = &model.Location{Lat: *lat, Lon: *lon}
	}
	return &p, nil
}
