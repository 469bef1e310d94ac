package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/glamgo/marketplace/internal/model"
)

// CatalogRepository serves service catalog entries, their formula tables
// and commission rates.
type CatalogRepository struct {
	pool        *pgxpool.Pool
	redis       *redis.Client
	cacheTTL    time.Duration
	defaultRate decimal.Decimal
}

// NewCatalogRepository creates a catalog repository. defaultRate applies to
// services without their own commission_rate.
func NewCatalogRepository(pool *pgxpool.Pool, redis *redis.Client, cacheTTL time.Duration, defaultRate decimal.Decimal) *CatalogRepository {
	if cacheTTL <= 0 {
		cacheTTL = defaultCatalogCacheTTL
	}
	return &CatalogRepository{pool: pool, redis: redis, cacheTTL: cacheTTL, defaultRate: defaultRate}
}

// ─── Redis-backed fast path ─────────────────────────────────

const (
	catalogKeyPrefix       = "catalog:service:"
	defaultCatalogCacheTTL = 5 * time.Minute
)

// GetService returns the catalog entry for serviceID.
//
// Strategy:
//  1. Try Redis first (fast path).
//  2. On a miss, read services + service_formulas from Postgres, then cache.
//
// Unknown ids return model.ErrServiceNotFound; database failures return
// a PolicyUnavailableError.
func (r *CatalogRepository) GetService(ctx context.Context, serviceID string) (*model.ServiceCatalogEntry, error) {
	key := catalogKeyPrefix + serviceID

	// ── Fast path: Redis cache ──────────────────────────
	if raw, err := r.redis.Get(ctx, key).Bytes(); err == nil {
		svc := &model.ServiceCatalogEntry{}
		if json.Unmarshal(raw, svc) == nil {
			return svc, nil
		}
	}

	// ── Slow path: Postgres ─────────────────────────────
	svc, err := r.queryService(ctx, serviceID)
	if err != nil {
		if errors.Is(err, model.ErrServiceNotFound) {
			return nil, err
		}
		return nil, &model.PolicyUnavailableError{Policy: "catalog", Err: err}
	}

	// Cache fire-and-forget.
	if raw, err := json.Marshal(svc); err == nil {
		_ = r.redis.Set(ctx, key, raw, r.cacheTTL).Err()
	}
	return svc, nil
}

func (r *CatalogRepository) queryService(ctx context.Context, serviceID string) (*model.ServiceCatalogEntry, error) {
	var (
		svc            model.ServiceCatalogEntry
		basePrice      string
		commissionRate *string
	)
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, base_price::text, duration_minutes, billing_unit,
		       commission_rate::text
		FROM services
		WHERE id = $1 AND active
	`, serviceID).Scan(&svc.ID, &svc.Name, &basePrice, &svc.DurationMinutes, &svc.BillingUnit, &commissionRate)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrServiceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query service %s: %w", serviceID, err)
	}

	if svc.BasePrice, err = decimal.NewFromString(basePrice); err != nil {
		return nil, fmt.Errorf("service %s: base_price: %w", serviceID, err)
	}
	if commissionRate != nil {
		rate, err := decimal.NewFromString(*commissionRate)
		if err != nil {
			return nil, fmt.Errorf("service %s: commission_rate: %w", serviceID, err)
		}
		svc.CommissionRate = &rate
	}

	rows, err := r.pool.Query(ctx, `
		SELECT formula_type, modifier_type, modifier_value::text, description
		FROM service_formulas
		WHERE service_id = $1
		ORDER BY formula_type
	`, serviceID)
	if err != nil {
		return nil, fmt.Errorf("query formulas for %s: %w", serviceID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			f     model.PricingFormula
			value string
		)
		if err := rows.Scan(&f.FormulaType, &f.ModifierType, &value, &f.Description); err != nil {
			return nil, fmt.Errorf("scan formula: %w", err)
		}
		if f.ModifierValue, err = decimal.NewFromString(value); err != nil {
			return nil, fmt.Errorf("formula %s: modifier_value: %w", f.FormulaType, err)
		}
		svc.Formulas = append(svc.Formulas, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate formulas: %w", err)
	}

	return &svc, nil
}

// GetCommissionRate returns the service's own commission rate, or the
// platform default when it has none.
func (r *CatalogRepository) GetCommissionRate(ctx context.Context, serviceID string) (decimal.Decimal, error) {
	svc, err := r.GetService(ctx, serviceID)
	if err != nil {
		return decimal.Zero, err
	}
	if svc.CommissionRate != nil {
		return *svc.CommissionRate, nil
	}
	return r.defaultRate, nil
}

// InvalidateService drops the cached entry. Call after editing a service
// or its formulas.
func (r *CatalogRepository) InvalidateService(ctx context.Context, serviceID string) {
	_ = r.redis.Del(ctx, catalogKeyPrefix+serviceID).Err()
}
