package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// offerKeyTTL keeps offer history around long enough for support lookups.
const offerKeyTTL = 7 * 24 * time.Hour

// OfferRepository keeps a Redis ledger of which providers were notified
// for each job and when the first offer went out.
type OfferRepository struct {
	redis *redis.Client
}

// NewOfferRepository creates a new offer ledger.
func NewOfferRepository(redis *redis.Client) *OfferRepository {
	return &OfferRepository{redis: redis}
}

func offeredKey(jobID string) string      { return fmt.Sprintf("dispatch:job:%s:offered", jobID) }
func dispatchedAtKey(jobID string) string { return fmt.Sprintf("dispatch:job:%s:dispatched_at", jobID) }

// RecordOffer adds providerID to the job's offered set. dispatched_at is
// only written by the first offer.
func (r *OfferRepository) RecordOffer(ctx context.Context, jobID, providerID string, at time.Time) error {
	pipe := r.redis.TxPipeline()
	pipe.SetNX(ctx, dispatchedAtKey(jobID), at.UTC().Format(time.RFC3339), offerKeyTTL)
	pipe.SAdd(ctx, offeredKey(jobID), providerID)
	pipe.Expire(ctx, offeredKey(jobID), offerKeyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record offer %s/%s: %w", jobID, providerID, err)
	}
	return nil
}

// OfferedProviders returns every provider notified for the job.
func (r *OfferRepository) OfferedProviders(ctx context.Context, jobID string) ([]string, error) {
	ids, err := r.redis.SMembers(ctx, offeredKey(jobID)).Result()
	if err != nil {
		return nil, fmt.Errorf("offered providers %s: %w", jobID, err)
	}
	return ids, nil
}

// WasOffered reports whether providerID has been notified for the job.
func (r *OfferRepository) WasOffered(ctx context.Context, jobID, providerID string) (bool, error) {
	ok, err := r.redis.SIsMember(ctx, offeredKey(jobID), providerID).Result()
	if err != nil {
		return false, fmt.Errorf("was offered %s/%s: %w", jobID, providerID, err)
	}
	return ok, nil
}

// DispatchedAt returns when the first offer for the job went out.
func (r *OfferRepository) DispatchedAt(ctx context.Context, jobID string) (time.Time, bool, error) {
	val, err := r.redis.Get(ctx, dispatchedAtKey(jobID)).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}
