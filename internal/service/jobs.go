package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/glamgo/marketplace/internal/model"
)

// DefaultJobTTL is how long an unclaimed job stays open.
const DefaultJobTTL = 15 * time.Minute

// ProviderFinder lists providers that can take a job for a service.
type ProviderFinder interface {
	ProviderDirectory
	FindEligibleProviders(ctx context.Context, serviceID string) ([]model.Provider, error)
}

// JobService owns the lifecycle of dispatch jobs: creation, dispatch to
// eligible providers, claim and withdrawal.
type JobService struct {
	jobs      JobStore
	catalog   Catalog
	providers ProviderFinder
	scheduler *DispatchScheduler
	clock     Clock
	ttl       time.Duration
	logger    *zap.Logger
}

// NewJobService creates a job service. A non-positive ttl uses DefaultJobTTL.
func NewJobService(
	jobs JobStore,
	catalog Catalog,
	providers ProviderFinder,
	scheduler *DispatchScheduler,
	clock Clock,
	ttl time.Duration,
	logger *zap.Logger,
) *JobService {
	if ttl <= 0 {
		ttl = DefaultJobTTL
	}
	return &JobService{
		jobs:      jobs,
		catalog:   catalog,
		providers: providers,
		scheduler: scheduler,
		clock:     clock,
		ttl:       ttl,
		logger:    logger.Named("jobs"),
	}
}

// CreateJob opens a new job for serviceID. ttl of zero uses the default.
func (s *JobService) CreateJob(ctx context.Context, serviceID string, ttl time.Duration) (*model.Job, error) {
	if serviceID == "" {
		return nil, model.NewValidationError("service_id", "is required")
	}
	if ttl < 0 {
		return nil, model.NewValidationError("expires_in_seconds", "must be >= 0")
	}
	if ttl == 0 {
		ttl = s.ttl
	}
	if _, err := s.catalog.GetService(ctx, serviceID); err != nil {
		return nil, asPolicyError("catalog", err)
	}

	now := s.clock.Now()
	job := &model.Job{
		ID:        uuid.NewString(),
		ServiceID: serviceID,
		Status:    model.JobOpen,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	if err := s.jobs.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("jobs: create: %w", err)
	}

	s.logger.Info("job created", zap.String("job_id", job.ID), zap.String("service_id", serviceID))
	return job, nil
}

// Dispatch offers the job to the given providers, or to every eligible
// provider of the job's service when providerIDs is empty.
func (s *JobService) Dispatch(ctx context.Context, jobID string, providerIDs []string) ([]ScheduledOffer, error) {
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	var providers []model.Provider
	if len(providerIDs) == 0 {
		providers, err = s.providers.FindEligibleProviders(ctx, job.ServiceID)
		if err != nil {
			return nil, asPolicyError("provider_directory", err)
		}
	} else {
		providers = make([]model.Provider, 0, len(providerIDs))
		for _, id := range providerIDs {
			p, err := s.providers.GetProvider(ctx, id)
			if err != nil {
				if errors.Is(err, model.ErrProviderNotFound) {
					return nil, model.NewValidationError("provider_ids", "unknown provider %q", id)
				}
				return nil, asPolicyError("provider_directory", err)
			}
			providers = append(providers, *p)
		}
	}

	return s.scheduler.Schedule(ctx, jobID, providers)
}

// Claim forwards a provider's acceptance to the scheduler once the provider
// is known to the directory.
func (s *JobService) Claim(ctx context.Context, jobID, providerID string) (*ClaimResult, error) {
	if providerID != "" {
		if _, err := s.providers.GetProvider(ctx, providerID); err != nil {
			if errors.Is(err, model.ErrProviderNotFound) {
				return nil, model.NewValidationError("provider_id", "unknown provider %q", providerID)
			}
			return nil, asPolicyError("provider_directory", err)
		}
	}
	return s.scheduler.Claim(ctx, jobID, providerID)
}

// Withdraw closes a job the client no longer wants.
func (s *JobService) Withdraw(ctx context.Context, jobID string) (*model.Job, error) {
	return s.scheduler.Cancel(ctx, jobID, model.JobWithdrawn)
}
