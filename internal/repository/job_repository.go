// Package repository provides database and cache access for the marketplace.
//
// JobRepository handles dispatch job claims with pessimistic locking
// (SELECT ... FOR UPDATE) so that exactly one provider wins a job, and
// holds a share lock while an offer is sent.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/glamgo/marketplace/internal/model"
)

// DefaultJobTxTimeout bounds a claim or close transaction, including lock wait.
const DefaultJobTxTimeout = 5 * time.Second

// JobRepository is the authoritative store of dispatch jobs.
type JobRepository struct {
	pool *pgxpool.Pool
}

// NewJobRepository creates a new job repository.
func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

// CreateJob inserts a new open job.
func (r *JobRepository) CreateJob(ctx context.Context, job *model.Job) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO dispatch_jobs (id, service_id, status, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, job.ID, job.ServiceID, job.Status, job.ExpiresAt, job.CreatedAt)
	if err != nil {
		return fmt.Errorf("create job %s: %w", job.ID, err)
	}
	return nil
}

// GetJob fetches a job by id.
func (r *JobRepository) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	job, err := scanJob(r.pool.QueryRow(ctx, `
		SELECT id, service_id, status, provider_id, expires_at, claimed_at, created_at
		FROM dispatch_jobs
		WHERE id = $1
	`, jobID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", jobID, err)
	}
	return job, nil
}

// ─── The Core Transactional Claim ───────────────────────────

// Claim assigns the job to providerID if it is still open at now.
//
// Concurrency strategy: PESSIMISTIC LOCKING
//
//	T1: BEGIN → SELECT job FOR UPDATE → (row LOCKED)
//	T2: BEGIN → SELECT job FOR UPDATE → (BLOCKS)
//	T1: status open → UPDATE claimed → COMMIT
//	T2: (unblocked) → re-reads job → status claimed → ROLLBACK → won = false
//
// The returned job reflects the row after the attempt, so a loser can tell
// "someone else claimed it" from "it was withdrawn or expired".
func (r *JobRepository) Claim(ctx context.Context, jobID, providerID string, now time.Time) (*model.Job, bool, error) {
	txCtx, cancel := context.WithTimeout(ctx, DefaultJobTxTimeout)
	defer cancel()

	tx, err := r.pool.BeginTx(txCtx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, false, fmt.Errorf("claim: begin tx: %w", err)
	}
	defer tx.Rollback(txCtx)

	job, err := lockJob(txCtx, tx, jobID)
	if err != nil {
		return nil, false, err
	}

	if job.Status == model.JobOpen && !now.Before(job.ExpiresAt) {
		// Lazily expire: the expiry timer may live on another instance.
		if _, err := tx.Exec(txCtx, `UPDATE dispatch_jobs SET status = 'expired' WHERE id = $1`, jobID); err != nil {
			return nil, false, fmt.Errorf("claim: expire job %s: %w", jobID, err)
		}
		job.Status = model.JobExpired
		if err := tx.Commit(txCtx); err != nil {
			return nil, false, fmt.Errorf("claim: commit: %w", err)
		}
		return job, false, nil
	}
	if job.Status != model.JobOpen {
		return job, false, nil
	}

	_, err = tx.Exec(txCtx, `
		UPDATE dispatch_jobs
		SET status = 'claimed', provider_id = $2, claimed_at = $3
		WHERE id = $1
	`, jobID, providerID, now)
	if err != nil {
		return nil, false, fmt.Errorf("claim: update job %s: %w", jobID, err)
	}
	if err := tx.Commit(txCtx); err != nil {
		return nil, false, fmt.Errorf("claim: commit: %w", err)
	}

	job.Status = model.JobClaimed
	job.ProviderID = &providerID
	job.ClaimedAt = &now
	return job, true, nil
}

// Close moves an open job to status (withdrawn or expired). A job that is
// no longer open is returned unchanged with closed == false.
func (r *JobRepository) Close(ctx context.Context, jobID string, status model.JobStatus, _ time.Time) (*model.Job, bool, error) {
	txCtx, cancel := context.WithTimeout(ctx, DefaultJobTxTimeout)
	defer cancel()

	tx, err := r.pool.BeginTx(txCtx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, false, fmt.Errorf("close: begin tx: %w", err)
	}
	defer tx.Rollback(txCtx)

	job, err := lockJob(txCtx, tx, jobID)
	if err != nil {
		return nil, false, err
	}
	if job.Status != model.JobOpen {
		return job, false, nil
	}

	if _, err := tx.Exec(txCtx, `UPDATE dispatch_jobs SET status = $2 WHERE id = $1`, jobID, status); err != nil {
		return nil, false, fmt.Errorf("close: update job %s: %w", jobID, err)
	}
	if err := tx.Commit(txCtx); err != nil {
		return nil, false, fmt.Errorf("close: commit: %w", err)
	}
	job.Status = status
	return job, true, nil
}

// OfferIfOpen runs send while holding a share lock on the job row. Claim
// and Close take FOR UPDATE, so they wait until send returns and the lock
// is released; an offer is never sent for a job another instance has
// already claimed.
//
//	T1 (timer): BEGIN → SELECT job FOR SHARE → open → send offer
//	T2 (claim): BEGIN → SELECT job FOR UPDATE → (BLOCKS)
//	T1: COMMIT
//	T2: (unblocked) → status open → UPDATE claimed → COMMIT
func (r *JobRepository) OfferIfOpen(ctx context.Context, jobID string, now time.Time, send func(*model.Job) error) (bool, error) {
	txCtx, cancel := context.WithTimeout(ctx, DefaultJobTxTimeout)
	defer cancel()

	tx, err := r.pool.BeginTx(txCtx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return false, fmt.Errorf("offer: begin tx: %w", err)
	}
	defer tx.Rollback(txCtx)

	job, err := scanJob(tx.QueryRow(txCtx, `
		SELECT id, service_id, status, provider_id, expires_at, claimed_at, created_at
		FROM dispatch_jobs
		WHERE id = $1
		FOR SHARE
	`, jobID))
	if errors.Is(err, pgx.ErrNoRows) {
		return false, model.ErrJobNotFound
	}
	if err != nil {
		return false, fmt.Errorf("offer: share lock job %s: %w", jobID, err)
	}
	if !job.IsOpen(now) {
		return false, nil
	}

	if err := send(job); err != nil {
		return false, err
	}
	if err := tx.Commit(txCtx); err != nil {
		return false, fmt.Errorf("offer: commit: %w", err)
	}
	return true, nil
}

// ─── Helpers ────────────────────────────────────────────────

func lockJob(ctx context.Context, tx pgx.Tx, jobID string) (*model.Job, error) {
	job, err := scanJob(tx.QueryRow(ctx, `
		SELECT id, service_id, status, provider_id, expires_at, claimed_at, created_at
		FROM dispatch_jobs
		WHERE id = $1
		FOR UPDATE
	`, jobID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock job %s: %w", jobID, err)
	}
	return job, nil
}

func scanJob(row pgx.Row) (*model.Job, error) {
	job := &model.Job{}
	err := row.Scan(&job.ID, &job.ServiceID, &job.Status, &job.ProviderID,
		&job.ExpiresAt, &job.ClaimedAt, &job.CreatedAt)
	if err != nil {
		return nil, err
	}
	return job, nil
}
