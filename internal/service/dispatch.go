package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/glamgo/marketplace/internal/model"
)

// ─── Dispatch Errors ────────────────────────────────────────

// ErrJobNotOpen is returned when dispatching or withdrawing a job that is
// already claimed, withdrawn or expired.
var ErrJobNotOpen = errors.New("dispatch job is not open")

// ErrNotOffered is returned when a provider claims an open job before their
// offer has gone out.
var ErrNotOffered = errors.New("job has not been offered to this provider yet")

// ─── Collaborators ──────────────────────────────────────────

// JobStore is the authoritative record of dispatch jobs. Claim must be
// atomic: of any number of concurrent claims on an open job exactly one
// returns won == true.
//
// OfferIfOpen runs send only while the job is open and keeps the job from
// being claimed or closed until send returns. It reports sent == false
// without calling send when the job is no longer open.
type JobStore interface {
	CreateJob(ctx context.Context, job *model.Job) error
	GetJob(ctx context.Context, jobID string) (*model.Job, error)
	Claim(ctx context.Context, jobID, providerID string, now time.Time) (*model.Job, bool, error)
	Close(ctx context.Context, jobID string, status model.JobStatus, now time.Time) (*model.Job, bool, error)
	OfferIfOpen(ctx context.Context, jobID string, now time.Time, send func(job *model.Job) error) (bool, error)
}

// Offer is the notification a provider receives when their delay elapses.
type Offer struct {
	OfferID      string              `json:"offer_id"`
	JobID        string              `json:"job_id"`
	ServiceID    string              `json:"service_id"`
	ProviderID   string              `json:"provider_id"`
	Level        model.PriorityLevel `json:"level"`
	DelaySeconds int                 `json:"delay_seconds"`
	OfferedAt    time.Time           `json:"offered_at"`
	ExpiresAt    time.Time           `json:"expires_at"`
}

// OfferBroadcaster delivers offers to providers.
type OfferBroadcaster interface {
	BroadcastOffer(ctx context.Context, offer Offer) error
}

// SuspensionSignal tells the account team a provider fell below the block threshold.
type SuspensionSignal struct {
	ProviderID  string    `json:"provider_id"`
	JobID       string    `json:"job_id"`
	Rating      float64   `json:"rating"`
	ReviewCount int       `json:"review_count"`
	DetectedAt  time.Time `json:"detected_at"`
}

// SuspensionSignaler forwards block-threshold breaches. Suspension itself
// happens elsewhere.
type SuspensionSignaler interface {
	SignalBlockThreshold(ctx context.Context, signal SuspensionSignal) error
}

// OfferLedger records which providers were notified for a job. It is
// shared by every instance, so a claim may land on an instance other than
// the one whose timer sent the offer.
type OfferLedger interface {
	RecordOffer(ctx context.Context, jobID, providerID string, at time.Time) error
	WasOffered(ctx context.Context, jobID, providerID string) (bool, error)
}

// ─── Results ────────────────────────────────────────────────

// ScheduledOffer describes one pending offer timer.
type ScheduledOffer struct {
	ProviderID             string              `json:"provider_id"`
	Level                  model.PriorityLevel `json:"level"`
	DelaySeconds           int                 `json:"delay_seconds"`
	OfferAt                time.Time           `json:"offer_at"`
	BlockThresholdBreached bool                `json:"block_threshold_breached"`
}

// ClaimOutcome is the result of a claim attempt. Losing a race is an
// outcome, not an error.
type ClaimOutcome string

const (
	ClaimAccepted   ClaimOutcome = "claimed"
	ClaimRaceLost   ClaimOutcome = "already_taken"
	ClaimJobNotOpen ClaimOutcome = "job_unavailable"
)

// dispatchCallTimeout bounds store and broker calls made from timer callbacks.
const dispatchCallTimeout = 5 * time.Second

// ClaimResult is returned by Claim.
type ClaimResult struct {
	JobID      string       `json:"job_id"`
	ProviderID string       `json:"provider_id"`
	Outcome    ClaimOutcome `json:"outcome"`
	Claimed    bool         `json:"claimed"`
	Status     string       `json:"status"`
}

// ─── DispatchScheduler ──────────────────────────────────────

// jobEntry holds the in-process timers of one job. Its mutex orders timer
// firings against claim and cancel for that job only.
type jobEntry struct {
	mu      sync.Mutex
	closed  bool
	timers  map[string]Timer
	expiry  Timer
	offered []string
}

// DispatchScheduler offers an open job to providers in tier order. Each
// provider gets its own timer; the first provider to claim wins and all
// remaining timers are cancelled.
//
// Concurrency model:
//   - Timers, claims and cancels for the same job serialize on its jobEntry.
//   - Different jobs never contend.
//   - The JobStore is the source of truth across instances. A timer sends
//     its offer through JobStore.OfferIfOpen, so a claim committed by any
//     instance either lands before the open check or waits for the send.
type DispatchScheduler struct {
	classifier  *PriorityClassifier
	jobs        JobStore
	broadcaster OfferBroadcaster
	suspensions SuspensionSignaler
	ledger      OfferLedger
	clock       Clock
	logger      *zap.Logger

	entries sync.Map // job id → *jobEntry
}

// NewDispatchScheduler creates a scheduler. suspensions and ledger may be nil.
func NewDispatchScheduler(
	classifier *PriorityClassifier,
	jobs JobStore,
	broadcaster OfferBroadcaster,
	suspensions SuspensionSignaler,
	ledger OfferLedger,
	clock Clock,
	logger *zap.Logger,
) *DispatchScheduler {
	return &DispatchScheduler{
		classifier:  classifier,
		jobs:        jobs,
		broadcaster: broadcaster,
		suspensions: suspensions,
		ledger:      ledger,
		clock:       clock,
		logger:      logger.Named("dispatch"),
	}
}

// Schedule starts one offer timer per provider, delayed by the provider's
// tier. Providers already scheduled for the job are skipped, and a provider
// whose profile cannot be classified is logged and skipped.
func (s *DispatchScheduler) Schedule(ctx context.Context, jobID string, providers []model.Provider) ([]ScheduledOffer, error) {
	e := s.lockEntry(jobID)
	defer s.unlockEntry(jobID, e)

	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if !job.IsOpen(now) {
		return nil, ErrJobNotOpen
	}

	scheduled := make([]ScheduledOffer, 0, len(providers))
	for i := range providers {
		p := providers[i]
		if _, pending := e.timers[p.ID]; pending || contains(e.offered, p.ID) {
			continue
		}

		status, err := s.classifier.ClassifyProvider(&p)
		if err != nil {
			s.logger.Warn("skipping provider with invalid profile",
				zap.String("job_id", jobID), zap.String("provider_id", p.ID), zap.Error(err))
			continue
		}
		if status.BlockThresholdBreached {
			s.signalSuspension(ctx, jobID, &p, now)
		}

		providerID := p.ID
		e.timers[providerID] = s.clock.AfterFunc(status.Delay(), func() {
			s.fire(jobID, providerID, status)
		})
		scheduled = append(scheduled, ScheduledOffer{
			ProviderID:             providerID,
			Level:                  status.Level,
			DelaySeconds:           status.DelaySeconds,
			OfferAt:                now.Add(status.Delay()),
			BlockThresholdBreached: status.BlockThresholdBreached,
		})
	}

	if e.expiry == nil {
		e.expiry = s.clock.AfterFunc(job.ExpiresAt.Sub(now), func() { s.expire(jobID) })
	}

	s.logger.Info("job dispatched",
		zap.String("job_id", jobID),
		zap.Int("providers", len(scheduled)),
		zap.Time("expires_at", job.ExpiresAt))
	return scheduled, nil
}

// Claim attempts to assign the job to providerID. Exactly one concurrent
// claim wins; the rest get ClaimRaceLost. A provider whose offer has not
// gone out yet gets ErrNotOffered while the job is still open.
func (s *DispatchScheduler) Claim(ctx context.Context, jobID, providerID string) (*ClaimResult, error) {
	if providerID == "" {
		return nil, model.NewValidationError("provider_id", "is required")
	}

	e := s.lockEntry(jobID)
	defer s.unlockEntry(jobID, e)

	offered, err := s.wasOffered(ctx, e, jobID, providerID)
	if err != nil {
		return nil, err
	}

	var (
		job *model.Job
		won bool
	)
	if offered {
		job, won, err = s.jobs.Claim(ctx, jobID, providerID, s.clock.Now())
	} else {
		job, err = s.jobs.GetJob(ctx, jobID)
	}
	if err != nil {
		return nil, err
	}
	if !offered && job.IsOpen(s.clock.Now()) {
		return nil, ErrNotOffered
	}

	res := &ClaimResult{JobID: jobID, ProviderID: providerID, Status: string(job.Status)}
	switch {
	case won, job.Status == model.JobClaimed && job.ProviderID != nil && *job.ProviderID == providerID:
		res.Outcome, res.Claimed = ClaimAccepted, true
		s.logger.Info("job claimed", zap.String("job_id", jobID), zap.String("provider_id", providerID))
	case job.Status == model.JobClaimed:
		res.Outcome = ClaimRaceLost
		s.logger.Info("claim lost race", zap.String("job_id", jobID), zap.String("provider_id", providerID))
	default:
		res.Outcome = ClaimJobNotOpen
	}
	if job.Status != model.JobOpen {
		s.closeLocked(jobID, e)
	}
	return res, nil
}

// Cancel closes an open job as withdrawn or expired and stops all of its
// pending offer timers.
func (s *DispatchScheduler) Cancel(ctx context.Context, jobID string, status model.JobStatus) (*model.Job, error) {
	if status != model.JobWithdrawn && status != model.JobExpired {
		return nil, model.NewValidationError("status", "must be withdrawn or expired, got %q", status)
	}

	e := s.lockEntry(jobID)
	defer s.unlockEntry(jobID, e)

	job, closed, err := s.jobs.Close(ctx, jobID, status, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if job.Status != model.JobOpen {
		s.closeLocked(jobID, e)
	}
	if !closed && job.Status != status {
		return job, ErrJobNotOpen
	}

	s.logger.Info("job closed", zap.String("job_id", jobID), zap.String("status", string(status)))
	return job, nil
}

// PendingOffers lists providers whose offer timer has not fired yet.
func (s *DispatchScheduler) PendingOffers(jobID string) []string {
	v, ok := s.entries.Load(jobID)
	if !ok {
		return nil
	}
	e := v.(*jobEntry)
	e.mu.Lock()
	defer e.mu.Unlock()

	ids := make([]string, 0, len(e.timers))
	for id := range e.timers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ─── Timer callbacks ────────────────────────────────────────

func (s *DispatchScheduler) fire(jobID, providerID string, status *DispatchStatus) {
	v, ok := s.entries.Load(jobID)
	if !ok {
		return
	}
	e := v.(*jobEntry)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	delete(e.timers, providerID)

	ctx, cancel := context.WithTimeout(context.Background(), dispatchCallTimeout)
	defer cancel()

	now := s.clock.Now()
	sent, err := s.jobs.OfferIfOpen(ctx, jobID, now, func(job *model.Job) error {
		offer := Offer{
			OfferID:      uuid.NewString(),
			JobID:        jobID,
			ServiceID:    job.ServiceID,
			ProviderID:   providerID,
			Level:        status.Level,
			DelaySeconds: status.DelaySeconds,
			OfferedAt:    now,
			ExpiresAt:    job.ExpiresAt,
		}
		if err := s.broadcaster.BroadcastOffer(ctx, offer); err != nil {
			return err
		}
		// Recorded before the job is released so another instance can
		// accept this provider's claim as soon as it is possible.
		if s.ledger != nil {
			if err := s.ledger.RecordOffer(ctx, jobID, providerID, now); err != nil {
				s.logger.Warn("offer ledger write failed", zap.String("job_id", jobID), zap.Error(err))
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Error("offer failed",
			zap.String("job_id", jobID), zap.String("provider_id", providerID), zap.Error(err))
		return
	}
	if !sent {
		s.closeLocked(jobID, e)
		return
	}
	e.offered = append(e.offered, providerID)

	s.logger.Debug("offer sent",
		zap.String("job_id", jobID),
		zap.String("provider_id", providerID),
		zap.String("level", string(status.Level)))
}

func (s *DispatchScheduler) expire(jobID string) {
	ctx, cancel := context.WithTimeout(context.Background(), dispatchCallTimeout)
	defer cancel()
	if _, err := s.Cancel(ctx, jobID, model.JobExpired); err != nil && !errors.Is(err, ErrJobNotOpen) {
		s.logger.Error("job expiry failed", zap.String("job_id", jobID), zap.Error(err))
	}
}

// closeLocked stops every timer of the job. e.mu must be held.
func (s *DispatchScheduler) closeLocked(jobID string, e *jobEntry) {
	e.closed = true
	for id, t := range e.timers {
		t.Stop()
		delete(e.timers, id)
	}
	if e.expiry != nil {
		e.expiry.Stop()
	}
	s.entries.CompareAndDelete(jobID, e)
}

// lockEntry returns the job's entry with its mutex held, creating it if
// needed. An entry closed and removed while we waited is never returned.
func (s *DispatchScheduler) lockEntry(jobID string) *jobEntry {
	for {
		v, _ := s.entries.LoadOrStore(jobID, &jobEntry{timers: make(map[string]Timer)})
		e := v.(*jobEntry)
		e.mu.Lock()
		if cur, ok := s.entries.Load(jobID); ok && cur == e {
			return e
		}
		e.mu.Unlock()
	}
}

// unlockEntry releases e and drops it from the map when it holds no timers.
func (s *DispatchScheduler) unlockEntry(jobID string, e *jobEntry) {
	if !e.closed && len(e.timers) == 0 && e.expiry == nil {
		s.entries.CompareAndDelete(jobID, e)
	}
	e.mu.Unlock()
}

// wasOffered checks this instance's fired timers first, then the shared ledger.
func (s *DispatchScheduler) wasOffered(ctx context.Context, e *jobEntry, jobID, providerID string) (bool, error) {
	if contains(e.offered, providerID) {
		return true, nil
	}
	if s.ledger == nil {
		return false, nil
	}
	return s.ledger.WasOffered(ctx, jobID, providerID)
}

func (s *DispatchScheduler) signalSuspension(ctx context.Context, jobID string, p *model.Provider, now time.Time) {
	s.logger.Warn("provider below block threshold",
		zap.String("provider_id", p.ID), zap.Float64("rating", p.Rating), zap.Int("review_count", p.ReviewCount))
	if s.suspensions == nil {
		return
	}
	err := s.suspensions.SignalBlockThreshold(ctx, SuspensionSignal{
		ProviderID:  p.ID,
		JobID:       jobID,
		Rating:      p.Rating,
		ReviewCount: p.ReviewCount,
		DetectedAt:  now,
	})
	if err != nil {
		s.logger.Error("suspension signal failed", zap.String("provider_id", p.ID), zap.Error(err))
	}
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
