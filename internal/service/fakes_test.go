package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/glamgo/marketplace/internal/model"
)

// ─── Manual clock ───────────────────────────────────────────

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves the clock forward and runs due callbacks in deadline order,
// synchronously and outside the clock's lock. During a callback Now()
// reports that callback's deadline.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		var next *fakeTimer
		for _, t := range c.timers {
			if t.stopped || t.fired || t.at.After(target) {
				continue
			}
			if next == nil || t.at.Before(next.at) {
				next = t
			}
		}
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		next.fired = true
		if next.at.After(c.now) {
			c.now = next.at
		}
		c.mu.Unlock()
		next.f()
	}
}

func (c *fakeClock) activeTimers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// ─── Job store ──────────────────────────────────────────────

type memJobStore struct {
	mu   sync.Mutex
	jobs map[string]*model.Job

	// beforeOffer runs once, just before the next OfferIfOpen takes the lock.
	beforeOffer func()
}

func newMemJobStore() *memJobStore {
	return &memJobStore{jobs: make(map[string]*model.Job)}
}

func (m *memJobStore) CreateJob(_ context.Context, job *model.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *memJobStore) GetJob(_ context.Context, jobID string) (*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return nil, model.ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *memJobStore) Claim(_ context.Context, jobID, providerID string, now time.Time) (*model.Job, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return nil, false, model.ErrJobNotFound
	}
	if !j.IsOpen(now) {
		cp := *j
		return &cp, false, nil
	}
	j.Status = model.JobClaimed
	pid := providerID
	j.ProviderID = &pid
	j.ClaimedAt = &now
	cp := *j
	return &cp, true, nil
}

func (m *memJobStore) Close(_ context.Context, jobID string, status model.JobStatus, _ time.Time) (*model.Job, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return nil, false, model.ErrJobNotFound
	}
	if j.Status != model.JobOpen {
		cp := *j
		return &cp, false, nil
	}
	j.Status = status
	cp := *j
	return &cp, true, nil
}

func (m *memJobStore) OfferIfOpen(_ context.Context, jobID string, now time.Time, send func(*model.Job) error) (bool, error) {
	if hook := m.beforeOffer; hook != nil {
		m.beforeOffer = nil
		hook()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return false, model.ErrJobNotFound
	}
	if !j.IsOpen(now) {
		return false, nil
	}
	cp := *j
	if err := send(&cp); err != nil {
		return false, err
	}
	return true, nil
}

// ─── Broadcast sinks ────────────────────────────────────────

type recordingBroadcaster struct {
	mu     sync.Mutex
	offers []Offer
	err    error
}

func (b *recordingBroadcaster) BroadcastOffer(_ context.Context, offer Offer) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.offers = append(b.offers, offer)
	return nil
}

func (b *recordingBroadcaster) providerIDs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]string, len(b.offers))
	for i, o := range b.offers {
		ids[i] = o.ProviderID
	}
	return ids
}

type recordingSignaler struct {
	mu      sync.Mutex
	signals []SuspensionSignal
}

func (r *recordingSignaler) SignalBlockThreshold(_ context.Context, s SuspensionSignal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signals = append(r.signals, s)
	return nil
}

// ─── Catalog, providers, commission ─────────────────────────

type memCatalog struct {
	services map[string]*model.ServiceCatalogEntry
	err      error
}

func (c *memCatalog) GetService(_ context.Context, id string) (*model.ServiceCatalogEntry, error) {
	if c.err != nil {
		return nil, c.err
	}
	svc, ok := c.services[id]
	if !ok {
		return nil, model.ErrServiceNotFound
	}
	return svc, nil
}

type memProviders struct {
	providers map[string]*model.Provider
	err       error
}

func (p *memProviders) GetProvider(_ context.Context, id string) (*model.Provider, error) {
	if p.err != nil {
		return nil, p.err
	}
	pr, ok := p.providers[id]
	if !ok {
		return nil, model.ErrProviderNotFound
	}
	return pr, nil
}

func (p *memProviders) FindEligibleProviders(_ context.Context, _ string) ([]model.Provider, error) {
	if p.err != nil {
		return nil, p.err
	}
	out := make([]model.Provider, 0, len(p.providers))
	for _, pr := range p.providers {
		out = append(out, *pr)
	}
	return out, nil
}

type fixedCommission struct {
	rate decimal.Decimal
	err  error
}

func (f fixedCommission) GetCommissionRate(context.Context, string) (decimal.Decimal, error) {
	return f.rate, f.err
}

var errBackendDown = errors.New("connection refused")

func testLogger() *zap.Logger { return zap.NewNop() }

type recordingLedger struct {
	mu      sync.Mutex
	offered []string
	at      map[string]time.Time
}

func (l *recordingLedger) RecordOffer(_ context.Context, jobID, providerID string, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.at == nil {
		l.at = make(map[string]time.Time)
	}
	l.offered = append(l.offered, providerID)
	l.at[providerID] = at
	return nil
}

func (l *recordingLedger) WasOffered(_ context.Context, _, providerID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return contains(l.offered, providerID), nil
}
