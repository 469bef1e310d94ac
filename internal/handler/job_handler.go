package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/glamgo/marketplace/internal/model"
	"github.com/glamgo/marketplace/internal/service"
)

// JobManager is the job lifecycle the handler drives.
type JobManager interface {
	CreateJob(ctx context.Context, serviceID string, ttl time.Duration) (*model.Job, error)
	Dispatch(ctx context.Context, jobID string, providerIDs []string) ([]service.ScheduledOffer, error)
	Claim(ctx context.Context, jobID, providerID string) (*service.ClaimResult, error)
	Withdraw(ctx context.Context, jobID string) (*model.Job, error)
}

// OfferHistory reads the durable record of offers sent for a job.
type OfferHistory interface {
	OfferedProviders(ctx context.Context, jobID string) ([]string, error)
	DispatchedAt(ctx context.Context, jobID string) (time.Time, bool, error)
}

// CreateJobRequest is the JSON body for POST /api/v1/jobs.
type CreateJobRequest struct {
	ServiceID        string `json:"service_id"`
	ExpiresInSeconds int    `json:"expires_in_seconds"`
}

// DispatchRequest is the optional JSON body for POST /api/v1/jobs/{job_id}/dispatch.
type DispatchRequest struct {
	ProviderIDs []string `json:"provider_ids"`
}

// ClaimRequest is the JSON body for POST /api/v1/jobs/{job_id}/claim.
type ClaimRequest struct {
	ProviderID string `json:"provider_id"`
}

// DispatchResponse lists the offers scheduled by a dispatch call.
type DispatchResponse struct {
	JobID  string                   `json:"job_id"`
	Offers []service.ScheduledOffer `json:"offers"`
}

// OffersResponse is the offer history of a job.
type OffersResponse struct {
	JobID        string     `json:"job_id"`
	Offered      []string   `json:"offered"`
	DispatchedAt *time.Time `json:"dispatched_at,omitempty"`
}

// JobHandler handles dispatch job HTTP requests.
type JobHandler struct {
	jobs   JobManager
	offers OfferHistory
	logger *zap.Logger
}

// NewJobHandler creates a new job handler.
func NewJobHandler(jobs JobManager, offers OfferHistory, logger *zap.Logger) *JobHandler {
	return &JobHandler{jobs: jobs, offers: offers, logger: logger.Named("handler.job")}
}

// CreateJob handles POST /api/v1/jobs
//
// Opens a job for a service. expires_in_seconds is optional.
func (h *JobHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	job, err := h.jobs.CreateJob(r.Context(), req.ServiceID, time.Duration(req.ExpiresInSeconds)*time.Second)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, job)
}

// Dispatch handles POST /api/v1/jobs/{job_id}/dispatch
//
// With no provider_ids the job goes to every eligible provider of its
// service, each after the delay of their priority tier.
func (h *JobHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["job_id"]

	var req DispatchRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	offers, err := h.jobs.Dispatch(r.Context(), jobID, req.ProviderIDs)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusAccepted, DispatchResponse{JobID: jobID, Offers: offers})
}

// Claim handles POST /api/v1/jobs/{job_id}/claim
//
// Response codes:
//
//	200 → claim processed; "claimed" tells whether this provider won
//	400 → provider_id missing or unknown
//	403 → the provider's offer has not gone out yet
//	404 → job not found
func (h *JobHandler) Claim(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["job_id"]

	var req ClaimRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	result, err := h.jobs.Claim(r.Context(), jobID, req.ProviderID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Cancel handles POST /api/v1/jobs/{job_id}/cancel
//
// Withdraws an open job. A job already claimed or expired answers 409.
func (h *JobHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["job_id"]

	job, err := h.jobs.Withdraw(r.Context(), jobID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, job)
}

// Offers handles GET /api/v1/jobs/{job_id}/offers
func (h *JobHandler) Offers(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["job_id"]

	offered, err := h.offers.OfferedProviders(r.Context(), jobID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	resp := OffersResponse{JobID: jobID, Offered: offered}
	if resp.Offered == nil {
		resp.Offered = []string{}
	}

	at, ok, err := h.offers.DispatchedAt(r.Context(), jobID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if ok {
		resp.DispatchedAt = &at
	}

	writeJSON(w, http.StatusOK, resp)
}
