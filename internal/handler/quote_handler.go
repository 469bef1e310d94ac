package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/glamgo/marketplace/internal/model"
	"github.com/glamgo/marketplace/internal/service"
)

// Quoter prices a job.
type Quoter interface {
	Quote(ctx context.Context, req service.QuoteRequest) (*service.PriceBreakdown, error)
}

// QuoteRequest is the JSON body for POST /api/v1/quotes.
type QuoteRequest struct {
	ServiceID           string           `json:"service_id"`
	FormulaType         string           `json:"formula_type"`
	ScheduledTime       string           `json:"scheduled_time"`
	DurationHours       *float64         `json:"duration_hours"`
	Quantity            int              `json:"quantity"`
	DistanceKm          *decimal.Decimal `json:"distance_km"`
	ClientCoord         *model.Location  `json:"client_coord"`
	ProviderID          string           `json:"provider_id"`
	ProviderCoord       *model.Location  `json:"provider_coord"`
	IncludeNightPeriods *bool            `json:"include_night_periods"`
}

// QuoteHandler handles price quote HTTP requests.
type QuoteHandler struct {
	quoter Quoter
	logger *zap.Logger
}

// NewQuoteHandler creates a new quote handler.
func NewQuoteHandler(quoter Quoter, logger *zap.Logger) *QuoteHandler {
	return &QuoteHandler{quoter: quoter, logger: logger.Named("handler.quote")}
}

// CreateQuote handles POST /api/v1/quotes
//
// Request body:
//
//	{
//	  "service_id": "svc-cleaning", "formula_type": "urgent",
//	  "scheduled_time": "2026-03-10T14:00:00Z", "duration_hours": 2,
//	  "client_coord": {"lat": 33.5731, "lon": -7.5898}, "provider_id": "prov-42"
//	}
//
// Response: PriceBreakdown. Amounts are JSON numbers in the marketplace currency.
func (h *QuoteHandler) CreateQuote(w http.ResponseWriter, r *http.Request) {
	var body QuoteRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, h.logger, err)
		return
	}

	req := service.QuoteRequest{
		ServiceID:           body.ServiceID,
		FormulaType:         body.FormulaType,
		DurationHours:       body.DurationHours,
		Quantity:            body.Quantity,
		DistanceKm:          body.DistanceKm,
		ClientLocation:      body.ClientCoord,
		ProviderID:          body.ProviderID,
		ProviderLocation:    body.ProviderCoord,
		IncludeNightPeriods: body.IncludeNightPeriods == nil || *body.IncludeNightPeriods,
	}
	if body.ScheduledTime != "" {
		t, err := time.Parse(time.RFC3339, body.ScheduledTime)
		if err != nil {
			writeError(w, h.logger, model.NewValidationError("scheduled_time", "must be RFC 3339, got %q", body.ScheduledTime))
			return
		}
		req.ScheduledTime = t
	}

	breakdown, err := h.quoter.Quote(r.Context(), req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, breakdown)
}
