package handler

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/glamgo/marketplace/internal/model"
	"github.com/glamgo/marketplace/internal/service"
)

// ProviderHandler exposes a provider's dispatch priority.
type ProviderHandler struct {
	providers  service.ProviderDirectory
	classifier *service.PriorityClassifier
	logger     *zap.Logger
}

// NewProviderHandler creates a new provider handler.
func NewProviderHandler(providers service.ProviderDirectory, classifier *service.PriorityClassifier, logger *zap.Logger) *ProviderHandler {
	return &ProviderHandler{providers: providers, classifier: classifier, logger: logger.Named("handler.provider")}
}

// DispatchStatus handles GET /api/v1/providers/{provider_id}/dispatch-status
//
// Response: { level, icon, label, delay_seconds, rating, review_count,
// block_threshold_breached }.
func (h *ProviderHandler) DispatchStatus(w http.ResponseWriter, r *http.Request) {
	providerID := mux.Vars(r)["provider_id"]

	p, err := h.providers.GetProvider(r.Context(), providerID)
	if err != nil {
		if !errors.Is(err, model.ErrProviderNotFound) && !model.IsPolicyUnavailable(err) {
			err = &model.PolicyUnavailableError{Policy: "provider_directory", Err: err}
		}
		writeError(w, h.logger, err)
		return
	}

	status, err := h.classifier.ClassifyProvider(p)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, status)
}
