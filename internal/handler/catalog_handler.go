package handler

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/glamgo/marketplace/internal/model"
)

// CatalogStore reads catalog entries and drops their cached copies.
type CatalogStore interface {
	GetService(ctx context.Context, serviceID string) (*model.ServiceCatalogEntry, error)
	InvalidateService(ctx context.Context, serviceID string)
}

// CatalogHandler exposes service catalog entries and their formula tables.
type CatalogHandler struct {
	catalog CatalogStore
	logger  *zap.Logger
}

// NewCatalogHandler creates a new catalog handler.
func NewCatalogHandler(catalog CatalogStore, logger *zap.Logger) *CatalogHandler {
	return &CatalogHandler{catalog: catalog, logger: logger.Named("handler.catalog")}
}

// GetService handles GET /api/v1/services/{service_id}
func (h *CatalogHandler) GetService(w http.ResponseWriter, r *http.Request) {
	svc, err := h.catalog.GetService(r.Context(), mux.Vars(r)["service_id"])
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, svc)
}

// InvalidateCache handles DELETE /api/v1/services/{service_id}/cache
//
// Call after editing a service's base price, formulas or commission rate.
func (h *CatalogHandler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	serviceID := mux.Vars(r)["service_id"]
	h.catalog.InvalidateService(r.Context(), serviceID)
	h.logger.Info("catalog cache invalidated", zap.String("service_id", serviceID))
	w.WriteHeader(http.StatusNoContent)
}
