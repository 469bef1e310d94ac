// Package handler contains HTTP request handlers for the marketplace API.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/glamgo/marketplace/internal/model"
	"github.com/glamgo/marketplace/internal/service"
)

// writeJSON is a helper that writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError maps domain errors to status codes:
//
//	400 → ValidationError (field + message)
//	503 → PolicyUnavailableError
//	403 → provider's offer has not gone out yet
//	404 → unknown job, provider or service
//	409 → job no longer open
//	500 → anything else (logged)
func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	var ve *model.ValidationError
	var pe *model.PolicyUnavailableError

	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":   "validation_error",
			"field":   ve.Field,
			"message": ve.Message,
		})
	case errors.As(err, &pe):
		logger.Warn("policy unavailable", zap.String("policy", pe.Policy), zap.Error(pe.Err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error":   "policy_unavailable",
			"policy":  pe.Policy,
			"message": "A pricing or dispatch policy source is unavailable. Please retry.",
		})
	case errors.Is(err, model.ErrJobNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error":   "not_found",
			"message": "Job not found.",
		})
	case errors.Is(err, model.ErrProviderNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error":   "not_found",
			"message": "Provider not found.",
		})
	case errors.Is(err, model.ErrServiceNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error":   "not_found",
			"message": "Service not found.",
		})
	case errors.Is(err, service.ErrNotOffered):
		writeJSON(w, http.StatusForbidden, map[string]string{
			"error":   "offer_not_sent",
			"message": "This job has not been offered to you yet.",
		})
	case errors.Is(err, service.ErrJobNotOpen):
		writeJSON(w, http.StatusConflict, map[string]string{
			"error":   "job_not_open",
			"message": "This job is no longer open.",
		})
	default:
		logger.Error("unhandled error", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "internal_error",
		})
	}
}

// decodeBody decodes a JSON body into dst. An empty body leaves dst untouched.
func decodeBody(r *http.Request, dst interface{}) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return model.NewValidationError("body", "invalid JSON: %v", err)
	}
	return nil
}
