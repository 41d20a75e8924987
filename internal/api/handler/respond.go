package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/notifyhub/syften-relay/internal/service"
)

// Client-facing messages for batch-level rejections.
const (
	msgNoBody        = "No body provided"
	msgInvalidJSON   = "Invalid JSON"
	msgNotArray      = "Payload must be a list of items"
	msgNoItems       = "No items provided"
	msgTooLarge      = "Payload too large"
	msgValidation    = "validation failed"
	msgEnqueueFailed = "Failed to enqueue items"
)

// ValidationDetail locates one invalid field of one batch element.
type ValidationDetail struct {
	Index   int    `json:"index"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

type validationResponse struct {
	Error   string             `json:"error"`
	Details []ValidationDetail `json:"details"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

// mapError translates service and domain errors to HTTP status codes.
// All mapping lives here so individual handlers stay concise.
func mapError(w http.ResponseWriter, err error) {
	var (
		batchErr   *service.BatchError
		publishErr *service.PublishError
		tooLarge   *http.MaxBytesError
	)

	switch {
	case errors.Is(err, service.ErrEmptyBody):
		respondError(w, http.StatusBadRequest, msgNoBody)
	case errors.Is(err, service.ErrInvalidJSON):
		respondError(w, http.StatusBadRequest, msgInvalidJSON)
	case errors.Is(err, service.ErrNotArray):
		respondError(w, http.StatusBadRequest, msgNotArray)
	case errors.Is(err, service.ErrEmptyBatch):
		respondError(w, http.StatusBadRequest, msgNoItems)
	case errors.Is(err, errInvalidQuery):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &tooLarge):
		respondError(w, http.StatusRequestEntityTooLarge, msgTooLarge)
	case errors.As(err, &batchErr):
		respondJSON(w, http.StatusUnprocessableEntity, validationResponse{
			Error:   msgValidation,
			Details: validationDetails(batchErr),
		})
	case errors.As(err, &publishErr):
		respondError(w, http.StatusInternalServerError, msgEnqueueFailed)
	default:
		respondError(w, http.StatusInternalServerError, "internal server error")
	}
}

func validationDetails(e *service.BatchError) []ValidationDetail {
	var details []ValidationDetail
	for _, item := range e.Items {
		for _, f := range item.Err.Fields {
			details = append(details, ValidationDetail{Index: item.Index, Field: f.Field, Message: f.Message})
		}
	}
	return details
}
