package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"strata/internal/repository/postgres"
	"strata/internal/service"
)

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Failed to encode JSON: %v", err)
	}
}

func writeError(w http.ResponseWriter, error, details string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Details: details,
	}); err != nil {
		log.Printf("Failed to encode error response: %v", err)
	}
}

// writeServiceError maps service failures onto statuses: unknown layers
// and missing tables are 404, mode restrictions are 403, everything
// else falls back to the given status.
func writeServiceError(w http.ResponseWriter, message string, err error, fallback int) {
	status := fallback
	switch {
	case errors.Is(err, service.ErrLayerNotFound), errors.Is(err, postgres.ErrTableNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrReadOnly), errors.Is(err, service.ErrSpatialDisabled):
		status = http.StatusForbidden
	}
	writeError(w, message, err.Error(), status)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}
