package handler

import (
	"log"
	"net/http"

	"strata/internal/service"
)

// CounterHandler handles counter API requests.
type CounterHandler struct {
	svc *service.CounterService
}

// NewCounterHandler creates a new counter handler
func NewCounterHandler(svc *service.CounterService) *CounterHandler {
	return &CounterHandler{svc: svc}
}

// counterPayload creates a counter. Start and step default to 1.
type counterPayload struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Start       int64  `json:"start,omitempty"`
	Step        int64  `json:"step,omitempty"`
}

// ListCounters returns every counter with its current value
func (h *CounterHandler) ListCounters(w http.ResponseWriter, r *http.Request) {
	counters, err := h.svc.List(r.Context())
	if err != nil {
		log.Printf("Failed to list counters: %v", err)
		writeServiceError(w, "Failed to list counters", err, http.StatusInternalServerError)
		return
	}

	writeJSON(w, counters, http.StatusOK)
}

// CreateCounter creates a named counter
func (h *CounterHandler) CreateCounter(w http.ResponseWriter, r *http.Request) {
	var payload counterPayload
	if !decodeBody(w, r, &payload) {
		return
	}
	if payload.Name == "" {
		writeError(w, "Counter name required", "", http.StatusBadRequest)
		return
	}
	if payload.Start == 0 {
		payload.Start = 1
	}
	if payload.Step == 0 {
		payload.Step = 1
	}

	err := h.svc.Add(r.Context(), payload.Name, payload.Description, payload.Start, payload.Step)
	if err != nil {
		log.Printf("Failed to create counter %s: %v", payload.Name, err)
		writeServiceError(w, "Failed to create counter", err, http.StatusBadRequest)
		return
	}

	writeJSON(w, payload, http.StatusCreated)
}

// GetCounter returns a counter's current value without advancing it
func (h *CounterHandler) GetCounter(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	value, err := h.svc.Value(r.Context(), name)
	if err != nil {
		log.Printf("Failed to read counter %s: %v", name, err)
		writeServiceError(w, "Failed to read counter", err, http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]any{"name": name, "value": value}, http.StatusOK)
}

// IncrementCounter advances a counter and returns the new value
func (h *CounterHandler) IncrementCounter(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	value, err := h.svc.Increment(r.Context(), name)
	if err != nil {
		log.Printf("Failed to increment counter %s: %v", name, err)
		writeServiceError(w, "Failed to increment counter", err, http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]any{"name": name, "value": value}, http.StatusOK)
}

// DeleteCounter removes a counter. Deleting an absent counter reports
// zero removed rather than failing.
func (h *CounterHandler) DeleteCounter(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	removed, err := h.svc.Delete(r.Context(), name)
	if err != nil {
		log.Printf("Failed to delete counter %s: %v", name, err)
		writeServiceError(w, "Failed to delete counter", err, http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]int64{"removed": removed}, http.StatusOK)
}
