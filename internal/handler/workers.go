package handler

import (
	"errors"
	"net/http"

	"strata/internal/worker"
)

// WorkerHandler exposes background worker status and manual triggers.
type WorkerHandler struct {
	registry *worker.Registry
}

// NewWorkerHandler creates a new worker handler
func NewWorkerHandler(registry *worker.Registry) *WorkerHandler {
	return &WorkerHandler{registry: registry}
}

// ListWorkers handles GET /api/admin/workers
func (h *WorkerHandler) ListWorkers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.registry.ListWorkers(), http.StatusOK)
}

// RunWorker handles POST /api/admin/workers/{name}/run
func (h *WorkerHandler) RunWorker(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	if err := h.registry.Trigger(r.Context(), name); err != nil {
		switch {
		case errors.Is(err, worker.ErrNotFound):
			writeError(w, "Worker not found", err.Error(), http.StatusNotFound)
		case errors.Is(err, worker.ErrDisabled):
			writeError(w, "Worker is disabled", err.Error(), http.StatusBadRequest)
		default:
			writeError(w, "Worker run failed", err.Error(), http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, map[string]any{"ran": name}, http.StatusOK)
}
