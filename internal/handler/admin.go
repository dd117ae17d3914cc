package handler

import (
	"log"
	"net/http"

	"strata/internal/core/probe"
	"strata/internal/service"
)

// AdminHandler handles database administration API requests.
type AdminHandler struct {
	svc *service.AdminService
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(svc *service.AdminService) *AdminHandler {
	return &AdminHandler{svc: svc}
}

type databasePayload struct {
	Name    string `json:"name"`
	PostGIS bool   `json:"postgis,omitempty"`
}

// CreateDatabase creates a database, optionally with PostGIS enabled
func (h *AdminHandler) CreateDatabase(w http.ResponseWriter, r *http.Request) {
	var payload databasePayload
	if !decodeBody(w, r, &payload) {
		return
	}
	if payload.Name == "" {
		writeError(w, "Database name required", "", http.StatusBadRequest)
		return
	}

	if err := h.svc.CreateDatabase(r.Context(), payload.Name, payload.PostGIS); err != nil {
		log.Printf("Failed to create database %s: %v", payload.Name, err)
		writeServiceError(w, "Failed to create database", err, http.StatusBadRequest)
		return
	}

	writeJSON(w, payload, http.StatusCreated)
}

// DropDatabase drops a database
func (h *AdminHandler) DropDatabase(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	if err := h.svc.DropDatabase(r.Context(), name); err != nil {
		log.Printf("Failed to drop database %s: %v", name, err)
		writeServiceError(w, "Failed to drop database", err, http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Probe runs the capability probe and returns its report
func (h *AdminHandler) Probe(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.Probe(r.Context())
	if err != nil {
		log.Printf("Failed to probe database: %v", err)
		writeServiceError(w, "Failed to probe database", err, http.StatusInternalServerError)
		return
	}

	writeJSON(w, result, http.StatusOK)
}

// Health returns a liveness handler reporting the resolved operating
// mode.
func Health(mode probe.Mode) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{
			"status": "ok",
			"mode":   string(mode),
		}, http.StatusOK)
	}
}
