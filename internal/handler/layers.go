package handler

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"

	"strata/internal/domain"
	"strata/internal/pgquery"
	"strata/internal/service"
)

// LayerHandler handles layer and record API requests.
type LayerHandler struct {
	svc *service.LayerService
}

// NewLayerHandler creates a new layer handler
func NewLayerHandler(svc *service.LayerService) *LayerHandler {
	return &LayerHandler{svc: svc}
}

// wherePayload is a predicate fragment with its bound values, written
// $1-relative.
type wherePayload struct {
	Text   string `json:"text"`
	Values []any  `json:"values"`
}

func (p *wherePayload) predicate() (*pgquery.Predicate, error) {
	if p == nil || p.Text == "" {
		return nil, nil
	}
	return pgquery.NewPredicate(p.Text, p.Values...)
}

// recordPayload carries a record write: column values, the SRID of the
// incoming geometry text, and for updates/deletes the row filter.
type recordPayload struct {
	Fields     map[string]any `json:"fields"`
	SRID       int            `json:"srid,omitempty"`
	Returning  []string       `json:"returning,omitempty"`
	Where      *wherePayload  `json:"where,omitempty"`
	FileColumn string         `json:"file_column,omitempty"`
}

func (p *recordPayload) write() service.RecordWrite {
	return service.RecordWrite{
		Fields:    pgquery.FieldsFromMap(p.Fields),
		SRID:      p.SRID,
		Returning: p.Returning,
	}
}

// queryPayload is the full query shape for POST queries, where the
// predicate travels in the body.
type queryPayload struct {
	Exclude []string      `json:"exclude,omitempty"`
	Where   *wherePayload `json:"where,omitempty"`
	GroupBy string        `json:"group_by,omitempty"`
	OrderBy string        `json:"order_by,omitempty"`
	Limit   int           `json:"limit,omitempty"`
	Format  string        `json:"format,omitempty"`
	SRID    int           `json:"srid,omitempty"`
}

func (p *queryPayload) query(w http.ResponseWriter) (service.RecordQuery, bool) {
	q := service.RecordQuery{
		Exclude: p.Exclude,
		GroupBy: p.GroupBy,
		OrderBy: p.OrderBy,
		Limit:   p.Limit,
		SRID:    p.SRID,
	}
	if p.Format != "" {
		format, err := pgquery.ParseGeometryFormat(p.Format)
		if err != nil {
			writeError(w, "Invalid geometry format", err.Error(), http.StatusBadRequest)
			return q, false
		}
		q.Format = format
	}
	where, err := p.Where.predicate()
	if err != nil {
		writeError(w, "Invalid predicate", err.Error(), http.StatusBadRequest)
		return q, false
	}
	q.Where = where
	return q, true
}

// ListLayers returns the registered layers
func (h *LayerHandler) ListLayers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.svc.Layers(), http.StatusOK)
}

// GetLayer returns a single layer's definition
func (h *LayerHandler) GetLayer(w http.ResponseWriter, r *http.Request) {
	key, ok := h.resolve(w, r)
	if !ok {
		return
	}
	layer, _ := h.svc.Layer(key)
	writeJSON(w, layer, http.StatusOK)
}

// CreateLayer creates a layer's table and registers it. The drop query
// parameter replaces an existing table.
func (h *LayerHandler) CreateLayer(w http.ResponseWriter, r *http.Request) {
	var layer domain.Layer
	if !decodeBody(w, r, &layer) {
		return
	}
	drop := r.URL.Query().Get("drop") == "true"

	created, err := h.svc.CreateLayer(r.Context(), layer, drop)
	if err != nil {
		log.Printf("Failed to create layer %s: %v", layer.Key(), err)
		writeServiceError(w, "Failed to create layer", err, http.StatusBadRequest)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, layer, status)
}

// ApplyLayers ensures every posted layer's table exists and replaces
// the registry with the posted set.
func (h *LayerHandler) ApplyLayers(w http.ResponseWriter, r *http.Request) {
	var layers []domain.Layer
	if !decodeBody(w, r, &layers) {
		return
	}

	report, err := h.svc.ApplyLayers(r.Context(), layers)
	if err != nil {
		log.Printf("Failed to apply layers: %v", err)
		writeServiceError(w, "Failed to apply layers", err, http.StatusInternalServerError)
		return
	}

	writeJSON(w, report, http.StatusOK)
}

// ListRecords returns layer rows shaped by query parameters
func (h *LayerHandler) ListRecords(w http.ResponseWriter, r *http.Request) {
	key, ok := h.resolve(w, r)
	if !ok {
		return
	}
	q, ok := queryFromRequest(w, r)
	if !ok {
		return
	}

	rows, err := h.svc.QueryRecords(r.Context(), key, q)
	if err != nil {
		log.Printf("Failed to query %s: %v", key, err)
		writeServiceError(w, "Failed to query records", err, http.StatusInternalServerError)
		return
	}

	writeJSON(w, rows, http.StatusOK)
}

// QueryRecords returns layer rows for a full query posted as JSON,
// predicate included.
func (h *LayerHandler) QueryRecords(w http.ResponseWriter, r *http.Request) {
	key, ok := h.resolve(w, r)
	if !ok {
		return
	}
	var payload queryPayload
	if !decodeBody(w, r, &payload) {
		return
	}
	q, ok := payload.query(w)
	if !ok {
		return
	}

	rows, err := h.svc.QueryRecords(r.Context(), key, q)
	if err != nil {
		log.Printf("Failed to query %s: %v", key, err)
		writeServiceError(w, "Failed to query records", err, http.StatusInternalServerError)
		return
	}

	writeJSON(w, rows, http.StatusOK)
}

// InsertRecord inserts one record into a layer
func (h *LayerHandler) InsertRecord(w http.ResponseWriter, r *http.Request) {
	key, ok := h.resolve(w, r)
	if !ok {
		return
	}
	var payload recordPayload
	if !decodeBody(w, r, &payload) {
		return
	}

	rows, err := h.svc.InsertRecord(r.Context(), key, payload.write())
	if err != nil {
		log.Printf("Failed to insert into %s: %v", key, err)
		writeServiceError(w, "Failed to insert record", err, http.StatusBadRequest)
		return
	}

	if rows == nil {
		rows = []pgquery.Row{}
	}
	writeJSON(w, rows, http.StatusCreated)
}

// UpdateRecords updates the layer rows matching the posted predicate
func (h *LayerHandler) UpdateRecords(w http.ResponseWriter, r *http.Request) {
	key, ok := h.resolve(w, r)
	if !ok {
		return
	}
	var payload recordPayload
	if !decodeBody(w, r, &payload) {
		return
	}
	where, err := payload.Where.predicate()
	if err != nil {
		writeError(w, "Invalid predicate", err.Error(), http.StatusBadRequest)
		return
	}

	count, err := h.svc.UpdateRecords(r.Context(), key, payload.write(), where)
	if err != nil {
		log.Printf("Failed to update %s: %v", key, err)
		writeServiceError(w, "Failed to update records", err, http.StatusBadRequest)
		return
	}

	writeJSON(w, map[string]int64{"updated": count}, http.StatusOK)
}

// DeleteRecords deletes the layer rows matching the posted predicate.
// An empty body deletes every row. With file_column set the attachment
// files named by that column are removed as well and the per-file
// outcome is reported.
func (h *LayerHandler) DeleteRecords(w http.ResponseWriter, r *http.Request) {
	key, ok := h.resolve(w, r)
	if !ok {
		return
	}

	var payload recordPayload
	json.NewDecoder(r.Body).Decode(&payload) // Body is optional
	where, err := payload.Where.predicate()
	if err != nil {
		writeError(w, "Invalid predicate", err.Error(), http.StatusBadRequest)
		return
	}

	if payload.FileColumn != "" {
		report, err := h.svc.DeleteRecordsWithFiles(r.Context(), key, payload.FileColumn, where)
		if err != nil {
			log.Printf("Failed to delete from %s: %v", key, err)
			writeServiceError(w, "Failed to delete records", err, http.StatusInternalServerError)
			return
		}
		writeJSON(w, report, http.StatusOK)
		return
	}

	count, err := h.svc.DeleteRecords(r.Context(), key, where)
	if err != nil {
		log.Printf("Failed to delete from %s: %v", key, err)
		writeServiceError(w, "Failed to delete records", err, http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]int64{"deleted": count}, http.StatusOK)
}

// RecordExists reports whether any layer row has column equal to value
func (h *LayerHandler) RecordExists(w http.ResponseWriter, r *http.Request) {
	key, ok := h.resolve(w, r)
	if !ok {
		return
	}
	column := r.URL.Query().Get("column")
	if column == "" {
		writeError(w, "Column required", "Provide the column query parameter", http.StatusBadRequest)
		return
	}
	value := r.URL.Query().Get("value")

	exists, err := h.svc.RecordExists(r.Context(), key, column, value)
	if err != nil {
		log.Printf("Failed to check %s: %v", key, err)
		writeServiceError(w, "Failed to check record", err, http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]bool{"exists": exists}, http.StatusOK)
}

// ListColumns returns the layer's rendered SELECT list
func (h *LayerHandler) ListColumns(w http.ResponseWriter, r *http.Request) {
	key, ok := h.resolve(w, r)
	if !ok {
		return
	}
	q, ok := queryFromRequest(w, r)
	if !ok {
		return
	}

	columns, err := h.svc.Columns(r.Context(), key, q)
	if err != nil {
		log.Printf("Failed to list columns of %s: %v", key, err)
		writeServiceError(w, "Failed to list columns", err, http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string][]string{"columns": columns}, http.StatusOK)
}

// Export streams the layer's rows as a download in the format named by
// the format query parameter: json, yaml, geojson, or gpkg.
func (h *LayerHandler) Export(w http.ResponseWriter, r *http.Request) {
	key, ok := h.resolve(w, r)
	if !ok {
		return
	}
	q, ok := queryFromRequest(w, r)
	if !ok {
		return
	}

	layer, _ := h.svc.Layer(key)
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}

	if format == "gpkg" {
		path, err := h.svc.ExportGeoPackage(r.Context(), key, q)
		if err != nil {
			log.Printf("Failed to export %s: %v", key, err)
			writeServiceError(w, "Failed to export records", err, http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/geopackage+sqlite3")
		w.Header().Set("Content-Disposition", "attachment; filename="+layer.Name+".gpkg")
		http.ServeFile(w, r, path)
		return
	}

	contentType := "application/json"
	switch format {
	case "yaml":
		contentType = "application/x-yaml"
	case "geojson":
		contentType = "application/geo+json"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", "attachment; filename="+layer.Name+"."+format)

	if err := h.svc.ExportRecords(r.Context(), key, format, q, w); err != nil {
		log.Printf("Failed to export %s: %v", key, err)
		// Headers are already out; the truncated body is all we can signal.
		return
	}
}

func (h *LayerHandler) resolve(w http.ResponseWriter, r *http.Request) (string, bool) {
	key, err := h.svc.ResolveLayer(r.PathValue("layer"))
	if err != nil {
		writeError(w, "Layer not found", err.Error(), http.StatusNotFound)
		return "", false
	}
	return key, true
}

// queryFromRequest builds a query from URL parameters; the predicate
// form of a query arrives by POST instead.
func queryFromRequest(w http.ResponseWriter, r *http.Request) (service.RecordQuery, bool) {
	q := service.RecordQuery{}
	params := r.URL.Query()

	if v := params.Get("exclude"); v != "" {
		q.Exclude = strings.Split(v, ",")
	}
	q.GroupBy = params.Get("group_by")
	q.OrderBy = params.Get("order_by")

	if v := params.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, "Invalid limit", err.Error(), http.StatusBadRequest)
			return q, false
		}
		q.Limit = limit
	}
	if v := params.Get("srid"); v != "" {
		srid, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, "Invalid srid", err.Error(), http.StatusBadRequest)
			return q, false
		}
		q.SRID = srid
	}
	if v := params.Get("geometry"); v != "" {
		format, err := pgquery.ParseGeometryFormat(v)
		if err != nil {
			writeError(w, "Invalid geometry format", err.Error(), http.StatusBadRequest)
			return q, false
		}
		q.Format = format
	}
	return q, true
}
