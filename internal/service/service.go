package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"strata/internal/codec"
	"strata/internal/core/probe"
	"strata/internal/domain"
	"strata/internal/geopackage"
	"strata/internal/pgquery"
	"strata/internal/repository/postgres"
)

// ErrLayerNotFound is returned for operations on an unregistered layer.
var ErrLayerNotFound = errors.New("layer not found")

// ErrReadOnly is returned for writes while the store runs read-only.
var ErrReadOnly = errors.New("store is read-only")

// ErrSpatialDisabled is returned for layer DDL when the database has no
// spatial support.
var ErrSpatialDisabled = errors.New("spatial support unavailable")

// Options configures the services. An empty Mode means spatial, i.e. no
// restriction; the resolved probe mode narrows what callers may do.
type Options struct {
	Mode           probe.Mode
	LogQueries     bool
	AttachmentBase string
	ExportDir      string
}

func (o Options) allowWrite() error {
	if !o.Mode.Allows(probe.ModeBasic) {
		return ErrReadOnly
	}
	return nil
}

func (o Options) allowSpatial() error {
	if !o.Mode.Allows(probe.ModeSpatial) {
		return ErrSpatialDisabled
	}
	return nil
}

func normalizeOptions(opts Options) Options {
	if opts.Mode == "" {
		opts.Mode = probe.ModeSpatial
	}
	return opts
}

// withExecutor runs fn with an executor over a fresh session and closes
// the session on every path.
func withExecutor(ctx context.Context, source postgres.SessionSource, opts Options, fn func(*postgres.Executor) error) error {
	sess, err := source.Session(ctx)
	if err != nil {
		return err
	}
	defer sess.Close(ctx)

	execOpts := postgres.DefaultExecutorOptions()
	execOpts.LogQueries = opts.LogQueries
	return fn(postgres.NewExecutor(sess, execOpts))
}

// LayerService provides business logic for spatial layers and their
// records. Every call runs on its own pooled session.
type LayerService struct {
	source   postgres.SessionSource
	eventBus *EventBus
	opts     Options

	mu     sync.RWMutex
	layers map[string]domain.Layer
}

// NewLayerService creates a new layer service
func NewLayerService(source postgres.SessionSource, eventBus *EventBus, opts Options) *LayerService {
	return &LayerService{
		source:   source,
		eventBus: eventBus,
		opts:     normalizeOptions(opts),
		layers:   make(map[string]domain.Layer),
	}
}

// Layers returns the registered layers sorted by key.
func (s *LayerService) Layers() []domain.Layer {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Layer, 0, len(s.layers))
	for _, layer := range s.layers {
		out = append(out, layer)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// Layer looks a layer up by its schema.name key.
func (s *LayerService) Layer(key string) (domain.Layer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	layer, ok := s.layers[key]
	return layer, ok
}

func (s *LayerService) layerFor(key string) (domain.Layer, error) {
	layer, ok := s.Layer(key)
	if !ok {
		return domain.Layer{}, fmt.Errorf("%w: %s", ErrLayerNotFound, key)
	}
	return layer, nil
}

// ApplyReport summarizes one pass over the declared layers.
type ApplyReport struct {
	Created  []string `json:"created,omitempty"`
	Existing []string `json:"existing,omitempty"`
	Failed   []string `json:"failed,omitempty"`
}

// ApplyLayers ensures every declared layer's table exists and replaces
// the registry with the given set. A layer that cannot be applied is
// logged and reported without blocking the rest.
func (s *LayerService) ApplyLayers(ctx context.Context, layers []domain.Layer) (*ApplyReport, error) {
	if err := s.opts.allowSpatial(); err != nil {
		return nil, err
	}

	report := &ApplyReport{}
	next := make(map[string]domain.Layer, len(layers))

	err := withExecutor(ctx, s.source, s.opts, func(exec *postgres.Executor) error {
		for _, layer := range layers {
			if err := layer.Validate(); err != nil {
				log.Printf("Skipping layer %s: %v", layer.Key(), err)
				report.Failed = append(report.Failed, layer.Key())
				continue
			}
			created, err := exec.CreateTable(ctx, layer.Table(), layer.Definition(), false)
			if err != nil {
				log.Printf("Failed to apply layer %s: %v", layer.Key(), err)
				report.Failed = append(report.Failed, layer.Key())
				continue
			}
			if created {
				report.Created = append(report.Created, layer.Key())
			} else {
				report.Existing = append(report.Existing, layer.Key())
			}
			next[layer.Key()] = layer
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.layers = next
	s.mu.Unlock()

	s.eventBus.Publish(Event{
		Type:    EventLayersApplied,
		Payload: report,
	})

	return report, nil
}

// RegisterLayers replaces the registry without touching the database,
// so reads over existing tables keep working when the mode forbids DDL.
// Invalid layers are logged and skipped.
func (s *LayerService) RegisterLayers(layers []domain.Layer) {
	next := make(map[string]domain.Layer, len(layers))
	for _, layer := range layers {
		if err := layer.Validate(); err != nil {
			log.Printf("Skipping layer %s: %v", layer.Key(), err)
			continue
		}
		next[layer.Key()] = layer
	}

	s.mu.Lock()
	s.layers = next
	s.mu.Unlock()
}

// CreateLayer creates one layer's table and registers it. With drop set
// an existing table is replaced; otherwise the layer is registered over
// the table as it stands and the result is false.
func (s *LayerService) CreateLayer(ctx context.Context, layer domain.Layer, drop bool) (bool, error) {
	if err := s.opts.allowSpatial(); err != nil {
		return false, err
	}
	if err := layer.Validate(); err != nil {
		return false, err
	}

	var created bool
	err := withExecutor(ctx, s.source, s.opts, func(exec *postgres.Executor) error {
		var err error
		created, err = exec.CreateTable(ctx, layer.Table(), layer.Definition(), drop)
		return err
	})
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	s.layers[layer.Key()] = layer
	s.mu.Unlock()

	if created {
		s.eventBus.Publish(Event{
			Type:    EventLayerCreated,
			Subject: layer.Key(),
			Payload: layer,
		})
	}
	return created, nil
}

// RecordWrite carries the values of one record write. SRID is the
// spatial reference of the incoming geometry text; zero means the
// geometry is already in the layer's storage SRID.
type RecordWrite struct {
	Fields    []pgquery.Field
	SRID      int
	Returning []string
}

// geometryWrite builds the write-path geometry descriptor for a layer.
func geometryWrite(layer domain.Layer, srid int) *pgquery.GeometryWriteOptions {
	if srid == 0 {
		srid = layer.SRID
	}
	return &pgquery.GeometryWriteOptions{
		Column:     layer.GeometryColumn,
		SRID:       srid,
		TargetSRID: layer.SRID,
	}
}

// InsertRecord inserts one record into a layer. Returned columns, when
// requested, come back decoded.
func (s *LayerService) InsertRecord(ctx context.Context, layerKey string, write RecordWrite) ([]pgquery.Row, error) {
	if err := s.opts.allowWrite(); err != nil {
		return nil, err
	}
	layer, err := s.layerFor(layerKey)
	if err != nil {
		return nil, err
	}

	fvs, err := pgquery.NewFieldValueSet(write.Fields, nil, geometryWrite(layer, write.SRID))
	if err != nil {
		return nil, err
	}

	var rows []pgquery.Row
	err = withExecutor(ctx, s.source, s.opts, func(exec *postgres.Executor) error {
		rows, err = exec.Insert(ctx, layer.Table(), fvs, write.Returning)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.eventBus.Publish(Event{
		Type:    EventRecordCreated,
		Subject: layer.Key(),
		Payload: map[string]any{"layer": layer.Key(), "returned": rows},
	})
	return rows, nil
}

// UpdateRecords updates the layer rows matching where. A nil predicate
// updates every row.
func (s *LayerService) UpdateRecords(ctx context.Context, layerKey string, write RecordWrite, where *pgquery.Predicate) (int64, error) {
	if err := s.opts.allowWrite(); err != nil {
		return 0, err
	}
	layer, err := s.layerFor(layerKey)
	if err != nil {
		return 0, err
	}

	fvs, err := pgquery.NewFieldValueSet(write.Fields, nil, geometryWrite(layer, write.SRID))
	if err != nil {
		return 0, err
	}

	var count int64
	err = withExecutor(ctx, s.source, s.opts, func(exec *postgres.Executor) error {
		count, err = exec.Update(ctx, layer.Table(), fvs, where)
		return err
	})
	if err != nil {
		return 0, err
	}

	s.eventBus.Publish(Event{
		Type:    EventRecordsUpdated,
		Subject: layer.Key(),
		Payload: map[string]any{"layer": layer.Key(), "count": count},
	})
	return count, nil
}

// DeleteRecords deletes the layer rows matching where. A nil predicate
// deletes every row.
func (s *LayerService) DeleteRecords(ctx context.Context, layerKey string, where *pgquery.Predicate) (int64, error) {
	if err := s.opts.allowWrite(); err != nil {
		return 0, err
	}
	layer, err := s.layerFor(layerKey)
	if err != nil {
		return 0, err
	}

	var count int64
	err = withExecutor(ctx, s.source, s.opts, func(exec *postgres.Executor) error {
		count, err = exec.Delete(ctx, layer.Table(), where)
		return err
	})
	if err != nil {
		return 0, err
	}

	s.eventBus.Publish(Event{
		Type:    EventRecordsDeleted,
		Subject: layer.Key(),
		Payload: map[string]any{"layer": layer.Key(), "count": count},
	})
	return count, nil
}

// DeleteRecordsWithFiles deletes matching rows and removes the files
// named by fileColumn, resolved against the configured attachment base.
// File failures are recorded in the report, never fatal.
func (s *LayerService) DeleteRecordsWithFiles(ctx context.Context, layerKey, fileColumn string, where *pgquery.Predicate) (*domain.FileDeleteReport, error) {
	if err := s.opts.allowWrite(); err != nil {
		return nil, err
	}
	layer, err := s.layerFor(layerKey)
	if err != nil {
		return nil, err
	}

	var report *domain.FileDeleteReport
	err = withExecutor(ctx, s.source, s.opts, func(exec *postgres.Executor) error {
		report, err = exec.DeleteWithFiles(ctx, layer.Table(), where, fileColumn, s.opts.AttachmentBase)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.eventBus.Publish(Event{
		Type:    EventRecordsDeleted,
		Subject: layer.Key(),
		Payload: report,
	})
	return report, nil
}

// RecordQuery shapes a layer read.
type RecordQuery struct {
	Exclude []string
	Where   *pgquery.Predicate
	GroupBy string
	OrderBy string
	// Limit caps the row count; zero applies the store default and
	// postgres.NoLimit removes the cap.
	Limit int
	// Format renders the geometry column; empty means geojson.
	Format pgquery.GeometryFormat
	// SRID reprojects the geometry on read when non-zero.
	SRID int
}

// QueryRecords returns layer rows with the geometry column rendered per
// the query's format and keyed under its own column name.
func (s *LayerService) QueryRecords(ctx context.Context, layerKey string, q RecordQuery) ([]pgquery.Row, error) {
	layer, err := s.layerFor(layerKey)
	if err != nil {
		return nil, err
	}

	geo, err := readOptions(layer, q)
	if err != nil {
		return nil, err
	}

	var rows []pgquery.Row
	err = withExecutor(ctx, s.source, s.opts, func(exec *postgres.Executor) error {
		fields, err := readFields(ctx, exec, layer, q.Exclude, geo)
		if err != nil {
			return err
		}
		rows, err = exec.Select(ctx, layer.Table(), q.Where, postgres.SelectOptions{
			Fields:  fields,
			GroupBy: q.GroupBy,
			OrderBy: q.OrderBy,
			Limit:   q.Limit,
		})
		return err
	})
	return rows, err
}

// RecordExists reports whether any layer row has column equal to value.
func (s *LayerService) RecordExists(ctx context.Context, layerKey, column string, value any) (bool, error) {
	layer, err := s.layerFor(layerKey)
	if err != nil {
		return false, err
	}

	var exists bool
	err = withExecutor(ctx, s.source, s.opts, func(exec *postgres.Executor) error {
		exists, err = exec.ValueExists(ctx, layer.Table(), column, value)
		return err
	})
	return exists, err
}

// Columns returns the layer's rendered SELECT list for the query shape.
func (s *LayerService) Columns(ctx context.Context, layerKey string, q RecordQuery) ([]string, error) {
	layer, err := s.layerFor(layerKey)
	if err != nil {
		return nil, err
	}

	geo, err := readOptions(layer, q)
	if err != nil {
		return nil, err
	}

	var fields []string
	err = withExecutor(ctx, s.source, s.opts, func(exec *postgres.Executor) error {
		fields, err = readFields(ctx, exec, layer, q.Exclude, geo)
		return err
	})
	return fields, err
}

// ExportRecords streams the query result to w in the named codec
// format. GeoJSON forces geometry rendering to match the feature shape.
func (s *LayerService) ExportRecords(ctx context.Context, layerKey, format string, q RecordQuery, w io.Writer) error {
	layer, err := s.layerFor(layerKey)
	if err != nil {
		return err
	}

	if format == "geojson" {
		q.Format = pgquery.FormatGeoJSON
	}
	exporter, err := codec.ForFormat(format, layer.GeometryColumn)
	if err != nil {
		return err
	}

	rows, err := s.QueryRecords(ctx, layerKey, q)
	if err != nil {
		return err
	}
	return exporter.Export(rows, w)
}

// ExportGeoPackage writes the query result into a fresh GeoPackage file
// under the export directory and returns its path. Geometry is rendered
// as WKT, reprojected when the query asks for another SRID.
func (s *LayerService) ExportGeoPackage(ctx context.Context, layerKey string, q RecordQuery) (string, error) {
	layer, err := s.layerFor(layerKey)
	if err != nil {
		return "", err
	}

	q.Format = pgquery.FormatText
	rows, err := s.QueryRecords(ctx, layerKey, q)
	if err != nil {
		return "", err
	}
	if q.SRID != 0 {
		layer.SRID = q.SRID
	}

	dir := s.opts.ExportDir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}

	name := fmt.Sprintf("%s-%s.gpkg", layer.Name, uuid.NewString())
	path := filepath.Join(dir, name)
	if err := geopackage.Write(path, layer, rows); err != nil {
		return "", err
	}
	return path, nil
}

// readOptions builds the read-path geometry descriptor for a query.
func readOptions(layer domain.Layer, q RecordQuery) (*pgquery.GeometryReadOptions, error) {
	format := q.Format
	if format == "" {
		format = pgquery.FormatGeoJSON
	}
	return pgquery.NewGeometryReadOptions(layer.GeometryColumn, format, q.SRID)
}

// readFields resolves the SELECT list for a layer read: catalog columns
// minus exclusions, with the geometry expression aliased back to its
// column name so result keys stay stable across formats.
func readFields(ctx context.Context, exec *postgres.Executor, layer domain.Layer, exclude []string, geo *pgquery.GeometryReadOptions) ([]string, error) {
	columns, err := exec.ListColumns(ctx, layer.Table(), exclude, geo)
	if err != nil {
		return nil, err
	}

	expr := geo.Render()
	if expr == geo.Column() {
		return columns, nil
	}
	for i, col := range columns {
		if col == expr {
			columns[i] = expr + " as " + geo.Column()
		}
	}
	return columns, nil
}

// layerKeyOf normalizes a layer reference: both "schema.name" and a
// bare table name resolve, the latter only when unambiguous.
func (s *LayerService) layerKeyOf(ref string) (string, bool) {
	if strings.Contains(ref, ".") {
		_, ok := s.Layer(ref)
		return ref, ok
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	match := ""
	for key, layer := range s.layers {
		if layer.Name == ref {
			if match != "" {
				return "", false
			}
			match = key
		}
	}
	return match, match != ""
}

// ResolveLayer resolves a layer reference from a request path into its
// registry key.
func (s *LayerService) ResolveLayer(ref string) (string, error) {
	key, ok := s.layerKeyOf(ref)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrLayerNotFound, ref)
	}
	return key, nil
}
