package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"strata/internal/core/probe"
	"strata/internal/domain"
	"strata/internal/pgquery"
	"strata/internal/repository/postgres"
)

func testLayer() domain.Layer {
	return domain.Layer{
		Schema:         "inventory",
		Name:           "assets",
		SRID:           25831,
		GeometryColumn: "geom",
		GeometryType:   "point",
		Columns: []domain.ColumnDef{
			{Name: "gid", Definition: "serial primary key"},
			{Name: "name", Definition: "varchar"},
			{Name: "height", Definition: "double precision"},
		},
	}
}

func parcelLayer() domain.Layer {
	return domain.Layer{
		Schema:         "inventory",
		Name:           "parcels",
		SRID:           25831,
		GeometryColumn: "geom",
		GeometryType:   "polygon",
		Columns: []domain.ColumnDef{
			{Name: "gid", Definition: "serial primary key"},
			{Name: "name", Definition: "varchar"},
		},
	}
}

func newLayerService(opts Options, conns ...*fakeConn) (*LayerService, chan Event) {
	bus := NewEventBus()
	events := make(chan Event, 16)
	bus.Subscribe(events)
	return NewLayerService(sourceOf(conns...), bus, opts), events
}

func register(svc *LayerService, layers ...domain.Layer) {
	for _, layer := range layers {
		svc.layers[layer.Key()] = layer
	}
}

func TestApplyLayers(t *testing.T) {
	invalid := testLayer()
	invalid.Name = "bogus"
	invalid.SRID = 0

	conn := &fakeConn{replies: []reply{
		{row: &fakeRow{values: []any{false}}}, // assets does not exist
		{},                                    // create assets
		{row: &fakeRow{values: []any{true}}},  // parcels exists
	}}
	svc, events := newLayerService(Options{}, conn)

	report, err := svc.ApplyLayers(context.Background(), []domain.Layer{invalid, testLayer(), parcelLayer()})
	assertNoError(t, err)

	if !reflect.DeepEqual(report.Created, []string{"inventory.assets"}) {
		t.Errorf("created = %v, want [inventory.assets]", report.Created)
	}
	if !reflect.DeepEqual(report.Existing, []string{"inventory.parcels"}) {
		t.Errorf("existing = %v, want [inventory.parcels]", report.Existing)
	}
	if !reflect.DeepEqual(report.Failed, []string{"inventory.bogus"}) {
		t.Errorf("failed = %v, want [inventory.bogus]", report.Failed)
	}

	assertSQL(t, conn, 1, `create table "inventory"."assets" (gid serial primary key, name varchar, height double precision, geom geometry(POINT,25831))`)
	if len(conn.calls) != 3 {
		t.Errorf("issued %d statements, want 3", len(conn.calls))
	}
	if !conn.closed {
		t.Error("session not closed")
	}

	layers := svc.Layers()
	if len(layers) != 2 {
		t.Fatalf("registry has %d layers, want 2", len(layers))
	}
	if layers[0].Key() != "inventory.assets" || layers[1].Key() != "inventory.parcels" {
		t.Errorf("registry keys = %s, %s", layers[0].Key(), layers[1].Key())
	}
	if _, ok := svc.Layer("inventory.bogus"); ok {
		t.Error("invalid layer must not be registered")
	}

	ev := assertEvent(t, events, EventLayersApplied)
	if ev.Payload != report {
		t.Errorf("event payload = %v, want the apply report", ev.Payload)
	}
}

func TestApplyLayersReplacesRegistry(t *testing.T) {
	conn := &fakeConn{replies: []reply{
		{row: &fakeRow{values: []any{true}}},
	}}
	svc, _ := newLayerService(Options{}, conn)
	register(svc, parcelLayer())

	_, err := svc.ApplyLayers(context.Background(), []domain.Layer{testLayer()})
	assertNoError(t, err)

	if _, ok := svc.Layer("inventory.parcels"); ok {
		t.Error("stale layer survived the apply")
	}
	if _, ok := svc.Layer("inventory.assets"); !ok {
		t.Error("applied layer missing from registry")
	}
}

func TestRegisterLayers(t *testing.T) {
	// No scripted connections: registration must never touch the store.
	svc, events := newLayerService(Options{Mode: probe.ModeReadOnly})
	register(svc, parcelLayer())

	invalid := testLayer()
	invalid.Schema = "bad name"
	svc.RegisterLayers([]domain.Layer{testLayer(), invalid})

	if _, ok := svc.Layer("inventory.parcels"); ok {
		t.Error("stale layer survived the registration")
	}
	if _, ok := svc.Layer("inventory.assets"); !ok {
		t.Error("registered layer missing from registry")
	}
	if got := len(svc.Layers()); got != 1 {
		t.Errorf("registry holds %d layers, want 1", got)
	}
	assertNoEvent(t, events)
}

func TestApplyLayersNeedsSpatial(t *testing.T) {
	for _, mode := range []probe.Mode{probe.ModeReadOnly, probe.ModeBasic} {
		svc, events := newLayerService(Options{Mode: mode})
		_, err := svc.ApplyLayers(context.Background(), []domain.Layer{testLayer()})
		if !errors.Is(err, ErrSpatialDisabled) {
			t.Errorf("mode %s: err = %v, want ErrSpatialDisabled", mode, err)
		}
		assertNoEvent(t, events)
	}
}

func TestCreateLayer(t *testing.T) {
	t.Run("new table", func(t *testing.T) {
		conn := &fakeConn{replies: []reply{
			{row: &fakeRow{values: []any{false}}},
			{},
		}}
		svc, events := newLayerService(Options{}, conn)

		created, err := svc.CreateLayer(context.Background(), testLayer(), false)
		assertNoError(t, err)
		if !created {
			t.Error("created = false, want true")
		}
		if _, ok := svc.Layer("inventory.assets"); !ok {
			t.Error("layer not registered")
		}
		ev := assertEvent(t, events, EventLayerCreated)
		if ev.Subject != "inventory.assets" {
			t.Errorf("event subject = %q", ev.Subject)
		}
	})

	t.Run("existing table without drop", func(t *testing.T) {
		conn := &fakeConn{replies: []reply{
			{row: &fakeRow{values: []any{true}}},
		}}
		svc, events := newLayerService(Options{}, conn)

		created, err := svc.CreateLayer(context.Background(), testLayer(), false)
		assertNoError(t, err)
		if created {
			t.Error("created = true, want false")
		}
		if _, ok := svc.Layer("inventory.assets"); !ok {
			t.Error("layer must register over the existing table")
		}
		assertNoEvent(t, events)
	})

	t.Run("existing table with drop", func(t *testing.T) {
		conn := &fakeConn{replies: []reply{
			{row: &fakeRow{values: []any{true}}},
			{}, // drop
			{}, // create
		}}
		svc, events := newLayerService(Options{}, conn)

		created, err := svc.CreateLayer(context.Background(), testLayer(), true)
		assertNoError(t, err)
		if !created {
			t.Error("created = false, want true")
		}
		assertSQL(t, conn, 1, `drop table "inventory"."assets"`)
		assertEvent(t, events, EventLayerCreated)
	})

	t.Run("invalid layer", func(t *testing.T) {
		svc, events := newLayerService(Options{})
		layer := testLayer()
		layer.GeometryType = "circle"

		if _, err := svc.CreateLayer(context.Background(), layer, false); err == nil {
			t.Fatal("expected validation error")
		}
		assertNoEvent(t, events)
	})
}

func TestInsertRecord(t *testing.T) {
	write := RecordWrite{
		Fields: pgquery.Fields(
			pgquery.Field{Name: "name", Value: "well"},
			pgquery.Field{Name: "height", Value: 2.5},
			pgquery.Field{Name: "geom", Value: "POINT(1 2)"},
		),
		SRID:      4326,
		Returning: []string{"gid"},
	}

	conn := &fakeConn{replies: []reply{
		{rows: &fakeRows{fields: []string{"gid"}, rows: [][]any{{int64(7)}}}},
	}}
	svc, events := newLayerService(Options{}, conn)
	register(svc, testLayer())

	rows, err := svc.InsertRecord(context.Background(), "inventory.assets", write)
	assertNoError(t, err)

	assertSQL(t, conn, 0, `insert into "inventory"."assets" (name,height,geom) values ($1,$2,st_transform(st_geometryfromtext($3,4326),25831)) returning gid`)
	if !reflect.DeepEqual(conn.calls[0].args, []any{"well", 2.5, "POINT(1 2)"}) {
		t.Errorf("args = %v", conn.calls[0].args)
	}
	if len(rows) != 1 || rows[0]["gid"] != int64(7) {
		t.Errorf("rows = %v, want one row with gid 7", rows)
	}

	ev := assertEvent(t, events, EventRecordCreated)
	if ev.Subject != "inventory.assets" {
		t.Errorf("event subject = %q", ev.Subject)
	}
}

func TestInsertRecordInStorageSRID(t *testing.T) {
	write := RecordWrite{
		Fields: pgquery.Fields(
			pgquery.Field{Name: "name", Value: "well"},
			pgquery.Field{Name: "geom", Value: "POINT(1 2)"},
		),
	}

	conn := &fakeConn{}
	svc, _ := newLayerService(Options{}, conn)
	register(svc, testLayer())

	_, err := svc.InsertRecord(context.Background(), "inventory.assets", write)
	assertNoError(t, err)

	// No SRID on the write means the text is already in the layer's SRID.
	assertSQL(t, conn, 0, `insert into "inventory"."assets" (name,geom) values ($1,st_geometryfromtext($2,25831))`)
}

func TestInsertRecordErrors(t *testing.T) {
	t.Run("read-only mode", func(t *testing.T) {
		svc, events := newLayerService(Options{Mode: probe.ModeReadOnly})
		register(svc, testLayer())

		_, err := svc.InsertRecord(context.Background(), "inventory.assets", RecordWrite{
			Fields: pgquery.Fields(pgquery.Field{Name: "name", Value: "well"}),
		})
		if !errors.Is(err, ErrReadOnly) {
			t.Errorf("err = %v, want ErrReadOnly", err)
		}
		assertNoEvent(t, events)
	})

	t.Run("unknown layer", func(t *testing.T) {
		svc, _ := newLayerService(Options{})
		_, err := svc.InsertRecord(context.Background(), "inventory.assets", RecordWrite{
			Fields: pgquery.Fields(pgquery.Field{Name: "name", Value: "well"}),
		})
		if !errors.Is(err, ErrLayerNotFound) {
			t.Errorf("err = %v, want ErrLayerNotFound", err)
		}
	})

	t.Run("no fields", func(t *testing.T) {
		svc, _ := newLayerService(Options{})
		register(svc, testLayer())

		_, err := svc.InsertRecord(context.Background(), "inventory.assets", RecordWrite{})
		if !errors.Is(err, pgquery.ErrEmptyFieldSet) {
			t.Errorf("err = %v, want ErrEmptyFieldSet", err)
		}
	})
}

func TestUpdateRecords(t *testing.T) {
	where, err := pgquery.NewPredicate("gid = $1", 7)
	assertNoError(t, err)

	conn := &fakeConn{replies: []reply{
		{tag: tag("UPDATE 3")},
	}}
	svc, events := newLayerService(Options{}, conn)
	register(svc, testLayer())

	count, err := svc.UpdateRecords(context.Background(), "inventory.assets", RecordWrite{
		Fields: pgquery.Fields(pgquery.Field{Name: "name", Value: "renamed"}),
	}, where)
	assertNoError(t, err)

	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}
	assertSQL(t, conn, 0, `update "inventory"."assets" set (name) = row($1) where gid = $2`)
	if !reflect.DeepEqual(conn.calls[0].args, []any{"renamed", 7}) {
		t.Errorf("args = %v", conn.calls[0].args)
	}

	ev := assertEvent(t, events, EventRecordsUpdated)
	payload := ev.Payload.(map[string]any)
	if payload["count"] != int64(3) {
		t.Errorf("event count = %v, want 3", payload["count"])
	}
}

func TestDeleteRecords(t *testing.T) {
	conn := &fakeConn{replies: []reply{
		{tag: tag("DELETE 5")},
	}}
	svc, events := newLayerService(Options{}, conn)
	register(svc, testLayer())

	count, err := svc.DeleteRecords(context.Background(), "inventory.assets", nil)
	assertNoError(t, err)

	if count != 5 {
		t.Errorf("count = %d, want 5", count)
	}
	assertSQL(t, conn, 0, `delete from "inventory"."assets"`)
	assertEvent(t, events, EventRecordsDeleted)
}

func TestDeleteRecordsWithFiles(t *testing.T) {
	base := t.TempDir()
	path := filepath.Join(base, "a.jpg")
	if err := os.WriteFile(path, []byte("img"), 0o644); err != nil {
		t.Fatal(err)
	}

	conn := &fakeConn{replies: []reply{
		{rows: &fakeRows{fields: []string{"photo"}, rows: [][]any{{"a.jpg"}, {"b.jpg"}}}},
		{tag: tag("DELETE 2")},
	}}
	svc, events := newLayerService(Options{AttachmentBase: base}, conn)
	register(svc, testLayer())

	report, err := svc.DeleteRecordsWithFiles(context.Background(), "inventory.assets", "photo", nil)
	assertNoError(t, err)

	assertSQL(t, conn, 0, `select photo from "inventory"."assets"`)
	assertSQL(t, conn, 1, `delete from "inventory"."assets"`)

	if report.RowsDeleted != 2 {
		t.Errorf("rows deleted = %d, want 2", report.RowsDeleted)
	}
	if !reflect.DeepEqual(report.Deleted, []string{"a.jpg"}) {
		t.Errorf("deleted = %v, want [a.jpg]", report.Deleted)
	}
	if !reflect.DeepEqual(report.NotDeleted, []string{"b.jpg"}) {
		t.Errorf("not deleted = %v, want [b.jpg]", report.NotDeleted)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("attachment file still on disk")
	}

	ev := assertEvent(t, events, EventRecordsDeleted)
	if ev.Payload != report {
		t.Errorf("event payload = %v, want the delete report", ev.Payload)
	}
}

func columnCatalog() *fakeRows {
	return &fakeRows{
		fields: []string{"column_name"},
		rows:   [][]any{{"gid"}, {"name"}, {"height"}, {"geom"}},
	}
}

func TestQueryRecords(t *testing.T) {
	cell := `[{"gid":1,"name":"well","height":2.5,"geom":{"type":"Point","coordinates":[1,2]}}]`
	conn := &fakeConn{replies: []reply{
		{rows: columnCatalog()},
		{row: &fakeRow{values: []any{cell}}},
	}}
	svc, _ := newLayerService(Options{}, conn)
	register(svc, testLayer())

	rows, err := svc.QueryRecords(context.Background(), "inventory.assets", RecordQuery{})
	assertNoError(t, err)

	assertSQL(t, conn, 1, `SELECT array_to_json(array_agg(records)) FROM (select gid,name,height,st_asgeojson(geom) as geom from "inventory"."assets" limit 100) as records`)
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	if rows[0]["name"] != "well" {
		t.Errorf("name = %v, want well", rows[0]["name"])
	}
	// The aliased geometry expression keys the value under the column name.
	if _, ok := rows[0]["geom"].(map[string]any); !ok {
		t.Errorf("geom = %v (%T), want decoded GeoJSON object", rows[0]["geom"], rows[0]["geom"])
	}
}

func TestQueryRecordsTextFormat(t *testing.T) {
	cell := `[{"gid":1,"name":"well","geom":"POINT(1 2)"}]`
	conn := &fakeConn{replies: []reply{
		{rows: columnCatalog()},
		{row: &fakeRow{values: []any{cell}}},
	}}
	svc, _ := newLayerService(Options{}, conn)
	register(svc, testLayer())

	rows, err := svc.QueryRecords(context.Background(), "inventory.assets", RecordQuery{
		Exclude: []string{"height"},
		Format:  pgquery.FormatText,
		SRID:    4326,
		Limit:   postgres.NoLimit,
	})
	assertNoError(t, err)

	assertSQL(t, conn, 1, `SELECT array_to_json(array_agg(records)) FROM (select gid,name,st_astext(st_transform(geom,4326)) as geom from "inventory"."assets") as records`)
	if rows[0]["geom"] != "POINT(1 2)" {
		t.Errorf("geom = %v, want WKT text", rows[0]["geom"])
	}
}

func TestQueryRecordsReadOnlyMode(t *testing.T) {
	conn := &fakeConn{replies: []reply{
		{rows: columnCatalog()},
		{row: &fakeRow{values: []any{`[]`}}},
	}}
	svc, _ := newLayerService(Options{Mode: probe.ModeReadOnly}, conn)
	register(svc, testLayer())

	rows, err := svc.QueryRecords(context.Background(), "inventory.assets", RecordQuery{})
	assertNoError(t, err)
	if len(rows) != 0 {
		t.Errorf("got %d rows, want 0", len(rows))
	}
}

func TestRecordExists(t *testing.T) {
	conn := &fakeConn{replies: []reply{
		{row: &fakeRow{values: []any{true}}},
	}}
	svc, _ := newLayerService(Options{}, conn)
	register(svc, testLayer())

	exists, err := svc.RecordExists(context.Background(), "inventory.assets", "name", "well")
	assertNoError(t, err)
	if !exists {
		t.Error("exists = false, want true")
	}
	assertSQL(t, conn, 0, `SELECT exists (SELECT name FROM "inventory"."assets" WHERE name = $1 LIMIT 1)`)
}

func TestColumns(t *testing.T) {
	conn := &fakeConn{replies: []reply{
		{rows: columnCatalog()},
	}}
	svc, _ := newLayerService(Options{}, conn)
	register(svc, testLayer())

	cols, err := svc.Columns(context.Background(), "inventory.assets", RecordQuery{})
	assertNoError(t, err)

	want := []string{"gid", "name", "height", "st_asgeojson(geom) as geom"}
	if !reflect.DeepEqual(cols, want) {
		t.Errorf("columns = %v, want %v", cols, want)
	}
}

func TestExportRecordsGeoJSON(t *testing.T) {
	cell := `[{"gid":1,"name":"well","height":2.5,"geom":{"type":"Point","coordinates":[1,2]}}]`
	conn := &fakeConn{replies: []reply{
		{rows: columnCatalog()},
		{row: &fakeRow{values: []any{cell}}},
	}}
	svc, _ := newLayerService(Options{}, conn)
	register(svc, testLayer())

	var buf strings.Builder
	// Text format on the query must be overridden by the geojson target.
	err := svc.ExportRecords(context.Background(), "inventory.assets", "geojson", RecordQuery{Format: pgquery.FormatText}, &buf)
	assertNoError(t, err)

	if !strings.Contains(conn.calls[1].sql, "st_asgeojson(geom) as geom") {
		t.Errorf("select = %q, want geojson geometry rendering", conn.calls[1].sql)
	}
	out := buf.String()
	if !strings.Contains(out, `"FeatureCollection"`) || !strings.Contains(out, `"coordinates"`) {
		t.Errorf("output = %s", out)
	}
}

func TestExportRecordsUnknownFormat(t *testing.T) {
	svc, _ := newLayerService(Options{})
	register(svc, testLayer())

	var buf strings.Builder
	err := svc.ExportRecords(context.Background(), "inventory.assets", "shapefile", RecordQuery{}, &buf)
	if err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestExportGeoPackage(t *testing.T) {
	cell := `[{"gid":1,"name":"well","height":2.5,"geom":"POINT(1 2)"}]`
	conn := &fakeConn{replies: []reply{
		{rows: columnCatalog()},
		{row: &fakeRow{values: []any{cell}}},
	}}
	svc, _ := newLayerService(Options{ExportDir: t.TempDir()}, conn)
	register(svc, testLayer())

	path, err := svc.ExportGeoPackage(context.Background(), "inventory.assets", RecordQuery{})
	assertNoError(t, err)

	if !strings.Contains(conn.calls[1].sql, "st_astext(geom) as geom") {
		t.Errorf("select = %q, want WKT geometry rendering", conn.calls[1].sql)
	}
	name := filepath.Base(path)
	if !strings.HasPrefix(name, "assets-") || !strings.HasSuffix(name, ".gpkg") {
		t.Errorf("file name = %q", name)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("export file missing: %v", err)
	}
}

func TestResolveLayer(t *testing.T) {
	survey := testLayer()
	survey.Schema = "survey"

	svc, _ := newLayerService(Options{})
	register(svc, testLayer(), parcelLayer(), survey)

	t.Run("qualified key", func(t *testing.T) {
		key, err := svc.ResolveLayer("inventory.assets")
		assertNoError(t, err)
		if key != "inventory.assets" {
			t.Errorf("key = %q", key)
		}
	})

	t.Run("unique bare name", func(t *testing.T) {
		key, err := svc.ResolveLayer("parcels")
		assertNoError(t, err)
		if key != "inventory.parcels" {
			t.Errorf("key = %q", key)
		}
	})

	t.Run("ambiguous bare name", func(t *testing.T) {
		if _, err := svc.ResolveLayer("assets"); !errors.Is(err, ErrLayerNotFound) {
			t.Errorf("err = %v, want ErrLayerNotFound", err)
		}
	})

	t.Run("unknown reference", func(t *testing.T) {
		if _, err := svc.ResolveLayer("nowhere"); !errors.Is(err, ErrLayerNotFound) {
			t.Errorf("err = %v, want ErrLayerNotFound", err)
		}
		if _, err := svc.ResolveLayer("other.assets"); !errors.Is(err, ErrLayerNotFound) {
			t.Errorf("err = %v, want ErrLayerNotFound", err)
		}
	})
}

func assertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func assertSQL(t *testing.T, conn *fakeConn, idx int, want string) {
	t.Helper()
	if idx >= len(conn.calls) {
		t.Fatalf("only %d statements issued, want one at index %d", len(conn.calls), idx)
	}
	if got := conn.calls[idx].sql; got != want {
		t.Fatalf("statement %d = %q, want %q", idx, got, want)
	}
}

func assertEvent(t *testing.T, events chan Event, want EventType) Event {
	t.Helper()
	select {
	case ev := <-events:
		if ev.Type != want {
			t.Fatalf("event type = %q, want %q", ev.Type, want)
		}
		return ev
	default:
		t.Fatalf("no %q event published", want)
		return Event{}
	}
}

func assertNoEvent(t *testing.T, events chan Event) {
	t.Helper()
	select {
	case ev := <-events:
		t.Fatalf("unexpected event %q", ev.Type)
	default:
	}
}
