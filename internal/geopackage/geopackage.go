// Package geopackage writes query results into GeoPackage files for
// offline GIS use.
//
// The container follows the OGC GeoPackage table layout (gpkg_contents,
// gpkg_spatial_ref_sys, gpkg_geometry_columns) with one feature table
// per exported layer. Geometry values are stored as WKT text rather
// than the GeoPackage binary encoding; ogr2ogr converts the file to the
// binary form when a consumer insists on it.
package geopackage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"strata/internal/domain"
	"strata/internal/pgquery"
)

// File is an open GeoPackage being written.
type File struct {
	db *sql.DB
}

// Create opens path as a GeoPackage and writes the required metadata
// tables. An existing file at path is reused with its tables intact.
func Create(path string) (*File, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open geopackage: %w", err)
	}

	f := &File{db: db}
	if err := f.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare geopackage: %w", err)
	}
	return f, nil
}

func (f *File) migrate() error {
	schema := `
	PRAGMA application_id = 1196444487;
	PRAGMA user_version = 10300;

	CREATE TABLE IF NOT EXISTS gpkg_spatial_ref_sys (
		srs_name TEXT NOT NULL,
		srs_id INTEGER PRIMARY KEY,
		organization TEXT NOT NULL,
		organization_coordsys_id INTEGER NOT NULL,
		definition TEXT NOT NULL,
		description TEXT
	);

	CREATE TABLE IF NOT EXISTS gpkg_contents (
		table_name TEXT PRIMARY KEY,
		data_type TEXT NOT NULL,
		identifier TEXT UNIQUE,
		description TEXT DEFAULT '',
		last_change TEXT NOT NULL,
		min_x REAL, min_y REAL, max_x REAL, max_y REAL,
		srs_id INTEGER,
		FOREIGN KEY (srs_id) REFERENCES gpkg_spatial_ref_sys(srs_id)
	);

	CREATE TABLE IF NOT EXISTS gpkg_geometry_columns (
		table_name TEXT NOT NULL,
		column_name TEXT NOT NULL,
		geometry_type_name TEXT NOT NULL,
		srs_id INTEGER NOT NULL,
		z INTEGER NOT NULL,
		m INTEGER NOT NULL,
		PRIMARY KEY (table_name, column_name)
	);
	`
	if _, err := f.db.Exec(schema); err != nil {
		return err
	}

	// GeoPackage requires rows for the two undefined reference systems.
	if err := f.ensureSRS(0, "Undefined geographic SRS", "NONE", 0); err != nil {
		return err
	}
	return f.ensureSRS(-1, "Undefined cartesian SRS", "NONE", -1)
}

func (f *File) ensureSRS(id int, name, organization string, code int) error {
	_, err := f.db.Exec(`
		INSERT OR IGNORE INTO gpkg_spatial_ref_sys
		(srs_name, srs_id, organization, organization_coordsys_id, definition)
		VALUES (?, ?, ?, ?, 'undefined')`,
		name, id, organization, code)
	return err
}

// AddLayer writes one feature table holding the layer's records. Each
// record's geometry value must already be WKT, i.e. the rows come from
// a query rendered with the text geometry format.
func (f *File) AddLayer(layer domain.Layer, records []pgquery.Row) error {
	if err := layer.Validate(); err != nil {
		return err
	}
	srsName := fmt.Sprintf("EPSG:%d", layer.SRID)
	if err := f.ensureSRS(layer.SRID, srsName, "EPSG", layer.SRID); err != nil {
		return fmt.Errorf("failed to register srs: %w", err)
	}

	tx, err := f.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	create, names := featureTable(layer)
	if _, err := tx.Exec(create); err != nil {
		return fmt.Errorf("failed to create feature table: %w", err)
	}

	if _, err := tx.Exec(`
		INSERT OR REPLACE INTO gpkg_contents
		(table_name, data_type, identifier, description, last_change, srs_id)
		VALUES (?, 'features', ?, ?, ?, ?)`,
		layer.Name, layer.Name, layer.Description,
		time.Now().UTC().Format(time.RFC3339), layer.SRID); err != nil {
		return fmt.Errorf("failed to register contents: %w", err)
	}

	if _, err := tx.Exec(`
		INSERT OR REPLACE INTO gpkg_geometry_columns
		(table_name, column_name, geometry_type_name, srs_id, z, m)
		VALUES (?, ?, ?, ?, 0, 0)`,
		layer.Name, layer.GeometryColumn,
		strings.ToUpper(layer.GeometryType), layer.SRID); err != nil {
		return fmt.Errorf("failed to register geometry column: %w", err)
	}

	stmt, err := tx.Prepare(insertStatement(layer.Name, names))
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		args := make([]any, len(names))
		for i, name := range names {
			args[i] = rec[name]
		}
		if _, err := stmt.Exec(args...); err != nil {
			return fmt.Errorf("failed to insert feature: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying database file.
func (f *File) Close() error {
	return f.db.Close()
}

// Write exports one layer's records into the GeoPackage at path.
func Write(path string, layer domain.Layer, records []pgquery.Row) error {
	f, err := Create(path)
	if err != nil {
		return err
	}
	if err := f.AddLayer(layer, records); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// featureTable renders the CREATE TABLE for a layer and returns the
// column names inserts bind, geometry last. A declared primary key
// column becomes the required integer primary key; without one an fid
// column is prepended.
func featureTable(layer domain.Layer) (string, []string) {
	defs := make([]string, 0, len(layer.Columns)+2)
	names := make([]string, 0, len(layer.Columns)+1)

	hasPK := false
	for _, col := range layer.Columns {
		if isPrimaryKey(col.Definition) {
			defs = append(defs, quote(col.Name)+" INTEGER PRIMARY KEY AUTOINCREMENT")
			hasPK = true
		} else {
			defs = append(defs, quote(col.Name)+" "+sqliteType(col.Definition))
		}
		names = append(names, col.Name)
	}
	if !hasPK {
		defs = append([]string{`"fid" INTEGER PRIMARY KEY AUTOINCREMENT`}, defs...)
	}
	defs = append(defs, quote(layer.GeometryColumn)+" TEXT")
	names = append(names, layer.GeometryColumn)

	create := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)",
		quote(layer.Name), strings.Join(defs, ", "))
	return create, names
}

func insertStatement(table string, names []string) string {
	quoted := make([]string, len(names))
	marks := make([]string, len(names))
	for i, name := range names {
		quoted[i] = quote(name)
		marks[i] = "?"
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quote(table), strings.Join(quoted, ","), strings.Join(marks, ","))
}

// sqliteType maps a postgres column definition to a sqlite storage type.
func sqliteType(definition string) string {
	def := strings.ToLower(definition)
	switch {
	case strings.Contains(def, "serial"),
		strings.Contains(def, "int"),
		strings.Contains(def, "bool"):
		return "INTEGER"
	case strings.Contains(def, "double"),
		strings.Contains(def, "real"),
		strings.Contains(def, "numeric"),
		strings.Contains(def, "decimal"),
		strings.Contains(def, "float"):
		return "REAL"
	default:
		return "TEXT"
	}
}

func isPrimaryKey(definition string) bool {
	return strings.Contains(strings.ToLower(definition), "primary key")
}

func quote(name string) string {
	return `"` + name + `"`
}
