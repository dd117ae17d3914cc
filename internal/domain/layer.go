// Package domain defines the core data types for Strata: spatial layers,
// named counters, and operation reports.
package domain

import (
	"fmt"
	"strings"

	"strata/internal/pgquery"
)

// geometryTypes is the closed set of PostGIS geometry types a layer may
// declare.
var geometryTypes = map[string]bool{
	"POINT":              true,
	"LINESTRING":         true,
	"POLYGON":            true,
	"MULTIPOINT":         true,
	"MULTILINESTRING":    true,
	"MULTIPOLYGON":       true,
	"GEOMETRYCOLLECTION": true,
	"GEOMETRY":           true,
}

// ColumnDef is one non-geometry column of a layer table.
type ColumnDef struct {
	Name       string `yaml:"name" json:"name"`
	Definition string `yaml:"definition" json:"definition"`
}

// Layer describes one spatial table: where it lives, its attribute
// columns, and its geometry column with storage SRID.
type Layer struct {
	Schema         string      `yaml:"schema" json:"schema"`
	Name           string      `yaml:"name" json:"name"`
	Description    string      `yaml:"description,omitempty" json:"description,omitempty"`
	SRID           int         `yaml:"srid" json:"srid"`
	GeometryColumn string      `yaml:"geometry_column" json:"geometry_column"`
	GeometryType   string      `yaml:"geometry_type" json:"geometry_type"`
	Columns        []ColumnDef `yaml:"columns" json:"columns"`
}

// Table returns the layer's schema-qualified table name.
func (l Layer) Table() pgquery.TableName {
	return pgquery.TableName{Schema: l.Schema, Name: l.Name}
}

// Key returns the "schema.name" identity used to look layers up.
func (l Layer) Key() string {
	return l.Schema + "." + l.Name
}

// Validate checks identifiers, the SRID, and the geometry declaration.
func (l Layer) Validate() error {
	if err := l.Table().Validate(); err != nil {
		return err
	}
	if l.SRID <= 0 {
		return fmt.Errorf("layer %s: srid must be positive, got %d", l.Key(), l.SRID)
	}
	if !pgquery.ValidIdentifier(l.GeometryColumn) {
		return fmt.Errorf("layer %s: invalid geometry column %q", l.Key(), l.GeometryColumn)
	}
	if !geometryTypes[strings.ToUpper(l.GeometryType)] {
		return fmt.Errorf("layer %s: unknown geometry type %q", l.Key(), l.GeometryType)
	}
	if len(l.Columns) == 0 {
		return fmt.Errorf("layer %s: at least one attribute column is required", l.Key())
	}

	seen := make(map[string]bool, len(l.Columns))
	for _, col := range l.Columns {
		if !pgquery.ValidIdentifier(col.Name) {
			return fmt.Errorf("layer %s: invalid column name %q", l.Key(), col.Name)
		}
		if col.Name == l.GeometryColumn {
			return fmt.Errorf("layer %s: column %q collides with the geometry column", l.Key(), col.Name)
		}
		if seen[col.Name] {
			return fmt.Errorf("layer %s: duplicate column %q", l.Key(), col.Name)
		}
		seen[col.Name] = true
		if strings.TrimSpace(col.Definition) == "" {
			return fmt.Errorf("layer %s: column %q has no definition", l.Key(), col.Name)
		}
	}
	return nil
}

// Definition renders the CREATE TABLE column list, geometry column last.
func (l Layer) Definition() string {
	parts := make([]string, 0, len(l.Columns)+1)
	for _, col := range l.Columns {
		parts = append(parts, col.Name+" "+col.Definition)
	}
	parts = append(parts, fmt.Sprintf("%s geometry(%s,%d)",
		l.GeometryColumn, strings.ToUpper(l.GeometryType), l.SRID))
	return strings.Join(parts, ", ")
}
