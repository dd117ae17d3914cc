package pgquery

import "fmt"

// GeometryFormat selects how a geometry column is rendered in a SELECT list
type GeometryFormat string

const (
	// FormatRaw returns the stored geometry value (EWKB over the wire)
	FormatRaw GeometryFormat = "raw"
	// FormatText returns WKT via st_astext
	FormatText GeometryFormat = "text"
	// FormatGeoJSON returns GeoJSON via st_asgeojson
	FormatGeoJSON GeometryFormat = "geojson"
)

// ParseGeometryFormat converts a string to a GeometryFormat.
// Unknown values are an error; there is no default format.
func ParseGeometryFormat(s string) (GeometryFormat, error) {
	switch GeometryFormat(s) {
	case FormatRaw, FormatText, FormatGeoJSON:
		return GeometryFormat(s), nil
	default:
		return "", fmt.Errorf("unknown geometry format %q (want raw, text, or geojson)", s)
	}
}

func (f GeometryFormat) valid() bool {
	switch f {
	case FormatRaw, FormatText, FormatGeoJSON:
		return true
	}
	return false
}

// GeometryWriteOptions describes how an incoming WKT geometry value is
// bound on the write path. SRID is the SRID of the incoming text.
// TargetSRID, when non-zero and different from SRID, reprojects the
// geometry before it is stored.
type GeometryWriteOptions struct {
	Column     string
	SRID       int
	TargetSRID int
}

// Validate checks the column name and SRIDs.
func (o *GeometryWriteOptions) Validate() error {
	if !ValidIdentifier(o.Column) {
		return fmt.Errorf("invalid geometry column %q", o.Column)
	}
	if o.SRID <= 0 {
		return fmt.Errorf("geometry srid must be positive, got %d", o.SRID)
	}
	if o.TargetSRID < 0 {
		return fmt.Errorf("geometry target srid must not be negative, got %d", o.TargetSRID)
	}
	return nil
}

// placeholder renders the bound-parameter expression for position n.
func (o *GeometryWriteOptions) placeholder(n int) string {
	expr := fmt.Sprintf("st_geometryfromtext($%d,%d)", n, o.SRID)
	if o.TargetSRID != 0 && o.TargetSRID != o.SRID {
		expr = fmt.Sprintf("st_transform(%s,%d)", expr, o.TargetSRID)
	}
	return expr
}

// GeometryReadOptions describes how a geometry column is rendered on the
// read path. A zero target SRID returns the geometry in its stored SRID.
type GeometryReadOptions struct {
	column     string
	format     GeometryFormat
	targetSRID int
}

// NewGeometryReadOptions validates and builds read options for a geometry
// column. targetSRID zero means no reprojection.
func NewGeometryReadOptions(column string, format GeometryFormat, targetSRID int) (*GeometryReadOptions, error) {
	if !ValidIdentifier(column) {
		return nil, fmt.Errorf("invalid geometry column %q", column)
	}
	if !format.valid() {
		return nil, fmt.Errorf("unknown geometry format %q (want raw, text, or geojson)", format)
	}
	if targetSRID < 0 {
		return nil, fmt.Errorf("geometry target srid must not be negative, got %d", targetSRID)
	}
	return &GeometryReadOptions{column: column, format: format, targetSRID: targetSRID}, nil
}

// Column returns the geometry column name the options apply to.
func (o *GeometryReadOptions) Column() string {
	return o.column
}

// Render returns the SELECT-list expression for the geometry column.
func (o *GeometryReadOptions) Render() string {
	expr := o.column
	if o.targetSRID != 0 {
		expr = fmt.Sprintf("st_transform(%s,%d)", o.column, o.targetSRID)
	}

	switch o.format {
	case FormatText:
		return fmt.Sprintf("st_astext(%s)", expr)
	case FormatGeoJSON:
		return fmt.Sprintf("st_asgeojson(%s)", expr)
	default:
		return expr
	}
}
