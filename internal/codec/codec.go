// Package codec converts record sets between wire formats: JSON, YAML,
// and GeoJSON feature collections.
package codec

import (
	"fmt"
	"io"

	"strata/internal/pgquery"
)

// Importer parses a record set from an external format
type Importer interface {
	Parse(r io.Reader) ([]pgquery.Row, error)
	Format() string
}

// Exporter writes a record set to an external format
type Exporter interface {
	Export(records []pgquery.Row, w io.Writer) error
	Format() string
}

// ForFormat returns the exporter for a format name. The geometry column
// only matters for geojson, which folds it into each feature.
func ForFormat(format, geometryColumn string) (Exporter, error) {
	switch format {
	case "json", "":
		return NewJSONCodec(), nil
	case "yaml":
		return NewYAMLCodec(), nil
	case "geojson":
		return NewGeoJSONExporter(geometryColumn), nil
	default:
		return nil, fmt.Errorf("unknown export format %q", format)
	}
}
