package codec

import (
	"encoding/json"
	"fmt"
	"io"

	"strata/internal/pgquery"
)

// GeoJSONExporter writes records as a GeoJSON FeatureCollection. The
// geometry column must hold GeoJSON geometry text, i.e. the records
// were read with the geojson geometry format; every other column
// becomes a feature property.
type GeoJSONExporter struct {
	geometryColumn string
}

// NewGeoJSONExporter creates a GeoJSON exporter reading geometry from
// the named column.
func NewGeoJSONExporter(geometryColumn string) *GeoJSONExporter {
	return &GeoJSONExporter{geometryColumn: geometryColumn}
}

// Format returns the codec format identifier
func (c *GeoJSONExporter) Format() string {
	return "geojson"
}

type featureCollection struct {
	Type     string    `json:"type"`
	Features []feature `json:"features"`
}

type feature struct {
	Type       string          `json:"type"`
	Geometry   json.RawMessage `json:"geometry"`
	Properties pgquery.Row     `json:"properties"`
}

// Export exports records to a GeoJSON FeatureCollection
func (c *GeoJSONExporter) Export(records []pgquery.Row, w io.Writer) error {
	fc := featureCollection{
		Type:     "FeatureCollection",
		Features: make([]feature, 0, len(records)),
	}

	for _, record := range records {
		f := feature{
			Type:       "Feature",
			Geometry:   json.RawMessage("null"),
			Properties: make(pgquery.Row, len(record)),
		}

		for name, value := range record {
			if name == c.geometryColumn {
				if geom, ok := geometryJSON(value); ok {
					f.Geometry = geom
				}
				continue
			}
			f.Properties[name] = value
		}

		fc.Features = append(fc.Features, f)
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(&fc); err != nil {
		return fmt.Errorf("failed to encode GeoJSON: %w", err)
	}

	return nil
}

// geometryJSON coerces a geometry cell into raw JSON. Cells arrive as
// strings from st_asgeojson or as decoded maps when the record came
// through the aggregated JSON read path.
func geometryJSON(value any) (json.RawMessage, bool) {
	switch v := value.(type) {
	case nil:
		return nil, false
	case string:
		if v == "" {
			return nil, false
		}
		return json.RawMessage(v), true
	case []byte:
		if len(v) == 0 {
			return nil, false
		}
		return json.RawMessage(v), true
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, false
		}
		return data, true
	}
}
