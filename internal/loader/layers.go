// Package loader reads layer definitions from YAML files and converts
// them into domain layers.
package loader

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"strata/internal/domain"
)

// LayersYAML represents the YAML file structure
type LayersYAML struct {
	Version string       `yaml:"version"`
	Layers  []*LayerYAML `yaml:"layers"`
}

// LayerYAML represents one layer definition in YAML format
type LayerYAML struct {
	Schema         string       `yaml:"schema"`
	Name           string       `yaml:"name"`
	Description    string       `yaml:"description,omitempty"`
	SRID           int          `yaml:"srid"`
	GeometryColumn string       `yaml:"geometry_column,omitempty"`
	GeometryType   string       `yaml:"geometry_type"`
	Columns        []ColumnYAML `yaml:"columns"`
}

// ColumnYAML represents a column definition
type ColumnYAML struct {
	Name       string `yaml:"name"`
	Definition string `yaml:"definition"`
}

// LoadLayers loads layer definitions from a YAML file
func LoadLayers(path string) ([]domain.Layer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	return ParseLayers(data)
}

// ParseLayers parses layer definitions from YAML bytes. Every layer is
// validated and layer keys must be unique within the file.
func ParseLayers(data []byte) ([]domain.Layer, error) {
	var yamlData LayersYAML
	if err := yaml.Unmarshal(data, &yamlData); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	layers := make([]domain.Layer, 0, len(yamlData.Layers))
	seen := make(map[string]bool, len(yamlData.Layers))

	for _, y := range yamlData.Layers {
		layer := convertLayer(y)

		if err := layer.Validate(); err != nil {
			return nil, err
		}
		if seen[layer.Key()] {
			return nil, fmt.Errorf("duplicate layer %s", layer.Key())
		}
		seen[layer.Key()] = true

		layers = append(layers, layer)
	}

	return layers, nil
}

func convertLayer(y *LayerYAML) domain.Layer {
	layer := domain.Layer{
		Schema:         y.Schema,
		Name:           y.Name,
		Description:    y.Description,
		SRID:           y.SRID,
		GeometryColumn: y.GeometryColumn,
		GeometryType:   y.GeometryType,
	}

	if layer.GeometryColumn == "" {
		layer.GeometryColumn = "geom" // Default geometry column name
	}

	for _, c := range y.Columns {
		layer.Columns = append(layer.Columns, domain.ColumnDef{
			Name:       c.Name,
			Definition: c.Definition,
		})
	}

	return layer
}

// ExportLayers exports layer definitions to YAML format
func ExportLayers(layers []domain.Layer) ([]byte, error) {
	yamlData := &LayersYAML{Version: "1"}

	for _, layer := range layers {
		y := &LayerYAML{
			Schema:         layer.Schema,
			Name:           layer.Name,
			Description:    layer.Description,
			SRID:           layer.SRID,
			GeometryColumn: layer.GeometryColumn,
			GeometryType:   layer.GeometryType,
		}
		for _, c := range layer.Columns {
			y.Columns = append(y.Columns, ColumnYAML{
				Name:       c.Name,
				Definition: c.Definition,
			})
		}
		yamlData.Layers = append(yamlData.Layers, y)
	}

	return yaml.Marshal(yamlData)
}
