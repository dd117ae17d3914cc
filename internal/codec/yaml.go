package codec

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"strata/internal/pgquery"
)

// YAMLCodec handles YAML import/export
type YAMLCodec struct{}

// NewYAMLCodec creates a new YAML codec
func NewYAMLCodec() *YAMLCodec {
	return &YAMLCodec{}
}

// Format returns the codec format identifier
func (c *YAMLCodec) Format() string {
	return "yaml"
}

// Parse imports records from a YAML list of mappings
func (c *YAMLCodec) Parse(r io.Reader) ([]pgquery.Row, error) {
	var raw []map[string]any
	decoder := yaml.NewDecoder(r)
	if err := decoder.Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	records := make([]pgquery.Row, 0, len(raw))
	for _, m := range raw {
		records = append(records, pgquery.Row(m))
	}
	return records, nil
}

// Export exports records to YAML
func (c *YAMLCodec) Export(records []pgquery.Row, w io.Writer) error {
	if records == nil {
		records = []pgquery.Row{}
	}

	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	defer encoder.Close()

	if err := encoder.Encode(records); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}

	return nil
}
