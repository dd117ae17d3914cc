package codec

import (
	"encoding/json"
	"fmt"
	"io"

	"strata/internal/pgquery"
)

// JSONCodec handles JSON import/export
type JSONCodec struct{}

// NewJSONCodec creates a new JSON codec
func NewJSONCodec() *JSONCodec {
	return &JSONCodec{}
}

// Format returns the codec format identifier
func (c *JSONCodec) Format() string {
	return "json"
}

// Parse imports records from a JSON array of objects
func (c *JSONCodec) Parse(r io.Reader) ([]pgquery.Row, error) {
	var records []pgquery.Row
	decoder := json.NewDecoder(r)
	if err := decoder.Decode(&records); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	return records, nil
}

// Export exports records to JSON
func (c *JSONCodec) Export(records []pgquery.Row, w io.Writer) error {
	if records == nil {
		records = []pgquery.Row{}
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(records); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}

	return nil
}
