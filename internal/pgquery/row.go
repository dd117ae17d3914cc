package pgquery

import (
	"encoding/json"
	"fmt"
)

// Row is one decoded result record, keyed by column name.
type Row map[string]any

// DecodeAggregatedRows unpacks the single cell produced by the
// array_to_json(array_agg(...)) SELECT shape. A NULL cell (no rows
// matched) decodes to an empty, non-nil slice. The cell may arrive as
// raw JSON bytes or text, or already decoded into a []any by the driver.
func DecodeAggregatedRows(cell any) ([]Row, error) {
	switch v := cell.(type) {
	case nil:
		return []Row{}, nil
	case []byte:
		return unmarshalRows(v)
	case string:
		return unmarshalRows([]byte(v))
	case []any:
		rows := make([]Row, 0, len(v))
		for i, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("aggregated row %d is %T, want object", i, item)
			}
			rows = append(rows, Row(m))
		}
		return rows, nil
	default:
		return nil, fmt.Errorf("cannot decode aggregated rows from %T", cell)
	}
}

func unmarshalRows(data []byte) ([]Row, error) {
	var rows []Row
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode aggregated rows: %w", err)
	}
	if rows == nil {
		return []Row{}, nil
	}
	return rows, nil
}
