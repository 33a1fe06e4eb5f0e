package reader

import (
	"database/sql"
)

// ScanMap maps a row to a column name → value map. Byte slices are copied to strings,
// since the driver may reuse them on the next Scan.
func ScanMap(rows *sql.Rows) (map[string]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	values := make([]any, len(columns))
	pointers := make([]any, len(columns))
	for i := range values {
		pointers[i] = &values[i]
	}
	if err := rows.Scan(pointers...); err != nil {
		return nil, err
	}
	out := make(map[string]any, len(columns))
	for i, col := range columns {
		if b, ok := values[i].([]byte); ok {
			out[col] = string(b)
			continue
		}
		out[col] = values[i]
	}
	return out, nil
}
