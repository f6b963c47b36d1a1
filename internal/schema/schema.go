// Package schema is the registry of expected column types per warehouse
// table, used to coerce raw CSV text before load.
//
// The type map ships embedded in the binary; the warehouse schema itself is
// externally managed and this package never issues DDL.
package schema

import (
	"embed"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

//go:embed formula_one.json
var schemaFS embed.FS

// ColumnTypes maps column name -> logical type for one table.
//
// Recognized types: text, varchar, char, integer, smallint, float, boolean,
// date, timestamp. Unknown types pass values through unmodified.
type ColumnTypes map[string]string

var tables map[string]ColumnTypes

func init() {
	raw, err := schemaFS.ReadFile("formula_one.json")
	if err != nil {
		panic(fmt.Sprintf("schema: read embedded schema: %v", err))
	}
	if err := json.Unmarshal(raw, &tables); err != nil {
		panic(fmt.Sprintf("schema: decode embedded schema: %v", err))
	}
}

// TableSchema returns the column-type map for table, or nil when the table is
// not in the registry (callers then skip coercion).
func TableSchema(table string) ColumnTypes {
	return tables[table]
}

const (
	smallintMin = -32768
	smallintMax = 32767
)

// Coerce converts a raw CSV cell into the Go value matching the declared
// logical type.
//
// Failure semantics follow the load contract: a cell that cannot be parsed
// maps to the type's null/zero substitute, never to an error that would abort
// the batch.
//
//   - text/varchar/char: "", "nan", "NaT" -> nil, otherwise the string
//   - integer/smallint:  unparsable -> int64(0); smallint clamps to its range
//   - float:             unparsable -> nil
//   - boolean:           true/false/t/f (any case) -> bool, otherwise nil
//   - date:              "2006-01-02" -> time.Time, otherwise nil
//   - timestamp:         RFC3339 or "2006-01-02 15:04:05" -> time.Time, otherwise nil
//   - anything else:     raw string passthrough
func Coerce(typ, raw string) any {
	switch typ {
	case "text", "varchar", "char":
		return coerceText(raw)
	case "integer":
		return coerceInt(raw, false)
	case "smallint":
		return coerceInt(raw, true)
	case "float":
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil
		}
		return f
	case "boolean":
		switch strings.ToLower(strings.TrimSpace(raw)) {
		case "true", "t":
			return true
		case "false", "f":
			return false
		}
		return nil
	case "date":
		t, err := time.Parse("2006-01-02", strings.TrimSpace(raw))
		if err != nil {
			return nil
		}
		return t
	case "timestamp":
		s := strings.TrimSpace(raw)
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t
		}
		if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
			return t
		}
		return nil
	default:
		return raw
	}
}

// CoerceRow coerces one CSV record into values aligned with columns.
// Columns without a declared type pass through as text.
func CoerceRow(types ColumnTypes, columns []string, record []string) []any {
	out := make([]any, len(columns))
	for i, col := range columns {
		raw := ""
		if i < len(record) {
			raw = record[i]
		}
		typ, ok := types[col]
		if !ok {
			out[i] = coerceText(raw)
			continue
		}
		out[i] = Coerce(typ, raw)
	}
	return out
}

func coerceText(raw string) any {
	switch strings.TrimSpace(raw) {
	case "", "nan", "NaT":
		return nil
	}
	return raw
}

func coerceInt(raw string, small bool) any {
	s := strings.TrimSpace(raw)
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		// The dump occasionally renders integers as "12.0".
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return int64(0)
		}
		n = int64(f)
	}
	if small {
		if n < smallintMin {
			n = smallintMin
		}
		if n > smallintMax {
			n = smallintMax
		}
	}
	return n
}
