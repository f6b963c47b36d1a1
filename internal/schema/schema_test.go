package schema

import (
	"testing"
	"time"
)

func TestTableSchemaKnownTables(t *testing.T) {
	t.Parallel()

	for _, table := range []string{"circuit", "season", "team", "round", "session", "driver", "team_driver"} {
		ct := TableSchema(table)
		if ct == nil {
			t.Errorf("TableSchema(%q) = nil", table)
			continue
		}
		if ct["id"] != "integer" {
			t.Errorf("TableSchema(%q)[id] = %q, want integer", table, ct["id"])
		}
	}
	if TableSchema("lap_time") != nil {
		t.Fatalf("TableSchema(lap_time): expected nil for unknown table")
	}
}

func TestCoerce(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		typ  string
		raw  string
		want any
	}{
		{"text passthrough", "text", "Monza", "Monza"},
		{"text nan", "text", "nan", nil},
		{"text nat", "text", "NaT", nil},
		{"text empty", "text", "", nil},
		{"integer", "integer", "42", int64(42)},
		{"integer float form", "integer", "42.0", int64(42)},
		{"integer garbage fills zero", "integer", "abc", int64(0)},
		{"smallint clamps high", "smallint", "40000", int64(32767)},
		{"smallint clamps low", "smallint", "-40000", int64(-32768)},
		{"float", "float", "44.3439", 44.3439},
		{"float garbage", "float", "x", nil},
		{"bool true", "boolean", "True", true},
		{"bool f", "boolean", "f", false},
		{"bool garbage", "boolean", "si", nil},
		{"date bad", "date", "not-a-date", nil},
		{"unknown type passthrough", "uuid", "abc", "abc"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Coerce(tc.typ, tc.raw); got != tc.want {
				t.Fatalf("Coerce(%q, %q) = %v (%T), want %v", tc.typ, tc.raw, got, got, tc.want)
			}
		})
	}
}

func TestCoerceDate(t *testing.T) {
	t.Parallel()

	got := Coerce("date", "2024-03-02")
	tm, ok := got.(time.Time)
	if !ok {
		t.Fatalf("Coerce(date) returned %T, want time.Time", got)
	}
	if tm.Year() != 2024 || tm.Month() != time.March || tm.Day() != 2 {
		t.Fatalf("Coerce(date) = %v", tm)
	}
}

func TestCoerceRow(t *testing.T) {
	t.Parallel()

	types := ColumnTypes{"id": "integer", "number": "smallint", "name": "text"}
	cols := []string{"id", "number", "name", "extra"}

	got := CoerceRow(types, cols, []string{"7", "3", "nan"})
	if got[0] != int64(7) || got[1] != int64(3) {
		t.Fatalf("CoerceRow numeric columns = %v", got[:2])
	}
	if got[2] != nil {
		t.Fatalf("CoerceRow nan text = %v, want nil", got[2])
	}
	// Column beyond the record and without a declared type maps to nil.
	if got[3] != nil {
		t.Fatalf("CoerceRow missing cell = %v, want nil", got[3])
	}
}
