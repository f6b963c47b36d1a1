package mssql

import (
	"fmt"
	"strings"
)

// buildInsertNotExistsSQL constructs a single-row insert that skips rows whose
// id already exists. Placeholders are @p1..@pN for the row values followed by
// one more for the id probe.
func buildInsertNotExistsSQL(qualifiedTable string, columns []string, idPos int) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(qualifiedTable)
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(msIdent(c))
	}
	b.WriteString(") SELECT ")
	for i := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(fmt.Sprintf("@p%d", i+1))
	}
	b.WriteString(" WHERE NOT EXISTS (SELECT 1 FROM ")
	b.WriteString(qualifiedTable)
	b.WriteString(fmt.Sprintf(" WHERE %s = @p%d)", msIdent("id"), len(columns)+1))
	return b.String()
}

// buildUpdateSQL constructs the UPDATE half of the upsert: update columns
// first, then the key columns in the WHERE clause.
func buildUpdateSQL(qualifiedTable string, updateColumns, keyColumns []string) string {
	var b strings.Builder
	b.WriteString("UPDATE ")
	b.WriteString(qualifiedTable)
	b.WriteString(" SET ")

	p := 1
	for i, c := range updateColumns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(msIdent(c))
		b.WriteString(fmt.Sprintf(" = @p%d", p))
		p++
	}
	b.WriteString(" WHERE ")
	for i, c := range keyColumns {
		if i > 0 {
			b.WriteString(" AND ")
		}
		b.WriteString(msIdent(c))
		b.WriteString(fmt.Sprintf(" = @p%d", p))
		p++
	}
	return b.String()
}

// buildInsertNotExistsKeySQL constructs the INSERT half of the upsert,
// guarded by the natural-key tuple. Placeholders cover the full row, then the
// key columns for the probe.
func buildInsertNotExistsKeySQL(qualifiedTable string, columns, keyColumns []string, colPos map[string]int) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(qualifiedTable)
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(msIdent(c))
	}
	b.WriteString(") SELECT ")
	for i := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(fmt.Sprintf("@p%d", i+1))
	}
	b.WriteString(" WHERE NOT EXISTS (SELECT 1 FROM ")
	b.WriteString(qualifiedTable)
	b.WriteString(" WHERE ")
	p := len(columns) + 1
	for i, c := range keyColumns {
		if i > 0 {
			b.WriteString(" AND ")
		}
		b.WriteString(msIdent(c))
		b.WriteString(fmt.Sprintf(" = @p%d", p))
		p++
	}
	b.WriteString(")")
	return b.String()
}
