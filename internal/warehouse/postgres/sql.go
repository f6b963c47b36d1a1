package postgres

import (
	"fmt"
	"strings"

	"f1etl/internal/warehouse"
)

// pgIdent quotes a SQL identifier for Postgres.
func pgIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// buildInsertSQL constructs a single INSERT statement and its args.
//
// Why this exists:
//   - It is pure and deterministic, so we can unit test correctness
//     (especially ON CONFLICT behavior and placeholder numbering) without a
//     database.
//
// Constraints:
//   - rows must have the same length as columns for every row.
//   - columns must be non-empty.
//
// If conflictColumns is non-empty the INSERT is made idempotent using
// ON CONFLICT (<conflictColumns...>) DO NOTHING.
func buildInsertSQL(table string, columns []string, rows [][]any, conflictColumns []string) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(table)
	b.WriteString(" (")

	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgIdent(c))
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	p := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString(fmt.Sprintf("$%d", p))
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}

	if len(conflictColumns) > 0 {
		b.WriteString(" ON CONFLICT (")
		for i, c := range conflictColumns {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(pgIdent(c))
		}
		b.WriteString(") DO NOTHING")
	}

	b.WriteString(";")
	return b.String(), args
}

// buildUpsertSQL constructs a multi-row INSERT ... ON CONFLICT DO UPDATE
// statement and its args.
//
// updateColumns are refreshed from EXCLUDED on conflict; the conflict tuple
// itself is never updated.
func buildUpsertSQL(table string, columns []string, rows [][]any, conflictColumns, updateColumns []string) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(table)
	b.WriteString(" (")

	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgIdent(c))
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	p := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString(fmt.Sprintf("$%d", p))
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}

	b.WriteString(" ON CONFLICT (")
	for i, c := range conflictColumns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgIdent(c))
	}
	b.WriteString(") DO UPDATE SET ")

	for i, c := range updateColumns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgIdent(c))
		b.WriteString(" = EXCLUDED.")
		b.WriteString(pgIdent(c))
	}

	b.WriteString(";")
	return b.String(), args
}

// buildCompleteStatusSQL constructs the sync_status finalization UPDATE.
//
// The watermark delta is merged conditionally: a zero SeasonYear or
// RoundNumber in res means "no change" for that component, so the assignment
// is simply omitted.
func buildCompleteStatusSQL(metaTable, entity string, res warehouse.SyncResult) (string, []any) {
	var b strings.Builder
	args := make([]any, 0, 5)
	p := 1

	b.WriteString("UPDATE ")
	b.WriteString(metaTable)
	b.WriteString(" SET last_updated = now()")

	if res.Success {
		b.WriteString(", status = 'success', last_successful_sync = now(), error_message = NULL")
		b.WriteString(fmt.Sprintf(", total_records = total_records + $%d", p))
		args = append(args, res.Records)
		p++
		if res.SeasonYear > 0 {
			b.WriteString(fmt.Sprintf(", last_season_year = $%d", p))
			args = append(args, res.SeasonYear)
			p++
		}
		if res.RoundNumber > 0 {
			b.WriteString(fmt.Sprintf(", last_round_number = $%d", p))
			args = append(args, res.RoundNumber)
			p++
		}
	} else {
		b.WriteString(fmt.Sprintf(", status = 'failed', error_message = $%d", p))
		args = append(args, res.ErrorMessage)
		p++
	}

	b.WriteString(fmt.Sprintf(" WHERE entity_name = $%d", p))
	args = append(args, entity)

	return b.String(), args
}
