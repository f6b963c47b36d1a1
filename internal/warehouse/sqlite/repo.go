// Package sqlite implements warehouse.Repository for SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"f1etl/internal/warehouse"
)

// Repo is the SQLite-backed warehouse.
//
// Key design points vs Postgres:
//   - SQLite has no schemas, so Config.Schema and Config.MetaSchema are
//     ignored and every table lives in the main namespace.
//   - SQLite has no native timestamp type; modernc.org/sqlite stores
//     timestamps with TEXT affinity. This repo writes RFC3339Nano strings
//     and parses them back on read for reliable round-trip behavior.
type Repo struct {
	db *sql.DB
}

func init() {
	warehouse.Register("sqlite", New)
}

func New(ctx context.Context, cfg warehouse.Config) (warehouse.Repository, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db}, nil
}

func (r *Repo) Close() { _ = r.db.Close() }

func (r *Repo) Ping(ctx context.Context) error { return r.db.PingContext(ctx) }

func qIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (r *Repo) EnsureMetadata(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sync_status (
			entity_name TEXT PRIMARY KEY,
			status TEXT NOT NULL DEFAULT 'pending',
			last_season_year INTEGER,
			last_round_number INTEGER,
			last_successful_sync TEXT,
			total_records INTEGER NOT NULL DEFAULT 0,
			error_message TEXT,
			last_updated TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS sync_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			entity_name TEXT NOT NULL,
			status TEXT NOT NULL,
			sync_timestamp TEXT,
			records_affected INTEGER NOT NULL DEFAULT 0,
			duration_seconds REAL,
			error_message TEXT
		)`,
	}
	for _, s := range stmts {
		if _, err := r.db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("EnsureMetadata: %w", err)
		}
	}
	return nil
}

func (r *Repo) SelectWatermark(ctx context.Context, entity string) (*warehouse.Watermark, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT entity_name, last_season_year, last_round_number, last_successful_sync,
		        total_records, status, error_message
		 FROM sync_status WHERE entity_name = ?`, entity)

	var (
		wm      warehouse.Watermark
		season  sql.NullInt64
		round   sql.NullInt64
		syncTS  sql.NullString
		errMsg  sql.NullString
	)
	err := row.Scan(&wm.Entity, &season, &round, &syncTS, &wm.TotalRecords, &wm.Status, &errMsg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("SelectWatermark %s: %w", entity, err)
	}

	if season.Valid {
		v := int(season.Int64)
		wm.SeasonYear = &v
	}
	if round.Valid {
		v := int(round.Int64)
		wm.RoundNumber = &v
	}
	if syncTS.Valid {
		if ts, err := parseTimestamp(syncTS.String); err == nil {
			wm.LastSync = &ts
		}
	}
	if errMsg.Valid {
		wm.ErrorMessage = &errMsg.String
	}
	return &wm, nil
}

func (r *Repo) StartSync(ctx context.Context, entity string) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = tx.ExecContext(ctx,
		`INSERT INTO sync_status (entity_name, status, last_updated) VALUES (?, 'running', ?)
		 ON CONFLICT (entity_name) DO UPDATE SET status = 'running', last_updated = excluded.last_updated`,
		entity, now)
	if err != nil {
		return 0, fmt.Errorf("StartSync %s: status: %w", entity, err)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO sync_log (entity_name, status, sync_timestamp) VALUES (?, 'running', ?)`,
		entity, now)
	if err != nil {
		return 0, fmt.Errorf("StartSync %s: log: %w", entity, err)
	}
	logID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return logID, nil
}

func (r *Repo) CompleteSync(ctx context.Context, entity string, logID int64, res warehouse.SyncResult) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	status := "success"
	if !res.Success {
		status = "failed"
	}
	var errMsg any
	if res.ErrorMessage != "" {
		errMsg = res.ErrorMessage
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	_, err = tx.ExecContext(ctx,
		`UPDATE sync_log SET status = ?, records_affected = ?, duration_seconds = ?, error_message = ?
		 WHERE id = ?`,
		status, res.Records, res.Duration.Seconds(), errMsg, logID)
	if err != nil {
		return fmt.Errorf("CompleteSync %s: log: %w", entity, err)
	}

	if res.Success {
		_, err = tx.ExecContext(ctx,
			`UPDATE sync_status SET status = 'success', last_successful_sync = ?,
			        total_records = total_records + ?, error_message = NULL, last_updated = ?,
			        last_season_year = CASE WHEN ? > 0 THEN ? ELSE last_season_year END,
			        last_round_number = CASE WHEN ? > 0 THEN ? ELSE last_round_number END
			 WHERE entity_name = ?`,
			now, res.Records, now,
			res.SeasonYear, res.SeasonYear, res.RoundNumber, res.RoundNumber, entity)
	} else {
		_, err = tx.ExecContext(ctx,
			`UPDATE sync_status SET status = 'failed', error_message = ?, last_updated = ?
			 WHERE entity_name = ?`,
			res.ErrorMessage, now, entity)
	}
	if err != nil {
		return fmt.Errorf("CompleteSync %s: status: %w", entity, err)
	}

	return tx.Commit()
}

func (r *Repo) MaxRound(ctx context.Context, season int) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(number), 0) FROM round
		 WHERE CAST(strftime('%Y', date) AS INTEGER) = ?`, season).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("MaxRound %d: %w", season, err)
	}
	return n, nil
}

func (r *Repo) RaceDates(ctx context.Context, season int) ([]time.Time, error) {
	return r.queryDates(ctx,
		`SELECT date FROM round
		 WHERE CAST(strftime('%Y', date) AS INTEGER) = ? ORDER BY number`, season)
}

func (r *Repo) SprintRaceDates(ctx context.Context, season int) ([]time.Time, error) {
	return r.queryDates(ctx,
		`SELECT r.date FROM round r JOIN session s ON s.round_id = r.id
		 WHERE s.type = 'SR' AND CAST(strftime('%Y', r.date) AS INTEGER) = ?
		 ORDER BY r.number`, season)
}

func (r *Repo) queryDates(ctx context.Context, q string, season int) ([]time.Time, error) {
	rows, err := r.db.QueryContext(ctx, q, season)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		d, err := parseTimestamp(raw)
		if err != nil {
			return nil, fmt.Errorf("parse date %q: %w", raw, err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// parseTimestamp accepts the formats SQLite TEXT columns accumulate in
// practice: RFC3339 variants and bare dates.
func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func (r *Repo) SelectKeyValue(ctx context.Context, table, keyColumn, valueColumn string) (map[string]int64, error) {
	if table == "" || keyColumn == "" || valueColumn == "" {
		return nil, fmt.Errorf("SelectKeyValue: table, keyColumn, valueColumn are required")
	}

	q := fmt.Sprintf(`SELECT %s, %s FROM %s`, qIdent(keyColumn), qIdent(valueColumn), qIdent(table))
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("SelectKeyValue: query %s: %w", table, err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var k any
		var id int64
		if err := rows.Scan(&k, &id); err != nil {
			return nil, fmt.Errorf("SelectKeyValue: scan %s: %w", table, err)
		}
		out[warehouse.NormalizeKey(k)] = id
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("SelectKeyValue: rows %s: %w", table, err)
	}
	return out, nil
}

func (r *Repo) SeasonID(ctx context.Context, year int) (int64, bool, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `SELECT id FROM season WHERE year = ?`, year).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("SeasonID %d: %w", year, err)
	}
	return id, true, nil
}

func (r *Repo) RoundID(ctx context.Context, year, round int) (int64, bool, error) {
	var id int64
	err := r.db.QueryRowContext(ctx,
		`SELECT id FROM round
		 WHERE CAST(strftime('%Y', date) AS INTEGER) = ? AND number = ?`, year, round).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("RoundID %d/%d: %w", year, round, err)
	}
	return id, true, nil
}

func (r *Repo) SessionsByRound(ctx context.Context, sessionType string) (map[int64]warehouse.SessionRef, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT round_id, id, number FROM session WHERE type = ?`, sessionType)
	if err != nil {
		return nil, fmt.Errorf("SessionsByRound %s: %w", sessionType, err)
	}
	defer rows.Close()

	out := make(map[int64]warehouse.SessionRef)
	for rows.Next() {
		var roundID int64
		var ref warehouse.SessionRef
		if err := rows.Scan(&roundID, &ref.ID, &ref.Number); err != nil {
			return nil, err
		}
		out[roundID] = ref
	}
	return out, rows.Err()
}

func (r *Repo) CountRows(ctx context.Context, table string) (int64, error) {
	var n int64
	q := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, qIdent(table))
	if err := r.db.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return 0, fmt.Errorf("CountRows %s: %w", table, err)
	}
	return n, nil
}

func (r *Repo) TableColumns(ctx context.Context, table string) ([]string, error) {
	q := fmt.Sprintf(`PRAGMA table_info(%s)`, qIdent(table))
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("TableColumns %s: %w", table, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var (
			cid     int
			name    string
			typ     string
			notnull int
			dflt    any
			pk      int
		)
		if err := rows.Scan(&cid, &name, &typ, &notnull, &dflt, &pk); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// AppendRows inserts rows in a single transaction. INSERT OR IGNORE keeps the
// bulk load idempotent when an id already exists.
func (r *Repo) AppendRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	q := buildInsertSQL(table, columns, true)
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("AppendRows %s: prepare: %w", table, err)
	}
	defer stmt.Close()

	var total int64
	for _, row := range rows {
		res, err := stmt.ExecContext(ctx, row...)
		if err != nil {
			return 0, fmt.Errorf("AppendRows %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return total, nil
}

// ResyncIdentity realigns sqlite_sequence with MAX(id). Tables that never
// used AUTOINCREMENT have no sequence row, which is fine to skip.
func (r *Repo) ResyncIdentity(ctx context.Context, table string) error {
	q := fmt.Sprintf(
		`UPDATE sqlite_sequence SET seq = (SELECT COALESCE(MAX(id), 0) FROM %s) WHERE name = ?`,
		qIdent(table),
	)
	_, err := r.db.ExecContext(ctx, q, table)
	if err != nil && strings.Contains(err.Error(), "no such table: sqlite_sequence") {
		return nil
	}
	if err != nil {
		return fmt.Errorf("ResyncIdentity %s: %w", table, err)
	}
	return nil
}

// UpsertRows reconciles rows against their natural key in a single
// transaction; any failure rolls back every row of the call.
func (r *Repo) UpsertRows(ctx context.Context, table string, columns []string, rows [][]any, conflictColumns, updateColumns []string) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	q := buildUpsertSQL(table, columns, conflictColumns, updateColumns)
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("UpsertRows %s: prepare: %w", table, err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return 0, fmt.Errorf("UpsertRows %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return int64(len(rows)), nil
}

// buildInsertSQL constructs a single-row INSERT with ? placeholders.
func buildInsertSQL(table string, columns []string, orIgnore bool) string {
	var b strings.Builder
	b.WriteString("INSERT ")
	if orIgnore {
		b.WriteString("OR IGNORE ")
	}
	b.WriteString("INTO ")
	b.WriteString(qIdent(table))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(qIdent(c))
	}
	b.WriteString(") VALUES (")
	for i := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("?")
	}
	b.WriteString(")")
	return b.String()
}

// buildUpsertSQL constructs a single-row INSERT ... ON CONFLICT DO UPDATE
// with ? placeholders.
func buildUpsertSQL(table string, columns, conflictColumns, updateColumns []string) string {
	var b strings.Builder
	b.WriteString(buildInsertSQL(table, columns, false))

	b.WriteString(" ON CONFLICT (")
	for i, c := range conflictColumns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(qIdent(c))
	}
	b.WriteString(") DO UPDATE SET ")
	for i, c := range updateColumns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(qIdent(c))
		b.WriteString(" = excluded.")
		b.WriteString(qIdent(c))
	}
	return b.String()
}
