// Package postgres implements warehouse.Repository on top of pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"f1etl/internal/warehouse"
)

// Repo is the Postgres-backed warehouse.
//
// It provides:
//   - Sync metadata bookkeeping (sync_status, sync_log)
//   - Lookup queries for foreign-key resolution
//   - Transactional append and upsert loads
type Repo struct {
	pool       *pgxpool.Pool
	schema     string
	metaSchema string
}

// New creates a Postgres-backed Repo.
func New(ctx context.Context, cfg warehouse.Config) (warehouse.Repository, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	return &Repo{pool: pool, schema: cfg.Schema, metaSchema: cfg.MetaSchema}, nil
}

// Close closes the connection pool.
func (r *Repo) Close() {
	r.pool.Close()
}

func (r *Repo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// qualify returns the domain-schema-qualified, quoted name for table.
func (r *Repo) qualify(table string) string {
	return fmt.Sprintf("%s.%s", pgIdent(r.schema), pgIdent(table))
}

func (r *Repo) meta(table string) string {
	return fmt.Sprintf("%s.%s", pgIdent(r.metaSchema), pgIdent(table))
}

// EnsureMetadata creates the metadata schema and tables when absent.
//
// The same DDL ships as a goose migration; this keeps ad-hoc environments
// (and the other backends' contract) working without a migration step.
func (r *Repo) EnsureMetadata(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, pgIdent(r.metaSchema)),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			entity_name TEXT PRIMARY KEY,
			status TEXT NOT NULL DEFAULT 'pending',
			last_season_year INTEGER,
			last_round_number INTEGER,
			last_successful_sync TIMESTAMPTZ,
			total_records BIGINT NOT NULL DEFAULT 0,
			error_message TEXT,
			last_updated TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, r.meta("sync_status")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id BIGSERIAL PRIMARY KEY,
			entity_name TEXT NOT NULL,
			status TEXT NOT NULL,
			sync_timestamp TIMESTAMPTZ NOT NULL DEFAULT now(),
			records_affected BIGINT NOT NULL DEFAULT 0,
			duration_seconds DOUBLE PRECISION,
			error_message TEXT
		)`, r.meta("sync_log")),
	}
	for _, s := range stmts {
		if _, err := r.pool.Exec(ctx, s); err != nil {
			return fmt.Errorf("EnsureMetadata: %w", err)
		}
	}
	return nil
}

func (r *Repo) SelectWatermark(ctx context.Context, entity string) (*warehouse.Watermark, error) {
	q := fmt.Sprintf(
		`SELECT entity_name, last_season_year, last_round_number, last_successful_sync,
		        total_records, status, error_message
		 FROM %s WHERE entity_name = $1`,
		r.meta("sync_status"),
	)

	wm := warehouse.Watermark{}
	err := r.pool.QueryRow(ctx, q, entity).Scan(
		&wm.Entity, &wm.SeasonYear, &wm.RoundNumber, &wm.LastSync,
		&wm.TotalRecords, &wm.Status, &wm.ErrorMessage,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("SelectWatermark %s: %w", entity, err)
	}
	return &wm, nil
}

func (r *Repo) StartSync(ctx context.Context, entity string) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	upsert := fmt.Sprintf(
		`INSERT INTO %s (entity_name, status, last_updated) VALUES ($1, 'running', now())
		 ON CONFLICT (entity_name) DO UPDATE SET status = 'running', last_updated = now()`,
		r.meta("sync_status"),
	)
	if _, err := tx.Exec(ctx, upsert, entity); err != nil {
		return 0, fmt.Errorf("StartSync %s: status: %w", entity, err)
	}

	var logID int64
	ins := fmt.Sprintf(
		`INSERT INTO %s (entity_name, status) VALUES ($1, 'running') RETURNING id`,
		r.meta("sync_log"),
	)
	if err := tx.QueryRow(ctx, ins, entity).Scan(&logID); err != nil {
		return 0, fmt.Errorf("StartSync %s: log: %w", entity, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return logID, nil
}

func (r *Repo) CompleteSync(ctx context.Context, entity string, logID int64, res warehouse.SyncResult) error {
	status := "success"
	if !res.Success {
		status = "failed"
	}
	var errMsg *string
	if res.ErrorMessage != "" {
		errMsg = &res.ErrorMessage
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	logSQL := fmt.Sprintf(
		`UPDATE %s SET status = $1, records_affected = $2, duration_seconds = $3, error_message = $4
		 WHERE id = $5`,
		r.meta("sync_log"),
	)
	if _, err := tx.Exec(ctx, logSQL, status, res.Records, res.Duration.Seconds(), errMsg, logID); err != nil {
		return fmt.Errorf("CompleteSync %s: log: %w", entity, err)
	}

	sql, args := buildCompleteStatusSQL(r.meta("sync_status"), entity, res)
	if _, err := tx.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("CompleteSync %s: status: %w", entity, err)
	}

	return tx.Commit(ctx)
}

func (r *Repo) MaxRound(ctx context.Context, season int) (int, error) {
	q := fmt.Sprintf(
		`SELECT COALESCE(MAX(number), 0) FROM %s WHERE EXTRACT(YEAR FROM date) = $1`,
		r.qualify("round"),
	)
	var n int
	if err := r.pool.QueryRow(ctx, q, season).Scan(&n); err != nil {
		return 0, fmt.Errorf("MaxRound %d: %w", season, err)
	}
	return n, nil
}

func (r *Repo) RaceDates(ctx context.Context, season int) ([]time.Time, error) {
	q := fmt.Sprintf(
		`SELECT date FROM %s WHERE EXTRACT(YEAR FROM date) = $1 ORDER BY number`,
		r.qualify("round"),
	)
	return r.queryDates(ctx, q, season)
}

func (r *Repo) SprintRaceDates(ctx context.Context, season int) ([]time.Time, error) {
	q := fmt.Sprintf(
		`SELECT r.date FROM %s r JOIN %s s ON s.round_id = r.id
		 WHERE s.type = 'SR' AND EXTRACT(YEAR FROM r.date) = $1 ORDER BY r.number`,
		r.qualify("round"), r.qualify("session"),
	)
	return r.queryDates(ctx, q, season)
}

func (r *Repo) queryDates(ctx context.Context, q string, season int) ([]time.Time, error) {
	rows, err := r.pool.Query(ctx, q, season)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// SelectKeyValue returns a mapping from normalized key -> surrogate id for the
// whole table.
//
// The returned map key is warehouse.NormalizeKey(original_key_value) so
// callers can reliably match string/int/etc key inputs.
func (r *Repo) SelectKeyValue(ctx context.Context, table, keyColumn, valueColumn string) (map[string]int64, error) {
	if table == "" || keyColumn == "" || valueColumn == "" {
		return nil, fmt.Errorf("SelectKeyValue: table, keyColumn, valueColumn are required")
	}

	q := fmt.Sprintf(
		`SELECT %s, %s FROM %s`,
		pgIdent(keyColumn), pgIdent(valueColumn), r.qualify(table),
	)

	rows, err := r.pool.Query(ctx, q)
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
	q := fmt.Sprintf(`SELECT id FROM %s WHERE year = $1`, r.qualify("season"))
	var id int64
	err := r.pool.QueryRow(ctx, q, year).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("SeasonID %d: %w", year, err)
	}
	return id, true, nil
}

func (r *Repo) RoundID(ctx context.Context, year, round int) (int64, bool, error) {
	q := fmt.Sprintf(
		`SELECT id FROM %s WHERE EXTRACT(YEAR FROM date) = $1 AND number = $2`,
		r.qualify("round"),
	)
	var id int64
	err := r.pool.QueryRow(ctx, q, year, round).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("RoundID %d/%d: %w", year, round, err)
	}
	return id, true, nil
}

func (r *Repo) SessionsByRound(ctx context.Context, sessionType string) (map[int64]warehouse.SessionRef, error) {
	q := fmt.Sprintf(
		`SELECT round_id, id, number FROM %s WHERE type = $1`,
		r.qualify("session"),
	)
	rows, err := r.pool.Query(ctx, q, sessionType)
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
	q := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, r.qualify(table))
	if err := r.pool.QueryRow(ctx, q).Scan(&n); err != nil {
		return 0, fmt.Errorf("CountRows %s: %w", table, err)
	}
	return n, nil
}

func (r *Repo) TableColumns(ctx context.Context, table string) ([]string, error) {
	q := `SELECT column_name FROM information_schema.columns
	      WHERE table_schema = $1 AND table_name = $2 ORDER BY ordinal_position`
	rows, err := r.pool.Query(ctx, q, r.schema, table)
	if err != nil {
		return nil, fmt.Errorf("TableColumns %s: %w", table, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// insertChunk caps rows per statement so the total placeholder count stays
// clear of the wire-protocol limit of 65535 binds.
const insertChunk = 500

// AppendRows inserts rows in a single transaction. Rows whose id already
// exists are left untouched, which makes re-running a partially applied bulk
// load safe.
func (r *Repo) AppendRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	var total int64
	for start := 0; start < len(rows); start += insertChunk {
		end := start + insertChunk
		if end > len(rows) {
			end = len(rows)
		}
		sql, args := buildInsertSQL(r.qualify(table), columns, rows[start:end], []string{"id"})
		cmd, err := tx.Exec(ctx, sql, args...)
		if err != nil {
			return 0, fmt.Errorf("AppendRows %s: %w", table, err)
		}
		total += cmd.RowsAffected()
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return total, nil
}

// ResyncIdentity realigns the table's id sequence with MAX(id) after an
// explicit-id bulk insert.
func (r *Repo) ResyncIdentity(ctx context.Context, table string) error {
	q := fmt.Sprintf(
		`SELECT setval(pg_get_serial_sequence('%s.%s', 'id'),
		        GREATEST((SELECT COALESCE(MAX(id), 1) FROM %s), 1))`,
		r.schema, table, r.qualify(table),
	)
	if _, err := r.pool.Exec(ctx, q); err != nil {
		return fmt.Errorf("ResyncIdentity %s: %w", table, err)
	}
	return nil
}

// UpsertRows reconciles rows against their natural key in a single
// transaction. Conflicting rows update updateColumns in place; the rest
// insert fresh.
func (r *Repo) UpsertRows(ctx context.Context, table string, columns []string, rows [][]any, conflictColumns, updateColumns []string) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	for start := 0; start < len(rows); start += insertChunk {
		end := start + insertChunk
		if end > len(rows) {
			end = len(rows)
		}
		sql, args := buildUpsertSQL(r.qualify(table), columns, rows[start:end], conflictColumns, updateColumns)
		if _, err := tx.Exec(ctx, sql, args...); err != nil {
			return 0, fmt.Errorf("UpsertRows %s: %w", table, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return int64(len(rows)), nil
}
