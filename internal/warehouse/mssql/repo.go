// Package mssql implements warehouse.Repository for Microsoft SQL Server.
package mssql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/microsoft/go-mssqldb"

	"f1etl/internal/warehouse"
)

// Repo is the SQL Server-backed warehouse.
//
// Implementation notes:
//   - Upserts avoid MERGE and use an UPDATE-then-INSERT pattern inside a
//     transaction. MERGE on SQL Server has well-known concurrency caveats and
//     the row volumes here are small.
//   - Explicit-id bulk loads run under SET IDENTITY_INSERT, and
//     ResyncIdentity reseeds via DBCC CHECKIDENT.
type Repo struct {
	db         *sql.DB
	schema     string
	metaSchema string
}

func init() {
	warehouse.Register("mssql", New)
}

func New(ctx context.Context, cfg warehouse.Config) (warehouse.Repository, error) {
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}

	// Conservative defaults for ETL-style bursty loads.
	db.SetMaxOpenConns(64)
	db.SetMaxIdleConns(64)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db, schema: cfg.Schema, metaSchema: cfg.MetaSchema}, nil
}

func (r *Repo) Close() {
	if r == nil || r.db == nil {
		return
	}
	_ = r.db.Close()
}

func (r *Repo) Ping(ctx context.Context) error { return r.db.PingContext(ctx) }

// msIdent quotes a SQL Server identifier with brackets.
func msIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

func (r *Repo) qualify(table string) string {
	return msIdent(r.schema) + "." + msIdent(table)
}

func (r *Repo) meta(table string) string {
	return msIdent(r.metaSchema) + "." + msIdent(table)
}

func (r *Repo) EnsureMetadata(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(
			`IF NOT EXISTS (SELECT 1 FROM sys.schemas WHERE name = N'%s')
			 EXEC('CREATE SCHEMA %s')`,
			r.metaSchema, msIdent(r.metaSchema)),
		fmt.Sprintf(
			`IF OBJECT_ID(N'%s.sync_status', N'U') IS NULL
			 CREATE TABLE %s (
				entity_name NVARCHAR(128) NOT NULL PRIMARY KEY,
				status NVARCHAR(32) NOT NULL DEFAULT 'pending',
				last_season_year INT NULL,
				last_round_number INT NULL,
				last_successful_sync DATETIME2 NULL,
				total_records BIGINT NOT NULL DEFAULT 0,
				error_message NVARCHAR(MAX) NULL,
				last_updated DATETIME2 NULL
			 )`,
			r.metaSchema, r.meta("sync_status")),
		fmt.Sprintf(
			`IF OBJECT_ID(N'%s.sync_log', N'U') IS NULL
			 CREATE TABLE %s (
				id BIGINT IDENTITY(1,1) PRIMARY KEY,
				entity_name NVARCHAR(128) NOT NULL,
				status NVARCHAR(32) NOT NULL,
				sync_timestamp DATETIME2 NOT NULL DEFAULT SYSUTCDATETIME(),
				records_affected BIGINT NOT NULL DEFAULT 0,
				duration_seconds FLOAT NULL,
				error_message NVARCHAR(MAX) NULL
			 )`,
			r.metaSchema, r.meta("sync_log")),
	}
	for _, s := range stmts {
		if _, err := r.db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("mssql: EnsureMetadata: %w", err)
		}
	}
	return nil
}

func (r *Repo) SelectWatermark(ctx context.Context, entity string) (*warehouse.Watermark, error) {
	q := fmt.Sprintf(
		`SELECT entity_name, last_season_year, last_round_number, last_successful_sync,
		        total_records, status, error_message
		 FROM %s WHERE entity_name = @p1`,
		r.meta("sync_status"),
	)

	var (
		wm     warehouse.Watermark
		season sql.NullInt64
		round  sql.NullInt64
		syncTS sql.NullTime
		errMsg sql.NullString
	)
	err := r.db.QueryRowContext(ctx, q, entity).Scan(
		&wm.Entity, &season, &round, &syncTS, &wm.TotalRecords, &wm.Status, &errMsg,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("mssql: SelectWatermark %s: %w", entity, err)
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
		t := syncTS.Time
		wm.LastSync = &t
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

	upd := fmt.Sprintf(
		`UPDATE %s SET status = 'running', last_updated = SYSUTCDATETIME() WHERE entity_name = @p1`,
		r.meta("sync_status"),
	)
	res, err := tx.ExecContext(ctx, upd, entity)
	if err != nil {
		return 0, fmt.Errorf("mssql: StartSync %s: status: %w", entity, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		ins := fmt.Sprintf(
			`INSERT INTO %s (entity_name, status, last_updated) VALUES (@p1, 'running', SYSUTCDATETIME())`,
			r.meta("sync_status"),
		)
		if _, err := tx.ExecContext(ctx, ins, entity); err != nil {
			return 0, fmt.Errorf("mssql: StartSync %s: status insert: %w", entity, err)
		}
	}

	var logID int64
	logIns := fmt.Sprintf(
		`INSERT INTO %s (entity_name, status) OUTPUT INSERTED.id VALUES (@p1, 'running')`,
		r.meta("sync_log"),
	)
	if err := tx.QueryRowContext(ctx, logIns, entity).Scan(&logID); err != nil {
		return 0, fmt.Errorf("mssql: StartSync %s: log: %w", entity, err)
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

	logUpd := fmt.Sprintf(
		`UPDATE %s SET status = @p1, records_affected = @p2, duration_seconds = @p3, error_message = @p4
		 WHERE id = @p5`,
		r.meta("sync_log"),
	)
	if _, err := tx.ExecContext(ctx, logUpd, status, res.Records, res.Duration.Seconds(), errMsg, logID); err != nil {
		return fmt.Errorf("mssql: CompleteSync %s: log: %w", entity, err)
	}

	if res.Success {
		q := fmt.Sprintf(
			`UPDATE %s SET status = 'success', last_successful_sync = SYSUTCDATETIME(),
			        total_records = total_records + @p1, error_message = NULL,
			        last_updated = SYSUTCDATETIME(),
			        last_season_year = CASE WHEN @p2 > 0 THEN @p2 ELSE last_season_year END,
			        last_round_number = CASE WHEN @p3 > 0 THEN @p3 ELSE last_round_number END
			 WHERE entity_name = @p4`,
			r.meta("sync_status"),
		)
		if _, err := tx.ExecContext(ctx, q, res.Records, res.SeasonYear, res.RoundNumber, entity); err != nil {
			return fmt.Errorf("mssql: CompleteSync %s: status: %w", entity, err)
		}
	} else {
		q := fmt.Sprintf(
			`UPDATE %s SET status = 'failed', error_message = @p1, last_updated = SYSUTCDATETIME()
			 WHERE entity_name = @p2`,
			r.meta("sync_status"),
		)
		if _, err := tx.ExecContext(ctx, q, res.ErrorMessage, entity); err != nil {
			return fmt.Errorf("mssql: CompleteSync %s: status: %w", entity, err)
		}
	}

	return tx.Commit()
}

func (r *Repo) MaxRound(ctx context.Context, season int) (int, error) {
	q := fmt.Sprintf(
		`SELECT COALESCE(MAX(number), 0) FROM %s WHERE YEAR(date) = @p1`,
		r.qualify("round"),
	)
	var n int
	if err := r.db.QueryRowContext(ctx, q, season).Scan(&n); err != nil {
		return 0, fmt.Errorf("mssql: MaxRound %d: %w", season, err)
	}
	return n, nil
}

func (r *Repo) RaceDates(ctx context.Context, season int) ([]time.Time, error) {
	q := fmt.Sprintf(
		`SELECT date FROM %s WHERE YEAR(date) = @p1 ORDER BY number`,
		r.qualify("round"),
	)
	return r.queryDates(ctx, q, season)
}

func (r *Repo) SprintRaceDates(ctx context.Context, season int) ([]time.Time, error) {
	q := fmt.Sprintf(
		`SELECT r.date FROM %s r JOIN %s s ON s.round_id = r.id
		 WHERE s.type = 'SR' AND YEAR(r.date) = @p1 ORDER BY r.number`,
		r.qualify("round"), r.qualify("session"),
	)
	return r.queryDates(ctx, q, season)
}

func (r *Repo) queryDates(ctx context.Context, q string, season int) ([]time.Time, error) {
	rows, err := r.db.QueryContext(ctx, q, season)
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

func (r *Repo) SelectKeyValue(ctx context.Context, table, keyColumn, valueColumn string) (map[string]int64, error) {
	if table == "" || keyColumn == "" || valueColumn == "" {
		return nil, fmt.Errorf("mssql: SelectKeyValue: table, keyColumn, valueColumn are required")
	}

	q := fmt.Sprintf(`SELECT %s, %s FROM %s`,
		msIdent(keyColumn), msIdent(valueColumn), r.qualify(table))

	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("mssql: SelectKeyValue: query %s: %w", table, err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var k any
		var id int64
		if err := rows.Scan(&k, &id); err != nil {
			return nil, fmt.Errorf("mssql: SelectKeyValue: scan %s: %w", table, err)
		}
		out[warehouse.NormalizeKey(k)] = id
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("mssql: SelectKeyValue: rows %s: %w", table, err)
	}
	return out, nil
}

func (r *Repo) SeasonID(ctx context.Context, year int) (int64, bool, error) {
	q := fmt.Sprintf(`SELECT id FROM %s WHERE year = @p1`, r.qualify("season"))
	var id int64
	err := r.db.QueryRowContext(ctx, q, year).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("mssql: SeasonID %d: %w", year, err)
	}
	return id, true, nil
}

func (r *Repo) RoundID(ctx context.Context, year, round int) (int64, bool, error) {
	q := fmt.Sprintf(
		`SELECT id FROM %s WHERE YEAR(date) = @p1 AND number = @p2`,
		r.qualify("round"),
	)
	var id int64
	err := r.db.QueryRowContext(ctx, q, year, round).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("mssql: RoundID %d/%d: %w", year, round, err)
	}
	return id, true, nil
}

func (r *Repo) SessionsByRound(ctx context.Context, sessionType string) (map[int64]warehouse.SessionRef, error) {
	q := fmt.Sprintf(
		`SELECT round_id, id, number FROM %s WHERE type = @p1`,
		r.qualify("session"),
	)
	rows, err := r.db.QueryContext(ctx, q, sessionType)
	if err != nil {
		return nil, fmt.Errorf("mssql: SessionsByRound %s: %w", sessionType, err)
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
	q := fmt.Sprintf(`SELECT COUNT_BIG(*) FROM %s`, r.qualify(table))
	if err := r.db.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return 0, fmt.Errorf("mssql: CountRows %s: %w", table, err)
	}
	return n, nil
}

func (r *Repo) TableColumns(ctx context.Context, table string) ([]string, error) {
	q := `SELECT column_name FROM information_schema.columns
	      WHERE table_schema = @p1 AND table_name = @p2 ORDER BY ordinal_position`
	rows, err := r.db.QueryContext(ctx, q, r.schema, table)
	if err != nil {
		return nil, fmt.Errorf("mssql: TableColumns %s: %w", table, err)
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

// AppendRows inserts rows with explicit ids in a single transaction.
// IDENTITY_INSERT is toggled for the duration; rows whose id already exists
// are skipped via NOT EXISTS.
func (r *Repo) AppendRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	qualified := r.qualify(table)
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`SET IDENTITY_INSERT %s ON`, qualified)); err != nil {
		return 0, fmt.Errorf("mssql: AppendRows %s: identity on: %w", table, err)
	}

	idPos := -1
	for i, c := range columns {
		if c == "id" {
			idPos = i
			break
		}
	}
	if idPos < 0 {
		return 0, fmt.Errorf("mssql: AppendRows %s: columns must include id", table)
	}

	q := buildInsertNotExistsSQL(qualified, columns, idPos)
	var total int64
	for _, row := range rows {
		args := make([]any, 0, len(row)+1)
		for _, v := range row {
			args = append(args, v)
		}
		args = append(args, row[idPos])
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return 0, fmt.Errorf("mssql: AppendRows %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`SET IDENTITY_INSERT %s OFF`, qualified)); err != nil {
		return 0, fmt.Errorf("mssql: AppendRows %s: identity off: %w", table, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return total, nil
}

// ResyncIdentity reseeds the table's identity to MAX(id).
func (r *Repo) ResyncIdentity(ctx context.Context, table string) error {
	q := fmt.Sprintf(
		`DECLARE @m BIGINT = (SELECT COALESCE(MAX(id), 0) FROM %s);
		 DBCC CHECKIDENT ('%s.%s', RESEED, @m)`,
		r.qualify(table), r.schema, table,
	)
	if _, err := r.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("mssql: ResyncIdentity %s: %w", table, err)
	}
	return nil
}

// UpsertRows reconciles rows against their natural key in a single
// transaction using UPDATE-then-INSERT per row.
func (r *Repo) UpsertRows(ctx context.Context, table string, columns []string, rows [][]any, conflictColumns, updateColumns []string) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	colPos := map[string]int{}
	for i, c := range columns {
		colPos[c] = i
	}
	for _, c := range append(append([]string{}, conflictColumns...), updateColumns...) {
		if _, ok := colPos[c]; !ok {
			return 0, fmt.Errorf("mssql: UpsertRows %s: column %q not present", table, c)
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	qualified := r.qualify(table)
	updSQL := buildUpdateSQL(qualified, updateColumns, conflictColumns)
	insSQL := buildInsertNotExistsKeySQL(qualified, columns, conflictColumns, colPos)

	for _, row := range rows {
		updArgs := make([]any, 0, len(updateColumns)+len(conflictColumns))
		for _, c := range updateColumns {
			updArgs = append(updArgs, row[colPos[c]])
		}
		for _, c := range conflictColumns {
			updArgs = append(updArgs, row[colPos[c]])
		}
		res, err := tx.ExecContext(ctx, updSQL, updArgs...)
		if err != nil {
			return 0, fmt.Errorf("mssql: UpsertRows %s: update: %w", table, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			continue
		}

		insArgs := make([]any, 0, len(row)+len(conflictColumns))
		for _, v := range row {
			insArgs = append(insArgs, v)
		}
		for _, c := range conflictColumns {
			insArgs = append(insArgs, row[colPos[c]])
		}
		if _, err := tx.ExecContext(ctx, insSQL, insArgs...); err != nil {
			return 0, fmt.Errorf("mssql: UpsertRows %s: insert: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return int64(len(rows)), nil
}
