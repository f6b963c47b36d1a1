// Package migration applies the embedded sync-metadata migrations to a
// Postgres warehouse.
//
// Only Postgres migrates through goose; the sqlite and mssql backends create
// their metadata tables directly at startup.
package migration

import (
	"database/sql"
	"embed"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// gooseLogger adapts zerolog to goose's logger interface.
type gooseLogger struct {
	log zerolog.Logger
}

func (g gooseLogger) Fatalf(format string, v ...interface{}) {
	g.log.Fatal().Msg(fmt.Sprintf(format, v...))
}

func (g gooseLogger) Printf(format string, v ...interface{}) {
	g.log.Info().Msg(fmt.Sprintf(format, v...))
}

// Run applies pending migrations against dsn, placing the metadata tables and
// goose's version table in metaSchema.
func Run(dsn, metaSchema string, log zerolog.Logger) error {
	if metaSchema == "" {
		metaSchema = "etl_meta"
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return errors.Wrap(err, "migration: open database")
	}
	defer db.Close()

	if _, err := db.Exec(fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %q", metaSchema)); err != nil {
		return errors.Wrapf(err, "migration: create schema %s", metaSchema)
	}
	if _, err := db.Exec(fmt.Sprintf("SET search_path TO %q", metaSchema)); err != nil {
		return errors.Wrap(err, "migration: set search_path")
	}

	goose.SetLogger(gooseLogger{log: log.With().Str("component", "migration").Logger()})
	goose.SetBaseFS(embeddedMigrations)
	goose.SetTableName(fmt.Sprintf("%q.goose_db_version", metaSchema))

	if err := goose.Up(db, "migrations"); err != nil {
		return errors.Wrap(err, "migration: goose up")
	}
	return nil
}
