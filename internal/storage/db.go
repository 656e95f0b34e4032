package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/stdlib"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"
	_ "modernc.org/sqlite"
)

type IDB = bun.IDB

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type DbConfig struct {
	Driver       string
	DSN          string
	MaxOpenConns int
	Debug        bool
	PgDriver     bool
}

type DB struct {
	*bun.DB
	sqldb *sql.DB
}

func New(cfg DbConfig) (*DB, error) {
	var (
		sqldb *sql.DB
		db    *bun.DB
	)
	switch cfg.Driver {
	case DriverSQLite:
		var err error
		sqldb, err = sql.Open("sqlite", cfg.DSN)
		if err != nil {
			return nil, err
		}
		// sqlite allows a single writer
		sqldb.SetMaxOpenConns(1)
		db = bun.NewDB(sqldb, sqlitedialect.New())
	case DriverPostgres, "":
		if cfg.PgDriver {
			sqldb = sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DSN)))
		} else {
			config, err := pgx.ParseConfig(cfg.DSN)
			if err != nil {
				return nil, err
			}
			config.PreferSimpleProtocol = true
			sqldb = stdlib.OpenDB(*config)
		}
		if cfg.MaxOpenConns > 0 {
			sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
			sqldb.SetMaxIdleConns(cfg.MaxOpenConns)
		}
		db = bun.NewDB(sqldb, pgdialect.New())
	default:
		return nil, fmt.Errorf("unsupported driver %q", cfg.Driver)
	}

	if cfg.Debug {
		db.AddQueryHook(bundebug.NewQueryHook(
			bundebug.WithVerbose(true),
			bundebug.FromEnv("BUNDEBUG"),
		))
	}
	ans := DB{
		DB:    db,
		sqldb: sqldb,
	}
	return &ans, nil
}

func (o *DB) Close() error {
	return o.sqldb.Close()
}

// CreateSchema creates the mirror tables when they are missing.
func CreateSchema(ctx context.Context, db IDB) error {
	models := []any{
		(*Event)(nil),
		(*Diagnostic)(nil),
	}
	for _, m := range models {
		if _, err := db.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			return err
		}
	}
	if _, err := db.NewCreateIndex().
		Model((*Event)(nil)).
		Index("events_ts_idx").
		IfNotExists().
		Column("ts").
		Exec(ctx); err != nil {
		return err
	}
	_, err := db.NewCreateIndex().
		Model((*Event)(nil)).
		Index("events_worker_idx").
		IfNotExists().
		Column("worker", "ts").
		Exec(ctx)
	return err
}
