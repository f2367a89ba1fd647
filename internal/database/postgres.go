// Package database opens the marketplace Postgres pool and keeps its schema at
// the version embedded in the binary.
package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrSchemaBehind is reported by Health while migrations are still pending.
var ErrSchemaBehind = errors.New("database schema has pending migrations")

type Options struct {
	URL         string
	MaxConns    int32
	MinConns    int32
	PingTimeout time.Duration
}

// DB holds the pgx pool shared by the identity, order and audit repositories
// together with the goose provider that owns their tables.
type DB struct {
	pool        *pgxpool.Pool
	sqlDB       *sql.DB
	migrations  *goose.Provider
	pingTimeout time.Duration
}

// Open connects, then applies every pending migration before returning.
func Open(ctx context.Context, opts Options) (*DB, error) {
	poolCfg, err := pgxpool.ParseConfig(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	poolCfg.MaxConns = opts.MaxConns
	poolCfg.MinConns = opts.MinConns
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	db := &DB{pool: pool, pingTimeout: opts.PingTimeout}
	if db.pingTimeout <= 0 {
		db.pingTimeout = 2 * time.Second
	}
	if err := db.ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := db.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	slog.Info("database ready", "max_conns", opts.MaxConns, "min_conns", opts.MinConns)
	return db, nil
}

func (db *DB) migrate(ctx context.Context) error {
	migrations, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("open embedded migrations: %w", err)
	}

	db.sqlDB = stdlib.OpenDBFromPool(db.pool)
	db.migrations, err = goose.NewProvider(goose.DialectPostgres, db.sqlDB, migrations)
	if err != nil {
		return fmt.Errorf("create migration provider: %w", err)
	}

	results, err := db.migrations.Up(ctx)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	for _, result := range results {
		slog.Info("migration applied", "version", result.Source.Version, "path", result.Source.Path, "duration", result.Duration)
	}

	version, err := db.migrations.GetDBVersion(ctx)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	slog.Info("database schema current", "version", version, "applied", len(results))
	return nil
}

func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

func (db *DB) ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, db.pingTimeout)
	defer cancel()
	return db.pool.Ping(ctx)
}

// Health pings the pool and fails with ErrSchemaBehind when the schema is
// behind the migrations embedded in this binary.
func (db *DB) Health(ctx context.Context) error {
	if err := db.ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	if db.migrations == nil {
		return nil
	}
	pending, err := db.migrations.HasPending(ctx)
	if err != nil {
		return fmt.Errorf("check migrations: %w", err)
	}
	if pending {
		return ErrSchemaBehind
	}
	return nil
}

func (db *DB) Close() {
	if db.sqlDB != nil {
		_ = db.sqlDB.Close()
	}
	if db.pool != nil {
		db.pool.Close()
	}
}
