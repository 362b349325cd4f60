// Package postgres provides the PostgreSQL control-plane store, the tenant
// database lifecycle and the scoped credential issuer.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx driver for database/sql (needed by goose)
	"github.com/pressly/goose/v3"

	"github.com/Strob0t/TenantForge/internal/config"
)

//go:embed migrations/*.sql
var migrations embed.FS

// NewPool creates the control-plane pool and pings it once.
func NewPool(ctx context.Context, cfg config.Postgres) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolCfg.HealthCheckPeriod = cfg.HealthCheck

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", unavailable(err))
	}

	return pool, nil
}

// controlPlane opens dsn and returns a goose provider over the embedded
// control-plane migrations. The caller closes the returned db.
func controlPlane(dsn string) (*goose.Provider, *sql.DB, error) {
	db, err := goose.OpenDBWithDriver("pgx", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open control plane for migrations: %w", unavailable(err))
	}
	sub, err := fs.Sub(migrations, "migrations")
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	p, err := goose.NewProvider(goose.DialectPostgres, db, sub)
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("migration provider: %w", err)
	}
	return p, db, nil
}

// RunMigrations applies all pending control-plane migrations.
func RunMigrations(ctx context.Context, dsn string) error {
	p, db, err := controlPlane(dsn)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	results, err := p.Up(ctx)
	if err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	for _, r := range results {
		slog.InfoContext(ctx, "control plane migration applied", "version", r.Source.Version, "duration", r.Duration)
	}
	return nil
}

// RollbackMigrations rolls back the last steps control-plane migrations. It
// stops early when nothing is left to roll back.
func RollbackMigrations(ctx context.Context, dsn string, steps int) error {
	p, db, err := controlPlane(dsn)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	for range steps {
		r, err := p.Down(ctx)
		if errors.Is(err, goose.ErrNoNextVersion) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("rollback: %w", err)
		}
		slog.InfoContext(ctx, "control plane migration rolled back", "version", r.Source.Version)
	}
	return nil
}

// MigrationVersion returns the current control-plane migration version.
func MigrationVersion(ctx context.Context, dsn string) (int64, error) {
	p, db, err := controlPlane(dsn)
	if err != nil {
		return 0, err
	}
	defer func() { _ = db.Close() }()

	v, err := p.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("get version: %w", err)
	}
	return v, nil
}
