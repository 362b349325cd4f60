package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/TenantForge/internal/config"
	"github.com/Strob0t/TenantForge/internal/domain/tenant"
	"github.com/Strob0t/TenantForge/internal/resilience"
)

const (
	sqlStateDuplicateDatabase = "42P04"
	sqlStateInvalidCatalog    = "3D000"
)

// Cluster is the PostgreSQL server hosting tenant databases. It holds a pool
// on the maintenance database for CREATE/DROP DATABASE and role management,
// and opens short-lived owner connections into individual tenant databases.
type Cluster struct {
	admin    *pgxpool.Pool
	template string
	ddl      *resilience.Slots
}

// NewCluster connects to the maintenance database derived from template.
func NewCluster(ctx context.Context, template string, cfg config.TenantDB) (*Cluster, error) {
	dsn, err := tenant.WithDatabase(template, cfg.MaintenanceDatabase)
	if err != nil {
		return nil, fmt.Errorf("maintenance dsn: %w", err)
	}
	pool, err := NewPool(ctx, config.Postgres{DSN: dsn, MaxConns: 4, MinConns: 1})
	if err != nil {
		return nil, fmt.Errorf("maintenance pool: %w", err)
	}
	return &Cluster{admin: pool, template: template, ddl: resilience.NewSlots(cfg.MaxConcurrentDDL)}, nil
}

// Close releases the maintenance pool.
func (c *Cluster) Close() { c.admin.Close() }

// ownerDSN is the template connection string pointed at dbName. It keeps
// the template's owner credentials.
func (c *Cluster) ownerDSN(dbName string) (string, error) {
	return tenant.WithDatabase(c.template, dbName)
}

// withTenantConn runs fn on an owner connection into dbName.
func (c *Cluster) withTenantConn(ctx context.Context, dbName string, fn func(*pgx.Conn) error) error {
	dsn, err := c.ownerDSN(dbName)
	if err != nil {
		return err
	}
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return fmt.Errorf("connect %s: %w", dbName, unavailable(err))
	}
	defer func() { _ = conn.Close(context.WithoutCancel(ctx)) }()
	return fn(conn)
}

func (c *Cluster) databaseExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := c.admin.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)`, name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check database %s: %w", name, unavailable(err))
	}
	return exists, nil
}

// unavailable maps err and, when it is not already classified, marks it as a
// connectivity failure.
func unavailable(err error) error {
	mapped := mapErr(err)
	if errors.Is(mapped, tenant.ErrDatabaseUnavailable) {
		return mapped
	}
	return fmt.Errorf("%w: %w", tenant.ErrDatabaseUnavailable, err)
}

func hasSQLState(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}
