package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pressly/goose/v3"

	"github.com/Strob0t/TenantForge/internal/domain/tenant"
	"github.com/Strob0t/TenantForge/internal/port/lifecycle"
)

//go:embed tenantmigrations/*.sql
var tenantMigrations embed.FS

var _ lifecycle.Provider = (*Lifecycle)(nil)

// defaultRoles are seeded into every new tenant database.
var defaultRoles = []struct{ name, description string }{
	{"admin", "Full access to the tenant workspace"},
	{"member", "Standard workspace access"},
	{"viewer", "Read-only access"},
}

// Lifecycle implements lifecycle.Provider on a PostgreSQL cluster. Tenant
// databases are migrated with goose from the embedded tenantmigrations set.
type Lifecycle struct {
	cluster     *Cluster
	pingTimeout time.Duration
}

// NewLifecycle creates a Lifecycle on cluster.
func NewLifecycle(cluster *Cluster, pingTimeout time.Duration) *Lifecycle {
	if pingTimeout <= 0 {
		pingTimeout = 5 * time.Second
	}
	return &Lifecycle{cluster: cluster, pingTimeout: pingTimeout}
}

// CreateDatabase creates the tenant database unless it already exists.
func (l *Lifecycle) CreateDatabase(ctx context.Context, t *tenant.Tenant) error {
	name := t.Database.Name
	exists, err := l.cluster.databaseExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	// CREATE DATABASE cannot run inside a transaction or take parameters.
	err = l.cluster.ddl.Run(ctx, func() error {
		_, err := l.cluster.admin.Exec(ctx, "CREATE DATABASE "+ident(name))
		return err
	})
	if err != nil {
		if hasSQLState(err, sqlStateDuplicateDatabase) {
			return nil
		}
		return fmt.Errorf("create database %s: %w", name, unavailable(err))
	}
	slog.InfoContext(ctx, "tenant database created", "tenant_id", t.ID, "database", name)
	return nil
}

// Migrate applies pending tenant migrations.
func (l *Lifecycle) Migrate(ctx context.Context, t *tenant.Tenant) error {
	dsn, err := l.cluster.ownerDSN(t.Database.Name)
	if err != nil {
		return fmt.Errorf("%w: %w", tenant.ErrMigration, err)
	}
	db, err := goose.OpenDBWithDriver("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open %s for migrations: %w", t.Database.Name, unavailable(err))
	}
	defer func() { _ = db.Close() }()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("reach %s: %w", t.Database.Name, unavailable(err))
	}

	sub, err := fs.Sub(tenantMigrations, "tenantmigrations")
	if err != nil {
		return fmt.Errorf("%w: %w", tenant.ErrMigration, err)
	}
	// A provider per call: goose's package-level state is not safe for the
	// concurrent fleet migration.
	provider, err := goose.NewProvider(goose.DialectPostgres, db, sub)
	if err != nil {
		return fmt.Errorf("%w: %w", tenant.ErrMigration, err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", tenant.ErrMigration, t.Database.Name, err)
	}
	if len(results) > 0 {
		slog.InfoContext(ctx, "tenant migrations applied", "tenant_id", t.ID, "count", len(results))
	}
	return nil
}

// Seed inserts the default roles and settings. Existing rows are kept.
func (l *Lifecycle) Seed(ctx context.Context, t *tenant.Tenant) error {
	return l.cluster.withTenantConn(ctx, t.Database.Name, func(conn *pgx.Conn) error {
		tx, err := conn.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin seed tx: %w", unavailable(err))
		}
		defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

		batch := &pgx.Batch{}
		for _, r := range defaultRoles {
			batch.Queue(`INSERT INTO roles (tenant_id, name, description) VALUES ($1, $2, $3)
			 ON CONFLICT (tenant_id, name) DO NOTHING`, t.ID, r.name, r.description)
		}
		batch.Queue(`INSERT INTO settings (tenant_id, key, value) VALUES ($1, 'company', $2)
		 ON CONFLICT (tenant_id, key) DO NOTHING`, t.ID, map[string]string{
			"name":   t.Name,
			"code":   t.Code,
			"domain": t.PrimaryDomain(),
		})
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("%w: seed %s: %w", tenant.ErrMigration, t.Database.Name, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit seed: %w", unavailable(err))
		}
		return nil
	})
}

// Ping connects with the tenant's own connection string.
func (l *Lifecycle) Ping(ctx context.Context, db tenant.Database) error {
	if db.IsPlaceholder() {
		return fmt.Errorf("%w: descriptor not derived", tenant.ErrDatabaseUnavailable)
	}
	ctx, cancel := context.WithTimeout(ctx, l.pingTimeout)
	defer cancel()

	conn, err := pgx.Connect(ctx, db.ConnectionString)
	if err != nil {
		return fmt.Errorf("connect %s: %w", db.Name, unavailable(err))
	}
	defer func() { _ = conn.Close(context.WithoutCancel(ctx)) }()
	if err := conn.Ping(ctx); err != nil {
		return fmt.Errorf("ping %s: %w", db.Name, unavailable(err))
	}
	return nil
}

// Drop terminates sessions on the database and drops it if it exists.
func (l *Lifecycle) Drop(ctx context.Context, databaseName string) error {
	if databaseName == "" || databaseName == tenant.PlaceholderDatabase.Name {
		return nil
	}
	if _, err := l.cluster.admin.Exec(ctx,
		`SELECT pg_terminate_backend(pid) FROM pg_stat_activity
		 WHERE datname = $1 AND pid <> pg_backend_pid()`, databaseName); err != nil {
		return fmt.Errorf("terminate sessions on %s: %w", databaseName, unavailable(err))
	}
	err := l.cluster.ddl.Run(ctx, func() error {
		_, err := l.cluster.admin.Exec(ctx, "DROP DATABASE IF EXISTS "+ident(databaseName))
		return err
	})
	if err != nil {
		return fmt.Errorf("drop database %s: %w", databaseName, unavailable(err))
	}
	slog.InfoContext(ctx, "tenant database dropped", "database", databaseName)
	return nil
}
