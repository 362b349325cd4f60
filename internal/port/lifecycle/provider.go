// Package lifecycle defines the port that manages tenant physical databases.
package lifecycle

import (
	"context"

	"github.com/Strob0t/TenantForge/internal/domain/tenant"
)

// Provider creates, migrates, seeds, probes and drops tenant databases.
// Connectivity failures wrap tenant.ErrDatabaseUnavailable and migration or
// seed failures wrap tenant.ErrMigration.
type Provider interface {
	// CreateDatabase creates the tenant database if it does not exist yet.
	CreateDatabase(ctx context.Context, t *tenant.Tenant) error
	// Migrate applies all pending tenant migrations.
	Migrate(ctx context.Context, t *tenant.Tenant) error
	// Seed loads initial reference data. It is idempotent.
	Seed(ctx context.Context, t *tenant.Tenant) error
	// Ping reports whether the tenant database accepts connections.
	Ping(ctx context.Context, db tenant.Database) error
	// Drop terminates open connections and drops the database if it exists.
	Drop(ctx context.Context, databaseName string) error
}
