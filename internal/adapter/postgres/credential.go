package postgres

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/Strob0t/TenantForge/internal/domain/tenant"
	"github.com/Strob0t/TenantForge/internal/port/credential"
)

const (
	passwordBytes   = 24
	tenantSetting   = "app.tenant_id"
	isolationPolicy = "tenant_isolation"
)

var _ credential.Issuer = (*CredentialIssuer)(nil)

// CredentialIssuer implements credential.Issuer with one login role per
// tenant database and row-level security keyed by app.tenant_id.
type CredentialIssuer struct {
	cluster *Cluster
}

// NewCredentialIssuer creates a CredentialIssuer on cluster.
func NewCredentialIssuer(cluster *Cluster) *CredentialIssuer {
	return &CredentialIssuer{cluster: cluster}
}

// IssueScoped creates the tenant role, or rotates its password, and grants
// it DML rights on the tenant database only.
func (c *CredentialIssuer) IssueScoped(ctx context.Context, t *tenant.Tenant) (credential.Credential, error) {
	role := tenant.RoleName(t.ID)
	password, err := randomPassword()
	if err != nil {
		return credential.Credential{}, err
	}

	var exists bool
	if err := c.cluster.admin.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM pg_roles WHERE rolname = $1)`, role).Scan(&exists); err != nil {
		return credential.Credential{}, fmt.Errorf("check role %s: %w", role, unavailable(err))
	}

	// The password is hex, so quoting it inline is safe; DDL takes no parameters.
	verb := "CREATE"
	if exists {
		verb = "ALTER"
	}
	stmts := []string{
		fmt.Sprintf("%s ROLE %s WITH LOGIN NOSUPERUSER NOCREATEDB NOCREATEROLE PASSWORD '%s'", verb, ident(role), password),
		fmt.Sprintf("REVOKE ALL ON DATABASE %s FROM PUBLIC", ident(t.Database.Name)),
		fmt.Sprintf("GRANT CONNECT ON DATABASE %s TO %s", ident(t.Database.Name), ident(role)),
		fmt.Sprintf("ALTER ROLE %s IN DATABASE %s SET %s = '%s'", ident(role), ident(t.Database.Name), tenantSetting, t.ID),
	}
	for _, stmt := range stmts {
		if _, err := c.cluster.admin.Exec(ctx, stmt); err != nil {
			return credential.Credential{}, fmt.Errorf("provision role %s: %w", role, mapErr(err))
		}
	}

	err = c.cluster.withTenantConn(ctx, t.Database.Name, func(conn *pgx.Conn) error {
		for _, stmt := range []string{
			fmt.Sprintf("GRANT USAGE ON SCHEMA public TO %s", ident(role)),
			fmt.Sprintf("GRANT SELECT, INSERT, UPDATE, DELETE ON ALL TABLES IN SCHEMA public TO %s", ident(role)),
			fmt.Sprintf("GRANT USAGE ON ALL SEQUENCES IN SCHEMA public TO %s", ident(role)),
			fmt.Sprintf("ALTER DEFAULT PRIVILEGES IN SCHEMA public GRANT SELECT, INSERT, UPDATE, DELETE ON TABLES TO %s", ident(role)),
		} {
			if _, err := conn.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("grant %s: %w", role, mapErr(err))
			}
		}
		return nil
	})
	if err != nil {
		return credential.Credential{}, err
	}

	slog.InfoContext(ctx, "tenant credential issued", "tenant_id", t.ID, "role", role, "rotated", exists)
	return credential.Credential{Username: role, Password: password}, nil
}

// EnableRowIsolation enables row-level security on every tenant table that
// carries a tenant_id column.
func (c *CredentialIssuer) EnableRowIsolation(ctx context.Context, t *tenant.Tenant) error {
	return c.cluster.withTenantConn(ctx, t.Database.Name, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx,
			`SELECT table_name FROM information_schema.columns
			 WHERE table_schema = 'public' AND column_name = 'tenant_id'
			   AND table_name NOT LIKE 'goose_%'`)
		if err != nil {
			return fmt.Errorf("list tenant tables: %w", mapErr(err))
		}
		tables, err := pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return fmt.Errorf("scan tenant tables: %w", err)
		}

		for _, table := range tables {
			for _, stmt := range []string{
				fmt.Sprintf("ALTER TABLE %s ENABLE ROW LEVEL SECURITY", ident(table)),
				fmt.Sprintf("DROP POLICY IF EXISTS %s ON %s", isolationPolicy, ident(table)),
				fmt.Sprintf("CREATE POLICY %s ON %s USING (tenant_id = current_setting('%s', true)::uuid)",
					isolationPolicy, ident(table), tenantSetting),
			} {
				if _, err := conn.Exec(ctx, stmt); err != nil {
					return fmt.Errorf("isolate %s: %w", table, mapErr(err))
				}
			}
		}
		slog.InfoContext(ctx, "row isolation enabled", "tenant_id", t.ID, "tables", len(tables))
		return nil
	})
}

// Revoke drops the tenant role. Objects it owns in a still existing tenant
// database are dropped first.
func (c *CredentialIssuer) Revoke(ctx context.Context, tenantID string) error {
	role := tenant.RoleName(tenantID)
	var exists bool
	if err := c.cluster.admin.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM pg_roles WHERE rolname = $1)`, role).Scan(&exists); err != nil {
		return fmt.Errorf("check role %s: %w", role, unavailable(err))
	}
	if !exists {
		return nil
	}

	dbName := tenant.DatabaseName(tenantID)
	err := c.cluster.withTenantConn(ctx, dbName, func(conn *pgx.Conn) error {
		_, err := conn.Exec(ctx, "DROP OWNED BY "+ident(role))
		return mapErr(err)
	})
	if err != nil && !hasSQLState(err, sqlStateInvalidCatalog) {
		return fmt.Errorf("drop objects of %s: %w", role, err)
	}

	if _, err := c.cluster.admin.Exec(ctx, "DROP ROLE IF EXISTS "+ident(role)); err != nil {
		return fmt.Errorf("drop role %s: %w", role, mapErr(err))
	}
	slog.InfoContext(ctx, "tenant credential revoked", "tenant_id", tenantID, "role", role)
	return nil
}

func randomPassword() (string, error) {
	b := make([]byte, passwordBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate password: %w", err)
	}
	return hex.EncodeToString(b), nil
}
