// Package credential defines the port that issues tenant-scoped database
// credentials.
package credential

import (
	"context"

	"github.com/Strob0t/TenantForge/internal/domain/tenant"
)

// Credential is a database login restricted to one tenant database.
type Credential struct {
	Username string
	Password string //nolint:gosec // generated credential, not a hardcoded secret
}

// Issuer mints scoped credentials and enables row-level isolation.
type Issuer interface {
	// IssueScoped creates (or rotates) the tenant's login role.
	IssueScoped(ctx context.Context, t *tenant.Tenant) (Credential, error)
	// EnableRowIsolation turns on row-level security policies keyed by tenant id.
	EnableRowIsolation(ctx context.Context, t *tenant.Tenant) error
	// Revoke drops the tenant's login role if it exists.
	Revoke(ctx context.Context, tenantID string) error
}
