// Package database defines the control-plane store port (interface).
package database

import (
	"context"

	"github.com/Strob0t/TenantForge/internal/domain/job"
	"github.com/Strob0t/TenantForge/internal/domain/registration"
	"github.com/Strob0t/TenantForge/internal/domain/tenant"
	"github.com/Strob0t/TenantForge/internal/domain/user"
	"github.com/Strob0t/TenantForge/internal/port/audit"
)

// OrphanCleanup names the records removed when an orphaned tenant is cleared.
type OrphanCleanup struct {
	TenantID       string
	RegistrationID string
	AdminEmail     string
}

// Store is the port interface for control-plane persistence. Methods that
// touch several records run as one all-or-nothing unit.
type Store interface {
	// Registrations
	GetRegistration(ctx context.Context, id string) (*registration.Registration, error)
	GetRegistrationByTenant(ctx context.Context, tenantID string) (*registration.Registration, error)

	// Tenants
	GetTenant(ctx context.Context, id string) (*tenant.Tenant, error)
	TenantCodeExists(ctx context.Context, code string) (bool, error)
	ListActiveTenantIDs(ctx context.Context) ([]string, error)
	// SaveProvisionedTenant inserts the tenant with its domains and
	// subscriptions and approves and links the registration, atomically.
	SaveProvisionedTenant(ctx context.Context, t *tenant.Tenant, registrationID string) error
	UpdateTenantDatabase(ctx context.Context, tenantID string, db tenant.Database) error
	SetTenantActive(ctx context.Context, tenantID string, active bool) error
	// RemoveOrphanedTenant deletes the tenant's subscriptions, its admin
	// identity matching AdminEmail and the tenant row, and clears the
	// registration link, atomically.
	RemoveOrphanedTenant(ctx context.Context, c OrphanCleanup) error
	// DeleteTenantWithAdmin deletes the tenant and the admin identity matching
	// adminEmail that belongs to it or to no tenant yet, atomically. Identities
	// with the same email on other tenants are kept.
	DeleteTenantWithAdmin(ctx context.Context, tenantID, adminEmail string) error

	// Admin identities
	UsernameExists(ctx context.Context, username string) (bool, error)
	GetAdminIdentityByEmail(ctx context.Context, email string) (*user.AdminIdentity, error)
	CreateAdminIdentity(ctx context.Context, a *user.AdminIdentity) error

	// Job attempts
	GetJobAttempt(ctx context.Context, key string) (*job.Attempt, error)
	SaveJobAttempt(ctx context.Context, a *job.Attempt) error
	// MarkRollbackEnqueued flips the rollback flag of key and reports whether
	// this call was the one that flipped it.
	MarkRollbackEnqueued(ctx context.Context, key string) (bool, error)

	audit.Recorder
}
