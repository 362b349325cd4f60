package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	tfotel "github.com/Strob0t/TenantForge/internal/adapter/otel"
	"github.com/Strob0t/TenantForge/internal/domain"
	"github.com/Strob0t/TenantForge/internal/domain/audit"
	"github.com/Strob0t/TenantForge/internal/domain/job"
	"github.com/Strob0t/TenantForge/internal/domain/tenant"
	"github.com/Strob0t/TenantForge/internal/port/credential"
	"github.com/Strob0t/TenantForge/internal/port/database"
	"github.com/Strob0t/TenantForge/internal/port/lifecycle"
	"github.com/Strob0t/TenantForge/internal/resilience"
)

const defaultMigrateParallelism = 4

// MaintenanceService runs the tenant database jobs: migrate, seed, fleet-wide
// migration and rollback of a failed provisioning.
type MaintenanceService struct {
	store       database.Store
	lifecycle   lifecycle.Provider
	creds       credential.Issuer
	tenants     *TenantQueryService
	metrics     *tfotel.Metrics
	parallelism int
}

// NewMaintenanceService creates a MaintenanceService. parallelism bounds
// MigrateAll; values below one use the default.
func NewMaintenanceService(store database.Store, lc lifecycle.Provider, creds credential.Issuer, parallelism int) *MaintenanceService {
	if parallelism < 1 {
		parallelism = defaultMigrateParallelism
	}
	return &MaintenanceService{store: store, lifecycle: lc, creds: creds, parallelism: parallelism}
}

// SetTenantQuery sets the read model invalidated on rollback.
func (s *MaintenanceService) SetTenantQuery(q *TenantQueryService) { s.tenants = q }

// SetMetrics attaches metric instruments.
func (s *MaintenanceService) SetMetrics(m *tfotel.Metrics) { s.metrics = m }

func (s *MaintenanceService) loadTenant(ctx context.Context, tenantID string) (*tenant.Tenant, error) {
	t, err := s.store.GetTenant(ctx, tenantID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, &tenant.Failure{
			Kind:    tenant.KindValidation,
			Code:    tenant.CodeTenantNotFound,
			Message: tenant.ErrTenantNotFound.Error(),
			Err:     err,
		}
	}
	if err != nil {
		return nil, fmt.Errorf("load tenant %s: %w", tenantID, err)
	}
	return t, nil
}

// MigrateTenant creates the tenant database if needed and applies pending
// migrations.
func (s *MaintenanceService) MigrateTenant(ctx context.Context, tenantID string) error {
	t, err := s.loadTenant(ctx, tenantID)
	if err != nil {
		return err
	}
	if err := s.lifecycle.CreateDatabase(ctx, t); err != nil {
		return fmt.Errorf("create database for tenant %s: %w", tenantID, err)
	}
	if err := s.lifecycle.Migrate(ctx, t); err != nil {
		return fmt.Errorf("migrate tenant %s: %w", tenantID, err)
	}
	slog.InfoContext(ctx, "tenant database migrated", "tenant_id", tenantID)
	return nil
}

// SeedTenant loads the initial reference data of the tenant database.
func (s *MaintenanceService) SeedTenant(ctx context.Context, tenantID string) error {
	t, err := s.loadTenant(ctx, tenantID)
	if err != nil {
		return err
	}
	if err := s.lifecycle.Seed(ctx, t); err != nil {
		return fmt.Errorf("seed tenant %s: %w", tenantID, err)
	}
	slog.InfoContext(ctx, "tenant database seeded", "tenant_id", tenantID)
	return nil
}

// MigrateAll migrates every active tenant. A failing tenant does not stop the
// others; the failures are joined.
func (s *MaintenanceService) MigrateAll(ctx context.Context) error {
	ids, err := s.store.ListActiveTenantIDs(ctx)
	if err != nil {
		return fmt.Errorf("list active tenants: %w", err)
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)
	for _, id := range ids {
		g.Go(func() error {
			if err := s.MigrateTenant(gctx, id); err != nil {
				slog.ErrorContext(gctx, "tenant migration failed", "tenant_id", id, "error", err)
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	slog.InfoContext(ctx, "fleet migration finished", "tenants", len(ids), "failed", len(errs))
	return errors.Join(errs...)
}

// Rollback undoes a provisioning that ran out of attempts: drop the tenant
// database and role, then delete the tenant and its admin. An absent tenant
// is already rolled back. A tenant that is active, or whose provision chain
// never gave up, is refused with a validation failure.
func (s *MaintenanceService) Rollback(ctx context.Context, tenantID string) error {
	log := slog.With("tenant_id", tenantID)

	t, err := s.store.GetTenant(ctx, tenantID)
	if errors.Is(err, domain.ErrNotFound) {
		log.InfoContext(ctx, "tenant already gone, nothing to roll back")
		s.metrics.Rollback(ctx, "noop")
		return nil
	}
	if err != nil {
		s.metrics.Rollback(ctx, "failed")
		log.ErrorContext(ctx, "rollback failed", "error", err, "alert", true)
		return fmt.Errorf("load tenant %s: %w", tenantID, err)
	}
	if err := s.checkRollbackable(ctx, t); err != nil {
		s.metrics.Rollback(ctx, "refused")
		log.WarnContext(ctx, "rollback refused", "error", err)
		return err
	}

	adminEmail := t.ContactEmail
	registrationID := ""
	if reg, err := s.store.GetRegistrationByTenant(ctx, tenantID); err == nil {
		adminEmail = reg.AdminEmail
		registrationID = reg.ID
	}

	resilience.BestEffort(ctx, "lifecycle.drop", func(ctx context.Context) error {
		return s.lifecycle.Drop(ctx, t.Database.Name)
	}, "tenant_id", tenantID)
	if s.creds != nil {
		resilience.BestEffort(ctx, "credential.revoke", func(ctx context.Context) error {
			return s.creds.Revoke(ctx, tenantID)
		}, "tenant_id", tenantID)
	}

	if err := s.store.DeleteTenantWithAdmin(ctx, tenantID, adminEmail); err != nil {
		s.metrics.Rollback(ctx, "failed")
		log.ErrorContext(ctx, "rollback failed", "error", err, "alert", true)
		return fmt.Errorf("delete tenant %s: %w", tenantID, err)
	}
	s.tenants.Invalidate(ctx, tenantID)

	resilience.BestEffort(ctx, "audit.tenant_rolled_back", func(ctx context.Context) error {
		ev, err := audit.New(audit.TypeTenantRolledBack, audit.RiskHigh, audit.Metadata{
			TenantID:       tenantID,
			TenantName:     t.Name,
			RegistrationID: registrationID,
		})
		if err != nil {
			return err
		}
		return s.store.RecordAudit(ctx, ev)
	}, "tenant_id", tenantID)

	s.metrics.Rollback(ctx, "ok")
	log.WarnContext(ctx, "failed provisioning rolled back", "code", t.Code)
	return nil
}

// checkRollbackable allows a rollback only for an inactive tenant whose
// provision chain is exhausted or rolling back. A failed chain qualifies once
// its rollback was enqueued, so an operator can rerun a rollback that failed.
func (s *MaintenanceService) checkRollbackable(ctx context.Context, t *tenant.Tenant) error {
	refuse := func(reason string) error {
		return &tenant.Failure{
			Kind:    tenant.KindValidation,
			Code:    tenant.CodeNotRollbackable,
			Message: reason,
			Err:     tenant.ErrNotRollbackable,
		}
	}
	if t.Active {
		return refuse("tenant is active")
	}

	key := job.Envelope{Kind: job.KindProvision, TenantID: t.ID}.Key()
	a, err := s.store.GetJobAttempt(ctx, key)
	if errors.Is(err, domain.ErrNotFound) {
		return refuse("tenant has no provisioning record")
	}
	if err != nil {
		return fmt.Errorf("load job attempt %s: %w", key, err)
	}
	switch {
	case a.State == job.StateExhausted, a.State == job.StateRollingBack:
		return nil
	case a.State == job.StateFailed && a.RollbackEnqueued:
		return nil
	}
	return refuse(fmt.Sprintf("provisioning is %s", a.State))
}
