package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	tfotel "github.com/Strob0t/TenantForge/internal/adapter/otel"
	"github.com/Strob0t/TenantForge/internal/domain"
	"github.com/Strob0t/TenantForge/internal/domain/audit"
	"github.com/Strob0t/TenantForge/internal/domain/registration"
	"github.com/Strob0t/TenantForge/internal/domain/tenant"
	"github.com/Strob0t/TenantForge/internal/port/credential"
	"github.com/Strob0t/TenantForge/internal/port/database"
	"github.com/Strob0t/TenantForge/internal/port/lifecycle"
	"github.com/Strob0t/TenantForge/internal/resilience"
)

// OrphanService decides whether the tenant a registration points at is
// usable and clears it away when it is not.
type OrphanService struct {
	store     database.Store
	lifecycle lifecycle.Provider
	creds     credential.Issuer
	metrics   *tfotel.Metrics
}

// NewOrphanService creates an OrphanService.
func NewOrphanService(store database.Store, lc lifecycle.Provider, creds credential.Issuer) *OrphanService {
	return &OrphanService{store: store, lifecycle: lc, creds: creds}
}

// SetMetrics attaches metric instruments.
func (s *OrphanService) SetMetrics(m *tfotel.Metrics) { s.metrics = m }

// Resolve inspects the tenant linked to reg. A usable tenant (reachable and
// active) is returned as is. Otherwise its records are removed and the
// registration link cleared, and Resolve returns nil so provisioning can start
// over. A failed cleanup is terminal.
func (s *OrphanService) Resolve(ctx context.Context, reg *registration.Registration) (*tenant.Tenant, error) {
	if !reg.HasTenant() {
		return nil, nil
	}
	log := slog.With("tenant_id", reg.TenantID)

	t, err := s.store.GetTenant(ctx, reg.TenantID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		t = nil
	case err != nil:
		return nil, fmt.Errorf("load linked tenant %s: %w", reg.TenantID, err)
	}

	if t != nil && s.usable(ctx, t) {
		log.InfoContext(ctx, "linked tenant is healthy, reusing it")
		return t, nil
	}

	log.WarnContext(ctx, "linked tenant is orphaned, cleaning up", "tenant_found", t != nil)
	cleanup := database.OrphanCleanup{
		TenantID:       reg.TenantID,
		RegistrationID: reg.ID,
		AdminEmail:     reg.AdminEmail,
	}
	if err := s.store.RemoveOrphanedTenant(ctx, cleanup); err != nil {
		log.ErrorContext(ctx, "orphan cleanup failed", "error", err, "alert", true)
		return nil, &tenant.Failure{
			Kind:    tenant.KindCleanup,
			Code:    tenant.CodeCleanupFailed,
			Message: tenant.MessageManualCleanup,
			Err:     err,
		}
	}
	reg.TenantID = ""

	if t != nil {
		s.dropPhysical(ctx, t.ID)
		resilience.BestEffort(ctx, "audit.orphan_removed", func(ctx context.Context) error {
			ev, err := audit.New(audit.TypeOrphanRemoved, audit.RiskMedium, audit.Metadata{
				TenantID:       t.ID,
				TenantName:     t.Name,
				RegistrationID: reg.ID,
			})
			if err != nil {
				return err
			}
			return s.store.RecordAudit(ctx, ev)
		}, "tenant_id", t.ID)
	}
	s.metrics.OrphanRemoved(ctx, t != nil)
	return nil, nil
}

// usable reports whether t is active and its database answers.
func (s *OrphanService) usable(ctx context.Context, t *tenant.Tenant) bool {
	if !t.Active {
		return false
	}
	if err := s.lifecycle.Ping(ctx, t.Database); err != nil {
		slog.WarnContext(ctx, "tenant database unreachable", "tenant_id", t.ID, "error", err)
		return false
	}
	return true
}

// dropPhysical removes the tenant database and scoped role, best-effort.
func (s *OrphanService) dropPhysical(ctx context.Context, tenantID string) {
	resilience.BestEffort(ctx, "lifecycle.drop", func(ctx context.Context) error {
		return s.lifecycle.Drop(ctx, tenant.DatabaseName(tenantID))
	}, "tenant_id", tenantID)
	if s.creds != nil {
		resilience.BestEffort(ctx, "credential.revoke", func(ctx context.Context) error {
			return s.creds.Revoke(ctx, tenantID)
		}, "tenant_id", tenantID)
	}
}
