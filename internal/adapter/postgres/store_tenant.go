package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Strob0t/TenantForge/internal/domain/registration"
	"github.com/Strob0t/TenantForge/internal/domain/tenant"
	"github.com/Strob0t/TenantForge/internal/port/database"
)

// --- Tenants ---

func (s *Store) GetTenant(ctx context.Context, id string) (*tenant.Tenant, error) {
	var t tenant.Tenant
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, code, contact_email, database_name, connection_string, active, created_at, updated_at
		 FROM tenants WHERE id = $1`, id,
	).Scan(&t.ID, &t.Name, &t.Code, &t.ContactEmail, &t.Database.Name, &t.Database.ConnectionString,
		&t.Active, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, notFoundWrap(err, "get tenant %s", id)
	}

	if t.Domains, err = s.tenantDomains(ctx, id); err != nil {
		return nil, err
	}
	if t.Subscriptions, err = s.tenantSubscriptions(ctx, id); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) tenantDomains(ctx context.Context, tenantID string) ([]tenant.Domain, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT name, is_primary FROM tenant_domains WHERE tenant_id = $1 ORDER BY is_primary DESC, name`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list domains of tenant %s: %w", tenantID, mapErr(err))
	}
	defer rows.Close()

	var out []tenant.Domain
	for rows.Next() {
		var d tenant.Domain
		if err := rows.Scan(&d.Name, &d.IsPrimary); err != nil {
			return nil, fmt.Errorf("scan domain: %w", err)
		}
		out = append(out, d)
	}
	return orEmpty(out), rows.Err()
}

func (s *Store) tenantSubscriptions(ctx context.Context, tenantID string) ([]tenant.Subscription, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, tenant_id, plan_id, billing_cycle, price, status, start_date, trial_end_date
		 FROM subscriptions WHERE tenant_id = $1 ORDER BY start_date DESC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions of tenant %s: %w", tenantID, mapErr(err))
	}
	defer rows.Close()

	var out []tenant.Subscription
	for rows.Next() {
		var sub tenant.Subscription
		if err := rows.Scan(&sub.ID, &sub.TenantID, &sub.PlanID, &sub.BillingCycle, &sub.Price,
			&sub.Status, &sub.StartDate, &sub.TrialEndDate); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		out = append(out, sub)
	}
	return orEmpty(out), rows.Err()
}

func (s *Store) TenantCodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM tenants WHERE lower(code) = lower($1))`, code).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check tenant code %s: %w", code, mapErr(err))
	}
	return exists, nil
}

func (s *Store) ListActiveTenantIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM tenants WHERE active ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list active tenants: %w", mapErr(err))
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan active tenants: %w", err)
	}
	return ids, nil
}

func (s *Store) SaveProvisionedTenant(ctx context.Context, t *tenant.Tenant, registrationID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", mapErr(err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	err = tx.QueryRow(ctx,
		`INSERT INTO tenants (id, name, code, contact_email, database_name, connection_string, active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING created_at, updated_at`,
		t.ID, t.Name, t.Code, t.ContactEmail, t.Database.Name, t.Database.ConnectionString, t.Active,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert tenant %s: %w", t.Code, mapErr(err))
	}

	batch := &pgx.Batch{}
	for _, d := range t.Domains {
		batch.Queue(`INSERT INTO tenant_domains (tenant_id, name, is_primary) VALUES ($1, $2, $3)`,
			t.ID, d.Name, d.IsPrimary)
	}
	for _, sub := range t.Subscriptions {
		batch.Queue(`INSERT INTO subscriptions (id, tenant_id, plan_id, billing_cycle, price, status, start_date, trial_end_date)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			sub.ID, t.ID, sub.PlanID, sub.BillingCycle, sub.Price, sub.Status, sub.StartDate, nullTime(sub.TrialEndDate))
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert tenant %s children: %w", t.Code, mapErr(err))
		}
	}

	tag, err := tx.Exec(ctx,
		`UPDATE registrations
		 SET status = $2, approved_by = $3, approved_at = $4, tenant_id = $5, updated_at = now()
		 WHERE id = $1`,
		registrationID, registration.StatusApproved, registration.ApprovedBySystem, time.Now().UTC(), t.ID)
	if err := execExpectOne(tag, err, "link registration %s", registrationID); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tenant %s: %w", t.Code, mapErr(err))
	}
	return nil
}

func (s *Store) UpdateTenantDatabase(ctx context.Context, tenantID string, db tenant.Database) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tenants SET database_name = $2, connection_string = $3, updated_at = now() WHERE id = $1`,
		tenantID, db.Name, db.ConnectionString)
	return execExpectOne(tag, err, "update database of tenant %s", tenantID)
}

func (s *Store) SetTenantActive(ctx context.Context, tenantID string, active bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tenants SET active = $2, updated_at = now() WHERE id = $1`, tenantID, active)
	return execExpectOne(tag, err, "set tenant %s active=%t", tenantID, active)
}

// deleteTenantAdminSQL removes the admin identity of one tenant. Identities
// sharing the email but bound to another tenant are kept.
const deleteTenantAdminSQL = `DELETE FROM admin_identities
	WHERE lower(email) = lower($1) AND (tenant_id = $2 OR tenant_id IS NULL)`

func (s *Store) RemoveOrphanedTenant(ctx context.Context, c database.OrphanCleanup) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", mapErr(err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if c.TenantID != "" {
		if _, err := tx.Exec(ctx, `DELETE FROM subscriptions WHERE tenant_id = $1`, c.TenantID); err != nil {
			return fmt.Errorf("delete subscriptions of tenant %s: %w", c.TenantID, mapErr(err))
		}
		if c.AdminEmail != "" {
			if _, err := tx.Exec(ctx, deleteTenantAdminSQL, c.AdminEmail, c.TenantID); err != nil {
				return fmt.Errorf("delete orphaned admin: %w", mapErr(err))
			}
		}
		if _, err := tx.Exec(ctx, `DELETE FROM tenants WHERE id = $1`, c.TenantID); err != nil {
			return fmt.Errorf("delete tenant %s: %w", c.TenantID, mapErr(err))
		}
	}
	if c.RegistrationID != "" {
		if _, err := tx.Exec(ctx,
			`UPDATE registrations SET tenant_id = NULL, updated_at = now() WHERE id = $1`, c.RegistrationID); err != nil {
			return fmt.Errorf("unlink registration %s: %w", c.RegistrationID, mapErr(err))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit orphan cleanup: %w", mapErr(err))
	}
	return nil
}

func (s *Store) DeleteTenantWithAdmin(ctx context.Context, tenantID, adminEmail string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", mapErr(err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if adminEmail != "" {
		if _, err := tx.Exec(ctx, deleteTenantAdminSQL, adminEmail, tenantID); err != nil {
			return fmt.Errorf("delete admin of tenant %s: %w", tenantID, mapErr(err))
		}
	}
	// Domains, subscriptions and remaining identities cascade; registrations are unlinked.
	if _, err := tx.Exec(ctx, `DELETE FROM tenants WHERE id = $1`, tenantID); err != nil {
		return fmt.Errorf("delete tenant %s: %w", tenantID, mapErr(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tenant delete: %w", mapErr(err))
	}
	return nil
}
