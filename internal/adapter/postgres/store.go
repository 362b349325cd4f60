package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/TenantForge/internal/domain/registration"
	"github.com/Strob0t/TenantForge/internal/port/database"
)

var _ database.Store = (*Store)(nil)

// Store implements database.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Ping checks control-plane connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return mapErr(s.pool.Ping(ctx))
}

// --- Registrations ---

const registrationColumns = `id, company_code, company_name, contact_email, admin_email, admin_username,
	admin_first_name, admin_last_name, admin_password_hash, billing_cycle, email_verified, status,
	COALESCE(tenant_id::text, ''), COALESCE(approved_by, ''), approved_at, created_at, updated_at`

func scanRegistration(row scannable) (registration.Registration, error) {
	var r registration.Registration
	err := row.Scan(
		&r.ID, &r.CompanyCode, &r.CompanyName, &r.ContactEmail, &r.AdminEmail, &r.AdminUsername,
		&r.AdminFirstName, &r.AdminLastName, &r.AdminPasswordHash, &r.BillingCycle, &r.EmailVerified, &r.Status,
		&r.TenantID, &r.ApprovedBy, &r.ApprovedAt, &r.CreatedAt, &r.UpdatedAt,
	)
	return r, err
}

func (s *Store) GetRegistration(ctx context.Context, id string) (*registration.Registration, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+registrationColumns+` FROM registrations WHERE id = $1`, id)
	r, err := scanRegistration(row)
	if err != nil {
		return nil, notFoundWrap(err, "get registration %s", id)
	}
	return &r, nil
}

func (s *Store) GetRegistrationByTenant(ctx context.Context, tenantID string) (*registration.Registration, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+registrationColumns+` FROM registrations
		 WHERE tenant_id = $1 ORDER BY created_at ASC LIMIT 1`, tenantID)
	r, err := scanRegistration(row)
	if err != nil {
		return nil, notFoundWrap(err, "get registration for tenant %s", tenantID)
	}
	return &r, nil
}

// CreateRegistration inserts a signup record. It backs the admin CLI and
// integration tests; the signup flow itself lives outside this service.
func (s *Store) CreateRegistration(ctx context.Context, r *registration.Registration) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO registrations (company_code, company_name, contact_email, admin_email, admin_username,
		     admin_first_name, admin_last_name, admin_password_hash, billing_cycle, email_verified, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING id, created_at, updated_at`,
		r.CompanyCode, r.CompanyName, r.ContactEmail, r.AdminEmail, r.AdminUsername,
		r.AdminFirstName, r.AdminLastName, r.AdminPasswordHash, r.Cycle(), r.EmailVerified, r.Status,
	).Scan(&r.ID, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create registration: %w", mapErr(err))
	}
	return nil
}
