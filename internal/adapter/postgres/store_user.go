package postgres

import (
	"context"
	"fmt"

	"github.com/Strob0t/TenantForge/internal/domain/user"
)

// --- Admin identities ---

func (s *Store) UsernameExists(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM admin_identities WHERE lower(username) = lower($1))`, username).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check username %s: %w", username, mapErr(err))
	}
	return exists, nil
}

func (s *Store) GetAdminIdentityByEmail(ctx context.Context, email string) (*user.AdminIdentity, error) {
	var a user.AdminIdentity
	err := s.pool.QueryRow(ctx,
		`SELECT id, username, email, first_name, last_name, password_hash, role,
		        COALESCE(tenant_id::text, ''), active, email_verified, created_at, updated_at
		 FROM admin_identities WHERE lower(email) = lower($1)
		 ORDER BY created_at DESC LIMIT 1`, email,
	).Scan(&a.ID, &a.Username, &a.Email, &a.FirstName, &a.LastName, &a.PasswordHash, &a.Role,
		&a.TenantID, &a.Active, &a.EmailVerified, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, notFoundWrap(err, "get admin identity %s", email)
	}
	return &a, nil
}

func (s *Store) CreateAdminIdentity(ctx context.Context, a *user.AdminIdentity) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO admin_identities (id, username, email, first_name, last_name, password_hash, role,
		     tenant_id, active, email_verified)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING created_at, updated_at`,
		a.ID, a.Username, a.Email, a.FirstName, a.LastName, a.PasswordHash, a.Role,
		nullIfEmpty(a.TenantID), a.Active, a.EmailVerified,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create admin identity %s: %w", a.Username, mapErr(err))
	}
	return nil
}
