// Package user defines the operator identities permitted to log in to a tenant.
package user

import (
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role represents the authorization level of an identity.
type Role string

const (
	RoleTenantAdmin Role = "tenant_admin"
)

// collisionSuffixLen is how many characters of the tenant id disambiguate a
// colliding username.
const collisionSuffixLen = 8

// AdminIdentity is the operator account of a newly provisioned tenant.
type AdminIdentity struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	FirstName     string    `json:"first_name"`
	LastName      string    `json:"last_name"`
	PasswordHash  string    `json:"-"` // never serialized
	Role          Role      `json:"role"`
	TenantID      string    `json:"tenant_id"`
	Active        bool      `json:"active"`
	EmailVerified bool      `json:"email_verified"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NewAdminIdentity creates an inactive, unassigned identity.
func NewAdminIdentity(username, email, firstName, lastName, passwordHash string) (*AdminIdentity, error) {
	if username == "" {
		return nil, errors.New("username is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, errors.New("invalid admin email format")
	}
	if passwordHash == "" {
		return nil, errors.New("password hash is required")
	}
	return &AdminIdentity{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        strings.ToLower(email),
		FirstName:    firstName,
		LastName:     lastName,
		PasswordHash: passwordHash,
	}, nil
}

// Activate enables login.
func (a *AdminIdentity) Activate() { a.Active = true }

// VerifyEmail marks the email as verified.
func (a *AdminIdentity) VerifyEmail() { a.EmailVerified = true }

// AssignToTenant binds the identity to a tenant as its administrator.
func (a *AdminIdentity) AssignToTenant(tenantID string) {
	a.TenantID = tenantID
	a.Role = RoleTenantAdmin
}

// TenantUsername is the preferred username "{requested}-{tenantCode}".
func TenantUsername(requested, tenantCode string) string {
	return requested + "-" + tenantCode
}

// DisambiguatedUsername appends the first characters of the tenant id to the
// preferred username.
func DisambiguatedUsername(requested, tenantCode, tenantID string) string {
	suffix := strings.ReplaceAll(tenantID, "-", "")
	if len(suffix) > collisionSuffixLen {
		suffix = suffix[:collisionSuffixLen]
	}
	return TenantUsername(requested, tenantCode) + "-" + suffix
}
