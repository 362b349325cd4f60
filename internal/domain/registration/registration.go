// Package registration defines the self-service signup record a tenant is
// provisioned from.
package registration

import "time"

// Status is the lifecycle state of a registration.
type Status string

const (
	StatusPending  Status = "Pending"
	StatusApproved Status = "Approved"
	StatusRejected Status = "Rejected"
)

// BillingCycle is the billing period requested at signup.
type BillingCycle string

const (
	BillingMonthly BillingCycle = "monthly"
	BillingYearly  BillingCycle = "yearly"
)

// ApprovedBySystem is recorded as approver when the saga approves a registration.
const ApprovedBySystem = "system"

// Registration holds the desired tenant's company and admin facts.
type Registration struct {
	ID                string       `json:"id"`
	CompanyCode       string       `json:"company_code"`
	CompanyName       string       `json:"company_name"`
	ContactEmail      string       `json:"contact_email"`
	AdminEmail        string       `json:"admin_email"`
	AdminUsername     string       `json:"admin_username"`
	AdminFirstName    string       `json:"admin_first_name"`
	AdminLastName     string       `json:"admin_last_name"`
	AdminPasswordHash string       `json:"-"`
	BillingCycle      BillingCycle `json:"billing_cycle"`
	EmailVerified     bool         `json:"email_verified"`
	Status            Status       `json:"status"`
	TenantID          string       `json:"tenant_id,omitempty"`
	ApprovedBy        string       `json:"approved_by,omitempty"`
	ApprovedAt        *time.Time   `json:"approved_at,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

// HasTenant reports whether the registration links to a tenant.
func (r *Registration) HasTenant() bool {
	return r.TenantID != ""
}

// Provisionable reports whether the status allows tenant creation.
func (r *Registration) Provisionable() bool {
	return r.Status == StatusPending || r.Status == StatusApproved
}

// AdminFullName joins the admin's first and last name.
func (r *Registration) AdminFullName() string {
	switch {
	case r.AdminFirstName == "":
		return r.AdminLastName
	case r.AdminLastName == "":
		return r.AdminFirstName
	default:
		return r.AdminFirstName + " " + r.AdminLastName
	}
}

// Cycle returns the billing cycle, defaulting to monthly.
func (r *Registration) Cycle() BillingCycle {
	if r.BillingCycle == BillingYearly {
		return BillingYearly
	}
	return BillingMonthly
}
