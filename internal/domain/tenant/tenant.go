// Package tenant defines the provisioned tenant aggregate: its database
// descriptor, domain bindings and subscriptions.
package tenant

import (
	"strings"
	"time"

	"github.com/Strob0t/TenantForge/internal/domain/registration"
)

// TrialDays is the fixed length of the trial subscription.
const TrialDays = 14

// TrialLength is TrialDays as a duration.
const TrialLength = TrialDays * 24 * time.Hour

const (
	databasePrefix = "tenant_"
	roleSuffix     = "_app"
	idHexLength    = 16
)

// PlaceholderDatabase is the descriptor a tenant carries before its id-derived
// database has been computed. It must never reach a caller.
var PlaceholderDatabase = Database{Name: "pending", ConnectionString: "pending"}

// Database describes the physical database serving one tenant.
type Database struct {
	Name             string `json:"name"`
	ConnectionString string `json:"-"`
}

// IsPlaceholder reports whether d is still the temporary descriptor.
func (d Database) IsPlaceholder() bool {
	return d == PlaceholderDatabase || d.Name == "" || d.ConnectionString == ""
}

// Domain is a hostname bound to a tenant.
type Domain struct {
	Name      string `json:"name"`
	IsPrimary bool   `json:"is_primary"`
}

// SubscriptionStatus is the state of a subscription.
type SubscriptionStatus string

const (
	SubscriptionTrial  SubscriptionStatus = "trial"
	SubscriptionActive SubscriptionStatus = "active"
)

// Subscription is a billing plan attached to a tenant. A nil PlanID means trial.
type Subscription struct {
	ID           string                    `json:"id"`
	TenantID     string                    `json:"tenant_id"`
	PlanID       *string                   `json:"plan_id,omitempty"`
	BillingCycle registration.BillingCycle `json:"billing_cycle"`
	Price        int64                     `json:"price"` // minor currency units
	Status       SubscriptionStatus        `json:"status"`
	StartDate    time.Time                 `json:"start_date"`
	TrialEndDate *time.Time                `json:"trial_end_date,omitempty"`
}

// IsTrial reports whether the subscription has no paid plan.
func (s *Subscription) IsTrial() bool {
	return s.PlanID == nil
}

// Tenant is an isolated customer workspace.
type Tenant struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Code          string         `json:"code"`
	ContactEmail  string         `json:"contact_email"`
	Database      Database       `json:"database"`
	Active        bool           `json:"active"`
	Domains       []Domain       `json:"domains"`
	Subscriptions []Subscription `json:"subscriptions"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// PrimaryDomain returns the primary domain name, or "" when none is bound.
func (t *Tenant) PrimaryDomain() string {
	for _, d := range t.Domains {
		if d.IsPrimary {
			return d.Name
		}
	}
	return ""
}

// DatabaseName derives the physical database name for a tenant id.
func DatabaseName(tenantID string) string {
	return databasePrefix + idHex(tenantID)
}

// RoleName derives the scoped login role name for a tenant id.
func RoleName(tenantID string) string {
	return databasePrefix + idHex(tenantID) + roleSuffix
}

func idHex(tenantID string) string {
	h := strings.ToLower(strings.ReplaceAll(tenantID, "-", ""))
	if len(h) > idHexLength {
		h = h[:idHexLength]
	}
	return h
}
